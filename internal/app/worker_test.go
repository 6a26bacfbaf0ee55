package app

import (
	"encoding/json"
	"testing"

	"github.com/relabs-tech/ski_compute/internal/calibration"
	"github.com/relabs-tech/ski_compute/internal/orientation"
	"github.com/relabs-tech/ski_compute/internal/store"
	"github.com/relabs-tech/ski_compute/internal/synth"
)

func TestWorkerBatchAndSession(t *testing.T) {
	cfg := testConfig(t)
	st := store.New()
	broker := &fakeBroker{}
	w := NewWorker(cfg, st, broker.publish)

	payload, err := json.Marshal(synth.DefaultManeuver().Batch("board-5"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	rec, err := w.HandleBatch(payload)
	if err != nil {
		t.Fatalf("HandleBatch: %v", err)
	}
	if rec.Status != calibration.StatusCompleted {
		t.Fatalf("record=%+v", rec)
	}
	if len(broker.msgs) != 1 {
		t.Fatalf("published=%d want=1", len(broker.msgs))
	}
	msg := broker.msgs[0]
	if msg.topic != "ski/calibration/result/board-5" || !msg.retained {
		t.Fatalf("topic=%s retained=%v", msg.topic, msg.retained)
	}

	payload, err = json.Marshal(MockSession("board-5", orientation.Pose{}, 4))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	report, err := w.HandleSession(payload)
	if err != nil {
		t.Fatalf("HandleSession: %v", err)
	}
	if report.TurnCount != 2 {
		t.Fatalf("turns=%d want=2", report.TurnCount)
	}
	if last := broker.msgs[len(broker.msgs)-1]; last.topic != "ski/turns/board-5" || last.retained {
		t.Fatalf("topic=%s retained=%v", last.topic, last.retained)
	}
}

func TestWorkerRejectsGarbage(t *testing.T) {
	w := NewWorker(testConfig(t), store.New(), (&fakeBroker{}).publish)
	if _, err := w.HandleBatch([]byte("{")); err == nil {
		t.Fatalf("expected batch decode error")
	}
	if _, err := w.HandleSession([]byte("[]")); err == nil {
		t.Fatalf("expected session decode error")
	}
}

func TestWorkerFallsBackToConfiguredDevice(t *testing.T) {
	broker := &fakeBroker{}
	w := NewWorker(testConfig(t), store.New(), broker.publish)
	payload, _ := json.Marshal(synth.DefaultManeuver().Batch(""))
	rec, err := w.HandleBatch(payload)
	if err != nil {
		t.Fatalf("HandleBatch: %v", err)
	}
	if rec.DeviceID != "board-test" || broker.msgs[0].topic != "ski/calibration/result/board-test" {
		t.Fatalf("device=%s topic=%s", rec.DeviceID, broker.msgs[0].topic)
	}
}
