package app

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/ski_compute/internal/calibration"
	"github.com/relabs-tech/ski_compute/internal/store"
	"github.com/relabs-tech/ski_compute/internal/synth"
)

func TestCalibrationSessionPhases(t *testing.T) {
	st := store.New()
	cs := newCalibrationSession(st, calibration.DefaultConfig(), 2000)

	if out := cs.Handle(WSMessage{Action: "samples"}); out[0].Type != "error" {
		t.Fatalf("samples before start: %+v", out)
	}
	out := cs.Handle(WSMessage{Action: "start", DeviceID: "board-3", SampleRate: 100})
	if len(out) != 1 || out[0].Type != "phase" || out[0].Phase != PhaseStatic {
		t.Fatalf("start: %+v", out)
	}

	rows := synth.DefaultManeuver().Batch("board-3").Data
	out = cs.Handle(WSMessage{Action: "samples", Samples: rows[:150]})
	if len(out) != 2 || out[0].Progress != 50 || out[1].Phase != PhaseRotation {
		t.Fatalf("samples: %+v", out)
	}
	out = cs.Handle(WSMessage{Action: "samples", Samples: rows[150:]})
	if out[0].Progress != 100 || out[0].Samples != len(rows) {
		t.Fatalf("progress: %+v", out)
	}

	out = cs.Handle(WSMessage{Action: "finish"})
	if len(out) != 1 || out[0].Type != "result" || out[0].Record == nil {
		t.Fatalf("finish: %+v", out)
	}
	if rec := out[0].Record; rec.Status != calibration.StatusCompleted || rec.Step != 1 {
		t.Fatalf("record=%+v", rec)
	}
	if p := st.List("board-3", 1, 10); p.Total != 1 {
		t.Fatalf("stored=%d want=1", p.Total)
	}

	if out := cs.Handle(WSMessage{Action: "dance"}); out[0].Type != "error" {
		t.Fatalf("unknown action: %+v", out)
	}
}

func TestCalibrationSessionBufferLimit(t *testing.T) {
	cs := newCalibrationSession(store.New(), calibration.DefaultConfig(), 600)
	cs.Handle(WSMessage{Action: "start", DeviceID: "d", SampleRate: 100})

	rows := synth.DefaultManeuver().Batch("d").Data
	if out := cs.Handle(WSMessage{Action: "samples", Samples: rows}); out[0].Type != "progress" {
		t.Fatalf("first chunk: %+v", out)
	}
	out := cs.Handle(WSMessage{Action: "samples", Samples: rows[:100]})
	if len(out) != 1 || out[0].Type != "error" || !strings.Contains(out[0].Message, "buffer full") {
		t.Fatalf("over limit: %+v", out)
	}
	if got := len(cs.rows); got != len(rows) {
		t.Fatalf("rows=%d want=%d", got, len(rows))
	}
	// the buffered samples are still usable
	if out := cs.Handle(WSMessage{Action: "finish"}); out[0].Type != "result" {
		t.Fatalf("finish: %+v", out)
	}
}

func TestCalibrationSessionEmptyFinish(t *testing.T) {
	cs := newCalibrationSession(store.New(), calibration.DefaultConfig(), 2000)
	cs.Handle(WSMessage{Action: "start", DeviceID: "d"})
	if out := cs.Handle(WSMessage{Action: "finish"}); out[0].Type != "error" {
		t.Fatalf("finish without samples: %+v", out)
	}
}

func TestCalibrationWebsocket(t *testing.T) {
	s := NewServer(testConfig(t), store.New())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/calibration"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() WSResponse {
		t.Helper()
		var resp WSResponse
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("read: %v", err)
		}
		return resp
	}

	if err := conn.WriteJSON(WSMessage{Action: "start", DeviceID: "board-ws", SampleRate: 100}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if resp := read(); resp.Phase != PhaseStatic {
		t.Fatalf("start reply=%+v", resp)
	}

	rows := synth.DefaultManeuver().Batch("board-ws").Data
	if err := conn.WriteJSON(WSMessage{Action: "samples", Samples: rows}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if resp := read(); resp.Type != "progress" || resp.Progress != 100 {
		t.Fatalf("progress reply=%+v", resp)
	}
	if resp := read(); resp.Phase != PhaseRotation {
		t.Fatalf("phase reply=%+v", resp)
	}

	if err := conn.WriteJSON(WSMessage{Action: "finish"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	resp := read()
	if resp.Type != "result" || resp.Record == nil || resp.Record.Status != calibration.StatusCompleted {
		t.Fatalf("result reply=%+v", resp)
	}
}
