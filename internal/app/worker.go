package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/ski_compute/internal/config"
	"github.com/relabs-tech/ski_compute/internal/imu"
	"github.com/relabs-tech/ski_compute/internal/store"
)

// Worker calibrates IMU batches and analyzes sessions arriving over MQTT.
type Worker struct {
	cfg     *config.Config
	store   *store.Store
	publish publishFunc
}

func NewWorker(cfg *config.Config, st *store.Store, publish publishFunc) *Worker {
	return &Worker{cfg: cfg, store: st, publish: publish}
}

// HandleBatch calibrates one batch and publishes the record, retained, to
// the device's result topic.
func (w *Worker) HandleBatch(payload []byte) (store.Record, error) {
	batch, err := imu.DecodeBatch(bytes.NewReader(payload))
	if err != nil {
		return store.Record{}, err
	}
	deviceID := batch.Meta.DeviceID
	if deviceID == "" {
		deviceID = w.cfg.DeviceID
	}
	rec, err := calibrateAndStore(w.store, deviceID, 1, batch, w.cfg.Calibration())
	if err != nil {
		return store.Record{}, err
	}
	topic := deviceTopic(w.cfg.TopicCalibrationResult, deviceID)
	if err := publishJSON(w.publish, topic, true, rec); err != nil {
		return rec, err
	}
	return rec, nil
}

// HandleSession analyzes one session and publishes its turn report.
func (w *Worker) HandleSession(payload []byte) (SessionReport, error) {
	var req SessionRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return SessionReport{}, fmt.Errorf("session unmarshal: %w", err)
	}
	report, err := Analyze(req, w.cfg.Analysis(), w.store)
	if err != nil {
		return SessionReport{}, err
	}
	topic := deviceTopic(w.cfg.TopicTurns, report.DeviceID)
	if err := publishJSON(w.publish, topic, false, report); err != nil {
		return report, err
	}
	return report, nil
}

// RunWorker subscribes to the batch and session topics until ctx is done.
func RunWorker(ctx context.Context, cfg *config.Config, st *store.Store) error {
	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWorker)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	w := NewWorker(cfg, st, clientPublisher(client))

	// Handlers run on the paho router goroutine; pipelines get their own.
	if err := subscribe(client, cfg.TopicIMUBatch, func(payload []byte) {
		go func() {
			rec, err := w.HandleBatch(payload)
			if err != nil {
				log.Warnf("worker: batch: %v", err)
				return
			}
			log.Infof("worker: device %s calibration %s (%s)", rec.DeviceID, rec.Status, rec.ID)
		}()
	}); err != nil {
		return err
	}

	if err := subscribe(client, cfg.TopicSession, func(payload []byte) {
		go func() {
			report, err := w.HandleSession(payload)
			if err != nil {
				log.Warnf("worker: session: %v", err)
				return
			}
			log.Infof("worker: device %s session: %d segments, %d turns",
				report.DeviceID, len(report.Segments), report.TurnCount)
		}()
	}); err != nil {
		return err
	}

	<-ctx.Done()
	log.Infof("worker: shutting down")
	return nil
}
