// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"math"
	"net/http"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/ski_compute/internal/calibration"
	"github.com/relabs-tech/ski_compute/internal/imu"
	"github.com/relabs-tech/ski_compute/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// sessionBatchFactor bounds a session buffer to this many IMU batches.
const sessionBatchFactor = 4

// Guided phases of a calibration session.
const (
	PhaseStatic   = "static"   // hold the board still
	PhaseRotation = "rotation" // rotate the board about its long axis
	PhaseDone     = "done"
)

// WSMessage is sent by the client.
type WSMessage struct {
	Action     string      `json:"action"` // start, samples, finish, cancel
	DeviceID   string      `json:"device_id,omitempty"`
	Step       int         `json:"step,omitempty"`
	SampleRate float64     `json:"sample_rate,omitempty"`
	Samples    [][]float64 `json:"samples,omitempty"` // device-units rows
}

// WSResponse is sent by the server.
type WSResponse struct {
	Type     string        `json:"type"` // phase, progress, result, error
	Phase    string        `json:"phase,omitempty"`
	Progress float64       `json:"progress,omitempty"`
	Samples  int           `json:"samples,omitempty"`
	Record   *store.Record `json:"record,omitempty"`
	Message  string        `json:"message,omitempty"`
}

// CalibrationSession collects samples streamed by one client.
type CalibrationSession struct {
	store *store.Store
	cfg   calibration.Config

	deviceID   string
	step       int
	sampleRate float64
	phase      string
	rows       [][]float64
	maxRows    int
}

func newCalibrationSession(st *store.Store, cfg calibration.Config, maxRows int) *CalibrationSession {
	return &CalibrationSession{store: st, cfg: cfg.WithDefaults(), maxRows: maxRows}
}

// HandleCalibrationWS handles the WebSocket connection for calibration.
func (s *Server) HandleCalibrationWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("calibration: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	session := newCalibrationSession(s.store, s.cfg.Calibration(), s.cfg.IMUBatchSize*sessionBatchFactor)
	for {
		var msg WSMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debugf("calibration: websocket read error: %v", err)
			}
			return
		}
		if msg.Action == "cancel" {
			log.Infof("calibration: cancelled by user")
			return
		}
		for _, resp := range session.Handle(msg) {
			if err := conn.WriteJSON(resp); err != nil {
				log.Warnf("calibration: websocket write error: %v", err)
				return
			}
		}
	}
}

// Handle advances the session by one client message.
func (cs *CalibrationSession) Handle(msg WSMessage) []WSResponse {
	switch msg.Action {
	case "start":
		if msg.DeviceID == "" {
			return []WSResponse{errorResponse("start requires device_id")}
		}
		cs.deviceID = msg.DeviceID
		cs.step = msg.Step
		if cs.step == 0 {
			cs.step = 1
		}
		cs.sampleRate = msg.SampleRate
		cs.rows = cs.rows[:0]
		cs.phase = PhaseStatic
		log.Infof("calibration: session started for device %s step %d", cs.deviceID, cs.step)
		return []WSResponse{{Type: "phase", Phase: cs.phase, Message: "hold the board still"}}

	case "samples":
		if cs.phase != PhaseStatic && cs.phase != PhaseRotation {
			return []WSResponse{errorResponse("session not started")}
		}
		if len(cs.rows)+len(msg.Samples) > cs.maxRows {
			return []WSResponse{errorResponse(fmt.Sprintf(
				"sample buffer full: %d of %d samples held, send finish or start again", len(cs.rows), cs.maxRows))}
		}
		cs.rows = append(cs.rows, msg.Samples...)
		out := []WSResponse{cs.progress()}
		if cs.phase == PhaseStatic && len(cs.rows) >= cs.cfg.StaticWindowSize {
			cs.phase = PhaseRotation
			out = append(out, WSResponse{Type: "phase", Phase: cs.phase, Message: "rotate the board about its long axis"})
		}
		return out

	case "finish":
		if cs.phase != PhaseStatic && cs.phase != PhaseRotation {
			return []WSResponse{errorResponse("session not started")}
		}
		rec, err := cs.finish()
		if err != nil {
			return []WSResponse{errorResponse(err.Error())}
		}
		cs.phase = PhaseDone
		return []WSResponse{{Type: "result", Phase: cs.phase, Record: &rec}}

	default:
		return []WSResponse{errorResponse(fmt.Sprintf("unknown action %q", msg.Action))}
	}
}

func (cs *CalibrationSession) progress() WSResponse {
	need := cs.cfg.StaticWindowSize + cs.cfg.RotationWindowSize
	return WSResponse{
		Type:     "progress",
		Phase:    cs.phase,
		Progress: math.Min(100, 100*float64(len(cs.rows))/float64(need)),
		Samples:  len(cs.rows),
	}
}

func (cs *CalibrationSession) finish() (store.Record, error) {
	batch := imu.NewBatch(cs.deviceID, cs.sampleRate, cs.rows)
	batch.Meta.DataFields = nil
	return calibrateAndStore(cs.store, cs.deviceID, cs.step, batch, cs.cfg)
}

func errorResponse(message string) WSResponse {
	return WSResponse{Type: "error", Message: message}
}
