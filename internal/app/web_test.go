package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/relabs-tech/ski_compute/internal/analysis"
	"github.com/relabs-tech/ski_compute/internal/calibration"
	"github.com/relabs-tech/ski_compute/internal/orientation"
	"github.com/relabs-tech/ski_compute/internal/store"
	"github.com/relabs-tech/ski_compute/internal/synth"
)

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	s := NewServer(testConfig(t), store.New())
	w := do(t, s, http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d want=200", w.Code)
	}
}

func TestCalibrateListGet(t *testing.T) {
	s := NewServer(testConfig(t), store.New())

	w := do(t, s, http.MethodPost, "/api/devices/board-1/calibrate?step=2", synth.DefaultManeuver().Batch(""))
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", w.Code, w.Body.String())
	}
	rec := decode[store.Record](t, w)
	if rec.Status != calibration.StatusCompleted || rec.Step != 2 || rec.DeviceID != "board-1" {
		t.Fatalf("record=%+v", rec)
	}
	if rec.Result == nil || rec.Result.RotationMatrix == nil {
		t.Fatalf("record carries no rotation")
	}

	// A rest-only batch is a data-quality failure, still 200.
	m := synth.DefaultManeuver()
	m.RotationDeg = 0
	w = do(t, s, http.MethodPost, "/api/devices/board-1/calibrate", m.Batch("board-1"))
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", w.Code, w.Body.String())
	}
	failed := decode[store.Record](t, w)
	if failed.Status != calibration.StatusFailed || failed.FailureReason != calibration.ReasonDegenerateRotation {
		t.Fatalf("failed record=%+v", failed)
	}

	w = do(t, s, http.MethodGet, "/api/devices/board-1/calibrations?page=1&page_size=1", nil)
	page := decode[store.Page](t, w)
	if page.Total != 2 || len(page.Items) != 1 || !page.HasNext || page.Items[0].ID != failed.ID {
		t.Fatalf("page=%+v", page)
	}

	w = do(t, s, http.MethodGet, "/api/calibrations/"+rec.ID.String(), nil)
	if w.Code != http.StatusOK || decode[store.Record](t, w).ID != rec.ID {
		t.Fatalf("get code=%d body=%s", w.Code, w.Body.String())
	}
}

func TestCalibrateErrors(t *testing.T) {
	s := NewServer(testConfig(t), store.New())
	cases := []struct {
		name string
		path string
		body any
		code int
	}{
		{"bad step", "/api/devices/d/calibrate?step=9", synth.DefaultManeuver().Batch("d"), http.StatusBadRequest},
		{"step not a number", "/api/devices/d/calibrate?step=x", synth.DefaultManeuver().Batch("d"), http.StatusBadRequest},
		{"empty batch", "/api/devices/d/calibrate", map[string]any{"meta": map[string]any{}, "data": [][]float64{}}, http.StatusBadRequest},
		{"bad purity", "/api/devices/d/calibrate?purity_threshold=2", synth.DefaultManeuver().Batch("d"), http.StatusBadRequest},
	}
	for _, tc := range cases {
		w := do(t, s, http.MethodPost, tc.path, tc.body)
		if w.Code != tc.code {
			t.Fatalf("%s: code=%d want=%d body=%s", tc.name, w.Code, tc.code, w.Body.String())
		}
	}

	if w := do(t, s, http.MethodGet, "/api/calibrations/not-a-uuid", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad id code=%d", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/api/calibrations/"+uuid.NewString(), nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing id code=%d", w.Code)
	}
}

func TestAnalyzeSession(t *testing.T) {
	s := NewServer(testConfig(t), store.New())
	w := do(t, s, http.MethodPost, "/api/sessions/analyze", MockSession("board-1", orientation.Pose{}, 3))
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", w.Code, w.Body.String())
	}
	report := decode[SessionReport](t, w)
	if len(report.Segments) != 1 || report.TurnCount != 2 || len(report.Metrics) != 2 {
		t.Fatalf("segments=%d turns=%d metrics=%d", len(report.Segments), report.TurnCount, len(report.Metrics))
	}
	if d := report.Metrics[0].TurnDirection; d == nil || *d != analysis.Left {
		t.Fatalf("first turn direction=%v", d)
	}

	if w := do(t, s, http.MethodPost, "/api/sessions/analyze", map[string]any{"imu": map[string]any{}}); w.Code != http.StatusBadRequest {
		t.Fatalf("empty session code=%d", w.Code)
	}
}

func TestAnalyzeUsesStoredCalibration(t *testing.T) {
	st := store.New()
	s := NewServer(testConfig(t), st)
	install := orientation.Pose{Roll: 180}

	w := do(t, s, http.MethodPost, "/api/devices/board-9/calibrate", MockCalibration("board-9", install, 1))
	if rec := decode[store.Record](t, w); rec.Status != calibration.StatusCompleted {
		t.Fatalf("calibration=%+v", rec)
	}

	// The board is mounted upside down; without the stored rotation the
	// first turn would read as a right turn.
	w = do(t, s, http.MethodPost, "/api/sessions/analyze", MockSession("board-9", install, 2))
	report := decode[SessionReport](t, w)
	if report.TurnCount != 2 {
		t.Fatalf("turns=%d want=2", report.TurnCount)
	}
	first, second := report.Metrics[0].TurnDirection, report.Metrics[1].TurnDirection
	if *first != analysis.Left || *second != analysis.Right {
		t.Fatalf("directions=%s,%s", *first, *second)
	}
}
