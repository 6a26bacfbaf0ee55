package app

import (
	"fmt"

	"github.com/relabs-tech/ski_compute/internal/analysis"
	"github.com/relabs-tech/ski_compute/internal/env"
	"github.com/relabs-tech/ski_compute/internal/gps"
	"github.com/relabs-tech/ski_compute/internal/imu"
	"github.com/relabs-tech/ski_compute/internal/orientation"
	"github.com/relabs-tech/ski_compute/internal/store"
)

// SessionRequest is one recorded session as uploaded by a device.
type SessionRequest struct {
	DeviceID string       `json:"device_id,omitempty"`
	IMU      imu.Batch    `json:"imu"`
	Baro     []env.Sample `json:"baro,omitempty"`
	GPS      []gps.Fix    `json:"gps,omitempty"`
	BaroFS   float64      `json:"baro_fs,omitempty"`
	GPSFS    float64      `json:"gps_fs,omitempty"`

	// Calibration overrides the device's latest stored calibration.
	Calibration *orientation.Mat3 `json:"R_board_to_imu,omitempty"`
}

// SessionReport is the analysis result of one session.
type SessionReport struct {
	DeviceID  string             `json:"device_id,omitempty" yaml:"device_id,omitempty"`
	Segments  []analysis.Segment `json:"segments" yaml:"segments"`
	Metrics   []analysis.Metric  `json:"metrics" yaml:"metrics"`
	TurnCount int                `json:"turn_count" yaml:"turn_count"`
}

func (r SessionRequest) deviceID() string {
	if r.DeviceID != "" {
		return r.DeviceID
	}
	return r.IMU.Meta.DeviceID
}

// Analyze runs the turn pipeline on a session. When the request carries no
// rotation and st holds a successful calibration for the device, that
// calibration is applied.
func Analyze(req SessionRequest, cfg analysis.Config, st *store.Store) (SessionReport, error) {
	cfg = cfg.WithDefaults()
	samples, err := req.IMU.Samples(cfg.Gravity)
	if err != nil {
		return SessionReport{}, fmt.Errorf("session imu: %w", err)
	}

	switch {
	case req.Calibration != nil:
		cfg.Calibration = req.Calibration
	case cfg.Calibration == nil && st != nil:
		if rec, ok := st.Latest(req.deviceID()); ok && rec.Result != nil {
			cfg.Calibration = rec.Result.RotationMatrix
		}
	}

	sys := analysis.NewSystem(analysis.Input{
		IMU:    samples,
		Baro:   req.Baro,
		GPS:    req.GPS,
		IMUFS:  req.IMU.Meta.SampleRate,
		BaroFS: req.BaroFS,
		GPSFS:  req.GPSFS,
	}, cfg)
	segments, err := sys.ProcessSession()
	if err != nil {
		return SessionReport{}, err
	}
	return SessionReport{
		DeviceID:  req.deviceID(),
		Segments:  segments,
		Metrics:   analysis.Metrics(segments),
		TurnCount: analysis.TurnCount(segments),
	}, nil
}
