package analysis

import (
	"errors"
	"fmt"

	"github.com/relabs-tech/ski_compute/internal/imu"
	"github.com/relabs-tech/ski_compute/internal/orientation"
)

// ErrInvalidConfig wraps every configuration problem.
var ErrInvalidConfig = errors.New("analysis: invalid config")

// Config parameterizes session analysis. Zero fields take DefaultConfig
// values through WithDefaults.
type Config struct {
	// CutoffHz is the low-pass corner applied to the yaw rate.
	CutoffHz float64 `json:"cutoff_hz" yaml:"cutoff_hz"`
	// RollTau is the complementary filter time constant (s).
	RollTau float64 `json:"roll_tau" yaml:"roll_tau"`

	// OnsetYawRate starts a turn (rad/s, filtered). A turn ends when the
	// rate falls under OnsetYawRate·ExitRatio.
	OnsetYawRate    float64 `json:"onset_yaw_rate" yaml:"onset_yaw_rate"`
	ExitRatio       float64 `json:"exit_ratio" yaml:"exit_ratio"`
	MinTurnDuration float64 `json:"min_turn_duration" yaml:"min_turn_duration"` // s
	CarvingRollDeg  float64 `json:"carving_roll_deg" yaml:"carving_roll_deg"`

	// Segmentation on barometric altitude.
	DescentRate    float64 `json:"descent_rate" yaml:"descent_rate"`         // m/s
	MinRunDuration float64 `json:"min_run_duration" yaml:"min_run_duration"` // s
	MergeGap       float64 `json:"merge_gap" yaml:"merge_gap"`               // s
	BaroSmoothing  float64 `json:"baro_smoothing" yaml:"baro_smoothing"`     // IIR alpha in (0,1]

	// Fallback rates (Hz) for streams whose Input rate is zero and whose
	// samples carry no timestamps.
	IMUFS  float64 `json:"imu_fs" yaml:"imu_fs"`
	BaroFS float64 `json:"baro_fs" yaml:"baro_fs"`
	GPSFS  float64 `json:"gps_fs" yaml:"gps_fs"`

	// MaxEstimatedSpeed caps the IMU-only speed estimate (m/s).
	MaxEstimatedSpeed float64 `json:"max_estimated_speed" yaml:"max_estimated_speed"`
	Gravity           float64 `json:"gravity" yaml:"gravity"`

	// Calibration is R_board_to_imu from a successful calibration. When set,
	// IMU vectors are rotated into the board frame before analysis.
	Calibration *orientation.Mat3 `json:"R_board_to_imu,omitempty" yaml:"R_board_to_imu,omitempty"`

	Verbose bool `json:"verbose" yaml:"verbose"`
}

func DefaultConfig() Config {
	return Config{
		CutoffHz:          0.5,
		RollTau:           0.5,
		OnsetYawRate:      0.3,
		ExitRatio:         0.7,
		MinTurnDuration:   0.5,
		CarvingRollDeg:    10,
		DescentRate:       0.3,
		MinRunDuration:    20,
		MergeGap:          10,
		BaroSmoothing:     0.3,
		IMUFS:             100,
		BaroFS:            1,
		GPSFS:             1,
		MaxEstimatedSpeed: 30,
		Gravity:           imu.StandardGravity,
	}
}

// WithDefaults fills zero fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	fill := func(v *float64, def float64) {
		if *v == 0 {
			*v = def
		}
	}
	fill(&c.CutoffHz, d.CutoffHz)
	fill(&c.RollTau, d.RollTau)
	fill(&c.OnsetYawRate, d.OnsetYawRate)
	fill(&c.ExitRatio, d.ExitRatio)
	fill(&c.MinTurnDuration, d.MinTurnDuration)
	fill(&c.CarvingRollDeg, d.CarvingRollDeg)
	fill(&c.DescentRate, d.DescentRate)
	fill(&c.MinRunDuration, d.MinRunDuration)
	fill(&c.MergeGap, d.MergeGap)
	fill(&c.BaroSmoothing, d.BaroSmoothing)
	fill(&c.IMUFS, d.IMUFS)
	fill(&c.BaroFS, d.BaroFS)
	fill(&c.GPSFS, d.GPSFS)
	fill(&c.MaxEstimatedSpeed, d.MaxEstimatedSpeed)
	fill(&c.Gravity, d.Gravity)
	return c
}

func (c Config) Validate() error {
	switch {
	case c.CutoffHz <= 0:
		return fmt.Errorf("%w: cutoff_hz must be > 0, got %v", ErrInvalidConfig, c.CutoffHz)
	case c.RollTau <= 0:
		return fmt.Errorf("%w: roll_tau must be > 0, got %v", ErrInvalidConfig, c.RollTau)
	case c.OnsetYawRate <= 0:
		return fmt.Errorf("%w: onset_yaw_rate must be > 0, got %v", ErrInvalidConfig, c.OnsetYawRate)
	case c.ExitRatio <= 0 || c.ExitRatio > 1:
		return fmt.Errorf("%w: exit_ratio must be in (0,1], got %v", ErrInvalidConfig, c.ExitRatio)
	case c.MinTurnDuration < 0:
		return fmt.Errorf("%w: min_turn_duration must be >= 0, got %v", ErrInvalidConfig, c.MinTurnDuration)
	case c.IMUFS < 0 || c.BaroFS < 0 || c.GPSFS < 0:
		return fmt.Errorf("%w: sample rates must be >= 0", ErrInvalidConfig)
	case c.BaroSmoothing <= 0 || c.BaroSmoothing > 1:
		return fmt.Errorf("%w: baro_smoothing must be in (0,1], got %v", ErrInvalidConfig, c.BaroSmoothing)
	case c.Calibration != nil && orientation.OrthonormalityError(*c.Calibration) > 1e-3:
		return fmt.Errorf("%w: calibration matrix is not orthonormal", ErrInvalidConfig)
	}
	return nil
}
