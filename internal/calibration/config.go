// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package calibration

import (
	"errors"
	"fmt"
	"math"

	"github.com/relabs-tech/ski_compute/internal/imu"
	"github.com/relabs-tech/ski_compute/internal/orientation"
)

// ErrInvalidConfig wraps every configuration problem.
var ErrInvalidConfig = errors.New("calibration: invalid config")

// Config parameterizes one calibration call. Zero fields take the values
// from DefaultConfig through WithDefaults.
type Config struct {
	StaticWindowSize        int     `json:"static_window_size" yaml:"static_window_size"`
	RotationWindowSize      int     `json:"rotation_window_size" yaml:"rotation_window_size"`
	RotationPurityThreshold float64 `json:"rotation_purity_threshold" yaml:"rotation_purity_threshold"`

	// SampleRate in Hz. When zero the rate is estimated from timestamps.
	SampleRate float64 `json:"sample_rate" yaml:"sample_rate"`
	Gravity    float64 `json:"gravity" yaml:"gravity"`

	// GravityTolerance is the |‖g‖ − Gravity| above which a warning is raised (m/s²).
	GravityTolerance float64 `json:"gravity_tolerance" yaml:"gravity_tolerance"`
	// StaticGyroStdMax bounds the gyro vector std inside the static window (rad/s).
	StaticGyroStdMax float64 `json:"static_gyro_std_max" yaml:"static_gyro_std_max"`
	// StaticAccelStdMax bounds the std of |acc| inside the static window (m/s²).
	StaticAccelStdMax float64 `json:"static_accel_std_max" yaml:"static_accel_std_max"`
	// StaticGyroMeanMax bounds |mean gyro| inside the static window (rad/s).
	// Anything above it is a steady turn, not sensor bias.
	StaticGyroMeanMax float64 `json:"static_gyro_mean_max" yaml:"static_gyro_mean_max"`

	// MinRotationRate is the smallest RMS angular rate (rad/s) of a rotation
	// window, sqrt(Σ|ω|²/n). It does not depend on the window length.
	MinRotationRate      float64 `json:"min_rotation_rate" yaml:"min_rotation_rate"`
	MinNetRotationDeg    float64 `json:"min_net_rotation_deg" yaml:"min_net_rotation_deg"`
	MinAxisSeparationDeg float64 `json:"min_axis_separation_deg" yaml:"min_axis_separation_deg"`
	// RotationStride is the step of the rotation window search; 0 picks RotationWindowSize/20.
	RotationStride int `json:"rotation_stride" yaml:"rotation_stride"`

	// Board-frame references of the maneuver: the specific force seen at rest
	// and the axis the board is rotated about.
	BoardUp           orientation.Vec3 `json:"board_up" yaml:"board_up"`
	BoardRotationAxis orientation.Vec3 `json:"board_rotation_axis" yaml:"board_rotation_axis"`

	Verbose bool `json:"verbose" yaml:"verbose"`
}

// DefaultConfig mirrors the values used by the device calibration endpoint.
func DefaultConfig() Config {
	return Config{
		StaticWindowSize:        100,
		RotationWindowSize:      200,
		RotationPurityThreshold: 0.70,
		SampleRate:              100,
		Gravity:                 imu.StandardGravity,
		GravityTolerance:        0.5,
		StaticGyroStdMax:        0.05,
		StaticAccelStdMax:       0.3,
		StaticGyroMeanMax:       0.05,
		MinRotationRate:         0.1,
		MinNetRotationDeg:       15,
		MinAxisSeparationDeg:    20,
		BoardUp:                 orientation.V(0, 0, 1),
		BoardRotationAxis:       orientation.V(1, 0, 0),
	}
}

// WithDefaults fills zero fields from DefaultConfig. SampleRate is left
// alone so that zero keeps meaning "estimate from timestamps".
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.StaticWindowSize == 0 {
		c.StaticWindowSize = d.StaticWindowSize
	}
	if c.RotationWindowSize == 0 {
		c.RotationWindowSize = d.RotationWindowSize
	}
	if c.RotationPurityThreshold == 0 {
		c.RotationPurityThreshold = d.RotationPurityThreshold
	}
	if c.Gravity == 0 {
		c.Gravity = d.Gravity
	}
	if c.GravityTolerance == 0 {
		c.GravityTolerance = d.GravityTolerance
	}
	if c.StaticGyroStdMax == 0 {
		c.StaticGyroStdMax = d.StaticGyroStdMax
	}
	if c.StaticAccelStdMax == 0 {
		c.StaticAccelStdMax = d.StaticAccelStdMax
	}
	if c.StaticGyroMeanMax == 0 {
		c.StaticGyroMeanMax = d.StaticGyroMeanMax
	}
	if c.MinRotationRate == 0 {
		c.MinRotationRate = d.MinRotationRate
	}
	if c.MinNetRotationDeg == 0 {
		c.MinNetRotationDeg = d.MinNetRotationDeg
	}
	if c.MinAxisSeparationDeg == 0 {
		c.MinAxisSeparationDeg = d.MinAxisSeparationDeg
	}
	if c.BoardUp == (orientation.Vec3{}) {
		c.BoardUp = d.BoardUp
	}
	if c.BoardRotationAxis == (orientation.Vec3{}) {
		c.BoardRotationAxis = d.BoardRotationAxis
	}
	return c
}

// Validate reports programmer errors in the configuration.
func (c Config) Validate() error {
	if c.StaticWindowSize < 2 {
		return fmt.Errorf("%w: static_window_size must be >= 2, got %d", ErrInvalidConfig, c.StaticWindowSize)
	}
	if c.RotationWindowSize < 3 {
		return fmt.Errorf("%w: rotation_window_size must be >= 3, got %d", ErrInvalidConfig, c.RotationWindowSize)
	}
	if c.RotationPurityThreshold < 0 || c.RotationPurityThreshold > 1 || math.IsNaN(c.RotationPurityThreshold) {
		return fmt.Errorf("%w: rotation_purity_threshold must be in [0,1], got %v", ErrInvalidConfig, c.RotationPurityThreshold)
	}
	if c.SampleRate < 0 {
		return fmt.Errorf("%w: sample_rate must be >= 0, got %v", ErrInvalidConfig, c.SampleRate)
	}
	if c.Gravity <= 0 {
		return fmt.Errorf("%w: gravity must be > 0, got %v", ErrInvalidConfig, c.Gravity)
	}
	if c.RotationStride < 0 {
		return fmt.Errorf("%w: rotation_stride must be >= 0, got %d", ErrInvalidConfig, c.RotationStride)
	}
	if c.BoardUp.Norm() < 1e-9 || c.BoardRotationAxis.Norm() < 1e-9 {
		return fmt.Errorf("%w: board reference vectors must be non-zero", ErrInvalidConfig)
	}
	if sep := orientation.Deg(orientation.AngleBetween(c.BoardUp, c.BoardRotationAxis)); sep < 1 || sep > 179 {
		return fmt.Errorf("%w: board_up and board_rotation_axis are collinear", ErrInvalidConfig)
	}
	return nil
}

func (c Config) stride() int {
	if c.RotationStride > 0 {
		return c.RotationStride
	}
	if s := c.RotationWindowSize / 20; s > 1 {
		return s
	}
	return 1
}
