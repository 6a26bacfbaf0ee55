// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package calibration estimates how an IMU is mounted on a board from one
// batch of samples containing a rest period followed by a rotation about a
// known board axis.
//
// Conventions:
//   - R_board_to_imu maps board-frame vectors into the IMU frame: v_imu = R·v_board.
//   - installation_angles are [roll, pitch, yaw] in degrees, intrinsic Z-Y-X,
//     R = Rz(yaw)·Ry(pitch)·Rx(roll).
//   - The static window must precede the rotation window: the board rests in
//     its reference attitude, then is rotated.
package calibration

import (
	"fmt"
	"math"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/ski_compute/internal/imu"
	"github.com/relabs-tech/ski_compute/internal/orientation"
)

// FailureReason says why a calibration attempt could not produce a result.
type FailureReason string

const (
	ReasonStaticNotFound       FailureReason = "static_window_not_found"
	ReasonRotationNotFound     FailureReason = "rotation_window_not_found"
	ReasonPurityBelowThreshold FailureReason = "purity_below_threshold"
	ReasonDegenerateRotation   FailureReason = "degenerate_rotation"
	ReasonInsufficientSamples  FailureReason = "insufficient_samples"
)

// Status values as persisted with a calibration record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Result is the outcome of one calibration call. Matrix, angles and the
// estimates are nil when the corresponding stage was not reached.
type Result struct {
	Success       bool          `json:"success" yaml:"success"`
	FailureReason FailureReason `json:"failure_reason,omitempty" yaml:"failure_reason,omitempty"`
	Message       string        `json:"message,omitempty" yaml:"message,omitempty"`

	RotationMatrix     *orientation.Mat3 `json:"R_board_to_imu,omitempty" yaml:"R_board_to_imu,omitempty"`
	InstallationAngles *[3]float64       `json:"installation_angles,omitempty" yaml:"installation_angles,omitempty"`
	Purity             float64           `json:"purity" yaml:"purity"`
	StaticSlice        *Window           `json:"static_slice,omitempty" yaml:"static_slice,omitempty"`
	RotationSlice      *Window           `json:"rotation_slice,omitempty" yaml:"rotation_slice,omitempty"`

	Static   *StaticEstimate   `json:"static,omitempty" yaml:"static,omitempty"`
	Rotation *RotationEstimate `json:"rotation,omitempty" yaml:"rotation,omitempty"`
	Warnings []string          `json:"warnings,omitempty" yaml:"warnings,omitempty"`

	StaticWindowSize        int     `json:"static_window_size" yaml:"static_window_size"`
	RotationWindowSize      int     `json:"rotation_window_size" yaml:"rotation_window_size"`
	RotationPurityThreshold float64 `json:"rotation_purity_threshold" yaml:"rotation_purity_threshold"`
	TotalSamples            int     `json:"total_samples" yaml:"total_samples"`
	SampleRate              float64 `json:"sample_rate" yaml:"sample_rate"`
}

// Status maps the result onto the persisted calibration status.
func (r Result) Status() Status {
	if r.Success {
		return StatusCompleted
	}
	return StatusFailed
}

func (r *Result) fail(reason FailureReason, format string, args ...any) {
	r.Success = false
	r.FailureReason = reason
	r.Message = fmt.Sprintf(format, args...)
}

// AutoCalibrate runs the whole pipeline on one batch of SI samples.
// Data-quality problems come back as a Result with Success=false and a
// FailureReason; the error is reserved for invalid configuration and
// malformed input (empty, non-finite).
func AutoCalibrate(samples []imu.Sample, cfg Config) (Result, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	if err := imu.Check(samples); err != nil {
		return Result{}, fmt.Errorf("calibration: %w", err)
	}

	vlog := func(format string, args ...any) {
		if cfg.Verbose {
			log.Infof("calibration: "+format, args...)
		}
	}

	res := Result{
		StaticWindowSize:        cfg.StaticWindowSize,
		RotationWindowSize:      cfg.RotationWindowSize,
		RotationPurityThreshold: cfg.RotationPurityThreshold,
		TotalSamples:            len(samples),
	}

	need := cfg.StaticWindowSize + cfg.RotationWindowSize
	if len(samples) < need {
		res.fail(ReasonInsufficientSamples,
			"need at least %d samples (static %d + rotation %d), got %d",
			need, cfg.StaticWindowSize, cfg.RotationWindowSize, len(samples))
		vlog("%s", res.Message)
		return res, nil
	}

	dt := imu.Interval(samples, cfg.SampleRate)
	res.SampleRate = 1 / dt
	vlog("%d samples at %.1f Hz", len(samples), res.SampleRate)

	gyro := make([]orientation.Vec3, len(samples))
	for i, s := range samples {
		gyro[i] = s.Gyro
	}

	rs := searchRotation(gyro, cfg, dt)
	vlog("rotation search: %d windows, max rms rate %.4f rad/s", rs.evaluated, rs.maxRate)
	if !rs.found {
		switch {
		case rs.maxRate < cfg.MinRotationRate:
			res.fail(ReasonDegenerateRotation,
				"max rotation rate %.4f rad/s RMS is below %.4f", rs.maxRate, cfg.MinRotationRate)
		case rs.unplaceable > 0:
			res.fail(ReasonRotationNotFound,
				"single-axis rotation only found within the first %d samples; no room for a static window before it",
				cfg.StaticWindowSize)
		default:
			w := rs.bestImpure.window
			res.Purity = rs.bestImpure.purity
			res.RotationSlice = &w
			res.fail(ReasonPurityBelowThreshold,
				"best rotation window [%d,%d) purity %.3f is below %.3f",
				w.Start, w.Stop, rs.bestImpure.purity, cfg.RotationPurityThreshold)
		}
		vlog("%s: %s", res.FailureReason, res.Message)
		return res, nil
	}
	rw := rs.best.window
	vlog("rotation window [%d,%d) energy %.4f purity %.3f", rw.Start, rw.Stop, rs.best.energy, rs.best.purity)

	sw, cost, ok := searchStatic(samples, cfg.StaticWindowSize, rw.Start, cfg.Gravity)
	if !ok {
		res.fail(ReasonStaticNotFound, "no room for a static window before sample %d", rw.Start)
		return res, nil
	}
	st := EstimateStatic(samples, sw, cfg)
	st.Cost = cost
	res.Static = &st
	res.StaticSlice = &sw
	res.Warnings = append(res.Warnings, st.Warnings...)
	vlog("static window [%d,%d) |g|=%.4f gyro std %.4f", sw.Start, sw.Stop, st.Norm, st.GyroStd)
	if !st.Passed {
		res.fail(ReasonStaticNotFound, "static window [%d,%d) failed stillness checks: %s",
			sw.Start, sw.Stop, strings.Join(st.Warnings, "; "))
		vlog("%s", res.Message)
		return res, nil
	}

	rot, err := EstimateRotation(samples, rw, st.GyroBias, dt)
	if err != nil {
		res.fail(ReasonDegenerateRotation, "rotation window [%d,%d): %v", rw.Start, rw.Stop, err)
		return res, nil
	}
	res.Rotation = &rot
	res.RotationSlice = &rw
	res.Purity = rot.Purity
	vlog("axis imu=(%.4f, %.4f, %.4f) net %.2f°", rot.Axis.X, rot.Axis.Y, rot.Axis.Z, rot.NetRotationDeg)

	if rot.Purity < cfg.RotationPurityThreshold {
		res.fail(ReasonPurityBelowThreshold, "bias-corrected purity %.3f is below %.3f",
			rot.Purity, cfg.RotationPurityThreshold)
		return res, nil
	}
	if rot.NetRotationDeg < cfg.MinNetRotationDeg {
		res.fail(ReasonDegenerateRotation, "net rotation %.2f° is below %.2f°",
			rot.NetRotationDeg, cfg.MinNetRotationDeg)
		return res, nil
	}

	sep := orientation.Deg(orientation.AngleBetween(st.Up, rot.Axis))
	if sep < cfg.MinAxisSeparationDeg || sep > 180-cfg.MinAxisSeparationDeg {
		res.fail(ReasonDegenerateRotation, "rotation axis is %.2f° from gravity, need at least %.2f°",
			math.Min(sep, 180-sep), cfg.MinAxisSeparationDeg)
		return res, nil
	}
	boardSep := orientation.Deg(orientation.AngleBetween(cfg.BoardUp, cfg.BoardRotationAxis))
	if d := math.Abs(sep - boardSep); d > 10 {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("measured up/axis angle %.1f° differs from board geometry %.1f° by %.1f°", sep, boardSep, d))
	}

	// FitBoardToIMU projects onto SO(3), r is orthonormal with det +1.
	r, err := FitBoardToIMU(maneuverPairs(cfg, st.Up, rot.Axis))
	if err != nil {
		res.fail(ReasonDegenerateRotation, "wahba fit: %v", err)
		return res, nil
	}
	angles := orientation.EulerZYX(r).Array()

	res.Success = true
	res.RotationMatrix = &r
	res.InstallationAngles = &angles
	vlog("success: angles roll=%.2f pitch=%.2f yaw=%.2f purity %.3f", angles[0], angles[1], angles[2], res.Purity)
	return res, nil
}

// CalibrateBatch normalizes a wire batch and calibrates it. The batch
// sample rate is used when cfg does not set one.
func CalibrateBatch(b imu.Batch, cfg Config) (Result, error) {
	cfg = cfg.WithDefaults()
	samples, err := b.Samples(cfg.Gravity)
	if err != nil {
		return Result{}, err
	}
	if cfg.SampleRate == 0 && b.Meta.SampleRate > 0 {
		cfg.SampleRate = b.Meta.SampleRate
	}
	return AutoCalibrate(samples, cfg)
}
