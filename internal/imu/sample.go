// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/ski_compute/internal/orientation"
)

// StandardGravity is the conventional value of g in m/s².
const StandardGravity = 9.80665

var (
	ErrEmpty     = errors.New("imu: empty sample set")
	ErrColumns   = errors.New("imu: mismatched column count")
	ErrNonFinite = errors.New("imu: non-finite value")
	ErrUnit      = errors.New("imu: unknown unit")
	ErrCount     = errors.New("imu: total_count does not match data length")
)

// AccelUnit is the unit accelerometer values arrive in.
type AccelUnit string

// GyroUnit is the unit gyroscope values arrive in.
type GyroUnit string

const (
	AccelG   AccelUnit = "g"
	AccelMS2 AccelUnit = "m/s2"

	GyroDegPerSec GyroUnit = "deg/s"
	GyroRadPerSec GyroUnit = "rad/s"
)

// Units describes how a raw batch is expressed.
type Units struct {
	Accel AccelUnit `json:"acc_unit"`
	Gyro  GyroUnit  `json:"gyro_unit"`
}

// DeviceUnits is what the capture devices send: accel in g, gyro in deg/s.
var DeviceUnits = Units{Accel: AccelG, Gyro: GyroDegPerSec}

// SIUnits means the values are already m/s² and rad/s.
var SIUnits = Units{Accel: AccelMS2, Gyro: GyroRadPerSec}

// Sample is one normalized 6-axis reading. Acc is m/s², Gyro is rad/s.
// Timestamp is the zero time when the source carried none.
type Sample struct {
	Timestamp time.Time        `json:"timestamp,omitempty"`
	Acc       orientation.Vec3 `json:"acc"`
	Gyro      orientation.Vec3 `json:"gyro"`
}

// HasTimestamp reports whether the sample carries an acquisition time.
func (s Sample) HasTimestamp() bool { return !s.Timestamp.IsZero() }

func (u Units) accelScale(gravity float64) (float64, error) {
	switch u.Accel {
	case AccelG, "":
		return gravity, nil
	case AccelMS2:
		return 1, nil
	default:
		return 0, fmt.Errorf("%w: accel %q", ErrUnit, u.Accel)
	}
}

func (u Units) gyroScale() (float64, error) {
	switch u.Gyro {
	case GyroDegPerSec, "":
		return math.Pi / 180.0, nil
	case GyroRadPerSec:
		return 1, nil
	default:
		return 0, fmt.Errorf("%w: gyro %q", ErrUnit, u.Gyro)
	}
}

// Normalize converts raw rows into SI samples. A row is either
// [timestamp_ms, ax, ay, az, gx, gy, gz] or [ax, ay, az, gx, gy, gz];
// every row must have the same shape. gravity scales accel given in g.
func Normalize(rows [][]float64, units Units, gravity float64) ([]Sample, error) {
	if len(rows) == 0 {
		return nil, ErrEmpty
	}
	if gravity <= 0 || math.IsNaN(gravity) {
		return nil, fmt.Errorf("imu: invalid gravity %v", gravity)
	}
	aScale, err := units.accelScale(gravity)
	if err != nil {
		return nil, err
	}
	gScale, err := units.gyroScale()
	if err != nil {
		return nil, err
	}

	width := len(rows[0])
	if width != 6 && width != 7 {
		return nil, fmt.Errorf("%w: rows have %d columns, want 6 or 7", ErrColumns, width)
	}
	off := width - 6

	out := make([]Sample, len(rows))
	for i, row := range rows {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrColumns, i, len(row), width)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: row %d column %d", ErrNonFinite, i, j)
			}
		}
		s := Sample{
			Acc:  orientation.V(row[off], row[off+1], row[off+2]).Scale(aScale),
			Gyro: orientation.V(row[off+3], row[off+4], row[off+5]).Scale(gScale),
		}
		if off == 1 {
			s.Timestamp = time.UnixMilli(int64(row[0])).UTC()
		}
		out[i] = s
	}
	return out, nil
}

// Check returns an error for an empty set or any non-finite value.
func Check(samples []Sample) error {
	if len(samples) == 0 {
		return ErrEmpty
	}
	for i, s := range samples {
		if !s.Acc.IsFinite() || !s.Gyro.IsFinite() {
			return fmt.Errorf("%w: sample %d", ErrNonFinite, i)
		}
	}
	return nil
}

// Magnitudes returns |gyro| and |acc| per sample.
func Magnitudes(samples []Sample) (gyro, acc []float64) {
	gyro = make([]float64, len(samples))
	acc = make([]float64, len(samples))
	for i, s := range samples {
		gyro[i] = s.Gyro.Norm()
		acc[i] = s.Acc.Norm()
	}
	return gyro, acc
}

// Rotate maps every sample through r: v' = r·v. Used to move IMU-frame
// data into the board frame with the transposed calibration matrix.
func Rotate(samples []Sample, r orientation.Mat3) []Sample {
	out := make([]Sample, len(samples))
	for i, s := range samples {
		out[i] = Sample{
			Timestamp: s.Timestamp,
			Acc:       r.MulVec(s.Acc),
			Gyro:      r.MulVec(s.Gyro),
		}
	}
	return out
}

// Interval returns the sample interval in seconds: 1/rate when rate is
// set, else the median timestamp spacing, else 100 Hz.
func Interval(samples []Sample, rate float64) float64 {
	if rate > 0 {
		return 1 / rate
	}
	var diffs []float64
	for i := 1; i < len(samples); i++ {
		if !samples[i].HasTimestamp() || !samples[i-1].HasTimestamp() {
			continue
		}
		if d := samples[i].Timestamp.Sub(samples[i-1].Timestamp).Seconds(); d > 0 {
			diffs = append(diffs, d)
		}
	}
	if len(diffs) == 0 {
		return 0.01
	}
	sort.Float64s(diffs)
	return stat.Quantile(0.5, stat.Empirical, diffs, nil)
}
