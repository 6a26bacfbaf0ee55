// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package synth generates deterministic synthetic sensor streams: a
// calibration maneuver and a ski session with carved turns. Used by the
// mock producer and by tests.
package synth

import (
	"math"
	"math/rand"
	"time"

	"github.com/relabs-tech/ski_compute/internal/imu"
	"github.com/relabs-tech/ski_compute/internal/orientation"
)

// Maneuver describes a calibration recording: rest, one rotation about a
// board axis at constant rate, then rest in the rotated attitude.
type Maneuver struct {
	// Install maps board vectors into the IMU frame.
	Install orientation.Mat3
	Rate    float64

	LeadSamples     int
	RotationSamples int
	TailSamples     int

	BoardAxis   orientation.Vec3
	RotationDeg float64

	GyroNoise  float64 // rad/s std
	AccelNoise float64 // m/s² std
	GyroBias   orientation.Vec3
	Seed       int64
	Start      time.Time
}

// DefaultManeuver rests for 3 s, rolls the board 90° about +X over 1.5 s
// and rests for 1 s, with an identity installation and no noise.
func DefaultManeuver() Maneuver {
	return Maneuver{
		Install:         orientation.Identity(),
		Rate:            100,
		LeadSamples:     300,
		RotationSamples: 150,
		TailSamples:     100,
		BoardAxis:       orientation.V(1, 0, 0),
		RotationDeg:     90,
		Seed:            1,
		Start:           time.Date(2025, 10, 30, 10, 0, 0, 0, time.UTC),
	}
}

// Samples renders the maneuver into SI samples.
func (m Maneuver) Samples() []imu.Sample {
	rng := rand.New(rand.NewSource(m.Seed))
	dt := 1 / m.Rate
	total := m.LeadSamples + m.RotationSamples + m.TailSamples
	omega := orientation.Rad(m.RotationDeg) / (float64(m.RotationSamples) * dt)
	axis := m.BoardAxis.Unit()
	worldUp := orientation.V(0, 0, imu.StandardGravity)

	out := make([]imu.Sample, total)
	angle := 0.0
	for i := 0; i < total; i++ {
		rotating := i >= m.LeadSamples && i < m.LeadSamples+m.RotationSamples
		var gyroBoard orientation.Vec3
		if rotating {
			gyroBoard = axis.Scale(omega)
		}
		// The board attitude is att = AxisAngle(axis, angle); gravity seen
		// in the board frame is attᵀ·up.
		att := orientation.AxisAngle(axis, angle)
		accBoard := att.T().MulVec(worldUp)

		out[i] = imu.Sample{
			Timestamp: m.Start.Add(time.Duration(float64(i) * dt * float64(time.Second))),
			Acc:       m.Install.MulVec(accBoard).Add(noise(rng, m.AccelNoise)),
			Gyro:      m.Install.MulVec(gyroBoard).Add(m.GyroBias).Add(noise(rng, m.GyroNoise)),
		}
		if rotating {
			angle += omega * dt
		}
	}
	return out
}

// Batch renders the maneuver into the device wire format.
func (m Maneuver) Batch(deviceID string) imu.Batch {
	return imu.EncodeBatch(deviceID, m.Rate, m.Samples(), imu.StandardGravity)
}

func noise(rng *rand.Rand, std float64) orientation.Vec3 {
	if std == 0 {
		return orientation.Vec3{}
	}
	return orientation.V(rng.NormFloat64()*std, rng.NormFloat64()*std, rng.NormFloat64()*std)
}

// PerpendicularNoise returns n zero-mean vectors orthogonal to axis with
// unit per-component scale, for purity experiments.
func PerpendicularNoise(n int, axis orientation.Vec3, seed int64) []orientation.Vec3 {
	rng := rand.New(rand.NewSource(seed))
	u := axis.Unit()
	out := make([]orientation.Vec3, n)
	var mean orientation.Vec3
	for i := range out {
		v := noise(rng, 1)
		v = v.Sub(u.Scale(v.Dot(u)))
		out[i] = v
		mean = mean.Add(v)
	}
	mean = mean.Scale(1 / float64(n))
	for i := range out {
		out[i] = out[i].Sub(mean)
	}
	return out
}

// Wave is a smooth 0→1→0 bump over [0,1], used to shape turns.
func Wave(x float64) float64 {
	if x <= 0 || x >= 1 {
		return 0
	}
	return math.Sin(math.Pi * x)
}
