package orientation

import (
	"math"
)

// Pose is the canonical representation of orientation for the app, in degrees.
type Pose struct {
	Roll  float64 `json:"roll" yaml:"roll"`
	Pitch float64 `json:"pitch" yaml:"pitch"`
	Yaw   float64 `json:"yaw" yaml:"yaw"`
}

// Array returns [roll, pitch, yaw].
func (p Pose) Array() [3]float64 { return [3]float64{p.Roll, p.Pitch, p.Yaw} }

// ComputePoseFromAccel computes roll and pitch from accelerometer data only.
// Yaw is not observable from gravity and is set to 0.
//
// Uses simple tilt formulas:
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
func ComputePoseFromAccel(ax, ay, az float64) Pose {
	rollRad := math.Atan2(ay, az)
	pitchRad := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))

	return Pose{
		Roll:  Deg(rollRad),
		Pitch: Deg(pitchRad),
	}
}

// ComplementaryFilter fuses integrated gyro rates with accelerometer tilt
// into roll and pitch. Not safe for concurrent use; one filter per stream.
type ComplementaryFilter struct {
	tau         float64
	maxDt       float64
	initialized bool
	roll        float64
	pitch       float64
}

// NewComplementaryFilter returns a filter with time constant tau seconds.
func NewComplementaryFilter(tau float64) *ComplementaryFilter {
	return &ComplementaryFilter{tau: tau, maxDt: 0.2}
}

// Update advances the filter by dt seconds. acc is in any consistent unit,
// gyro in rad/s. The first call initializes from the accelerometer.
func (cf *ComplementaryFilter) Update(acc, gyro Vec3, dt float64) Pose {
	accPose := ComputePoseFromAccel(acc.X, acc.Y, acc.Z)
	if !cf.initialized {
		cf.roll = accPose.Roll
		cf.pitch = accPose.Pitch
		cf.initialized = true
		return Pose{Roll: cf.roll, Pitch: cf.pitch}
	}

	if dt > cf.maxDt {
		dt = cf.maxDt
	}
	alpha := 1.0
	if dt > 0 {
		tau := math.Max(1e-3, cf.tau)
		alpha = tau / (tau + dt)
	}

	rollGyro := cf.roll + Deg(gyro.X)*dt
	pitchGyro := cf.pitch + Deg(gyro.Y)*dt

	cf.roll = alpha*rollGyro + (1-alpha)*accPose.Roll
	cf.pitch = alpha*pitchGyro + (1-alpha)*accPose.Pitch
	return Pose{Roll: cf.roll, Pitch: cf.pitch}
}
