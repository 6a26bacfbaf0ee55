package imu

import (
	"math"
	"time"

	"github.com/relabs-tech/ski_compute/internal/orientation"
)

// IMURaw represents a single raw MPU9250 accel+gyro reading in counts.
type IMURaw struct {
	Source string    `json:"source"`
	Time   time.Time `json:"time"`

	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Gx int16 `json:"gx"` // gyro
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`
}

// IMURawSource is anything that yields raw readings.
type IMURawSource interface {
	ReadRaw() (IMURaw, error)
}

// Full-scale settings indexed by the MPU9250 range code (0-3).
var (
	AccelRangesG   = [4]float64{2, 4, 8, 16}
	GyroRangesDPS  = [4]float64{250, 500, 1000, 2000}
	countsFullSpan = 32768.0
)

// AccelLSBPerG returns the sensitivity for an accel range code.
func AccelLSBPerG(code byte) float64 {
	return countsFullSpan / AccelRangesG[code&3]
}

// GyroLSBPerDPS returns the sensitivity for a gyro range code.
func GyroLSBPerDPS(code byte) float64 {
	return countsFullSpan / GyroRangesDPS[code&3]
}

// Row returns the reading as a device-units wire row (g, deg/s).
func (r IMURaw) Row(accelRange, gyroRange byte) []float64 {
	a := AccelLSBPerG(accelRange)
	g := GyroLSBPerDPS(gyroRange)
	return []float64{
		float64(r.Time.UnixMilli()),
		float64(r.Ax) / a, float64(r.Ay) / a, float64(r.Az) / a,
		float64(r.Gx) / g, float64(r.Gy) / g, float64(r.Gz) / g,
	}
}

// Sample converts the reading to SI units.
func (r IMURaw) Sample(accelRange, gyroRange byte, gravity float64) Sample {
	a := gravity / AccelLSBPerG(accelRange)
	g := (math.Pi / 180.0) / GyroLSBPerDPS(gyroRange)
	return Sample{
		Timestamp: r.Time,
		Acc:       orientation.V(float64(r.Ax)*a, float64(r.Ay)*a, float64(r.Az)*a),
		Gyro:      orientation.V(float64(r.Gx)*g, float64(r.Gy)*g, float64(r.Gz)*g),
	}
}
