package env

import (
	"math"
	"time"
)

// Sample represents a single barometer measurement.
type Sample struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	Source    string    `json:"source,omitempty" yaml:"source,omitempty"`

	Temperature float64 `json:"temp_c" yaml:"temp_c"`           // °C
	Pressure    float64 `json:"pressure_pa" yaml:"pressure_pa"` // Pa
}

// SeaLevelPressure is the ISA reference pressure in Pa.
const SeaLevelPressure = 101325.0

// PressureToAltitude converts static pressure (Pa) to ISA altitude in meters.
func PressureToAltitude(pa float64) float64 {
	if pa <= 0 {
		return 0
	}
	return 44330.0 * (1.0 - math.Pow(pa/SeaLevelPressure, 1.0/5.255))
}

// AltitudeToPressure is the inverse of PressureToAltitude.
func AltitudeToPressure(m float64) float64 {
	return SeaLevelPressure * math.Pow(1.0-m/44330.0, 5.255)
}

// Altitudes converts every sample to meters.
func Altitudes(samples []Sample) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = PressureToAltitude(s.Pressure)
	}
	return out
}

// Smooth applies a single-pole low-pass with coefficient alpha in (0,1]:
// y = (1-alpha)·y + alpha·x.
func Smooth(x []float64, alpha float64) []float64 {
	out := make([]float64, len(x))
	if len(x) == 0 {
		return out
	}
	y := x[0]
	for i, v := range x {
		y = (1-alpha)*y + alpha*v
		out[i] = y
	}
	return out
}

// VerticalSpeed returns the smoothed altitude derivative (m/s) per sample.
// fs is used when samples carry no timestamps.
func VerticalSpeed(samples []Sample, fs, alpha float64) []float64 {
	alt := Smooth(Altitudes(samples), alpha)
	out := make([]float64, len(samples))
	for i := 1; i < len(samples); i++ {
		dt := samples[i].Timestamp.Sub(samples[i-1].Timestamp).Seconds()
		if dt <= 0 && fs > 0 {
			dt = 1 / fs
		}
		if dt <= 0 {
			continue
		}
		out[i] = (alt[i] - alt[i-1]) / dt
	}
	if len(out) > 1 {
		out[0] = out[1]
	}
	return out
}
