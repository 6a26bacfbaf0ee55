package gps

import "time"

// Fix represents a single combined GPS fix suitable for JSON and MQTT.
type Fix struct {
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
	SourceID  string    `json:"source_id,omitempty" yaml:"source_id,omitempty"`
	Latitude  float64   `json:"latitude" yaml:"latitude"`                     // decimal degrees
	Longitude float64   `json:"longitude" yaml:"longitude"`                   // decimal degrees
	Altitude  float64   `json:"altitude" yaml:"altitude"`                     // m
	Speed     float64   `json:"speed" yaml:"speed"`                           // m/s over ground
	Course    float64   `json:"course" yaml:"course"`                         // degrees from north
	Accuracy  float64   `json:"accuracy,omitempty" yaml:"accuracy,omitempty"` // m, HDOP-derived when not reported
	Validity  string    `json:"validity,omitempty" yaml:"validity,omitempty"` // "A" (valid) / "V" (void)
}

// Valid reports whether the fix carries a usable position.
func (f Fix) Valid() bool {
	if f.Validity != "" && f.Validity != "A" {
		return false
	}
	return f.Latitude != 0 || f.Longitude != 0
}

// KnotsToMS converts knots to m/s.
const KnotsToMS = 0.514444
