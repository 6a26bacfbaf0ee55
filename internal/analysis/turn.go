package analysis

import (
	"math"
	"time"

	"github.com/relabs-tech/ski_compute/internal/gps"
	"github.com/relabs-tech/ski_compute/internal/orientation"
)

type Direction string

const (
	Left  Direction = "left"
	Right Direction = "right"
)

// Turn holds the metrics of one detected turn. Angles are degrees,
// distances meters, speeds km/h, durations seconds.
type Turn struct {
	StartIndex int        `json:"start_index" yaml:"start_index"`
	EndIndex   int        `json:"end_index" yaml:"end_index"`
	StartTime  *time.Time `json:"start_time,omitempty" yaml:"start_time,omitempty"`
	Direction  Direction  `json:"direction" yaml:"direction"`

	EdgeAngle      float64 `json:"edge_angle" yaml:"edge_angle"`
	RollAngle      float64 `json:"roll_angle" yaml:"roll_angle"`
	FrontEdgeAngle float64 `json:"front_edge_angle" yaml:"front_edge_angle"`
	BackEdgeAngle  float64 `json:"back_edge_angle" yaml:"back_edge_angle"`

	TurnRadius   float64 `json:"turn_radius" yaml:"turn_radius"`
	RadiusSource string  `json:"radius_source,omitempty" yaml:"radius_source,omitempty"`

	AvgSkiingSpeed  float64 `json:"avg_skiing_speed" yaml:"avg_skiing_speed"`
	SpeedSource     string  `json:"speed_source" yaml:"speed_source"`
	CarvingTime     float64 `json:"carving_time" yaml:"carving_time"`
	CarvingDistance float64 `json:"carving_distance" yaml:"carving_distance"`
	TurnDuration    float64 `json:"turn_duration" yaml:"turn_duration"`
	TotalDistance   float64 `json:"total_distance" yaml:"total_distance"`
	AvgVVKmh        float64 `json:"avg_vv_kmh" yaml:"avg_vv_kmh"`
	YawRatePeak     float64 `json:"yaw_rate_peak" yaml:"yaw_rate_peak"` // deg/s, signed
}

func (s *System) turn(sp Span) Turn {
	sig := s.sig
	dt := sig.dt
	t := Turn{
		StartIndex:   sp.Start,
		EndIndex:     sp.End,
		StartTime:    s.wallTime(sp.Start),
		TurnDuration: float64(sp.Len()) * dt,
		SpeedSource:  SourceIMU,
	}

	apex, peakRoll := sp.Start, sp.Start
	speedSum, vvSum := 0.0, 0.0
	carving, gpsCount := 0, 0
	for i := sp.Start; i < sp.End; i++ {
		if math.Abs(sig.yawRate[i]) > math.Abs(sig.yawRate[apex]) {
			apex = i
		}
		r := sig.roll[i]
		if math.Abs(r) > math.Abs(sig.roll[peakRoll]) {
			peakRoll = i
		}
		if r > t.FrontEdgeAngle {
			t.FrontEdgeAngle = r
		}
		if -r > t.BackEdgeAngle {
			t.BackEdgeAngle = -r
		}

		d := sig.speed[i] * dt
		t.TotalDistance += d
		if math.Abs(r) >= s.cfg.CarvingRollDeg {
			carving++
			t.CarvingDistance += d
		}
		speedSum += sig.speed[i]
		vvSum += sig.vv[i]
		if sig.speedGP[i] {
			gpsCount++
		}
	}

	n := float64(sp.Len())
	t.EdgeAngle = sig.roll[peakRoll]
	t.RollAngle = sig.roll[apex]
	t.YawRatePeak = orientation.Deg(sig.yawRate[apex])
	t.Direction = Right
	if sig.yawRate[apex] > 0 {
		t.Direction = Left
	}
	t.AvgSkiingSpeed = speedSum / n * 3.6
	t.AvgVVKmh = vvSum / n * 3.6
	if gpsCount*2 > sp.Len() {
		t.SpeedSource = SourceGPS
	}
	t.CarvingTime = float64(carving) * dt

	t.TurnRadius, t.RadiusSource = s.radius(sp, apex)
	return t
}

// radius uses the circle through the GPS fixes at turn start, apex and end
// when at least three fixes fall inside the turn, else v/|ω| at the apex.
func (s *System) radius(sp Span, apex int) (float64, string) {
	sig := s.sig
	fixes := s.fixesBetween(sig.t[sp.Start], sig.t[sp.End-1]+sig.dt)
	if len(fixes) >= 3 {
		mid := fixes[len(fixes)/2]
		if ts, ok := s.gpsTime(sig.t[apex]); ok {
			if k := fixes.Index(ts); k > 0 && k < len(fixes)-1 {
				mid = fixes[k]
			}
		}
		r := gps.FixRadius(fixes[0], mid, fixes[len(fixes)-1])
		if !math.IsInf(r, 0) && !math.IsNaN(r) {
			return r, SourceGPS
		}
	}
	w := math.Abs(sig.yawRate[apex])
	if w < 1e-6 || sig.speed[apex] <= 0 {
		return 0, ""
	}
	return sig.speed[apex] / w, SourceIMU
}
