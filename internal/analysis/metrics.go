package analysis

import "math"

// Metric is the flat per-turn record persisted for a session. Nil fields
// are unknown.
type Metric struct {
	SegmentIndex *int `json:"segment_index,omitempty" yaml:"segment_index,omitempty"`

	EdgeAngle           *float64 `json:"edge_angle" yaml:"edge_angle"`
	EdgeAngleSpeed      *float64 `json:"edge_angle_speed" yaml:"edge_angle_speed"`
	EdgeAngleFront      *float64 `json:"edge_angle_front" yaml:"edge_angle_front"`
	EdgeAngleBack       *float64 `json:"edge_angle_back" yaml:"edge_angle_back"`
	EdgeAngleSpeedFront *float64 `json:"edge_angle_speed_front" yaml:"edge_angle_speed_front"`
	EdgeAngleSpeedBack  *float64 `json:"edge_angle_speed_back" yaml:"edge_angle_speed_back"`

	EdgeDisplacement      *float64 `json:"edge_displacement" yaml:"edge_displacement"`
	EdgeDisplacementFront *float64 `json:"edge_displacement_front" yaml:"edge_displacement_front"`
	EdgeDisplacementBack  *float64 `json:"edge_displacement_back" yaml:"edge_displacement_back"`
	EdgeTimeRatio         *float64 `json:"edge_time_ratio" yaml:"edge_time_ratio"`
	EdgeDurationSeconds   *float64 `json:"edge_duration_seconds" yaml:"edge_duration_seconds"`

	TurnDetected        bool       `json:"turn_detected" yaml:"turn_detected"`
	TurnDirection       *Direction `json:"turn_direction" yaml:"turn_direction"`
	TurnRadius          *float64   `json:"turn_radius" yaml:"turn_radius"`
	TurnDurationSeconds *float64   `json:"turn_duration_seconds" yaml:"turn_duration_seconds"`

	SpeedKmh   *float64 `json:"speed_kmh" yaml:"speed_kmh"`
	SlopeAngle *float64 `json:"slope_angle" yaml:"slope_angle"`
}

func ptr[T any](v T) *T { return &v }

// nonZero maps 0 to unknown.
func nonZero(v float64) *float64 {
	if v == 0 || math.IsNaN(v) {
		return nil
	}
	return &v
}

// Metrics flattens segments into one record per turn. The dominant edge
// (front when |front| > |back|) carries the turn speed and carving
// distance. A session without turns yields a single turn_detected=false
// record.
func Metrics(segments []Segment) []Metric {
	var out []Metric
	for _, seg := range segments {
		for _, t := range seg.Turns {
			m := Metric{
				SegmentIndex:        ptr(seg.Index),
				EdgeAngle:           ptr(t.RollAngle),
				EdgeAngleSpeed:      ptr(t.AvgVVKmh),
				EdgeAngleFront:      nonZero(t.FrontEdgeAngle),
				EdgeAngleBack:       nonZero(t.BackEdgeAngle),
				EdgeDisplacement:    ptr(t.TotalDistance),
				EdgeDurationSeconds: ptr(t.CarvingTime),
				TurnDetected:        true,
				TurnDirection:       ptr(t.Direction),
				TurnRadius:          nonZero(t.TurnRadius),
				TurnDurationSeconds: ptr(t.TurnDuration),
				SpeedKmh:            ptr(t.AvgSkiingSpeed),
				SlopeAngle:          ptr(seg.SlopeAngle),
			}
			if math.Abs(t.FrontEdgeAngle) > math.Abs(t.BackEdgeAngle) {
				m.EdgeAngleSpeedFront = nonZero(t.AvgSkiingSpeed)
				m.EdgeDisplacementFront = nonZero(t.CarvingDistance)
			} else {
				m.EdgeAngleSpeedBack = nonZero(t.AvgSkiingSpeed)
				m.EdgeDisplacementBack = nonZero(t.CarvingDistance)
			}
			if t.TurnDuration != 0 && t.CarvingTime != 0 {
				m.EdgeTimeRatio = ptr(t.CarvingTime / t.TurnDuration)
			}
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		out = append(out, Metric{TurnDetected: false})
	}
	return out
}

// TurnCount sums turns over all segments.
func TurnCount(segments []Segment) int {
	n := 0
	for _, s := range segments {
		n += len(s.Turns)
	}
	return n
}
