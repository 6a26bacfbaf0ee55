package analysis

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Segment is one descent run.
type Segment struct {
	Index         int        `json:"index" yaml:"index"`
	StartIndex    int        `json:"start_index" yaml:"start_index"`
	EndIndex      int        `json:"end_index" yaml:"end_index"`
	StartTime     *time.Time `json:"start_time,omitempty" yaml:"start_time,omitempty"`
	EndTime       *time.Time `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	Duration      float64    `json:"duration_s" yaml:"duration_s"`
	AltitudeDrop  float64    `json:"altitude_drop_m" yaml:"altitude_drop_m"`
	SlopeAngle    float64    `json:"slope_angle" yaml:"slope_angle"`
	SlopeSource   string     `json:"slope_source" yaml:"slope_source"`
	AvgSpeedKmh   float64    `json:"avg_speed_kmh" yaml:"avg_speed_kmh"`
	TotalDistance float64    `json:"total_distance" yaml:"total_distance"`
	Turns         []Turn     `json:"turns" yaml:"turns"`
}

const (
	SourceGPS = "gps"
	SourceIMU = "imu"
)

type run struct{ t0, t1 float64 }

// segments splits the session into descent runs on the barometric vertical
// speed. Without barometer data the whole session is one segment.
func (s *System) segments() []Span {
	n := len(s.sig.t)
	if len(s.sig.baroT) == 0 {
		return []Span{{Start: 0, End: n}}
	}

	bt, vv := s.sig.baroT, s.sig.baroVV
	step := 1.0
	if len(bt) > 1 {
		step = (bt[len(bt)-1] - bt[0]) / float64(len(bt)-1)
	}

	var runs []run
	open := false
	for j := range bt {
		descending := vv[j] < -s.cfg.DescentRate
		switch {
		case descending && !open:
			runs = append(runs, run{t0: bt[j], t1: bt[j] + step})
			open = true
		case descending:
			runs[len(runs)-1].t1 = bt[j] + step
		default:
			open = false
		}
	}

	var merged []run
	for _, r := range runs {
		if k := len(merged) - 1; k >= 0 && r.t0-merged[k].t1 < s.cfg.MergeGap {
			merged[k].t1 = r.t1
			continue
		}
		merged = append(merged, r)
	}

	var spans []Span
	for _, r := range merged {
		if r.t1-r.t0 < s.cfg.MinRunDuration {
			continue
		}
		sp := Span{
			Start: sort.SearchFloat64s(s.sig.t, r.t0),
			End:   sort.SearchFloat64s(s.sig.t, r.t1),
		}
		if sp.Len() > 0 {
			spans = append(spans, sp)
		}
	}
	return spans
}

// segment fills the per-run summary; turns are added by the caller.
func (s *System) segment(index int, sp Span) Segment {
	sig := s.sig
	last := sp.End - 1
	seg := Segment{
		Index:      index,
		StartIndex: sp.Start,
		EndIndex:   sp.End,
		StartTime:  s.wallTime(sp.Start),
		EndTime:    s.wallTime(last),
		Duration:   float64(sp.Len()) * sig.dt,
	}

	fixes := s.fixesBetween(sig.t[sp.Start], sig.t[last]+sig.dt)
	switch {
	case !math.IsNaN(sig.alt[sp.Start]):
		seg.AltitudeDrop = math.Max(0, sig.alt[sp.Start]-sig.alt[last])
	case len(fixes) > 1:
		seg.AltitudeDrop = math.Max(0, fixes[0].Altitude-fixes[len(fixes)-1].Altitude)
	}

	for j := sp.Start; j < sp.End; j++ {
		seg.TotalDistance += sig.speed[j] * sig.dt
	}
	if seg.Duration > 0 {
		seg.AvgSpeedKmh = seg.TotalDistance / seg.Duration * 3.6
	}

	if h := fixes.Length(); len(fixes) > 1 && h > 1 {
		seg.SlopeAngle = math.Atan(seg.AltitudeDrop/h) * 180 / math.Pi
		seg.SlopeSource = SourceGPS
	} else {
		pitch := make([]float64, sp.Len())
		for j := range pitch {
			pitch[j] = math.Abs(sig.pitch[sp.Start+j])
		}
		seg.SlopeAngle = stat.Mean(pitch, nil)
		seg.SlopeSource = SourceIMU
	}
	return seg
}
