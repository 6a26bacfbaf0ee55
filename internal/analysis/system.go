// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package analysis extracts turns and edge metrics from a ski session:
// IMU samples (board frame after calibration), optional barometer samples
// for run segmentation and optional GPS fixes for speed and radius.
//
// Board frame: x forward along the board, z up. Positive yaw rate turns
// left; positive roll puts the board on its front (toe) edge.
package analysis

import (
	"fmt"
	"math"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/ski_compute/internal/env"
	"github.com/relabs-tech/ski_compute/internal/gps"
	"github.com/relabs-tech/ski_compute/internal/imu"
	"github.com/relabs-tech/ski_compute/internal/orientation"
)

// Input is one session's raw streams. Sample rates are used when the
// corresponding stream carries no timestamps; a zero rate falls back to
// Config.IMUFS, BaroFS and GPSFS.
type Input struct {
	IMU  []imu.Sample `json:"imu"`
	Baro []env.Sample `json:"baro,omitempty"`
	GPS  []gps.Fix    `json:"gps,omitempty"`

	IMUFS  float64 `json:"imu_fs"`
	BaroFS float64 `json:"baro_fs"`
	GPSFS  float64 `json:"gps_fs"`
}

// System holds one session and the signals derived from it. Not safe for
// concurrent use.
type System struct {
	in  Input
	cfg Config

	origin time.Time // wall time of IMU sample 0, zero when unknown
	track  gps.Track
	sig    signals
}

// signals are per IMU sample.
type signals struct {
	t       []float64 // s since sample 0
	dt      float64
	yawRate []float64 // rad/s, low-passed
	roll    []float64 // deg
	pitch   []float64 // deg
	speed   []float64 // m/s
	speedGP []bool    // speed came from GPS
	alt     []float64 // m, NaN without barometer
	vv      []float64 // m/s

	baroT   []float64
	baroAlt []float64
	baroVV  []float64
}

func NewSystem(in Input, cfg Config) *System {
	return &System{in: in, cfg: cfg.WithDefaults()}
}

// ProcessSession runs the full pipeline. Errors are returned for invalid
// configuration and malformed IMU input; a session without turns is not
// an error.
func (s *System) ProcessSession() ([]Segment, error) {
	if err := s.cfg.Validate(); err != nil {
		return nil, err
	}
	if err := imu.Check(s.in.IMU); err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}

	samples := s.in.IMU
	if s.cfg.Calibration != nil {
		samples = imu.Rotate(samples, s.cfg.Calibration.T())
	}
	if samples[0].HasTimestamp() {
		s.origin = samples[0].Timestamp
	}
	gpsFS := s.in.GPSFS
	if gpsFS <= 0 {
		gpsFS = s.cfg.GPSFS
	}
	s.track = make(gps.Track, 0, len(s.in.GPS))
	for i, f := range s.in.GPS {
		if !f.Valid() {
			continue
		}
		if f.Timestamp.IsZero() {
			f.Timestamp = s.origin.Add(time.Duration(float64(i) / gpsFS * float64(time.Second)))
		}
		s.track = append(s.track, f)
	}
	if dropped := len(s.in.GPS) - len(s.track); dropped > 0 {
		s.vlog("dropped %d void GPS fixes", dropped)
	}
	s.track.Sort()

	s.derive(samples)
	spans := s.segments()
	s.vlog("%d samples at %.1f Hz, %d segments", len(samples), 1/s.sig.dt, len(spans))

	out := make([]Segment, 0, len(spans))
	minSamples := int(math.Ceil(s.cfg.MinTurnDuration / s.sig.dt))
	for i, sp := range spans {
		det := NewTurnDetector(s.cfg.OnsetYawRate, s.cfg.ExitRatio, minSamples)
		seg := s.segment(i, sp)
		seg.Turns = []Turn{}
		for j := sp.Start; j < sp.End; j++ {
			if ts, ok := det.Step(j, s.sig.yawRate[j]); ok {
				seg.Turns = append(seg.Turns, s.turn(ts))
			}
		}
		if ts, ok := det.Flush(sp.End); ok {
			seg.Turns = append(seg.Turns, s.turn(ts))
		}
		s.vlog("segment %d [%d,%d): %d turns, slope %.1f° (%s)",
			i, sp.Start, sp.End, len(seg.Turns), seg.SlopeAngle, seg.SlopeSource)
		out = append(out, seg)
	}
	return out, nil
}

func (s *System) vlog(format string, args ...any) {
	if s.cfg.Verbose {
		log.Infof("analysis: "+format, args...)
	}
}

// derive computes every per-sample signal over the whole stream so filter
// state carries across segment boundaries.
func (s *System) derive(samples []imu.Sample) {
	n := len(samples)
	sig := &s.sig
	fs := s.in.IMUFS
	if fs <= 0 && s.origin.IsZero() {
		fs = s.cfg.IMUFS
	}
	sig.dt = imu.Interval(samples, fs)
	sig.t = make([]float64, n)
	timestamped := !s.origin.IsZero()
	for i, smp := range samples {
		if timestamped && smp.HasTimestamp() {
			sig.t[i] = smp.Timestamp.Sub(s.origin).Seconds()
		} else {
			sig.t[i] = float64(i) * sig.dt
		}
	}

	s.deriveBaro()

	lp := NewLowPass(s.cfg.CutoffHz, sig.dt)
	cf := orientation.NewComplementaryFilter(s.cfg.RollTau)
	sig.yawRate = make([]float64, n)
	sig.roll = make([]float64, n)
	sig.pitch = make([]float64, n)
	sig.speed = make([]float64, n)
	sig.speedGP = make([]bool, n)
	sig.alt = make([]float64, n)
	sig.vv = make([]float64, n)

	held := 0.0
	for i, smp := range samples {
		dt := sig.dt
		if i > 0 {
			if d := sig.t[i] - sig.t[i-1]; d > 0 {
				dt = d
			}
		}
		pose := cf.Update(smp.Acc, smp.Gyro, dt)
		sig.roll[i] = pose.Roll
		sig.pitch[i] = pose.Pitch
		sig.yawRate[i] = lp.Step(smp.Gyro.Z)

		if v, ok := s.gpsSpeed(sig.t[i]); ok {
			sig.speed[i] = v
			sig.speedGP[i] = true
		} else {
			w := math.Abs(sig.yawRate[i])
			if w > s.cfg.OnsetYawRate*s.cfg.ExitRatio && math.Abs(pose.Roll) > 1 {
				held = math.Min(s.cfg.Gravity*math.Tan(orientation.Rad(math.Abs(pose.Roll)))/w, s.cfg.MaxEstimatedSpeed)
			}
			sig.speed[i] = held
		}

		sig.alt[i], sig.vv[i] = s.baroAt(sig.t[i])
	}
}

func (s *System) deriveBaro() {
	baro := s.in.Baro
	if len(baro) == 0 {
		return
	}
	fs := s.in.BaroFS
	if fs <= 0 {
		fs = s.cfg.BaroFS
	}
	sig := &s.sig
	sig.baroT = make([]float64, len(baro))
	timestamped := !s.origin.IsZero() && !baro[0].Timestamp.IsZero()
	for i, b := range baro {
		if timestamped {
			sig.baroT[i] = b.Timestamp.Sub(s.origin).Seconds()
		} else {
			sig.baroT[i] = float64(i) / fs
		}
	}
	sig.baroAlt = env.Smooth(env.Altitudes(baro), s.cfg.BaroSmoothing)
	sig.baroVV = env.VerticalSpeed(baro, fs, s.cfg.BaroSmoothing)
}

// baroAt returns the altitude and vertical speed of the last barometer
// sample at or before t.
func (s *System) baroAt(t float64) (float64, float64) {
	bt := s.sig.baroT
	if len(bt) == 0 {
		return math.NaN(), 0
	}
	j := sort.SearchFloat64s(bt, t)
	if j >= len(bt) || (bt[j] > t && j > 0) {
		j--
	}
	if j < 0 {
		j = 0
	}
	return s.sig.baroAlt[j], s.sig.baroVV[j]
}

func (s *System) gpsTime(t float64) (time.Time, bool) {
	if len(s.track) == 0 {
		return time.Time{}, false
	}
	base := s.origin
	if base.IsZero() {
		base = s.track[0].Timestamp
	}
	return base.Add(time.Duration(t * float64(time.Second))), true
}

func (s *System) gpsSpeed(t float64) (float64, bool) {
	ts, ok := s.gpsTime(t)
	if !ok {
		return 0, false
	}
	return s.track.SpeedAt(ts)
}

func (s *System) fixesBetween(t0, t1 float64) gps.Track {
	a, ok := s.gpsTime(t0)
	if !ok {
		return nil
	}
	b, _ := s.gpsTime(t1)
	return s.track.Between(a, b)
}

func (s *System) wallTime(i int) *time.Time {
	if s.origin.IsZero() {
		return nil
	}
	ts := s.origin.Add(time.Duration(s.sig.t[i] * float64(time.Second)))
	return &ts
}
