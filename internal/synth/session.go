package synth

import (
	"math"
	"math/rand"
	"time"

	"github.com/relabs-tech/ski_compute/internal/env"
	"github.com/relabs-tech/ski_compute/internal/gps"
	"github.com/relabs-tech/ski_compute/internal/imu"
	"github.com/relabs-tech/ski_compute/internal/orientation"
)

// TurnShape is one turn: yaw rate and roll follow a half sine over
// Duration seconds starting at Start.
type TurnShape struct {
	Start    float64
	Duration float64
	YawRate  float64 // rad/s peak, positive turns left
	RollDeg  float64 // peak, positive on the front edge
}

// Run is a descent between Start and Start+Duration seconds. Outside runs
// the rider stands still.
type Run struct {
	Start    float64
	Duration float64
}

// Session is a simplified kinematic ski session: board-frame gyro x is the
// roll rate and gyro z the yaw rate, the board is pitched by the slope.
type Session struct {
	Rate     float64 // IMU Hz
	Duration float64 // s
	Turns    []TurnShape
	Runs     []Run // nil means one run over the whole session

	Speed         float64 // m/s along the slope while descending
	SlopeDeg      float64
	StartAltitude float64

	BaroRate float64 // Hz, 0 disables the barometer
	GPSRate  float64 // Hz, 0 disables GPS
	Origin   gps.Fix

	Install    orientation.Mat3
	GyroNoise  float64
	AccelNoise float64
	Seed       int64
	Start      time.Time
}

// DefaultSession is 20 s of descent with a left turn at 4 s and a right
// turn at 11 s, IMU only.
func DefaultSession() Session {
	return Session{
		Rate:     100,
		Duration: 20,
		Turns: []TurnShape{
			{Start: 4, Duration: 2.5, YawRate: 1.0, RollDeg: 25},
			{Start: 11, Duration: 2.5, YawRate: -1.0, RollDeg: -25},
		},
		Speed:         10,
		SlopeDeg:      15,
		StartAltitude: 2000,
		Origin:        gps.Fix{Latitude: 46.0207, Longitude: 7.7491},
		Install:       orientation.Identity(),
		Seed:          1,
		Start:         time.Date(2025, 10, 30, 10, 34, 7, 0, time.UTC),
	}
}

// Recording is the rendered streams of a session.
type Recording struct {
	IMU  []imu.Sample
	Baro []env.Sample
	GPS  []gps.Fix
}

func (s Session) moving(t float64) bool {
	if s.Runs == nil {
		return true
	}
	for _, r := range s.Runs {
		if t >= r.Start && t < r.Start+r.Duration {
			return true
		}
	}
	return false
}

// shape returns yaw rate, roll (rad) and roll rate at time t.
func (s Session) shape(t float64) (yaw, roll, rollRate float64) {
	for _, ts := range s.Turns {
		x := (t - ts.Start) / ts.Duration
		if x <= 0 || x >= 1 {
			continue
		}
		peak := orientation.Rad(ts.RollDeg)
		yaw += ts.YawRate * Wave(x)
		roll += peak * Wave(x)
		rollRate += peak * math.Pi / ts.Duration * math.Cos(math.Pi*x)
	}
	return yaw, roll, rollRate
}

func every(rate, sub float64) int {
	if sub <= 0 {
		return 0
	}
	k := int(math.Round(rate / sub))
	if k < 1 {
		k = 1
	}
	return k
}

// Render samples the session.
func (s Session) Render() Recording {
	rng := rand.New(rand.NewSource(s.Seed))
	dt := 1 / s.Rate
	n := int(math.Round(s.Duration * s.Rate))
	slope := orientation.Rad(s.SlopeDeg)
	up := orientation.V(0, 0, imu.StandardGravity)
	baroEvery := every(s.Rate, s.BaroRate)
	gpsEvery := every(s.Rate, s.GPSRate)

	var rec Recording
	rec.IMU = make([]imu.Sample, n)
	heading, east, north, alt := 0.0, 0.0, 0.0, s.StartAltitude
	for i := 0; i < n; i++ {
		t := float64(i) * dt
		ts := s.Start.Add(time.Duration(t * float64(time.Second)))
		yaw, roll, rollRate := s.shape(t)

		att := orientation.RotY(slope).Mul(orientation.RotX(roll))
		acc := att.T().MulVec(up)
		gyro := orientation.V(rollRate, 0, yaw)
		rec.IMU[i] = imu.Sample{
			Timestamp: ts,
			Acc:       s.Install.MulVec(acc).Add(noise(rng, s.AccelNoise)),
			Gyro:      s.Install.MulVec(gyro).Add(noise(rng, s.GyroNoise)),
		}

		v := 0.0
		if s.moving(t) {
			v = s.Speed
		}
		horizontal := v * math.Cos(slope)

		if baroEvery > 0 && i%baroEvery == 0 {
			rec.Baro = append(rec.Baro, env.Sample{
				Timestamp:   ts,
				Source:      "synth",
				Temperature: -5,
				Pressure:    env.AltitudeToPressure(alt),
			})
		}
		if gpsEvery > 0 && i%gpsEvery == 0 {
			f := gps.Offset(s.Origin, east, north)
			f.Timestamp = ts
			f.SourceID = "synth"
			f.Altitude = alt
			f.Speed = horizontal
			f.Course = math.Mod(90-orientation.Deg(heading)+360, 360)
			f.Accuracy = 3
			f.Validity = "A"
			rec.GPS = append(rec.GPS, f)
		}

		heading += yaw * dt
		east += horizontal * math.Cos(heading) * dt
		north += horizontal * math.Sin(heading) * dt
		alt -= v * math.Sin(slope) * dt
	}
	return rec
}
