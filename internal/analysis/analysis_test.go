package analysis

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/relabs-tech/ski_compute/internal/imu"
	"github.com/relabs-tech/ski_compute/internal/orientation"
	"github.com/relabs-tech/ski_compute/internal/synth"
)

func process(t *testing.T, in Input, cfg Config) []Segment {
	t.Helper()
	segs, err := NewSystem(in, cfg).ProcessSession()
	if err != nil {
		t.Fatalf("ProcessSession: %v", err)
	}
	return segs
}

func checkTurnInvariants(t *testing.T, turns []Turn) {
	t.Helper()
	for i, tr := range turns {
		if tr.CarvingTime < 0 || tr.CarvingTime > tr.TurnDuration {
			t.Fatalf("turn %d carving_time=%v turn_duration=%v", i, tr.CarvingTime, tr.TurnDuration)
		}
		if tr.CarvingDistance > tr.TotalDistance+1e-9 {
			t.Fatalf("turn %d carving_distance=%v total=%v", i, tr.CarvingDistance, tr.TotalDistance)
		}
		if tr.EndIndex <= tr.StartIndex {
			t.Fatalf("turn %d empty span [%d,%d)", i, tr.StartIndex, tr.EndIndex)
		}
	}
}

func TestTwoTurns(t *testing.T) {
	rec := synth.DefaultSession().Render()
	segs := process(t, Input{IMU: rec.IMU, IMUFS: 100}, DefaultConfig())
	if len(segs) != 1 {
		t.Fatalf("segments=%d want=1", len(segs))
	}
	turns := segs[0].Turns
	if len(turns) != 2 {
		t.Fatalf("turns=%d want=2", len(turns))
	}
	if turns[0].Direction != Left || turns[1].Direction != Right {
		t.Fatalf("directions=%s,%s want=left,right", turns[0].Direction, turns[1].Direction)
	}
	if turns[0].StartIndex < 400 || turns[0].StartIndex > 650 {
		t.Fatalf("first turn start=%d", turns[0].StartIndex)
	}
	if turns[0].FrontEdgeAngle < 20 || turns[0].EdgeAngle < 20 {
		t.Fatalf("left turn front=%v edge=%v", turns[0].FrontEdgeAngle, turns[0].EdgeAngle)
	}
	if turns[1].BackEdgeAngle < 20 || turns[1].EdgeAngle > -20 {
		t.Fatalf("right turn back=%v edge=%v", turns[1].BackEdgeAngle, turns[1].EdgeAngle)
	}
	for _, tr := range turns {
		if tr.CarvingTime <= 0 {
			t.Fatalf("expected carving time, got %v", tr.CarvingTime)
		}
		if tr.SpeedSource != SourceIMU || tr.AvgSkiingSpeed <= 0 {
			t.Fatalf("speed=%v source=%s", tr.AvgSkiingSpeed, tr.SpeedSource)
		}
		if tr.TurnRadius <= 0 || tr.RadiusSource != SourceIMU {
			t.Fatalf("radius=%v source=%s", tr.TurnRadius, tr.RadiusSource)
		}
	}
	checkTurnInvariants(t, turns)

	if segs[0].SlopeSource != SourceIMU || math.Abs(segs[0].SlopeAngle-15) > 1 {
		t.Fatalf("slope=%v source=%s", segs[0].SlopeAngle, segs[0].SlopeSource)
	}
}

func TestFlatSignalHasNoTurns(t *testing.T) {
	sess := synth.DefaultSession()
	sess.Turns = nil
	sess.GyroNoise = 0.01
	rec := sess.Render()
	segs := process(t, Input{IMU: rec.IMU, IMUFS: 100}, DefaultConfig())
	if got := TurnCount(segs); got != 0 {
		t.Fatalf("turns=%d want=0", got)
	}
	if segs[0].Turns == nil {
		t.Fatalf("turns should be an empty slice")
	}
	m := Metrics(segs)
	if len(m) != 1 || m[0].TurnDetected {
		t.Fatalf("metrics=%+v want one baseline record", m)
	}
}

func TestTurnsSurviveNoise(t *testing.T) {
	sess := synth.DefaultSession()
	sess.GyroNoise = 0.02
	sess.AccelNoise = 0.05
	rec := sess.Render()
	segs := process(t, Input{IMU: rec.IMU}, DefaultConfig())
	turns := segs[0].Turns
	if len(turns) != 2 {
		t.Fatalf("turns=%d want=2", len(turns))
	}
	if turns[0].Direction != Left || turns[1].Direction != Right {
		t.Fatalf("directions=%s,%s", turns[0].Direction, turns[1].Direction)
	}
	checkTurnInvariants(t, turns)
}

func TestCalibrationRotatesIntoBoardFrame(t *testing.T) {
	sess := synth.DefaultSession()
	// Sensor mounted upside down: yaw rate changes sign in the IMU frame.
	install := orientation.RotX(math.Pi)
	sess.Install = install
	rec := sess.Render()

	cfg := DefaultConfig()
	cfg.Calibration = &install
	turns := process(t, Input{IMU: rec.IMU}, cfg)[0].Turns
	if len(turns) != 2 || turns[0].Direction != Left || turns[1].Direction != Right {
		t.Fatalf("calibrated turns=%+v", turns)
	}

	raw := process(t, Input{IMU: rec.IMU}, DefaultConfig())[0].Turns
	if len(raw) != 2 || raw[0].Direction != Right {
		t.Fatalf("uncalibrated turns=%+v", raw)
	}
}

func TestBarometerSegmentation(t *testing.T) {
	sess := synth.DefaultSession()
	sess.Duration = 110
	sess.Runs = []synth.Run{{Start: 10, Duration: 35}, {Start: 70, Duration: 25}}
	sess.Turns = []synth.TurnShape{
		{Start: 20, Duration: 2.5, YawRate: 1, RollDeg: 25},
		{Start: 80, Duration: 2.5, YawRate: -1, RollDeg: -25},
	}
	sess.BaroRate = 1
	rec := sess.Render()

	segs := process(t, Input{IMU: rec.IMU, Baro: rec.Baro, IMUFS: 100, BaroFS: 1}, DefaultConfig())
	if len(segs) != 2 {
		t.Fatalf("segments=%d want=2", len(segs))
	}
	if s := segs[0].StartIndex; s < 1000 || s > 1500 {
		t.Fatalf("first segment start=%d", s)
	}
	if s := segs[1].StartIndex; s < 7000 || s > 7500 {
		t.Fatalf("second segment start=%d", s)
	}
	for i, seg := range segs {
		if len(seg.Turns) != 1 {
			t.Fatalf("segment %d turns=%d want=1", i, len(seg.Turns))
		}
		if seg.AltitudeDrop <= 0 {
			t.Fatalf("segment %d drop=%v", i, seg.AltitudeDrop)
		}
		if seg.StartTime == nil || seg.EndTime == nil || !seg.EndTime.After(*seg.StartTime) {
			t.Fatalf("segment %d times=%v..%v", i, seg.StartTime, seg.EndTime)
		}
	}
	if segs[0].Turns[0].Direction != Left || segs[1].Turns[0].Direction != Right {
		t.Fatalf("directions=%s,%s", segs[0].Turns[0].Direction, segs[1].Turns[0].Direction)
	}
	if segs[0].Turns[0].AvgVVKmh >= 0 {
		t.Fatalf("expected descending vertical speed, got %v", segs[0].Turns[0].AvgVVKmh)
	}
}

func TestUntimedBarometerUsesConfiguredRate(t *testing.T) {
	sess := synth.DefaultSession()
	sess.Duration = 110
	sess.Runs = []synth.Run{{Start: 10, Duration: 35}, {Start: 70, Duration: 25}}
	sess.BaroRate = 2
	rec := sess.Render()
	for i := range rec.Baro {
		rec.Baro[i].Timestamp = time.Time{}
	}

	cfg := DefaultConfig()
	cfg.BaroFS = 2
	segs := process(t, Input{IMU: rec.IMU, Baro: rec.Baro}, cfg)
	if len(segs) != 2 {
		t.Fatalf("segments=%d want=2", len(segs))
	}
	if s := segs[0].StartIndex; s < 1000 || s > 1500 {
		t.Fatalf("first segment start=%d", s)
	}
	if s := segs[1].StartIndex; s < 7000 || s > 7500 {
		t.Fatalf("second segment start=%d", s)
	}
}

func TestGPSSpeedAndSlope(t *testing.T) {
	sess := synth.DefaultSession()
	sess.SlopeDeg = 0
	sess.GPSRate = 1
	rec := sess.Render()
	segs := process(t, Input{IMU: rec.IMU, GPS: rec.GPS, IMUFS: 100, GPSFS: 1}, DefaultConfig())
	turns := segs[0].Turns
	if len(turns) != 2 {
		t.Fatalf("turns=%d want=2", len(turns))
	}
	for _, tr := range turns {
		if tr.SpeedSource != SourceGPS || math.Abs(tr.AvgSkiingSpeed-36) > 0.01 {
			t.Fatalf("speed=%v source=%s", tr.AvgSkiingSpeed, tr.SpeedSource)
		}
		if math.Abs(tr.TotalDistance-10*tr.TurnDuration) > 1e-6 {
			t.Fatalf("distance=%v duration=%v", tr.TotalDistance, tr.TurnDuration)
		}
	}
	if segs[0].SlopeSource != SourceGPS || math.Abs(segs[0].SlopeAngle) > 0.5 {
		t.Fatalf("slope=%v source=%s", segs[0].SlopeAngle, segs[0].SlopeSource)
	}

	sess.SlopeDeg = 15
	rec = sess.Render()
	segs = process(t, Input{IMU: rec.IMU, GPS: rec.GPS}, DefaultConfig())
	if segs[0].SlopeSource != SourceGPS || math.Abs(segs[0].SlopeAngle-15) > 1 {
		t.Fatalf("slope=%v source=%s", segs[0].SlopeAngle, segs[0].SlopeSource)
	}
}

func TestGPSDropoutIsIgnored(t *testing.T) {
	sess := synth.DefaultSession()
	sess.SlopeDeg = 0
	sess.GPSRate = 1
	rec := sess.Render()
	drop := rec.GPS[5]
	drop.Latitude, drop.Longitude, drop.Speed, drop.Validity = 0, 0, 0, "V"
	rec.GPS[5] = drop

	segs := process(t, Input{IMU: rec.IMU, GPS: rec.GPS, IMUFS: 100, GPSFS: 1}, DefaultConfig())
	if len(segs) != 1 {
		t.Fatalf("segments=%d want=1", len(segs))
	}
	turns := segs[0].Turns
	if len(turns) != 2 {
		t.Fatalf("turns=%d want=2", len(turns))
	}
	for _, tr := range turns {
		if math.Abs(tr.AvgSkiingSpeed-36) > 0.01 {
			t.Fatalf("speed=%v want=36", tr.AvgSkiingSpeed)
		}
		if tr.TurnRadius > 1000 {
			t.Fatalf("radius=%v", tr.TurnRadius)
		}
	}
	if segs[0].AvgSpeedKmh < 30 || segs[0].AvgSpeedKmh > 40 || math.Abs(segs[0].SlopeAngle) > 0.5 {
		t.Fatalf("segment speed=%v slope=%v", segs[0].AvgSpeedKmh, segs[0].SlopeAngle)
	}
}

func TestProcessSessionErrors(t *testing.T) {
	_, err := NewSystem(Input{}, DefaultConfig()).ProcessSession()
	if !errors.Is(err, imu.ErrEmpty) {
		t.Fatalf("err=%v want ErrEmpty", err)
	}
	cfg := DefaultConfig()
	cfg.ExitRatio = 2
	rec := synth.DefaultSession().Render()
	_, err = NewSystem(Input{IMU: rec.IMU}, cfg).ProcessSession()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err=%v want ErrInvalidConfig", err)
	}
}

func TestTurnDetectorHysteresis(t *testing.T) {
	d := NewTurnDetector(1, 0.5, 2)
	seq := []float64{0, 1.5, 1.2, 0.8, 0.6, 0.4, 0, -1.1, -0.2, 0, -1.3, -1.2}
	var got []Span
	for i, v := range seq {
		if sp, ok := d.Step(i, v); ok {
			got = append(got, sp)
		}
	}
	if sp, ok := d.Flush(len(seq)); ok {
		got = append(got, sp)
	}
	want := []Span{{Start: 1, End: 5}, {Start: 10, End: 12}}
	if len(got) != len(want) {
		t.Fatalf("spans=%v want=%v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("span %d=%v want=%v", i, got[i], want[i])
		}
	}
}

func TestLowPassStep(t *testing.T) {
	lp := NewLowPass(0.5, 0.01)
	lp.Step(0)
	var y float64
	for i := 0; i < 1000; i++ {
		y = lp.Step(1)
	}
	if math.Abs(y-1) > 1e-6 {
		t.Fatalf("settled=%v", y)
	}
	lp = NewLowPass(0.5, 0.01)
	lp.Step(0)
	rc := 1 / (2 * math.Pi * 0.5)
	steps := int(rc / 0.01)
	for i := 0; i < steps; i++ {
		y = lp.Step(1)
	}
	// One time constant reaches about 63%.
	if y < 0.55 || y > 0.7 {
		t.Fatalf("after RC y=%v", y)
	}
}

func TestMetricsMapping(t *testing.T) {
	segs := []Segment{{
		Index:      0,
		SlopeAngle: 18,
		Turns: []Turn{
			{Direction: Left, RollAngle: 20, FrontEdgeAngle: 30, BackEdgeAngle: 5,
				AvgSkiingSpeed: 40, CarvingDistance: 12, TotalDistance: 20,
				CarvingTime: 1, TurnDuration: 2, TurnRadius: 15, AvgVVKmh: -5},
			{Direction: Right, RollAngle: -10, FrontEdgeAngle: 0, BackEdgeAngle: 25,
				AvgSkiingSpeed: 30, CarvingDistance: 0, TotalDistance: 15,
				CarvingTime: 0, TurnDuration: 1.5},
		},
	}}
	m := Metrics(segs)
	if len(m) != 2 {
		t.Fatalf("metrics=%d want=2", len(m))
	}

	front := m[0]
	if !front.TurnDetected || *front.TurnDirection != Left {
		t.Fatalf("front turn=%+v", front)
	}
	if *front.EdgeAngle != 20 || *front.EdgeAngleFront != 30 || *front.EdgeAngleBack != 5 {
		t.Fatalf("edge angles=%v/%v/%v", *front.EdgeAngle, *front.EdgeAngleFront, *front.EdgeAngleBack)
	}
	if *front.EdgeAngleSpeedFront != 40 || front.EdgeAngleSpeedBack != nil {
		t.Fatalf("speed front=%v back=%v", front.EdgeAngleSpeedFront, front.EdgeAngleSpeedBack)
	}
	if *front.EdgeDisplacementFront != 12 || front.EdgeDisplacementBack != nil {
		t.Fatalf("displacement front=%v back=%v", front.EdgeDisplacementFront, front.EdgeDisplacementBack)
	}
	if *front.EdgeTimeRatio != 0.5 || *front.EdgeAngleSpeed != -5 || *front.TurnRadius != 15 {
		t.Fatalf("ratio=%v vv=%v radius=%v", *front.EdgeTimeRatio, *front.EdgeAngleSpeed, *front.TurnRadius)
	}
	if *front.SlopeAngle != 18 || *front.SpeedKmh != 40 || *front.EdgeDisplacement != 20 {
		t.Fatalf("slope=%v speed=%v displacement=%v", *front.SlopeAngle, *front.SpeedKmh, *front.EdgeDisplacement)
	}

	back := m[1]
	if back.EdgeAngleFront != nil || *back.EdgeAngleBack != 25 {
		t.Fatalf("back edges=%v/%v", back.EdgeAngleFront, back.EdgeAngleBack)
	}
	if back.EdgeAngleSpeedFront != nil || *back.EdgeAngleSpeedBack != 30 {
		t.Fatalf("back speeds=%v/%v", back.EdgeAngleSpeedFront, back.EdgeAngleSpeedBack)
	}
	if back.EdgeTimeRatio != nil || back.TurnRadius != nil || back.EdgeDisplacementBack != nil {
		t.Fatalf("expected nil ratio/radius/displacement, got %+v", back)
	}
	if *back.EdgeDurationSeconds != 0 {
		t.Fatalf("edge duration=%v", *back.EdgeDurationSeconds)
	}
}
