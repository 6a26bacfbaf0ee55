package analysis

import "math"

// LowPass is a single-pole IIR filter: y += alpha·(x − y) with
// alpha = dt/(RC+dt), RC = 1/(2π·fc).
type LowPass struct {
	alpha       float64
	y           float64
	initialized bool
}

func NewLowPass(cutoffHz, dt float64) *LowPass {
	rc := 1 / (2 * math.Pi * cutoffHz)
	return &LowPass{alpha: dt / (rc + dt)}
}

// Step filters one sample. The first sample seeds the state.
func (lp *LowPass) Step(x float64) float64 {
	if !lp.initialized {
		lp.y = x
		lp.initialized = true
		return x
	}
	lp.y += lp.alpha * (x - lp.y)
	return lp.y
}

// Span is a half-open sample range [Start, End).
type Span struct {
	Start int `json:"start_index"`
	End   int `json:"end_index"`
}

func (s Span) Len() int { return s.End - s.Start }

type detectorState int

const (
	cruising detectorState = iota
	inTurn
)

// TurnDetector is a hysteresis state machine on the filtered yaw rate.
type TurnDetector struct {
	onset      float64
	exit       float64
	minSamples int

	state detectorState
	start int
}

func NewTurnDetector(onset, exitRatio float64, minSamples int) *TurnDetector {
	return &TurnDetector{onset: onset, exit: onset * exitRatio, minSamples: minSamples}
}

// Step consumes the filtered yaw rate of sample i. It returns a completed
// turn when the rate falls back under the exit threshold.
func (d *TurnDetector) Step(i int, rate float64) (Span, bool) {
	mag := math.Abs(rate)
	switch d.state {
	case cruising:
		if mag > d.onset {
			d.state = inTurn
			d.start = i
		}
	case inTurn:
		if mag < d.exit {
			d.state = cruising
			return d.emit(i)
		}
	}
	return Span{}, false
}

// Flush closes a turn still open at end (exclusive).
func (d *TurnDetector) Flush(end int) (Span, bool) {
	if d.state != inTurn {
		return Span{}, false
	}
	d.state = cruising
	return d.emit(end)
}

func (d *TurnDetector) emit(end int) (Span, bool) {
	s := Span{Start: d.start, End: end}
	if s.Len() < d.minSamples || s.Len() <= 0 {
		return Span{}, false
	}
	return s, true
}
