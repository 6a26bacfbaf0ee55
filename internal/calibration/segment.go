package calibration

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/relabs-tech/ski_compute/internal/imu"
	"github.com/relabs-tech/ski_compute/internal/orientation"
)

// Window is a half-open index range [Start, Stop) into the sample sequence.
type Window struct {
	Start int `json:"start" yaml:"start"`
	Stop  int `json:"stop" yaml:"stop"`
}

func (w Window) Len() int { return w.Stop - w.Start }

// Overlaps reports whether w and o share at least one index.
func (w Window) Overlaps(o Window) bool {
	return w.Start < o.Stop && o.Start < w.Stop
}

// prefix holds running sums so any window sum is two lookups.
type prefix []float64

func cumulative(n int, f func(i int) float64) prefix {
	p := make(prefix, n+1)
	for i := 0; i < n; i++ {
		p[i+1] = p[i] + f(i)
	}
	return p
}

func (p prefix) sum(w Window) float64 { return p[w.Stop] - p[w.Start] }

// moments are prefix sums of the six distinct products of ω·ωᵀ.
type moments struct {
	xx, yy, zz, xy, xz, yz prefix
}

func newMoments(gyro []orientation.Vec3) moments {
	n := len(gyro)
	return moments{
		xx: cumulative(n, func(i int) float64 { return gyro[i].X * gyro[i].X }),
		yy: cumulative(n, func(i int) float64 { return gyro[i].Y * gyro[i].Y }),
		zz: cumulative(n, func(i int) float64 { return gyro[i].Z * gyro[i].Z }),
		xy: cumulative(n, func(i int) float64 { return gyro[i].X * gyro[i].Y }),
		xz: cumulative(n, func(i int) float64 { return gyro[i].X * gyro[i].Z }),
		yz: cumulative(n, func(i int) float64 { return gyro[i].Y * gyro[i].Z }),
	}
}

// second returns the uncentered second moment (1/n)·Σ ω·ωᵀ over w.
func (m moments) second(w Window) orientation.Mat3 {
	k := 1 / float64(w.Len())
	xx, yy, zz := m.xx.sum(w)*k, m.yy.sum(w)*k, m.zz.sum(w)*k
	xy, xz, yz := m.xy.sum(w)*k, m.xz.sum(w)*k, m.yz.sum(w)*k
	return orientation.Mat3{{xx, xy, xz}, {xy, yy, yz}, {xz, yz, zz}}
}

// MomentPurity converts the singular values of a gyro second-moment matrix
// into the [0,1] single-axis purity: (σ₁/Σσ − 1/3) / (2/3).
func MomentPurity(m orientation.Mat3) (float64, [3]float64, error) {
	var svd mat.SVD
	if ok := svd.Factorize(m.Dense(), mat.SVDNone); !ok {
		return 0, [3]float64{}, orientation.ErrSVD
	}
	vals := svd.Values(nil)
	var sv [3]float64
	copy(sv[:], vals)
	return purityFromValues(sv), sv, nil
}

func purityFromValues(sv [3]float64) float64 {
	total := sv[0] + sv[1] + sv[2]
	if total <= 1e-15 {
		return 0
	}
	p := (sv[0]/total - 1.0/3.0) / (2.0 / 3.0)
	return math.Max(0, math.Min(1, p))
}

// Purity returns the single-axis purity of a set of angular-velocity vectors.
func Purity(gyro []orientation.Vec3) (float64, error) {
	if len(gyro) == 0 {
		return 0, imu.ErrEmpty
	}
	m := newMoments(gyro).second(Window{0, len(gyro)})
	p, _, err := MomentPurity(m)
	return p, err
}

type rotationCandidate struct {
	window Window
	energy float64
	purity float64
	values [3]float64
}

type rotationSearch struct {
	best    rotationCandidate
	found   bool
	maxRate float64 // highest RMS rate seen, rad/s
	// bestImpure is the purest energetic window that missed the threshold.
	bestImpure rotationCandidate
	impure     bool
	// unplaceable counts pure windows with no room for a static window before them.
	unplaceable int
	evaluated   int
}

func searchPositions(n, size, stride, firstPlaceable int) []int {
	seen := map[int]bool{}
	var out []int
	add := func(s int) {
		if s < 0 || s > n-size || seen[s] {
			return
		}
		seen[s] = true
		out = append(out, s)
	}
	for s := 0; s <= n-size; s += stride {
		add(s)
	}
	add(firstPlaceable)
	add(n - size)
	sort.Ints(out)
	return out
}

// searchRotation slides the rotation window and keeps the most energetic
// window whose purity reaches the threshold and that leaves room for a
// static window before it.
func searchRotation(gyro []orientation.Vec3, cfg Config, dt float64) rotationSearch {
	var rs rotationSearch
	mom := newMoments(gyro)
	size := cfg.RotationWindowSize

	for _, s := range searchPositions(len(gyro), size, cfg.stride(), cfg.StaticWindowSize) {
		w := Window{Start: s, Stop: s + size}
		m := mom.second(w)
		meanSq := m[0][0] + m[1][1] + m[2][2]
		energy := meanSq * float64(size) * dt
		rate := math.Sqrt(meanSq)
		rs.evaluated++
		if rate > rs.maxRate {
			rs.maxRate = rate
		}
		if rate < cfg.MinRotationRate {
			continue
		}
		purity, sv, err := MomentPurity(m)
		if err != nil {
			continue
		}
		c := rotationCandidate{window: w, energy: energy, purity: purity, values: sv}
		if purity < cfg.RotationPurityThreshold {
			if !rs.impure || purity > rs.bestImpure.purity {
				rs.bestImpure = c
				rs.impure = true
			}
			continue
		}
		if s < cfg.StaticWindowSize {
			rs.unplaceable++
			continue
		}
		if !rs.found || energy > rs.best.energy {
			rs.best = c
			rs.found = true
		}
	}
	return rs
}

// searchStatic returns the lowest-cost static window ending at or before
// limit. cost = mean(|ω|²) + Var(|a|)/g².
func searchStatic(samples []imu.Sample, size, limit int, gravity float64) (Window, float64, bool) {
	if limit > len(samples) {
		limit = len(samples)
	}
	if limit < size {
		return Window{}, 0, false
	}
	gyroMag, accMag := imu.Magnitudes(samples[:limit])
	w2 := cumulative(limit, func(i int) float64 { return gyroMag[i] * gyroMag[i] })
	a1 := cumulative(limit, func(i int) float64 { return accMag[i] })
	a2 := cumulative(limit, func(i int) float64 { return accMag[i] * accMag[i] })

	n := float64(size)
	g2 := gravity * gravity
	best := Window{}
	bestCost := math.Inf(1)
	for s := 0; s+size <= limit; s++ {
		w := Window{Start: s, Stop: s + size}
		meanA := a1.sum(w) / n
		varA := math.Max(0, a2.sum(w)/n-meanA*meanA)
		cost := w2.sum(w)/n + varA/g2
		if cost < bestCost {
			bestCost = cost
			best = w
		}
	}
	return best, bestCost, true
}
