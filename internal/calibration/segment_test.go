package calibration

import (
	"math"
	"sort"
	"testing"

	"github.com/relabs-tech/ski_compute/internal/imu"
	"github.com/relabs-tech/ski_compute/internal/orientation"
)

func TestSearchPositions(t *testing.T) {
	got := searchPositions(555, 200, 10, 100)
	if !sort.IntsAreSorted(got) {
		t.Fatalf("positions not sorted: %v", got)
	}
	seen := map[int]bool{}
	for _, p := range got {
		if seen[p] {
			t.Fatalf("duplicate position %d", p)
		}
		seen[p] = true
		if p < 0 || p > 355 {
			t.Fatalf("position %d out of range", p)
		}
	}
	if !seen[100] || !seen[355] || !seen[0] {
		t.Fatalf("missing anchor positions: %v", got)
	}
}

func TestPurityExtremes(t *testing.T) {
	axis := orientation.V(0, 1, 0)
	pure := []orientation.Vec3{axis, axis.Scale(2), axis.Scale(-1)}
	p, err := Purity(pure)
	if err != nil || math.Abs(p-1) > 1e-9 {
		t.Fatalf("pure purity=%v err=%v", p, err)
	}

	iso := []orientation.Vec3{
		orientation.V(1, 0, 0), orientation.V(-1, 0, 0),
		orientation.V(0, 1, 0), orientation.V(0, -1, 0),
		orientation.V(0, 0, 1), orientation.V(0, 0, -1),
	}
	p, err = Purity(iso)
	if err != nil || p > 1e-9 {
		t.Fatalf("isotropic purity=%v err=%v", p, err)
	}

	if _, err := Purity(nil); err == nil {
		t.Fatalf("expected error for empty input")
	}
}

func TestWindowOverlap(t *testing.T) {
	a := Window{Start: 0, Stop: 100}
	if a.Overlaps(Window{Start: 100, Stop: 200}) {
		t.Fatalf("adjacent windows do not overlap")
	}
	if !a.Overlaps(Window{Start: 99, Stop: 200}) {
		t.Fatalf("expected overlap")
	}
}

func TestSearchStaticPrefersStillest(t *testing.T) {
	g := imu.StandardGravity
	samples := make([]imu.Sample, 300)
	for i := range samples {
		samples[i].Acc = orientation.V(0, 0, g)
		if i < 120 {
			samples[i].Gyro = orientation.V(0.2*math.Sin(float64(i)), 0, 0)
		}
	}
	w, cost, ok := searchStatic(samples, 100, 300, g)
	if !ok {
		t.Fatalf("no static window")
	}
	if w.Start < 120 || cost > 1e-12 {
		t.Fatalf("window=%v cost=%v", w, cost)
	}
	if _, _, ok := searchStatic(samples, 100, 50, g); ok {
		t.Fatalf("limit below window size should fail")
	}
}
