package orientation

import (
	"math"
	"testing"
)

func near(a, b, tol float64) bool { return math.Abs(a-b) <= tol }

func TestEulerZYXRecoversAngles(t *testing.T) {
	cases := []Pose{
		{Roll: 0, Pitch: 0, Yaw: 0},
		{Roll: 30, Pitch: -20, Yaw: 45},
		{Roll: -170, Pitch: 60, Yaw: -100},
		{Roll: 90, Pitch: 0, Yaw: 0},
	}
	for _, want := range cases {
		got := EulerZYX(FromEuler(want))
		if !near(got.Roll, want.Roll, 1e-9) || !near(got.Pitch, want.Pitch, 1e-9) || !near(got.Yaw, want.Yaw, 1e-9) {
			t.Fatalf("got=%+v want=%+v", got, want)
		}
	}
}

func TestEulerZYXGimbalLock(t *testing.T) {
	m := FromEuler(Pose{Roll: 0, Pitch: 90, Yaw: 25})
	got := EulerZYX(m)
	if !near(got.Pitch, 90, 1e-6) || !near(got.Yaw, 25, 1e-6) || got.Roll != 0 {
		t.Fatalf("got=%+v", got)
	}
}

func TestAxisAngleMatchesElementaryRotations(t *testing.T) {
	a := Rad(37)
	pairs := []struct {
		axis Vec3
		want Mat3
	}{
		{V(1, 0, 0), RotX(a)},
		{V(0, 1, 0), RotY(a)},
		{V(0, 0, 2), RotZ(a)},
	}
	for _, p := range pairs {
		got := AxisAngle(p.axis, a)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				if !near(got[i][j], p.want[i][j], 1e-12) {
					t.Fatalf("axis %+v: got=%v want=%v", p.axis, got, p.want)
				}
			}
		}
	}
	if got := Deg(RotationAngle(AxisAngle(V(1, 1, 0), a))); !near(got, 37, 1e-9) {
		t.Fatalf("rotation angle=%v", got)
	}
}

func TestProjectSO3(t *testing.T) {
	r := FromEuler(Pose{Roll: 10, Pitch: 20, Yaw: 30})
	noisy := r
	noisy[0][1] += 0.02
	noisy[2][0] -= 0.03
	noisy[1][1] *= 1.05

	p, err := ProjectSO3(noisy)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if e := OrthonormalityError(p); e > 1e-9 {
		t.Fatalf("orthonormality error=%g", e)
	}
	if d := p.Det(); !near(d, 1, 1e-9) {
		t.Fatalf("det=%v", d)
	}
	if ang := Deg(RotationAngle(p.T().Mul(r))); ang > 3 {
		t.Fatalf("projection moved %v deg away", ang)
	}
}

func TestProjectSO3FixesReflection(t *testing.T) {
	reflect := Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, -1}}
	p, err := ProjectSO3(reflect)
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if d := p.Det(); !near(d, 1, 1e-9) {
		t.Fatalf("det=%v want=1", d)
	}
}

func TestVec3Helpers(t *testing.T) {
	x, y := V(1, 0, 0), V(0, 1, 0)
	if c := x.Cross(y); c != V(0, 0, 1) {
		t.Fatalf("cross=%+v", c)
	}
	if u := V(3, 0, 4).Unit(); !near(u.Norm(), 1, 1e-12) {
		t.Fatalf("unit norm=%v", u.Norm())
	}
	if u := (Vec3{}).Unit(); u != (Vec3{}) {
		t.Fatalf("zero unit=%+v", u)
	}
	if a := Deg(AngleBetween(x, y)); !near(a, 90, 1e-12) {
		t.Fatalf("angle=%v", a)
	}
}

func TestComputePoseFromAccel(t *testing.T) {
	g := 9.80665
	roll := Rad(20)
	p := ComputePoseFromAccel(0, g*math.Sin(roll), g*math.Cos(roll))
	if !near(p.Roll, 20, 1e-9) || !near(p.Pitch, 0, 1e-9) {
		t.Fatalf("pose=%+v", p)
	}
}

func TestComplementaryFilterTracksGyroAndSettlesOnAccel(t *testing.T) {
	cf := NewComplementaryFilter(0.5)
	g := 9.80665
	dt := 0.01

	cf.Update(V(0, 0, g), Vec3{}, dt)
	// Roll at 30 deg/s for one second with consistent gravity.
	var p Pose
	for i := 1; i <= 100; i++ {
		r := Rad(30 * float64(i) * dt)
		p = cf.Update(V(0, g*math.Sin(r), g*math.Cos(r)), V(Rad(30), 0, 0), dt)
	}
	if !near(p.Roll, 30, 0.5) {
		t.Fatalf("roll after ramp=%v want=30", p.Roll)
	}

	// Hold still with a gyro bias; accel keeps the estimate bounded.
	for i := 0; i < 1000; i++ {
		p = cf.Update(V(0, g*math.Sin(Rad(30)), g*math.Cos(Rad(30))), V(Rad(2), 0, 0), dt)
	}
	if !near(p.Roll, 30, 2) {
		t.Fatalf("roll with biased gyro=%v", p.Roll)
	}
}
