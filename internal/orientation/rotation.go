package orientation

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	deg2rad = math.Pi / 180.0
	rad2deg = 180.0 / math.Pi
)

// ErrSVD is returned when gonum fails to factorize a matrix.
var ErrSVD = errors.New("orientation: SVD factorization failed")

// Deg converts radians to degrees.
func Deg(rad float64) float64 { return rad * rad2deg }

// Rad converts degrees to radians.
func Rad(deg float64) float64 { return deg * deg2rad }

func RotX(rad float64) Mat3 {
	c, s := math.Cos(rad), math.Sin(rad)
	return Mat3{{1, 0, 0}, {0, c, -s}, {0, s, c}}
}

func RotY(rad float64) Mat3 {
	c, s := math.Cos(rad), math.Sin(rad)
	return Mat3{{c, 0, s}, {0, 1, 0}, {-s, 0, c}}
}

func RotZ(rad float64) Mat3 {
	c, s := math.Cos(rad), math.Sin(rad)
	return Mat3{{c, -s, 0}, {s, c, 0}, {0, 0, 1}}
}

// AxisAngle builds the rotation of rad radians about axis (right hand rule).
func AxisAngle(axis Vec3, rad float64) Mat3 {
	k := axis.Unit()
	c, s := math.Cos(rad), math.Sin(rad)
	t := 1 - c
	return Mat3{
		{t*k.X*k.X + c, t*k.X*k.Y - s*k.Z, t*k.X*k.Z + s*k.Y},
		{t*k.X*k.Y + s*k.Z, t*k.Y*k.Y + c, t*k.Y*k.Z - s*k.X},
		{t*k.X*k.Z - s*k.Y, t*k.Y*k.Z + s*k.X, t*k.Z*k.Z + c},
	}
}

// FromEuler builds R = Rz(yaw)·Ry(pitch)·Rx(roll) from a pose in degrees.
func FromEuler(p Pose) Mat3 {
	return RotZ(Rad(p.Yaw)).Mul(RotY(Rad(p.Pitch))).Mul(RotX(Rad(p.Roll)))
}

// EulerZYX extracts intrinsic Z-Y-X (yaw, pitch, roll) angles in degrees
// from a rotation matrix, the inverse of FromEuler. At gimbal lock
// (|pitch| = 90°) roll is reported as 0 and the whole twist goes to yaw.
func EulerZYX(m Mat3) Pose {
	sp := -m[2][0]
	if sp > 1 {
		sp = 1
	} else if sp < -1 {
		sp = -1
	}
	pitch := math.Asin(sp)

	if math.Abs(sp) > 1-1e-9 {
		return Pose{
			Roll:  0,
			Pitch: Deg(pitch),
			Yaw:   Deg(math.Atan2(-m[0][1], m[1][1])),
		}
	}
	return Pose{
		Roll:  Deg(math.Atan2(m[2][1], m[2][2])),
		Pitch: Deg(pitch),
		Yaw:   Deg(math.Atan2(m[1][0], m[0][0])),
	}
}

// ProjectSO3 returns the rotation closest to m in the Frobenius sense:
// m = U·S·Vᵀ, R = U·diag(1, 1, det(U·Vᵀ))·Vᵀ.
func ProjectSO3(m Mat3) (Mat3, error) {
	var svd mat.SVD
	if ok := svd.Factorize(m.Dense(), mat.SVDFull); !ok {
		return Mat3{}, ErrSVD
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	U := Mat3FromDense(&u)
	Vm := Mat3FromDense(&v)
	d := 1.0
	if U.Det()*Vm.Det() < 0 {
		d = -1.0
	}
	D := Mat3{{1, 0, 0}, {0, 1, 0}, {0, 0, d}}
	return U.Mul(D).Mul(Vm.T()), nil
}

// RotationAngle returns the rotation angle of an orthonormal matrix in radians.
func RotationAngle(m Mat3) float64 {
	c := (m[0][0] + m[1][1] + m[2][2] - 1) / 2
	return math.Acos(math.Max(-1, math.Min(1, c)))
}
