package calibration

import (
	"gonum.org/v1/gonum/mat"

	"github.com/relabs-tech/ski_compute/internal/imu"
	"github.com/relabs-tech/ski_compute/internal/orientation"
)

// RotationEstimate describes the calibration maneuver as seen by the IMU.
type RotationEstimate struct {
	Window Window `json:"window" yaml:"window"`
	// Axis is the dominant angular-velocity direction in the IMU frame,
	// oriented so the net rotation about it is positive.
	Axis           orientation.Vec3 `json:"axis_imu" yaml:"axis_imu"`
	SingularValues [3]float64       `json:"singular_values" yaml:"singular_values"`
	Purity         float64          `json:"purity" yaml:"purity"`
	Energy         float64          `json:"energy" yaml:"energy"`
	NetRotationDeg float64          `json:"net_rotation_deg" yaml:"net_rotation_deg"`
}

// EstimateRotation finds the dominant rotation axis of w by SVD of the
// bias-corrected n×3 angular-velocity matrix and integrates the rate
// about it (rectangular rule, dt seconds per sample).
func EstimateRotation(samples []imu.Sample, w Window, bias orientation.Vec3, dt float64) (RotationEstimate, error) {
	n := w.Len()
	data := make([]float64, 0, n*3)
	corrected := make([]orientation.Vec3, n)
	energy := 0.0
	for i, s := range samples[w.Start:w.Stop] {
		g := s.Gyro.Sub(bias)
		corrected[i] = g
		data = append(data, g.X, g.Y, g.Z)
		energy += g.Dot(g) * dt
	}

	var svd mat.SVD
	if ok := svd.Factorize(mat.NewDense(n, 3, data), mat.SVDThin); !ok {
		return RotationEstimate{}, orientation.ErrSVD
	}
	var v mat.Dense
	svd.VTo(&v)
	sv := svd.Values(nil)

	axis := orientation.V(v.At(0, 0), v.At(1, 0), v.At(2, 0)).Unit()
	net := 0.0
	for _, g := range corrected {
		net += g.Dot(axis) * dt
	}
	if net < 0 {
		axis = axis.Scale(-1)
		net = -net
	}

	// Eigenvalues of the second moment are σ²/n.
	var lambda, values [3]float64
	for i := 0; i < 3 && i < len(sv); i++ {
		values[i] = sv[i]
		lambda[i] = sv[i] * sv[i] / float64(n)
	}

	return RotationEstimate{
		Window:         w,
		Axis:           axis,
		SingularValues: values,
		Purity:         purityFromValues(lambda),
		Energy:         energy,
		NetRotationDeg: orientation.Deg(net),
	}, nil
}

// VectorPair is one board/IMU direction correspondence for the Wahba fit.
type VectorPair struct {
	Board  orientation.Vec3
	IMU    orientation.Vec3
	Weight float64
}

// FitBoardToIMU solves Wahba's problem for R with IMU ≈ R·Board: the
// attitude profile matrix B = Σ w·imu·boardᵀ is projected onto SO(3).
func FitBoardToIMU(pairs []VectorPair) (orientation.Mat3, error) {
	var b orientation.Mat3
	for _, p := range pairs {
		w := p.Weight
		if w == 0 {
			w = 1
		}
		b = b.Add(orientation.Outer(p.IMU.Unit(), p.Board.Unit()).Scale(w))
	}
	return orientation.ProjectSO3(b)
}

// maneuverPairs builds the three correspondences of the calibration
// maneuver: up, rotation axis and their cross product.
func maneuverPairs(cfg Config, up, axis orientation.Vec3) []VectorPair {
	bUp := cfg.BoardUp.Unit()
	bAxis := cfg.BoardRotationAxis.Unit()
	return []VectorPair{
		{Board: bUp, IMU: up, Weight: 1},
		{Board: bAxis, IMU: axis, Weight: 1},
		{Board: bUp.Cross(bAxis).Unit(), IMU: up.Cross(axis).Unit(), Weight: 1},
	}
}
