package calibration

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/relabs-tech/ski_compute/internal/imu"
	"github.com/relabs-tech/ski_compute/internal/orientation"
)

// StaticEstimate is what the rest window tells us about the sensor.
type StaticEstimate struct {
	Window Window `json:"window" yaml:"window"`
	// Gravity is the mean specific force in the IMU frame (points up, m/s²).
	Gravity   orientation.Vec3 `json:"gravity_imu" yaml:"gravity_imu"`
	Norm      float64          `json:"gravity_norm" yaml:"gravity_norm"`
	NormError float64          `json:"gravity_norm_error" yaml:"gravity_norm_error"`
	// Up is Gravity normalized.
	Up           orientation.Vec3 `json:"up_imu" yaml:"up_imu"`
	GyroBias     orientation.Vec3 `json:"gyro_bias" yaml:"gyro_bias"`
	GyroStd      float64          `json:"gyro_std" yaml:"gyro_std"`
	AccelNormStd float64          `json:"accel_norm_std" yaml:"accel_norm_std"`
	Cost         float64          `json:"cost" yaml:"cost"`
	Passed       bool             `json:"passed" yaml:"passed"`
	Warnings     []string         `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// EstimateStatic computes the gravity reference and gyro bias over w and
// runs the stillness checks.
func EstimateStatic(samples []imu.Sample, w Window, cfg Config) StaticEstimate {
	n := w.Len()
	ax := make([]float64, n)
	ay := make([]float64, n)
	az := make([]float64, n)
	gx := make([]float64, n)
	gy := make([]float64, n)
	gz := make([]float64, n)
	an := make([]float64, n)
	for i, s := range samples[w.Start:w.Stop] {
		ax[i], ay[i], az[i] = s.Acc.X, s.Acc.Y, s.Acc.Z
		gx[i], gy[i], gz[i] = s.Gyro.X, s.Gyro.Y, s.Gyro.Z
		an[i] = s.Acc.Norm()
	}

	est := StaticEstimate{Window: w}
	est.Gravity = orientation.V(stat.Mean(ax, nil), stat.Mean(ay, nil), stat.Mean(az, nil))
	est.Norm = est.Gravity.Norm()
	est.NormError = math.Abs(est.Norm - cfg.Gravity)
	est.Up = est.Gravity.Unit()

	mx, sx := stat.MeanStdDev(gx, nil)
	my, sy := stat.MeanStdDev(gy, nil)
	mz, sz := stat.MeanStdDev(gz, nil)
	est.GyroBias = orientation.V(mx, my, mz)
	est.GyroStd = math.Sqrt(sx*sx + sy*sy + sz*sz)
	est.AccelNormStd = stat.StdDev(an, nil)

	est.Passed = true
	if est.Norm < 0.5*cfg.Gravity {
		est.Passed = false
		est.Warnings = append(est.Warnings, fmt.Sprintf("mean specific force %.3f m/s² is far below gravity", est.Norm))
	}
	if est.GyroStd > cfg.StaticGyroStdMax {
		est.Passed = false
		est.Warnings = append(est.Warnings, fmt.Sprintf("gyro std %.4f rad/s exceeds %.4f", est.GyroStd, cfg.StaticGyroStdMax))
	}
	if rate := est.GyroBias.Norm(); rate > cfg.StaticGyroMeanMax {
		est.Passed = false
		est.Warnings = append(est.Warnings, fmt.Sprintf("mean gyro rate %.4f rad/s exceeds %.4f", rate, cfg.StaticGyroMeanMax))
	}
	if est.AccelNormStd > cfg.StaticAccelStdMax {
		est.Passed = false
		est.Warnings = append(est.Warnings, fmt.Sprintf("accel norm std %.4f m/s² exceeds %.4f", est.AccelNormStd, cfg.StaticAccelStdMax))
	}
	if est.NormError > cfg.GravityTolerance {
		est.Warnings = append(est.Warnings, fmt.Sprintf("gravity norm %.4f m/s² deviates from %.5f by %.4f", est.Norm, cfg.Gravity, est.NormError))
	}
	return est
}
