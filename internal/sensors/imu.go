// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/ski_compute/internal/imu"
)

type imuSource struct {
	name string
	dev  *mpu9250.MPU9250
}

// IMUOptions selects the SPI wiring and full-scale ranges of one MPU9250.
type IMUOptions struct {
	Name       string
	SPIDevice  string
	CSPin      string
	AccelRange byte // 0=±2g .. 3=±16g
	GyroRange  byte // 0=±250°/s .. 3=±2000°/s
}

// NewIMUSource initializes an MPU9250 over SPI.
func NewIMUSource(o IMUOptions) (imu.IMURawSource, error) {
	name := o.Name
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%s IMU: periph host init: %w", name, err)
	}

	cs := gpioreg.ByName(o.CSPin)
	if cs == nil {
		return nil, fmt.Errorf("%s IMU: CS pin %q not found", name, o.CSPin)
	}

	tr, err := mpu9250.NewSpiTransport(o.SPIDevice, cs)
	if err != nil {
		return nil, fmt.Errorf("%s IMU: SPI transport (%s): %w", name, o.SPIDevice, err)
	}

	dev, err := mpu9250.New(tr)
	if err != nil {
		return nil, fmt.Errorf("%s IMU: device creation: %w", name, err)
	}

	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("%s IMU: initialization: %w", name, err)
	}

	if _, err := dev.SelfTest(); err != nil {
		log.Warnf("%s IMU: self-test failed: %v", name, err)
	} else {
		log.Infof("%s IMU: self-test passed", name)
	}

	// Calibrate resets the ranges, so they are applied afterwards.
	if err := dev.Calibrate(); err != nil {
		log.Warnf("%s IMU: factory calibration failed: %v", name, err)
	}

	if err := dev.SetAccelRange(o.AccelRange); err != nil {
		return nil, fmt.Errorf("%s IMU: set accel range: %w", name, err)
	}
	log.Infof("%s IMU: accelerometer range set to %d (±%.0fg)", name, o.AccelRange, imu.AccelRangesG[o.AccelRange&3])

	if err := dev.SetGyroRange(o.GyroRange); err != nil {
		return nil, fmt.Errorf("%s IMU: set gyro range: %w", name, err)
	}
	log.Infof("%s IMU: gyroscope range set to %d (±%.0f°/s)", name, o.GyroRange, imu.GyroRangesDPS[o.GyroRange&3])

	return &imuSource{name: name, dev: dev}, nil
}

// ReadRaw reads accelerometer and gyroscope counts.
func (s *imuSource) ReadRaw() (imu.IMURaw, error) {
	now := time.Now()

	ax, err := s.dev.GetAccelerationX()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU accel X: %w", s.name, err)
	}
	ay, err := s.dev.GetAccelerationY()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU accel Y: %w", s.name, err)
	}
	az, err := s.dev.GetAccelerationZ()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU accel Z: %w", s.name, err)
	}

	gx, err := s.dev.GetRotationX()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU gyro X: %w", s.name, err)
	}
	gy, err := s.dev.GetRotationY()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU gyro Y: %w", s.name, err)
	}
	gz, err := s.dev.GetRotationZ()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU gyro Z: %w", s.name, err)
	}

	return imu.IMURaw{
		Source: s.name,
		Time:   now,
		Ax:     ax,
		Ay:     ay,
		Az:     az,
		Gx:     gx,
		Gy:     gy,
		Gz:     gz,
	}, nil
}
