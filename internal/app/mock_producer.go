package app

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/ski_compute/internal/config"
	"github.com/relabs-tech/ski_compute/internal/imu"
	"github.com/relabs-tech/ski_compute/internal/orientation"
	"github.com/relabs-tech/ski_compute/internal/synth"
)

// MockSession renders the synthetic session published by the mock producer
// for a board installed with the given angles.
func MockSession(deviceID string, install orientation.Pose, seed int64) SessionRequest {
	s := synth.DefaultSession()
	s.Install = orientation.FromEuler(install)
	s.Seed = seed
	s.GyroNoise = 0.005
	s.AccelNoise = 0.02
	s.GPSRate = 1
	rec := s.Render()
	return SessionRequest{
		DeviceID: deviceID,
		IMU:      imu.EncodeBatch(deviceID, s.Rate, rec.IMU, imu.StandardGravity),
		GPS:      rec.GPS,
		GPSFS:    s.GPSRate,
	}
}

// MockCalibration renders a calibration maneuver for a board installed
// with the given angles.
func MockCalibration(deviceID string, install orientation.Pose, seed int64) imu.Batch {
	m := synth.DefaultManeuver()
	m.Install = orientation.FromEuler(install)
	m.Seed = seed
	m.GyroNoise = 0.002
	m.AccelNoise = 0.01
	return m.Batch(deviceID)
}

// RunMockProducer publishes one synthetic calibration batch and then a
// synthetic session every interval, without hardware.
func RunMockProducer(ctx context.Context, cfg *config.Config, interval time.Duration) error {
	log.Infof("starting ski mock producer")

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer+"-mock")
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	publish := clientPublisher(client)

	install := orientation.Pose{Roll: 0, Pitch: 0, Yaw: 90}
	if err := publishJSON(publish, cfg.TopicIMUBatch, false, MockCalibration(cfg.DeviceID, install, 1)); err != nil {
		return err
	}
	log.Infof("published mock calibration batch for %s", cfg.DeviceID)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	seed := int64(1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ticker.C:
			seed++
			if err := publishJSON(publish, cfg.TopicSession, false, MockSession(cfg.DeviceID, install, seed)); err != nil {
				log.Warnf("mock producer: %v", err)
				continue
			}
			log.Infof("%s published mock session", t.Format(time.RFC3339))
		}
	}
}
