package app

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/ski_compute/internal/config"
	"github.com/relabs-tech/ski_compute/internal/imu"
	"github.com/relabs-tech/ski_compute/internal/sensors"
)

// batcher accumulates device-units rows into fixed-size batches.
type batcher struct {
	deviceID   string
	sampleRate float64
	size       int
	rows       [][]float64
}

func newBatcher(deviceID string, sampleRate float64, size int) *batcher {
	return &batcher{deviceID: deviceID, sampleRate: sampleRate, size: size, rows: make([][]float64, 0, size)}
}

// Add appends a row and returns a full batch once size rows are collected.
func (b *batcher) Add(row []float64) (imu.Batch, bool) {
	b.rows = append(b.rows, row)
	if len(b.rows) < b.size {
		return imu.Batch{}, false
	}
	batch := imu.NewBatch(b.deviceID, b.sampleRate, b.rows)
	b.rows = make([][]float64, 0, b.size)
	return batch, true
}

// RunIMUProducer samples the MPU9250 and the BMP280 and publishes IMU
// batches and barometer samples to MQTT.
func RunIMUProducer(ctx context.Context, cfg *config.Config) error {
	log.Infof("starting ski IMU/barometer producer")

	src, err := sensors.NewIMUSource(sensors.IMUOptions{
		Name:       cfg.DeviceID,
		SPIDevice:  cfg.IMUSPIDevice,
		CSPin:      cfg.IMUCSPin,
		AccelRange: cfg.IMUAccelRange,
		GyroRange:  cfg.IMUGyroRange,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize IMU: %w", err)
	}

	baro, err := sensors.NewEnvSource(cfg.DeviceID, cfg.BMPSPIDevice)
	if err != nil {
		log.Warnf("barometer not available, publishing IMU only: %v", err)
		baro = nil
	} else {
		defer baro.Close()
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDProducer)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	publish := clientPublisher(client)

	b := newBatcher(cfg.DeviceID, cfg.IMUSampleRate(), cfg.IMUBatchSize)

	ticker := time.NewTicker(time.Duration(cfg.IMUSampleInterval) * time.Millisecond)
	defer ticker.Stop()
	var baroTick <-chan time.Time
	if baro != nil {
		bt := time.NewTicker(time.Duration(cfg.BMPSampleInterval) * time.Millisecond)
		defer bt.Stop()
		baroTick = bt.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Infof("IMU producer: shutting down")
			return nil

		case <-ticker.C:
			raw, err := src.ReadRaw()
			if err != nil {
				log.Warnf("error reading IMU: %v", err)
				continue
			}
			batch, full := b.Add(raw.Row(cfg.IMUAccelRange, cfg.IMUGyroRange))
			if !full {
				continue
			}
			if err := publishJSON(publish, cfg.TopicIMUBatch, false, batch); err != nil {
				log.Warnf("IMU producer: %v", err)
				continue
			}
			log.Debugf("published IMU batch of %d samples", len(batch.Data))

		case <-baroTick:
			sample, err := baro.Read()
			if err != nil {
				log.Warnf("barometer read error: %v", err)
				continue
			}
			if err := publishJSON(publish, cfg.TopicBaro, true, sample); err != nil {
				log.Warnf("IMU producer: %v", err)
			}
		}
	}
}
