package app

import (
	"bufio"
	"context"
	"fmt"
	"io"

	serial "github.com/jacobsa/go-serial/serial"
	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/ski_compute/internal/config"
	"github.com/relabs-tech/ski_compute/internal/gps"
)

// RunGPSProducer opens the GPS serial port, parses NMEA sentences, and
// publishes GPS fixes as JSON to the GPS topic.
func RunGPSProducer(ctx context.Context, cfg *config.Config) error {
	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDGPS)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	serialOpts := serial.OpenOptions{
		PortName:              cfg.GPSSerialPort,
		BaudRate:              uint(cfg.GPSBaudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(serialOpts)
	if err != nil {
		return fmt.Errorf("open GPS port %s: %w", cfg.GPSSerialPort, err)
	}
	log.Infof("GPS serial port opened on %s at %d baud", serialOpts.PortName, serialOpts.BaudRate)

	// Closing the port unblocks the reader on shutdown.
	go func() {
		<-ctx.Done()
		port.Close()
	}()

	publish := clientPublisher(client)
	err = streamFixes(port, cfg.DeviceID, func(f gps.Fix) error {
		return publishJSON(publish, cfg.TopicGPS, true, f)
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// streamFixes decodes NMEA lines from r and hands every valid fix to emit.
func streamFixes(r io.Reader, sourceID string, emit func(gps.Fix) error) error {
	dec := &gps.Decoder{SourceID: sourceID}
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			fix, ok, perr := dec.Feed(line)
			if perr != nil {
				// noisy GPS or partial sentences
				log.Debugf("GPS: %v", perr)
			} else if ok && fix.Valid() {
				if eerr := emit(fix); eerr != nil {
					log.Warnf("GPS publish error: %v", eerr)
				} else {
					log.Debugf("published GPS fix: lat=%.6f lon=%.6f speed=%.1fm/s", fix.Latitude, fix.Longitude, fix.Speed)
				}
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("GPS read error: %w", err)
		}
	}
}
