// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// ./cmd/calibration/main.go
//
// Board-to-IMU auto calibration.
//
// The maneuver is: board flat and still, then one rotation of about 90°
// about the board's long axis, then still again. The sample batch comes
// from a file (--input), from a guided capture on the device (--capture)
// or from the synthetic maneuver (--mock).
//
// Output:
//
//	The calibration result (R_board_to_imu, installation angles, purity,
//	windows) on stdout, and in --output when given.
//
// Run:
//
//	go run ./cmd/calibration --input batch.json
//	sudo ./calibration --capture --output board_calibration.json
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/relabs-tech/ski_compute/internal/calibration"
	"github.com/relabs-tech/ski_compute/internal/cli"
	"github.com/relabs-tech/ski_compute/internal/config"
	"github.com/relabs-tech/ski_compute/internal/imu"
	"github.com/relabs-tech/ski_compute/internal/sensors"
	"github.com/relabs-tech/ski_compute/internal/synth"
)

const (
	staticMargin     = 1.5 // capture this many static windows before rotating
	rotationDuration = 4 * time.Second
	tailDuration     = 2 * time.Second
)

func main() {
	cmd := cli.NewCommand("calibration", "compute the board-to-IMU rotation from a calibration maneuver", run)
	cli.FormatFlag(cmd)
	cmd.Flags().StringP("input", "i", "", "batch JSON file, - for stdin")
	cmd.Flags().Bool("capture", false, "capture the maneuver from the IMU with console prompts")
	cmd.Flags().Bool("mock", false, "calibrate the synthetic maneuver")
	cmd.Flags().StringP("output", "o", "", "also write the result JSON to this file")
	cli.Execute(cmd)
}

func run(ctx context.Context, cmd *cobra.Command, cfg *config.Config, _ []string) error {
	batch, err := loadBatch(ctx, cmd, cfg)
	if err != nil {
		return err
	}

	cc := cfg.Calibration()
	if batch.Meta.SampleRate > 0 {
		cc.SampleRate = 0
	}
	res, err := calibration.CalibrateBatch(batch, cc)
	if err != nil {
		return err
	}
	if res.Success {
		a := res.InstallationAngles
		log.Infof("calibration: success roll=%.2f pitch=%.2f yaw=%.2f purity=%.3f", a[0], a[1], a[2], res.Purity)
	} else {
		log.Warnf("calibration: %s: %s", res.FailureReason, res.Message)
	}

	if out, _ := cmd.Flags().GetString("output"); out != "" {
		if err := writeResult(out, res); err != nil {
			return err
		}
	}
	return cli.Write(cmd, res)
}

func loadBatch(ctx context.Context, cmd *cobra.Command, cfg *config.Config) (imu.Batch, error) {
	input, _ := cmd.Flags().GetString("input")
	capture, _ := cmd.Flags().GetBool("capture")
	mock, _ := cmd.Flags().GetBool("mock")

	switch {
	case mock:
		return synth.DefaultManeuver().Batch(cfg.DeviceID), nil
	case capture:
		return guidedCapture(ctx, cfg, bufio.NewReader(cmd.InOrStdin()), cmd.OutOrStderr())
	case input == "-":
		return imu.DecodeBatch(cmd.InOrStdin())
	case input != "":
		f, err := os.Open(input)
		if err != nil {
			return imu.Batch{}, err
		}
		defer f.Close()
		return imu.DecodeBatch(f)
	}
	return imu.Batch{}, errors.New("one of --input, --capture or --mock is required")
}

// guidedCapture prompts through the maneuver while sampling the IMU.
func guidedCapture(ctx context.Context, cfg *config.Config, in *bufio.Reader, out io.Writer) (imu.Batch, error) {
	src, err := sensors.NewIMUSource(sensors.IMUOptions{
		Name:       cfg.DeviceID,
		SPIDevice:  cfg.IMUSPIDevice,
		CSPin:      cfg.IMUCSPin,
		AccelRange: cfg.IMUAccelRange,
		GyroRange:  cfg.IMUGyroRange,
	})
	if err != nil {
		return imu.Batch{}, err
	}
	interval := time.Duration(cfg.IMUSampleInterval) * time.Millisecond
	staticDuration := time.Duration(float64(cfg.CalibStaticWindow)*staticMargin) * interval

	fmt.Fprintln(out, "=== Board calibration ===")
	fmt.Fprintln(out, "Step 1/2: place the board flat on the floor and do not touch it.")
	waitEnter(in, out, "Press ENTER to start capture...")

	var rows [][]float64
	capture := func(d time.Duration) error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		deadline := time.Now().Add(d)
		for time.Now().Before(deadline) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				raw, err := src.ReadRaw()
				if err != nil {
					log.Warnf("calibration: IMU read error: %v", err)
					continue
				}
				rows = append(rows, raw.Row(cfg.IMUAccelRange, cfg.IMUGyroRange))
			}
		}
		return nil
	}

	if err := capture(staticDuration); err != nil {
		return imu.Batch{}, err
	}
	fmt.Fprintf(out, "Step 2/2: roll the board about its long axis by about 90° within %s, then hold it still.\n", rotationDuration)
	if err := capture(rotationDuration + tailDuration); err != nil {
		return imu.Batch{}, err
	}
	fmt.Fprintf(out, "Captured %d samples.\n", len(rows))

	return imu.NewBatch(cfg.DeviceID, cfg.IMUSampleRate(), rows), nil
}

func writeResult(path string, res calibration.Result) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal calibration result: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write calibration file: %w", err)
	}
	log.Infof("calibration: saved result to %s", path)
	return nil
}

func waitEnter(in *bufio.Reader, out io.Writer, prompt string) {
	fmt.Fprint(out, prompt)
	_, _ = in.ReadString('\n')
}
