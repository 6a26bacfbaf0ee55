package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/ski_compute/internal/app"
	"github.com/relabs-tech/ski_compute/internal/calibration"
	"github.com/relabs-tech/ski_compute/internal/cli"
	"github.com/relabs-tech/ski_compute/internal/config"
	"github.com/relabs-tech/ski_compute/internal/gps"
)

func main() {
	cmd := cli.NewCommand("analyze [session.json ...]", "extract turns and edge metrics from recorded sessions", run)
	cmd.Long = `analyze reads one or more session files ({"imu": batch, "baro": [...], "gps": [...]})
and prints one report per session. Sessions are analyzed concurrently.
A GPS track from an NMEA log (--nmea) or a FIT activity (--fit) replaces
the gps field of every session. --calibration applies the R_board_to_imu
of a stored calibration result.`
	cmd.Example = `  analyze --calibration result.json run1.json run2.json
  analyze --fit morning.fit --format yaml run1.json`
	cmd.Args = cobra.MinimumNArgs(1)
	cli.FormatFlag(cmd)
	cmd.Flags().String("calibration", "", "calibration result JSON providing R_board_to_imu")
	cmd.Flags().String("nmea", "", "NMEA log with the GPS track")
	cmd.Flags().String("fit", "", "FIT activity file with the GPS track")
	cli.Execute(cmd)
}

func run(ctx context.Context, cmd *cobra.Command, cfg *config.Config, args []string) error {
	acfg := cfg.Analysis()
	if path, _ := cmd.Flags().GetString("calibration"); path != "" {
		res, err := readCalibration(path)
		if err != nil {
			return err
		}
		acfg.Calibration = res.RotationMatrix
	}

	track, err := readTrack(cmd, cfg.DeviceID)
	if err != nil {
		return err
	}

	reports := make([]app.SessionReport, len(args))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, path := range args {
		i, path := i, path
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			req, err := readSession(path)
			if err != nil {
				return err
			}
			if track != nil {
				req.GPS = track
			}
			report, err := app.Analyze(req, acfg, nil)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			if report.DeviceID == "" {
				report.DeviceID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			}
			log.Infof("analyze: %s: %d segments, %d turns", path, len(report.Segments), report.TurnCount)
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if len(reports) == 1 {
		return cli.Write(cmd, reports[0])
	}
	return cli.Write(cmd, reports)
}

func readSession(path string) (app.SessionRequest, error) {
	f, err := os.Open(path)
	if err != nil {
		return app.SessionRequest{}, err
	}
	defer f.Close()
	var req app.SessionRequest
	if err := json.NewDecoder(f).Decode(&req); err != nil {
		return app.SessionRequest{}, fmt.Errorf("%s: %w", path, err)
	}
	return req, nil
}

func readCalibration(path string) (calibration.Result, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return calibration.Result{}, err
	}
	var res calibration.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return calibration.Result{}, fmt.Errorf("%s: %w", path, err)
	}
	if !res.Success || res.RotationMatrix == nil {
		return calibration.Result{}, fmt.Errorf("%s: calibration did not succeed (%s)", path, res.FailureReason)
	}
	return res, nil
}

func readTrack(cmd *cobra.Command, sourceID string) (gps.Track, error) {
	nmeaPath, _ := cmd.Flags().GetString("nmea")
	fitPath, _ := cmd.Flags().GetString("fit")
	switch {
	case nmeaPath != "" && fitPath != "":
		return nil, fmt.Errorf("--nmea and --fit are exclusive")
	case nmeaPath != "":
		f, err := os.Open(nmeaPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		track, bad, err := gps.ReadNMEA(f, sourceID)
		if err != nil {
			return nil, err
		}
		if bad > 0 {
			log.Warnf("analyze: %s: skipped %d malformed sentences", nmeaPath, bad)
		}
		return track, nil
	case fitPath != "":
		f, err := os.Open(fitPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return gps.ReadFIT(f, sourceID)
	}
	return nil, nil
}
