// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/ski_compute/internal/app"
	"github.com/relabs-tech/ski_compute/internal/cli"
	"github.com/relabs-tech/ski_compute/internal/config"
)

func main() {
	cmd := cli.NewCommand("imu_producer", "publish MPU9250 batches and BMP280 samples (IMU, BMP → MQTT)",
		func(ctx context.Context, _ *cobra.Command, cfg *config.Config, _ []string) error {
			return app.RunIMUProducer(ctx, cfg)
		})
	cli.Execute(cmd)
}
