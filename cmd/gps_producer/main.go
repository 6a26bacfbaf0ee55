package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/ski_compute/internal/app"
	"github.com/relabs-tech/ski_compute/internal/cli"
	"github.com/relabs-tech/ski_compute/internal/config"
)

func main() {
	cli.Execute(cli.NewCommand("gps_producer", "publish NMEA GPS fixes (serial → MQTT)",
		func(ctx context.Context, _ *cobra.Command, cfg *config.Config, _ []string) error {
			return app.RunGPSProducer(ctx, cfg)
		}))
}
