package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/ski_compute/internal/app"
	"github.com/relabs-tech/ski_compute/internal/cli"
	"github.com/relabs-tech/ski_compute/internal/config"
)

func main() {
	cmd := cli.NewCommand("producer", "publish synthetic calibration batches and sessions (mock → MQTT)",
		func(ctx context.Context, cmd *cobra.Command, cfg *config.Config, _ []string) error {
			interval, _ := cmd.Flags().GetDuration("interval")
			return app.RunMockProducer(ctx, cfg, interval)
		})
	cmd.Flags().Duration("interval", 30*time.Second, "time between synthetic sessions")
	cli.Execute(cmd)
}
