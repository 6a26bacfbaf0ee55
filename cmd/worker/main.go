package main

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/ski_compute/internal/app"
	"github.com/relabs-tech/ski_compute/internal/cli"
	"github.com/relabs-tech/ski_compute/internal/config"
	"github.com/relabs-tech/ski_compute/internal/store"
)

func main() {
	cmd := cli.NewCommand("worker", "calibrate IMU batches and analyze sessions from MQTT",
		func(ctx context.Context, cmd *cobra.Command, cfg *config.Config, _ []string) error {
			st := store.New()
			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return app.RunWorker(ctx, cfg, st) })
			if web, _ := cmd.Flags().GetBool("web"); web {
				g.Go(func() error { return app.RunWeb(ctx, cfg, st) })
			}
			return g.Wait()
		})
	cmd.Flags().Bool("web", false, "also serve the HTTP API over the same record store")
	cli.Execute(cmd)
}
