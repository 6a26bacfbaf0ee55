package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/ski_compute/internal/app"
	"github.com/relabs-tech/ski_compute/internal/cli"
	"github.com/relabs-tech/ski_compute/internal/config"
)

func main() {
	cli.Execute(cli.NewCommand("display", "show calibration and turn status on the SSD1306 OLED",
		func(ctx context.Context, _ *cobra.Command, cfg *config.Config, _ []string) error {
			return app.RunDisplay(ctx, cfg)
		}))
}
