// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/relabs-tech/ski_compute/internal/app"
	"github.com/relabs-tech/ski_compute/internal/cli"
	"github.com/relabs-tech/ski_compute/internal/config"
	"github.com/relabs-tech/ski_compute/internal/store"
)

func main() {
	cmd := cli.NewCommand("web", "serve the calibration and session analysis API",
		func(ctx context.Context, _ *cobra.Command, cfg *config.Config, _ []string) error {
			log.Infof("starting ski_compute web server on port %d", cfg.WebServerPort)
			return app.RunWeb(ctx, cfg, store.New())
		})
	cli.Execute(cmd)
}
