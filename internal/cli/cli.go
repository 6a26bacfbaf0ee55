// Package cli holds the cobra plumbing shared by the cmd/ binaries.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/ski_compute/internal/config"
)

// RunFunc is the body of a command, called with the loaded configuration
// and a context cancelled on SIGINT/SIGTERM.
type RunFunc func(ctx context.Context, cmd *cobra.Command, cfg *config.Config, args []string) error

// CommonFlags registers the flags every binary understands.
func CommonFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "path to configuration file (default "+config.DefaultPath+" when present)")
	cmd.Flags().Bool("debug", false, "toggle debug logging")
	cmd.Flags().Bool("print-config", false, "print the effective configuration as YAML and exit")
}

// configPath resolves --config, then SKI_CONFIG, then the default file.
func configPath(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return p
	}
	if p := os.Getenv(config.EnvPrefix + "_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat(config.DefaultPath); err == nil {
		return config.DefaultPath
	}
	log.Debugln("no config file found, using defaults and environment")
	return ""
}

func setLevel(cmd *cobra.Command, cfg *config.Config) {
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		log.SetLevel(log.DebugLevel)
		return
	}
	lvl, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Warnf("invalid log level %q, using info", cfg.LogLevel)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

// NewCommand builds a root command that loads the configuration before
// calling run.
func NewCommand(use, short string, run RunFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:          use,
		Short:        short,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath(cmd)
			if err := config.InitGlobal(path); err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg := config.Get()
			setLevel(cmd, cfg)

			if show, _ := cmd.Flags().GetBool("print-config"); show {
				out, err := cfg.Dump()
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), out)
				return nil
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cmd, cfg, args)
		},
	}
	CommonFlags(cmd)
	return cmd
}

// Execute runs cmd and exits non-zero on error.
func Execute(cmd *cobra.Command) {
	if err := cmd.Execute(); err != nil {
		log.Errorf("fatal: %v", err)
		os.Exit(1)
	}
}

// FormatFlag registers --format.
func FormatFlag(cmd *cobra.Command) {
	cmd.Flags().String("format", "json", "output format: json or yaml")
}

// Write renders v in the format selected by --format.
func Write(cmd *cobra.Command, v any) error {
	format, _ := cmd.Flags().GetString("format")
	out := cmd.OutOrStdout()
	switch format {
	case "json", "":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
