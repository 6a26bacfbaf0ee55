package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/relabs-tech/ski_compute/internal/config"
)

type point struct {
	Name string  `json:"name" yaml:"name"`
	X    float64 `json:"x" yaml:"x"`
}

func newTestCmd(format string) (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{Use: "test"}
	FormatFlag(cmd)
	if format != "" {
		_ = cmd.Flags().Set("format", format)
	}
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	return cmd, &buf
}

func TestWrite(t *testing.T) {
	cmd, buf := newTestCmd("")
	if err := Write(cmd, point{Name: "a", X: 1.5}); err != nil {
		t.Fatalf("json: %v", err)
	}
	if got, want := buf.String(), "{\n  \"name\": \"a\",\n  \"x\": 1.5\n}\n"; got != want {
		t.Fatalf("json got=%q want=%q", got, want)
	}

	cmd, buf = newTestCmd("yaml")
	if err := Write(cmd, point{Name: "a", X: 1.5}); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if got, want := buf.String(), "name: a\nx: 1.5\n"; got != want {
		t.Fatalf("yaml got=%q want=%q", got, want)
	}

	cmd, _ = newTestCmd("xml")
	if err := Write(cmd, point{}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestConfigPath(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cmd := &cobra.Command{Use: "test"}
	CommonFlags(cmd)
	t.Setenv(config.EnvPrefix+"_CONFIG", "")

	if got := configPath(cmd); got != "" {
		t.Fatalf("no file: got=%q want empty", got)
	}

	if err := os.WriteFile(filepath.Join(dir, config.DefaultPath), []byte("DEVICE_ID=x\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if got := configPath(cmd); got != config.DefaultPath {
		t.Fatalf("default file: got=%q want=%q", got, config.DefaultPath)
	}

	t.Setenv(config.EnvPrefix+"_CONFIG", "/etc/ski.txt")
	if got := configPath(cmd); got != "/etc/ski.txt" {
		t.Fatalf("env: got=%q", got)
	}

	_ = cmd.Flags().Set("config", "flag.txt")
	if got := configPath(cmd); got != "flag.txt" {
		t.Fatalf("flag: got=%q", got)
	}
}

func TestPrintConfig(t *testing.T) {
	called := false
	cmd := NewCommand("test", "test", func(context.Context, *cobra.Command, *config.Config, []string) error {
		called = true
		return nil
	})
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--config", writeConfig(t, "DEVICE_ID=board-cli\n"), "--print-config"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if called {
		t.Fatalf("run called with --print-config")
	}
	if !strings.Contains(buf.String(), "board-cli") {
		t.Fatalf("dump missing device id:\n%s", buf.String())
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ski_config.txt")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}
