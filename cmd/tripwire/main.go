// Package main is the entry point for the tripwire CLI.
//
// Tripwire can be used either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	tripwire run -c tripwire.yaml       # Monitor every configured site
//	tripwire check -c tripwire.yaml     # Fetch each site once and print its value
//	tripwire validate -c tripwire.yaml  # Validate configuration
//	tripwire version                    # Show version info
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/tripwire"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigFile = "tripwire.yaml"

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "tripwire",
	Short: "Watch web pages and get notified when values change",
	Long: `Tripwire periodically fetches web pages, extracts a value with a CSS
selector, and notifies you over ntfy, Telegram, email or Kafka when the
value changes in a way your rules care about.

Quick start:
  1. Create a config file (tripwire.yaml)
  2. Check the extracted values: tripwire check -c tripwire.yaml
  3. Run: tripwire run -c tripwire.yaml

Example config:
  ntfy:
    topic: my-alerts
  sites:
    - name: GPU price
      url: https://shop.example.com/gpu
      interval: 30m
      selector: span.price
      rules: [on_decrease]
      notifiers: [ntfy]`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this tripwire binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "tripwire %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	tripwire.Version = version

	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn or error")
	rootCmd.PersistentFlags().String("log-format", "json", "log format: json or text")

	rootCmd.AddCommand(versionCmd)
}

// newLogger creates a logger on w from the --log-level and --log-format flags.
func newLogger(cmd *cobra.Command, w io.Writer) (*slog.Logger, error) {
	levelName, _ := cmd.Flags().GetString("log-level")
	format, _ := cmd.Flags().GetString("log-format")

	var level slog.Level
	if err := level.UnmarshalText([]byte(levelName)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", levelName)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid --log-format %q (expected json or text)", format)
	}
}
