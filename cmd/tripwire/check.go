package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/tripwire"
	"github.com/jpalmerr/tripwire/config"
)

// checkCmd fetches each site once and prints the value its rules would see.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Fetch each site once and print its value",
	Long: `Fetch, extract and transform each configured site once and print the
resulting value. No rules are evaluated and no notifications are sent.

Use it to tune selectors and transformers before running.

Example:
  tripwire check -c tripwire.yaml
  tripwire check -c tripwire.yaml --site "GPU price"`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringP("config", "c", defaultConfigFile, "path to config file")
	checkCmd.Flags().String("site", "", "check only the named site")
}

func runCheck(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd, os.Stderr)
	if err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	sites, err := config.BuildSites(cfg)
	if err != nil {
		return fmt.Errorf("failed to build sites: %w", err)
	}

	// the status server is for run only
	cfg.StatusPort = 0

	opts := append(config.Options(cfg),
		tripwire.WithSites(sites...),
		tripwire.WithLogger(logger),
	)
	tw, err := tripwire.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create tripwire: %w", err)
	}
	defer tw.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	only, _ := cmd.Flags().GetString("site")
	return probe(ctx, tw, only, cmd.OutOrStdout())
}

// probe prints the current value of each site, or of only that site when
// only is set.
func probe(ctx context.Context, tw *tripwire.Tripwire, only string, out io.Writer) error {
	var names []string
	for _, s := range tw.Sites() {
		if only == "" || s.Name() == only {
			names = append(names, s.Name())
		}
	}
	if len(names) == 0 {
		return fmt.Errorf("unknown site %q", only)
	}

	var errs []error
	for _, name := range names {
		value, err := tw.Probe(ctx, name)
		if err != nil {
			fmt.Fprintf(out, "%s: error: %v\n", name, err)
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(out, "%s: %s\n", name, tripwire.ValueOf(value))
	}
	return errors.Join(errs...)
}
