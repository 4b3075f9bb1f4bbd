package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/tripwire"
	"github.com/jpalmerr/tripwire/config"
)

// validateCmd validates a config file without monitoring anything.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a tripwire configuration file without fetching any page.

This command parses the YAML, expands environment variables, and validates
all fields. Selectors that do not compile are reported as warnings: at run
time they stop only their own site. It's useful for CI/CD pipelines or
pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  tripwire validate -c tripwire.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", defaultConfigFile, "path to config file")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	sites, err := config.BuildSites(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	out := cmd.OutOrStdout()
	var warnings int
	for _, s := range sites {
		if _, err := tripwire.CompileSelector(s.Selector()); err != nil {
			fmt.Fprintf(out, "Warning: site %q: %v\n", s.Name(), err)
			warnings++
		}
	}

	channels := 0
	for _, ch := range tripwire.Channels {
		for _, s := range sites {
			if hasChannel(s, ch) {
				channels++
				break
			}
		}
	}

	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Sites:         %d\n", len(sites))
	fmt.Fprintf(out, "  Channels used: %d\n", channels)
	if cfg.StatusPort != 0 {
		fmt.Fprintf(out, "  Status port:   %d\n", cfg.StatusPort)
	}
	if warnings > 0 {
		fmt.Fprintf(out, "  Warnings:      %d\n", warnings)
	}

	return nil
}

func hasChannel(s tripwire.Site, ch tripwire.Channel) bool {
	for _, c := range s.Channels() {
		if c == ch {
			return true
		}
	}
	return false
}
