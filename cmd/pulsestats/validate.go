package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pulsestats"
	"github.com/jpalmerr/pulsestats/config"
)

// validateCmd validates a config file without starting.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a pulsestats configuration file without starting.

This command parses the YAML, expands environment variables, and validates
all fields. It does not contact the profile endpoint or the sink. It's useful
for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  pulsestats validate -c config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ps, err := pulsestats.New(config.BuildOptions(cfg, nil)...)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Identifiers: %d (%s)\n", len(ps.Identifiers()), strings.Join(ps.Identifiers(), ", "))
	fmt.Printf("  Cycle:       %s\n", ps.CycleDuration())
	fmt.Printf("  Cadence:     %s\n", ps.Cadence())
	fmt.Printf("  Jitter:      %s\n", ps.Jitter())
	fmt.Printf("  Sink:        %s\n", ps.SinkType())

	return nil
}
