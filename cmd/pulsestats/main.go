// Package main is the entry point for the pulsestats CLI.
//
// pulsestats can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	pulsestats run -c config.yaml      # Start polling
//	pulsestats validate -c config.yaml # Validate configuration
//	pulsestats version                 # Show version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "pulsestats",
	Short: "Staggered social profile metrics poller",
	Long: `pulsestats polls a fixed list of social profiles for public metrics
(followers, following, posts) and writes every capture to InfluxDB or
PostgreSQL.

Polls are spread evenly over the configured cycle, so N profiles with a
one hour cycle are fetched one every 60/N minutes rather than all at once.

Quick start:
  1. Create a config file (pulsestats.yaml)
  2. Run: pulsestats validate -c pulsestats.yaml
  3. Run: pulsestats run -c pulsestats.yaml

Example config:
  identifiers: [alice, bob, carol]
  cycle_duration: 1h
  jitter: 30s
  fetch:
    cookie: ${IG_COOKIE}
    app_id: ${IG_APP_ID}
  sink:
    type: influx
    url: ${INFLUX_URL}
    token: ${INFLUX_TOKEN}
    org: acme
    bucket: profiles`,
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
	Long:  `Print the version, commit hash, and build date of this pulsestats binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pulsestats %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
