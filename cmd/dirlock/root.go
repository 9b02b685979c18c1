package main

import (
	"github.com/spf13/cobra"
)

var (
	configPath  string
	logLevel    string
	logFormat   string
	metricsFile string
)

func buildRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dirlock",
		Short: "Run commands with exclusive access to a directory",
		Long: `dirlock serializes work on a directory across threads and processes.

The lock is an advisory lock on a sibling file named after the directory:
/srv/data is guarded by /srv/data.lock. Every dirlock caller, and every
program using the same convention, waits for the current holder to finish.

Commands:
  exec    Runs a command while holding the directory lock
  status  Reports whether the directory lock is currently held
  path    Prints the lock file path for a directory

Examples:
  # Run a build with the cache directory locked
	  dirlock exec ~/.cache/build -- make all

  # Run a shell pipeline inside a subdirectory of the locked directory
	  dirlock exec --shell --workdir out /srv/data -- 'sort raw.txt > sorted.txt'

  # Check whether somebody holds the lock
	  dirlock status /srv/data

Configuration:
  Settings are read from .dirlock.yaml in the working directory, or from the
  file given with --config. Flags override file settings.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default .dirlock.yaml if present)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: auto, console, json")
	cmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file after the command")

	return cmd
}
