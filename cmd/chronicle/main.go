// chronicle is the command-line interface for the chronicle event store.
//
// Usage:
//
//	chronicle <command> [flags]
//
// Commands:
//
//	init        Write a chronicle.yaml configuration file
//	migrate     Create the event store schema
//	stream      Inspect and append to event streams
//	types       List the registered event types
//	diagnose    Run diagnostic checks on your setup
//	version     Show version information
//
// Examples:
//
//	# Use a local SQLite file
//	chronicle init --driver sqlite --url events.db
//	chronicle migrate
//
//	# Inspect a consent record
//	chronicle stream show 0b4c2f7e-5d1a-4f7e-9a34-3f3b8f1d2c10
//
//	# Trace every storage call to stderr
//	chronicle --trace stream version 0b4c2f7e-5d1a-4f7e-9a34-3f3b8f1d2c10
package main

import (
	"os"

	"github.com/havenhq/chronicle/cli/commands"
)

// Build information (set via ldflags)
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	commands.Version = version
	commands.Commit = commit
	commands.BuildDate = buildDate

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
