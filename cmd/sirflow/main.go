// Package main is the entry point for the sirflow CLI.
//
// This binary bootstraps a conda environment, installs the SIR model
// package and runs the model for one region and date range, optionally
// inside a Docker image. It delegates all functionality to the
// internal/cli package, which defines cobra commands.
//
// Build-time variables (version, commit, date) are injected via ldflags
// by GoReleaser during the release process. During development, they
// default to "dev", "none", and "unknown" respectively.
package main

import (
	"github.com/mmr-tortoise/sirflow/internal/cli"
)

// version, commit, and date are set by GoReleaser at build time
// via ldflags. They provide binary identification
// for the --version flag output.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Inject build-time version info into the CLI package.
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	// Execute handles error formatting and exit codes, including the
	// verbatim exit code of a failed workflow step.
	rootCmd := cli.NewRootCommand()
	cli.Execute(rootCmd)
}
