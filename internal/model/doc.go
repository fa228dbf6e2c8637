// Package model defines the domain types and value objects for the
// sirflow CLI.
//
// This package contains pure data structures with no external dependencies.
// RunParams carries the region/date triple, Command and StepResult describe
// the linear workflow, and ImageInfo describes images built for
// containerized runs.
//
// The package also defines exit codes (ExitCode) and a custom error type
// (CLIError) that carries exit codes for proper OS process exit handling.
package model
