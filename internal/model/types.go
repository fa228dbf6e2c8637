// Package model defines the domain types for the sirflow CLI.
//
// All entities in this package are transient: a run is described by
// RunParams, turned into a sequence of Commands, and summarized by a
// RunReport. Nothing here is persisted except the one-line status
// artifact written by the runner package.
package model

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the ISO-8601 calendar date layout accepted for the
// --start and --end parameters (e.g. "2020-03-05").
const DateLayout = "2006-01-02"

// RunParams is the (region, start, end) triple passed to the external
// model entry point. It is constructed once per invocation and never
// mutated afterwards.
type RunParams struct {
	// Region is a free-form region identifier, typically a two-letter
	// US state code such as "PA".
	Region string

	// Start is the first day of the simulated window.
	Start time.Time

	// End is the last day of the simulated window.
	End time.Time
}

// ParseRunParams validates the raw string triple and converts it to
// RunParams. The region must be non-empty after trimming whitespace,
// both dates must parse as YYYY-MM-DD, and end must not precede start.
//
// All problems are reported at once so the user can fix them in a
// single round trip.
func ParseRunParams(region, start, end string) (RunParams, error) {
	var problems []string

	region = strings.TrimSpace(region)
	if region == "" {
		problems = append(problems, "region code must not be empty")
	}

	startDate, err := time.Parse(DateLayout, strings.TrimSpace(start))
	if err != nil {
		problems = append(problems, fmt.Sprintf("start date %q is not a YYYY-MM-DD date", start))
	}

	endDate, err2 := time.Parse(DateLayout, strings.TrimSpace(end))
	if err2 != nil {
		problems = append(problems, fmt.Sprintf("end date %q is not a YYYY-MM-DD date", end))
	}

	if err == nil && err2 == nil && endDate.Before(startDate) {
		problems = append(problems, fmt.Sprintf("end date %s is before start date %s",
			endDate.Format(DateLayout), startDate.Format(DateLayout)))
	}

	if len(problems) > 0 {
		return RunParams{}, fmt.Errorf("invalid run parameters: %s", strings.Join(problems, "; "))
	}

	return RunParams{Region: region, Start: startDate, End: endDate}, nil
}

// StartString returns the start date formatted as YYYY-MM-DD.
func (p RunParams) StartString() string {
	return p.Start.Format(DateLayout)
}

// EndString returns the end date formatted as YYYY-MM-DD.
func (p RunParams) EndString() string {
	return p.End.Format(DateLayout)
}

// Args returns the argument list for the model entry point:
//
//	<REGION> --start <YYYY-MM-DD> --end <YYYY-MM-DD>
//
// The result depends only on the receiver, so two equal RunParams
// always produce byte-identical argument lists.
func (p RunParams) Args() []string {
	return []string{p.Region, "--start", p.StartString(), "--end", p.EndString()}
}

// StepName identifies one stage of the linear workflow.
type StepName string

const (
	// StepCreateEnv creates the isolated conda environment.
	StepCreateEnv StepName = "create-env"

	// StepUpgradePip upgrades the package manager inside the environment.
	StepUpgradePip StepName = "upgrade-pip"

	// StepInstallPackage installs the local package in editable mode.
	StepInstallPackage StepName = "install-package"

	// StepInvokeModel runs the external model entry point.
	StepInvokeModel StepName = "invoke-model"

	// StepBuildImage builds the Docker image from a Dockerfile.
	StepBuildImage StepName = "build-image"

	// StepRunContainer runs the workflow inside a fresh container.
	StepRunContainer StepName = "run-container"
)

// String returns the string representation of StepName.
func (s StepName) String() string {
	return string(s)
}

// IsValid reports whether s is one of the predefined step names.
func (s StepName) IsValid() bool {
	switch s {
	case StepCreateEnv, StepUpgradePip, StepInstallPackage,
		StepInvokeModel, StepBuildImage, StepRunContainer:
		return true
	default:
		return false
	}
}

// WritesStatus reports whether the status artifact is written after
// this step completes. Only the step that actually runs the model
// (directly or inside a container) produces a status line.
func (s StepName) WritesStatus() bool {
	return s == StepInvokeModel || s == StepRunContainer
}

// Command is a single subprocess invocation within the workflow.
type Command struct {
	// Step is the workflow stage this command implements.
	Step StepName

	// Name is the executable to run (e.g., "conda", "docker").
	Name string

	// Args are the arguments passed to the executable, not including Name.
	Args []string

	// Dir is the working directory. Empty means the current directory.
	Dir string

	// Env holds extra environment variables added on top of the
	// inherited process environment, in KEY=VALUE form.
	Env []string
}

// Argv returns Name followed by Args.
func (c Command) Argv() []string {
	argv := make([]string, 0, len(c.Args)+1)
	argv = append(argv, c.Name)
	return append(argv, c.Args...)
}

// String returns a space-joined rendering of the command for logs.
// It does not quote; use runner.Quote for a shell-safe rendering.
func (c Command) String() string {
	return strings.Join(c.Argv(), " ")
}

// StepResult records the outcome of one executed Command.
type StepResult struct {
	Step     StepName
	Command  Command
	ExitCode int
	Duration time.Duration
}

// Succeeded reports whether the step exited with code 0.
func (r StepResult) Succeeded() bool {
	return r.ExitCode == 0
}

// RunReport summarizes a workflow execution.
type RunReport struct {
	// Steps contains one entry per executed step, in execution order.
	// Steps that were never reached because an earlier one failed are absent.
	Steps []StepResult

	// ExitCode is the process exit code for the whole workflow: 0 on
	// success, otherwise the exit code of the first failing step.
	ExitCode int

	// StatusFile is the path of the status artifact, or empty if none
	// was written.
	StatusFile string
}

// FailedStep returns the first step with a non-zero exit code.
func (r *RunReport) FailedStep() (StepResult, bool) {
	for _, s := range r.Steps {
		if !s.Succeeded() {
			return s, true
		}
	}
	return StepResult{}, false
}

// ImageInfo describes a Docker image built by sirflow, reconstructed
// from the labels stamped on it at build time.
type ImageInfo struct {
	ID        string
	Tags      []string
	Region    string
	Start     string
	End       string
	CreatedAt time.Time
	Size      int64
}

// ExitCode defines the process exit codes produced by sirflow itself.
// Exit codes of failing sub-steps are propagated verbatim and may take
// any value outside this list.
type ExitCode int

const (
	// ExitSuccess indicates the workflow completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitInvalidConfig indicates the configuration failed validation
	// before any step was started.
	ExitInvalidConfig ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon is not accessible.
	ExitDockerNotRunning ExitCode = 3

	// ExitUserCancelled indicates the user cancelled an interactive prompt.
	ExitUserCancelled ExitCode = 7

	// ExitCommandNotFound indicates a step's executable could not be
	// started. 127 matches the shell convention for "command not found".
	ExitCommandNotFound ExitCode = 127
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
