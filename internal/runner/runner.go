package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/mmr-tortoise/sirflow/internal/model"
)

// StatusKey is the key of the single key=value line in the status file.
const StatusKey = "SIR_RUN_EXIT_CODE"

// Runner executes a Plan step by step.
//
// Execution is strictly sequential and fail-fast: the first step that
// exits non-zero ends the run, no later step is started, and the step's
// exit code becomes the run's exit code without remapping. There are no
// retries and no timeouts.
type Runner struct {
	exec   Executor
	logger *log.Logger
}

// New creates a Runner. A nil logger discards all log output.
func New(exec Executor, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Runner{exec: exec, logger: logger}
}

// Run executes plan and returns a report of every step that ran.
//
// On failure the returned error is a *model.CLIError whose Code is the
// failing step's exit code, and report.ExitCode carries the same value.
// The status file is written right after the model step whatever its
// outcome; when an earlier step fails the model step never runs and no
// status file is written.
func (r *Runner) Run(ctx context.Context, plan *Plan) (*model.RunReport, error) {
	report := &model.RunReport{}

	for _, step := range plan.Steps {
		// A cancelled context (Ctrl-C, SIGTERM) stops the workflow between
		// steps. The step in flight has already been signalled through
		// exec.CommandContext and reports its own exit code.
		if err := ctx.Err(); err != nil {
			report.ExitCode = int(model.ExitGeneralError)
			return report, model.WrapCLIError(model.ExitGeneralError,
				fmt.Sprintf("workflow cancelled before step %s", step.Step), err)
		}

		r.logger.Info("running step", "step", step.Step, "cmd", step.String())
		if step.Dir != "" {
			r.logger.Debug("working directory", "dir", step.Dir)
		}

		// The executor blocks until the child exits. Its output goes
		// straight to the terminal and is never captured here.
		started := time.Now()
		code, execErr := r.exec.Run(ctx, step)
		result := model.StepResult{
			Step:     step.Step,
			Command:  step,
			ExitCode: code,
			Duration: time.Since(started),
		}
		report.Steps = append(report.Steps, result)

		// The status artifact is written before the exit code is checked,
		// so a failing model still leaves SIR_RUN_EXIT_CODE behind.
		if step.Step.WritesStatus() && plan.StatusFile != "" {
			if err := WriteStatus(plan.StatusFile, code); err != nil {
				// A failed model step keeps its own exit code; the write
				// error is only fatal when everything else succeeded.
				if code == 0 {
					report.ExitCode = int(model.ExitGeneralError)
					return report, model.WrapCLIError(model.ExitGeneralError,
						"failed to write status file", err)
				}
				r.logger.Warn("failed to write status file", "path", plan.StatusFile, "err", err)
			} else {
				report.StatusFile = plan.StatusFile
			}
		}

		// Fail fast: the step's exit code is returned unchanged and no
		// later step is started.
		if code != 0 {
			report.ExitCode = code
			r.logger.Error("step failed", "step", step.Step, "exit_code", code,
				"duration", result.Duration.Round(time.Millisecond))
			return report, model.WrapCLIError(model.ExitCode(code),
				fmt.Sprintf("step %s failed with exit code %d", step.Step, code), execErr)
		}

		r.logger.Info("step finished", "step", step.Step,
			"duration", result.Duration.Round(time.Millisecond))
	}

	return report, nil
}

// WriteStatus writes the one-line status artifact:
//
//	SIR_RUN_EXIT_CODE=<code>
//
// Parent directories are created as needed and an existing file is
// replaced.
func WriteStatus(path string, code int) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	line := fmt.Sprintf("%s=%d\n", StatusKey, code)
	if err := os.WriteFile(path, []byte(line), 0o644); err != nil {
		return fmt.Errorf("failed to write status file %s: %w", path, err)
	}
	return nil
}
