package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/mmr-tortoise/sirflow/internal/model"
)

// Executor runs a single Command to completion.
//
// Run returns the command's exit code. A non-zero exit is a result, not an
// error: err is only set when the process could not be started or waited
// on, in which case the exit code follows shell conventions (127 for a
// command that cannot be started).
type Executor interface {
	Run(ctx context.Context, cmd model.Command) (int, error)
}

// ExecExecutor runs commands as child processes via os/exec.
//
// The child's output is passed straight through; the workflow never
// inspects stdout or stderr.
type ExecExecutor struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecExecutor returns an ExecExecutor wired to the current process's
// standard streams.
func NewExecExecutor() *ExecExecutor {
	return &ExecExecutor{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run implements Executor.
func (e *ExecExecutor) Run(ctx context.Context, cmd model.Command) (int, error) {
	// #nosec G204 -- commands are built internally from validated config
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdin = e.Stdin
	c.Stdout = e.Stdout
	c.Stderr = e.Stderr

	// Extra variables are appended after the inherited environment so
	// they win over any inherited value with the same name.
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	err := c.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitCodeOf(exitErr), nil
	}

	// The process never started: missing binary, bad working directory,
	// permission denied.
	return int(model.ExitCommandNotFound), err
}

// exitCodeOf returns the exit code of a finished process. A process killed
// by a signal reports 128+signal, as a POSIX shell would.
func exitCodeOf(exitErr *exec.ExitError) int {
	if code := exitErr.ExitCode(); code >= 0 {
		return code
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return int(model.ExitGeneralError)
}
