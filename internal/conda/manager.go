// Package conda builds the commands that bootstrap an isolated Python
// environment and run the model inside it.
//
// Design decisions:
//   - We shell out to the conda CLI rather than manipulating environment
//     directories directly, so the user's conda configuration (channels,
//     envs_dirs, proxies) applies exactly as it does in their terminal.
//   - Mutating operations are returned as model.Command values instead of
//     being executed here. The runner package executes them in order and
//     owns the fail-fast policy.
//   - Read-only queries (EnvExists) run immediately and wrap failures in
//     model.CLIError.
package conda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/mmr-tortoise/sirflow/internal/model"
)

// DefaultBinary is the conda executable used when none is configured.
const DefaultBinary = "conda"

// outputFunc runs a command and returns its stdout. It is a field on
// Manager so tests can substitute canned conda output.
type outputFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Manager builds conda invocations for a single conda binary.
type Manager struct {
	binary string
	output outputFunc
}

// NewManager creates a Manager for the given conda-compatible binary
// (conda, mamba or micromamba). An empty binary means DefaultBinary.
func NewManager(binary string) *Manager {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Manager{binary: binary, output: runOutput}
}

// Binary returns the executable this Manager invokes.
func (m *Manager) Binary() string {
	return m.binary
}

// CreateEnvCommand returns the command that creates a new environment
// with the requested interpreter version:
//
//	conda create -y -n <name> python=<version>
//
// Creating an environment that already exists is rejected by conda
// itself; see EnvExists for the reuse path.
func (m *Manager) CreateEnvCommand(name, pythonVersion string) model.Command {
	return model.Command{
		Step: model.StepCreateEnv,
		Name: m.binary,
		Args: []string{"create", "-y", "-n", name, "python=" + pythonVersion},
	}
}

// UpgradePipCommand returns the command that upgrades pip inside the
// environment before the package is installed.
func (m *Manager) UpgradePipCommand(name string) model.Command {
	return model.Command{
		Step: model.StepUpgradePip,
		Name: m.binary,
		Args: m.inEnv(name, "python", "-m", "pip", "install", "--upgrade", "pip"),
	}
}

// InstallCommand returns the command that installs the package at pkgDir
// in editable (development) mode, so source edits take effect without a
// reinstall.
func (m *Manager) InstallCommand(name, pkgDir, workDir string) model.Command {
	return model.Command{
		Step: model.StepInstallPackage,
		Name: m.binary,
		Args: m.inEnv(name, "python", "-m", "pip", "install", "-e", pkgDir),
		Dir:  workDir,
	}
}

// RunScriptCommand returns the command that runs the model entry point
// inside the environment:
//
//	conda run --no-capture-output -n <name> python <script> <args...>
//
// --no-capture-output lets the model's stdout and stderr reach the
// terminal as it runs instead of being buffered by conda.
func (m *Manager) RunScriptCommand(name, script, workDir string, args []string) model.Command {
	inner := make([]string, 0, len(args)+2)
	inner = append(inner, "python", script)
	inner = append(inner, args...)

	return model.Command{
		Step: model.StepInvokeModel,
		Name: m.binary,
		Args: m.inEnv(name, inner...),
		Dir:  workDir,
	}
}

// inEnv prefixes argv with "run --no-capture-output -n <name>".
func (m *Manager) inEnv(name string, argv ...string) []string {
	args := make([]string, 0, len(argv)+4)
	args = append(args, "run", "--no-capture-output", "-n", name)
	return append(args, argv...)
}

// envList mirrors the JSON printed by `conda env list --json`.
type envList struct {
	Envs []string `json:"envs"`
}

// EnvExists reports whether an environment called name is known to conda.
//
// It runs `conda env list --json`, which prints the absolute prefix of
// every environment. Named environments live under an "envs" directory,
// so a prefix matches when its last path element equals name. The root
// prefix (the first entry) is conda's "base" environment.
func (m *Manager) EnvExists(ctx context.Context, name string) (bool, error) {
	out, err := m.output(ctx, m.binary, "env", "list", "--json")
	if err != nil {
		return false, err
	}

	prefixes, err := parseEnvList(out)
	if err != nil {
		return false, model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("failed to parse `%s env list --json` output", m.binary), err)
	}

	for i, p := range prefixes {
		if i == 0 && name == "base" {
			return true, nil
		}
		if filepath.Base(p) == name && filepath.Base(filepath.Dir(p)) == "envs" {
			return true, nil
		}
	}
	return false, nil
}

// parseEnvList extracts the environment prefixes from conda's JSON output.
func parseEnvList(out []byte) ([]string, error) {
	var list envList
	if err := json.Unmarshal(out, &list); err != nil {
		return nil, err
	}
	return list.Envs, nil
}

// runOutput executes a command and returns its stdout.
//
// It captures stdout and stderr separately so stderr can be included in
// error messages while stdout is returned on success. A binary that
// cannot be found is reported with ExitCommandNotFound; any other failure
// carries the command's own exit code.
func runOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	// #nosec G204 -- args are constructed internally from validated config
	cmd := exec.CommandContext(ctx, name, args...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		message := fmt.Sprintf("%s %s failed", name, strings.Join(args, " "))
		if s := strings.TrimSpace(stderr.String()); s != "" {
			message = fmt.Sprintf("%s: %s", message, s)
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, model.WrapCLIError(model.ExitCode(exitErr.ExitCode()), message, err)
		}
		return nil, model.WrapCLIError(model.ExitCommandNotFound, message, err)
	}

	return []byte(stdout.String()), nil
}
