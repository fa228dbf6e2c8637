package config

import (
	"fmt"
	"strings"

	"github.com/mmr-tortoise/sirflow/internal/model"
)

// Workflow is the explicit configuration for one sirflow run. It is
// resolved once by Load and passed whole into the runner.
type Workflow struct {
	// Region is the region code passed positionally to the model.
	Region string `mapstructure:"state" json:"state" yaml:"state"`

	// Start and End are the raw YYYY-MM-DD dates; Params validates them.
	Start string `mapstructure:"start" json:"start" yaml:"start"`
	End   string `mapstructure:"end" json:"end" yaml:"end"`

	// StatusFile is where the one-line status artifact is written.
	// Empty disables the artifact.
	StatusFile string `mapstructure:"status_file" json:"status_file" yaml:"status_file"`

	Conda     CondaConfig     `mapstructure:"conda" json:"conda" yaml:"conda"`
	Model     ModelConfig     `mapstructure:"model" json:"model" yaml:"model"`
	Container ContainerConfig `mapstructure:"container" json:"container" yaml:"container"`
}

// CondaConfig describes the isolated Python environment.
type CondaConfig struct {
	// Binary is the conda executable (conda, mamba, micromamba...).
	Binary string `mapstructure:"binary" json:"binary" yaml:"binary"`

	// EnvName is the name of the environment to create and run in.
	EnvName string `mapstructure:"env" json:"env" yaml:"env"`

	// Python is the interpreter version requested at creation, e.g. "3.6".
	Python string `mapstructure:"python" json:"python" yaml:"python"`

	// PackageDir is the local package installed in editable mode.
	PackageDir string `mapstructure:"package_dir" json:"package_dir" yaml:"package_dir"`

	// UpgradePip adds a package-manager upgrade step before installing.
	UpgradePip bool `mapstructure:"upgrade_pip" json:"upgrade_pip" yaml:"upgrade_pip"`

	// ReuseEnv skips environment creation when an environment with
	// EnvName already exists.
	ReuseEnv bool `mapstructure:"reuse_env" json:"reuse_env" yaml:"reuse_env"`
}

// ModelConfig locates the external model entry point.
type ModelConfig struct {
	// Script is the entry point path, relative to WorkDir.
	Script string `mapstructure:"script" json:"script" yaml:"script"`

	// WorkDir is the directory the model and install steps run in.
	WorkDir string `mapstructure:"workdir" json:"workdir" yaml:"workdir"`
}

// ContainerConfig holds the optional Docker build-and-run parameters.
type ContainerConfig struct {
	Enabled    bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	Dockerfile string `mapstructure:"dockerfile" json:"dockerfile" yaml:"dockerfile"`
	Context    string `mapstructure:"context" json:"context" yaml:"context"`
	BaseImage  string `mapstructure:"base_image" json:"base_image" yaml:"base_image"`
	Repo       string `mapstructure:"repo" json:"repo" yaml:"repo"`
	Name       string `mapstructure:"name" json:"name" yaml:"name"`
	Tag        string `mapstructure:"tag" json:"tag" yaml:"tag"`

	// RunCommand replaces the in-container workflow script when set.
	// It is split into words with POSIX shell rules.
	RunCommand string `mapstructure:"run_cmd" json:"run_cmd" yaml:"run_cmd"`

	// RunExtraArgs are extra `docker run` arguments, e.g.
	// "--env FOO=bar --memory 4g", split with POSIX shell rules.
	RunExtraArgs string `mapstructure:"run_cmd_extra" json:"run_cmd_extra" yaml:"run_cmd_extra"`
}

// Default returns the built-in configuration. Region and dates have no
// default and must come from the user.
func Default() Workflow {
	return Workflow{
		StatusFile: "tmp-run-env.out",
		Conda: CondaConfig{
			Binary:     "conda",
			EnvName:    "sir",
			Python:     "3.6",
			PackageDir: ".",
		},
		Model: ModelConfig{
			Script:  "scripts/run_sir.py",
			WorkDir: ".",
		},
		Container: ContainerConfig{
			Dockerfile: "Dockerfile",
			Context:    ".",
			BaseImage:  "ubuntu:20.04",
			Repo:       "local",
			Name:       "sir-model",
			Tag:        "latest",
		},
	}
}

// Params validates and returns the region/date triple.
func (w *Workflow) Params() (model.RunParams, error) {
	return model.ParseRunParams(w.Region, w.Start, w.End)
}

// Validate checks the whole configuration before any step is started.
// Every problem is collected into a single CLIError with
// ExitInvalidConfig.
func (w *Workflow) Validate() error {
	var problems []string
	if _, err := w.Params(); err != nil {
		problems = append(problems, err.Error())
	}
	problems = append(problems, w.environmentProblems()...)
	if strings.TrimSpace(w.Model.Script) == "" {
		problems = append(problems, "model script must not be empty")
	}

	if w.Container.Enabled {
		if strings.TrimSpace(w.Container.Dockerfile) == "" {
			problems = append(problems, "dockerfile path must not be empty")
		}
		if strings.TrimSpace(w.Container.Name) == "" {
			problems = append(problems, "image name must not be empty")
		}
	}

	return problemsError(problems)
}

// ValidateEnvironment checks only what the bootstrap steps need. The
// region and dates are not required.
func (w *Workflow) ValidateEnvironment() error {
	return problemsError(w.environmentProblems())
}

func (w *Workflow) environmentProblems() []string {
	var problems []string
	if strings.TrimSpace(w.Conda.Binary) == "" {
		problems = append(problems, "conda binary must not be empty")
	}
	if strings.TrimSpace(w.Conda.EnvName) == "" {
		problems = append(problems, "conda environment name must not be empty")
	}
	if strings.TrimSpace(w.Conda.Python) == "" {
		problems = append(problems, "python version must not be empty")
	}
	return problems
}

func problemsError(problems []string) error {
	if len(problems) > 0 {
		return model.NewCLIError(model.ExitInvalidConfig,
			"invalid configuration:\n  - "+strings.Join(problems, "\n  - "))
	}
	return nil
}

// ImageRef returns the image reference built in container mode:
// "<repo>/<name>:<tag>", omitting the repo when empty and defaulting the
// tag to "latest".
func (c ContainerConfig) ImageRef() string {
	tag := c.Tag
	if tag == "" {
		tag = "latest"
	}
	name := c.Name
	if c.Repo != "" {
		name = c.Repo + "/" + name
	}
	return fmt.Sprintf("%s:%s", name, tag)
}

// ForwardedEnv returns the fixed set of variables forwarded into the
// container as KEY=VALUE pairs, in a stable order. The region and dates
// come from params, the same normalized values the model is invoked with.
func (w *Workflow) ForwardedEnv(params model.RunParams) []string {
	return []string{
		"CM_ENV_STATE=" + params.Region,
		"CM_ENV_START=" + params.StartString(),
		"CM_ENV_END=" + params.EndString(),
		"CM_ENV_CONDA=" + w.Conda.EnvName,
		"CM_ENV_PYTHON=" + w.Conda.Python,
	}
}
