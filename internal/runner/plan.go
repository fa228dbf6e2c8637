package runner

import (
	"fmt"
	"os"

	"github.com/mmr-tortoise/sirflow/internal/conda"
	"github.com/mmr-tortoise/sirflow/internal/config"
	"github.com/mmr-tortoise/sirflow/internal/docker"
	"github.com/mmr-tortoise/sirflow/internal/model"
)

// Mode is where the model runs.
type Mode string

const (
	// ModeHost runs every step directly on the host.
	ModeHost Mode = "host"

	// ModeContainer builds an image and runs the host steps inside it.
	ModeContainer Mode = "container"
)

// containerShell is the interpreter used for the in-container script.
var containerShell = []string{"/bin/sh", "-c"}

// Plan is the fully resolved, ordered list of commands for one run.
// Building a Plan has no side effects; Runner.Run executes it.
type Plan struct {
	Mode   Mode
	Params model.RunParams
	Steps  []model.Command

	// StatusFile receives the status line after the model step. Empty
	// disables the artifact.
	StatusFile string

	// Image is the image reference built in container mode.
	Image string
}

// PlanOptions adjusts plan construction.
type PlanOptions struct {
	// SkipCreate omits the create-env step. The CLI sets it when reuse is
	// enabled and the environment already exists.
	SkipCreate bool

	// BootstrapOnly stops the plan after the package install.
	BootstrapOnly bool
}

// NewPlan builds the plan for wf, choosing host or container mode from
// the configuration. wf must already have passed Validate.
func NewPlan(wf *config.Workflow, opts PlanOptions) (*Plan, error) {
	if wf.Container.Enabled {
		return ContainerPlan(wf, opts)
	}
	return HostPlan(wf, opts)
}

// HostPlan builds the host-mode step list:
//
//	[create-env] [upgrade-pip] install-package invoke-model
//
// A bootstrap-only plan stops after install-package and does not need the
// region/date triple.
func HostPlan(wf *config.Workflow, opts PlanOptions) (*Plan, error) {
	plan := &Plan{Mode: ModeHost}
	if !opts.BootstrapOnly {
		params, err := wf.Params()
		if err != nil {
			return nil, model.WrapCLIError(model.ExitInvalidConfig, "invalid run parameters", err)
		}
		plan.Params = params
	}

	m := conda.NewManager(wf.Conda.Binary)
	env := wf.Conda.EnvName

	var steps []model.Command
	if !opts.SkipCreate {
		steps = append(steps, m.CreateEnvCommand(env, wf.Conda.Python))
	}
	if wf.Conda.UpgradePip {
		steps = append(steps, m.UpgradePipCommand(env))
	}
	steps = append(steps, m.InstallCommand(env, wf.Conda.PackageDir, wf.Model.WorkDir))

	if !opts.BootstrapOnly {
		steps = append(steps, m.RunScriptCommand(env, wf.Model.Script, wf.Model.WorkDir, plan.Params.Args()))
		plan.StatusFile = wf.StatusFile
	}
	plan.Steps = steps

	return plan, nil
}

// ContainerPlan builds the container-mode step list:
//
//	build-image run-container
//
// Unless a run command is configured, the container runs the host-mode
// plan rendered as an inline shell line. The environment is always created
// inside a fresh container, so SkipCreate does not apply there.
func ContainerPlan(wf *config.Workflow, opts PlanOptions) (*Plan, error) {
	params, err := wf.Params()
	if err != nil {
		return nil, model.WrapCLIError(model.ExitInvalidConfig, "invalid run parameters", err)
	}

	// Step 1: The build. Labels carry only the run parameters, so the
	// command line is identical for identical inputs.
	imageRef := wf.Container.ImageRef()
	build := docker.BuildCommand(docker.BuildSpec{
		Dockerfile: wf.Container.Dockerfile,
		Context:    wf.Container.Context,
		BaseImage:  wf.Container.BaseImage,
		Image:      imageRef,
		Labels:     docker.BuildLabels(params),
	})

	// Step 2: The run. The region, dates and environment settings are
	// forwarded as CM_ENV_* variables alongside the command itself.
	inner, err := containerCommand(wf, opts)
	if err != nil {
		return nil, err
	}

	run, err := docker.RunCommand(docker.RunSpec{
		Image:     imageRef,
		Env:       wf.ForwardedEnv(params),
		ExtraArgs: wf.Container.RunExtraArgs,
		Command:   inner,
	})
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Mode:   ModeContainer,
		Params: params,
		Steps:  []model.Command{build, run},
		Image:  imageRef,
	}
	if !opts.BootstrapOnly {
		plan.StatusFile = wf.StatusFile
	}
	return plan, nil
}

// containerCommand returns the argv executed inside the container. The
// rendered host plan is passed to the shell as one inline line.
func containerCommand(wf *config.Workflow, opts PlanOptions) ([]string, error) {
	if wf.Container.RunCommand != "" {
		words, err := docker.SplitWords(wf.Container.RunCommand, os.Getenv)
		if err != nil {
			return nil, model.WrapCLIError(model.ExitInvalidConfig,
				fmt.Sprintf("invalid container run command %q", wf.Container.RunCommand), err)
		}
		return words, nil
	}

	inner, err := HostPlan(wf, PlanOptions{BootstrapOnly: opts.BootstrapOnly})
	if err != nil {
		return nil, err
	}
	script, err := inner.Inline()
	if err != nil {
		return nil, err
	}

	argv := make([]string, 0, len(containerShell)+1)
	argv = append(argv, containerShell...)
	return append(argv, script), nil
}

// Step returns the command for name, if the plan contains it.
func (p *Plan) Step(name model.StepName) (model.Command, bool) {
	for _, s := range p.Steps {
		if s.Step == name {
			return s, true
		}
	}
	return model.Command{}, false
}
