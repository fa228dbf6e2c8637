package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/sirflow/internal/config"
)

// addWorkflowFlags registers the flags that override configuration keys.
// Flag names match config.FlagKeys, so config.Load binds them to viper;
// defaults shown in help come from config.Default.
//
// Container flags are only registered when withContainer is true.
func addWorkflowFlags(cmd *cobra.Command, withContainer bool) {
	d := config.Default()
	f := cmd.Flags()

	f.String("start", d.Start, "Start date of the simulation (YYYY-MM-DD)")
	f.String("end", d.End, "End date of the simulation (YYYY-MM-DD)")
	f.String("status-file", d.StatusFile, "Status file written after the model step (empty disables it)")

	f.String("conda-bin", d.Conda.Binary, "conda executable (conda, mamba, micromamba)")
	f.String("env-name", d.Conda.EnvName, "Name of the conda environment")
	f.String("python", d.Conda.Python, "Python version for a new environment")
	f.String("package-dir", d.Conda.PackageDir, "Directory installed with pip install -e")
	f.Bool("upgrade-pip", d.Conda.UpgradePip, "Upgrade pip before installing the package")
	f.Bool("reuse-env", d.Conda.ReuseEnv, "Skip environment creation when it already exists")

	f.String("script", d.Model.Script, "Model script run inside the environment")
	f.String("workdir", d.Model.WorkDir, "Working directory for install and model steps")

	if !withContainer {
		return
	}

	f.Bool("container", d.Container.Enabled, "Run the workflow inside a Docker image")
	f.String("dockerfile", d.Container.Dockerfile, "Dockerfile used to build the image")
	f.String("context", d.Container.Context, "Docker build context directory")
	f.String("base-image", d.Container.BaseImage, "Base image passed as the BASE_IMAGE build arg")
	f.String("image-repo", d.Container.Repo, "Image repository")
	f.String("image-name", d.Container.Name, "Image name")
	f.String("image-tag", d.Container.Tag, "Image tag")
	f.String("run-cmd", d.Container.RunCommand, "Command run in the container (default: the rendered workflow)")
	f.String("run-args", d.Container.RunExtraArgs, "Extra docker run arguments, split with shell rules")
}

// loadWorkflow resolves and validates the configuration for cmd. The
// optional positional REGION argument wins over every other source.
func loadWorkflow(cmd *cobra.Command, args []string) (*config.Workflow, error) {
	var region string
	if len(args) > 0 {
		region = args[0]
	}

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	wf, path, err := config.Load(config.LoadOptions{
		ConfigFile: configFile,
		Dir:        cwd,
		Flags:      cmd.Flags(),
		Region:     region,
	})
	if err != nil {
		return nil, err
	}
	if path != "" {
		VerboseLog("Loaded config file %s", path)
	}

	if err := wf.Validate(); err != nil {
		return nil, err
	}
	return wf, nil
}
