// Package cli: bootstrap.go implements the "sirflow bootstrap" command.
//
// The bootstrap command runs only the environment steps of the workflow
// (create, optional pip upgrade, editable install) on the host. It is the
// way to prepare an environment once and then use `sirflow run --reuse-env`.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/sirflow/internal/config"
	"github.com/mmr-tortoise/sirflow/internal/runner"
)

// bootstrapFlags holds the flag values for the bootstrap command.
type bootstrapFlags struct {
	dryRun bool // --dry-run: print the plan instead of executing it
}

// NewBootstrapCommand creates the "bootstrap" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewBootstrapCommand() *cobra.Command {
	flags := &bootstrapFlags{}

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Create the conda environment and install the model package",
		Long: `Create the conda environment and install the model package in
editable mode, without running the model. No status file is written.

Examples:
  sirflow bootstrap
  sirflow bootstrap --env-name sir-dev --python 3.8 --upgrade-pip
  sirflow bootstrap --reuse-env`,

		// No positional arguments: the region and dates are not needed.
		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runBootstrap(cmd, flags)
		},
	}

	addWorkflowFlags(cmd, false)
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Print the bootstrap steps as a shell script without running them")

	return cmd
}

// runBootstrap is the main logic function for the bootstrap command.
func runBootstrap(cmd *cobra.Command, flags *bootstrapFlags) error {
	ctx := cmd.Context()

	// Step 1: Resolve the configuration. Only the environment settings are
	// validated; the region and dates play no part in bootstrapping.
	wf, _, err := config.Load(config.LoadOptions{
		ConfigFile: configFile,
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return err
	}
	if err := wf.ValidateEnvironment(); err != nil {
		return err
	}

	// Step 2: Probe for an existing environment when reuse is enabled.
	opts := runner.PlanOptions{BootstrapOnly: true}
	if wf.Conda.ReuseEnv && !flags.dryRun {
		skip, err := envExists(ctx, wf)
		if err != nil {
			return err
		}
		opts.SkipCreate = skip
	}

	// Step 3: Build the host plan. Bootstrapping always targets the host;
	// a container build bootstraps inside the image during `run`.
	plan, err := runner.HostPlan(wf, opts)
	if err != nil {
		return err
	}

	if flags.dryRun {
		return printPlan(plan)
	}

	// Step 4: Execute the plan.
	return executePlan(ctx, plan)
}
