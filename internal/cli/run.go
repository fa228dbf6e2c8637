// Package cli: run.go implements the "sirflow run" command.
//
// The run command is the primary user-facing operation. It resolves the
// configuration, builds the workflow plan and executes it step by step.
//
// Orchestration steps:
//  1. Load and validate the configuration (file, env, flags, REGION)
//  2. Pre-flight: ping Docker in container mode, probe conda for --reuse-env
//  3. Build the plan (host or container mode)
//  4. Print the script and stop when --dry-run is set
//  5. Execute the plan, writing the status file after the model step
//  6. Output results (text or JSON)
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/sirflow/internal/conda"
	"github.com/mmr-tortoise/sirflow/internal/config"
	"github.com/mmr-tortoise/sirflow/internal/docker"
	"github.com/mmr-tortoise/sirflow/internal/model"
	"github.com/mmr-tortoise/sirflow/internal/runner"
)

// runFlags holds the flag values for the run command that are not
// configuration keys. Configuration flags are registered by
// addWorkflowFlags and read through config.Load.
type runFlags struct {
	dryRun bool // --dry-run: print the plan instead of executing it
}

// NewRunCommand creates the "run" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewRunCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [REGION]",
		Short: "Bootstrap the environment and run the SIR model",
		Long: `Create the conda environment, install the model package and run
run_sir.py for one region and date range.

The first failing step stops the run and its exit code becomes sirflow's
exit code. After the model step, whatever its outcome, the status file
records SIR_RUN_EXIT_CODE=<n>.

REGION may also come from the config file or CM_ENV_STATE.

Examples:
  sirflow run PA --start 2020-03-05 --end 2020-03-06
  sirflow run PA --start 2020-03-05 --end 2020-03-06 --reuse-env
  sirflow run PA --start 2020-03-05 --end 2020-03-06 --container
  sirflow run --config sirflow.yaml --dry-run`,

		// REGION is optional on the command line because it can be
		// supplied by the config file or the environment.
		Args: cobra.MaximumNArgs(1),

		// RunE is used instead of Run so we can return errors. Cobra will
		// pass them to the Execute error handler in root.go.
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args, flags)
		},
	}

	addWorkflowFlags(cmd, true)
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false, "Print the workflow as a shell script without running it")

	return cmd
}

// runRun is the main orchestration function for the run command.
func runRun(cmd *cobra.Command, args []string, flags *runFlags) error {
	ctx := cmd.Context()

	// Step 1: Resolve the configuration. Validation failures exit with
	// ExitInvalidConfig before anything is started.
	wf, err := loadWorkflow(cmd, args)
	if err != nil {
		return err
	}
	VerboseLog("Region %s, %s to %s", wf.Region, wf.Start, wf.End)

	// Step 2: Build the plan. Pre-flight checks that only matter for a
	// real run are skipped in dry-run mode.
	opts := runner.PlanOptions{}
	if !flags.dryRun {
		if err := preflight(ctx, wf, &opts); err != nil {
			return err
		}
	}

	plan, err := runner.NewPlan(wf, opts)
	if err != nil {
		return err
	}

	// Step 3: Dry run prints the plan and stops.
	if flags.dryRun {
		return printPlan(plan)
	}

	// Step 4: Execute the plan.
	return executePlan(ctx, plan)
}

// preflight performs the checks that must pass before any step starts:
// a reachable Docker daemon in container mode, and the environment probe
// that lets --reuse-env skip creation.
func preflight(ctx context.Context, wf *config.Workflow, opts *runner.PlanOptions) error {
	if wf.Container.Enabled {
		return pingDocker(ctx)
	}
	if wf.Conda.ReuseEnv {
		skip, err := envExists(ctx, wf)
		if err != nil {
			return err
		}
		opts.SkipCreate = skip
	}
	return nil
}

// pingDocker connects to the Docker daemon and verifies it responds.
func pingDocker(ctx context.Context) error {
	cli, err := docker.NewClient()
	if err != nil {
		return err // NewClient already returns CLIError with ExitDockerNotRunning
	}
	// defer ensures the Docker client is closed when this function returns,
	// releasing the underlying HTTP connection and resources.
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		return err
	}
	VerboseLog("Connected to Docker daemon")
	return nil
}

// envExists asks conda whether the configured environment exists.
func envExists(ctx context.Context, wf *config.Workflow) (bool, error) {
	m := conda.NewManager(wf.Conda.Binary)
	exists, err := m.EnvExists(ctx, wf.Conda.EnvName)
	if err != nil {
		return false, err
	}
	if exists {
		logger.Info("reusing existing environment", "env", wf.Conda.EnvName)
	}
	return exists, nil
}

// executePlan runs plan with the process's standard streams and prints
// the report. The report is printed on failure too, so the failing step
// is visible in JSON mode.
func executePlan(ctx context.Context, plan *runner.Plan) error {
	r := runner.New(runner.NewExecExecutor(), logger)

	started := time.Now()
	report, runErr := r.Run(ctx, plan)
	elapsed := time.Since(started)

	result := newRunResult(plan, report, elapsed)
	if runErr == nil && plan.Mode == runner.ModeContainer {
		result.ImageID = builtImageID(ctx, plan.Image)
	}

	printRunResult(result)
	return runErr
}

// builtImageID inspects the image a container run built. Failure is not
// fatal: the run already succeeded, so the ID is simply omitted.
func builtImageID(ctx context.Context, ref string) string {
	cli, err := docker.NewClient()
	if err != nil {
		VerboseLog("Could not connect to Docker to inspect %s: %v", ref, err)
		return ""
	}
	defer func() { _ = cli.Close() }()

	info, err := docker.InspectImage(ctx, cli, ref)
	if err != nil {
		VerboseLog("Could not inspect image %s: %v", ref, err)
		return ""
	}
	return info.ID
}

// runResult is the JSON output structure of the run and bootstrap
// commands.
type runResult struct {
	Mode       string          `json:"mode"`
	Region     string          `json:"region,omitempty"`
	Start      string          `json:"start,omitempty"`
	End        string          `json:"end,omitempty"`
	ExitCode   int             `json:"exitCode"`
	FailedStep string          `json:"failedStep,omitempty"`
	StatusFile string          `json:"statusFile,omitempty"`
	Image      string          `json:"image,omitempty"`
	ImageID    string          `json:"imageId,omitempty"`
	DurationMS int64           `json:"durationMs"`
	Steps      []runStepResult `json:"steps"`
}

// runStepResult is the JSON output structure for one executed step.
type runStepResult struct {
	Step       string `json:"step"`
	Command    string `json:"command"`
	ExitCode   int    `json:"exitCode"`
	DurationMS int64  `json:"durationMs"`
}

// newRunResult converts a run report into its output form.
func newRunResult(plan *runner.Plan, report *model.RunReport, elapsed time.Duration) runResult {
	result := runResult{
		Mode:       string(plan.Mode),
		Image:      plan.Image,
		DurationMS: elapsed.Milliseconds(),
		Steps:      []runStepResult{},
	}
	if !plan.Params.Start.IsZero() {
		result.Region = plan.Params.Region
		result.Start = plan.Params.StartString()
		result.End = plan.Params.EndString()
	}
	if report == nil {
		return result
	}

	result.ExitCode = report.ExitCode
	result.StatusFile = report.StatusFile
	if failed, ok := report.FailedStep(); ok {
		result.FailedStep = failed.Step.String()
	}
	for _, s := range report.Steps {
		result.Steps = append(result.Steps, runStepResult{
			Step:       s.Step.String(),
			Command:    s.Command.String(),
			ExitCode:   s.ExitCode,
			DurationMS: s.Duration.Milliseconds(),
		})
	}
	return result
}

// printRunResult outputs the run result in text or JSON format.
func printRunResult(result runResult) {
	if IsJSONOutput() {
		printJSON(result)
		return
	}
	fmt.Print(formatRunResultText(result))
}

// formatRunResultText renders the run result as a short human summary.
// Failures are reported by Execute on stderr, so only the step table and
// the status file are shown here.
func formatRunResultText(result runResult) string {
	var b strings.Builder
	if result.ExitCode == 0 {
		if result.Region != "" {
			fmt.Fprintf(&b, "SIR model run for %s (%s to %s) completed\n", result.Region, result.Start, result.End)
		} else {
			b.WriteString("Environment bootstrap completed\n")
		}
	}

	for _, s := range result.Steps {
		fmt.Fprintf(&b, "  %-16s exit %-4d %s\n",
			s.Step, s.ExitCode, FormatDuration(time.Duration(s.DurationMS)*time.Millisecond))
	}
	if result.ImageID != "" {
		fmt.Fprintf(&b, "  Image: %s (%s)\n", result.Image, ShortID(result.ImageID))
	}
	if result.StatusFile != "" {
		fmt.Fprintf(&b, "  Status: %s\n", result.StatusFile)
	}
	return b.String()
}
