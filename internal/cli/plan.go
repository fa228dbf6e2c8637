// Package cli: plan.go implements the "sirflow plan" command.
//
// The plan command prints the exact commands a run would execute, without
// contacting conda or Docker. Text output is a standalone POSIX shell
// script; with --json the steps are listed as argv arrays.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/sirflow/internal/runner"
)

// NewPlanCommand creates the "plan" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewPlanCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan [REGION]",
		Short: "Print the workflow a run would execute",
		Long: `Resolve the configuration and print the workflow as a shell script.

The same inputs always produce the same script, byte for byte. Use --json
to get each step's argv, working directory and environment instead.

Examples:
  sirflow plan PA --start 2020-03-05 --end 2020-03-06 > run.sh
  sirflow plan PA --start 2020-03-05 --end 2020-03-06 --container --json`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, args)
		},
	}

	addWorkflowFlags(cmd, true)

	return cmd
}

// runPlan is the main logic function for the plan command.
func runPlan(cmd *cobra.Command, args []string) error {
	// Step 1: Resolve and validate the configuration exactly as run does,
	// so an invalid plan fails with the same exit code.
	wf, err := loadWorkflow(cmd, args)
	if err != nil {
		return err
	}

	// Step 2: Build the plan. No pre-flight runs here: the plan always
	// includes create-env, since probing conda would make the output
	// depend on the machine it is printed on.
	plan, err := runner.NewPlan(wf, runner.PlanOptions{})
	if err != nil {
		return err
	}
	return printPlan(plan)
}

// planJSON is the JSON output structure of the plan command.
type planJSON struct {
	Mode       string         `json:"mode"`
	Region     string         `json:"region,omitempty"`
	Start      string         `json:"start,omitempty"`
	End        string         `json:"end,omitempty"`
	StatusFile string         `json:"statusFile,omitempty"`
	Image      string         `json:"image,omitempty"`
	Steps      []planStepJSON `json:"steps"`
}

// planStepJSON is the JSON output structure for one planned step.
type planStepJSON struct {
	Step string   `json:"step"`
	Argv []string `json:"argv"`
	Dir  string   `json:"dir,omitempty"`
	Env  []string `json:"env,omitempty"`
}

// newPlanJSON converts a plan into its JSON output form.
func newPlanJSON(plan *runner.Plan) planJSON {
	out := planJSON{
		Mode:       string(plan.Mode),
		StatusFile: plan.StatusFile,
		Image:      plan.Image,
		Steps:      make([]planStepJSON, 0, len(plan.Steps)),
	}
	if !plan.Params.Start.IsZero() {
		out.Region = plan.Params.Region
		out.Start = plan.Params.StartString()
		out.End = plan.Params.EndString()
	}
	for _, s := range plan.Steps {
		out.Steps = append(out.Steps, planStepJSON{
			Step: s.Step.String(),
			Argv: s.Argv(),
			Dir:  s.Dir,
			Env:  s.Env,
		})
	}
	return out
}

// printPlan outputs plan as a shell script, or as JSON with --json.
func printPlan(plan *runner.Plan) error {
	if IsJSONOutput() {
		printJSON(newPlanJSON(plan))
		return nil
	}

	return writePlanScript(os.Stdout, plan)
}

// writePlanScript renders plan as a shell script onto w. Nothing is
// written when rendering fails.
func writePlanScript(w io.Writer, plan *runner.Plan) error {
	script, err := plan.Script()
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(w, script)
	return err
}
