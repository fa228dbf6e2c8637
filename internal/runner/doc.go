// Package runner executes the sirflow workflow: an ordered list of
// subprocess commands run one at a time, stopping at the first failure and
// propagating that step's exit code unchanged.
//
// A run happens in two phases:
//   - NewPlan turns a validated config.Workflow into a Plan. Planning has
//     no side effects, so the same Plan backs `sirflow plan`, `--dry-run`
//     and the real run.
//   - Runner.Run executes the Plan through an Executor and writes the
//     status artifact after the model step.
//
// Plans also render to POSIX shell scripts (Plan.Script). The container
// run path uses that rendering as the command executed inside the image.
package runner
