package runner

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/sirflow/internal/config"
	"github.com/mmr-tortoise/sirflow/internal/model"
)

// testWorkflow returns the reference configuration: PA, 2020-03-05 to
// 2020-03-06, with the defaults for everything else.
func testWorkflow() *config.Workflow {
	wf := config.Default()
	wf.Region = "PA"
	wf.Start = "2020-03-05"
	wf.End = "2020-03-06"
	return &wf
}

// argvs extracts the argv of each step for comparison.
func argvs(p *Plan) [][]string {
	out := make([][]string, 0, len(p.Steps))
	for _, s := range p.Steps {
		out = append(out, s.Argv())
	}
	return out
}

// TestHostPlan_Default verifies the default three-step host plan.
func TestHostPlan_Default(t *testing.T) {
	plan, err := HostPlan(testWorkflow(), PlanOptions{})
	require.NoError(t, err)

	want := [][]string{
		{"conda", "create", "-y", "-n", "sir", "python=3.6"},
		{"conda", "run", "--no-capture-output", "-n", "sir", "python", "-m", "pip", "install", "-e", "."},
		{"conda", "run", "--no-capture-output", "-n", "sir",
			"python", "scripts/run_sir.py", "PA", "--start", "2020-03-05", "--end", "2020-03-06"},
	}
	if diff := cmp.Diff(want, argvs(plan)); diff != "" {
		t.Errorf("host plan mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, ModeHost, plan.Mode)
	assert.Equal(t, "tmp-run-env.out", plan.StatusFile)
}

// TestHostPlan_ModelInvocation verifies the reference scenario: the model
// is invoked with exactly `run_sir.py PA --start 2020-03-05 --end 2020-03-06`.
func TestHostPlan_ModelInvocation(t *testing.T) {
	wf := testWorkflow()
	wf.Model.Script = "run_sir.py"

	plan, err := HostPlan(wf, PlanOptions{})
	require.NoError(t, err)

	invoke, ok := plan.Step(model.StepInvokeModel)
	require.True(t, ok)

	argv := invoke.Argv()
	tail := strings.Join(argv[len(argv)-6:], " ")
	assert.Equal(t, "run_sir.py PA --start 2020-03-05 --end 2020-03-06", tail)
}

// TestHostPlan_Options covers reuse, pip upgrade and bootstrap-only.
func TestHostPlan_Options(t *testing.T) {
	tests := []struct {
		name       string
		upgradePip bool
		opts       PlanOptions
		wantSteps  []model.StepName
		wantStatus string
	}{
		{
			name:       "skip create",
			opts:       PlanOptions{SkipCreate: true},
			wantSteps:  []model.StepName{model.StepInstallPackage, model.StepInvokeModel},
			wantStatus: "tmp-run-env.out",
		},
		{
			name:       "upgrade pip",
			upgradePip: true,
			wantSteps:  []model.StepName{model.StepCreateEnv, model.StepUpgradePip, model.StepInstallPackage, model.StepInvokeModel},
			wantStatus: "tmp-run-env.out",
		},
		{
			name:       "bootstrap only",
			opts:       PlanOptions{BootstrapOnly: true},
			wantSteps:  []model.StepName{model.StepCreateEnv, model.StepInstallPackage},
			wantStatus: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wf := testWorkflow()
			wf.Conda.UpgradePip = tt.upgradePip

			plan, err := HostPlan(wf, tt.opts)
			require.NoError(t, err)

			var got []model.StepName
			for _, s := range plan.Steps {
				got = append(got, s.Step)
			}
			assert.Equal(t, tt.wantSteps, got)
			assert.Equal(t, tt.wantStatus, plan.StatusFile)
		})
	}
}

// TestHostPlan_InvalidParams verifies that planning rejects a bad triple.
func TestHostPlan_InvalidParams(t *testing.T) {
	wf := testWorkflow()
	wf.End = "2020-02-30"

	_, err := HostPlan(wf, PlanOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid run parameters")
}

// TestPlan_Deterministic verifies that identical inputs render identical
// scripts, byte for byte, in both modes.
func TestPlan_Deterministic(t *testing.T) {
	tests := []struct {
		name      string
		container bool
	}{
		{"host", false},
		{"container", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			newScript := func() string {
				wf := testWorkflow()
				wf.Container.Enabled = tt.container
				plan, err := NewPlan(wf, PlanOptions{})
				require.NoError(t, err)
				script, err := plan.Script()
				require.NoError(t, err)
				return script
			}

			first := newScript()
			assert.Equal(t, first, newScript())
			assert.True(t, strings.HasPrefix(first, "#!/bin/sh\nset -e\n"))
		})
	}
}

// TestContainerPlan_Script verifies a container plan renders as a
// two-line script whose run step carries the inline host plan as one
// quoted word.
func TestContainerPlan_Script(t *testing.T) {
	wf := testWorkflow()
	wf.Container.Enabled = true

	plan, err := NewPlan(wf, PlanOptions{})
	require.NoError(t, err)

	script, err := plan.Script()
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(script, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[2], "docker build -f "))
	assert.True(t, strings.HasPrefix(lines[3], "docker run --rm "))
	assert.Contains(t, lines[3], "/bin/sh -c 'set -e; conda create -y -n sir python=3.6; ")
	assert.NotContains(t, script, "created-at")
}

// TestContainerPlan verifies the build/run pair and that the container
// runs the rendered host plan.
func TestContainerPlan(t *testing.T) {
	wf := testWorkflow()
	wf.Container.Enabled = true

	plan, err := NewPlan(wf, PlanOptions{SkipCreate: true})
	require.NoError(t, err)

	assert.Equal(t, ModeContainer, plan.Mode)
	assert.Equal(t, "local/sir-model:latest", plan.Image)
	require.Len(t, plan.Steps, 2)

	build := plan.Steps[0]
	assert.Equal(t, model.StepBuildImage, build.Step)
	assert.Contains(t, build.Args, "BASE_IMAGE=ubuntu:20.04")
	assert.Contains(t, build.Args, "sirflow.region=PA")

	run := plan.Steps[1]
	assert.Equal(t, model.StepRunContainer, run.Step)
	assert.Contains(t, run.Args, "CM_ENV_STATE=PA")
	assert.Contains(t, run.Args, "CM_ENV_START=2020-03-05")
	assert.Contains(t, run.Args, "CM_ENV_END=2020-03-06")

	// The last three words are /bin/sh -c <inline plan>.
	n := len(run.Args)
	assert.Equal(t, []string{"/bin/sh", "-c"}, run.Args[n-3:n-1])
	script := run.Args[n-1]
	assert.True(t, strings.HasPrefix(script, "set -e; "))
	assert.NotContains(t, script, "\n")
	// A fresh container always needs its environment created.
	assert.Contains(t, script, "conda create -y -n sir")
	assert.Contains(t, script,
		"conda run --no-capture-output -n sir python scripts/run_sir.py PA --start 2020-03-05 --end 2020-03-06")
}

// TestContainerPlan_RunCommandOverride verifies a configured run command
// replaces the rendered script.
func TestContainerPlan_RunCommandOverride(t *testing.T) {
	wf := testWorkflow()
	wf.Container.Enabled = true
	wf.Container.RunCommand = `bash -lc "make run"`
	wf.Container.RunExtraArgs = "--memory 4g"

	plan, err := ContainerPlan(wf, PlanOptions{})
	require.NoError(t, err)

	run, ok := plan.Step(model.StepRunContainer)
	require.True(t, ok)

	n := len(run.Args)
	assert.Equal(t, []string{"local/sir-model:latest", "bash", "-lc", "make run"}, run.Args[n-4:])
	assert.Contains(t, run.Args, "--memory")
}

// TestContainerPlan_BadRunCommand verifies invalid shell words are
// reported as configuration errors.
func TestContainerPlan_BadRunCommand(t *testing.T) {
	wf := testWorkflow()
	wf.Container.Enabled = true
	wf.Container.RunCommand = `bash -c "unterminated`

	_, err := ContainerPlan(wf, PlanOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid container run command")
}
