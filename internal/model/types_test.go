package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseRunParams_Valid verifies that a well-formed triple is accepted
// and that surrounding whitespace is trimmed.
func TestParseRunParams_Valid(t *testing.T) {
	p, err := ParseRunParams(" PA ", "2020-03-05", "2020-03-06")
	require.NoError(t, err)

	assert.Equal(t, "PA", p.Region)
	assert.Equal(t, "2020-03-05", p.StartString())
	assert.Equal(t, "2020-03-06", p.EndString())
}

// TestParseRunParams_SameDay verifies that a one-day window is allowed.
func TestParseRunParams_SameDay(t *testing.T) {
	_, err := ParseRunParams("NY", "2020-03-15", "2020-03-15")
	assert.NoError(t, err)
}

// TestParseRunParams_Invalid checks each rejection rule in isolation.
func TestParseRunParams_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		region  string
		start   string
		end     string
		wantMsg string
	}{
		{"empty region", "", "2020-03-05", "2020-03-06", "region code must not be empty"},
		{"blank region", "   ", "2020-03-05", "2020-03-06", "region code must not be empty"},
		{"bad start", "PA", "03/05/2020", "2020-03-06", `start date "03/05/2020"`},
		{"bad end", "PA", "2020-03-05", "2020-13-01", `end date "2020-13-01"`},
		{"end before start", "PA", "2020-03-06", "2020-03-05", "is before start date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRunParams(tt.region, tt.start, tt.end)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

// TestParseRunParams_ReportsAllProblems verifies that every problem is
// listed rather than only the first one.
func TestParseRunParams_ReportsAllProblems(t *testing.T) {
	_, err := ParseRunParams("", "nope", "")
	require.Error(t, err)

	assert.Contains(t, err.Error(), "region code must not be empty")
	assert.Contains(t, err.Error(), "start date")
	assert.Contains(t, err.Error(), "end date")
}

// TestRunParams_Args verifies the exact argument list handed to the
// model entry point.
func TestRunParams_Args(t *testing.T) {
	p, err := ParseRunParams("PA", "2020-03-05", "2020-03-06")
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"PA", "--start", "2020-03-05", "--end", "2020-03-06"},
		p.Args())
}

// TestRunParams_ArgsDeterministic verifies that two runs with identical
// inputs produce identical argument lists.
func TestRunParams_ArgsDeterministic(t *testing.T) {
	a, err := ParseRunParams("PA", "2020-03-05", "2020-03-06")
	require.NoError(t, err)
	b, err := ParseRunParams("PA", "2020-03-05", "2020-03-06")
	require.NoError(t, err)

	assert.Equal(t, a.Args(), b.Args())
}

func TestStepName_IsValid(t *testing.T) {
	for _, s := range []StepName{
		StepCreateEnv, StepUpgradePip, StepInstallPackage,
		StepInvokeModel, StepBuildImage, StepRunContainer,
	} {
		assert.True(t, s.IsValid(), s.String())
	}
	assert.False(t, StepName("deploy").IsValid())
	assert.False(t, StepName("").IsValid())
}

func TestStepName_WritesStatus(t *testing.T) {
	assert.True(t, StepInvokeModel.WritesStatus())
	assert.True(t, StepRunContainer.WritesStatus())
	assert.False(t, StepCreateEnv.WritesStatus())
	assert.False(t, StepInstallPackage.WritesStatus())
	assert.False(t, StepBuildImage.WritesStatus())
}

// TestCommand_Argv verifies that Argv prepends the executable name and
// does not alias the Args slice.
func TestCommand_Argv(t *testing.T) {
	c := Command{Name: "conda", Args: []string{"env", "list"}}

	argv := c.Argv()
	assert.Equal(t, []string{"conda", "env", "list"}, argv)
	assert.Equal(t, "conda env list", c.String())

	argv[1] = "changed"
	assert.Equal(t, "env", c.Args[0])
}

// TestRunReport_FailedStep verifies that the first non-zero step is returned.
func TestRunReport_FailedStep(t *testing.T) {
	r := &RunReport{Steps: []StepResult{
		{Step: StepCreateEnv, ExitCode: 0},
		{Step: StepInstallPackage, ExitCode: 2},
	}}

	failed, ok := r.FailedStep()
	require.True(t, ok)
	assert.Equal(t, StepInstallPackage, failed.Step)

	_, ok = (&RunReport{Steps: []StepResult{{ExitCode: 0}}}).FailedStep()
	assert.False(t, ok)
}

// TestCLIError verifies the error message format and unwrap behavior.
func TestCLIError(t *testing.T) {
	t.Run("without underlying error", func(t *testing.T) {
		err := NewCLIError(ExitInvalidConfig, "bad config")
		assert.Equal(t, "bad config", err.Error())
		assert.Nil(t, err.Unwrap())
		assert.Equal(t, ExitInvalidConfig, err.Code)
	})

	t.Run("with underlying error", func(t *testing.T) {
		inner := errors.New("exit status 3")
		err := WrapCLIError(ExitCode(3), "step failed", inner)
		assert.Equal(t, "step failed: exit status 3", err.Error())
		assert.True(t, errors.Is(err, inner))
	})

	t.Run("errors.As finds CLIError through wrapping", func(t *testing.T) {
		wrapped := errors.Join(errors.New("context"), NewCLIError(ExitDockerNotRunning, "no docker"))
		var cliErr *CLIError
		require.True(t, errors.As(wrapped, &cliErr))
		assert.Equal(t, ExitDockerNotRunning, cliErr.Code)
	})
}
