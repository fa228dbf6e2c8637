package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/sirflow/internal/model"
)

// validWorkflow returns a default configuration with a usable triple.
func validWorkflow() *Workflow {
	wf := Default()
	wf.Region = "PA"
	wf.Start = "2020-03-05"
	wf.End = "2020-03-06"
	return &wf
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, validWorkflow().Validate())
}

// TestValidate_CollectsProblems verifies that every problem is listed in
// one ExitInvalidConfig error.
func TestValidate_CollectsProblems(t *testing.T) {
	wf := validWorkflow()
	wf.Region = ""
	wf.Conda.EnvName = " "
	wf.Conda.Python = ""
	wf.Container.Enabled = true
	wf.Container.Dockerfile = ""

	err := wf.Validate()
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitInvalidConfig, cliErr.Code)
	assert.Contains(t, err.Error(), "region code must not be empty")
	assert.Contains(t, err.Error(), "conda environment name must not be empty")
	assert.Contains(t, err.Error(), "python version must not be empty")
	assert.Contains(t, err.Error(), "dockerfile path must not be empty")
}

// TestValidate_ContainerFieldsIgnoredWhenDisabled verifies that container
// settings only matter in container mode.
func TestValidate_ContainerFieldsIgnoredWhenDisabled(t *testing.T) {
	wf := validWorkflow()
	wf.Container.Dockerfile = ""
	wf.Container.Name = ""

	assert.NoError(t, wf.Validate())
}

// TestValidateEnvironment verifies that bootstrap validation ignores the
// region and dates but still checks the environment settings.
func TestValidateEnvironment(t *testing.T) {
	wf := Default()
	assert.NoError(t, wf.ValidateEnvironment())

	wf.Conda.Binary = ""
	err := wf.ValidateEnvironment()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "conda binary must not be empty")
	assert.NotContains(t, err.Error(), "region")
}

func TestImageRef(t *testing.T) {
	tests := []struct {
		name string
		cfg  ContainerConfig
		want string
	}{
		{"repo name tag", ContainerConfig{Repo: "local", Name: "sir-model", Tag: "v2"}, "local/sir-model:v2"},
		{"no repo", ContainerConfig{Name: "sir-model", Tag: "v2"}, "sir-model:v2"},
		{"default tag", ContainerConfig{Repo: "ghcr.io/acme", Name: "sir"}, "ghcr.io/acme/sir:latest"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.ImageRef())
		})
	}
}

// TestForwardedEnv verifies the forwarded region and dates are the parsed
// values, not the raw configuration text.
func TestForwardedEnv(t *testing.T) {
	wf := validWorkflow()
	wf.Region = " PA "
	wf.Start = " 2020-03-05"
	wf.End = "2020-03-06 "

	params, err := wf.Params()
	require.NoError(t, err)

	assert.Equal(t, []string{
		"CM_ENV_STATE=PA",
		"CM_ENV_START=2020-03-05",
		"CM_ENV_END=2020-03-06",
		"CM_ENV_CONDA=sir",
		"CM_ENV_PYTHON=3.6",
	}, wf.ForwardedEnv(params))
}
