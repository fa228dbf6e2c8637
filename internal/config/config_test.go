package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmr-tortoise/sirflow/internal/model"
)

// writeFile creates a file under dir and returns its path.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// newFlagSet builds a flag set with the subset of run flags used in tests.
func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("start", "", "")
	fs.String("end", "", "")
	fs.String("env-name", "", "")
	fs.Bool("container", false, "")
	fs.Bool("reuse-env", false, "")
	return fs
}

// TestLoad_Defaults verifies that an empty directory with no environment
// yields the built-in defaults.
func TestLoad_Defaults(t *testing.T) {
	wf, path, err := Load(LoadOptions{Dir: t.TempDir()})
	require.NoError(t, err)

	assert.Empty(t, path)
	assert.Equal(t, Default(), *wf)
}

// TestLoad_YAMLFile verifies discovery and decoding of sirflow.yaml.
func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sirflow.yaml", `
state: PA
start: "2020-03-05"
end: "2020-03-06"
conda:
  env: covid
  python: "3.8"
container:
  enabled: true
  tag: v1
`)

	wf, path, err := Load(LoadOptions{Dir: dir})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "sirflow.yaml"), path)
	assert.Equal(t, "PA", wf.Region)
	assert.Equal(t, "2020-03-05", wf.Start)
	assert.Equal(t, "2020-03-06", wf.End)
	assert.Equal(t, "covid", wf.Conda.EnvName)
	assert.Equal(t, "3.8", wf.Conda.Python)
	assert.True(t, wf.Container.Enabled)
	assert.Equal(t, "v1", wf.Container.Tag)
	// Keys absent from the file keep their defaults.
	assert.Equal(t, "conda", wf.Conda.Binary)
	assert.Equal(t, "sir-model", wf.Container.Name)
}

// TestLoad_YAMLUntypedScalars verifies unquoted dates and version numbers
// reach the workflow exactly as written.
func TestLoad_YAMLUntypedScalars(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sirflow.yaml", `
state: PA
start: 2020-03-05
end: 2020-03-06
conda:
  python: 3.10
  upgrade_pip: true
container:
  tag: 1.0
`)

	wf, _, err := Load(LoadOptions{Dir: dir})
	require.NoError(t, err)

	assert.Equal(t, "2020-03-05", wf.Start)
	assert.Equal(t, "2020-03-06", wf.End)
	assert.Equal(t, "3.10", wf.Conda.Python)
	assert.True(t, wf.Conda.UpgradePip)
	assert.Equal(t, "1.0", wf.Container.Tag)
	require.NoError(t, wf.Validate())
}

// TestLoad_JSONNumbers verifies numeric JSON values keep their text.
func TestLoad_JSONNumbers(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sirflow.json", `{"conda": {"python": 3.10}}`)

	wf, _, err := Load(LoadOptions{Dir: dir})
	require.NoError(t, err)
	assert.Equal(t, "3.10", wf.Conda.Python)
}

// TestLoad_YAMLNotMapping verifies a top-level list is rejected.
func TestLoad_YAMLNotMapping(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sirflow.yaml", "- PA\n- NY\n")

	_, _, err := Load(LoadOptions{ConfigFile: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "top level must be a mapping")
}

// TestLoad_JSONCFile verifies that comments and trailing commas are
// accepted in JSON config files.
func TestLoad_JSONCFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sirflow.jsonc", `{
  // region under study
  "state": "NY",
  "start": "2020-04-01",
  "end": "2020-04-30",
  /* environment */
  "conda": {"env": "jsonc-env", "upgrade_pip": true,},
}`)

	wf, _, err := Load(LoadOptions{Dir: dir})
	require.NoError(t, err)

	assert.Equal(t, "NY", wf.Region)
	assert.Equal(t, "jsonc-env", wf.Conda.EnvName)
	assert.True(t, wf.Conda.UpgradePip)
}

// TestLoad_ExplicitFileMissing verifies that a missing --config file is
// an ExitInvalidConfig error rather than a silent fallback.
func TestLoad_ExplicitFileMissing(t *testing.T) {
	_, _, err := Load(LoadOptions{ConfigFile: filepath.Join(t.TempDir(), "nope.yaml")})
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitInvalidConfig, cliErr.Code)
}

// TestLoad_InvalidYAML verifies that a malformed file is reported.
func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.yaml", "state: [unclosed\n")

	_, _, err := Load(LoadOptions{ConfigFile: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid YAML")
}

// TestLoad_UnsupportedExtension verifies that only known extensions load.
func TestLoad_UnsupportedExtension(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sirflow.toml", "state = 'PA'\n")

	_, _, err := Load(LoadOptions{ConfigFile: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config file extension")
}

// TestLoad_EnvironmentVariables verifies both naming conventions and that
// the lower-case variant wins when both are set.
func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("CM_ENV_STATE", "PA")
	t.Setenv("cm_env_state", "NJ")
	t.Setenv("CM_ENV_START", "2020-03-05")
	t.Setenv("cm_env_end", "2020-03-06")
	t.Setenv("cm_env_conda", "from-env")
	t.Setenv("CM_DOCKER_IMAGE_TAG", "env-tag")

	wf, _, err := Load(LoadOptions{Dir: t.TempDir()})
	require.NoError(t, err)

	assert.Equal(t, "NJ", wf.Region)
	assert.Equal(t, "2020-03-05", wf.Start)
	assert.Equal(t, "2020-03-06", wf.End)
	assert.Equal(t, "from-env", wf.Conda.EnvName)
	assert.Equal(t, "env-tag", wf.Container.Tag)
}

// TestLoad_Precedence verifies file < env < flags < positional region.
func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "sirflow.yml", `
state: FILE
start: "2020-01-01"
end: "2020-01-31"
conda:
  env: file-env
`)
	t.Setenv("CM_ENV_START", "2020-02-01")
	t.Setenv("CM_ENV_CONDA", "env-env")

	fs := newFlagSet()
	require.NoError(t, fs.Parse([]string{"--env-name", "flag-env", "--container"}))

	wf, _, err := Load(LoadOptions{Dir: dir, Flags: fs, Region: "ARG"})
	require.NoError(t, err)

	assert.Equal(t, "ARG", wf.Region)
	assert.Equal(t, "2020-02-01", wf.Start, "env overrides file")
	assert.Equal(t, "2020-01-31", wf.End, "file value kept when nothing overrides it")
	assert.Equal(t, "flag-env", wf.Conda.EnvName, "flag overrides env")
	assert.True(t, wf.Container.Enabled)
}

// TestLoad_UnsetFlagsDoNotOverride verifies that registered but unset
// flags leave lower layers alone.
func TestLoad_UnsetFlagsDoNotOverride(t *testing.T) {
	t.Setenv("CM_ENV_CONDA", "env-env")

	fs := newFlagSet()
	require.NoError(t, fs.Parse(nil))

	wf, _, err := Load(LoadOptions{Dir: t.TempDir(), Flags: fs})
	require.NoError(t, err)

	assert.Equal(t, "env-env", wf.Conda.EnvName)
	assert.False(t, wf.Container.Enabled)
}
