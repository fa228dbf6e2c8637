// Package config builds the single Workflow configuration that drives a
// sirflow run.
//
// Values are layered from lowest to highest precedence: built-in defaults,
// an optional config file (YAML, or JSON with comments), environment
// variables under the CM naming conventions, and finally command-line flags.
// The layering is done by github.com/spf13/viper; the file itself is decoded
// by gopkg.in/yaml.v3 or github.com/tidwall/jsonc depending on its extension.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/mmr-tortoise/sirflow/internal/model"
)

// Configuration keys. Nested keys use viper's dot notation and map onto
// the mapstructure tags of Workflow.
const (
	KeyState  = "state"
	KeyStart  = "start"
	KeyEnd    = "end"
	KeyStatus = "status_file"

	KeyCondaBinary     = "conda.binary"
	KeyCondaEnv        = "conda.env"
	KeyCondaPython     = "conda.python"
	KeyCondaPackageDir = "conda.package_dir"
	KeyCondaUpgradePip = "conda.upgrade_pip"
	KeyCondaReuseEnv   = "conda.reuse_env"

	KeyModelScript  = "model.script"
	KeyModelWorkDir = "model.workdir"

	KeyContainerEnabled    = "container.enabled"
	KeyContainerDockerfile = "container.dockerfile"
	KeyContainerContext    = "container.context"
	KeyContainerBaseImage  = "container.base_image"
	KeyContainerRepo       = "container.repo"
	KeyContainerName       = "container.name"
	KeyContainerTag        = "container.tag"
	KeyContainerRunCmd     = "container.run_cmd"
	KeyContainerRunExtra   = "container.run_cmd_extra"
)

// FileBaseName is the config file name searched for in the working
// directory, without extension.
const FileBaseName = "sirflow"

// fileExtensions lists the recognized config file extensions in
// discovery order.
var fileExtensions = []string{".yaml", ".yml", ".json", ".jsonc"}

// envBindings maps each configuration key to the environment variables
// that may set it. Names are checked in order, so the lower-case CM
// variant wins when both are present.
var envBindings = map[string][]string{
	KeyState:       {"cm_env_state", "CM_ENV_STATE"},
	KeyStart:       {"cm_env_start", "CM_ENV_START"},
	KeyEnd:         {"cm_env_end", "CM_ENV_END"},
	KeyCondaEnv:    {"cm_env_conda", "CM_ENV_CONDA"},
	KeyCondaPython: {"cm_env_python", "CM_ENV_PYTHON"},

	KeyContainerBaseImage:  {"CM_DOCKER_IMAGE_BASE"},
	KeyContainerName:       {"CM_DOCKER_IMAGE_NAME"},
	KeyContainerRepo:       {"CM_DOCKER_IMAGE_REPO"},
	KeyContainerTag:        {"CM_DOCKER_IMAGE_TAG"},
	KeyContainerRunCmd:     {"CM_DOCKER_RUN_CMD"},
	KeyContainerRunExtra:   {"CM_DOCKER_RUN_CMD_EXTRA"},
	KeyContainerDockerfile: {"CM_DOCKERFILE_WITH_PATH"},
}

// FlagKeys maps command-line flag names to configuration keys. Load binds
// every entry whose flag is present in the supplied FlagSet; flags that
// are not registered on a given command are simply skipped.
var FlagKeys = map[string]string{
	"start":       KeyStart,
	"end":         KeyEnd,
	"status-file": KeyStatus,
	"conda-bin":   KeyCondaBinary,
	"env-name":    KeyCondaEnv,
	"python":      KeyCondaPython,
	"package-dir": KeyCondaPackageDir,
	"upgrade-pip": KeyCondaUpgradePip,
	"reuse-env":   KeyCondaReuseEnv,
	"script":      KeyModelScript,
	"workdir":     KeyModelWorkDir,
	"container":   KeyContainerEnabled,
	"dockerfile":  KeyContainerDockerfile,
	"context":     KeyContainerContext,
	"base-image":  KeyContainerBaseImage,
	"image-repo":  KeyContainerRepo,
	"image-name":  KeyContainerName,
	"image-tag":   KeyContainerTag,
	"run-cmd":     KeyContainerRunCmd,
	"run-args":    KeyContainerRunExtra,
}

// LoadOptions controls where Load looks for configuration.
type LoadOptions struct {
	// ConfigFile is an explicit config file path. When set, the file must
	// exist. When empty, Dir is searched for sirflow.{yaml,yml,json,jsonc}.
	ConfigFile string

	// Dir is the directory searched for a config file. Empty means the
	// current working directory.
	Dir string

	// Flags is the command's flag set. Flags listed in FlagKeys that were
	// explicitly set take precedence over every other source.
	Flags *pflag.FlagSet

	// Region, when non-empty, overrides every other source for the region
	// code. It carries the positional REGION argument.
	Region string
}

// Load resolves the Workflow configuration from all sources. It does not
// validate the result; callers run Validate before using it so that
// read-only commands (such as plan) can report problems uniformly.
//
// Returns the configuration and the path of the config file that was
// used (empty when only defaults, environment and flags contributed).
func Load(opts LoadOptions) (*Workflow, string, error) {
	// Step 1: Defaults and environment bindings. viper reads bound
	// variables lazily, so they only count when no flag was set.
	v := viper.New()
	setDefaults(v)

	for key, names := range envBindings {
		// BindEnv's first argument is the key; the rest are env var names
		// consulted in order. It only errors when called with no arguments.
		_ = v.BindEnv(append([]string{key}, names...)...)
	}

	// Step 2: The config file, explicit or discovered. Its values sit
	// above the defaults and below the environment.
	path, err := resolveFile(opts)
	if err != nil {
		return nil, "", err
	}
	if path != "" {
		values, err := readFile(path)
		if err != nil {
			return nil, "", model.WrapCLIError(model.ExitInvalidConfig,
				fmt.Sprintf("failed to load config file %s", path), err)
		}
		if err := v.MergeConfigMap(values); err != nil {
			return nil, "", model.WrapCLIError(model.ExitInvalidConfig,
				fmt.Sprintf("failed to merge config file %s", path), err)
		}
	}

	// Step 3: Flags. BindPFlag only takes effect for flags the user
	// actually changed; an unset flag does not shadow the file or env.
	if opts.Flags != nil {
		for name, key := range FlagKeys {
			if f := opts.Flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, "", fmt.Errorf("failed to bind flag --%s: %w", name, err)
				}
			}
		}
	}

	// Step 4: The positional REGION beats everything.
	if opts.Region != "" {
		v.Set(KeyState, opts.Region)
	}

	var wf Workflow
	if err := v.Unmarshal(&wf); err != nil {
		return nil, "", model.WrapCLIError(model.ExitInvalidConfig, "failed to decode configuration", err)
	}

	return &wf, path, nil
}

// setDefaults registers the built-in defaults from Default.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(KeyState, d.Region)
	v.SetDefault(KeyStart, d.Start)
	v.SetDefault(KeyEnd, d.End)
	v.SetDefault(KeyStatus, d.StatusFile)
	v.SetDefault(KeyCondaBinary, d.Conda.Binary)
	v.SetDefault(KeyCondaEnv, d.Conda.EnvName)
	v.SetDefault(KeyCondaPython, d.Conda.Python)
	v.SetDefault(KeyCondaPackageDir, d.Conda.PackageDir)
	v.SetDefault(KeyCondaUpgradePip, d.Conda.UpgradePip)
	v.SetDefault(KeyCondaReuseEnv, d.Conda.ReuseEnv)
	v.SetDefault(KeyModelScript, d.Model.Script)
	v.SetDefault(KeyModelWorkDir, d.Model.WorkDir)
	v.SetDefault(KeyContainerEnabled, d.Container.Enabled)
	v.SetDefault(KeyContainerDockerfile, d.Container.Dockerfile)
	v.SetDefault(KeyContainerContext, d.Container.Context)
	v.SetDefault(KeyContainerBaseImage, d.Container.BaseImage)
	v.SetDefault(KeyContainerRepo, d.Container.Repo)
	v.SetDefault(KeyContainerName, d.Container.Name)
	v.SetDefault(KeyContainerTag, d.Container.Tag)
	v.SetDefault(KeyContainerRunCmd, d.Container.RunCommand)
	v.SetDefault(KeyContainerRunExtra, d.Container.RunExtraArgs)
}

// resolveFile returns the config file to load, or "" when none applies.
// An explicit path that does not exist is an error; a missing file during
// discovery is not.
func resolveFile(opts LoadOptions) (string, error) {
	if opts.ConfigFile != "" {
		if _, err := os.Stat(opts.ConfigFile); err != nil {
			return "", model.WrapCLIError(model.ExitInvalidConfig,
				fmt.Sprintf("config file not found: %s", opts.ConfigFile), err)
		}
		return opts.ConfigFile, nil
	}

	dir := opts.Dir
	if dir == "" {
		dir = "."
	}
	for _, ext := range fileExtensions {
		candidate := filepath.Join(dir, FileBaseName+ext)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", nil
}

// readFile decodes a config file into a generic map. YAML files go through
// yaml.v3; JSON files have comments and trailing commas stripped by jsonc
// before being handed to encoding/json.
//
// Numbers and dates keep the text they were written as, so `python: 3.10`
// stays "3.10" and an unquoted `start: 2020-03-05` stays a date string.
func readFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	values := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if values, err = decodeYAML(data); err != nil {
			return nil, fmt.Errorf("invalid YAML: %w", err)
		}
	case ".json", ".jsonc":
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.UseNumber()
		if err := dec.Decode(&values); err != nil {
			return nil, fmt.Errorf("invalid JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q (want one of %s)",
			filepath.Ext(path), strings.Join(fileExtensions, ", "))
	}

	// An empty YAML document decodes to a nil map.
	if values == nil {
		values = map[string]any{}
	}
	return values, nil
}

// decodeYAML decodes a YAML document into a generic map. Float and
// timestamp scalars are kept as their source text instead of being typed.
func decodeYAML(data []byte) (map[string]any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return map[string]any{}, nil
	}

	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: top level must be a mapping", root.Line)
	}
	v, err := yamlValue(root)
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

// yamlValue converts n to the generic value viper merges.
func yamlValue(n *yaml.Node) (any, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return yamlValue(n.Alias)
	case yaml.MappingNode:
		m := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := yamlValue(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			m[n.Content[i].Value] = v
		}
		return m, nil
	case yaml.ScalarNode:
		switch n.ShortTag() {
		case "!!float", "!!timestamp":
			return n.Value, nil
		}
	}

	var v any
	if err := n.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
