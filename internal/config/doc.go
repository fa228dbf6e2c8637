// Package config resolves the Workflow configuration for sirflow.
//
// Sources, from lowest to highest precedence:
//   - built-in defaults (Default)
//   - sirflow.yaml / sirflow.yml / sirflow.json / sirflow.jsonc
//   - CM-style environment variables (cm_env_state, CM_ENV_STATE, ...)
//   - command-line flags and the positional REGION argument
//
// Validation happens separately in Workflow.Validate so that every problem
// can be reported at once with exit code 2.
package config
