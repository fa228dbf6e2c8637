// Package conda provides the environment bootstrap commands for sirflow.
//
// All conda operations are performed via os/exec calls to the conda binary
// (or a drop-in such as mamba), rather than touching environment
// directories directly. This approach:
//   - Respects the user's .condarc (channels, envs_dirs, proxy settings)
//   - Uses the exact same conda behavior the user sees in their terminal
//   - Works unchanged with mamba and micromamba
//
// The Manager builds create, pip-upgrade, editable-install and run
// commands, and can query existing environments.
package conda
