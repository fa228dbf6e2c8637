// Package docker provides the Container Builder for sirflow: Docker Engine
// API wrappers plus the docker CLI commands for a containerized run.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows) and a daemon pre-flight Ping
//   - Image label management; labels are the only record of which
//     images sirflow built and for which run
//   - `docker build` / `docker run` command construction, executed by the
//     runner so their exit codes propagate verbatim
//   - Image listing, inspection and removal for the images/clean commands
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
