// Package docker provides a wrapper around the Docker Engine SDK client
// for the optional containerized run path of sirflow.
//
// The primary purpose of this package is to abstract Docker API
// interactions (daemon pre-flight checks, listing and removing the images
// sirflow builds) and to construct the `docker build` / `docker run`
// commands executed by the runner.
package docker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"

	"github.com/mmr-tortoise/sirflow/internal/model"
)

// defaultPingTimeout is the maximum duration to wait for a Docker daemon
// response during a Ping operation. 5 seconds is generous enough for most
// environments, including Docker Desktop on macOS which can be slower
// than native Linux Docker.
const defaultPingTimeout = 5 * time.Second

// engineAPI is the subset of the Docker SDK client used by sirflow.
// *client.Client satisfies it; tests substitute an in-memory fake.
type engineAPI interface {
	Ping(ctx context.Context) (types.Ping, error)
	ImageList(ctx context.Context, options image.ListOptions) ([]image.Summary, error)
	ImageInspect(ctx context.Context, imageID string, opts ...client.ImageInspectOption) (image.InspectResponse, error)
	ImageRemove(ctx context.Context, imageID string, options image.RemoveOptions) ([]image.DeleteResponse, error)
	Close() error
}

// Client wraps the Docker Engine SDK client. It handles automatic Docker
// socket detection across platforms (Linux, macOS, Windows) and exposes
// only the image operations sirflow needs.
//
// Usage:
//
//	c, err := docker.NewClient()
//	if err != nil { /* handle */ }
//	defer c.Close()  // Always close to release resources
//	if err := c.Ping(ctx); err != nil { /* Docker not running */ }
type Client struct {
	api engineAPI
}

// NewClient creates a new Docker client with automatic socket detection.
//
// The detection strategy follows this priority order:
//  1. DOCKER_HOST environment variable (if set, used as-is)
//  2. Platform-specific defaults:
//     - Linux: /var/run/docker.sock, then $XDG_RUNTIME_DIR/docker.sock (rootless)
//     - macOS: /var/run/docker.sock, then ~/.docker/run/docker.sock
//     - Windows: npipe:////./pipe/docker_engine (Docker Named Pipe)
//
// Returns a model.CLIError with ExitDockerNotRunning if no Docker socket
// is found or the client cannot be created.
func NewClient() (*Client, error) {
	// An explicit DOCKER_HOST is used unconditionally; the SDK parses it.
	if dockerHost := os.Getenv("DOCKER_HOST"); dockerHost != "" {
		return newClientWithHost(dockerHost)
	}

	host, err := detectDockerHost()
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"Docker socket not found",
			err,
		)
	}

	return newClientWithHost(host)
}

// newClientWithHost creates a Docker client connected to the specified host.
// The host parameter should be a valid Docker connection string (e.g.,
// "unix:///var/run/docker.sock" or "npipe:////./pipe/docker_engine").
func newClientWithHost(host string) (*Client, error) {
	// API version negotiation keeps the client compatible with older
	// daemons without hardcoding a specific API version.
	c, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to create Docker client for host %q", host),
			err,
		)
	}

	return &Client{api: c}, nil
}

// Well-known daemon addresses.
const (
	// defaultUnixSocket is the system-wide socket on Linux and the symlink
	// Docker Desktop maintains on macOS.
	defaultUnixSocket = "/var/run/docker.sock"

	// windowsPipeHost is the Docker Desktop named pipe. Its location is
	// fixed and cannot be configured.
	windowsPipeHost = "npipe:////./pipe/docker_engine"
)

// detectDockerHost returns the daemon address for the current platform.
// Unix sockets are probed on disk; the first one present wins. Whether a
// daemon is listening is left to Ping.
func detectDockerHost() (string, error) {
	switch runtime.GOOS {
	case "linux", "darwin":
		// A missing home directory only drops the per-user candidates.
		home, _ := os.UserHomeDir()
		return detectUnixSocket(socketPaths(runtime.GOOS, home, os.Getenv("XDG_RUNTIME_DIR")))

	case "windows":
		// Named pipes cannot be stat'ed. Ping reports an absent daemon.
		return windowsPipeHost, nil

	default:
		return "", fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}
}

// socketPaths lists the Unix socket candidates for goos, most preferred
// first. Candidates under an empty home or runtime directory are skipped.
//
//   - linux: the system socket, then the rootless daemon's socket under
//     $XDG_RUNTIME_DIR.
//   - darwin: the system symlink, then ~/.docker/run/docker.sock, which
//     newer Docker Desktop releases create instead.
func socketPaths(goos, home, runtimeDir string) []string {
	paths := []string{defaultUnixSocket}
	switch goos {
	case "linux":
		if runtimeDir != "" {
			paths = append(paths, filepath.Join(runtimeDir, "docker.sock"))
		}
	case "darwin":
		if home != "" {
			paths = append(paths, filepath.Join(home, ".docker", "run", "docker.sock"))
		}
	}
	return paths
}

// detectUnixSocket returns the Docker host URI for the first path that
// exists on the filesystem.
func detectUnixSocket(paths []string) (string, error) {
	for _, path := range paths {
		// A socket file can outlive its daemon; Ping catches that case.
		if _, err := os.Stat(path); err == nil {
			return "unix://" + path, nil
		}
	}
	return "", fmt.Errorf(
		"Docker socket not found at any of: %v; is Docker running?",
		paths,
	)
}

// Ping verifies that the Docker daemon is reachable and responsive.
// It is the pre-flight check before a containerized run, so a dead daemon
// is reported as ExitDockerNotRunning instead of as an opaque build failure.
func (c *Client) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	if _, err := c.api.Ping(pingCtx); err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			"Docker daemon is not responding; is Docker running?",
			err,
		)
	}
	return nil
}

// Close releases all resources held by the Docker client.
// Close is safe to call multiple times.
func (c *Client) Close() error {
	if c.api != nil {
		return c.api.Close()
	}
	return nil
}
