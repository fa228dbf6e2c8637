// image.go implements the Container Builder: it constructs the
// `docker build` and `docker run` commands for a containerized sirflow run,
// and lists, inspects and removes the images those runs leave behind.
//
// Build and run go through the docker CLI rather than the SDK so that build
// progress and the model's output stream straight to the user's terminal,
// and so that the CLI's exit code (which for `docker run` is the exit code
// of the command inside the container) propagates unchanged.
package docker

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"mvdan.cc/sh/v3/shell"

	"github.com/mmr-tortoise/sirflow/internal/model"
)

// dockerBinary is the docker CLI executable.
const dockerBinary = "docker"

// BaseImageArg is the build argument that carries the base image into the
// Dockerfile (`ARG BASE_IMAGE` / `FROM ${BASE_IMAGE}`).
const BaseImageArg = "BASE_IMAGE"

// BuildSpec describes one image build.
type BuildSpec struct {
	// Dockerfile is the path to the Dockerfile.
	Dockerfile string

	// Context is the build context directory.
	Context string

	// BaseImage is passed as the BASE_IMAGE build argument when non-empty.
	BaseImage string

	// Image is the full reference to tag the result with (repo/name:tag).
	Image string

	// Labels are stamped on the image.
	Labels map[string]string
}

// BuildCommand returns the `docker build` invocation for spec:
//
//	docker build -f <Dockerfile> [--build-arg BASE_IMAGE=<base>] [--label k=v]... -t <image> <context>
func BuildCommand(spec BuildSpec) model.Command {
	buildContext := spec.Context
	if buildContext == "" {
		buildContext = "."
	}

	args := []string{"build", "-f", spec.Dockerfile}
	if spec.BaseImage != "" {
		args = append(args, "--build-arg", BaseImageArg+"="+spec.BaseImage)
	}
	args = append(args, LabelArgs(spec.Labels)...)
	args = append(args, "-t", spec.Image, buildContext)

	return model.Command{
		Step: model.StepBuildImage,
		Name: dockerBinary,
		Args: args,
	}
}

// RunSpec describes one container run.
type RunSpec struct {
	// Image is the image reference to run.
	Image string

	// Env holds KEY=VALUE pairs forwarded with --env, in order.
	Env []string

	// ExtraArgs is a shell-word string of extra `docker run` arguments
	// (e.g. "--memory 4g -v $PWD/out:/out"). Words are split with POSIX
	// shell rules; $VARS are expanded from the environment.
	ExtraArgs string

	// Command is the argv run inside the container.
	Command []string
}

// RunCommand returns the `docker run` invocation for spec:
//
//	docker run --rm [--env K=V]... [extra...] <image> <command...>
//
// The container is removed on exit; docker run's exit code is the exit
// code of the command inside the container.
func RunCommand(spec RunSpec) (model.Command, error) {
	extra, err := SplitWords(spec.ExtraArgs, os.Getenv)
	if err != nil {
		return model.Command{}, model.WrapCLIError(model.ExitInvalidConfig,
			fmt.Sprintf("invalid docker run arguments %q", spec.ExtraArgs), err)
	}

	args := make([]string, 0, 2+len(spec.Env)*2+len(extra)+1+len(spec.Command))
	args = append(args, "run", "--rm")
	for _, kv := range spec.Env {
		args = append(args, "--env", kv)
	}
	args = append(args, extra...)
	args = append(args, spec.Image)
	args = append(args, spec.Command...)

	return model.Command{
		Step: model.StepRunContainer,
		Name: dockerBinary,
		Args: args,
	}, nil
}

// SplitWords splits s into words using POSIX shell quoting rules, expanding
// parameters through env. An empty or blank string yields no words.
func SplitWords(s string, env func(string) string) ([]string, error) {
	if env == nil {
		env = func(string) string { return "" }
	}
	return shell.Fields(s, env)
}

// ListManagedImages queries the Docker daemon for every image labeled
// "sirflow.managed-by=sirflow" and returns them newest first.
//
// Images whose labels cannot be parsed are still returned with whatever
// metadata is available, so they remain visible to the clean command.
func ListManagedImages(ctx context.Context, c *Client) ([]model.ImageInfo, error) {
	summaries, err := c.api.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("label", FilterLabel())),
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker images",
			err,
		)
	}

	result := make([]model.ImageInfo, 0, len(summaries))
	for _, s := range summaries {
		result = append(result, summaryToInfo(s))
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// summaryToInfo converts a Docker API image summary to ImageInfo.
// Region and dates are left empty when the run labels are unusable.
func summaryToInfo(s image.Summary) model.ImageInfo {
	info := model.ImageInfo{
		ID:        s.ID,
		Tags:      s.RepoTags,
		CreatedAt: time.Unix(s.Created, 0).UTC(),
		Size:      s.Size,
	}

	if parsed, err := ParseLabels(s.Labels); err == nil {
		info.Region = parsed.Region
		info.Start = parsed.Start
		info.End = parsed.End
	}
	return info
}

// InspectImage returns the metadata of a single image by reference or ID.
// It is used after a build to confirm the image exists and to report its ID.
func InspectImage(ctx context.Context, c *Client, ref string) (model.ImageInfo, error) {
	resp, err := c.api.ImageInspect(ctx, ref)
	if err != nil {
		return model.ImageInfo{}, model.WrapCLIError(
			model.ExitGeneralError,
			fmt.Sprintf("failed to inspect image %q", ref),
			err,
		)
	}

	info := model.ImageInfo{
		ID:   resp.ID,
		Tags: resp.RepoTags,
		Size: resp.Size,
	}
	// Created is RFC3339Nano; an unparseable value leaves CreatedAt zero.
	if created, err := time.Parse(time.RFC3339Nano, resp.Created); err == nil {
		info.CreatedAt = created.UTC()
	}
	if resp.Config != nil {
		if parsed, err := ParseLabels(resp.Config.Labels); err == nil {
			info.Region = parsed.Region
			info.Start = parsed.Start
			info.End = parsed.End
		}
	}
	return info, nil
}

// RemoveImage deletes an image by ID. With force, tagged images referenced
// by stopped containers are removed as well.
func RemoveImage(ctx context.Context, c *Client, imageID string, force bool) error {
	_, err := c.api.ImageRemove(ctx, imageID, image.RemoveOptions{
		Force:         force,
		PruneChildren: true,
	})
	if err != nil {
		return model.WrapCLIError(
			model.ExitGeneralError,
			fmt.Sprintf("failed to remove image %q", imageID),
			err,
		)
	}
	return nil
}
