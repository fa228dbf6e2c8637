// Package cli: clean.go implements the "sirflow clean" command.
//
// The clean command removes the Docker images built by container runs.
// Only images carrying the "sirflow.managed-by=sirflow" label are ever
// touched. The --region flag restricts removal to images built for one
// region.
//
// By default, the command prompts for confirmation before proceeding.
// The --force flag skips the confirmation prompt and also removes images
// that stopped containers still reference.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/sirflow/internal/docker"
	"github.com/mmr-tortoise/sirflow/internal/model"
)

// cleanFlags holds the flag values for the clean command.
type cleanFlags struct {
	// force skips the interactive confirmation prompt when true.
	force bool

	// region limits removal to images built for this region.
	region string
}

// NewCleanCommand creates the "clean" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewCleanCommand() *cobra.Command {
	flags := &cleanFlags{}

	cmd := &cobra.Command{
		Use:   "clean",
		Short: "Remove images built by sirflow",
		Long: `Remove the Docker images built by container runs.

Unless --force is specified, the command lists the images and prompts for
confirmation.

Examples:
  sirflow clean
  sirflow clean --region PA
  sirflow clean --force`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runClean(cmd.Context(), flags)
		},
	}

	// Register command-specific flags.
	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "Remove without confirmation")
	cmd.Flags().StringVar(&flags.region, "region", "", "Only remove images built for this region")

	return cmd
}

// runClean is the main logic function for the clean command.
func runClean(ctx context.Context, flags *cleanFlags) error {
	// Step 1: Connect to Docker daemon.
	cli, err := docker.NewClient()
	if err != nil {
		return err
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		return err
	}
	VerboseLog("Connected to Docker daemon")

	// Step 2: Find the images to remove.
	images, err := docker.ListManagedImages(ctx, cli)
	if err != nil {
		return err
	}
	images = filterImagesByRegion(images, flags.region)
	if len(images) == 0 {
		printCleanResult(nil)
		return nil
	}

	// Step 3: Prompt for confirmation unless --force is specified.
	if !flags.force {
		confirmed, err := promptConfirmation(os.Stdin, os.Stdout, images)
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to read user input", err)
		}
		if !confirmed {
			return model.NewCLIError(model.ExitUserCancelled, "operation cancelled by user")
		}
	}

	// Step 4: Remove each image. The first failure stops the command;
	// images already removed stay removed.
	removed := make([]model.ImageInfo, 0, len(images))
	for _, img := range images {
		VerboseLog("Removing image %s (%s)...", ShortID(img.ID), FormatTags(img.Tags))
		if err := docker.RemoveImage(ctx, cli, img.ID, flags.force); err != nil {
			if len(removed) > 0 {
				printCleanResult(removed)
			}
			return err
		}
		removed = append(removed, img)
	}

	// Step 5: Output the result.
	printCleanResult(removed)
	return nil
}

// promptConfirmation lists images on out and asks the user to confirm.
// It reads a single line from in and checks for "y" or "yes".
// Returns true if the user confirmed, false otherwise.
func promptConfirmation(in io.Reader, out io.Writer, images []model.ImageInfo) (bool, error) {
	fmt.Fprintf(out, "About to remove %d sirflow image(s):\n", len(images))
	for _, img := range images {
		fmt.Fprintf(out, "  - %s %s\n", ShortID(img.ID), FormatTags(img.Tags))
	}
	fmt.Fprint(out, "\nContinue? [y/N] ")

	// bufio.Scanner handles different line endings across platforms
	// (LF on Unix, CRLF on Windows).
	scanner := bufio.NewScanner(in)
	if scanner.Scan() {
		answer := strings.TrimSpace(strings.ToLower(scanner.Text()))
		return answer == "y" || answer == "yes", nil
	}

	// If stdin is closed or an error occurred, treat it as "no".
	if err := scanner.Err(); err != nil {
		return false, err
	}

	return false, nil
}

// printCleanResult outputs the clean command result in text or JSON format.
func printCleanResult(removed []model.ImageInfo) {
	if IsJSONOutput() {
		ids := make([]string, 0, len(removed))
		for _, img := range removed {
			ids = append(ids, img.ID)
		}
		printJSON(map[string]interface{}{
			"action":  "removed",
			"count":   len(removed),
			"removed": ids,
		})
		return
	}

	if len(removed) == 0 {
		fmt.Println("No sirflow images to remove.")
		return
	}
	fmt.Printf("Removed %d image(s)\n", len(removed))
	for _, img := range removed {
		fmt.Printf("  %s %s\n", ShortID(img.ID), FormatTags(img.Tags))
	}
}
