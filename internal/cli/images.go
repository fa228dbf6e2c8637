// Package cli: images.go implements the "sirflow images" command.
//
// The images command lists the Docker images built by container runs by
// querying Docker for images with the "sirflow.managed-by=sirflow" label.
// Images are shown newest first as a text table or JSON array, depending
// on the --json flag.
//
// An optional --region flag restricts the list to images built for one
// region.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mmr-tortoise/sirflow/internal/docker"
	"github.com/mmr-tortoise/sirflow/internal/model"
)

// imagesFlags holds the flag values for the images command.
type imagesFlags struct {
	// region filters images by the region label. Empty lists all.
	region string
}

// NewImagesCommand creates the "images" cobra command.
// It is called from NewRootCommand to register as a subcommand.
func NewImagesCommand() *cobra.Command {
	flags := &imagesFlags{}

	cmd := &cobra.Command{
		Use:   "images",
		Short: "List images built by sirflow",
		Long: `List the Docker images built by container runs.

Each image is shown with its short ID, tags, the region and date range of
the run that built it, its build time and size.

Examples:
  sirflow images
  sirflow images --region PA
  sirflow images --json`,

		// No positional arguments are required for the images command.
		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runImages(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVar(&flags.region, "region", "", "Only list images built for this region")

	return cmd
}

// runImages is the main logic function for the images command.
func runImages(ctx context.Context, flags *imagesFlags) error {
	// Step 1: Connect to Docker and verify the daemon is available.
	cli, err := docker.NewClient()
	if err != nil {
		return err // NewClient already returns CLIError with ExitDockerNotRunning
	}
	defer func() { _ = cli.Close() }()

	if err := cli.Ping(ctx); err != nil {
		return err
	}
	VerboseLog("Connected to Docker daemon")

	// Step 2: List managed images, newest first.
	images, err := docker.ListManagedImages(ctx, cli)
	if err != nil {
		return err // ListManagedImages already returns CLIError
	}
	VerboseLog("Found %d managed images", len(images))

	// Step 3: Apply the --region filter.
	images = filterImagesByRegion(images, flags.region)

	// Step 4: Output results in the appropriate format.
	if IsJSONOutput() {
		printJSON(newImagesJSON(images))
	} else {
		fmt.Print(formatImagesText(images))
	}
	return nil
}

// filterImagesByRegion returns the images built for region, compared
// case-insensitively. An empty region keeps every image.
func filterImagesByRegion(images []model.ImageInfo, region string) []model.ImageInfo {
	if region == "" {
		return images
	}
	filtered := make([]model.ImageInfo, 0, len(images))
	for _, img := range images {
		if strings.EqualFold(img.Region, region) {
			filtered = append(filtered, img)
		}
	}
	return filtered
}

// imageJSON is the JSON output structure for a single image.
type imageJSON struct {
	ID        string   `json:"id"`
	Tags      []string `json:"tags"`
	Region    string   `json:"region"`
	Start     string   `json:"start"`
	End       string   `json:"end"`
	CreatedAt string   `json:"createdAt"`
	Size      int64    `json:"size"`
}

// newImagesJSON converts images into the JSON output structure. The
// top-level key is "images".
func newImagesJSON(images []model.ImageInfo) map[string][]imageJSON {
	// Use an empty slice instead of nil so JSON shows [] rather than null.
	out := make([]imageJSON, 0, len(images))
	for _, img := range images {
		tags := img.Tags
		if tags == nil {
			tags = []string{}
		}
		out = append(out, imageJSON{
			ID:        img.ID,
			Tags:      tags,
			Region:    img.Region,
			Start:     img.Start,
			End:       img.End,
			CreatedAt: img.CreatedAt.UTC().Format(time.RFC3339),
			Size:      img.Size,
		})
	}
	return map[string][]imageJSON{"images": out}
}

// formatImagesText renders images as a human-readable table:
//
//	IMAGE ID      TAGS                    REGION  START       END         CREATED               SIZE
//	3f1c9a2b7d4e  local/sir-model:latest  PA      2020-03-05  2020-03-06  2026-02-28 10:00:00   1.2 GB
func formatImagesText(images []model.ImageInfo) string {
	if len(images) == 0 {
		return "No sirflow images found.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-13s %-30s %-7s %-11s %-11s %-20s %s\n",
		"IMAGE ID", "TAGS", "REGION", "START", "END", "CREATED", "SIZE")
	for _, img := range images {
		fmt.Fprintf(&b, "%-13s %-30s %-7s %-11s %-11s %-20s %s\n",
			ShortID(img.ID),
			FormatTags(img.Tags),
			dashIfEmpty(img.Region),
			dashIfEmpty(img.Start),
			dashIfEmpty(img.End),
			img.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			FormatSize(img.Size),
		)
	}
	return b.String()
}

// ShortID returns the 12-character short form of a Docker ID, without
// the "sha256:" prefix.
//
// Example:
//
//	"sha256:3f1c9a2b7d4e5f60..." → "3f1c9a2b7d4e"
func ShortID(id string) string {
	id = strings.TrimPrefix(id, "sha256:")
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// FormatTags joins image tags with commas. Returns "<none>" for an
// untagged image, as `docker images` does.
func FormatTags(tags []string) string {
	if len(tags) == 0 {
		return "<none>"
	}
	return strings.Join(tags, ",")
}

// FormatSize renders a byte count with a decimal unit (kB, MB, GB), the
// way the docker CLI reports image sizes.
//
// Example:
//
//	999        → "999 B"
//	1234567    → "1.2 MB"
//	2500000000 → "2.5 GB"
func FormatSize(size int64) string {
	const unit = 1000
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	units := []string{"kB", "MB", "GB", "TB"}
	value := float64(size) / unit
	i := 0
	for value >= unit && i < len(units)-1 {
		value /= unit
		i++
	}
	return fmt.Sprintf("%.1f %s", value, units[i])
}

// FormatDuration renders a step duration rounded for display.
//
// Example:
//
//	1234567890ns → "1.2s"
//	42ms         → "42ms"
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

// dashIfEmpty returns "-" for an empty table cell.
func dashIfEmpty(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
