package docker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mmr-tortoise/sirflow/internal/model"
)

// Label key constants define the Docker label keys stamped on every image
// sirflow builds. They make built images discoverable for the images and
// clean commands without any external state file.
//
// All keys share the "sirflow." prefix to namespace them and avoid
// collisions with labels set by base images or other tools.
const (
	// LabelPrefix is the common prefix for all sirflow labels.
	LabelPrefix = "sirflow."

	// LabelManagedBy identifies images built by sirflow.
	// Key: "sirflow.managed-by", Value: always "sirflow".
	LabelManagedBy = LabelPrefix + "managed-by"

	// LabelRegion stores the region code of the run that built the image.
	LabelRegion = LabelPrefix + "region"

	// LabelStart stores the start date (YYYY-MM-DD) of that run.
	LabelStart = LabelPrefix + "start"

	// LabelEnd stores the end date (YYYY-MM-DD) of that run.
	LabelEnd = LabelPrefix + "end"
)

// ManagedByValue is the constant value for the LabelManagedBy label.
const ManagedByValue = "sirflow"

// BuildLabels constructs the label map for an image built for params.
// Labels depend only on params, so the same run always renders the same
// `docker build` command line. The build time is the image's own Created
// field.
func BuildLabels(params model.RunParams) map[string]string {
	return map[string]string{
		LabelManagedBy: ManagedByValue,
		LabelRegion:    params.Region,
		LabelStart:     params.StartString(),
		LabelEnd:       params.EndString(),
	}
}

// LabelArgs renders labels as `--label key=value` arguments, sorted by key
// so that the same labels always produce the same command line.
func LabelArgs(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		args = append(args, "--label", k+"="+labels[k])
	}
	return args
}

// ParseLabels reconstructs the run metadata of a built image from its
// labels. It is the inverse of BuildLabels.
//
// Required labels: managed-by, region, start, end. All missing labels are
// reported together. CreatedAt is left zero; callers take it from the image.
func ParseLabels(labels map[string]string) (*model.ImageInfo, error) {
	requiredKeys := []string{
		LabelManagedBy,
		LabelRegion,
		LabelStart,
		LabelEnd,
	}

	var missing []string
	for _, key := range requiredKeys {
		if _, ok := labels[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required Docker labels: %s", strings.Join(missing, ", "))
	}

	if labels[LabelManagedBy] != ManagedByValue {
		return nil, fmt.Errorf(
			"label %s has unexpected value %q (expected %q)",
			LabelManagedBy, labels[LabelManagedBy], ManagedByValue,
		)
	}

	return &model.ImageInfo{
		Region: labels[LabelRegion],
		Start:  labels[LabelStart],
		End:    labels[LabelEnd],
	}, nil
}

// FilterLabel returns the "key=value" label filter that selects images
// built by sirflow in the Docker API's image listing endpoint.
func FilterLabel() string {
	return LabelManagedBy + "=" + ManagedByValue
}
