package io

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/matzehuels/topofeat/pkg/errors"
)

// Format identifies an on-disk encoding.
type Format string

const (
	FormatNPY  Format = "npy"
	FormatJSON Format = "json"
)

// DiagramsFile returns the name of the diagram file of dimension dim.
func DiagramsFile(dim int, f Format) string {
	return fmt.Sprintf("persistence_diagrams_%ddim.%s", dim, f)
}

// FeaturesFile returns the name of the feature output of dimension dim.
func FeaturesFile(dim int) string {
	return fmt.Sprintf("persistence_landscapes_%ddim.npy", dim)
}

// DistancesFile returns the name of the distance output of dimension dim.
func DistancesFile(dim int) string {
	return fmt.Sprintf("pairwise_btnck_dist_dim%d.csv", dim)
}

// FindDiagrams locates the diagram file of dimension dim in dir, preferring
// .npy over .json. When neither exists the error is DIMENSION_MISMATCH and
// lists the dimensions that are present.
func FindDiagrams(dir string, dim int) (string, Format, error) {
	if err := errors.ValidateInputDir(dir); err != nil {
		return "", "", err
	}
	for _, f := range []Format{FormatNPY, FormatJSON} {
		path := filepath.Join(dir, DiagramsFile(dim, f))
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, f, nil
		}
	}

	present := availableDimensions(dir)
	if len(present) == 0 {
		return "", "", errors.New(errors.ErrCodeDimensionMismatch,
			"no persistence diagrams of dimension %d in %s", dim, dir)
	}
	return "", "", errors.New(errors.ErrCodeDimensionMismatch,
		"no persistence diagrams of dimension %d in %s (found dimensions %v)", dim, dir, present)
}

func availableDimensions(dir string) []int {
	var dims []int
	for dim := range errors.ValidDimensions {
		for _, f := range []Format{FormatNPY, FormatJSON} {
			if _, err := os.Stat(filepath.Join(dir, DiagramsFile(dim, f))); err == nil {
				dims = append(dims, dim)
				break
			}
		}
	}
	slices.Sort(dims)
	return dims
}

// formatOf returns the format implied by the extension of path.
func formatOf(path string) (Format, error) {
	switch filepath.Ext(path) {
	case ".npy":
		return FormatNPY, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", errors.New(errors.ErrCodeInvalidFormat, "unsupported file type %q (want .npy or .json)", filepath.Base(path))
}
