package errors

import (
	"os"
	"strings"
	"unicode"
)

// ValidDimensions is the set of homological dimensions the tools accept.
var ValidDimensions = map[int]bool{0: true, 1: true}

// ValidateDimension checks that dim is a supported homological dimension.
func ValidateDimension(dim int) error {
	if !ValidDimensions[dim] {
		return New(ErrCodeInvalidDimension, "invalid dimension: %d (must be 0 or 1)", dim)
	}
	return nil
}

// ValidatePath validates a user supplied file or directory path.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 4096 characters
//   - No null bytes or control characters
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 4096
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}
	return nil
}

// ValidateInputFile checks that path names an existing regular file.
func ValidateInputFile(path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return New(ErrCodeFileNotFound, "input file not found: %s", path)
	}
	if err != nil {
		return Wrap(ErrCodeIO, err, "stat %s", path)
	}
	if info.IsDir() {
		return New(ErrCodeInvalidPath, "expected a file, got a directory: %s", path)
	}
	return nil
}

// ValidateInputDir checks that path names an existing directory.
func ValidateInputDir(path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return New(ErrCodeFileNotFound, "directory not found: %s", path)
	}
	if err != nil {
		return Wrap(ErrCodeIO, err, "stat %s", path)
	}
	if !info.IsDir() {
		return New(ErrCodeInvalidPath, "expected a directory, got a file: %s", path)
	}
	return nil
}

// ValidateOutputDir checks that path is usable as an output directory,
// creating it if it does not exist yet.
func ValidateOutputDir(path string) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	if strings.TrimSpace(path) != path {
		return New(ErrCodeInvalidPath, "path has leading or trailing whitespace: %q", path)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return Wrap(ErrCodeIO, err, "create output directory %s", path)
	}
	return nil
}
