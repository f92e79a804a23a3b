// Package build orchestrates whole builds: clean the build root, run every
// task concurrently and aggregate failures; and, in watch mode, re-run only
// the tasks a change affects.
package build

import (
	"fmt"
	"os"

	ferrors "github.com/conneroisu/assetforge/internal/errors"
	"github.com/conneroisu/assetforge/internal/validation"
)

// Clean removes the build root recursively. A missing root is not an error.
func Clean(buildRoot string) error {
	if err := validation.ValidatePath(buildRoot); err != nil {
		return ferrors.NewConfigError(ferrors.ErrCodeConfigInvalid,
			fmt.Sprintf("refusing to clean %q: %v", buildRoot, err)).WithContext("key", "paths.build")
	}

	if err := os.RemoveAll(buildRoot); err != nil {
		return ferrors.NewIOError(ferrors.ErrCodeCleanFailed, "failed to clean build root", err).
			WithFile(buildRoot)
	}
	return nil
}
