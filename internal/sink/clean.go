package sink

import (
	"os"
	"path/filepath"

	ferrors "git.home.luguber.info/inful/assetbuilder/internal/foundation/errors"
)

// Clean removes root and everything under it, then recreates it empty.
// Calling it on an already clean root is a no-op that succeeds.
func Clean(root string) error {
	if root == "" {
		return ferrors.ValidationError("output root is required").Build()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "resolve output root").
			WithContext("root", root).
			Build()
	}
	if abs == filepath.VolumeName(abs)+string(filepath.Separator) {
		return ferrors.ValidationError("refusing to clean filesystem root").WithContext("root", abs).Build()
	}

	if entries, err := os.ReadDir(abs); err == nil && len(entries) == 0 {
		return nil
	}
	if err := os.RemoveAll(abs); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "remove output root").
			WithContext("root", abs).
			Build()
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryFileSystem, "recreate output root").
			WithContext("root", abs).
			Build()
	}
	return nil
}
