package uibundle

import (
	"io/fs"

	"github.com/keithlinneman/jangle-cms/internal/xerrors"
)

// ValidationOptions controls which checks ValidateSnapshot performs.
type ValidationOptions struct {
	// MinFiles rejects bundles with fewer than this many files.
	// 0 disables the check.
	MinFiles int

	// RequireManifest fails validation when bundle.json is missing.
	RequireManifest bool
}

// DefaultValidationOptions returns the production defaults: an index
// document plus at least one script or stylesheet.
func DefaultValidationOptions() ValidationOptions {
	return ValidationOptions{MinFiles: 2}
}

// ValidateSnapshot checks a bundle before it is swapped into the Manager.
// Returns the first failure.
func ValidateSnapshot(snap *Snapshot, opts ValidationOptions) error {
	if snap == nil {
		return xerrors.New("validate: snapshot is nil")
	}
	if snap.FS == nil {
		return xerrors.New("validate: snapshot has nil filesystem")
	}

	if err := checkIndexHTML(snap.FS); err != nil {
		return err
	}

	if opts.MinFiles > 0 {
		count, err := countFiles(snap.FS)
		if err != nil {
			return xerrors.Wrap(err, "validate: counting files")
		}
		if count < opts.MinFiles {
			return xerrors.Newf("validate: bundle has %d files, minimum is %d", count, opts.MinFiles)
		}
	}

	if snap.Manifest == nil && opts.RequireManifest {
		return xerrors.New("validate: bundle.json is required but missing")
	}

	return nil
}

// checkIndexHTML verifies index.html exists and has content.
func checkIndexHTML(fsys fs.FS) error {
	info, err := fs.Stat(fsys, "index.html")
	if err != nil {
		return xerrors.Wrap(err, "validate: index.html not found")
	}
	if info.IsDir() || info.Size() == 0 {
		return xerrors.New("validate: index.html is empty")
	}
	return nil
}

func countFiles(fsys fs.FS) (int, error) {
	count := 0
	err := fs.WalkDir(fsys, ".", func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	return count, err
}
