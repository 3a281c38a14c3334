package uibundle

import (
	"encoding/json"
	"errors"
	"io/fs"
	"time"

	"github.com/keithlinneman/jangle-cms/internal/xerrors"
)

const manifestFile = "bundle.json"

// Snapshot is an immutable view of one bundle
type Snapshot struct {
	FS       fs.FS
	Meta     Meta
	Manifest *Manifest
	LoadedAt time.Time
}

// readManifest returns (nil, nil) when the bundle carries no bundle.json
func readManifest(fsys fs.FS) (*Manifest, error) {
	b, err := fs.ReadFile(fsys, manifestFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, xerrors.Wrapf(err, "read %s", manifestFile)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, xerrors.Wrapf(err, "parse %s", manifestFile)
	}
	return &m, nil
}

// NewSnapshot builds a snapshot around fsys, picking up bundle.json if present
func NewSnapshot(fsys fs.FS, src Source) (*Snapshot, error) {
	if fsys == nil {
		return nil, xerrors.New("uibundle: nil filesystem")
	}
	man, err := readManifest(fsys)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		FS:       fsys,
		Meta:     Meta{Source: src},
		Manifest: man,
	}
	if man != nil {
		snap.Meta.Version = man.Version
	}
	return snap, nil
}
