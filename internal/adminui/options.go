package adminui

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/keithlinneman/jangle-cms/internal/log"
)

var ErrInvalidOptions = errors.New("invalid admin ui options")

// Source yields the active admin bundle.
type Source interface {
	// Active returns the bundle root, or false when no bundle is loaded.
	Active() (fs.FS, bool)
}

type staticSource struct{ fsys fs.FS }

func (s staticSource) Active() (fs.FS, bool) { return s.fsys, s.fsys != nil }

// Static serves a fixed directory.
func Static(fsys fs.FS) Source { return staticSource{fsys: fsys} }

type Options struct {
	Logger log.Logger
	Source Source
	// FallbackFS holds the maintenance and 404 pages used when the active
	// bundle cannot serve a request.
	FallbackFS fs.FS

	IndexFile       string // default: "index.html"
	MaintenanceFile string // default: "maintenance.html"
	NotFoundFile    string // default: "404.html"

	// APIBase is written into the index document's jangle-base-url meta
	// tag; "" means the API is served from the site root.
	APIBase string

	HTMLCacheControl  string // default: "no-cache"
	AssetCacheControl string // default: "public, max-age=31536000, immutable"
	OtherCacheControl string // default: "public, max-age=3600"
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	if o.IndexFile == "" {
		o.IndexFile = "index.html"
	}
	if o.MaintenanceFile == "" {
		o.MaintenanceFile = "maintenance.html"
	}
	if o.NotFoundFile == "" {
		o.NotFoundFile = "404.html"
	}
	if o.HTMLCacheControl == "" {
		o.HTMLCacheControl = "no-cache"
	}
	if o.AssetCacheControl == "" {
		o.AssetCacheControl = "public, max-age=31536000, immutable"
	}
	if o.OtherCacheControl == "" {
		o.OtherCacheControl = "public, max-age=3600"
	}
}

func (o *Options) validate() error {
	if o.Source == nil {
		return fmt.Errorf("%w: Source is nil", ErrInvalidOptions)
	}
	if o.FallbackFS == nil {
		return fmt.Errorf("%w: FallbackFS is nil", ErrInvalidOptions)
	}
	if _, err := fs.Stat(o.FallbackFS, o.MaintenanceFile); err != nil {
		return fmt.Errorf("%w: missing %q in fallback FS: %v", ErrInvalidOptions, o.MaintenanceFile, err)
	}
	return nil
}
