package webassets

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed fallback public
var embedded embed.FS

// FallbackFS holds the maintenance and 404 pages.
func FallbackFS() fs.FS {
	sub, err := fs.Sub(embedded, "fallback")
	if err != nil {
		panic(fmt.Errorf("webassets: fallback subfs: %w", err))
	}
	return sub
}

// PublicFS is the admin bundle compiled into the binary.
func PublicFS() fs.FS {
	sub, err := fs.Sub(embedded, "public")
	if err != nil {
		panic(fmt.Errorf("webassets: public subfs: %w", err))
	}
	return sub
}

// SeedFS returns (fs, true) only if the embedded bundle has an index document.
func SeedFS() (fs.FS, bool) {
	sub := PublicFS()
	if _, err := fs.Stat(sub, "index.html"); err != nil {
		return nil, false
	}
	return sub, true
}
