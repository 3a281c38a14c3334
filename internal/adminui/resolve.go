package adminui

import (
	"io/fs"
	"strings"

	"github.com/keithlinneman/jangle-cms/internal/pathutil"
)

// resolveAsset maps a path below the public mount to a file in fsys.
// Directories never resolve; the document route owns navigation URLs.
func resolveAsset(urlPath string, fsys fs.FS) (string, bool) {
	if strings.Contains(urlPath, "..") {
		return "", false
	}
	name, ok := pathutil.FSName(urlPath)
	if !ok || !existsFile(fsys, name) {
		return "", false
	}
	return name, true
}

func existsFile(fsys fs.FS, name string) bool {
	if name == "" || !fs.ValidPath(name) {
		return false
	}
	info, err := fs.Stat(fsys, name)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
