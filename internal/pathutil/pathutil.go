// Package pathutil validates slash-separated names coming from requests and
// bundle archives before they reach an fs.FS.
package pathutil

import (
	"io/fs"
	"path"
	"strings"
)

// HasDotSegments reports whether any segment of p is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// FSName turns a request path or archive entry into an fs.FS name. Leading
// "/" and "./" are dropped. Names containing NUL, backslashes or dot
// segments are rejected, as is the root itself.
func FSName(p string) (string, bool) {
	p = strings.TrimPrefix(p, "./")
	p = strings.TrimLeft(p, "/")
	if p == "" || strings.ContainsAny(p, "\x00\\") {
		return "", false
	}
	if HasDotSegments(strings.TrimSuffix(p, "/")) {
		return "", false
	}
	name := path.Clean(p)
	if !fs.ValidPath(name) || name == "." {
		return "", false
	}
	return name, true
}
