package adminui

import (
	"path"
	"regexp"
	"strings"
)

// bundler output like main.3f9a1c2b.js or chunk-4e5d6f7a8b.css
var hashedName = regexp.MustCompile(`[.-][0-9a-fA-F]{8,}\.[a-z0-9]+$`)

func cacheControlForFile(name string, o *Options) string {
	ext := strings.ToLower(path.Ext(name))
	switch {
	case ext == ".html" || ext == "":
		return o.HTMLCacheControl
	case hashedName.MatchString(path.Base(name)):
		return o.AssetCacheControl
	default:
		return o.OtherCacheControl
	}
}
