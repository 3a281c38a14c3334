package jangle

import (
	"fmt"
	"strconv"
	"strings"
)

// ResolvePort picks api.Port, then PORT from getenv, then DefaultPort.
func ResolvePort(api *APIConfig, getenv func(string) string) int {
	if api != nil && api.Port > 0 {
		return api.Port
	}
	if getenv != nil {
		if v := strings.TrimSpace(getenv("PORT")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 65535 {
				return n
			}
		}
	}
	return DefaultPort
}

// ResolvePrefix returns the normalized path the admin UI is mounted under:
// cfg.Prefix, or root ("") when unset.
func ResolvePrefix(cfg Config) string { return NormalizePrefix(cfg.Prefix) }

// APIPrefix returns the normalized api.prefix the engine serves under, or
// "" when unset.
func APIPrefix(api *APIConfig) string {
	if api == nil {
		return ""
	}
	return NormalizePrefix(api.Prefix)
}

// NormalizePrefix maps "admin", "/admin" and "/admin/" to "/admin", and
// "" or "/" to "".
func NormalizePrefix(p string) string {
	p = strings.Trim(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	return "/" + p
}

// BaseURL is the externally advertised address of the engine:
// http://localhost:<port><api.prefix>. The admin UI mount prefix is not
// part of it.
func BaseURL(cfg Config, getenv func(string) string) string {
	return fmt.Sprintf("http://localhost:%d%s", ResolvePort(cfg.API, getenv), APIPrefix(cfg.API))
}
