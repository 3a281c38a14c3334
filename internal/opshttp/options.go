package opshttp

import (
	"net/http"

	"github.com/keithlinneman/jangle-cms/internal/health"
)

// Options configures the ops listener. Zero Port means 9000.
type Options struct {
	Port int

	Health    health.Probe
	Readiness health.Probe

	// optional endpoints, skipped when nil
	Metrics http.Handler
	Bundle  http.Handler

	EnablePprof  bool
	UseRecoverMW bool
	OnPanic      func()
}
