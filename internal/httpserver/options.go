package httpserver

import (
	"net/http"

	"github.com/keithlinneman/jangle-cms/internal/health"
	"github.com/keithlinneman/jangle-cms/internal/httpmw"
	"github.com/keithlinneman/jangle-cms/internal/log"
)

// DefaultPort is used when Options.Port is 0
const DefaultPort = 3000

type Options struct {
	Logger log.Logger
	Port   int

	// App serves everything that is not a health route: the CMS API and the
	// admin UI, or the UI alone.
	App http.Handler

	Health    health.Probe // /-/healthy, skipped when nil
	Readiness health.Probe // /-/ready, skipped when nil

	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions

	// BundleInfo adds X-Admin-Bundle-Version and X-Admin-Bundle-Hash
	BundleInfo httpmw.BundleInfo

	// MaxBodyBytes caps request bodies, 0 disables the cap
	MaxBodyBytes int64
}
