package cfg

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/keithlinneman/jangle-cms/internal/jangle"
	"github.com/keithlinneman/jangle-cms/internal/log"
)

// DB drivers accepted by -db-driver
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

type App struct {
	LogJSON             bool
	LogLevel            string
	HTTPPort            int
	AdminPort           int
	Prefix              string
	SchemaFile          string
	DBDriver            string
	DBDSN               string
	AdminDir            string
	UIOnly              bool
	EnablePprof         bool
	EnablePyroscope     bool
	EnableTracing       bool
	EnableBundleUpdates bool
	PyroServer          string
	PyroTenantID        string
	OTLPEndpoint        string
	TraceSample         float64
	StacktraceLevel     string
	IncludeErrorLinks   bool
	MaxErrorLinks       int
	BundleSSMParam      string
	BundleS3Bucket      string
	BundleS3Prefix      string
	BundlePollInterval  time.Duration
	DrainPeriod         time.Duration
	TrustedProxyHops    int
	RateLimitRPS        float64
	RateLimitBurst      int
	MaxBodyBytes        int64
}

// Register binds all config fields to the given FlagSet with defaults inline.
// -http-port defaults to 0, meaning the port is resolved from the schema
// file, then PORT, then 3000.
func Register(fs *flag.FlagSet, c *App) {
	fs.BoolVar(&c.LogJSON, "log-json", true, "JSON logs (true) or logfmt (false)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug|info|warn|error")
	fs.IntVar(&c.HTTPPort, "http-port", 0, "listen TCP port (1..65535, 0 resolves from schema file, PORT, then 3000)")
	fs.IntVar(&c.AdminPort, "admin-port", 9000, "admin listen TCP port (1..65535)")
	fs.StringVar(&c.Prefix, "prefix", "", "URL prefix the admin UI is mounted under (e.g. /admin)")
	fs.StringVar(&c.SchemaFile, "schema-file", "", "schema file (.yaml, .yml, .json or .hcl), built-in demo when empty")
	fs.StringVar(&c.DBDriver, "db-driver", DriverMemory, "memory|sqlite3|postgres")
	fs.StringVar(&c.DBDSN, "db-dsn", "", "database DSN for sqlite3/postgres")
	fs.StringVar(&c.AdminDir, "admin-dir", "", "serve the admin UI bundle from this directory instead of the embedded one")
	fs.BoolVar(&c.UIOnly, "ui-only", false, "serve only the admin UI, without the CMS engine")
	fs.BoolVar(&c.EnablePprof, "enable-pprof", true, "Enable pprof profiling (on admin port only)")
	fs.BoolVar(&c.EnableTracing, "enable-tracing", false, "Enable OTLP tracing and push to otlp-endpoint")
	fs.BoolVar(&c.EnablePyroscope, "enable-pyroscope", false, "Enable pushing Pyroscope data to server set in -pyro-server")
	fs.BoolVar(&c.EnableBundleUpdates, "enable-bundle-updates", false, "Enable loading and refreshing admin UI bundles from S3/SSM")
	fs.BoolVar(&c.IncludeErrorLinks, "include-error-links", true, "Include error links in log messages")
	fs.IntVar(&c.MaxErrorLinks, "max-error-links", 5, "max error chain depth (1..64)")
	fs.Float64Var(&c.TraceSample, "trace-sample", 0.0, "trace sampling ratio (0..1)")
	fs.StringVar(&c.StacktraceLevel, "stacktrace-level", "error", "debug|info|warn|error")
	fs.StringVar(&c.PyroServer, "pyro-server", "", "pyroscope server url to push to")
	fs.StringVar(&c.PyroTenantID, "pyro-tenant", "", "tenant (x-scope-orgid) to use for pyro-server")
	fs.StringVar(&c.OTLPEndpoint, "otlp-endpoint", "", "OTLP endpoint to push to (gRPC) (host:port)")
	fs.StringVar(&c.BundleSSMParam, "bundle-ssm-param", "", "ssm parameter name to get the admin bundle hash from")
	fs.StringVar(&c.BundleS3Bucket, "bundle-s3-bucket", "", "s3 bucket name to get the admin bundle from")
	fs.StringVar(&c.BundleS3Prefix, "bundle-s3-prefix", "", "s3 prefix (key) to get the admin bundle from")
	fs.DurationVar(&c.BundlePollInterval, "bundle-poll-interval", 30*time.Second, "how often to check SSM for a new admin bundle")
	fs.DurationVar(&c.DrainPeriod, "drain-period", 0, "how long to fail readiness before shutting down (0 skips draining)")
	fs.IntVar(&c.TrustedProxyHops, "trusted-proxy-hops", 0, "reverse proxies in front of the http listener whose X-Forwarded-For is trusted (0..8)")
	fs.Float64Var(&c.RateLimitRPS, "rate-limit-rps", 20, "per-client requests per second (0 disables rate limiting)")
	fs.IntVar(&c.RateLimitBurst, "rate-limit-burst", 40, "per-client burst size")
	fs.Int64Var(&c.MaxBodyBytes, "max-body-bytes", 1<<20, "max API request body size in bytes")
}

// FillFromEnv sets any flag not explicitly passed on the CLI from
// environment variables. Flag "foo-bar" maps to PREFIX_FOO_BAR.
// Precedence: cli flag > env var > default.
func FillFromEnv(fs *flag.FlagSet, prefix string, logf func(string, ...any)) {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	fs.VisitAll(func(f *flag.Flag) {
		key := prefix + strings.ReplaceAll(strings.ToUpper(f.Name), "-", "_")
		envVal, envSet := os.LookupEnv(key)
		if !envSet {
			return
		}
		if explicit[f.Name] {
			if logf != nil {
				logf("flag -%s: cli value %q overrides env %s=%q", f.Name, f.Value.String(), key, envVal)
			}
			return
		}
		prev := f.Value.String()
		if err := fs.Set(f.Name, envVal); err != nil {
			fs.Set(f.Name, prev)
			if logf != nil {
				logf("flag -%s: ignoring invalid env %s=%q: %v", f.Name, key, envVal, err)
			}
		}
	})
}

// Validate checks that config values are within expected ranges and formats.
// Returns an error describing all invalid fields, or nil if all valid.
func Validate(c App) error {
	var errs []error

	// Ports, 0 for http means resolve later
	if c.HTTPPort < 0 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 0..65535)", c.HTTPPort))
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid ADMIN_PORT %d (must be 1..65535)", c.AdminPort))
	}
	if c.AdminPort == c.HTTPPort {
		errs = append(errs, fmt.Errorf("ADMIN_PORT and HTTP_PORT must differ (both %d)", c.HTTPPort))
	}

	// Prefix is a plain path, "/" and "" both mean root
	if p := jangle.NormalizePrefix(c.Prefix); strings.ContainsAny(p, "?#\\ ") || strings.Contains(p, "..") {
		errs = append(errs, fmt.Errorf("invalid PREFIX %q (must be a plain path like /admin)", c.Prefix))
	}

	// Log levels
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("invalid LOG_LEVEL %q: %w", c.LogLevel, err))
	}
	if c.StacktraceLevel != "" {
		if _, err := log.ParseLevel(c.StacktraceLevel); err != nil {
			errs = append(errs, fmt.Errorf("invalid STACKTRACE_LEVEL %q: %w", c.StacktraceLevel, err))
		}
	}

	// Store
	switch c.DBDriver {
	case DriverMemory:
	case DriverSQLite, DriverPostgres:
		if c.DBDSN == "" {
			errs = append(errs, fmt.Errorf("DB_DSN required when DB_DRIVER=%s", c.DBDriver))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid DB_DRIVER %q (must be memory|sqlite3|postgres)", c.DBDriver))
	}

	// Tracing sample
	if c.TraceSample < 0 || c.TraceSample > 1 {
		errs = append(errs, fmt.Errorf("invalid TRACE_SAMPLE %.3f (must be 0..1)", c.TraceSample))
	}

	// Pyroscope (URL and scheme)
	if c.EnablePyroscope {
		if c.PyroServer == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER required when ENABLE_PYROSCOPE=true"))
		} else if u, err := url.Parse(c.PyroServer); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("PYRO_SERVER must be a URL (got %q)", c.PyroServer))
		}
		if c.PyroTenantID == "" {
			errs = append(errs, fmt.Errorf("PYRO_TENANT required when ENABLE_PYROSCOPE=true"))
		}
	}

	// OTLP tracing (grpc exporter wants host:port, no scheme)
	if c.EnableTracing {
		if c.OTLPEndpoint == "" {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT required when ENABLE_TRACING=true"))
		} else if _, _, err := net.SplitHostPort(c.OTLPEndpoint); err != nil {
			errs = append(errs, fmt.Errorf("OTLP_ENDPOINT must be host:port (got %q): %v", c.OTLPEndpoint, err))
		}
	}

	// Error link limits
	if c.IncludeErrorLinks {
		if c.MaxErrorLinks < 1 || c.MaxErrorLinks > 64 {
			errs = append(errs, fmt.Errorf("MAX_ERROR_LINKS must be 1..64 (got %d)", c.MaxErrorLinks))
		}
	}

	if c.EnableBundleUpdates {
		if c.AdminDir != "" {
			errs = append(errs, fmt.Errorf("ADMIN_DIR and ENABLE_BUNDLE_UPDATES are mutually exclusive"))
		}
		if c.BundleSSMParam == "" {
			errs = append(errs, fmt.Errorf("BUNDLE_SSM_PARAM is required when ENABLE_BUNDLE_UPDATES=true"))
		}
		if c.BundleS3Bucket == "" {
			errs = append(errs, fmt.Errorf("BUNDLE_S3_BUCKET is required when ENABLE_BUNDLE_UPDATES=true"))
		}
		if c.BundleS3Prefix == "" {
			errs = append(errs, fmt.Errorf("BUNDLE_S3_PREFIX is required when ENABLE_BUNDLE_UPDATES=true"))
		}
		if c.BundlePollInterval < time.Second {
			errs = append(errs, fmt.Errorf("invalid BUNDLE_POLL_INTERVAL %s (must be >= 1s)", c.BundlePollInterval))
		}
	}

	if c.TrustedProxyHops < 0 || c.TrustedProxyHops > 8 {
		errs = append(errs, fmt.Errorf("invalid TRUSTED_PROXY_HOPS %d (must be 0..8)", c.TrustedProxyHops))
	}

	// Limits
	if c.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("invalid RATE_LIMIT_RPS %.2f (must be >= 0)", c.RateLimitRPS))
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BURST must be >= 1 when rate limiting is enabled (got %d)", c.RateLimitBurst))
	}
	if c.DrainPeriod < 0 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_PERIOD %s (must be >= 0)", c.DrainPeriod))
	}
	if c.MaxBodyBytes < 1 {
		errs = append(errs, fmt.Errorf("invalid MAX_BODY_BYTES %d (must be > 0)", c.MaxBodyBytes))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
