package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/keithlinneman/jangle-cms/internal/adminui"
	"github.com/keithlinneman/jangle-cms/internal/cfg"
	"github.com/keithlinneman/jangle-cms/internal/engine"
	"github.com/keithlinneman/jangle-cms/internal/health"
	"github.com/keithlinneman/jangle-cms/internal/httpmw"
	"github.com/keithlinneman/jangle-cms/internal/httpserver"
	"github.com/keithlinneman/jangle-cms/internal/jangle"
	"github.com/keithlinneman/jangle-cms/internal/log"
	"github.com/keithlinneman/jangle-cms/internal/metrics"
	"github.com/keithlinneman/jangle-cms/internal/opshttp"
	"github.com/keithlinneman/jangle-cms/internal/otelx"
	"github.com/keithlinneman/jangle-cms/internal/prof"
	"github.com/keithlinneman/jangle-cms/internal/ratelimit"
	"github.com/keithlinneman/jangle-cms/internal/uibundle"
	v "github.com/keithlinneman/jangle-cms/internal/version"
	"github.com/keithlinneman/jangle-cms/internal/webassets"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	vi := v.Get()

	var conf cfg.App
	var showVersion bool

	// Parse config from flags and env
	cfg.Register(flag.CommandLine, &conf)
	flag.BoolVar(&showVersion, "V", false, "Print version+build information and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(vi.String())
		os.Exit(0)
	}

	cfg.FillFromEnv(flag.CommandLine, "JANGLE_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := cfg.Validate(conf); err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}

	// Setup logging
	lvl, err := log.ParseLevel(conf.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid log level %s: %v\n", conf.LogLevel, err)
		os.Exit(1)
	}
	stackLvl, err := log.ParseLevel(conf.StacktraceLevel)
	if err != nil {
		stackLvl = lvl
	}
	lg, err := log.New(log.Options{
		App:               v.AppName,
		Version:           vi.Version,
		Commit:            vi.Commit,
		Level:             lvl,
		StacktraceLevel:   stackLvl,
		JsonFormat:        conf.LogJSON,
		MaxErrorLinks:     conf.MaxErrorLinks,
		IncludeErrorLinks: conf.IncludeErrorLinks,
		Writer:            os.Stderr,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger init error:", err)
		os.Exit(1)
	}
	defer lg.Sync()
	L := log.Component(lg, "server")
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"build_date", vi.BuildDate,
		"go_version", vi.GoVersion,
		"http_port", conf.HTTPPort,
		"admin_port", conf.AdminPort,
		"prefix", conf.Prefix,
		"schema_file", conf.SchemaFile,
		"db_driver", conf.DBDriver,
		"ui_only", conf.UIOnly,
		"admin_dir", conf.AdminDir,
		"enable_pprof", conf.EnablePprof,
		"enable_pyroscope", conf.EnablePyroscope,
		"enable_tracing", conf.EnableTracing,
		"enable_bundle_updates", conf.EnableBundleUpdates,
		"otlp_endpoint", conf.OTLPEndpoint,
		"trace_sample", conf.TraceSample,
		"bundle_ssm_param", conf.BundleSSMParam,
		"bundle_s3_bucket", conf.BundleS3Bucket,
		"bundle_s3_prefix", conf.BundleS3Prefix,
		"rate_limit_rps", conf.RateLimitRPS,
		"trusted_proxy_hops", conf.TrustedProxyHops,
	)

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, "server", vi)

	// Setup pyroscope profiling
	stopProf, err := prof.Start(ctx, prof.Options{
		Enabled:       conf.EnablePyroscope,
		AppName:       v.AppName,
		ServerAddress: conf.PyroServer,
		TenantID:      conf.PyroTenantID,
		Tags: map[string]string{
			"app":       v.AppName,
			"component": "server",
			"version":   vi.Version,
			"commit":    vi.Commit,
			"source":    "go-agent",
		},
	})
	if err != nil {
		L.Error(ctx, err, "pyroscope start failed", "pyro_server", conf.PyroServer)
	}
	m.SetProfilingActive(conf.EnablePyroscope && err == nil)
	defer func() { stopProf() }()

	// Insecure is true because we are only writing to a collector on localhost
	shutdownOTEL, err := otelx.Init(ctx, otelx.Options{
		Enabled:    conf.EnableTracing,
		Endpoint:   conf.OTLPEndpoint,
		Insecure:   true,
		Sample:     conf.TraceSample,
		Service:    v.AppName,
		Component:  "server",
		Version:    vi.Version,
		Attributes: map[string]string{"jangle.db_driver": conf.DBDriver},
	})
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	defer func() { _ = shutdownOTEL(context.Background()) }()

	// admin UI bundle: -admin-dir, else the embedded seed, replaced by S3 when enabled
	bundles, err := setupBundles(ctx, log.Component(lg, "bundle"), conf, m)
	if err != nil {
		L.Error(ctx, err, "admin bundle setup failed")
		os.Exit(1)
	}

	var gate health.ShutdownGate
	var app http.Handler
	var readiness health.Probe
	var listenPort int
	// nil in ui-only mode
	var cms *jangle.Handle

	if conf.UIOnly {
		listenPort = conf.HTTPPort
		if listenPort == 0 {
			listenPort = jangle.ResolvePort(nil, os.Getenv)
		}
		r := chi.NewRouter()
		if _, err := adminui.Mount(r, jangle.NormalizePrefix(conf.Prefix), adminui.Options{
			Logger:     L,
			Source:     bundles,
			FallbackFS: webassets.FallbackFS(),
		}); err != nil {
			L.Error(ctx, err, "mount admin ui")
			os.Exit(1)
		}
		app = r
		readiness = health.All(gate.Probe(), health.CheckFunc(func(context.Context) error {
			return bundles.ReadyErr()
		}))
	} else {
		jcfg, err := loadSchema(conf)
		if err != nil {
			L.Error(ctx, err, "failed to load schema", "schema_file", conf.SchemaFile)
			os.Exit(1)
		}
		listenPort = jangle.ResolvePort(jcfg.API, os.Getenv)
		m.SetCollections(len(jcfg.Lists), len(jcfg.Items))

		store, err := openStore(conf)
		if err != nil {
			L.Error(ctx, err, "failed to open store", "db_driver", conf.DBDriver)
			os.Exit(1)
		}

		h, err := jangle.Start(ctx, jcfg, jangle.Options{
			Engine:  jangle.CMS(store, log.Component(lg, "store"), m),
			Bundles: bundles,
			Getenv:  os.Getenv,
			Logger:  L,
			// ready is reported once the listener is bound
			OnState: func(s jangle.State) {
				if s != jangle.StateReady {
					m.SetStartState(string(s))
				}
			},
		})
		if err != nil {
			// jangle.Start already logged the cause
			_ = store.Close()
			os.Exit(1)
		}
		defer func() { _ = h.App.Close() }()
		cms = h

		app = h.App
		readiness = health.All(
			gate.Probe(),
			health.Ping("store", h.App, 2*time.Second),
			health.CheckFunc(func(context.Context) error {
				return bundles.ReadyErr()
			}),
		)
	}

	var rateLimitMW func(http.Handler) http.Handler
	if conf.RateLimitRPS > 0 {
		limiter := ratelimit.New(ctx,
			ratelimit.WithRate(conf.RateLimitRPS, conf.RateLimitBurst),
			ratelimit.WithOnDenied(func(ip string) {
				m.IncRateLimitDenied()
			}),
			// only log the first time an ip is denied each time it is cleaned from the bucket
			ratelimit.WithOnFirstDenied(func(ip string) {
				L.Warn(ctx, "rate limit triggered", "ip", ip)
			}),
			ratelimit.WithOnCapacity(func() {
				m.IncRateLimitCapacity()
				L.Warn(ctx, "rate limit capacity reached, rejecting new visitors until some are evicted")
			}),
		)
		rateLimitMW = limiter.Middleware
	}

	appHTTPStop, err := httpserver.Start(ctx, httpserver.Options{
		Logger:       L,
		Port:         listenPort,
		App:          app,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
		MetricsMW:    m.Middleware,
		RateLimitMW:  rateLimitMW,
		ClientIPOpts: httpmw.ClientIPOptions{TrustedHops: conf.TrustedProxyHops},
		BundleInfo:   bundles,
		MaxBodyBytes: conf.MaxBodyBytes,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start http listener", "port", listenPort)
		os.Exit(1)
	}
	defer func() { _ = appHTTPStop(context.Background()) }()

	if cms != nil {
		m.SetStartState(string(jangle.StateReady))
		cms.Announce(os.Stdout)
	} else {
		fmt.Fprintf(os.Stdout, "Jangle ready at http://localhost:%d\n", listenPort)
	}

	// ops listener: metrics, health, bundle status and pprof. Requests from
	// public ips or through a proxy are rejected in middleware.
	opsHTTPStop, err := opshttp.Start(ctx, L, &opshttp.Options{
		Port:         conf.AdminPort,
		Metrics:      m.Handler(),
		EnablePprof:  conf.EnablePprof,
		Health:       health.Fixed(true, ""),
		Readiness:    readiness,
		Bundle:       bundles.StatusHandler(),
		UseRecoverMW: true,
		OnPanic:      m.IncHttpPanic,
	})
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		os.Exit(1)
	}
	defer func() { _ = opsHTTPStop(context.Background()) }()

	if err := notifySystemd(); err != nil {
		// worst case systemd kills the process after its start timeout
		L.Debug(ctx, "systemd notify skipped", "reason", err.Error())
	}

	<-ctx.Done()
	stop()

	L.Info(context.Background(), "shutdown signal received")

	// fail readiness so load balancers stop sending traffic, then drain
	gate.Set("draining")
	drain(L, conf.DrainPeriod)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := appHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "app http server shutdown")
	}
	if err := opsHTTPStop(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "ops http server shutdown")
	}
	if err := shutdownOTEL(shutdownCtx); err != nil {
		L.Error(context.Background(), err, "otel shutdown")
	}
	stopProf()

	L.Info(context.Background(), "shutdown complete")
}

// loadSchema reads -schema-file (or the built-in demo) and applies the CLI
// prefix and port on top of the file's own settings.
func loadSchema(conf cfg.App) (jangle.Config, error) {
	jcfg := jangle.Demo()
	if conf.SchemaFile != "" {
		var err error
		if jcfg, err = jangle.LoadFile(conf.SchemaFile); err != nil {
			return jangle.Config{}, err
		}
	}
	if conf.Prefix != "" {
		jcfg.Prefix = conf.Prefix
	}
	if conf.HTTPPort > 0 {
		if jcfg.API == nil {
			jcfg.API = &jangle.APIConfig{}
		}
		jcfg.API.Port = conf.HTTPPort
	}
	return jcfg, nil
}

func openStore(conf cfg.App) (engine.Store, error) {
	switch conf.DBDriver {
	case cfg.DriverSQLite, cfg.DriverPostgres:
		return engine.OpenBunStore(conf.DBDriver, conf.DBDSN)
	default:
		return engine.NewMemoryStore(), nil
	}
}

func setupBundles(ctx context.Context, L log.Logger, conf cfg.App, m *metrics.ServerMetrics) (*uibundle.Manager, error) {
	mgr := uibundle.NewManager()
	record := func() {
		m.SetBundleSource(mgr.Source().String())
		m.SetBundle(mgr.BundleVersion(), mgr.BundleHash())
		if t := mgr.LoadedAt(); !t.IsZero() {
			m.SetBundleLoadedTimestamp(t)
		}
	}

	if conf.AdminDir != "" {
		snap, err := uibundle.LoadDir(conf.AdminDir)
		if err != nil {
			return nil, err
		}
		if err := uibundle.ValidateSnapshot(snap, uibundle.DefaultValidationOptions()); err != nil {
			return nil, err
		}
		mgr.Set(*snap)
		L.Info(ctx, "serving admin bundle from disk", "admin_dir", conf.AdminDir)
		record()
		return mgr, nil
	}

	if seed, ok := webassets.SeedFS(); ok {
		snap, err := uibundle.NewSnapshot(seed, uibundle.SourceEmbedded)
		if err != nil {
			return nil, err
		}
		if snap.Meta.Version == "" {
			snap.Meta.Version = "embedded"
		}
		mgr.Set(*snap)
		L.Info(ctx, "loaded embedded admin bundle")
	} else {
		L.Warn(ctx, "no embedded admin bundle, admin ui serves the maintenance page until one loads")
	}
	record()

	if !conf.EnableBundleUpdates {
		return mgr, nil
	}

	awsCfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	loader, err := uibundle.NewLoaderFromConfig(awsCfg, uibundle.LoaderOptions{
		Logger:   L,
		SSMParam: conf.BundleSSMParam,
		S3Bucket: conf.BundleS3Bucket,
		S3Prefix: conf.BundleS3Prefix,
	})
	if err != nil {
		return nil, err
	}
	if err := loader.LoadIntoManager(ctx, mgr); err != nil {
		L.Error(ctx, err, "failed to load admin bundle from S3, keeping embedded bundle")
	} else {
		L.Info(ctx, "loaded admin bundle from S3",
			"bundle_version", mgr.BundleVersion(),
			"bundle_hash", mgr.BundleHash(),
		)
		record()
	}

	watcher := uibundle.NewWatcher(uibundle.WatcherOptions{
		Logger:       L,
		Loader:       loader,
		Manager:      mgr,
		PollInterval: conf.BundlePollInterval,
		Metrics:      m,
		OnSwap: func(hash, version string) {
			record()
		},
	})
	go func() {
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			L.Error(ctx, err, "admin bundle watcher stopped")
		}
	}()
	return mgr, nil
}

// drain holds the process while readiness fails so in-flight requests can
// finish. A second signal skips the wait.
func drain(L log.Logger, d time.Duration) {
	if d <= 0 {
		return
	}
	L.Info(context.Background(), "draining before shutdown", "drain_period", d.String())
	forceCh := make(chan os.Signal, 1)
	signal.Notify(forceCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(forceCh)
	select {
	case <-time.After(d):
		L.Info(context.Background(), "drain period complete")
	case <-forceCh:
		L.Warn(context.Background(), "second signal received, skipping drain")
	}
}

func notifySystemd() error {
	// systemd sets NOTIFY_SOCKET when started with Type=notify
	addr := os.Getenv("NOTIFY_SOCKET")
	if addr == "" {
		return fmt.Errorf("NOTIFY_SOCKET not set")
	}
	conn, err := net.Dial("unixgram", addr)
	if err != nil {
		return fmt.Errorf("systemd notify failed: dial failed: %w", err)
	}
	if _, err := conn.Write([]byte("READY=1")); err != nil {
		_ = conn.Close()
		return fmt.Errorf("systemd notify failed: write failed: %w", err)
	}
	if err := conn.Close(); err != nil {
		return fmt.Errorf("systemd notify failed: close failed: %w", err)
	}
	return nil
}
