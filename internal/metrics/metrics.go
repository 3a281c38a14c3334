package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/keithlinneman/jangle-cms/internal/version"
)

type ServerMetrics struct {
	reg                    *prometheus.Registry
	handler                http.Handler
	inflight               prometheus.Gauge
	reqTotal               *prometheus.CounterVec
	reqDur                 *prometheus.HistogramVec
	respBytes              *prometheus.HistogramVec
	httpPanicTotal         prometheus.Counter
	buildInfo              *prometheus.GaugeVec
	ratelimitDeniedTotal   prometheus.Counter
	ratelimitCapacityTotal prometheus.Counter
	bundleSource           *prometheus.GaugeVec
	bundleLoadedTimestamp  prometheus.Gauge
	bundleInfo             *prometheus.GaugeVec

	errorsTotal *prometheus.CounterVec

	profilingActive prometheus.Gauge

	// cms engine
	collections *prometheus.GaugeVec
	docOpsTotal *prometheus.CounterVec
	docOpDur    *prometheus.HistogramVec
	engineState *prometheus.GaugeVec

	// bundle watcher
	watcherPollsTotal    prometheus.Counter
	watcherSwapsTotal    prometheus.Counter
	watcherErrorsTotal   *prometheus.CounterVec
	bundleLoadDuration   prometheus.Histogram
	watcherLastSuccessTs prometheus.Gauge
}

// New returns a fresh registry + standard collectors + HTTP and CMS metrics
// labels are bounded: method, route pattern, status, collection
func New() *ServerMetrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &ServerMetrics{
		inflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
		reqTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		}, []string{"method", "route", "status"}),
		reqDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Request latency by method and route",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
		respBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "Response size by method and route",
			Buckets: []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304},
		}, []string{"method", "route"}),
		httpPanicTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_panic_total",
			Help: "Total number of recovered httpserver panics",
		}),
		buildInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "build_info",
			Help: "Build metadata (value is always 1)",
		}, []string{"app", "component", "version", "commit", "commit_date", "build_id", "build_date", "vcs_dirty", "go_version"}),
		ratelimitDeniedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_total",
			Help: "Total requests rejected by rate limiter",
		}),
		ratelimitCapacityTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "http_requests_rate_limited_capacity_total",
			Help: "Total number of times rate limiter capacity reached",
		}),
		bundleSource: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "admin_bundle_source_info",
			Help: "Current admin UI bundle source (label carries value, gauge is always 1)",
		}, []string{"source"}),
		bundleLoadedTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "admin_bundle_loaded_timestamp_seconds",
			Help: "Unix timestamp of when the current admin UI bundle was loaded",
		}),
		bundleInfo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "admin_bundle_info",
			Help: "Currently active admin UI bundle (labels carry identity, value is always 1)",
		}, []string{"version", "sha256"}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "Total 5xx HTTP server errors by method and route (SLI)",
		}, []string{"method", "route"}),
		profilingActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "profiling_active",
			Help: "Whether continuous profiling is active (1) or disabled/failed (0)",
		}),
		collections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jangle_collections",
			Help: "Number of configured collections by kind (list or item)",
		}, []string{"kind"}),
		docOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jangle_document_operations_total",
			Help: "Document operations by collection, operation, and result (ok|rejected|error)",
		}, []string{"collection", "op", "result"}),
		docOpDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jangle_document_operation_duration_seconds",
			Help:    "Document operation latency by collection and operation, store time included",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		}, []string{"collection", "op"}),
		engineState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "jangle_start_state",
			Help: "Start lifecycle state (label carries value, gauge is always 1)",
		}, []string{"state"}),
		watcherPollsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "admin_bundle_watcher_polls_total",
			Help: "Total number of bundle watcher poll cycles",
		}),
		watcherSwapsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "admin_bundle_watcher_swaps_total",
			Help: "Total number of successful admin bundle swaps",
		}),
		watcherErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "admin_bundle_watcher_errors_total",
			Help: "Total bundle watcher errors by type",
		}, []string{"type"}),
		bundleLoadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "admin_bundle_load_duration_seconds",
			Help:    "Time to download, verify, and extract an admin UI bundle",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		watcherLastSuccessTs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "admin_bundle_watcher_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful SSM poll",
		}),
	}
	reg.MustRegister(
		m.inflight,
		m.reqTotal,
		m.reqDur,
		m.respBytes,
		m.httpPanicTotal,
		m.buildInfo,
		m.ratelimitDeniedTotal,
		m.ratelimitCapacityTotal,
		m.bundleSource,
		m.bundleLoadedTimestamp,
		m.bundleInfo,
		m.errorsTotal,
		m.profilingActive,
		m.collections,
		m.docOpsTotal,
		m.docOpDur,
		m.engineState,
		m.watcherPollsTotal,
		m.watcherSwapsTotal,
		m.watcherErrorsTotal,
		m.bundleLoadDuration,
		m.watcherLastSuccessTs,
	)

	m.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	m.reg = reg
	return m
}

func (m *ServerMetrics) IncHttpPanic() {
	m.httpPanicTotal.Inc()
}

func (m *ServerMetrics) Handler() http.Handler {
	return m.handler
}

// set once at startup.
func (m *ServerMetrics) SetBuildInfoFromVersion(app, component string, vi version.Info) {
	dirty := "unknown"
	if vi.VCSDirty != nil {
		dirty = strconv.FormatBool(*vi.VCSDirty)
	}
	m.buildInfo.With(prometheus.Labels{
		"app":         app,
		"component":   component,
		"version":     vi.Version,
		"commit":      vi.Commit,
		"commit_date": vi.CommitDate,
		"build_id":    vi.BuildId,
		"build_date":  vi.BuildDate,
		"go_version":  vi.GoVersion,
		"vcs_dirty":   dirty,
	}).Set(1)
}

func (m *ServerMetrics) IncRateLimitDenied() {
	m.ratelimitDeniedTotal.Inc()
}

func (m *ServerMetrics) IncRateLimitCapacity() {
	m.ratelimitCapacityTotal.Inc()
}

func (m *ServerMetrics) SetBundleSource(source string) {
	m.bundleSource.Reset() // clear previous label value
	m.bundleSource.WithLabelValues(source).Set(1)
}

func (m *ServerMetrics) SetBundleLoadedTimestamp(t time.Time) {
	m.bundleLoadedTimestamp.Set(float64(t.Unix()))
}

func (m *ServerMetrics) SetBundle(version, sha256 string) {
	m.bundleInfo.Reset()
	m.bundleInfo.WithLabelValues(version, sha256).Set(1)
}

func (m *ServerMetrics) SetProfilingActive(active bool) {
	if active {
		m.profilingActive.Set(1)
	} else {
		m.profilingActive.Set(0)
	}
}

// SetCollections records how many lists and items the engine serves.
func (m *ServerMetrics) SetCollections(lists, items int) {
	m.collections.WithLabelValues("list").Set(float64(lists))
	m.collections.WithLabelValues("item").Set(float64(items))
}

// ObserveOp implements engine.Recorder.
func (m *ServerMetrics) ObserveOp(collection, op, result string, d time.Duration) {
	m.docOpsTotal.WithLabelValues(collection, op, result).Inc()
	m.docOpDur.WithLabelValues(collection, op).Observe(d.Seconds())
}

// SetStartState tracks the starting/ready/failed lifecycle.
func (m *ServerMetrics) SetStartState(state string) {
	m.engineState.Reset()
	m.engineState.WithLabelValues(state).Set(1)
}

func (m *ServerMetrics) IncWatcherPolls() {
	m.watcherPollsTotal.Inc()
}

func (m *ServerMetrics) IncWatcherSwaps() {
	m.watcherSwapsTotal.Inc()
}

func (m *ServerMetrics) IncWatcherError(errType string) {
	m.watcherErrorsTotal.WithLabelValues(errType).Inc()
}

func (m *ServerMetrics) ObserveBundleLoadDuration(seconds float64) {
	m.bundleLoadDuration.Observe(seconds)
}

func (m *ServerMetrics) SetWatcherLastSuccess(t time.Time) {
	m.watcherLastSuccessTs.Set(float64(t.Unix()))
}
