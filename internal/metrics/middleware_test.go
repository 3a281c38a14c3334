package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// statusWriter

func TestStatusWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec}

	sw.Write([]byte("aaa"))
	sw.Write([]byte("bbbbb"))

	if sw.status != http.StatusOK {
		t.Fatalf("status = %d, want 200", sw.status)
	}
	if sw.n != 8 {
		t.Fatalf("bytes = %d, want 8", sw.n)
	}

	rec = httptest.NewRecorder()
	sw = &statusWriter{ResponseWriter: rec}
	sw.WriteHeader(http.StatusCreated)
	if sw.status != http.StatusCreated || rec.Code != http.StatusCreated {
		t.Fatalf("status = %d / %d, want 201", sw.status, rec.Code)
	}
}

func newRouter(m *ServerMetrics) http.Handler {
	r := chi.NewRouter()
	r.Get("/api/lists/{list}/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"1"}`))
	})
	r.Delete("/api/lists/{list}/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	return m.Middleware(r)
}

func TestMiddleware_UsesRoutePattern(t *testing.T) {
	m := New()
	h := newRouter(m)

	for _, id := range []string{"a", "b", "c"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/lists/post/"+id, nil))
	}

	if got := testutil.ToFloat64(m.reqTotal.WithLabelValues("GET", "/api/lists/{list}/{id}", "200")); got != 3 {
		t.Fatalf("requests = %v, want 3", got)
	}
	if n := testutil.CollectAndCount(m.reqTotal); n != 1 {
		t.Fatalf("series = %d, want 1 (ids must not become labels)", n)
	}
	if got := testutil.ToFloat64(m.inflight); got != 0 {
		t.Fatalf("inflight = %v after requests finished", got)
	}
}

func TestMiddleware_CountsServerErrors(t *testing.T) {
	m := New()
	h := newRouter(m)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodDelete, "/api/lists/post/a", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/lists/post/a", nil))

	if got := testutil.ToFloat64(m.errorsTotal.WithLabelValues("DELETE", "/api/lists/{list}/{id}")); got != 1 {
		t.Fatalf("errors = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.errorsTotal); n != 1 {
		t.Fatalf("error series = %d, want 1", n)
	}
}

func TestMiddleware_UnmatchedSharesLabel(t *testing.T) {
	m := New()
	h := newRouter(m)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/one", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/two", nil))

	if got := testutil.ToFloat64(m.reqTotal.WithLabelValues("GET", "unmatched", "404")); got != 2 {
		t.Fatalf("unmatched = %v, want 2", got)
	}
}

func TestStatusWriter_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec}
	sw.WriteHeader(http.StatusAccepted)
	sw.WriteHeader(http.StatusInternalServerError)
	if sw.status != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", sw.status)
	}
	if sw.Unwrap() != rec {
		t.Fatal("Unwrap should return the wrapped writer")
	}
}
