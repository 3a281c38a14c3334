package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestWithLogger_UsesResolvedClientIP(t *testing.T) {
	spy := newSpyLogger()
	h := ClientIP(RequestID("")(WithLogger(spy)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))))

	r := httptest.NewRequest(http.MethodGet, "/admin/posts?draft=1", nil)
	r.RemoteAddr = "203.0.113.4:9999"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")
	h.ServeHTTP(httptest.NewRecorder(), r)

	if got, _ := spy.field("client.address"); got != "203.0.113.4" {
		t.Fatalf("client.address = %v, want 203.0.113.4", got)
	}
	if got, _ := spy.field("url.query"); got != "draft=1" {
		t.Fatalf("url.query = %v", got)
	}
	if got, ok := spy.field("request_id"); !ok || got == "" {
		t.Fatal("request_id not logged")
	}
}

func TestAccessLog(t *testing.T) {
	tests := []struct {
		path   string
		logged bool
	}{
		{"/api/lists/post/abc", true},
		{"/admin/posts", true},
		{"/public/main.js", false},
		{"/public/style.css", false},
		{"/-/ready", false},
		{"/-/healthy", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			spy := newSpyLogger()
			r := chi.NewRouter()
			r.Use(AccessLog())
			r.Get("/api/lists/{list}/{id}", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte(`{}`))
			})
			r.NotFound(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			h := WithLogger(spy)(r)
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			spy.mu.Lock()
			n := len(spy.infos)
			spy.mu.Unlock()
			if got := n == 1; got != tt.logged {
				t.Fatalf("logged = %v, want %v", got, tt.logged)
			}
		})
	}
}

func TestAccessLog_RecordsRoutePattern(t *testing.T) {
	spy := newSpyLogger()
	r := chi.NewRouter()
	r.Use(AccessLog())
	r.Post("/api/lists/{list}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	WithLogger(spy)(r).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/lists/author", nil))

	if len(spy.infos) != 1 {
		t.Fatalf("infos = %d", len(spy.infos))
	}
	got := kvMap(spy.infos[0].kv)
	if got["http.route"] != "/api/lists/{list}" {
		t.Fatalf("http.route = %v", got["http.route"])
	}
	if got["http.response.status_code"] != http.StatusCreated {
		t.Fatalf("status = %v", got["http.response.status_code"])
	}
	if got["jangle.collection"] != "author" {
		t.Fatalf("jangle.collection = %v", got["jangle.collection"])
	}
}

func TestAccessLog_ServerErrorsAtWarn(t *testing.T) {
	spy := newSpyLogger()
	r := chi.NewRouter()
	r.Use(AccessLog())
	r.Get("/api/schema", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.WriteHeader(http.StatusOK)
	})
	WithLogger(spy)(r).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/schema", nil))

	if len(spy.infos) != 0 || len(spy.warns) != 1 {
		t.Fatalf("infos = %d, warns = %d", len(spy.infos), len(spy.warns))
	}
	got := kvMap(spy.warns[0].kv)
	if got["http.response.status_code"] != http.StatusInternalServerError {
		t.Fatalf("status = %v", got["http.response.status_code"])
	}
	if _, ok := got["jangle.collection"]; ok {
		t.Fatal("schema route has no collection")
	}
}

func TestScope(t *testing.T) {
	spy := newSpyLogger()
	h := WithLogger(spy)(Scope("lists")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/lists/post", nil))

	if got, _ := spy.field("handler"); got != "lists" {
		t.Fatalf("handler = %v", got)
	}
}

func kvMap(kv []any) map[any]any {
	out := map[any]any{}
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = kv[i+1]
	}
	return out
}

func TestSchemeFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if got := schemeFromRequest(r); got != "http" {
		t.Fatalf("plain = %q", got)
	}
	r.Header.Set("X-Forwarded-Proto", "HTTPS, http")
	if got := schemeFromRequest(r); got != "https" {
		t.Fatalf("forwarded = %q", got)
	}
	r.Header.Set("X-Forwarded-Proto", "gopher")
	if got := schemeFromRequest(r); got != "http" {
		t.Fatalf("bogus forwarded = %q", got)
	}
}

func TestIsStaticAsset(t *testing.T) {
	for p, want := range map[string]bool{
		"/public/main.js":            true,
		"/admin/public/app.4f2a.css": true,
		"/admin/posts":               false,
		"/api/schema":                false,
	} {
		if got := IsStaticAsset(p); got != want {
			t.Errorf("IsStaticAsset(%q) = %v, want %v", p, got, want)
		}
	}
}
