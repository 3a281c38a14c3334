package jangle

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/keithlinneman/jangle-cms/internal/engine"
)

func assets() fstest.MapFS {
	return fstest.MapFS{
		"index.html": {Data: []byte(`<html><head><base href="/"></head><body>jangle admin</body></html>`)},
		"start.js":   {Data: []byte("start()")},
	}
}

func TestStart_ReadyMessageDefaults(t *testing.T) {
	var out bytes.Buffer
	var states []State
	h, err := Start(context.Background(), Config{
		Lists: map[string]map[string]any{"Author": {"name": map[string]any{"type": "String", "required": true}}},
	}, Options{
		Assets:  assets(),
		Getenv:  env(nil),
		Out:     &out,
		OnState: func(s State) { states = append(states, s) },
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = h.App.Close() })

	if got := out.String(); got != "Jangle CMS ready at http://localhost:3000\n" {
		t.Fatalf("ready line=%q", got)
	}
	if h.State != StateReady || h.BaseURL != "http://localhost:3000" || h.Prefix != "" {
		t.Fatalf("handle=%+v", h)
	}
	if len(states) != 2 || states[0] != StateStarting || states[1] != StateReady {
		t.Fatalf("states=%v", states)
	}
}

func TestStart_MountsAtRoot(t *testing.T) {
	h, err := Start(context.Background(), Config{
		Lists: map[string]map[string]any{"Author": {"name": "text"}},
	}, Options{Assets: assets()})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = h.App.Close() })

	for path, want := range map[string]string{
		"/":                 "jangle admin",
		"/lists/author":     "jangle admin",
		"/public/start.js":  "start()",
		"/api/lists/author": `"total":0`,
	} {
		rec := httptest.NewRecorder()
		h.App.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), want) {
			t.Fatalf("%s: status=%d body=%q", path, rec.Code, rec.Body.String())
		}
	}
}

func TestStart_MountsUnderPrefix(t *testing.T) {
	var out bytes.Buffer
	h, err := Start(context.Background(), Config{
		Lists:  map[string]map[string]any{"Author": {"name": "text"}},
		Prefix: "admin/",
		API:    &APIConfig{Port: 4100},
	}, Options{Assets: assets(), Out: &out})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = h.App.Close() })

	if out.String() != "Jangle CMS ready at http://localhost:4100\n" {
		t.Fatalf("ready line=%q", out.String())
	}

	tests := map[string]int{
		"/admin":                 http.StatusOK,
		"/admin/lists/author":    http.StatusOK,
		"/admin/public/start.js": http.StatusOK,
		"/public/start.js":       http.StatusNotFound,
		"/somewhere":             http.StatusNotFound,
		"/api/lists/author":      http.StatusOK,
	}
	for path, status := range tests {
		rec := httptest.NewRecorder()
		h.App.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != status {
			t.Fatalf("%s: status=%d want %d", path, rec.Code, status)
		}
	}
}

func TestStart_EngineErrorPassesThrough(t *testing.T) {
	boom := errors.New("engine exploded")
	var out bytes.Buffer
	var states []State
	h, err := Start(context.Background(), Config{
		Lists: map[string]map[string]any{"Author": {"name": "text"}},
	}, Options{
		Engine: EngineFunc(func(context.Context, EngineConfig) (*engine.App, error) {
			return nil, boom
		}),
		Out:     &out,
		OnState: func(s State) { states = append(states, s) },
	})
	if err != boom {
		t.Fatalf("err=%v, want the engine error itself", err)
	}
	if h != nil {
		t.Fatalf("handle=%+v, want nil", h)
	}
	if out.Len() != 0 {
		t.Fatalf("ready line printed on failure: %q", out.String())
	}
	if len(states) != 2 || states[1] != StateFailed {
		t.Fatalf("states=%v", states)
	}
}

func TestStart_NothingMountedOnEngineError(t *testing.T) {
	// the engine builds an app but still reports failure
	var built *engine.App
	boom := errors.New("late failure")
	_, err := Start(context.Background(), Config{
		Lists: map[string]map[string]any{"Author": {"name": "text"}},
	}, Options{
		Assets: assets(),
		Engine: EngineFunc(func(ctx context.Context, cfg EngineConfig) (*engine.App, error) {
			app, err := engine.Start(ctx, engine.Config{Lists: cfg.Lists, Items: cfg.Items})
			if err != nil {
				return nil, err
			}
			built = app
			return app, boom
		}),
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v", err)
	}
	rec := httptest.NewRecorder()
	built.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/public/start.js", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("static route mounted after failure: status=%d", rec.Code)
	}
	if !errors.Is(built.Ping(context.Background()), engine.ErrStoreClosed) {
		t.Fatal("app returned with an error was not closed")
	}
}

func TestStart_PassesTransformedConfig(t *testing.T) {
	on := true
	var seen EngineConfig
	h, err := Start(context.Background(), Config{
		Lists: map[string]map[string]any{"Author": {"name": "text"}},
		API:   &APIConfig{Print: &on},
	}, Options{
		Assets: assets(),
		Engine: EngineFunc(func(ctx context.Context, cfg EngineConfig) (*engine.App, error) {
			seen = cfg
			return engine.Start(ctx, engine.Config{Lists: cfg.Lists, Items: cfg.Items})
		}),
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = h.App.Close() })
	if seen.API.Print == nil || *seen.API.Print {
		t.Fatalf("engine saw print=%v", seen.API.Print)
	}
	if _, ok := seen.Lists["Author"]; !ok {
		t.Fatalf("engine lists=%v", seen.Lists)
	}
}

func TestStart_TransformErrorSkipsEngine(t *testing.T) {
	called := false
	_, err := Start(context.Background(), Config{
		Lists: map[string]map[string]any{"A": {"a": "uuid"}},
	}, Options{Engine: EngineFunc(func(context.Context, EngineConfig) (*engine.App, error) {
		called = true
		return nil, nil
	})})
	if err == nil || called {
		t.Fatalf("err=%v called=%v", err, called)
	}
}

func TestStart_UnknownRelationFromEngine(t *testing.T) {
	_, err := Start(context.Background(), Config{
		Lists: map[string]map[string]any{"Post": {"author": map[string]any{"ref": "Nobody"}}},
	}, Options{})
	if !errors.Is(err, engine.ErrUnknownRelation) {
		t.Fatalf("err=%v, want ErrUnknownRelation", err)
	}
}

func TestStart_EngineWithoutAppFails(t *testing.T) {
	var states []State
	h, err := Start(context.Background(), Config{
		Lists: map[string]map[string]any{"Author": {"name": "text"}},
	}, Options{
		Engine: EngineFunc(func(context.Context, EngineConfig) (*engine.App, error) {
			return nil, nil
		}),
		OnState: func(s State) { states = append(states, s) },
	})
	if !errors.Is(err, ErrNoApp) || h != nil {
		t.Fatalf("h=%v err=%v, want ErrNoApp", h, err)
	}
	if len(states) != 2 || states[1] != StateFailed {
		t.Fatalf("states=%v", states)
	}
}

func TestStart_PrefixInsideAPIRejected(t *testing.T) {
	for _, prefix := range []string{"api", "/api/", "/api/admin"} {
		t.Run(prefix, func(t *testing.T) {
			var built *engine.App
			var states []State
			_, err := Start(context.Background(), Config{
				Lists:  map[string]map[string]any{"Author": {"name": "text"}},
				Prefix: prefix,
			}, Options{
				Assets: assets(),
				Engine: EngineFunc(func(ctx context.Context, cfg EngineConfig) (*engine.App, error) {
					app, err := engine.Start(ctx, engine.Config{Lists: cfg.Lists, Items: cfg.Items})
					built = app
					return app, err
				}),
				OnState: func(s State) { states = append(states, s) },
			})
			if !errors.Is(err, ErrPrefixConflict) {
				t.Fatalf("err=%v, want ErrPrefixConflict", err)
			}
			if len(states) != 2 || states[1] != StateFailed {
				t.Fatalf("states=%v", states)
			}
			if !errors.Is(built.Ping(context.Background()), engine.ErrStoreClosed) {
				t.Fatal("app was not closed")
			}
		})
	}
}

func TestStart_PrefixBesideAPIAllowed(t *testing.T) {
	h, err := Start(context.Background(), Config{
		Lists:  map[string]map[string]any{"Author": {"name": "text"}},
		Prefix: "apidocs",
	}, Options{Assets: assets()})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = h.App.Close() })

	for path, want := range map[string]string{
		"/apidocs":          "jangle admin",
		"/api/lists/author": `"total":0`,
	} {
		rec := httptest.NewRecorder()
		h.App.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), want) {
			t.Fatalf("%s: status=%d body=%q", path, rec.Code, rec.Body.String())
		}
	}
}

func TestStart_APIPrefix(t *testing.T) {
	fsys := assets()
	fsys["index.html"] = &fstest.MapFile{Data: []byte(`<html><head><base href="/"><meta name="jangle-base-url" content=""></head><body>jangle admin</body></html>`)}

	h, err := Start(context.Background(), Config{
		Lists: map[string]map[string]any{"Author": {"name": "text"}},
		API:   &APIConfig{Port: 4100, Prefix: "cms/"},
	}, Options{Assets: fsys})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = h.App.Close() })

	if h.BaseURL != "http://localhost:4100/cms" || h.Prefix != "" {
		t.Fatalf("handle=%+v", h)
	}
	if got := h.App.APIRoot(); got != "/cms/api" {
		t.Fatalf("api root=%q", got)
	}

	tests := map[string]int{
		"/cms/api/lists/author": http.StatusOK,
		"/api/lists/author":     http.StatusOK, // ui catch-all, not the api
		"/":                     http.StatusOK,
	}
	for path, status := range tests {
		rec := httptest.NewRecorder()
		h.App.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != status {
			t.Fatalf("%s: status=%d want %d", path, rec.Code, status)
		}
	}

	rec := httptest.NewRecorder()
	h.App.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if body := rec.Body.String(); !strings.Contains(body, `<meta name="jangle-base-url" content="/cms">`) {
		t.Fatalf("index=%q", body)
	}
	rec = httptest.NewRecorder()
	h.App.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/lists/author", nil))
	if strings.Contains(rec.Body.String(), `"total"`) {
		t.Fatalf("api answered outside its prefix: %q", rec.Body.String())
	}
}

func TestHandle_Announce(t *testing.T) {
	h := &Handle{BaseURL: "http://localhost:3000/cms"}
	var out bytes.Buffer
	h.Announce(&out)
	if out.String() != "Jangle CMS ready at http://localhost:3000/cms\n" {
		t.Fatalf("ready line=%q", out.String())
	}
	h.Announce(nil)
}
