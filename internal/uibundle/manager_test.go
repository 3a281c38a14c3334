package uibundle

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"testing/fstest"
	"time"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{"index.html": &fstest.MapFile{Data: []byte("<html></html>")}}
}

func TestManager_InitialState(t *testing.T) {
	m := NewManager()
	if _, ok := m.Get(); ok {
		t.Fatal("Get on empty manager should report false")
	}
	if _, ok := m.Active(); ok {
		t.Fatal("Active on empty manager should report false")
	}
	if m.BundleVersion() != "" || m.BundleHash() != "" {
		t.Fatal("empty manager should have no version or hash")
	}
	if m.Source() != SourceUnknown {
		t.Fatalf("Source = %s, want unknown", m.Source())
	}
	if !m.LoadedAt().IsZero() {
		t.Fatal("LoadedAt should be zero")
	}
	if m.ReadyErr() == nil {
		t.Fatal("ReadyErr should fail with no bundle")
	}
}

func TestManager_SetAndGet(t *testing.T) {
	m := NewManager()
	m.Set(Snapshot{FS: testFS(), Meta: Meta{Version: "1.2.0", SHA256: "abc", Source: SourceS3}})

	fsys, ok := m.Active()
	if !ok || fsys == nil {
		t.Fatal("Active should return the bundle")
	}
	if m.BundleVersion() != "1.2.0" {
		t.Errorf("BundleVersion = %q", m.BundleVersion())
	}
	if m.BundleHash() != "abc" {
		t.Errorf("BundleHash = %q", m.BundleHash())
	}
	if m.Source() != SourceS3 {
		t.Errorf("Source = %s", m.Source())
	}
	if m.LoadedAt().IsZero() {
		t.Error("Set should stamp LoadedAt")
	}
	if err := m.ReadyErr(); err != nil {
		t.Errorf("ReadyErr = %v", err)
	}
}

func TestManager_Get_RequiresFS(t *testing.T) {
	m := NewManager()
	m.Set(Snapshot{Meta: Meta{Version: "x"}})
	if _, ok := m.Get(); ok {
		t.Fatal("snapshot without FS should not be active")
	}
	if m.ReadyErr() == nil {
		t.Fatal("ReadyErr should fail for nil FS")
	}
}

func TestManager_Set_CopiesSnapshot(t *testing.T) {
	m := NewManager()
	s := Snapshot{FS: testFS(), Meta: Meta{Version: "1"}}
	m.Set(s)
	s.Meta.Version = "mutated"
	if m.BundleVersion() != "1" {
		t.Fatalf("manager saw caller mutation: %q", m.BundleVersion())
	}
}

func TestManager_Set_PreservesExistingLoadedAt(t *testing.T) {
	m := NewManager()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m.Set(Snapshot{FS: testFS(), LoadedAt: at})
	if !m.LoadedAt().Equal(at) {
		t.Fatalf("LoadedAt = %v, want %v", m.LoadedAt(), at)
	}
}

func TestManager_StatusHandler(t *testing.T) {
	m := NewManager()

	rec := httptest.NewRecorder()
	m.StatusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/bundle", nil))
	var st status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Loaded {
		t.Fatal("empty manager should report loaded=false")
	}

	m.Set(Snapshot{
		FS:       testFS(),
		Meta:     Meta{Version: "2.0.0", SHA256: "deadbeef", Source: SourceEmbedded},
		Manifest: &Manifest{Version: "2.0.0", Commit: "abc123"},
	})
	rec = httptest.NewRecorder()
	m.StatusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/-/bundle", nil))

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
		t.Errorf("Cache-Control = %q", cc)
	}
	st = status{}
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Loaded || st.Meta == nil || st.Meta.Version != "2.0.0" || st.Meta.Source != SourceEmbedded {
		t.Fatalf("unexpected status: %+v", st)
	}
	if st.Manifest == nil || st.Manifest.Commit != "abc123" {
		t.Fatalf("manifest missing: %+v", st.Manifest)
	}
}

func TestManager_ConcurrentAccess(t *testing.T) {
	m := NewManager()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.Set(Snapshot{FS: testFS(), Meta: Meta{SHA256: "h"}})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_, _ = m.Active()
				_ = m.BundleHash()
			}
		}()
	}
	wg.Wait()
}
