package uibundle

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/keithlinneman/jangle-cms/internal/xerrors"
)

type Manager struct {
	active atomic.Pointer[Snapshot]
}

func NewManager() *Manager { return &Manager{} }

// Set sets the active snapshot safely
func (m *Manager) Set(s Snapshot) {
	cp := new(Snapshot)
	*cp = s
	if cp.LoadedAt.IsZero() {
		cp.LoadedAt = time.Now().UTC()
	}
	m.active.Store(cp)
}

// Get retrieves the active snapshot value
func (m *Manager) Get() (*Snapshot, bool) {
	s := m.active.Load()
	return s, s != nil && s.FS != nil
}

// Active implements adminui.Source
func (m *Manager) Active() (fs.FS, bool) {
	s, ok := m.Get()
	if !ok {
		return nil, false
	}
	return s.FS, true
}

// BundleVersion implements httpmw.BundleInfo
func (m *Manager) BundleVersion() string {
	if s := m.active.Load(); s != nil {
		return s.Meta.Version
	}
	return ""
}

// BundleHash implements httpmw.BundleInfo
func (m *Manager) BundleHash() string {
	if s := m.active.Load(); s != nil {
		return s.Meta.SHA256
	}
	return ""
}

func (m *Manager) Source() Source {
	if s := m.active.Load(); s != nil {
		return s.Meta.Source
	}
	return SourceUnknown
}

func (m *Manager) LoadedAt() time.Time {
	if s := m.active.Load(); s != nil {
		return s.LoadedAt
	}
	return time.Time{}
}

// ReadyErr is a readiness check: nil once a bundle is active
func (m *Manager) ReadyErr() error {
	if _, ok := m.Get(); !ok {
		return xerrors.New("uibundle: no active bundle")
	}
	return nil
}

type status struct {
	Loaded   bool      `json:"loaded"`
	Meta     *Meta     `json:"meta,omitempty"`
	Manifest *Manifest `json:"manifest,omitempty"`
	LoadedAt time.Time `json:"loaded_at,omitempty"`
}

// StatusHandler reports the active bundle as JSON
func (m *Manager) StatusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var st status
		if s, ok := m.Get(); ok {
			meta := s.Meta
			st = status{Loaded: true, Meta: &meta, Manifest: s.Manifest, LoadedAt: s.LoadedAt}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(st)
	})
}
