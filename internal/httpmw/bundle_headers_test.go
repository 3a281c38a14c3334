package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type stubBundleInfo struct {
	version string
	hash    string
}

func (s stubBundleInfo) BundleVersion() string { return s.version }
func (s stubBundleInfo) BundleHash() string    { return s.hash }

func TestBundleHeaders(t *testing.T) {
	tests := []struct {
		name        string
		info        BundleInfo
		wantVersion string
		wantHash    string
	}{
		{"nil info", nil, "", ""},
		{"empty", stubBundleInfo{}, "", ""},
		{"short hash kept", stubBundleInfo{version: "seed", hash: "abc123"}, "seed", "abc123"},
		{
			"long hash truncated",
			stubBundleInfo{version: "2026.10.1", hash: "0123456789abcdef0123456789abcdef"},
			"2026.10.1",
			"0123456789ab",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := BundleHeaders(tt.info)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			}))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			if got := rec.Header().Get("X-Admin-Bundle-Version"); got != tt.wantVersion {
				t.Errorf("version header = %q, want %q", got, tt.wantVersion)
			}
			if got := rec.Header().Get("X-Admin-Bundle-Hash"); got != tt.wantHash {
				t.Errorf("hash header = %q, want %q", got, tt.wantHash)
			}
		})
	}
}
