package httpmw

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestExtractRealClientAddr(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		hops       int
		want       string
		keepXFF    bool
	}{
		{name: "private ignores XFF without hops", remoteAddr: "10.0.0.1:1234", xff: "203.0.113.50", want: "10.0.0.1"},
		{name: "public ignores XFF", remoteAddr: "203.0.113.1:1234", xff: "10.0.0.1", hops: 1, want: "203.0.113.1"},
		{name: "loopback no XFF", remoteAddr: "127.0.0.1:5555", want: "127.0.0.1"},
		{name: "loopback dev proxy", remoteAddr: "127.0.0.1:5555", xff: "192.0.2.44", hops: 1, want: "192.0.2.44", keepXFF: true},
		{name: "loopback without hops strips", remoteAddr: "[::1]:5555", xff: "192.0.2.44", want: "::1"},
		{name: "single trusted hop", remoteAddr: "10.0.0.1:1234", xff: "198.51.100.7", hops: 1, want: "198.51.100.7", keepXFF: true},
		{name: "two hops picks second from end", remoteAddr: "10.0.0.1:1234", xff: "198.51.100.7, 203.0.113.9", hops: 2, want: "198.51.100.7", keepXFF: true},
		{name: "too few entries fails closed", remoteAddr: "10.0.0.1:1234", xff: "198.51.100.7", hops: 3, want: "10.0.0.1"},
		{name: "garbage entry keeps peer", remoteAddr: "10.0.0.1:1234", xff: "not-an-ip", hops: 1, want: "10.0.0.1", keepXFF: true},
		{name: "malformed remote addr", remoteAddr: "garbage", want: "garbage"},
		{name: "ipv6 private", remoteAddr: "[fd00::1]:1234", xff: "2001:db8::1", want: "fd00::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := extractRealClientAddr(r, tt.hops); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
			if kept := r.Header.Get("X-Forwarded-For") != ""; tt.xff != "" && kept != tt.keepXFF {
				t.Fatalf("X-Forwarded-For kept = %v, want %v", kept, tt.keepXFF)
			}
		})
	}
}

func TestClientIPWithOptions_StoresInContext(t *testing.T) {
	var got string
	h := ClientIPWithOptions(ClientIPOptions{TrustedHops: 1})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIPFromContext(r.Context())
	}))
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:443"
	r.Header.Set("X-Forwarded-For", "198.51.100.20")
	h.ServeHTTP(httptest.NewRecorder(), r)

	if got != "198.51.100.20" {
		t.Fatalf("client ip = %q", got)
	}
}
