package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keithlinneman/jangle-cms/internal/httpmw"
)

// newTestLimiter creates a limiter with a short TTL. The returned cancel
// stops the cleanup goroutine.
func newTestLimiter(opts ...Option) (*IPLimiter, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	defaults := []Option{
		WithRate(10, 5),
		WithTTL(100 * time.Millisecond),
	}
	l := New(ctx, append(defaults, opts...)...)
	return l, cancel
}

func TestAllow_BurstThenReject(t *testing.T) {
	l, cancel := newTestLimiter(WithRate(1, 5))
	defer cancel()

	for i := 0; i < 5; i++ {
		if !l.allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed (within burst)", i+1)
		}
	}
	if l.allow("10.0.0.1") {
		t.Fatal("request 6 should be denied (burst exhausted)")
	}
}

func TestAllow_SeparateIPsGetSeparateBuckets(t *testing.T) {
	l, cancel := newTestLimiter(WithRate(1, 3))
	defer cancel()

	for i := 0; i < 3; i++ {
		l.allow("10.0.0.1")
	}
	if l.allow("10.0.0.1") {
		t.Fatal("ip1 should be denied after burst")
	}
	if !l.allow("10.0.0.2") {
		t.Fatal("ip2 should be allowed (separate bucket)")
	}
}

func TestOnFirstDenied_CalledOncePerVisitor(t *testing.T) {
	var first, every atomic.Int32
	l, cancel := newTestLimiter(
		WithRate(0.001, 1),
		WithOnFirstDenied(func(string) { first.Add(1) }),
		WithOnDenied(func(string) { every.Add(1) }),
	)
	defer cancel()

	l.allow("10.0.0.1")
	for i := 0; i < 4; i++ {
		l.allow("10.0.0.1")
	}
	if got := first.Load(); got != 1 {
		t.Errorf("OnFirstDenied = %d, want 1", got)
	}
	if got := every.Load(); got != 4 {
		t.Errorf("OnDenied = %d, want 4", got)
	}
}

func TestCleanup_EvictsStaleVisitors(t *testing.T) {
	l, cancel := newTestLimiter(WithTTL(50 * time.Millisecond))
	defer cancel()

	l.allow("10.0.0.1")
	time.Sleep(150 * time.Millisecond)

	l.mu.Lock()
	n := len(l.visitors)
	l.mu.Unlock()
	if n != 0 {
		t.Fatalf("visitors = %d, want 0 after ttl", n)
	}
}

func TestDefaults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := New(ctx)
	if l.perSecond != 20 || l.burst != 40 {
		t.Errorf("rate = %v/%d, want 20/40", l.perSecond, l.burst)
	}
	if l.ttl != 5*time.Minute {
		t.Errorf("ttl = %v", l.ttl)
	}
	if l.maxVisitors != 100000 {
		t.Errorf("maxVisitors = %d, want 100000", l.maxVisitors)
	}
}

func TestMaxVisitors_NewIPRejectedAtCapacity(t *testing.T) {
	var capCount atomic.Int32
	l, cancel := newTestLimiter(
		WithRate(100, 100),
		WithMaxVisitors(3),
		WithOnCapacity(func() { capCount.Add(1) }),
	)
	defer cancel()

	for i := 0; i < 3; i++ {
		ip := fmt.Sprintf("10.0.0.%d", i+1)
		if !l.allow(ip) {
			t.Fatalf("ip %s should be allowed (map not full)", ip)
		}
	}
	if l.allow("10.0.0.99") {
		t.Fatal("new IP should be rejected at capacity")
	}
	if l.allow("10.0.0.98") {
		t.Fatal("new IP should be rejected at capacity")
	}
	if !l.allow("10.0.0.1") {
		t.Fatal("existing IP should still be allowed at capacity")
	}
	if got := capCount.Load(); got != 1 {
		t.Fatalf("OnCapacity = %d, want 1", got)
	}
}

func TestMaxVisitors_EvictionFreesCapacity(t *testing.T) {
	var capCount atomic.Int32
	l, cancel := newTestLimiter(
		WithRate(100, 100),
		WithMaxVisitors(1),
		WithTTL(50*time.Millisecond),
		WithOnCapacity(func() { capCount.Add(1) }),
	)
	defer cancel()

	l.allow("10.0.0.1")
	if l.allow("10.0.0.2") {
		t.Fatal("should be rejected at capacity")
	}

	time.Sleep(150 * time.Millisecond)

	if !l.allow("10.0.0.2") {
		t.Fatal("new IP should be allowed after eviction")
	}
	if l.allow("10.0.0.3") {
		t.Fatal("map is full again")
	}
	if got := capCount.Load(); got != 2 {
		t.Fatalf("OnCapacity = %d, want 2 (re-armed after eviction)", got)
	}
}

func TestMaxVisitors_ZeroDisablesLimit(t *testing.T) {
	l, cancel := newTestLimiter(WithRate(100, 100), WithMaxVisitors(0))
	defer cancel()

	for i := 0; i < 500; i++ {
		if !l.allow(fmt.Sprintf("10.0.%d.%d", i/256, i%256)) {
			t.Fatalf("ip %d rejected with no cap", i)
		}
	}
}

func makeRequestWithIP(handler http.Handler, clientIP string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	r = r.WithContext(httpmw.WithClientIP(r.Context(), clientIP))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	return w
}

func TestMiddleware_Returns429(t *testing.T) {
	l, cancel := newTestLimiter(WithRate(0.001, 2))
	defer cancel()

	var reached atomic.Int32
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached.Add(1)
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		if rec := makeRequestWithIP(h, "203.0.113.5"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i+1, rec.Code)
		}
	}
	rec := makeRequestWithIP(h, "203.0.113.5")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "30" {
		t.Errorf("Retry-After = %q", got)
	}
	if got := rec.Body.String(); got != `{"error":"too many requests"}` {
		t.Errorf("body = %q", got)
	}
	if reached.Load() != 2 {
		t.Errorf("handler reached %d times, want 2", reached.Load())
	}

	if rec := makeRequestWithIP(h, "203.0.113.6"); rec.Code != http.StatusOK {
		t.Fatalf("other IP status = %d, want 200", rec.Code)
	}
}

func TestMiddleware_ConcurrentAccess(t *testing.T) {
	l, cancel := newTestLimiter(WithRate(1000, 1000), WithMaxVisitors(50))
	defer cancel()

	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			makeRequestWithIP(h, fmt.Sprintf("10.1.0.%d", i))
		}(i)
	}
	wg.Wait()

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.visitors) > 50 {
		t.Fatalf("visitors = %d, want <= 50", len(l.visitors))
	}
}
