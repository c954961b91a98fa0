package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cstools.thoughtspot.com/cache"
	"cstools.thoughtspot.com/retry"
)

type stubSender struct {
	mu          sync.Mutex
	calls       int
	concurrent  int32
	maxObserved int32
	do          func(req *http.Request, call int) (*http.Response, error)
}

func (s *stubSender) Do(req *http.Request) (*http.Response, error) {
	cur := atomic.AddInt32(&s.concurrent, 1)
	defer atomic.AddInt32(&s.concurrent, -1)
	for {
		old := atomic.LoadInt32(&s.maxObserved)
		if cur <= old || atomic.CompareAndSwapInt32(&s.maxObserved, old, cur) {
			break
		}
	}

	s.mu.Lock()
	s.calls++
	call := s.calls
	s.mu.Unlock()

	return s.do(req, call)
}

func okResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: 200,
		Header:     http.Header{},
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

func newTestStore(t *testing.T) *cache.Store {
	t.Helper()
	s, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("cache.Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newCacheableRequest(t *testing.T, path string) *http.Request {
	t.Helper()
	req, err := http.NewRequest("GET", "https://example.com/"+path, nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set(HeaderCacheControl, "true")
	return req
}

// S1: cache hit serves the same body and carries the cache-hit header.
func TestCacheHitServesStoredResponse(t *testing.T) {
	store := newTestStore(t)
	sender := &stubSender{do: func(req *http.Request, call int) (*http.Response, error) {
		return okResponse("system info"), nil
	}}
	tr := New(sender, store, Config{MaxConcurrentRequests: 1}, nil)

	req1 := newCacheableRequest(t, "api/rest/2.0/system")
	resp1, err := tr.Send(context.Background(), req1)
	if err != nil {
		t.Fatalf("first send failed: %v", err)
	}
	body1, _ := io.ReadAll(resp1.Body)

	req2 := newCacheableRequest(t, "api/rest/2.0/system")
	resp2, err := tr.Send(context.Background(), req2)
	if err != nil {
		t.Fatalf("second send failed: %v", err)
	}
	body2, _ := io.ReadAll(resp2.Body)

	if resp2.Header.Get(HeaderCacheHit) == "" {
		t.Errorf("expected second response to carry cache-hit header")
	}
	if string(body1) != string(body2) {
		t.Errorf("expected identical bodies, got %q and %q", body1, body2)
	}
	if sender.calls != 1 {
		t.Errorf("expected exactly 1 real send, got %d", sender.calls)
	}
}

// S2: cache bypass forces a fresh send with no cache-hit header.
func TestCacheBustForcesFreshSend(t *testing.T) {
	store := newTestStore(t)
	sender := &stubSender{do: func(req *http.Request, call int) (*http.Response, error) {
		return okResponse("fresh"), nil
	}}
	tr := New(sender, store, Config{MaxConcurrentRequests: 1}, nil)

	req1 := newCacheableRequest(t, "api/rest/2.0/system")
	if _, err := tr.Send(context.Background(), req1); err != nil {
		t.Fatalf("first send failed: %v", err)
	}

	req2 := newCacheableRequest(t, "api/rest/2.0/system")
	req2.Header.Set(HeaderCacheBust, "true")
	resp2, err := tr.Send(context.Background(), req2)
	if err != nil {
		t.Fatalf("second send failed: %v", err)
	}

	if resp2.Header.Get(HeaderCacheHit) != "" {
		t.Errorf("expected no cache-hit header after bust")
	}
	if sender.calls != 2 {
		t.Errorf("expected 2 real sends after bust, got %d", sender.calls)
	}
}

// S3: two 502s then success yields exactly 3 attempts.
func TestRetryThenSuccess(t *testing.T) {
	sender := &stubSender{do: func(req *http.Request, call int) (*http.Response, error) {
		if call < 3 {
			return &http.Response{StatusCode: 502, Header: http.Header{}, Body: io.NopCloser(bytes.NewReader(nil))}, nil
		}
		return okResponse("ok"), nil
	}}
	tr := New(sender, nil, Config{MaxConcurrentRequests: 1}, nil)
	tr.classify = func(req *http.Request, outcome retry.Outcome, attempt int, elapsed time.Duration) retry.Decision {
		decision := retry.Classify(req, outcome, attempt, elapsed)
		if _, ok := decision.(retry.Continue); ok {
			return retry.Continue{Wait: time.Millisecond}
		}
		return decision
	}

	req, err := http.NewRequest("GET", "https://example.com/api/rest/2.0/system", nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	resp, err := tr.Send(context.Background(), req)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("expected final status 200, got %d", resp.StatusCode)
	}
	if sender.calls != 3 {
		t.Errorf("expected exactly 3 attempts, got %d", sender.calls)
	}
}

// S4: a network error against a non-whitelisted path is not retried.
func TestNetworkErrorNotRetriedOffWhitelist(t *testing.T) {
	sender := &stubSender{do: func(req *http.Request, call int) (*http.Response, error) {
		return nil, context.DeadlineExceeded
	}}
	tr := New(sender, nil, Config{MaxConcurrentRequests: 1}, nil)

	req, err := http.NewRequest("GET", "https://example.com/api/rest/2.0/metadata/search", nil)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	_, err = tr.Send(context.Background(), req)
	if err == nil {
		t.Fatal("expected error to surface")
	}
	if sender.calls != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", sender.calls)
	}
}

// Invariant 2/3: rate limiting bounds concurrent non-cached sends, and
// cache hits bypass the limit entirely.
func TestConcurrencyBoundedAndCacheHitsBypassIt(t *testing.T) {
	store := newTestStore(t)
	release := make(chan struct{})
	sender := &stubSender{do: func(req *http.Request, call int) (*http.Response, error) {
		<-release
		return okResponse("slow"), nil
	}}
	tr := New(sender, store, Config{MaxConcurrentRequests: 2}, nil)

	// Prime the cache with a cacheable entry while no uncached sends are blocking.
	warm := newCacheableRequest(t, "api/rest/2.0/system")
	if err := store.Store(warm, 200, http.Header{}, []byte("cached")); err != nil {
		t.Fatalf("priming cache failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, _ := http.NewRequest("GET", "https://example.com/api/rest/2.0/slow", nil)
			tr.Send(context.Background(), req)
		}()
	}

	// Give the slow uncached sends a moment to fill the semaphore.
	time.Sleep(50 * time.Millisecond)

	cached := newCacheableRequest(t, "api/rest/2.0/system")
	done := make(chan struct{})
	go func() {
		tr.Send(context.Background(), cached)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cache hit did not complete while concurrency slots were exhausted")
	}

	close(release)
	wg.Wait()

	if atomic.LoadInt32(&sender.maxObserved) > 2 {
		t.Errorf("observed more than 2 concurrent sends: %d", sender.maxObserved)
	}
}
