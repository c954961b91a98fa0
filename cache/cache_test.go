package cache

import (
	"bytes"
	"net/http"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newRequest(t *testing.T, method, url string, body []byte) *http.Request {
	t.Helper()
	var r *http.Request
	var err error
	if body != nil {
		r, err = http.NewRequest(method, url, bytes.NewReader(body))
	} else {
		r, err = http.NewRequest(method, url, nil)
	}
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	return r
}

func TestFingerprintStableForEquivalentRequests(t *testing.T) {
	r1 := newRequest(t, "GET", "https://example.com/a/b?x=1", nil)
	r2 := newRequest(t, "GET", "https://example.com/a/b?x=1", nil)

	fp1 := Fingerprint(r1, nil)
	fp2 := Fingerprint(r2, nil)

	if fp1 != fp2 {
		t.Errorf("expected equal fingerprints, got %s and %s", fp1, fp2)
	}
}

func TestFingerprintDiffersOnBody(t *testing.T) {
	r1 := newRequest(t, "POST", "https://example.com/a", []byte(`{"x":1}`))
	r2 := newRequest(t, "POST", "https://example.com/a", []byte(`{"x":2}`))

	fp1 := Fingerprint(r1, []byte(`{"x":1}`))
	fp2 := Fingerprint(r2, []byte(`{"x":2}`))

	if fp1 == fp2 {
		t.Errorf("expected different fingerprints for different bodies")
	}
}

func TestCheckMissReturnsNil(t *testing.T) {
	s := openTestStore(t)
	req := newRequest(t, "GET", "https://example.com/system", nil)

	entry, err := s.Check(req)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if entry != nil {
		t.Errorf("expected cache miss, got entry %+v", entry)
	}
}

func TestStoreThenCheckHits(t *testing.T) {
	s := openTestStore(t)
	req := newRequest(t, "GET", "https://example.com/system", nil)

	header := http.Header{"Content-Type": []string{"application/json"}}
	if err := s.Store(req, 200, header, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	entry, err := s.Check(req)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if entry == nil {
		t.Fatal("expected cache hit, got miss")
	}
	if entry.StatusCode != 200 {
		t.Errorf("expected status 200, got %d", entry.StatusCode)
	}
	if string(entry.Body) != `{"ok":true}` {
		t.Errorf("unexpected body: %s", entry.Body)
	}
}

func TestCheckIncrementsHitCount(t *testing.T) {
	s := openTestStore(t)
	req := newRequest(t, "GET", "https://example.com/system", nil)

	if err := s.Store(req, 200, nil, []byte("body")); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	if _, err := s.Check(req); err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	entry, err := s.Check(req)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if entry.HitCount < 1 {
		t.Errorf("expected hit count to have incremented, got %d", entry.HitCount)
	}
}

func TestExpireRemovesEntry(t *testing.T) {
	s := openTestStore(t)
	req := newRequest(t, "GET", "https://example.com/system", nil)

	if err := s.Store(req, 200, nil, []byte("body")); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := s.Expire(req); err != nil {
		t.Fatalf("Expire failed: %v", err)
	}

	entry, err := s.Check(req)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if entry != nil {
		t.Errorf("expected entry to be gone after Expire, got %+v", entry)
	}
}

func TestClearDropsAllRows(t *testing.T) {
	s := openTestStore(t)
	req1 := newRequest(t, "GET", "https://example.com/a", nil)
	req2 := newRequest(t, "GET", "https://example.com/b", nil)

	if err := s.Store(req1, 200, nil, []byte("a")); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := s.Store(req2, 200, nil, []byte("b")); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}

	for _, req := range []*http.Request{req1, req2} {
		entry, err := s.Check(req)
		if err != nil {
			t.Fatalf("Check failed: %v", err)
		}
		if entry != nil {
			t.Errorf("expected no entries after Clear, found %+v", entry)
		}
	}
}
