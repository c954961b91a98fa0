// Package cache provides durable, per-fingerprint storage of HTTP
// responses, backed by an embedded bbolt database file. It is the
// Go-ecosystem stand-in for "an embedded relational database file":
// a single-file, transactional key/value store with no server process.
package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

const bucketName = "cstools-cache"

// Entry is a stored HTTP response keyed by request fingerprint. One
// row exists per fingerprint; HitCount is monotonically non-decreasing
// but an update may be lost under concurrent access without corrupting
// the row itself.
type Entry struct {
	Fingerprint string      `json:"fingerprint"`
	StatusCode  int         `json:"status_code"`
	Header      http.Header `json:"header"`
	Body        []byte      `json:"body"`
	HitCount    int64       `json:"hit_count"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Store is the durable cache. A Store is safe for concurrent use; the
// underlying database serializes concurrent writes.
type Store struct {
	db *bolt.DB

	// hitMu serializes the read-increment-write cycle used to bump
	// HitCount on a cache hit. It is not required for correctness
	// (bbolt already serializes writer transactions) but keeps the
	// increment itself from racing with a concurrent Store call for
	// the same fingerprint within this process.
	hitMu sync.Mutex
}

// Open opens or creates the cache database file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("cache: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: create bucket: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// Fingerprint computes the cache key for a request: method, host,
// path, query string, and body, hashed for a fixed-width stable key.
// Two byte-equivalent requests always yield the same fingerprint.
func Fingerprint(req *http.Request, body []byte) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n%s\n%s\n", req.Method, req.URL.Host, req.URL.Path, req.URL.RawQuery)
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// ReadBody drains req.Body for fingerprinting and restores it so the
// request can still be sent downstream.
func ReadBody(req *http.Request) ([]byte, error) {
	if req.Body == nil {
		return nil, nil
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("cache: read request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	return body, nil
}

// Check returns the stored entry for req, or nil if there is none. It
// increments the entry's hit count as a side effect; losing that
// update under a race is acceptable per contract.
func (s *Store) Check(req *http.Request) (*Entry, error) {
	body, err := ReadBody(req)
	if err != nil {
		return nil, err
	}
	fp := Fingerprint(req, body)

	var entry Entry
	var found bool
	err = s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		data := b.Get([]byte(fp))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &entry)
	})
	if err != nil {
		return nil, fmt.Errorf("cache: check %s: %w", fp, err)
	}
	if !found {
		return nil, nil
	}

	s.bumpHitCount(fp)
	return &entry, nil
}

func (s *Store) bumpHitCount(fp string) {
	s.hitMu.Lock()
	defer s.hitMu.Unlock()

	_ = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		data := b.Get([]byte(fp))
		if data == nil {
			return nil
		}
		var e Entry
		if err := json.Unmarshal(data, &e); err != nil {
			return nil
		}
		e.HitCount++
		out, err := json.Marshal(e)
		if err != nil {
			return nil
		}
		return b.Put([]byte(fp), out)
	})
}

// Store writes or replaces the row for req's fingerprint with a fresh
// entry built from the response's status, header, and body. Last
// writer wins when two stores race for the same fingerprint.
func (s *Store) Store(req *http.Request, statusCode int, header http.Header, body []byte) error {
	reqBody, err := ReadBody(req)
	if err != nil {
		return err
	}
	fp := Fingerprint(req, reqBody)

	entry := Entry{
		Fingerprint: fp,
		StatusCode:  statusCode,
		Header:      header,
		Body:        body,
		CreatedAt:   time.Now().UTC(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: marshal entry for %s: %w", fp, err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		return b.Put([]byte(fp), data)
	})
}

// Expire removes the row for req's fingerprint, if any.
func (s *Store) Expire(req *http.Request) error {
	body, err := ReadBody(req)
	if err != nil {
		return err
	}
	fp := Fingerprint(req, body)

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		return b.Delete([]byte(fp))
	})
}

// Clear drops every row from the cache.
func (s *Store) Clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketName)); err != nil {
			return err
		}
		_, err := tx.CreateBucket([]byte(bucketName))
		return err
	})
}
