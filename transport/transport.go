// Package transport wraps a raw HTTP sender with caching, rate
// limiting, retry, and timing, per the eight-step control flow: stamp
// dispatch time, check cache (bypassing the concurrency slot on a
// hit), acquire a slot, re-stamp, send with retry, stamp receive time,
// store on success, release the slot.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"cstools.thoughtspot.com/cache"
	"cstools.thoughtspot.com/retry"
)

// Sentinel headers controlling cache behavior and timing, named after
// the original implementation's exact header constants.
const (
	HeaderCacheControl = "x-cs-tools-cache-control"
	HeaderCacheBust    = "x-cs-tools-cache-bust"
	HeaderCacheHit     = "x-cs-tools-cache-hit"
	HeaderDispatchTime = "x-cs-tools-request-dispatch-time"
	HeaderReceiveTime  = "x-cs-tools-response-receive-time"
)

// Sender performs a single HTTP round trip. *http.Client satisfies
// this; tests substitute a stub to observe concurrency and retries.
type Sender interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config tunes a Transport.
type Config struct {
	// MaxConcurrentRequests bounds non-cached sends in flight at once.
	MaxConcurrentRequests int64
}

// DefaultConfig matches spec.md's default of 15 concurrent requests.
func DefaultConfig() Config {
	return Config{MaxConcurrentRequests: 15}
}

// Transport is the cached, rate-limited, retrying send path shared by
// every API Client request.
type Transport struct {
	sender Sender
	cache  *cache.Store
	sem    *semaphore.Weighted
	logger *logrus.Entry

	// classify is retry.Classify by default; tests override it to
	// collapse the real backoff schedule to something fast.
	classify func(req *http.Request, outcome retry.Outcome, attempt int, elapsed time.Duration) retry.Decision
}

// New builds a Transport over sender. store may be nil, in which case
// caching is disabled entirely regardless of request headers.
func New(sender Sender, store *cache.Store, cfg Config, logger *logrus.Entry) *Transport {
	if cfg.MaxConcurrentRequests <= 0 {
		cfg.MaxConcurrentRequests = DefaultConfig().MaxConcurrentRequests
	}
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Transport{
		sender:   sender,
		cache:    store,
		sem:      semaphore.NewWeighted(cfg.MaxConcurrentRequests),
		logger:   logger,
		classify: retry.Classify,
	}
}

// Send executes req per the transport's eight-step control flow.
func (t *Transport) Send(ctx context.Context, req *http.Request) (*http.Response, error) {
	stamp(req, HeaderDispatchTime)

	cacheEnabled := req.Header.Get(HeaderCacheControl) != "" && t.cache != nil
	bypassCache := req.Header.Get(HeaderCacheBust) != "" && t.cache != nil

	if bypassCache {
		if err := t.cache.Expire(req); err != nil {
			t.logger.WithError(err).Warn("cache: failed to expire entry before bypassed request")
		}
	}

	if cacheEnabled && !bypassCache {
		entry, err := t.cache.Check(req)
		if err != nil {
			t.logger.WithError(err).Warn("cache: check failed, proceeding as cache miss")
		} else if entry != nil {
			return servedFromCache(entry), nil
		}
	}

	if err := t.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("transport: acquire concurrency slot: %w", err)
	}
	defer t.sem.Release(1)

	stamp(req, HeaderDispatchTime)

	resp, err := t.sendWithRetry(ctx, req)
	if err != nil {
		return nil, err
	}

	resp.Header.Set(HeaderReceiveTime, now())

	if cacheEnabled && resp.StatusCode < 300 {
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			t.logger.WithError(readErr).Warn("cache: failed to read response body for storage")
			resp.Body = io.NopCloser(bytes.NewReader(nil))
			return resp, nil
		}
		resp.Body = io.NopCloser(bytes.NewReader(body))
		if err := t.cache.Store(req, resp.StatusCode, resp.Header, body); err != nil {
			t.logger.WithError(err).Warn("cache: store failed")
		}
	}

	return resp, nil
}

// sendWithRetry drives the raw send through retry.Classify until it
// gives a terminal decision, holding the caller's concurrency slot for
// the entire cycle.
func (t *Transport) sendWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	start := time.Now()
	attempt := 0

	for {
		attempt++
		resp, err := t.sender.Do(req.WithContext(ctx))
		elapsed := time.Since(start)
		decision := t.classify(req, retry.Outcome{Response: resp, Err: err}, attempt, elapsed)

		switch d := decision.(type) {
		case retry.Continue:
			if resp != nil {
				resp.Body.Close()
			}
			t.logger.WithFields(logrus.Fields{
				"attempt": attempt,
				"elapsed": elapsed,
				"wait":    d.Wait,
			}).Warn("retrying request")

			if err := resetBody(req); err != nil {
				return nil, fmt.Errorf("transport: cannot retry, body not replayable: %w", err)
			}

			select {
			case <-time.After(d.Wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		case retry.Give:
			if err != nil {
				return nil, err
			}
			return resp, nil
		default:
			return nil, fmt.Errorf("transport: unknown retry decision %T", decision)
		}
	}
}

func resetBody(req *http.Request) error {
	if req.Body == nil || req.GetBody == nil {
		return nil
	}
	body, err := req.GetBody()
	if err != nil {
		return err
	}
	req.Body = body
	return nil
}

func servedFromCache(entry *cache.Entry) *http.Response {
	header := entry.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	header.Set(HeaderCacheHit, "true")
	header.Set(HeaderReceiveTime, now())

	return &http.Response{
		StatusCode: entry.StatusCode,
		Header:     header,
		Body:       io.NopCloser(bytes.NewReader(entry.Body)),
	}
}

func stamp(req *http.Request, header string) {
	req.Header.Set(header, now())
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
