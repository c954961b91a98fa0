// Package apiclient is the typed HTTP surface over the platform's REST
// API: authentication, metadata, security, org/user administration,
// version control, and data loading, all funneled through a single
// transport.Transport so caching, retry, and concurrency limits apply
// uniformly.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"cstools.thoughtspot.com/session"
	"cstools.thoughtspot.com/transport"
)

// sentinelUndefined marks an argument the caller explicitly wants
// omitted from the request body rather than sent as a literal value.
const sentinelUndefined = "undefined"

// DefaultTimeout bounds a single request/response round trip, not
// counting retries.
const DefaultTimeout = 5 * time.Minute

// PermissionsBatchSize is how many GUIDs the V1 permissions endpoint
// is asked about per call. The platform's V1 permissions endpoint
// chokes on large GUID lists; batching keeps each call well within
// its limits.
var PermissionsBatchSize = 25

// Client is the authenticated handle used by every workflow and
// deploy operation. It is safe for concurrent use.
type Client struct {
	baseURL   string
	transport *transport.Transport
	logger    *logrus.Entry

	mu                      sync.RWMutex
	session                 *session.Context
	bearer                  string
	dataserviceHostUnlocked string
	loginUsername           string
	loginPassword           string

	heartbeatMu   sync.Mutex
	heartbeatStop context.CancelFunc
}

// New builds a Client against baseURL, routing every request through
// tr. baseURL must not carry a trailing slash.
func New(baseURL string, tr *transport.Transport, logger *logrus.Entry) *Client {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		transport: tr,
		logger:    logger,
	}
}

// Session returns the facts captured at the last successful login, or
// the zero Context if the client has never logged in.
func (c *Client) Session() session.Context {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return session.Context{}
	}
	return *c.session
}

func (c *Client) setSession(ctx session.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = &ctx
}

func (c *Client) setBearer(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bearer = token
}

func (c *Client) currentBearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bearer
}

// setCredentials remembers the username/password a session login was
// made with, so a subsequent data-load node redirect can reauthenticate
// against the redirected host without asking the caller for them again.
func (c *Client) setCredentials(username, password string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loginUsername = username
	c.loginPassword = password
}

func (c *Client) credentials() (username, password string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loginUsername, c.loginPassword
}

// requestOptions tunes a single call without cluttering every method
// signature with cache/org parameters.
type requestOptions struct {
	cacheable bool
	cacheBust bool
	orgID     string
}

type requestOption func(*requestOptions)

func withCache() requestOption     { return func(o *requestOptions) { o.cacheable = true } }
func withCacheBust() requestOption { return func(o *requestOptions) { o.cacheBust = true } }

// do issues a single request for method+path with body marshaled as
// JSON (nil is allowed for bodyless requests), unmarshals the JSON
// response into out (nil to discard the body), and applies the
// request/response logging hooks and org-scoping header.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, opts ...requestOption) error {
	var options requestOptions
	for _, opt := range opts {
		opt(&options)
	}

	var reader io.Reader
	if body != nil {
		scrubbed := Scrub(body)
		encoded, err := json.Marshal(scrubbed)
		if err != nil {
			return fmt.Errorf("apiclient: encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, reader)
	if err != nil {
		return fmt.Errorf("apiclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer := c.currentBearer(); bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if orgID := options.orgID; orgID != "" {
		req.Header.Set("X-TS-ORG-ID", orgID)
	} else if s := c.Session(); s.OrgsEnabled && s.OrgID != "" {
		req.Header.Set("X-TS-ORG-ID", s.OrgID)
	}
	if options.cacheable {
		req.Header.Set(transport.HeaderCacheControl, "true")
	}
	if options.cacheBust {
		req.Header.Set(transport.HeaderCacheBust, "true")
	}

	c.logBeforeSend(req, body)

	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		c.logger.WithError(err).WithField("path", path).Error("request failed before a response was received")
		return fmt.Errorf("apiclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("apiclient: read response body: %w", err)
	}

	c.logAfterReceive(req, resp, payload)

	if resp.StatusCode >= 400 {
		return &StatusError{Path: path, StatusCode: resp.StatusCode, Body: payload}
	}

	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("apiclient: decode response body: %w", err)
	}
	return nil
}

func (c *Client) logBeforeSend(req *http.Request, body interface{}) {
	c.logger.WithFields(logrus.Fields{
		"method": req.Method,
		"path":   req.URL.Path,
		"query":  req.URL.RawQuery,
		"body":   body,
	}).Debug("dispatching request")
}

func (c *Client) logAfterReceive(req *http.Request, resp *http.Response, payload []byte) {
	fields := logrus.Fields{
		"path":   req.URL.Path,
		"status": resp.StatusCode,
	}
	if dispatch := req.Header.Get(transport.HeaderDispatchTime); dispatch != "" {
		if dt, err := time.Parse(time.RFC3339Nano, dispatch); err == nil {
			fields["elapsed"] = time.Since(dt)
		}
	}
	if resp.StatusCode >= 400 {
		fields["body"] = string(payload)
		c.logger.WithFields(fields).Error("request returned an error status")
		return
	}
	c.logger.WithFields(fields).Debug("received response")
}

// Scrub recursively strips map entries whose value equals the
// "undefined" sentinel, so callers can build request bodies from
// optional arguments without hand-writing presence checks for each
// one. It operates on the same plain-Go-value shapes JSON encodes
// (maps, slices, scalars) and leaves struct values untouched, since
// struct fields don't carry the sentinel.
func Scrub(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			if s, ok := item.(string); ok && s == sentinelUndefined {
				continue
			}
			out[k] = Scrub(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = Scrub(item)
		}
		return out
	default:
		return v
	}
}

// StatusError is returned when the platform responds with a 4xx/5xx
// status. Callers needing a specific status code switch on this type
// rather than parsing error strings.
type StatusError struct {
	Path       string
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("apiclient: %s returned status %d: %s", e.Path, e.StatusCode, string(e.Body))
}

// query builds a URL-encoded query string from plain key/value pairs.
func query(pairs map[string]string) string {
	values := url.Values{}
	for k, v := range pairs {
		if v == "" {
			continue
		}
		values.Set(k, v)
	}
	return values.Encode()
}
