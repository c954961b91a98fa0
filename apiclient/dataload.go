package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"
)

// LoadStrategy controls how loaded rows interact with existing table
// data.
type LoadStrategy string

const (
	LoadAppend   LoadStrategy = "APPEND"
	LoadTruncate LoadStrategy = "TRUNCATE"
	LoadUpsert   LoadStrategy = "UPSERT"
)

// dataserviceHost caches a node-redirect hint returned by load
// initialization, so subsequent calls in the same load go straight to
// the owning node instead of bouncing through the load balancer every
// time.
func (c *Client) dataserviceHost() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dataserviceHostUnlocked
}

func (c *Client) setDataserviceHost(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dataserviceHostUnlocked = host
}

// DataserviceHost returns the node-redirect hint captured during the
// most recent data load session, or "" if none was captured.
func (c *Client) DataserviceHost() string {
	return c.dataserviceHost()
}

// SetDataserviceHost primes the client with a previously captured
// node-redirect hint, letting a caller skip straight to the owning
// node for a load cycle it already knows about.
func (c *Client) SetDataserviceHost(host string) {
	c.setDataserviceHost(host)
}

// dataServiceURL returns the base URL data-load endpoints should be
// sent to: the redirect hint from a prior session call if one was
// captured, otherwise the client's own host on DataServicePort.
func (c *Client) dataServiceURL(path string) (string, error) {
	host := c.dataserviceHost()
	if host != "" {
		return fmt.Sprintf("https://%s/%s", host, path), nil
	}

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("apiclient: parse base url: %w", err)
	}
	return fmt.Sprintf("%s://%s:%d/%s", u.Scheme, u.Hostname(), DataServicePort, path), nil
}

// DataLoadInitialize opens a new load session against the given table
// and strategy, returning the load's ID. If the platform's response
// carries a node_address, the load balancer has handed this cycle off
// to a specific node; subsequent calls for this cycle are routed there,
// and the client reauthenticates against that node before returning,
// since the node's auth service knows nothing about the session
// established against the load balancer.
func (c *Client) DataLoadInitialize(ctx context.Context, databaseName, schemaName, tableName string, strategy LoadStrategy, dateFormat string) (loadID string, err error) {
	initDest, err := c.dataServiceURL(pathDataLoadInitialize)
	if err != nil {
		return "", err
	}

	body := map[string]interface{}{
		"database":      databaseName,
		"schema":        schemaName,
		"table":         tableName,
		"load_strategy": strategy,
		"date_format":   dateFormat,
	}
	var resp struct {
		ID          string `json:"cycle_id"`
		NodeAddress *struct {
			Host string `json:"host"`
			Port int    `json:"port"`
		} `json:"node_address"`
	}
	if err := c.sendRaw(ctx, "POST", initDest, body, &resp); err != nil {
		return "", fmt.Errorf("apiclient: data load initialize: %w", err)
	}

	if resp.NodeAddress != nil && resp.NodeAddress.Host != "" && resp.NodeAddress.Host != "127.0.0.1" {
		c.setDataserviceHost(fmt.Sprintf("%s:%d", resp.NodeAddress.Host, resp.NodeAddress.Port))
		if err := c.reauthenticateDataserviceSession(ctx); err != nil {
			return resp.ID, fmt.Errorf("apiclient: data load: reauthenticate against redirected node: %w", err)
		}
	}

	return resp.ID, nil
}

// reauthenticateDataserviceSession re-establishes a session against the
// node the most recent load was redirected to, using the credentials
// captured at the original session login. The dataservice endpoint
// delegates to that node's own auth service, which knows nothing about
// the session the caller already holds against the load balancer.
func (c *Client) reauthenticateDataserviceSession(ctx context.Context) error {
	username, password := c.credentials()
	if username == "" {
		return fmt.Errorf("no stored credentials to reauthenticate with")
	}

	dest, err := c.dataServiceURL(pathDataLoadSession)
	if err != nil {
		return err
	}
	body := map[string]interface{}{"username": username, "password": password}
	return c.sendRaw(ctx, "POST", dest, body, nil)
}

// DataLoadStart uploads a single chunk of data for loadID as a
// multipart file upload and begins processing it.
func (c *Client) DataLoadStart(ctx context.Context, loadID string, data io.Reader) error {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "data.csv")
	if err != nil {
		return fmt.Errorf("apiclient: data load start: build multipart body: %w", err)
	}
	if _, err := io.Copy(part, data); err != nil {
		return fmt.Errorf("apiclient: data load start: copy data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("apiclient: data load start: close multipart writer: %w", err)
	}

	dest, err := c.dataServiceURL(fmt.Sprintf(pathDataLoadStart, loadID))
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", dest, &buf)
	if err != nil {
		return fmt.Errorf("apiclient: data load start: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		return fmt.Errorf("apiclient: data load start: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		payload, _ := io.ReadAll(resp.Body)
		return &StatusError{Path: req.URL.Path, StatusCode: resp.StatusCode, Body: payload}
	}
	return nil
}

// DataLoadCommit finalizes loadID, making its loaded rows visible.
func (c *Client) DataLoadCommit(ctx context.Context, loadID string) error {
	dest, err := c.dataServiceURL(fmt.Sprintf(pathDataLoadCommit, loadID))
	if err != nil {
		return err
	}
	if err := c.sendRaw(ctx, "POST", dest, nil, nil); err != nil {
		return fmt.Errorf("apiclient: data load commit: %w", err)
	}
	return nil
}

// DataLoadStatusReport is a single poll of a load cycle's progress.
type DataLoadStatusReport struct {
	Status      string
	RowsWritten int64
	BadRecords  int64
}

// done reports whether the platform has reached a terminal status for
// this load cycle.
func (r DataLoadStatusReport) done() bool {
	return r.Status == "OK" || r.Status == "ERROR" || r.Status == "COMPLETED"
}

// DataLoadStatus polls loadID's current status once.
func (c *Client) DataLoadStatus(ctx context.Context, loadID string) (DataLoadStatusReport, error) {
	dest, err := c.dataServiceURL(fmt.Sprintf(pathDataLoadStatus, loadID))
	if err != nil {
		return DataLoadStatusReport{}, err
	}
	var resp struct {
		Status      string `json:"status"`
		RowsWritten int64  `json:"rows_written"`
		BadRecords  int64  `json:"ignored_row_count"`
	}
	if err := c.sendRaw(ctx, "GET", dest, nil, &resp); err != nil {
		return DataLoadStatusReport{}, fmt.Errorf("apiclient: data load status: %w", err)
	}
	return DataLoadStatusReport{Status: resp.Status, RowsWritten: resp.RowsWritten, BadRecords: resp.BadRecords}, nil
}

// WaitForLoad polls loadID's status every 5 seconds until it reaches
// a terminal state or ctx is done.
func (c *Client) WaitForLoad(ctx context.Context, loadID string) (DataLoadStatusReport, error) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		report, err := c.DataLoadStatus(ctx, loadID)
		if err != nil {
			return report, err
		}
		if report.done() {
			return report, nil
		}

		select {
		case <-ctx.Done():
			return report, ctx.Err()
		case <-ticker.C:
		}
	}
}

// DataLoadBadRecords downloads the rows that failed to load for
// loadID as a raw file, in whatever format the platform produced it
// (typically CSV).
func (c *Client) DataLoadBadRecords(ctx context.Context, loadID string) ([]byte, error) {
	dest, err := c.dataServiceURL(fmt.Sprintf(pathDataLoadBadRecords, loadID))
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "GET", dest, nil)
	if err != nil {
		return nil, fmt.Errorf("apiclient: data load bad records: build request: %w", err)
	}
	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("apiclient: data load bad records: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("apiclient: data load bad records: read body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, &StatusError{Path: req.URL.Path, StatusCode: resp.StatusCode, Body: payload}
	}
	return payload, nil
}

// sendRaw is like do but targets an absolute destination URL rather
// than joining a path onto the client's own base URL, for requests
// that may be routed to a different dataservice host.
func (c *Client) sendRaw(ctx context.Context, method, dest string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(Scrub(body))
		if err != nil {
			return fmt.Errorf("apiclient: encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, dest, reader)
	if err != nil {
		return fmt.Errorf("apiclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer := c.currentBearer(); bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.transport.Send(ctx, req)
	if err != nil {
		return fmt.Errorf("apiclient: %s %s: %w", method, dest, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("apiclient: read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return &StatusError{Path: req.URL.Path, StatusCode: resp.StatusCode, Body: payload}
	}
	if out == nil || len(payload) == 0 {
		return nil
	}
	return json.Unmarshal(payload, out)
}
