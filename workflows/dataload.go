package workflows

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"cstools.thoughtspot.com/apiclient"
)

const nodeRedirectBucket = "cstools-dataload-redirects"

// NodeRedirectCache durably records which node a data-load cycle was
// redirected to, so a crashed run can be diagnosed after the fact. The
// live redirect routing and reauthentication against the redirected
// node both happen inside apiclient.Client itself, at initialize time;
// this cache is purely the audit trail across runs, mirroring the
// original implementation's on-disk cache file.
type NodeRedirectCache struct {
	db *bolt.DB
}

// OpenNodeRedirectCache opens or creates the redirect cache file at
// path.
func OpenNodeRedirectCache(path string) (*NodeRedirectCache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("workflows: open node redirect cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(nodeRedirectBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("workflows: create redirect bucket: %w", err)
	}
	return &NodeRedirectCache{db: db}, nil
}

// Close releases the underlying database file.
func (c *NodeRedirectCache) Close() error {
	return c.db.Close()
}

type redirectRecord struct {
	Host      string    `json:"host"`
	BeganAtUTC time.Time `json:"began_at_utc"`
}

// Record stores the node host that cycleID was redirected to.
func (c *NodeRedirectCache) Record(cycleID, host string) error {
	if host == "" {
		return nil
	}
	data, err := json.Marshal(redirectRecord{Host: host, BeganAtUTC: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("workflows: marshal redirect record: %w", err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(nodeRedirectBucket))
		return b.Put([]byte(cycleID), data)
	})
}

// Lookup returns the host cycleID was previously redirected to, if
// any record exists.
func (c *NodeRedirectCache) Lookup(cycleID string) (string, bool, error) {
	var record redirectRecord
	var found bool
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(nodeRedirectBucket))
		data := b.Get([]byte(cycleID))
		if data == nil {
			return nil
		}
		found = true
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return "", false, fmt.Errorf("workflows: lookup redirect record: %w", err)
	}
	return record.Host, found, nil
}

// DataLoadParams names a load's target table and format, mirroring
// the flags the remote tsload service accepts.
type DataLoadParams struct {
	Database      string
	Schema        string
	Table         string
	Strategy      apiclient.LoadStrategy
	DateFormat    string
	EmptyTarget   bool
}

// DataLoad drives a full load cycle: initialize, upload, commit. The
// redirect cache, if non-nil, records any node-redirect hint the
// platform issued for later diagnosis; it is not required for the
// load itself to succeed, since apiclient.Client already tracks the
// redirect in-process for the remainder of this run.
func DataLoad(ctx context.Context, client *apiclient.Client, params DataLoadParams, data io.Reader, redirectCache *NodeRedirectCache, logger *logrus.Entry) (cycleID string, err error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	cycleID, err = client.DataLoadInitialize(ctx, params.Database, params.Schema, params.Table, params.Strategy, params.DateFormat)
	if err != nil {
		return "", fmt.Errorf("workflows: data load initialize: %w", err)
	}
	logger.WithField("cycle_id", cycleID).Info("data load initialized")

	if host := client.DataserviceHost(); host != "" && redirectCache != nil {
		if err := redirectCache.Record(cycleID, host); err != nil {
			logger.WithError(err).Warn("could not persist node redirect record")
		}
	}

	if err := client.DataLoadStart(ctx, cycleID, data); err != nil {
		return cycleID, fmt.Errorf("workflows: data load start: %w", err)
	}

	if err := client.DataLoadCommit(ctx, cycleID); err != nil {
		return cycleID, fmt.Errorf("workflows: data load commit: %w", err)
	}

	return cycleID, nil
}

// WaitForLoad polls cycleID until it reaches a terminal state,
// logging a bad-records download if the load ended with ignored rows.
func WaitForLoad(ctx context.Context, client *apiclient.Client, cycleID string, logger *logrus.Entry) (apiclient.DataLoadStatusReport, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	report, err := client.WaitForLoad(ctx, cycleID)
	if err != nil {
		return report, fmt.Errorf("workflows: wait for load: %w", err)
	}

	if report.BadRecords > 0 {
		logger.WithField("bad_records", report.BadRecords).Warn("load completed with ignored rows, fetching bad records file")
		if _, err := client.DataLoadBadRecords(ctx, cycleID); err != nil {
			logger.WithError(err).Warn("could not fetch bad records file")
		}
	}

	return report, nil
}
