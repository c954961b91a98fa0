package workflows

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"cstools.thoughtspot.com/apiclient"
)

// tmlImportPollInterval is how often TMLImport polls an async
// import's status.
const tmlImportPollInterval = 5 * time.Second

// TMLImportOptions controls how TMLImport applies a batch of
// documents.
type TMLImportOptions struct {
	Policy    apiclient.ImportPolicy
	CreateNew bool
	Async     bool
}

// TMLImport imports the given TML documents under opts, transparently
// polling to completion when opts.Async is set so callers always get
// back a final per-document result list.
func TMLImport(ctx context.Context, client *apiclient.Client, tmls [][]byte, opts TMLImportOptions, logger *logrus.Entry) ([]StatusRow, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	var results []apiclient.TMLImportResult
	if opts.Async {
		ticketID, err := client.TMLImportAsync(ctx, tmls, opts.Policy, opts.CreateNew)
		if err != nil {
			return nil, fmt.Errorf("workflows: tml import: %w", err)
		}

		ticker := time.NewTicker(tmlImportPollInterval)
		defer ticker.Stop()
		for {
			done, rows, err := client.TMLImportStatus(ctx, ticketID)
			if err != nil {
				return nil, fmt.Errorf("workflows: tml import status: %w", err)
			}
			if done {
				results = rows
				break
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-ticker.C:
			}
		}
	} else {
		rows, err := client.TMLImport(ctx, tmls, opts.Policy, opts.CreateNew)
		if err != nil {
			return nil, fmt.Errorf("workflows: tml import: %w", err)
		}
		results = rows
	}

	out := make([]StatusRow, len(results))
	for i, r := range results {
		status := StatusOK
		switch r.Status {
		case "ERROR":
			status = StatusError
			logger.WithField("guid", r.GUID).WithField("message", r.Message).Error("tml import failed for an object")
		case "WARNING":
			status = StatusWarning
		}
		out[i] = StatusRow{GUID: r.GUID, Name: r.Name, Type: r.Type, Status: status, Message: r.Message}
	}
	return out, nil
}
