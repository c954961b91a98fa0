package workflows

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"cstools.thoughtspot.com/apiclient"
)

// tmlExportConcurrency matches the checkpoint/deploy engine's export
// fan-out width per spec.md §4.8.
const tmlExportConcurrency = 4

// StatusRow is one object's outcome within a composite operation:
// OK if it succeeded, WARNING for a recoverable partial failure, ERROR
// for a hard failure. Aggregate rollup across a batch always takes the
// worst of the three.
type StatusRow struct {
	GUID    string
	Name    string
	Type    string
	Status  string
	Message string
}

const (
	StatusOK      = "OK"
	StatusWarning = "WARNING"
	StatusError   = "ERROR"
)

// TMLExport exports each guid's TML, writing successful exports to
// {directory}/{type}/{guid}.{type}.tml when directory is non-empty.
// A per-object failure becomes an ERROR status row rather than
// aborting the batch.
func TMLExport(ctx context.Context, client *apiclient.Client, guids []string, directory string, logger *logrus.Entry) ([]StatusRow, error) {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	rows, err := client.TMLExport(ctx, guids, true)
	if err != nil {
		return nil, fmt.Errorf("workflows: tml export: %w", err)
	}

	out := make([]StatusRow, 0, len(rows))
	for _, row := range rows {
		status := StatusRow{GUID: row.GUID, Name: row.Name, Type: row.Type, Status: StatusOK}
		if row.Err != nil {
			status.Status = StatusError
			status.Message = row.Err.Error()
			logger.WithError(row.Err).WithField("guid", row.GUID).Error("unable to export object, see logs for details")
			out = append(out, status)
			continue
		}

		if directory != "" {
			if err := writeTMLFile(directory, row.Type, row.GUID, row.TML); err != nil {
				status.Status = StatusError
				status.Message = err.Error()
				logger.WithError(err).WithField("guid", row.GUID).Error("exported tml but could not write it to disk")
			}
		}
		out = append(out, status)
	}
	return out, nil
}

func writeTMLFile(directory, objectType, guid string, tml []byte) error {
	dir := filepath.Join(directory, objectType)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%s.%s.tml", guid, objectType))
	if err := os.WriteFile(path, tml, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Rollup reduces a batch of status rows to the single worst status:
// ERROR beats WARNING beats OK.
func Rollup(rows []StatusRow) string {
	worst := StatusOK
	for _, r := range rows {
		switch r.Status {
		case StatusError:
			return StatusError
		case StatusWarning:
			worst = StatusWarning
		}
	}
	return worst
}
