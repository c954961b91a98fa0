package syncer

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// CSVSyncer reads and writes rows as a CSV file per identifier, under
// Directory. Column order on dump is the sorted union of every row's
// keys, so the header is stable across runs with the same schema.
type CSVSyncer struct {
	Directory string
}

var _ Syncer = (*CSVSyncer)(nil)

func NewCSVSyncer(directory string) *CSVSyncer {
	return &CSVSyncer{Directory: directory}
}

func (s *CSVSyncer) Name() string { return "csv" }

func (s *CSVSyncer) path(identifier string) string {
	return filepath.Join(s.Directory, identifier+".csv")
}

func (s *CSVSyncer) Load(ctx context.Context, identifier string) ([]Row, error) {
	f, err := os.Open(s.path(identifier))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("syncer: csv: open %s: %w", identifier, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("syncer: csv: parse %s: %w", identifier, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	rows := make([]Row, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(Row, len(header))
		for i, column := range header {
			if i < len(record) {
				row[column] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *CSVSyncer) Dump(ctx context.Context, identifier string, data []Row) error {
	if err := os.MkdirAll(s.Directory, 0o755); err != nil {
		return fmt.Errorf("syncer: csv: create directory: %w", err)
	}

	f, err := os.Create(s.path(identifier))
	if err != nil {
		return fmt.Errorf("syncer: csv: create %s: %w", identifier, err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	defer writer.Flush()

	header := columnUnion(data)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("syncer: csv: write header: %w", err)
	}

	for _, row := range data {
		record := make([]string, len(header))
		for i, column := range header {
			record[i] = fmt.Sprint(row[column])
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("syncer: csv: write row: %w", err)
		}
	}
	return writer.Error()
}

// columnUnion returns the sorted set of every key appearing across
// data, so CSVSyncer's header is deterministic independent of map
// iteration order.
func columnUnion(data []Row) []string {
	seen := map[string]struct{}{}
	for _, row := range data {
		for k := range row {
			seen[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for k := range seen {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	return columns
}
