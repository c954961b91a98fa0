package syncer

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// LoadStrategy controls how DatabaseSyncer.Dump reconciles incoming
// rows against an existing table.
type LoadStrategy string

const (
	LoadAppend   LoadStrategy = "APPEND"
	LoadTruncate LoadStrategy = "TRUNCATE"
	LoadUpsert   LoadStrategy = "UPSERT"
)

// Column describes one column of a table DatabaseSyncer may need to
// create on first use.
type Column struct {
	Name       string
	Type       string // dialect SQL type, e.g. "TEXT", "BIGINT"
	PrimaryKey bool
}

// Metadata is the subset of a table's shape DatabaseSyncer needs to
// create it if it doesn't already exist. It deliberately doesn't model
// a full schema the way an ORM would; the core only ever creates
// tables it's about to load into.
type Metadata struct {
	Table   string
	Columns []Column
}

func (m Metadata) createTableSQL() string {
	defs := make([]string, 0, len(m.Columns))
	var primaryKeys []string
	for _, c := range m.Columns {
		defs = append(defs, fmt.Sprintf("%s %s", c.Name, c.Type))
		if c.PrimaryKey {
			primaryKeys = append(primaryKeys, c.Name)
		}
	}
	if len(primaryKeys) > 0 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(primaryKeys, ", ")))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", m.Table, strings.Join(defs, ", "))
}

// DatabaseSyncer loads and dumps rows against a relational table over
// database/sql, rather than an ORM: its job is bulk insert/upsert into
// a caller-named table, not model-managed persistence. engine names
// the driver registered with database/sql (e.g. "postgres").
type DatabaseSyncer struct {
	db           querier
	engine       string
	loadStrategy LoadStrategy
	metadata     Metadata
}

var _ Syncer = (*DatabaseSyncer)(nil)

// OpenDatabaseSyncer opens a *sql.DB for driverName/dataSourceName and
// wraps it as a DatabaseSyncer. The table named by metadata is created
// if it doesn't already exist.
func OpenDatabaseSyncer(ctx context.Context, driverName, dataSourceName string, metadata Metadata, strategy LoadStrategy) (*DatabaseSyncer, error) {
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("syncer: database: open %s: %w", driverName, err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("syncer: database: ping %s: %w", driverName, err)
	}

	s := NewDatabaseSyncer(db, driverName, metadata, strategy)
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// NewDatabaseSyncer builds a DatabaseSyncer over an already-open
// connection (or a test double satisfying querier), without touching
// the schema. Exported so tests can inject a mock querier.
func NewDatabaseSyncer(db querier, engine string, metadata Metadata, strategy LoadStrategy) *DatabaseSyncer {
	return &DatabaseSyncer{db: db, engine: engine, loadStrategy: strategy, metadata: metadata}
}

func (s *DatabaseSyncer) Name() string { return "database:" + s.engine }

func (s *DatabaseSyncer) Engine() string {
	return s.engine
}

func (s *DatabaseSyncer) Metadata() Metadata {
	return s.metadata
}

func (s *DatabaseSyncer) LoadStrategy() LoadStrategy {
	return s.loadStrategy
}

func (s *DatabaseSyncer) ensureTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.metadata.createTableSQL())
	if err != nil {
		return fmt.Errorf("syncer: database: create table %s: %w", s.metadata.Table, err)
	}
	return nil
}

// Load selects every row from identifier, which must name the table
// backing this syncer (kept as a parameter to satisfy the Syncer
// interface uniformly across adapters).
func (s *DatabaseSyncer) Load(ctx context.Context, identifier string) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s", identifier))
	if err != nil {
		return nil, fmt.Errorf("syncer: database: select from %s: %w", identifier, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("syncer: database: columns for %s: %w", identifier, err)
	}

	var out []Row
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("syncer: database: scan %s: %w", identifier, err)
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Dump writes data into identifier per the syncer's configured
// LoadStrategy: APPEND inserts, TRUNCATE deletes then inserts, UPSERT
// inserts with an ON CONFLICT DO UPDATE clause keyed on the table's
// declared primary key columns.
func (s *DatabaseSyncer) Dump(ctx context.Context, identifier string, data []Row) error {
	if len(data) == 0 {
		return nil
	}

	if s.loadStrategy == LoadTruncate {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", identifier)); err != nil {
			return fmt.Errorf("syncer: database: truncate %s: %w", identifier, err)
		}
	}

	columns := columnUnion(data)
	insertSQL := s.insertStatement(identifier, columns)

	for _, row := range data {
		args := make([]interface{}, len(columns))
		for i, col := range columns {
			args[i] = row[col]
		}
		if _, err := s.db.ExecContext(ctx, insertSQL, args...); err != nil {
			return fmt.Errorf("syncer: database: insert into %s: %w", identifier, err)
		}
	}
	return nil
}

// insertStatement builds a positional-placeholder INSERT for columns,
// appending an ON CONFLICT upsert clause when the syncer's strategy
// is UPSERT and the table declares a primary key.
func (s *DatabaseSyncer) insertStatement(table string, columns []string) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))

	if s.loadStrategy != LoadUpsert {
		return stmt
	}

	var primaryKeys []string
	for _, c := range s.metadata.Columns {
		if c.PrimaryKey {
			primaryKeys = append(primaryKeys, c.Name)
		}
	}
	if len(primaryKeys) == 0 {
		return stmt
	}

	var updates []string
	for _, col := range columns {
		if contains(primaryKeys, col) {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	if len(updates) == 0 {
		return stmt + fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", strings.Join(primaryKeys, ", "))
	}
	return stmt + fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", strings.Join(primaryKeys, ", "), strings.Join(updates, ", "))
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
