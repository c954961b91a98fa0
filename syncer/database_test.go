package syncer

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQuerier is a minimal querier double that only records the SQL
// text it was asked to execute; it never talks to a real database.
type fakeQuerier struct {
	execCalls []string
	execErr   error
}

func (f *fakeQuerier) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	f.execCalls = append(f.execCalls, query)
	if f.execErr != nil {
		return nil, f.execErr
	}
	return nil, nil
}

func (f *fakeQuerier) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return nil, assert.AnError
}

func TestDatabaseSyncerAppendInsertsEveryRow(t *testing.T) {
	fq := &fakeQuerier{}
	metadata := Metadata{
		Table: "objects",
		Columns: []Column{
			{Name: "guid", Type: "TEXT", PrimaryKey: true},
			{Name: "name", Type: "TEXT"},
		},
	}
	s := NewDatabaseSyncer(fq, "postgres", metadata, LoadAppend)

	data := []Row{
		{"guid": "g1", "name": "first"},
		{"guid": "g2", "name": "second"},
	}
	require.NoError(t, s.Dump(context.Background(), "objects", data))

	require.Len(t, fq.execCalls, 2)
	for _, call := range fq.execCalls {
		assert.Contains(t, call, "INSERT INTO objects")
	}
}

func TestDatabaseSyncerTruncateDeletesBeforeInserting(t *testing.T) {
	fq := &fakeQuerier{}
	metadata := Metadata{Table: "objects", Columns: []Column{{Name: "guid", Type: "TEXT"}}}
	s := NewDatabaseSyncer(fq, "postgres", metadata, LoadTruncate)

	require.NoError(t, s.Dump(context.Background(), "objects", []Row{{"guid": "g1"}}))

	require.Len(t, fq.execCalls, 2)
	assert.Contains(t, fq.execCalls[0], "DELETE FROM objects")
	assert.Contains(t, fq.execCalls[1], "INSERT INTO objects")
}

func TestDatabaseSyncerUpsertAddsOnConflictClause(t *testing.T) {
	fq := &fakeQuerier{}
	metadata := Metadata{
		Table: "objects",
		Columns: []Column{
			{Name: "guid", Type: "TEXT", PrimaryKey: true},
			{Name: "name", Type: "TEXT"},
		},
	}
	s := NewDatabaseSyncer(fq, "postgres", metadata, LoadUpsert)

	require.NoError(t, s.Dump(context.Background(), "objects", []Row{{"guid": "g1", "name": "first"}}))

	require.Len(t, fq.execCalls, 1)
	assert.Contains(t, fq.execCalls[0], "ON CONFLICT (guid) DO UPDATE SET name = EXCLUDED.name")
}

func TestDatabaseSyncerDumpOfNoRowsIsANoop(t *testing.T) {
	fq := &fakeQuerier{}
	s := NewDatabaseSyncer(fq, "postgres", Metadata{Table: "objects"}, LoadAppend)
	require.NoError(t, s.Dump(context.Background(), "objects", nil))
	assert.Empty(t, fq.execCalls)
}

func TestMetadataCreateTableSQLIncludesPrimaryKey(t *testing.T) {
	m := Metadata{
		Table: "objects",
		Columns: []Column{
			{Name: "guid", Type: "TEXT", PrimaryKey: true},
			{Name: "name", Type: "TEXT"},
		},
	}
	stmt := m.createTableSQL()
	assert.Contains(t, stmt, "CREATE TABLE IF NOT EXISTS objects")
	assert.Contains(t, stmt, "PRIMARY KEY (guid)")
}
