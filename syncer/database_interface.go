package syncer

import (
	"context"
	"database/sql"
)

// querier is the minimal surface DatabaseSyncer needs out of a SQL
// connection. Abstracting it out of *sql.DB this way, rather than
// depending on the concrete type directly, is what lets tests swap in
// a mock without standing up a real database.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

var _ querier = (*sql.DB)(nil)
