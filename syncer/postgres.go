package syncer

import (
	"context"
	"fmt"

	_ "github.com/lib/pq" // registers the "postgres" database/sql driver
)

// PostgresConfig names a Postgres database the way an administrator's
// syncer definition would: host, credentials, target database and
// schema.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Schema   string
}

func (c PostgresConfig) dataSourceName() string {
	schema := c.Schema
	if schema == "" {
		schema = "public"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s search_path=%s sslmode=disable",
		c.Host, port, c.Database, c.Username, c.Password, schema,
	)
}

// OpenPostgresSyncer opens a DatabaseSyncer against Postgres via
// lib/pq, creating metadata's table if it doesn't exist yet.
func OpenPostgresSyncer(ctx context.Context, cfg PostgresConfig, metadata Metadata, strategy LoadStrategy) (*DatabaseSyncer, error) {
	return OpenDatabaseSyncer(ctx, "postgres", cfg.dataSourceName(), metadata, strategy)
}
