package storage

import (
	_ "github.com/jackc/pgx/v5/stdlib"
)

// NewPostgresStorage connects to PostgreSQL through the pgx database/sql
// driver and creates the schema if it is missing.
func NewPostgresStorage(config Config) (*SQLStorage, error) {
	return openSQLStorage(postgresDialect, config)
}
