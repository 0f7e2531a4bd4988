package storage

import (
	_ "modernc.org/sqlite"
)

// NewSQLiteStorage opens (or creates) a SQLite database. The connection
// string is a modernc.org/sqlite DSN such as "file:coursehub.db" or
// "file::memory:".
func NewSQLiteStorage(config Config) (*SQLStorage, error) {
	return openSQLStorage(sqliteDialect, config)
}
