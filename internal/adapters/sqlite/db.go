// Package sqlite stores credentials and estimate caches in an embedded
// SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// DB wraps a SQLite connection. SQLite allows a single writer, so writes are
// serialized through writeMu on top of a one-connection pool.
type DB struct {
	conn    *sql.DB
	writeMu sync.Mutex
	log     zerolog.Logger
}

// Open opens (creating if needed) the database at path in WAL mode and
// ensures the schema exists.
func Open(ctx context.Context, path string, log zerolog.Logger) (*DB, error) {
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	db := &DB{conn: conn, log: log.With().Str("component", "sqlite").Logger()}
	if err := db.EnsureSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	db.log.Info().Str("path", path).Msg("sqlite store ready")
	return db, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

// EnsureSchema creates the tables if they do not exist.
func (db *DB) EnsureSchema(ctx context.Context) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	if _, err := db.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (db *DB) exec(ctx context.Context, query string, args ...any) error {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	_, err := db.conn.ExecContext(ctx, query, args...)
	return err
}
