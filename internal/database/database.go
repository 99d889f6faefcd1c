package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// Goose dialects understood by Migrate.
const (
	DialectSQLite   = "sqlite3"
	DialectPostgres = "postgres"
)

// Open opens the SQLite catalog at the given path with WAL mode enabled.
// It creates the parent directory if it does not exist. ":memory:" is
// accepted for tests.
func Open(dbPath string) (*sql.DB, error) {
	dsn := ":memory:"
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	} else {
		dsn += "?_pragma=foreign_keys(1)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.PingContext(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single writer connection for SQLite; also keeps :memory: on one connection.
	db.SetMaxOpenConns(1)

	return db, nil
}

// Migrate runs all pending catalog migrations for the given goose dialect.
func Migrate(db *sql.DB, dialect string) error {
	dir := "migrations/sqlite"
	if dialect == DialectPostgres {
		dir = "migrations/postgres"
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	return nil
}
