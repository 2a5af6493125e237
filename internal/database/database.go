package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its base FS and dialect in package globals
var gooseMu sync.Mutex

// DB wraps the database connection
type DB struct {
	conn *sql.DB
}

type driverInfo struct {
	sqlName string
	dialect string
}

var drivers = map[string]driverInfo{
	"postgres": {sqlName: "postgres", dialect: "postgres"},
	"pgx":      {sqlName: "pgx", dialect: "postgres"},
	"sqlite":   {sqlName: "sqlite", dialect: "sqlite3"},
}

// New opens the database with the given driver (postgres, pgx or sqlite),
// verifies the connection and applies the embedded migrations.
func New(ctx context.Context, driver, dsn string) (*DB, error) {
	info, ok := drivers[driver]
	if !ok {
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}

	conn, err := sql.Open(info.sqlName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == "sqlite" {
		// in-memory databases live per connection and sqlite wants a single writer
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
	} else {
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(1 * time.Hour)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(info.dialect); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate(dialect string) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	return goose.Up(db.conn, "migrations")
}
