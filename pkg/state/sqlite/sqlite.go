// Package sqlite is the durable state backend: the element snapshot is
// kept in a single SQLite database so Save can replace it in one
// transaction. A crash mid-save leaves the previous snapshot intact.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"

	"github.com/loom-cfg/loom/pkg/element"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Config holds SQLite backend configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns bounds the connection pool. Defaults to 4; the
	// backend is a single-writer resource so a large pool buys nothing.
	MaxOpenConns int

	// ConnMaxLifetime recycles pooled connections.
	ConnMaxLifetime time.Duration
}

// Backend implements state.Backend over SQLite.
type Backend struct {
	db   *sql.DB
	path string
}

// Open opens the database, applies pragmas and runs migrations.
func Open(ctx context.Context, cfg Config) (*Backend, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	b := &Backend{db: db, path: cfg.Path}
	if err := b.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

// Close closes the database connection.
func (b *Backend) Close() error {
	if b.db != nil {
		return b.db.Close()
	}
	return nil
}

func (b *Backend) migrate() error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(b.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Load reads the persisted element snapshot.
func (b *Backend) Load(ctx context.Context) ([]element.Element, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, kind, payload FROM elements ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load elements: %w", err)
	}
	defer rows.Close()

	var elems []element.Element
	for rows.Next() {
		var id, kind string
		var payload []byte
		if err := rows.Scan(&id, &kind, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan element row: %w", err)
		}
		e, err := decodeElement(kind, payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode element %s: %w", id, err)
		}
		elems = append(elems, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate element rows: %w", err)
	}

	return elems, nil
}

// Save replaces the persisted snapshot in one transaction.
func (b *Backend) Save(ctx context.Context, elems []element.Element) error {
	tx, err := b.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM elements`); err != nil {
		return fmt.Errorf("failed to clear elements: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO elements (id, kind, payload, updated_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, e := range elems {
		if e == nil {
			continue
		}
		kind, payload, err := encodeElement(e)
		if err != nil {
			return fmt.Errorf("failed to encode element %s: %w", e.EID(), err)
		}
		if _, err := stmt.ExecContext(ctx, e.EID().String(), kind, payload, now); err != nil {
			return fmt.Errorf("failed to insert element %s: %w", e.EID(), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	return nil
}
