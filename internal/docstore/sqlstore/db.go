// Package sqlstore is the embedded docstore adapter backed by SQLite.
// Change notifications ride the process bus: every mutation publishes a
// store event, and watches re-query the full collection on each one.
package sqlstore

import (
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"

	"github.com/chatit/chatit/internal/bus"
	"github.com/chatit/chatit/internal/docstore"
	"github.com/chatit/chatit/internal/docstore/sqlstore/migrations"
)

var _ docstore.Store = (*Store)(nil)

// Store implements docstore.Store on a local SQLite database.
type Store struct {
	db  *sql.DB
	bus *bus.Bus
}

// Open creates a SQLite connection with WAL mode and recommended
// pragmas. The bus carries change notifications to watches and to the
// notification dispatcher.
func Open(path string, b *bus.Bus) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return &Store{db: db, bus: b}, nil
}

// MigrateResult describes what happened during migration.
type MigrateResult struct {
	Version uint
	Dirty   bool
	Changed bool
}

// Migrate runs all pending migrations on the database.
func (s *Store) Migrate() (*MigrateResult, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance: %w", err)
	}

	err = m.Up()
	changed := true
	if err == migrate.ErrNoChange {
		changed = false
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("migration up: %w", err)
	}

	version, dirty, _ := m.Version()
	return &MigrateResult{Version: version, Dirty: dirty, Changed: changed}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
