// Package store persists the fleet inventory in SQLite: hosts and their
// availability counters, probe batch summaries, remote executions, tags,
// monitored URLs, SNMP readings and memoized selections.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rileyhilliard/fleet/internal/errors"
	_ "modernc.org/sqlite"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// ops holds every query; Store runs them on the pool, Tx inside a transaction.
type ops struct {
	q querier
}

// Store is the inventory database.
type Store struct {
	ops
	db   *sql.DB
	path string
}

// Tx is a write transaction handed to WithTx callbacks.
type Tx struct {
	ops
}

// Open opens (creating if needed) the inventory at path and migrates it.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New(errors.ErrStore,
			"No inventory store path configured",
			"Set store.path in fleet.yaml")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrStore,
			"Can't create inventory directory "+filepath.Dir(path),
			"Check directory permissions or pick another store.path")
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrStore, "Can't open inventory "+path, "")
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.WrapWithCode(err, errors.ErrStore,
			"Can't open inventory "+path,
			"Check the file is a SQLite database and is writable")
	}

	s := &Store{ops: ops{q: db}, db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.WrapWithCode(err, errors.ErrStore, "Can't migrate inventory "+path, "")
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// WithTx runs fn inside a transaction. Any error from fn rolls back every
// change made through the Tx.
func (s *Store) WithTx(ctx context.Context, fn func(*Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Tx{ops: ops{q: tx}}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) userVersion() int {
	var v int
	s.db.QueryRow("PRAGMA user_version").Scan(&v)
	return v
}

func (s *Store) migrate() error {
	current := s.userVersion()
	for i := current; i < len(migrations); i++ {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for migration v%d: %w", i+1, err)
		}
		for _, stmt := range migrations[i] {
			if _, err := tx.Exec(stmt); err != nil {
				tx.Rollback()
				return fmt.Errorf("migration v%d: %w", i+1, err)
			}
		}
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return fmt.Errorf("set user_version %d: %w", i+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", i+1, err)
		}
	}
	return nil
}

func toEpoch(t *time.Time) sql.NullInt64 {
	if t == nil || t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func fromEpoch(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0)
	return &t
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func fromEpochValue(secs int64) time.Time {
	return time.Unix(secs, 0)
}

func secondsToDuration(secs float64) time.Duration {
	return time.Duration(secs * float64(time.Second))
}
