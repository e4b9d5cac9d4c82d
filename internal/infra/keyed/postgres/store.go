// Package postgres provides a Postgres-backed keyed store for deployments
// that already run a shared database server.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"stockcore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.KeyedStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/stockcore?sslmode=disable"
	counterCell   = "counter"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists records in an items table keyed by id, with a meta table
// holding the counter cell. Keys are stored as signed BIGINT; the two-term
// ORDER BY in Ascend restores unsigned ascending order past 1<<63.
type Store struct {
	db *sql.DB
}

// NewStore opens a Postgres-backed keyed store using the provided DSN
// (falls back to defaultDSN) and ensures the schema exists.
func NewStore(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS items (
		id BIGINT PRIMARY KEY,
		record BYTEA NOT NULL
	)`); err != nil {
		return fmt.Errorf("create items table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS meta (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("create meta table: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key uint64) (domain.Record, bool, error) {
	var rec []byte
	err := s.db.QueryRowContext(ctx, `SELECT record FROM items WHERE id = $1`, int64(key)).Scan(&rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("select record %d: %w", key, err)
	}
	return rec, true, nil
}

func (s *Store) Insert(ctx context.Context, key uint64, rec domain.Record) (domain.Record, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin insert %d: %w", key, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	var prev []byte
	replaced := true
	if err := tx.QueryRowContext(ctx, `SELECT record FROM items WHERE id = $1`, int64(key)).Scan(&prev); errors.Is(err, sql.ErrNoRows) {
		replaced = false
		prev = nil
	} else if err != nil {
		return nil, false, fmt.Errorf("select previous %d: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO items(id,record) VALUES($1,$2) ON CONFLICT(id) DO UPDATE SET record=EXCLUDED.record`, int64(key), []byte(rec)); err != nil {
		return nil, false, fmt.Errorf("upsert record %d: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit insert %d: %w", key, err)
	}
	committed = true
	if !replaced {
		return nil, false, nil
	}
	return prev, true, nil
}

func (s *Store) Remove(ctx context.Context, key uint64) (domain.Record, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin remove %d: %w", key, err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	var prev []byte
	if err := tx.QueryRowContext(ctx, `SELECT record FROM items WHERE id = $1`, int64(key)).Scan(&prev); errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("select previous %d: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, int64(key)); err != nil {
		return nil, false, fmt.Errorf("delete record %d: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit remove %d: %w", key, err)
	}
	committed = true
	return prev, true, nil
}

func (s *Store) Ascend(ctx context.Context, fn func(key uint64, rec domain.Record) bool) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, record FROM items ORDER BY (id < 0), id`)
	if err != nil {
		return fmt.Errorf("select records: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id int64
		var rec []byte
		if err := rows.Scan(&id, &rec); err != nil {
			return fmt.Errorf("scan record: %w", err)
		}
		if !fn(uint64(id), rec) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate records: %w", err)
	}
	return nil
}

func (s *Store) Counter(ctx context.Context) (uint64, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE name = $1`, counterCell).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select counter: %w", err)
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse counter %q: %w", raw, err)
	}
	return value, nil
}

func (s *Store) SetCounter(ctx context.Context, value uint64) error {
	raw := strconv.FormatUint(value, 10)
	if _, err := s.db.ExecContext(ctx, `INSERT INTO meta(name,value) VALUES($1,$2) ON CONFLICT(name) DO UPDATE SET value=EXCLUDED.value`, counterCell, raw); err != nil {
		return fmt.Errorf("write counter: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
