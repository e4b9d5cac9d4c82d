// Package mysql provides a MySQL-backed keyed store. Keys map onto BIGINT
// UNSIGNED, so the natural ORDER BY already matches unsigned key order.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	_ "github.com/go-sql-driver/mysql" // register the mysql driver

	"stockcore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.KeyedStore = (*Store)(nil)

const (
	defaultDSN  = "root@tcp(localhost:3306)/stockcore?parseTime=true"
	counterCell = "counter"
)

// Store persists records in an items table keyed by id, with a meta table
// holding the counter cell. The record column is sized to the codec bound.
type Store struct {
	db *sql.DB
}

// NewStore opens a MySQL-backed keyed store using the provided DSN (falls
// back to defaultDSN) and ensures the schema exists.
func NewStore(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}
	if err := ensureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func ensureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS items (
		id BIGINT UNSIGNED PRIMARY KEY,
		record VARBINARY(1024) NOT NULL
	)`); err != nil {
		return fmt.Errorf("create items table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS meta (
		name VARCHAR(64) PRIMARY KEY,
		value VARCHAR(32) NOT NULL
	)`); err != nil {
		return fmt.Errorf("create meta table: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key uint64) (domain.Record, bool, error) {
	var rec []byte
	err := s.db.QueryRowContext(ctx, `SELECT record FROM items WHERE id = ?`, key).Scan(&rec)
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
	if err := tx.QueryRowContext(ctx, `SELECT record FROM items WHERE id = ? FOR UPDATE`, key).Scan(&prev); errors.Is(err, sql.ErrNoRows) {
		replaced = false
		prev = nil
	} else if err != nil {
		return nil, false, fmt.Errorf("select previous %d: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO items (id, record) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE record = ?`, key, []byte(rec), []byte(rec)); err != nil {
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
	if err := tx.QueryRowContext(ctx, `SELECT record FROM items WHERE id = ? FOR UPDATE`, key).Scan(&prev); errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, fmt.Errorf("select previous %d: %w", key, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, key); err != nil {
		return nil, false, fmt.Errorf("delete record %d: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("commit remove %d: %w", key, err)
	}
	committed = true
	return prev, true, nil
}

func (s *Store) Ascend(ctx context.Context, fn func(key uint64, rec domain.Record) bool) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id, record FROM items ORDER BY id`)
	if err != nil {
		return fmt.Errorf("select records: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var id uint64
		var rec []byte
		if err := rows.Scan(&id, &rec); err != nil {
			return fmt.Errorf("scan record: %w", err)
		}
		if !fn(id, rec) {
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
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE name = ?`, counterCell).Scan(&raw)
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
	if _, err := s.db.ExecContext(ctx, `INSERT INTO meta (name, value) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE value = ?`, counterCell, raw, raw); err != nil {
		return fmt.Errorf("write counter: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }
