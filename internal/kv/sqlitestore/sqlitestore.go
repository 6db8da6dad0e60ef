// Package sqlitestore is the embedded kv engine backed by modernc.org/sqlite.
package sqlitestore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/pressly/goose/v3"
	"github.com/raakeshmj/textgate/internal/errs"
	"github.com/raakeshmj/textgate/internal/kv"

	// Register modernc SQLite driver with database/sql.
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var gooseMu sync.Mutex

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the
// embedded migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	// A single connection keeps writers ordered inside this process.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	gooseMu.Lock()
	defer func() {
		goose.SetBaseFS(nil)
		gooseMu.Unlock()
	}()
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("sqlite: set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("sqlite: apply migrations: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (kv.Record, error) {
	var rec kv.Record
	err := s.db.QueryRowContext(ctx, `SELECT v, version FROM kv WHERE k = ?`, key).Scan(&rec.Value, &rec.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return kv.Record{}, errs.ErrNotFound
	}
	if err != nil {
		return kv.Record{}, errs.Storage("get "+key, err)
	}
	return rec, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (k, v, version) VALUES (?, ?, 1)
		ON CONFLICT(k) DO UPDATE SET v = excluded.v, version = kv.version + 1`, key, value)
	if err != nil {
		return errs.Storage("put "+key, err)
	}
	return nil
}

func (s *Store) CompareAndSwap(ctx context.Context, key string, version uint64, value []byte) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if version == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO kv (k, v, version) VALUES (?, ?, 1) ON CONFLICT(k) DO NOTHING`, key, value)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE kv SET v = ?, version = version + 1 WHERE k = ? AND version = ?`, value, key, version)
	}
	if err != nil {
		return false, errs.Storage("cas "+key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errs.Storage("cas "+key, err)
	}
	return n == 1, nil
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT k FROM kv WHERE substr(k, 1, ?) = ? ORDER BY k`, utf8.RuneCountInString(prefix), prefix)
	if err != nil {
		return nil, errs.Storage("keys "+prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, errs.Storage("keys "+prefix, err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Storage("keys "+prefix, err)
	}
	return keys, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

var _ kv.Store = (*Store)(nil)
