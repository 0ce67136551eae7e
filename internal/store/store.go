// Package store persists boosts, payments, sent boosts and balance samples
// in SQLite. Every add is idempotent on the record's natural key.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dgnsrekt/helipad/internal/boost"
)

var ErrNotFound = errors.New("record not found")

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the
// schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// Pragmas in the DSN run on every connection the pool opens.
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// sqlite serializes writers; one connection avoids SQLITE_BUSY between
	// the poller and API handlers.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(schemaSQL); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &Store{db: conn, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Filter selects a page of records. With Old set the page walks downward
// from Index, otherwise upward. A non-zero EndIndex bounds the far side of
// the walk (inclusive).
type Filter struct {
	Index    uint64
	Max      uint64
	Old      bool
	Actions  []boost.Action
	EndIndex uint64
}

// DefaultPageSize applies when a filter has no Max.
const DefaultPageSize = 100

func (f Filter) clause(column string) (string, []any) {
	where := column + " >= ?"
	order := "ASC"
	if f.Old {
		where = column + " <= ?"
		order = "DESC"
	}
	args := []any{int64(f.Index)}

	if len(f.Actions) > 0 {
		where += " AND action IN ("
		for i, a := range f.Actions {
			if i > 0 {
				where += ", "
			}
			where += "?"
			args = append(args, int(a))
		}
		where += ")"
	}

	if f.EndIndex > 0 {
		if f.Old {
			where += " AND " + column + " >= ?"
		} else {
			where += " AND " + column + " <= ?"
		}
		args = append(args, int64(f.EndIndex))
	}

	limit := f.Max
	if limit == 0 {
		limit = DefaultPageSize
	}
	args = append(args, int64(limit))

	return fmt.Sprintf("WHERE %s ORDER BY %s %s LIMIT ?", where, column, order), args
}

func (s *Store) lastIndex(ctx context.Context, table string) (uint64, error) {
	var idx sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(idx) FROM "+table).Scan(&idx); err != nil {
		return 0, fmt.Errorf("reading last %s index: %w", table, err)
	}
	if !idx.Valid {
		return 0, nil
	}
	return uint64(idx.Int64), nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
