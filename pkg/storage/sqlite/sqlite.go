// Package sqlite implements the storage.Store interface over SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"flowclaw/pkg/recovery"
	"flowclaw/pkg/storage"
)

// Store is a SQLite-backed storage adapter. It uses WAL mode for concurrent
// reads and a single writer connection to avoid SQLITE_BUSY errors.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies the required
// pragmas. Safe to call multiple times for the same path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	return &Store{db: db}, nil
}

// NewStore wraps an existing database handle. The caller keeps ownership of
// the handle's lifecycle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) QueryOne(ctx context.Context, query string, args ...any) (storage.Row, error) {
	return queryOne(ctx, s.db, query, args...)
}

func (s *Store) QueryAll(ctx context.Context, query string, args ...any) ([]storage.Row, error) {
	return queryAll(ctx, s.db, query, args...)
}

func (s *Store) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return execAffected(ctx, s.db, query, args...)
}

func (s *Store) Insert(ctx context.Context, table string, values storage.Row) (int64, error) {
	return insert(ctx, s.db, table, values)
}

func (s *Store) Update(ctx context.Context, table string, values storage.Row, where string, args ...any) (int64, error) {
	return update(ctx, s.db, table, values, where, args...)
}

func (s *Store) Delete(ctx context.Context, table string, where string, args ...any) (int64, error) {
	return execAffected(ctx, s.db, fmt.Sprintf("DELETE FROM %s WHERE %s", table, where), args...)
}

func (s *Store) FindByID(ctx context.Context, table string, id any) (storage.Row, error) {
	return queryOne(ctx, s.db, fmt.Sprintf("SELECT * FROM %s WHERE id = ?", table), id)
}

func (s *Store) FindAll(ctx context.Context, table string) ([]storage.Row, error) {
	return queryAll(ctx, s.db, fmt.Sprintf("SELECT * FROM %s", table))
}

// Transaction runs fn against a transactional view of the store. fn
// returning an error rolls back; nil commits.
func (s *Store) Transaction(ctx context.Context, fn func(tx storage.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr(fmt.Errorf("begin transaction: %w", err))
	}

	if err := fn(&txStore{tx: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return wrapErr(fmt.Errorf("commit transaction: %w", err))
	}

	return nil
}

// txStore exposes the Store interface inside one transaction.
type txStore struct {
	tx *sql.Tx
}

func (t *txStore) QueryOne(ctx context.Context, query string, args ...any) (storage.Row, error) {
	return queryOne(ctx, t.tx, query, args...)
}

func (t *txStore) QueryAll(ctx context.Context, query string, args ...any) ([]storage.Row, error) {
	return queryAll(ctx, t.tx, query, args...)
}

func (t *txStore) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return execAffected(ctx, t.tx, query, args...)
}

func (t *txStore) Insert(ctx context.Context, table string, values storage.Row) (int64, error) {
	return insert(ctx, t.tx, table, values)
}

func (t *txStore) Update(ctx context.Context, table string, values storage.Row, where string, args ...any) (int64, error) {
	return update(ctx, t.tx, table, values, where, args...)
}

func (t *txStore) Delete(ctx context.Context, table string, where string, args ...any) (int64, error) {
	return execAffected(ctx, t.tx, fmt.Sprintf("DELETE FROM %s WHERE %s", table, where), args...)
}

func (t *txStore) FindByID(ctx context.Context, table string, id any) (storage.Row, error) {
	return queryOne(ctx, t.tx, fmt.Sprintf("SELECT * FROM %s WHERE id = ?", table), id)
}

func (t *txStore) FindAll(ctx context.Context, table string) ([]storage.Row, error) {
	return queryAll(ctx, t.tx, fmt.Sprintf("SELECT * FROM %s", table))
}

// Transaction inside a transaction reuses the open one.
func (t *txStore) Transaction(_ context.Context, fn func(tx storage.Store) error) error {
	return fn(t)
}

func queryOne(ctx context.Context, q querier, query string, args ...any) (storage.Row, error) {
	rows, err := queryAll(ctx, q, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	return rows[0], nil
}

func queryAll(ctx context.Context, q querier, query string, args ...any) ([]storage.Row, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, wrapErr(err)
	}

	var out []storage.Row
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, wrapErr(err)
		}

		row := make(storage.Row, len(columns))
		for i, column := range columns {
			if raw, ok := values[i].([]byte); ok {
				row[column] = string(raw)
				continue
			}
			row[column] = values[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr(err)
	}

	return out, nil
}

func execAffected(ctx context.Context, q querier, query string, args ...any) (int64, error) {
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, wrapErr(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, wrapErr(err)
	}

	return affected, nil
}

func insert(ctx context.Context, q querier, table string, values storage.Row) (int64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("insert into %s: no values", table)
	}

	columns := make([]string, 0, len(values))
	for column := range values {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	args := make([]any, 0, len(columns))
	placeholders := make([]string, 0, len(columns))
	for _, column := range columns {
		args = append(args, values[column])
		placeholders = append(placeholders, "?")
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "),
	)
	result, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, wrapErr(err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, wrapErr(err)
	}

	return id, nil
}

func update(ctx context.Context, q querier, table string, values storage.Row, where string, args ...any) (int64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("update %s: no values", table)
	}

	columns := make([]string, 0, len(values))
	for column := range values {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	assignments := make([]string, 0, len(columns))
	setArgs := make([]any, 0, len(columns)+len(args))
	for _, column := range columns {
		assignments = append(assignments, column+" = ?")
		setArgs = append(setArgs, values[column])
	}
	setArgs = append(setArgs, args...)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(assignments, ", "), where)

	return execAffected(ctx, q, query, setArgs...)
}

// wrapErr categorizes driver failures so the recovery handler can resolve
// them by kind.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return recovery.NewDatabaseError(recovery.CodeQueryCancelled, err)
	case errors.Is(err, sql.ErrConnDone):
		return recovery.NewDatabaseError(recovery.CodeConnRefused, err)
	default:
		return recovery.NewDatabaseError("", err)
	}
}
