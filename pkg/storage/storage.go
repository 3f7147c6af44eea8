// Package storage defines the persistence capability surface exposed to
// pipeline stages, plus a transparent TTL read-cache wrapper. Adapters (for
// example storage/sqlite) satisfy Store over a concrete database.
package storage

import "context"

// Row is one result record keyed by column name.
type Row map[string]any

// Store is the parameterized persistence handle stages receive through the
// run context. Implementations must be safe for concurrent use.
type Store interface {
	// QueryOne runs a parameterized query and returns the first row, or nil
	// when the result set is empty.
	QueryOne(ctx context.Context, query string, args ...any) (Row, error)
	// QueryAll runs a parameterized query and returns every row.
	QueryAll(ctx context.Context, query string, args ...any) ([]Row, error)
	// Exec runs a parameterized statement and returns the affected row count.
	Exec(ctx context.Context, query string, args ...any) (int64, error)

	Insert(ctx context.Context, table string, values Row) (int64, error)
	Update(ctx context.Context, table string, values Row, where string, args ...any) (int64, error)
	Delete(ctx context.Context, table string, where string, args ...any) (int64, error)

	FindByID(ctx context.Context, table string, id any) (Row, error)
	FindAll(ctx context.Context, table string) ([]Row, error)

	// Transaction runs fn against a transactional store. fn returning an
	// error rolls the transaction back; nil commits it.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}
