// Package store is the narrow query surface the archive run needs from a
// relational database: scalar probes, streamed row reads, transactional
// deletes and column discovery. Every value crossing this boundary has been
// decoded into a models.Value by a validating shim, so callers never see
// driver-specific types.
package store

import (
	"context"

	"github.com/kamazee/vcutil/pkg/models"
)

// Statement is SQL text with its positional arguments. Placeholders are
// written in the dialect of the store that will run it.
type Statement struct {
	SQL  string
	Args []any
}

// Row is one decoded result row, in select-list order.
type Row []models.Value

// Store executes statements against a single table's database.
type Store interface {
	// QueryValue returns the first column of the first row, or an absent
	// value when the statement yields no rows.
	QueryValue(ctx context.Context, st Statement) (models.Value, error)

	// QueryRows streams every row to fn in result order. Iteration stops at
	// the first error returned by fn or by decoding.
	QueryRows(ctx context.Context, st Statement, fn func(Row) error) error

	// Exec runs st in its own transaction and returns the affected row count.
	// When maxAffected is not negative and the statement affects more rows,
	// the transaction is rolled back and an error returned.
	Exec(ctx context.Context, st Statement, maxAffected int64) (int64, error)

	// Columns lists the table's columns in ordinal order.
	Columns(ctx context.Context, table string) ([]string, error)

	// Dialect returns the SQL dialect statements must be written in.
	Dialect() Dialect

	Close() error
}
