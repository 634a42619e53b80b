package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/kamazee/vcutil/pkg/models"
	"github.com/kamazee/vcutil/pkg/vcerrors"
)

// SQLStore implements Store over database/sql.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// Dialect implements Store.
func (s *SQLStore) Dialect() Dialect { return s.dialect }

// DB exposes the underlying handle for health checks.
func (s *SQLStore) DB() *sql.DB { return s.db }

// QueryValue implements Store.
func (s *SQLStore) QueryValue(ctx context.Context, st Statement) (models.Value, error) {
	v := models.Null()
	seen := false
	err := s.QueryRows(ctx, st, func(row Row) error {
		if !seen && len(row) > 0 {
			v = row[0]
		}
		seen = true
		return nil
	})
	return v, err
}

// QueryRows implements Store.
func (s *SQLStore) QueryRows(ctx context.Context, st Statement, fn func(Row) error) error {
	rows, err := s.db.QueryContext(ctx, st.SQL, st.Args...)
	if err != nil {
		return queryErr(err, "query failed", st)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return queryErr(err, "failed to read column types", st)
	}

	raw := make([]any, len(types))
	dest := make([]any, len(types))
	for i := range raw {
		dest[i] = &raw[i]
	}

	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return queryErr(err, "failed to scan row", st)
		}
		row := make(Row, len(types))
		for i, ct := range types {
			v, err := Decode(ct.DatabaseTypeName(), raw[i])
			if err != nil {
				var verr *vcerrors.Error
				if errors.As(err, &verr) {
					verr.WithDetail("column", ct.Name())
				}
				return err
			}
			row[i] = v
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return queryErr(err, "row iteration failed", st)
	}
	return nil
}

// Exec implements Store. The statement runs in its own transaction, which is
// committed only if the statement succeeds within maxAffected.
func (s *SQLStore) Exec(ctx context.Context, st Statement, maxAffected int64) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, vcerrors.Wrap(err, vcerrors.ErrorTypeConnection, "failed to begin transaction")
	}

	res, err := tx.ExecContext(ctx, st.SQL, st.Args...)
	if err != nil {
		_ = tx.Rollback()
		return 0, queryErr(err, "statement failed", st)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return 0, queryErr(err, "failed to read affected rows", st)
	}
	if maxAffected >= 0 && affected > maxAffected {
		_ = tx.Rollback()
		return 0, vcerrors.New(vcerrors.ErrorTypeQuery, "statement affected more rows than allowed; rolled back").
			WithDetail("affected", affected).
			WithDetail("max_affected", maxAffected).
			WithDetail("sql", st.SQL)
	}
	if err := tx.Commit(); err != nil {
		return 0, queryErr(err, "commit failed", st)
	}
	return affected, nil
}

// Columns implements Store.
func (s *SQLStore) Columns(ctx context.Context, table string) ([]string, error) {
	var cols []string
	err := s.QueryRows(ctx, s.dialect.ColumnsQuery(table), func(row Row) error {
		if len(row) == 0 || row[0].Category != models.Text {
			return vcerrors.New(vcerrors.ErrorTypeQuery, "unexpected column listing shape")
		}
		cols = append(cols, row[0].Str)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, vcerrors.New(vcerrors.ErrorTypeQuery, "table not found or has no columns").
			WithDetail("table", table)
	}
	return cols, nil
}

// Close implements Store.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func queryErr(err error, msg string, st Statement) error {
	errType := vcerrors.ErrorTypeQuery
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		errType = vcerrors.ErrorTypeTimeout
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, sql.ErrTxDone):
		errType = vcerrors.ErrorTypeConnection
	}
	return vcerrors.Wrap(err, errType, msg).WithDetail("sql", st.SQL)
}
