package store

import (
	"strconv"
	"strings"

	"github.com/kamazee/vcutil/pkg/vcerrors"
)

// Dialect captures the SQL differences between supported databases.
type Dialect interface {
	Name() string

	// QuoteIdent quotes a single identifier.
	QuoteIdent(name string) string

	// QuoteTable quotes a table name that may be qualified as schema.table.
	QuoteTable(name string) string

	// Placeholder returns the n-th (1-based) positional parameter marker.
	Placeholder(n int) string

	// ColumnsQuery lists the columns of table in ordinal order.
	ColumnsQuery(table string) Statement

	// BoundaryDeltaQuery returns the number of real seconds between the
	// session-local wall-clock time at and one wall-clock second before it.
	// The answer is 1 except across a daylight-saving transition.
	BoundaryDeltaQuery(at string) Statement
}

// DialectFor returns the dialect for a configured driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "mysql", "mariadb":
		return MySQL{}, nil
	case "postgres", "postgresql", "pgx":
		return Postgres{}, nil
	default:
		return nil, vcerrors.Newf(vcerrors.ErrorTypeConfig, "unsupported driver %q", driver)
	}
}

// MySQL is the dialect of MySQL and MariaDB.
type MySQL struct{}

func (MySQL) Name() string { return "mysql" }

func (MySQL) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

func (d MySQL) QuoteTable(name string) string { return quoteQualified(d, name) }

func (MySQL) Placeholder(int) string { return "?" }

func (MySQL) ColumnsQuery(table string) Statement {
	schema, name := splitQualified(table)
	return Statement{
		SQL: "SELECT COLUMN_NAME FROM information_schema.COLUMNS" +
			" WHERE TABLE_SCHEMA = COALESCE(?, DATABASE()) AND TABLE_NAME = ?" +
			" ORDER BY ORDINAL_POSITION",
		Args: []any{schema, name},
	}
}

func (MySQL) BoundaryDeltaQuery(at string) Statement {
	return Statement{
		SQL: "SELECT UNIX_TIMESTAMP(CAST(? AS DATETIME))" +
			" - UNIX_TIMESTAMP(CAST(? AS DATETIME) - INTERVAL 1 SECOND)",
		Args: []any{at, at},
	}
}

// Postgres is the dialect of PostgreSQL.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d Postgres) QuoteTable(name string) string { return quoteQualified(d, name) }

func (Postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (Postgres) ColumnsQuery(table string) Statement {
	schema, name := splitQualified(table)
	return Statement{
		SQL: "SELECT column_name FROM information_schema.columns" +
			" WHERE table_schema = COALESCE(CAST($1 AS text), CAST(current_schema() AS text))" +
			" AND table_name = $2 ORDER BY ordinal_position",
		Args: []any{schema, name},
	}
}

func (Postgres) BoundaryDeltaQuery(at string) Statement {
	return Statement{
		SQL: "SELECT EXTRACT(EPOCH FROM (CAST($1 AS timestamp) AT TIME ZONE current_setting('TimeZone')))" +
			" - EXTRACT(EPOCH FROM ((CAST($1 AS timestamp) - INTERVAL '1 second') AT TIME ZONE current_setting('TimeZone')))",
		Args: []any{at},
	}
}

// splitQualified splits "schema.table". A nil schema means the session default.
func splitQualified(table string) (schema any, name string) {
	if i := strings.IndexByte(table, '.'); i > 0 {
		return table[:i], table[i+1:]
	}
	return nil, table
}

func quoteQualified(d Dialect, table string) string {
	schema, name := splitQualified(table)
	if s, ok := schema.(string); ok {
		return d.QuoteIdent(s) + "." + d.QuoteIdent(name)
	}
	return d.QuoteIdent(name)
}
