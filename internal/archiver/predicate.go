package archiver

import (
	"strings"

	"github.com/kamazee/vcutil/internal/store"
	"github.com/kamazee/vcutil/internal/window"
)

// predicate is the WHERE clause shared by a window's read and its delete.
// Building it once and deriving both statements from it keeps the rows that
// are deleted identical to the rows that were exported.
type predicate struct {
	sql  string
	args []any
}

// windowPredicate bounds the column to [lower, w.End) and to the run's
// ceiling. Bounds are bind parameters, in the order lower, end, ceiling; an
// open window has no end bound.
func windowPredicate(d store.Dialect, column, filter string, lower window.Point, w window.Window, ceiling window.Point) predicate {
	col := d.QuoteIdent(column)

	var conds []string
	if f := strings.TrimSpace(filter); f != "" {
		conds = append(conds, "("+f+")")
	}
	args := []any{lower.Arg()}
	conds = append(conds, col+" >= "+d.Placeholder(len(args)))
	if !w.Open {
		args = append(args, w.End.Arg())
		conds = append(conds, col+" < "+d.Placeholder(len(args)))
	}
	args = append(args, ceiling.Arg())
	conds = append(conds, col+" <= "+d.Placeholder(len(args)))
	return predicate{
		sql:  strings.Join(conds, " AND "),
		args: args,
	}
}

func (p predicate) selectStmt(d store.Dialect, table, column string, columns []string) store.Statement {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = d.QuoteIdent(c)
	}
	return store.Statement{
		SQL: "SELECT " + strings.Join(quoted, ", ") +
			" FROM " + d.QuoteTable(table) +
			" WHERE " + p.sql +
			" ORDER BY " + d.QuoteIdent(column),
		Args: p.args,
	}
}

func (p predicate) deleteStmt(d store.Dialect, table string) store.Statement {
	return store.Statement{
		SQL:  "DELETE FROM " + d.QuoteTable(table) + " WHERE " + p.sql,
		Args: p.args,
	}
}
