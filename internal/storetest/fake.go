// Package storetest provides an in-memory store.Store for tests. It
// understands exactly the statement shapes the archive run issues against a
// single table and records every statement it receives.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kamazee/vcutil/internal/store"
	"github.com/kamazee/vcutil/internal/window"
	"github.com/kamazee/vcutil/pkg/models"
)

// Fake is an in-memory table with one sequence column.
type Fake struct {
	mu sync.Mutex

	columns []string
	seq     int
	rows    []store.Row

	// Include stands in for the SQL filter; nil includes every row.
	Include func(store.Row) bool
	// Delta answers boundary delta queries; nil always answers 1.
	Delta func(at string) models.Value
	// Fail, when set, is consulted before every statement.
	Fail func(st store.Statement) error

	statements []store.Statement
	closed     bool
}

// New returns a fake table. seqColumn names the sequence column.
func New(columns []string, seqColumn string, rows ...store.Row) *Fake {
	seq := -1
	for i, c := range columns {
		if c == seqColumn {
			seq = i
		}
	}
	if seq < 0 {
		panic("storetest: sequence column not among columns")
	}
	f := &Fake{columns: columns, seq: seq}
	f.rows = append(f.rows, rows...)
	return f
}

// Insert adds rows to the table.
func (f *Fake) Insert(rows ...store.Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, rows...)
}

// Rows returns a copy of the remaining rows ordered by the sequence column.
func (f *Fake) Rows() []store.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Row, len(f.rows))
	copy(out, f.rows)
	sort.SliceStable(out, func(i, j int) bool {
		return f.point(out[i]).Before(f.point(out[j]))
	})
	return out
}

// Statements returns every statement received so far.
func (f *Fake) Statements() []store.Statement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Statement(nil), f.statements...)
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Dialect implements store.Store.
func (f *Fake) Dialect() store.Dialect { return store.MySQL{} }

// Close implements store.Store.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Columns implements store.Store.
func (f *Fake) Columns(ctx context.Context, table string) ([]string, error) {
	if err := f.record(f.Dialect().ColumnsQuery(table)); err != nil {
		return nil, err
	}
	return append([]string(nil), f.columns...), nil
}

// QueryValue implements store.Store.
func (f *Fake) QueryValue(ctx context.Context, st store.Statement) (models.Value, error) {
	if err := f.record(st); err != nil {
		return models.Value{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case strings.Contains(st.SQL, "UNIX_TIMESTAMP"):
		if f.Delta == nil {
			return models.Int(1), nil
		}
		return f.Delta(st.Args[0].(string)), nil
	case strings.HasPrefix(st.SQL, "SELECT MIN("), strings.HasPrefix(st.SQL, "SELECT MAX("):
		var from, below *window.Point
		if len(st.Args) == 1 {
			p := argPoint(st.Args[0])
			if strings.Contains(st.SQL, " >= ") {
				from = &p
			} else {
				below = &p
			}
		}
		wantMax := strings.HasPrefix(st.SQL, "SELECT MAX(")
		best := models.Null()
		var bestP window.Point
		for _, r := range f.rows {
			if !f.included(r) || r[f.seq].IsNull() {
				continue
			}
			p := f.point(r)
			if (from != nil && p.Before(*from)) || (below != nil && !p.Before(*below)) {
				continue
			}
			if best.IsNull() || (wantMax && p.After(bestP)) || (!wantMax && p.Before(bestP)) {
				best, bestP = r[f.seq], p
			}
		}
		return best, nil
	}
	return models.Value{}, fmt.Errorf("storetest: unsupported scalar query %q", st.SQL)
}

// QueryRows implements store.Store. Window reads bind lower, end and ceiling,
// or just lower and ceiling for a window unbounded above.
func (f *Fake) QueryRows(ctx context.Context, st store.Statement, fn func(store.Row) error) error {
	if err := f.record(st); err != nil {
		return err
	}
	if !strings.HasPrefix(st.SQL, "SELECT ") || !windowArgs(st.Args) {
		return fmt.Errorf("storetest: unsupported row query %q", st.SQL)
	}
	f.mu.Lock()
	var matched []store.Row
	for _, r := range f.rows {
		if f.inWindow(r, st.Args) {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return f.point(matched[i]).Before(f.point(matched[j]))
	})
	f.mu.Unlock()

	for _, r := range matched {
		if err := fn(append(store.Row(nil), r...)); err != nil {
			return err
		}
	}
	return nil
}

// Exec implements store.Store. Only window deletes are understood; a delete
// over maxAffected leaves the table untouched.
func (f *Fake) Exec(ctx context.Context, st store.Statement, maxAffected int64) (int64, error) {
	if err := f.record(st); err != nil {
		return 0, err
	}
	if !strings.HasPrefix(st.SQL, "DELETE ") || !windowArgs(st.Args) {
		return 0, fmt.Errorf("storetest: unsupported statement %q", st.SQL)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []store.Row
	var n int64
	for _, r := range f.rows {
		if f.inWindow(r, st.Args) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	if maxAffected >= 0 && n > maxAffected {
		return 0, fmt.Errorf("storetest: delete affects %d rows, more than %d", n, maxAffected)
	}
	f.rows = kept
	return n, nil
}

func (f *Fake) record(st store.Statement) error {
	f.mu.Lock()
	f.statements = append(f.statements, st)
	fail := f.Fail
	f.mu.Unlock()
	if fail != nil {
		return fail(st)
	}
	return nil
}

func (f *Fake) included(r store.Row) bool {
	return f.Include == nil || f.Include(r)
}

func (f *Fake) inWindow(r store.Row, args []any) bool {
	if !f.included(r) || r[f.seq].IsNull() {
		return false
	}
	p := f.point(r)
	lower, ceiling := argPoint(args[0]), argPoint(args[len(args)-1])
	if len(args) == 3 && !p.Before(argPoint(args[1])) {
		return false
	}
	return !p.Before(lower) && !p.After(ceiling)
}

func windowArgs(args []any) bool { return len(args) == 2 || len(args) == 3 }

func (f *Fake) point(r store.Row) window.Point {
	p, err := window.PointOf(r[f.seq])
	if err != nil {
		panic(err)
	}
	return p
}

func argPoint(a any) window.Point {
	switch v := a.(type) {
	case int64:
		return window.IntPoint(v)
	case string:
		if models.IsZeroDateLiteral(v) {
			return window.ZeroDatePoint()
		}
		t, err := time.Parse(window.TimeLayout, v)
		if err != nil {
			panic(err)
		}
		return window.TimePoint(t)
	}
	panic(fmt.Sprintf("storetest: unexpected argument %T", a))
}
