// Package bounds probes the value domain of the sequence column.
package bounds

import (
	"context"
	"strings"
	"time"

	"github.com/kamazee/vcutil/internal/store"
	"github.com/kamazee/vcutil/internal/window"
	"github.com/kamazee/vcutil/pkg/vcerrors"
)

// Target names the column being walked and the optional caller filter.
type Target struct {
	Table  string
	Column string
	// Filter is a raw SQL predicate; empty means no filter.
	Filter string
	// Until is an exclusive upper bound in the domain's own terms; see
	// window.ParseBound. Empty means unbounded.
	Until string
	// Now anchors a relative Until. Zero means the current time.
	Now time.Time
}

// Probe returns the minimum and maximum of the column over rows matching the
// filter. The minimum ignores Until; the maximum is taken below it. A table
// with no matching rows yields a domain of category None, as does one whose
// rows all lie at or beyond Until.
func Probe(ctx context.Context, s store.Store, t Target) (window.Domain, error) {
	minV, err := s.QueryValue(ctx, aggregate(s.Dialect(), t, "MIN", ">=", nil))
	if err != nil {
		return window.Domain{}, err
	}
	if minV.IsNull() {
		return window.Domain{Category: window.None}, nil
	}
	lo, err := window.PointOf(minV)
	if err != nil {
		return window.Domain{}, wrapDomain(err, t)
	}

	var until *window.Point
	if strings.TrimSpace(t.Until) != "" {
		now := t.Now
		if now.IsZero() {
			now = time.Now()
		}
		p, err := window.ParseBound(lo.Category(), t.Until, now)
		if err != nil {
			return window.Domain{}, err
		}
		until = &p
	}

	maxV, err := s.QueryValue(ctx, aggregate(s.Dialect(), t, "MAX", "<", until))
	if err != nil {
		return window.Domain{}, err
	}
	if maxV.IsNull() {
		return window.Domain{Category: window.None}, nil
	}
	hi, err := window.PointOf(maxV)
	if err != nil {
		return window.Domain{}, wrapDomain(err, t)
	}
	if lo.Category() != hi.Category() {
		return window.Domain{}, vcerrors.New(vcerrors.ErrorTypeUnsupportedDomain,
			"minimum and maximum have different categories").
			WithDetail("minimum", minV.Category.String()).
			WithDetail("maximum", maxV.Category.String())
	}
	return window.Domain{Category: lo.Category(), Minimum: lo, Maximum: hi}, nil
}

// Next returns the smallest column value >= from among rows matching the
// filter, or ok=false when none exists.
func Next(ctx context.Context, s store.Store, t Target, from window.Point) (window.Point, bool, error) {
	v, err := s.QueryValue(ctx, aggregate(s.Dialect(), t, "MIN", ">=", &from))
	if err != nil {
		return window.Point{}, false, err
	}
	if v.IsNull() {
		return window.Point{}, false, nil
	}
	p, err := window.PointOf(v)
	if err != nil {
		return window.Point{}, false, wrapDomain(err, t)
	}
	return p, true, nil
}

// NextFunc binds Next to a store and target for window.SeekPastEmpty.
func NextFunc(ctx context.Context, s store.Store, t Target) window.NextFunc {
	return func(from window.Point) (window.Point, bool, error) {
		return Next(ctx, s, t, from)
	}
}

func aggregate(d store.Dialect, t Target, fn, op string, bound *window.Point) store.Statement {
	col := d.QuoteIdent(t.Column)

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(fn)
	b.WriteString("(")
	b.WriteString(col)
	b.WriteString(") FROM ")
	b.WriteString(d.QuoteTable(t.Table))

	var conds []string
	var args []any
	if f := strings.TrimSpace(t.Filter); f != "" {
		conds = append(conds, "("+f+")")
	}
	if bound != nil {
		args = append(args, bound.Arg())
		conds = append(conds, col+" "+op+" "+d.Placeholder(len(args)))
	}
	if len(conds) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conds, " AND "))
	}
	return store.Statement{SQL: b.String(), Args: args}
}

func wrapDomain(err error, t Target) error {
	if verr, ok := err.(*vcerrors.Error); ok {
		return verr.WithDetail("table", t.Table).WithDetail("column", t.Column)
	}
	return err
}
