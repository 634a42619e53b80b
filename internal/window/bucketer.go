package window

import (
	"math"
	"time"

	"github.com/kamazee/vcutil/pkg/vcerrors"
)

// NextFunc returns the smallest existing value >= from, or ok=false when
// there is none.
type NextFunc func(from Point) (next Point, ok bool, err error)

// Initial returns the first window of the domain. Temporal windows start at
// the top of the hour containing the minimum; integral windows start at the
// largest multiple of the period not exceeding it, or at the minimum itself
// when that multiple is below math.MinInt64. A zero-date minimum gets a
// window of its own.
func Initial(d Domain, period Period) (Window, error) {
	if err := period.Validate(); err != nil {
		return Window{}, err
	}
	if d.Empty() {
		return Window{}, vcerrors.New(vcerrors.ErrorTypeValidation, "empty domain has no windows")
	}
	if err := period.ValidateFor(d.Category); err != nil {
		return Window{}, err
	}

	var begin Point
	switch d.Category {
	case Temporal:
		if d.Minimum.IsZeroDate() {
			begin = d.Minimum
		} else {
			begin = TimePoint(d.Minimum.Time().Truncate(time.Hour))
		}
	case Integral:
		q := floorDiv(d.Minimum.Int(), period.Step)
		if q < math.MinInt64/period.Step {
			begin = d.Minimum
		} else {
			begin = IntPoint(q * period.Step)
		}
	}
	return windowAt(begin, period), nil
}

// Advance shifts the window forward by one period. Advancing an open window
// yields a window that Done always reports finished.
func Advance(w Window) Window {
	if w.Open {
		return Window{Begin: w.End, End: w.End, Period: w.Period, Open: true, spent: true}
	}
	return windowAt(w.End, w.Period)
}

// SeekPastEmpty skips an empty window straight to the next existing value.
// The new window begins exactly at that value, unaligned. ok is false when
// no value at or beyond w.End exists, and always for an open window. A next
// value that would not move the walk forward is an error.
func SeekPastEmpty(w Window, next NextFunc) (Window, bool, error) {
	if w.Open || w.spent {
		return Window{}, false, nil
	}
	v, ok, err := next(w.End)
	if err != nil || !ok {
		return Window{}, false, err
	}
	if !v.After(w.Begin) || v.Before(w.End) {
		return Window{}, false, vcerrors.New(vcerrors.ErrorTypeInternal, "seek moved backwards").
			WithDetail("from", w.End.String()).
			WithDetail("to", v.String())
	}
	return windowAt(v, w.Period), true, nil
}

// Done reports whether the window lies entirely past the domain ceiling, or
// follows the open window that ends the domain.
func Done(d Domain, w Window) bool {
	return w.spent || w.Begin.After(d.Maximum)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
