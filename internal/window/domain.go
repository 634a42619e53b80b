// Package window walks the value domain of a sequence column in fixed-size
// windows. Nothing in this package performs I/O: re-probing the store when a
// window turns out empty is injected by the caller as a NextFunc.
package window

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kamazee/vcutil/pkg/models"
	"github.com/kamazee/vcutil/pkg/vcerrors"
)

// TimeLayout is the wall-clock form used for temporal bounds in logs and names.
const TimeLayout = "2006-01-02 15:04:05"

// argLayout keeps sub-second precision so a bound never rounds past a stored value.
const argLayout = "2006-01-02 15:04:05.999999"

// ZeroDateLiteral is how the all-zero date is written in bounds and logs.
const ZeroDateLiteral = "0000-00-00 00:00:00"

// Category classifies a sequence domain.
type Category int

const (
	// None means no row matched; the run performs no iterations.
	None Category = iota
	// Temporal domains are ordered by wall-clock date/time.
	Temporal
	// Integral domains are ordered by whole numbers.
	Integral
)

func (c Category) String() string {
	switch c {
	case None:
		return "none"
	case Temporal:
		return "temporal"
	case Integral:
		return "integral"
	default:
		return "category(" + strconv.Itoa(int(c)) + ")"
	}
}

// CategoryOf maps the category of a probed minimum to a domain category.
func CategoryOf(v models.Value) (Category, error) {
	switch {
	case v.IsNull():
		return None, nil
	case v.Category.IsTemporal(), v.Category == models.ZeroDateTime:
		return Temporal, nil
	case v.Category == models.Integral && !v.IntOverflow:
		return Integral, nil
	default:
		return None, vcerrors.Newf(vcerrors.ErrorTypeUnsupportedDomain,
			"sequence column must be temporal or integral, got %s", v.Category)
	}
}

// Point is a position in a sequence domain: a naive wall-clock time for
// temporal domains or a whole number for integral ones.
type Point struct {
	cat  Category
	t    time.Time
	n    int64
	zero bool
}

// TimePoint returns a temporal point. The location of t is ignored.
func TimePoint(t time.Time) Point { return Point{cat: Temporal, t: models.Naive(t)} }

// IntPoint returns an integral point.
func IntPoint(n int64) Point { return Point{cat: Integral, n: n} }

// ZeroDatePoint returns the temporal point of the all-zero date, which sorts
// below every real date. Its window is [0000-00-00, 0001-01-01 00:00:00).
func ZeroDatePoint() Point { return Point{cat: Temporal, zero: true} }

// PointOf converts a probed store value into a point.
func PointOf(v models.Value) (Point, error) {
	cat, err := CategoryOf(v)
	if err != nil {
		return Point{}, err
	}
	switch {
	case v.Category == models.ZeroDateTime:
		return ZeroDatePoint(), nil
	case cat == Temporal:
		return TimePoint(v.Time), nil
	case cat == Integral:
		return IntPoint(v.Int), nil
	default:
		return Point{}, vcerrors.New(vcerrors.ErrorTypeValidation, "absent value is not a domain point")
	}
}

// Category returns the domain category of p.
func (p Point) Category() Category { return p.cat }

// Time returns the wall-clock time of a temporal point. The zero date has
// the zero time.
func (p Point) Time() time.Time { return p.t }

// IsZeroDate reports whether p is the all-zero date.
func (p Point) IsZeroDate() bool { return p.zero }

// Int returns the value of an integral point.
func (p Point) Int() int64 { return p.n }

// Compare returns -1, 0 or +1. Points of different categories compare equal;
// callers never mix categories within one domain.
func (p Point) Compare(o Point) int {
	switch p.cat {
	case Temporal:
		switch {
		case p.zero && o.zero:
			return 0
		case p.zero:
			return -1
		case o.zero:
			return 1
		}
		return p.t.Compare(o.t)
	case Integral:
		switch {
		case p.n < o.n:
			return -1
		case p.n > o.n:
			return 1
		}
	}
	return 0
}

// After reports whether p is strictly greater than o.
func (p Point) After(o Point) bool { return p.Compare(o) > 0 }

// Before reports whether p is strictly less than o.
func (p Point) Before(o Point) bool { return p.Compare(o) < 0 }

// Add shifts p forward by one period. An integral result past math.MaxInt64
// saturates there; use AddChecked to tell.
func (p Point) Add(period Period) Point {
	q, _ := p.AddChecked(period)
	return q
}

// AddChecked shifts p forward by one period. ok is false when the result
// does not fit the domain, in which case the largest point is returned.
// The zero date advances to the first real date whatever the period.
func (p Point) AddChecked(period Period) (next Point, ok bool) {
	switch p.cat {
	case Temporal:
		if p.zero {
			return TimePoint(time.Time{}), true
		}
		return Point{cat: Temporal, t: p.t.Add(period.Span)}, true
	case Integral:
		if period.Step > 0 && p.n > math.MaxInt64-period.Step {
			return IntPoint(math.MaxInt64), false
		}
		return Point{cat: Integral, n: p.n + period.Step}, true
	}
	return p, true
}

// Arg returns p in the form bound into SQL statements.
func (p Point) Arg() any {
	if p.cat == Temporal {
		if p.zero {
			return ZeroDateLiteral
		}
		return p.t.Format(argLayout)
	}
	return p.n
}

// String implements fmt.Stringer.
func (p Point) String() string {
	switch p.cat {
	case Temporal:
		if p.zero {
			return ZeroDateLiteral
		}
		return p.t.Format(TimeLayout)
	case Integral:
		return strconv.FormatInt(p.n, 10)
	default:
		return "<none>"
	}
}

// Domain is the value domain of the sequence column, probed once per run.
// Maximum is a snapshot ceiling for the whole run.
type Domain struct {
	Category Category
	Minimum  Point
	Maximum  Point
}

// Empty reports whether the domain has no rows.
func (d Domain) Empty() bool { return d.Category == None }

// Period is the window size: a duration for temporal domains, a step for
// integral ones. A period parsed from a bare integer carries both readings.
type Period struct {
	Span time.Duration
	Step int64
}

// ParsePeriod parses "3600" (seconds or integral units) or a Go duration such as "1h".
func ParsePeriod(s string) (Period, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Period{}, vcerrors.New(vcerrors.ErrorTypeConfig, "period is required")
	}
	var p Period
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		p = Period{Span: time.Duration(n) * time.Second, Step: n}
	} else {
		d, derr := time.ParseDuration(s)
		if derr != nil {
			return Period{}, vcerrors.Wrap(derr, vcerrors.ErrorTypeConfig, "invalid period").
				WithDetail("period", s)
		}
		p = Period{Span: d}
	}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// Validate checks that the period is strictly positive.
func (p Period) Validate() error {
	if p.Span <= 0 && p.Step <= 0 {
		return vcerrors.New(vcerrors.ErrorTypeConfig, "period must be strictly positive").
			WithDetail("period", p.String())
	}
	if p.Span < 0 || p.Step < 0 {
		return vcerrors.New(vcerrors.ErrorTypeConfig, "period must not be negative").
			WithDetail("period", p.String())
	}
	return nil
}

// ValidateFor checks that the period is usable on a domain of the given category.
func (p Period) ValidateFor(cat Category) error {
	switch cat {
	case Temporal:
		if p.Span < time.Second {
			return vcerrors.New(vcerrors.ErrorTypeConfig, "temporal period must be at least one second").
				WithDetail("period", p.String())
		}
	case Integral:
		if p.Step <= 0 {
			return vcerrors.New(vcerrors.ErrorTypeConfig, "integral domains need a whole-number period").
				WithDetail("period", p.String())
		}
	}
	return nil
}

func (p Period) String() string {
	if p.Step != 0 {
		return strconv.FormatInt(p.Step, 10)
	}
	return p.Span.String()
}

// Window is the half-open range [Begin, End) read in one iteration.
type Window struct {
	Begin  Point
	End    Point
	Period Period
	// Open marks the last window of an integral domain whose end would not
	// fit in an int64. It has no upper bound; End holds math.MaxInt64.
	Open bool

	spent bool
}

// windowAt returns the window of one period starting at begin.
func windowAt(begin Point, period Period) Window {
	end, ok := begin.AddChecked(period)
	return Window{Begin: begin, End: end, Period: period, Open: !ok}
}

func (w Window) String() string {
	if w.Open {
		return fmt.Sprintf("[%s, +inf)", w.Begin)
	}
	return fmt.Sprintf("[%s, %s)", w.Begin, w.End)
}

// ParseBound parses a user-supplied bound on a domain of the given category.
// Temporal domains accept a date, a date and time, or a Go duration taken
// relative to now ("-720h" is thirty days ago). Integral domains accept an
// integer.
func ParseBound(cat Category, s string, now time.Time) (Point, error) {
	s = strings.TrimSpace(s)
	switch cat {
	case Temporal:
		for _, layout := range []string{TimeLayout, "2006-01-02T15:04:05", time.DateOnly} {
			if t, err := time.Parse(layout, s); err == nil {
				return TimePoint(t), nil
			}
		}
		if d, err := time.ParseDuration(s); err == nil {
			return TimePoint(now.Add(d)), nil
		}
	case Integral:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return IntPoint(n), nil
		}
	default:
		return Point{}, vcerrors.Newf(vcerrors.ErrorTypeValidation, "no bound on a %s domain", cat)
	}
	return Point{}, vcerrors.Newf(vcerrors.ErrorTypeConfig, "invalid bound %q for a %s domain", s, cat).
		WithDetail("until", s)
}
