// Package dst widens the lower bound of a temporal window when the store
// reports a daylight-saving discontinuity at the window's begin.
//
// Windows are walked in naive wall-clock time. Across a forward transition
// one wall-clock second before begin lies more than one real second earlier,
// and rows stamped in the skipped range would fall between two windows'
// half-open bounds. The store's own clock arithmetic decides the delta; the
// process's calendar never does.
package dst

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/kamazee/vcutil/internal/store"
	"github.com/kamazee/vcutil/internal/window"
	"github.com/kamazee/vcutil/pkg/logger"
	"github.com/kamazee/vcutil/pkg/models"
	"github.com/kamazee/vcutil/pkg/vcerrors"
)

// Outcome classifies what happened at a boundary.
type Outcome int

const (
	// Unchanged means the boundary is regular, or the domain is not temporal.
	Unchanged Outcome = iota
	// Widened means the lower bound was moved back by the excess delta.
	Widened
	// Flagged means the store reported a delta that cannot be compensated
	// (fractional, zero, negative or less than one second). The bound is
	// left alone and a warning is logged once per boundary.
	Flagged
)

func (o Outcome) String() string {
	switch o {
	case Widened:
		return "widened"
	case Flagged:
		return "flagged"
	default:
		return "unchanged"
	}
}

// Adjustment is the effective lower bound for one window.
type Adjustment struct {
	Lower   window.Point
	Delta   decimal.Decimal
	Outcome Outcome
}

// Compensator consults the store once per temporal window.
type Compensator struct {
	store store.Store
	log   *zap.Logger
	warn  *logger.Once
}

// New returns a compensator. warn may be shared with other components of
// the same run; nil gets a private set.
func New(s store.Store, log *zap.Logger, warn *logger.Once) *Compensator {
	if log == nil {
		log = zap.NewNop()
	}
	if warn == nil {
		warn = &logger.Once{}
	}
	return &Compensator{store: s, log: log, warn: warn}
}

var one = decimal.NewFromInt(1)

// Lower returns the lower bound to use in the read and delete predicates of w.
// w itself is never modified.
func (c *Compensator) Lower(ctx context.Context, w window.Window) (Adjustment, error) {
	adj := Adjustment{Lower: w.Begin, Delta: one}
	if w.Begin.Category() != window.Temporal {
		return adj, nil
	}
	// The zero date and the first real date after it have no clock before them.
	if w.Begin.IsZeroDate() || w.Begin.Time().IsZero() {
		return adj, nil
	}

	at := w.Begin.String()
	v, err := c.store.QueryValue(ctx, c.store.Dialect().BoundaryDeltaQuery(at))
	if err != nil {
		return adj, err
	}
	delta, err := deltaOf(v)
	if err != nil {
		return adj, vcerrors.Wrap(err, vcerrors.ErrorTypeQuery, "unreadable boundary delta").
			WithDetail("boundary", at)
	}
	adj.Delta = delta

	switch {
	case delta.Equal(one):
		return adj, nil
	case delta.Equal(delta.Truncate(0)) && delta.GreaterThan(one):
		excess := delta.Sub(one).IntPart()
		adj.Lower = window.TimePoint(w.Begin.Time().Add(-time.Duration(excess) * time.Second))
		adj.Outcome = Widened
		c.warn.Warn(c.log, "dst-widen:"+at, "Widening window lower bound across DST transition",
			zap.String("boundary", at),
			zap.String("delta_seconds", delta.String()),
			zap.String("effective_lower", adj.Lower.String()))
		return adj, nil
	default:
		adj.Outcome = Flagged
		c.warn.Warn(c.log, "dst-flag:"+at, "Store reported an unsupported boundary delta; bound left unchanged",
			zap.String("boundary", at),
			zap.String("delta_seconds", delta.String()))
		return adj, nil
	}
}

func deltaOf(v models.Value) (decimal.Decimal, error) {
	switch v.Category {
	case models.Integral:
		if v.IntOverflow {
			return decimal.NewFromString(v.Str)
		}
		return decimal.NewFromInt(v.Int), nil
	case models.Decimal:
		return v.Dec, nil
	}
	return decimal.Decimal{}, vcerrors.Newf(vcerrors.ErrorTypeUnsupportedValue,
		"boundary delta has category %s", v.Category)
}
