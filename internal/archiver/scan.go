package archiver

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kamazee/vcutil/internal/codec"
	"github.com/kamazee/vcutil/internal/destination"
	"github.com/kamazee/vcutil/internal/dst"
	"github.com/kamazee/vcutil/internal/store"
	"github.com/kamazee/vcutil/internal/window"
	"github.com/kamazee/vcutil/pkg/metrics"
	"github.com/kamazee/vcutil/pkg/observability"
	"github.com/kamazee/vcutil/pkg/vcerrors"
)

// scan is the state of one run's window loop.
type scan struct {
	*Archiver

	log         *zap.Logger
	sum         *Summary
	domain      window.Domain
	columns     []string
	seq         int
	rot         *destination.Rotator
	compensator *dst.Compensator
	next        window.NextFunc

	buf []byte
}

// windowResult is what one iteration did.
type windowResult struct {
	rows        int64
	deleted     int64
	destination string
}

func (s *scan) loop(ctx context.Context, w window.Window) error {
	first := true
	for !window.Done(s.domain, w) {
		if err := ctx.Err(); err != nil {
			return vcerrors.Wrap(err, vcerrors.ErrorTypeCanceled, "archive run interrupted").
				WithDetail("window", w.String())
		}
		if !first && s.cfg.Throttle > 0 {
			if err := s.sleep(ctx, s.cfg.Throttle); err != nil {
				return vcerrors.Wrap(err, vcerrors.ErrorTypeCanceled, "archive run interrupted").
					WithDetail("window", w.String())
			}
		}
		first = false

		timer := metrics.NewTimer()
		res, err := s.window(ctx, w)
		elapsed := timer.Stop()
		if err != nil {
			s.metrics.WindowDone(metrics.ResultFailed, res.rows, res.deleted, elapsed, 0)
			return withWindow(err, w)
		}
		s.sum.Windows++

		if res.rows == 0 {
			s.sum.EmptyWindows++
			s.metrics.WindowDone(metrics.ResultEmpty, 0, 0, elapsed, endValue(w))
			s.log.Debug("Window is empty, seeking to next value", zap.Stringer("window", w))

			nw, ok, err := window.SeekPastEmpty(w, s.next)
			if err != nil {
				return withWindow(err, w)
			}
			s.sum.LastCompleted = completedOf(w)
			if !ok {
				break
			}
			w = nw
			continue
		}

		s.sum.RowsExported += res.rows
		s.sum.RowsDeleted += res.deleted
		s.sum.LastCompleted = completedOf(w)
		s.metrics.WindowDone(metrics.ResultExported, res.rows, res.deleted, elapsed, endValue(w))
		s.log.Info("Window archived",
			zap.String("begin", w.Begin.String()),
			zap.String("end", w.End.String()),
			zap.Int64("rows", res.rows),
			zap.Int64("deleted", res.deleted),
			zap.String("destination", res.destination),
			zap.Duration("elapsed", elapsed))

		w = window.Advance(w)
	}
	return nil
}

// window exports, and when pruning deletes, the rows of w.
func (s *scan) window(ctx context.Context, w window.Window) (res windowResult, err error) {
	ctx, span := s.tracer.Start(ctx, "archive.window",
		trace.WithAttributes(observability.WindowAttributes(s.cfg.Table, w.Begin.String(), w.End.String())...))
	defer func() { observability.EndSpan(span, err) }()

	adj, err := s.compensator.Lower(ctx, w)
	if err != nil {
		return res, err
	}
	switch adj.Outcome {
	case dst.Widened:
		s.sum.DSTWidened++
		s.metrics.DSTAdjusted(adj.Outcome.String())
	case dst.Flagged:
		s.sum.DSTFlagged++
		s.metrics.DSTAdjusted(adj.Outcome.String())
	}

	d := s.store.Dialect()
	pred := windowPredicate(d, s.cfg.Column, s.cfg.Filter, adj.Lower, w, s.domain.Maximum)
	name := s.destinationName(w)

	// A widened lower bound overlaps the previous window. Rows in the
	// overlap were exported there and, unless deleted, are read again here.
	skipOverlap := adj.Lower.Before(w.Begin) && (!s.cfg.Prune || s.cfg.DryRun)

	var h destination.Handle
	err = s.store.QueryRows(ctx, pred.selectStmt(d, s.cfg.Table, s.cfg.Column, s.columns), func(row store.Row) error {
		if skipOverlap {
			p, perr := window.PointOf(row[s.seq])
			if perr != nil {
				return perr
			}
			if p.Before(w.Begin) {
				return nil
			}
		}
		if h == nil {
			var oerr error
			if h, oerr = s.rot.Switch(ctx, name); oerr != nil {
				return oerr
			}
		}
		line, serr := codec.AppendRecord(s.buf[:0], row)
		s.buf = line
		if serr != nil {
			return serr
		}
		if werr := h.WriteLine(line); werr != nil {
			return werr
		}
		res.rows++
		return nil
	})
	if err != nil {
		return res, err
	}
	if res.rows == 0 {
		return res, nil
	}
	res.destination = h.Name()

	if !s.cfg.Prune {
		return res, nil
	}
	if err := h.Sync(); err != nil {
		return res, err
	}

	del := pred.deleteStmt(d, s.cfg.Table)
	if s.cfg.DryRun {
		s.log.Info("Dry run: skipping delete",
			zap.String("sql", del.SQL),
			zap.Any("args", del.Args),
			zap.Int64("rows", res.rows))
		return res, nil
	}

	res.deleted, err = s.store.Exec(ctx, del, res.rows)
	if err != nil {
		return res, err
	}
	if res.deleted < res.rows {
		s.log.Warn("Deleted fewer rows than were exported",
			zap.Stringer("window", w),
			zap.Int64("exported", res.rows),
			zap.Int64("deleted", res.deleted))
	}
	return res, nil
}

func (s *scan) destinationName(w window.Window) string {
	if w.Begin.Category() == window.Temporal {
		return s.cfg.Template.Name(w.Begin.Time())
	}
	return s.cfg.Template.Name(time.Time{})
}

func endValue(w window.Window) float64 {
	if w.End.Category() == window.Temporal {
		return float64(w.End.Time().Unix())
	}
	return float64(w.End.Int())
}

func withWindow(err error, w window.Window) error {
	var verr *vcerrors.Error
	if errors.As(err, &verr) {
		if _, set := verr.Details["window_begin"]; !set {
			verr.WithDetail("window_begin", w.Begin.String()).WithDetail("window_end", w.End.String())
		}
		return err
	}
	return vcerrors.Wrap(err, vcerrors.ErrorTypeInternal, "window failed").
		WithDetail("window_begin", w.Begin.String()).
		WithDetail("window_end", w.End.String())
}
