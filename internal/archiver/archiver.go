// Package archiver runs the extraction/prune loop: it walks a table's
// sequence column window by window, appends every window's rows to a
// destination file, and optionally deletes exactly the rows it exported.
//
// A run is strictly sequential. There is one read cursor and at most one
// open destination at a time, and a window's delete is only issued after
// that window has been written and synced.
//
// Destinations are opened lazily, on a window's first row. Empty windows
// never create or touch a file, so a run over a sparse table only produces
// the files that hold data.
package archiver

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/kamazee/vcutil/internal/bounds"
	"github.com/kamazee/vcutil/internal/codec"
	"github.com/kamazee/vcutil/internal/destination"
	"github.com/kamazee/vcutil/internal/dst"
	"github.com/kamazee/vcutil/internal/store"
	"github.com/kamazee/vcutil/internal/window"
	"github.com/kamazee/vcutil/pkg/logger"
	"github.com/kamazee/vcutil/pkg/metrics"
	"github.com/kamazee/vcutil/pkg/observability"
	"github.com/kamazee/vcutil/pkg/vcerrors"
)

// Config describes one run.
type Config struct {
	Table  string
	Column string
	// Filter is an extra SQL predicate ANDed into every statement.
	Filter string
	// Until is an exclusive upper bound on the column; see window.ParseBound.
	Until    string
	Period   window.Period
	Template destination.Template
	Prune    bool
	// DryRun reads and writes but only logs the deletes it would issue.
	DryRun bool
	// Throttle is the pause between windows.
	Throttle time.Duration
}

// Archiver runs Config against a store.
type Archiver struct {
	store  store.Store
	opener destination.Opener
	cfg    Config

	log      *zap.Logger
	metrics  *metrics.Collector
	tracer   trace.Tracer
	uploader destination.Uploader
	pathOf   func(string) string
	sleep    func(context.Context, time.Duration) error
	warn     *logger.Once
	now      func() time.Time
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option { return func(a *Archiver) { a.log = log } }

// WithMetrics records run progress on c.
func WithMetrics(c *metrics.Collector) Option { return func(a *Archiver) { a.metrics = c } }

// WithTracer opens a span per run and per window.
func WithTracer(t trace.Tracer) Option { return func(a *Archiver) { a.tracer = t } }

// WithUploader ships every closed destination; pathOf maps a destination
// name to its local path.
func WithUploader(u destination.Uploader, pathOf func(string) string) Option {
	return func(a *Archiver) {
		a.uploader = u
		a.pathOf = pathOf
	}
}

// WithSleep replaces the throttle sleep.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(a *Archiver) { a.sleep = fn }
}

// WithWarnings shares a warn-once set with the caller, e.g. across scheduled
// runs. Without it every run starts with a fresh set.
func WithWarnings(w *logger.Once) Option { return func(a *Archiver) { a.warn = w } }

// WithClock anchors relative Until bounds.
func WithClock(now func() time.Time) Option { return func(a *Archiver) { a.now = now } }

// New validates cfg and returns an archiver. Nothing touches the store or
// the filesystem until Run.
func New(s store.Store, opener destination.Opener, cfg Config, opts ...Option) (*Archiver, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	a := &Archiver{
		store:  s,
		opener: opener,
		cfg:    cfg,
		log:    zap.NewNop(),
		tracer: noop.NewTracerProvider().Tracer(observability.TracerName),
		sleep:  sleepContext,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func validate(cfg Config) error {
	switch {
	case strings.TrimSpace(cfg.Table) == "":
		return vcerrors.New(vcerrors.ErrorTypeConfig, "table is required")
	case strings.TrimSpace(cfg.Column) == "":
		return vcerrors.New(vcerrors.ErrorTypeConfig, "column is required")
	case cfg.Template.String() == "":
		return vcerrors.New(vcerrors.ErrorTypeConfig, "destination template is required")
	case cfg.Throttle < 0:
		return vcerrors.New(vcerrors.ErrorTypeConfig, "throttle must not be negative")
	case cfg.DryRun && !cfg.Prune:
		return vcerrors.New(vcerrors.ErrorTypeConfig, "dry run only applies when pruning")
	}
	if err := cfg.Period.Validate(); err != nil {
		return err
	}
	if u := strings.TrimSpace(cfg.Until); u != "" {
		_, terr := window.ParseBound(window.Temporal, u, time.Now())
		_, ierr := window.ParseBound(window.Integral, u, time.Now())
		if terr != nil && ierr != nil {
			return vcerrors.Newf(vcerrors.ErrorTypeConfig, "until %q is neither a date, a duration nor an integer", u)
		}
	}
	return nil
}

// Run performs one complete pass over the table.
func (a *Archiver) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	sum := &Summary{
		RunID:  uuid.NewString(),
		Table:  a.cfg.Table,
		DryRun: a.cfg.DryRun,
	}
	ctx = logger.WithRun(ctx, sum.RunID, a.cfg.Table)
	log := logger.From(ctx, a.log)

	ctx, span := a.tracer.Start(ctx, "archive.run")
	err := a.run(ctx, log, sum)
	observability.EndSpan(span, err)

	sum.Duration = time.Since(start)
	sum.Elapsed = sum.Duration.Round(time.Millisecond).String()
	if err != nil {
		err = withResumePoint(err, sum)
		log.Error("Archive run failed", zap.Error(err))
		return sum, err
	}
	log.Info("Archive run finished",
		zap.Int("windows", sum.Windows),
		zap.Int64("rows_exported", sum.RowsExported),
		zap.Int64("rows_deleted", sum.RowsDeleted),
		zap.Duration("duration", sum.Duration))
	return sum, nil
}

func (a *Archiver) run(ctx context.Context, log *zap.Logger, sum *Summary) (err error) {
	target := bounds.Target{
		Table:  a.cfg.Table,
		Column: a.cfg.Column,
		Filter: a.cfg.Filter,
		Until:  a.cfg.Until,
		Now:    a.now(),
	}

	log.Debug("Probing sequence domain", zap.String("column", a.cfg.Column))
	domain, err := bounds.Probe(ctx, a.store, target)
	if err != nil {
		return err
	}
	sum.Domain = domain.Category.String()
	if domain.Empty() {
		log.Info("No rows to archive")
		return nil
	}
	sum.Minimum, sum.Maximum = domain.Minimum.String(), domain.Maximum.String()

	if err := a.cfg.Period.ValidateFor(domain.Category); err != nil {
		return err
	}
	if domain.Category == window.Integral && a.cfg.Template.HasTimeFields() {
		return vcerrors.New(vcerrors.ErrorTypeConfig,
			"destination template has time placeholders but the column is integral").
			WithDetail("template", a.cfg.Template.String())
	}

	columns, err := a.store.Columns(ctx, a.cfg.Table)
	if err != nil {
		return err
	}
	seq := columnIndex(columns, a.cfg.Column)
	if seq < 0 {
		return vcerrors.Newf(vcerrors.ErrorTypeConfig, "column %q not found in table %s", a.cfg.Column, a.cfg.Table)
	}

	rotOpts := []destination.RotatorOption{
		destination.WithRotatorLogger(log),
		destination.OnOpen(func(name string, created bool) {
			a.metrics.DestinationOpened(created)
			sum.Destinations = append(sum.Destinations, name)
		}),
	}
	if a.uploader != nil {
		rotOpts = append(rotOpts, destination.WithUploader(a.uploader, a.pathOf))
	}
	rot := destination.NewRotator(a.opener, codec.AppendHeader(nil, columns), rotOpts...)
	defer func() {
		if cerr := rot.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	w, err := window.Initial(domain, a.cfg.Period)
	if err != nil {
		return err
	}
	log.Info("Starting archive run",
		zap.String("domain", domain.Category.String()),
		zap.String("minimum", sum.Minimum),
		zap.String("maximum", sum.Maximum),
		zap.String("period", a.cfg.Period.String()),
		zap.Bool("prune", a.cfg.Prune),
		zap.Bool("dry_run", a.cfg.DryRun))

	warn := a.warn
	if warn == nil {
		warn = &logger.Once{}
	}
	st := &scan{
		Archiver:    a,
		log:         log,
		sum:         sum,
		domain:      domain,
		columns:     columns,
		seq:         seq,
		rot:         rot,
		compensator: dst.New(a.store, log, warn),
		next:        bounds.NextFunc(ctx, a.store, target),
	}
	return st.loop(ctx, w)
}

func columnIndex(columns []string, name string) int {
	fold := -1
	for i, c := range columns {
		if c == name {
			return i
		}
		if fold < 0 && strings.EqualFold(c, name) {
			fold = i
		}
	}
	return fold
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// withResumePoint attaches the last completed window to err.
func withResumePoint(err error, sum *Summary) error {
	if sum.LastCompleted == nil {
		return err
	}
	var verr *vcerrors.Error
	if !errors.As(err, &verr) {
		verr = vcerrors.Wrap(err, vcerrors.ErrorTypeInternal, "archive run failed")
		err = verr
	}
	verr.WithDetail("last_completed_begin", sum.LastCompleted.Begin).
		WithDetail("last_completed_end", sum.LastCompleted.End)
	return err
}
