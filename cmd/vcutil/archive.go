package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/kamazee/vcutil/internal/archiver"
	"github.com/kamazee/vcutil/internal/destination"
	"github.com/kamazee/vcutil/internal/schedule"
	"github.com/kamazee/vcutil/internal/store"
	"github.com/kamazee/vcutil/internal/window"
	"github.com/kamazee/vcutil/pkg/config"
	"github.com/kamazee/vcutil/pkg/logger"
	"github.com/kamazee/vcutil/pkg/metrics"
	"github.com/kamazee/vcutil/pkg/observability"
	"github.com/kamazee/vcutil/pkg/vcerrors"
)

func newArchiveCmd() *cobra.Command {
	var (
		askPassword bool
		summary     string
	)
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Export a table window by window, optionally pruning what was exported",
		Long: `Export every row of a table whose sequence column lies between its current
minimum and maximum, one window at a time, appending to destination files named
by a strftime template. With --prune each window is deleted right after it has
been written and synced.

Example:
  vcutil archive --config vcutil.yaml --table events --column created_at \
      --period 1h --output 'archive/%Y/%m/%d.csv.gz' --prune --until -720h`,
		Args: cobra.NoArgs,
	}
	flags := addConfigFlags(cmd.Flags())
	cmd.Flags().BoolVar(&askPassword, "ask-password", false, "Prompt for the database password")
	cmd.Flags().StringVar(&summary, "summary", "text", "Summary format printed after each run (text, json, none)")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := flags.load()
		if err != nil {
			return vcerrors.Wrap(err, vcerrors.ErrorTypeConfig, "configuration error")
		}
		switch summary {
		case "text", "json", "none":
		default:
			return vcerrors.Newf(vcerrors.ErrorTypeConfig, "unknown summary format %q", summary)
		}
		if askPassword {
			pw, err := readPassword(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			cfg.Store.Password = pw
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runArchive(ctx, cfg, summary, cmd.OutOrStdout())
	}
	return cmd
}

func readPassword(prompt io.Writer) (string, error) {
	fd := int(os.Stdin.Fd()) //nolint:gosec // G115: stdin descriptor fits in int
	if !term.IsTerminal(fd) {
		return "", vcerrors.New(vcerrors.ErrorTypeConfig, "--ask-password needs an interactive terminal")
	}
	fmt.Fprint(prompt, "Password: ")
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", vcerrors.Wrap(err, vcerrors.ErrorTypeConfig, "failed to read password")
	}
	return string(pw), nil
}

func runArchive(ctx context.Context, cfg *config.Config, summary string, out io.Writer) error {
	if err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.Log.Development,
		Encoding:    cfg.Log.Encoding,
		OutputPaths: []string{"stderr"},
	}); err != nil {
		return vcerrors.Wrap(err, vcerrors.ErrorTypeConfig, "failed to initialize logger")
	}
	log := logger.With(zap.String("component", "vcutil-cli"))
	defer func() { _ = logger.Sync() }()

	tracer, shutdown, err := observability.InitTracing(observability.TracingConfig{
		Enabled:        cfg.Trace.Enabled,
		ServiceName:    "vcutil",
		ServiceVersion: version,
		Writer:         os.Stderr,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	archiveCfg, err := archiveConfig(cfg.Archive)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg, cfg.Archive.Table)
	if err != nil {
		return err
	}
	pusher := metrics.NewPusher(cfg.Metrics.Pushgateway, cfg.Metrics.Job, reg)

	st, err := store.Open(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn("failed to close store", zap.Error(err))
		}
	}()

	opener := destination.FileOpener{}
	opts := []archiver.Option{
		archiver.WithLogger(log),
		archiver.WithMetrics(collector),
		archiver.WithTracer(tracer),
	}
	if cfg.Upload.Enabled() {
		up, err := destination.NewS3Uploader(ctx, cfg.Upload, log)
		if err != nil {
			return err
		}
		opts = append(opts, archiver.WithUploader(up, opener.Path))
	}

	a, err := archiver.New(st, opener, archiveCfg, opts...)
	if err != nil {
		return err
	}

	runOnce := func(ctx context.Context) error {
		sum, runErr := a.Run(ctx)
		if sum != nil {
			if err := printSummary(out, sum, summary); err != nil {
				log.Warn("failed to print summary", zap.Error(err))
			}
		}
		if err := pusher.Push(context.Background()); err != nil {
			log.Warn("failed to push metrics", zap.Error(err))
		}
		return runErr
	}

	if cfg.Schedule == "" {
		return runOnce(ctx)
	}
	sched, err := schedule.New(cfg.Schedule, runOnce, log)
	if err != nil {
		return err
	}
	return sched.Run(ctx)
}

func archiveConfig(c config.ArchiveConfig) (archiver.Config, error) {
	period, err := window.ParsePeriod(c.Period)
	if err != nil {
		return archiver.Config{}, err
	}
	tmpl, err := destination.ParseTemplate(c.Output)
	if err != nil {
		return archiver.Config{}, err
	}
	throttle, err := c.ThrottleDuration()
	if err != nil {
		return archiver.Config{}, vcerrors.Wrap(err, vcerrors.ErrorTypeConfig, "invalid throttle")
	}
	return archiver.Config{
		Table:    c.Table,
		Column:   c.Column,
		Filter:   c.Where,
		Until:    c.Until,
		Period:   period,
		Template: tmpl,
		Prune:    c.Prune,
		DryRun:   c.DryRun,
		Throttle: throttle,
	}, nil
}

func printSummary(w io.Writer, sum *archiver.Summary, format string) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(sum, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "none":
		return nil
	default:
		return sum.WriteText(w)
	}
}
