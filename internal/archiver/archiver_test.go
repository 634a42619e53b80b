package archiver

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kamazee/vcutil/internal/destination"
	"github.com/kamazee/vcutil/internal/store"
	"github.com/kamazee/vcutil/internal/storetest"
	"github.com/kamazee/vcutil/internal/window"
	"github.com/kamazee/vcutil/pkg/logger"
	"github.com/kamazee/vcutil/pkg/metrics"
	"github.com/kamazee/vcutil/pkg/models"
	"github.com/kamazee/vcutil/pkg/vcerrors"
)

func at(t *testing.T, s string) models.Value {
	t.Helper()
	tm, err := time.Parse(window.TimeLayout, s)
	require.NoError(t, err)
	return models.DateTimeOf(tm)
}

func period(t *testing.T, s string) window.Period {
	t.Helper()
	p, err := window.ParsePeriod(s)
	require.NoError(t, err)
	return p
}

func idRows(ids ...int64) []store.Row {
	rows := make([]store.Row, len(ids))
	for i, id := range ids {
		rows[i] = store.Row{models.Int(id), models.String("row")}
	}
	return rows
}

func newArchiver(t *testing.T, s store.Store, root string, cfg Config, opts ...Option) *Archiver {
	t.Helper()
	a, err := New(s, destination.FileOpener{Root: root}, cfg, opts...)
	require.NoError(t, err)
	return a
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

// assertPaired checks that every DELETE repeats the WHERE clause and
// arguments of the SELECT issued right before it.
func assertPaired(t *testing.T, stmts []store.Statement) {
	t.Helper()
	var lastRead *store.Statement
	for i := range stmts {
		st := stmts[i]
		switch {
		case strings.HasPrefix(st.SQL, "SELECT `"):
			lastRead = &stmts[i]
		case strings.HasPrefix(st.SQL, "DELETE "):
			require.NotNil(t, lastRead, "delete without a preceding read")
			readWhere := lastRead.SQL[strings.Index(lastRead.SQL, " WHERE "):strings.Index(lastRead.SQL, " ORDER BY ")]
			assert.Equal(t, readWhere, st.SQL[strings.Index(st.SQL, " WHERE "):])
			assert.Equal(t, lastRead.Args, st.Args)
			lastRead = nil
		}
	}
}

func countPrefix(stmts []store.Statement, prefix string) int {
	n := 0
	for _, st := range stmts {
		if strings.HasPrefix(st.SQL, prefix) {
			n++
		}
	}
	return n
}

func TestNew_Validation(t *testing.T) {
	base := Config{
		Table:    "events",
		Column:   "id",
		Period:   window.Period{Step: 10},
		Template: destination.MustParseTemplate("out.csv"),
	}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "no table", mutate: func(c *Config) { c.Table = "" }},
		{name: "no column", mutate: func(c *Config) { c.Column = " " }},
		{name: "no template", mutate: func(c *Config) { c.Template = destination.Template{} }},
		{name: "zero period", mutate: func(c *Config) { c.Period = window.Period{} }},
		{name: "negative throttle", mutate: func(c *Config) { c.Throttle = -time.Second }},
		{name: "dry run without prune", mutate: func(c *Config) { c.DryRun = true }},
		{name: "garbage until", mutate: func(c *Config) { c.Until = "soon" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			_, err := New(storetest.New([]string{"id"}, "id"), destination.FileOpener{}, cfg)
			require.Error(t, err)
			assert.True(t, vcerrors.IsType(err, vcerrors.ErrorTypeConfig), err.Error())
		})
	}

	_, err := New(storetest.New([]string{"id"}, "id"), destination.FileOpener{}, base)
	assert.NoError(t, err)
}

func TestRun_TemporalExportAndPrune(t *testing.T) {
	root := t.TempDir()
	f := storetest.New([]string{"created_at", "note"}, "created_at",
		store.Row{at(t, "2020-01-01 00:10:00"), models.String("a")},
		store.Row{at(t, "2020-01-01 00:50:00"), models.String(`say "hi"`)},
		store.Row{at(t, "2020-01-01 01:05:00"), models.Null()},
		store.Row{at(t, "2020-01-02 09:00:00"), models.String("next day")},
	)
	core, logs := observer.New(zap.InfoLevel)

	a := newArchiver(t, f, root, Config{
		Table:    "events",
		Column:   "created_at",
		Period:   period(t, "1h"),
		Template: destination.MustParseTemplate("%Y/%m/%d.csv"),
		Prune:    true,
	}, WithLogger(zap.New(core)))

	sum, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "temporal", sum.Domain)
	assert.Equal(t, int64(4), sum.RowsExported)
	assert.Equal(t, int64(4), sum.RowsDeleted)
	assert.Equal(t, []string{"2020/01/01.csv", "2020/01/02.csv"}, sum.Destinations)
	assert.Empty(t, f.Rows())
	require.NotNil(t, sum.LastCompleted)
	assert.Equal(t, "2020-01-02 10:00:00", sum.LastCompleted.End)

	assert.Equal(t,
		"\"created_at\",\"note\"\n"+
			"\"2020-01-01 00:10:00\",\"a\"\n"+
			"\"2020-01-01 00:50:00\",\"say \"\"hi\"\"\"\n"+
			"\"2020-01-01 01:05:00\",NULL\n",
		readFile(t, filepath.Join(root, "2020/01/01.csv")))
	assert.Equal(t,
		"\"created_at\",\"note\"\n\"2020-01-02 09:00:00\",\"next day\"\n",
		readFile(t, filepath.Join(root, "2020/01/02.csv")))

	stmts := f.Statements()
	assertPaired(t, stmts)
	assert.Equal(t, 3, countPrefix(stmts, "DELETE "))
	assert.Equal(t, 3, len(logs.FilterMessage("Window archived").All()))
	assert.Equal(t, 1, len(logs.FilterMessage("Archive run finished").All()))
}

func TestRun_EmptyWindowsOpenNoDestination(t *testing.T) {
	root := t.TempDir()
	f := storetest.New([]string{"created_at"}, "created_at",
		store.Row{at(t, "2020-01-01 00:10:00")},
		store.Row{at(t, "2020-01-01 05:10:00")},
	)

	sum, err := newArchiver(t, f, root, Config{
		Table:    "events",
		Column:   "created_at",
		Period:   period(t, "1h"),
		Template: destination.MustParseTemplate("%Y/%m/%d/%H.csv"),
	}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.EmptyWindows)
	assert.Equal(t, []string{"2020/01/01/00.csv", "2020/01/01/05.csv"}, sum.Destinations)
	_, err = os.Stat(filepath.Join(root, "2020/01/01/01.csv"))
	assert.True(t, os.IsNotExist(err))
}

func TestRun_IntegralSeeksPastEmptyWindows(t *testing.T) {
	root := t.TempDir()
	f := storetest.New([]string{"id", "note"}, "id", idRows(3, 1, 2, 257)...)

	a := newArchiver(t, f, root, Config{
		Table:    "events",
		Column:   "id",
		Period:   window.Period{Step: 10},
		Template: destination.MustParseTemplate("events.csv"),
		Prune:    true,
	})
	sum, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "integral", sum.Domain)
	assert.Equal(t, 3, sum.Windows)
	assert.Equal(t, 1, sum.EmptyWindows)
	assert.Equal(t, int64(4), sum.RowsExported)
	assert.Equal(t, "1,\"row\"\n2,\"row\"\n3,\"row\"\n257,\"row\"\n",
		strings.TrimPrefix(readFile(t, filepath.Join(root, "events.csv")), "\"id\",\"note\"\n"))

	var seekArgs []any
	var reads [][]any
	for _, st := range f.Statements() {
		if strings.HasPrefix(st.SQL, "SELECT MIN(") && len(st.Args) == 1 {
			seekArgs = append(seekArgs, st.Args[0])
		}
		if strings.HasPrefix(st.SQL, "SELECT `") {
			reads = append(reads, st.Args)
		}
	}
	assert.Equal(t, []any{int64(20)}, seekArgs)
	require.Len(t, reads, 3)
	assert.Equal(t, []any{int64(0), int64(10), int64(257)}, reads[0])
	assert.Equal(t, []any{int64(10), int64(20), int64(257)}, reads[1])
	assert.Equal(t, []any{int64(257), int64(267), int64(257)}, reads[2])
	assertPaired(t, f.Statements())
}

func TestRun_WithoutPruneRepeatsAppendOnly(t *testing.T) {
	root := t.TempDir()
	f := storetest.New([]string{"id", "note"}, "id", idRows(1, 2)...)
	cfg := Config{
		Table:    "events",
		Column:   "id",
		Period:   window.Period{Step: 100},
		Template: destination.MustParseTemplate("events.csv"),
	}

	for i := 0; i < 2; i++ {
		sum, err := newArchiver(t, f, root, cfg).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, int64(2), sum.RowsExported)
		assert.Zero(t, sum.RowsDeleted)
	}

	assert.Equal(t, "\"id\",\"note\"\n1,\"row\"\n2,\"row\"\n1,\"row\"\n2,\"row\"\n",
		readFile(t, filepath.Join(root, "events.csv")))
	assert.Len(t, f.Rows(), 2)
	assert.Zero(t, countPrefix(f.Statements(), "DELETE "))
}

func TestRun_EmptyTableTouchesNothing(t *testing.T) {
	root := t.TempDir()
	f := storetest.New([]string{"id"}, "id")

	sum, err := newArchiver(t, f, root, Config{
		Table:    "events",
		Column:   "id",
		Period:   window.Period{Step: 10},
		Template: destination.MustParseTemplate("events.csv"),
		Prune:    true,
	}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "none", sum.Domain)
	assert.Zero(t, sum.Windows)
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_UnsupportedValueStopsBeforeDelete(t *testing.T) {
	root := t.TempDir()
	bad := store.Row{models.Int(15), {Category: models.Category(99)}}
	f := storetest.New([]string{"id", "note"}, "id", idRows(1, 2)...)
	f.Insert(idRows(11)...)
	f.Insert(bad)

	sum, err := newArchiver(t, f, root, Config{
		Table:    "events",
		Column:   "id",
		Period:   window.Period{Step: 10},
		Template: destination.MustParseTemplate("events.csv"),
		Prune:    true,
	}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, vcerrors.IsType(err, vcerrors.ErrorTypeUnsupportedValue), err.Error())

	end, ok := vcerrors.Detail(err, "last_completed_end")
	require.True(t, ok)
	assert.Equal(t, "10", end)
	begin, ok := vcerrors.Detail(err, "window_begin")
	require.True(t, ok)
	assert.Equal(t, "10", begin)

	assert.Equal(t, int64(2), sum.RowsDeleted)
	assert.Equal(t, 1, countPrefix(f.Statements(), "DELETE "))
	assert.Len(t, f.Rows(), 2, "the failed window keeps its rows")
}

func TestRun_IntegralDomainRejectsTimeTemplate(t *testing.T) {
	root := t.TempDir()
	f := storetest.New([]string{"id", "note"}, "id", idRows(1)...)

	_, err := newArchiver(t, f, root, Config{
		Table:    "events",
		Column:   "id",
		Period:   window.Period{Step: 10},
		Template: destination.MustParseTemplate("%Y.csv"),
		Prune:    true,
	}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, vcerrors.IsType(err, vcerrors.ErrorTypeConfig))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Zero(t, countPrefix(f.Statements(), "SELECT `"))
}

func TestRun_TemporalPeriodOnIntegralDomain(t *testing.T) {
	f := storetest.New([]string{"id", "note"}, "id", idRows(1)...)
	_, err := newArchiver(t, f, t.TempDir(), Config{
		Table:    "events",
		Column:   "id",
		Period:   period(t, "1h"),
		Template: destination.MustParseTemplate("events.csv"),
	}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, vcerrors.IsType(err, vcerrors.ErrorTypeConfig))
}

func TestRun_DryRunKeepsRows(t *testing.T) {
	root := t.TempDir()
	f := storetest.New([]string{"id", "note"}, "id", idRows(1, 2, 30)...)
	core, logs := observer.New(zap.InfoLevel)

	sum, err := newArchiver(t, f, root, Config{
		Table:    "events",
		Column:   "id",
		Period:   window.Period{Step: 10},
		Template: destination.MustParseTemplate("events.csv"),
		Prune:    true,
		DryRun:   true,
	}, WithLogger(zap.New(core))).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, sum.DryRun)
	assert.Equal(t, int64(3), sum.RowsExported)
	assert.Zero(t, sum.RowsDeleted)
	assert.Len(t, f.Rows(), 3)
	assert.Zero(t, countPrefix(f.Statements(), "DELETE "))
	assert.Len(t, logs.FilterMessage("Dry run: skipping delete").All(), 2)
}

func TestRun_CeilingExcludesLaterRows(t *testing.T) {
	root := t.TempDir()
	f := storetest.New([]string{"id", "note"}, "id", idRows(1, 2, 5, 7)...)

	sum, err := newArchiver(t, f, root, Config{
		Table:    "events",
		Column:   "id",
		Until:    "5",
		Period:   window.Period{Step: 10},
		Template: destination.MustParseTemplate("events.csv"),
		Prune:    true,
	}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "2", sum.Maximum)
	assert.Equal(t, int64(2), sum.RowsExported)
	remaining := f.Rows()
	require.Len(t, remaining, 2)
	assert.Equal(t, int64(5), remaining[0][0].Int)
	assert.Equal(t, int64(7), remaining[1][0].Int)
}

func TestRun_RowsInsertedAfterProbeStayPut(t *testing.T) {
	root := t.TempDir()
	f := storetest.New([]string{"id", "note"}, "id", idRows(1, 2)...)
	inserted := false
	f.Fail = func(st store.Statement) error {
		if !inserted && strings.HasPrefix(st.SQL, "SELECT `") {
			inserted = true
			f.Insert(idRows(3)...)
		}
		return nil
	}

	sum, err := newArchiver(t, f, root, Config{
		Table:    "events",
		Column:   "id",
		Period:   window.Period{Step: 10},
		Template: destination.MustParseTemplate("events.csv"),
		Prune:    true,
	}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.RowsDeleted)
	require.Len(t, f.Rows(), 1)
	assert.Equal(t, int64(3), f.Rows()[0][0].Int)
}

func TestRun_DSTWidensLowerBound(t *testing.T) {
	root := t.TempDir()
	f := storetest.New([]string{"created_at"}, "created_at",
		store.Row{at(t, "2020-03-29 01:10:00")},
		store.Row{at(t, "2020-03-29 02:10:00")},
		store.Row{at(t, "2020-03-29 03:10:00")},
	)
	f.Delta = func(boundary string) models.Value {
		if boundary == "2020-03-29 03:00:00" {
			return models.Int(3601)
		}
		return models.Int(1)
	}

	sum, err := newArchiver(t, f, root, Config{
		Table:    "events",
		Column:   "created_at",
		Period:   period(t, "1h"),
		Template: destination.MustParseTemplate("%F.csv"),
		Prune:    true,
	}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, sum.DSTWidened)
	assert.Equal(t, int64(3), sum.RowsExported)
	assert.Equal(t, int64(3), sum.RowsDeleted)

	var reads [][]any
	for _, st := range f.Statements() {
		if strings.HasPrefix(st.SQL, "SELECT `") {
			reads = append(reads, st.Args)
		}
	}
	require.Len(t, reads, 3)
	assert.Equal(t, "2020-03-29 02:00:00", reads[2][0])
	assert.Equal(t, "2020-03-29 04:00:00", reads[2][1])
	assertPaired(t, f.Statements())
}

func TestRun_DSTOverlapExportedOnceWhenRowsStay(t *testing.T) {
	for name, cfg := range map[string]Config{
		"no prune": {},
		"dry run":  {Prune: true, DryRun: true},
	} {
		t.Run(name, func(t *testing.T) {
			root := t.TempDir()
			f := storetest.New([]string{"created_at"}, "created_at",
				store.Row{at(t, "2020-03-29 01:10:00")},
				store.Row{at(t, "2020-03-29 02:10:00")},
				store.Row{at(t, "2020-03-29 03:10:00")},
			)
			f.Delta = func(boundary string) models.Value {
				if boundary == "2020-03-29 03:00:00" {
					return models.Int(3601)
				}
				return models.Int(1)
			}

			cfg.Table = "events"
			cfg.Column = "created_at"
			cfg.Period = period(t, "1h")
			cfg.Template = destination.MustParseTemplate("%F.csv")
			sum, err := newArchiver(t, f, root, cfg).Run(context.Background())
			require.NoError(t, err)

			assert.Equal(t, 1, sum.DSTWidened)
			assert.Equal(t, int64(3), sum.RowsExported)
			assert.Zero(t, sum.RowsDeleted)
			assert.Equal(t,
				"\"created_at\"\n"+
					"\"2020-03-29 01:10:00\"\n"+
					"\"2020-03-29 02:10:00\"\n"+
					"\"2020-03-29 03:10:00\"\n",
				readFile(t, filepath.Join(root, "2020-03-29.csv")))
			assert.Len(t, f.Rows(), 3)
		})
	}
}

func TestRun_IntegralWindowsNearMaxInt64Terminate(t *testing.T) {
	for _, prune := range []bool{false, true} {
		root := t.TempDir()
		f := storetest.New([]string{"id", "note"}, "id", idRows(5, math.MaxInt64-10)...)

		sum, err := newArchiver(t, f, root, Config{
			Table:    "events",
			Column:   "id",
			Period:   window.Period{Step: 100},
			Template: destination.MustParseTemplate("events.csv"),
			Prune:    prune,
		}).Run(context.Background())
		require.NoError(t, err, "prune=%v", prune)

		assert.Equal(t, 3, sum.Windows)
		assert.Equal(t, 1, sum.EmptyWindows)
		assert.Equal(t, int64(2), sum.RowsExported)
		require.NotNil(t, sum.LastCompleted)
		assert.Equal(t, "9223372036854775807", sum.LastCompleted.End)
		assert.Equal(t, "\"id\",\"note\"\n5,\"row\"\n9223372036854775797,\"row\"\n",
			readFile(t, filepath.Join(root, "events.csv")))

		var reads []store.Statement
		for _, st := range f.Statements() {
			if strings.HasPrefix(st.SQL, "SELECT `") {
				reads = append(reads, st)
			}
		}
		require.Len(t, reads, 3)
		last := reads[2]
		assert.Equal(t, []any{int64(math.MaxInt64 - 10), int64(math.MaxInt64 - 10)}, last.Args)
		assert.NotContains(t, last.SQL, "` < ")

		if prune {
			assert.Equal(t, int64(2), sum.RowsDeleted)
			assert.Empty(t, f.Rows())
			assertPaired(t, f.Statements())
		} else {
			assert.Len(t, f.Rows(), 2)
		}
	}
}

func TestRun_ZeroDateRowsArchivedFirst(t *testing.T) {
	root := t.TempDir()
	f := storetest.New([]string{"created_at", "note"}, "created_at",
		store.Row{at(t, "2020-01-01 00:10:00"), models.String("a")},
		store.Row{models.ZeroDate("0000-00-00 00:00:00"), models.String("legacy")},
	)
	f.Delta = func(boundary string) models.Value {
		if !strings.HasPrefix(boundary, "2020-") {
			return models.Null()
		}
		return models.Int(1)
	}

	sum, err := newArchiver(t, f, root, Config{
		Table:    "events",
		Column:   "created_at",
		Period:   period(t, "1h"),
		Template: destination.MustParseTemplate("events.csv"),
		Prune:    true,
	}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "0000-00-00 00:00:00", sum.Minimum)
	assert.Equal(t, 3, sum.Windows)
	assert.Equal(t, 1, sum.EmptyWindows)
	assert.Equal(t, int64(2), sum.RowsExported)
	assert.Equal(t, int64(2), sum.RowsDeleted)
	assert.Empty(t, f.Rows())
	assert.Equal(t,
		"\"created_at\",\"note\"\n"+
			"\"0000-00-00 00:00:00\",\"legacy\"\n"+
			"\"2020-01-01 00:10:00\",\"a\"\n",
		readFile(t, filepath.Join(root, "events.csv")))

	stmts := f.Statements()
	assertPaired(t, stmts)
	var first *store.Statement
	for i := range stmts {
		if strings.HasPrefix(stmts[i].SQL, "SELECT `") {
			first = &stmts[i]
			break
		}
	}
	require.NotNil(t, first)
	assert.Equal(t, []any{"0000-00-00 00:00:00", "0001-01-01 00:00:00", "2020-01-01 00:10:00"}, first.Args)
}

func TestRun_ThrottleAndCancellation(t *testing.T) {
	root := t.TempDir()
	f := storetest.New([]string{"id", "note"}, "id", idRows(1, 11, 21)...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var slept []time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		if len(slept) == 2 {
			cancel()
			return ctx.Err()
		}
		return nil
	}

	sum, err := newArchiver(t, f, root, Config{
		Table:    "events",
		Column:   "id",
		Period:   window.Period{Step: 10},
		Template: destination.MustParseTemplate("events.csv"),
		Prune:    true,
		Throttle: 250 * time.Millisecond,
	}, WithSleep(sleep)).Run(ctx)
	require.Error(t, err)
	assert.True(t, vcerrors.IsType(err, vcerrors.ErrorTypeCanceled))

	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, slept)
	assert.Equal(t, int64(2), sum.RowsDeleted)
	end, ok := vcerrors.Detail(err, "last_completed_end")
	require.True(t, ok)
	assert.Equal(t, "20", end)
	require.Len(t, f.Rows(), 1)
	assert.Equal(t, int64(21), f.Rows()[0][0].Int)
}

func TestRun_StoreFailureKeepsWrittenWindows(t *testing.T) {
	root := t.TempDir()
	f := storetest.New([]string{"id", "note"}, "id", idRows(1, 11)...)
	deletes := 0
	f.Fail = func(st store.Statement) error {
		if strings.HasPrefix(st.SQL, "DELETE ") {
			deletes++
			if deletes == 2 {
				return vcerrors.New(vcerrors.ErrorTypeConnection, "connection reset")
			}
		}
		return nil
	}

	_, err := newArchiver(t, f, root, Config{
		Table:    "events",
		Column:   "id",
		Period:   window.Period{Step: 10},
		Template: destination.MustParseTemplate("events.csv"),
		Prune:    true,
	}).Run(context.Background())
	require.Error(t, err)
	assert.True(t, vcerrors.IsRetryable(err))
	assert.Equal(t, "\"id\",\"note\"\n1,\"row\"\n11,\"row\"\n", readFile(t, filepath.Join(root, "events.csv")))
}

func TestRun_MetricsAndSpans(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := metrics.NewCollector(reg, "events")
	require.NoError(t, err)

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))

	f := storetest.New([]string{"id", "note"}, "id", idRows(1, 2, 35)...)
	_, err = newArchiver(t, f, t.TempDir(), Config{
		Table:    "events",
		Column:   "id",
		Period:   window.Period{Step: 10},
		Template: destination.MustParseTemplate("events.csv"),
		Prune:    true,
	}, WithMetrics(collector), WithTracer(tp.Tracer("test"))).Run(context.Background())
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if c := m.GetCounter(); c != nil {
				values[mf.GetName()] += c.GetValue()
			}
		}
	}
	assert.Equal(t, float64(3), values["vcutil_rows_exported_total"])
	assert.Equal(t, float64(3), values["vcutil_rows_deleted_total"])
	assert.Equal(t, float64(1), values["vcutil_destinations_opened_total"])

	var names []string
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
	}
	assert.Contains(t, names, "archive.run")
	assert.Contains(t, names, "archive.window")
}

type recordingUploader struct{ names []string }

func (u *recordingUploader) Upload(ctx context.Context, name, path string) error {
	u.names = append(u.names, name)
	return nil
}

func TestRun_UploadsClosedDestinations(t *testing.T) {
	root := t.TempDir()
	f := storetest.New([]string{"created_at"}, "created_at",
		store.Row{at(t, "2020-01-01 10:00:00")},
		store.Row{at(t, "2020-01-02 10:00:00")},
	)
	up := &recordingUploader{}
	opener := destination.FileOpener{Root: root}

	a, err := New(f, opener, Config{
		Table:    "events",
		Column:   "created_at",
		Period:   period(t, "24h"),
		Template: destination.MustParseTemplate("%Y%m%d.csv.gz"),
	}, WithUploader(up, opener.Path))
	require.NoError(t, err)

	_, err = a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"20200101.csv.gz", "20200102.csv.gz"}, up.names)
}

func TestSummary_WriteText(t *testing.T) {
	var b strings.Builder
	s := &Summary{Table: "events", Domain: "integral", Minimum: "1", Maximum: "9",
		Windows: 2, RowsExported: 9, DryRun: true, LastCompleted: &Completed{Begin: "0", End: "10"}}
	require.NoError(t, s.WriteText(&b))
	assert.Contains(t, b.String(), "rows exported:  9")
	assert.Contains(t, b.String(), "no rows were deleted")
	assert.Contains(t, b.String(), "last completed: [0, 10)")
}

func TestRun_FlaggedDeltaWarnsOncePerSharedSet(t *testing.T) {
	root := t.TempDir()
	f := storetest.New([]string{"created_at"}, "created_at",
		store.Row{at(t, "2020-10-25 01:30:00")},
		store.Row{at(t, "2020-10-25 02:30:00")},
	)
	f.Delta = func(boundary string) models.Value {
		if boundary == "2020-10-25 02:00:00" {
			return models.Int(-3599)
		}
		return models.Int(1)
	}
	core, logs := observer.New(zap.WarnLevel)
	var warn logger.Once

	for i := 0; i < 2; i++ {
		sum, err := newArchiver(t, f, root, Config{
			Table:    "events",
			Column:   "created_at",
			Period:   period(t, "1h"),
			Template: destination.MustParseTemplate("%F.csv"),
		}, WithLogger(zap.New(core)), WithWarnings(&warn)).Run(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, sum.DSTFlagged)
		assert.Zero(t, sum.DSTWidened)
	}
	assert.Len(t, logs.All(), 1)
}
