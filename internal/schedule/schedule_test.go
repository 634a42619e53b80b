package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kamazee/vcutil/pkg/vcerrors"
)

func TestNew_Spec(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		wantErr bool
	}{
		{name: "daily", spec: "0 3 * * *"},
		{name: "descriptor", spec: "@hourly"},
		{name: "every", spec: "@every 10m"},
		{name: "garbage", spec: "invalid cron", wantErr: true},
		{name: "empty", spec: "", wantErr: true},
		{name: "seconds field", spec: "*/5 * * * * *", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.spec, func(context.Context) error { return nil }, nil)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, vcerrors.IsType(err, vcerrors.ErrorTypeConfig))
				return
			}
			require.NoError(t, err)
			assert.False(t, s.IsRunning())
			assert.Nil(t, s.NextRun())
		})
	}
}

func TestRun_RepeatsUntilCancelled(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	calls := 0
	s, err := New("@every 1s", func(context.Context) error {
		calls++
		if calls == 1 {
			return errors.New("store unavailable")
		}
		cancel()
		return nil
	}, zap.New(core))
	require.NoError(t, err)

	require.NoError(t, s.Run(ctx))
	assert.False(t, s.IsRunning())
	assert.Equal(t, 2, s.Runs())
	assert.Len(t, logs.FilterMessage("Scheduled run failed").All(), 1)
	assert.Len(t, logs.FilterMessage("Scheduler stopped").All(), 1)
	assert.NotErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}
