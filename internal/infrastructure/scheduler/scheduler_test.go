package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ──────────────────────────────────────────────────────────────────────────────
// Test fixtures
// ──────────────────────────────────────────────────────────────────────────────

type stubJob struct {
	name string
	err  error
	runs int
}

func (j *stubJob) Name() string        { return j.name }
func (j *stubJob) Description() string { return "stub job" }

func (j *stubJob) Run(ctx context.Context) error {
	j.runs++
	return j.err
}

func newTestScheduler(maxHistory int) *Scheduler {
	return New(Config{
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		MaxHistorySize: maxHistory,
	})
}

// ──────────────────────────────────────────────────────────────────────────────
// Cron parsing
// ──────────────────────────────────────────────────────────────────────────────

func TestParseCronExpression(t *testing.T) {
	valid := []string{
		"* * * * *",
		"*/5 * * * *",
		"30 0 * * *",
		"0 1 * * 1",
		"0 9-17 * * 1-5",
		"0,30 * * * *",
		"15 2 1 * *",
	}
	for _, expr := range valid {
		ce, err := ParseCronExpression(expr)
		require.NoError(t, err, expr)
		assert.Equal(t, expr, ce.String())
	}

	invalid := []string{
		"",
		"* * * *",
		"* * * * * *",
		"61 * * * *",
		"* 24 * * *",
		"* * * * 7",
		"*/0 * * * *",
		"a * * * *",
	}
	for _, expr := range invalid {
		_, err := ParseCronExpression(expr)
		assert.Error(t, err, "expected %q to be rejected", expr)
	}
}

func TestMustParseCronExpressionPanics(t *testing.T) {
	assert.Panics(t, func() {
		MustParseCronExpression("not a cron")
	})
	assert.NotPanics(t, func() {
		MustParseCronExpression("30 0 * * *")
	})
}

func TestCronExpressionNext(t *testing.T) {
	// Wednesday 2026-08-26 12:15 UTC.
	base := time.Date(2026, time.August, 26, 12, 15, 42, 0, time.UTC)

	tests := []struct {
		expr string
		want time.Time
	}{
		{"* * * * *", time.Date(2026, time.August, 26, 12, 16, 0, 0, time.UTC)},
		{"*/5 * * * *", time.Date(2026, time.August, 26, 12, 20, 0, 0, time.UTC)},
		{"30 0 * * *", time.Date(2026, time.August, 27, 0, 30, 0, 0, time.UTC)},
		{"0 1 * * 1", time.Date(2026, time.August, 31, 1, 0, 0, 0, time.UTC)},
		{"0 0 1 * *", time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tc := range tests {
		t.Run(tc.expr, func(t *testing.T) {
			ce, err := ParseCronExpression(tc.expr)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ce.Next(base))
		})
	}
}

func TestCronExpressionNextSkipsCurrentMinute(t *testing.T) {
	ce := MustParseCronExpression("30 0 * * *")

	// Exactly on a firing minute the next run is the following day.
	at := time.Date(2026, time.August, 26, 0, 30, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, time.August, 27, 0, 30, 0, 0, time.UTC), ce.Next(at))
}

func TestIntervalSchedule(t *testing.T) {
	s := NewIntervalSchedule(6 * time.Hour)

	base := time.Date(2026, time.August, 26, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, base.Add(6*time.Hour), s.Next(base))
	assert.Equal(t, "@every 6h0m0s", s.String())
}

// ──────────────────────────────────────────────────────────────────────────────
// Registration and lifecycle
// ──────────────────────────────────────────────────────────────────────────────

func TestSchedulerRegister(t *testing.T) {
	s := newTestScheduler(10)
	schedule := NewIntervalSchedule(time.Hour)

	require.NoError(t, s.Register(&stubJob{name: "aggregate"}, schedule))

	err := s.Register(&stubJob{name: "aggregate"}, schedule)
	assert.ErrorIs(t, err, ErrJobAlreadyExists)

	assert.ErrorIs(t, s.Register(nil, schedule), ErrNilJob)
	assert.ErrorIs(t, s.Register(&stubJob{name: "classify"}, nil), ErrNilSchedule)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "aggregate", jobs[0].Name)
	assert.True(t, jobs[0].Enabled)
	assert.Equal(t, "@every 1h0m0s", jobs[0].Schedule)
}

func TestSchedulerEnableDisable(t *testing.T) {
	s := newTestScheduler(10)
	require.NoError(t, s.Register(&stubJob{name: "rebuild"}, NewIntervalSchedule(time.Hour)))

	require.NoError(t, s.DisableJob("rebuild"))
	assert.False(t, s.ListJobs()[0].Enabled)

	require.NoError(t, s.EnableJob("rebuild"))
	assert.True(t, s.ListJobs()[0].Enabled)

	assert.ErrorIs(t, s.DisableJob("missing"), ErrJobNotFound)
	assert.ErrorIs(t, s.EnableJob("missing"), ErrJobNotFound)
}

func TestSchedulerUnregister(t *testing.T) {
	s := newTestScheduler(10)
	require.NoError(t, s.Register(&stubJob{name: "aggregate"}, NewIntervalSchedule(time.Hour)))

	require.NoError(t, s.Unregister("aggregate"))
	assert.Empty(t, s.ListJobs())

	assert.ErrorIs(t, s.Unregister("aggregate"), ErrJobNotFound)
}

func TestSchedulerStartStop(t *testing.T) {
	s := newTestScheduler(10)
	ctx := context.Background()

	require.NoError(t, s.Start(ctx))
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Start(ctx), ErrAlreadyRunning)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrNotRunning)
}

// ──────────────────────────────────────────────────────────────────────────────
// Manual runs and history
// ──────────────────────────────────────────────────────────────────────────────

func TestSchedulerRunNow(t *testing.T) {
	s := newTestScheduler(10)
	job := &stubJob{name: "aggregate"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "aggregate")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "aggregate", result.JobName)
	assert.True(t, result.Success)
	assert.True(t, result.Manual)
	assert.Equal(t, 1, job.runs)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestSchedulerRunNowFailure(t *testing.T) {
	s := newTestScheduler(10)
	jobErr := errors.New("upstream unavailable")
	require.NoError(t, s.Register(&stubJob{name: "classify", err: jobErr}, NewIntervalSchedule(time.Hour)))

	result, err := s.RunNow(context.Background(), "classify")
	assert.ErrorIs(t, err, jobErr)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	assert.Equal(t, jobErr, result.Error)

	history := s.GetHistory(0)
	require.Len(t, history, 1)
	assert.False(t, history[0].Success)
}

func TestSchedulerHistoryTrim(t *testing.T) {
	s := newTestScheduler(3)
	require.NoError(t, s.Register(&stubJob{name: "aggregate"}, NewIntervalSchedule(time.Hour)))

	for i := 0; i < 5; i++ {
		_, err := s.RunNow(context.Background(), "aggregate")
		require.NoError(t, err, fmt.Sprintf("run %d", i))
	}

	history := s.GetHistory(0)
	assert.Len(t, history, 3)

	limited := s.GetHistory(2)
	assert.Len(t, limited, 2)
}
