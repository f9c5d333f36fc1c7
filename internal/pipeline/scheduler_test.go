package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/couchcryptid/station-data-etl/internal/pipeline"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_ReadinessFollowsRuns(t *testing.T) {
	clock := clockwork.NewFakeClock()
	results := []error{errors.New("boom"), nil, errors.New("source down")}
	n := 0
	job := func(context.Context) error {
		err := results[n%len(results)]
		n++
		return err
	}
	s := pipeline.NewScheduler(job, time.Hour, clock, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.EqualError(t, s.CheckReadiness(context.Background()), "no successful run yet")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitRuns := func(want int) {
		t.Helper()
		require.Eventually(t, func() bool { return s.Runs() == want }, time.Second, time.Millisecond)
	}

	waitRuns(1)
	assert.ErrorContains(t, s.CheckReadiness(ctx), "boom")

	clock.Advance(time.Hour)
	waitRuns(2)
	assert.NoError(t, s.CheckReadiness(ctx))

	clock.Advance(time.Hour)
	waitRuns(3)
	assert.NoError(t, s.CheckReadiness(ctx), "a failed rerun keeps the previous output")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_NoRunBeforeInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	s := pipeline.NewScheduler(func(context.Context) error { return nil }, time.Hour, clock, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	require.Eventually(t, func() bool { return s.Runs() == 1 }, time.Second, time.Millisecond)
	clock.Advance(59 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, s.Runs())
}
