package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeDeleter struct {
	calls   atomic.Int32
	removed int64
	err     error
	cutoffs chan time.Time
}

func (d *fakeDeleter) DeleteExpired(_ context.Context, cutoff time.Time) (int64, error) {
	d.calls.Add(1)
	if d.cutoffs != nil {
		select {
		case d.cutoffs <- cutoff:
		default:
		}
	}
	return d.removed, d.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunSweepOnce(t *testing.T) {
	d := &fakeDeleter{removed: 4, cutoffs: make(chan time.Time, 1)}
	var out bytes.Buffer

	before := time.Now()
	require.NoError(t, runSweep(context.Background(), &out, d, 600*time.Second, 0, discardLogger()))

	assert.Equal(t, int32(1), d.calls.Load())
	assert.Contains(t, out.String(), "Deleted 4 expired challenges")

	cutoff := <-d.cutoffs
	assert.WithinDuration(t, before.Add(-600*time.Second), cutoff, 5*time.Second)
}

func TestRunSweepOnceError(t *testing.T) {
	d := &fakeDeleter{err: errors.New("connection refused")}

	err := runSweep(context.Background(), io.Discard, d, time.Minute, 0, discardLogger())
	assertCode(t, err, "SWEEP_FAILED")
}

func TestRunSweepLoopStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	d := &fakeDeleter{cutoffs: make(chan time.Time, 1)}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- runSweep(ctx, io.Discard, d, time.Minute, 5*time.Millisecond, discardLogger())
	}()

	select {
	case <-d.cutoffs:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper never ran")
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
