// Package sweep runs the periodic reclamation of expired pending challenges.
//
// Sweeping only frees space. Stores already report expired records as absent
// on read, so a sweep may run concurrently with any read or write and a
// stopped or failing sweeper never affects correctness.
package sweep

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const defaultSweepTimeout = 5 * time.Second

// Deleter removes every record created before cutoff and reports how many
// were removed.
type Deleter interface {
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config controls a Worker.
type Config struct {
	Interval time.Duration
	Window   time.Duration
	Timeout  time.Duration
	Now      func() time.Time
	Logger   *slog.Logger
	// OnSwept is called after every successful pass with the removed count.
	OnSwept func(removed int64)
	// OnError is called after every failed pass.
	OnError func(err error)
}

// Worker owns one sweep goroutine.
type Worker struct {
	cfg      Config
	deleter  Deleter
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// Start launches a Worker that sweeps every cfg.Interval. It returns nil when
// the interval is not positive; Stop is safe on a nil Worker.
func Start(deleter Deleter, cfg Config) *Worker {
	if deleter == nil || cfg.Interval <= 0 {
		return nil
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSweepTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	w := &Worker{
		cfg:     cfg,
		deleter: deleter,
		done:    make(chan struct{}),
	}

	w.wg.Add(1)
	go w.run()

	return w
}

func (w *Worker) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.sweep()
		case <-w.done:
			return
		}
	}
}

func (w *Worker) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), w.cfg.Timeout)
	defer cancel()

	removed, err := Once(ctx, w.deleter, w.cfg.Now(), w.cfg.Window)
	if err != nil {
		w.cfg.Logger.Warn("challenge sweep failed", "error", err)
		if w.cfg.OnError != nil {
			w.cfg.OnError(err)
		}
		return
	}

	if removed > 0 {
		w.cfg.Logger.Debug("challenge sweep complete", "removed", removed)
	}
	if w.cfg.OnSwept != nil {
		w.cfg.OnSwept(removed)
	}
}

// Stop ends the loop and waits for an in-flight pass to finish.
func (w *Worker) Stop() {
	if w == nil {
		return
	}
	w.stopOnce.Do(func() {
		close(w.done)
		w.wg.Wait()
	})
}

// Once runs a single pass removing records created at or before now-window.
func Once(ctx context.Context, deleter Deleter, now time.Time, window time.Duration) (int64, error) {
	return deleter.DeleteExpired(ctx, now.Add(-window))
}
