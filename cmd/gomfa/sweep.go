package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/goMFA/internal/sweep"
	"github.com/MrEthical07/goMFA/postgres"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

func newSweepCmd(g *globalOptions) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired pending challenges",
		Long: `Delete pending challenges older than the challenge window. Runs once
unless --interval is given, in which case it loops until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := g.load(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			pool, err := connect(ctx, cfg)
			if err != nil {
				return err
			}
			defer pool.Close()

			store := postgres.NewChallengeStore(pool, cfg.ChallengeWindow, nil)
			return runSweep(ctx, cmd.OutOrStdout(), store, cfg.ChallengeWindow, interval, logger)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "repeat every interval until interrupted")
	return cmd
}

func runSweep(ctx context.Context, out io.Writer, deleter sweep.Deleter, window, interval time.Duration, logger *slog.Logger) error {
	if interval <= 0 {
		removed, err := sweep.Once(ctx, deleter, time.Now(), window)
		if err != nil {
			return oops.Code("SWEEP_FAILED").With("window", window).Wrap(err)
		}
		_, _ = fmt.Fprintf(out, "Deleted %d expired challenges\n", removed)
		return nil
	}

	logger.Info("sweeper started", "interval", interval, "window", window)
	w := sweep.Start(deleter, sweep.Config{
		Interval: interval,
		Window:   window,
		Logger:   logger,
		OnSwept: func(removed int64) {
			logger.Info("swept expired challenges", "removed", removed)
		},
	})

	<-ctx.Done()
	w.Stop()
	logger.Info("sweeper stopped")
	return nil
}
