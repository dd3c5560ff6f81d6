package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrEthical07/goMFA"
	promexport "github.com/MrEthical07/goMFA/metrics/export/prometheus"
	"github.com/MrEthical07/goMFA/postgres"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 5 * time.Second

func newServeMetricsCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Run the challenge sweeper and expose Prometheus metrics",
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

			engine, err := goMFA.New().
				WithConfig(cfg.engineConfig()).
				WithChallengeStore(postgres.NewChallengeStore(pool, cfg.ChallengeWindow, nil)).
				WithUserProvider(postgres.NewUserRepository(pool)).
				WithLogger(logger).
				Build()
			if err != nil {
				return oops.Code("ENGINE_BUILD_FAILED").Wrap(err)
			}
			defer engine.Close()

			srv := newMetricsServer(cfg.MetricsAddr, func(ctx context.Context) bool {
				ctx, cancel := context.WithTimeout(ctx, time.Second)
				defer cancel()
				return pool.Ping(ctx) == nil
			}, logger)
			if err := srv.Register(promexport.NewPrometheusExporter(engine)); err != nil {
				return err
			}

			return serveUntilDone(ctx, srv)
		},
	}
	return cmd
}

func serveUntilDone(ctx context.Context, srv *metricsServer) error {
	errCh, err := srv.Start()
	if err != nil {
		return err
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok && err != nil {
			serveErr = oops.Code("METRICS_SERVE_FAILED").Wrap(err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}
