package main

import (
	"context"
	"log/slog"

	"github.com/MrEthical07/goMFA/internal/logging"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type globalOptions struct {
	configFile string
	v          *viper.Viper
}

// NewRootCmd creates the root command for the gomfa CLI.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{v: newViper()}

	cmd := &cobra.Command{
		Use:          "gomfa",
		Short:        "Operate the goMFA Postgres backend",
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&g.configFile, "config", "", "config file path (yaml, json or toml)")
	flags.String("database-url", "", "PostgreSQL connection URL")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "json", "log format (json or text)")

	_ = g.v.BindPFlag("database_url", flags.Lookup("database-url"))
	_ = g.v.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = g.v.BindPFlag("log_format", flags.Lookup("log-format"))

	cmd.AddCommand(newMigrateCmd(g))
	cmd.AddCommand(newSweepCmd(g))
	cmd.AddCommand(newServeMetricsCmd(g))
	cmd.AddCommand(newStatusCmd(g))

	return cmd
}

func (g *globalOptions) load(cmd *cobra.Command) (*cliConfig, *slog.Logger, error) {
	cfg, err := loadConfig(g.v, g.configFile)
	if err != nil {
		return nil, nil, err
	}

	logger := logging.Setup(logging.Options{
		Service: "gomfa",
		Version: version,
		Format:  cfg.LogFormat,
		Level:   logging.ParseLevel(cfg.LogLevel),
		Writer:  cmd.ErrOrStderr(),
	})
	return cfg, logger, nil
}

func connect(ctx context.Context, cfg *cliConfig) (*pgxpool.Pool, error) {
	if err := cfg.requireDatabase(); err != nil {
		return nil, err
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	return pool, nil
}
