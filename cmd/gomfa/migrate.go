package main

import (
	"strconv"
	"strings"

	"github.com/MrEthical07/goMFA/postgres"
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

type migrator interface {
	Up() error
	Down() error
	Version() (uint, bool, error)
	Force(version int) error
	Close() error
}

var newMigrator = func(databaseURL string) (migrator, error) {
	m, err := postgres.NewMigrator(databaseURL)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func newMigrateCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, g, func(m migrator) error {
				if err := m.Up(); err != nil {
					return err
				}
				return printVersion(cmd, m)
			})
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back every migration (drops all goMFA tables)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(cmd, g, func(m migrator) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("All migrations rolled back")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "force VERSION",
		Short: "Mark VERSION as applied without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := parseForceVersion(args[0])
			if err != nil {
				return err
			}
			return withMigrator(cmd, g, func(m migrator) error {
				if err := m.Force(v); err != nil {
					return err
				}
				return printVersion(cmd, m)
			})
		},
	})

	return cmd
}

func withMigrator(cmd *cobra.Command, g *globalOptions, fn func(migrator) error) error {
	cfg, _, err := g.load(cmd)
	if err != nil {
		return err
	}
	if err := cfg.requireDatabase(); err != nil {
		return err
	}

	m, err := newMigrator(cfg.DatabaseURL)
	if err != nil {
		return err
	}

	runErr := fn(m)
	closeErr := m.Close()
	if runErr != nil {
		return runErr
	}
	return closeErr
}

func printVersion(cmd *cobra.Command, m migrator) error {
	v, dirty, err := m.Version()
	if err != nil {
		return err
	}
	state := "clean"
	if dirty {
		state = "dirty"
	}
	cmd.Printf("Schema version %d (%s)\n", v, state)
	return nil
}

func parseForceVersion(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be an integer")
	}
	if v < 0 {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Errorf("version must be non-negative")
	}
	return v, nil
}
