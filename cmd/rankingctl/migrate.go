package main

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v2"

	rankingqueue "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/infrastructure/queue"
	rankingmigrations "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/infrastructure/repositories/migrations"
	"github.com/pcwadarong/web21-funda-sub001/config"
	"github.com/pcwadarong/web21-funda-sub001/internal/observability"
)

// withMigrator connects without building the module, since the tables the
// module reads may not exist yet.
func withMigrator(c *cli.Context, fn func(m *migrate.Migrator, cfg *config.Config) error) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	pgdb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.DSN)))
	db := bun.NewDB(pgdb, pgdialect.New())
	defer db.Close()

	return fn(migrate.NewMigrator(db, rankingmigrations.Migrations), cfg)
}

func newMigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "database migrations",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "create migration tables",
				Action: func(c *cli.Context) error {
					return withMigrator(c, func(m *migrate.Migrator, _ *config.Config) error {
						return m.Init(c.Context)
					})
				},
			},
			{
				Name:  "up",
				Usage: "migrate the ranking tables and River's job tables",
				Action: func(c *cli.Context) error {
					return withMigrator(c, func(m *migrate.Migrator, cfg *config.Config) error {
						if err := m.Init(c.Context); err != nil {
							return err
						}
						if err := m.Lock(c.Context); err != nil {
							return err
						}
						defer m.Unlock(c.Context) //nolint:errcheck

						group, err := m.Migrate(c.Context)
						if err != nil {
							return err
						}
						if group.IsZero() {
							fmt.Fprintln(c.App.Writer, "No new ranking migrations to run")
						} else {
							fmt.Fprintf(c.App.Writer, "Migrated ranking to %s\n", group)
						}

						logger := observability.NewLogger(observability.LogConfig{Level: "info", Format: "text"}, "rankingctl")
						return rankingqueue.Migrate(c.Context, cfg.Postgres.DSN, logger)
					})
				},
			},
			{
				Name:  "rollback",
				Usage: "rollback the last migration group",
				Action: func(c *cli.Context) error {
					return withMigrator(c, func(m *migrate.Migrator, _ *config.Config) error {
						group, err := m.Rollback(c.Context)
						if err != nil {
							return err
						}
						if group.IsZero() {
							fmt.Fprintln(c.App.Writer, "No groups to roll back")
						} else {
							fmt.Fprintf(c.App.Writer, "Rolled back %s\n", group)
						}
						return nil
					})
				},
			},
			{
				Name:  "create_go",
				Usage: "create Go migration",
				Action: func(c *cli.Context) error {
					return withMigrator(c, func(m *migrate.Migrator, _ *config.Config) error {
						name := strings.Join(c.Args().Slice(), "_")
						mf, err := m.CreateGoMigration(c.Context, name)
						if err != nil {
							return err
						}
						fmt.Fprintf(c.App.Writer, "Created migration %s (%s)\n", mf.Name, mf.Path)
						return nil
					})
				},
			},
			{
				Name:  "status",
				Usage: "print migrations status",
				Action: func(c *cli.Context) error {
					return withMigrator(c, func(m *migrate.Migrator, _ *config.Config) error {
						ms, err := m.MigrationsWithStatus(c.Context)
						if err != nil {
							return err
						}
						fmt.Fprintf(c.App.Writer, "  %s\n", ms)
						fmt.Fprintf(c.App.Writer, "  Applied: %s\n", ms.Applied())
						fmt.Fprintf(c.App.Writer, "  Unapplied: %s\n", ms.Unapplied())
						return nil
					})
				},
			},
		},
	}
}
