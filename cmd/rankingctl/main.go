package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/uptrace/bun"
	"github.com/urfave/cli/v2"

	"github.com/pcwadarong/web21-funda-sub001/app/modules/ranking"
	rankingservice "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/application"
	"github.com/pcwadarong/web21-funda-sub001/config"
	"github.com/pcwadarong/web21-funda-sub001/db/bundb"
	"github.com/pcwadarong/web21-funda-sub001/internal/observability"
)

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:   "rankingctl",
		Usage:  "operate the weekly ranking engine",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "path to the configuration file",
				EnvVars: []string{"RANKING_CONFIG"},
			},
		},
		Commands: []*cli.Command{
			newMigrateCommand(),
			newWeeksCommand(),
			newTiersCommand(),
			newUsersCommand(),
			newJobsCommand(),
			newExportCommand(),
		},
	}
}

// env is what a command needs to talk to the database.
type env struct {
	cfg     *config.Config
	obs     *observability.Observability
	db      *bun.DB
	module  *ranking.Module
	service rankingservice.Service
}

// withEnv loads the configuration, connects and builds the ranking module
// for the duration of fn.
func withEnv(c *cli.Context, fn func(ctx context.Context, e *env) error) error {
	ctx := c.Context
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	obs, err := observability.Init(ctx, observability.Config{
		ServiceName: "rankingctl",
		Log:         observability.LogConfig{Level: "warn", Format: "text"},
	})
	if err != nil {
		return err
	}

	db, err := bundb.Open(ctx, cfg.Postgres.DSN, obs.Logger, bundb.Options{MaxOpenConns: 4})
	if err != nil {
		return err
	}
	defer db.Close()

	module, err := ranking.NewRankingModule(ctx, cfg, obs, db)
	if err != nil {
		return err
	}
	defer module.Close(10 * time.Second)

	return fn(ctx, &env{cfg: cfg, obs: obs, db: db, module: module, service: module.RankingService})
}

func formatTime(t *time.Time, loc *time.Location) string {
	if t == nil {
		return "-"
	}
	return t.In(loc).Format("2006-01-02 15:04")
}

func printWeek(w io.Writer, view *rankingservice.WeekView, loc *time.Location) {
	fmt.Fprintf(w, "week %s (id %d) %s\n", view.Key, view.ID, view.Status)
	fmt.Fprintf(w, "  starts    %s\n", view.StartsAt.In(loc).Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "  ends      %s\n", view.EndsAt.In(loc).Format("2006-01-02 15:04"))
	fmt.Fprintf(w, "  evaluated %s\n", formatTime(view.EvaluatedAt, loc))
}
