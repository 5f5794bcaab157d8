package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/urfave/cli/v2"

	rankingservice "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/application"
	rankingdomain "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/domain"
)

var weekIDFlag = &cli.Int64Flag{Name: "week", Usage: "week id", Required: true}

func newWeeksCommand() *cli.Command {
	return &cli.Command{
		Name:  "weeks",
		Usage: "inspect and drive the week lifecycle",
		Subcommands: []*cli.Command{
			{
				Name:  "bootstrap",
				Usage: "create the first week",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "starts",
						Value: "now",
						Usage: `start of the first week, e.g. "2026-10-19" or "next monday"`,
					},
				},
				Action: func(c *cli.Context) error {
					return withEnv(c, func(ctx context.Context, e *env) error {
						loc := e.cfg.Location()
						startsAt, err := parseStart(c.String("starts"), time.Now().In(loc), loc)
						if err != nil {
							return err
						}
						view, err := e.service.BootstrapWeek(ctx, startsAt)
						if err != nil {
							return err
						}
						printWeek(c.App.Writer, view, loc)
						return nil
					})
				},
			},
			{
				Name:  "current",
				Usage: "show the OPEN or LOCKED week",
				Action: func(c *cli.Context) error {
					return withEnv(c, func(ctx context.Context, e *env) error {
						view, err := e.service.GetCurrentWeek(ctx)
						if err != nil {
							return err
						}
						printWeek(c.App.Writer, view, e.cfg.Location())
						return nil
					})
				},
			},
			{
				Name:      "show",
				Usage:     "show a week by key",
				ArgsUsage: "YYYY-WW",
				Action: func(c *cli.Context) error {
					return withEnv(c, func(ctx context.Context, e *env) error {
						view, err := e.service.GetWeek(ctx, c.Args().First())
						if err != nil {
							return err
						}
						printWeek(c.App.Writer, view, e.cfg.Location())
						return nil
					})
				},
			},
			{
				Name:  "lock",
				Usage: "lock an OPEN week",
				Flags: []cli.Flag{weekIDFlag},
				Action: func(c *cli.Context) error {
					return withEnv(c, func(ctx context.Context, e *env) error {
						view, err := e.service.LockWeek(ctx, c.Int64("week"))
						if err != nil {
							return err
						}
						printWeek(c.App.Writer, view, e.cfg.Location())
						return nil
					})
				},
			},
			{
				Name:  "evaluate",
				Usage: "evaluate a week, or the due week when --week is omitted",
				Flags: []cli.Flag{
					&cli.Int64Flag{Name: "week", Usage: "week id"},
					&cli.StringFlag{Name: "tier", Usage: "evaluate only this tier of a LOCKED week"},
				},
				Action: func(c *cli.Context) error {
					return withEnv(c, func(ctx context.Context, e *env) error {
						weekID := c.Int64("week")
						if tier := c.String("tier"); tier != "" {
							if weekID == 0 {
								return fmt.Errorf("--tier needs --week")
							}
							outcome, err := e.service.EvaluateTier(ctx, weekID, rankingdomain.TierName(tier))
							if err != nil {
								return err
							}
							printOutcome(c.App.Writer, *outcome)
							return nil
						}

						var (
							report *rankingservice.EvaluationReport
							err    error
						)
						if weekID == 0 {
							report, err = e.service.EvaluateDueWeek(ctx)
						} else {
							report, err = e.service.EvaluateWeek(ctx, weekID)
						}
						if err != nil {
							return err
						}
						printReport(c.App.Writer, report, e.cfg.Location())
						return nil
					})
				},
			},
			{
				Name:  "mark-evaluated",
				Usage: "finish a LOCKED week whose tiers are all evaluated",
				Flags: []cli.Flag{weekIDFlag},
				Action: func(c *cli.Context) error {
					return withEnv(c, func(ctx context.Context, e *env) error {
						view, err := e.service.MarkWeekEvaluated(ctx, c.Int64("week"))
						if err != nil {
							return err
						}
						printWeek(c.App.Writer, view, e.cfg.Location())
						return nil
					})
				},
			},
			{
				Name:  "open-next",
				Usage: "open the week that follows an evaluated week",
				Flags: []cli.Flag{weekIDFlag},
				Action: func(c *cli.Context) error {
					return withEnv(c, func(ctx context.Context, e *env) error {
						view, err := e.service.OpenNextWeek(ctx, c.Int64("week"))
						if err != nil {
							return err
						}
						printWeek(c.App.Writer, view, e.cfg.Location())
						return nil
					})
				},
			},
			{
				Name:  "archive",
				Usage: "archive one week, or every expired week when --week is omitted",
				Flags: []cli.Flag{&cli.Int64Flag{Name: "week", Usage: "week id"}},
				Action: func(c *cli.Context) error {
					return withEnv(c, func(ctx context.Context, e *env) error {
						loc := e.cfg.Location()
						if weekID := c.Int64("week"); weekID != 0 {
							view, err := e.service.ArchiveWeek(ctx, weekID)
							if err != nil {
								return err
							}
							printWeek(c.App.Writer, view, loc)
							return nil
						}
						archived, err := e.service.ArchiveExpiredWeeks(ctx)
						if err != nil {
							return err
						}
						if len(archived) == 0 {
							fmt.Fprintln(c.App.Writer, "No weeks to archive")
						}
						for i := range archived {
							printWeek(c.App.Writer, &archived[i], loc)
						}
						return nil
					})
				},
			},
			{
				Name:  "enroll",
				Usage: "place untiered users on the lowest tier of the OPEN week",
				Action: func(c *cli.Context) error {
					return withEnv(c, func(ctx context.Context, e *env) error {
						n, err := e.service.EnrollUntieredUsers(ctx)
						if err != nil {
							return err
						}
						fmt.Fprintf(c.App.Writer, "Enrolled %d users\n", n)
						return nil
					})
				},
			},
		},
	}
}

func printOutcome(w io.Writer, o rankingservice.TierOutcome) {
	if o.Skipped {
		fmt.Fprintf(w, "  %-9s skipped\n", o.TierName)
		return
	}
	fmt.Fprintf(w, "  %-9s %d users in %d groups: %d promoted, %d maintained, %d demoted, %d rewards\n",
		o.TierName, o.Participants, o.Groups, o.Promoted, o.Maintained, o.Demoted, len(o.Grants))
}

func printReport(w io.Writer, report *rankingservice.EvaluationReport, loc *time.Location) {
	verb := "Evaluated"
	if report.Resumed {
		verb = "Resumed and evaluated"
	}
	fmt.Fprintf(w, "%s week %s (run %s)\n", verb, report.Week.Key, report.RunID)
	for _, o := range report.Tiers {
		printOutcome(w, o)
	}
	if report.NextWeek != nil {
		printWeek(w, report.NextWeek, loc)
	}
}
