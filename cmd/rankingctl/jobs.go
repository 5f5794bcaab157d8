package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
)

func newJobsCommand() *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "ranking jobs on the River queue",
		Subcommands: []*cli.Command{
			{
				Name:  "enqueue",
				Usage: "ask the workers to evaluate the due week now",
				Action: func(c *cli.Context) error {
					return withEnv(c, func(ctx context.Context, e *env) error {
						queue, err := e.module.NewQueue(ctx)
						if err != nil {
							return err
						}
						defer queue.Close()

						id, err := queue.EnqueueEvaluation(ctx, "manual")
						if err != nil {
							return err
						}
						fmt.Fprintf(c.App.Writer, "Enqueued job %d\n", id)
						return nil
					})
				},
			},
			{
				Name:  "list",
				Usage: "print recent ranking jobs",
				Flags: []cli.Flag{&cli.IntFlag{Name: "limit", Value: 20}},
				Action: func(c *cli.Context) error {
					return withEnv(c, func(ctx context.Context, e *env) error {
						queue, err := e.module.NewQueue(ctx)
						if err != nil {
							return err
						}
						defer queue.Close()

						jobs, err := queue.ListJobs(ctx, c.Int("limit"))
						if err != nil {
							return err
						}
						w := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
						fmt.Fprintln(w, "ID\tKIND\tSTATE\tATTEMPT\tSCHEDULED\tCREATED")
						for _, j := range jobs {
							fmt.Fprintf(w, "%d\t%s\t%s\t%d/%d\t%s\t%s\n",
								j.ID, j.Kind, j.State, j.Attempt, j.MaxAttempts, j.ScheduledAt, j.CreatedAt)
						}
						return w.Flush()
					})
				},
			},
		},
	}
}
