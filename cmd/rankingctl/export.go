package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	rankingreport "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/infrastructure/report"
)

func newExportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "write an evaluated week to an .xlsx workbook",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "week", Usage: "week key, e.g. 2026-41", Required: true},
			&cli.StringFlag{Name: "out", Usage: "output file, defaults to ranking-<week>.xlsx"},
		},
		Action: func(c *cli.Context) error {
			return withEnv(c, func(ctx context.Context, e *env) error {
				week, err := e.service.GetWeek(ctx, c.String("week"))
				if err != nil {
					return err
				}
				report, err := e.service.GetWeekReport(ctx, week.ID)
				if err != nil {
					return err
				}

				path := c.String("out")
				if path == "" {
					path = fmt.Sprintf("ranking-%s.xlsx", week.Key)
				}
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				if err := rankingreport.WriteWorkbook(f, report); err != nil {
					f.Close()
					return err
				}
				if err := f.Close(); err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "Wrote %s\n", path)
				return nil
			})
		},
	}
}
