package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	rankingservice "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/application"
)

var userIDFlag = &cli.Int64Flag{Name: "user", Usage: "user id", Required: true}

func newUsersCommand() *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "look at one user's ranking",
		Subcommands: []*cli.Command{
			{
				Name:  "board",
				Usage: "print the user's group leaderboard for a week",
				Flags: []cli.Flag{userIDFlag, &cli.Int64Flag{Name: "week", Usage: "week id, defaults to the current week"}},
				Action: func(c *cli.Context) error {
					return withEnv(c, func(ctx context.Context, e *env) error {
						weekID := c.Int64("week")
						if weekID == 0 {
							current, err := e.service.GetCurrentWeek(ctx)
							if err != nil {
								return err
							}
							weekID = current.ID
						}
						board, err := e.service.GetGroupLeaderboard(ctx, weekID, c.Int64("user"))
						if err != nil {
							return err
						}
						return printBoard(c.App.Writer, board, c.Int64("user"))
					})
				},
			},
			{
				Name:  "history",
				Usage: "print the user's snapshots, tier changes and rewards",
				Flags: []cli.Flag{userIDFlag, &cli.IntFlag{Name: "limit", Value: 10}},
				Action: func(c *cli.Context) error {
					return withEnv(c, func(ctx context.Context, e *env) error {
						userID, limit := c.Int64("user"), c.Int("limit")
						snapshots, err := e.service.GetUserSnapshots(ctx, userID, limit)
						if err != nil {
							return err
						}
						changes, err := e.service.GetTierHistory(ctx, userID, limit)
						if err != nil {
							return err
						}
						rewards, err := e.service.GetRewardHistory(ctx, userID, limit)
						if err != nil {
							return err
						}
						return printHistory(c.App.Writer, snapshots, changes, rewards)
					})
				},
			},
		},
	}
}

func optionalXP(v *int64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}

func optionalTier(v *int64) string {
	if v == nil {
		return "none"
	}
	return fmt.Sprint(*v)
}

func printBoard(out io.Writer, board *rankingservice.GroupLeaderboard, me int64) error {
	state := "projected"
	if board.Final {
		state = "final"
	}
	fmt.Fprintf(out, "%s week %s, %s, promote at %s xp, demote below %s xp\n",
		state, board.Week.Key, board.TierName, optionalXP(board.PromoteCutXP), optionalXP(board.DemoteCutXP))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tUSER\tXP\tZONE\t")
	for _, e := range board.Entries {
		marker := ""
		if e.UserID == me {
			marker = "<"
		}
		fmt.Fprintf(w, "%d\t%d\t%d\t%s\t%s\n", e.Rank, e.UserID, e.XP, e.Zone, marker)
	}
	return w.Flush()
}

func printHistory(out io.Writer, snapshots []rankingservice.SnapshotView, changes []rankingservice.TierChangeView, rewards []rankingservice.RewardView) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WEEK\tTIER\tGROUP\tRANK\tXP\tSTATUS")
	for _, s := range snapshots {
		fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%s\n", s.WeekID, s.TierID, s.GroupID, s.Rank, s.XP, s.Status)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "WEEK\tFROM\tTO\tREASON")
	for _, c := range changes {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.WeekID, optionalTier(c.FromTierID), optionalTier(c.ToTierID), c.Reason)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "WEEK\tTIER\tREWARD\tAMOUNT")
	for _, r := range rewards {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", r.WeekID, r.TierID, r.RewardType, r.Amount)
	}
	return w.Flush()
}
