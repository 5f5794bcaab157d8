package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	rankingservice "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/application"
	rankingdomain "github.com/pcwadarong/web21-funda-sub001/app/modules/ranking/domain"
)

var tierFlag = &cli.StringFlag{Name: "tier", Usage: "tier name, e.g. GOLD", Required: true}

func newTiersCommand() *cli.Command {
	return &cli.Command{
		Name:  "tiers",
		Usage: "inspect and configure the tier ladder",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "print the ladder",
				Action: func(c *cli.Context) error {
					return withEnv(c, func(ctx context.Context, e *env) error {
						tiers, err := e.service.GetLadder(ctx)
						if err != nil {
							return err
						}
						return printLadder(c.App.Writer, tiers)
					})
				},
			},
			{
				Name:  "set-rule",
				Usage: "replace the promotion and demotion rule of a tier",
				Flags: []cli.Flag{
					tierFlag,
					&cli.Int64Flag{Name: "promote-min-xp"},
					&cli.Int64Flag{Name: "demote-min-xp"},
					&cli.StringFlag{Name: "promote-ratio", Value: "0"},
					&cli.StringFlag{Name: "demote-ratio", Value: "0"},
					&cli.BoolFlag{Name: "master", Usage: "top tier: nobody is promoted"},
				},
				Action: func(c *cli.Context) error {
					promote, err := decimal.NewFromString(c.String("promote-ratio"))
					if err != nil {
						return fmt.Errorf("invalid --promote-ratio: %w", err)
					}
					demote, err := decimal.NewFromString(c.String("demote-ratio"))
					if err != nil {
						return fmt.Errorf("invalid --demote-ratio: %w", err)
					}
					return withEnv(c, func(ctx context.Context, e *env) error {
						view, err := e.service.UpdateTierRule(ctx, rankingservice.TierRuleUpdate{
							TierName:     tierName(c.String("tier")),
							PromoteMinXP: c.Int64("promote-min-xp"),
							DemoteMinXP:  c.Int64("demote-min-xp"),
							PromoteRatio: promote,
							DemoteRatio:  demote,
							IsMaster:     c.Bool("master"),
						})
						if err != nil {
							return err
						}
						return printLadder(c.App.Writer, []rankingservice.TierView{*view})
					})
				},
			},
			{
				Name:  "set-capacity",
				Usage: "change the group size of a tier",
				Flags: []cli.Flag{
					tierFlag,
					&cli.IntFlag{Name: "size", Required: true},
				},
				Action: func(c *cli.Context) error {
					return withEnv(c, func(ctx context.Context, e *env) error {
						view, err := e.service.UpdateTierCapacity(ctx, tierName(c.String("tier")), c.Int("size"))
						if err != nil {
							return err
						}
						return printLadder(c.App.Writer, []rankingservice.TierView{*view})
					})
				},
			},
			{
				Name:  "set-reward",
				Usage: "set the reward for a tier and status; 0 disables it",
				Flags: []cli.Flag{
					tierFlag,
					&cli.StringFlag{Name: "status", Value: string(rankingdomain.StatusPromoted)},
					&cli.StringFlag{Name: "type", Value: string(rankingdomain.RewardDiamond)},
					&cli.StringFlag{Name: "amount", Required: true},
				},
				Action: func(c *cli.Context) error {
					amount, err := decimal.NewFromString(c.String("amount"))
					if err != nil {
						return fmt.Errorf("invalid --amount: %w", err)
					}
					return withEnv(c, func(ctx context.Context, e *env) error {
						tiers, err := e.service.GetLadder(ctx)
						if err != nil {
							return err
						}
						name := tierName(c.String("tier"))
						var tierID int64
						for _, t := range tiers {
							if t.Name == name {
								tierID = t.ID
							}
						}
						if tierID == 0 {
							return fmt.Errorf("unknown tier %q", name)
						}
						err = e.service.SetRewardRule(ctx, rankingdomain.RewardRule{
							TierID:     tierID,
							Status:     rankingdomain.Status(strings.ToUpper(c.String("status"))),
							RewardType: rankingdomain.RewardType(strings.ToUpper(c.String("type"))),
							Amount:     amount,
						})
						if err != nil {
							return err
						}
						fmt.Fprintf(c.App.Writer, "Reward for %s %s set to %s %s\n",
							name, strings.ToUpper(c.String("status")), amount, strings.ToUpper(c.String("type")))
						return nil
					})
				},
			},
		},
	}
}

func tierName(s string) rankingdomain.TierName {
	return rankingdomain.TierName(strings.ToUpper(strings.TrimSpace(s)))
}

func printLadder(out io.Writer, tiers []rankingservice.TierView) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ORDER\tTIER\tGROUP SIZE\tPROMOTE RATIO\tPROMOTE MIN XP\tDEMOTE RATIO\tDEMOTE MIN XP\tMASTER")
	for _, t := range tiers {
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%d\t%s\t%d\t%t\n",
			t.OrderIndex, t.Name, t.MaxGroupSize,
			t.Rule.PromoteRatio, t.Rule.PromoteMinXP,
			t.Rule.DemoteRatio, t.Rule.DemoteMinXP,
			t.Rule.IsMaster)
	}
	return w.Flush()
}
