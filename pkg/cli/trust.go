package cli

import (
	"context"

	"github.com/m-mizutani/lethe/pkg/model"
	"github.com/urfave/cli/v3"
)

func trustCommand(cfg *config) *cli.Command {
	return &cli.Command{
		Name:  "trust",
		Usage: "Inspect and update per-(app, category) trust scores",
		Commands: []*cli.Command{
			trustUpdateCommand(cfg),
			trustGetCommand(cfg),
			trustCheckCommand(cfg),
		},
	}
}

func trustUpdateCommand(cfg *config) *cli.Command {
	var outcome string

	return &cli.Command{
		Name:      "update",
		Usage:     "Fold one outcome into a trust score",
		ArgsUsage: "<app> <category>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "result",
				Usage:       "Outcome (success, failure)",
				Value:       string(model.OutcomeSuccess),
				Destination: &outcome,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, cancel := withTimeout(ctx, cfg)
			defer cancel()

			uc, store, err := cfg.newTrustUseCase(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			row, err := uc.Update(ctx, c.Args().Get(0), c.Args().Get(1), model.Outcome(outcome))
			if err != nil {
				return err
			}
			return printJSON(row)
		},
	}
}

func trustGetCommand(cfg *config) *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Show the decayed trust score for an (app, category) pair",
		ArgsUsage: "<app> <category>",
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, cancel := withTimeout(ctx, cfg)
			defer cancel()

			uc, store, err := cfg.newTrustUseCase(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			eval, err := uc.Get(ctx, c.Args().Get(0), c.Args().Get(1))
			if err != nil {
				return err
			}
			return printJSON(eval)
		},
	}
}

func trustCheckCommand(cfg *config) *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Decide whether an action may proceed without human approval",
		ArgsUsage: "<app> <category>",
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, cancel := withTimeout(ctx, cfg)
			defer cancel()

			uc, store, err := cfg.newTrustUseCase(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			allowed, err := uc.Allow(ctx, c.Args().Get(0), c.Args().Get(1))
			if err != nil {
				return err
			}
			return printJSON(map[string]bool{"allowed": allowed})
		},
	}
}
