package cli

import (
	"context"

	"github.com/google/uuid"
	"github.com/m-mizutani/lethe/pkg/model"
	"github.com/m-mizutani/lethe/pkg/usecase/feedback"
	"github.com/urfave/cli/v3"
)

func memoryIDs(args []string) []model.MemoryID {
	ids := make([]model.MemoryID, 0, len(args))
	for _, a := range args {
		ids = append(ids, model.MemoryID(a))
	}
	return ids
}

func voteCommand(cfg *config) *cli.Command {
	var (
		collection string
		kind       string
	)

	return &cli.Command{
		Name:      "vote",
		Usage:     "Record an upvote or downvote for a memory",
		ArgsUsage: "<memory-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "collection",
				Aliases:     []string{"c"},
				Value:       "learnings",
				Destination: &collection,
			},
			&cli.StringFlag{
				Name:        "kind",
				Aliases:     []string{"k"},
				Usage:       "Vote kind (upvote, downvote)",
				Value:       string(model.VoteUp),
				Destination: &kind,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, cancel := withTimeout(ctx, cfg)
			defer cancel()

			uc, index, err := cfg.newFeedbackUseCase(ctx)
			if err != nil {
				return err
			}
			defer index.Close()

			return uc.Vote(ctx, collection, model.MemoryID(c.Args().First()), model.VoteKind(kind))
		},
	}
}

func citeCommand(cfg *config) *cli.Command {
	var (
		collection string
		runID      string
	)

	return &cli.Command{
		Name:      "cite",
		Usage:     "Record that memories were used as supporting evidence",
		ArgsUsage: "<memory-id>...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "collection",
				Aliases:     []string{"c"},
				Value:       "learnings",
				Destination: &collection,
			},
			&cli.StringFlag{
				Name:        "run-id",
				Aliases:     []string{"r"},
				Usage:       "Agent run the citations belong to",
				Destination: &runID,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, cancel := withTimeout(ctx, cfg)
			defer cancel()

			uc, index, err := cfg.newFeedbackUseCase(ctx)
			if err != nil {
				return err
			}
			defer index.Close()

			if runID == "" {
				runID = uuid.New().String()
			}
			return uc.Cite(ctx, collection, memoryIDs(c.Args().Slice()), runID)
		},
	}
}

func outcomeCommand(cfg *config) *cli.Command {
	var (
		collection string
		runID      string
		outcome    string
	)

	return &cli.Command{
		Name:      "outcome",
		Usage:     "Record a success/failure outcome for cited memories",
		ArgsUsage: "<memory-id>...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "collection",
				Aliases:     []string{"c"},
				Value:       "learnings",
				Destination: &collection,
			},
			&cli.StringFlag{
				Name:        "run-id",
				Aliases:     []string{"r"},
				Usage:       "Agent run the outcome belongs to",
				Destination: &runID,
			},
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

			uc, index, err := cfg.newFeedbackUseCase(ctx)
			if err != nil {
				return err
			}
			defer index.Close()

			if runID == "" {
				runID = uuid.New().String()
			}
			return uc.RecordOutcome(ctx, collection, memoryIDs(c.Args().Slice()), runID, model.Outcome(outcome))
		},
	}
}

func statsCommand(cfg *config) *cli.Command {
	var collection string

	return &cli.Command{
		Name:  "stats",
		Usage: "Show per-collection aggregates",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "collection",
				Aliases:     []string{"c"},
				Usage:       "Restrict to one collection (default: all)",
				Destination: &collection,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, cancel := withTimeout(ctx, cfg)
			defer cancel()

			uc, index, err := cfg.newFeedbackUseCase(ctx)
			if err != nil {
				return err
			}
			defer index.Close()

			stats, err := uc.Stats(ctx, collection)
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
}

func pruneCommand(cfg *config) *cli.Command {
	var (
		collection    string
		minConfidence float64
		minAgeDays    float64
		maxDownvotes  int
	)

	return &cli.Command{
		Name:  "prune",
		Usage: "Delete decayed or rejected memories",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "collection",
				Aliases:     []string{"c"},
				Usage:       "Restrict to one collection (default: all)",
				Destination: &collection,
			},
			&cli.FloatFlag{
				Name:        "min-confidence",
				Usage:       "Delete when decayed confidence falls below this",
				Value:       -1,
				Destination: &minConfidence,
			},
			&cli.FloatFlag{
				Name:        "min-age-days",
				Usage:       "Only confidence-prune memories at least this old",
				Destination: &minAgeDays,
			},
			&cli.IntFlag{
				Name:        "max-downvotes",
				Usage:       "Delete when downvotes exceed this, regardless of age",
				Value:       -1,
				Destination: &maxDownvotes,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, cancel := withTimeout(ctx, cfg)
			defer cancel()

			uc, index, err := cfg.newFeedbackUseCase(ctx)
			if err != nil {
				return err
			}
			defer index.Close()

			opts := &feedback.PruneOptions{Collection: collection}
			if minConfidence >= 0 {
				opts.MinConfidence = &minConfidence
				opts.MinAgeDays = &minAgeDays
			} else if cfg.policy.Prune.MinConfidence != nil {
				opts.MinConfidence = cfg.policy.Prune.MinConfidence
				opts.MinAgeDays = cfg.policy.Prune.MinAgeDays
			}
			if maxDownvotes >= 0 {
				opts.MaxDownvotes = &maxDownvotes
			} else if cfg.policy.Prune.MaxDownvotes != nil {
				opts.MaxDownvotes = cfg.policy.Prune.MaxDownvotes
			}

			result, err := uc.Prune(ctx, opts)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}
