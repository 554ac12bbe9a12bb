package cli

import (
	"context"
	"encoding/json"
	"os"

	"github.com/m-mizutani/lethe/pkg/model"
	"github.com/m-mizutani/lethe/pkg/usecase/memory"
	"github.com/urfave/cli/v3"
)

func withTimeout(ctx context.Context, cfg *config) (context.Context, context.CancelFunc) {
	if cfg.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, cfg.timeout)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func storeCommand(cfg *config) *cli.Command {
	var (
		collection string
		source     string
		tags       []string
		confidence float64
		appSlug    string
	)

	return &cli.Command{
		Name:      "store",
		Usage:     "Store a new memory",
		ArgsUsage: "<content>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "collection",
				Aliases:     []string{"c"},
				Usage:       "Memory collection (namespace)",
				Value:       "learnings",
				Destination: &collection,
			},
			&cli.StringFlag{
				Name:        "source",
				Aliases:     []string{"s"},
				Usage:       "Memory source (agent, human, system)",
				Value:       string(model.SourceHuman),
				Destination: &source,
			},
			&cli.StringSliceFlag{
				Name:        "tag",
				Aliases:     []string{"t"},
				Usage:       "Free-text label, repeatable",
				Destination: &tags,
			},
			&cli.FloatFlag{
				Name:        "confidence",
				Usage:       "Author-asserted prior confidence in [0,1]",
				Value:       1,
				Destination: &confidence,
			},
			&cli.StringFlag{
				Name:        "app",
				Usage:       "Application slug",
				Destination: &appSlug,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, cancel := withTimeout(ctx, cfg)
			defer cancel()

			uc, index, err := cfg.newMemoryUseCase(ctx)
			if err != nil {
				return err
			}
			defer index.Close()

			mem, err := uc.Store(ctx, &memory.StoreInput{
				Content:    c.Args().First(),
				Collection: collection,
				Source:     model.Source(source),
				Tags:       tags,
				Confidence: &confidence,
				AppSlug:    appSlug,
			})
			if err != nil {
				return err
			}
			return printJSON(mem)
		},
	}
}

func getCommand(cfg *config) *cli.Command {
	var collection string

	return &cli.Command{
		Name:      "get",
		Usage:     "Show a memory by ID",
		ArgsUsage: "<memory-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "collection",
				Aliases:     []string{"c"},
				Value:       "learnings",
				Destination: &collection,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, cancel := withTimeout(ctx, cfg)
			defer cancel()

			index, err := cfg.newIndex(ctx)
			if err != nil {
				return err
			}
			defer index.Close()

			mem, err := index.Get(ctx, collection, model.MemoryID(c.Args().First()))
			if err != nil {
				return err
			}
			return printJSON(mem)
		},
	}
}

func findCommand(cfg *config) *cli.Command {
	var (
		collection string
		limit      int
		threshold  float64
		appSlug    string
	)

	return &cli.Command{
		Name:      "find",
		Usage:     "Search memories by semantic similarity, re-ranked by decayed confidence",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "collection",
				Aliases:     []string{"c"},
				Value:       "learnings",
				Destination: &collection,
			},
			&cli.IntFlag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Value:       10,
				Destination: &limit,
			},
			&cli.FloatFlag{
				Name:        "threshold",
				Usage:       "Drop results scoring below this",
				Destination: &threshold,
			},
			&cli.StringFlag{
				Name:        "app",
				Usage:       "Filter by application slug",
				Destination: &appSlug,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, cancel := withTimeout(ctx, cfg)
			defer cancel()

			uc, index, err := cfg.newMemoryUseCase(ctx)
			if err != nil {
				return err
			}
			defer index.Close()

			results, err := uc.Find(ctx, &memory.FindInput{
				Query:      c.Args().First(),
				Collection: collection,
				Limit:      limit,
				Threshold:  threshold,
				AppSlug:    appSlug,
			})
			if err != nil {
				return err
			}
			return printJSON(results)
		},
	}
}

func validateCommand(cfg *config) *cli.Command {
	var collection string

	return &cli.Command{
		Name:      "validate",
		Usage:     "Mark a memory as still valid, resetting its decay age",
		ArgsUsage: "<memory-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "collection",
				Aliases:     []string{"c"},
				Value:       "learnings",
				Destination: &collection,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, cancel := withTimeout(ctx, cfg)
			defer cancel()

			index, err := cfg.newIndex(ctx)
			if err != nil {
				return err
			}
			defer index.Close()

			// Validate and delete never embed, so no embedder is wired.
			uc := memory.New(index, nil, memory.WithDecayParams(cfg.decayParams()))
			mem, err := uc.Validate(ctx, collection, model.MemoryID(c.Args().First()))
			if err != nil {
				return err
			}
			return printJSON(mem)
		},
	}
}

func deleteCommand(cfg *config) *cli.Command {
	var collection string

	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete a memory permanently",
		ArgsUsage: "<memory-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "collection",
				Aliases:     []string{"c"},
				Value:       "learnings",
				Destination: &collection,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, cancel := withTimeout(ctx, cfg)
			defer cancel()

			index, err := cfg.newIndex(ctx)
			if err != nil {
				return err
			}
			defer index.Close()

			uc := memory.New(index, nil, memory.WithDecayParams(cfg.decayParams()))
			return uc.Delete(ctx, collection, model.MemoryID(c.Args().First()))
		},
	}
}
