package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/lethe/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	var cfg config

	cmd := &cli.Command{
		Name:  "lethe",
		Usage: "Memory decay and trust scoring service for support agents",
		Flags: globalFlags(&cfg),
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			if err := cfg.load(); err != nil {
				return ctx, err
			}
			logger := logging.New(cfg.logLevel, os.Stderr)
			logging.SetDefault(logger)
			return logging.With(ctx, logger), nil
		},
		Commands: []*cli.Command{
			storeCommand(&cfg),
			getCommand(&cfg),
			findCommand(&cfg),
			validateCommand(&cfg),
			deleteCommand(&cfg),
			voteCommand(&cfg),
			citeCommand(&cfg),
			outcomeCommand(&cfg),
			statsCommand(&cfg),
			pruneCommand(&cfg),
			trustCommand(&cfg),
			serveCommand(&cfg),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}
