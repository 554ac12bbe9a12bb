package cli

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/lethe/pkg/service/mcpserver"
	"github.com/m-mizutani/lethe/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func serveCommand(cfg *config) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run an MCP server over stdio exposing memory and trust tools",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			memoryUC, index, err := cfg.newMemoryUseCase(ctx)
			if err != nil {
				return err
			}
			defer index.Close()

			feedbackUC, feedbackIndex, err := cfg.newFeedbackUseCase(ctx)
			if err != nil {
				return err
			}
			defer feedbackIndex.Close()

			trustUC, trustStore, err := cfg.newTrustUseCase(ctx)
			if err != nil {
				return err
			}
			defer trustStore.Close()

			logging.From(ctx).Info("starting MCP server",
				slog.Bool("local", cfg.local),
				slog.String("project", cfg.project),
			)

			server := mcpserver.New(memoryUC, feedbackUC, trustUC)
			return server.Run(ctx)
		},
	}
}
