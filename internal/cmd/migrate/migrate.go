package migrate

import (
	"context"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"github.com/recallhq/recall-service/internal/config"
	registrymigrate "github.com/recallhq/recall-service/internal/registry/migrate"

	// Import plugins to trigger init() registration of their migrators.
	_ "github.com/recallhq/recall-service/internal/plugin/longterm/pgvector"
	_ "github.com/recallhq/recall-service/internal/plugin/longterm/qdrant"
)

// Command returns the migrate sub-command.
func Command() *cli.Command {
	cfg := config.DefaultConfig()
	return &cli.Command{
		Name:  "migrate",
		Usage: "Run long-term store schema/collection setup",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "long-term-kind",
				Sources:     cli.EnvVars("RECALL_SERVICE_LONG_TERM_KIND"),
				Destination: &cfg.LongTermType,
				Value:       cfg.LongTermType,
				Usage:       "Long-term store backend (qdrant|pgvector|chromem)",
			},
			&cli.StringFlag{
				Name:        "db-url",
				Sources:     cli.EnvVars("RECALL_SERVICE_DB_URL"),
				Destination: &cfg.DBURL,
				Usage:       "Postgres connection URL for the pgvector backend",
			},
			&cli.StringFlag{
				Name:        "qdrant-host",
				Sources:     cli.EnvVars("RECALL_SERVICE_QDRANT_HOST"),
				Destination: &cfg.QdrantHost,
				Value:       cfg.QdrantHost,
				Usage:       "Qdrant host",
			},
			&cli.IntFlag{
				Name:        "qdrant-port",
				Sources:     cli.EnvVars("RECALL_SERVICE_QDRANT_PORT"),
				Destination: &cfg.QdrantPort,
				Value:       cfg.QdrantPort,
				Usage:       "Qdrant gRPC port",
			},
			&cli.IntFlag{
				Name:        "openai-dimensions",
				Sources:     cli.EnvVars("RECALL_SERVICE_OPENAI_DIMENSIONS"),
				Destination: &cfg.OpenAIDimensions,
				Usage:       "Embedding dimensions the schema is sized for (0 = model default)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg.LongTermMigrateAtStart = true
			ctx = config.WithContext(ctx, &cfg)

			log.Info("Running migrations...")
			if err := registrymigrate.RunAll(ctx); err != nil {
				return err
			}
			log.Info("All migrations completed successfully")
			return nil
		},
	}
}
