package cli

import (
	"context"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/lethe/pkg/adapter"
	"github.com/m-mizutani/lethe/pkg/decay"
	"github.com/m-mizutani/lethe/pkg/model"
	"github.com/m-mizutani/lethe/pkg/repository"
	"github.com/m-mizutani/lethe/pkg/usecase/feedback"
	"github.com/m-mizutani/lethe/pkg/usecase/memory"
	"github.com/m-mizutani/lethe/pkg/usecase/trust"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// config holds configuration values
type config struct {
	// Stores
	project  string
	database string
	local    bool

	// Embedding
	geminiLocation string
	embeddingModel string

	// Optional collaborators
	bigqueryDataset string
	bigqueryTable   string
	archiveBucket   string
	policyDir       string

	// Policy file + runtime
	policyFile string
	timeout    time.Duration
	logLevel   string

	policy policyFile
}

// policyFile is the optional YAML file tuning decay, prune, and gating.
type policyFile struct {
	Decay struct {
		HalfLifeDays       float64 `yaml:"half_life_days"`
		CitationSaturation int     `yaml:"citation_saturation"`
	} `yaml:"decay"`
	Prune struct {
		MinConfidence *float64 `yaml:"min_confidence"`
		MinAgeDays    *float64 `yaml:"min_age_days"`
		MaxDownvotes  *int     `yaml:"max_downvotes"`
	} `yaml:"prune"`
	Trust struct {
		Threshold    float64 `yaml:"threshold"`
		MinSamples   int     `yaml:"min_samples"`
		HalfLifeDays float64 `yaml:"half_life_days"`
	} `yaml:"trust"`
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("FIRESTORE_DATABASE_ID"),
			Destination: &cfg.database,
		},
		&cli.BoolFlag{
			Name:        "local",
			Usage:       "Use the in-process index and trust store instead of Firestore",
			Sources:     cli.EnvVars("LETHE_LOCAL"),
			Destination: &cfg.local,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for the embedding model",
			Value:       "us-central1",
			Sources:     cli.EnvVars("GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "embedding-model",
			Usage:       "Embedding model name",
			Sources:     cli.EnvVars("LETHE_EMBEDDING_MODEL"),
			Destination: &cfg.embeddingModel,
		},
		&cli.StringFlag{
			Name:        "bigquery-dataset",
			Usage:       "BigQuery dataset receiving feedback events (disabled when empty)",
			Sources:     cli.EnvVars("LETHE_BIGQUERY_DATASET"),
			Destination: &cfg.bigqueryDataset,
		},
		&cli.StringFlag{
			Name:        "bigquery-table",
			Usage:       "BigQuery table receiving feedback events",
			Value:       "feedback_events",
			Sources:     cli.EnvVars("LETHE_BIGQUERY_TABLE"),
			Destination: &cfg.bigqueryTable,
		},
		&cli.StringFlag{
			Name:        "archive-bucket",
			Usage:       "Cloud Storage bucket archiving pruned memories (disabled when empty)",
			Sources:     cli.EnvVars("LETHE_ARCHIVE_BUCKET"),
			Destination: &cfg.archiveBucket,
		},
		&cli.StringFlag{
			Name:        "approval-policy-dir",
			Usage:       "Directory of Rego files overriding the approval policy",
			Sources:     cli.EnvVars("LETHE_APPROVAL_POLICY_DIR"),
			Destination: &cfg.policyDir,
		},
		&cli.StringFlag{
			Name:        "policy-file",
			Usage:       "YAML file tuning decay, prune, and trust gating",
			Sources:     cli.EnvVars("LETHE_POLICY_FILE"),
			Destination: &cfg.policyFile,
		},
		&cli.DurationFlag{
			Name:        "timeout",
			Usage:       "Deadline applied to every external store call",
			Value:       30 * time.Second,
			Sources:     cli.EnvVars("LETHE_TIMEOUT"),
			Destination: &cfg.timeout,
		},
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("LETHE_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
	}
}

// load parses the optional policy file.
func (cfg *config) load() error {
	if cfg.policyFile == "" {
		return nil
	}

	data, err := os.ReadFile(cfg.policyFile)
	if err != nil {
		return goerr.Wrap(err, "failed to read policy file", goerr.V("path", cfg.policyFile))
	}
	if err := yaml.Unmarshal(data, &cfg.policy); err != nil {
		return goerr.Wrap(err, "failed to parse policy file", goerr.V("path", cfg.policyFile))
	}
	return nil
}

func (cfg *config) decayParams() decay.Params {
	return decay.Params{
		HalfLifeDays:       cfg.policy.Decay.HalfLifeDays,
		CitationSaturation: cfg.policy.Decay.CitationSaturation,
	}
}

// newIndex creates the vector index. The returned repository must be closed
// by the caller.
func (cfg *config) newIndex(ctx context.Context) (repository.VectorIndex, error) {
	if cfg.local {
		return repository.NewChromem(), nil
	}

	if cfg.project == "" {
		return nil, goerr.New("project is required", goerr.T(model.TagValidation))
	}
	return repository.NewFirestore(ctx, cfg.project, cfg.database)
}

// newTrustStore creates the durable counter store for trust rows.
func (cfg *config) newTrustStore(ctx context.Context) (repository.TrustStore, error) {
	if cfg.local {
		return repository.NewMemoryTrustStore(), nil
	}

	if cfg.project == "" {
		return nil, goerr.New("project is required", goerr.T(model.TagValidation))
	}
	repo, err := repository.NewFirestore(ctx, cfg.project, cfg.database)
	if err != nil {
		return nil, err
	}
	return repo.TrustStore(), nil
}

// newEmbedder creates the embedding client with an in-process cache.
func (cfg *config) newEmbedder(ctx context.Context) (adapter.Embedder, error) {
	if cfg.project == "" {
		return nil, goerr.New("project is required for embedding", goerr.T(model.TagValidation))
	}

	var opts []adapter.GeminiOption
	if cfg.embeddingModel != "" {
		opts = append(opts, adapter.WithEmbeddingModel(cfg.embeddingModel))
	}
	gemini, err := adapter.NewGeminiEmbedder(ctx, cfg.project, cfg.geminiLocation, opts...)
	if err != nil {
		return nil, err
	}

	return adapter.NewCachedEmbedder(gemini)
}

// newMemoryUseCase wires the memory service.
func (cfg *config) newMemoryUseCase(ctx context.Context) (*memory.UseCase, repository.VectorIndex, error) {
	index, err := cfg.newIndex(ctx)
	if err != nil {
		return nil, nil, err
	}
	embedder, err := cfg.newEmbedder(ctx)
	if err != nil {
		_ = index.Close()
		return nil, nil, err
	}

	return memory.New(index, embedder, memory.WithDecayParams(cfg.decayParams())), index, nil
}

// newFeedbackUseCase wires the voting & citation service with its optional
// collaborators.
func (cfg *config) newFeedbackUseCase(ctx context.Context) (*feedback.UseCase, repository.VectorIndex, error) {
	index, err := cfg.newIndex(ctx)
	if err != nil {
		return nil, nil, err
	}

	opts := []feedback.Option{feedback.WithDecayParams(cfg.decayParams())}
	if cfg.bigqueryDataset != "" {
		sink, err := adapter.NewBigQuerySink(ctx, cfg.project, cfg.bigqueryDataset, cfg.bigqueryTable)
		if err != nil {
			_ = index.Close()
			return nil, nil, err
		}
		opts = append(opts, feedback.WithSink(sink))
	}
	if cfg.archiveBucket != "" {
		archive, err := adapter.NewStorageArchive(ctx, cfg.archiveBucket)
		if err != nil {
			_ = index.Close()
			return nil, nil, err
		}
		opts = append(opts, feedback.WithArchive(archive))
	}

	return feedback.New(index, opts...), index, nil
}

// newTrustUseCase wires the trust scoring service and its approval gate.
func (cfg *config) newTrustUseCase(ctx context.Context) (*trust.UseCase, repository.TrustStore, error) {
	store, err := cfg.newTrustStore(ctx)
	if err != nil {
		return nil, nil, err
	}

	gate, err := trust.NewGate(ctx, cfg.policyDir)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	opts := []trust.Option{trust.WithGate(gate)}
	if cfg.policy.Trust.Threshold > 0 || cfg.policy.Trust.MinSamples > 0 {
		gateCfg := trust.DefaultGateConfig()
		if cfg.policy.Trust.Threshold > 0 {
			gateCfg.Threshold = cfg.policy.Trust.Threshold
		}
		if cfg.policy.Trust.MinSamples > 0 {
			gateCfg.MinSamples = cfg.policy.Trust.MinSamples
		}
		opts = append(opts, trust.WithGateConfig(gateCfg))
	}
	if cfg.policy.Trust.HalfLifeDays > 0 {
		opts = append(opts, trust.WithHalfLife(cfg.policy.Trust.HalfLifeDays))
	}

	return trust.New(store, opts...), store, nil
}
