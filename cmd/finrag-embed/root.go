package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kailas-cloud/finrag/internal/app"
	"github.com/kailas-cloud/finrag/internal/config"
	"github.com/kailas-cloud/finrag/internal/domain"
	logpkg "github.com/kailas-cloud/finrag/internal/logger"
	"github.com/kailas-cloud/finrag/internal/metrics"
	"github.com/kailas-cloud/finrag/internal/usecase/pipeline"
	"github.com/kailas-cloud/finrag/internal/version"
)

// runner is the part of the pipeline the commands drive.
type runner interface {
	RunFull(ctx context.Context, entity string) (pipeline.Report, error)
	RunIncremental(ctx context.Context, entity string, since time.Time) (pipeline.Report, error)
	Status(ctx context.Context, entity string) (domain.EmbeddingStatus, error)
}

// options are the persistent flags shared by every subcommand.
type options struct {
	configPath string
	env        string
	logLevel   string
}

// overrides adjust the loaded pipeline config from per-command flags.
type overrides struct {
	pageSize    int
	concurrency int
}

// opener builds a runner and returns a cleanup func.
type opener func(ctx context.Context, opts options, ov overrides) (runner, func(), error)

func newRootCmd(open opener) *cobra.Command {
	opts := options{}

	root := &cobra.Command{
		Use:   "finrag-embed",
		Short: "Manage transaction embeddings",
		Long: `finrag-embed generates the five per-transaction embeddings used by
similarity search and reports progress per entity.

Example usage:
  finrag-embed run --entity acme                     # embed every incomplete record
  finrag-embed run --entity acme --since 2025-01-01  # only records dated since then
  finrag-embed status --entity acme                  # count missing embeddings`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default: config/<env>.yaml)")
	root.PersistentFlags().StringVar(&opts.env, "env", config.GetEnv(), "environment name")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log level")

	root.AddCommand(newRunCmd(&opts, open), newStatusCmd(&opts, open))
	return root
}

// openPipeline loads config, connects the backends and returns the pipeline.
func openPipeline(ctx context.Context, opts options, ov overrides) (runner, func(), error) {
	var (
		cfg config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFile(opts.configPath)
	} else {
		cfg, err = config.Load(opts.env)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if ov.pageSize > 0 {
		cfg.Pipeline.PageSize = ov.pageSize
	}
	if ov.concurrency > 0 {
		cfg.Pipeline.SmallConcurrency = ov.concurrency
		cfg.Pipeline.LargeConcurrency = ov.concurrency
	}

	level := cfg.Logging.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logger, err := logpkg.NewLogger(opts.env, level)
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterPipelineMetrics()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	logger.Debug("Pipeline ready", zap.String("version", version.Version))

	return a.Pipeline, func() {
		a.Close()
		_ = logger.Sync()
	}, nil
}
