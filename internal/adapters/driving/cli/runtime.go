package cli

import (
	"context"
	"errors"
	"fmt"

	cachefile "github.com/custodia-labs/sercha-docs/internal/adapters/driven/cache/file"
	"github.com/custodia-labs/sercha-docs/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sercha-docs/internal/adapters/driven/embedding/ollama"
	"github.com/custodia-labs/sercha-docs/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-docs/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/sercha-docs/internal/connectors/github"
	"github.com/custodia-labs/sercha-docs/internal/connectors/website"
	"github.com/custodia-labs/sercha-docs/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-docs/internal/core/services"
	"github.com/custodia-labs/sercha-docs/internal/normalisers"
	"github.com/custodia-labs/sercha-docs/internal/postprocessors/chunker"
)

// runtimeOptions adjust how a command's runtime is built.
type runtimeOptions struct {
	metrics driven.MetricsRecorder
	rebuild bool
}

// newRuntime builds the runtime for a command. Tests replace it.
var newRuntime = buildRuntime

// resetter is implemented by stores that can drop the whole index.
type resetter interface {
	Reset(ctx context.Context) error
}

// buildRuntime wires the driven adapters selected by cfg.
func buildRuntime(ctx context.Context, cfg *file.Config, opts runtimeOptions) (*services.Runtime, error) {
	store, runs, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	closeStore := func(err error) error {
		return errors.Join(err, store.Close())
	}

	if opts.rebuild {
		r, ok := store.(resetter)
		if !ok {
			return nil, closeStore(fmt.Errorf("store %q cannot be reset", cfg.Backend))
		}
		if err := r.Reset(ctx); err != nil {
			return nil, closeStore(fmt.Errorf("reset index: %w", err))
		}
	}

	caches, err := cachefile.NewProvider(cfg.CacheDir())
	if err != nil {
		return nil, closeStore(err)
	}

	ghClient, err := github.NewClient(ctx, cfg.GitHub.Token,
		github.WithBaseURL(cfg.GitHub.APIURL),
		github.WithTimeout(cfg.Fetch.Timeout()),
	)
	if err != nil {
		return nil, closeStore(fmt.Errorf("github client: %w", err))
	}

	rt, err := services.NewRuntime(
		services.RuntimeConfig{
			Sources:   cfg.Sources,
			Refresh:   cfg.Refresh,
			Embedding: cfg.Embedding,
		},
		services.RuntimeDeps{
			Store:    store,
			Runs:     runs,
			Embedder: ollama.NewEmbeddingService(ollama.ConfigFrom(cfg.Embedding)),
			Fetchers: []driven.Fetcher{
				website.NewFetcher(cfg.Fetch, website.WithCache(caches)),
				github.NewFetcher(ghClient, cfg.Fetch, github.WithCache(caches)),
			},
			Extractor: normalisers.Default(),
			Chunker:   chunker.New(chunker.FromConfig(cfg.Chunking)...),
			Metrics:   opts.metrics,
		},
	)
	if err != nil {
		return nil, closeStore(err)
	}
	return rt, nil
}

func openStore(cfg *file.Config) (driven.VectorStore, driven.RunStore, error) {
	switch cfg.Backend {
	case file.BackendMemory:
		return memory.NewVectorStore(), memory.NewRunStore(), nil
	default:
		store, err := sqlite.NewStore(cfg.IndexDir())
		if err != nil {
			return nil, nil, fmt.Errorf("open index: %w", err)
		}
		return store, store.RunStore(), nil
	}
}
