package cmd

import (
	"context"
	"fmt"

	"github.com/tailorforge/tailorbatch/internal/config"
	"github.com/tailorforge/tailorbatch/pkg/artifact"
	artifactfile "github.com/tailorforge/tailorbatch/pkg/artifact/file"
	artifacts3 "github.com/tailorforge/tailorbatch/pkg/artifact/s3"
	"github.com/tailorforge/tailorbatch/pkg/batchstore"
	"github.com/tailorforge/tailorbatch/pkg/pipeline"
)

// buildStore creates the batch store named by the configuration.
func buildStore(ctx context.Context, cfg *config.Config) (batchstore.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return batchstore.NewMemoryStore(), nil
	case "sqlite":
		return batchstore.OpenSQLite(ctx, cfg.Store.Path)
	default:
		return nil, fmt.Errorf("unknown store driver: %s", cfg.Store.Driver)
	}
}

// buildArtifacts creates the artifact store named by the configuration.
func buildArtifacts(ctx context.Context, cfg *config.Config) (artifact.Store, error) {
	switch cfg.Artifacts.Backend {
	case "file":
		return artifactfile.New(artifactfile.Config{BaseDir: cfg.Artifacts.Dir})
	case "s3":
		return artifacts3.New(ctx, artifacts3.Config{
			Bucket:         cfg.Artifacts.Bucket,
			Prefix:         cfg.Artifacts.Prefix,
			Region:         cfg.Artifacts.Region,
			Endpoint:       cfg.Artifacts.Endpoint,
			Profile:        cfg.Artifacts.Profile,
			ForcePathStyle: cfg.Artifacts.ForcePathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown artifacts backend: %s", cfg.Artifacts.Backend)
	}
}

// buildCollaborators assembles the pipeline implementations.
//
// The fetcher is live HTTP; tailoring runs through the built-in
// transformer. local selects in-memory stubs for the fetch step, which
// keeps runs hermetic for development and demos.
func buildCollaborators(cfg *config.Config, local bool) pipeline.Collaborators {
	var fetcher pipeline.Fetcher
	if local {
		fetcher = &pipeline.StubFetcher{}
	} else {
		fetcher = pipeline.NewHTTPFetcher(pipeline.HTTPFetcherConfig{
			RequestTimeout: cfg.Fetcher.RequestTimeout,
			RateLimit:      cfg.Fetcher.RateLimit,
		})
	}

	return pipeline.Collaborators{
		Fetcher:     fetcher,
		Transformer: &pipeline.StubTransformer{},
		Renderer:    &pipeline.DocumentRenderer{},
		Scorer:      &pipeline.KeywordScorer{},
	}
}
