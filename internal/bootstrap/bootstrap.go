// Package bootstrap builds the collaborators shared by the api and worker
// binaries from configuration.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/dunamismax/webpress/internal/config"
	"github.com/dunamismax/webpress/internal/storage"
	"github.com/dunamismax/webpress/internal/store"
	"github.com/rs/zerolog"
)

// OpenArtifactStore returns the artifact backend selected by storage.backend.
func OpenArtifactStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (storage.ArtifactStore, error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendMinIO:
		objects, err := storage.NewObjectStore(storage.Config{
			Endpoint: cfg.MinIO.Endpoint,
			Access:   cfg.MinIO.AccessKey,
			Secret:   cfg.MinIO.SecretKey,
			Bucket:   cfg.MinIO.Bucket,
			UseSSL:   cfg.MinIO.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("create object store: %w", err)
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			return nil, fmt.Errorf("ensure bucket %s: %w", objects.Bucket(), err)
		}
		logger.Info().Str("endpoint", cfg.MinIO.Endpoint).Str("bucket", objects.Bucket()).Msg("using object storage for artifacts")
		return objects, nil
	default:
		local, err := storage.NewLocalStore(cfg.Storage.Root)
		if err != nil {
			return nil, fmt.Errorf("create local store: %w", err)
		}
		logger.Info().Str("root", local.Root()).Msg("using local storage for artifacts")
		return local, nil
	}
}

// OpenConversionStore returns the Postgres ledger when a DSN is configured and
// the in-memory ledger otherwise. The returned close function is never nil.
func OpenConversionStore(ctx context.Context, cfg config.Config, logger zerolog.Logger) (store.ConversionStore, func() error, error) {
	if cfg.Database.DSN == "" {
		logger.Info().Msg("using in-memory conversion ledger")
		return store.NewMemoryConversionStore(), func() error { return nil }, nil
	}

	pg, err := store.NewPostgresConversionStore(ctx, cfg.Database.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect conversion ledger: %w", err)
	}
	logger.Info().Msg("using postgres conversion ledger")
	return pg, pg.Close, nil
}
