package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/dunamismax/webpress/internal/api"
	"github.com/dunamismax/webpress/internal/bootstrap"
	"github.com/dunamismax/webpress/internal/config"
	"github.com/dunamismax/webpress/internal/domain"
	"github.com/dunamismax/webpress/internal/logging"
	"github.com/dunamismax/webpress/internal/pipeline"
	"github.com/dunamismax/webpress/internal/queue"
	"github.com/dunamismax/webpress/internal/ratelimit"
	"github.com/dunamismax/webpress/internal/telemetry"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "json").Fatal().Err(err).Msg("invalid configuration")
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format).With().Str("component", "api").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("api failed")
	}
}

func run(ctx context.Context, cfg config.Config, logger zerolog.Logger) error {
	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  "webpress-api",
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("tracing shutdown failed")
		}
	}()

	if err := pipeline.Startup(); err != nil {
		return err
	}
	defer pipeline.Shutdown()

	artifacts, err := bootstrap.OpenArtifactStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	conversions, closeConversions, err := bootstrap.OpenConversionStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeConversions(); err != nil {
			logger.Warn().Err(err).Msg("conversion ledger close failed")
		}
	}()

	processor, err := pipeline.NewProcessor(artifacts, pipeline.Options{
		StagingDir:    cfg.Storage.StagingDir,
		PublicBaseURL: cfg.API.PublicBaseURL,
		Spec: domain.ConversionSpec{
			Width:   cfg.Conversion.Width,
			Quality: cfg.Conversion.Quality,
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}

	opts := api.Options{
		Conversions:    conversions,
		AllowedOrigin:  cfg.API.AllowedOrigin,
		MaxUploadBytes: cfg.Upload.MaxBytes,
		ArtifactTTL:    cfg.Artifact.TTL,
		WebhookURL:     cfg.Webhook.URL,
		QueueName:      cfg.Queue.Name,
	}

	if cfg.Queue.Enabled {
		queueClient := queue.NewClient(cfg.Redis.ClientOpt(), cfg.Queue.Name)
		defer func() {
			if err := queueClient.Close(); err != nil {
				logger.Warn().Err(err).Msg("queue client close failed")
			}
		}()
		opts.Tasks = queueClient
		logger.Info().Str("queue", cfg.Queue.Name).Str("redis", cfg.Redis.Addr).Msg("follow-up tasks enabled")
	}

	if cfg.RateLimit.Enabled {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		limiter, err := ratelimit.NewTokenBucket(redisClient, ratelimit.Policy{
			Capacity: cfg.RateLimit.Capacity,
			Window:   cfg.RateLimit.Window,
		}, "")
		if err != nil {
			return err
		}
		opts.RateLimiter = limiter
	}

	app := api.NewServer(logger, processor, artifacts, opts)

	httpServer := &http.Server{
		Addr:              cfg.API.Addr(),
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info().Msg("shutting down")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	return nil
}
