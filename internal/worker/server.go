package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dunamismax/webpress/internal/config"
	"github.com/dunamismax/webpress/internal/domain"
	"github.com/dunamismax/webpress/internal/queue"
	"github.com/dunamismax/webpress/internal/storage"
	"github.com/dunamismax/webpress/internal/store"
	"github.com/dunamismax/webpress/internal/webhook"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	statusSucceeded = "succeeded"
	statusFailed    = "failed"
)

type Server struct {
	logger        zerolog.Logger
	server        *asynq.Server
	sem           chan struct{}
	artifacts     storage.ArtifactStore
	conversions   store.ConversionStore
	webhookClient webhookSender
	metrics       *metrics
	tracer        trace.Tracer
	now           func() time.Time
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

func NewServer(
	logger zerolog.Logger,
	redisOpt asynq.RedisClientOpt,
	queueName string,
	workerCfg config.WorkerConfig,
	artifacts storage.ArtifactStore,
	conversions store.ConversionStore,
	webhookClient *webhook.Client,
) (*Server, error) {
	if artifacts == nil {
		return nil, fmt.Errorf("artifact store is required")
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			redisOpt,
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueName: 1,
				},
				Logger:   asynqLogger{logger: logger},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Error().
						Err(err).
						Str("type", task.Type()).
						Int("retry", retried).
						Int("max_retry", maxRetry).
						Msg("task failed")
				}),
			},
		),
		sem:         make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		artifacts:   artifacts,
		conversions: conversions,
		metrics:     newMetrics(),
		tracer:      otel.Tracer("webpress/worker"),
		now:         time.Now,
	}
	if webhookClient != nil {
		s.webhookClient = webhookClient
	}
	return s, nil
}

func (s *Server) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeExpireArtifact, s.track(queue.TypeExpireArtifact, s.handleExpireArtifact))
	mux.HandleFunc(queue.TypeNotifyConversion, s.track(queue.TypeNotifyConversion, s.handleNotifyConversion))
	return mux
}

// Run blocks until the process receives SIGTERM or SIGINT.
func (s *Server) Run() error {
	return s.server.Run(s.Mux())
}

func (s *Server) Start() error {
	return s.server.Start(s.Mux())
}

func (s *Server) Shutdown() {
	s.server.Shutdown()
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

// track bounds active tasks with the semaphore and records metrics and a
// consumer span around handler.
func (s *Server) track(taskType string, handler func(context.Context, *asynq.Task) error) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		startedAt := time.Now()
		outcome := statusFailed

		ctx, span := s.tracer.Start(ctx, "worker."+taskType, trace.WithSpanKind(trace.SpanKindConsumer))
		span.SetAttributes(attribute.String("task.type", taskType))
		defer span.End()
		defer func() {
			s.metrics.taskDuration.WithLabelValues(taskType, outcome).Observe(time.Since(startedAt).Seconds())
			s.metrics.tasksTotal.WithLabelValues(taskType, outcome).Inc()
		}()

		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.metrics.activeTasks.Inc()
		defer func() {
			<-s.sem
			s.metrics.activeTasks.Dec()
		}()

		if err := handler(ctx, task); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "task failed")
			return err
		}

		outcome = statusSucceeded
		span.SetStatus(codes.Ok, "processed")
		return nil
	}
}

func (s *Server) handleExpireArtifact(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseExpireArtifactPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	if err := s.artifacts.Remove(ctx, payload.ArtifactName); err != nil {
		if errors.Is(err, domain.ErrInvalidArtifactName) {
			return fmt.Errorf("remove artifact: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("remove artifact %s: %w", payload.ArtifactName, err)
	}
	s.metrics.artifactsExpired.Inc()

	if s.conversions != nil {
		if err := s.conversions.MarkExpired(ctx, payload.ArtifactName, s.now()); err != nil && !errors.Is(err, store.ErrConversionNotFound) {
			s.logger.Warn().Err(err).Str("artifact", payload.ArtifactName).Msg("could not mark conversion expired")
		}
	}

	s.logger.Info().
		Str("artifact", payload.ArtifactName).
		Time("expires_at", payload.ExpiresAt).
		Msg("expired artifact")
	return nil
}

func (s *Server) handleNotifyConversion(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseNotifyConversionPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return nil
	}

	body := map[string]any{
		"event":        payload.Event,
		"conversion":   payload.Conversion,
		"requested_at": payload.RequestedAt,
		"delivered_at": s.now().UTC(),
	}
	if err := s.webhookClient.Send(ctx, payload.WebhookURL, payload.Event, body); err != nil {
		s.metrics.webhooksDelivered.WithLabelValues(statusFailed).Inc()
		s.logger.Warn().
			Err(err).
			Str("artifact", payload.Conversion.ArtifactName).
			Str("event", payload.Event).
			Msg("webhook delivery failed")
		if errors.Is(err, webhook.ErrPermanent) {
			return fmt.Errorf("dispatch webhook: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("dispatch webhook: %w", err)
	}

	s.metrics.webhooksDelivered.WithLabelValues(statusSucceeded).Inc()
	s.logger.Debug().
		Str("artifact", payload.Conversion.ArtifactName).
		Str("event", payload.Event).
		Msg("webhook delivered")
	return nil
}

// asynqLogger routes asynq's internal logging through zerolog.
type asynqLogger struct {
	logger zerolog.Logger
}

func (l asynqLogger) Debug(args ...any) { l.logger.Debug().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Info(args ...any)  { l.logger.Info().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Warn(args ...any)  { l.logger.Warn().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Error(args ...any) { l.logger.Error().Msg(fmt.Sprint(args...)) }
func (l asynqLogger) Fatal(args ...any) { l.logger.Fatal().Msg(fmt.Sprint(args...)) }
