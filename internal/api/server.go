package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dunamismax/webpress/internal/domain"
	"github.com/dunamismax/webpress/internal/pipeline"
	"github.com/dunamismax/webpress/internal/queue"
	"github.com/dunamismax/webpress/internal/storage"
	"github.com/dunamismax/webpress/internal/store"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	livenessMessage = "Compression Backend is Running 🚀"

	msgNoFile           = "No file uploaded"
	msgUnexpectedField  = "Unexpected field"
	msgTooLarge         = "File too large"
	msgConversionFailed = "Image conversion failed"
	msgFileNotFound     = "File not found"
	msgReadFailed       = "Failed to read file"
	msgNoConversion     = "Conversion not found"
)

type converter interface {
	Process(ctx context.Context, up pipeline.Upload) (domain.ConversionResult, error)
}

type taskEnqueuer interface {
	EnqueueExpireArtifact(ctx context.Context, payload queue.ExpireArtifactPayload, delay time.Duration) (*asynq.TaskInfo, error)
	EnqueueNotifyConversion(ctx context.Context, payload queue.NotifyConversionPayload) (*asynq.TaskInfo, error)
}

// Options carries the optional collaborators of the API server. Nil values
// disable the corresponding feature.
type Options struct {
	Conversions    store.ConversionStore
	Tasks          taskEnqueuer
	RateLimiter    RateLimiter
	AllowedOrigin  string
	MaxUploadBytes int64
	ArtifactTTL    time.Duration
	WebhookURL     string
	QueueName      string
}

type Server struct {
	logger         zerolog.Logger
	processor      converter
	artifacts      storage.ArtifactStore
	conversions    store.ConversionStore
	tasks          taskEnqueuer
	rateLimiter    RateLimiter
	metrics        *metrics
	tracer         trace.Tracer
	allowedOrigin  string
	maxUploadBytes int64
	artifactTTL    time.Duration
	webhookURL     string
	queueName      string
	now            func() time.Time
	mux            *http.ServeMux
}

func NewServer(logger zerolog.Logger, processor converter, artifacts storage.ArtifactStore, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 25 << 20
	}
	if opts.Conversions == nil {
		opts.Conversions = store.NewMemoryConversionStore()
	}

	s := &Server{
		logger:         logger,
		processor:      processor,
		artifacts:      artifacts,
		conversions:    opts.Conversions,
		tasks:          opts.Tasks,
		rateLimiter:    opts.RateLimiter,
		metrics:        newMetrics(),
		tracer:         otel.Tracer("webpress/api"),
		allowedOrigin:  opts.AllowedOrigin,
		maxUploadBytes: opts.MaxUploadBytes,
		artifactTTL:    opts.ArtifactTTL,
		webhookURL:     opts.WebhookURL,
		queueName:      opts.QueueName,
		now:            time.Now,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.withCORS(s.withTracing(s.metrics.withHTTPMetrics(s.withRateLimit(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("POST /upload", s.handleUpload)
	s.mux.HandleFunc("GET /download/{filename}", s.handleDownload)
	s.mux.HandleFunc("GET "+pipeline.StaticPrefix+"{filename}", s.handleStatic)
	s.mux.HandleFunc("GET /v1/conversions/{filename}", s.handleGetConversion)
	s.mux.Handle("GET /app/", http.StripPrefix("/app/", webAppHandler()))
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(livenessMessage))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetConversion(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	if err := storage.ValidName(name); err != nil {
		writeJSON(w, http.StatusNotFound, domain.NewErrorResponse(msgNoConversion))
		return
	}

	record, ok, err := s.conversions.Get(r.Context(), name)
	if err != nil {
		s.logger.Error().Err(err).Str("artifact", name).Msg("conversion lookup failed")
		writeJSON(w, http.StatusInternalServerError, domain.NewErrorResponse("Failed to load conversion"))
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, domain.NewErrorResponse(msgNoConversion))
		return
	}

	writeJSON(w, http.StatusOK, record)
}

func isNotFound(err error) bool {
	return errors.Is(err, domain.ErrArtifactNotFound) || errors.Is(err, domain.ErrInvalidArtifactName)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
