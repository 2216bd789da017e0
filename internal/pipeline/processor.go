package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/webpress/internal/domain"
	"github.com/dunamismax/webpress/internal/id"
	"github.com/dunamismax/webpress/internal/storage"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// StaticPrefix is the URL path under which artifacts are served.
const StaticPrefix = "/uploads/"

// Upload is one received file. Body is consumed exactly once.
type Upload struct {
	Filename string
	Body     io.Reader
}

type Options struct {
	StagingDir    string
	PublicBaseURL string
	Spec          domain.ConversionSpec
	Logger        zerolog.Logger
}

type Processor struct {
	stagingDir    string
	publicBaseURL string
	spec          domain.ConversionSpec
	transformer   Transformer
	store         storage.ArtifactStore
	logger        zerolog.Logger
	tracer        trace.Tracer
}

func NewProcessor(store storage.ArtifactStore, opts Options) (*Processor, error) {
	if store == nil {
		return nil, errors.New("artifact store is required")
	}
	if strings.TrimSpace(opts.PublicBaseURL) == "" {
		return nil, errors.New("public base url is required")
	}

	stagingDir := strings.TrimSpace(opts.StagingDir)
	if stagingDir == "" {
		stagingDir = os.TempDir()
	}
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}

	spec := opts.Spec
	if spec.Width <= 0 {
		spec.Width = domain.DefaultWidth
	}
	if spec.Quality <= 0 {
		spec.Quality = domain.DefaultQuality
	}

	transformer, err := newTransformer()
	if err != nil {
		return nil, fmt.Errorf("build transformer: %w", err)
	}

	return &Processor{
		stagingDir:    stagingDir,
		publicBaseURL: opts.PublicBaseURL,
		spec:          spec,
		transformer:   transformer,
		store:         store,
		logger:        opts.Logger,
		tracer:        otel.Tracer("webpress/pipeline"),
	}, nil
}

// Process stages the upload in a temporary file, converts it, stores the
// artifact and reports sizes. The staged file is removed on every path.
// Errors from conversion or artifact storage wrap domain.ErrConversionFailed.
func (p *Processor) Process(ctx context.Context, up Upload) (domain.ConversionResult, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.convert")
	defer span.End()

	result, err := p.process(ctx, up)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "conversion failed")
		return domain.ConversionResult{}, err
	}

	span.SetAttributes(
		attribute.String("artifact.name", result.ArtifactName),
		attribute.Int64("artifact.source_bytes", result.SourceSize),
		attribute.Int64("artifact.compressed_bytes", result.CompressedSize),
	)
	span.SetStatus(codes.Ok, "converted")
	return result, nil
}

func (p *Processor) process(ctx context.Context, up Upload) (domain.ConversionResult, error) {
	stagedPath, sourceSize, err := p.stage(up)
	if err != nil {
		return domain.ConversionResult{}, fmt.Errorf("stage upload: %w", err)
	}
	defer p.removeStaged(stagedPath)

	source, err := os.ReadFile(stagedPath)
	if err != nil {
		return domain.ConversionResult{}, fmt.Errorf("%w: fetch stage: %w", domain.ErrConversionFailed, err)
	}

	data, width, height, err := p.transformer.Transform(ctx, source, p.spec)
	if err != nil {
		return domain.ConversionResult{}, fmt.Errorf("%w: transform stage: %w", domain.ErrConversionFailed, err)
	}

	name := id.ArtifactName(domain.ArtifactExtension)
	obj, err := p.store.Put(ctx, name, data, domain.ArtifactContentType)
	if err != nil {
		return domain.ConversionResult{}, fmt.Errorf("%w: emit stage: %w", domain.ErrConversionFailed, err)
	}

	artifactURL, err := ArtifactURL(p.publicBaseURL, name)
	if err != nil {
		return domain.ConversionResult{}, err
	}

	return domain.ConversionResult{
		SourceSize:     sourceSize,
		ArtifactName:   name,
		ArtifactURL:    artifactURL,
		CompressedSize: obj.Size,
		Width:          width,
		Height:         height,
	}, nil
}

// stage copies the upload body into the staging directory and returns the
// byte length of the staged file.
func (p *Processor) stage(up Upload) (string, int64, error) {
	if up.Body == nil {
		return "", 0, domain.ErrMissingFile
	}

	path := filepath.Join(p.stagingDir, id.StagingName(up.Filename))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", 0, fmt.Errorf("create staged file: %w", err)
	}

	if _, err := io.Copy(f, up.Body); err != nil {
		f.Close()
		p.removeStaged(path)
		return "", 0, fmt.Errorf("write staged file: %w", err)
	}
	if err := f.Close(); err != nil {
		p.removeStaged(path)
		return "", 0, fmt.Errorf("close staged file: %w", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		p.removeStaged(path)
		return "", 0, fmt.Errorf("stat staged file: %w", err)
	}

	p.logger.Debug().Str("path", path).Int64("bytes", info.Size()).Msg("staged upload")
	return path, info.Size(), nil
}

func (p *Processor) removeStaged(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		p.logger.Warn().Err(err).Str("path", path).Msg("could not clean up staged upload")
		return
	}
	p.logger.Debug().Str("path", path).Msg("cleaned up staged upload")
}

// ArtifactURL joins the public base URL, the static prefix and the name.
func ArtifactURL(baseURL, name string) (string, error) {
	u, err := url.JoinPath(baseURL, StaticPrefix, name)
	if err != nil {
		return "", fmt.Errorf("build artifact url: %w", err)
	}
	return u, nil
}
