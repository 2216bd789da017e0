package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/dunamismax/webpress/internal/domain"
	"github.com/dunamismax/webpress/internal/pipeline"
	"github.com/dunamismax/webpress/internal/queue"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	mr, part, err := imagePart(r)
	if err != nil {
		if isTooLarge(err) {
			writeJSON(w, http.StatusRequestEntityTooLarge, domain.NewErrorResponse(msgTooLarge))
			return
		}
		s.logger.Debug().Err(err).Msg("upload without image field")
		writeJSON(w, http.StatusBadRequest, domain.NewErrorResponse(msgNoFile))
		return
	}
	defer part.Close()

	originalName := part.FileName()
	result, err := s.processor.Process(r.Context(), pipeline.Upload{
		Filename: originalName,
		Body:     part,
	})
	if err != nil {
		if isTooLarge(err) {
			s.metrics.conversions.WithLabelValues(outcomeRejected).Inc()
			writeJSON(w, http.StatusRequestEntityTooLarge, domain.NewErrorResponse(msgTooLarge))
			return
		}
		s.metrics.conversions.WithLabelValues(outcomeFailed).Inc()
		s.logger.Error().Err(err).Str("original_name", originalName).Msg("image conversion failed")
		writeJSON(w, http.StatusInternalServerError, domain.NewErrorResponse(msgConversionFailed))
		return
	}

	if err := rejectExtraImages(mr); err != nil {
		s.discardArtifact(r.Context(), result.ArtifactName)
		s.metrics.conversions.WithLabelValues(outcomeRejected).Inc()
		if isTooLarge(err) {
			writeJSON(w, http.StatusRequestEntityTooLarge, domain.NewErrorResponse(msgTooLarge))
			return
		}
		s.logger.Debug().Err(err).Msg("upload rejected after conversion")
		writeJSON(w, http.StatusBadRequest, domain.NewErrorResponse(msgUnexpectedField))
		return
	}

	s.metrics.conversions.WithLabelValues(outcomeSucceeded).Inc()
	s.metrics.sourceBytes.Add(float64(result.SourceSize))
	s.metrics.artifactBytes.Add(float64(result.CompressedSize))

	s.logger.Info().
		Str("artifact", result.ArtifactName).
		Int64("source_bytes", result.SourceSize).
		Int64("compressed_bytes", result.CompressedSize).
		Str("loss_percentage", result.LossPercentage()).
		Msg("converted upload")

	s.recordConversion(r.Context(), result, originalName)
	writeJSON(w, http.StatusOK, domain.NewUploadResponse(result))
}

// imagePart returns the first file part named "image". Parts before it are
// skipped.
func imagePart(r *http.Request) (*multipart.Reader, *multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", domain.ErrMissingFile, err)
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, nil, domain.ErrMissingFile
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", domain.ErrMissingFile, err)
		}
		if isImagePart(part) {
			return mr, part, nil
		}
		part.Close()
	}
}

// rejectExtraImages reads the rest of the form. Exactly one image file is
// accepted per request; other fields are ignored.
func rejectExtraImages(mr *multipart.Reader) error {
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read trailing parts: %w", err)
		}
		extra := isImagePart(part)
		part.Close()
		if extra {
			return errUnexpectedImage
		}
	}
}

var errUnexpectedImage = errors.New("more than one image file in upload")

func isImagePart(part *multipart.Part) bool {
	return part.FormName() == domain.UploadField && part.FileName() != ""
}

func (s *Server) discardArtifact(ctx context.Context, name string) {
	if err := s.artifacts.Remove(ctx, name); err != nil {
		s.logger.Warn().Err(err).Str("artifact", name).Msg("could not remove rejected artifact")
	}
}

func isTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}

// recordConversion writes the ledger entry and schedules follow-up tasks.
// Failures are logged and never surface to the client.
func (s *Server) recordConversion(ctx context.Context, result domain.ConversionResult, originalName string) {
	record := domain.NewConversionRecord(result, originalName, s.now().UTC(), s.artifactTTL)
	if err := s.conversions.Create(ctx, record); err != nil {
		s.logger.Warn().Err(err).Str("artifact", result.ArtifactName).Msg("conversion ledger write failed")
	}

	if s.tasks == nil {
		return
	}

	if record.ExpiresAt != nil {
		_, err := s.tasks.EnqueueExpireArtifact(ctx, queue.ExpireArtifactPayload{
			ArtifactName: record.ArtifactName,
			ExpiresAt:    *record.ExpiresAt,
		}, s.artifactTTL)
		s.observeEnqueue(queue.TypeExpireArtifact, record.ArtifactName, err)
	}

	if s.webhookURL != "" {
		_, err := s.tasks.EnqueueNotifyConversion(ctx, queue.NotifyConversionPayload{
			Event:       queue.EventConversionCompleted,
			WebhookURL:  s.webhookURL,
			Conversion:  record,
			RequestedAt: record.CreatedAt,
		})
		s.observeEnqueue(queue.TypeNotifyConversion, record.ArtifactName, err)
	}
}

func (s *Server) observeEnqueue(taskType, artifact string, err error) {
	if err != nil {
		s.logger.Warn().Err(err).Str("type", taskType).Str("artifact", artifact).Msg("enqueue failed")
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(s.queueName, taskType).Inc()
}
