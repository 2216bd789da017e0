package domain

import (
	"errors"
	"math"
	"strconv"
	"time"
)

const (
	ArtifactExtension   = ".webp"
	ArtifactContentType = "image/webp"

	DefaultWidth   = 800
	DefaultQuality = 100

	UploadField = "image"
)

var (
	ErrMissingFile         = errors.New("no file uploaded")
	ErrConversionFailed    = errors.New("image conversion failed")
	ErrArtifactNotFound    = errors.New("artifact not found")
	ErrInvalidArtifactName = errors.New("invalid artifact name")
)

// ConversionSpec describes how an upload is turned into a WebP artifact.
type ConversionSpec struct {
	Width   int
	Quality int
}

func DefaultConversionSpec() ConversionSpec {
	return ConversionSpec{
		Width:   DefaultWidth,
		Quality: DefaultQuality,
	}
}

// ConversionResult lives for one request. Only the artifact outlives it.
type ConversionResult struct {
	SourceSize     int64
	ArtifactName   string
	ArtifactURL    string
	CompressedSize int64
	Width          int
	Height         int
}

func (r ConversionResult) LossPercentage() string {
	return FormatLossPercentage(r.SourceSize, r.CompressedSize)
}

// LossPercentage is (1 - compressed/source) * 100 rounded to two decimals.
// It is negative when the artifact is larger than the source.
func LossPercentage(sourceSize, compressedSize int64) float64 {
	if sourceSize <= 0 {
		return 0
	}
	loss := (1 - float64(compressedSize)/float64(sourceSize)) * 100
	rounded := math.Round(loss*100) / 100
	if rounded == 0 {
		return 0
	}
	return rounded
}

func FormatLossPercentage(sourceSize, compressedSize int64) string {
	return strconv.FormatFloat(LossPercentage(sourceSize, compressedSize), 'f', 2, 64)
}

type UploadResponse struct {
	Success        bool   `json:"success"`
	Path           string `json:"path"`
	CompressedSize int64  `json:"compressedSize"`
	LossPercentage string `json:"lossPercentage"`
}

func NewUploadResponse(r ConversionResult) UploadResponse {
	return UploadResponse{
		Success:        true,
		Path:           r.ArtifactURL,
		CompressedSize: r.CompressedSize,
		LossPercentage: r.LossPercentage(),
	}
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func NewErrorResponse(message string) ErrorResponse {
	return ErrorResponse{Success: false, Error: message}
}

// ConversionRecord is the ledger entry kept for each artifact.
type ConversionRecord struct {
	ArtifactName   string     `json:"artifact_name"`
	OriginalName   string     `json:"original_name"`
	SourceSize     int64      `json:"source_size"`
	CompressedSize int64      `json:"compressed_size"`
	LossPercentage string     `json:"loss_percentage"`
	Width          int        `json:"width"`
	Height         int        `json:"height"`
	ArtifactURL    string     `json:"artifact_url"`
	CreatedAt      time.Time  `json:"created_at"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	ExpiredAt      *time.Time `json:"expired_at,omitempty"`
}

func NewConversionRecord(r ConversionResult, originalName string, createdAt time.Time, ttl time.Duration) ConversionRecord {
	record := ConversionRecord{
		ArtifactName:   r.ArtifactName,
		OriginalName:   originalName,
		SourceSize:     r.SourceSize,
		CompressedSize: r.CompressedSize,
		LossPercentage: r.LossPercentage(),
		Width:          r.Width,
		Height:         r.Height,
		ArtifactURL:    r.ArtifactURL,
		CreatedAt:      createdAt,
	}
	if ttl > 0 {
		expiresAt := createdAt.Add(ttl)
		record.ExpiresAt = &expiresAt
	}
	return record
}
