package pipeline

import (
	"context"
	"errors"

	"github.com/dunamismax/webpress/internal/domain"
)

// ErrWebPUnavailable is returned by builds without a WebP encoder.
var ErrWebPUnavailable = errors.New("webp encoding requires cgo")

// Transformer decodes an image, resizes it to spec.Width keeping the aspect
// ratio, and encodes it as WebP.
type Transformer interface {
	Transform(ctx context.Context, input []byte, spec domain.ConversionSpec) (data []byte, width, height int, err error)
}

func targetHeight(srcW, srcH, width int) int {
	h := (srcH*width + srcW/2) / srcW
	if h < 1 {
		return 1
	}
	return h
}

func clampQuality(quality int) int {
	if quality <= 0 || quality > 100 {
		return domain.DefaultQuality
	}
	return quality
}
