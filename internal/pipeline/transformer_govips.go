//go:build govips && cgo

package pipeline

import (
	"context"
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/dunamismax/webpress/internal/domain"
)

type govipsTransformer struct{}

func (t govipsTransformer) Transform(ctx context.Context, input []byte, spec domain.ConversionSpec) ([]byte, int, int, error) {
	select {
	case <-ctx.Done():
		return nil, 0, 0, ctx.Err()
	default:
	}

	img, err := vips.NewImageFromBuffer(input)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode source image: %w", err)
	}
	defer img.Close()

	if err := applyGovipsResize(img, spec.Width); err != nil {
		return nil, 0, 0, err
	}

	data, err := exportGovipsWebP(img, clampQuality(spec.Quality))
	if err != nil {
		return nil, 0, 0, err
	}

	return data, img.Width(), img.Height(), nil
}

func applyGovipsResize(img *vips.ImageRef, targetWidth int) error {
	if targetWidth <= 0 {
		return fmt.Errorf("resize requires width > 0")
	}
	if img.Width() <= 0 || img.Height() <= 0 {
		return fmt.Errorf("source image has invalid dimensions")
	}
	if img.Width() == targetWidth {
		return nil
	}

	scale := float64(targetWidth) / float64(img.Width())
	if err := img.Resize(scale, vips.KernelLanczos3); err != nil {
		return fmt.Errorf("resize image: %w", err)
	}
	return nil
}

func exportGovipsWebP(img *vips.ImageRef, quality int) ([]byte, error) {
	params := vips.NewWebpExportParams()
	params.Quality = quality
	params.StripMetadata = true
	data, _, err := img.ExportWebp(params)
	if err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return data, nil
}
