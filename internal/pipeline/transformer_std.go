//go:build !govips || !cgo

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/dunamismax/webpress/internal/domain"
	_ "golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// stdTransformer decodes with the image registry, scales with Catmull-Rom
// and hands the result to encodeWebP.
type stdTransformer struct{}

func (t stdTransformer) Transform(ctx context.Context, input []byte, spec domain.ConversionSpec) ([]byte, int, int, error) {
	select {
	case <-ctx.Done():
		return nil, 0, 0, ctx.Err()
	default:
	}

	src, _, err := image.Decode(bytes.NewReader(input))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decode source image: %w", err)
	}

	out, err := resizeToWidth(src, spec.Width)
	if err != nil {
		return nil, 0, 0, err
	}

	select {
	case <-ctx.Done():
		return nil, 0, 0, ctx.Err()
	default:
	}

	data, err := encodeWebP(out, clampQuality(spec.Quality))
	if err != nil {
		return nil, 0, 0, err
	}

	bounds := out.Bounds()
	return data, bounds.Dx(), bounds.Dy(), nil
}

// resizeToWidth always scales to width, enlarging narrower sources.
func resizeToWidth(src image.Image, width int) (image.Image, error) {
	if width <= 0 {
		return nil, errors.New("resize requires width > 0")
	}

	srcBounds := src.Bounds()
	srcW, srcH := srcBounds.Dx(), srcBounds.Dy()
	if srcW == 0 || srcH == 0 {
		return nil, errors.New("source image has invalid dimensions")
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, targetHeight(srcW, srcH, width)))
	if width == srcW {
		xdraw.Draw(dst, dst.Bounds(), src, srcBounds.Min, xdraw.Src)
		return dst, nil
	}
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, srcBounds, xdraw.Src, nil)
	return dst, nil
}
