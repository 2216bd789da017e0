//go:build !govips && cgo

package pipeline

import (
	"bytes"
	"fmt"
	"image"

	"github.com/chai2010/webp"
)

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return buf.Bytes(), nil
}
