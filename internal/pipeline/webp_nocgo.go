//go:build !cgo

package pipeline

import "image"

// encodeWebP has no pure-Go encoder to fall back on. Decoding and resizing
// still run so inputs are validated before the request fails.
func encodeWebP(image.Image, int) ([]byte, error) {
	return nil, ErrWebPUnavailable
}
