//go:build !cgo

package pipeline

import (
	"context"
	"image"
	"testing"

	"github.com/dunamismax/webpress/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformWithoutCgoReportsMissingEncoder(t *testing.T) {
	transformer, err := newTransformer()
	require.NoError(t, err)
	assert.IsType(t, stdTransformer{}, transformer)

	_, _, _, err = transformer.Transform(context.Background(), buildTestPNG(t, 40, 20), domain.DefaultConversionSpec())
	assert.ErrorIs(t, err, ErrWebPUnavailable)

	_, err = encodeWebP(image.NewRGBA(image.Rect(0, 0, 1, 1)), 100)
	assert.ErrorIs(t, err, ErrWebPUnavailable)
}
