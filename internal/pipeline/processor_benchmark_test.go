package pipeline

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/dunamismax/webpress/internal/domain"
	"github.com/dunamismax/webpress/internal/storage"
	"github.com/rs/zerolog"
)

func BenchmarkProcessorConvert(b *testing.B) {
	source := buildTestPNG(b, 1920, 1080)
	store, err := storage.NewLocalStore(filepath.Join(b.TempDir(), "uploads"))
	if err != nil {
		b.Fatalf("new local store: %v", err)
	}

	processor, err := NewProcessor(store, Options{
		StagingDir:    b.TempDir(),
		PublicBaseURL: "http://localhost:3000",
		Spec:          domain.DefaultConversionSpec(),
		Logger:        zerolog.Nop(),
	})
	if err != nil {
		b.Fatalf("new processor: %v", err)
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := processor.Process(context.Background(), Upload{
			Filename: "bench.png",
			Body:     bytes.NewReader(source),
		}); err != nil {
			b.Fatalf("process: %v", err)
		}
	}
}

func BenchmarkTransformerResize(b *testing.B) {
	source := buildTestJPEG(b, 1920, 1080)
	transformer, err := newTransformer()
	if err != nil {
		b.Fatalf("new transformer: %v", err)
	}
	spec := domain.DefaultConversionSpec()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, _, err := transformer.Transform(context.Background(), source, spec); err != nil {
			b.Fatalf("transform: %v", err)
		}
	}
}
