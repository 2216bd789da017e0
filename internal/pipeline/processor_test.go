package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dunamismax/webpress/internal/domain"
	"github.com/dunamismax/webpress/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/webp"
)

func TestMain(m *testing.M) {
	if err := Startup(); err != nil {
		panic(err)
	}
	code := m.Run()
	Shutdown()
	os.Exit(code)
}

type fixture struct {
	processor  *Processor
	store      *storage.LocalStore
	stagingDir string
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	tmp := t.TempDir()
	store, err := storage.NewLocalStore(filepath.Join(tmp, "uploads"))
	require.NoError(t, err)

	stagingDir := filepath.Join(tmp, "staging")
	processor, err := NewProcessor(store, Options{
		StagingDir:    stagingDir,
		PublicBaseURL: "https://compression.example.com",
		Spec:          domain.DefaultConversionSpec(),
		Logger:        zerolog.Nop(),
	})
	require.NoError(t, err)

	return fixture{processor: processor, store: store, stagingDir: stagingDir}
}

func TestProcessConvertsToWebP(t *testing.T) {
	f := newFixture(t)
	src := buildTestPNG(t, 1200, 600)

	result, err := f.processor.Process(context.Background(), Upload{
		Filename: "landscape.png",
		Body:     bytes.NewReader(src),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(len(src)), result.SourceSize)
	assert.Equal(t, ".webp", filepath.Ext(result.ArtifactName))
	assert.Equal(t, "https://compression.example.com/uploads/"+result.ArtifactName, result.ArtifactURL)
	assert.Equal(t, 800, result.Width)
	assert.Equal(t, 400, result.Height)

	info, err := os.Stat(f.store.Path(result.ArtifactName))
	require.NoError(t, err)
	assert.Equal(t, info.Size(), result.CompressedSize)

	verifyWebPWidth(t, f.store.Path(result.ArtifactName), 800)
	assertEmptyDir(t, f.stagingDir)

	obj, rc, err := f.store.Open(context.Background(), result.ArtifactName)
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, domain.ArtifactContentType, obj.ContentType)

	header := make([]byte, 12)
	_, err = io.ReadFull(rc, header)
	require.NoError(t, err)
	assert.Equal(t, "RIFF", string(header[:4]))
	assert.Equal(t, "WEBP", string(header[8:12]))
}

func TestProcessEnlargesNarrowImages(t *testing.T) {
	f := newFixture(t)

	result, err := f.processor.Process(context.Background(), Upload{
		Filename: "small.jpg",
		Body:     bytes.NewReader(buildTestJPEG(t, 200, 100)),
	})
	require.NoError(t, err)

	assert.Equal(t, 800, result.Width)
	assert.Equal(t, 400, result.Height)
	verifyWebPWidth(t, f.store.Path(result.ArtifactName), 800)
}

func TestProcessCorruptInputRemovesStagedFile(t *testing.T) {
	f := newFixture(t)

	_, err := f.processor.Process(context.Background(), Upload{
		Filename: "broken.png",
		Body:     bytes.NewReader([]byte("definitely not an image")),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConversionFailed)

	assertEmptyDir(t, f.stagingDir)
	assertEmptyDir(t, f.store.Root())
}

func TestProcessReportsSizesFromStore(t *testing.T) {
	f := newFixture(t)
	f.processor.transformer = fixedTransformer{size: 100_000}

	result, err := f.processor.Process(context.Background(), Upload{
		Filename: "photo.jpg",
		Body:     bytes.NewReader(make([]byte, 500_000)),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(500_000), result.SourceSize)
	assert.Equal(t, int64(100_000), result.CompressedSize)
	assert.Equal(t, "80.00", result.LossPercentage())
}

func TestProcessStoreFailureIsConversionFailure(t *testing.T) {
	f := newFixture(t)
	f.processor.transformer = fixedTransformer{size: 10}
	f.processor.store = failingStore{}

	_, err := f.processor.Process(context.Background(), Upload{
		Filename: "photo.jpg",
		Body:     bytes.NewReader([]byte("source")),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConversionFailed)
	assertEmptyDir(t, f.stagingDir)
}

func TestProcessBodyReadFailure(t *testing.T) {
	f := newFixture(t)
	readErr := errors.New("connection reset")

	_, err := f.processor.Process(context.Background(), Upload{
		Filename: "photo.jpg",
		Body:     io.MultiReader(bytes.NewReader([]byte("partial")), errReader{err: readErr}),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, readErr)
	assert.NotErrorIs(t, err, domain.ErrConversionFailed)
	assertEmptyDir(t, f.stagingDir)
}

func TestProcessCanceledContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.processor.Process(ctx, Upload{
		Filename: "landscape.png",
		Body:     bytes.NewReader(buildTestPNG(t, 40, 20)),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assertEmptyDir(t, f.stagingDir)
}

func TestProcessConcurrentUploadsDoNotCollide(t *testing.T) {
	f := newFixture(t)
	inputs := [][]byte{buildTestPNG(t, 320, 240), buildTestJPEG(t, 640, 200)}

	results := make([]domain.ConversionResult, len(inputs))
	errs := make([]error, len(inputs))

	var wg sync.WaitGroup
	for i, in := range inputs {
		wg.Add(1)
		go func(i int, in []byte) {
			defer wg.Done()
			results[i], errs[i] = f.processor.Process(context.Background(), Upload{
				Filename: "same-name.png",
				Body:     bytes.NewReader(in),
			})
		}(i, in)
	}
	wg.Wait()

	for i := range inputs {
		require.NoError(t, errs[i])
		assert.Equal(t, int64(len(inputs[i])), results[i].SourceSize)
	}
	assert.NotEqual(t, results[0].ArtifactName, results[1].ArtifactName)
	assertEmptyDir(t, f.stagingDir)
}

func TestArtifactURL(t *testing.T) {
	got, err := ArtifactURL("https://compressionapp.onrender.com/", "a.webp")
	require.NoError(t, err)
	assert.Equal(t, "https://compressionapp.onrender.com/uploads/a.webp", got)
}

type fixedTransformer struct {
	size int
}

func (t fixedTransformer) Transform(_ context.Context, _ []byte, spec domain.ConversionSpec) ([]byte, int, int, error) {
	return make([]byte, t.size), spec.Width, spec.Width / 2, nil
}

type failingStore struct{}

func (failingStore) Put(context.Context, string, []byte, string) (storage.Object, error) {
	return storage.Object{}, errors.New("disk full")
}

func (failingStore) Open(context.Context, string) (storage.Object, io.ReadSeekCloser, error) {
	return storage.Object{}, nil, domain.ErrArtifactNotFound
}

func (failingStore) Remove(context.Context, string) error {
	return nil
}

type errReader struct {
	err error
}

func (r errReader) Read([]byte) (int, error) {
	return 0, r.err
}

func buildTestImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}
	return img
}

func buildTestPNG(t testing.TB, w, h int) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, buildTestImage(w, h)); err != nil {
		t.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}

func buildTestJPEG(t testing.TB, w, h int) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, buildTestImage(w, h), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode source jpeg: %v", err)
	}
	return buf.Bytes()
}

func verifyWebPWidth(t *testing.T, path string, want int) {
	t.Helper()

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	cfg, err := webp.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, want, cfg.Width)
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "expected %s to be empty", dir)
}
