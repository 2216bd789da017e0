package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/dunamismax/webpress/internal/domain"
)

// LocalStore keeps artifacts as files directly under Root.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, errors.New("storage root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root %s: %w", root, err)
	}
	return &LocalStore{root: root}, nil
}

func (s *LocalStore) Root() string {
	return s.root
}

func (s *LocalStore) Path(name string) string {
	return filepath.Join(s.root, name)
}

// Put writes through a temporary file and renames it so readers never see a
// partially written artifact.
func (s *LocalStore) Put(ctx context.Context, name string, data []byte, contentType string) (Object, error) {
	if err := ValidName(name); err != nil {
		return Object{}, err
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}

	tmp, err := os.CreateTemp(s.root, ".put-*")
	if err != nil {
		return Object{}, fmt.Errorf("create temp artifact: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return Object{}, fmt.Errorf("write artifact %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return Object{}, fmt.Errorf("close artifact %s: %w", name, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return Object{}, fmt.Errorf("chmod artifact %s: %w", name, err)
	}
	if err := os.Rename(tmpPath, s.Path(name)); err != nil {
		return Object{}, fmt.Errorf("publish artifact %s: %w", name, err)
	}

	info, err := os.Stat(s.Path(name))
	if err != nil {
		return Object{}, fmt.Errorf("stat artifact %s: %w", name, err)
	}
	return Object{
		Name:        name,
		Size:        info.Size(),
		ContentType: contentType,
		ModTime:     info.ModTime(),
	}, nil
}

func (s *LocalStore) Open(_ context.Context, name string) (Object, io.ReadSeekCloser, error) {
	if err := ValidName(name); err != nil {
		return Object{}, nil, err
	}

	f, err := os.Open(s.Path(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Object{}, nil, fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, name)
		}
		return Object{}, nil, fmt.Errorf("open artifact %s: %w", name, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return Object{}, nil, fmt.Errorf("stat artifact %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return Object{}, nil, fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, name)
	}

	return Object{
		Name:        name,
		Size:        info.Size(),
		ContentType: contentTypeForName(name),
		ModTime:     info.ModTime(),
	}, f, nil
}

// Remove treats a missing artifact as already removed.
func (s *LocalStore) Remove(_ context.Context, name string) error {
	if err := ValidName(name); err != nil {
		return err
	}
	if err := os.Remove(s.Path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove artifact %s: %w", name, err)
	}
	return nil
}

func contentTypeForName(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case domain.ArtifactExtension:
		return domain.ArtifactContentType
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
