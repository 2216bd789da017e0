package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dunamismax/webpress/internal/domain"
)

const maxNameLen = 255

type Object struct {
	Name        string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// ArtifactStore holds converted artifacts in a flat namespace.
type ArtifactStore interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (Object, error)
	Open(ctx context.Context, name string) (Object, io.ReadSeekCloser, error)
	Remove(ctx context.Context, name string) error
}

// ValidName rejects anything that is not a single plain path element.
func ValidName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", domain.ErrInvalidArtifactName)
	case len(name) > maxNameLen:
		return fmt.Errorf("%w: too long", domain.ErrInvalidArtifactName)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("%w: %q", domain.ErrInvalidArtifactName, name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: %q", domain.ErrInvalidArtifactName, name)
	}
	return nil
}
