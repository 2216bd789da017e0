package store

import (
	"context"
	"errors"
	"time"

	"github.com/dunamismax/webpress/internal/domain"
)

var ErrConversionNotFound = errors.New("conversion not found")

// ConversionStore is the ledger of produced artifacts keyed by artifact name.
type ConversionStore interface {
	Create(ctx context.Context, record domain.ConversionRecord) error
	Get(ctx context.Context, artifactName string) (domain.ConversionRecord, bool, error)
	MarkExpired(ctx context.Context, artifactName string, at time.Time) error
}
