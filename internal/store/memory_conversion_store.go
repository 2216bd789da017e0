package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dunamismax/webpress/internal/domain"
)

type MemoryConversionStore struct {
	mu      sync.RWMutex
	records map[string]domain.ConversionRecord
}

func NewMemoryConversionStore() *MemoryConversionStore {
	return &MemoryConversionStore{
		records: make(map[string]domain.ConversionRecord),
	}
}

func (s *MemoryConversionStore) Create(_ context.Context, record domain.ConversionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[record.ArtifactName]; exists {
		return fmt.Errorf("conversion %s already recorded", record.ArtifactName)
	}
	s.records[record.ArtifactName] = record
	return nil
}

func (s *MemoryConversionStore) Get(_ context.Context, artifactName string) (domain.ConversionRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[artifactName]
	return record, ok, nil
}

func (s *MemoryConversionStore) MarkExpired(_ context.Context, artifactName string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[artifactName]
	if !ok {
		return ErrConversionNotFound
	}

	at = at.UTC()
	record.ExpiredAt = &at
	s.records[artifactName] = record
	return nil
}
