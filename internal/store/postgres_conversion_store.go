package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dunamismax/webpress/internal/domain"
	_ "github.com/lib/pq"
)

const conversionSchemaSQL = `
CREATE TABLE IF NOT EXISTS conversions (
	artifact_name TEXT PRIMARY KEY,
	original_name TEXT NOT NULL DEFAULT '',
	source_size BIGINT NOT NULL,
	compressed_size BIGINT NOT NULL,
	loss_percentage TEXT NOT NULL,
	width INTEGER NOT NULL,
	height INTEGER NOT NULL,
	artifact_url TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ,
	expired_at TIMESTAMPTZ
);
`

type PostgresConversionStore struct {
	db *sql.DB
}

func NewPostgresConversionStore(ctx context.Context, dsn string) (*PostgresConversionStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	store := &PostgresConversionStore{db: db}
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresConversionStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, conversionSchemaSQL); err != nil {
		return fmt.Errorf("ensure conversions schema: %w", err)
	}
	return nil
}

func (s *PostgresConversionStore) Close() error {
	return s.db.Close()
}

func (s *PostgresConversionStore) Create(ctx context.Context, record domain.ConversionRecord) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO conversions (artifact_name, original_name, source_size, compressed_size, loss_percentage, width, height, artifact_url, created_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		record.ArtifactName,
		record.OriginalName,
		record.SourceSize,
		record.CompressedSize,
		record.LossPercentage,
		record.Width,
		record.Height,
		record.ArtifactURL,
		record.CreatedAt,
		nullTime(record.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("insert conversion: %w", err)
	}

	return nil
}

func (s *PostgresConversionStore) Get(ctx context.Context, artifactName string) (domain.ConversionRecord, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT artifact_name, original_name, source_size, compressed_size, loss_percentage, width, height, artifact_url, created_at, expires_at, expired_at
		 FROM conversions
		 WHERE artifact_name = $1`,
		artifactName,
	)

	var (
		record    domain.ConversionRecord
		expiresAt sql.NullTime
		expiredAt sql.NullTime
	)
	if err := row.Scan(
		&record.ArtifactName,
		&record.OriginalName,
		&record.SourceSize,
		&record.CompressedSize,
		&record.LossPercentage,
		&record.Width,
		&record.Height,
		&record.ArtifactURL,
		&record.CreatedAt,
		&expiresAt,
		&expiredAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ConversionRecord{}, false, nil
		}
		return domain.ConversionRecord{}, false, fmt.Errorf("query conversion: %w", err)
	}

	record.ExpiresAt = timePtr(expiresAt)
	record.ExpiredAt = timePtr(expiredAt)
	return record, true, nil
}

func (s *PostgresConversionStore) MarkExpired(ctx context.Context, artifactName string, at time.Time) error {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE conversions
		 SET expired_at = $1
		 WHERE artifact_name = $2`,
		at.UTC(),
		artifactName,
	)
	if err != nil {
		return fmt.Errorf("mark conversion expired: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark conversion expired: %w", err)
	}
	if affected == 0 {
		return ErrConversionNotFound
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
