package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dunamismax/webpress/internal/domain"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Config struct {
	Endpoint string
	Access   string
	Secret   string
	Bucket   string
	UseSSL   bool
}

// ObjectStore keeps artifacts in a MinIO or S3 compatible bucket.
type ObjectStore struct {
	minio  *minio.Client
	bucket string
}

func NewObjectStore(cfg Config) (*ObjectStore, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Access, cfg.Secret, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &ObjectStore{
		minio:  mc,
		bucket: cfg.Bucket,
	}, nil
}

func (s *ObjectStore) Bucket() string {
	return s.bucket
}

func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.minio.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if exists {
		return nil
	}

	if err := s.minio.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		exists, checkErr := s.minio.BucketExists(ctx, s.bucket)
		if checkErr == nil && exists {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}

	return nil
}

func (s *ObjectStore) Put(ctx context.Context, name string, data []byte, contentType string) (Object, error) {
	if err := ValidName(name); err != nil {
		return Object{}, err
	}

	info, err := s.minio.PutObject(
		ctx,
		s.bucket,
		name,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType},
	)
	if err != nil {
		return Object{}, fmt.Errorf("put object %s: %w", name, err)
	}

	return Object{
		Name:        name,
		Size:        info.Size,
		ContentType: contentType,
		ModTime:     info.LastModified,
	}, nil
}

func (s *ObjectStore) Open(ctx context.Context, name string) (Object, io.ReadSeekCloser, error) {
	if err := ValidName(name); err != nil {
		return Object{}, nil, err
	}

	obj, err := s.minio.GetObject(ctx, s.bucket, name, minio.GetObjectOptions{})
	if err != nil {
		return Object{}, nil, s.classify(name, err)
	}

	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return Object{}, nil, s.classify(name, err)
	}

	contentType := stat.ContentType
	if contentType == "" {
		contentType = contentTypeForName(name)
	}

	return Object{
		Name:        name,
		Size:        stat.Size,
		ContentType: contentType,
		ModTime:     stat.LastModified,
	}, obj, nil
}

func (s *ObjectStore) Remove(ctx context.Context, name string) error {
	if err := ValidName(name); err != nil {
		return err
	}

	err := s.minio.RemoveObject(ctx, s.bucket, name, minio.RemoveObjectOptions{})
	if err == nil || isMissingObject(err) {
		return nil
	}
	return fmt.Errorf("remove object %s: %w", name, err)
}

func (s *ObjectStore) classify(name string, err error) error {
	if isMissingObject(err) {
		return fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, name)
	}
	return fmt.Errorf("get object %s: %w", name, err)
}

func isMissingObject(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchObject"
}
