// Package storage archives prescription photos in object storage, keyed by
// the same content hash used by the result cache.  The archive feeds manual
// review of disputed extractions and re-processing after model upgrades.
package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dosewise/rxlens/internal/config"
	"github.com/dosewise/rxlens/internal/infrastructure/monitoring/logging"
	apperrors "github.com/dosewise/rxlens/pkg/errors"
)

// PhotoStore persists and retrieves prescription photos by content hash.
type PhotoStore interface {
	Save(ctx context.Context, hash string, image []byte) error
	Load(ctx context.Context, hash string) ([]byte, error)
}

type minioStore struct {
	client *minio.Client
	bucket string
	logger logging.Logger
}

// NewMinIOStore constructs the production PhotoStore and ensures the bucket
// exists.
func NewMinIOStore(ctx context.Context, cfg config.MinIOConfig, logger logging.Logger) (PhotoStore, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeServiceUnavailable, "minio client")
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeServiceUnavailable, "minio bucket check")
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeServiceUnavailable, "minio bucket create")
		}
	}

	return &minioStore{client: client, bucket: cfg.Bucket, logger: logger.Named("photos")}, nil
}

func objectName(hash string) string {
	return fmt.Sprintf("photos/%s.jpg", hash)
}

func (s *minioStore) Save(ctx context.Context, hash string, image []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, objectName(hash),
		bytes.NewReader(image), int64(len(image)),
		minio.PutObjectOptions{ContentType: "image/jpeg"})
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeServiceUnavailable, "photo save")
	}
	return nil
}

func (s *minioStore) Load(ctx context.Context, hash string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, objectName(hash), minio.GetObjectOptions{})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeServiceUnavailable, "photo load")
	}
	defer obj.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(obj); err != nil {
		if resp := minio.ToErrorResponse(err); resp.Code == "NoSuchKey" {
			return nil, apperrors.NotFound("photo not found").WithDetail(hash)
		}
		return nil, apperrors.Wrap(err, apperrors.ErrCodeServiceUnavailable, "photo read")
	}
	return buf.Bytes(), nil
}
