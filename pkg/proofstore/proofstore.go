package proofstore

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"taskpoint/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("proofstore",
	fx.Provide(registerClient, NewStore),
)

// Store hands out presigned URLs for proof media. The engine never reads
// proof bytes; validation status comes from the external validator.
type Store interface {
	PresignUpload(ctx context.Context, objectName string, expiry time.Duration) (string, error)
	PresignDownload(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

func registerClient(c *config.Config) *minio.Client {
	client, err := minio.New(c.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Minio.AccessKey, c.Minio.SecretKey, ""),
		Secure: c.Minio.Secure,
	})
	if err != nil {
		zap.L().Fatal("failed to create MinIO client", zap.Error(err))
	}

	exists, errBucketExists := client.BucketExists(context.Background(), c.Minio.BucketName)
	if errBucketExists != nil {
		zap.L().Fatal("failed to check if bucket exists", zap.Error(errBucketExists))
	}
	zap.L().Info("MinIO client initialized", zap.String("endpoint", c.Minio.Endpoint), zap.Bool("bucketExists", exists))
	return client
}

type minioStore struct {
	client *minio.Client
	bucket string
}

type StoreParams struct {
	fx.In
	Client *minio.Client
	Config *config.Config
}

func NewStore(p StoreParams) Store {
	return &minioStore{client: p.Client, bucket: p.Config.Minio.BucketName}
}

func (s *minioStore) PresignUpload(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedPutObject(ctx, s.bucket, objectName, expiry)
	if err != nil {
		return "", fmt.Errorf("presign upload: %w", err)
	}
	return u.String(), nil
}

func (s *minioStore) PresignDownload(ctx context.Context, objectName string, expiry time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign download: %w", err)
	}
	return u.String(), nil
}
