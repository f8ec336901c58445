package artifact

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioConfig configures an S3-compatible bucket used as a content-addressed store.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// MinioBackend stores each document under the hex SHA-256 of its bytes.
type MinioBackend struct {
	client *minio.Client
	bucket string
}

// NewMinioBackend connects to the endpoint and creates the bucket if missing.
func NewMinioBackend(ctx context.Context, cfg MinioConfig) (*MinioBackend, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		slog.Info("created artifact bucket", "bucket", cfg.Bucket)
	}

	return &MinioBackend{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads data under its content address.
func (m *MinioBackend) Put(ctx context.Context, data []byte) (Address, error) {
	addr := ContentAddress(data)
	_, err := m.client.PutObject(ctx, m.bucket, string(addr), bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"})
	if err != nil {
		return "", classifyMinioError(err, "put object")
	}
	return addr, nil
}

// Get downloads the object at addr and verifies it matches its address.
func (m *MinioBackend) Get(ctx context.Context, addr Address) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, string(addr), minio.GetObjectOptions{})
	if err != nil {
		return nil, classifyMinioError(err, "get object")
	}
	defer obj.Close()

	data, err := io.ReadAll(io.LimitReader(obj, maxDocumentSize))
	if err != nil {
		return nil, classifyMinioError(err, "read object")
	}
	if ContentAddress(data) != addr {
		return nil, NewMalformedResponseError(nil, fmt.Sprintf("object %s does not match its address", addr))
	}
	return data, nil
}

func classifyMinioError(err error, msg string) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket":
		return NewNotFoundError(msg + ": " + resp.Code)
	case resp.Code == "" || resp.StatusCode >= 500 || resp.Code == "SlowDown":
		return NewUnreachableError(err, msg)
	default:
		return NewMalformedResponseError(err, msg)
	}
}
