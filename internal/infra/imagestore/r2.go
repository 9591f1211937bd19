package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/yanqian/xray-diagnosis/internal/domain/diagnosis"
)

const (
	singlePartLimit    = 5 << 20
	bucketCheckTimeout = 10 * time.Second
)

// R2Config addresses an S3-compatible bucket such as Cloudflare R2.
type R2Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
}

// R2Storage archives images through the S3 API.
type R2Storage struct {
	client *minio.Client
	bucket string
	logger *slog.Logger

	bucketMu    sync.Mutex
	bucketReady bool
}

// NewR2Storage builds the client; the bucket is created lazily on first successful write.
func NewR2Storage(cfg R2Config, logger *slog.Logger) (*R2Storage, error) {
	host, secure, err := splitEndpoint(cfg.Endpoint)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(host, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       secure,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("init r2 client: %w", err)
	}
	return &R2Storage{
		client: client,
		bucket: cfg.Bucket,
		logger: logger.With("component", "imagestore.r2"),
	}, nil
}

func (s *R2Storage) Put(ctx context.Context, key string, data []byte, mimeType string) (diagnosis.StoredObject, error) {
	if err := s.ensureBucket(); err != nil {
		return diagnosis.StoredObject{}, err
	}
	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:      mimeType,
		DisableMultipart: len(data) < singlePartLimit,
	})
	if err != nil {
		return diagnosis.StoredObject{}, fmt.Errorf("put %s: %w", key, err)
	}
	return diagnosis.StoredObject{Key: key, Size: info.Size, MimeType: mimeType, ETag: info.ETag}, nil
}

func (s *R2Storage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return obj, nil
}

func (s *R2Storage) Delete(ctx context.Context, key string) error {
	return s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
}

// ensureBucket remembers only success, so a failed check is retried on the
// next write. The check outlives the caller's request context.
func (s *R2Storage) ensureBucket() error {
	s.bucketMu.Lock()
	defer s.bucketMu.Unlock()
	if s.bucketReady {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), bucketCheckTimeout)
	defer cancel()
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil || !exists {
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
		if err != nil && minio.ToErrorResponse(err).Code != "BucketAlreadyOwnedByYou" {
			return fmt.Errorf("ensure bucket %s: %w", s.bucket, err)
		}
	}
	s.bucketReady = true
	s.logger.Info("bucket ready", "bucket", s.bucket)
	return nil
}

// splitEndpoint accepts either a bare host or a URL and reports whether TLS is used.
func splitEndpoint(raw string) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("r2 endpoint is empty")
	}
	if !strings.Contains(raw, "://") {
		return strings.TrimSuffix(raw, "/"), true, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse r2 endpoint: %w", err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("r2 endpoint %q has no host", raw)
	}
	return u.Host, u.Scheme == "https", nil
}

var _ diagnosis.ImageStorage = (*R2Storage)(nil)
