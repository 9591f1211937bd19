package diagnosis

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

// ErrImageNotFound is returned by ImageStorage.Get when the key holds no object.
var ErrImageNotFound = errors.New("image not found")

// ImageStorage archives submitted X-ray images (R2/S3/local).
type ImageStorage interface {
	Put(ctx context.Context, key string, data []byte, mimeType string) (StoredObject, error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// StoredObject captures persisted blob metadata.
type StoredObject struct {
	Key      string
	Size     int64
	MimeType string
	ETag     string
}

// ReportStore keeps recent reports per account.
type ReportStore interface {
	Save(ctx context.Context, report Report, ttl time.Duration) error
	Get(ctx context.Context, id uuid.UUID) (Report, bool, error)
	ListByAccount(ctx context.Context, accountID int64, limit int) ([]Report, error)
}
