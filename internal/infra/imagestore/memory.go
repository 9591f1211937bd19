package imagestore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sync"

	"github.com/yanqian/xray-diagnosis/internal/domain/diagnosis"
)

// ErrNotFound is returned when a key has no stored image.
var ErrNotFound = diagnosis.ErrImageNotFound

type blob struct {
	data     []byte
	mimeType string
	etag     string
}

// MemoryStorage keeps archived images in memory.
type MemoryStorage struct {
	mu    sync.RWMutex
	blobs map[string]blob
}

// NewMemoryStorage returns an empty archive.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{blobs: make(map[string]blob)}
}

func (s *MemoryStorage) Put(_ context.Context, key string, data []byte, mimeType string) (diagnosis.StoredObject, error) {
	sum := sha256.Sum256(data)
	b := blob{
		data:     append([]byte(nil), data...),
		mimeType: mimeType,
		etag:     hex.EncodeToString(sum[:16]),
	}
	s.mu.Lock()
	s.blobs[key] = b
	s.mu.Unlock()
	return diagnosis.StoredObject{Key: key, Size: int64(len(data)), MimeType: mimeType, ETag: b.etag}, nil
}

func (s *MemoryStorage) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b.data)), nil
}

func (s *MemoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

var _ diagnosis.ImageStorage = (*MemoryStorage)(nil)
