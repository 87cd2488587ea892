package cache

import (
	"context"
	"errors"
	"sync"
)

// ErrBlobNotFound reports an absent or unreadable blob. The cache treats
// it as a miss.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore is any durable byte store addressable by key. Put-once, get,
// and delete are the only semantics the cache needs; per-key atomicity is
// assumed, nothing more.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, string, error)
	Remove(ctx context.Context, key string) error
}

// MemoryBlobStore is the in-process BlobStore, used in tests and in
// single-node deployments without object storage.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]memoryBlob
}

type memoryBlob struct {
	data        []byte
	contentType string
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string]memoryBlob)}
}

func (s *MemoryBlobStore) Put(_ context.Context, key, contentType string, data []byte) error {
	copied := make([]byte, len(data))
	copy(copied, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = memoryBlob{data: copied, contentType: contentType}
	return nil
}

func (s *MemoryBlobStore) Get(_ context.Context, key string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.blobs[key]
	if !ok {
		return nil, "", ErrBlobNotFound
	}
	copied := make([]byte, len(b.data))
	copy(copied, b.data)
	return copied, b.contentType, nil
}

func (s *MemoryBlobStore) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}
