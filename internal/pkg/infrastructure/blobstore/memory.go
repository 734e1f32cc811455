package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu      sync.Mutex
	buckets map[uuid.UUID]map[uuid.UUID][]byte
}

//NewMemoryStore returns a Store that keeps all objects in process memory. It is
//used when no object store endpoint is configured, and by tests.
func NewMemoryStore() Store {
	return &memoryStore{buckets: map[uuid.UUID]map[uuid.UUID][]byte{}}
}

func (s *memoryStore) Upload(ctx context.Context, companyID, objectID uuid.UUID, r io.Reader, size int64) error {
	data, err := io.ReadAll(io.LimitReader(r, size))
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return fmt.Errorf("short upload of object %s: got %d of %d bytes", objectID, len(data), size)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.buckets[companyID]
	if !ok {
		bucket = map[uuid.UUID][]byte{}
		s.buckets[companyID] = bucket
	}
	bucket[objectID] = data

	return nil
}

func (s *memoryStore) Download(ctx context.Context, companyID, objectID uuid.UUID) (*Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.buckets[companyID][objectID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, objectID)
	}

	return newStream(io.NopCloser(bytes.NewReader(data)), int64(len(data))), nil
}

func (s *memoryStore) Delete(ctx context.Context, companyID, objectID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.buckets[companyID], objectID)
	return nil
}
