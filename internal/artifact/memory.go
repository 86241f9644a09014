package artifact

import (
	"context"
	"fmt"
	"sync"

	"github.com/storyreel/api/internal/model"
)

// MemoryStore keeps artifacts in process memory. Used by tests and the
// single-process development setup.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Name() string { return "memory" }

func (s *MemoryStore) Put(ctx context.Context, key Key, data []byte, kind model.ArtifactKind) (model.ArtifactRef, error) {
	k := objectKey(key, kind)
	buf := append([]byte(nil), data...)

	s.mu.Lock()
	s.blobs[k] = buf
	s.mu.Unlock()

	return model.ArtifactRef{Store: s.Name(), Key: k, Kind: kind, Size: int64(len(buf))}, nil
}

func (s *MemoryStore) Get(ctx context.Context, ref model.ArtifactRef) ([]byte, error) {
	if err := checkStore(s, ref); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[ref.Key]
	if !ok {
		return nil, fmt.Errorf("artifact %s: %w", ref.Key, model.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Delete(ctx context.Context, ref model.ArtifactRef) error {
	if err := checkStore(s, ref); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.blobs, ref.Key)
	s.mu.Unlock()
	return nil
}

// Len returns the number of stored blobs
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}
