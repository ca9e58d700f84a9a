// Package content stores opaque blobs (assignment metadata, submission
// evidence) behind content-addressed references.
package content

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// Store puts and gets immutable blobs by reference.
type Store interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

// MemoryStore addresses blobs by their sha256 digest. Putting the same bytes
// twice yields the same reference.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Put(ctx context.Context, data []byte) (string, error) {
	sum := sha256.Sum256(data)
	ref := "sha256:" + hex.EncodeToString(sum[:])
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[ref]; !ok {
		buf := make([]byte, len(data))
		copy(buf, data)
		s.blobs[ref] = buf
	}
	return ref, nil
}

func (s *MemoryStore) Get(ctx context.Context, ref string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[ref]
	if !ok {
		return nil, fmt.Errorf("content %s not found", ref)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
