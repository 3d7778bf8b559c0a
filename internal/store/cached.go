package store

import (
	"context"
	"sync/atomic"

	"cropdoc/internal/types"
)

// CacheStats counts cache traffic in front of the origin store.
type CacheStats struct {
	Hits         uint64
	Misses       uint64
	OriginWrites uint64
}

// CachedStore serves reads from a MemoryStore and falls back to origin.
// Writes go to origin first; the cache only learns what origin accepted.
type CachedStore struct {
	origin ResultStore
	cache  *MemoryStore

	hits         atomic.Uint64
	misses       atomic.Uint64
	originWrites atomic.Uint64
}

func NewCachedStore(origin ResultStore, size int) (*CachedStore, error) {
	cache, err := NewMemoryStore(size)
	if err != nil {
		return nil, err
	}
	return &CachedStore{origin: origin, cache: cache}, nil
}

func (s *CachedStore) Put(ctx context.Context, r *types.DiagnosisResult) error {
	if err := s.origin.Put(ctx, r); err != nil {
		return err
	}
	s.originWrites.Add(1)
	return s.cache.Put(ctx, r)
}

func (s *CachedStore) Get(ctx context.Context, id string) (*types.DiagnosisResult, error) {
	if r, err := s.cache.Get(ctx, id); err == nil {
		s.hits.Add(1)
		return r, nil
	}
	s.misses.Add(1)
	r, err := s.origin.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	_ = s.cache.Put(ctx, r)
	return r, nil
}

// List always reads origin; the cache only holds recently touched ids.
func (s *CachedStore) List(ctx context.Context, limit int) ([]*types.DiagnosisResult, error) {
	return s.origin.List(ctx, limit)
}

func (s *CachedStore) Stats() CacheStats {
	return CacheStats{
		Hits:         s.hits.Load(),
		Misses:       s.misses.Load(),
		OriginWrites: s.originWrites.Load(),
	}
}

