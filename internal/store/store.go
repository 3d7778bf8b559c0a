// Package store persists finished diagnosis results and their photos.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"cropdoc/internal/types"
)

var ErrNotFound = errors.New("result not found")

// ResultStore defines operations for persisting diagnosis results.
type ResultStore interface {
	Put(ctx context.Context, r *types.DiagnosisResult) error
	Get(ctx context.Context, id string) (*types.DiagnosisResult, error)
	List(ctx context.Context, limit int) ([]*types.DiagnosisResult, error)
}

// MemoryStore keeps the most recent results in a bounded LRU. The cache is
// safe for concurrent use on its own.
type MemoryStore struct {
	cache *lru.Cache[string, *types.DiagnosisResult]
}

func NewMemoryStore(size int) (*MemoryStore, error) {
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, *types.DiagnosisResult](size)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: cache}, nil
}

func (s *MemoryStore) Put(_ context.Context, r *types.DiagnosisResult) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	if r == nil {
		return fmt.Errorf("result is nil")
	}
	id := strings.TrimSpace(r.ID)
	if id == "" {
		return fmt.Errorf("result id is required")
	}
	cp := *r
	s.cache.Add(id, &cp)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*types.DiagnosisResult, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	r, ok := s.cache.Get(strings.TrimSpace(id))
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// List returns up to limit results, newest first.
func (s *MemoryStore) List(_ context.Context, limit int) ([]*types.DiagnosisResult, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	values := s.cache.Values()

	out := make([]*types.DiagnosisResult, 0, len(values))
	for _, r := range values {
		cp := *r
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
