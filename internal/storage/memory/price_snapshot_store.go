package memory

import (
	"context"
	"sort"
	"sync"

	"solana-perp-engine/internal/domain"
	"solana-perp-engine/internal/storage"
)

// PriceSnapshotStore is an in-memory implementation of storage.PriceSnapshotStore.
type PriceSnapshotStore struct {
	mu   sync.RWMutex
	data []*domain.PriceObservation
}

// NewPriceSnapshotStore creates a new in-memory price snapshot store.
func NewPriceSnapshotStore() *PriceSnapshotStore {
	return &PriceSnapshotStore{}
}

// Compile-time interface check.
var _ storage.PriceSnapshotStore = (*PriceSnapshotStore)(nil)

// InsertBulk appends one poll's observations.
func (s *PriceSnapshotStore) InsertBulk(_ context.Context, observations []*domain.PriceObservation) error {
	if len(observations) == 0 {
		return nil
	}
	for _, o := range observations {
		if o == nil || o.Symbol == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range observations {
		cp := *o
		s.data = append(s.data, &cp)
	}
	return nil
}

// GetBySymbol retrieves observations for symbol within [start, end].
func (s *PriceSnapshotStore) GetBySymbol(_ context.Context, symbol string, start, end int64) ([]*domain.PriceObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.PriceObservation
	for _, o := range s.data {
		if o.Symbol == symbol && o.ObservedAt >= start && o.ObservedAt <= end {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ObservedAt < out[j].ObservedAt
	})
	return out, nil
}
