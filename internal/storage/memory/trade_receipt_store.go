package memory

import (
	"context"
	"sort"
	"sync"

	"solana-perp-engine/internal/domain"
	"solana-perp-engine/internal/storage"
)

// TradeReceiptStore is an in-memory implementation of storage.TradeReceiptStore.
type TradeReceiptStore struct {
	mu   sync.RWMutex
	data map[string]*domain.TradeReceipt // keyed by receipt_id
}

// NewTradeReceiptStore creates a new in-memory trade receipt store.
func NewTradeReceiptStore() *TradeReceiptStore {
	return &TradeReceiptStore{
		data: make(map[string]*domain.TradeReceipt),
	}
}

// Compile-time interface check.
var _ storage.TradeReceiptStore = (*TradeReceiptStore)(nil)

// Insert adds a new receipt. Returns ErrDuplicateKey if receipt_id exists.
func (s *TradeReceiptStore) Insert(_ context.Context, r *domain.TradeReceipt) error {
	if r == nil || r.ReceiptID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.ReceiptID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *r
	s.data[r.ReceiptID] = &cp
	return nil
}

// MarkClosed records the close signature and outcome for a receipt.
func (s *TradeReceiptStore) MarkClosed(_ context.Context, receiptID, closeSignature, outcome string, closedAt int64) error {
	if receiptID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.data[receiptID]
	if !ok {
		return storage.ErrNotFound
	}
	r.CloseSignature = closeSignature
	r.CloseOutcome = outcome
	r.ClosedAt = closedAt
	return nil
}

// GetByID retrieves a receipt. Returns ErrNotFound if not exists.
func (s *TradeReceiptStore) GetByID(_ context.Context, receiptID string) (*domain.TradeReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[receiptID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

// GetByWallet retrieves receipts for a wallet, newest first.
func (s *TradeReceiptStore) GetByWallet(_ context.Context, wallet string, limit int) ([]*domain.TradeReceipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.TradeReceipt
	for _, r := range s.data {
		if r.Wallet == wallet {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OpenedAt > out[j].OpenedAt
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
