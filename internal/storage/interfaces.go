// Package storage defines the caller-side persistence interfaces. The
// engine core never writes here; the service wrapper records receipts
// and the price poll feeds the snapshot sink.
package storage

import (
	"context"

	"solana-perp-engine/internal/domain"
)

// TradeReceiptStore provides access to trade history.
type TradeReceiptStore interface {
	// Insert adds a new receipt. Returns ErrDuplicateKey if receipt_id exists.
	Insert(ctx context.Context, r *domain.TradeReceipt) error

	// MarkClosed records the close signature and outcome for a receipt.
	// Returns ErrNotFound if the receipt does not exist.
	MarkClosed(ctx context.Context, receiptID, closeSignature, outcome string, closedAt int64) error

	// GetByID retrieves a receipt. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, receiptID string) (*domain.TradeReceipt, error)

	// GetByWallet retrieves receipts for a wallet, newest first.
	GetByWallet(ctx context.Context, wallet string, limit int) ([]*domain.TradeReceipt, error)
}

// PriceSnapshotStore is the audit sink for oracle readings observed by
// the price-refresh poll. Append-only.
type PriceSnapshotStore interface {
	// InsertBulk appends one poll's observations.
	InsertBulk(ctx context.Context, observations []*domain.PriceObservation) error

	// GetBySymbol retrieves observations for symbol within [start, end]
	// (unix ms, inclusive), ordered by observation time ASC.
	GetBySymbol(ctx context.Context, symbol string, start, end int64) ([]*domain.PriceObservation, error)
}
