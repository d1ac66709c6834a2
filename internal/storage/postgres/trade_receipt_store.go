package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"solana-perp-engine/internal/domain"
	"solana-perp-engine/internal/storage"
)

// TradeReceiptStore implements storage.TradeReceiptStore using PostgreSQL.
type TradeReceiptStore struct {
	pool *Pool
}

// NewTradeReceiptStore creates a new TradeReceiptStore.
func NewTradeReceiptStore(pool *Pool) *TradeReceiptStore {
	return &TradeReceiptStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeReceiptStore = (*TradeReceiptStore)(nil)

// Insert adds a new receipt. Returns ErrDuplicateKey if receipt_id exists.
func (s *TradeReceiptStore) Insert(ctx context.Context, r *domain.TradeReceipt) error {
	if r == nil || r.ReceiptID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO trade_receipts (
			receipt_id, wallet, market, side,
			target_symbol, input_symbol,
			size_usd, collateral_usd, entry_price,
			open_signature, close_signature, close_outcome,
			opened_at, closed_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6,
			$7, $8, $9,
			$10, $11, $12,
			$13, $14
		)
	`

	_, err := s.pool.Exec(ctx, query,
		r.ReceiptID, r.Wallet, r.Market, r.Side,
		r.TargetSymbol, r.InputSymbol,
		r.SizeUsd, r.CollateralUsd, r.EntryPrice,
		r.OpenSignature, r.CloseSignature, r.CloseOutcome,
		r.OpenedAt, r.ClosedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade receipt: %w", err)
	}
	return nil
}

// MarkClosed records the close signature and outcome for a receipt.
func (s *TradeReceiptStore) MarkClosed(ctx context.Context, receiptID, closeSignature, outcome string, closedAt int64) error {
	if receiptID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE trade_receipts
		SET close_signature = $2, close_outcome = $3, closed_at = $4
		WHERE receipt_id = $1
	`

	tag, err := s.pool.Exec(ctx, query, receiptID, closeSignature, outcome, closedAt)
	if err != nil {
		return fmt.Errorf("mark receipt closed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByID retrieves a receipt. Returns ErrNotFound if not exists.
func (s *TradeReceiptStore) GetByID(ctx context.Context, receiptID string) (*domain.TradeReceipt, error) {
	query := `
		SELECT receipt_id, wallet, market, side,
		       target_symbol, input_symbol,
		       size_usd, collateral_usd, entry_price,
		       open_signature, close_signature, close_outcome,
		       opened_at, closed_at
		FROM trade_receipts
		WHERE receipt_id = $1
	`

	row := s.pool.QueryRow(ctx, query, receiptID)
	r, err := scanReceipt(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade receipt: %w", err)
	}
	return r, nil
}

// GetByWallet retrieves receipts for a wallet, newest first.
func (s *TradeReceiptStore) GetByWallet(ctx context.Context, wallet string, limit int) ([]*domain.TradeReceipt, error) {
	query := `
		SELECT receipt_id, wallet, market, side,
		       target_symbol, input_symbol,
		       size_usd, collateral_usd, entry_price,
		       open_signature, close_signature, close_outcome,
		       opened_at, closed_at
		FROM trade_receipts
		WHERE wallet = $1
		ORDER BY opened_at DESC
		LIMIT $2
	`

	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, query, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("query trade receipts: %w", err)
	}
	defer rows.Close()

	var out []*domain.TradeReceipt
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade receipt: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// scanReceipt reads one receipt row.
func scanReceipt(row pgx.Row) (*domain.TradeReceipt, error) {
	var r domain.TradeReceipt
	err := row.Scan(
		&r.ReceiptID, &r.Wallet, &r.Market, &r.Side,
		&r.TargetSymbol, &r.InputSymbol,
		&r.SizeUsd, &r.CollateralUsd, &r.EntryPrice,
		&r.OpenSignature, &r.CloseSignature, &r.CloseOutcome,
		&r.OpenedAt, &r.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
