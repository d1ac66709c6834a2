package clickhouse

import (
	"context"
	"fmt"

	"solana-perp-engine/internal/domain"
	"solana-perp-engine/internal/storage"
)

// PriceSnapshotStore implements storage.PriceSnapshotStore using ClickHouse.
// Observations are append-only timeseries data, the workload ClickHouse
// is kept around for.
type PriceSnapshotStore struct {
	conn *Conn
}

// NewPriceSnapshotStore creates a new PriceSnapshotStore.
func NewPriceSnapshotStore(conn *Conn) *PriceSnapshotStore {
	return &PriceSnapshotStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceSnapshotStore = (*PriceSnapshotStore)(nil)

// InsertBulk appends one poll's observations using a batch.
func (s *PriceSnapshotStore) InsertBulk(ctx context.Context, observations []*domain.PriceObservation) error {
	if len(observations) == 0 {
		return nil
	}
	for _, o := range observations {
		if o == nil || o.Symbol == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_snapshots (
			symbol, feed_id, price, ema_price, exponent,
			confidence, publish_time, observed_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, o := range observations {
		if err := batch.Append(
			o.Symbol, o.FeedID, o.Price, o.EMAPrice, o.Exponent,
			o.Confidence, o.PublishTime, o.ObservedAt,
		); err != nil {
			return fmt.Errorf("append observation: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetBySymbol retrieves observations for symbol within [start, end].
func (s *PriceSnapshotStore) GetBySymbol(ctx context.Context, symbol string, start, end int64) ([]*domain.PriceObservation, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT symbol, feed_id, price, ema_price, exponent,
		       confidence, publish_time, observed_at
		FROM price_snapshots
		WHERE symbol = ? AND observed_at >= ? AND observed_at <= ?
		ORDER BY observed_at ASC
	`, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("query price snapshots: %w", err)
	}
	defer rows.Close()

	var out []*domain.PriceObservation
	for rows.Next() {
		var o domain.PriceObservation
		if err := rows.Scan(
			&o.Symbol, &o.FeedID, &o.Price, &o.EMAPrice, &o.Exponent,
			&o.Confidence, &o.PublishTime, &o.ObservedAt,
		); err != nil {
			return nil, fmt.Errorf("scan price snapshot: %w", err)
		}
		out = append(out, &o)
	}
	return out, rows.Err()
}
