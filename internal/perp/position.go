package perp

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"

	"solana-perp-engine/internal/catalog"
	"solana-perp-engine/internal/domain"
	"solana-perp-engine/internal/solana"
	"solana-perp-engine/internal/txbuild"
)

// Position account layout:
//
//	discriminator(8) | owner(32) | market(32) | side(1) |
//	size_usd(8) | collateral_usd(8) | entry_price(8) | open_time(8)
const positionAccountLen = 105

// decodePosition parses a base64 position account into a handle.
func decodePosition(account string, market domain.Market, data string) (*domain.PositionHandle, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode position account data: %w", err)
	}
	if len(raw) < positionAccountLen {
		return nil, fmt.Errorf("position account data too short: %d", len(raw))
	}

	side := domain.SideLong
	if raw[72] == 2 {
		side = domain.SideShort
	}
	if side != market.Side {
		return nil, fmt.Errorf("position side %s does not match market side %s", side, market.Side)
	}

	return &domain.PositionHandle{
		Account:        account,
		Market:         market,
		SizeUsd:        binary.LittleEndian.Uint64(raw[73:81]),
		CollateralUsd:  binary.LittleEndian.Uint64(raw[81:89]),
		EntryPrice:     binary.LittleEndian.Uint64(raw[89:97]),
		OpenedAt:       int64(binary.LittleEndian.Uint64(raw[97:105])),
		CollateralMint: market.CollateralMint,
	}, nil
}

// PositionReader queries the ledger for position accounts. The ledger
// is authoritative: results are never cached.
type PositionReader struct {
	rpc     solana.RPCClient
	cat     *catalog.Catalog
	program *Program
}

// NewPositionReader creates a PositionReader.
func NewPositionReader(rpc solana.RPCClient, cat *catalog.Catalog, program *Program) *PositionReader {
	return &PositionReader{rpc: rpc, cat: cat, program: program}
}

// Position fetches owner's position on market. Returns (nil, nil) when
// the position does not exist: absence is a normal outcome, used as
// the idempotent fallback check after ambiguous close confirmations.
func (r *PositionReader) Position(ctx context.Context, owner txbuild.PublicKey, market domain.Market) (*domain.PositionHandle, error) {
	marketKey, err := txbuild.ParsePublicKey(market.Account)
	if err != nil {
		return nil, fmt.Errorf("parse market account: %w", err)
	}
	address, err := r.program.PositionAddress(owner, marketKey)
	if err != nil {
		return nil, err
	}

	info, err := r.rpc.GetAccountInfo(ctx, address.String())
	if err != nil {
		return nil, fmt.Errorf("fetch position account: %w", err)
	}
	if info == nil || info.Data == "" {
		return nil, nil
	}

	return decodePosition(address.String(), market, info.Data)
}

// Exists reports whether owner holds a live position on market.
func (r *PositionReader) Exists(ctx context.Context, owner txbuild.PublicKey, market domain.Market) (bool, error) {
	pos, err := r.Position(ctx, owner, market)
	if err != nil {
		return false, err
	}
	return pos != nil, nil
}

// OpenPositions scans every catalog market for owner's live positions.
func (r *PositionReader) OpenPositions(ctx context.Context, owner txbuild.PublicKey) ([]domain.PositionHandle, error) {
	var out []domain.PositionHandle
	for _, pool := range r.cat.Pools() {
		for _, market := range pool.Markets {
			pos, err := r.Position(ctx, owner, market)
			if err != nil {
				return nil, fmt.Errorf("scan market %s: %w", market.Account, err)
			}
			if pos != nil {
				out = append(out, *pos)
			}
		}
	}
	return out, nil
}

// EncodePositionAccount builds raw account data in the position layout.
// Used by tests and local fixtures.
func EncodePositionAccount(owner txbuild.PublicKey, market domain.Market, sizeUsd, collateralUsd, entryPrice uint64, openedAt int64) string {
	raw := make([]byte, positionAccountLen)
	copy(raw[:8], discriminator("position"))
	copy(raw[8:40], owner[:])
	marketRaw, _ := base58.Decode(market.Account)
	copy(raw[40:72], marketRaw)
	raw[72] = sideByte(market.Side)
	binary.LittleEndian.PutUint64(raw[73:81], sizeUsd)
	binary.LittleEndian.PutUint64(raw[81:89], collateralUsd)
	binary.LittleEndian.PutUint64(raw[89:97], entryPrice)
	binary.LittleEndian.PutUint64(raw[97:105], uint64(openedAt))
	return base64.StdEncoding.EncodeToString(raw)
}
