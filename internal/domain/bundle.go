package domain

// SignedBundle is an assembled, signed, not-yet-submitted transaction
// together with the validity window it was built against.
//
// A bundle is single-use: resubmission reuses the exact serialized bytes.
// Rebuilding would discard the signature the user already consented to.
type SignedBundle struct {
	Payload         []byte // fully signed wire transaction
	Signature       string // base58 primary signature, doubles as the tx id
	Blockhash       string // validity anchor the message is bound to
	LastValidHeight uint64 // block height after which the anchor lapses
}

// PositionHandle identifies an open position for auto-close input.
// The ledger is the source of truth; handles are never cached beyond
// one scheduling cycle.
type PositionHandle struct {
	Account        string // base58 position account address
	Market         Market
	SizeUsd        uint64 // 1e6 scaled USD
	CollateralUsd  uint64 // 1e6 scaled USD
	EntryPrice     uint64 // 1e6 scaled USD per target token
	OpenedAt       int64  // unix seconds
	CollateralMint string
}
