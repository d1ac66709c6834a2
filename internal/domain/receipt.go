package domain

// TradeReceipt records one completed open/close cycle for history.
// Written by the caller-facing service after the flow finishes; the
// engine core itself never persists.
type TradeReceipt struct {
	ReceiptID      string // deterministic hash, see idhash
	Wallet         string // base58 owner address
	Market         string // base58 market account
	Side           string // "long" | "short"
	TargetSymbol   string
	InputSymbol    string
	SizeUsd        uint64 // 1e6 scaled USD
	CollateralUsd  uint64 // 1e6 scaled USD
	EntryPrice     uint64 // 1e6 scaled USD
	OpenSignature  string
	CloseSignature string // empty until the close lands
	CloseOutcome   string // outcome code, see constants below
	OpenedAt       int64  // unix ms
	ClosedAt       int64  // unix ms, zero until closed
}

// Close outcome codes
const (
	CloseOutcomeConfirmed = "CONFIRMED"
	CloseOutcomeImplicit  = "IMPLICIT"  // position gone after ambiguous confirm
	CloseOutcomeExpired   = "EXPIRED"   // pre-signed bundle lapsed before fire
	CloseOutcomeCancelled = "CANCELLED" // auto-close cancelled by the caller
)

// PriceObservation is one oracle reading captured by the price poll,
// kept for audit in the snapshot sink.
type PriceObservation struct {
	Symbol      string
	FeedID      string
	Price       int64 // scaled by 10^Exponent
	EMAPrice    int64
	Exponent    int32
	Confidence  uint64
	PublishTime int64 // unix seconds
	ObservedAt  int64 // unix ms, client clock
}
