package solana

// LatestBlockhash is the ledger-supplied validity anchor: transactions
// built against Blockhash are eligible for inclusion until
// LastValidBlockHeight.
type LatestBlockhash struct {
	Blockhash            string
	LastValidBlockHeight uint64
}

// SignatureStatus reports confirmation progress for one signature.
type SignatureStatus struct {
	Slot               int64
	Confirmations      *int64 // nil once rooted
	ConfirmationStatus string // "processed" | "confirmed" | "finalized"
	Err                interface{}
}

// Confirmed reports whether the transaction reached at least the
// confirmed commitment without an execution error.
func (s *SignatureStatus) Confirmed() bool {
	if s == nil || s.Err != nil {
		return false
	}
	return s.ConfirmationStatus == "confirmed" || s.ConfirmationStatus == "finalized"
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64
	Owner      string
	Data       string // base64 encoded
	Executable bool
	RentEpoch  uint64
}
