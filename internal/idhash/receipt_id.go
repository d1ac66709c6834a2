package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeReceiptID computes a deterministic receipt_id using SHA256.
// Formula: SHA256(wallet|market|open_signature)
// Returns hex-encoded hash (64 characters).
func ComputeReceiptID(wallet, market, openSignature string) string {
	data := fmt.Sprintf("%s|%s|%s", wallet, market, openSignature)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
