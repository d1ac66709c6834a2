// Package wallet abstracts transaction signing. The engine never holds
// key material itself; it talks to a Signer, which may be a local
// keypair or a remote wallet that can refuse.
package wallet

import (
	"context"
	"errors"

	"solana-perp-engine/internal/txbuild"
)

// ErrUserRejected is returned when the wallet declines to sign.
// Callers report it distinctly from system failures.
var ErrUserRejected = errors.New("wallet rejected signing request")

// Signer signs serialized transaction messages.
type Signer interface {
	// PublicKey returns the signing key, used as fee payer and
	// position owner.
	PublicKey() txbuild.PublicKey

	// Sign produces the 64-byte ed25519 signature over message.
	// Returns ErrUserRejected when the user declines.
	Sign(ctx context.Context, message []byte) ([]byte, error)
}
