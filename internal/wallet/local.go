package wallet

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mr-tron/base58"

	"solana-perp-engine/internal/txbuild"
)

// LocalWallet signs with an in-process ed25519 keypair.
type LocalWallet struct {
	priv ed25519.PrivateKey
	pub  txbuild.PublicKey
}

// NewLocalWallet creates a wallet from a 64-byte secret key
// (seed || public key, the Solana keypair layout).
func NewLocalWallet(secretKey []byte) (*LocalWallet, error) {
	if len(secretKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("secret key: expected %d bytes, got %d", ed25519.PrivateKeySize, len(secretKey))
	}
	priv := ed25519.PrivateKey(secretKey)

	var pub txbuild.PublicKey
	copy(pub[:], priv.Public().(ed25519.PublicKey))
	return &LocalWallet{priv: priv, pub: pub}, nil
}

// LoadLocalWallet reads a keypair file. Both the JSON byte-array
// format written by the standard keygen tooling and a raw base58
// secret key are accepted.
func LoadLocalWallet(path string) (*LocalWallet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair file: %w", err)
	}

	var intsForm []int
	if err := json.Unmarshal(raw, &intsForm); err == nil {
		key := make([]byte, len(intsForm))
		for i, v := range intsForm {
			if v < 0 || v > 255 {
				return nil, fmt.Errorf("keypair file byte %d out of range", i)
			}
			key[i] = byte(v)
		}
		return NewLocalWallet(key)
	}

	decoded, err := base58.Decode(string(trimSpace(raw)))
	if err != nil {
		return nil, fmt.Errorf("keypair file is neither a JSON byte array nor base58: %w", err)
	}
	return NewLocalWallet(decoded)
}

func trimSpace(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && (b[start] == ' ' || b[start] == '\n' || b[start] == '\r' || b[start] == '\t') {
		start++
	}
	for end > start && (b[end-1] == ' ' || b[end-1] == '\n' || b[end-1] == '\r' || b[end-1] == '\t') {
		end--
	}
	return b[start:end]
}

// PublicKey returns the wallet's public key.
func (w *LocalWallet) PublicKey() txbuild.PublicKey {
	return w.pub
}

// Sign signs the serialized message.
func (w *LocalWallet) Sign(_ context.Context, message []byte) ([]byte, error) {
	return ed25519.Sign(w.priv, message), nil
}

// Ensure LocalWallet implements Signer
var _ Signer = (*LocalWallet)(nil)
