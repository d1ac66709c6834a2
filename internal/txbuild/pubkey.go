package txbuild

import (
	"crypto/sha256"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PublicKey is a 32-byte Solana account key.
type PublicKey [32]byte

// ParsePublicKey decodes a base58 account key.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("decode public key %q: %w", s, err)
	}
	if len(raw) != 32 {
		return pk, fmt.Errorf("public key %q: expected 32 bytes, got %d", s, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// MustPublicKey parses a key known to be valid at compile time.
func MustPublicKey(s string) PublicKey {
	pk, err := ParsePublicKey(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// String returns the base58 encoding.
func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

// IsOnCurve reports whether the key is a valid ed25519 point.
// Program-derived addresses are required to be off-curve.
func (pk PublicKey) IsOnCurve() bool {
	_, err := new(edwards25519.Point).SetBytes(pk[:])
	return err == nil
}

// pdaMarker is appended when hashing program-derived address seeds.
var pdaMarker = []byte("ProgramDerivedAddress")

// maxSeedLen is the protocol limit for a single PDA seed.
const maxSeedLen = 32

// FindProgramAddress derives the program address for seeds, searching
// bump values downward from 255 until an off-curve point is found.
func FindProgramAddress(seeds [][]byte, program PublicKey) (PublicKey, uint8, error) {
	for _, seed := range seeds {
		if len(seed) > maxSeedLen {
			return PublicKey{}, 0, fmt.Errorf("seed exceeds %d bytes", maxSeedLen)
		}
	}

	for bump := 255; bump >= 0; bump-- {
		var data []byte
		for _, seed := range seeds {
			data = append(data, seed...)
		}
		data = append(data, byte(bump))
		data = append(data, program[:]...)
		data = append(data, pdaMarker...)

		hash := sha256.Sum256(data)

		var pk PublicKey
		copy(pk[:], hash[:])
		if !pk.IsOnCurve() {
			return pk, uint8(bump), nil
		}
	}

	return PublicKey{}, 0, fmt.Errorf("no viable program address for seeds")
}
