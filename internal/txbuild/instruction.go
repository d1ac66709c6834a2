// Package txbuild assembles ordered instruction sets into signable
// Solana transactions. Instruction order is a protocol requirement:
// compute-budget directives must precede the instructions they budget
// for, and swap legs must precede the position instruction they fund.
package txbuild

// AccountMeta describes one account an instruction touches.
type AccountMeta struct {
	Key      PublicKey
	Signer   bool
	Writable bool
}

// Instruction is one program invocation.
type Instruction struct {
	ProgramID PublicKey
	Accounts  []AccountMeta
	Data      []byte
}

// Meta helpers keep instruction constructors readable.

// ReadOnly returns a non-signing read-only account meta.
func ReadOnly(key PublicKey) AccountMeta {
	return AccountMeta{Key: key}
}

// Writable returns a non-signing writable account meta.
func Writable(key PublicKey) AccountMeta {
	return AccountMeta{Key: key, Writable: true}
}

// WritableSigner returns a signing writable account meta.
func WritableSigner(key PublicKey) AccountMeta {
	return AccountMeta{Key: key, Signer: true, Writable: true}
}
