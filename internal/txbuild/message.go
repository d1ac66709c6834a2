package txbuild

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// Anchor is the ledger validity window a message is bound to. A
// transaction built against an anchor is only eligible for inclusion
// until LastValidHeight.
type Anchor struct {
	Blockhash       string
	LastValidHeight uint64
}

// compiledAccount is one deduplicated account with merged privileges.
type compiledAccount struct {
	key      PublicKey
	signer   bool
	writable bool
}

// Message is a compiled, orderable account/instruction set bound to an
// anchor. Serialize produces the exact bytes the wallet signs.
type Message struct {
	accounts     []compiledAccount
	instructions []Instruction
	blockhash    [32]byte
}

// Compile deduplicates account keys across instructions, merges their
// privileges, and orders them per protocol: fee payer, writable
// signers, read-only signers, writable non-signers, read-only
// non-signers (program IDs last among these).
func Compile(payer PublicKey, instructions []Instruction, anchor Anchor) (*Message, error) {
	if len(instructions) == 0 {
		return nil, fmt.Errorf("no instructions to compile")
	}

	blockhashRaw, err := base58.Decode(anchor.Blockhash)
	if err != nil {
		return nil, fmt.Errorf("decode blockhash: %w", err)
	}
	if len(blockhashRaw) != 32 {
		return nil, fmt.Errorf("blockhash: expected 32 bytes, got %d", len(blockhashRaw))
	}

	index := make(map[PublicKey]int)
	var accounts []compiledAccount

	upsert := func(key PublicKey, signer, writable bool) {
		if i, ok := index[key]; ok {
			accounts[i].signer = accounts[i].signer || signer
			accounts[i].writable = accounts[i].writable || writable
			return
		}
		index[key] = len(accounts)
		accounts = append(accounts, compiledAccount{key: key, signer: signer, writable: writable})
	}

	// Fee payer is always the first writable signer.
	upsert(payer, true, true)
	for _, ins := range instructions {
		for _, meta := range ins.Accounts {
			upsert(meta.Key, meta.Signer, meta.Writable)
		}
		upsert(ins.ProgramID, false, false)
	}

	// Stable partition into privilege classes, first-seen order kept
	// within each class.
	ordered := make([]compiledAccount, 0, len(accounts))
	for _, class := range []func(compiledAccount) bool{
		func(a compiledAccount) bool { return a.signer && a.writable },
		func(a compiledAccount) bool { return a.signer && !a.writable },
		func(a compiledAccount) bool { return !a.signer && a.writable },
		func(a compiledAccount) bool { return !a.signer && !a.writable },
	} {
		for _, a := range accounts {
			if class(a) {
				ordered = append(ordered, a)
			}
		}
	}

	m := &Message{accounts: ordered, instructions: instructions}
	copy(m.blockhash[:], blockhashRaw)
	return m, nil
}

// NumRequiredSignatures returns how many signatures the message needs.
func (m *Message) NumRequiredSignatures() int {
	n := 0
	for _, a := range m.accounts {
		if a.signer {
			n++
		}
	}
	return n
}

// accountIndex returns the compiled index for key.
func (m *Message) accountIndex(key PublicKey) (int, error) {
	for i, a := range m.accounts {
		if a.key == key {
			return i, nil
		}
	}
	return 0, fmt.Errorf("account %s not compiled", key)
}

// Serialize produces the wire message: header, compact account key
// array, blockhash anchor, compact instruction array.
func (m *Message) Serialize() ([]byte, error) {
	numRequired := 0
	numReadonlySigned := 0
	numReadonlyUnsigned := 0
	for _, a := range m.accounts {
		if a.signer {
			numRequired++
			if !a.writable {
				numReadonlySigned++
			}
		} else if !a.writable {
			numReadonlyUnsigned++
		}
	}

	out := []byte{byte(numRequired), byte(numReadonlySigned), byte(numReadonlyUnsigned)}

	out = appendCompactU16(out, len(m.accounts))
	for _, a := range m.accounts {
		out = append(out, a.key[:]...)
	}

	out = append(out, m.blockhash[:]...)

	out = appendCompactU16(out, len(m.instructions))
	for _, ins := range m.instructions {
		progIdx, err := m.accountIndex(ins.ProgramID)
		if err != nil {
			return nil, err
		}
		out = append(out, byte(progIdx))

		out = appendCompactU16(out, len(ins.Accounts))
		for _, meta := range ins.Accounts {
			idx, err := m.accountIndex(meta.Key)
			if err != nil {
				return nil, err
			}
			out = append(out, byte(idx))
		}

		out = appendCompactU16(out, len(ins.Data))
		out = append(out, ins.Data...)
	}

	return out, nil
}

// AssembleTransaction prepends the compact signature array to the
// serialized message, producing the submittable wire transaction.
func AssembleTransaction(message []byte, signatures [][]byte) ([]byte, error) {
	if len(signatures) == 0 {
		return nil, fmt.Errorf("transaction requires at least one signature")
	}
	for i, sig := range signatures {
		if len(sig) != 64 {
			return nil, fmt.Errorf("signature %d: expected 64 bytes, got %d", i, len(sig))
		}
	}

	out := appendCompactU16(nil, len(signatures))
	for _, sig := range signatures {
		out = append(out, sig...)
	}
	return append(out, message...), nil
}

// appendCompactU16 appends v in the shortvec encoding used by the
// transaction wire format.
func appendCompactU16(b []byte, v int) []byte {
	for {
		if v < 0x80 {
			return append(b, byte(v))
		}
		b = append(b, byte(v&0x7f)|0x80)
		v >>= 7
	}
}
