package txbuild

import "encoding/binary"

// ComputeBudgetProgramID is the compute budget native program.
var ComputeBudgetProgramID = MustPublicKey("ComputeBudget111111111111111111111111111111")

// Compute budget instruction tags.
const (
	computeUnitLimitTag = 0x02
	computeUnitPriceTag = 0x03
)

// Default budget directives for perp transactions.
const (
	DefaultComputeUnitLimit = uint32(600_000)
	DefaultComputeUnitPrice = uint64(50_000) // micro-lamports per unit
)

// SetComputeUnitLimit builds the unit-limit directive. Must be the
// first instruction of the transaction.
func SetComputeUnitLimit(units uint32) Instruction {
	data := make([]byte, 5)
	data[0] = computeUnitLimitTag
	binary.LittleEndian.PutUint32(data[1:], units)
	return Instruction{ProgramID: ComputeBudgetProgramID, Data: data}
}

// SetComputeUnitPrice builds the unit-price directive. Must follow the
// unit limit and precede all domain instructions.
func SetComputeUnitPrice(microLamports uint64) Instruction {
	data := make([]byte, 9)
	data[0] = computeUnitPriceTag
	binary.LittleEndian.PutUint64(data[1:], microLamports)
	return Instruction{ProgramID: ComputeBudgetProgramID, Data: data}
}
