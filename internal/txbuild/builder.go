package txbuild

import (
	"fmt"
)

// UnsignedBundle is a serialized, not-yet-signed message plus the
// anchor it is bound to and any lookup tables the route requires.
type UnsignedBundle struct {
	Message      []byte
	Anchor       Anchor
	LookupTables []string // advisory; account keys are carried inline
}

// Builder assembles ordered instruction bundles. Compute-budget
// directives always come first: unit limit, then unit price, then the
// domain instructions in route order.
type Builder struct {
	unitLimit uint32
	unitPrice uint64
}

// BuilderOption configures Builder.
type BuilderOption func(*Builder)

// WithComputeUnitLimit overrides the default unit limit.
func WithComputeUnitLimit(units uint32) BuilderOption {
	return func(b *Builder) {
		b.unitLimit = units
	}
}

// WithComputeUnitPrice overrides the default unit price.
func WithComputeUnitPrice(microLamports uint64) BuilderOption {
	return func(b *Builder) {
		b.unitPrice = microLamports
	}
}

// NewBuilder creates a Builder with default budget directives.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{
		unitLimit: DefaultComputeUnitLimit,
		unitPrice: DefaultComputeUnitPrice,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build compiles the domain instructions into a single atomic bundle
// bound to anchor. The caller supplies instructions already in route
// order (swap leg first when present, then open/close).
func (b *Builder) Build(payer PublicKey, instructions []Instruction, anchor Anchor, lookupTables []string) (*UnsignedBundle, error) {
	if len(instructions) == 0 {
		return nil, fmt.Errorf("bundle requires at least one domain instruction")
	}

	ordered := make([]Instruction, 0, len(instructions)+2)
	ordered = append(ordered, SetComputeUnitLimit(b.unitLimit))
	ordered = append(ordered, SetComputeUnitPrice(b.unitPrice))
	ordered = append(ordered, instructions...)

	msg, err := Compile(payer, ordered, anchor)
	if err != nil {
		return nil, fmt.Errorf("compile message: %w", err)
	}
	if n := msg.NumRequiredSignatures(); n != 1 {
		return nil, fmt.Errorf("bundle requires %d signatures, expected exactly 1", n)
	}

	raw, err := msg.Serialize()
	if err != nil {
		return nil, fmt.Errorf("serialize message: %w", err)
	}

	return &UnsignedBundle{
		Message:      raw,
		Anchor:       anchor,
		LookupTables: lookupTables,
	}, nil
}
