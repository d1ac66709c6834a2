// Package perp encodes instructions for the perpetual-exchange program
// and decodes its on-ledger position accounts.
package perp

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"solana-perp-engine/internal/domain"
	"solana-perp-engine/internal/txbuild"
)

// Native program addresses.
var (
	// SystemProgramID is the Solana system program.
	SystemProgramID = txbuild.MustPublicKey("11111111111111111111111111111111")
	// TokenProgramID is the SPL token program.
	TokenProgramID = txbuild.MustPublicKey("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	// AssociatedTokenProgramID derives per-wallet token accounts.
	AssociatedTokenProgramID = txbuild.MustPublicKey("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
)

// Program adapts the venue's on-chain program: account derivation and
// instruction construction for swap, open and close.
type Program struct {
	id txbuild.PublicKey
}

// NewProgram creates an adapter for the program at programID.
func NewProgram(programID string) (*Program, error) {
	id, err := txbuild.ParsePublicKey(programID)
	if err != nil {
		return nil, fmt.Errorf("parse program id: %w", err)
	}
	return &Program{id: id}, nil
}

// ID returns the program address.
func (p *Program) ID() txbuild.PublicKey {
	return p.id
}

// discriminator returns the 8-byte anchor method discriminator.
func discriminator(method string) []byte {
	hash := sha256.Sum256([]byte("global:" + method))
	return hash[:8]
}

// sideByte encodes a trade side for instruction data.
func sideByte(side domain.Side) byte {
	if side == domain.SideShort {
		return 2
	}
	return 1
}

// appendU64 appends v little-endian, the program's argument encoding.
func appendU64(b []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(b, buf[:]...)
}

// PositionAddress derives the position account for (owner, market).
// One position exists per owner per market.
func (p *Program) PositionAddress(owner txbuild.PublicKey, market txbuild.PublicKey) (txbuild.PublicKey, error) {
	addr, _, err := txbuild.FindProgramAddress([][]byte{
		[]byte("position"),
		owner[:],
		market[:],
	}, p.id)
	if err != nil {
		return txbuild.PublicKey{}, fmt.Errorf("derive position address: %w", err)
	}
	return addr, nil
}

// AssociatedTokenAddress derives the wallet's token account for mint.
func AssociatedTokenAddress(owner txbuild.PublicKey, mint txbuild.PublicKey) (txbuild.PublicKey, error) {
	addr, _, err := txbuild.FindProgramAddress([][]byte{
		owner[:],
		TokenProgramID[:],
		mint[:],
	}, AssociatedTokenProgramID)
	if err != nil {
		return txbuild.PublicKey{}, fmt.Errorf("derive associated token address: %w", err)
	}
	return addr, nil
}

// SwapParams parameterizes a single-pool swap instruction.
type SwapParams struct {
	Owner        txbuild.PublicKey
	Pool         domain.Pool
	InMint       string
	OutMint      string
	AmountIn     uint64
	MinAmountOut uint64
}

// Swap builds the swap instruction for a single-pool token exchange.
func (p *Program) Swap(params SwapParams) (txbuild.Instruction, error) {
	poolKey, err := txbuild.ParsePublicKey(params.Pool.ID)
	if err != nil {
		return txbuild.Instruction{}, fmt.Errorf("parse pool id: %w", err)
	}
	inCustody, ok := params.Pool.CustodyForMint(params.InMint)
	if !ok {
		return txbuild.Instruction{}, fmt.Errorf("pool %s has no custody for mint %s", params.Pool.Name, params.InMint)
	}
	outCustody, ok := params.Pool.CustodyForMint(params.OutMint)
	if !ok {
		return txbuild.Instruction{}, fmt.Errorf("pool %s has no custody for mint %s", params.Pool.Name, params.OutMint)
	}

	accounts, err := swapAccounts(params.Owner, poolKey, inCustody, outCustody, params.InMint, params.OutMint)
	if err != nil {
		return txbuild.Instruction{}, err
	}

	data := discriminator("swap")
	data = appendU64(data, params.AmountIn)
	data = appendU64(data, params.MinAmountOut)

	return txbuild.Instruction{ProgramID: p.id, Accounts: accounts, Data: data}, nil
}

func swapAccounts(owner, pool txbuild.PublicKey, in, out domain.Custody, inMint, outMint string) ([]txbuild.AccountMeta, error) {
	inMintKey, err := txbuild.ParsePublicKey(inMint)
	if err != nil {
		return nil, fmt.Errorf("parse in mint: %w", err)
	}
	outMintKey, err := txbuild.ParsePublicKey(outMint)
	if err != nil {
		return nil, fmt.Errorf("parse out mint: %w", err)
	}
	funding, err := AssociatedTokenAddress(owner, inMintKey)
	if err != nil {
		return nil, err
	}
	receiving, err := AssociatedTokenAddress(owner, outMintKey)
	if err != nil {
		return nil, err
	}

	metas := []txbuild.AccountMeta{
		txbuild.WritableSigner(owner),
		txbuild.Writable(funding),
		txbuild.Writable(receiving),
		txbuild.Writable(pool),
	}
	for _, custody := range []domain.Custody{in, out} {
		account, err := txbuild.ParsePublicKey(custody.Account)
		if err != nil {
			return nil, fmt.Errorf("parse custody account: %w", err)
		}
		vault, err := txbuild.ParsePublicKey(custody.TokenAccount)
		if err != nil {
			return nil, fmt.Errorf("parse custody vault: %w", err)
		}
		oracle, err := txbuild.ParsePublicKey(custody.OracleAccount)
		if err != nil {
			return nil, fmt.Errorf("parse custody oracle: %w", err)
		}
		metas = append(metas,
			txbuild.Writable(account),
			txbuild.Writable(vault),
			txbuild.ReadOnly(oracle),
		)
	}
	return append(metas, txbuild.ReadOnly(TokenProgramID)), nil
}

// OpenParams parameterizes an open-position instruction.
type OpenParams struct {
	Owner            txbuild.PublicKey
	Market           domain.Market
	Pool             domain.Pool
	CollateralMint   string
	CollateralAmount uint64
	SizeAmount       uint64
	AcceptablePrice  uint64 // slippage-bounded, 1e6 scaled USD
}

// OpenPosition builds the open instruction.
func (p *Program) OpenPosition(params OpenParams) (txbuild.Instruction, error) {
	accounts, err := p.positionAccounts(params.Owner, params.Market, params.Pool, params.CollateralMint, true)
	if err != nil {
		return txbuild.Instruction{}, err
	}

	data := discriminator("open_position")
	data = appendU64(data, params.CollateralAmount)
	data = appendU64(data, params.SizeAmount)
	data = appendU64(data, params.AcceptablePrice)
	data = append(data, sideByte(params.Market.Side))

	return txbuild.Instruction{ProgramID: p.id, Accounts: accounts, Data: data}, nil
}

// CloseParams parameterizes a close-position instruction.
type CloseParams struct {
	Owner           txbuild.PublicKey
	Market          domain.Market
	Pool            domain.Pool
	ReceiveMint     string
	AcceptablePrice uint64 // slippage-bounded, 1e6 scaled USD
}

// ClosePosition builds the close instruction. Closing a position that
// no longer exists fails on-ledger; callers handle that as idempotent
// success at the submission layer.
func (p *Program) ClosePosition(params CloseParams) (txbuild.Instruction, error) {
	accounts, err := p.positionAccounts(params.Owner, params.Market, params.Pool, params.ReceiveMint, false)
	if err != nil {
		return txbuild.Instruction{}, err
	}

	data := discriminator("close_position")
	data = appendU64(data, params.AcceptablePrice)

	return txbuild.Instruction{ProgramID: p.id, Accounts: accounts, Data: data}, nil
}

// positionAccounts assembles the shared open/close account list. The
// user token account side (funding vs receiving) uses mint; open also
// appends the system program for position account creation.
func (p *Program) positionAccounts(owner txbuild.PublicKey, market domain.Market, pool domain.Pool, mint string, opening bool) ([]txbuild.AccountMeta, error) {
	marketKey, err := txbuild.ParsePublicKey(market.Account)
	if err != nil {
		return nil, fmt.Errorf("parse market account: %w", err)
	}
	poolKey, err := txbuild.ParsePublicKey(pool.ID)
	if err != nil {
		return nil, fmt.Errorf("parse pool id: %w", err)
	}
	mintKey, err := txbuild.ParsePublicKey(mint)
	if err != nil {
		return nil, fmt.Errorf("parse mint: %w", err)
	}
	userToken, err := AssociatedTokenAddress(owner, mintKey)
	if err != nil {
		return nil, err
	}
	position, err := p.PositionAddress(owner, marketKey)
	if err != nil {
		return nil, err
	}

	targetCustody, ok := pool.CustodyForMint(market.TargetMint)
	if !ok {
		return nil, fmt.Errorf("pool %s has no custody for target mint %s", pool.Name, market.TargetMint)
	}
	collateralCustody, ok := pool.CustodyForMint(market.CollateralMint)
	if !ok {
		return nil, fmt.Errorf("pool %s has no custody for collateral mint %s", pool.Name, market.CollateralMint)
	}

	metas := []txbuild.AccountMeta{
		txbuild.WritableSigner(owner),
		txbuild.Writable(userToken),
		txbuild.Writable(marketKey),
		txbuild.Writable(poolKey),
		txbuild.Writable(position),
	}
	for _, custody := range []domain.Custody{targetCustody, collateralCustody} {
		account, err := txbuild.ParsePublicKey(custody.Account)
		if err != nil {
			return nil, fmt.Errorf("parse custody account: %w", err)
		}
		vault, err := txbuild.ParsePublicKey(custody.TokenAccount)
		if err != nil {
			return nil, fmt.Errorf("parse custody vault: %w", err)
		}
		oracle, err := txbuild.ParsePublicKey(custody.OracleAccount)
		if err != nil {
			return nil, fmt.Errorf("parse custody oracle: %w", err)
		}
		metas = append(metas,
			txbuild.Writable(account),
			txbuild.Writable(vault),
			txbuild.ReadOnly(oracle),
		)
	}
	metas = append(metas, txbuild.ReadOnly(TokenProgramID))
	if opening {
		metas = append(metas, txbuild.ReadOnly(SystemProgramID))
	}
	return metas, nil
}
