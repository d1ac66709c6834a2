// Package submit signs, submits and confirms transaction bundles
// against the ledger, with bounded retries and a closed error
// classification.
package submit

import (
	"errors"
	"strings"

	"solana-perp-engine/internal/solana"
	"solana-perp-engine/internal/wallet"
)

// Classified error kinds. Components above the submission boundary
// switch on these sentinels only; raw node error text never leaks up.
var (
	// ErrPositionNotReady is the transient "position not yet
	// initialized on-ledger" condition. The only retryable kind.
	ErrPositionNotReady = errors.New("position not yet initialized on ledger")

	// ErrAnchorExpired means the blockhash anchor lapsed before the
	// transaction could be included. Never retried with the same
	// bundle; the caller rebuilds if still relevant.
	ErrAnchorExpired = errors.New("validity anchor expired")

	// ErrSlippageExceeded means the fill moved past the quoted bound.
	ErrSlippageExceeded = errors.New("price moved beyond slippage tolerance")

	// ErrInsufficientFunds means the payer cannot cover the trade.
	ErrInsufficientFunds = errors.New("insufficient balance for trade")

	// ErrUserRejected mirrors the wallet's refusal so callers can
	// distinguish "user cancelled" from "system failed".
	ErrUserRejected = wallet.ErrUserRejected

	// ErrConfirmationAmbiguous is a confirmation timeout with no
	// definitive outcome, after the idempotent existence check was
	// also inconclusive.
	ErrConfirmationAmbiguous = errors.New("confirmation outcome ambiguous")
)

// Custom program error codes surfaced through node errors.
const (
	codePositionNotReady = 6001 // 0x1771
	codeSlippage         = 6002 // 0x1772
	codeInsufficient     = 6003 // 0x1773
)

// classifyRule maps node error signatures to one kind. The table is
// the single place raw codes and substrings are interpreted.
type classifyRule struct {
	kind       error
	codes      []int
	substrings []string
}

var classifyRules = []classifyRule{
	{
		kind:  ErrPositionNotReady,
		codes: []int{codePositionNotReady},
		substrings: []string{
			"0x1771",
			"position not initialized",
			"AccountNotInitialized",
		},
	},
	{
		kind:  ErrSlippageExceeded,
		codes: []int{codeSlippage},
		substrings: []string{
			"0x1772",
			"price slippage",
			"MaxPriceSlippage",
		},
	},
	{
		kind:  ErrInsufficientFunds,
		codes: []int{codeInsufficient},
		substrings: []string{
			"0x1773",
			"insufficient funds",
			"insufficient lamports",
		},
	},
	{
		kind: ErrAnchorExpired,
		substrings: []string{
			"BlockhashNotFound",
			"Blockhash not found",
			"block height exceeded",
		},
	},
}

// Classify translates a node or wallet error into one of the closed
// kinds, keeping the original error in the chain. Unknown errors pass
// through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, wallet.ErrUserRejected) {
		return err
	}

	msg := err.Error()
	var rpcErr *solana.RPCError
	if errors.As(err, &rpcErr) {
		msg = rpcErr.Message + " " + string(rpcErr.Data)
	}

	for _, rule := range classifyRules {
		for _, code := range rule.codes {
			if rpcErr != nil && rpcErr.Code == code {
				return joinKind(rule.kind, err)
			}
		}
		for _, sub := range rule.substrings {
			if strings.Contains(msg, sub) {
				return joinKind(rule.kind, err)
			}
		}
	}
	return err
}

// joinKind wraps err so both the kind sentinel and the original chain
// survive errors.Is checks.
func joinKind(kind, err error) error {
	return kindError{kind: kind, err: err}
}

type kindError struct {
	kind error
	err  error
}

func (e kindError) Error() string {
	return e.kind.Error() + ": " + e.err.Error()
}

func (e kindError) Is(target error) bool {
	return errors.Is(e.kind, target)
}

func (e kindError) Unwrap() error {
	return e.err
}
