package solana

import "context"

// RPCClient defines the ledger RPC interface the engine consumes.
type RPCClient interface {
	// GetLatestBlockhash retrieves the current validity anchor.
	GetLatestBlockhash(ctx context.Context) (*LatestBlockhash, error)

	// GetBlockHeight retrieves the current block height.
	GetBlockHeight(ctx context.Context) (uint64, error)

	// SendTransaction submits a signed wire transaction.
	// Returns the base58 transaction signature.
	SendTransaction(ctx context.Context, signedTx []byte) (string, error)

	// GetSignatureStatuses retrieves confirmation status per signature.
	// Result entries are nil for unknown signatures.
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)

	// GetAccountInfo retrieves account info by public key.
	// Returns nil if the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)
}
