package solana

import "context"

// WSClient defines the WebSocket confirmation interface.
type WSClient interface {
	// SubscribeSignature subscribes to the processing notification for
	// one transaction signature. The channel receives at most one
	// value and is closed afterwards; a close without a value means
	// the subscription was lost and the caller should poll instead.
	SubscribeSignature(ctx context.Context, signature string) (<-chan SignatureNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// SignatureNotification is the one-shot result of a signature
// subscription.
type SignatureNotification struct {
	Slot int64
	Err  interface{} // non-nil when the transaction executed and failed
}
