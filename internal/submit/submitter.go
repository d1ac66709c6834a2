package submit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"

	"solana-perp-engine/internal/domain"
	"solana-perp-engine/internal/solana"
	"solana-perp-engine/internal/txbuild"
	"solana-perp-engine/internal/wallet"
)

// State is the submission lifecycle of one bundle.
type State string

// Submission states
const (
	StateBuilt     State = "BUILT"
	StateSigned    State = "SIGNED"
	StateSubmitted State = "SUBMITTED"
	StateConfirmed State = "CONFIRMED"
	StateExpired   State = "EXPIRED"
	StateRejected  State = "REJECTED"
)

// Policy constants.
const (
	// TransientRetryAttempts bounds retries of ErrPositionNotReady.
	TransientRetryAttempts = 3
	// TransientRetryDelay is the fixed pause between those retries.
	TransientRetryDelay = 1200 * time.Millisecond
	// CloseConfirmTimeout is the confirmation ceiling for closes.
	CloseConfirmTimeout = 30 * time.Second
	// statusPollInterval paces the polling confirmation fallback.
	statusPollInterval = 700 * time.Millisecond
)

// Submitter signs, submits and confirms bundles. Signing is delegated
// to the wallet collaborator; the submitter never holds key material.
type Submitter struct {
	rpc solana.RPCClient
	ws  solana.WSClient // optional; nil falls back to status polling
	log zerolog.Logger

	retryAttempts int
	retryDelay    time.Duration
	pollInterval  time.Duration

	// sleep is injected by tests to observe retry spacing.
	sleep func(ctx context.Context, d time.Duration) error
}

// Option configures Submitter.
type Option func(*Submitter)

// WithWSClient enables WebSocket confirmation.
func WithWSClient(ws solana.WSClient) Option {
	return func(s *Submitter) {
		s.ws = ws
	}
}

// WithRetryPolicy overrides the transient retry policy.
func WithRetryPolicy(attempts int, delay time.Duration) Option {
	return func(s *Submitter) {
		s.retryAttempts = attempts
		s.retryDelay = delay
	}
}

// WithPollInterval overrides the confirmation poll pacing.
func WithPollInterval(d time.Duration) Option {
	return func(s *Submitter) {
		s.pollInterval = d
	}
}

// NewSubmitter creates a Submitter.
func NewSubmitter(rpc solana.RPCClient, log zerolog.Logger, opts ...Option) *Submitter {
	s := &Submitter{
		rpc:           rpc,
		log:           log.With().Str("component", "submit").Logger(),
		retryAttempts: TransientRetryAttempts,
		retryDelay:    TransientRetryDelay,
		pollInterval:  statusPollInterval,
		sleep:         sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Sign obtains the wallet signature over the bundle's message and
// assembles the wire transaction. The result is single-use: the exact
// bytes are reused on every resubmission, never rebuilt.
func (s *Submitter) Sign(ctx context.Context, signer wallet.Signer, bundle *txbuild.UnsignedBundle) (*domain.SignedBundle, error) {
	sig, err := signer.Sign(ctx, bundle.Message)
	if err != nil {
		return nil, Classify(fmt.Errorf("sign bundle: %w", err))
	}

	payload, err := txbuild.AssembleTransaction(bundle.Message, [][]byte{sig})
	if err != nil {
		return nil, fmt.Errorf("assemble transaction: %w", err)
	}

	return &domain.SignedBundle{
		Payload:         payload,
		Signature:       base58.Encode(sig),
		Blockhash:       bundle.Anchor.Blockhash,
		LastValidHeight: bundle.Anchor.LastValidHeight,
	}, nil
}

// Submit sends the bundle, retrying only the transient
// position-not-ready condition, a fixed number of times with a fixed
// pause. Every other failure is classified and surfaced immediately.
func (s *Submitter) Submit(ctx context.Context, bundle *domain.SignedBundle) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= s.retryAttempts; attempt++ {
		if attempt > 1 {
			if err := s.sleep(ctx, s.retryDelay); err != nil {
				return "", err
			}
		}

		sig, err := s.rpc.SendTransaction(ctx, bundle.Payload)
		if err == nil {
			s.log.Debug().Str("signature", sig).Int("attempt", attempt).Msg("transaction submitted")
			return sig, nil
		}

		err = Classify(err)
		if errors.Is(err, ErrPositionNotReady) {
			s.log.Warn().Int("attempt", attempt).Msg("position not ready, will retry")
			lastErr = err
			continue
		}
		if errors.Is(err, ErrAnchorExpired) {
			// Expired bundles are never resubmitted; the caller
			// decides whether rebuilding is still relevant.
			return "", err
		}
		return "", err
	}

	return "", fmt.Errorf("submission failed after %d attempts: %w", s.retryAttempts, lastErr)
}

// Confirm waits for ledger acknowledgement of signature within
// timeout. It prefers the WebSocket notification and falls back to
// status polling; it also tracks block height so anchor expiry is
// reported as such rather than as a generic timeout.
func (s *Submitter) Confirm(ctx context.Context, bundle *domain.SignedBundle, signature string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var notifyCh <-chan solana.SignatureNotification
	if s.ws != nil {
		ch, err := s.ws.SubscribeSignature(ctx, signature)
		if err != nil {
			s.log.Debug().Err(err).Msg("signature subscription failed, polling only")
		} else {
			notifyCh = ch
		}
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return joinKind(ErrConfirmationAmbiguous, ctx.Err())

		case note, ok := <-notifyCh:
			if !ok {
				// Subscription lost; keep polling.
				notifyCh = nil
				continue
			}
			if note.Err != nil {
				return Classify(fmt.Errorf("transaction failed on ledger: %v", note.Err))
			}
			return nil

		case <-ticker.C:
			statuses, err := s.rpc.GetSignatureStatuses(ctx, []string{signature})
			if err != nil || len(statuses) == 0 {
				s.log.Debug().Err(err).Msg("status poll failed")
				continue
			}
			status := statuses[0]
			if status.Confirmed() {
				return nil
			}
			if status != nil && status.Err != nil {
				return Classify(fmt.Errorf("transaction failed on ledger: %v", status.Err))
			}

			// Unknown signature: check whether the anchor can still land.
			if status == nil {
				height, err := s.rpc.GetBlockHeight(ctx)
				if err != nil {
					continue
				}
				if height > bundle.LastValidHeight {
					return joinKind(ErrAnchorExpired, fmt.Errorf("block height %d past %d", height, bundle.LastValidHeight))
				}
			}
		}
	}
}

// ConfirmOrVerify confirms like Confirm, but resolves an ambiguous
// timeout with the idempotent existence check: when the position the
// transaction was meant to remove no longer exists, the operation is
// treated as an implicit success, because it may have landed without
// the acknowledgement ever reaching us.
func (s *Submitter) ConfirmOrVerify(
	ctx context.Context,
	bundle *domain.SignedBundle,
	signature string,
	timeout time.Duration,
	positionExists func(ctx context.Context) (bool, error),
) (State, error) {
	err := s.Confirm(ctx, bundle, signature, timeout)
	if err == nil {
		return StateConfirmed, nil
	}
	if !errors.Is(err, ErrConfirmationAmbiguous) {
		if errors.Is(err, ErrAnchorExpired) {
			return StateExpired, err
		}
		return StateRejected, err
	}

	// Verification uses a fresh context: the confirmation window is
	// spent, but the authoritative query must still run.
	verifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	exists, verr := positionExists(verifyCtx)
	if verr != nil {
		s.log.Warn().Err(verr).Msg("existence check inconclusive after ambiguous confirmation")
		return StateSubmitted, err
	}
	if !exists {
		s.log.Info().Str("signature", signature).Msg("position gone, treating close as implicit success")
		return StateConfirmed, nil
	}
	return StateSubmitted, err
}
