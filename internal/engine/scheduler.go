package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"solana-perp-engine/internal/domain"
	"solana-perp-engine/internal/submit"
)

// CloseResult is the terminal report of one close attempt. Outcome is
// one of the domain close outcome codes; an empty Outcome with a
// non-nil Err means the close definitively failed on the ledger.
type CloseResult struct {
	Signature string
	Outcome   string
	Err       error
}

// PendingClose is an armed auto-close: a pre-signed bundle plus the
// goroutine that fires it. One goroutine owns both the countdown and
// the price refresh poll, so cancelling tears down both together.
type PendingClose struct {
	// FireAt is when the pre-signed bundle will be submitted.
	FireAt time.Time
	// Position is the handle observed before arming.
	Position domain.PositionHandle

	cancel context.CancelFunc
	done   chan CloseResult
	fired  atomic.Bool
}

// Done delivers exactly one CloseResult when the close reaches a
// terminal state: fired and resolved, or cancelled.
func (p *PendingClose) Done() <-chan CloseResult {
	return p.done
}

// Cancel disarms the auto-close. Idempotent; once the countdown has
// fired, cancellation is a no-op and the in-flight submission runs to
// completion.
func (p *PendingClose) Cancel() {
	if p.fired.Load() {
		return
	}
	p.cancel()
}

// arm starts the auto-close goroutine for an observed position. The
// goroutine owns the countdown timer and the price poll; both stop on
// cancellation or fire, never one without the other.
func (e *Engine) arm(pos domain.PositionHandle, bundle *domain.SignedBundle, delay time.Duration, tokens []domain.Token) *PendingClose {
	ctx, cancel := context.WithCancel(context.Background())
	p := &PendingClose{
		FireAt:   time.Now().Add(delay),
		Position: pos,
		cancel:   cancel,
		done:     make(chan CloseResult, 1),
	}

	e.met.CloseArmed()
	go func() {
		defer cancel()
		defer e.met.CloseDisarmed()

		timer := time.NewTimer(time.Until(p.FireAt))
		defer timer.Stop()
		ticker := time.NewTicker(e.cfg.PricePollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				e.log.Info().Str("position", pos.Account).Msg("auto-close cancelled")
				e.met.CloseFired(domain.CloseOutcomeCancelled)
				p.done <- CloseResult{Outcome: domain.CloseOutcomeCancelled}
				return

			case <-ticker.C:
				e.recordPrices(ctx, tokens)

			case <-timer.C:
				ticker.Stop()
				p.fired.Store(true)
				result := e.fireClose(ctx, bundle, pos)
				e.met.CloseFired(result.Outcome)
				p.done <- result
				return
			}
		}
	}()

	return p
}

// fireClose submits the pre-signed bundle exactly as signed. It runs on
// a context detached from cancellation: once firing has begun, the
// close either resolves or reports why it could not.
func (e *Engine) fireClose(ctx context.Context, bundle *domain.SignedBundle, pos domain.PositionHandle) CloseResult {
	// Budget covers submission retries, the confirmation ceiling and
	// the fallback existence check.
	fireCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.CloseConfirmTimeout+30*time.Second)
	defer cancel()

	sig, err := e.sub.Submit(fireCtx, bundle)
	if err != nil {
		if errors.Is(err, submit.ErrAnchorExpired) {
			e.log.Warn().Str("position", pos.Account).Msg("pre-signed close lapsed before it could land")
			return CloseResult{Outcome: domain.CloseOutcomeExpired, Err: err}
		}
		return CloseResult{Err: err}
	}
	e.log.Info().Str("signature", sig).Str("position", pos.Account).Msg("auto-close submitted")

	confirmStart := time.Now()
	cerr := e.sub.Confirm(fireCtx, bundle, sig, e.cfg.CloseConfirmTimeout)
	e.met.ObserveConfirm("close", time.Since(confirmStart))
	switch {
	case cerr == nil:
		return CloseResult{Signature: sig, Outcome: domain.CloseOutcomeConfirmed}

	case errors.Is(cerr, submit.ErrAnchorExpired):
		return CloseResult{Signature: sig, Outcome: domain.CloseOutcomeExpired, Err: cerr}

	case errors.Is(cerr, submit.ErrConfirmationAmbiguous):
		// The position account decides: gone means the close landed
		// even though the acknowledgement never reached us.
		verifyCtx, vcancel := context.WithTimeout(context.WithoutCancel(fireCtx), 10*time.Second)
		defer vcancel()
		exists, verr := e.reader.Exists(verifyCtx, e.owner, pos.Market)
		if verr == nil && !exists {
			e.log.Info().Str("signature", sig).Msg("position gone, close is an implicit success")
			return CloseResult{Signature: sig, Outcome: domain.CloseOutcomeImplicit}
		}
		return CloseResult{Signature: sig, Err: cerr}

	default:
		return CloseResult{Signature: sig, Err: cerr}
	}
}
