// Package engine orchestrates the full trade flow: route resolution,
// sizing, atomic bundle construction, submission and the pre-signed
// auto-close schedule. It owns no state beyond its collaborators; the
// ledger stays authoritative throughout.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"solana-perp-engine/internal/catalog"
	"solana-perp-engine/internal/domain"
	"solana-perp-engine/internal/idhash"
	"solana-perp-engine/internal/observability"
	"solana-perp-engine/internal/oracle"
	"solana-perp-engine/internal/perp"
	"solana-perp-engine/internal/routing"
	"solana-perp-engine/internal/sizing"
	"solana-perp-engine/internal/solana"
	"solana-perp-engine/internal/storage"
	"solana-perp-engine/internal/submit"
	"solana-perp-engine/internal/txbuild"
	"solana-perp-engine/internal/wallet"
)

// Engine errors
var (
	ErrRouteDisabled       = errors.New("no viable route for requested trade")
	ErrPositionNotObserved = errors.New("open confirmed but position never became observable")
)

// PriceSource supplies oracle snapshots. Satisfied by oracle.Client.
type PriceSource interface {
	GetLatestPrices(ctx context.Context, tokens []domain.Token) (oracle.Snapshot, error)
}

// Defaults for the timing knobs in Config.
const (
	DefaultOpenConfirmTimeout  = 30 * time.Second
	DefaultObservePollInterval = 700 * time.Millisecond
	DefaultObserveTimeout      = 20 * time.Second
	DefaultPricePollInterval   = 5 * time.Second
)

// Config holds the engine timing knobs. Zero values take defaults.
type Config struct {
	// OpenConfirmTimeout bounds confirmation of the open bundle.
	OpenConfirmTimeout time.Duration
	// CloseConfirmTimeout bounds confirmation of close bundles.
	CloseConfirmTimeout time.Duration
	// ObservePollInterval paces the position visibility poll that
	// gates arming the auto-close.
	ObservePollInterval time.Duration
	// ObserveTimeout bounds that poll.
	ObserveTimeout time.Duration
	// PricePollInterval paces the price refresh while a close is armed.
	PricePollInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.OpenConfirmTimeout == 0 {
		c.OpenConfirmTimeout = DefaultOpenConfirmTimeout
	}
	if c.CloseConfirmTimeout == 0 {
		c.CloseConfirmTimeout = submit.CloseConfirmTimeout
	}
	if c.ObservePollInterval == 0 {
		c.ObservePollInterval = DefaultObservePollInterval
	}
	if c.ObserveTimeout == 0 {
		c.ObserveTimeout = DefaultObserveTimeout
	}
	if c.PricePollInterval == 0 {
		c.PricePollInterval = DefaultPricePollInterval
	}
	return c
}

// Options wires the engine's collaborators. All fields except Snapshots
// are required.
type Options struct {
	Catalog   *catalog.Catalog
	Prices    PriceSource
	Resolver  *routing.Resolver
	Sizer     *sizing.Sizer
	Builder   *txbuild.Builder
	Program   *perp.Program
	Reader    *perp.PositionReader
	Submitter *submit.Submitter
	RPC       solana.RPCClient
	Signer    wallet.Signer

	// Snapshots receives price observations from the auto-close poll.
	// Nil disables recording.
	Snapshots storage.PriceSnapshotStore

	// Metrics instruments the trade flow. Nil disables instrumentation.
	Metrics *observability.Metrics

	Config Config
	Logger zerolog.Logger
}

// Engine executes leveraged trades with a guaranteed close path.
type Engine struct {
	cat    *catalog.Catalog
	prices PriceSource
	routes *routing.Resolver
	sizer  *sizing.Sizer
	build  *txbuild.Builder
	prog   *perp.Program
	reader *perp.PositionReader
	sub    *submit.Submitter
	rpc    solana.RPCClient
	signer wallet.Signer
	owner  txbuild.PublicKey
	sink   storage.PriceSnapshotStore
	met    *observability.Metrics
	cfg    Config
	log    zerolog.Logger
}

// New creates an Engine from opts.
func New(opts Options) *Engine {
	return &Engine{
		cat:    opts.Catalog,
		prices: opts.Prices,
		routes: opts.Resolver,
		sizer:  opts.Sizer,
		build:  opts.Builder,
		prog:   opts.Program,
		reader: opts.Reader,
		sub:    opts.Submitter,
		rpc:    opts.RPC,
		signer: opts.Signer,
		owner:  opts.Signer.PublicKey(),
		sink:   opts.Snapshots,
		met:    opts.Metrics,
		cfg:    opts.Config.withDefaults(),
		log:    opts.Logger.With().Str("component", "engine").Logger(),
	}
}

// OpenResult reports a completed open with its armed auto-close.
type OpenResult struct {
	ReceiptID     string
	OpenSignature string
	Quote         sizing.Quote
	Position      domain.PositionHandle
	AutoClose     *PendingClose
}

// OpenWithAutoClose opens a position and arms its auto-close. The close
// bundle is built against the same anchor as the open and signed before
// the open is submitted, so a valid close exists the moment the open
// can land. The position must be observable on the ledger before the
// countdown starts.
func (e *Engine) OpenWithAutoClose(ctx context.Context, req domain.TradeRequest, closeDelay time.Duration) (*OpenResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	input, err := e.cat.Token(req.InputSymbol)
	if err != nil {
		return nil, err
	}
	target, err := e.cat.Token(req.TargetSymbol)
	if err != nil {
		return nil, err
	}

	route, err := e.routes.Resolve(input, target, req.Side)
	if err != nil {
		return nil, err
	}
	if route.TradeDisabled {
		return nil, fmt.Errorf("%w: %s %s via %s", ErrRouteDisabled, req.Side, req.TargetSymbol, req.InputSymbol)
	}

	pool, err := e.cat.PoolOwning(route.Market)
	if err != nil {
		return nil, err
	}

	tokens := flowTokens(input, target, route.Collateral)
	snap, err := e.prices.GetLatestPrices(ctx, tokens)
	if err != nil {
		return nil, fmt.Errorf("fetch prices: %w", err)
	}

	quote, err := e.sizer.QuoteOpen(req, route, target, snap, pool)
	if err != nil {
		return nil, err
	}

	anchor, err := e.anchor(ctx)
	if err != nil {
		return nil, err
	}

	openBundle, closeBundle, err := e.buildBundles(req, route, input, pool, quote, snap, anchor)
	if err != nil {
		return nil, err
	}

	// Both signatures are collected before anything is submitted: once
	// the open is in flight there is no second chance to ask.
	openSigned, err := e.sub.Sign(ctx, e.signer, openBundle)
	if err != nil {
		return nil, err
	}
	closeSigned, err := e.sub.Sign(ctx, e.signer, closeBundle)
	if err != nil {
		return nil, err
	}

	openSig, err := e.sub.Submit(ctx, openSigned)
	if err != nil {
		return nil, err
	}
	e.log.Info().
		Str("signature", openSig).
		Str("market", route.Market.Account).
		Uint64("size_usd", quote.SizeUsd).
		Msg("open submitted")

	confirmStart := time.Now()
	if err := e.confirmOpen(ctx, openSigned, openSig, route.Market); err != nil {
		return nil, err
	}
	e.met.ObserveConfirm("open", time.Since(confirmStart))

	pos, err := e.waitObservable(ctx, route.Market)
	if err != nil {
		return nil, err
	}

	pending := e.arm(*pos, closeSigned, closeDelay, tokens)
	e.met.TradeOpened()
	e.log.Info().
		Str("position", pos.Account).
		Time("fire_at", pending.FireAt).
		Msg("auto-close armed")

	return &OpenResult{
		ReceiptID:     idhash.ComputeReceiptID(e.owner.String(), route.Market.Account, openSig),
		OpenSignature: openSig,
		Quote:         quote,
		Position:      *pos,
		AutoClose:     pending,
	}, nil
}

// CloseNow closes the live position on (targetSymbol, side) immediately
// with a freshly anchored bundle. receiveSymbol selects the payout
// token; it must have a custody in the position's pool, and an empty
// symbol defaults to the posted collateral. Closing a position that is
// already gone is a success, not an error.
func (e *Engine) CloseNow(ctx context.Context, targetSymbol string, side domain.Side, receiveSymbol string, slippageBps uint32) (*CloseResult, error) {
	target, err := e.cat.Token(targetSymbol)
	if err != nil {
		return nil, err
	}

	pos, err := e.findPosition(ctx, target.Mint, side)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		e.log.Info().Str("target", targetSymbol).Msg("no live position, close is a no-op")
		return &CloseResult{Outcome: domain.CloseOutcomeImplicit}, nil
	}

	pool, err := e.cat.PoolOwning(pos.Market)
	if err != nil {
		return nil, err
	}
	receive, err := e.cat.TokenByMint(pos.CollateralMint)
	if err != nil {
		return nil, err
	}
	if receiveSymbol != "" {
		receive, err = e.cat.Token(receiveSymbol)
		if err != nil {
			return nil, err
		}
		// The payout leg settles from the pool's own custody.
		if _, err := e.cat.Custody(pool.ID, receive.Mint); err != nil {
			return nil, fmt.Errorf("receive token %s: %w", receiveSymbol, err)
		}
	}

	snap, err := e.prices.GetLatestPrices(ctx, flowTokens(receive, target))
	if err != nil {
		return nil, fmt.Errorf("fetch prices: %w", err)
	}
	if _, err := e.sizer.QuoteClose(*pos, receive, slippageBps, snap); err != nil {
		return nil, err
	}
	targetPoint, err := snap.Get(target.Symbol)
	if err != nil {
		return nil, err
	}
	targetPrice, err := targetPoint.Usd6()
	if err != nil {
		return nil, err
	}

	anchor, err := e.anchor(ctx)
	if err != nil {
		return nil, err
	}
	closeIx, err := e.prog.ClosePosition(perp.CloseParams{
		Owner:           e.owner,
		Market:          pos.Market,
		Pool:            pool,
		ReceiveMint:     receive.Mint,
		AcceptablePrice: sizing.BoundPrice(targetPrice, side, sizing.DirectionClose, slippageBps),
	})
	if err != nil {
		return nil, err
	}
	bundle, err := e.build.Build(e.owner, []txbuild.Instruction{closeIx}, anchor, pool.LookupTables)
	if err != nil {
		return nil, err
	}
	signed, err := e.sub.Sign(ctx, e.signer, bundle)
	if err != nil {
		return nil, err
	}

	sig, err := e.sub.Submit(ctx, signed)
	if err != nil {
		return nil, err
	}

	market := pos.Market
	state, err := e.sub.ConfirmOrVerify(ctx, signed, sig, e.cfg.CloseConfirmTimeout, func(c context.Context) (bool, error) {
		return e.reader.Exists(c, e.owner, market)
	})
	switch state {
	case submit.StateConfirmed:
		e.met.CloseFired(domain.CloseOutcomeConfirmed)
		return &CloseResult{Signature: sig, Outcome: domain.CloseOutcomeConfirmed}, nil
	case submit.StateExpired:
		e.met.CloseFired(domain.CloseOutcomeExpired)
		return &CloseResult{Signature: sig, Outcome: domain.CloseOutcomeExpired, Err: err}, nil
	default:
		return nil, err
	}
}

// OpenPositions lists the signer's live positions across all markets.
func (e *Engine) OpenPositions(ctx context.Context) ([]domain.PositionHandle, error) {
	return e.reader.OpenPositions(ctx, e.owner)
}

// buildBundles constructs the open and close bundles against one shared
// anchor. The open carries the swap leg first when the route needs one;
// the close receives back the same collateral the open posts.
func (e *Engine) buildBundles(
	req domain.TradeRequest,
	route domain.RouteDecision,
	input domain.Token,
	pool domain.Pool,
	quote sizing.Quote,
	snap oracle.Snapshot,
	anchor txbuild.Anchor,
) (*txbuild.UnsignedBundle, *txbuild.UnsignedBundle, error) {
	var openInstrs []txbuild.Instruction

	collateralAmount := req.CollateralAmount
	if route.SwapRequired {
		minSwapOut, err := sizing.SwapMinOut(req.CollateralAmount, input, route.Collateral, snap, req.SlippageBps)
		if err != nil {
			return nil, nil, err
		}
		swapIx, err := e.prog.Swap(perp.SwapParams{
			Owner:        e.owner,
			Pool:         *route.SwapPool,
			InMint:       input.Mint,
			OutMint:      route.Collateral.Mint,
			AmountIn:     req.CollateralAmount,
			MinAmountOut: minSwapOut,
		})
		if err != nil {
			return nil, nil, err
		}
		openInstrs = append(openInstrs, swapIx)
		// The open can only count on the swap's guaranteed floor.
		collateralAmount = minSwapOut
	}

	openIx, err := e.prog.OpenPosition(perp.OpenParams{
		Owner:            e.owner,
		Market:           route.Market,
		Pool:             pool,
		CollateralMint:   route.Collateral.Mint,
		CollateralAmount: collateralAmount,
		SizeAmount:       quote.SizeAmount,
		AcceptablePrice:  sizing.BoundPrice(quote.EntryPrice, req.Side, sizing.DirectionOpen, req.SlippageBps),
	})
	if err != nil {
		return nil, nil, err
	}
	openInstrs = append(openInstrs, openIx)

	closeIx, err := e.prog.ClosePosition(perp.CloseParams{
		Owner:           e.owner,
		Market:          route.Market,
		Pool:            pool,
		ReceiveMint:     route.Collateral.Mint,
		AcceptablePrice: sizing.BoundPrice(quote.EntryPrice, req.Side, sizing.DirectionClose, req.SlippageBps),
	})
	if err != nil {
		return nil, nil, err
	}

	openBundle, err := e.build.Build(e.owner, openInstrs, anchor, pool.LookupTables)
	if err != nil {
		return nil, nil, fmt.Errorf("build open bundle: %w", err)
	}
	closeBundle, err := e.build.Build(e.owner, []txbuild.Instruction{closeIx}, anchor, pool.LookupTables)
	if err != nil {
		return nil, nil, fmt.Errorf("build close bundle: %w", err)
	}
	return openBundle, closeBundle, nil
}

// confirmOpen confirms the open bundle. An ambiguous timeout resolves
// through the position account: if it exists, the open landed.
func (e *Engine) confirmOpen(ctx context.Context, bundle *domain.SignedBundle, signature string, market domain.Market) error {
	err := e.sub.Confirm(ctx, bundle, signature, e.cfg.OpenConfirmTimeout)
	if err == nil {
		return nil
	}
	if !errors.Is(err, submit.ErrConfirmationAmbiguous) {
		return err
	}

	verifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	exists, verr := e.reader.Exists(verifyCtx, e.owner, market)
	if verr != nil || !exists {
		return err
	}
	e.log.Info().Str("signature", signature).Msg("open confirmation ambiguous but position exists")
	return nil
}

// waitObservable polls until the position account is readable. Arming
// the auto-close before this point would schedule a close against a
// position the ledger cannot yet serve.
func (e *Engine) waitObservable(ctx context.Context, market domain.Market) (*domain.PositionHandle, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.ObserveTimeout)
	defer cancel()

	ticker := time.NewTicker(e.cfg.ObservePollInterval)
	defer ticker.Stop()

	for {
		pos, err := e.reader.Position(ctx, e.owner, market)
		if err == nil && pos != nil {
			return pos, nil
		}
		if err != nil {
			e.log.Debug().Err(err).Msg("position poll failed")
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrPositionNotObserved, ctx.Err())
		case <-ticker.C:
		}
	}
}

// findPosition scans live positions for one matching (targetMint, side).
func (e *Engine) findPosition(ctx context.Context, targetMint string, side domain.Side) (*domain.PositionHandle, error) {
	positions, err := e.reader.OpenPositions(ctx, e.owner)
	if err != nil {
		return nil, err
	}
	for i := range positions {
		m := positions[i].Market
		if m.TargetMint == targetMint && m.Side == side {
			return &positions[i], nil
		}
	}
	return nil, nil
}

// recordPrices captures one poll of the flow tokens into the sink.
func (e *Engine) recordPrices(ctx context.Context, tokens []domain.Token) {
	if e.sink == nil {
		return
	}
	snap, err := e.prices.GetLatestPrices(ctx, tokens)
	e.met.PricePoll(err != nil)
	if err != nil {
		e.log.Debug().Err(err).Msg("price poll failed")
		return
	}

	now := time.Now().UnixMilli()
	observations := make([]*domain.PriceObservation, 0, len(tokens))
	for _, t := range tokens {
		point, err := snap.Get(t.Symbol)
		if err != nil {
			continue
		}
		observations = append(observations, &domain.PriceObservation{
			Symbol:      t.Symbol,
			FeedID:      point.FeedID,
			Price:       point.Price,
			EMAPrice:    point.EMAPrice,
			Exponent:    point.Exponent,
			Confidence:  point.Confidence,
			PublishTime: point.PublishTime,
			ObservedAt:  now,
		})
	}
	if len(observations) == 0 {
		return
	}
	if err := e.sink.InsertBulk(ctx, observations); err != nil {
		e.log.Warn().Err(err).Msg("store price observations failed")
	}
}

func (e *Engine) anchor(ctx context.Context) (txbuild.Anchor, error) {
	bh, err := e.rpc.GetLatestBlockhash(ctx)
	if err != nil {
		return txbuild.Anchor{}, fmt.Errorf("fetch anchor: %w", err)
	}
	return txbuild.Anchor{
		Blockhash:       bh.Blockhash,
		LastValidHeight: bh.LastValidBlockHeight,
	}, nil
}

// flowTokens deduplicates the tokens a flow prices, by mint.
func flowTokens(tokens ...domain.Token) []domain.Token {
	seen := make(map[string]bool, len(tokens))
	out := make([]domain.Token, 0, len(tokens))
	for _, t := range tokens {
		if seen[t.Mint] {
			continue
		}
		seen[t.Mint] = true
		out = append(out, t)
	}
	return out
}
