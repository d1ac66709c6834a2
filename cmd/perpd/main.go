// Package main provides the perpd CLI around the position engine:
//   - open: open a leveraged position with a guaranteed auto-close
//   - close: close a live position immediately
//   - positions: list live positions for the configured wallet
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"solana-perp-engine/internal/catalog"
	"solana-perp-engine/internal/domain"
	"solana-perp-engine/internal/engine"
	"solana-perp-engine/internal/observability"
	"solana-perp-engine/internal/oracle"
	"solana-perp-engine/internal/perp"
	"solana-perp-engine/internal/routing"
	"solana-perp-engine/internal/sizing"
	"solana-perp-engine/internal/solana"
	"solana-perp-engine/internal/storage"
	chstore "solana-perp-engine/internal/storage/clickhouse"
	memstore "solana-perp-engine/internal/storage/memory"
	"solana-perp-engine/internal/storage/migrations"
	pgstore "solana-perp-engine/internal/storage/postgres"
	"solana-perp-engine/internal/submit"
	"solana-perp-engine/internal/txbuild"
	"solana-perp-engine/internal/wallet"
)

// defaultProgramID is the mainnet perpetual-exchange program.
const defaultProgramID = "PERPHjGBqRHArX4DySjwM6UJHiR3sWAatqfdBS2qQJu"

type stores struct {
	receipts  storage.TradeReceiptStore
	snapshots storage.PriceSnapshotStore
	closeFns  []func()
}

func (s *stores) close() {
	for _, fn := range s.closeFns {
		fn()
	}
}

func main() {
	loadEnvFile()

	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("SOLANA_WS_ENDPOINT"), "Solana WebSocket endpoint (optional, polling fallback without it)")
	oracleEndpoint := flag.String("oracle-endpoint", os.Getenv("ORACLE_ENDPOINT"), "Oracle price service HTTP endpoint")
	catalogPath := flag.String("catalog", os.Getenv("CATALOG_PATH"), "Path to the pool/market catalog JSON")
	keypairPath := flag.String("keypair", os.Getenv("KEYPAIR_PATH"), "Path to the wallet keypair file")
	programID := flag.String("program-id", defaultProgramID, "Perpetual exchange program address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")

	action := flag.String("action", "open", "Action: open, close, positions")
	side := flag.String("side", "long", "Position side: long or short")
	input := flag.String("input", "USDC", "Symbol of the token funding the trade")
	target := flag.String("target", "", "Symbol of the token the position tracks")
	collateral := flag.String("collateral", "", "Collateral amount in human units of the input token")
	receive := flag.String("receive", "", "Symbol of the token to receive on close (default: posted collateral)")
	leverage := flag.String("leverage", "1.5", "Leverage multiplier")
	slippageBps := flag.Uint("slippage-bps", 50, "Tolerated adverse price move, basis points")
	hold := flag.Duration("hold", 1*time.Hour, "Delay before the pre-signed auto-close fires")
	metricsAddr := flag.String("metrics-addr", os.Getenv("METRICS_ADDR"), "Address for the Prometheus metrics endpoint (optional)")
	debug := flag.Bool("debug", false, "Enable debug logging")

	flag.Parse()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).With().Timestamp().Logger()

	if *rpcEndpoint == "" {
		log.Fatal().Msg("--rpc-endpoint is required")
	}
	if *oracleEndpoint == "" {
		log.Fatal().Msg("--oracle-endpoint is required")
	}
	if *catalogPath == "" {
		log.Fatal().Msg("--catalog is required")
	}
	if *keypairPath == "" {
		log.Fatal().Msg("--keypair is required")
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		log.Fatal().Msg("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cat, err := catalog.LoadFile(*catalogPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load catalog")
	}
	signer, err := wallet.LoadLocalWallet(*keypairPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load wallet")
	}
	program, err := perp.NewProgram(*programID)
	if err != nil {
		log.Fatal().Err(err).Msg("parse program id")
	}

	rpc := solana.NewHTTPClient(*rpcEndpoint)
	var subOpts []submit.Option
	if *wsEndpoint != "" {
		ws, err := solana.NewWSClient(ctx, *wsEndpoint, nil)
		if err != nil {
			log.Warn().Err(err).Msg("websocket connect failed, confirmations will poll")
		} else {
			defer ws.Close()
			subOpts = append(subOpts, submit.WithWSClient(ws))
		}
	}

	st, err := openStores(ctx, *useMemory, *postgresDSN, *clickhouseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open storage")
	}
	defer st.close()

	var metrics *observability.Metrics
	if *metricsAddr != "" {
		metrics = observability.NewMetrics("")
		mux := http.NewServeMux()
		mux.Handle("/metrics", observability.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Warn().Err(err).Msg("metrics endpoint failed")
			}
		}()
	}

	reader := perp.NewPositionReader(rpc, cat, program)
	eng := engine.New(engine.Options{
		Catalog:   cat,
		Prices:    oracle.NewClient(*oracleEndpoint),
		Resolver:  routing.NewResolver(cat, log),
		Sizer:     sizing.NewSizer(),
		Builder:   txbuild.NewBuilder(),
		Program:   program,
		Reader:    reader,
		Submitter: submit.NewSubmitter(rpc, log, subOpts...),
		RPC:       rpc,
		Signer:    signer,
		Snapshots: st.snapshots,
		Metrics:   metrics,
		Logger:    log,
	})

	switch *action {
	case "open":
		err = runOpen(ctx, eng, st, signer, log, openArgs{
			side:        domain.Side(*side),
			input:       *input,
			target:      *target,
			collateral:  *collateral,
			leverage:    *leverage,
			slippageBps: uint32(*slippageBps),
			hold:        *hold,
			catalog:     cat,
		})
	case "close":
		err = runClose(ctx, eng, log, *target, domain.Side(*side), *receive, uint32(*slippageBps))
	case "positions":
		err = runPositions(ctx, eng, cat)
	default:
		log.Fatal().Str("action", *action).Msg("unknown action")
	}
	if err != nil {
		log.Fatal().Err(err).Str("action", *action).Msg("action failed")
	}
}

type openArgs struct {
	side        domain.Side
	input       string
	target      string
	collateral  string
	leverage    string
	slippageBps uint32
	hold        time.Duration
	catalog     *catalog.Catalog
}

// runOpen opens a position, records its receipt and waits for the
// auto-close to resolve. Interrupts before the countdown fires cancel
// the close; once fired it runs to completion.
func runOpen(ctx context.Context, eng *engine.Engine, st *stores, signer wallet.Signer, log zerolog.Logger, args openArgs) error {
	if args.target == "" {
		return errors.New("--target is required")
	}
	if args.collateral == "" {
		return errors.New("--collateral is required")
	}

	inputToken, err := args.catalog.Token(args.input)
	if err != nil {
		return err
	}
	amount, err := sizing.NativeAmount(args.collateral, inputToken.Decimals)
	if err != nil {
		return err
	}
	lev, err := parseLeverage(args.leverage)
	if err != nil {
		return err
	}

	res, err := eng.OpenWithAutoClose(ctx, domain.TradeRequest{
		Side:             args.side,
		InputSymbol:      args.input,
		TargetSymbol:     args.target,
		CollateralAmount: amount,
		Leverage:         lev,
		SlippageBps:      args.slippageBps,
	}, args.hold)
	if err != nil {
		return err
	}

	receipt := &domain.TradeReceipt{
		ReceiptID:     res.ReceiptID,
		Wallet:        signer.PublicKey().String(),
		Market:        res.Position.Market.Account,
		Side:          string(args.side),
		TargetSymbol:  args.target,
		InputSymbol:   args.input,
		SizeUsd:       res.Quote.SizeUsd,
		CollateralUsd: res.Quote.CollateralUsd,
		EntryPrice:    res.Quote.EntryPrice,
		OpenSignature: res.OpenSignature,
		OpenedAt:      time.Now().UnixMilli(),
	}
	if err := st.receipts.Insert(ctx, receipt); err != nil {
		log.Warn().Err(err).Str("receipt_id", res.ReceiptID).Msg("store receipt failed")
	}

	log.Info().
		Str("receipt_id", res.ReceiptID).
		Str("signature", res.OpenSignature).
		Str("size_usd", sizing.FormatUsd6(res.Quote.SizeUsd)).
		Str("entry_price", sizing.FormatUsd6(res.Quote.EntryPrice)).
		Time("close_at", res.AutoClose.FireAt).
		Msg("position open, auto-close armed")

	var outcome engine.CloseResult
	select {
	case outcome = <-res.AutoClose.Done():
	case <-ctx.Done():
		log.Info().Msg("interrupted, cancelling auto-close")
		res.AutoClose.Cancel()
		outcome = <-res.AutoClose.Done()
	}

	// Recording must survive the interrupt that triggered cancellation.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if outcome.Outcome != "" {
		if err := st.receipts.MarkClosed(recordCtx, res.ReceiptID, outcome.Signature, outcome.Outcome, time.Now().UnixMilli()); err != nil {
			log.Warn().Err(err).Msg("mark receipt closed failed")
		}
	}
	if outcome.Err != nil {
		return fmt.Errorf("auto-close %s: %w", outcome.Outcome, outcome.Err)
	}

	log.Info().Str("outcome", outcome.Outcome).Str("signature", outcome.Signature).Msg("auto-close resolved")
	return nil
}

func runClose(ctx context.Context, eng *engine.Engine, log zerolog.Logger, target string, side domain.Side, receive string, slippageBps uint32) error {
	if target == "" {
		return errors.New("--target is required")
	}
	res, err := eng.CloseNow(ctx, target, side, receive, slippageBps)
	if err != nil {
		return err
	}
	log.Info().Str("outcome", res.Outcome).Str("signature", res.Signature).Msg("close resolved")
	return res.Err
}

func runPositions(ctx context.Context, eng *engine.Engine, cat *catalog.Catalog) error {
	positions, err := eng.OpenPositions(ctx)
	if err != nil {
		return err
	}
	if len(positions) == 0 {
		fmt.Println("no open positions")
		return nil
	}
	for _, p := range positions {
		symbol := p.Market.TargetMint
		if t, err := cat.TokenByMint(p.Market.TargetMint); err == nil {
			symbol = t.Symbol
		}
		fmt.Printf("%-8s %-6s size=%s collateral=%s entry=%s account=%s\n",
			symbol, p.Market.Side,
			sizing.FormatUsd6(p.SizeUsd),
			sizing.FormatUsd6(p.CollateralUsd),
			sizing.FormatUsd6(p.EntryPrice),
			p.Account)
	}
	return nil
}

// openStores connects the receipt and snapshot stores, running
// migrations, or falls back to in-memory implementations.
func openStores(ctx context.Context, useMemory bool, postgresDSN, clickhouseDSN string) (*stores, error) {
	if useMemory {
		return &stores{
			receipts:  memstore.NewTradeReceiptStore(),
			snapshots: memstore.NewPriceSnapshotStore(),
		}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrations: %w", err)
	}

	conn, err := chstore.NewConn(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect clickhouse: %w", err)
	}
	if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
		pool.Close()
		conn.Close()
		return nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	return &stores{
		receipts:  pgstore.NewTradeReceiptStore(pool),
		snapshots: chstore.NewPriceSnapshotStore(conn),
		closeFns:  []func(){pool.Close, func() { conn.Close() }},
	}, nil
}

// parseLeverage converts a human multiplier ("1.5") to the 1e4 scale.
func parseLeverage(s string) (uint32, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse leverage %q: %w", s, err)
	}
	scaled := d.Shift(4)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("leverage %q exceeds 4 decimal places", s)
	}
	v := scaled.BigInt()
	if !v.IsUint64() || v.Uint64() == 0 || v.Uint64() > 1<<31 {
		return 0, fmt.Errorf("leverage %q out of range", s)
	}
	return uint32(v.Uint64()), nil
}

// loadEnvFile loads environment variables from .env if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
