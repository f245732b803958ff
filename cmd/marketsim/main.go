package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abhivetukuri/marketmaker/internal/api"
	"github.com/abhivetukuri/marketmaker/internal/archive"
	"github.com/abhivetukuri/marketmaker/internal/config"
	"github.com/abhivetukuri/marketmaker/internal/engine"
	"github.com/abhivetukuri/marketmaker/internal/flow"
	"github.com/abhivetukuri/marketmaker/internal/itch"
	"github.com/abhivetukuri/marketmaker/internal/orderbook"
	"github.com/abhivetukuri/marketmaker/internal/persist"
	"github.com/abhivetukuri/marketmaker/internal/position"
	"github.com/abhivetukuri/marketmaker/internal/scenario"
	"github.com/abhivetukuri/marketmaker/internal/session"
	"github.com/abhivetukuri/marketmaker/internal/strategy"
	"github.com/abhivetukuri/marketmaker/internal/symbol"
	"github.com/abhivetukuri/marketmaker/internal/types"
)

func main() {
	cfg := config.Load()

	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.Println("market maker starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received signal %v, shutting down...", sig)
		cancel()
	}()

	rng := engine.NewRNG(cfg.Seed)
	log.Printf("PRNG seed: %d", cfg.Seed)

	syms := symbol.AllSymbols()
	log.Printf("loaded %d symbols", len(syms))

	market := engine.NewMarketEngine(rng, syms)
	books := orderbook.NewRegistry()

	limits := position.Limits{
		MaxPositionSize:  types.Quantity(cfg.MaxPositionSize),
		MaxLongPosition:  types.Quantity(cfg.MaxLongPosition),
		MaxShortPosition: types.Quantity(cfg.MaxShortPosition),
		MaxDailyLoss:     types.PnL(cfg.MaxDailyLoss),
		MaxDrawdown:      types.PnL(cfg.MaxDrawdown),
	}
	positions := position.NewTracker(limits)

	store, err := persist.NewStore(ctx, cfg.MongoURI)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer store.Close(context.Background())

	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	snapshotter := persist.NewSnapshotter(store, market, books, positions, rng, syms)

	restored, err := snapshotter.Load(ctx)
	if err != nil {
		log.Printf("warning: failed to load state: %v", err)
	}
	if !restored {
		log.Println("initializing order books from base prices...")
		for _, s := range syms {
			market.SetPrice(s.LocateCode, s.BasePrice)
		}
	}

	mgr := session.NewManager(syms, cfg.SendBufferSize)
	scenarios := scenario.NewRunner(books, positions)

	makerSyms := make([]types.SymbolId, 0, len(syms))
	for _, s := range syms {
		if !s.IsStress {
			makerSyms = append(makerSyms, s.LocateCode)
		}
	}
	quoter := strategy.NewInventorySkewedStrategy(strategy.InventorySkewedConfig{
		BasePrice:    types.PriceFromDollars(100),
		MinSpread:    types.PriceFromDollars(cfg.StrategyMinSpread),
		MaxSpread:    types.PriceFromDollars(cfg.StrategyMaxSpread),
		QuoteSize:    types.Quantity(cfg.StrategyQuoteSize),
		MaxInventory: types.Quantity(cfg.StrategyMaxInv),
		Symbols:      makerSyms,
	})

	tradeCh := make(chan tradeRecord, 4096)
	for i := 0; i < 2; i++ {
		go tradeWriter(ctx, snapshotter, tradeCh)
	}

	generators := make(map[types.SymbolId]*flow.Generator, len(syms))
	for _, s := range syms {
		generators[s.LocateCode] = flow.NewGenerator(rng, books, positions, s)
	}

	for _, s := range syms {
		if s.IsStress {
			go stressRunner(ctx, s, market, generators[s.LocateCode], mgr, rng, cfg, tradeCh)
		} else {
			go symbolRunner(ctx, s, market, generators[s.LocateCode], mgr, cfg.TickInterval, tradeCh)
		}
	}
	log.Printf("started %d symbol runners", len(syms))

	go quoteRunner(ctx, books, positions, quoter, 500*time.Millisecond)
	log.Println("started market-making quoter")

	go snapshotter.Run(ctx, cfg.SnapshotInterval)
	log.Println("started persistence snapshotter")

	go persist.RunRetention(ctx, store, cfg.TradeRetentionDays)

	if cfg.S3Bucket != "" {
		archiver, err := archive.New(ctx, store.DB(), cfg.S3Bucket, cfg.S3Region, cfg.S3Prefix, cfg.ArchiveIntervalHours, cfg.ArchiveAfterHours)
		if err != nil {
			log.Printf("warning: trade archiver disabled: %v", err)
		} else {
			go archiver.Run(ctx)
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/feed", session.Handler(mgr))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"ok","clients":%d,"symbols":%d}`, mgr.ClientCount(), len(syms))
	})

	apiServer := api.NewServer(persist.NewMongoTradeReader(store.DB()), market, books, positions, scenarios, mgr, syms)
	apiServer.Register(mux)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.WSPort)
	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("WebSocket server listening on ws://%s/feed", addr)
	log.Printf("Health check: http://%s/health", addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}

	log.Println("market maker stopped")
}

// symbolRunner drives a single normal symbol's order flow at a fixed
// interval.
func symbolRunner(ctx context.Context, sym symbol.Symbol, market *engine.MarketEngine, gen *flow.Generator, mgr *session.Manager, interval time.Duration, tradeCh chan<- tradeRecord) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			market.GenerateSectorShocks()
			price := market.Tick(sym.LocateCode)

			numActions := 1 + int(market.PriceTicks(sym.LocateCode)%3)
			if numActions > 3 {
				numActions = 3
			}

			msgs := gen.Step(price, numActions)

			enqueueTrades(tradeCh, sym.LocateCode, msgs)
			mgr.Broadcast(uint16(sym.LocateCode), sym.Ticker, msgs)
		}
	}
}

// stressRunner runs the BLITZ stress symbol with variable-rate ticking.
func stressRunner(ctx context.Context, sym symbol.Symbol, market *engine.MarketEngine, gen *flow.Generator, mgr *session.Manager, rng *engine.RNG, cfg *config.Config, tradeCh chan<- tradeRecord) {
	stressCfg := engine.StressConfig{
		CalmMinMs:   cfg.StressCalmMinMs,
		CalmMaxMs:   cfg.StressCalmMaxMs,
		ActiveMinMs: cfg.StressActiveMinMs,
		ActiveMaxMs: cfg.StressActiveMaxMs,
		BurstMinMs:  cfg.StressBurstMinMs,
		BurstMaxMs:  cfg.StressBurstMaxMs,
	}
	ctrl := engine.NewStressController(rng, stressCfg)

	lastPhaseLog := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		interval, numActions := ctrl.Tick()

		if time.Since(lastPhaseLog) > 5*time.Second {
			log.Printf("BLITZ: phase=%s intensity=%.2f interval=%v actions=%d",
				ctrl.Phase(), ctrl.Intensity(), interval, numActions)
			lastPhaseLog = time.Now()
		}

		market.GenerateSectorShocks()
		price := market.Tick(sym.LocateCode)

		msgs := gen.Step(price, numActions)

		enqueueTrades(tradeCh, sym.LocateCode, msgs)
		mgr.Broadcast(uint16(sym.LocateCode), sym.Ticker, msgs)

		if ctrl.Phase() == engine.PhaseBurst && ctrl.Intensity() > 0.9 {
			burstMsg := itch.Message{
				Type:        itch.MsgSystemEvent,
				StockLocate: uint16(sym.LocateCode),
				EventCode:   itch.EventStartOfMarket,
			}
			mgr.Broadcast(uint16(sym.LocateCode), sym.Ticker, []itch.Message{burstMsg})
		}

		time.Sleep(interval)
	}
}

// quoteRunner refreshes a strategy's resting quotes on a fixed cadence.
func quoteRunner(ctx context.Context, books *orderbook.Registry, positions *position.Tracker, s strategy.Strategy, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.UpdateQuotes(books, positions, types.Timestamp(time.Now().UnixNano()))
		}
	}
}

// tradeRecord is a value sent through the trade persistence channel.
type tradeRecord struct {
	matchNumber uint64
	locate      types.SymbolId
	price       types.Price
	qty         types.Quantity
	side        types.OrderSide
}

// enqueueTrades sends trade messages to the persistence channel.
// Drops silently if the channel buffer is full (back-pressure).
func enqueueTrades(ch chan<- tradeRecord, locate types.SymbolId, msgs []itch.Message) {
	for i := range msgs {
		if msgs[i].Type != itch.MsgTrade {
			continue
		}
		side := types.Buy
		if msgs[i].Side == 'S' {
			side = types.Sell
		}
		select {
		case ch <- tradeRecord{
			matchNumber: msgs[i].MatchNumber,
			locate:      locate,
			price:       types.PriceFromDollars(msgs[i].Price),
			qty:         types.Quantity(msgs[i].Shares),
			side:        side,
		}:
		default:
			// buffer full, drop trade rather than block the ticker
		}
	}
}

// tradeWriter drains the trade channel and writes to the DB.
func tradeWriter(ctx context.Context, snap *persist.Snapshotter, ch <-chan tradeRecord) {
	for {
		select {
		case <-ctx.Done():
			return
		case tr := <-ch:
			snap.SaveTrade(context.Background(), tr.matchNumber, tr.locate, tr.price, tr.qty, tr.side)
		}
	}
}
