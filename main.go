package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"spot-trader/internal/api"
	"spot-trader/internal/balance"
	"spot-trader/internal/engine"
	"spot-trader/internal/events"
	"spot-trader/internal/ledger"
	"spot-trader/internal/market"
	"spot-trader/internal/monitor"
	"spot-trader/internal/reconciliation"
	"spot-trader/internal/risk"
	"spot-trader/internal/router"
	"spot-trader/internal/scorer"
	"spot-trader/pkg/config"
	"spot-trader/pkg/db"
	exspot "spot-trader/pkg/exchanges/binance/spot"
	marketbinance "spot-trader/pkg/market/binance"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ config load failed: %v", err)
	}
	log.Printf("starting spot trader on port %s (symbols: %v)", cfg.Port, cfg.Symbols)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("❌ db init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("❌ db migrations failed: %v", err)
	}

	// Position ledger seeded from DB
	led := ledger.New(database)
	if err := led.Load(ctx); err != nil {
		log.Fatalf("❌ ledger load failed: %v", err)
	}
	log.Printf("✓ ledger loaded: %d open positions", led.Count())

	// Exchange gateway
	gateway := exspot.New(exspot.Config{
		APIKey:    cfg.BinanceAPIKey,
		APISecret: cfg.BinanceAPISecret,
		Testnet:   cfg.BinanceTestnet,
	})
	gateway.StartTimeSync(ctx)

	// Live order execution needs credentials.
	dryRun := !cfg.ExecutionEnabled
	if !dryRun && cfg.BinanceAPIKey == "" {
		log.Println("⚠️ no API key configured, forcing dry run")
		dryRun = true
	}

	// Balance manager: synced from the exchange in live mode, seeded
	// with paper funds otherwise.
	balanceMgr := balance.NewManager(gateway, "USDT", 30*time.Second)
	if dryRun || cfg.UseMockFeed {
		balanceMgr.SetInitial(10000)
		log.Println("✓ balance seeded with paper funds")
	} else {
		if err := balanceMgr.Sync(ctx); err != nil {
			log.Fatalf("❌ initial balance sync failed: %v", err)
		}
		balanceMgr.Start(ctx)
		log.Printf("✓ balance synced: %.2f USDT available", balanceMgr.Available())
	}

	// Risk manager
	riskMgr := risk.NewManager(risk.Config{
		RiskPerTrade:      cfg.RiskPerTrade,
		MaxPositions:      cfg.MaxPositions,
		MaxExposurePct:    cfg.MaxExposurePct,
		DailyLossLimitPct: cfg.DailyLossLimitPct,
		MaxDrawdownPct:    cfg.MaxDrawdownPct,
		PositionLossPct:   cfg.PositionLossPct,
		MinOrderNotional:  cfg.MinOrderNotional,
		MaxOrderNotional:  cfg.MaxOrderNotional,
	})
	riskMgr.SetDayStartEquity(balanceMgr.Get().Total)

	// Scorer
	scorerCfg, err := scorer.LoadConfig(cfg.ScorerConfigPath)
	if err != nil {
		log.Printf("⚠️ scorer config: %v (using defaults)", err)
	}
	sc := scorer.NewInstitutional(scorerCfg)

	// Order router
	orderRouter := router.New(gateway, database, bus, router.Config{
		MarketMaxNotional: cfg.MarketOrderMaxNotional,
		TWAPMinNotional:   cfg.TWAPMinNotional,
		TWAPSliceNotional: cfg.TWAPSliceNotional,
		TWAPSliceInterval: cfg.TWAPSliceInterval,
		LimitTimeout:      cfg.LimitOrderTimeout,
		PollInterval:      time.Second,
		DepthLevels:       scorerCfg.DepthLevels,
		MaxSpreadPct:      0.003,
		MaxDeviationPct:   0.01,
		IntentTTL:         cfg.IntentTTL,
	})

	// Market data
	store := market.NewStore(scorerCfg.VolumeWindow, cfg.StaleDataMaxAge)
	if cfg.UseMockFeed {
		mock := &market.MockFeed{Bus: bus, Store: store, Symbols: cfg.Symbols}
		mock.Start(ctx)
		log.Println("✓ mock market feed started")
	} else {
		feed := &market.Feed{
			Stream:   marketbinance.NewStreamClient(cfg.BinanceTestnet),
			Rest:     marketbinance.NewClient(cfg.BinanceTestnet),
			Exchange: gateway,
			Bus:      bus,
			Store:    store,
			Symbols:  cfg.Symbols,
		}
		feed.Start(ctx)
		log.Println("✓ market feed started")

		if cfg.BinanceAPIKey != "" {
			userStream := &market.UserStream{
				Client:  gateway,
				DB:      database,
				Balance: balanceMgr,
				Testnet: cfg.BinanceTestnet,
			}
			userStream.Start(ctx)
		}

		recon := &reconciliation.Service{
			Exchange:   gateway,
			Ledger:     led,
			Bus:        bus,
			QuoteAsset: "USDT",
		}
		recon.Start(ctx)
	}

	metrics := monitor.NewSystemMetrics()

	// Position monitor and emergency controller
	posMon := &monitor.PositionMonitor{
		Ledger:          led,
		Risk:            riskMgr,
		Prices:          store,
		Closer:          orderRouter,
		Bus:             bus,
		Interval:        cfg.MonitorInterval,
		MaxPositionAge:  cfg.MaxPositionAge,
		PositionLossPct: cfg.PositionLossPct,
	}
	if !cfg.UseMockFeed {
		// When the feed goes stale the monitor asks the venue directly.
		posMon.Tickers = gateway
	}
	posMon.Start(ctx)

	emergency := &monitor.EmergencyController{
		Risk:           riskMgr,
		Monitor:        posMon,
		Bus:            bus,
		KillSwitchFile: cfg.KillSwitchFile,
	}
	emergency.Start(ctx)

	relay := &monitor.AlertRelay{Bus: bus, Sink: &monitor.LogSink{}}
	relay.Start(ctx)

	// Trading engine
	trader := &engine.Trader{
		Symbols:     cfg.Symbols,
		Store:       store,
		Scorers:     []scorer.Scorer{sc},
		Risk:        riskMgr,
		Balance:     balanceMgr,
		Ledger:      led,
		Router:      orderRouter,
		Bus:         bus,
		Metrics:     metrics,
		TrailingPct: cfg.TrailingStopPct,
		DryRun:      dryRun,
	}
	trader.Start(ctx)

	// Daily rollover at midnight UTC: reset the loss counters against
	// current equity and snapshot it for the equity curve.
	scheduler := cron.New(cron.WithLocation(time.UTC))
	_, err = scheduler.AddFunc("0 0 * * *", func() {
		snap := balanceMgr.Get()
		riskMgr.ResetDaily(snap.Total)
		rec := db.EquitySnapshot{
			Balance:       snap.Total,
			OpenPositions: led.Count(),
		}
		if err := database.InsertEquitySnapshot(context.Background(), rec); err != nil {
			log.Printf("❌ equity snapshot failed: %v", err)
		} else {
			log.Printf("✓ daily reset: equity %.2f", snap.Total)
		}
	})
	if err != nil {
		log.Fatalf("❌ cron schedule failed: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	mode := "LIVE"
	if dryRun {
		mode = "DRY_RUN"
	}
	venue := "binance-spot"
	if cfg.BinanceTestnet {
		venue = "binance-spot-testnet"
	}

	svc := engine.NewImpl(engine.Config{
		Ledger:    led,
		RiskMgr:   riskMgr,
		Balance:   balanceMgr,
		PosMon:    posMon,
		Emergency: emergency,
		Metrics:   metrics,
		Prices:    store,
		DB:        database,
		Meta: engine.SystemStatus{
			Mode:        mode,
			DryRun:      dryRun,
			Venue:       venue,
			Symbols:     cfg.Symbols,
			UseMockFeed: cfg.UseMockFeed,
			Version:     getEnv("APP_VERSION", "v1.0-dev"),
		},
	})

	server := api.NewServer(api.Config{
		Engine:          svc,
		Bus:             bus,
		Metrics:         metrics,
		JWTSecret:       cfg.JWTSecret,
		OperatorKey:     cfg.OperatorKey,
		OperatorKeyHash: cfg.OperatorKeyHash,
	})
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("❌ api server failed: %v", err)
		}
	}()
	log.Printf("✓ spot trader running in %s mode on :%s", mode, cfg.Port)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("shutting down...")
	cancel()
	time.Sleep(500 * time.Millisecond)
	log.Println("✓ shutdown complete")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
