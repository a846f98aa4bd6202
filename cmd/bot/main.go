package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/stratex/tradecore/internal/config"
	"github.com/stratex/tradecore/internal/infrastructure/breaker"
	"github.com/stratex/tradecore/internal/infrastructure/broker"
	"github.com/stratex/tradecore/internal/infrastructure/cache"
	"github.com/stratex/tradecore/internal/infrastructure/logger"
	"github.com/stratex/tradecore/internal/infrastructure/storage"
	"github.com/stratex/tradecore/internal/usecase"
	"github.com/stratex/tradecore/internal/web"
	"go.uber.org/zap"
)

func main() {
	// 1. Load Config
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// 3. Init Storage
	pool := storage.NewPool(cfg.Storage.Path, cfg.Storage.MaxConnections, cfg.Storage.AcquireTimeout, log)
	store, err := storage.NewSQLiteStore(pool, log)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}

	// 4. Init Breakers and Cache
	breakers := breaker.NewRegistry(breaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		RecoveryTimeout:  cfg.Breaker.RecoveryTimeout,
	}, log)
	memCache := cache.New(cfg.Cache.MaxSize, cfg.Cache.DefaultTTL, cfg.Cache.SweepEvery, log)

	// 5. Init Broker
	alpaca := broker.NewAlpacaAdapter(cfg.Broker.APIKey, cfg.Broker.APISecret, cfg.Broker.BaseURL, cfg.Broker.DataURL, log)

	// 6. Init Services
	gateway := usecase.NewMarketDataGateway(alpaca, breakers, memCache, store, store, usecase.GatewayConfig{
		QuoteTTL:      cfg.Gateway.QuoteTTL,
		BarTTL:        cfg.Gateway.BarTTL,
		StalePriceMax: cfg.Gateway.StalePriceMax,
	}, log)

	filter := usecase.NewSignalFilter(usecase.SignalFilterConfig{
		MinStrength:         cfg.Signals.MinStrength,
		MinSignalGap:        cfg.Signals.MinSignalGap,
		RequireConfirmation: cfg.Signals.RequireConfirmation,
	}, log)

	ledger := usecase.NewPositionLedger(usecase.RiskConfig{
		MaxPositions:       cfg.Risk.MaxPositions,
		MaxPositionSizePct: cfg.Risk.MaxPositionSizePct,
		MaxPortfolioRisk:   cfg.Risk.MaxPortfolioRisk,
		StopLossPct:        cfg.Risk.StopLossPct,
		RewardRatio:        cfg.Risk.RewardRatio,
	}, store, store, log)
	if err := ledger.LoadFromStore(context.Background()); err != nil {
		log.Fatal("Failed to load positions", zap.Error(err))
	}

	executor := usecase.NewOrderExecutor(usecase.ExecutorConfig{
		MaxPositionSizePct: cfg.Risk.MaxPositionSizePct,
		StopLossPct:        cfg.Risk.StopLossPct,
		RewardRatio:        cfg.Risk.RewardRatio,
	}, filter, ledger, gateway, alpaca, breakers, store, log)

	// 7. Shutdown context (declared early so every loop can watch it;
	// a single signal wakes all of them)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 8. Connect Trade Stream
	var stream *broker.TradeStream
	if cfg.Broker.StreamURL != "" && len(cfg.Broker.Watchlist) > 0 {
		stream = broker.NewTradeStream(cfg.Broker.StreamURL, cfg.Broker.APIKey, cfg.Broker.APISecret, log)
		stream.OnPriceUpdate(func(symbol string, price float64, ts time.Time) {
			gateway.RecordStreamPrice(context.Background(), symbol, price, ts)
		})
		if err := stream.Connect(cfg.Broker.Watchlist); err != nil {
			log.Error("Failed to connect trade stream, continuing with REST only", zap.Error(err))
			stream = nil
		}
	}

	// Risk Sweep Loop (Every 30s)
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				report := executor.CheckRiskManagement(ctx)
				if len(report.Closed) > 0 {
					log.Info("Risk sweep closed positions", zap.Strings("symbols", report.Closed))
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	// Queued Signal Drain Loop (Every 1m)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				executor.ProcessQueuedSignals(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	// 9. Start Web Server
	server := web.NewServer(cfg.Server.Port, executor, gateway, breakers, memCache, pool, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
	if stream != nil {
		stream.Close()
	}
	memCache.Close()
	if err := pool.Close(); err != nil {
		log.Error("Failed to close storage pool", zap.Error(err))
	}
}
