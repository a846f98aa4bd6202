package main

import (
	"context"
	"fmt"
	"os"

	"github.com/stratex/tradecore/internal/config"
	"github.com/stratex/tradecore/internal/infrastructure/broker"
	"go.uber.org/zap"
)

func main() {
	// 1. Load Config
	cfg, err := config.Load("config/config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Testing broker interaction...\n")
	fmt.Printf("Endpoint: %s\n", cfg.Broker.BaseURL)

	adapter := broker.NewAlpacaAdapter(cfg.Broker.APIKey, cfg.Broker.APISecret, cfg.Broker.BaseURL, cfg.Broker.DataURL, zap.NewNop())
	ctx := context.Background()

	// 2. Check Account
	account, err := adapter.GetAccount(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to get account: %v\n", err)
	} else {
		fmt.Printf("✅ Account: Equity=%.2f, BuyingPower=%.2f, Blocked=%v\n",
			account.Equity, account.BuyingPower, account.TradingBlocked)
	}

	// 3. Check Market Clock
	clock, err := adapter.GetClock(ctx)
	if err != nil {
		fmt.Printf("❌ Failed to get clock: %v\n", err)
	} else {
		fmt.Printf("✅ Market open: %v (next open %s)\n", clock.IsOpen, clock.NextOpen)
	}

	// 4. Check Market Data
	quote, err := adapter.GetLatestQuote(ctx, "AAPL")
	if err != nil {
		fmt.Printf("❌ Failed to get quote: %v\n", err)
	} else {
		fmt.Printf("✅ Latest quote (AAPL): %.2f\n", quote.Price)
	}
}
