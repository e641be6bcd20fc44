// Command integration runs an end-to-end check of the covered-call analysis
// against the Tradier sandbox.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/covered_call/internal/analysis"
	"github.com/eddiefleurent/covered_call/internal/broker"
	"github.com/eddiefleurent/covered_call/internal/config"
	"github.com/eddiefleurent/covered_call/internal/models"
	"github.com/eddiefleurent/covered_call/internal/retry"
)

type step struct {
	name string
	run  func(ctx context.Context) error
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	symbol := flag.String("symbol", "SPY", "Ticker to analyze")
	flag.Parse()

	fmt.Println("=== Covered Call - End-to-End Integration Test ===")
	fmt.Println()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := config.LoadEnv(); err != nil {
		logger.WithError(err).Fatal("Failed to load .env")
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load config")
	}
	if cfg.UseMock() {
		logger.Fatal("Integration tests need broker.provider: 'tradier' in config.yaml")
	}
	if err := cfg.RequireCredentials(); err != nil {
		logger.WithError(err).Fatal("Missing Tradier credentials")
	}
	if !cfg.IsSandbox() {
		logger.Fatal("Integration tests must run in sandbox mode. Set environment.mode: 'sandbox' in config.yaml")
	}

	tradier := broker.NewTradierAPIWithTimeout(cfg.Broker.APIKey, true, cfg.Broker.APIEndpoint, cfg.GetBrokerTimeout())
	gateway := retry.NewClient(broker.NewCircuitBreakerMarketData(tradier), logger, cfg.GetRetryConfig())
	analyzer := analysis.NewAnalyzer(gateway, cfg.GetSession(), cfg.GetAnalysisOptions(), logger)

	var firstExpiration string
	steps := []step{
		{"Quote lookup", func(ctx context.Context) error {
			q, err := gateway.GetQuoteCtx(ctx, *symbol)
			if err != nil {
				return err
			}
			if q.Last <= 0 {
				return fmt.Errorf("last price %.2f is not positive", q.Last)
			}
			fmt.Printf("   %s last $%.2f\n", q.Symbol, q.Last)
			return nil
		}},
		{"Single expiration analysis", func(ctx context.Context) error {
			res, err := analyzer.CoveredCalls(ctx, *symbol, "")
			if err != nil {
				return err
			}
			firstExpiration = res.Expiration
			fmt.Printf("   %d candidates for %s\n", len(res.OptionsChain), res.Expiration)
			for _, cc := range res.OptionsChain {
				if cc.Strike != nil && *cc.Strike >= res.Quote.Last+cfg.GetPriceCeilingOffset() {
					return fmt.Errorf("strike %.2f above price ceiling", *cc.Strike)
				}
			}
			return nil
		}},
		{"Explicit expiration analysis", func(ctx context.Context) error {
			if firstExpiration == "" {
				return errors.New("no expiration from previous step")
			}
			res, err := analyzer.CoveredCalls(ctx, *symbol, firstExpiration)
			if err != nil {
				return err
			}
			if res.Expiration != firstExpiration {
				return fmt.Errorf("resolved %s, want %s", res.Expiration, firstExpiration)
			}
			return nil
		}},
		{"Bulk analysis", func(ctx context.Context) error {
			res, err := analyzer.Bulk(ctx, *symbol, 0)
			if err != nil {
				return err
			}
			fmt.Printf("   %d pages: %v\n", len(res.Pages), res.Expirations)
			return nil
		}},
		{"Invalid ticker rejected", func(ctx context.Context) error {
			_, err := analyzer.CoveredCalls(ctx, "TOOLONG", "")
			if !errors.Is(err, models.ErrInvalidTicker) {
				return fmt.Errorf("expected invalid ticker error, got %v", err)
			}
			return nil
		}},
		{"Passed date rejected", func(ctx context.Context) error {
			_, err := analyzer.CoveredCalls(ctx, *symbol, "2001-01-05")
			if !errors.Is(err, models.ErrDateAlreadyPassed) {
				return fmt.Errorf("expected passed date error, got %v", err)
			}
			return nil
		}},
	}

	failed := 0
	for i, s := range steps {
		fmt.Printf("%d. %s\n", i+1, s.name)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := s.run(ctx)
		cancel()
		if err != nil {
			failed++
			fmt.Printf("   ❌ FAILED: %v\n", err)
			continue
		}
		fmt.Println("   ✅ OK")
	}

	fmt.Println()
	fmt.Printf("Market open now: %v\n", analyzer.MarketOpen(nil))
	if failed > 0 {
		fmt.Printf("=== %d of %d steps failed ===\n", failed, len(steps))
		os.Exit(1)
	}
	fmt.Println("=== All integration steps passed ===")
}
