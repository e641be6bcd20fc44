package broker

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	log "github.com/sirupsen/logrus"
)

// MarketData defines the market-data operations the analysis consumes.
// Every call is keyed by ticker symbol.
type MarketData interface {
	GetQuoteCtx(ctx context.Context, symbol string) (*QuoteItem, error)
	GetExpirationsCtx(ctx context.Context, symbol string) ([]string, error)
	GetOptionChainCtx(ctx context.Context, symbol, expiration string) ([]Option, error)
}

// Ensure TradierAPI implements MarketData at compile time.
var _ MarketData = (*TradierAPI)(nil)

// OptionType represents the type of option contract
type OptionType string

const (
	// OptionTypePut represents a put option contract
	OptionTypePut OptionType = "put"
	// OptionTypeCall represents a call option contract
	OptionTypeCall OptionType = "call"
)

// CircuitBreakerMarketData wraps a MarketData with circuit breaker functionality
type CircuitBreakerMarketData struct {
	gateway MarketData
	breaker *gobreaker.CircuitBreaker
}

var _ MarketData = (*CircuitBreakerMarketData)(nil)

// execCircuitBreaker is a generic helper for circuit breaker wrapper methods
func execCircuitBreaker[T any](
	breaker *gobreaker.CircuitBreaker,
	gateway MarketData,
	fn func(MarketData) (T, error),
) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn(gateway) })
	if err != nil {
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// DefaultCircuitBreakerSettings trips after 60% failures over at least 5 requests.
var DefaultCircuitBreakerSettings = CircuitBreakerSettings{
	MaxRequests:  3,
	Interval:     60 * time.Second,
	Timeout:      30 * time.Second,
	MinRequests:  5,
	FailureRatio: 0.6,
}

// NewCircuitBreakerMarketData creates a CircuitBreakerMarketData with DefaultCircuitBreakerSettings
func NewCircuitBreakerMarketData(gateway MarketData) *CircuitBreakerMarketData {
	return NewCircuitBreakerMarketDataWithSettings(gateway, DefaultCircuitBreakerSettings)
}

// NewCircuitBreakerMarketDataWithSettings creates a CircuitBreakerMarketData with custom settings
func NewCircuitBreakerMarketDataWithSettings(gateway MarketData, settings CircuitBreakerSettings) *CircuitBreakerMarketData {
	gbSettings := gobreaker.Settings{
		Name:        "MarketDataCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.WithFields(log.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
				Warn("Circuit breaker state changed")
		},
	}

	return &CircuitBreakerMarketData{
		gateway: gateway,
		breaker: gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// GetQuoteCtx wraps the underlying gateway call with circuit breaker
func (c *CircuitBreakerMarketData) GetQuoteCtx(ctx context.Context, symbol string) (*QuoteItem, error) {
	return execCircuitBreaker(c.breaker, c.gateway, func(g MarketData) (*QuoteItem, error) {
		return g.GetQuoteCtx(ctx, symbol)
	})
}

// GetExpirationsCtx wraps the underlying gateway call with circuit breaker
func (c *CircuitBreakerMarketData) GetExpirationsCtx(ctx context.Context, symbol string) ([]string, error) {
	return execCircuitBreaker(c.breaker, c.gateway, func(g MarketData) ([]string, error) {
		return g.GetExpirationsCtx(ctx, symbol)
	})
}

// GetOptionChainCtx wraps the underlying gateway call with circuit breaker
func (c *CircuitBreakerMarketData) GetOptionChainCtx(ctx context.Context, symbol, expiration string) ([]Option, error) {
	return execCircuitBreaker(c.breaker, c.gateway, func(g MarketData) ([]Option, error) {
		return g.GetOptionChainCtx(ctx, symbol, expiration)
	})
}
