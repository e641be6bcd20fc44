package broker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
)

// fakeMarketData fails every call after failAfter successful calls when shouldFail is set.
type fakeMarketData struct {
	callCount  int32
	shouldFail atomic.Bool
	failAfter  int32
}

func (m *fakeMarketData) fail() bool {
	n := atomic.AddInt32(&m.callCount, 1)
	return m.shouldFail.Load() && n > m.failAfter
}

func (m *fakeMarketData) GetQuoteCtx(_ context.Context, symbol string) (*QuoteItem, error) {
	if m.fail() {
		return nil, errors.New("mock gateway error")
	}
	return &QuoteItem{Symbol: symbol, Last: 100}, nil
}

func (m *fakeMarketData) GetExpirationsCtx(_ context.Context, _ string) ([]string, error) {
	if m.fail() {
		return nil, errors.New("mock gateway error")
	}
	return []string{"2024-12-20"}, nil
}

func (m *fakeMarketData) GetOptionChainCtx(_ context.Context, _, _ string) ([]Option, error) {
	if m.fail() {
		return nil, errors.New("mock gateway error")
	}
	return []Option{{Symbol: "SPY241220C00400000", OptionType: "call"}}, nil
}

func TestNewCircuitBreakerMarketData(t *testing.T) {
	gw := &fakeMarketData{}
	cb := NewCircuitBreakerMarketData(gw)

	if cb.gateway != gw {
		t.Error("CircuitBreakerMarketData.gateway not set correctly")
	}
	if cb.breaker == nil {
		t.Error("CircuitBreakerMarketData.breaker not initialized")
	}
}

func TestCircuitBreakerMarketData_AllMethods(t *testing.T) {
	cb := NewCircuitBreakerMarketData(&fakeMarketData{})
	ctx := context.Background()

	quote, err := cb.GetQuoteCtx(ctx, "SPY")
	if err != nil || quote.Symbol != "SPY" {
		t.Fatalf("GetQuoteCtx = %+v, %v", quote, err)
	}
	dates, err := cb.GetExpirationsCtx(ctx, "SPY")
	if err != nil || len(dates) != 1 {
		t.Fatalf("GetExpirationsCtx = %v, %v", dates, err)
	}
	chain, err := cb.GetOptionChainCtx(ctx, "SPY", "2024-12-20")
	if err != nil || len(chain) != 1 {
		t.Fatalf("GetOptionChainCtx = %v, %v", chain, err)
	}
}

func TestCircuitBreakerMarketData_TripsAndReturnsOpenState(t *testing.T) {
	gw := &fakeMarketData{failAfter: 3}
	gw.shouldFail.Store(true)
	cb := NewCircuitBreakerMarketDataWithSettings(gw, CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  1,
		FailureRatio: 0.5,
	})

	for i := 0; i < 8; i++ {
		_, err := cb.GetQuoteCtx(context.Background(), "SPY")
		if i < 3 && err != nil {
			t.Errorf("call %d should succeed but failed: %v", i+1, err)
		}
		if i >= 3 && err == nil {
			t.Errorf("call %d should fail but succeeded", i+1)
		}
	}

	if cb.breaker.State() != gobreaker.StateOpen {
		t.Fatalf("circuit breaker should be open, state is %s", cb.breaker.State())
	}
	if _, err := cb.GetOptionChainCtx(context.Background(), "SPY", "2024-12-20"); !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("expected gobreaker.ErrOpenState, got %v", err)
	}
}

func TestCircuitBreakerMarketData_RecoveryBehavior(t *testing.T) {
	gw := &fakeMarketData{failAfter: 0}
	gw.shouldFail.Store(true)
	cb := NewCircuitBreakerMarketDataWithSettings(gw, CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      15 * time.Millisecond,
		MinRequests:  2,
		FailureRatio: 0.5,
	})

	for i := 0; i < 4; i++ {
		_, _ = cb.GetExpirationsCtx(context.Background(), "SPY")
	}
	if cb.breaker.State() != gobreaker.StateOpen {
		t.Fatalf("circuit breaker should be open, state is %s", cb.breaker.State())
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for cb.breaker.State() != gobreaker.StateHalfOpen {
		if time.Now().After(deadline) {
			t.Fatalf("circuit breaker did not transition to half-open")
		}
		time.Sleep(time.Millisecond)
	}

	gw.shouldFail.Store(false)
	if _, err := cb.GetExpirationsCtx(context.Background(), "SPY"); err != nil {
		t.Fatalf("recovery call failed: %v", err)
	}
	if cb.breaker.State() != gobreaker.StateClosed {
		t.Fatalf("circuit breaker should be closed after recovery, state is %s", cb.breaker.State())
	}
}
