// Package mock provides an offline MarketData gateway with synthetic quotes,
// expirations and option chains.
package mock

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/eddiefleurent/covered_call/internal/broker"
	"github.com/eddiefleurent/covered_call/internal/expiration"
)

// Defaults used by NewMarketDataProvider.
const (
	DefaultPrice          = 450.0
	DefaultStrikeInterval = 5.0
	DefaultExpirations    = 8
	strikesPerSide        = 10
)

// MarketDataProvider serves deterministic market data unless jitter is enabled,
// in which case the underlying drifts slightly on every quote.
type MarketDataProvider struct {
	mu             sync.Mutex
	currentPrice   float64
	midIV          float64
	strikeInterval float64
	expirations    int
	jitter         bool
	now            func() time.Time
}

var _ broker.MarketData = (*MarketDataProvider)(nil)

// secureFloat64 generates a cryptographically secure random float64 between 0 and 1
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// secureInt63n generates a cryptographically secure random int64 between 0 and n-1
func secureInt63n(n int64) int64 {
	r, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return n / 2
	}
	return r.Int64()
}

// NewMarketDataProvider returns a deterministic provider priced at price
// (DefaultPrice when price <= 0).
func NewMarketDataProvider(price float64) *MarketDataProvider {
	if price <= 0 {
		price = DefaultPrice
	}
	return &MarketDataProvider{
		currentPrice:   price,
		midIV:          20,
		strikeInterval: DefaultStrikeInterval,
		expirations:    DefaultExpirations,
		now:            time.Now,
	}
}

// WithJitter makes quotes drift by up to a dollar per call and randomizes volume.
func (m *MarketDataProvider) WithJitter() *MarketDataProvider {
	m.jitter = true
	return m
}

// WithClock overrides the reference time used to list expirations.
func (m *MarketDataProvider) WithClock(now func() time.Time) *MarketDataProvider {
	if now != nil {
		m.now = now
	}
	return m
}

func (m *MarketDataProvider) price() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentPrice
}

func checkSymbol(ctx context.Context, symbol string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(symbol) == "" {
		return &broker.APIError{Status: 400, Body: "symbol is required"}
	}
	return nil
}

// GetQuoteCtx returns the current synthetic quote for symbol.
func (m *MarketDataProvider) GetQuoteCtx(ctx context.Context, symbol string) (*broker.QuoteItem, error) {
	if err := checkSymbol(ctx, symbol); err != nil {
		return nil, err
	}
	m.mu.Lock()
	if m.jitter {
		m.currentPrice += (secureFloat64() - 0.5) * 2
	}
	last := math.Round(m.currentPrice*100) / 100
	m.mu.Unlock()

	volume := int64(1_000_000)
	if m.jitter {
		volume = secureInt63n(100000000)
	}
	spread := 0.02
	return &broker.QuoteItem{
		Symbol:      symbol,
		Description: symbol + " (mock)",
		Type:        "stock",
		Last:        last,
		Bid:         last - spread/2,
		Ask:         last + spread/2,
		PrevClose:   last,
		Volume:      volume,
	}, nil
}

// GetExpirationsCtx lists weekly Friday expirations, one per week, starting
// with the first Friday after today.
func (m *MarketDataProvider) GetExpirationsCtx(ctx context.Context, symbol string) ([]string, error) {
	if err := checkSymbol(ctx, symbol); err != nil {
		return nil, err
	}
	d := m.now()
	d = time.Date(d.Year(), d.Month(), d.Day()+1, 0, 0, 0, 0, time.UTC)
	for d.Weekday() != time.Friday {
		d = d.AddDate(0, 0, 1)
	}
	out := make([]string, m.expirations)
	for i := range out {
		out[i] = d.AddDate(0, 0, 7*i).Format(expiration.DateLayout)
	}
	return out, nil
}

// GetOptionChainCtx returns puts and calls with strikes ascending around the
// current price. Premiums shrink with distance from the money and grow with time.
func (m *MarketDataProvider) GetOptionChainCtx(ctx context.Context, symbol, exp string) ([]broker.Option, error) {
	if err := checkSymbol(ctx, symbol); err != nil {
		return nil, err
	}
	expDate, err := time.Parse(expiration.DateLayout, exp)
	if err != nil {
		return nil, &broker.APIError{Status: 400, Body: fmt.Sprintf("invalid expiration %q", exp)}
	}
	dte := math.Max(1, expDate.Sub(m.now()).Hours()/24)

	spot := m.price()
	start := math.Floor(spot/m.strikeInterval)*m.strikeInterval - strikesPerSide*m.strikeInterval
	vol := m.midIV / 100.0

	var options []broker.Option
	for i := 0; i <= 2*strikesPerSide; i++ {
		strike := start + float64(i)*m.strikeInterval
		if strike <= 0 {
			continue
		}
		decay := math.Exp(-math.Abs(strike-spot) * 0.02)
		extrinsic := math.Max(0.05, vol*math.Sqrt(dte/365.0)*spot*0.4*decay)

		putPrice := round2(math.Max(0, strike-spot) + extrinsic)
		callPrice := round2(math.Max(0, spot-strike) + extrinsic)

		options = append(options,
			m.contract(symbol, expDate, exp, strike, "P", putPrice),
			m.contract(symbol, expDate, exp, strike, "C", callPrice),
		)
	}
	return options, nil
}

func (m *MarketDataProvider) contract(symbol string, expDate time.Time, exp string, strike float64, side string, mid float64) broker.Option {
	kind, label := string(broker.OptionTypeCall), "Call"
	if side == "P" {
		kind, label = string(broker.OptionTypePut), "Put"
	}
	bid := round2(math.Max(0, mid-0.05))
	ask := round2(mid + 0.05)
	var volume, oi int64 = 100, 1000
	if m.jitter {
		volume, oi = secureInt63n(10000), secureInt63n(50000)
	}
	return broker.Option{
		Symbol:         fmt.Sprintf("%s%s%s%08d", symbol, expDate.Format("060102"), side, int(strike*1000)),
		Description:    fmt.Sprintf("%s %s $%.2f %s", symbol, expDate.Format("Jan 02 2006"), strike, label),
		OptionType:     kind,
		ExpirationDate: exp,
		Underlying:     symbol,
		Strike:         &strike,
		Bid:            &bid,
		Ask:            &ask,
		Last:           &mid,
		Volume:         volume,
		OpenInterest:   oi,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
