// Package analysis composes ticker validation, expiration bucketing, chain
// filtering and covered-call metrics into single and bulk requests.
package analysis

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/eddiefleurent/covered_call/internal/broker"
	"github.com/eddiefleurent/covered_call/internal/expiration"
	"github.com/eddiefleurent/covered_call/internal/market"
	"github.com/eddiefleurent/covered_call/internal/models"
	"github.com/eddiefleurent/covered_call/internal/strategy"
)

// DefaultBulkPages is the number of expirations a bulk request covers when n <= 0.
const DefaultBulkPages = 2

// Options tunes the analysis. Zero values select the defaults; a nil
// PriceCeilingOffset selects strategy.DefaultPriceCeilingOffset.
type Options struct {
	BucketLimit        int
	PriceCeilingOffset *float64
	BulkPages          int
}

// CeilingOffset returns v as an Options.PriceCeilingOffset. Negative values are
// clamped to 0.
func CeilingOffset(v float64) *float64 {
	v = math.Max(0, v)
	return &v
}

func (o Options) withDefaults() Options {
	if o.BucketLimit <= 0 {
		o.BucketLimit = expiration.DefaultBucketLimit
	}
	if o.PriceCeilingOffset == nil {
		o.PriceCeilingOffset = CeilingOffset(strategy.DefaultPriceCeilingOffset)
	}
	if o.BulkPages <= 0 {
		o.BulkPages = DefaultBulkPages
	}
	return o
}

// AnalysisResult is the outcome of a single-expiration analysis.
type AnalysisResult struct {
	RequestID           string                 `json:"request_id"`
	Quote               models.Quote           `json:"quote"`
	ExpirationDates     [][]string             `json:"expiration_dates"`
	ExpirationDatesFlat []string               `json:"expiration_dates_flat"`
	Expiration          string                 `json:"expiration"`
	OptionsChain        []strategy.CoveredCall `json:"options_chain"`
	DisplayText         string                 `json:"display_text"`
}

// BulkResult holds one page of candidates per expiration, in request order.
type BulkResult struct {
	RequestID       string                   `json:"request_id"`
	Quote           models.Quote             `json:"quote"`
	ExpirationDates [][]string               `json:"expiration_dates"`
	Expirations     []string                 `json:"expirations"`
	Pages           [][]strategy.CoveredCall `json:"pages"`
}

// Analyzer runs covered-call analyses against a MarketData gateway.
// It holds no per-request state and is safe for concurrent use.
type Analyzer struct {
	gateway  broker.MarketData
	session  market.Session
	resolver *expiration.Resolver
	calc     *strategy.Calculator
	opts     Options
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewAnalyzer creates an Analyzer. A nil logger uses the logrus standard logger.
func NewAnalyzer(gateway broker.MarketData, session market.Session, opts Options, logger logrus.FieldLogger) *Analyzer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Analyzer{
		gateway:  gateway,
		session:  session,
		resolver: expiration.NewResolver(session),
		calc:     strategy.NewCalculator(session, logger),
		opts:     opts.withDefaults(),
		logger:   logger,
		now:      session.Now,
	}
}

// WithClock overrides the time source (tests).
func (a *Analyzer) WithClock(now func() time.Time) *Analyzer {
	if now != nil {
		a.now = now
	}
	return a
}

// snapshot is the per-request market state shared by every expiration.
type snapshot struct {
	id      string
	symbol  string
	quote   models.Quote
	buckets [][]time.Time
	log     logrus.FieldLogger
}

func (a *Analyzer) prepare(ctx context.Context, ticker string) (*snapshot, error) {
	symbol, err := ValidateTicker(ticker)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	log := a.logger.WithFields(logrus.Fields{"request_id": id, "ticker": symbol})

	q, err := a.gateway.GetQuoteCtx(ctx, symbol)
	if err != nil {
		log.WithError(err).Warn("Quote lookup failed")
		return nil, err
	}

	raw, err := a.gateway.GetExpirationsCtx(ctx, symbol)
	if err != nil {
		log.WithError(err).Warn("Expiration lookup failed")
		return nil, err
	}
	buckets, err := expiration.Bucket(raw, a.opts.BucketLimit, a.session.Location)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"last": q.Last, "weeks": len(buckets)}).Debug("Market snapshot loaded")

	return &snapshot{
		id:      id,
		symbol:  symbol,
		quote:   models.Quote{Ticker: symbol, Last: q.Last},
		buckets: buckets,
		log:     log,
	}, nil
}

// page resolves requested and computes the covered calls for that expiration.
func (a *Analyzer) page(ctx context.Context, s *snapshot, requested string, now time.Time) (string, []strategy.CoveredCall, error) {
	exp, err := a.resolver.Resolve(requested, s.buckets, now)
	if err != nil {
		return "", nil, err
	}
	chain, err := a.gateway.GetOptionChainCtx(ctx, s.symbol, exp)
	if err != nil {
		s.log.WithError(err).WithField("expiration", exp).Warn("Option chain lookup failed")
		return "", nil, err
	}
	filtered := strategy.FilterCalls(chain, s.quote.Last, *a.opts.PriceCeilingOffset)
	calls := a.calc.Compute(filtered, s.quote.Last, now)
	s.log.WithFields(logrus.Fields{
		"expiration": exp,
		"chain":      len(chain),
		"candidates": len(calls),
	}).Debug("Expiration analyzed")
	return exp, calls, nil
}

// CoveredCalls analyzes one expiration of ticker. An empty requested date selects
// the earliest listed expiration.
func (a *Analyzer) CoveredCalls(ctx context.Context, ticker, requested string) (*AnalysisResult, error) {
	s, err := a.prepare(ctx, ticker)
	if err != nil {
		return nil, err
	}

	exp, calls, err := a.page(ctx, s, requested, a.now())
	if err != nil {
		return nil, err
	}

	flat := expiration.Format(expiration.Flatten(s.buckets))
	s.log.WithFields(logrus.Fields{"expiration": exp, "candidates": len(calls)}).Info("Covered call analysis complete")
	return &AnalysisResult{
		RequestID:           s.id,
		Quote:               s.quote,
		ExpirationDates:     formatBuckets(s.buckets),
		ExpirationDatesFlat: flat,
		Expiration:          exp,
		OptionsChain:        calls,
		DisplayText:         RenderDisplay(flat, s.quote.Last, exp, calls),
	}, nil
}

// Bulk analyzes the first n listed expirations of ticker (DefaultBulkPages when
// n <= 0). Expirations are fetched concurrently; any failure fails the request.
func (a *Analyzer) Bulk(ctx context.Context, ticker string, n int) (*BulkResult, error) {
	if n <= 0 {
		n = a.opts.BulkPages
	}
	s, err := a.prepare(ctx, ticker)
	if err != nil {
		return nil, err
	}

	flat := expiration.Format(expiration.Flatten(s.buckets))
	if len(flat) > n {
		flat = flat[:n]
	}

	now := a.now()
	pages := make([][]strategy.CoveredCall, len(flat))
	var g errgroup.Group
	for i, requested := range flat {
		i, requested := i, requested
		g.Go(func() error {
			_, calls, err := a.page(ctx, s, requested, now)
			if err != nil {
				return err
			}
			pages[i] = calls
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.log.WithField("pages", len(pages)).Info("Bulk covered call analysis complete")
	return &BulkResult{
		RequestID:       s.id,
		Quote:           s.quote,
		ExpirationDates: formatBuckets(s.buckets),
		Expirations:     flat,
		Pages:           pages,
	}, nil
}

func formatBuckets(buckets [][]time.Time) [][]string {
	out := make([][]string, len(buckets))
	for i, b := range buckets {
		out[i] = expiration.Format(b)
	}
	return out
}

// MarketOpen reports whether the exchange is open at ref, or now when ref is nil.
func (a *Analyzer) MarketOpen(ref *time.Time) bool {
	return a.session.IsOpen(ref)
}
