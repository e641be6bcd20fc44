// Package retry wraps a MarketData gateway with bounded, jittered retries of
// transient failures.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/covered_call/internal/broker"
)

type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
}

// Client is a broker.MarketData that retries transient gateway errors.
type Client struct {
	gateway broker.MarketData
	logger  logrus.FieldLogger
	config  Config
}

var _ broker.MarketData = (*Client)(nil)

func NewClient(gateway broker.MarketData, logger logrus.FieldLogger, config ...Config) *Client {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Client{
		gateway: gateway,
		logger:  logger,
		config:  cfg,
	}
}

func (c *Client) GetQuoteCtx(ctx context.Context, symbol string) (*broker.QuoteItem, error) {
	return do(ctx, c, "quote", func(ctx context.Context) (*broker.QuoteItem, error) {
		return c.gateway.GetQuoteCtx(ctx, symbol)
	})
}

func (c *Client) GetExpirationsCtx(ctx context.Context, symbol string) ([]string, error) {
	return do(ctx, c, "expirations", func(ctx context.Context) ([]string, error) {
		return c.gateway.GetExpirationsCtx(ctx, symbol)
	})
}

func (c *Client) GetOptionChainCtx(ctx context.Context, symbol, expiration string) ([]broker.Option, error) {
	return do(ctx, c, "option chain", func(ctx context.Context) ([]broker.Option, error) {
		return c.gateway.GetOptionChainCtx(ctx, symbol, expiration)
	})
}

// do runs fn until it succeeds, fails permanently, or the attempts run out.
// The last gateway error is returned unwrapped so callers can inspect it.
func do[T any](ctx context.Context, c *Client, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	opCtx := ctx
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		opCtx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	var lastErr error
	backoff := c.config.InitialBackoff

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if err := opCtx.Err(); err != nil {
			if lastErr != nil {
				return zero, lastErr
			}
			return zero, fmt.Errorf("%s canceled: %w", op, err)
		}

		res, err := fn(opCtx)
		if err == nil {
			if attempt > 0 {
				c.logger.WithFields(logrus.Fields{"op": op, "attempt": attempt + 1}).Info("Gateway call succeeded after retry")
			}
			return res, nil
		}
		lastErr = err

		if !c.isTransientError(err) || attempt == c.config.MaxRetries {
			break
		}

		c.logger.WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt + 1,
			"of":      c.config.MaxRetries + 1,
			"backoff": backoff.String(),
		}).WithError(err).Warn("Transient gateway error, retrying")

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
			backoff = c.calculateNextBackoff(backoff)
		case <-opCtx.Done():
			timer.Stop()
			return zero, lastErr
		}
	}

	return zero, lastErr
}

func (c *Client) calculateNextBackoff(currentBackoff time.Duration) time.Duration {
	backoff := time.Duration(float64(currentBackoff) * 1.5)
	if backoff > c.config.MaxBackoff {
		backoff = c.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			c.logger.WithError(err).Debug("Failed to generate jitter")
		} else {
			backoff += time.Duration(jitterVal.Int64())
		}
	}

	return backoff
}

func (c *Client) isTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *broker.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= http.StatusInternalServerError
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"network",
		"dns",
		"tcp",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
