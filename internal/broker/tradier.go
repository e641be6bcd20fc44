// Package broker provides the market-data gateway used by the covered-call analysis.
// It includes the Tradier REST client and decorators around the MarketData interface.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

// APIError represents an API error with status code and response body
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d: %s", e.Status, e.Body)
}

// TradierAPI is a market-data client for the Tradier REST API.
// Credentials are held on the value; there is no package-level client.
type TradierAPI struct {
	client  *http.Client
	apiKey  string
	baseURL string
	sandbox bool
	timeout time.Duration
}

// NewTradierAPI creates a new TradierAPI client with default settings.
func NewTradierAPI(apiKey string, sandbox bool) *TradierAPI {
	return NewTradierAPIWithBaseURL(apiKey, sandbox, "")
}

// NewTradierAPIWithTimeout creates a new TradierAPI client with custom timeout.
func NewTradierAPIWithTimeout(apiKey string, sandbox bool, baseURL string, timeout time.Duration) *TradierAPI {
	return NewTradierAPIWithBaseURL(apiKey, sandbox, baseURL).WithTimeout(timeout)
}

// NewTradierAPIWithBaseURL creates a new TradierAPI client with an optional custom baseURL.
// An empty baseURL selects the sandbox or production endpoint.
func NewTradierAPIWithBaseURL(apiKey string, sandbox bool, baseURL string) *TradierAPI {
	if baseURL == "" {
		if sandbox {
			baseURL = "https://sandbox.tradier.com/v1"
		} else {
			baseURL = "https://api.tradier.com/v1"
		}
	}
	// Normalize once
	baseURL = strings.TrimRight(baseURL, "/")

	defaultTimeout := 10 * time.Second
	return &TradierAPI{
		apiKey:  apiKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultTimeout},
		sandbox: sandbox,
		timeout: defaultTimeout,
	}
}

// WithHTTPClient allows overriding the HTTP client (tests, custom transport).
func (t *TradierAPI) WithHTTPClient(c *http.Client) *TradierAPI {
	if c != nil {
		t.client = c
	}
	return t
}

// WithTimeout sets the HTTP client timeout duration.
func (t *TradierAPI) WithTimeout(timeout time.Duration) *TradierAPI {
	if timeout <= 0 {
		return t
	}
	t.timeout = timeout
	if t.client != nil {
		t.client.Timeout = timeout
	}
	return t
}

// ============ API Response Structures ============

// Handle single-object vs array responses from Tradier
type singleOrArray[T any] []T

func (s *singleOrArray[T]) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '[' {
		return json.Unmarshal(b, (*[]T)(s))
	}
	var one T
	if err := json.Unmarshal(b, &one); err != nil {
		return err
	}
	*s = append(*s, one)
	return nil
}

// OptionChainResponse represents the API response for option chain requests.
type OptionChainResponse struct {
	Options *struct {
		Option singleOrArray[Option] `json:"option"`
	} `json:"options"`
}

// Option represents an option contract from the Tradier API.
// Numeric fields Tradier may send as null are pointers so a missing value
// stays distinguishable from zero.
type Option struct {
	Symbol         string   `json:"symbol"`
	Description    string   `json:"description"`
	OptionType     string   `json:"option_type"`
	ExpirationDate string   `json:"expiration_date"`
	Underlying     string   `json:"underlying"`
	Strike         *float64 `json:"strike"`
	Bid            *float64 `json:"bid"`
	Ask            *float64 `json:"ask"`
	Last           *float64 `json:"last"`
	MarkPrice      *float64 `json:"mark,omitempty"`
	BidSize        int      `json:"bidsize"`
	AskSize        int      `json:"asksize"`
	Volume         int64    `json:"volume"`
	OpenInterest   int64    `json:"open_interest"`
}

// Mark returns the quoted price of the contract: the provider's mark when present,
// otherwise the bid/ask midpoint. ok is false when neither can be derived.
func (o Option) Mark() (mark float64, ok bool) {
	if o.MarkPrice != nil {
		return *o.MarkPrice, true
	}
	if o.Bid != nil && o.Ask != nil {
		return (*o.Bid + *o.Ask) / 2, true
	}
	return 0, false
}

// IsCall reports whether the contract is a call.
func (o Option) IsCall() bool {
	return OptionType(strings.ToLower(o.OptionType)) == OptionTypeCall
}

// QuotesResponse represents the quotes response from the Tradier API.
type QuotesResponse struct {
	Quotes struct {
		Quote singleOrArray[QuoteItem] `json:"quote"`
	} `json:"quotes"`
}

// QuoteItem represents a single quote item from the Tradier API.
type QuoteItem struct {
	Symbol      string  `json:"symbol"`
	Description string  `json:"description"`
	Exch        string  `json:"exch"`
	Type        string  `json:"type"`
	Bid         float64 `json:"bid"`
	Ask         float64 `json:"ask"`
	Last        float64 `json:"last"`
	PrevClose   float64 `json:"prevclose"`
	Volume      int64   `json:"volume"`
	TradeDate   int64   `json:"trade_date"`
}

// ExpirationsResponse represents the expirations response from the Tradier API.
type ExpirationsResponse struct {
	Expirations *struct {
		Date singleOrArray[string] `json:"date"`
	} `json:"expirations"`
}

// ============ API Methods ============

// GetQuoteCtx retrieves the current market quote for a symbol.
func (t *TradierAPI) GetQuoteCtx(ctx context.Context, symbol string) (*QuoteItem, error) {
	params := url.Values{}
	params.Set("symbols", symbol)
	params.Set("greeks", "false")
	endpoint := t.baseURL + "/markets/quotes?" + params.Encode()

	var response QuotesResponse
	if err := t.makeRequestCtx(ctx, http.MethodGet, endpoint, &response); err != nil {
		return nil, err
	}

	quotes := response.Quotes.Quote
	if len(quotes) == 0 {
		return nil, fmt.Errorf("no quote found for symbol: %s", symbol)
	}

	first := quotes[0]
	return &first, nil
}

// GetExpirationsCtx retrieves available expiration dates for options on a symbol.
func (t *TradierAPI) GetExpirationsCtx(ctx context.Context, symbol string) ([]string, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("includeAllRoots", "true")
	params.Set("strikes", "false")
	endpoint := t.baseURL + "/markets/options/expirations?" + params.Encode()

	var response ExpirationsResponse
	if err := t.makeRequestCtx(ctx, http.MethodGet, endpoint, &response); err != nil {
		return nil, err
	}
	if response.Expirations == nil {
		return nil, nil
	}

	return []string(response.Expirations.Date), nil
}

// GetOptionChainCtx retrieves the option chain for a symbol and expiration date.
func (t *TradierAPI) GetOptionChainCtx(ctx context.Context, symbol, expiration string) ([]Option, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("expiration", expiration)
	params.Set("greeks", "false")
	endpoint := t.baseURL + "/markets/options/chains?" + params.Encode()

	var response OptionChainResponse
	if err := t.makeRequestCtx(ctx, http.MethodGet, endpoint, &response); err != nil {
		return nil, err
	}
	if response.Options == nil {
		return nil, nil
	}

	return []Option(response.Options.Option), nil
}

// makeRequestCtx makes an HTTP request with context support for timeout/cancellation
func (t *TradierAPI) makeRequestCtx(ctx context.Context, method, endpoint string, response interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, http.NoBody)
	if err != nil {
		return err
	}

	req.Header.Add("Authorization", "Bearer "+t.apiKey)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", "covered-call/1.0 (+tradier)")

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			log.Warnf("Failed to close response body: %v", err)
		}
	}()

	remaining := resp.Header.Get("X-Ratelimit-Available")
	if remaining == "" {
		remaining = resp.Header.Get("X-RateLimit-Remaining")
	}
	if remaining != "" && t.sandbox {
		log.WithField("remaining", remaining).Debug("Tradier rate limit")
	}

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10)) // 64KB cap to avoid huge payloads
		if err != nil {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> failed to read error body", method, endpoint)}
		}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> %s (retry-after: %s)", method, endpoint, string(body), ra)}
		}
		return &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("%s %s -> %s", method, endpoint, string(body))}
	}

	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(response); err != nil && err != io.EOF {
		return err
	}
	return nil
}
