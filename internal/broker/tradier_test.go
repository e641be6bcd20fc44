package broker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestAPIError_Error(t *testing.T) {
	err := &APIError{Status: 429, Body: "too many requests"}
	want := "API error 429: too many requests"
	if got := err.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestNewTradierAPIWithBaseURL_DefaultsAndNormalization(t *testing.T) {
	tests := []struct {
		name        string
		sandbox     bool
		baseURL     string
		wantBaseURL string
	}{
		{"sandbox default baseURL", true, "", "https://sandbox.tradier.com/v1"},
		{"production default baseURL", false, "", "https://api.tradier.com/v1"},
		{"custom baseURL preserved and trimmed", false, "https://example.test/api/", "https://example.test/api"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := NewTradierAPIWithBaseURL("k", tt.sandbox, tt.baseURL)
			if api.baseURL != tt.wantBaseURL {
				t.Fatalf("baseURL = %q, want %q", api.baseURL, tt.wantBaseURL)
			}
		})
	}
}

func TestWithTimeout_IgnoresNonPositive(t *testing.T) {
	api := NewTradierAPI("k", true)
	api.WithTimeout(0)
	if api.timeout != 10*time.Second {
		t.Fatalf("timeout = %v, want default 10s", api.timeout)
	}
	api.WithTimeout(3 * time.Second)
	if api.client.Timeout != 3*time.Second {
		t.Fatalf("client timeout = %v, want 3s", api.client.Timeout)
	}
}

func newTestAPIWithServer(h http.HandlerFunc) (*TradierAPI, *httptest.Server) {
	s := httptest.NewServer(h)
	api := NewTradierAPIWithBaseURL("test-key", true, s.URL)
	api = api.WithHTTPClient(s.Client())
	return api, s
}

func TestMakeRequestCtx_SendsAuthHeaders(t *testing.T) {
	api, srv := newTestAPIWithServer(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("method = %s, want GET", r.Method)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("Authorization = %q, want %q", got, "Bearer test-key")
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Fatalf("Accept = %q, want application/json", got)
		}
		w.Header().Set("X-RateLimit-Remaining", "42")
		_, _ = w.Write([]byte(`{"foo":"bar"}`))
	})
	defer srv.Close()

	var out struct {
		Foo string `json:"foo"`
	}
	if err := api.makeRequestCtx(context.Background(), http.MethodGet, api.baseURL+"/ok", &out); err != nil {
		t.Fatalf("makeRequestCtx error: %v", err)
	}
	if out.Foo != "bar" {
		t.Fatalf("decoded = %+v, want Foo=bar", out)
	}
}

func TestMakeRequestCtx_Non2xxReturnsAPIError(t *testing.T) {
	api, srv := newTestAPIWithServer(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		http.Error(w, "boom", http.StatusTooManyRequests)
	})
	defer srv.Close()

	var out map[string]any
	err := api.makeRequestCtx(context.Background(), http.MethodGet, api.baseURL+"/err", &out)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.Status != http.StatusTooManyRequests || !strings.Contains(apiErr.Body, "retry-after: 5") {
		t.Fatalf("APIError = %+v, want status 429 with retry-after", apiErr)
	}
}

func TestMakeRequestCtx_EmptyBodyEOF(t *testing.T) {
	api, srv := newTestAPIWithServer(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	defer srv.Close()

	var out map[string]any
	if err := api.makeRequestCtx(context.Background(), http.MethodGet, api.baseURL+"/empty", &out); err != nil {
		t.Fatalf("empty body should not error, got %v", err)
	}
}

func TestGetQuoteCtx_SingleAndArrayAndEmpty(t *testing.T) {
	single := `{"quotes":{"quote":{"symbol":"AAPL","description":"Apple","exch":"Q","type":"stock","bid":10,"ask":12,"last":11}}}`
	array := `{"quotes":{"quote":[{"symbol":"AAPL","description":"Apple","exch":"Q","type":"stock","bid":10,"ask":12,"last":11}]}}`
	empty := `{"quotes":{"quote":[]}}`
	unmatched := `{"quotes":{"unmatched_symbols":{"symbol":"ZZZZZ"}}}`

	cases := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"single", single, false},
		{"array", array, false},
		{"empty", empty, true},
		{"unmatched", unmatched, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api, srv := newTestAPIWithServer(func(w http.ResponseWriter, r *http.Request) {
				if !strings.Contains(r.URL.RawQuery, "symbols=AAPL") {
					t.Fatalf("missing symbols query: %s", r.URL.RawQuery)
				}
				_, _ = w.Write([]byte(tc.body))
			})
			defer srv.Close()

			q, err := api.GetQuoteCtx(context.Background(), "AAPL")
			if tc.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.wantErr && (q.Symbol != "AAPL" || q.Last != 11) {
				t.Fatalf("quote = %+v, want AAPL last 11", q)
			}
		})
	}
}

func TestGetExpirationsCtx(t *testing.T) {
	cases := []struct {
		name string
		body string
		want []string
	}{
		{"array", `{"expirations":{"date":["2025-09-19","2025-10-17"]}}`, []string{"2025-09-19", "2025-10-17"}},
		{"single", `{"expirations":{"date":"2025-09-19"}}`, []string{"2025-09-19"}},
		{"null", `{"expirations":null}`, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api, srv := newTestAPIWithServer(func(w http.ResponseWriter, r *http.Request) {
				if !strings.Contains(r.URL.Path, "/markets/options/expirations") {
					t.Fatalf("path = %s", r.URL.Path)
				}
				_, _ = w.Write([]byte(tc.body))
			})
			defer srv.Close()

			dates, err := api.GetExpirationsCtx(context.Background(), "AAPL")
			if err != nil {
				t.Fatalf("GetExpirationsCtx error: %v", err)
			}
			if len(dates) != len(tc.want) {
				t.Fatalf("dates = %#v, want %#v", dates, tc.want)
			}
			for i := range dates {
				if dates[i] != tc.want[i] {
					t.Fatalf("dates[%d] = %q, want %q", i, dates[i], tc.want[i])
				}
			}
		})
	}
}

func TestGetOptionChainCtx(t *testing.T) {
	api, srv := newTestAPIWithServer(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "expiration=2025-01-03") {
			t.Fatalf("expected expiration param, got %s", r.URL.RawQuery)
		}
		_, _ = w.Write([]byte(`{"options":{"option":[
			{"symbol":"AAPL250103P00150000","option_type":"put","expiration_date":"2025-01-03","underlying":"AAPL","bid":1,"ask":2,"strike":150},
			{"symbol":"AAPL250103C00150000","option_type":"call","expiration_date":"2025-01-03","underlying":"AAPL","bid":null,"ask":2.5,"strike":150}
		]}}`))
	})
	defer srv.Close()

	opts, err := api.GetOptionChainCtx(context.Background(), "AAPL", "2025-01-03")
	if err != nil {
		t.Fatalf("GetOptionChainCtx error: %v", err)
	}
	if len(opts) != 2 {
		t.Fatalf("len(opts) = %d, want 2", len(opts))
	}
	if opts[0].IsCall() || !opts[1].IsCall() {
		t.Fatalf("option types decoded incorrectly: %+v", opts)
	}
	if m, ok := opts[0].Mark(); !ok || m != 1.5 {
		t.Fatalf("put mark = %v,%v want 1.5,true", m, ok)
	}
	if _, ok := opts[1].Mark(); ok {
		t.Fatalf("call with null bid should have no mark")
	}
}

func TestGetOptionChainCtx_NullOptions(t *testing.T) {
	api, srv := newTestAPIWithServer(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"options":null}`))
	})
	defer srv.Close()

	opts, err := api.GetOptionChainCtx(context.Background(), "AAPL", "2025-01-03")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(opts) != 0 {
		t.Fatalf("opts = %+v, want empty", opts)
	}
}

func TestOptionMark_PrefersProviderMark(t *testing.T) {
	mark, bid, ask := 3.0, 1.0, 2.0
	o := Option{MarkPrice: &mark, Bid: &bid, Ask: &ask}
	if m, ok := o.Mark(); !ok || m != 3.0 {
		t.Fatalf("Mark() = %v,%v want 3,true", m, ok)
	}
}

func TestGetQuoteCtx_ContextCancel(t *testing.T) {
	api, srv := newTestAPIWithServer(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		_, _ = w.Write([]byte(`{}`))
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if _, err := api.GetQuoteCtx(ctx, "AAPL"); err == nil {
		t.Fatalf("expected context error")
	}
}
