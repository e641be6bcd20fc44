// Package dashboard serves covered-call analyses over a JSON HTTP API.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/eddiefleurent/covered_call/internal/analysis"
	"github.com/eddiefleurent/covered_call/internal/broker"
	"github.com/eddiefleurent/covered_call/internal/models"
	"github.com/eddiefleurent/covered_call/internal/strategy"
)

// Analyst is the analysis surface the server exposes.
type Analyst interface {
	CoveredCalls(ctx context.Context, ticker, requested string) (*analysis.AnalysisResult, error)
	Bulk(ctx context.Context, ticker string, n int) (*analysis.BulkResult, error)
	MarketOpen(ref *time.Time) bool
}

var _ Analyst = (*analysis.Analyzer)(nil)

type Server struct {
	router    *chi.Mux
	server    *http.Server
	analyst   Analyst
	logger    logrus.FieldLogger
	port      int
	authToken string
}

type Config struct {
	Port      int
	AuthToken string
}

// CandidateView is a CoveredCall rounded to cents for display.
type CandidateView struct {
	Symbol                string   `json:"symbol"`
	Expiration            string   `json:"expiration_date"`
	Strike                *float64 `json:"strike"`
	Mark                  *float64 `json:"mark"`
	BreakEven             *float64 `json:"break_even"`
	AssignmentGain        *float64 `json:"assignment_gain"`
	AssignmentGainPercent *float64 `json:"assignment_gain_percent"`
	Time                  *float64 `json:"time"`
	Risk                  *float64 `json:"risk"`
	TimeGain              *float64 `json:"time_gain"`
	TimeGainPercent       *float64 `json:"time_gain_percent"`
	ITM                   *bool    `json:"itm"`
	Anomalies             []string `json:"anomalies,omitempty"`
}

// AnalysisView is the JSON body of a single-expiration analysis.
type AnalysisView struct {
	RequestID           string          `json:"request_id"`
	Ticker              string          `json:"ticker"`
	Price               float64         `json:"price"`
	Expiration          string          `json:"expiration"`
	ExpirationDates     [][]string      `json:"expiration_dates"`
	ExpirationDatesFlat []string        `json:"expiration_dates_flat"`
	OptionsChain        []CandidateView `json:"options_chain"`
	DisplayText         string          `json:"display_text"`
}

// BulkView is the JSON body of a bulk analysis.
type BulkView struct {
	RequestID       string            `json:"request_id"`
	Ticker          string            `json:"ticker"`
	Price           float64           `json:"price"`
	ExpirationDates [][]string        `json:"expiration_dates"`
	Expirations     []string          `json:"expirations"`
	Pages           [][]CandidateView `json:"pages"`
}

// ErrorView is the JSON body of a failed request.
type ErrorView struct {
	Error   string `json:"error"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

func NewServer(cfg Config, analyst Analyst, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		router:    chi.NewRouter(),
		analyst:   analyst,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
	}

	s.setupRoutes()
	return s
}

// Handler returns the routed handler (tests, embedding).
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/health", s.handleHealth)
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/cc/{ticker}", s.handleCoveredCalls)
		r.Get("/cc/{ticker}/bulk", s.handleBulk)
		r.Get("/market/open", s.handleMarketOpen)
	})
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Infof("Starting analysis server on port %d", s.port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleCoveredCalls(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	res, err := s.analyst.CoveredCalls(r.Context(), ticker, r.URL.Query().Get("expiration"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewAnalysisView(res))
}

func (s *Server) handleBulk(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	n := 0
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, ErrorView{Error: "INVALID_PARAMETER", Value: raw, Message: "n must be an integer"})
			return
		}
		n = v
	}
	res, err := s.analyst.Bulk(r.Context(), ticker, n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewBulkView(res))
}

func (s *Server) handleMarketOpen(w http.ResponseWriter, r *http.Request) {
	var ref *time.Time
	if raw := r.URL.Query().Get("at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, ErrorView{Error: "INVALID_PARAMETER", Value: raw, Message: "at must be an RFC3339 timestamp"})
			return
		}
		ref = &t
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"open": s.analyst.MarketOpen(ref)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
	}
	s.writeJSON(w, http.StatusOK, health)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, view := errorResponse(err)
	entry := s.logger.WithFields(logrus.Fields{
		"path":       r.URL.Path,
		"status":     status,
		"request_id": middleware.GetReqID(r.Context()),
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Error("Analysis request failed")
	} else {
		entry.Info("Analysis request rejected")
	}
	s.writeJSON(w, status, view)
}

// errorResponse maps an analysis error onto an HTTP status. Caller input errors
// are 4xx; provider failures are 5xx.
func errorResponse(err error) (int, ErrorView) {
	var ae *models.AnalysisError
	if errors.As(err, &ae) {
		status := http.StatusBadRequest
		if ae.Kind == models.KindDateAlreadyPassed || ae.Kind == models.KindInvalidExpirationDate {
			status = http.StatusUnprocessableEntity
		}
		return status, ErrorView{Error: string(ae.Kind), Value: ae.Value, Message: ae.Error()}
	}

	var apiErr *broker.APIError
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return http.StatusServiceUnavailable, ErrorView{Error: "GATEWAY_UNAVAILABLE", Message: err.Error()}
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrorView{Error: "GATEWAY_TIMEOUT", Message: err.Error()}
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, ErrorView{Error: "GATEWAY_ERROR", Value: strconv.Itoa(apiErr.Status), Message: err.Error()}
	default:
		return http.StatusBadGateway, ErrorView{Error: "GATEWAY_ERROR", Message: err.Error()}
	}
}

// NewAnalysisView rounds an AnalysisResult for display.
func NewAnalysisView(res *analysis.AnalysisResult) AnalysisView {
	return AnalysisView{
		RequestID:           res.RequestID,
		Ticker:              res.Quote.Ticker,
		Price:               res.Quote.Last,
		Expiration:          res.Expiration,
		ExpirationDates:     res.ExpirationDates,
		ExpirationDatesFlat: res.ExpirationDatesFlat,
		OptionsChain:        convertCandidates(res.OptionsChain),
		DisplayText:         res.DisplayText,
	}
}

// NewBulkView rounds a BulkResult for display.
func NewBulkView(res *analysis.BulkResult) BulkView {
	pages := make([][]CandidateView, len(res.Pages))
	for i, p := range res.Pages {
		pages[i] = convertCandidates(p)
	}
	return BulkView{
		RequestID:       res.RequestID,
		Ticker:          res.Quote.Ticker,
		Price:           res.Quote.Last,
		ExpirationDates: res.ExpirationDates,
		Expirations:     res.Expirations,
		Pages:           pages,
	}
}

func convertCandidates(chain []strategy.CoveredCall) []CandidateView {
	views := make([]CandidateView, 0, len(chain))
	for _, cc := range chain {
		views = append(views, NewCandidateView(cc))
	}
	return views
}

// NewCandidateView copies cc unrounded; display rounding belongs to text and
// table rendering.
func NewCandidateView(cc strategy.CoveredCall) CandidateView {
	return CandidateView{
		Symbol:                cc.Symbol,
		Expiration:            cc.Expiration,
		Strike:                cc.Strike,
		Mark:                  cc.Mark,
		BreakEven:             cc.BreakEven,
		AssignmentGain:        cc.AssignmentGain,
		AssignmentGainPercent: cc.AssignmentGainPercent,
		Time:                  cc.Time,
		Risk:                  cc.Risk,
		TimeGain:              cc.TimeGain,
		TimeGainPercent:       cc.TimeGainPercent,
		ITM:                   cc.ITM,
		Anomalies:             cc.Anomalies,
	}
}
