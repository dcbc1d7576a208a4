package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/hakimelghazi/quoter/db"
	"github.com/hakimelghazi/quoter/internal/engine"
	"github.com/hakimelghazi/quoter/pricefeed"
)

const (
	defaultTradesLimit = 50
	maxTradesLimit     = 500
)

type tradeLister interface {
	ListTrades(ctx context.Context, symbol string, limit int) ([]db.TradeRow, error)
}

type server struct {
	mgr     *engine.Manager
	prices  *pricefeed.PriceCache
	ledger  tradeLister  // nil when no database is configured
	metrics http.Handler // nil disables /metrics
	log     *zap.Logger
}

type routerOptions struct {
	timeout     time.Duration
	corsOrigins []string
}

func newRouter(s *server, opts routerOptions) http.Handler {
	r := chi.NewRouter()

	// Hygiene stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.timeout))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: opts.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	}).Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Put("/quotes", s.putQuote)
	r.Delete("/quotes/{id}", s.deleteQuote)
	r.Post("/trades", s.executeTrade)

	r.Get("/symbols", s.listSymbols)
	r.Route("/symbols/{symbol}", func(r chi.Router) {
		r.Get("/quotes", s.liveQuotes)
		r.Delete("/quotes", s.clearSymbol)
		r.Get("/best", s.bestQuote)
		r.Get("/last-trade", s.lastTrade)
		r.Get("/trades", s.listTrades)
	})

	return r
}

// requestLogger replaces chi's middleware.Logger with structured zap lines.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("took", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func writeProblem(w http.ResponseWriter, r *http.Request, code int, title, detail string) {
	reqID := middleware.GetReqID(r.Context())
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("X-Request-ID", reqID)
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"title":      title,
		"status":     code,
		"detail":     detail,
		"instance":   r.URL.Path,
		"request_id": reqID,
	})
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Request-ID", middleware.GetReqID(r.Context()))
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func noContent(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Request-ID", middleware.GetReqID(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

// symbolParam returns the unescaped {symbol}, so "EUR%2FUSD" addresses "EUR/USD".
func symbolParam(r *http.Request) (string, error) {
	sym, err := url.PathUnescape(chi.URLParam(r, "symbol"))
	if err != nil {
		return "", err
	}
	sym = strings.TrimSpace(sym)
	if sym == "" {
		return "", errors.New("symbol required")
	}
	return sym, nil
}

type putQuoteRequest struct {
	ID              string          `json:"id"`
	Symbol          string          `json:"symbol"`
	Price           decimal.Decimal `json:"price"`
	AvailableVolume int64           `json:"available_volume"`
	ExpirationDate  time.Time       `json:"expiration_date"`
}

func toEngineQuote(req putQuoteRequest) (engine.Quote, error) {
	req.ID = strings.TrimSpace(req.ID)
	req.Symbol = strings.TrimSpace(req.Symbol)

	if req.ID == "" || req.Symbol == "" {
		return engine.Quote{}, errors.New("id and symbol are required")
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		return engine.Quote{}, errors.New("id must be a valid uuid")
	}
	if req.Price.IsNegative() {
		return engine.Quote{}, errors.New("price must not be negative")
	}
	if req.AvailableVolume < 0 {
		return engine.Quote{}, errors.New("available_volume must not be negative")
	}
	if req.ExpirationDate.IsZero() {
		return engine.Quote{}, errors.New("expiration_date is required")
	}

	return engine.Quote{
		ID:              id,
		Symbol:          req.Symbol,
		Price:           req.Price,
		AvailableVolume: uint64(req.AvailableVolume),
		ExpirationDate:  req.ExpirationDate,
	}, nil
}

// PUT /quotes
func (s *server) putQuote(w http.ResponseWriter, r *http.Request) {
	var req putQuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	q, err := toEngineQuote(req)
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	s.mgr.AddOrUpdateQuote(q)
	noContent(w, r)
}

// DELETE /quotes/{id}
func (s *server) deleteQuote(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, "validation_error", "id must be a valid uuid")
		return
	}
	s.mgr.RemoveQuote(id)
	noContent(w, r)
}

// DELETE /symbols/{symbol}/quotes
func (s *server) clearSymbol(w http.ResponseWriter, r *http.Request) {
	sym, err := symbolParam(r)
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	s.mgr.RemoveAllQuotes(sym)
	noContent(w, r)
}

// GET /symbols
func (s *server) listSymbols(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.mgr.Symbols())
}

// GET /symbols/{symbol}/quotes
func (s *server) liveQuotes(w http.ResponseWriter, r *http.Request) {
	sym, err := symbolParam(r)
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, s.mgr.LiveQuotes(sym))
}

// GET /symbols/{symbol}/best
func (s *server) bestQuote(w http.ResponseWriter, r *http.Request) {
	sym, err := symbolParam(r)
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	q, ok := s.mgr.GetBestQuoteWithAvailableVolume(sym)
	if !ok {
		writeProblem(w, r, http.StatusNotFound, "no_quote", "no live quote for "+sym)
		return
	}
	writeJSON(w, r, http.StatusOK, q)
}

// GET /symbols/{symbol}/last-trade
func (s *server) lastTrade(w http.ResponseWriter, r *http.Request) {
	sym, err := symbolParam(r)
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	last, ok := s.prices.Get(sym)
	if !ok {
		writeProblem(w, r, http.StatusNotFound, "no_trade", "no trade recorded for "+sym)
		return
	}
	writeJSON(w, r, http.StatusOK, last)
}

// GET /symbols/{symbol}/trades?limit=...
func (s *server) listTrades(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeProblem(w, r, http.StatusNotImplemented, "ledger_disabled", "no database configured")
		return
	}
	sym, err := symbolParam(r)
	if err != nil {
		writeProblem(w, r, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	limit := defaultTradesLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxTradesLimit {
			writeProblem(w, r, http.StatusBadRequest, "validation_error", "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	rows, err := s.ledger.ListTrades(r.Context(), sym, limit)
	if err != nil {
		s.log.Error("list trades failed", zap.String("symbol", sym), zap.Error(err))
		writeProblem(w, r, http.StatusInternalServerError, "db_error", err.Error())
		return
	}
	writeJSON(w, r, http.StatusOK, rows)
}

type executeTradeRequest struct {
	Symbol string `json:"symbol"`
	Volume int64  `json:"volume"`
}

type tradeResponse struct {
	engine.TradeResult
	Filled    bool      `json:"filled"`
	Unfilled  uint64    `json:"unfilled"`
	RequestID string    `json:"request_id"`
	Received  time.Time `json:"received_at"`
}

// POST /trades
func (s *server) executeTrade(w http.ResponseWriter, r *http.Request) {
	var req executeTradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, r, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	req.Symbol = strings.TrimSpace(req.Symbol)
	if req.Symbol == "" {
		writeProblem(w, r, http.StatusBadRequest, "validation_error", "symbol is required")
		return
	}
	if req.Volume < 0 {
		writeProblem(w, r, http.StatusBadRequest, "validation_error", "volume must not be negative")
		return
	}

	res, ok := s.mgr.ExecuteTrade(req.Symbol, uint64(req.Volume))
	if !ok {
		writeProblem(w, r, http.StatusNotFound, "no_liquidity", "no live quotes for "+req.Symbol)
		return
	}

	writeJSON(w, r, http.StatusOK, tradeResponse{
		TradeResult: res,
		Filled:      res.Unfilled() == 0,
		Unfilled:    res.Unfilled(),
		RequestID:   middleware.GetReqID(r.Context()),
		Received:    time.Now().UTC(),
	})
}
