package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"MemoLedger/internal/auth"
	"MemoLedger/internal/models"
	"MemoLedger/internal/service"
	"MemoLedger/internal/watcher"
)

const maxBodyBytes = 1 << 20

type handlers struct {
	svc    *service.Service
	deps   *ServerDeps
	logger zerolog.Logger
}

type route struct {
	method   string
	pattern  string
	fn       runtime.HandlerFunc
	operator bool // requires a bearer token when auth is enabled
}

// NewHandler builds the REST mux. When hc is nil /healthz reports process
// liveness instead of the gRPC health status.
func NewHandler(deps *ServerDeps, hc healthpb.HealthClient) (http.Handler, error) {
	var opts []runtime.ServeMuxOption
	if hc != nil {
		opts = append(opts, runtime.WithHealthzEndpoint(hc))
	}
	mux := runtime.NewServeMux(opts...)

	h := &handlers{svc: deps.Service, deps: deps, logger: deps.Logger}
	routes := []route{
		{http.MethodPost, "/v1/watch", h.watch, true},
		{http.MethodPost, "/v1/markets/sweep", h.sweep, true},
		{http.MethodPost, "/v1/markets/{market_id}/resolve", h.resolve, true},
		{http.MethodGet, "/v1/markets", h.listMarkets, false},
		{http.MethodPost, "/v1/markets", h.createMarket, false},
		{http.MethodGet, "/v1/markets/{market_id}", h.getMarket, false},
		{http.MethodGet, "/v1/markets/{market_id}/quote", h.quote, false},
		{http.MethodPost, "/v1/markets/{market_id}/bets", h.betIntent, false},
		{http.MethodGet, "/v1/invoices", h.listInvoices, false},
		{http.MethodPost, "/v1/invoices", h.createInvoice, false},
		{http.MethodGet, "/v1/splits", h.listSplits, false},
		{http.MethodPost, "/v1/splits", h.createSplit, false},
		{http.MethodGet, "/v1/expenses", h.listExpenses, false},
		{http.MethodGet, "/v1/insights", h.insights, false},
	}

	for _, rt := range routes {
		fn := rt.fn
		if rt.operator {
			fn = h.requireOperator(fn)
		}
		if err := mux.HandlePath(rt.method, rt.pattern, h.instrument(rt.pattern, fn)); err != nil {
			return nil, fmt.Errorf("register %s %s: %w", rt.method, rt.pattern, err)
		}
	}

	if hc == nil && deps.HealthChecker != nil {
		if err := mux.HandlePath(http.MethodGet, "/healthz", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			deps.HealthChecker.LivenessHandler(w, r)
		}); err != nil {
			return nil, fmt.Errorf("register /healthz: %w", err)
		}
	}
	if deps.HealthChecker != nil {
		if err := mux.HandlePath(http.MethodGet, "/readyz", func(w http.ResponseWriter, r *http.Request, _ map[string]string) {
			deps.HealthChecker.ReadinessHandler(w, r)
		}); err != nil {
			return nil, fmt.Errorf("register /readyz: %w", err)
		}
	}

	return mux, nil
}

// --- operational ---

func (h *handlers) watch(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	summary, err := h.svc.Watch(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type resolveRequest struct {
	Resolution json.RawMessage `json:"resolution"`
	ResolvedBy string          `json:"resolvedBy"`
}

func (h *handlers) resolve(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pos, err := parseResolution(req.Resolution)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resolvedBy := strings.TrimSpace(req.ResolvedBy)
	if resolvedBy == "" {
		resolvedBy = operatorFrom(r)
	}

	res, err := h.svc.Resolve(r.Context(), params["market_id"], pos, resolvedBy)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) sweep(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	ids, err := h.svc.Sweep(r.Context())
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"resolved": ids})
}

// --- markets ---

func (h *handlers) listMarkets(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	markets, err := h.svc.ListMarkets(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"markets": markets})
}

func (h *handlers) createMarket(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req service.CreateMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.svc.CreateMarket(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handlers) getMarket(w http.ResponseWriter, r *http.Request, params map[string]string) {
	view, err := h.svc.GetMarket(r.Context(), params["market_id"])
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"market": view})
}

func (h *handlers) quote(w http.ResponseWriter, r *http.Request, params map[string]string) {
	q := r.URL.Query()
	pos, err := models.ParsePosition(q.Get("position"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stake, err := strconv.ParseFloat(q.Get("stake"), 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "stake must be a number")
		return
	}

	quote, err := h.svc.QuoteBet(r.Context(), params["market_id"], pos, stake)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

type betRequest struct {
	Position string          `json:"position"`
	Amount   decimal.Decimal `json:"amount"`
}

func (h *handlers) betIntent(w http.ResponseWriter, r *http.Request, params map[string]string) {
	var req betRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	pos, err := models.ParsePosition(req.Position)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	intent, err := h.svc.PlaceBetIntent(r.Context(), params["market_id"], pos, req.Amount)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

// --- invoices, splits, expenses ---

func (h *handlers) listInvoices(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q := r.URL.Query()
	invoices, err := h.svc.ListInvoices(r.Context(), q.Get("address"), q.Get("direction"), q.Get("status"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"invoices": invoices})
}

func (h *handlers) createInvoice(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req service.CreateInvoiceRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.svc.CreateInvoice(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handlers) listSplits(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	splits, err := h.svc.ListSplits(r.Context(), r.URL.Query().Get("address"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"splits": splits})
}

func (h *handlers) createSplit(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	var req service.CreateSplitRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.svc.CreateSplit(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handlers) listExpenses(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q := r.URL.Query()
	days := 0
	if s := q.Get("days"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "days must be an integer")
			return
		}
		days = n
	}

	report, err := h.svc.ListExpenses(r.Context(), q.Get("address"), q.Get("category"), days)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *handlers) insights(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	q := r.URL.Query()
	out, err := h.svc.Insights(r.Context(), q.Get("address"), q.Get("period"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// --- middleware ---

type operatorKey struct{}

func operatorFrom(r *http.Request) string {
	sub, _ := r.Context().Value(operatorKey{}).(string)
	return sub
}

func (h *handlers) requireOperator(next runtime.HandlerFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		if h.deps.Tokens == nil {
			next(w, r, params)
			return
		}
		claims, err := h.deps.Tokens.FromRequest(r)
		if err != nil {
			msg := "invalid or expired token"
			if errors.Is(err, auth.ErrMissingToken) {
				msg = "authorization token required"
			}
			writeError(w, http.StatusUnauthorized, msg)
			return
		}
		ctx := context.WithValue(r.Context(), operatorKey{}, claims.Subject)
		next(w, r.WithContext(ctx), params)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *handlers) instrument(pattern string, next runtime.HandlerFunc) runtime.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request, params map[string]string) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next(rec, r, params)

		if h.deps.Metrics != nil {
			h.deps.Metrics.ObserveRequest(pattern, rec.code, time.Since(start))
		}
		h.logger.Debug().
			Str("method", r.Method).
			Str("route", pattern).
			Int("code", rec.code).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

// --- helpers ---

func (h *handlers) writeServiceError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		code = http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, service.ErrUnavailable):
		code = http.StatusServiceUnavailable
	case errors.Is(err, watcher.ErrLedger):
		code = http.StatusBadGateway
	}

	msg := err.Error()
	if code == http.StatusInternalServerError {
		h.logger.Error().Err(err).Msg("request failed")
		msg = "internal error"
	}
	writeError(w, code, msg)
}

func parseResolution(raw json.RawMessage) (models.Position, error) {
	if len(raw) == 0 {
		return 0, errors.New("resolution is required")
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return models.Position(n), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, errors.New("resolution must be 0, 1, yes or no")
	}
	return models.ParsePosition(strings.ToLower(s))
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
