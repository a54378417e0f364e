package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"exchange-simv1/internal/engine"
	"exchange-simv1/internal/model"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

const maxDepth = 50

// Server is the REST and websocket front end of one engine.
type Server struct {
	eng        *engine.Engine
	hub        *Hub
	latency    *LatencyTracker
	totpSecret string
	startedAt  time.Time
}

// NewServer subscribes hub to eng's events and returns the front end.
// A non-empty totpSecret guards the mutating routes.
func NewServer(eng *engine.Engine, hub *Hub, totpSecret string) *Server {
	eng.Subscribe(hub.Publish)
	return &Server{
		eng:        eng,
		hub:        hub,
		latency:    NewLatencyTracker(0),
		totpSecret: totpSecret,
		startedAt:  time.Now(),
	}
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+TOTPHeader)
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/v1/symbols", s.timed("symbols", s.handleSymbols))
	mux.HandleFunc("/api/v1/orders", s.timed("submit", s.handleSubmit))
	mux.HandleFunc("/api/v1/orders/", s.timed("order", s.handleOrder))
	mux.HandleFunc("/api/v1/book/", s.timed("book", s.handleBook))
	mux.HandleFunc("/api/v1/accounts/", s.timed("account", s.handleAccount))
	mux.HandleFunc("/api/v1/replay", s.handleReplay)
	mux.HandleFunc("/api/v1/stats", s.handleStats)

	guarded := RequireTOTP(s.totpSecret, mux)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		guarded.ServeHTTP(w, r)
	})
}

func (s *Server) timed(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h(w, r)
		s.latency.Observe(route, time.Since(start))
	}
}

type submitRequest struct {
	Account  string          `json:"account"`
	Symbol   string          `json:"symbol"`
	Side     string          `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}

type modifyRequest struct {
	Price    *decimal.Decimal `json:"price"`
	Quantity *int64           `json:"quantity"`
}

// POST /api/v1/orders
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	side, err := model.ParseSide(req.Side)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.eng.Submit(r.Context(), engine.Request{
		Account:  req.Account,
		Symbol:   req.Symbol,
		Side:     side,
		Price:    req.Price,
		Quantity: req.Quantity,
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// DELETE|PATCH /api/v1/orders/{symbol}/{id}
func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/v1/orders/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "want /api/v1/orders/{symbol}/{id}")
		return
	}
	symbol := parts[0]
	id, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id "+strconv.Quote(parts[1]))
		return
	}

	switch r.Method {
	case http.MethodGet:
		o, ok := s.eng.Lookup(symbol, id)
		if !ok {
			writeError(w, http.StatusNotFound, engine.ErrOrderNotFound.Error())
			return
		}
		writeJSON(w, http.StatusOK, o)
	case http.MethodDelete:
		rep, err := s.eng.Cancel(r.Context(), symbol, id)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, rep)
	case http.MethodPatch:
		var req modifyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
		if req.Price == nil && req.Quantity == nil {
			writeError(w, http.StatusBadRequest, "price or quantity required")
			return
		}
		res, err := s.eng.Modify(r.Context(), symbol, id, req.Price, req.Quantity)
		if err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, res)
	default:
		writeError(w, http.StatusMethodNotAllowed, "use GET, PATCH or DELETE")
	}
}

type bookResponse struct {
	Symbol string              `json:"symbol"`
	Bid    decimal.NullDecimal `json:"bid"`
	Ask    decimal.NullDecimal `json:"ask"`
	Bids   interface{}         `json:"bids"`
	Asks   interface{}         `json:"asks"`
}

// GET /api/v1/book/{symbol}?depth=N
func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimPrefix(r.URL.Path, "/api/v1/book/")
	depth := 10
	if v := r.URL.Query().Get("depth"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid depth")
			return
		}
		depth = min(n, maxDepth)
	}

	bid, ask, err := s.eng.TopOfBook(symbol)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	bids, asks, err := s.eng.Depth(symbol, depth)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	resp := bookResponse{Symbol: symbol, Bid: bid, Ask: ask, Bids: bids, Asks: asks}
	if bids == nil {
		resp.Bids = []struct{}{}
	}
	if asks == nil {
		resp.Asks = []struct{}{}
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/v1/accounts/{account}
func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	account := strings.TrimPrefix(r.URL.Path, "/api/v1/accounts/")
	snap, ok := s.eng.Account(account)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown account "+strconv.Quote(account))
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.Symbols())
}

// GET /api/v1/replay?symbol=S&from=N[&to=M] backfills missed envelopes.
func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	channel := ChannelFor(q.Get("symbol"))
	from, err := strconv.ParseInt(q.Get("from"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from")
		return
	}
	to := s.hub.ChannelSeq(channel)
	if v := q.Get("to"); v != "" {
		if to, err = strconv.ParseInt(v, 10, 64); err != nil {
			writeError(w, http.StatusBadRequest, "invalid to")
			return
		}
	}

	msgs := s.hub.ReplayRange(channel, from, to)
	out := make([]json.RawMessage, len(msgs))
	for i, m := range msgs {
		out[i] = m
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"channel":  channel,
		"messages": out,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ws_clients": s.hub.ClientCount(),
		"latency":    s.latency.Stats(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"symbols":    s.eng.Symbols(),
		"ws_clients": s.hub.ClientCount(),
		"uptime_sec": int64(time.Since(s.startedAt).Seconds()),
		"ts":         time.Now().UTC().Format(time.RFC3339Nano),
	})
}

// GET /ws?symbols=A,B&last_ts=...
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	var symbols []string
	if v := r.URL.Query().Get("symbols"); v != "" {
		symbols = strings.Split(v, ",")
	}
	s.hub.HandleWSRequest(conn, symbols, r.URL.Query().Get("last_ts"))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrUnknownSymbol), errors.Is(err, engine.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidSide),
		errors.Is(err, model.ErrInvalidPrice),
		errors.Is(err, model.ErrInvalidQuantity):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("write response failed", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
