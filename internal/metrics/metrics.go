package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the exchange.
type Metrics struct {
	OrdersTotal    *prometheus.CounterVec // labels: symbol, side
	RejectsTotal   *prometheus.CounterVec // labels: reason
	TradesTotal    *prometheus.CounterVec // labels: symbol
	TradedQty      *prometheus.CounterVec // labels: symbol
	CancelsTotal   *prometheus.CounterVec // labels: symbol, result=ok|miss
	ModifiesTotal  *prometheus.CounterVec // labels: symbol, result=ok|miss
	MatchDur       prometheus.Histogram
	RestingOrders  *prometheus.GaugeVec // labels: symbol, side
	AuditFailures  prometheus.Counter
	GatewayClients prometheus.Gauge

	// Redis audit sink
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
// Pass prometheus.DefaultRegisterer in binaries and a fresh registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_orders_total",
			Help: "Orders submitted, before admission",
		}, []string{"symbol", "side"}),
		RejectsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_rejects_total",
			Help: "Orders refused by admission control or validation",
		}, []string{"reason"}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_trades_total",
			Help: "Trades executed",
		}, []string{"symbol"}),
		TradedQty: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_traded_quantity_total",
			Help: "Quantity executed across all trades",
		}, []string{"symbol"}),
		CancelsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_cancels_total",
			Help: "Cancel requests by outcome",
		}, []string{"symbol", "result"}),
		ModifiesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "exchange_modifies_total",
			Help: "Modify requests by outcome",
		}, []string{"symbol", "result"}),
		MatchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "exchange_match_duration_seconds",
			Help:    "Time spent matching one incoming order",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005},
		}),
		RestingOrders: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "exchange_resting_orders",
			Help: "Live resting orders per book side",
		}, []string{"symbol", "side"}),
		AuditFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exchange_audit_failures_total",
			Help: "Audit events one or more sinks failed to record",
		}),
		GatewayClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "exchange_gateway_ws_clients",
			Help: "Connected websocket clients",
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "exchange_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exchange_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "exchange_redis_buffered_writes_total",
			Help: "Audit events buffered while the Redis circuit breaker was open",
		}),
	}

	reg.MustRegister(
		m.OrdersTotal,
		m.RejectsTotal,
		m.TradesTotal,
		m.TradedQty,
		m.CancelsTotal,
		m.ModifiesTotal,
		m.MatchDur,
		m.RestingOrders,
		m.AuditFailures,
		m.GatewayClients,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
	)
	return m
}

// HealthStatus tracks the state of the exchange's dependencies.
// Redis and SQLite only count toward health once they are enabled.
type HealthStatus struct {
	mu sync.RWMutex

	EngineOK       bool      `json:"engine_ok"`
	Symbols        []string  `json:"symbols"`
	RedisEnabled   bool      `json:"redis_enabled"`
	RedisConnected bool      `json:"redis_connected"`
	SQLiteEnabled  bool      `json:"sqlite_enabled"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	LastOrderTime  time.Time `json:"last_order_time"`

	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetEngineOK(v bool, symbols []string) {
	h.mu.Lock()
	h.EngineOK = v
	h.Symbols = symbols
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastOrderTime(t time.Time) {
	h.mu.Lock()
	h.LastOrderTime = t
	h.mu.Unlock()
}

// EnableRedis marks Redis as a dependency that must be reachable.
func (h *HealthStatus) EnableRedis(connected bool) {
	h.mu.Lock()
	h.RedisEnabled = true
	h.RedisConnected = connected
	h.mu.Unlock()
}

// EnableSQLite marks SQLite as a dependency that must be reachable.
func (h *HealthStatus) EnableSQLite(ok bool) {
	h.mu.Lock()
	h.SQLiteEnabled = true
	h.SQLiteOK = ok
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite pings the database and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks. Either handle may be nil.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	redisDown := h.RedisEnabled && !h.RedisConnected
	sqliteDown := h.SQLiteEnabled && !h.SQLiteOK
	if redisDown || sqliteDown {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.EngineOK {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	}

	lastOrder := ""
	if !h.LastOrderTime.IsZero() {
		lastOrder = h.LastOrderTime.Format(time.RFC3339)
	}

	status := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		Symbols         []string `json:"symbols"`
		LastOrderTime   string   `json:"last_order_time"`
		RedisEnabled    bool     `json:"redis_enabled"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteEnabled   bool     `json:"sqlite_enabled"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		Symbols:         h.Symbols,
		LastOrderTime:   lastOrder,
		RedisEnabled:    h.RedisEnabled,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteEnabled:   h.SQLiteEnabled,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server. A nil gatherer serves
// the default registry.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server's mux.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
