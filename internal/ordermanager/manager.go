// Package ordermanager implements pre-trade admission control and the
// cash/position ledger fed by confirmed executions.
package ordermanager

import (
	"log/slog"
	"sync"
	"time"

	"exchange-simv1/internal/model"

	"github.com/shopspring/decimal"
)

// Rejection reasons returned by ValidateOrder.
const (
	ReasonOK                = "OK"
	ReasonRateLimit         = "rate limit exceeded"
	ReasonInsufficientFunds = "insufficient capital"
	ReasonPositionLimit     = "position limit exceeded"
)

// RateWindow is the sliding window used for rate limiting.
const RateWindow = 60 * time.Second

// Limits defines configurable admission thresholds.
type Limits struct {
	MaxOrdersPerMinute int   `json:"max_orders_per_minute" yaml:"max_orders_per_minute"`
	MaxLongPosition    int64 `json:"max_long_position" yaml:"max_long_position"`   // max qty long per symbol
	MaxShortPosition   int64 `json:"max_short_position" yaml:"max_short_position"` // max qty short per symbol (magnitude)
}

// DefaultLimits returns conservative default limits.
func DefaultLimits() Limits {
	return Limits{
		MaxOrdersPerMinute: 60,
		MaxLongPosition:    1000,
		MaxShortPosition:   1000,
	}
}

// Manager validates orders against rate, capital and position limits and
// applies execution reports to its Ledger.
//
// Validation reads settled cash and positions only. Orders that passed
// validation but have not executed yet hold nothing back, so several quick
// validations can jointly exceed a limit.
type Manager struct {
	mu     sync.Mutex
	limits Limits
	ledger *Ledger
	window []time.Time // submission times inside RateWindow, oldest first
	now    func() time.Time
}

// New creates a Manager over ledger. A nil ledger starts with cash.
func New(limits Limits, ledger *Ledger, cash decimal.Decimal) *Manager {
	if ledger == nil {
		ledger = NewLedger(cash)
	}
	return &Manager{
		limits: limits,
		ledger: ledger,
		now:    time.Now,
	}
}

// Ledger returns the manager's ledger.
func (m *Manager) Ledger() *Ledger { return m.ledger }

// Limits returns the configured limits.
func (m *Manager) Limits() Limits { return m.limits }

// ValidateOrder runs the admission checks in order and returns the first
// failure, or (true, "OK"). now is recorded in the rate window on every
// call, including calls that end up rejected. A zero now uses the clock.
func (m *Manager) ValidateOrder(o *model.Order, now time.Time) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if now.IsZero() {
		now = m.now()
	}

	// Rate limit
	cutoff := now.Add(-RateWindow)
	drop := 0
	for drop < len(m.window) && m.window[drop].Before(cutoff) {
		drop++
	}
	m.window = append(m.window[drop:], now)
	if len(m.window) > m.limits.MaxOrdersPerMinute {
		return m.reject(o, ReasonRateLimit)
	}

	// Capital
	if o.Side == model.Buy && o.Notional().GreaterThan(m.ledger.Cash()) {
		return m.reject(o, ReasonInsufficientFunds)
	}

	// Position
	next := m.ledger.Position(o.Symbol) + o.Side.Sign()*o.Quantity
	if next > m.limits.MaxLongPosition || next < -m.limits.MaxShortPosition {
		return m.reject(o, ReasonPositionLimit)
	}

	return true, ReasonOK
}

func (m *Manager) reject(o *model.Order, reason string) (bool, string) {
	slog.Debug("order rejected",
		slog.Uint64("order_id", o.ID),
		slog.String("symbol", o.Symbol),
		slog.String("side", string(o.Side)),
		slog.String("reason", reason),
	)
	return false, reason
}

// OnExecution applies a fill to the ledger. Reports that are not FILLED or
// PARTIALLY_FILLED, or that carry no quantity, are ignored.
func (m *Manager) OnExecution(r model.ExecutionReport) {
	if !r.HasFill() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ledger.apply(r.Symbol, r.Side, r.FilledQuantity, r.AvgPrice)
}

// WindowLen returns the number of submissions inside the rate window as of
// the last validation.
func (m *Manager) WindowLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.window)
}

// Status returns a summary of the manager's state.
func (m *Manager) Status() map[string]interface{} {
	return map[string]interface{}{
		"cash":         m.ledger.Cash(),
		"positions":    m.ledger.Positions(),
		"realized_pnl": m.ledger.RealizedPnL(),
		"rate_window":  m.WindowLen(),
		"limits":       m.limits,
	}
}
