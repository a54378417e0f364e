// Package engine is the single write path into the exchange. It owns one
// order book per symbol and one order manager per account, and turns every
// submission, cancel and modify into trades, execution reports and audit
// events.
//
// Operations on one symbol are serialized by that symbol's lock; different
// symbols proceed in parallel. Order ids come from one shared sequencer so
// they are unique across books.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"exchange-simv1/internal/audit"
	"exchange-simv1/internal/execution"
	"exchange-simv1/internal/logger"
	"exchange-simv1/internal/metrics"
	"exchange-simv1/internal/model"
	"exchange-simv1/internal/orderbook"
	"exchange-simv1/internal/ordermanager"
	"exchange-simv1/internal/sequence"

	"github.com/shopspring/decimal"
)

// ErrOrderNotFound is returned for ids that are not resting in the book.
var ErrOrderNotFound = errors.New("order not found")

// Config configures an Engine.
type Config struct {
	Symbols      []string
	Limits       ordermanager.Limits
	StartingCash decimal.Decimal
	// Clock stamps orders and drives the rate window; nil means time.Now.
	// Backtests set it to the replayed bar time.
	Clock func() time.Time
	// AuditTimeout bounds each audit write; zero means DefaultAuditTimeout.
	AuditTimeout time.Duration
}

// DefaultAuditTimeout bounds an audit write when Config.AuditTimeout is zero.
const DefaultAuditTimeout = 5 * time.Second

// Request is a new limit order. An empty Account marks house liquidity,
// which skips admission control and the ledger.
type Request struct {
	Account  string          `json:"account"`
	Symbol   string          `json:"symbol"`
	Side     model.Side      `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}

// Result is the outcome of a submission or modify.
type Result struct {
	Accepted bool                    `json:"accepted"`
	Reason   string                  `json:"reason"`
	Order    model.Order             `json:"order"`
	Trades   []model.Trade           `json:"trades"`
	Reports  []model.ExecutionReport `json:"reports"`
}

// AccountSnapshot is a point-in-time view of one account's ledger.
type AccountSnapshot struct {
	Account      string           `json:"account"`
	Cash         decimal.Decimal  `json:"cash"`
	RealizedPnL  decimal.Decimal  `json:"realized_pnl"`
	Positions    []model.Position `json:"positions"`
	RecentOrders int              `json:"recent_orders"`
}

type symbolBook struct {
	mu   sync.Mutex
	book *orderbook.Book
}

// Engine routes orders to per-symbol books.
type Engine struct {
	books   map[string]*symbolBook
	symbols []string
	ids     *sequence.Sequencer

	acctMu   sync.Mutex
	accounts map[string]*ordermanager.Manager
	limits   ordermanager.Limits
	cash     decimal.Decimal

	sink    audit.Sink
	metrics *metrics.Metrics // nil disables metrics

	lmu       sync.RWMutex
	listeners []func(audit.Event)

	now          func() time.Time
	auditTimeout time.Duration
}

// New creates an engine with an empty book for every configured symbol.
// A nil sink discards audit events.
func New(cfg Config, sink audit.Sink, m *metrics.Metrics) (*Engine, error) {
	if len(cfg.Symbols) == 0 {
		return nil, errors.New("engine: no symbols configured")
	}
	if sink == nil {
		sink = audit.Discard{}
	}
	e := &Engine{
		books:        make(map[string]*symbolBook, len(cfg.Symbols)),
		ids:          sequence.New(0),
		accounts:     make(map[string]*ordermanager.Manager),
		limits:       cfg.Limits,
		cash:         cfg.StartingCash,
		sink:         sink,
		metrics:      m,
		now:          time.Now,
		auditTimeout: DefaultAuditTimeout,
	}
	if cfg.Clock != nil {
		e.now = cfg.Clock
	}
	if cfg.AuditTimeout > 0 {
		e.auditTimeout = cfg.AuditTimeout
	}
	for _, s := range cfg.Symbols {
		if _, dup := e.books[s]; dup {
			return nil, fmt.Errorf("engine: duplicate symbol %q", s)
		}
		e.books[s] = &symbolBook{book: orderbook.New(s, e.ids)}
		e.symbols = append(e.symbols, s)
	}
	sort.Strings(e.symbols)
	return e, nil
}

// Symbols returns the traded symbols in sorted order.
func (e *Engine) Symbols() []string {
	out := make([]string, len(e.symbols))
	copy(out, e.symbols)
	return out
}

// Subscribe registers fn to receive every audit event after it is
// recorded. fn runs on the submitting goroutine with the symbol locked,
// so it must not block or call back into the engine.
func (e *Engine) Subscribe(fn func(audit.Event)) {
	e.lmu.Lock()
	e.listeners = append(e.listeners, fn)
	e.lmu.Unlock()
}

// Submit admits, matches and reports one new order.
//
// Malformed requests (unknown symbol, bad side, non-positive price or
// quantity) return an error and consume no id. Admission rejections are
// not errors: Result.Accepted is false and Result.Reason says why.
func (e *Engine) Submit(ctx context.Context, req Request) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	sb, err := e.book(req.Symbol)
	if err != nil {
		return Result{}, err
	}
	if err := validateFields(req.Side, req.Price, req.Quantity); err != nil {
		return Result{}, err
	}

	now := e.now()
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(req.Symbol, now))
	if e.metrics != nil {
		e.metrics.OrdersTotal.WithLabelValues(req.Symbol, string(req.Side)).Inc()
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()

	o := sb.book.CreateOrder(req.Symbol, req.Side, req.Price, req.Quantity, now)
	o.Account = req.Account

	if req.Account != "" {
		if ok, reason := e.manager(req.Account).ValidateOrder(o, now); !ok {
			o.Active = false
			e.rejected(ctx, o, now, reason)
			return Result{Accepted: false, Reason: reason, Order: *o}, nil
		}
	}

	e.record(ctx, audit.OrderEvent(audit.EventNew, o, now, ""))

	start := time.Now()
	res, err := sb.book.Match(o)
	if err != nil {
		// Fields were checked above, so only a programming error lands here.
		return Result{}, fmt.Errorf("match order %d: %w", o.ID, err)
	}
	if e.metrics != nil {
		e.metrics.MatchDur.Observe(time.Since(start).Seconds())
	}

	reports := e.settle(ctx, *o, res)
	e.observeBook(sb.book)

	slog.Debug("order processed",
		append(logger.LogWithTrace(ctx),
			slog.Uint64("order_id", o.ID),
			slog.String("symbol", o.Symbol),
			slog.String("side", string(o.Side)),
			slog.Int("trades", len(res.Trades)),
			slog.Int64("remaining", o.Remaining),
		)...,
	)
	return Result{Accepted: true, Reason: ordermanager.ReasonOK, Order: *o, Trades: res.Trades, Reports: reports}, nil
}

// Cancel withdraws a resting order and returns its CANCELLED report.
func (e *Engine) Cancel(ctx context.Context, symbol string, id uint64) (model.ExecutionReport, error) {
	if err := ctx.Err(); err != nil {
		return model.ExecutionReport{}, err
	}
	sb, err := e.book(symbol)
	if err != nil {
		return model.ExecutionReport{}, err
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()

	o, ok := sb.book.Lookup(id)
	if !ok || !sb.book.CancelOrder(id) {
		e.countCancel(symbol, false)
		return model.ExecutionReport{}, fmt.Errorf("cancel %s/%d: %w", symbol, id, ErrOrderNotFound)
	}
	e.countCancel(symbol, true)

	now := e.now()
	e.record(ctx, audit.OrderEvent(audit.EventCancel, &o, now,
		fmt.Sprintf("remaining %d of %d", o.Remaining, o.Quantity)))
	e.observeBook(sb.book)
	return execution.CancelledReport(o, now), nil
}

// Modify replaces a resting order's price and/or quantity. Nil fields keep
// the current value. The replacement keeps the id, loses time priority
// and may trade immediately. Account orders are re-admitted first; a
// rejection leaves the original resting untouched.
func (e *Engine) Modify(ctx context.Context, symbol string, id uint64, price *decimal.Decimal, qty *int64) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	sb, err := e.book(symbol)
	if err != nil {
		return Result{}, err
	}
	if price != nil && !price.IsPositive() {
		return Result{}, fmt.Errorf("%w: %s", model.ErrInvalidPrice, price)
	}
	if qty != nil && *qty <= 0 {
		return Result{}, fmt.Errorf("%w: %d", model.ErrInvalidQuantity, *qty)
	}

	sb.mu.Lock()
	defer sb.mu.Unlock()

	old, ok := sb.book.Lookup(id)
	if !ok {
		e.countModify(symbol, false)
		return Result{}, fmt.Errorf("modify %s/%d: %w", symbol, id, ErrOrderNotFound)
	}

	now := e.now()
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(symbol, now))

	if old.Account != "" {
		cand := old
		if price != nil {
			cand.Price = *price
		}
		if qty != nil {
			cand.Quantity = *qty
		}
		cand.Remaining = cand.Quantity
		if ok, reason := e.manager(old.Account).ValidateOrder(&cand, now); !ok {
			e.rejected(ctx, &cand, now, reason)
			return Result{Accepted: false, Reason: reason, Order: old}, nil
		}
	}

	repl, res, ok := sb.book.ReplaceOrder(id, price, qty, now)
	if !ok {
		e.countModify(symbol, false)
		return Result{}, fmt.Errorf("modify %s/%d: %w", symbol, id, ErrOrderNotFound)
	}
	e.countModify(symbol, true)

	e.record(ctx, audit.OrderEvent(audit.EventModify, repl, now,
		fmt.Sprintf("price %s->%s qty %d->%d", old.Price, repl.Price, old.Quantity, repl.Quantity)))
	reports := e.settle(ctx, *repl, res)
	e.observeBook(sb.book)

	return Result{Accepted: true, Reason: ordermanager.ReasonOK, Order: *repl, Trades: res.Trades, Reports: reports}, nil
}

// TopOfBook returns the best bid and ask for symbol.
func (e *Engine) TopOfBook(symbol string) (bid, ask decimal.NullDecimal, err error) {
	sb, err := e.book(symbol)
	if err != nil {
		return bid, ask, err
	}
	sb.mu.Lock()
	defer sb.mu.Unlock()
	bid, ask = sb.book.TopOfBook(symbol)
	return bid, ask, nil
}

// Depth returns up to levels aggregated price levels per side.
func (e *Engine) Depth(symbol string, levels int) (bids, asks []orderbook.Level, err error) {
	sb, err := e.book(symbol)
	if err != nil {
		return nil, nil, err
	}
	sb.mu.Lock()
	defer sb.mu.Unlock()
	bids, asks = sb.book.Depth(levels)
	return bids, asks, nil
}

// Lookup returns a copy of a resting order.
func (e *Engine) Lookup(symbol string, id uint64) (model.Order, bool) {
	sb, err := e.book(symbol)
	if err != nil {
		return model.Order{}, false
	}
	sb.mu.Lock()
	defer sb.mu.Unlock()
	return sb.book.Lookup(id)
}

// Account returns a snapshot of account's ledger. Accounts exist once
// they have submitted an order.
func (e *Engine) Account(account string) (AccountSnapshot, bool) {
	e.acctMu.Lock()
	m, ok := e.accounts[account]
	e.acctMu.Unlock()
	if !ok {
		return AccountSnapshot{}, false
	}
	l := m.Ledger()
	return AccountSnapshot{
		Account:      account,
		Cash:         l.Cash(),
		RealizedPnL:  l.RealizedPnL(),
		Positions:    l.Positions(),
		RecentOrders: m.WindowLen(),
	}, true
}

// Executor returns an Executor that submits orders to the books under
// their own Account. Admission rejections surface as *execution.RejectedError.
func (e *Engine) Executor() execution.Executor {
	return execution.ExecutorFunc(func(ctx context.Context, o *model.Order) ([]model.ExecutionReport, error) {
		res, err := e.Submit(ctx, Request{
			Account:  o.Account,
			Symbol:   o.Symbol,
			Side:     o.Side,
			Price:    o.Price,
			Quantity: o.Quantity,
		})
		if err != nil {
			return nil, err
		}
		o.ID = res.Order.ID
		o.Remaining = res.Order.Remaining
		o.Timestamp = res.Order.Timestamp
		if !res.Accepted {
			return nil, &execution.RejectedError{OrderID: res.Order.ID, Reason: res.Reason}
		}
		return res.Reports, nil
	})
}

// Close closes the audit sink.
func (e *Engine) Close() error {
	return e.sink.Close()
}

func (e *Engine) book(symbol string) (*symbolBook, error) {
	sb, ok := e.books[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %q", model.ErrUnknownSymbol, symbol)
	}
	return sb, nil
}

// manager returns account's order manager, creating it on first use.
func (e *Engine) manager(account string) *ordermanager.Manager {
	e.acctMu.Lock()
	defer e.acctMu.Unlock()
	m, ok := e.accounts[account]
	if !ok {
		m = ordermanager.New(e.limits, nil, e.cash)
		e.accounts[account] = m
		slog.Info("account opened", slog.String("account", account), slog.String("cash", e.cash.String()))
	}
	return m
}

// settle builds the reports for a match, books fills into account
// ledgers and records FILL events.
func (e *Engine) settle(ctx context.Context, in model.Order, res orderbook.MatchResult) []model.ExecutionReport {
	reports := execution.ReportsForAdd(in, res.Trades, res.Resting)
	for _, r := range reports {
		if r.Account != "" && r.HasFill() {
			e.manager(r.Account).OnExecution(r)
		}
		if r.HasFill() {
			e.record(ctx, audit.FillEvent(r))
		}
	}
	if e.metrics != nil {
		for _, t := range res.Trades {
			e.metrics.TradesTotal.WithLabelValues(t.Symbol).Inc()
			e.metrics.TradedQty.WithLabelValues(t.Symbol).Add(float64(t.Quantity))
		}
	}
	return reports
}

func (e *Engine) rejected(ctx context.Context, o *model.Order, ts time.Time, reason string) {
	if e.metrics != nil {
		e.metrics.RejectsTotal.WithLabelValues(reason).Inc()
	}
	e.record(ctx, audit.OrderEvent(audit.EventReject, o, ts, reason))
}

// record writes ev to the sink and then to subscribers. Sink failures are
// logged and counted; they never fail the operation.
//
// The book has already changed by the time an event is recorded, so the
// write must not be lost to the caller giving up. It runs under a context
// detached from ctx's cancellation and bounded by the audit timeout.
func (e *Engine) record(ctx context.Context, ev audit.Event) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.auditTimeout)
	defer cancel()
	if err := e.sink.Record(rctx, ev); err != nil {
		slog.Error("audit record failed",
			append(logger.LogWithTrace(ctx),
				slog.String("type", string(ev.Type)),
				slog.Uint64("order_id", ev.OrderID),
				slog.String("error", err.Error()),
			)...,
		)
		if e.metrics != nil {
			e.metrics.AuditFailures.Inc()
		}
	}

	e.lmu.RLock()
	ls := e.listeners
	e.lmu.RUnlock()
	for _, fn := range ls {
		fn(ev)
	}
}

func (e *Engine) observeBook(b *orderbook.Book) {
	if e.metrics == nil {
		return
	}
	e.metrics.RestingOrders.WithLabelValues(b.Symbol(), string(model.Buy)).Set(float64(b.Count(model.Buy)))
	e.metrics.RestingOrders.WithLabelValues(b.Symbol(), string(model.Sell)).Set(float64(b.Count(model.Sell)))
}

func (e *Engine) countCancel(symbol string, ok bool) {
	if e.metrics != nil {
		e.metrics.CancelsTotal.WithLabelValues(symbol, outcome(ok)).Inc()
	}
}

func (e *Engine) countModify(symbol string, ok bool) {
	if e.metrics != nil {
		e.metrics.ModifiesTotal.WithLabelValues(symbol, outcome(ok)).Inc()
	}
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "miss"
}

func validateFields(side model.Side, price decimal.Decimal, qty int64) error {
	if !side.Valid() {
		return fmt.Errorf("%w: %q", model.ErrInvalidSide, side)
	}
	if qty <= 0 {
		return fmt.Errorf("%w: %d", model.ErrInvalidQuantity, qty)
	}
	if !price.IsPositive() {
		return fmt.Errorf("%w: %s", model.ErrInvalidPrice, price)
	}
	return nil
}
