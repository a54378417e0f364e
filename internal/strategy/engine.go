// Package strategy turns a bar stream into trading signals.
//
// A Strategy receives bars and answers with a Signal for each one (HOLD
// when it does not want to trade). The Engine routes bars to registered
// strategies and collects the actionable signals.
package strategy

import (
	"context"
	"sync/atomic"
	"time"

	"exchange-simv1/internal/model"

	"github.com/shopspring/decimal"
)

// Action represents a trading action.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// Side maps BUY and SELL to an order side. HOLD has no side.
func (a Action) Side() (model.Side, bool) {
	switch a {
	case ActionBuy:
		return model.Buy, true
	case ActionSell:
		return model.Sell, true
	default:
		return "", false
	}
}

// Signal is a strategy's decision for one bar.
type Signal struct {
	StrategyName string          `json:"strategy_name"`
	Action       Action          `json:"action"`
	Symbol       string          `json:"symbol"`
	Qty          int64           `json:"qty"`
	Price        decimal.Decimal `json:"price"` // close of the bar that produced the signal
	Position     int             `json:"position"`
	TS           time.Time       `json:"ts"`
	Reason       string          `json:"reason"`
}

// Strategy is the interface that all trading strategies must implement.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// OnBar is called for each bar in timestamp order.
	OnBar(bar model.Bar) Signal
}

// Engine manages registered strategies and routes bars to them.
type Engine struct {
	strategies []Strategy
	signalCh   chan Signal
	dropped    atomic.Int64
}

// NewEngine creates a new strategy engine.
func NewEngine(signalBufferSize int) *Engine {
	return &Engine{
		signalCh: make(chan Signal, signalBufferSize),
	}
}

// Register adds a strategy to the engine.
func (e *Engine) Register(s Strategy) {
	e.strategies = append(e.strategies, s)
}

// Signals returns the channel of BUY and SELL signals.
func (e *Engine) Signals() <-chan Signal {
	return e.signalCh
}

// Dropped returns how many signals were discarded because the signal
// channel was full.
func (e *Engine) Dropped() int64 { return e.dropped.Load() }

// Run consumes bars and routes them to all registered strategies.
// Blocks until ctx is cancelled or barCh is closed, then closes the
// signal channel.
func (e *Engine) Run(ctx context.Context, barCh <-chan model.Bar) {
	defer close(e.signalCh)
	for {
		select {
		case <-ctx.Done():
			return
		case bar, ok := <-barCh:
			if !ok {
				return
			}
			for _, s := range e.strategies {
				sig := s.OnBar(bar)
				if sig.Action == ActionHold {
					continue
				}
				select {
				case e.signalCh <- sig:
				default:
					e.dropped.Add(1)
				}
			}
		}
	}
}
