package ordermanager

import (
	"sort"
	"sync"

	"exchange-simv1/internal/model"

	"github.com/shopspring/decimal"
)

// Ledger holds settled cash and signed positions for one account.
// Readers may use it concurrently; only the owning Manager mutates it.
type Ledger struct {
	mu        sync.RWMutex
	cash      decimal.Decimal
	positions map[string]int64 // symbol -> signed qty

	// Weighted-average cost per open position, for realized P&L.
	costBasis map[string]decimal.Decimal
	realized  decimal.Decimal
}

// NewLedger creates a ledger seeded with starting cash and no positions.
func NewLedger(cash decimal.Decimal) *Ledger {
	return &Ledger{
		cash:      cash,
		positions: make(map[string]int64),
		costBasis: make(map[string]decimal.Decimal),
	}
}

// Cash returns settled cash.
func (l *Ledger) Cash() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cash
}

// Position returns the signed position in symbol.
func (l *Ledger) Position(symbol string) int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.positions[symbol]
}

// Positions returns a snapshot of all non-flat positions sorted by symbol.
func (l *Ledger) Positions() []model.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.Position, 0, len(l.positions))
	for sym, qty := range l.positions {
		if qty != 0 {
			out = append(out, model.Position{Symbol: sym, Qty: qty})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// RealizedPnL returns profit locked in by closing trades, measured against
// the weighted-average entry price.
func (l *Ledger) RealizedPnL() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.realized
}

// AvgCost returns the weighted-average entry price of the open position.
func (l *Ledger) AvgCost(symbol string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.costBasis[symbol]
}

// Equity returns cash plus positions marked at the given prices. Symbols
// without a mark contribute nothing.
func (l *Ledger) Equity(marks map[string]decimal.Decimal) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	eq := l.cash
	for sym, qty := range l.positions {
		if mark, ok := marks[sym]; ok {
			eq = eq.Add(mark.Mul(decimal.NewFromInt(qty)))
		}
	}
	return eq
}

// apply books a fill of qty at price on side.
func (l *Ledger) apply(symbol string, side model.Side, qty int64, price decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	notional := price.Mul(decimal.NewFromInt(qty))
	if side == model.Buy {
		l.cash = l.cash.Sub(notional)
	} else {
		l.cash = l.cash.Add(notional)
	}

	prev := l.positions[symbol]
	delta := side.Sign() * qty
	next := prev + delta
	l.positions[symbol] = next

	avg := l.costBasis[symbol]
	switch {
	case prev == 0 || (prev > 0) == (delta > 0):
		// Opening or adding: weighted average
		total := avg.Mul(decimal.NewFromInt(abs64(prev))).Add(notional)
		l.costBasis[symbol] = total.Div(decimal.NewFromInt(abs64(next)))
	default:
		closed := min64(abs64(prev), qty)
		pnl := price.Sub(avg).Mul(decimal.NewFromInt(closed))
		if prev < 0 {
			pnl = pnl.Neg()
		}
		l.realized = l.realized.Add(pnl)
		switch {
		case next == 0:
			delete(l.costBasis, symbol)
		case (next > 0) != (prev > 0):
			// Flipped through flat: the remainder opens at the fill price
			l.costBasis[symbol] = price
		}
	}
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
