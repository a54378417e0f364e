// Package orderbook implements a single-symbol limit order book with
// price-time priority matching.
//
// Each side is a binary heap with lazy deletion: cancelled or filled orders
// are only marked inactive and are discarded when they reach the root.
// A Book is not safe for concurrent use; callers serialize access per symbol.
package orderbook

import (
	"container/heap"
	"fmt"
	"time"

	"exchange-simv1/internal/model"
	"exchange-simv1/internal/sequence"

	"github.com/shopspring/decimal"
)

// IDSource allocates order ids. Ids must be unique and increasing.
type IDSource interface {
	Next() uint64
}

// MatchResult is the outcome of submitting one order.
type MatchResult struct {
	Trades []model.Trade
	// Resting holds a copy of every resting order touched by the match,
	// taken after its last fill, keyed by order id.
	Resting map[uint64]model.Order
}

// Book is the order book for one symbol.
type Book struct {
	symbol string
	bids   *priceTimeQueue
	asks   *priceTimeQueue
	orders map[uint64]*model.Order // live resting orders only
	ids    IDSource
	now    func() time.Time
}

// New creates an empty book for symbol. A nil ids gets a private sequencer.
func New(symbol string, ids IDSource) *Book {
	if ids == nil {
		ids = sequence.New(0)
	}
	return &Book{
		symbol: symbol,
		bids:   newQueue(model.Buy),
		asks:   newQueue(model.Sell),
		orders: make(map[uint64]*model.Order),
		ids:    ids,
		now:    time.Now,
	}
}

// Symbol returns the symbol this book trades.
func (b *Book) Symbol() string { return b.symbol }

// CreateOrder allocates an id and returns a new active order. A zero ts
// defaults to the current time. Side is normalized the way ParseSide does;
// an unrecognized side is kept as given and rejected by AddOrder.
// The book is not modified.
func (b *Book) CreateOrder(symbol string, side model.Side, price decimal.Decimal, qty int64, ts time.Time) *model.Order {
	if ts.IsZero() {
		ts = b.now()
	}
	if s, err := model.ParseSide(string(side)); err == nil {
		side = s
	}
	return &model.Order{
		ID:        b.ids.Next(),
		Symbol:    symbol,
		Side:      side,
		Price:     price,
		Quantity:  qty,
		Remaining: qty,
		Timestamp: ts,
		Active:    true,
	}
}

// AddOrder matches o against the opposite side and rests any remainder.
// Trades are returned in the order they were generated.
func (b *Book) AddOrder(o *model.Order) ([]model.Trade, error) {
	res, err := b.Match(o)
	if err != nil {
		return nil, err
	}
	return res.Trades, nil
}

// Match is AddOrder that also reports the post-trade state of every
// resting order it touched. The book takes ownership of o.
func (b *Book) Match(o *model.Order) (MatchResult, error) {
	if err := b.validate(o); err != nil {
		return MatchResult{}, err
	}
	if o.ID == 0 {
		o.ID = b.ids.Next()
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = b.now()
	}
	if o.Remaining <= 0 || o.Remaining > o.Quantity {
		o.Remaining = o.Quantity
	}
	o.Active = true

	var res MatchResult
	opp := b.side(o.Side.Opposite())

	for o.Remaining > 0 {
		resting := opp.best()
		if resting == nil || !o.Side.Crosses(o.Price, resting.Price) {
			break
		}

		qty := min64(o.Remaining, resting.Remaining)
		ts := o.Timestamp
		if resting.Timestamp.After(ts) {
			ts = resting.Timestamp
		}

		t := model.Trade{
			Symbol:    b.symbol,
			Price:     resting.Price,
			Quantity:  qty,
			Timestamp: ts,
		}
		if o.Side == model.Buy {
			t.BuyOrderID, t.SellOrderID = o.ID, resting.ID
		} else {
			t.BuyOrderID, t.SellOrderID = resting.ID, o.ID
		}
		res.Trades = append(res.Trades, t)

		o.Remaining -= qty
		resting.Remaining -= qty

		// A partially filled resting order keeps its key, so it stays at
		// the root with its original priority. Only full fills leave.
		if resting.Remaining == 0 {
			resting.Active = false
			delete(b.orders, resting.ID)
			opp.live--
		}

		if res.Resting == nil {
			res.Resting = make(map[uint64]model.Order)
		}
		res.Resting[resting.ID] = *resting
	}

	if o.Remaining > 0 {
		q := b.side(o.Side)
		b.orders[o.ID] = o
		heap.Push(q, o)
		q.live++
	} else {
		o.Active = false
	}

	return res, nil
}

// CancelOrder soft-deletes a live order. It returns false for unknown or
// inactive ids.
func (b *Book) CancelOrder(id uint64) bool {
	o, ok := b.orders[id]
	if !ok || !o.Active {
		return false
	}
	o.Active = false
	o.Remaining = 0
	delete(b.orders, id)
	b.side(o.Side).live--
	return true
}

// ModifyOrder cancels a live order and resubmits a replacement under the
// same id with a fresh timestamp. Nil price or qty inherit the original
// values. Trades produced by the resubmission are returned.
func (b *Book) ModifyOrder(id uint64, price *decimal.Decimal, qty *int64, ts time.Time) (*model.Order, []model.Trade, bool) {
	o, res, ok := b.ReplaceOrder(id, price, qty, ts)
	if !ok {
		return nil, nil, false
	}
	return o, res.Trades, true
}

// ReplaceOrder is ModifyOrder returning the full MatchResult.
func (b *Book) ReplaceOrder(id uint64, price *decimal.Decimal, qty *int64, ts time.Time) (*model.Order, MatchResult, bool) {
	old, ok := b.orders[id]
	if !ok || !old.Active {
		return nil, MatchResult{}, false
	}

	repl := &model.Order{
		ID:        old.ID,
		Symbol:    old.Symbol,
		Side:      old.Side,
		Price:     old.Price,
		Quantity:  old.Quantity,
		Timestamp: ts,
		Account:   old.Account,
	}
	if price != nil {
		repl.Price = *price
	}
	if qty != nil {
		repl.Quantity = *qty
	}
	if repl.Timestamp.IsZero() {
		repl.Timestamp = b.now()
	}
	repl.Remaining = repl.Quantity
	repl.Active = true

	// Validate before touching the original so a bad replacement leaves it resting.
	if err := b.validate(repl); err != nil {
		return nil, MatchResult{}, false
	}

	// The old record stays in the heap as a stale entry; its key is never mutated.
	b.CancelOrder(id)

	res, err := b.Match(repl)
	if err != nil {
		panic(fmt.Sprintf("orderbook: validated replacement rejected: %v", err))
	}
	return repl, res, true
}

// TopOfBook returns the best live bid and ask for symbol. Stale roots are
// discarded on the way. A side with no live order, or a symbol other than
// the book's, yields an invalid NullDecimal.
func (b *Book) TopOfBook(symbol string) (bid, ask decimal.NullDecimal) {
	if symbol != b.symbol {
		return bid, ask
	}
	if o := b.bids.best(); o != nil {
		bid = decimal.NullDecimal{Decimal: o.Price, Valid: true}
	}
	if o := b.asks.best(); o != nil {
		ask = decimal.NullDecimal{Decimal: o.Price, Valid: true}
	}
	return bid, ask
}

// Lookup returns a copy of a live resting order.
func (b *Book) Lookup(id uint64) (model.Order, bool) {
	o, ok := b.orders[id]
	if !ok {
		return model.Order{}, false
	}
	return *o, true
}

// Len returns the number of live resting orders.
func (b *Book) Len() int { return len(b.orders) }

// Count returns the number of live resting orders on side.
func (b *Book) Count(side model.Side) int {
	if !side.Valid() {
		return 0
	}
	return b.side(side).live
}

func (b *Book) validate(o *model.Order) error {
	if !o.Side.Valid() {
		return fmt.Errorf("%w: %q", model.ErrInvalidSide, o.Side)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("%w: %d", model.ErrInvalidQuantity, o.Quantity)
	}
	if !o.Price.IsPositive() {
		return fmt.Errorf("%w: %s", model.ErrInvalidPrice, o.Price)
	}
	if o.Symbol != b.symbol {
		return fmt.Errorf("%w: %s != %s", model.ErrSymbolMismatch, o.Symbol, b.symbol)
	}
	return nil
}

func (b *Book) side(s model.Side) *priceTimeQueue {
	if s == model.Buy {
		return b.bids
	}
	return b.asks
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
