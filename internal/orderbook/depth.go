package orderbook

import (
	"fmt"
	"sort"

	"exchange-simv1/internal/model"

	"github.com/shopspring/decimal"
)

// Level is the aggregated live quantity at one price.
type Level struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
	Orders   int             `json:"orders"`
}

// Depth returns up to levels aggregated price levels per side, best first.
// levels <= 0 returns every level.
func (b *Book) Depth(levels int) (bids, asks []Level) {
	return aggregate(b.liveSorted(model.Buy), levels), aggregate(b.liveSorted(model.Sell), levels)
}

// Orders returns copies of the live orders on side in priority order.
func (b *Book) Orders(side model.Side) []model.Order {
	sorted := b.liveSorted(side)
	out := make([]model.Order, len(sorted))
	for i, o := range sorted {
		out[i] = *o
	}
	return out
}

// liveSorted copies the live orders of one side and sorts the copy.
// Heap storage order is never treated as priority order.
func (b *Book) liveSorted(side model.Side) []*model.Order {
	var out []*model.Order
	for _, o := range b.orders {
		if o.Side == side && live(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return ahead(side, out[i], out[j]) })
	return out
}

func aggregate(sorted []*model.Order, levels int) []Level {
	var out []Level
	for _, o := range sorted {
		n := len(out)
		if n > 0 && out[n-1].Price.Equal(o.Price) {
			out[n-1].Quantity += o.Remaining
			out[n-1].Orders++
			continue
		}
		if levels > 0 && n == levels {
			break
		}
		out = append(out, Level{Price: o.Price, Quantity: o.Remaining, Orders: 1})
	}
	return out
}

// CheckInvariants verifies the book's structural invariants and returns a
// description of the first violation found.
func (b *Book) CheckInvariants() error {
	for id, o := range b.orders {
		if id != o.ID {
			return fmt.Errorf("index key %d holds order %d", id, o.ID)
		}
		if !o.Active {
			return fmt.Errorf("order %d indexed but inactive", id)
		}
		if o.Remaining <= 0 || o.Remaining > o.Quantity {
			return fmt.Errorf("order %d remaining %d outside (0, %d]", id, o.Remaining, o.Quantity)
		}
		if o.Symbol != b.symbol {
			return fmt.Errorf("order %d symbol %s in book %s", id, o.Symbol, b.symbol)
		}
	}

	for _, q := range []*priceTimeQueue{b.bids, b.asks} {
		for i := 1; i < len(q.orders); i++ {
			parent := (i - 1) / 2
			if ahead(q.side, q.orders[i], q.orders[parent]) {
				return fmt.Errorf("%s heap order violated at index %d", q.side, i)
			}
		}
		for _, o := range q.orders {
			if live(o) {
				if idx, ok := b.orders[o.ID]; !ok || idx != o {
					return fmt.Errorf("live order %d in %s heap is not indexed", o.ID, q.side)
				}
			}
		}
	}

	bids := b.liveSorted(model.Buy)
	asks := b.liveSorted(model.Sell)
	if b.bids.live != len(bids) || b.asks.live != len(asks) {
		return fmt.Errorf("live counts bid=%d ask=%d, indexed bid=%d ask=%d", b.bids.live, b.asks.live, len(bids), len(asks))
	}
	if len(bids) > 0 && len(asks) > 0 && bids[0].Price.GreaterThanOrEqual(asks[0].Price) {
		return fmt.Errorf("book crossed: bid %s >= ask %s", bids[0].Price, asks[0].Price)
	}
	return nil
}
