package orderbook

import (
	"container/heap"

	"exchange-simv1/internal/model"
)

// priceTimeQueue is a binary heap of resting orders for one side.
// Only the root is guaranteed to be the best entry; the rest of the slice is
// in heap order, not sorted order.
//
// Entries are never removed from the middle. Cancelled and filled orders stay
// in place until they surface at the root and are discarded there.
type priceTimeQueue struct {
	side   model.Side
	orders []*model.Order
	live   int // entries that are still live resting orders
}

func newQueue(side model.Side) *priceTimeQueue {
	q := &priceTimeQueue{side: side}
	heap.Init(q)
	return q
}

func (q *priceTimeQueue) Len() int { return len(q.orders) }

// Less orders by price priority, then arrival time, then id.
func (q *priceTimeQueue) Less(i, j int) bool {
	return ahead(q.side, q.orders[i], q.orders[j])
}

func (q *priceTimeQueue) Swap(i, j int) {
	q.orders[i], q.orders[j] = q.orders[j], q.orders[i]
}

func (q *priceTimeQueue) Push(x any) {
	q.orders = append(q.orders, x.(*model.Order))
}

func (q *priceTimeQueue) Pop() any {
	old := q.orders
	n := len(old)
	o := old[n-1]
	old[n-1] = nil
	q.orders = old[:n-1]
	return o
}

// best discards stale roots until a live order surfaces and returns it,
// or nil when the side is empty.
func (q *priceTimeQueue) best() *model.Order {
	for len(q.orders) > 0 {
		root := q.orders[0]
		if live(root) {
			return root
		}
		heap.Pop(q)
	}
	return nil
}

// ahead reports whether a has strictly higher priority than b on side.
func ahead(side model.Side, a, b *model.Order) bool {
	if !a.Price.Equal(b.Price) {
		return side.Ahead(a.Price, b.Price)
	}
	if !a.Timestamp.Equal(b.Timestamp) {
		return a.Timestamp.Before(b.Timestamp)
	}
	return a.ID < b.ID
}

func live(o *model.Order) bool {
	return o.Active && o.Remaining > 0
}
