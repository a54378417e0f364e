package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order is a limit order. Quantity is the original size; Remaining is what is
// still unfilled. Once Remaining reaches 0 or the order is cancelled, Active is false.
type Order struct {
	ID        uint64          `json:"id"`
	Symbol    string          `json:"symbol"`
	Side      Side            `json:"side"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int64           `json:"quantity"`
	Remaining int64           `json:"remaining"`
	Timestamp time.Time       `json:"timestamp"`
	Active    bool            `json:"active"`
	Account   string          `json:"account,omitempty"` // empty = house liquidity
}

// Filled returns the quantity executed so far.
func (o *Order) Filled() int64 {
	return o.Quantity - o.Remaining
}

// Notional returns price × quantity.
func (o *Order) Notional() decimal.Decimal {
	return o.Price.Mul(decimal.NewFromInt(o.Quantity))
}

// Trade is an immutable record of a single match between a buy and a sell.
type Trade struct {
	BuyOrderID  uint64          `json:"buy_order_id"`
	SellOrderID uint64          `json:"sell_order_id"`
	Symbol      string          `json:"symbol"`
	Price       decimal.Decimal `json:"price"`
	Quantity    int64           `json:"quantity"`
	Timestamp   time.Time       `json:"timestamp"`
}

// Notional returns price × quantity.
func (t Trade) Notional() decimal.Decimal {
	return t.Price.Mul(decimal.NewFromInt(t.Quantity))
}

// ExecStatus is the outcome carried by an ExecutionReport.
type ExecStatus string

const (
	StatusFilled          ExecStatus = "FILLED"
	StatusPartiallyFilled ExecStatus = "PARTIALLY_FILLED"
	StatusCancelled       ExecStatus = "CANCELLED"
)

// ExecutionReport describes the execution state of one order.
type ExecutionReport struct {
	OrderID           uint64          `json:"order_id"`
	Symbol            string          `json:"symbol"`
	Side              Side            `json:"side"`
	Status            ExecStatus      `json:"status"`
	FilledQuantity    int64           `json:"filled_quantity"`
	RemainingQuantity int64           `json:"remaining_quantity"`
	AvgPrice          decimal.Decimal `json:"avg_price"`
	Timestamp         time.Time       `json:"timestamp"`
	Account           string          `json:"account,omitempty"`
}

// HasFill reports whether the report carries executed quantity.
func (r ExecutionReport) HasFill() bool {
	return (r.Status == StatusFilled || r.Status == StatusPartiallyFilled) && r.FilledQuantity > 0
}
