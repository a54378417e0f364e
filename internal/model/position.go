package model

import "github.com/shopspring/decimal"

// Position is a signed holding in one symbol: positive = long, negative = short.
type Position struct {
	Symbol string `json:"symbol"`
	Qty    int64  `json:"qty"`
}

// MarketValue returns Qty × mark.
func (p Position) MarketValue(mark decimal.Decimal) decimal.Decimal {
	return mark.Mul(decimal.NewFromInt(p.Qty))
}
