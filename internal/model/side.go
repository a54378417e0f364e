package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// ParseSide normalizes s and returns the matching Side.
func ParseSide(s string) (Side, error) {
	side := Side(strings.ToUpper(strings.TrimSpace(s)))
	if !side.Valid() {
		return "", ErrInvalidSide
	}
	return side, nil
}

// Valid reports whether s is BUY or SELL.
func (s Side) Valid() bool {
	return s == Buy || s == Sell
}

// Opposite returns the side an order of side s trades against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Crosses reports whether an order of side s limited at limit can trade
// against a resting order priced at resting.
//
//	BUY:  limit >= resting
//	SELL: limit <= resting
func (s Side) Crosses(limit, resting decimal.Decimal) bool {
	if s == Buy {
		return limit.GreaterThanOrEqual(resting)
	}
	return limit.LessThanOrEqual(resting)
}

// Ahead reports whether price a has strictly better priority than b on side s.
// Bids prefer higher prices, asks prefer lower prices.
func (s Side) Ahead(a, b decimal.Decimal) bool {
	if s == Buy {
		return a.GreaterThan(b)
	}
	return a.LessThan(b)
}

// Sign returns +1 for BUY and -1 for SELL.
func (s Side) Sign() int64 {
	if s == Buy {
		return 1
	}
	return -1
}
