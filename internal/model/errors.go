package model

import "errors"

var (
	// ErrInvalidSide is returned for a side that is neither BUY nor SELL.
	ErrInvalidSide = errors.New("invalid side")
	// ErrInvalidQuantity is returned for a non-positive order quantity.
	ErrInvalidQuantity = errors.New("quantity must be positive")
	// ErrInvalidPrice is returned for a non-positive limit price.
	ErrInvalidPrice = errors.New("price must be positive")
	// ErrSymbolMismatch is returned when an order is routed to another symbol's book.
	ErrSymbolMismatch = errors.New("order symbol does not match book")
	// ErrUnknownSymbol is returned when no book is configured for a symbol.
	ErrUnknownSymbol = errors.New("unknown symbol")
)
