package model

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseSide(t *testing.T) {
	tests := []struct {
		in   string
		want Side
		err  error
	}{
		{"BUY", Buy, nil},
		{" sell ", Sell, nil},
		{"Buy", Buy, nil},
		{"HOLD", "", ErrInvalidSide},
		{"", "", ErrInvalidSide},
	}
	for _, tc := range tests {
		got, err := ParseSide(tc.in)
		if !errors.Is(err, tc.err) {
			t.Errorf("ParseSide(%q) err = %v, want %v", tc.in, err, tc.err)
		}
		if got != tc.want {
			t.Errorf("ParseSide(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSide_Crosses(t *testing.T) {
	ten := decimal.NewFromInt(10)
	nine := decimal.NewFromInt(9)

	if !Buy.Crosses(ten, nine) || !Buy.Crosses(ten, ten) || Buy.Crosses(nine, ten) {
		t.Error("BUY crosses when limit >= resting")
	}
	if !Sell.Crosses(nine, ten) || !Sell.Crosses(ten, ten) || Sell.Crosses(ten, nine) {
		t.Error("SELL crosses when limit <= resting")
	}
	if !Buy.Ahead(ten, nine) || !Sell.Ahead(nine, ten) || Buy.Ahead(ten, ten) {
		t.Error("Ahead must prefer higher bids and lower asks, strictly")
	}
	if Buy.Opposite() != Sell || Sell.Opposite() != Buy {
		t.Error("Opposite mismatch")
	}
}

func TestExecutionReport_HasFill(t *testing.T) {
	tests := []struct {
		r    ExecutionReport
		want bool
	}{
		{ExecutionReport{Status: StatusFilled, FilledQuantity: 3}, true},
		{ExecutionReport{Status: StatusPartiallyFilled, FilledQuantity: 1}, true},
		{ExecutionReport{Status: StatusPartiallyFilled, FilledQuantity: 0}, false},
		{ExecutionReport{Status: StatusCancelled, FilledQuantity: 5}, false},
	}
	for i, tc := range tests {
		if got := tc.r.HasFill(); got != tc.want {
			t.Errorf("case %d: HasFill() = %v, want %v", i, got, tc.want)
		}
	}
}
