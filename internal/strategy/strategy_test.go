package strategy

import (
	"context"
	"testing"
	"time"

	"exchange-simv1/internal/model"

	"github.com/shopspring/decimal"
)

func bars(closes ...int64) []model.Bar {
	out := make([]model.Bar, len(closes))
	for i, c := range closes {
		out[i] = model.Bar{Symbol: "ACME", TS: time.Unix(int64(i*60), 0), Close: decimal.NewFromInt(c)}
	}
	return out
}

func newSmall(t *testing.T) *TrendMomentum {
	t.Helper()
	s, err := NewTrendMomentum(TrendMomentumConfig{ShortWindow: 2, LongWindow: 3, MomLookback: 2, UnitQty: 5})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestTrendMomentum_Actions(t *testing.T) {
	s := newSmall(t)

	want := []struct {
		action Action
		qty    int64
		pos    int
	}{
		{ActionHold, 0, 0},  // 1
		{ActionHold, 0, 0},  // 2
		{ActionHold, 0, 0},  // 3: first long signal, not yet held
		{ActionBuy, 5, 1},   // 4: enters long one bar later
		{ActionHold, 0, 1},  // 5
		{ActionHold, 0, 1},  // 3: SMAs equal, signal flat
		{ActionSell, 5, 0},  // 2: flat, signal short
		{ActionSell, 5, -1}, // 1: short
	}
	for i, b := range bars(1, 2, 3, 4, 5, 3, 2, 1) {
		sig := s.OnBar(b)
		if sig.Action != want[i].action || sig.Qty != want[i].qty || sig.Position != want[i].pos {
			t.Errorf("bar %d: got %s qty=%d pos=%d, want %s qty=%d pos=%d",
				i, sig.Action, sig.Qty, sig.Position, want[i].action, want[i].qty, want[i].pos)
		}
		if !sig.Price.Equal(b.Close) {
			t.Errorf("bar %d: price %s, want close %s", i, sig.Price, b.Close)
		}
	}
}

func TestTrendMomentum_ReversalDoublesQty(t *testing.T) {
	s := newSmall(t)
	var last Signal
	for _, b := range bars(5, 4, 3, 2, 10, 11) {
		sig := s.OnBar(b)
		if sig.Action != ActionHold {
			last = sig
		}
	}
	if last.Action != ActionBuy || last.Qty != 10 || last.Position != 1 {
		t.Errorf("reversal signal %+v, want BUY 10 to +1", last)
	}
}

func TestTrendMomentum_Equity(t *testing.T) {
	s := newSmall(t)
	for _, b := range bars(1, 2, 3, 4, 6) {
		s.OnBar(b)
	}
	// Long only on the last two bars: (4/3) * (6/4) = 2.
	if got := s.Equity(); got < 1.999 || got > 2.001 {
		t.Errorf("equity %f, want 2", got)
	}
}

func TestNewTrendMomentum_Invalid(t *testing.T) {
	if _, err := NewTrendMomentum(TrendMomentumConfig{ShortWindow: 0, LongWindow: 3, MomLookback: 2, UnitQty: 1}); err == nil {
		t.Error("expected error for zero window")
	}
	if _, err := NewTrendMomentum(TrendMomentumConfig{ShortWindow: 2, LongWindow: 3, MomLookback: 2}); err == nil {
		t.Error("expected error for zero unit quantity")
	}
}

func TestEngine_ForwardsOnlyTrades(t *testing.T) {
	e := NewEngine(16)
	e.Register(newSmall(t))

	in := make(chan model.Bar)
	go func() {
		for _, b := range bars(1, 2, 3, 4, 5, 3, 2, 1) {
			in <- b
		}
		close(in)
	}()
	go e.Run(context.Background(), in)

	var got []Action
	for sig := range e.Signals() {
		got = append(got, sig.Action)
	}
	if len(got) != 3 || got[0] != ActionBuy || got[1] != ActionSell || got[2] != ActionSell {
		t.Errorf("signals %v, want [BUY SELL SELL]", got)
	}
	if e.Dropped() != 0 {
		t.Errorf("dropped %d", e.Dropped())
	}
}

func TestAction_Side(t *testing.T) {
	if side, ok := ActionBuy.Side(); !ok || side != model.Buy {
		t.Error("BUY side")
	}
	if side, ok := ActionSell.Side(); !ok || side != model.Sell {
		t.Error("SELL side")
	}
	if _, ok := ActionHold.Side(); ok {
		t.Error("HOLD has no side")
	}
}
