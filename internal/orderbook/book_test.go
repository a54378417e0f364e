package orderbook

import (
	"errors"
	"testing"
	"time"

	"exchange-simv1/internal/model"

	"github.com/shopspring/decimal"
)

var t0 = time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)

func px(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newTestBook(t *testing.T) *Book {
	t.Helper()
	b := New("ACME", nil)
	b.now = func() time.Time { return t0 }
	return b
}

// place creates and submits an order, failing the test on error or on any
// invariant violation afterwards.
func place(t *testing.T, b *Book, side model.Side, price string, qty int64, ts time.Time) (*model.Order, []model.Trade) {
	t.Helper()
	o := b.CreateOrder(b.Symbol(), side, px(price), qty, ts)
	trades, err := b.AddOrder(o)
	if err != nil {
		t.Fatalf("AddOrder(%s %d@%s): %v", side, qty, price, err)
	}
	if err := b.CheckInvariants(); err != nil {
		t.Fatalf("invariant violated after %s %d@%s: %v", side, qty, price, err)
	}
	return o, trades
}

func TestCreateOrder_Defaults(t *testing.T) {
	b := newTestBook(t)
	o := b.CreateOrder("ACME", model.Buy, px("10"), 5, time.Time{})

	if o.ID == 0 {
		t.Error("expected non-zero id")
	}
	if !o.Timestamp.Equal(t0) {
		t.Errorf("timestamp: got %v, want %v", o.Timestamp, t0)
	}
	if o.Remaining != 5 || !o.Active {
		t.Errorf("expected remaining=5 active=true, got remaining=%d active=%v", o.Remaining, o.Active)
	}
	if b.Len() != 0 {
		t.Errorf("CreateOrder must not touch the book, Len()=%d", b.Len())
	}

	o2 := b.CreateOrder("ACME", model.Sell, px("10"), 5, time.Time{})
	if o2.ID <= o.ID {
		t.Errorf("ids not increasing: %d then %d", o.ID, o2.ID)
	}
}

func TestAddOrder_Validation(t *testing.T) {
	b := newTestBook(t)
	tests := []struct {
		name string
		o    *model.Order
		want error
	}{
		{"bad side", &model.Order{Symbol: "ACME", Side: "HOLD", Price: px("1"), Quantity: 1}, model.ErrInvalidSide},
		{"zero qty", &model.Order{Symbol: "ACME", Side: model.Buy, Price: px("1"), Quantity: 0}, model.ErrInvalidQuantity},
		{"negative price", &model.Order{Symbol: "ACME", Side: model.Sell, Price: px("-1"), Quantity: 1}, model.ErrInvalidPrice},
		{"other symbol", &model.Order{Symbol: "XYZ", Side: model.Sell, Price: px("1"), Quantity: 1}, model.ErrSymbolMismatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := b.AddOrder(tc.o)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
	if b.Len() != 0 {
		t.Errorf("rejected orders must not rest, Len()=%d", b.Len())
	}
}

func TestAddOrder_NoCrossRests(t *testing.T) {
	b := newTestBook(t)
	place(t, b, model.Buy, "9.50", 10, t0)
	_, trades := place(t, b, model.Sell, "10.00", 10, t0.Add(time.Second))

	if len(trades) != 0 {
		t.Fatalf("expected no trades, got %d", len(trades))
	}
	bid, ask := b.TopOfBook("ACME")
	if !bid.Valid || !bid.Decimal.Equal(px("9.50")) {
		t.Errorf("best bid: got %v, want 9.50", bid)
	}
	if !ask.Valid || !ask.Decimal.Equal(px("10")) {
		t.Errorf("best ask: got %v, want 10", ask)
	}
}

// Two asks at the same price; the earlier one must trade first and the
// partially filled later one must keep its original timestamp.
func TestEndToEnd_TimePriorityAndPartialFill(t *testing.T) {
	b := newTestBook(t)
	ask1, _ := place(t, b, model.Sell, "9.00", 50, t0)
	ask2, _ := place(t, b, model.Sell, "9.00", 30, t0.Add(time.Second))
	buy, trades := place(t, b, model.Buy, "9.00", 60, t0.Add(2*time.Second))

	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d: %+v", len(trades), trades)
	}
	if trades[0].SellOrderID != ask1.ID || trades[0].Quantity != 50 {
		t.Errorf("trade 0: got sell=%d qty=%d, want sell=%d qty=50", trades[0].SellOrderID, trades[0].Quantity, ask1.ID)
	}
	if trades[1].SellOrderID != ask2.ID || trades[1].Quantity != 10 {
		t.Errorf("trade 1: got sell=%d qty=%d, want sell=%d qty=10", trades[1].SellOrderID, trades[1].Quantity, ask2.ID)
	}
	for i, tr := range trades {
		if !tr.Price.Equal(px("9")) {
			t.Errorf("trade %d price %s, want 9", i, tr.Price)
		}
		if tr.BuyOrderID != buy.ID {
			t.Errorf("trade %d buy id %d, want %d", i, tr.BuyOrderID, buy.ID)
		}
		if !tr.Timestamp.Equal(t0.Add(2 * time.Second)) {
			t.Errorf("trade %d timestamp %v, want later of the two", i, tr.Timestamp)
		}
	}

	if buy.Remaining != 0 || buy.Active {
		t.Errorf("incoming buy: remaining=%d active=%v, want 0/false", buy.Remaining, buy.Active)
	}
	if _, ok := b.Lookup(buy.ID); ok {
		t.Error("fully filled incoming order must not be indexed")
	}
	if ask1.Active {
		t.Error("first ask should be inactive after full fill")
	}

	rest, ok := b.Lookup(ask2.ID)
	if !ok {
		t.Fatal("second ask should still rest")
	}
	if rest.Remaining != 20 || !rest.Timestamp.Equal(t0.Add(time.Second)) {
		t.Errorf("second ask: remaining=%d ts=%v, want 20 at original ts", rest.Remaining, rest.Timestamp)
	}
}

func TestPartialFill_KeepsPriorityOverLaterArrival(t *testing.T) {
	b := newTestBook(t)
	early, _ := place(t, b, model.Sell, "10", 30, t0)
	place(t, b, model.Buy, "10", 10, t0.Add(time.Second)) // early now has 20 left
	late, _ := place(t, b, model.Sell, "10", 30, t0.Add(2*time.Second))

	_, trades := place(t, b, model.Buy, "10", 25, t0.Add(3*time.Second))
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if trades[0].SellOrderID != early.ID || trades[0].Quantity != 20 {
		t.Errorf("first trade should finish the earlier ask: %+v", trades[0])
	}
	if trades[1].SellOrderID != late.ID || trades[1].Quantity != 5 {
		t.Errorf("second trade should hit the later ask: %+v", trades[1])
	}
}

func TestPriceImprovement_TradesAtRestingPrice(t *testing.T) {
	b := newTestBook(t)
	place(t, b, model.Buy, "10.25", 5, t0)
	_, trades := place(t, b, model.Sell, "9.75", 5, t0.Add(time.Second))

	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if !trades[0].Price.Equal(px("10.25")) {
		t.Errorf("trade price %s, want resting bid 10.25", trades[0].Price)
	}
}

func TestAggressorSweepsLevels(t *testing.T) {
	b := newTestBook(t)
	place(t, b, model.Sell, "10.02", 5, t0)
	place(t, b, model.Sell, "10.00", 5, t0.Add(time.Second))
	place(t, b, model.Sell, "10.01", 5, t0.Add(2*time.Second))

	buy, trades := place(t, b, model.Buy, "10.01", 20, t0.Add(3*time.Second))
	if len(trades) != 2 {
		t.Fatalf("expected 2 trades, got %d", len(trades))
	}
	if !trades[0].Price.Equal(px("10.00")) || !trades[1].Price.Equal(px("10.01")) {
		t.Errorf("levels out of order: %s then %s", trades[0].Price, trades[1].Price)
	}
	if buy.Remaining != 10 {
		t.Errorf("remainder %d, want 10", buy.Remaining)
	}
	bid, ask := b.TopOfBook("ACME")
	if !bid.Decimal.Equal(px("10.01")) || !ask.Decimal.Equal(px("10.02")) {
		t.Errorf("top of book %v/%v, want 10.01/10.02", bid, ask)
	}
}

func TestSameTimestampTieBreaksOnID(t *testing.T) {
	b := newTestBook(t)
	first, _ := place(t, b, model.Buy, "5", 1, t0)
	place(t, b, model.Buy, "5", 1, t0)

	_, trades := place(t, b, model.Sell, "5", 1, t0)
	if len(trades) != 1 || trades[0].BuyOrderID != first.ID {
		t.Fatalf("expected lower id to trade first, got %+v", trades)
	}
}

func TestCancelOrder_Idempotent(t *testing.T) {
	b := newTestBook(t)
	ask, _ := place(t, b, model.Sell, "10", 10, t0)

	if !b.CancelOrder(ask.ID) {
		t.Fatal("first cancel should succeed")
	}
	if b.CancelOrder(ask.ID) {
		t.Fatal("second cancel should fail")
	}
	if b.CancelOrder(999) {
		t.Fatal("unknown id should fail")
	}
	if ask.Active || ask.Remaining != 0 {
		t.Errorf("cancelled order: active=%v remaining=%d", ask.Active, ask.Remaining)
	}

	_, trades := place(t, b, model.Buy, "11", 10, t0.Add(time.Second))
	if len(trades) != 0 {
		t.Fatalf("cancelled order participated in a match: %+v", trades)
	}
}

// The best ask is cancelled; top of book must skip it even though a
// better-priced stale entry is still physically in the heap.
func TestTopOfBook_SkipsStaleRoots(t *testing.T) {
	b := newTestBook(t)
	best, _ := place(t, b, model.Sell, "10", 1, t0)
	place(t, b, model.Sell, "12", 1, t0)
	place(t, b, model.Sell, "11", 1, t0)
	place(t, b, model.Sell, "13", 1, t0)

	b.CancelOrder(best.ID)
	_, ask := b.TopOfBook("ACME")
	if !ask.Valid || !ask.Decimal.Equal(px("11")) {
		t.Fatalf("best ask %v, want 11", ask)
	}

	bid, _ := b.TopOfBook("ACME")
	if bid.Valid {
		t.Errorf("empty bid side should be invalid, got %v", bid)
	}
	if bid, ask := b.TopOfBook("OTHER"); bid.Valid || ask.Valid {
		t.Errorf("foreign symbol should return no prices, got %v/%v", bid, ask)
	}
}

func TestModifyOrder_CancelReplace(t *testing.T) {
	b := newTestBook(t)
	a, _ := place(t, b, model.Sell, "10", 10, t0)
	other, _ := place(t, b, model.Sell, "10", 10, t0.Add(time.Second))

	newQty := int64(7)
	repl, trades, ok := b.ModifyOrder(a.ID, nil, &newQty, t0.Add(2*time.Second))
	if !ok {
		t.Fatal("modify should succeed")
	}
	if len(trades) != 0 {
		t.Fatalf("unexpected trades: %+v", trades)
	}
	if repl.ID != a.ID || repl.Quantity != 7 || !repl.Price.Equal(px("10")) {
		t.Errorf("replacement: %+v", repl)
	}
	if a.Active {
		t.Error("original order should be inactive")
	}
	if err := b.CheckInvariants(); err != nil {
		t.Fatal(err)
	}

	// Priority reset: the untouched order now trades first.
	_, trades = place(t, b, model.Buy, "10", 10, t0.Add(3*time.Second))
	if len(trades) != 1 || trades[0].SellOrderID != other.ID {
		t.Fatalf("expected untouched order to trade first, got %+v", trades)
	}
}

func TestModifyOrder_ReturnsTrades(t *testing.T) {
	b := newTestBook(t)
	bid, _ := place(t, b, model.Buy, "9", 5, t0)
	place(t, b, model.Sell, "10", 3, t0)

	newPx := px("10")
	repl, trades, ok := b.ModifyOrder(bid.ID, &newPx, nil, t0.Add(time.Second))
	if !ok {
		t.Fatal("modify should succeed")
	}
	if len(trades) != 1 || trades[0].Quantity != 3 || !trades[0].Price.Equal(px("10")) {
		t.Fatalf("expected one 3@10 trade, got %+v", trades)
	}
	if repl.Remaining != 2 {
		t.Errorf("replacement remaining %d, want 2", repl.Remaining)
	}
	if err := b.CheckInvariants(); err != nil {
		t.Fatal(err)
	}
}

func TestModifyOrder_UnknownOrInvalid(t *testing.T) {
	b := newTestBook(t)
	if _, _, ok := b.ModifyOrder(42, nil, nil, t0); ok {
		t.Error("unknown id should fail")
	}

	a, _ := place(t, b, model.Buy, "9", 5, t0)
	zero := int64(0)
	if _, _, ok := b.ModifyOrder(a.ID, nil, &zero, t0); ok {
		t.Error("zero quantity replacement should fail")
	}
	if got, ok := b.Lookup(a.ID); !ok || got.Remaining != 5 {
		t.Errorf("failed modify must leave original resting, got %+v ok=%v", got, ok)
	}

	b.CancelOrder(a.ID)
	if _, _, ok := b.ModifyOrder(a.ID, nil, nil, t0); ok {
		t.Error("cancelled id should fail")
	}
}

func TestMatch_ReportsRestingState(t *testing.T) {
	b := newTestBook(t)
	r1, _ := place(t, b, model.Sell, "10", 4, t0)
	r2, _ := place(t, b, model.Sell, "10", 4, t0.Add(time.Second))

	in := b.CreateOrder("ACME", model.Buy, px("10"), 6, t0.Add(2*time.Second))
	res, err := b.Match(in)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Resting) != 2 {
		t.Fatalf("expected 2 resting snapshots, got %d", len(res.Resting))
	}
	if s := res.Resting[r1.ID]; s.Remaining != 0 || s.Active {
		t.Errorf("r1 snapshot: %+v", s)
	}
	if s := res.Resting[r2.ID]; s.Remaining != 2 || !s.Active {
		t.Errorf("r2 snapshot: %+v", s)
	}
}

func TestDepth_AggregatesLevels(t *testing.T) {
	b := newTestBook(t)
	place(t, b, model.Buy, "9", 5, t0)
	place(t, b, model.Buy, "9", 7, t0)
	place(t, b, model.Buy, "8", 1, t0)
	place(t, b, model.Buy, "7", 1, t0)
	place(t, b, model.Sell, "11", 3, t0)

	bids, asks := b.Depth(2)
	if len(bids) != 2 {
		t.Fatalf("expected 2 bid levels, got %d", len(bids))
	}
	if !bids[0].Price.Equal(px("9")) || bids[0].Quantity != 12 || bids[0].Orders != 2 {
		t.Errorf("bid level 0: %+v", bids[0])
	}
	if !bids[1].Price.Equal(px("8")) {
		t.Errorf("bid level 1: %+v", bids[1])
	}
	if len(asks) != 1 || asks[0].Quantity != 3 {
		t.Errorf("asks: %+v", asks)
	}

	all, _ := b.Depth(0)
	if len(all) != 3 {
		t.Errorf("Depth(0) should return every level, got %d", len(all))
	}
	if n := b.Count(model.Buy); n != 4 {
		t.Errorf("Count(BUY) = %d, want 4", n)
	}
}

func TestCount_TracksRestingOrders(t *testing.T) {
	b := newTestBook(t)
	check := func(step string, bids, asks int) {
		t.Helper()
		if got := b.Count(model.Buy); got != bids {
			t.Errorf("%s: Count(BUY) = %d, want %d", step, got, bids)
		}
		if got := b.Count(model.Sell); got != asks {
			t.Errorf("%s: Count(SELL) = %d, want %d", step, got, asks)
		}
		if err := b.CheckInvariants(); err != nil {
			t.Fatalf("%s: %v", step, err)
		}
	}

	b1, _ := place(t, b, model.Buy, "10", 5, t0)
	place(t, b, model.Buy, "9", 5, t0)
	s1, _ := place(t, b, model.Sell, "11", 5, t0)
	check("rest", 2, 1)

	place(t, b, model.Sell, "10", 2, t0)
	check("partial fill keeps resting bid", 2, 1)

	place(t, b, model.Sell, "10", 3, t0)
	check("full fill removes bid", 1, 1)
	if _, ok := b.Lookup(b1.ID); ok {
		t.Fatalf("filled order %d still indexed", b1.ID)
	}

	b.CancelOrder(s1.ID)
	check("cancel", 1, 0)
	b.CancelOrder(s1.ID)
	check("repeat cancel", 1, 0)

	s2, _ := place(t, b, model.Sell, "12", 4, t0)
	p := px("11")
	if _, _, ok := b.ModifyOrder(s2.ID, &p, nil, time.Time{}); !ok {
		t.Fatal("modify failed")
	}
	check("modify in place", 1, 1)

	p = px("9")
	q := int64(5)
	if _, trades, ok := b.ModifyOrder(s2.ID, &p, &q, time.Time{}); !ok || len(trades) != 1 {
		t.Fatalf("crossing modify: ok=%v trades=%d", ok, len(trades))
	}
	check("crossing modify fills both", 0, 0)

	if got := b.Count(model.Side("HOLD")); got != 0 {
		t.Errorf("Count(HOLD) = %d, want 0", got)
	}
}

func TestCreateOrder_NormalizesSide(t *testing.T) {
	b := newTestBook(t)
	o := b.CreateOrder("ACME", model.Side(" buy "), px("10"), 5, time.Time{})
	if o.Side != model.Buy {
		t.Fatalf("side: got %q, want %q", o.Side, model.Buy)
	}
	if _, err := b.AddOrder(o); err != nil {
		t.Fatalf("AddOrder: %v", err)
	}
	if bid, _ := b.TopOfBook("ACME"); !bid.Valid || !bid.Decimal.Equal(px("10")) {
		t.Errorf("best bid: %v", bid)
	}

	s := b.CreateOrder("ACME", model.Side("sell"), px("10"), 5, time.Time{})
	trades, err := b.AddOrder(s)
	if err != nil || len(trades) != 1 {
		t.Fatalf("lower-case sell: trades=%d err=%v", len(trades), err)
	}

	bad := b.CreateOrder("ACME", model.Side("hold"), px("10"), 5, time.Time{})
	if _, err := b.AddOrder(bad); !errors.Is(err, model.ErrInvalidSide) {
		t.Errorf("unknown side: got %v, want ErrInvalidSide", err)
	}
}
