package audit

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"exchange-simv1/internal/model"

	"github.com/shopspring/decimal"
)

var t0 = time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC)

func TestCSVSink_AppendsWithSingleHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.csv")
	ctx := context.Background()

	o := &model.Order{ID: 7, Symbol: "ACME", Side: model.Buy, Price: decimal.RequireFromString("9.25"), Quantity: 40}

	s, err := NewCSVSink(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Record(ctx, OrderEvent(EventNew, o, t0, "accepted")); err != nil {
		t.Fatal(err)
	}
	s.Close()

	// Reopen: the header must not be repeated.
	s, err = NewCSVSink(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Record(ctx, OrderEvent(EventCancel, o, t0.Add(time.Second), "user, requested")); err != nil {
		t.Fatal(err)
	}
	s.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}

	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d: %v", len(rows), rows)
	}
	for i, col := range CSVHeader {
		if rows[0][i] != col {
			t.Errorf("header[%d] = %q, want %q", i, rows[0][i], col)
		}
	}
	want := []string{"2024-03-01T09:15:00Z", "NEW", "7", "ACME", "BUY", "9.25", "40", "accepted"}
	for i := range want {
		if rows[1][i] != want[i] {
			t.Errorf("row1[%d] = %q, want %q", i, rows[1][i], want[i])
		}
	}
	if rows[2][1] != "CANCEL" || rows[2][7] != "user, requested" {
		t.Errorf("row2: %v", rows[2])
	}
}

type failingSink struct{ calls int }

func (f *failingSink) Record(context.Context, Event) error { f.calls++; return errors.New("down") }
func (f *failingSink) Close() error                        { return nil }

type memSink struct{ events []Event }

func (m *memSink) Record(_ context.Context, e Event) error {
	m.events = append(m.events, e)
	return nil
}
func (m *memSink) Close() error { return nil }

func TestMulti_ContinuesPastFailures(t *testing.T) {
	bad := &failingSink{}
	good := &memSink{}
	m := Multi{bad, good, Discard{}}

	err := m.Record(context.Background(), Event{Type: EventReject})
	if err == nil {
		t.Fatal("expected joined error")
	}
	if bad.calls != 1 || len(good.events) != 1 {
		t.Errorf("all sinks should be attempted: bad=%d good=%d", bad.calls, len(good.events))
	}
}

func TestFillEvent(t *testing.T) {
	r := model.ExecutionReport{
		OrderID: 3, Symbol: "ACME", Side: model.Sell, Status: model.StatusPartiallyFilled,
		FilledQuantity: 5, AvgPrice: decimal.NewFromInt(11), Timestamp: t0, Account: "bob",
	}
	e := FillEvent(r)
	if e.Type != EventFill || e.Quantity != 5 || !e.Price.Equal(decimal.NewFromInt(11)) || e.Info != "PARTIALLY_FILLED" {
		t.Errorf("fill event: %+v", e)
	}
}
