package feed

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"exchange-simv1/internal/model"
	sqlitestore "exchange-simv1/internal/store/sqlite"

	"github.com/shopspring/decimal"
)

const sample = `Datetime,Open,High,Low,Close,Volume
,TSLA,TSLA,TSLA,TSLA,TSLA
2024-03-01 09:32:00-05:00,201.0,202.0,200.5,201.5,1200
2024-03-01 09:30:00-05:00,200.0,200.8,199.5,200.5,1500
2024-03-01 09:31:00-05:00,200.5,201.2,200.1,201.0,900
2024-03-01 09:31:00-05:00,999,999,999,999,1
2024-03-01 09:33:00-05:00,201.5,,201.0,201.2,800
2024-03-01 09:34:00-05:00,201.2,201.9,201.0,NaN,700
`

func TestReadCSV_Cleaning(t *testing.T) {
	bars, stats, err := ReadCSV(strings.NewReader(sample), "TSLA")
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}
	if stats.Rows != 7 || stats.Missing != 3 || stats.Duplicates != 1 || stats.Kept() != 3 {
		t.Errorf("stats %+v", stats)
	}
	if len(bars) != 3 {
		t.Fatalf("got %d bars, want 3", len(bars))
	}
	// First 09:31 row wins.
	for _, b := range bars {
		if b.TS.Minute() == 31 && !b.Close.Equal(decimal.RequireFromString("201.0")) {
			t.Errorf("duplicate kept the wrong row: %+v", b)
		}
	}

	src := NewSource(bars)
	var prev time.Time
	for {
		b, ok := src.Next()
		if !ok {
			break
		}
		if b.Symbol != "TSLA" {
			t.Errorf("symbol %q", b.Symbol)
		}
		if !prev.IsZero() && !b.TS.After(prev) {
			t.Errorf("bars not ascending: %v after %v", b.TS, prev)
		}
		prev = b.TS
	}
	if first := src.Bars()[0]; !first.TS.Equal(time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)) || first.Volume != 1500 {
		t.Errorf("first bar %+v", first)
	}
}

func TestReadCSV_MissingColumn(t *testing.T) {
	_, _, err := ReadCSV(strings.NewReader("Datetime,Open,High,Low,Close\n"), "X")
	if !errors.Is(err, ErrMissingColumn) {
		t.Fatalf("got %v, want ErrMissingColumn", err)
	}
}

func TestSource_ResetAndExhaustion(t *testing.T) {
	src := NewSource([]model.Bar{{TS: time.Unix(2, 0)}, {TS: time.Unix(1, 0)}})
	a, _ := src.Next()
	src.Next()
	if _, ok := src.Next(); ok {
		t.Fatal("expected exhausted source")
	}
	src.Reset()
	b, ok := src.Next()
	if !ok || b.TS != a.TS || a.TS != time.Unix(1, 0) {
		t.Errorf("after reset got %v, want first bar %v", b.TS, a.TS)
	}
}

func TestLoadStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.db")
	w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: path})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer w.Close()

	one := decimal.NewFromInt(1)
	in := []model.Bar{
		{Symbol: "ACME", TS: time.Unix(200, 0).UTC(), Open: one, High: one, Low: one, Close: one, Volume: 1},
		{Symbol: "ACME", TS: time.Unix(100, 0).UTC(), Open: one, High: one, Low: one, Close: one, Volume: 2},
	}
	if err := w.WriteBars(in); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	r, err := sqlitestore.NewReader(path)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	src, err := LoadStore(r, "ACME", 0)
	if err != nil {
		t.Fatalf("LoadStore: %v", err)
	}
	if src.Len() != 2 || src.Bars()[0].Volume != 2 {
		t.Errorf("bars %+v", src.Bars())
	}
}

func TestReplayer_Run(t *testing.T) {
	var bars []model.Bar
	for i := 0; i < 5; i++ {
		bars = append(bars, model.Bar{TS: time.Unix(int64(i*60), 0)})
	}
	r := NewReplayer(NewSource(bars))

	out := make(chan model.Bar, 5)
	n, err := r.Run(context.Background(), 0, out)
	if err != nil || n != 5 {
		t.Fatalf("Run = %d, %v", n, err)
	}
	close(out)
	i := 0
	for b := range out {
		if b.TS != bars[i].TS {
			t.Errorf("bar %d out of order", i)
		}
		i++
	}
}

func TestReplayer_Cancelled(t *testing.T) {
	bars := []model.Bar{{TS: time.Unix(0, 0)}, {TS: time.Unix(3600, 0)}}
	r := NewReplayer(NewSource(bars))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out := make(chan model.Bar, 2)
	n, err := r.Run(ctx, 1, out)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err %v, want deadline exceeded", err)
	}
	if n != 1 {
		t.Errorf("emitted %d before cancellation, want 1", n)
	}
}
