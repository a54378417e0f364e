package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"exchange-simv1/internal/model"

	"github.com/shopspring/decimal"
)

// Column names expected in the CSV header. Extra columns are ignored.
var csvColumns = []string{"Datetime", "Open", "High", "Low", "Close", "Volume"}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ErrMissingColumn is returned when the header lacks a required column.
var ErrMissingColumn = errors.New("csv: missing column")

// CleanStats counts what the loader dropped.
type CleanStats struct {
	Rows       int // data rows read, header excluded
	Missing    int // rows with an empty or unparseable field
	Duplicates int // rows whose timestamp was already seen
}

// Kept returns the number of rows that survived cleaning.
func (s CleanStats) Kept() int { return s.Rows - s.Missing - s.Duplicates }

// LoadCSV reads and cleans a bar file for symbol.
func LoadCSV(path, symbol string) (*Source, CleanStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, CleanStats{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	bars, stats, err := ReadCSV(f, symbol)
	if err != nil {
		return nil, stats, fmt.Errorf("%s: %w", path, err)
	}
	return NewSource(bars), stats, nil
}

// ReadCSV parses Datetime,Open,High,Low,Close,Volume rows. Rows with a
// missing field are dropped, and so are rows repeating an earlier
// timestamp (the first one wins). The result is not sorted.
func ReadCSV(r io.Reader, symbol string) ([]model.Bar, CleanStats, error) {
	var stats CleanStats

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, stats, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.TrimSpace(h)] = i
	}
	cols := make([]int, len(csvColumns))
	for i, name := range csvColumns {
		c, ok := idx[name]
		if !ok {
			return nil, stats, fmt.Errorf("%w %q", ErrMissingColumn, name)
		}
		cols[i] = c
	}

	seen := make(map[int64]struct{})
	var bars []model.Bar
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, stats, fmt.Errorf("line %d: %w", stats.Rows+2, err)
		}
		stats.Rows++

		b, ok := parseRow(rec, cols, symbol)
		if !ok {
			stats.Missing++
			continue
		}
		key := b.TS.UnixNano()
		if _, dup := seen[key]; dup {
			stats.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		bars = append(bars, b)
	}
	return bars, stats, nil
}

func parseRow(rec []string, cols []int, symbol string) (model.Bar, bool) {
	field := func(i int) (string, bool) {
		if cols[i] >= len(rec) {
			return "", false
		}
		v := strings.TrimSpace(rec[cols[i]])
		if v == "" || strings.EqualFold(v, "nan") {
			return "", false
		}
		return v, true
	}

	var b model.Bar
	b.Symbol = symbol

	raw, ok := field(0)
	if !ok {
		return b, false
	}
	if b.TS, ok = parseTime(raw); !ok {
		return b, false
	}

	prices := []*decimal.Decimal{&b.Open, &b.High, &b.Low, &b.Close}
	for i, dst := range prices {
		v, ok := field(i + 1)
		if !ok {
			return b, false
		}
		d, err := decimal.NewFromString(v)
		if err != nil {
			return b, false
		}
		*dst = d
	}

	v, ok := field(5)
	if !ok {
		return b, false
	}
	vol, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return b, false
	}
	b.Volume = int64(vol)
	return b, true
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
