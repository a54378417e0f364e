// Package feed loads historical bars and hands them out one at a time in
// timestamp order.
package feed

import (
	"fmt"
	"sort"

	"exchange-simv1/internal/model"
)

// Source is a cursor over bars sorted by timestamp. It is not safe for
// concurrent use.
type Source struct {
	bars   []model.Bar
	cursor int
}

// NewSource copies bars and sorts them by timestamp.
func NewSource(bars []model.Bar) *Source {
	cp := make([]model.Bar, len(bars))
	copy(cp, bars)
	sort.SliceStable(cp, func(i, j int) bool { return cp[i].TS.Before(cp[j].TS) })
	return &Source{bars: cp}
}

// LoadStore reads symbol's bars after afterTS (unix seconds) from r.
func LoadStore(r model.BarReader, symbol string, afterTS int64) (*Source, error) {
	bars, err := r.ReadBars(symbol, afterTS)
	if err != nil {
		return nil, fmt.Errorf("load %s bars: %w", symbol, err)
	}
	return NewSource(bars), nil
}

// Reset rewinds the cursor to the first bar.
func (s *Source) Reset() { s.cursor = 0 }

// Next returns the next bar, or false once the source is exhausted.
func (s *Source) Next() (model.Bar, bool) {
	if s.cursor >= len(s.bars) {
		return model.Bar{}, false
	}
	b := s.bars[s.cursor]
	s.cursor++
	return b, true
}

// Bars returns every bar in order. The slice must not be modified.
func (s *Source) Bars() []model.Bar { return s.bars }

// Len returns the number of bars.
func (s *Source) Len() int { return len(s.bars) }
