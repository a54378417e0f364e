package strategy

import (
	"fmt"

	"exchange-simv1/internal/model"
)

// TrendMomentum goes long when the short SMA is above the long SMA and
// compounded momentum is positive, short when both point down, and flat
// otherwise. The position held on a bar is the signal computed on the
// previous bar, so a decision never uses the bar it trades on.
type TrendMomentum struct {
	name     string
	shortWin int
	longWin  int
	momWin   int
	unitQty  int64

	shortBuf []float64
	longBuf  []float64
	shortSum float64
	longSum  float64
	count    int

	factors []float64 // ring of (1 + return)
	nRet    int
	prevC   float64

	prevSignal int
	position   int
	equity     float64
}

// TrendMomentumConfig holds the strategy parameters.
type TrendMomentumConfig struct {
	ShortWindow int   `yaml:"short_window"`
	LongWindow  int   `yaml:"long_window"`
	MomLookback int   `yaml:"mom_lookback"`
	UnitQty     int64 `yaml:"unit_qty"`
}

// DefaultTrendMomentumConfig returns 20/60 SMAs with a 30-bar momentum
// lookback, trading 10 units per position step.
func DefaultTrendMomentumConfig() TrendMomentumConfig {
	return TrendMomentumConfig{ShortWindow: 20, LongWindow: 60, MomLookback: 30, UnitQty: 10}
}

// NewTrendMomentum creates the strategy.
func NewTrendMomentum(cfg TrendMomentumConfig) (*TrendMomentum, error) {
	if cfg.ShortWindow <= 0 || cfg.LongWindow <= 0 || cfg.MomLookback <= 0 {
		return nil, fmt.Errorf("trend momentum: windows must be positive, got %d/%d/%d",
			cfg.ShortWindow, cfg.LongWindow, cfg.MomLookback)
	}
	if cfg.UnitQty <= 0 {
		return nil, fmt.Errorf("trend momentum: unit quantity must be positive, got %d", cfg.UnitQty)
	}
	return &TrendMomentum{
		name:     "TrendMomentum",
		shortWin: cfg.ShortWindow,
		longWin:  cfg.LongWindow,
		momWin:   cfg.MomLookback,
		unitQty:  cfg.UnitQty,
		shortBuf: make([]float64, cfg.ShortWindow),
		longBuf:  make([]float64, cfg.LongWindow),
		factors:  make([]float64, cfg.MomLookback),
		equity:   1,
	}, nil
}

func (s *TrendMomentum) Name() string { return s.name }

// Position returns the position held on the last bar: -1, 0 or +1.
func (s *TrendMomentum) Position() int { return s.position }

// Equity returns the compounded strategy return curve value, starting at 1.
func (s *TrendMomentum) Equity() float64 { return s.equity }

func (s *TrendMomentum) OnBar(bar model.Bar) Signal {
	c := bar.Close.InexactFloat64()

	var ret float64
	haveRet := s.count > 0 && s.prevC != 0
	if haveRet {
		ret = c/s.prevC - 1
		s.factors[s.nRet%s.momWin] = 1 + ret
		s.nRet++
	}
	s.prevC = c

	s.shortSum -= s.shortBuf[s.count%s.shortWin]
	s.shortBuf[s.count%s.shortWin] = c
	s.shortSum += c
	s.longSum -= s.longBuf[s.count%s.longWin]
	s.longBuf[s.count%s.longWin] = c
	s.longSum += c
	s.count++

	prevPos := s.position
	s.position = s.prevSignal
	if haveRet {
		s.equity *= 1 + float64(s.position)*ret
	}
	s.prevSignal = s.signal()

	sig := Signal{
		StrategyName: s.name,
		Action:       ActionHold,
		Symbol:       bar.Symbol,
		Price:        bar.Close,
		Position:     s.position,
		TS:           bar.TS,
	}
	delta := s.position - prevPos
	switch {
	case delta > 0:
		sig.Action = ActionBuy
		sig.Qty = int64(delta) * s.unitQty
	case delta < 0:
		sig.Action = ActionSell
		sig.Qty = int64(-delta) * s.unitQty
	}
	if sig.Action != ActionHold {
		sig.Reason = fmt.Sprintf("position %+d -> %+d", prevPos, s.position)
	}
	return sig
}

// signal evaluates the current bar. Before both SMAs and the momentum
// window are full it is 0.
func (s *TrendMomentum) signal() int {
	if s.count < s.longWin || s.count < s.shortWin || s.nRet < s.momWin {
		return 0
	}
	shortSMA := s.shortSum / float64(s.shortWin)
	longSMA := s.longSum / float64(s.longWin)

	mom := 1.0
	for _, f := range s.factors {
		mom *= f
	}
	mom -= 1

	switch {
	case shortSMA > longSMA && mom > 0:
		return 1
	case shortSMA < longSMA && mom < 0:
		return -1
	default:
		return 0
	}
}
