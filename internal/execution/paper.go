package execution

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"exchange-simv1/internal/model"

	"github.com/shopspring/decimal"
)

// PaperConfig configures the probabilistic venue.
type PaperConfig struct {
	PFill    float64 `yaml:"p_fill"`
	PPartial float64 `yaml:"p_partial"`
	Seed     int64   `yaml:"seed"` // 0 = seed from the clock
}

// DefaultPaperConfig returns the default fill probabilities.
func DefaultPaperConfig() PaperConfig {
	return PaperConfig{PFill: 0.6, PPartial: 0.25}
}

// PaperVenue is an execution oracle with no resting book. Each order is
// resolved by a single uniform draw:
//
//	r < PFill                         FILLED at the limit price
//	r < PFill+PPartial and qty > 1    PARTIALLY_FILLED, qty uniform in [1, qty-1]
//	otherwise                         CANCELLED with nothing filled
type PaperVenue struct {
	mu      sync.Mutex
	cfg     PaperConfig
	rng     *rand.Rand
	reports []model.ExecutionReport
}

// NewPaperVenue creates a paper venue.
func NewPaperVenue(cfg PaperConfig) *PaperVenue {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &PaperVenue{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(seed)),
		reports: make([]model.ExecutionReport, 0, 1000),
	}
}

// Process resolves o and returns its report. A zero ts uses o's timestamp.
func (p *PaperVenue) Process(o *model.Order, ts time.Time) model.ExecutionReport {
	if ts.IsZero() {
		ts = o.Timestamp
	}

	p.mu.Lock()
	r := p.rng.Float64()

	status := model.StatusCancelled
	filled := int64(0)
	switch {
	case r < p.cfg.PFill:
		status = model.StatusFilled
		filled = o.Quantity
	case r < p.cfg.PFill+p.cfg.PPartial && o.Quantity > 1:
		status = model.StatusPartiallyFilled
		filled = 1 + p.rng.Int63n(o.Quantity-1)
	}

	avg := decimal.Zero
	if filled > 0 {
		avg = o.Price
	}

	rep := model.ExecutionReport{
		OrderID:           o.ID,
		Symbol:            o.Symbol,
		Side:              o.Side,
		Status:            status,
		FilledQuantity:    filled,
		RemainingQuantity: o.Quantity - filled,
		AvgPrice:          avg,
		Timestamp:         ts,
		Account:           o.Account,
	}
	p.reports = append(p.reports, rep)
	p.mu.Unlock()

	slog.Debug("paper execution",
		slog.Uint64("order_id", o.ID),
		slog.String("symbol", o.Symbol),
		slog.String("side", string(o.Side)),
		slog.String("status", string(status)),
		slog.Int64("filled", filled),
	)
	return rep
}

// Execute implements Executor.
func (p *PaperVenue) Execute(ctx context.Context, o *model.Order) ([]model.ExecutionReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []model.ExecutionReport{p.Process(o, time.Time{})}, nil
}

// Reports returns a snapshot of every report produced so far.
func (p *PaperVenue) Reports() []model.ExecutionReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]model.ExecutionReport, len(p.reports))
	copy(cp, p.reports)
	return cp
}
