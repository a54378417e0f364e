// cmd/backtest replays historical bars through the trend/momentum strategy
// and executes its signals against the order book or the paper venue.
//
// Usage:
//
//	go run ./cmd/backtest --csv=data/ACME.csv --symbol=ACME --venue=book
//	go run ./cmd/backtest --csv=data/ACME.csv --import=data/bars.db
//	go run ./cmd/backtest --db=data/bars.db --symbol=ACME --venue=paper
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"exchange-simv1/config"
	"exchange-simv1/internal/audit"
	"exchange-simv1/internal/engine"
	"exchange-simv1/internal/execution"
	"exchange-simv1/internal/logger"
	"exchange-simv1/internal/marketdata/feed"
	"exchange-simv1/internal/model"
	"exchange-simv1/internal/ordermanager"
	sqlitestore "exchange-simv1/internal/store/sqlite"
	"exchange-simv1/internal/strategy"

	"github.com/shopspring/decimal"
)

const account = "backtest"

func main() {
	csvPath := flag.String("csv", "", "CSV file with Datetime,Open,High,Low,Close,Volume columns")
	dbPath := flag.String("db", "", "SQLite bar store to read from when --csv is not set")
	importPath := flag.String("import", "", "Write the cleaned CSV bars to this SQLite store and exit")
	symbol := flag.String("symbol", "ACME", "Symbol the bars belong to")
	fromTS := flag.Int64("from", 0, "Unix timestamp to start from when reading --db (0=all)")
	venue := flag.String("venue", "book", "Execution venue: book or paper")
	speed := flag.Float64("speed", 0, "Playback speed multiplier (0=max, 1=realtime)")
	auditPath := flag.String("audit", "", "Audit CSV for book venue events (empty=off)")
	shortW := flag.Int("short", 20, "Short SMA window")
	longW := flag.Int("long", 60, "Long SMA window")
	mom := flag.Int("mom", 30, "Momentum lookback")
	unit := flag.Int64("unit", 10, "Quantity per unit of position change")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log, closer := logger.Init("backtest", logger.ParseLevel(cfg.LogLevel), logger.Options{File: cfg.LogFile})
	defer closer.Close()

	// ---- Load bars ----
	src, err := loadBars(*csvPath, *dbPath, *symbol, *fromTS)
	if err != nil {
		log.Error("load bars", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if *importPath != "" {
		w, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: *importPath})
		if err != nil {
			log.Error("open bar store", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer w.Close()
		if err := w.WriteBars(src.Bars()); err != nil {
			log.Error("import bars", slog.String("error", err.Error()))
			os.Exit(1)
		}
		log.Info("bars imported", slog.Int("bars", src.Len()), slog.String("db", *importPath))
		return
	}

	// ---- Strategy ----
	strat, err := strategy.NewTrendMomentum(strategy.TrendMomentumConfig{
		ShortWindow: *shortW,
		LongWindow:  *longW,
		MomLookback: *mom,
		UnitQty:     *unit,
	})
	if err != nil {
		log.Error("strategy config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	strats := strategy.NewEngine(src.Len() + 1)
	strats.Register(strat)

	// ---- Venue ----
	limits := ordermanager.Limits{
		MaxOrdersPerMinute: cfg.MaxOrdersPerMinute,
		MaxLongPosition:    cfg.MaxLongPosition,
		MaxShortPosition:   cfg.MaxShortPosition,
	}
	var run *runner
	switch *venue {
	case "book":
		run, err = newBookRunner(*symbol, limits, cfg.StartingCash, *auditPath)
	case "paper":
		run = newPaperRunner(limits, cfg.StartingCash, execution.PaperConfig{
			PFill:    cfg.PaperFillProb,
			PPartial: cfg.PaperPartialProb,
			Seed:     cfg.PaperSeed,
		})
	default:
		err = fmt.Errorf("unknown venue %q", *venue)
	}
	if err != nil {
		log.Error("venue init", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer run.close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ---- Replay -> strategy -> venue ----
	barCh := make(chan model.Bar, 1024)
	go func() {
		defer close(barCh)
		if _, err := feed.NewReplayer(src).Run(ctx, *speed, barCh); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("replay stopped", slog.String("error", err.Error()))
		}
	}()
	go strats.Run(ctx, barCh)

	for sig := range strats.Signals() {
		run.execute(ctx, sig)
	}

	var mark decimal.Decimal
	if bars := src.Bars(); len(bars) > 0 {
		mark = bars[len(bars)-1].Close
	}
	run.summary(os.Stdout, *venue, *symbol, mark, strat.Equity(), strats.Dropped())
}

func loadBars(csvPath, dbPath, symbol string, fromTS int64) (*feed.Source, error) {
	switch {
	case csvPath != "":
		src, stats, err := feed.LoadCSV(csvPath, symbol)
		if err != nil {
			return nil, err
		}
		slog.Info("csv loaded",
			slog.Int("rows", stats.Rows),
			slog.Int("missing", stats.Missing),
			slog.Int("duplicates", stats.Duplicates),
			slog.Int("kept", stats.Kept()),
		)
		return src, nil
	case dbPath != "":
		r, err := sqlitestore.NewReader(dbPath)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return feed.LoadStore(r, symbol, fromTS)
	}
	return nil, errors.New("one of --csv or --db is required")
}

// runner executes signals on one venue and keeps the tallies for the
// summary.
type runner struct {
	exec    execution.Executor
	ledger  func() (cash, realized decimal.Decimal, positions []model.Position)
	before  func(ctx context.Context, sig strategy.Signal) // posts liquidity
	after   func(ctx context.Context)                      // withdraws leftovers
	closeFn func() error

	orders  int
	fills   int
	filled  int64
	rejects map[string]int
}

func newBookRunner(symbol string, limits ordermanager.Limits, cash decimal.Decimal, auditPath string) (*runner, error) {
	var sink audit.Sink = audit.Discard{}
	if auditPath != "" {
		s, err := audit.NewCSVSink(auditPath)
		if err != nil {
			return nil, err
		}
		sink = s
	}
	var clock time.Time
	eng, err := engine.New(engine.Config{
		Symbols:      []string{symbol},
		Limits:       limits,
		StartingCash: cash,
		Clock:        func() time.Time { return clock },
	}, sink, nil)
	if err != nil {
		return nil, err
	}

	// House liquidity rests at the signal price on the opposite side so a
	// marketable strategy order always has something to hit.
	var house []uint64
	return &runner{
		exec: eng.Executor(),
		ledger: func() (decimal.Decimal, decimal.Decimal, []model.Position) {
			snap, ok := eng.Account(account)
			if !ok {
				return cash, decimal.Zero, nil
			}
			return snap.Cash, snap.RealizedPnL, snap.Positions
		},
		before: func(ctx context.Context, sig strategy.Signal) {
			clock = sig.TS
			side, _ := sig.Action.Side()
			res, err := eng.Submit(ctx, engine.Request{
				Symbol:   sig.Symbol,
				Side:     side.Opposite(),
				Price:    sig.Price,
				Quantity: sig.Qty,
			})
			if err == nil && res.Order.Remaining > 0 {
				house = append(house, res.Order.ID)
			}
		},
		after: func(ctx context.Context) {
			for _, id := range house {
				// Already-filled ids return ErrOrderNotFound.
				eng.Cancel(ctx, symbol, id)
			}
			house = house[:0]
		},
		closeFn: eng.Close,
		rejects: make(map[string]int),
	}, nil
}

func newPaperRunner(limits ordermanager.Limits, cash decimal.Decimal, pcfg execution.PaperConfig) *runner {
	mgr := ordermanager.New(limits, nil, cash)
	return &runner{
		exec: execution.Guarded(mgr, execution.NewPaperVenue(pcfg)),
		ledger: func() (decimal.Decimal, decimal.Decimal, []model.Position) {
			l := mgr.Ledger()
			return l.Cash(), l.RealizedPnL(), l.Positions()
		},
		closeFn: func() error { return nil },
		rejects: make(map[string]int),
	}
}

func (r *runner) execute(ctx context.Context, sig strategy.Signal) {
	side, ok := sig.Action.Side()
	if !ok || sig.Qty <= 0 {
		return
	}
	if r.before != nil {
		r.before(ctx, sig)
	}
	if r.after != nil {
		defer r.after(ctx)
	}

	r.orders++
	o := &model.Order{
		ID:        uint64(r.orders),
		Account:   account,
		Symbol:    sig.Symbol,
		Side:      side,
		Price:     sig.Price,
		Quantity:  sig.Qty,
		Remaining: sig.Qty,
		Timestamp: sig.TS,
		Active:    true,
	}
	reports, err := r.exec.Execute(ctx, o)
	var rej *execution.RejectedError
	switch {
	case errors.As(err, &rej):
		r.rejects[rej.Reason]++
		return
	case err != nil:
		slog.Warn("execute failed", slog.String("error", err.Error()))
		return
	}
	for _, rep := range reports {
		if rep.OrderID == o.ID && rep.HasFill() {
			r.fills++
			r.filled += rep.FilledQuantity
		}
	}
}

func (r *runner) close() {
	if err := r.closeFn(); err != nil {
		slog.Warn("close venue", slog.String("error", err.Error()))
	}
}

func (r *runner) summary(w io.Writer, venue, symbol string, mark decimal.Decimal, stratEquity float64, dropped int64) {
	cash, realized, positions := r.ledger()
	equity := cash
	for _, p := range positions {
		if p.Symbol == symbol {
			equity = equity.Add(p.MarketValue(mark))
		}
	}

	fmt.Fprintf(w, "venue:            %s\n", venue)
	fmt.Fprintf(w, "orders:           %d\n", r.orders)
	fmt.Fprintf(w, "fills:            %d (%d shares)\n", r.fills, r.filled)
	reasons := make([]string, 0, len(r.rejects))
	for reason := range r.rejects {
		reasons = append(reasons, reason)
	}
	sort.Strings(reasons)
	for _, reason := range reasons {
		fmt.Fprintf(w, "rejected:         %d (%s)\n", r.rejects[reason], reason)
	}
	fmt.Fprintf(w, "cash:             %s\n", cash.StringFixed(2))
	for _, p := range positions {
		fmt.Fprintf(w, "position:         %s %d\n", p.Symbol, p.Qty)
	}
	fmt.Fprintf(w, "realized pnl:     %s\n", realized.StringFixed(2))
	fmt.Fprintf(w, "equity @ %s:  %s\n", mark.StringFixed(2), equity.StringFixed(2))
	fmt.Fprintf(w, "strategy equity:  %.4f\n", stratEquity)
	if dropped > 0 {
		fmt.Fprintf(w, "dropped signals:  %d\n", dropped)
	}
}
