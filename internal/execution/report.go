package execution

import (
	"time"

	"exchange-simv1/internal/model"

	"github.com/shopspring/decimal"
)

// ReportsForAdd builds the reports produced by submitting in to the book.
//
// The first report covers the incoming order: its quantity matched by this
// submission at the volume-weighted price. Then one report per resting order
// that traded, in trade order, taking status from that order's post-trade
// state in resting. Filled quantities are per submission so that applying
// each report to a ledger books every trade exactly once.
//
// No trades means no reports: an unmatched order simply rests.
func ReportsForAdd(in model.Order, trades []model.Trade, resting map[uint64]model.Order) []model.ExecutionReport {
	if len(trades) == 0 {
		return nil
	}

	type agg struct {
		qty      int64
		notional decimal.Decimal
		last     time.Time
	}
	var (
		self  agg
		order []uint64
		byID  = make(map[uint64]*agg)
	)
	for _, t := range trades {
		n := t.Notional()
		self.qty += t.Quantity
		self.notional = self.notional.Add(n)
		self.last = t.Timestamp

		counter := t.SellOrderID
		if in.Side == model.Sell {
			counter = t.BuyOrderID
		}
		a, ok := byID[counter]
		if !ok {
			a = &agg{}
			byID[counter] = a
			order = append(order, counter)
		}
		a.qty += t.Quantity
		a.notional = a.notional.Add(n)
		a.last = t.Timestamp
	}

	reports := make([]model.ExecutionReport, 0, 1+len(order))
	reports = append(reports, model.ExecutionReport{
		OrderID:           in.ID,
		Symbol:            in.Symbol,
		Side:              in.Side,
		Status:            fillStatus(in.Remaining),
		FilledQuantity:    self.qty,
		RemainingQuantity: in.Remaining,
		AvgPrice:          vwap(self.notional, self.qty),
		Timestamp:         self.last,
		Account:           in.Account,
	})

	for _, id := range order {
		a := byID[id]
		r, ok := resting[id]
		if !ok {
			continue
		}
		reports = append(reports, model.ExecutionReport{
			OrderID:           id,
			Symbol:            r.Symbol,
			Side:              r.Side,
			Status:            fillStatus(r.Remaining),
			FilledQuantity:    a.qty,
			RemainingQuantity: r.Remaining,
			AvgPrice:          vwap(a.notional, a.qty),
			Timestamp:         a.last,
			Account:           r.Account,
		})
	}
	return reports
}

// CancelledReport builds the report for an order withdrawn from the book.
// o is the order as it was just before cancellation. Like the fill reports,
// quantities describe this event only: a cancel executes nothing, so filled
// quantity and average price are zero even if earlier fills were reported.
func CancelledReport(o model.Order, ts time.Time) model.ExecutionReport {
	return model.ExecutionReport{
		OrderID:           o.ID,
		Symbol:            o.Symbol,
		Side:              o.Side,
		Status:            model.StatusCancelled,
		FilledQuantity:    0,
		RemainingQuantity: 0,
		AvgPrice:          decimal.Zero,
		Timestamp:         ts,
		Account:           o.Account,
	}
}

func fillStatus(remaining int64) model.ExecStatus {
	if remaining == 0 {
		return model.StatusFilled
	}
	return model.StatusPartiallyFilled
}

func vwap(notional decimal.Decimal, qty int64) decimal.Decimal {
	if qty == 0 {
		return decimal.Zero
	}
	return notional.Div(decimal.NewFromInt(qty))
}
