// Package execution turns matching outcomes into execution reports and
// provides the probabilistic paper venue used as an alternative to the book.
package execution

import (
	"context"
	"fmt"
	"time"

	"exchange-simv1/internal/model"
)

// Executor sends an admitted order to a venue. It returns every report the
// venue produced: the order's own report first, then any counterparty reports.
type Executor interface {
	Execute(ctx context.Context, o *model.Order) ([]model.ExecutionReport, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, o *model.Order) ([]model.ExecutionReport, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, o *model.Order) ([]model.ExecutionReport, error) {
	return f(ctx, o)
}

// RejectedError reports that admission control refused an order.
type RejectedError struct {
	OrderID uint64
	Reason  string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("order %d rejected: %s", e.OrderID, e.Reason)
}

// Admitter is the admission side of an order manager.
type Admitter interface {
	ValidateOrder(o *model.Order, now time.Time) (bool, string)
	OnExecution(r model.ExecutionReport)
}

// Guarded runs every order through adm before next, then books the
// reports for o's own account back into adm. Counterparty reports are
// returned but not applied.
func Guarded(adm Admitter, next Executor) Executor {
	return ExecutorFunc(func(ctx context.Context, o *model.Order) ([]model.ExecutionReport, error) {
		if ok, reason := adm.ValidateOrder(o, o.Timestamp); !ok {
			return nil, &RejectedError{OrderID: o.ID, Reason: reason}
		}
		reports, err := next.Execute(ctx, o)
		if err != nil {
			return nil, err
		}
		for _, r := range reports {
			if r.OrderID == o.ID {
				adm.OnExecution(r)
			}
		}
		return reports, nil
	})
}
