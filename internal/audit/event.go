// Package audit defines the append-only order lifecycle log and its sinks.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"exchange-simv1/internal/model"

	"github.com/shopspring/decimal"
)

// EventType is the lifecycle step an Event records.
type EventType string

const (
	EventNew    EventType = "NEW"
	EventCancel EventType = "CANCEL"
	EventModify EventType = "MODIFY"
	EventFill   EventType = "FILL"
	EventReject EventType = "REJECT"
)

// Event is one audit record. Records are written once and never rewritten.
type Event struct {
	TS       time.Time       `json:"ts"`
	Type     EventType       `json:"event_type"`
	OrderID  uint64          `json:"order_id"`
	Symbol   string          `json:"symbol"`
	Side     model.Side      `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
	Info     string          `json:"info"`
	Account  string          `json:"account,omitempty"`
}

// OrderEvent builds an event for o.
func OrderEvent(typ EventType, o *model.Order, ts time.Time, info string) Event {
	return Event{
		TS:       ts,
		Type:     typ,
		OrderID:  o.ID,
		Symbol:   o.Symbol,
		Side:     o.Side,
		Price:    o.Price,
		Quantity: o.Quantity,
		Info:     info,
		Account:  o.Account,
	}
}

// FillEvent builds an event for an execution report that carries a fill.
func FillEvent(r model.ExecutionReport) Event {
	return Event{
		TS:       r.Timestamp,
		Type:     EventFill,
		OrderID:  r.OrderID,
		Symbol:   r.Symbol,
		Side:     r.Side,
		Price:    r.AvgPrice,
		Quantity: r.FilledQuantity,
		Info:     string(r.Status),
		Account:  r.Account,
	}
}

// TSString returns the event time in ISO-8601.
func (e Event) TSString() string {
	return e.TS.UTC().Format(time.RFC3339Nano)
}

// JSON returns the JSON-encoded event (ignoring errors for hot-path usage).
func (e Event) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Sink receives audit events.
type Sink interface {
	Record(ctx context.Context, e Event) error
	Close() error
}

// Multi fans each event out to every sink. All sinks are attempted; the
// returned error joins the individual failures.
type Multi []Sink

// Record writes e to every sink.
func (m Multi) Record(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink.
func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Record(context.Context, Event) error { return nil }
func (Discard) Close() error                        { return nil }
