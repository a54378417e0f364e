package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"exchange-simv1/internal/audit"
	"exchange-simv1/internal/model"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

type captureWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (c *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, msgs...)
	return nil
}

func (c *captureWriter) Close() error {
	c.closed = true
	return nil
}

func TestProducer_Record(t *testing.T) {
	cw := &captureWriter{}
	p := &Producer{writer: cw, topic: "audit"}

	e := audit.Event{
		TS:       time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC),
		Type:     audit.EventFill,
		OrderID:  42,
		Symbol:   "ACME",
		Side:     model.Buy,
		Price:    decimal.RequireFromString("101.5"),
		Quantity: 7,
		Info:     "FILLED",
	}
	if err := p.Record(context.Background(), e); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(cw.msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(cw.msgs))
	}
	msg := cw.msgs[0]
	if string(msg.Key) != "42" {
		t.Errorf("key %q, want 42", msg.Key)
	}

	var got audit.Event
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("decode value: %v", err)
	}
	if got.OrderID != 42 || got.Type != audit.EventFill || !got.Price.Equal(e.Price) {
		t.Errorf("decoded %+v", got)
	}
	if len(msg.Headers) != 2 || string(msg.Headers[0].Value) != "FILL" {
		t.Errorf("headers %+v", msg.Headers)
	}

	if err := p.Close(); err != nil || !cw.closed {
		t.Errorf("Close: err=%v closed=%v", err, cw.closed)
	}
}

func TestProducer_RecordError(t *testing.T) {
	p := &Producer{writer: &captureWriter{err: errors.New("broker down")}, topic: "audit"}
	err := p.Record(context.Background(), audit.Event{OrderID: 1})
	if err == nil {
		t.Fatal("expected error")
	}
}
