// Package kafka publishes audit events to a Kafka topic.
package kafka

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"exchange-simv1/internal/audit"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer is an audit.Sink that writes each event as one message keyed
// by order id, so every event for an order lands on the same partition.
type Producer struct {
	writer messageWriter
	topic  string
}

// NewProducer creates a synchronous producer that waits for all
// in-sync replicas.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
		topic: topic,
	}
}

// Record sends e to the topic.
func (p *Producer) Record(ctx context.Context, e audit.Event) error {
	msg := kafka.Message{
		Key:   []byte(strconv.FormatUint(e.OrderID, 10)),
		Value: e.JSON(),
		Time:  e.TS,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(e.Type)},
			{Key: "symbol", Value: []byte(e.Symbol)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
