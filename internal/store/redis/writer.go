package redis

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"exchange-simv1/internal/audit"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultStream       = "audit:events"
	defaultStreamMaxLen = 100000
	lastEventTTL        = 24 * time.Hour
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	Stream   string // stream key, default "audit:events"
	MaxLen   int64  // approximate stream cap, default 100000
}

// Writer appends audit events to a Redis Stream and publishes them
// on a per-symbol channel for live subscribers.
type Writer struct {
	client *goredis.Client
	stream string
	maxLen int64
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	w := &Writer{client: client, stream: cfg.Stream, maxLen: cfg.MaxLen}
	if w.stream == "" {
		w.stream = defaultStream
	}
	if w.maxLen <= 0 {
		w.maxLen = defaultStreamMaxLen
	}
	log.Printf("[redis] connected to %s, audit stream %s", cfg.Addr, w.stream)
	return w, nil
}

// Stream returns the stream key events are appended to.
func (w *Writer) Stream() string { return w.stream }

// WriteEvent appends e to the audit stream, records it as the order's
// latest event and publishes it on pub:audit:{symbol}. The three
// commands go out in one pipeline.
func (w *Writer) WriteEvent(ctx context.Context, e audit.Event) error {
	data := e.JSON()

	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: w.stream,
		MaxLen: w.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"type":     string(e.Type),
			"order_id": strconv.FormatUint(e.OrderID, 10),
			"data":     data,
		},
	})
	pipe.Set(ctx, lastEventKey(e.Symbol, e.OrderID), data, lastEventTTL)
	pipe.Publish(ctx, channelKey(e.Symbol), data)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis audit %s order %d: %w", e.Type, e.OrderID, err)
	}
	return nil
}

// Record implements audit.Sink without buffering.
func (w *Writer) Record(ctx context.Context, e audit.Event) error {
	return w.WriteEvent(ctx, e)
}

// Close closes the Redis connection.
func (w *Writer) Close() error {
	return w.client.Close()
}

func lastEventKey(symbol string, id uint64) string {
	return "order:" + symbol + ":" + strconv.FormatUint(id, 10) + ":last"
}

func channelKey(symbol string) string {
	return "pub:audit:" + symbol
}
