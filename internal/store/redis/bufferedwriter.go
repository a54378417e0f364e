package redis

import (
	"context"
	"log"
	"sync"

	"exchange-simv1/internal/audit"
)

// eventWriter is the part of Writer the buffered sink depends on.
type eventWriter interface {
	WriteEvent(ctx context.Context, e audit.Event) error
	Close() error
}

// BufferedWriter wraps a Writer with a circuit breaker.
// While the circuit is open, events are held in memory and replayed in
// order when the circuit closes again.
type BufferedWriter struct {
	writer eventWriter
	cb     *CircuitBreaker
	ctx    context.Context

	mu      sync.Mutex
	buffer  []audit.Event
	maxBuf  int // oldest event dropped beyond this (default: 10000)
	dropped int

	flushWG sync.WaitGroup

	OnBuffer func()          // called when an event is buffered
	OnFlush  func(count int) // called after buffered events are replayed
}

// NewBufferedWriter creates a BufferedWriter. ctx bounds the replay of
// buffered events.
func NewBufferedWriter(ctx context.Context, w *Writer, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	return newBufferedWriter(ctx, w, cb, maxBufferSize)
}

func newBufferedWriter(ctx context.Context, w eventWriter, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 10000
	}
	bw := &BufferedWriter{
		writer: w,
		cb:     cb,
		ctx:    ctx,
		buffer: make([]audit.Event, 0, 256),
		maxBuf: maxBufferSize,
	}

	prev := cb.OnStateChange
	cb.OnStateChange = func(from, to State) {
		if prev != nil {
			prev(from, to)
		}
		if to == StateClosed {
			bw.flushWG.Add(1)
			go func() {
				defer bw.flushWG.Done()
				bw.flush()
			}()
		}
	}
	return bw
}

// Record writes e through the circuit breaker. When the circuit is open
// the event is buffered and Record returns nil. Write errors while the
// circuit is still closed are returned to the caller.
func (bw *BufferedWriter) Record(ctx context.Context, e audit.Event) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.WriteEvent(ctx, e)
	})
	if err == ErrCircuitOpen {
		bw.bufferEvent(e)
		return nil
	}
	return err
}

func (bw *BufferedWriter) bufferEvent(e audit.Event) {
	bw.mu.Lock()
	if len(bw.buffer) >= bw.maxBuf {
		bw.buffer = bw.buffer[1:]
		bw.dropped++
	}
	bw.buffer = append(bw.buffer, e)
	bw.mu.Unlock()

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays buffered events through the underlying writer.
// Events that fail again are put back at the head of the buffer.
func (bw *BufferedWriter) flush() {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	toFlush := bw.buffer
	bw.buffer = make([]audit.Event, 0, 256)
	bw.mu.Unlock()

	flushed := 0
	for i, e := range toFlush {
		if err := bw.writer.WriteEvent(bw.ctx, e); err != nil {
			log.Printf("[buffered-writer] replay stopped after %d events: %v", flushed, err)
			bw.requeue(toFlush[i:])
			break
		}
		flushed++
	}

	log.Printf("[buffered-writer] flushed %d buffered events", flushed)
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

func (bw *BufferedWriter) requeue(events []audit.Event) {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	merged := append(append([]audit.Event{}, events...), bw.buffer...)
	if over := len(merged) - bw.maxBuf; over > 0 {
		merged = merged[over:]
		bw.dropped += over
	}
	bw.buffer = merged
}

// PendingCount returns the number of buffered events.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// Dropped returns how many events were discarded because the buffer was full.
func (bw *BufferedWriter) Dropped() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return bw.dropped
}

// Breaker returns the circuit breaker guarding the writer.
func (bw *BufferedWriter) Breaker() *CircuitBreaker { return bw.cb }

// Close waits for any in-flight replay, attempts one last flush and
// closes the underlying writer.
func (bw *BufferedWriter) Close() error {
	bw.flushWG.Wait()
	bw.flush()
	if n := bw.PendingCount(); n > 0 {
		log.Printf("[buffered-writer] closing with %d unflushed events", n)
	}
	return bw.writer.Close()
}
