package gateway

import "sync"

type replayEntry struct {
	seq  int64
	data []byte
}

// ReplayBuffer keeps the most recent envelopes of one channel so clients
// can backfill gaps in channel_seq. Safe for concurrent use.
type ReplayBuffer struct {
	mu   sync.RWMutex
	buf  []replayEntry
	pos  int // next write position
	full bool
}

// NewReplayBuffer creates a buffer holding capacity envelopes (default 500).
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &ReplayBuffer{buf: make([]replayEntry, capacity)}
}

// Push stores a copy of data under seq, evicting the oldest when full.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)

	rb.mu.Lock()
	rb.buf[rb.pos] = replayEntry{seq: seq, data: cp}
	rb.pos = (rb.pos + 1) % len(rb.buf)
	if rb.pos == 0 {
		rb.full = true
	}
	rb.mu.Unlock()
}

// Range returns envelopes with seq in [fromSeq, toSeq], oldest first.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) [][]byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out [][]byte
	rb.each(func(e replayEntry) {
		if e.seq >= fromSeq && e.seq <= toSeq {
			out = append(out, e.data)
		}
	})
	return out
}

// Since returns envelopes with seq greater than afterSeq, oldest first.
func (rb *ReplayBuffer) Since(afterSeq int64) [][]byte {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out [][]byte
	rb.each(func(e replayEntry) {
		if e.seq > afterSeq {
			out = append(out, e.data)
		}
	})
	return out
}

// Oldest returns the smallest retained seq, or 0 when empty.
func (rb *ReplayBuffer) Oldest() int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	switch {
	case rb.full:
		return rb.buf[rb.pos].seq
	case rb.pos > 0:
		return rb.buf[0].seq
	}
	return 0
}

// Len returns the number of retained envelopes.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.full {
		return len(rb.buf)
	}
	return rb.pos
}

// each visits entries oldest first. Caller holds mu.
func (rb *ReplayBuffer) each(fn func(replayEntry)) {
	if rb.full {
		for _, e := range rb.buf[rb.pos:] {
			fn(e)
		}
	}
	for _, e := range rb.buf[:rb.pos] {
		fn(e)
	}
}
