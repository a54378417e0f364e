package gateway

import (
	"strconv"
	"time"
)

// Broadcaster builds envelopes and sends them to matching clients.
type Broadcaster struct {
	hub *Hub
	now func() time.Time
}

// NewBroadcaster creates a Broadcaster backed by the given Hub.
func NewBroadcaster(hub *Hub) *Broadcaster {
	return &Broadcaster{hub: hub, now: time.Now}
}

// Broadcast wraps data in an envelope and sends it to every client
// subscribed to channel. data must be valid JSON.
func (b *Broadcaster) Broadcast(channel string, data []byte) {
	now := b.now().UTC()

	b.hub.mu.Lock()
	b.hub.channelSeqs[channel]++
	channelSeq := b.hub.channelSeqs[channel]
	b.hub.seq++
	seq := b.hub.seq
	b.hub.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}

	rb, exists := b.hub.replayBufs[channel]
	if !exists {
		rb = NewReplayBuffer(b.hub.replaySize)
		b.hub.replayBufs[channel] = rb
	}
	b.hub.mu.Unlock()

	buf := appendEnvelope(make([]byte, 0, len(channel)+len(data)+160), channel, data, now, seq, channelSeq)
	rb.Push(channelSeq, buf)

	b.hub.mu.RLock()
	defer b.hub.mu.RUnlock()
	for client := range b.hub.clients {
		if !client.matchesChannel(channel) {
			continue
		}
		select {
		case client.send <- buf:
		default:
		}
	}
}

// appendEnvelope writes
// {"channel":...,"data":...,"ts":...,"seq":N,"channel_seq":M} to buf.
// Channels are plain identifiers, so no escaping is needed.
func appendEnvelope(buf []byte, channel string, data []byte, ts time.Time, seq, channelSeq int64) []byte {
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = ts.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}
