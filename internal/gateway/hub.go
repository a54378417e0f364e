// Package gateway exposes the engine over HTTP and streams audit events to
// websocket clients.
package gateway

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"exchange-simv1/internal/audit"

	"github.com/gorilla/websocket"
)

// Hub tracks websocket clients and fans engine events out to them.
// Every channel keeps its own sequence and replay buffer so a client that
// sees a gap in channel_seq can backfill it over REST.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*Client]bool
	latest      map[string]latestEntry
	seq         int64
	channelSeqs map[string]int64
	replayBufs  map[string]*ReplayBuffer
	replaySize  int

	broadcaster *Broadcaster

	// OnClientCount, when set, is called with the client count after
	// every connect and disconnect.
	OnClientCount func(n int)
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

// NewHub creates a hub keeping replaySize envelopes per channel.
func NewHub(replaySize int) *Hub {
	h := &Hub{
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replayBufs:  make(map[string]*ReplayBuffer),
		replaySize:  replaySize,
	}
	h.broadcaster = NewBroadcaster(h)
	return h
}

// ChannelFor returns the channel an event for symbol is published on.
func ChannelFor(symbol string) string { return "events:" + symbol }

// Publish broadcasts an audit event on its symbol's channel. It never
// blocks: slow clients miss messages and can backfill via the replay API.
func (h *Hub) Publish(ev audit.Event) {
	h.broadcaster.Broadcast(ChannelFor(ev.Symbol), ev.JSON())
}

// HandleWSRequest registers an upgraded connection and starts its pumps.
// symbols limits the client to those symbols' channels; empty means all.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, symbols []string, lastTS string) {
	client := newClient(h, conn, symbols)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", count)
	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}

	go client.sendInitialState(lastTS)
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.send)
	h.mu.Unlock()

	if h.OnClientCount != nil {
		h.OnClientCount(count)
	}
}

// ReplayRange returns buffered envelopes for channel with channel_seq in
// [fromSeq, toSeq].
func (h *Hub) ReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, exists := h.replayBufs[channel]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	return rb.Range(fromSeq, toSeq)
}

// ChannelSeq returns the current sequence number for a channel.
func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected websocket clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
