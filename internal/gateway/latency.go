package gateway

import (
	"math"
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps the last N request durations per route and reports
// percentiles. Safe for concurrent use.
type LatencyTracker struct {
	mu     sync.Mutex
	size   int
	routes map[string]*samples
}

type samples struct {
	ms    []float64
	pos   int
	count int
}

// LatencyStats summarizes one route.
type LatencyStats struct {
	Count int     `json:"count"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// NewLatencyTracker creates a tracker holding size samples per route.
func NewLatencyTracker(size int) *LatencyTracker {
	if size <= 0 {
		size = 10000
	}
	return &LatencyTracker{size: size, routes: make(map[string]*samples)}
}

// Observe records one request duration for route.
func (lt *LatencyTracker) Observe(route string, d time.Duration) {
	lt.mu.Lock()
	s, ok := lt.routes[route]
	if !ok {
		s = &samples{ms: make([]float64, lt.size)}
		lt.routes[route] = s
	}
	s.ms[s.pos] = float64(d.Microseconds()) / 1000.0
	s.pos = (s.pos + 1) % lt.size
	if s.count < lt.size {
		s.count++
	}
	lt.mu.Unlock()
}

// Stats returns a summary per observed route.
func (lt *LatencyTracker) Stats() map[string]LatencyStats {
	lt.mu.Lock()
	copies := make(map[string][]float64, len(lt.routes))
	for route, s := range lt.routes {
		cp := make([]float64, s.count)
		copy(cp, s.ms[:s.count])
		copies[route] = cp
	}
	lt.mu.Unlock()

	out := make(map[string]LatencyStats, len(copies))
	for route, v := range copies {
		sort.Float64s(v)
		out[route] = LatencyStats{
			Count: len(v),
			P50Ms: percentile(v, 0.50),
			P95Ms: percentile(v, 0.95),
			P99Ms: percentile(v, 0.99),
		}
	}
	return out
}

// percentile interpolates the p-th percentile (0..1) of a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	rank := p * float64(n-1)
	lower := int(math.Floor(rank))
	if lower+1 >= n {
		return sorted[n-1]
	}
	frac := rank - float64(lower)
	return sorted[lower]*(1-frac) + sorted[lower+1]*frac
}
