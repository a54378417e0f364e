package gateway

import (
	"math"
	"testing"
	"time"
)

func TestLatencyTracker_Empty(t *testing.T) {
	lt := NewLatencyTracker(100)
	if got := lt.Stats(); len(got) != 0 {
		t.Fatalf("empty tracker returned %v", got)
	}
}

func TestLatencyTracker_SingleSample(t *testing.T) {
	lt := NewLatencyTracker(100)
	lt.Observe("submit", 42500*time.Microsecond)

	s := lt.Stats()["submit"]
	if s.Count != 1 || s.P50Ms != 42.5 || s.P99Ms != 42.5 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestLatencyTracker_Percentiles(t *testing.T) {
	lt := NewLatencyTracker(1000)
	for i := 1; i <= 100; i++ {
		lt.Observe("submit", time.Duration(i)*time.Millisecond)
	}
	s := lt.Stats()["submit"]
	if math.Abs(s.P50Ms-50.5) > 0.01 {
		t.Errorf("p50 = %f, want 50.5", s.P50Ms)
	}
	if math.Abs(s.P95Ms-95.05) > 0.01 {
		t.Errorf("p95 = %f, want 95.05", s.P95Ms)
	}
	if math.Abs(s.P99Ms-99.01) > 0.01 {
		t.Errorf("p99 = %f, want 99.01", s.P99Ms)
	}
}

func TestLatencyTracker_WindowAndRoutes(t *testing.T) {
	lt := NewLatencyTracker(10)
	for i := 0; i < 15; i++ {
		lt.Observe("cancel", time.Millisecond)
	}
	lt.Observe("book", time.Millisecond)

	stats := lt.Stats()
	if stats["cancel"].Count != 10 {
		t.Errorf("cancel count = %d, want 10", stats["cancel"].Count)
	}
	if stats["book"].Count != 1 {
		t.Errorf("book count = %d, want 1", stats["book"].Count)
	}
}
