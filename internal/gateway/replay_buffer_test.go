package gateway

import (
	"strconv"
	"testing"
)

func fill(rb *ReplayBuffer, from, to int64) {
	for i := from; i <= to; i++ {
		rb.Push(i, []byte(strconv.FormatInt(i, 10)))
	}
}

func seqs(t *testing.T, got [][]byte) []int64 {
	t.Helper()
	out := make([]int64, len(got))
	for i, b := range got {
		n, err := strconv.ParseInt(string(b), 10, 64)
		if err != nil {
			t.Fatalf("entry %d: %q", i, b)
		}
		out[i] = n
	}
	return out
}

func TestReplayBuffer_Range(t *testing.T) {
	rb := NewReplayBuffer(100)
	fill(rb, 1, 10)

	got := seqs(t, rb.Range(3, 7))
	if len(got) != 5 {
		t.Fatalf("Range(3,7): %v", got)
	}
	for i, s := range got {
		if s != int64(i)+3 {
			t.Errorf("entry[%d] = %d, want %d", i, s, i+3)
		}
	}
}

func TestReplayBuffer_Wraparound(t *testing.T) {
	rb := NewReplayBuffer(5)
	fill(rb, 1, 8)

	if rb.Len() != 5 {
		t.Fatalf("Len() = %d, want 5", rb.Len())
	}
	if rb.Oldest() != 4 {
		t.Errorf("Oldest() = %d, want 4", rb.Oldest())
	}
	got := seqs(t, rb.Range(1, 10))
	if len(got) != 5 || got[0] != 4 || got[4] != 8 {
		t.Fatalf("Range(1,10) = %v, want 4..8", got)
	}
}

func TestReplayBuffer_Since(t *testing.T) {
	rb := NewReplayBuffer(4)
	fill(rb, 1, 6)

	got := seqs(t, rb.Since(4))
	if len(got) != 2 || got[0] != 5 || got[1] != 6 {
		t.Fatalf("Since(4) = %v", got)
	}
	if n := len(rb.Since(0)); n != 4 {
		t.Errorf("Since(0) returned %d entries, want 4", n)
	}
}

func TestReplayBuffer_PushCopies(t *testing.T) {
	rb := NewReplayBuffer(2)
	data := []byte("a")
	rb.Push(1, data)
	data[0] = 'b'
	if got := rb.Range(1, 1); string(got[0]) != "a" {
		t.Fatalf("stored %q, want a", got[0])
	}
}

func TestReplayBuffer_Empty(t *testing.T) {
	rb := NewReplayBuffer(10)
	if got := rb.Range(1, 100); len(got) != 0 {
		t.Fatalf("empty buffer Range returned %d", len(got))
	}
	if rb.Oldest() != 0 {
		t.Errorf("Oldest() = %d on empty buffer", rb.Oldest())
	}
}
