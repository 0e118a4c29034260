package rag

import (
	"sync"
	"time"
)

// DefaultHistoryCapacity is the number of exchanges kept per session
const DefaultHistoryCapacity = 50

// Exchange is one question and its answer
type Exchange struct {
	Question string    `json:"question"`
	Answer   string    `json:"answer"`
	At       time.Time `json:"at"`
}

// History is a fixed-capacity conversation log that drops the oldest
// exchange when full. It is safe for concurrent use.
type History struct {
	mu    sync.Mutex
	ring  []Exchange
	start int
	size  int
}

// NewHistory creates a history holding at most capacity exchanges
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{ring: make([]Exchange, capacity)}
}

// Add appends an exchange, evicting the oldest when full
func (h *History) Add(e Exchange) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if e.At.IsZero() {
		e.At = time.Now()
	}
	idx := (h.start + h.size) % len(h.ring)
	h.ring[idx] = e
	if h.size < len(h.ring) {
		h.size++
		return
	}
	h.start = (h.start + 1) % len(h.ring)
}

// Recent returns up to n of the newest exchanges, oldest first. n <= 0 returns all.
func (h *History) Recent(n int) []Exchange {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n <= 0 || n > h.size {
		n = h.size
	}
	out := make([]Exchange, n)
	first := h.size - n
	for i := range out {
		out[i] = h.ring[(h.start+first+i)%len(h.ring)]
	}
	return out
}

// Clear removes every exchange and returns how many were removed
func (h *History) Clear() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := h.size
	clear(h.ring)
	h.start, h.size = 0, 0
	return n
}

// Len returns the number of stored exchanges
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}

// Cap returns the maximum number of stored exchanges
func (h *History) Cap() int {
	return len(h.ring)
}
