package rag

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exchange(i int) Exchange {
	return Exchange{Question: fmt.Sprintf("q%d", i), Answer: fmt.Sprintf("a%d", i)}
}

func questions(exchanges []Exchange) []string {
	out := make([]string, len(exchanges))
	for i, e := range exchanges {
		out[i] = e.Question
	}
	return out
}

func TestHistory_DropsOldest(t *testing.T) {
	h := NewHistory(3)
	for i := 1; i <= 5; i++ {
		h.Add(exchange(i))
	}

	assert.Equal(t, 3, h.Len())
	assert.Equal(t, 3, h.Cap())
	assert.Equal(t, []string{"q3", "q4", "q5"}, questions(h.Recent(0)))
	assert.Equal(t, []string{"q4", "q5"}, questions(h.Recent(2)))
	assert.Equal(t, []string{"q3", "q4", "q5"}, questions(h.Recent(10)))
}

func TestHistory_Clear(t *testing.T) {
	h := NewHistory(0)
	assert.Equal(t, DefaultHistoryCapacity, h.Cap())

	h.Add(exchange(1))
	h.Add(exchange(2))
	assert.Equal(t, 2, h.Clear())
	assert.Zero(t, h.Len())
	assert.Empty(t, h.Recent(5))

	h.Add(exchange(3))
	assert.Equal(t, []string{"q3"}, questions(h.Recent(5)))
}

func TestHistory_SetsTimestamp(t *testing.T) {
	h := NewHistory(2)
	h.Add(exchange(1))
	require.Len(t, h.Recent(1), 1)
	assert.False(t, h.Recent(1)[0].At.IsZero())
}

func TestHistory_Concurrent(t *testing.T) {
	h := NewHistory(50)
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h.Add(exchange(i))
			_ = h.Recent(5)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, h.Len())
}
