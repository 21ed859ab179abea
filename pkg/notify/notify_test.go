package notify

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	tokens []uint32
}

func (r *recorder) Notify(token uint32) { r.tokens = append(r.tokens, token) }

func TestQueueFIFO(t *testing.T) {
	var q Queue
	for i := uint32(1); i <= 5; i++ {
		require.True(t, q.Enqueue(i))
	}
	assert.Equal(t, 5, q.Len())

	var r recorder
	assert.Equal(t, 3, q.Drain(&r, 3))
	assert.Equal(t, []uint32{1, 2, 3}, r.tokens)
	assert.Equal(t, 2, q.Drain(&r, DefaultBatch))
	assert.Equal(t, []uint32{1, 2, 3, 4, 5}, r.tokens)
	assert.Equal(t, 0, q.Len())
}

func TestQueueDropsNewWhenFull(t *testing.T) {
	var q Queue
	for i := uint32(1); i < QueueSize; i++ {
		require.True(t, q.Enqueue(i), "token %d", i)
	}
	assert.False(t, q.Enqueue(999))
	assert.Equal(t, uint64(1), q.Dropped())
	assert.Equal(t, QueueSize-1, q.Len())

	var r recorder
	for q.Drain(&r, DefaultBatch) > 0 {
	}
	require.Len(t, r.tokens, QueueSize-1)
	assert.Equal(t, uint32(1), r.tokens[0])
	assert.Equal(t, uint32(QueueSize-1), r.tokens[len(r.tokens)-1])
	assert.NotContains(t, r.tokens, uint32(999))
}

func TestDrainIgnoresReentry(t *testing.T) {
	var q Queue
	q.Enqueue(1)
	q.Enqueue(2)

	var got []uint32
	nested := -1
	var n Notifier
	n = NotifierFunc(func(token uint32) {
		got = append(got, token)
		if token == 1 {
			q.Enqueue(3)
			nested = q.Drain(n, DefaultBatch)
		}
	})

	assert.Equal(t, 3, q.Drain(n, DefaultBatch))
	assert.Equal(t, 0, nested)
	assert.Equal(t, []uint32{1, 2, 3}, got)
}

func TestDrainNilNotifierDiscards(t *testing.T) {
	var q Queue
	q.Enqueue(7)
	assert.Equal(t, 1, q.Drain(nil, DefaultBatch))
	assert.Equal(t, 0, q.Len())
}

func TestQueueConcurrentProducerConsumer(t *testing.T) {
	var q Queue
	const total = 2000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := uint32(1); i <= total; {
			if q.Enqueue(i) {
				i++
			}
		}
	}()

	var r recorder
	for len(r.tokens) < total {
		q.Drain(&r, DefaultBatch)
	}
	wg.Wait()

	for i, tok := range r.tokens {
		require.Equal(t, uint32(i+1), tok)
	}
}
