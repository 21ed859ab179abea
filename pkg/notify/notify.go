// Package notify defers completion notifications from the audio
// production path to application code.
package notify

import "sync/atomic"

// QueueSize is the number of slots in a Queue. One slot stays empty to
// tell a full ring from an empty one.
const QueueSize = 32

// DefaultBatch is how many tokens a single Drain delivers.
const DefaultBatch = 8

// Notifier receives completion tokens.
type Notifier interface {
	Notify(token uint32)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(token uint32)

func (f NotifierFunc) Notify(token uint32) { f(token) }

// Queue is a bounded single-producer single-consumer ring of tokens.
// Enqueue belongs to the production side and Drain to the consumer side.
type Queue struct {
	ring     [QueueSize]uint32
	head     atomic.Uint32 // next slot to read, written by the consumer
	tail     atomic.Uint32 // next slot to write, written by the producer
	draining atomic.Bool
	dropped  atomic.Uint64
}

// Enqueue appends a token. When the ring is full the new token is
// dropped and false is returned.
func (q *Queue) Enqueue(token uint32) bool {
	tail := q.tail.Load()
	next := (tail + 1) % QueueSize
	if next == q.head.Load() {
		q.dropped.Add(1)
		return false
	}
	q.ring[tail] = token
	q.tail.Store(next)
	return true
}

// Len returns the number of pending tokens.
func (q *Queue) Len() int {
	return int((q.tail.Load() + QueueSize - q.head.Load()) % QueueSize)
}

// Dropped returns how many tokens were lost to a full ring.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}

// Drain delivers up to max pending tokens to n in FIFO order and returns
// how many were delivered. A Drain started from inside a notification
// returns 0 immediately; its tokens stay queued for the outer call.
func (q *Queue) Drain(n Notifier, max int) int {
	if !q.draining.CompareAndSwap(false, true) {
		return 0
	}
	defer q.draining.Store(false)

	delivered := 0
	for delivered < max {
		head := q.head.Load()
		if head == q.tail.Load() {
			break
		}
		token := q.ring[head]
		q.head.Store((head + 1) % QueueSize)
		delivered++
		if n != nil {
			n.Notify(token)
		}
	}
	return delivered
}

// Reset discards pending tokens. It must not race with Enqueue or Drain.
func (q *Queue) Reset() {
	q.head.Store(0)
	q.tail.Store(0)
}
