package mixer

import "context"

// Buffer is one period of interleaved stereo output.
type Buffer struct {
	Samples []int16
	Frames  int
}

// BufferPool circulates a fixed set of output buffers between the
// producer (Engine.Update) and a consumer that replays them. Neither side
// of the producer path blocks.
type BufferPool struct {
	free chan *Buffer
	full chan *Buffer
}

// NewBufferPool allocates count buffers of frames stereo frames each.
func NewBufferPool(count, frames int) *BufferPool {
	p := &BufferPool{
		free: make(chan *Buffer, count),
		full: make(chan *Buffer, count),
	}
	for i := 0; i < count; i++ {
		p.free <- &Buffer{Samples: make([]int16, frames*2), Frames: frames}
	}
	return p
}

// take returns a free buffer or false when all are in flight.
func (p *BufferPool) take() (*Buffer, bool) {
	select {
	case b := <-p.free:
		return b, true
	default:
		return nil, false
	}
}

// give hands a filled buffer to the consumer side.
func (p *BufferPool) give(b *Buffer) {
	p.full <- b
}

// Next waits for a filled buffer.
func (p *BufferPool) Next(ctx context.Context) (*Buffer, error) {
	select {
	case b := <-p.full:
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// TryNext returns a filled buffer without waiting.
func (p *BufferPool) TryNext() (*Buffer, bool) {
	select {
	case b := <-p.full:
		return b, true
	default:
		return nil, false
	}
}

// Release returns a replayed buffer to the free set.
func (p *BufferPool) Release(b *Buffer) {
	p.free <- b
}

// Free returns how many buffers are ready to be filled.
func (p *BufferPool) Free() int { return len(p.free) }

// Filled returns how many buffers wait for the consumer.
func (p *BufferPool) Filled() int { return len(p.full) }
