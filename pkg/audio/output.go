// Package audio connects a mixer engine to a host output: a realtime
// device, a WAV file or memory.
package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/olivierh59500/picosound/pkg/mixer"
)

// Channels is the channel count the engine renders.
const Channels = 2

var ErrAlreadyPlaying = errors.New("audio: already playing")

// Output interface for audio output implementations
type Output interface {
	Open(sampleRate, channels, bufferSize int) error
	Close() error
	Write(samples []int16) error
	IsPlaying() bool
}

// Player drives an Engine in realtime: a producer goroutine fills the
// engine's buffer pool once per period and a consumer goroutine replays
// filled buffers to the output.
type Player struct {
	engine *mixer.Engine
	output Output
	period time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	group   *errgroup.Group
	playing bool

	paused  atomic.Bool
	written atomic.Int64
}

// NewPlayer creates a player for engine writing to output.
func NewPlayer(engine *mixer.Engine, output Output) *Player {
	cfg := engine.Config()
	period := time.Duration(cfg.BufferFrames) * time.Second / time.Duration(cfg.OutputRate)
	return &Player{
		engine: engine,
		output: output,
		// twice per buffer so a late tick never starves the output
		period: period / 2,
	}
}

// Start opens the output and begins playback. It returns once both
// goroutines are running.
func (p *Player) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.playing {
		return ErrAlreadyPlaying
	}

	cfg := p.engine.Config()
	if err := p.output.Open(cfg.OutputRate, Channels, cfg.BufferFrames); err != nil {
		return fmt.Errorf("audio: opening output: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.produce(gctx) })
	g.Go(func() error { return p.consume(gctx) })

	p.cancel = cancel
	p.group = g
	p.playing = true
	p.written.Store(0)
	slog.Debug("audio player started", "rate", cfg.OutputRate, "frames", cfg.BufferFrames, "period", p.period)
	return nil
}

// Stop ends playback, waits for both goroutines and closes the output.
// It returns the first error either side hit.
func (p *Player) Stop() error {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return nil
	}
	p.playing = false
	cancel, g := p.cancel, p.group
	p.mu.Unlock()

	cancel()
	err := g.Wait()
	if cerr := p.output.Close(); err == nil {
		err = cerr
	}
	return err
}

// Wait blocks until playback fails or the context given to Start ends.
func (p *Player) Wait() error {
	p.mu.Lock()
	g := p.group
	p.mu.Unlock()
	if g == nil {
		return nil
	}
	return g.Wait()
}

// Pause stops rendering. The output drains what is queued and then
// starves.
func (p *Player) Pause() {
	p.paused.Store(true)
}

// Resume resumes playback
func (p *Player) Resume() {
	p.paused.Store(false)
}

// IsPaused returns true if paused
func (p *Player) IsPaused() bool {
	return p.paused.Load()
}

// IsPlaying reports whether Start has run and Stop has not.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Frames returns the number of frames handed to the output.
func (p *Player) Frames() int64 {
	return p.written.Load()
}

func (p *Player) produce(ctx context.Context) error {
	p.engine.Update()

	ticker := time.NewTicker(p.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !p.paused.Load() {
				p.engine.Update()
			}
		}
	}
}

func (p *Player) consume(ctx context.Context) error {
	pool := p.engine.Pool()
	for {
		b, err := pool.Next(ctx)
		if err != nil {
			return nil
		}
		err = p.output.Write(b.Samples)
		pool.Release(b)
		if err != nil {
			return fmt.Errorf("audio: writing output: %w", err)
		}
		p.written.Add(int64(b.Frames))
	}
}

// RenderTo runs engine as fast as possible, writing at least frames
// frames to output, which is opened and closed here. Callbacks fire as
// they would in realtime.
func RenderTo(engine *mixer.Engine, output Output, frames int) error {
	cfg := engine.Config()
	if err := output.Open(cfg.OutputRate, Channels, cfg.BufferFrames); err != nil {
		return fmt.Errorf("audio: opening output: %w", err)
	}

	pool := engine.Pool()
	written := 0
	for written < frames {
		engine.Update()
		for written < frames {
			b, ok := pool.TryNext()
			if !ok {
				break
			}
			err := output.Write(b.Samples)
			pool.Release(b)
			if err != nil {
				output.Close()
				return fmt.Errorf("audio: writing output: %w", err)
			}
			written += b.Frames
		}
	}

	// leave the pool empty for the next user
	for {
		b, ok := pool.TryNext()
		if !ok {
			break
		}
		pool.Release(b)
	}
	return output.Close()
}

// BufferOutput is a simple buffer-based output for testing
type BufferOutput struct {
	buffer     []int16
	sampleRate int
	channels   int
	open       bool
	mu         sync.Mutex
}

// NewBufferOutput creates a new buffer output
func NewBufferOutput() *BufferOutput {
	return &BufferOutput{}
}

// Open starts a fresh recording.
func (b *BufferOutput) Open(sampleRate, channels, bufferSize int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sampleRate = sampleRate
	b.channels = channels
	b.buffer = make([]int16, 0, sampleRate*channels) // one second
	b.open = true
	return nil
}

// Close stops recording. The samples stay readable.
func (b *BufferOutput) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.open = false
	return nil
}

// Write appends samples to the buffer
func (b *BufferOutput) Write(samples []int16) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return errors.New("audio: buffer output not open")
	}

	b.buffer = append(b.buffer, samples...)
	return nil
}

func (b *BufferOutput) IsPlaying() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.open
}

// SampleRate returns the rate passed to Open.
func (b *BufferOutput) SampleRate() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sampleRate
}

// GetBuffer returns the accumulated audio buffer
func (b *BufferOutput) GetBuffer() []int16 {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := make([]int16, len(b.buffer))
	copy(result, b.buffer)
	return result
}

// Clear clears the buffer
func (b *BufferOutput) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.buffer = b.buffer[:0]
}

// NullOutput discards everything written to it.
type NullOutput struct {
	samples atomic.Int64
	open    atomic.Bool
}

func NewNullOutput() *NullOutput { return &NullOutput{} }

func (n *NullOutput) Open(sampleRate, channels, bufferSize int) error {
	n.open.Store(true)
	return nil
}

func (n *NullOutput) Close() error {
	n.open.Store(false)
	return nil
}

func (n *NullOutput) Write(samples []int16) error {
	n.samples.Add(int64(len(samples)))
	return nil
}

func (n *NullOutput) IsPlaying() bool { return n.open.Load() }

// Samples returns how many samples were discarded.
func (n *NullOutput) Samples() int64 { return n.samples.Load() }
