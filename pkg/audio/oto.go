package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

var (
	// oto allows one context per process; it is created on first use and
	// shared by every output after that.
	globalOtoMutex sync.Mutex
	globalContext  *oto.Context
	globalFormat   [2]int
)

var ErrNotOpen = errors.New("audio: output not open")

func otoContext(sampleRate, channels, bufferFrames int) (*oto.Context, error) {
	globalOtoMutex.Lock()
	defer globalOtoMutex.Unlock()

	if globalContext != nil {
		if globalFormat != [2]int{sampleRate, channels} {
			return nil, fmt.Errorf("audio: device already open at %d Hz, %d channels", globalFormat[0], globalFormat[1])
		}
		return globalContext, nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   time.Duration(bufferFrames) * time.Second / time.Duration(sampleRate),
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("audio: creating oto context: %w", err)
	}
	<-ready

	globalContext = ctx
	globalFormat = [2]int{sampleRate, channels}
	slog.Debug("oto context ready", "rate", sampleRate, "channels", channels, "buffer", op.BufferSize)
	return ctx, nil
}

// StreamingOtoOutput plays through the system audio device. Written
// samples are piped to an oto player, so Write blocks while the device
// buffer is full and paces the caller at the device rate.
type StreamingOtoOutput struct {
	player  *oto.Player
	writer  *io.PipeWriter
	reader  *io.PipeReader
	scratch []byte
	mu      sync.Mutex
	closed  bool
}

func NewStreamingOtoOutput() (*StreamingOtoOutput, error) {
	return &StreamingOtoOutput{}, nil
}

func (s *StreamingOtoOutput) Open(sampleRate, channels, bufferSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.player != nil {
		return fmt.Errorf("audio: stream already open")
	}

	ctx, err := otoContext(sampleRate, channels, bufferSize)
	if err != nil {
		return err
	}

	s.reader, s.writer = io.Pipe()
	s.player = ctx.NewPlayer(s.reader)
	s.closed = false
	s.player.Play()
	return nil
}

func (s *StreamingOtoOutput) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.player == nil {
		return nil
	}
	s.closed = true

	// EOF lets the player finish what it already read
	s.writer.Close()
	for s.player.IsPlaying() && s.player.BufferedSize() > 0 {
		time.Sleep(10 * time.Millisecond)
	}

	err := s.player.Close()
	s.reader.Close()
	s.player, s.writer, s.reader = nil, nil, nil
	return err
}

// Write converts samples to little endian bytes and queues them.
func (s *StreamingOtoOutput) Write(samples []int16) error {
	s.mu.Lock()
	if s.closed || s.writer == nil {
		s.mu.Unlock()
		return ErrNotOpen
	}
	writer := s.writer
	if cap(s.scratch) < len(samples)*2 {
		s.scratch = make([]byte, len(samples)*2)
	}
	buf := s.scratch[:len(samples)*2]
	for i, v := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	s.mu.Unlock()

	_, err := writer.Write(buf)
	return err
}

func (s *StreamingOtoOutput) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.player != nil
}

// FallbackOutput discards audio but sleeps for its duration so callers
// keep realtime pacing on systems without a usable device.
type FallbackOutput struct {
	sampleRate int
	channels   int
	closed     bool
	mu         sync.Mutex
}

func NewFallbackOutput() (*FallbackOutput, error) {
	return &FallbackOutput{}, nil
}

func (f *FallbackOutput) Open(sampleRate, channels, bufferSize int) error {
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("audio: invalid format %d Hz, %d channels", sampleRate, channels)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.sampleRate = sampleRate
	f.channels = channels
	f.closed = false
	return nil
}

func (f *FallbackOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.closed = true
	return nil
}

func (f *FallbackOutput) Write(samples []int16) error {
	f.mu.Lock()
	if f.closed || f.sampleRate == 0 {
		f.mu.Unlock()
		return ErrNotOpen
	}
	frames := len(samples) / f.channels
	sampleRate := f.sampleRate
	f.mu.Unlock()

	time.Sleep(time.Duration(frames) * time.Second / time.Duration(sampleRate))
	return nil
}

func (f *FallbackOutput) IsPlaying() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed && f.sampleRate > 0
}
