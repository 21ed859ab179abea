package audio

import (
	"fmt"
	"os"
	"sync"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const wavBitDepth = 16

// WAVOutput writes 16-bit PCM to a RIFF/WAVE file.
type WAVOutput struct {
	path string

	mu     sync.Mutex
	file   *os.File
	enc    *wav.Encoder
	buf    goaudio.IntBuffer
	frames int
}

// NewWAVOutput returns an output that creates path on Open.
func NewWAVOutput(path string) *WAVOutput {
	return &WAVOutput{path: path}
}

func (w *WAVOutput) Open(sampleRate, channels, bufferSize int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.enc != nil {
		return fmt.Errorf("audio: %s already open", w.path)
	}

	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("audio: creating wav: %w", err)
	}
	w.file = f
	w.enc = wav.NewEncoder(f, sampleRate, wavBitDepth, channels, 1)
	w.buf = goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           make([]int, 0, bufferSize*channels),
		SourceBitDepth: wavBitDepth,
	}
	w.frames = 0
	return nil
}

func (w *WAVOutput) Write(samples []int16) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.enc == nil {
		return ErrNotOpen
	}

	w.buf.Data = w.buf.Data[:0]
	for _, v := range samples {
		w.buf.Data = append(w.buf.Data, int(v))
	}
	if err := w.enc.Write(&w.buf); err != nil {
		return fmt.Errorf("audio: writing wav: %w", err)
	}
	w.frames += len(samples) / w.buf.Format.NumChannels
	return nil
}

// Close finalizes the header and closes the file.
func (w *WAVOutput) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.enc == nil {
		return nil
	}
	err := w.enc.Close()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	w.enc, w.file = nil, nil
	if err != nil {
		return fmt.Errorf("audio: closing wav: %w", err)
	}
	return nil
}

func (w *WAVOutput) IsPlaying() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc != nil
}

// Frames returns the number of frames written since Open.
func (w *WAVOutput) Frames() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frames
}

// Path returns the destination file.
func (w *WAVOutput) Path() string { return w.path }
