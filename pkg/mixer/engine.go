// Package mixer implements the sound effect voice pool and the per-period
// mixing loop. An Engine owns every piece of playback state; several
// engines can run side by side.
package mixer

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/olivierh59500/picosound/pkg/codec"
	"github.com/olivierh59500/picosound/pkg/container"
	"github.com/olivierh59500/picosound/pkg/notify"
)

const (
	DefaultVoices       = 8
	DefaultOutputRate   = 22050
	DefaultBufferFrames = 512
	DefaultBuffers      = 4
	DefaultRawRate      = 11025

	// maxBuffersPerUpdate bounds how many periods one Update renders.
	maxBuffersPerUpdate = 10

	handleSerials = 10000
)

var errBadRate = errors.New("mixer: sample rate must be positive")

// Handle identifies a started sound. Zero means the sound did not start.
type Handle int32

// BedGenerator renders the layer sound effects are mixed on top of,
// typically music. Generate overwrites out, which holds interleaved
// stereo frames.
type BedGenerator interface {
	Generate(out []int16)
}

// Params are the per-play options shared by every Play call.
type Params struct {
	Pitch    int // pitch offset in 1/2048 of the source rate
	Vol      int // used for both sides when Left and Right are <= 0
	Left     int
	Right    int
	Priority int
	Token    uint32 // delivered to the Notifier when the sound ends on its own
	Loop     bool

	// LoopStart and LoopEnd are byte offsets into the sample data. A zero
	// LoopEnd means the end of the data. Only PlayRaw honours them;
	// container sounds loop over their whole sample span.
	LoopStart int
	LoopEnd   int
}

// Config sizes an Engine.
type Config struct {
	Voices        int
	OutputRate    int
	BufferFrames  int
	Buffers       int
	CallbackBatch int
	LowPass       bool
}

// DefaultConfig returns the standard 8 voice, 22050 Hz configuration.
func DefaultConfig() Config {
	return Config{
		Voices:        DefaultVoices,
		OutputRate:    DefaultOutputRate,
		BufferFrames:  DefaultBufferFrames,
		Buffers:       DefaultBuffers,
		CallbackBatch: notify.DefaultBatch,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Voices <= 0 {
		c.Voices = d.Voices
	}
	if c.OutputRate <= 0 {
		c.OutputRate = d.OutputRate
	}
	if c.BufferFrames <= 0 {
		c.BufferFrames = d.BufferFrames
	}
	if c.Buffers <= 0 {
		c.Buffers = d.Buffers
	}
	if c.CallbackBatch <= 0 {
		c.CallbackBatch = d.CallbackBatch
	}
	return c
}

// Stats are counters for conditions that never reach the caller as errors.
type Stats struct {
	BuffersMixed    uint64
	BuffersSkipped  uint64
	DefensiveStops  uint64
	DroppedCallback uint64
}

// VoiceInfo is a snapshot of one slot.
type VoiceInfo struct {
	Handle   Handle
	Active   bool
	Looping  bool
	Priority int
	Encoding codec.Encoding
	Left     int
	Right    int
	Position int // bytes consumed
	Length   int // bytes in the playable span
}

// Engine is the sound effect mixer.
type Engine struct {
	mu      sync.Mutex
	cfg     Config
	voices  []voice
	serial  int
	master  int
	reverse bool
	bed     BedGenerator

	notifier notify.Notifier
	queue    notify.Queue
	pool     *BufferPool

	mixed   atomic.Uint64
	skipped atomic.Uint64
	faults  atomic.Uint64
}

// NewEngine creates an engine. Zero fields of cfg take their defaults.
func NewEngine(cfg Config) *Engine {
	cfg = cfg.withDefaults()
	return &Engine{
		cfg:    cfg,
		voices: make([]voice, cfg.Voices),
		serial: 1,
		master: 255,
		pool:   NewBufferPool(cfg.Buffers, cfg.BufferFrames),
	}
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// Pool returns the output buffer pool the consumer reads from.
func (e *Engine) Pool() *BufferPool { return e.pool }

// PlayVOC starts a Creative Voice File. A buffer that does not parse is
// played as raw unsigned 8-bit data at fallbackRate (11025 when <= 0).
func (e *Engine) PlayVOC(data []byte, fallbackRate int, p Params) Handle {
	s, err := container.ParseVOC(data)
	if err != nil {
		slog.Debug("mixer: voc parse failed, playing raw", "error", err, "token", p.Token)
		if fallbackRate <= 0 {
			fallbackRate = DefaultRawRate
		}
		s = container.Sample{Data: data, Rate: fallbackRate, Encoding: codec.PCMU8}
	}
	p.LoopStart, p.LoopEnd = 0, 0
	return e.start(s, p)
}

// PlayWAV starts a RIFF/WAVE buffer. Malformed buffers return 0.
func (e *Engine) PlayWAV(data []byte, p Params) Handle {
	s, err := container.ParseWAV(data)
	if err != nil {
		slog.Debug("mixer: wav rejected", "error", err, "token", p.Token)
		return 0
	}
	p.LoopStart, p.LoopEnd = 0, 0
	return e.start(s, p)
}

// PlayRaw starts unsigned 8-bit samples at rate.
func (e *Engine) PlayRaw(data []byte, rate int, p Params) Handle {
	return e.PlaySample(container.Sample{Data: data, Rate: rate, Encoding: codec.PCMU8}, p)
}

// PlaySample starts an already located sample span.
func (e *Engine) PlaySample(s container.Sample, p Params) Handle {
	return e.start(s, p)
}

func (e *Engine) start(s container.Sample, p Params) Handle {
	if len(s.Data) == 0 {
		return 0
	}
	if s.Rate <= 0 {
		slog.Debug("mixer: rejecting sound", "error", errBadRate, "token", p.Token)
		return 0
	}

	end := len(s.Data)
	loopStart := 0
	if p.Loop {
		if p.LoopEnd > 0 && p.LoopEnd < end {
			end = p.LoopEnd
		}
		if p.LoopStart > 0 && p.LoopStart < end {
			loopStart = p.LoopStart
		}
	}

	left, right := p.Left, p.Right
	if left <= 0 && right <= 0 && p.Vol > 0 {
		left, right = p.Vol, p.Vol
	}

	nv := voice{
		src:       s.Data,
		end:       end,
		loopStart: loopStart,
		looping:   p.Loop,
		enc:       s.Encoding,
		rate:      s.Rate,
		step:      stepFor(s.Rate, p.Pitch, e.cfg.OutputRate),
		left:      clampByte(left * 4),
		right:     clampByte(right * 4),
		priority:  p.Priority,
		token:     p.Token,
		alpha:     lowPassAlpha(s.Rate, e.cfg.OutputRate),
	}
	nv.refill()
	if nv.windowLen == 0 {
		return 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	slot := e.allocate(p.Priority)
	if slot < 0 {
		return 0
	}

	nv.handle = Handle((e.serial%handleSerials)*len(e.voices) + slot + 1)
	nv.active = true
	e.serial++
	e.voices[slot] = nv
	return nv.handle
}

// allocate picks a slot: any inactive one, else the lowest priority voice
// if it is strictly below priority. The evicted voice stops silently.
// Must be called with mu held.
func (e *Engine) allocate(priority int) int {
	if slot := e.findSlot(priority); slot >= 0 {
		e.voices[slot].active = false
		return slot
	}
	return -1
}

func (e *Engine) findSlot(priority int) int {
	for i := range e.voices {
		if !e.voices[i].active {
			return i
		}
	}

	lowest, slot := priority, -1
	for i := range e.voices {
		if e.voices[i].priority < lowest {
			lowest = e.voices[i].priority
			slot = i
		}
	}
	return slot
}

// lookup maps a handle to its slot while that sound is still playing.
// Must be called with mu held.
func (e *Engine) lookup(h Handle) *voice {
	if h <= 0 {
		return nil
	}
	slot := int(h-1) % len(e.voices)
	v := &e.voices[slot]
	if !v.active || v.handle != h {
		return nil
	}
	return v
}

// StopVoice stops a sound without notifying. It reports whether the
// handle was playing.
func (e *Engine) StopVoice(h Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := e.lookup(h)
	if v == nil {
		return false
	}
	v.active = false
	return true
}

// StopAll stops every voice without notifying.
func (e *Engine) StopAll() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i := range e.voices {
		e.voices[i].active = false
	}
}

// IsPlaying reports whether h is still sounding.
func (e *Engine) IsPlaying(h Handle) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lookup(h) != nil
}

// VoicesPlaying counts active voices.
func (e *Engine) VoicesPlaying() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for i := range e.voices {
		if e.voices[i].active {
			n++
		}
	}
	return n
}

// VoiceAvailable reports whether a sound at priority could start now.
func (e *Engine) VoiceAvailable(priority int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.findSlot(priority) >= 0
}

// SetPan sets the raw left and right gains (0..255) of a playing sound.
func (e *Engine) SetPan(h Handle, left, right int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if v := e.lookup(h); v != nil {
		v.left = clampByte(left)
		v.right = clampByte(right)
	}
}

// Pan3D places a sound by angle and distance, both 0..255. The angle
// sweeps from hard left at 0 through centre at 64 to hard right at 128,
// then back again.
func (e *Engine) Pan3D(h Handle, angle, distance int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	v := e.lookup(h)
	if v == nil {
		return
	}

	vol := max(255-distance, 0)
	angle &= 0xff
	pan := angle * 2
	if angle >= 128 {
		pan = (256 - angle) * 2
	}
	pan = min(pan, 255)
	v.left = (vol * (255 - pan)) >> 8
	v.right = (vol * pan) >> 8
}

// SetFrequency replaces the playback rate of a sound.
func (e *Engine) SetFrequency(h Handle, rate int) {
	if rate <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if v := e.lookup(h); v != nil {
		v.step = stepFor(rate, 0, e.cfg.OutputRate)
	}
}

// SetPitch reapplies a pitch offset to the sound's source rate.
func (e *Engine) SetPitch(h Handle, pitch int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if v := e.lookup(h); v != nil {
		v.step = stepFor(v.rate, pitch, e.cfg.OutputRate)
	}
}

// EndLooping lets a looping sound run to the end of its data and finish.
func (e *Engine) EndLooping(h Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if v := e.lookup(h); v != nil {
		v.looping = false
		v.end = len(v.src)
	}
}

// SetVolume sets the master gain (0..255) applied to every voice.
func (e *Engine) SetVolume(vol int) {
	e.mu.Lock()
	e.master = clampByte(vol)
	e.mu.Unlock()
}

// Volume returns the master gain.
func (e *Engine) Volume() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.master
}

// SetReverseStereo swaps left and right gains at mix time.
func (e *Engine) SetReverseStereo(reverse bool) {
	e.mu.Lock()
	e.reverse = reverse
	e.mu.Unlock()
}

// ReverseStereo reports the stereo swap setting.
func (e *Engine) ReverseStereo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reverse
}

// SetNotifier registers the receiver of completion tokens. Tokens are
// delivered from Update, never from inside mixing.
func (e *Engine) SetNotifier(n notify.Notifier) {
	e.mu.Lock()
	e.notifier = n
	e.mu.Unlock()
}

// SetBed registers the generator rendered under the voices, or nil for
// silence.
func (e *Engine) SetBed(b BedGenerator) {
	e.mu.Lock()
	e.bed = b
	e.mu.Unlock()
}

// Enqueue defers a completion token to the next Update. The queue has a
// single producer, the render path: call Enqueue only from a BedGenerator
// while it is generating, never from another goroutine.
func (e *Engine) Enqueue(token uint32) {
	if !e.queue.Enqueue(token) {
		slog.Warn("mixer: callback queue full, dropping token", "token", token)
	}
}

// Render fills out, interleaved stereo, with the bed plus every active
// voice.
func (e *Engine) Render(out []int16) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.render(out)
}

func (e *Engine) render(out []int16) {
	if e.bed != nil {
		e.bed.Generate(out)
	} else {
		clear(out)
	}

	for i := range e.voices {
		v := &e.voices[i]
		if !v.active {
			continue
		}

		gl := (v.left * e.master / 255) / 2
		gr := (v.right * e.master / 255) / 2
		if e.reverse {
			gl, gr = gr, gl
		}

		switch v.mix(out, gl, gr, e.cfg.LowPass) {
		case mixFinished:
			v.active = false
			if v.token != 0 {
				e.Enqueue(v.token)
			}
		case mixFault:
			v.active = false
			e.faults.Add(1)
			slog.Warn("mixer: stopping voice in inconsistent state",
				"slot", i, "cursor", v.cursor>>fixedShift, "window", v.windowLen, "step", v.step)
		}
	}
	e.mixed.Add(1)
}

// Update renders every free output buffer (at most 10 per call), hands
// them to the consumer and then delivers pending completion tokens. When
// no buffer is free the period is skipped.
func (e *Engine) Update() int {
	rendered := 0
	e.mu.Lock()
	for rendered < maxBuffersPerUpdate {
		b, ok := e.pool.take()
		if !ok {
			break
		}
		e.render(b.Samples)
		e.pool.give(b)
		rendered++
	}
	n := e.notifier
	e.mu.Unlock()

	if rendered == 0 {
		e.skipped.Add(1)
	}
	e.queue.Drain(n, e.cfg.CallbackBatch)
	return rendered
}

// DrainCallbacks delivers pending completion tokens without rendering.
func (e *Engine) DrainCallbacks() int {
	e.mu.Lock()
	n := e.notifier
	e.mu.Unlock()
	return e.queue.Drain(n, e.cfg.CallbackBatch)
}

// Stats returns the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		BuffersMixed:    e.mixed.Load(),
		BuffersSkipped:  e.skipped.Load(),
		DefensiveStops:  e.faults.Load(),
		DroppedCallback: e.queue.Dropped(),
	}
}

// Voices returns a snapshot of every slot.
func (e *Engine) Voices() []VoiceInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]VoiceInfo, len(e.voices))
	for i := range e.voices {
		v := &e.voices[i]
		out[i] = VoiceInfo{
			Handle:   v.handle,
			Active:   v.active,
			Looping:  v.looping,
			Priority: v.priority,
			Encoding: v.enc,
			Left:     v.left,
			Right:    v.right,
			Position: v.pos,
			Length:   len(v.src),
		}
	}
	return out
}
