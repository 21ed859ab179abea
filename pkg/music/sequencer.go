// Package music plays Standard MIDI Files on an FM synthesizer and
// renders the result as the background bed of the mixer.
package music

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/olivierh59500/picosound/pkg/midi"
	"github.com/olivierh59500/picosound/pkg/opl"
)

const (
	// DefaultTempo is the tempo in microseconds per beat until a tempo
	// event says otherwise.
	DefaultTempo = 500000

	maxEventsPerBuffer = 200
	microsPerSecond    = 1000000
)

var (
	ErrNoSong    = errors.New("music: no song loaded")
	ErrEmptySong = errors.New("music: song has no tracks")
)

// Enqueuer receives the completion token when a song ends.
type Enqueuer interface {
	Enqueue(token uint32)
}

type trackState struct {
	it    *midi.Iterator
	next  uint64 // absolute time of the next event, microseconds
	ended bool
}

// Sequencer schedules song events against a sample clock and drives the
// FM engine. Generate is safe to call concurrently with the control
// methods.
type Sequencer struct {
	mu sync.Mutex

	synth Synth
	fm    *fmEngine
	rate  int

	song      *midi.File
	tracks    []trackState
	samples   uint64
	usPerBeat uint64
	playing   bool
	paused    bool
	loop      bool
	loops     int

	sink      Enqueuer
	doneToken uint32
}

// New returns a sequencer driving synth, which renders at rate samples
// per second. The default timbre bank is installed.
func New(synth Synth, rate int) *Sequencer {
	s := &Sequencer{
		synth:     synth,
		fm:        newFMEngine(synth),
		rate:      rate,
		usPerBeat: DefaultTempo,
	}
	s.fm.bank = DefaultTimbreBank()
	return s
}

// NewOPL returns a sequencer on an emulated OPL2 chip.
func NewOPL(rate int) *Sequencer {
	return New(opl.New(rate), rate)
}

// Load replaces the current song and starts it from the beginning.
func (s *Sequencer) Load(song *midi.File, loop bool) error {
	if song == nil {
		return ErrNoSong
	}
	if len(song.Tracks) == 0 {
		return ErrEmptySong
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.fm.resetChip()

	s.song = song
	s.tracks = make([]trackState, len(song.Tracks))
	for i := range s.tracks {
		s.tracks[i].it = song.Iterate(i)
	}
	s.loop = loop
	s.loops = 0
	s.rewind()
	s.playing = true

	slog.Info("music started", "tracks", len(song.Tracks), "division", song.Division, "loop", loop)
	return nil
}

// PlayFile loads and starts a MIDI file from disk. On failure any
// current song is stopped.
func (s *Sequencer) PlayFile(path string, loop bool) error {
	song, err := midi.Load(path)
	if err != nil {
		s.Stop()
		return fmt.Errorf("music: %w", err)
	}
	return s.Load(song, loop)
}

// PlayData parses and starts an in-memory MIDI file.
func (s *Sequencer) PlayData(data []byte, loop bool) error {
	song, err := midi.Parse(data)
	if err != nil {
		s.Stop()
		return fmt.Errorf("music: %w", err)
	}
	return s.Load(song, loop)
}

// Stop ends playback and releases every voice. No completion token is
// queued.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Sequencer) stopLocked() {
	if s.song != nil {
		slog.Debug("music stopped", "position", s.position())
	}
	s.fm.releaseAll()
	s.playing = false
	s.paused = false
	s.song = nil
	s.tracks = nil
}

// Pause silences the sounding voices and freezes the clock. Voice state
// is kept so Resume continues where the song left off.
func (s *Sequencer) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.playing || s.paused {
		return
	}
	s.paused = true
	s.fm.keyOffAll()
}

// Resume continues a paused song.
func (s *Sequencer) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
}

// IsPlaying reports whether a song is loaded, running and not paused.
func (s *Sequencer) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing && !s.paused
}

// IsPaused reports whether the current song is paused.
func (s *Sequencer) IsPaused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing && s.paused
}

// SetVolume sets the music volume, 0..255, and re-programs sounding
// voices.
func (s *Sequencer) SetVolume(vol int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fm.setMusicVolume(vol)
}

func (s *Sequencer) Volume() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fm.volume
}

func (s *Sequencer) SetLoop(loop bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loop = loop
}

func (s *Sequencer) Loop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop
}

// Loops returns how many times the current song has wrapped around.
func (s *Sequencer) Loops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loops
}

// RegisterTimbreBank installs a packed 256 entry instrument bank.
func (s *Sequencer) RegisterTimbreBank(b []byte) error {
	bank, err := ParseTimbreBank(b)
	if err != nil {
		return err
	}
	s.SetBank(bank)
	return nil
}

// SetBank installs bank. With a nil bank notes still key on but no
// instrument or volume registers are written.
func (s *Sequencer) SetBank(bank *TimbreBank) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fm.bank = bank
	for i := range s.fm.voices {
		s.fm.voices[i].timbre = -1
	}
}

// SetSink sets where the completion token goes.
func (s *Sequencer) SetSink(sink Enqueuer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// SetDoneToken sets the token queued when a non-looping song ends. Zero
// disables it.
func (s *Sequencer) SetDoneToken(token uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doneToken = token
}

// Position returns the playback time since the song started or last
// looped.
func (s *Sequencer) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position()
}

func (s *Sequencer) position() time.Duration {
	if s.rate <= 0 {
		return 0
	}
	return time.Duration(s.samples * uint64(time.Second) / uint64(s.rate))
}

// rewind puts the song back at time zero exactly as Load does.
func (s *Sequencer) rewind() {
	s.samples = 0
	s.usPerBeat = DefaultTempo
	s.fm.resetChannels()
	s.fm.releaseAll()
	for i := range s.tracks {
		t := &s.tracks[i]
		t.it.Restart()
		t.ended = false
		t.next = s.ticksToMicros(t.it.DeltaTime())
	}
}

func (s *Sequencer) ticksToMicros(delta uint32) uint64 {
	return uint64(delta) * s.usPerBeat / uint64(s.song.Division)
}

// dueSample is the first sample index at which an event scheduled at us
// may be dispatched.
func (s *Sequencer) dueSample(us uint64) uint64 {
	return (us*uint64(s.rate) + microsPerSecond - 1) / microsPerSecond
}

// earliest returns the due sample of the next pending event.
func (s *Sequencer) earliest() (uint64, bool) {
	var (
		due   uint64
		found bool
	)
	for i := range s.tracks {
		t := &s.tracks[i]
		if t.ended {
			continue
		}
		d := s.dueSample(t.next)
		if !found || d < due {
			due, found = d, true
		}
	}
	return due, found
}

// dispatch processes due events in track order, draining each track
// before moving to the next so a tempo change at the start of track 0
// governs every delta that follows it. At most budget events are handled
// and the count is returned. Reaching the end of a track counts as an
// event.
func (s *Sequencer) dispatch(budget int) int {
	n := 0
	for i := range s.tracks {
		t := &s.tracks[i]
		for n < budget && !t.ended && s.dueSample(t.next) <= s.samples {
			n++
			ev, ok := t.it.Next()
			if !ok || ev.IsEndOfTrack() {
				t.ended = true
				break
			}
			s.handle(ev)
			t.next += s.ticksToMicros(t.it.DeltaTime())
		}
	}
	return n
}

func (s *Sequencer) handle(ev midi.Event) {
	switch ev.Type {
	case midi.Meta:
		if tempo, ok := ev.Tempo(); ok && tempo > 0 {
			s.usPerBeat = uint64(tempo)
		}
	case midi.SysEx, midi.SysExSplit:
	default:
		s.fm.handle(ev)
	}
}

func (s *Sequencer) allEnded() bool {
	for i := range s.tracks {
		if !s.tracks[i].ended {
			return false
		}
	}
	return true
}

// finish runs when every track has ended.
func (s *Sequencer) finish() {
	if s.loop {
		s.loops++
		s.rewind()
		return
	}

	slog.Info("music finished", "position", s.position())
	s.fm.releaseAll()
	s.playing = false
	if s.doneToken != 0 && s.sink != nil {
		s.sink.Enqueue(s.doneToken)
	}
}

// Generate renders len(out)/2 interleaved stereo frames. Events are
// dispatched at their due sample; at most 200 are handled per call and
// the remainder wait for the next one.
func (s *Sequencer) Generate(out []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.playing || s.paused || s.song == nil {
		clear(out)
		return
	}

	frames := len(out) / 2
	filled := 0
	events := 0

	for filled < frames && s.playing {
		due, pending := s.earliest()
		if pending && due <= s.samples {
			if events >= maxEventsPerBuffer {
				break
			}
			events += s.dispatch(maxEventsPerBuffer - events)
			if s.allEnded() {
				s.finish()
			}
			continue
		}

		n := frames - filled
		if pending && due-s.samples < uint64(n) {
			n = int(due - s.samples)
		}
		s.synth.Generate(out[filled*2 : (filled+n)*2])
		filled += n
		s.samples += uint64(n)
	}

	if filled < frames {
		s.synth.Generate(out[filled*2 : frames*2])
		if s.playing {
			s.samples += uint64(frames - filled)
		}
	}
}
