// Package midi reads Standard MIDI Files and iterates their tracks event
// by event.
package midi

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"gitlab.com/gomidi/midi/v2/smf"
)

var (
	ErrBadHeader   = errors.New("midi: bad file header")
	ErrUnsupported = errors.New("midi: unsupported file")
	ErrTruncated   = errors.New("midi: truncated data")
	ErrBadEvent    = errors.New("midi: malformed event")
)

// EventType is the status nibble of a channel event, or 0xF0, 0xF7 and
// 0xFF for system exclusive and meta events.
type EventType uint8

const (
	NoteOff           EventType = 0x80
	NoteOn            EventType = 0x90
	Aftertouch        EventType = 0xA0
	Controller        EventType = 0xB0
	ProgramChange     EventType = 0xC0
	ChannelAftertouch EventType = 0xD0
	PitchBend         EventType = 0xE0
	SysEx             EventType = 0xF0
	SysExSplit        EventType = 0xF7
	Meta              EventType = 0xFF
)

func (t EventType) String() string {
	switch t {
	case NoteOff:
		return "note-off"
	case NoteOn:
		return "note-on"
	case Aftertouch:
		return "aftertouch"
	case Controller:
		return "controller"
	case ProgramChange:
		return "program-change"
	case ChannelAftertouch:
		return "channel-aftertouch"
	case PitchBend:
		return "pitch-bend"
	case SysEx, SysExSplit:
		return "sysex"
	case Meta:
		return "meta"
	}
	return fmt.Sprintf("event(%#02x)", uint8(t))
}

// Meta event types
const (
	MetaText       = 0x01
	MetaTrackName  = 0x03
	MetaEndOfTrack = 0x2F
	MetaTempo      = 0x51
)

// Event is one decoded track event. Data aliases the parsed message.
type Event struct {
	Delta    uint32
	Type     EventType
	Channel  uint8
	Param1   uint8
	Param2   uint8
	MetaType uint8
	Data     []byte
}

// IsEndOfTrack reports whether e is the end-of-track meta event.
func (e Event) IsEndOfTrack() bool {
	return e.Type == Meta && e.MetaType == MetaEndOfTrack
}

// Tempo returns the microseconds per beat carried by a tempo meta event.
func (e Event) Tempo() (uint32, bool) {
	if e.Type != Meta || e.MetaType != MetaTempo || len(e.Data) != 3 {
		return 0, false
	}
	return uint32(e.Data[0])<<16 | uint32(e.Data[1])<<8 | uint32(e.Data[2]), true
}

// Bend returns the signed pitch bend value of a pitch bend event.
func (e Event) Bend() int {
	return (int(e.Param2)<<7 | int(e.Param1)) - 8192
}

// Track is the event list of one MTrk chunk.
type Track struct {
	Events []Event
}

// File is a parsed Standard MIDI File.
type File struct {
	Format   int
	Division int // ticks per quarter note
	Tracks   []Track
}

// NumTracks returns the number of tracks.
func (f *File) NumTracks() int { return len(f.Tracks) }

// Iterate returns an iterator positioned at the start of track i.
func (f *File) Iterate(i int) *Iterator {
	return &Iterator{events: f.Tracks[i].Events}
}

// Load reads and parses a MIDI file from disk.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("midi: reading %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes an in-memory MIDI file. Formats 0 and 1 with a metrical
// time division are supported. Track events are read with gomidi's smf
// reader; every returned track ends with an end-of-track event.
func Parse(data []byte) (*File, error) {
	f, err := parseHeader(data)
	if err != nil {
		return nil, err
	}

	sm, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadEvent, err)
	}

	for i, tr := range sm.Tracks {
		events := make([]Event, 0, len(tr)+1)
		for _, e := range tr {
			ev, err := decode(e.Delta, []byte(e.Message))
			if err != nil {
				return nil, fmt.Errorf("track %d: %w", i, err)
			}
			events = append(events, ev)
			if ev.IsEndOfTrack() {
				break
			}
		}
		if n := len(events); n == 0 || !events[n-1].IsEndOfTrack() {
			events = append(events, Event{Type: Meta, MetaType: MetaEndOfTrack})
		}
		f.Tracks = append(f.Tracks, Track{Events: events})
	}
	return f, nil
}

// parseHeader checks the MThd chunk and the framing of every chunk that
// follows it.
func parseHeader(data []byte) (*File, error) {
	if len(data) < 14 || string(data[:4]) != "MThd" {
		return nil, ErrBadHeader
	}
	hlen := int(binary.BigEndian.Uint32(data[4:]))
	if hlen < 6 || hlen > len(data)-8 {
		return nil, fmt.Errorf("%w: header length %d", ErrBadHeader, hlen)
	}

	f := &File{
		Format:   int(binary.BigEndian.Uint16(data[8:])),
		Division: int(binary.BigEndian.Uint16(data[12:])),
	}
	ntracks := int(binary.BigEndian.Uint16(data[10:]))

	if f.Format != 0 && f.Format != 1 {
		return nil, fmt.Errorf("%w: format %d", ErrUnsupported, f.Format)
	}
	if f.Format == 0 && ntracks != 1 {
		return nil, fmt.Errorf("%w: format 0 with %d tracks", ErrBadHeader, ntracks)
	}
	if f.Division&0x8000 != 0 {
		return nil, fmt.Errorf("%w: SMPTE time division", ErrUnsupported)
	}
	if f.Division == 0 {
		return nil, fmt.Errorf("%w: zero time division", ErrBadHeader)
	}

	pos, found := 8+hlen, 0
	for found < ntracks {
		if pos+8 > len(data) {
			return nil, fmt.Errorf("%w: track %d header", ErrTruncated, found)
		}
		id := string(data[pos : pos+4])
		size := int(binary.BigEndian.Uint32(data[pos+4:]))
		if size > len(data)-pos-8 {
			return nil, fmt.Errorf("%w: chunk %q needs %d bytes", ErrTruncated, id, size)
		}
		pos += 8 + size
		if id == "MTrk" {
			found++
		}
	}
	return f, nil
}

// decode turns one raw smf message into an Event. Channel messages carry
// their status byte; meta messages are 0xFF, the type, an optional length
// and the payload.
func decode(delta uint32, raw []byte) (Event, error) {
	ev := Event{Delta: delta}
	if len(raw) == 0 {
		return ev, fmt.Errorf("%w: empty message", ErrBadEvent)
	}
	status := raw[0]

	switch {
	case status == 0xFF:
		if len(raw) < 2 {
			return ev, fmt.Errorf("%w: meta event", ErrTruncated)
		}
		ev.Type = Meta
		ev.MetaType = raw[1]
		body := raw[2:]
		if size, n, err := readVarLen(body); err == nil && int(size) == len(body)-n {
			body = body[n:]
		}
		ev.Data = body
		return ev, nil

	case status == 0xF0 || status == 0xF7:
		ev.Type = EventType(status)
		ev.Data = raw[1:]
		return ev, nil

	case status < 0x80 || status > 0xEF:
		return ev, fmt.Errorf("%w: status %#02x", ErrBadEvent, status)
	}

	ev.Type = EventType(status & 0xF0)
	ev.Channel = status & 0x0F

	need := 2
	if ev.Type == ProgramChange || ev.Type == ChannelAftertouch {
		need = 1
	}
	if len(raw) < 1+need {
		return ev, fmt.Errorf("%w: %s parameters", ErrTruncated, ev.Type)
	}
	ev.Param1 = raw[1] & 0x7F
	if need == 2 {
		ev.Param2 = raw[2] & 0x7F
	}
	return ev, nil
}

// readVarLen decodes a variable length quantity of at most four bytes.
func readVarLen(b []byte) (uint32, int, error) {
	var v uint32
	for i := 0; i < 4; i++ {
		if i >= len(b) {
			return 0, 0, fmt.Errorf("%w: variable length value", ErrTruncated)
		}
		v = v<<7 | uint32(b[i]&0x7F)
		if b[i]&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: variable length value over 4 bytes", ErrBadEvent)
}

// Iterator walks the events of one track.
type Iterator struct {
	events []Event
	pos    int
}

// DeltaTime returns the delta ticks of the event Next will return, or 0
// at the end of the track.
func (it *Iterator) DeltaTime() uint32 {
	if it.pos >= len(it.events) {
		return 0
	}
	return it.events[it.pos].Delta
}

// Next returns the next event, or false when the track is exhausted.
func (it *Iterator) Next() (Event, bool) {
	if it.pos >= len(it.events) {
		return Event{}, false
	}
	ev := it.events[it.pos]
	it.pos++
	return ev, true
}

// Restart rewinds to the first event.
func (it *Iterator) Restart() {
	it.pos = 0
}

// Position returns the index of the next event.
func (it *Iterator) Position() int { return it.pos }
