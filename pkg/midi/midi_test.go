package midi

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smfBytes(format, division uint16, tracks ...[]byte) []byte {
	b := []byte("MThd")
	b = binary.BigEndian.AppendUint32(b, 6)
	b = binary.BigEndian.AppendUint16(b, format)
	b = binary.BigEndian.AppendUint16(b, uint16(len(tracks)))
	b = binary.BigEndian.AppendUint16(b, division)
	for _, t := range tracks {
		b = append(b, "MTrk"...)
		b = binary.BigEndian.AppendUint32(b, uint32(len(t)))
		b = append(b, t...)
	}
	return b
}

var endOfTrack = []byte{0x00, 0xFF, 0x2F, 0x00}

func TestParse(t *testing.T) {
	track := []byte{
		0x00, 0xFF, 0x51, 0x03, 0x07, 0xA1, 0x20, // tempo 500000
		0x00, 0xC1, 0x05, // program change ch 1
		0x81, 0x70, 0x91, 0x3C, 0x64, // delta 240, note on ch 1
		0x60, 0x3E, 0x50, // running status note on
		0x00, 0xE1, 0x00, 0x40, // pitch bend centre
		0x00, 0xF0, 0x02, 0x7E, 0xF7, // sysex
		0x10, 0x81, 0x3C, 0x00, // note off
	}
	track = append(track, endOfTrack...)

	f, err := Parse(smfBytes(1, 480, track))
	require.NoError(t, err)
	assert.Equal(t, 1, f.Format)
	assert.Equal(t, 480, f.Division)
	require.Equal(t, 1, f.NumTracks())

	ev := f.Tracks[0].Events
	require.Len(t, ev, 8)

	tempo, ok := ev[0].Tempo()
	require.True(t, ok)
	assert.Equal(t, uint32(500000), tempo)

	assert.Equal(t, Event{Type: ProgramChange, Channel: 1, Param1: 5}, ev[1])
	assert.Equal(t, Event{Delta: 240, Type: NoteOn, Channel: 1, Param1: 0x3C, Param2: 0x64}, ev[2])
	assert.Equal(t, Event{Delta: 0x60, Type: NoteOn, Channel: 1, Param1: 0x3E, Param2: 0x50}, ev[3])
	assert.Equal(t, 0, ev[4].Bend())
	assert.Equal(t, SysEx, ev[5].Type)
	assert.Equal(t, NoteOff, ev[6].Type)
	assert.True(t, ev[7].IsEndOfTrack())
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		err  error
	}{
		{"not midi", []byte("RIFF0000WAVEfmt "), ErrBadHeader},
		{"format 2", smfBytes(2, 96, endOfTrack), ErrUnsupported},
		{"smpte division", smfBytes(1, 0xE728, endOfTrack), ErrUnsupported},
		{"zero division", smfBytes(0, 0, endOfTrack), ErrBadHeader},
		{"format 0 with two tracks", smfBytes(0, 96, endOfTrack, endOfTrack), ErrBadHeader},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data)
			assert.ErrorIs(t, err, tt.err)
		})
	}

	data := smfBytes(1, 96, endOfTrack, endOfTrack)
	_, err := Parse(data[:len(data)-6])
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want Event
		err  error
	}{
		{"note on", []byte{0x93, 0x3C, 0x64}, Event{Delta: 5, Type: NoteOn, Channel: 3, Param1: 0x3C, Param2: 0x64}, nil},
		{"program change", []byte{0xC2, 0x07}, Event{Delta: 5, Type: ProgramChange, Channel: 2, Param1: 7}, nil},
		{"tempo with length", []byte{0xFF, 0x51, 0x03, 0x07, 0xA1, 0x20}, Event{Delta: 5, Type: Meta, MetaType: MetaTempo, Data: []byte{0x07, 0xA1, 0x20}}, nil},
		{"end of track", []byte{0xFF, 0x2F, 0x00}, Event{Delta: 5, Type: Meta, MetaType: MetaEndOfTrack, Data: []byte{}}, nil},
		{"empty", nil, Event{}, ErrBadEvent},
		{"truncated note", []byte{0x90, 0x3C}, Event{}, ErrTruncated},
		{"truncated meta", []byte{0xFF}, Event{}, ErrTruncated},
		{"data byte as status", []byte{0x3C, 0x40}, Event{}, ErrBadEvent},
		{"system common status", []byte{0xF2, 0x00, 0x00}, Event{}, ErrBadEvent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := decode(5, tt.raw)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev)
		})
	}

	ev, err := decode(0, []byte{0xFF, 0x51, 0x03, 0x07, 0xA1, 0x20})
	require.NoError(t, err)
	tempo, ok := ev.Tempo()
	require.True(t, ok)
	assert.Equal(t, uint32(500000), tempo)
}

func TestParseSkipsUnknownChunks(t *testing.T) {
	data := smfBytes(1, 96)
	binary.BigEndian.PutUint16(data[10:], 1)
	data = append(data, "XFIH"...)
	data = binary.BigEndian.AppendUint32(data, 2)
	data = append(data, 1, 2)
	data = append(data, "MTrk"...)
	data = binary.BigEndian.AppendUint32(data, uint32(len(endOfTrack)))
	data = append(data, endOfTrack...)

	f, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, 1, f.NumTracks())
}

func TestIterator(t *testing.T) {
	track := append([]byte{0x10, 0x90, 0x3C, 0x40, 0x20, 0x80, 0x3C, 0x00}, endOfTrack...)
	f, err := Parse(smfBytes(0, 96, track))
	require.NoError(t, err)

	it := f.Iterate(0)
	assert.Equal(t, uint32(0x10), it.DeltaTime())

	ev, ok := it.Next()
	require.True(t, ok)
	assert.Equal(t, NoteOn, ev.Type)
	assert.Equal(t, uint32(0x20), it.DeltaTime())

	it.Next()
	ev, ok = it.Next()
	require.True(t, ok)
	assert.True(t, ev.IsEndOfTrack())

	_, ok = it.Next()
	assert.False(t, ok)
	assert.Equal(t, uint32(0), it.DeltaTime())

	it.Restart()
	assert.Equal(t, 0, it.Position())
	assert.Equal(t, uint32(0x10), it.DeltaTime())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.mid")
	require.NoError(t, os.WriteFile(path, smfBytes(0, 120, endOfTrack), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 120, f.Division)

	_, err = Load(filepath.Join(t.TempDir(), "missing.mid"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
