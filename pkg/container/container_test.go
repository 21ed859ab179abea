package container

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olivierh59500/picosound/pkg/codec"
)

func vocFile(blocks ...[]byte) []byte {
	b := []byte(vocMagic)
	b = binary.LittleEndian.AppendUint16(b, 26)
	b = binary.LittleEndian.AppendUint16(b, 0x010a)
	b = binary.LittleEndian.AppendUint16(b, 0x1129)
	for _, blk := range blocks {
		b = append(b, blk...)
	}
	return append(b, vocTerminator)
}

func vocBlock(typ byte, payload ...byte) []byte {
	n := len(payload)
	return append([]byte{typ, byte(n), byte(n >> 8), byte(n >> 16)}, payload...)
}

func block9(rate uint32, bits, channels byte, codecID uint16, data ...byte) []byte {
	p := binary.LittleEndian.AppendUint32(nil, rate)
	p = append(p, bits, channels)
	p = binary.LittleEndian.AppendUint16(p, codecID)
	p = append(p, 0, 0, 0, 0)
	return vocBlock(vocSoundNew, append(p, data...)...)
}

func TestParseVOC(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		rate    int
		enc     codec.Encoding
		samples []byte
		err     error
	}{
		{
			name:    "type 1 pcm",
			data:    vocFile(vocBlock(vocSoundData, 0xa6, 0, 1, 2, 3)),
			rate:    1000000 / (256 - 0xa6),
			enc:     codec.PCMU8,
			samples: []byte{1, 2, 3},
		},
		{
			name:    "type 1 adpcm",
			data:    vocFile(vocBlock(vocSoundData, 0xa6, 4, 0x80, 0x77)),
			rate:    11111,
			enc:     codec.ADPCM4,
			samples: []byte{0x80, 0x77},
		},
		{
			name:    "type 9 16-bit via codec 4",
			data:    vocFile(block9(22050, 16, 1, 4, 0x00, 0x10)),
			rate:    22050,
			enc:     codec.PCMS16LE,
			samples: []byte{0x00, 0x10},
		},
		{
			name:    "type 9 8-bit",
			data:    vocFile(block9(8000, 8, 1, 0, 0x80)),
			rate:    8000,
			enc:     codec.PCMU8,
			samples: []byte{0x80},
		},
		{
			name:    "skips text and silence blocks",
			data:    vocFile(vocBlock(5, 'h', 'i', 0), vocBlock(3, 0x10, 0, 0xa6), vocBlock(vocSoundData, 0x9c, 0, 7)),
			rate:    10000,
			enc:     codec.PCMU8,
			samples: []byte{7},
		},
		{
			name:    "unsupported codec falls through to next block",
			data:    vocFile(vocBlock(vocSoundData, 0xa6, 2, 1), block9(11025, 8, 1, 0, 9)),
			rate:    11025,
			enc:     codec.PCMU8,
			samples: []byte{9},
		},
		{
			name:    "extended block overrides rate",
			data:    vocFile(vocBlock(vocExtended, 0x00, 0xf0, 0, 0), vocBlock(vocSoundData, 0x00, 0, 5)),
			rate:    256000000 / (65536 - 0xf000),
			enc:     codec.PCMU8,
			samples: []byte{5},
		},
		{
			name: "stereo extended block rejects following sound",
			data: vocFile(vocBlock(vocExtended, 0x00, 0xf0, 0, 1), vocBlock(vocSoundData, 0x00, 0, 5)),
			err:  ErrNotMono,
		},
		{
			name: "stereo type 9",
			data: vocFile(block9(22050, 16, 2, 4, 0, 0)),
			err:  ErrNotMono,
		},
		{
			name: "unsupported codec only",
			data: vocFile(vocBlock(vocSoundData, 0xa6, 1, 1, 2)),
			err:  ErrUnsupportedCodec,
		},
		{
			name: "no sound blocks",
			data: vocFile(vocBlock(5, 'x', 0)),
			err:  ErrNoSoundData,
		},
		{
			name: "unknown block stops the walk",
			data: vocFile(vocBlock(0x20, 1), vocBlock(vocSoundData, 0xa6, 0, 1)),
			err:  ErrNoSoundData,
		},
		{
			name: "bad magic",
			data: append([]byte("Creative Voice Filf\x1a"), make([]byte, 10)...),
			err:  ErrBadMagic,
		},
		{
			name: "too short",
			data: []byte(vocMagic),
			err:  ErrTruncated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseVOC(tt.data)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.rate, s.Rate)
			assert.Equal(t, tt.enc, s.Encoding)
			assert.Equal(t, tt.samples, s.Data)
		})
	}
}

func TestParseVOCTruncatedBlock(t *testing.T) {
	data := vocFile(vocBlock(vocSoundData, 0xa6, 0, 1, 2, 3))
	// claim a larger block than the buffer holds
	data[26+1] = 0xff

	_, err := ParseVOC(data)
	assert.ErrorIs(t, err, ErrTruncated)

	data = vocFile()
	binary.LittleEndian.PutUint16(data[20:], 0xffff)
	_, err = ParseVOC(data)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestParseVOCDoesNotCopy(t *testing.T) {
	data := vocFile(vocBlock(vocSoundData, 0xa6, 0, 1, 2, 3))
	s, err := ParseVOC(data)
	require.NoError(t, err)

	data[26+6] = 42
	assert.Equal(t, byte(42), s.Data[0])
}

type chunk struct {
	id   string
	body []byte
}

func riff(chunks ...chunk) []byte {
	var b []byte
	for _, c := range chunks {
		b = append(b, c.id...)
		b = binary.LittleEndian.AppendUint32(b, uint32(len(c.body)))
		b = append(b, c.body...)
		if len(c.body)&1 != 0 {
			b = append(b, 0)
		}
	}
	out := []byte("RIFF")
	out = binary.LittleEndian.AppendUint32(out, uint32(len(b)+4))
	out = append(out, "WAVE"...)
	out = append(out, b...)
	for len(out) < wavMinLength {
		out = append(out, "pad "...)
		out = binary.LittleEndian.AppendUint32(out, 0)
	}
	return out
}

func fmtChunk(format, channels uint16, rate uint32, bits uint16) chunk {
	b := binary.LittleEndian.AppendUint16(nil, format)
	b = binary.LittleEndian.AppendUint16(b, channels)
	b = binary.LittleEndian.AppendUint32(b, rate)
	b = binary.LittleEndian.AppendUint32(b, rate*uint32(channels)*uint32(bits/8))
	b = binary.LittleEndian.AppendUint16(b, channels*bits/8)
	b = binary.LittleEndian.AppendUint16(b, bits)
	return chunk{"fmt ", b}
}

func TestParseWAV(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		rate    int
		enc     codec.Encoding
		samples []byte
		err     error
	}{
		{
			name:    "8-bit mono",
			data:    riff(fmtChunk(1, 1, 11025, 8), chunk{"data", []byte{0x80, 0x90, 0xa0, 0xb0}}),
			rate:    11025,
			enc:     codec.PCMU8,
			samples: []byte{0x80, 0x90, 0xa0, 0xb0},
		},
		{
			name:    "padded odd chunk before data",
			data:    riff(fmtChunk(1, 1, 8000, 8), chunk{"LIST", []byte{1, 2, 3}}, chunk{"data", []byte{0x7f, 0x80}}),
			rate:    8000,
			enc:     codec.PCMU8,
			samples: []byte{0x7f, 0x80},
		},
		{
			name: "data before fmt",
			data: riff(chunk{"data", []byte{1, 2, 3, 4}}, fmtChunk(1, 1, 8000, 8)),
			err:  ErrFormatAfterData,
		},
		{
			name: "compressed format",
			data: riff(fmtChunk(2, 1, 8000, 4), chunk{"data", []byte{1, 2}}),
			err:  ErrUnsupportedCodec,
		},
		{
			name: "stereo",
			data: riff(fmtChunk(1, 2, 8000, 16), chunk{"data", []byte{1, 2, 3, 4}}),
			err:  ErrNotMono,
		},
		{
			name: "24-bit",
			data: riff(fmtChunk(1, 1, 8000, 24), chunk{"data", []byte{1, 2, 3}}),
			err:  ErrUnsupportedCodec,
		},
		{
			name: "missing data chunk",
			data: riff(fmtChunk(1, 1, 8000, 8), chunk{"LIST", make([]byte, 8)}),
			err:  ErrNoSoundData,
		},
		{
			name: "bad magic",
			data: append([]byte("RIFX\x00\x00\x00\x00WAVE"), make([]byte, 40)...),
			err:  ErrBadMagic,
		},
		{
			name: "too short",
			data: []byte("RIFF\x00\x00\x00\x00WAVE"),
			err:  ErrTruncated,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseWAV(tt.data)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.rate, s.Rate)
			assert.Equal(t, tt.enc, s.Encoding)
			assert.Equal(t, tt.samples, s.Data)
		})
	}
}

func TestParseWAVOversizedChunk(t *testing.T) {
	data := riff(fmtChunk(1, 1, 8000, 8), chunk{"data", []byte{1, 2, 3, 4}})
	binary.LittleEndian.PutUint32(data[len(data)-8:], 1000)

	_, err := ParseWAV(data)
	assert.ErrorIs(t, err, ErrTruncated)
}

func TestParseWAVFromEncoder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	require.NoError(t, err)

	pcm := []int{0x1234, -0x8000, 0x7fff, 0, -1, 0x0100}
	enc := wav.NewEncoder(f, 22050, 16, 1, 1)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 22050},
		Data:           pcm,
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, FormatWAV, Detect(data))
	s, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, 22050, s.Rate)
	assert.Equal(t, codec.PCMS16LE, s.Encoding)
	assert.Equal(t, len(pcm), s.Frames())

	out := make([]int8, len(pcm))
	_, n := codec.DecodePCM(s.Encoding, out, s.Data)
	require.Equal(t, len(pcm), n)
	assert.Equal(t, []int8{0x12, -128, 127, 0, -1, 1}, out)
}

func TestDetect(t *testing.T) {
	assert.Equal(t, FormatVOC, Detect(vocFile()))
	assert.Equal(t, FormatWAV, Detect(riff(fmtChunk(1, 1, 8000, 8))))
	assert.Equal(t, FormatUnknown, Detect([]byte{1, 2, 3}))

	_, err := Parse([]byte("raw bytes"))
	assert.ErrorIs(t, err, ErrBadMagic)
}
