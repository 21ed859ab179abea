package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePCM(t *testing.T) {
	tests := []struct {
		name     string
		enc      Encoding
		src      []byte
		dstLen   int
		want     []int8
		consumed int
	}{
		{"unsigned 8-bit", PCMU8, []byte{0x00, 0x80, 0xff}, 8, []int8{-128, 0, 127}, 3},
		{"signed 8-bit", PCMS8, []byte{0x80, 0x00, 0x7f}, 8, []int8{-128, 0, 127}, 3},
		{"signed 16-bit keeps high byte", PCMS16LE, []byte{0x34, 0x12, 0xff, 0x80}, 8, []int8{0x12, -128}, 4},
		{"16-bit odd trailing byte", PCMS16LE, []byte{0x00, 0x40, 0x11}, 8, []int8{0x40}, 2},
		{"window smaller than source", PCMU8, []byte{0x81, 0x82, 0x83}, 2, []int8{1, 2}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := make([]int8, tt.dstLen)
			consumed, produced := DecodePCM(tt.enc, dst, tt.src)
			assert.Equal(t, tt.consumed, consumed)
			assert.Equal(t, tt.want, dst[:produced])
		})
	}
}

func TestEncodingSamples(t *testing.T) {
	assert.Equal(t, 10, PCMU8.Samples(10))
	assert.Equal(t, 5, PCMS16LE.Samples(11))
	assert.Equal(t, 8, ADPCM4.Samples(5))
	assert.Equal(t, 0, ADPCM4.Samples(1))
	assert.Equal(t, "adpcm4", ADPCM4.String())
}

func TestADPCMGoldenVector(t *testing.T) {
	src := []byte{0x80, 0x77, 0x70, 0x88, 0xf0}
	want := []int8{7, 22, 52, 56, 54, 53, 46, 47}

	var d ADPCMDecoder
	dst := make([]int8, 16)
	consumed, produced := d.Decode(dst, src)

	require.Equal(t, len(src), consumed)
	assert.Equal(t, want, dst[:produced])
	assert.Equal(t, uint8(175), d.Reference())
	assert.Equal(t, 0, d.Step())
}

func TestADPCMResumesBetweenNibbles(t *testing.T) {
	src := []byte{0x80, 0x77, 0x70, 0x88, 0xf0}
	want := []int8{7, 22, 52, 56, 54, 53, 46, 47}

	var d ADPCMDecoder
	var got []int8
	pos := 0
	window := make([]int8, 3)
	for i := 0; i < 10; i++ {
		consumed, produced := d.Decode(window, src[pos:])
		pos += consumed
		got = append(got, window[:produced]...)
		if produced == 0 {
			break
		}
	}

	assert.Equal(t, want, got)
	assert.False(t, d.Pending())
}

func TestADPCMClamps(t *testing.T) {
	var d ADPCMDecoder
	dst := make([]int8, 8)
	// 0x77 repeatedly drives the reference up to the ceiling
	_, n := d.Decode(dst, []byte{0xf0, 0x77, 0x77, 0x77, 0x77})
	require.Equal(t, 8, n)
	assert.Equal(t, int8(127), dst[n-1])
	assert.Equal(t, maxADPCMStep, d.Step())

	d.Reset()
	_, n = d.Decode(dst, []byte{0x05, 0xff, 0xff})
	require.Equal(t, 4, n)
	assert.Equal(t, int8(-128), dst[n-1])
}
