package mixer

import (
	"github.com/olivierh59500/picosound/pkg/codec"
)

const (
	// windowSize is the number of decoded samples a voice keeps ahead of
	// the mixer.
	windowSize = 256

	// maxRefills bounds the window refills needed to advance one output
	// frame.
	maxRefills = 20

	fixedShift = 16
)

// voice is one mixing channel. src is caller owned and never copied.
type voice struct {
	src       []byte
	pos       int // next undecoded byte
	end       int // effective end of src
	loopStart int
	looping   bool

	enc   codec.Encoding
	adpcm codec.ADPCMDecoder

	window    [windowSize]int8
	windowLen int

	cursor uint32 // 16.16 position inside window
	step   uint32 // 16.16 source samples per output sample
	rate   int    // source rate before pitch

	left, right int // 0..255
	priority    int
	token       uint32
	handle      Handle
	active      bool

	// one-pole low-pass state, alpha in 1/256 units
	alpha int
	lp    int
}

// exhausted reports whether no further sample can be decoded from the
// current position.
func (v *voice) exhausted() bool {
	switch v.enc {
	case codec.ADPCM4:
		return !v.adpcm.Pending() && v.pos >= v.end
	case codec.PCMS16LE:
		return v.end-v.pos < 2
	}
	return v.pos >= v.end
}

// refill decodes the next window, wrapping to the loop start when the
// source runs out on a looping voice. windowLen is 0 when nothing is left.
func (v *voice) refill() {
	if v.exhausted() {
		if !v.looping {
			v.windowLen = 0
			return
		}
		v.pos = v.loopStart
		if v.enc == codec.ADPCM4 {
			v.adpcm.Reset()
		}
	}

	if v.pos > v.end {
		v.windowLen = 0
		return
	}

	var consumed, produced int
	if v.enc == codec.ADPCM4 {
		consumed, produced = v.adpcm.Decode(v.window[:], v.src[v.pos:v.end])
	} else {
		consumed, produced = codec.DecodePCM(v.enc, v.window[:], v.src[v.pos:v.end])
	}
	v.pos += consumed
	v.windowLen = produced
}

// mixResult tells the engine why a voice left the mix loop.
type mixResult int

const (
	mixContinue mixResult = iota
	mixFinished
	mixFault
)

// mix adds the voice into interleaved stereo out using per-channel gains.
func (v *voice) mix(out []int16, gainL, gainR int, lowPass bool) mixResult {
	if v.windowLen == 0 {
		return mixFinished
	}
	if v.cursor>>fixedShift >= windowSize {
		return mixFault
	}

	end := uint32(v.windowLen) << fixedShift
	frames := len(out) / 2

	for i := 0; i < frames; i++ {
		idx := v.cursor >> fixedShift
		if idx >= uint32(v.windowLen) {
			return mixFault
		}

		s := int(v.window[idx])
		if lowPass {
			v.lp = ((256-v.alpha)*v.lp + v.alpha*s) / 256
			s = v.lp
		}

		out[2*i] = clamp16(int(out[2*i]) + s*gainL)
		out[2*i+1] = clamp16(int(out[2*i+1]) + s*gainR)

		v.cursor += v.step
		refills := 0
		for v.cursor >= end {
			v.cursor -= end
			refills++
			if refills > maxRefills {
				return mixFault
			}
			v.refill()
			if v.windowLen == 0 {
				return mixFinished
			}
			end = uint32(v.windowLen) << fixedShift
		}
	}
	return mixContinue
}

func clamp16(v int) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

func clampByte(v int) int {
	if v > 255 {
		return 255
	}
	if v < 0 {
		return 0
	}
	return v
}

// stepFor returns the 16.16 resample step for rate with a pitch offset
// applied. pitch is in 1/2048 units of the source rate.
func stepFor(rate, pitch, outputRate int) uint32 {
	if pitch != 0 {
		rate += rate * pitch / 2048
		if rate < 1000 {
			rate = 1000
		}
		if rate > 48000 {
			rate = 48000
		}
	}
	return uint32((uint64(rate) << fixedShift) / uint64(outputRate))
}

// lowPassAlpha is the one-pole coefficient for a source rate, in 1/256.
func lowPassAlpha(rate, outputRate int) int {
	return (256 * 201 * rate) / (201*rate + 64*outputRate)
}
