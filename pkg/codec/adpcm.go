package codec

// Creative 4-bit ADPCM tables, indexed by nibble + step.
var (
	adpcmScale = [64]int8{
		0, 1, 2, 3, 4, 5, 6, 7, 0, -1, -2, -3, -4, -5, -6, -7,
		1, 3, 5, 7, 9, 11, 13, 15, -1, -3, -5, -7, -9, -11, -13, -15,
		2, 6, 10, 14, 18, 22, 26, 30, -2, -6, -10, -14, -18, -22, -26, -30,
		4, 12, 20, 28, 36, 44, 52, 60, -4, -12, -20, -28, -36, -44, -52, -60,
	}

	adpcmAdjust = [64]int8{
		0, 0, 0, 0, 0, 16, 16, 16,
		0, 0, 0, 0, 0, 16, 16, 16,
		-16, 0, 0, 0, 0, 16, 16, 16,
		-16, 0, 0, 0, 0, 16, 16, 16,
		-16, 0, 0, 0, 0, 16, 16, 16,
		-16, 0, 0, 0, 0, 16, 16, 16,
		-16, 0, 0, 0, 0, 0, 0, 0,
		-16, 0, 0, 0, 0, 0, 0, 0,
	}
)

const maxADPCMStep = 48

// adpcmPhase is the position of the decoder inside the byte stream.
type adpcmPhase uint8

const (
	awaitReference adpcmPhase = iota // next byte is the raw reference sample
	highNibble                       // next sample comes from the high nibble of a new byte
	lowNibble                        // next sample comes from the low nibble of pending
)

// ADPCMDecoder decodes Creative 4-bit ADPCM. The zero value is ready to
// decode the start of a stream.
type ADPCMDecoder struct {
	phase     adpcmPhase
	reference uint8
	step      int
	pending   byte
}

// Reset rewinds the decoder to expect a fresh reference byte.
func (d *ADPCMDecoder) Reset() {
	*d = ADPCMDecoder{}
}

// Reference returns the current predictor value (0..255).
func (d *ADPCMDecoder) Reference() uint8 { return d.reference }

// Step returns the current step index (0, 16, 32 or 48).
func (d *ADPCMDecoder) Step() int { return d.step }

func (d *ADPCMDecoder) nibble(n byte) int8 {
	i := int(n) + d.step
	if i > 63 {
		i = 63
	}

	d.step += int(adpcmAdjust[i])
	if d.step < 0 {
		d.step = 0
	} else if d.step > maxADPCMStep {
		d.step = maxADPCMStep
	}

	ref := int(d.reference) + int(adpcmScale[i])
	if ref < 0 {
		ref = 0
	} else if ref > 255 {
		ref = 255
	}
	d.reference = uint8(ref)

	return int8(ref - 128)
}

// Decode fills dst from src and returns the bytes consumed and samples
// produced. Decoding may stop between the two nibbles of a byte; the next
// call resumes with the low nibble.
func (d *ADPCMDecoder) Decode(dst []int8, src []byte) (consumed, produced int) {
	for produced < len(dst) {
		switch d.phase {
		case awaitReference:
			if consumed >= len(src) {
				return
			}
			d.reference = src[consumed]
			d.step = 0
			consumed++
			d.phase = highNibble

		case highNibble:
			if consumed >= len(src) {
				return
			}
			d.pending = src[consumed]
			consumed++
			dst[produced] = d.nibble(d.pending >> 4)
			produced++
			d.phase = lowNibble

		case lowNibble:
			dst[produced] = d.nibble(d.pending & 0x0f)
			produced++
			d.phase = highNibble
		}
	}
	return
}

// Pending reports whether a decoded byte still holds an unread low nibble.
func (d *ADPCMDecoder) Pending() bool { return d.phase == lowNibble }
