// Package codec converts stored sample data into the signed 8-bit
// samples the mixer works with.
package codec

import "fmt"

// Encoding identifies how a sample span is stored.
type Encoding uint8

const (
	PCMU8    Encoding = iota // unsigned 8-bit, 0x80 is silence
	PCMS8                    // signed 8-bit
	PCMS16LE                 // signed 16-bit little endian
	ADPCM4                   // Creative 4-bit ADPCM
)

func (e Encoding) String() string {
	switch e {
	case PCMU8:
		return "pcm-u8"
	case PCMS8:
		return "pcm-s8"
	case PCMS16LE:
		return "pcm-s16le"
	case ADPCM4:
		return "adpcm4"
	}
	return fmt.Sprintf("encoding(%d)", uint8(e))
}

// BytesPerSample returns the storage size of one sample. ADPCM packs two
// samples per byte and reports 0.
func (e Encoding) BytesPerSample() int {
	switch e {
	case PCMS16LE:
		return 2
	case ADPCM4:
		return 0
	}
	return 1
}

// Samples returns how many output samples n bytes of source produce.
// The leading ADPCM reference byte produces no sample.
func (e Encoding) Samples(n int) int {
	switch e {
	case PCMS16LE:
		return n / 2
	case ADPCM4:
		if n <= 1 {
			return 0
		}
		return (n - 1) * 2
	}
	return n
}

// DecodePCM converts PCM bytes from src into dst and returns the number of
// bytes consumed and samples produced. A trailing odd byte of 16-bit data
// is left unconsumed.
func DecodePCM(enc Encoding, dst []int8, src []byte) (consumed, produced int) {
	switch enc {
	case PCMU8:
		n := min(len(dst), len(src))
		for i := 0; i < n; i++ {
			dst[i] = int8(src[i] - 0x80)
		}
		return n, n
	case PCMS8:
		n := min(len(dst), len(src))
		for i := 0; i < n; i++ {
			dst[i] = int8(src[i])
		}
		return n, n
	case PCMS16LE:
		n := min(len(dst), len(src)/2)
		for i := 0; i < n; i++ {
			// high byte of the little endian word carries the top 8 bits
			dst[i] = int8(src[2*i+1])
		}
		return n * 2, n
	}
	return 0, 0
}
