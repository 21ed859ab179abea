package container

import (
	"fmt"
	"log/slog"

	"github.com/olivierh59500/picosound/pkg/codec"
)

const (
	vocMagic     = "Creative Voice File\x1a"
	vocMinLength = 26
)

// VOC block types
const (
	vocTerminator = 0
	vocSoundData  = 1
	vocExtended   = 8
	vocSoundNew   = 9
)

// VOC codec ids
const (
	vocCodecPCM8  = 0
	vocCodecADPCM = 4 // 16-bit signed PCM in a type 9 block
)

// ParseVOC walks the blocks of a Creative Voice File and returns the first
// playable sound block. Block types 2 to 7 are skipped and any type above 9
// ends the walk.
func ParseVOC(data []byte) (Sample, error) {
	if len(data) < vocMinLength {
		return Sample{}, truncated("voc header", 0, vocMinLength, len(data))
	}
	if string(data[:len(vocMagic)]) != vocMagic {
		return Sample{}, ErrBadMagic
	}

	headerSize := le16(data[20:])
	if headerSize > len(data) {
		return Sample{}, truncated("voc blocks", headerSize, 0, len(data))
	}

	// failure reported when no block yields sound data
	fail := ErrNoSoundData

	// a preceding extended block overrides the next type 1 block
	extRate := 0
	var extErr error

	pos := headerSize
	for pos < len(data) {
		blockType := data[pos]
		if blockType == vocTerminator {
			break
		}
		if blockType > vocSoundNew {
			slog.Debug("voc: stopping at unknown block", "type", blockType, "offset", pos)
			break
		}
		if pos+4 > len(data) {
			return Sample{}, truncated("voc block header", pos, 4, len(data)-pos)
		}

		size := le24(data[pos+1:])
		body := pos + 4
		if size > len(data)-body {
			return Sample{}, truncated("voc block", body, size, len(data)-body)
		}
		payload := data[body : body+size]

		switch blockType {
		case vocSoundData:
			if extErr != nil {
				fail, extErr = extErr, nil
				break
			}
			s, err := vocBlock1(payload, extRate)
			if err == nil {
				return s, nil
			}
			fail = err
			extRate = 0

		case vocSoundNew:
			s, err := vocBlock9(payload)
			if err == nil {
				return s, nil
			}
			fail = err

		case vocExtended:
			extRate, extErr = vocBlock8(payload)
		}

		pos = body + size
	}

	return Sample{}, fail
}

func vocBlock1(p []byte, extRate int) (Sample, error) {
	if len(p) < 2 {
		return Sample{}, truncated("voc sound block", 0, 2, len(p))
	}
	freqDiv, id := int(p[0]), p[1]

	var enc codec.Encoding
	switch id {
	case vocCodecPCM8:
		enc = codec.PCMU8
	case vocCodecADPCM:
		enc = codec.ADPCM4
	default:
		return Sample{}, fmt.Errorf("%w: voc block 1 codec %d", ErrUnsupportedCodec, id)
	}

	rate := 1000000 / (256 - freqDiv)
	if extRate > 0 {
		rate = extRate
	}

	slog.Debug("voc: sound block", "rate", rate, "codec", enc, "bytes", len(p)-2)
	return Sample{Data: p[2:], Rate: rate, Encoding: enc}, nil
}

func vocBlock9(p []byte) (Sample, error) {
	if len(p) < 12 {
		return Sample{}, truncated("voc extended sound block", 0, 12, len(p))
	}
	rate := le32(p)
	bits := p[4]
	channels := p[5]
	id := le16(p[6:])

	if id != vocCodecPCM8 && id != vocCodecADPCM {
		return Sample{}, fmt.Errorf("%w: voc block 9 codec %d", ErrUnsupportedCodec, id)
	}
	if channels != 1 {
		return Sample{}, fmt.Errorf("%w: voc block 9 has %d channels", ErrNotMono, channels)
	}

	enc := codec.PCMU8
	if bits == 16 || id == vocCodecADPCM {
		enc = codec.PCMS16LE
	}

	slog.Debug("voc: sound block", "rate", rate, "codec", enc, "bytes", len(p)-12)
	return Sample{Data: p[12:], Rate: rate, Encoding: enc}, nil
}

// vocBlock8 reads the 16-bit time constant, pack byte and mode byte. The
// time constant is 65536 - 256000000/rate.
func vocBlock8(p []byte) (int, error) {
	if len(p) < 4 {
		return 0, truncated("voc extended block", 0, 4, len(p))
	}
	tc := le16(p)
	pack := p[2]
	mode := p[3]

	if pack != vocCodecPCM8 && pack != vocCodecADPCM {
		return 0, fmt.Errorf("%w: voc block 8 pack %d", ErrUnsupportedCodec, pack)
	}
	if mode != 0 {
		return 0, fmt.Errorf("%w: voc block 8 is stereo", ErrNotMono)
	}
	return 256000000 / (65536 - tc), nil
}
