package container

import (
	"fmt"
	"log/slog"

	"github.com/olivierh59500/picosound/pkg/codec"
)

const (
	wavMinLength = 44
	wavFormatPCM = 1
)

// ParseWAV finds the data chunk of a RIFF/WAVE buffer. The fmt chunk must
// declare mono linear PCM and come before the data chunk. 8-bit data is
// unsigned, 16-bit data is signed little endian.
func ParseWAV(data []byte) (Sample, error) {
	if len(data) < wavMinLength {
		return Sample{}, truncated("wav header", 0, wavMinLength, len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return Sample{}, ErrBadMagic
	}

	var (
		foundFmt bool
		rate     int
		enc      codec.Encoding
	)

	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := le32(data[pos+4:])
		body := pos + 8
		if size > len(data)-body {
			return Sample{}, truncated(fmt.Sprintf("wav %q chunk", id), body, size, len(data)-body)
		}
		chunk := data[body : body+size]

		switch id {
		case "fmt ":
			if size < 16 {
				return Sample{}, truncated("wav fmt chunk", body, 16, size)
			}
			format := le16(chunk)
			channels := le16(chunk[2:])
			rate = le32(chunk[4:])
			bits := le16(chunk[14:])

			if format != wavFormatPCM {
				return Sample{}, fmt.Errorf("%w: wav format tag %d", ErrUnsupportedCodec, format)
			}
			if channels != 1 {
				return Sample{}, fmt.Errorf("%w: wav has %d channels", ErrNotMono, channels)
			}
			switch bits {
			case 8:
				enc = codec.PCMU8
			case 16:
				enc = codec.PCMS16LE
			default:
				return Sample{}, fmt.Errorf("%w: wav %d-bit samples", ErrUnsupportedCodec, bits)
			}
			foundFmt = true

		case "data":
			if !foundFmt {
				return Sample{}, ErrFormatAfterData
			}
			slog.Debug("wav: data chunk", "rate", rate, "codec", enc, "bytes", size)
			return Sample{Data: chunk, Rate: rate, Encoding: enc}, nil
		}

		pos = body + size
		if size&1 != 0 {
			pos++
		}
	}

	return Sample{}, ErrNoSoundData
}
