// Package container locates the sound data inside Creative Voice (VOC)
// and RIFF/WAVE buffers. Parsers never copy sample bytes: the returned
// Sample.Data is a sub-slice of the input.
package container

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/olivierh59500/picosound/pkg/codec"
)

var (
	ErrBadMagic         = errors.New("container: bad magic")
	ErrTruncated        = errors.New("container: truncated data")
	ErrUnsupportedCodec = errors.New("container: unsupported codec")
	ErrNotMono          = errors.New("container: only mono is supported")
	ErrNoSoundData      = errors.New("container: no sound data")
	ErrFormatAfterData  = errors.New("container: data chunk before format chunk")
)

// Sample describes a playable span inside a container buffer.
type Sample struct {
	Data     []byte
	Rate     int
	Encoding codec.Encoding
}

// Frames returns the number of decoded samples the span holds.
func (s Sample) Frames() int {
	return s.Encoding.Samples(len(s.Data))
}

// Format names a recognised container.
type Format int

const (
	FormatUnknown Format = iota
	FormatVOC
	FormatWAV
)

func (f Format) String() string {
	switch f {
	case FormatVOC:
		return "voc"
	case FormatWAV:
		return "wav"
	}
	return "unknown"
}

// Detect sniffs the container type from the leading magic bytes.
func Detect(data []byte) Format {
	if len(data) >= len(vocMagic) && string(data[:len(vocMagic)]) == vocMagic {
		return FormatVOC
	}
	if len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE" {
		return FormatWAV
	}
	return FormatUnknown
}

// Parse dispatches to ParseVOC or ParseWAV based on Detect.
func Parse(data []byte) (Sample, error) {
	switch Detect(data) {
	case FormatVOC:
		return ParseVOC(data)
	case FormatWAV:
		return ParseWAV(data)
	}
	return Sample{}, ErrBadMagic
}

func le16(b []byte) int { return int(binary.LittleEndian.Uint16(b)) }
func le24(b []byte) int { return int(b[0]) | int(b[1])<<8 | int(b[2])<<16 }
func le32(b []byte) int { return int(binary.LittleEndian.Uint32(b)) }

func truncated(what string, off, need, have int) error {
	return fmt.Errorf("%w: %s at offset %d needs %d bytes, %d available", ErrTruncated, what, off, need, have)
}
