package music

import (
	"errors"
	"fmt"
	"os"
)

const (
	// NumTimbres is the size of an instrument bank. Entries 128 and up are
	// percussion, indexed by key + 128.
	NumTimbres = 256

	// TimbreSize is the packed size of one bank entry.
	TimbreSize = 13
)

var ErrShortBank = errors.New("music: timbre bank too short")

// Timbre is one instrument: modulator/carrier register values plus a
// note transpose and velocity offset. Index 0 of each pair is the
// modulator.
type Timbre struct {
	SAVEK     [2]uint8 // tremolo, vibrato, sustain, KSR, multiplier (0x20)
	Level     [2]uint8 // key scale level and total level (0x40)
	Env1      [2]uint8 // attack and decay (0x60)
	Env2      [2]uint8 // sustain and release (0x80)
	Wave      [2]uint8 // waveform (0xE0)
	Feedback  uint8    // feedback and connection (0xC0)
	Transpose int8
	Velocity  int8
}

// TimbreBank is a full instrument bank.
type TimbreBank [NumTimbres]Timbre

// ParseTimbreBank unpacks 256 entries of 13 bytes.
func ParseTimbreBank(b []byte) (*TimbreBank, error) {
	if len(b) < NumTimbres*TimbreSize {
		return nil, fmt.Errorf("%w: %d bytes, need %d", ErrShortBank, len(b), NumTimbres*TimbreSize)
	}

	bank := new(TimbreBank)
	for i := range bank {
		p := b[i*TimbreSize:]
		bank[i] = Timbre{
			SAVEK:     [2]uint8{p[0], p[1]},
			Level:     [2]uint8{p[2], p[3]},
			Env1:      [2]uint8{p[4], p[5]},
			Env2:      [2]uint8{p[6], p[7]},
			Wave:      [2]uint8{p[8], p[9]},
			Feedback:  p[10],
			Transpose: int8(p[11]),
			Velocity:  int8(p[12]),
		}
	}
	return bank, nil
}

// LoadTimbreBank reads a packed bank from disk.
func LoadTimbreBank(path string) (*TimbreBank, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("music: reading timbre bank: %w", err)
	}
	return ParseTimbreBank(b)
}

// Bytes packs the bank back into its 13 byte per entry layout.
func (tb *TimbreBank) Bytes() []byte {
	out := make([]byte, 0, NumTimbres*TimbreSize)
	for _, t := range tb {
		out = append(out,
			t.SAVEK[0], t.SAVEK[1],
			t.Level[0], t.Level[1],
			t.Env1[0], t.Env1[1],
			t.Env2[0], t.Env2[1],
			t.Wave[0], t.Wave[1],
			t.Feedback, uint8(t.Transpose), uint8(t.Velocity))
	}
	return out
}

// DefaultTimbreBank returns a usable general purpose bank: a two operator
// piano-like patch for melodic programs and a short percussive patch for
// every percussion key.
func DefaultTimbreBank() *TimbreBank {
	bank := new(TimbreBank)
	melodic := Timbre{
		SAVEK:    [2]uint8{0x01, 0x21},
		Level:    [2]uint8{0x4F, 0x00},
		Env1:     [2]uint8{0xF1, 0xF2},
		Env2:     [2]uint8{0x53, 0x74},
		Feedback: 0x06,
	}
	drum := Timbre{
		SAVEK:     [2]uint8{0x00, 0x00},
		Level:     [2]uint8{0x0B, 0x00},
		Env1:      [2]uint8{0xA8, 0xD6},
		Env2:      [2]uint8{0x4C, 0x4F},
		Feedback:  0x0E,
		Transpose: 48,
	}
	for i := range bank {
		if i < 128 {
			bank[i] = melodic
		} else {
			bank[i] = drum
		}
	}
	return bank
}
