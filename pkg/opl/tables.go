package opl

import "math"

const (
	sinBits  = 10
	sinLen   = 1 << sinBits
	ampBits  = 12
	ampScale = 1 << ampBits

	// envelope attenuation is counted in 0.1875 dB steps
	envBits   = 9
	envMax    = 1<<envBits - 1
	attLen    = 1024
	envStepDB = 0.1875
)

var (
	// waveforms hold signed amplitudes for each of the four OPL2 shapes
	waveforms [4][sinLen]int32

	// attenuationGain maps attenuation steps to a linear gain in ampScale
	attenuationGain [attLen]int32

	// multiplier values doubled so 0 can express x0.5
	multX2 = [16]uint64{1, 2, 4, 6, 8, 10, 12, 14, 16, 18, 20, 20, 24, 24, 30, 30}

	// key scale level attenuation in dB at block 7, by fnum high nibble
	kslDB = [16]float64{
		0.000, 9.000, 12.000, 13.875, 15.000, 16.125, 16.875, 17.625,
		18.000, 18.750, 19.125, 19.500, 19.875, 20.250, 20.625, 21.000,
	}

	// KSL field to right shift of the 6 dB/oct value
	kslShift = [4]uint{31, 1, 2, 0}
)

func init() {
	for i := 0; i < sinLen; i++ {
		s := int32(math.Round(math.Sin(2*math.Pi*float64(i)/sinLen) * (ampScale - 1)))
		abs := s
		if abs < 0 {
			abs = -abs
		}

		waveforms[0][i] = s

		// half sine
		if i < sinLen/2 {
			waveforms[1][i] = s
		}

		// absolute sine
		waveforms[2][i] = abs

		// quarter sine pulses
		if i&(sinLen/2-1) < sinLen/4 {
			waveforms[3][i] = abs
		}
	}

	for i := range attenuationGain {
		db := float64(i) * envStepDB
		attenuationGain[i] = int32(math.Round(ampScale * math.Pow(10, -db/20)))
	}
}

// kslAttenuation returns the key scale attenuation in envelope steps.
func kslAttenuation(ksl uint8, fnum uint16, block uint8) int {
	if ksl == 0 {
		return 0
	}
	db := kslDB[fnum>>6] - 6.0*float64(7-block)
	if db <= 0 {
		return 0
	}
	steps := int(db / envStepDB)
	return steps >> kslShift[ksl]
}

// envelopeTime returns the duration in milliseconds of a full attack or
// decay sweep for an effective rate 0..63.
func envelopeTime(rate int, attack bool) float64 {
	base := 39280.0
	if attack {
		base = 2826.0
	}
	return base / math.Pow(2, float64(rate-4)/4)
}
