// Package opl emulates a YM3812 (OPL2) FM synthesizer: nine two-operator
// channels programmed through register writes.
package opl

import (
	"math"
)

const (
	// NativeRate is the chip's internal sample rate for a 3.579545 MHz clock.
	NativeRate = 49716

	NumChannels  = 9
	NumOperators = 18

	// DefaultGain scales the summed channel output into 16-bit range.
	DefaultGain = 2

	amHz  = 3.7
	vibHz = 6.07
)

type envState uint8

const (
	envOff envState = iota
	envAttack
	envDecay
	envSustain
	envRelease
)

type operator struct {
	am, vib, egt, ksr bool
	mult              uint8
	ksl, tl           uint8
	ar, dr, sl, rr    uint8
	wave              uint8

	phase uint32
	inc   uint32

	env        int32 // attenuation steps in 16.16
	state      envState
	kslAtt     int32
	attackInc  int32
	decayInc   int32
	releaseInc int32
	attackNow  bool

	out [2]int32 // previous outputs, used for feedback
}

type channel struct {
	fnum     uint16
	block    uint8
	keyOn    bool
	fb       uint8
	additive bool
	mod, car int // operator slots
}

// Chip is an OPL2 register-level emulator rendering at an arbitrary rate.
type Chip struct {
	rate int
	gain int32
	regs [256]uint8
	ops  [NumOperators]operator
	chs  [NumChannels]channel

	waveSelect bool
	noteSel    bool
	amDeep     bool
	vibDeep    bool

	amPhase, amInc   uint32
	vibPhase, vibInc uint32

	filter        bool
	lowPassFilter [2]int32
	dcAdjust      *DcAdjuster
}

// New creates a chip rendering at rate samples per second.
func New(rate int) *Chip {
	c := &Chip{
		rate:     rate,
		gain:     DefaultGain,
		dcAdjust: NewDcAdjuster(),
		amInc:    uint32(amHz / float64(rate) * (1 << 32)),
		vibInc:   uint32(vibHz / float64(rate) * (1 << 32)),
	}
	for ch := range c.chs {
		c.chs[ch].mod, c.chs[ch].car = channelSlots(ch)
	}
	c.Reset()
	return c
}

// channelSlots returns the modulator and carrier operator of a channel.
func channelSlots(ch int) (int, int) {
	group := ch / 3
	mod := group*6 + ch%3
	return mod, mod + 3
}

// slotChannel maps an operator to its channel and role.
func slotChannel(slot int) (ch int, carrier bool) {
	within := slot % 6
	return (slot/6)*3 + within%3, within >= 3
}

// offsetSlot maps a register offset (0x00..0x15) to an operator, or -1 for
// the unused offsets.
func offsetSlot(off int) int {
	if off < 0 || off >= 0x16 || off&7 >= 6 {
		return -1
	}
	return (off>>3)*6 + off&7
}

// Rate returns the output sample rate.
func (c *Chip) Rate() int { return c.rate }

// SetGain sets the output multiplier applied to the summed channels.
func (c *Chip) SetGain(gain int) { c.gain = int32(gain) }

// SetFilter enables the output low-pass filter.
func (c *Chip) SetFilter(on bool) { c.filter = on }

// Reset silences every channel and clears all registers.
func (c *Chip) Reset() {
	c.regs = [256]uint8{}
	for i := range c.ops {
		c.ops[i] = operator{env: envMax << 16, state: envOff}
	}
	for ch := range c.chs {
		mod, car := c.chs[ch].mod, c.chs[ch].car
		c.chs[ch] = channel{mod: mod, car: car}
	}
	c.waveSelect = false
	c.noteSel = false
	c.amDeep = false
	c.vibDeep = false
	c.amPhase = 0
	c.vibPhase = 0
	c.lowPassFilter = [2]int32{}
	c.dcAdjust.Reset()
}

// ReadRegister returns the last value written to reg.
func (c *Chip) ReadRegister(reg uint8) uint8 {
	return c.regs[reg]
}

// WriteReg programs one register.
func (c *Chip) WriteReg(reg, val uint8) {
	c.regs[reg] = val

	switch {
	case reg == 0x01:
		c.waveSelect = val&0x20 != 0

	case reg == 0x08:
		c.noteSel = val&0x40 != 0
		for ch := range c.chs {
			c.updateChannel(ch)
		}

	case reg == 0xBD:
		c.amDeep = val&0x80 != 0
		c.vibDeep = val&0x40 != 0

	case reg >= 0x20 && reg <= 0x35:
		if s := offsetSlot(int(reg - 0x20)); s >= 0 {
			op := &c.ops[s]
			op.am = val&0x80 != 0
			op.vib = val&0x40 != 0
			op.egt = val&0x20 != 0
			op.ksr = val&0x10 != 0
			op.mult = val & 0x0F
			c.updateSlot(s)
		}

	case reg >= 0x40 && reg <= 0x55:
		if s := offsetSlot(int(reg - 0x40)); s >= 0 {
			c.ops[s].ksl = val >> 6
			c.ops[s].tl = val & 0x3F
			c.updateSlot(s)
		}

	case reg >= 0x60 && reg <= 0x75:
		if s := offsetSlot(int(reg - 0x60)); s >= 0 {
			c.ops[s].ar = val >> 4
			c.ops[s].dr = val & 0x0F
			c.updateSlot(s)
		}

	case reg >= 0x80 && reg <= 0x95:
		if s := offsetSlot(int(reg - 0x80)); s >= 0 {
			c.ops[s].sl = val >> 4
			c.ops[s].rr = val & 0x0F
			c.updateSlot(s)
		}

	case reg >= 0xA0 && reg <= 0xA8:
		ch := &c.chs[reg-0xA0]
		ch.fnum = ch.fnum&0x300 | uint16(val)
		c.updateChannel(int(reg - 0xA0))

	case reg >= 0xB0 && reg <= 0xB8:
		n := int(reg - 0xB0)
		ch := &c.chs[n]
		ch.fnum = ch.fnum&0xFF | uint16(val&0x03)<<8
		ch.block = (val >> 2) & 0x07
		keyOn := val&0x20 != 0
		if keyOn && !ch.keyOn {
			c.keyOn(ch.mod)
			c.keyOn(ch.car)
		} else if !keyOn && ch.keyOn {
			c.keyOff(ch.mod)
			c.keyOff(ch.car)
		}
		ch.keyOn = keyOn
		c.updateChannel(n)

	case reg >= 0xC0 && reg <= 0xC8:
		ch := &c.chs[reg-0xC0]
		ch.fb = (val >> 1) & 0x07
		ch.additive = val&0x01 != 0

	case reg >= 0xE0 && reg <= 0xF5:
		if s := offsetSlot(int(reg - 0xE0)); s >= 0 {
			c.ops[s].wave = val & 0x03
		}
	}
}

func (c *Chip) keyOn(s int) {
	op := &c.ops[s]
	op.phase = 0
	op.state = envAttack
	if op.attackNow {
		op.env = 0
		op.state = envDecay
	}
}

func (c *Chip) keyOff(s int) {
	op := &c.ops[s]
	if op.state != envOff {
		op.state = envRelease
	}
}

func (c *Chip) updateChannel(ch int) {
	c.updateSlot(c.chs[ch].mod)
	c.updateSlot(c.chs[ch].car)
}

// updateSlot recomputes the frequency, key scaling and envelope rates of
// an operator from its channel's pitch.
func (c *Chip) updateSlot(s int) {
	op := &c.ops[s]
	n, _ := slotChannel(s)
	ch := &c.chs[n]

	inc := uint64(ch.fnum) << ch.block
	inc = inc * multX2[op.mult] * NativeRate << 12 / (2 * uint64(c.rate))
	op.inc = uint32(inc)

	op.kslAtt = int32(kslAttenuation(op.ksl, ch.fnum, ch.block))

	// key code: block and the note select bit of fnum
	kc := int(ch.block) << 1
	if c.noteSel {
		kc |= int(ch.fnum>>8) & 1
	} else {
		kc |= int(ch.fnum>>9) & 1
	}
	if !op.ksr {
		kc >>= 2
	}

	op.attackInc, op.attackNow = c.rateInc(op.ar, kc, true)
	op.decayInc, _ = c.rateInc(op.dr, kc, false)
	op.releaseInc, _ = c.rateInc(op.rr, kc, false)
}

// rateInc converts a 4-bit rate into a per sample envelope increment in
// 16.16 steps. instant is set for attack rates the chip completes at once.
func (c *Chip) rateInc(r uint8, kc int, attack bool) (inc int32, instant bool) {
	if r == 0 {
		return 0, false
	}
	eff := min(int(r)*4+kc, 63)
	if attack && eff >= 60 {
		return 0, true
	}
	samples := envelopeTime(eff, attack) / 1000 * float64(c.rate)
	if samples < 1 {
		samples = 1
	}
	return int32(math.Min(float64(envMax<<16)/samples, math.MaxInt32)), false
}

func (op *operator) advanceEnvelope() {
	switch op.state {
	case envAttack:
		op.env -= op.attackInc
		if op.env <= 0 {
			op.env = 0
			op.state = envDecay
		}
	case envDecay:
		sl := int32(op.sl) << 4
		if op.sl == 15 {
			sl = 31 << 4
		}
		op.env += op.decayInc
		if op.env >= sl<<16 {
			op.env = sl << 16
			op.state = envSustain
		}
	case envSustain:
		if !op.egt {
			op.env += op.releaseInc
		}
	case envRelease:
		op.env += op.releaseInc
	case envOff:
		op.env = envMax << 16
	}
	if op.env >= envMax<<16 {
		op.env = envMax << 16
		if op.state == envRelease || op.state == envSustain {
			op.state = envOff
		}
	}
}

// output computes the next operator sample. pm is a phase offset in the
// same 32-bit units as phase.
func (c *Chip) output(op *operator, pm uint32, amAtt int32, vibOff int64) int32 {
	att := op.env>>16 + int32(op.tl)<<2 + op.kslAtt
	if op.am {
		att += amAtt
	}

	inc := op.inc
	if op.vib {
		inc = uint32(int64(inc) + int64(inc)*vibOff/1024)
	}
	p := op.phase + pm
	op.phase += inc

	if op.state == envOff || att >= attLen {
		return 0
	}

	w := op.wave
	if !c.waveSelect {
		w = 0
	}
	return waveforms[w][p>>(32-sinBits)] * attenuationGain[att] >> ampBits
}

func (c *Chip) nextSample() int32 {
	c.amPhase += c.amInc
	c.vibPhase += c.vibInc

	// triangle in 0..32767
	t := int32(c.amPhase >> 16)
	if t >= 32768 {
		t = 65535 - t
	}
	amDepth := int32(5)
	if c.amDeep {
		amDepth = 26
	}
	amAtt := amDepth * t >> 15

	vibDepth := int64(4)
	if c.vibDeep {
		vibDepth = 8
	}
	vibOff := vibDepth * int64(waveforms[0][c.vibPhase>>(32-sinBits)]) / ampScale

	var sum int32
	for n := range c.chs {
		ch := &c.chs[n]
		mod := &c.ops[ch.mod]
		car := &c.ops[ch.car]

		if mod.state == envOff && car.state == envOff {
			mod.advanceEnvelope()
			car.advanceEnvelope()
			continue
		}

		var fb uint32
		if ch.fb > 0 {
			fb = uint32(int64(mod.out[0]+mod.out[1]) << (ch.fb + 13))
		}
		m := c.output(mod, fb, amAtt, vibOff)
		mod.out[0], mod.out[1] = mod.out[1], m

		if ch.additive {
			sum += m + c.output(car, 0, amAtt, vibOff)
		} else {
			sum += c.output(car, uint32(int64(m)<<22), amAtt, vibOff)
		}

		mod.advanceEnvelope()
		car.advanceEnvelope()
	}

	c.dcAdjust.AddSample(sum)
	out := sum - c.dcAdjust.GetDcLevel()
	if c.filter {
		out = c.LowPassFilter(out)
	}
	return out * c.gain
}

// LowPassFilter is a three tap smoothing filter over the output stream.
func (c *Chip) LowPassFilter(in int32) int32 {
	out := (c.lowPassFilter[0] >> 2) + (c.lowPassFilter[1] >> 1) + (in >> 2)
	c.lowPassFilter[0] = c.lowPassFilter[1]
	c.lowPassFilter[1] = in
	return out
}

// Generate renders interleaved stereo frames into out, overwriting it.
// Both sides carry the same mono signal.
func (c *Chip) Generate(out []int16) {
	for i := 0; i+1 < len(out); i += 2 {
		s := clamp16(c.nextSample())
		out[i] = s
		out[i+1] = s
	}
}

// Update renders mono samples into buf.
func (c *Chip) Update(buf []int16) {
	for i := range buf {
		buf[i] = clamp16(c.nextSample())
	}
}

func clamp16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
