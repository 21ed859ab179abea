package music

import "github.com/olivierh59500/picosound/pkg/midi"

const (
	// NumVoices is the number of physical FM channels.
	NumVoices = 9

	// DefaultVolume is the music volume after construction.
	DefaultVolume = 153

	numChannels     = 16
	percussionChan  = 9
	noteOnBit       = 0x2000
	maxVelocity     = 0x7F
	maxOctave       = 7
	maxNote         = maxOctave*12 + 11
	numSlots        = 18
	defaultChanVol  = 127
	defaultChanPan  = 64
	controlVolume   = 7
	controlPan      = 10
	controlReset    = 121
	controlNotesOff = 123
)

var (
	octavePitch = [maxOctave + 1]int{
		0x0000, 0x0400, 0x0800, 0x0C00, 0x1000, 0x1400, 0x1800, 0x1C00,
	}

	notePitch = [12]int{
		0x157, 0x16b, 0x181, 0x198, 0x1b0, 0x1ca, 0x1e5, 0x202, 0x220, 0x241, 0x263, 0x287,
	}

	// modulator and carrier operator of each voice
	slotVoice = [NumVoices][2]int{
		{0, 3}, {1, 4}, {2, 5}, {6, 9}, {7, 10}, {8, 11}, {12, 15}, {13, 16}, {14, 17},
	}

	// register offset of each operator
	offsetSlot = [numSlots]uint8{
		0, 1, 2, 3, 4, 5, 8, 9, 10, 11, 12, 13, 16, 17, 18, 19, 20, 21,
	}
)

// Synth is the FM synthesizer the engine programs.
type Synth interface {
	WriteReg(reg, val uint8)
	Reset()
	Generate(out []int16)
}

type fmVoice struct {
	active    bool
	channel   int
	key       int
	velocity  int
	timbre    int // -1 until programmed
	status    int // noteOnBit or 0
	pitchLeft int
}

type midiChannel struct {
	timbre    int
	volume    int
	pitchBend int
	pan       int
	keyOffset int
	keyDetune int
}

func defaultChannel() midiChannel {
	return midiChannel{volume: defaultChanVol, pan: defaultChanPan}
}

// fmEngine maps MIDI notes onto synthesizer voices.
type fmEngine struct {
	synth    Synth
	bank     *TimbreBank
	volume   int
	voices   [NumVoices]fmVoice
	channels [numChannels]midiChannel
	level    [numSlots]int
	ksl      [numSlots]int
}

func newFMEngine(s Synth) *fmEngine {
	fm := &fmEngine{synth: s, volume: DefaultVolume}
	fm.resetChannels()
	for i := range fm.voices {
		fm.voices[i] = fmVoice{timbre: -1}
	}
	return fm
}

func (fm *fmEngine) resetChannels() {
	for i := range fm.channels {
		fm.channels[i] = defaultChannel()
	}
}

// resetChip clears the synthesizer and forgets every programmed timbre.
func (fm *fmEngine) resetChip() {
	fm.synth.Reset()
	fm.synth.WriteReg(0x01, 0x20)
	for i := range fm.voices {
		fm.voices[i] = fmVoice{timbre: -1}
		fm.synth.WriteReg(0xB0+uint8(i), 0)
	}
}

func (fm *fmEngine) patch(v *fmVoice) int {
	if v.channel == percussionChan {
		return v.key + 128
	}
	return fm.channels[v.channel].timbre
}

func (fm *fmEngine) transpose(patch int) int {
	if fm.bank == nil {
		return 0
	}
	return int(fm.bank[patch].Transpose)
}

// setTimbre writes the instrument registers of a voice unless the voice
// already holds that instrument.
func (fm *fmEngine) setTimbre(voice int) {
	if fm.bank == nil {
		return
	}
	v := &fm.voices[voice]
	patch := fm.patch(v)
	if v.timbre == patch {
		return
	}
	v.timbre = patch
	t := &fm.bank[patch]
	w := fm.synth.WriteReg

	slot := slotVoice[voice][0]
	off := offsetSlot[slot]
	fm.level[slot] = 63 - int(t.Level[0]&0x3F)
	fm.ksl[slot] = int(t.Level[0] & 0xC0)

	w(0xA0+uint8(voice), 0)
	w(0xB0+uint8(voice), 0)

	// let the modulator clear its release
	w(0x80+off, 0xFF)

	w(0x60+off, t.Env1[0])
	w(0x80+off, t.Env2[0])
	w(0x20+off, t.SAVEK[0])
	w(0xE0+off, t.Wave[0])
	w(0x40+off, t.Level[0])
	w(0xC0+uint8(voice), t.Feedback&0x0F)

	slot = slotVoice[voice][1]
	off = offsetSlot[slot]
	fm.level[slot] = 63 - int(t.Level[1]&0x3F)
	fm.ksl[slot] = int(t.Level[1] & 0xC0)

	// carrier silent until the volume is set
	w(0x40+off, 63)
	w(0x80+off, 0xFF)

	w(0x60+off, t.Env1[1])
	w(0x80+off, t.Env2[1])
	w(0x20+off, t.SAVEK[1])
	w(0xE0+off, t.Wave[1])
}

// slotVolume applies the level, velocity, channel volume and music volume
// of one operator and returns its 0x40 register value.
func (fm *fmEngine) slotVolume(slot, velocity, chanVol int) uint8 {
	t := uint(fm.level[slot])
	t *= uint(velocity + 0x80)
	t = (uint(chanVol) * t) >> 15
	t = (t * uint(fm.volume)) >> 8
	return uint8((t^63)&0x3F) | uint8(fm.ksl[slot])
}

func (fm *fmEngine) setVolume(voice int) {
	v := &fm.voices[voice]
	if v.timbre < 0 || fm.bank == nil {
		return
	}
	t := &fm.bank[v.timbre]

	velocity := v.velocity + int(t.Velocity)
	velocity = max(0, min(velocity, maxVelocity))
	chanVol := fm.channels[v.channel].volume

	slot := slotVoice[voice][1]
	fm.synth.WriteReg(0x40+offsetSlot[slot], fm.slotVolume(slot, velocity, chanVol))

	// additive voices hear the modulator directly
	if t.Feedback&0x01 != 0 {
		slot = slotVoice[voice][0]
		fm.synth.WriteReg(0x40+offsetSlot[slot], fm.slotVolume(slot, velocity, chanVol))
	}
}

// pitchWord returns the block/fnum word of a voice without the key-on bit.
func (fm *fmEngine) pitchWord(v *fmVoice) int {
	ch := &fm.channels[v.channel]

	var note int
	if v.channel == percussionChan {
		note = fm.transpose(v.key + 128)
	} else {
		note = v.key + fm.transpose(ch.timbre)
	}
	note += ch.keyOffset - 12
	note = max(0, min(note, maxNote))

	return octavePitch[note/12] | notePitch[note%12]
}

func (fm *fmEngine) setPitch(voice int) {
	v := &fm.voices[voice]
	pitch := fm.pitchWord(v)
	v.pitchLeft = pitch
	pitch |= v.status

	fm.synth.WriteReg(0xA0+uint8(voice), uint8(pitch))
	fm.synth.WriteReg(0xB0+uint8(voice), uint8(pitch>>8))
}

// noteOn programs timbre, then volume, then pitch.
func (fm *fmEngine) noteOn(voice, channel, key, velocity int) {
	v := &fm.voices[voice]
	v.key = key
	v.channel = channel
	v.velocity = velocity
	v.status = noteOnBit
	v.active = true

	fm.setTimbre(voice)
	fm.setVolume(voice)
	fm.setPitch(voice)
}

// noteOff rewrites the last pitch without the key-on bit so the envelope
// releases naturally.
func (fm *fmEngine) noteOff(voice int) {
	v := &fm.voices[voice]
	if !v.active {
		return
	}
	v.status = 0
	fm.synth.WriteReg(0xA0+uint8(voice), uint8(v.pitchLeft))
	fm.synth.WriteReg(0xB0+uint8(voice), uint8(v.pitchLeft>>8))
	v.active = false
}

// allocate picks a voice for a new note: an idle voice already holding
// the instrument, then any idle voice, then a stolen one from the same
// channel, the percussion channel or voice 0.
func (fm *fmEngine) allocate(channel, key int) int {
	target := fm.channels[channel].timbre
	if channel == percussionChan {
		target = key + 128
	}

	for i := range fm.voices {
		if !fm.voices[i].active && fm.voices[i].timbre == target {
			return i
		}
	}
	for i := range fm.voices {
		if !fm.voices[i].active {
			return i
		}
	}

	steal := -1
	for i := range fm.voices {
		if fm.voices[i].channel == channel {
			steal = i
			break
		}
	}
	if steal < 0 {
		for i := range fm.voices {
			if fm.voices[i].channel == percussionChan {
				steal = i
				break
			}
		}
	}
	if steal < 0 {
		steal = 0
	}

	fm.noteOff(steal)
	return steal
}

func (fm *fmEngine) find(channel, key int) int {
	for i := range fm.voices {
		v := &fm.voices[i]
		if v.active && v.channel == channel && v.key == key {
			return i
		}
	}
	return -1
}

func (fm *fmEngine) allNotesOff(channel int) {
	for i := range fm.voices {
		if fm.voices[i].active && fm.voices[i].channel == channel {
			fm.noteOff(i)
		}
	}
}

func (fm *fmEngine) releaseAll() {
	for i := range fm.voices {
		fm.noteOff(i)
	}
}

// keyOffAll silences voices at the chip while keeping their state.
func (fm *fmEngine) keyOffAll() {
	for i := range fm.voices {
		if fm.voices[i].active {
			fm.synth.WriteReg(0xB0+uint8(i), 0)
		}
	}
}

func (fm *fmEngine) setMusicVolume(vol int) {
	fm.volume = max(0, min(vol, 255))
	for i := range fm.voices {
		if fm.voices[i].active {
			fm.setVolume(i)
		}
	}
}

// handle applies a channel event.
func (fm *fmEngine) handle(ev midi.Event) {
	ch := int(ev.Channel)

	switch ev.Type {
	case midi.NoteOff:
		if v := fm.find(ch, int(ev.Param1)); v >= 0 {
			fm.noteOff(v)
		}

	case midi.NoteOn:
		key := int(ev.Param1)
		if ev.Param2 == 0 {
			if v := fm.find(ch, key); v >= 0 {
				fm.noteOff(v)
			}
			return
		}
		v := fm.allocate(ch, key)
		fm.noteOn(v, ch, key, int(ev.Param2))

	case midi.Controller:
		val := int(ev.Param2)
		switch ev.Param1 {
		case controlVolume:
			fm.channels[ch].volume = val
			for i := range fm.voices {
				if fm.voices[i].active && fm.voices[i].channel == ch {
					fm.setVolume(i)
				}
			}
		case controlPan:
			fm.channels[ch].pan = val
		case controlReset:
			fm.channels[ch].pitchBend = 0
		case controlNotesOff:
			fm.allNotesOff(ch)
		}

	case midi.ProgramChange:
		// applied at the next note on
		fm.channels[ch].timbre = int(ev.Param1)

	case midi.PitchBend:
		fm.channels[ch].pitchBend = ev.Bend()
	}
}
