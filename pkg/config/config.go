// Package config loads the TOML settings shared by the command line
// tools.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/olivierh59500/picosound/pkg/mixer"
	"github.com/olivierh59500/picosound/pkg/music"
)

var ErrInvalid = errors.New("config: invalid value")

// Backends accepted by Audio.Backend.
const (
	BackendOto  = "oto"
	BackendWAV  = "wav"
	BackendNull = "null"
)

type Audio struct {
	Backend string `toml:"backend"`
	// WAVPath is the wav backend destination. Empty means next to the
	// input file.
	WAVPath string `toml:"wav_path"`
}

type Mixer struct {
	Voices        int  `toml:"voices"`
	OutputRate    int  `toml:"output_rate"`
	BufferFrames  int  `toml:"buffer_frames"`
	Buffers       int  `toml:"buffers"`
	CallbackBatch int  `toml:"callback_batch"`
	Volume        int  `toml:"volume"`
	ReverseStereo bool `toml:"reverse_stereo"`
	LowPass       bool `toml:"low_pass"`
	RawRate       int  `toml:"raw_rate"`
}

type Music struct {
	Volume     int    `toml:"volume"`
	Loop       bool   `toml:"loop"`
	TimbreBank string `toml:"timbre_bank"`
	Filter     bool   `toml:"filter"`
}

// Config is the complete settings file.
type Config struct {
	Audio Audio `toml:"audio"`
	Mixer Mixer `toml:"mixer"`
	Music Music `toml:"music"`
}

// Default returns the settings used when no file is given.
func Default() Config {
	m := mixer.DefaultConfig()
	return Config{
		Audio: Audio{Backend: BackendOto},
		Mixer: Mixer{
			Voices:        m.Voices,
			OutputRate:    m.OutputRate,
			BufferFrames:  m.BufferFrames,
			Buffers:       m.Buffers,
			CallbackBatch: m.CallbackBatch,
			Volume:        255,
			RawRate:       mixer.DefaultRawRate,
		},
		Music: Music{Volume: music.DefaultVolume},
	}
}

// Load reads path over the defaults. Keys the file does not set keep
// their default; unknown keys are an error.
func Load(path string) (Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		keys := make([]string, len(undec))
		for i, k := range undec {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%w: unknown keys %s", ErrInvalid, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges.
func (c Config) Validate() error {
	switch c.Audio.Backend {
	case BackendOto, BackendWAV, BackendNull:
	default:
		return fmt.Errorf("%w: audio.backend %q", ErrInvalid, c.Audio.Backend)
	}

	checks := []struct {
		name     string
		val      int
		min, max int
	}{
		{"mixer.voices", c.Mixer.Voices, 1, 64},
		{"mixer.output_rate", c.Mixer.OutputRate, 4000, 96000},
		{"mixer.buffer_frames", c.Mixer.BufferFrames, 16, 16384},
		{"mixer.buffers", c.Mixer.Buffers, 2, 64},
		{"mixer.callback_batch", c.Mixer.CallbackBatch, 1, 31},
		{"mixer.volume", c.Mixer.Volume, 0, 255},
		{"mixer.raw_rate", c.Mixer.RawRate, 1000, 48000},
		{"music.volume", c.Music.Volume, 0, 255},
	}
	for _, ch := range checks {
		if ch.val < ch.min || ch.val > ch.max {
			return fmt.Errorf("%w: %s = %d, want %d..%d", ErrInvalid, ch.name, ch.val, ch.min, ch.max)
		}
	}
	return nil
}

// EngineConfig returns the mixer settings in engine form.
func (c Config) EngineConfig() mixer.Config {
	return mixer.Config{
		Voices:        c.Mixer.Voices,
		OutputRate:    c.Mixer.OutputRate,
		BufferFrames:  c.Mixer.BufferFrames,
		Buffers:       c.Mixer.Buffers,
		CallbackBatch: c.Mixer.CallbackBatch,
		LowPass:       c.Mixer.LowPass,
	}
}
