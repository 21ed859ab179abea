package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/urfave/cli"

	"github.com/olivierh59500/picosound/pkg/audio"
	"github.com/olivierh59500/picosound/pkg/config"
	"github.com/olivierh59500/picosound/pkg/container"
	"github.com/olivierh59500/picosound/pkg/midi"
	"github.com/olivierh59500/picosound/pkg/mixer"
	"github.com/olivierh59500/picosound/pkg/music"
	"github.com/olivierh59500/picosound/pkg/notify"
	"github.com/olivierh59500/picosound/pkg/opl"
)

const (
	musicToken      uint32 = 1
	effectTokenBase uint32 = 100
)

// loadConfig reads --config, if any, and applies the global flags on top.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()
	if path := c.GlobalString("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}

	if v := c.GlobalString("output"); v != "" {
		cfg.Audio.Backend = v
	}
	if v := c.GlobalString("wav"); v != "" {
		cfg.Audio.WAVPath = v
	}
	if v := c.GlobalInt("rate"); v > 0 {
		cfg.Mixer.OutputRate = v
	}
	if v := c.GlobalInt("voices"); v > 0 {
		cfg.Mixer.Voices = v
	}
	if v := c.GlobalInt("volume"); v >= 0 {
		cfg.Mixer.Volume = v
	}
	if c.GlobalBool("reverse-stereo") {
		cfg.Mixer.ReverseStereo = true
	}
	return cfg, cfg.Validate()
}

// runtime is an engine with music bed and a channel of finished tokens.
type runtime struct {
	cfg    config.Config
	engine *mixer.Engine
	seq    *music.Sequencer
	done   chan uint32
}

func newRuntime(cfg config.Config) (*runtime, error) {
	rt := &runtime{
		cfg:    cfg,
		engine: mixer.NewEngine(cfg.EngineConfig()),
		done:   make(chan uint32, notify.QueueSize),
	}
	rt.engine.SetVolume(cfg.Mixer.Volume)
	rt.engine.SetReverseStereo(cfg.Mixer.ReverseStereo)

	// tokens are drained on the producer goroutine
	rt.engine.SetNotifier(notify.NotifierFunc(func(tok uint32) {
		select {
		case rt.done <- tok:
		default:
			slog.Warn("dropping finished token", "token", tok)
		}
	}))

	chip := opl.New(cfg.Mixer.OutputRate)
	chip.SetFilter(cfg.Music.Filter)
	rt.seq = music.New(chip, cfg.Mixer.OutputRate)
	rt.seq.SetVolume(cfg.Music.Volume)
	rt.seq.SetSink(rt.engine)
	rt.seq.SetDoneToken(musicToken)
	rt.engine.SetBed(rt.seq)

	if cfg.Music.TimbreBank != "" {
		if err := rt.loadBank(cfg.Music.TimbreBank); err != nil {
			return nil, err
		}
	}
	return rt, nil
}

func (rt *runtime) loadBank(path string) error {
	bank, err := music.LoadTimbreBank(path)
	if err != nil {
		return err
	}
	rt.seq.SetBank(bank)
	slog.Debug("timbre bank loaded", "path", path)
	return nil
}

// startMusic loads a MIDI file and returns its estimated length.
func (rt *runtime) startMusic(path string, loop bool) (time.Duration, error) {
	song, err := midi.Load(path)
	if err != nil {
		return 0, err
	}
	if err := rt.seq.Load(song, loop); err != nil {
		return 0, err
	}
	return music.Duration(song), nil
}

// effect is one sound started by startEffects.
type effect struct {
	path   string
	handle mixer.Handle
	length time.Duration
}

// startEffects plays every file at once. Each gets its own completion
// token, effectTokenBase plus its index.
func (rt *runtime) startEffects(paths []string, p mixer.Params, angle, distance int) (map[uint32]effect, error) {
	started := make(map[uint32]effect, len(paths))
	for i, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return started, fmt.Errorf("reading effect: %w", err)
		}

		tok := effectTokenBase + uint32(i)
		p.Token = tok
		h, length := rt.playEffect(data, p)
		if h == 0 {
			return started, fmt.Errorf("%s: no voice available or not playable", path)
		}
		if angle >= 0 {
			rt.engine.Pan3D(h, angle, distance)
		}
		started[tok] = effect{path: path, handle: h, length: length}
		slog.Debug("effect started", "path", path, "handle", h, "length", length)
	}
	return started, nil
}

func (rt *runtime) playEffect(data []byte, p mixer.Params) (mixer.Handle, time.Duration) {
	rawRate := rt.cfg.Mixer.RawRate

	var length time.Duration
	if s, err := container.Parse(data); err == nil && s.Rate > 0 {
		length = time.Duration(s.Frames()) * time.Second / time.Duration(s.Rate)
	} else {
		length = time.Duration(len(data)) * time.Second / time.Duration(rawRate)
	}

	if container.Detect(data) == container.FormatWAV {
		return rt.engine.PlayWAV(data, p), length
	}
	// VOC, falling back to raw unsigned 8-bit
	return rt.engine.PlayVOC(data, rawRate, p), length
}

// newOutput picks the configured backend. wavPath is used when the
// settings leave it empty.
func newOutput(cfg config.Config, wavPath string) (audio.Output, error) {
	switch cfg.Audio.Backend {
	case config.BackendOto:
		out, err := audio.NewStreamingOtoOutput()
		if err != nil {
			slog.Warn("audio device unavailable, falling back to timing output", "error", err)
			return audio.NewFallbackOutput()
		}
		return out, nil
	case config.BackendWAV:
		if cfg.Audio.WAVPath != "" {
			wavPath = cfg.Audio.WAVPath
		}
		return audio.NewWAVOutput(wavPath), nil
	case config.BackendNull:
		return audio.NewNullOutput(), nil
	}
	return nil, fmt.Errorf("unknown output backend: %s", cfg.Audio.Backend)
}

func wavName(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".wav"
}
