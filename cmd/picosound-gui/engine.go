//go:build gui

package main

import (
	"context"
	"fmt"
	"os"
	"time"

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

// soundSystem is the engine, its music bed and the realtime player the
// window drives.
type soundSystem struct {
	cfg    config.Config
	engine *mixer.Engine
	seq    *music.Sequencer
	player *audio.Player
	done   chan uint32
}

func newSoundSystem(cfg config.Config) *soundSystem {
	s := &soundSystem{
		cfg:    cfg,
		engine: mixer.NewEngine(cfg.EngineConfig()),
		done:   make(chan uint32, notify.QueueSize),
	}
	s.engine.SetVolume(cfg.Mixer.Volume)
	s.engine.SetNotifier(notify.NotifierFunc(func(tok uint32) {
		select {
		case s.done <- tok:
		default:
		}
	}))

	s.seq = music.New(opl.New(cfg.Mixer.OutputRate), cfg.Mixer.OutputRate)
	s.seq.SetVolume(cfg.Music.Volume)
	s.seq.SetSink(s.engine)
	s.seq.SetDoneToken(musicToken)
	s.engine.SetBed(s.seq)
	return s
}

// start opens the device, or the timing fallback when there is none.
func (s *soundSystem) start() error {
	var out audio.Output
	if dev, err := audio.NewStreamingOtoOutput(); err == nil {
		out = dev
	} else {
		out, _ = audio.NewFallbackOutput()
	}
	s.player = audio.NewPlayer(s.engine, out)
	if err := s.player.Start(context.Background()); err != nil {
		fb, _ := audio.NewFallbackOutput()
		s.player = audio.NewPlayer(s.engine, fb)
		return s.player.Start(context.Background())
	}
	return nil
}

func (s *soundSystem) stop() {
	s.seq.Stop()
	s.engine.StopAll()
	if s.player != nil {
		s.player.Stop()
	}
}

// loadSong reads a playlist entry.
func loadSong(path string) (*midi.File, *PlaylistItem, error) {
	song, err := midi.Load(path)
	if err != nil {
		return nil, nil, err
	}
	return song, &PlaylistItem{
		Path:     path,
		Title:    songTitle(path),
		Tracks:   song.NumTracks(),
		Duration: music.Duration(song),
	}, nil
}

// effectSound is a sound file on the effect pad.
type effectSound struct {
	path     string
	data     []byte
	describe string
}

func loadEffect(path string) (*effectSound, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fx := &effectSound{path: path, data: data}
	if s, err := container.Parse(data); err == nil && s.Rate > 0 {
		d := time.Duration(s.Frames()) * time.Second / time.Duration(s.Rate)
		fx.describe = fmt.Sprintf("%s %s %d Hz, %.2fs", container.Detect(data), s.Encoding, s.Rate, d.Seconds())
	} else {
		fx.describe = fmt.Sprintf("raw, %d bytes", len(data))
	}
	return fx, nil
}

func (s *soundSystem) playEffect(fx *effectSound, p mixer.Params) mixer.Handle {
	if container.Detect(fx.data) == container.FormatWAV {
		return s.engine.PlayWAV(fx.data, p)
	}
	return s.engine.PlayVOC(fx.data, s.cfg.Mixer.RawRate, p)
}

// exportSong renders path with its own engine so playback is untouched.
func exportSong(cfg config.Config, path, dest string, bank *music.TimbreBank) error {
	song, err := midi.Load(path)
	if err != nil {
		return err
	}

	engine := mixer.NewEngine(cfg.EngineConfig())
	seq := music.New(opl.New(cfg.Mixer.OutputRate), cfg.Mixer.OutputRate)
	seq.SetVolume(cfg.Music.Volume)
	if bank != nil {
		seq.SetBank(bank)
	}
	engine.SetBed(seq)
	if err := seq.Load(song, false); err != nil {
		return err
	}

	length := music.Duration(song) + 500*time.Millisecond
	frames := int(length * time.Duration(cfg.Mixer.OutputRate) / time.Second)
	return audio.RenderTo(engine, audio.NewWAVOutput(dest), frames)
}
