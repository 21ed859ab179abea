package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/olivierh59500/picosound/pkg/audio"
	"github.com/olivierh59500/picosound/pkg/codec"
	"github.com/olivierh59500/picosound/pkg/container"
	"github.com/olivierh59500/picosound/pkg/midi"
	"github.com/olivierh59500/picosound/pkg/mixer"
	"github.com/olivierh59500/picosound/pkg/music"
)

var musicFlags = []cli.Flag{
	cli.BoolFlag{
		Name:  "loop",
		Usage: "Loop the song",
	},
	cli.StringFlag{
		Name:  "bank",
		Usage: "Timbre bank file (256 x 13 bytes)",
	},
	cli.IntFlag{
		Name:  "music-volume",
		Usage: "Music volume (0-255)",
		Value: -1,
	},
}

var effectFlags = []cli.Flag{
	cli.IntFlag{
		Name:  "vol",
		Usage: "Volume for both sides when --left and --right are unset (0-127)",
		Value: 127,
	},
	cli.IntFlag{
		Name:  "left",
		Usage: "Left volume",
	},
	cli.IntFlag{
		Name:  "right",
		Usage: "Right volume",
	},
	cli.IntFlag{
		Name:  "pitch",
		Usage: "Pitch offset in 1/2048 of the source rate",
	},
	cli.IntFlag{
		Name:  "priority",
		Usage: "Voice priority",
	},
	cli.BoolFlag{
		Name:  "loop-effect",
		Usage: "Loop the effects until interrupted",
	},
	cli.IntFlag{
		Name:  "angle",
		Usage: "Place the effects at this angle (0-255, -1 = off)",
		Value: -1,
	},
	cli.IntFlag{
		Name:  "distance",
		Usage: "Distance used with --angle (0-255)",
	},
	cli.IntFlag{
		Name:  "raw-rate",
		Usage: "Sample rate for files that are not VOC or WAV",
	},
}

var playCommand = cli.Command{
	Name:      "play",
	Usage:     "Play a MIDI file on the FM synthesizer",
	ArgsUsage: "<midi-file>",
	Flags:     musicFlags,
	Action:    runPlay,
}

var sfxCommand = cli.Command{
	Name:      "sfx",
	Usage:     "Play VOC, WAV or raw sound effects together",
	ArgsUsage: "<file>...",
	Flags: append([]cli.Flag{
		cli.StringFlag{
			Name:  "music",
			Usage: "MIDI file played under the effects",
		},
	}, append(effectFlags, musicFlags...)...),
	Action: runSfx,
}

var infoCommand = cli.Command{
	Name:      "info",
	Usage:     "Describe sound and MIDI files",
	ArgsUsage: "<file>...",
	Action:    runInfo,
}

var renderCommand = cli.Command{
	Name:      "render",
	Usage:     "Render MIDI and effect files to a WAV file",
	ArgsUsage: "<file>...",
	Flags: append([]cli.Flag{
		cli.StringFlag{
			Name:  "out",
			Usage: "Destination WAV file (default: first input with .wav)",
		},
		cli.Float64Flag{
			Name:  "seconds",
			Usage: "Length to render (default: longest input)",
		},
	}, append(effectFlags, musicFlags...)...),
	Action: runRender,
}

// applyMusicFlags folds the per-command music flags into ms.
func applyMusicFlags(c *cli.Context, ms *musicSettings) {
	if c.Bool("loop") {
		ms.loop = true
	}
	if v := c.String("bank"); v != "" {
		ms.bank = v
	}
	if v := c.Int("music-volume"); v >= 0 {
		ms.volume = min(v, 255)
	}
}

type musicSettings struct {
	loop   bool
	bank   string
	volume int
}

func setup(c *cli.Context) (*runtime, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, err
	}
	ms := musicSettings{loop: cfg.Music.Loop, bank: cfg.Music.TimbreBank, volume: cfg.Music.Volume}
	applyMusicFlags(c, &ms)
	cfg.Music.Loop = ms.loop
	cfg.Music.TimbreBank = ms.bank
	cfg.Music.Volume = ms.volume
	if v := c.Int("raw-rate"); v > 0 {
		cfg.Mixer.RawRate = v
	}
	return newRuntime(cfg)
}

func effectParams(c *cli.Context) (mixer.Params, int, int) {
	p := mixer.Params{
		Vol:      c.Int("vol"),
		Left:     c.Int("left"),
		Right:    c.Int("right"),
		Pitch:    c.Int("pitch"),
		Priority: c.Int("priority"),
		Loop:     c.Bool("loop-effect"),
	}
	return p, c.Int("angle"), c.Int("distance")
}

func runPlay(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		cli.ShowCommandHelp(c, "play")
		return errors.New("no MIDI file given")
	}

	rt, err := setup(c)
	if err != nil {
		return err
	}
	total, err := rt.startMusic(path, rt.cfg.Music.Loop)
	if err != nil {
		return err
	}

	out, err := newOutput(rt.cfg, wavName(path))
	if err != nil {
		return err
	}

	fmt.Printf("Playing %s (%s)... (Press Ctrl+C to stop)\n", filepath.Base(path), formatDuration(total))
	if rt.cfg.Music.Loop {
		fmt.Printf("Looping enabled\n")
	}
	return rt.run(out, total, rt.seq.Position, func(tok uint32) bool {
		return tok == musicToken
	})
}

func runSfx(c *cli.Context) error {
	if c.NArg() == 0 {
		cli.ShowCommandHelp(c, "sfx")
		return errors.New("no effect files given")
	}

	rt, err := setup(c)
	if err != nil {
		return err
	}
	if path := c.String("music"); path != "" {
		if _, err := rt.startMusic(path, true); err != nil {
			return err
		}
	}

	p, angle, distance := effectParams(c)
	pending, err := rt.startEffects(c.Args(), p, angle, distance)
	if err != nil {
		return err
	}

	var total time.Duration
	for _, fx := range pending {
		total = max(total, fx.length)
	}

	out, err := newOutput(rt.cfg, wavName(c.Args().First()))
	if err != nil {
		return err
	}

	fmt.Printf("Playing %d effect(s)... (Press Ctrl+C to stop)\n", len(pending))
	start := time.Now()
	return rt.run(out, total, func() time.Duration { return time.Since(start) }, func(tok uint32) bool {
		if fx, ok := pending[tok]; ok {
			fmt.Printf("\rfinished %s\n", filepath.Base(fx.path))
			delete(pending, tok)
		}
		return len(pending) == 0
	})
}

// run plays until finished reports true for a completion token, the
// output fails or the process is interrupted.
func (rt *runtime) run(out audio.Output, total time.Duration, pos func() time.Duration, finished func(uint32) bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	player := audio.NewPlayer(rt.engine, out)
	if err := player.Start(ctx); err != nil {
		return err
	}
	errc := make(chan error, 1)
	go func() { errc <- player.Wait() }()

	prog := newProgress()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var err error
loop:
	for {
		select {
		case <-ctx.Done():
			prog.finish()
			fmt.Printf("\nStopping...\n")
			break loop
		case err = <-errc:
			break loop
		case tok := <-rt.done:
			if finished(tok) {
				prog.finish()
				fmt.Printf("Playback finished.\n")
				break loop
			}
		case <-ticker.C:
			prog.update(pos(), total, rt.engine.VoicesPlaying())
		}
	}
	prog.finish()

	rt.seq.Stop()
	rt.engine.StopAll()
	if serr := player.Stop(); err == nil {
		err = serr
	}
	return err
}

func runRender(c *cli.Context) error {
	if c.NArg() == 0 {
		cli.ShowCommandHelp(c, "render")
		return errors.New("no input files given")
	}

	rt, err := setup(c)
	if err != nil {
		return err
	}

	var (
		total   time.Duration
		effects []string
		song    bool
	)
	for _, path := range c.Args() {
		if !isMIDI(path) {
			effects = append(effects, path)
			continue
		}
		if song {
			return fmt.Errorf("%s: only one MIDI file can be rendered", path)
		}
		song = true
		length, err := rt.startMusic(path, rt.cfg.Music.Loop)
		if err != nil {
			return err
		}
		total = max(total, length)
	}

	p, angle, distance := effectParams(c)
	started, err := rt.startEffects(effects, p, angle, distance)
	if err != nil {
		return err
	}
	for _, fx := range started {
		total = max(total, fx.length)
	}

	if s := c.Float64("seconds"); s > 0 {
		total = time.Duration(s * float64(time.Second))
	} else {
		// room for release tails
		total += 500 * time.Millisecond
	}

	dest := c.String("out")
	if dest == "" {
		dest = wavName(c.Args().First())
	}
	out := audio.NewWAVOutput(dest)
	frames := int(total * time.Duration(rt.cfg.Mixer.OutputRate) / time.Second)

	if err := audio.RenderTo(rt.engine, out, frames); err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%s, %d frames)\n", dest, formatDuration(total), out.Frames())
	return nil
}

func isMIDI(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	var magic [4]byte
	_, err = f.Read(magic[:])
	return err == nil && string(magic[:]) == "MThd"
}

func runInfo(c *cli.Context) error {
	if c.NArg() == 0 {
		cli.ShowCommandHelp(c, "info")
		return errors.New("no files given")
	}

	rawRate := mixer.DefaultRawRate
	for _, path := range c.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", filepath.Base(path))
		describe(data, rawRate)
		fmt.Printf("\n")
	}
	return nil
}

func describe(data []byte, rawRate int) {
	if bytes.HasPrefix(data, []byte("MThd")) {
		song, err := midi.Parse(data)
		if err != nil {
			fmt.Printf("  MIDI, unreadable: %v\n", err)
			return
		}
		events := 0
		for _, tr := range song.Tracks {
			events += len(tr.Events)
		}
		fmt.Printf("  Type:     MIDI format %d\n", song.Format)
		fmt.Printf("  Division: %d ticks per beat\n", song.Division)
		fmt.Printf("  Tracks:   %d (%d events)\n", song.NumTracks(), events)
		fmt.Printf("  Duration: %s\n", formatDuration(music.Duration(song)))
		return
	}

	s, err := container.Parse(data)
	if err != nil {
		fmt.Printf("  Type:     raw %s at %d Hz (%v)\n", codec.PCMU8, rawRate, err)
		fmt.Printf("  Duration: %s\n", formatDuration(time.Duration(len(data))*time.Second/time.Duration(rawRate)))
		return
	}
	fmt.Printf("  Type:     %s\n", container.Detect(data))
	fmt.Printf("  Encoding: %s\n", s.Encoding)
	fmt.Printf("  Rate:     %d Hz\n", s.Rate)
	fmt.Printf("  Frames:   %d\n", s.Frames())
	if s.Rate > 0 {
		fmt.Printf("  Duration: %s\n", formatDuration(time.Duration(s.Frames())*time.Second/time.Duration(s.Rate)))
	}
}
