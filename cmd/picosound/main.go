package main

import (
	"log/slog"
	"os"

	"github.com/urfave/cli"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		slog.Error("picosound failed", "error", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "picosound"
	app.Usage = "play sound effects and MIDI music through the picosound mixer"
	app.Version = "1.0.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Usage: "TOML settings file",
		},
		cli.StringFlag{
			Name:  "output",
			Usage: "Output backend (oto, wav, null)",
		},
		cli.StringFlag{
			Name:  "wav",
			Usage: "Output WAV file (when using wav output)",
		},
		cli.IntFlag{
			Name:  "rate",
			Usage: "Output sample rate (Hz)",
		},
		cli.IntFlag{
			Name:  "voices",
			Usage: "Number of effect voices",
		},
		cli.IntFlag{
			Name:  "volume",
			Usage: "Master effects volume (0-255)",
			Value: -1,
		},
		cli.BoolFlag{
			Name:  "reverse-stereo",
			Usage: "Swap left and right",
		},
		cli.BoolFlag{
			Name:  "verbose",
			Usage: "Debug logging",
		},
	}
	app.Before = func(c *cli.Context) error {
		level := slog.LevelInfo
		if c.Bool("verbose") {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		return nil
	}
	app.Commands = []cli.Command{
		playCommand,
		sfxCommand,
		infoCommand,
		renderCommand,
	}
	return app
}
