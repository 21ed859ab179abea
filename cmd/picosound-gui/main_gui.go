//go:build gui

package main

import (
	"log/slog"
	"os"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	gui, err := NewPicoSoundGUI()
	if err != nil {
		slog.Error("starting audio", "error", err)
		os.Exit(1)
	}

	// MIDI files go to the playlist, anything else to the effect pad
	for _, path := range os.Args[1:] {
		gui.addPath(path)
	}

	gui.Run()
}
