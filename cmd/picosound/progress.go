package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"golang.org/x/term"
)

// progress draws a one line status when stdout is a terminal.
type progress struct {
	w       io.Writer
	enabled bool
	drawn   bool
}

func newProgress() *progress {
	return &progress{w: os.Stdout, enabled: term.IsTerminal(int(os.Stdout.Fd()))}
}

func (p *progress) update(pos, total time.Duration, voices int) {
	if !p.enabled {
		return
	}
	p.drawn = true
	fmt.Fprint(p.w, "\r"+statusLine(pos, total, voices))
}

func (p *progress) finish() {
	if p.drawn {
		fmt.Fprintln(p.w)
		p.drawn = false
	}
}

func statusLine(pos, total time.Duration, voices int) string {
	if total <= 0 {
		return fmt.Sprintf("%s  voices %d", formatDuration(pos), voices)
	}
	percent := float64(pos) / float64(total) * 100
	return fmt.Sprintf("[%s] %s / %s (%.1f%%)  voices %d",
		makeProgressBar(percent, 30),
		formatDuration(pos),
		formatDuration(total),
		min(percent, 100),
		voices)
}

func formatDuration(d time.Duration) string {
	seconds := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}

func makeProgressBar(percent float64, width int) string {
	filled := max(0, min(int(percent/100*float64(width)), width))

	bar := strings.Repeat("=", filled)
	if filled < width {
		bar += ">"
		bar += strings.Repeat(" ", width-filled-1)
	}
	return bar
}
