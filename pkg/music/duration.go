package music

import (
	"cmp"
	"slices"
	"time"

	"github.com/olivierh59500/picosound/pkg/midi"
)

// Duration estimates the playing time of song, following tempo changes
// on any track.
func Duration(song *midi.File) time.Duration {
	if song == nil || song.Division <= 0 {
		return 0
	}

	type tempoChange struct {
		tick  uint64
		tempo uint64
	}
	var (
		changes []tempoChange
		end     uint64
	)
	for _, tr := range song.Tracks {
		var tick uint64
		for _, ev := range tr.Events {
			tick += uint64(ev.Delta)
			if t, ok := ev.Tempo(); ok && t > 0 {
				changes = append(changes, tempoChange{tick, uint64(t)})
			}
		}
		end = max(end, tick)
	}
	slices.SortStableFunc(changes, func(a, b tempoChange) int {
		return cmp.Compare(a.tick, b.tick)
	})

	div := uint64(song.Division)
	tempo := uint64(DefaultTempo)
	var us, last uint64
	for _, c := range changes {
		us += (c.tick - last) * tempo / div
		last, tempo = c.tick, c.tempo
	}
	us += (end - last) * tempo / div
	return time.Duration(us) * time.Microsecond
}
