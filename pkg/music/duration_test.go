package music

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olivierh59500/picosound/pkg/midi"
)

func TestDuration(t *testing.T) {
	song, err := midi.Parse(smf(96,
		track(
			ev(0, 0x90, 60, 100),
			ev(192, 0x80, 60, 0), // two beats at 120 bpm
		),
		track(
			ev(96, 0xFF, 0x51, 0x03, 0x0F, 0x42, 0x40), // 1000000 from beat one
			ev(192, 0x91, 64, 100),
		),
	))
	require.NoError(t, err)

	// one beat at 0.5 s then two at 1 s
	assert.Equal(t, 2500*time.Millisecond, Duration(song))
	assert.Zero(t, Duration(nil))
}
