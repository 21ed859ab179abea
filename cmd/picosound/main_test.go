package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olivierh59500/picosound/pkg/audio"
	"github.com/olivierh59500/picosound/pkg/config"
)

// one track: middle C for one beat at 120 bpm, 96 ticks per beat
var testSong = []byte{
	'M', 'T', 'h', 'd', 0, 0, 0, 6, 0, 0, 0, 1, 0, 96,
	'M', 'T', 'r', 'k', 0, 0, 0, 12,
	0x00, 0x90, 60, 100,
	0x60, 0x80, 60, 0,
	0x00, 0xFF, 0x2F, 0x00,
}

func writeInputs(t *testing.T) (song, raw string) {
	t.Helper()
	dir := t.TempDir()
	song = filepath.Join(dir, "song.mid")
	raw = filepath.Join(dir, "beep.raw")
	require.NoError(t, os.WriteFile(song, testSong, 0o644))
	require.NoError(t, os.WriteFile(raw, bytes.Repeat([]byte{0xC0, 0x40}, 1100), 0o644))
	return song, raw
}

func decodeWAV(t *testing.T, path string) (frames int, rate uint32) {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	dec := wav.NewDecoder(f)
	require.True(t, dec.IsValidFile())
	buf, err := dec.FullPCMBuffer()
	require.NoError(t, err)
	return len(buf.Data) / int(dec.NumChans), dec.SampleRate
}

func TestRenderCommand(t *testing.T) {
	song, raw := writeInputs(t)
	dest := filepath.Join(t.TempDir(), "mix.wav")

	err := newApp().Run([]string{"picosound", "render", "--out", dest, song, raw})
	require.NoError(t, err)

	// one second: the song plus release room, in whole buffers
	frames, rate := decodeWAV(t, dest)
	assert.Equal(t, uint32(22050), rate)
	assert.GreaterOrEqual(t, frames, 22050)
	assert.Less(t, frames, 22050+512)
}

func TestRenderSeconds(t *testing.T) {
	_, raw := writeInputs(t)

	err := newApp().Run([]string{"picosound", "--rate", "11025", "render", "--seconds", "0.25", raw})
	require.NoError(t, err)

	frames, rate := decodeWAV(t, wavName(raw))
	assert.Equal(t, uint32(11025), rate)
	assert.Equal(t, 3072, frames)
}

func TestRenderRejectsTwoSongs(t *testing.T) {
	song, _ := writeInputs(t)
	err := newApp().Run([]string{"picosound", "render", song, song})
	assert.ErrorContains(t, err, "only one MIDI file")
}

func TestPlayAndSfxFinish(t *testing.T) {
	song, raw := writeInputs(t)

	done := make(chan error, 2)
	go func() {
		done <- newApp().Run([]string{"picosound", "--output", "null", "play", song})
	}()
	go func() {
		done <- newApp().Run([]string{"picosound", "--output", "null", "sfx", "--vol", "64", raw, raw})
	}()

	for i := 0; i < 2; i++ {
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(10 * time.Second):
			t.Fatal("playback did not finish")
		}
	}
}

func TestInfoCommand(t *testing.T) {
	song, raw := writeInputs(t)
	assert.NoError(t, newApp().Run([]string{"picosound", "info", song, raw}))
	assert.Error(t, newApp().Run([]string{"picosound", "info", filepath.Join(t.TempDir(), "none")}))
}

func TestBadSettings(t *testing.T) {
	song, _ := writeInputs(t)
	err := newApp().Run([]string{"picosound", "--output", "alsa", "play", song})
	assert.ErrorIs(t, err, config.ErrInvalid)

	err = newApp().Run([]string{"picosound", "--output", "null", "play", "--bank", filepath.Join(t.TempDir(), "x.tmb"), song})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestNewOutput(t *testing.T) {
	cfg := config.Default()

	cfg.Audio.Backend = config.BackendNull
	out, err := newOutput(cfg, "x.wav")
	require.NoError(t, err)
	assert.IsType(t, &audio.NullOutput{}, out)

	cfg.Audio.Backend = config.BackendWAV
	out, err = newOutput(cfg, "x.wav")
	require.NoError(t, err)
	assert.Equal(t, "x.wav", out.(*audio.WAVOutput).Path())

	cfg.Audio.WAVPath = "y.wav"
	out, err = newOutput(cfg, "x.wav")
	require.NoError(t, err)
	assert.Equal(t, "y.wav", out.(*audio.WAVOutput).Path())

	cfg.Audio.Backend = "alsa"
	_, err = newOutput(cfg, "x.wav")
	assert.Error(t, err)
}

func TestProgressHelpers(t *testing.T) {
	assert.Equal(t, "01:05", formatDuration(65*time.Second+900*time.Millisecond))
	assert.Equal(t, "=====>    ", makeProgressBar(50, 10))
	assert.Equal(t, "==========", makeProgressBar(150, 10))
	assert.Equal(t, ">         ", makeProgressBar(-5, 10))
	assert.Equal(t, "00:03  voices 2", statusLine(3*time.Second, 0, 2))
	assert.Contains(t, statusLine(time.Second, 2*time.Second, 1), "(50.0%)")

	var buf bytes.Buffer
	p := &progress{w: &buf}
	p.update(time.Second, 0, 0)
	p.finish()
	assert.Empty(t, buf.String())

	p.enabled = true
	p.update(time.Second, 0, 0)
	p.finish()
	assert.Equal(t, "\r00:01  voices 0\n", buf.String())
}

func TestWavName(t *testing.T) {
	assert.Equal(t, "dir/song.wav", wavName("dir/song.mid"))
	assert.Equal(t, "beep.wav", wavName("beep"))
}
