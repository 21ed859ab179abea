package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olivierh59500/picosound/pkg/mixer"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "picosound.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, mixer.DefaultConfig(), cfg.EngineConfig())
	assert.Equal(t, 153, cfg.Music.Volume)
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
[audio]
backend = "wav"
wav_path = "music.wav"

[mixer]
voices = 16
low_pass = true

[music]
loop = true
timbre_bank = "genmidi.tmb"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendWAV, cfg.Audio.Backend)
	assert.Equal(t, "music.wav", cfg.Audio.WAVPath)
	assert.Equal(t, 16, cfg.Mixer.Voices)
	assert.True(t, cfg.Mixer.LowPass)
	assert.True(t, cfg.EngineConfig().LowPass)
	assert.True(t, cfg.Music.Loop)
	assert.Equal(t, "genmidi.tmb", cfg.Music.TimbreBank)

	// untouched keys keep their defaults
	assert.Equal(t, 22050, cfg.Mixer.OutputRate)
	assert.Equal(t, 153, cfg.Music.Volume)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", "[mixer]\nchannels = 2\n"},
		{"bad backend", "[audio]\nbackend = \"alsa\"\n"},
		{"too many voices", "[mixer]\nvoices = 1000\n"},
		{"volume range", "[music]\nvolume = 300\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}

	_, err := Load(writeConfig(t, "[mixer\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
