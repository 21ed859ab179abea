//go:build gui

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPlaylist() *Playlist {
	p := NewPlaylist("test")
	p.Add(&PlaylistItem{Path: "/m/b.mid", Title: "beta", Duration: 90 * time.Second})
	p.Add(&PlaylistItem{Path: "/m/a.mid", Title: "Alpha", Duration: 30 * time.Second})
	p.Add(&PlaylistItem{Path: "/m/c.mid", Title: "gamma", Duration: 60 * time.Second})
	return p
}

func titles(p *Playlist) []string {
	var out []string
	for _, it := range p.Items {
		out = append(out, it.Title)
	}
	return out
}

func TestPlaylistEditing(t *testing.T) {
	p := testPlaylist()
	assert.Equal(t, 3*time.Minute, p.TotalDuration())

	require.NoError(t, p.MoveUp(1))
	assert.Equal(t, []string{"Alpha", "beta", "gamma"}, titles(p))
	assert.Error(t, p.MoveUp(0))

	require.NoError(t, p.MoveDown(0))
	assert.Equal(t, []string{"beta", "Alpha", "gamma"}, titles(p))
	assert.Error(t, p.MoveDown(2))

	require.NoError(t, p.Remove(1))
	assert.Equal(t, []string{"beta", "gamma"}, titles(p))
	assert.ErrorIs(t, p.Remove(5), errIndex)

	_, err := p.Get(-1)
	assert.ErrorIs(t, err, errIndex)

	p.Clear()
	assert.Zero(t, p.Size())
}

func TestPlaylistSort(t *testing.T) {
	p := testPlaylist()
	p.Sort(SortByTitle)
	assert.Equal(t, []string{"Alpha", "beta", "gamma"}, titles(p))
	p.Sort(SortByDuration)
	assert.Equal(t, []string{"Alpha", "gamma", "beta"}, titles(p))
	p.Sort(SortByPath)
	assert.Equal(t, []string{"Alpha", "beta", "gamma"}, titles(p))

	p.Shuffle()
	assert.ElementsMatch(t, []string{"Alpha", "beta", "gamma"}, titles(p))
}

func TestPlaylistJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.json")
	p := testPlaylist()
	require.NoError(t, p.Save(path))

	got, err := LoadPlaylist(path)
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestPlaylistM3U(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "list.m3u")
	require.NoError(t, testPlaylist().SaveM3U(path))

	got, err := LoadM3U(path)
	require.NoError(t, err)
	assert.Equal(t, "test", got.Name)
	assert.Equal(t, testPlaylist().Items, got.Items)

	plain := filepath.Join(dir, "plain.m3u")
	require.NoError(t, os.WriteFile(plain, []byte("# comment\nsongs/intro.mid\n"), 0o644))
	got, err = LoadM3U(plain)
	require.NoError(t, err)
	require.Equal(t, 1, got.Size())
	assert.Equal(t, filepath.Join(dir, "songs", "intro.mid"), got.Items[0].Path)
	assert.Equal(t, "intro", got.Items[0].Title)
}
