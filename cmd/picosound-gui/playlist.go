//go:build gui

package main

import (
	"bufio"
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

var errIndex = errors.New("index out of range")

// PlaylistItem is one MIDI song.
type PlaylistItem struct {
	Path     string        `json:"path"`
	Title    string        `json:"title"`
	Tracks   int           `json:"tracks"`
	Duration time.Duration `json:"duration"`
}

// Playlist is an ordered list of songs.
type Playlist struct {
	Name  string          `json:"name"`
	Items []*PlaylistItem `json:"items"`
}

func NewPlaylist(name string) *Playlist {
	return &Playlist{Name: name}
}

func (p *Playlist) Add(item *PlaylistItem) {
	p.Items = append(p.Items, item)
}

func (p *Playlist) Remove(index int) error {
	if index < 0 || index >= len(p.Items) {
		return errIndex
	}
	p.Items = slices.Delete(p.Items, index, index+1)
	return nil
}

func (p *Playlist) MoveUp(index int) error {
	if index <= 0 || index >= len(p.Items) {
		return fmt.Errorf("cannot move item %d up", index)
	}
	p.Items[index], p.Items[index-1] = p.Items[index-1], p.Items[index]
	return nil
}

func (p *Playlist) MoveDown(index int) error {
	if index < 0 || index >= len(p.Items)-1 {
		return fmt.Errorf("cannot move item %d down", index)
	}
	p.Items[index], p.Items[index+1] = p.Items[index+1], p.Items[index]
	return nil
}

func (p *Playlist) Clear() {
	p.Items = nil
}

func (p *Playlist) Size() int {
	return len(p.Items)
}

func (p *Playlist) Get(index int) (*PlaylistItem, error) {
	if index < 0 || index >= len(p.Items) {
		return nil, errIndex
	}
	return p.Items[index], nil
}

// Save writes the playlist as JSON.
func (p *Playlist) Save(filename string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0o644)
}

func LoadPlaylist(filename string) (*Playlist, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	var playlist Playlist
	if err := json.Unmarshal(data, &playlist); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return &playlist, nil
}

// SaveM3U exports the playlist as extended M3U.
func (p *Playlist) SaveM3U(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	fmt.Fprintln(w, "#EXTM3U")
	fmt.Fprintf(w, "#PLAYLIST:%s\n", p.Name)
	for _, item := range p.Items {
		fmt.Fprintf(w, "#EXTINF:%d,%s\n", int(item.Duration/time.Second), item.Title)
		fmt.Fprintln(w, item.Path)
	}
	return w.Flush()
}

// LoadM3U reads an M3U file. Titles and durations come from #EXTINF
// lines when present; relative paths are resolved against the playlist.
func LoadM3U(filename string) (*Playlist, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	playlist := NewPlaylist(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)))
	var pending *PlaylistItem

	sc := bufio.NewScanner(file)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case line == "":
		case strings.HasPrefix(line, "#PLAYLIST:"):
			playlist.Name = strings.TrimPrefix(line, "#PLAYLIST:")
		case strings.HasPrefix(line, "#EXTINF:"):
			secs, title, _ := strings.Cut(strings.TrimPrefix(line, "#EXTINF:"), ",")
			pending = &PlaylistItem{Title: title}
			if n, err := strconv.Atoi(secs); err == nil && n > 0 {
				pending.Duration = time.Duration(n) * time.Second
			}
		case strings.HasPrefix(line, "#"):
		default:
			item := pending
			if item == nil {
				item = &PlaylistItem{}
			}
			pending = nil
			if !filepath.IsAbs(line) {
				line = filepath.Join(filepath.Dir(filename), line)
			}
			item.Path = line
			if item.Title == "" {
				item.Title = songTitle(line)
			}
			playlist.Add(item)
		}
	}
	return playlist, sc.Err()
}

func (p *Playlist) TotalDuration() time.Duration {
	var total time.Duration
	for _, item := range p.Items {
		total += item.Duration
	}
	return total
}

func (p *Playlist) Shuffle() {
	rand.Shuffle(len(p.Items), func(i, j int) {
		p.Items[i], p.Items[j] = p.Items[j], p.Items[i]
	})
}

// SortBy selects the Sort key.
type SortBy int

const (
	SortByTitle SortBy = iota
	SortByDuration
	SortByPath
)

func (p *Playlist) Sort(by SortBy) {
	slices.SortStableFunc(p.Items, func(a, b *PlaylistItem) int {
		switch by {
		case SortByDuration:
			return cmp.Compare(a.Duration, b.Duration)
		case SortByPath:
			return cmp.Compare(a.Path, b.Path)
		}
		return cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
	})
}

func songTitle(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
