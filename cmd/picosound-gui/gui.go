//go:build gui

package main

import (
	"fmt"
	"image/color"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/olivierh59500/picosound/pkg/config"
	"github.com/olivierh59500/picosound/pkg/mixer"
	"github.com/olivierh59500/picosound/pkg/music"
)

// RepeatMode defines playlist repeat behavior
type RepeatMode int

const (
	RepeatNone RepeatMode = iota
	RepeatOne
	RepeatAll
)

func (r RepeatMode) String() string {
	switch r {
	case RepeatOne:
		return "Repeat: One"
	case RepeatAll:
		return "Repeat: All"
	}
	return "Repeat: Off"
}

type PicoSoundGUI struct {
	app    fyne.App
	window fyne.Window
	sound  *soundSystem
	bank   *music.TimbreBank

	mutex        sync.Mutex
	playlist     *Playlist
	currentIndex int
	selected     int
	repeatMode   RepeatMode
	effects      []*effectSound
	effectTokens map[uint32]string

	// Song info
	titleLabel  *widget.Label
	detailLabel *widget.Label
	timeLabel   *widget.Label
	progressBar *widget.ProgressBar
	duration    time.Duration

	playButton   *widget.Button
	pauseButton  *widget.Button
	stopButton   *widget.Button
	prevButton   *widget.Button
	nextButton   *widget.Button
	loopCheck    *widget.Check
	repeatButton *widget.Button
	statusLabel  *widget.Label

	playlistWidget *widget.List
	playlistLabel  *widget.Label
	removeButton   *widget.Button
	moveUpButton   *widget.Button
	moveDownButton *widget.Button

	effectList   *widget.List
	effectInfo   *widget.Label
	pitchSlider  *widget.Slider
	panSlider    *widget.Slider
	effectLoop   *widget.Check
	effectVolume *widget.Slider

	done chan struct{}
}

// Custom theme with a darker background and a warmer accent
type picoTheme struct{}

func (m picoTheme) Color(name fyne.ThemeColorName, variant fyne.ThemeVariant) color.Color {
	if variant == theme.VariantLight {
		switch name {
		case theme.ColorNameBackground:
			return color.NRGBA{248, 246, 242, 255}
		case theme.ColorNamePrimary:
			return color.NRGBA{230, 120, 30, 255}
		}
	} else {
		switch name {
		case theme.ColorNameBackground:
			return color.NRGBA{24, 24, 28, 255}
		case theme.ColorNameButton:
			return color.NRGBA{48, 48, 54, 255}
		case theme.ColorNamePrimary:
			return color.NRGBA{255, 150, 50, 255}
		case theme.ColorNameInputBackground:
			return color.NRGBA{36, 36, 40, 255}
		}
	}
	return theme.DefaultTheme().Color(name, variant)
}

func (m picoTheme) Font(style fyne.TextStyle) fyne.Resource {
	return theme.DefaultTheme().Font(style)
}

func (m picoTheme) Icon(name fyne.ThemeIconName) fyne.Resource {
	return theme.DefaultTheme().Icon(name)
}

func (m picoTheme) Size(name fyne.ThemeSizeName) float32 {
	if name == theme.SizeNamePadding {
		return 6
	}
	return theme.DefaultTheme().Size(name)
}

func NewPicoSoundGUI() (*PicoSoundGUI, error) {
	cfg := config.Default()
	p := &PicoSoundGUI{
		app:          app.New(),
		sound:        newSoundSystem(cfg),
		playlist:     NewPlaylist("Default"),
		currentIndex: -1,
		selected:     -1,
		effectTokens: make(map[uint32]string),
		done:         make(chan struct{}),
	}
	if err := p.sound.start(); err != nil {
		return nil, err
	}

	p.app.Settings().SetTheme(&picoTheme{})
	p.createUI()
	go p.watch()
	return p, nil
}

func (p *PicoSoundGUI) createUI() {
	p.window = p.app.NewWindow("picosound")
	p.window.Resize(fyne.NewSize(960, 640))

	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("Add Songs...", p.addSongs),
		fyne.NewMenuItem("Add Effects...", p.addEffects),
		fyne.NewMenuItem("Add Folder...", p.addFolder),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Load Timbre Bank...", p.loadBank),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Save Playlist...", p.savePlaylist),
		fyne.NewMenuItem("Load Playlist...", p.loadPlaylist),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Export Song to WAV...", p.exportWAV),
	)
	playlistMenu := fyne.NewMenu("Playlist",
		fyne.NewMenuItem("Clear All", p.clearPlaylist),
		fyne.NewMenuItem("Sort by Title", func() { p.sortPlaylist(SortByTitle) }),
		fyne.NewMenuItem("Sort by Duration", func() { p.sortPlaylist(SortByDuration) }),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Shuffle", p.shufflePlaylist),
	)
	helpMenu := fyne.NewMenu("Help",
		fyne.NewMenuItem("About", p.showAbout),
	)
	p.window.SetMainMenu(fyne.NewMainMenu(fileMenu, playlistMenu, helpMenu))

	left := container.NewVSplit(p.createMusicContent(), p.createEffectsContent())
	left.SetOffset(0.55)
	split := container.NewHSplit(left, p.createPlaylistContent())
	split.SetOffset(0.6)

	p.window.SetContent(split)
	p.window.SetOnClosed(p.cleanup)
}

func (p *PicoSoundGUI) createMusicContent() fyne.CanvasObject {
	p.titleLabel = widget.NewLabelWithStyle("No song loaded", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})
	p.detailLabel = widget.NewLabel("")
	infoCard := widget.NewCard("Now Playing", "", container.NewVBox(p.titleLabel, p.detailLabel))

	p.timeLabel = widget.NewLabel("00:00 / 00:00")
	p.timeLabel.Alignment = fyne.TextAlignCenter
	p.progressBar = widget.NewProgressBar()

	p.prevButton = widget.NewButtonWithIcon("", theme.MediaSkipPreviousIcon(), p.playPrevious)
	p.playButton = widget.NewButtonWithIcon("", theme.MediaPlayIcon(), p.play)
	p.pauseButton = widget.NewButtonWithIcon("", theme.MediaPauseIcon(), p.pause)
	p.stopButton = widget.NewButtonWithIcon("", theme.MediaStopIcon(), p.stop)
	p.nextButton = widget.NewButtonWithIcon("", theme.MediaSkipNextIcon(), p.playNext)
	for _, b := range []*widget.Button{p.prevButton, p.playButton, p.pauseButton, p.stopButton, p.nextButton} {
		b.Disable()
	}
	buttons := container.NewHBox(layout.NewSpacer(),
		p.prevButton, p.playButton, p.pauseButton, p.stopButton, p.nextButton,
		layout.NewSpacer())

	musicVolume := widget.NewSlider(0, 255)
	musicVolume.Step = 1
	musicVolume.SetValue(float64(p.sound.seq.Volume()))
	musicLabel := widget.NewLabel(fmt.Sprintf("%d", p.sound.seq.Volume()))
	musicVolume.OnChanged = func(v float64) {
		p.sound.seq.SetVolume(int(v))
		musicLabel.SetText(fmt.Sprintf("%d", int(v)))
	}

	masterVolume := widget.NewSlider(0, 255)
	masterVolume.Step = 1
	masterVolume.SetValue(float64(p.sound.engine.Volume()))
	masterLabel := widget.NewLabel(fmt.Sprintf("%d", p.sound.engine.Volume()))
	masterVolume.OnChanged = func(v float64) {
		p.sound.engine.SetVolume(int(v))
		masterLabel.SetText(fmt.Sprintf("%d", int(v)))
	}

	volumes := container.NewVBox(
		container.NewBorder(nil, nil, widget.NewLabel("Music"), musicLabel, musicVolume),
		container.NewBorder(nil, nil, widget.NewLabel("Master"), masterLabel, masterVolume),
	)

	p.loopCheck = widget.NewCheck("Loop Song", func(checked bool) {
		p.sound.seq.SetLoop(checked)
	})
	reverse := widget.NewCheck("Reverse Stereo", func(checked bool) {
		p.sound.engine.SetReverseStereo(checked)
	})
	p.repeatButton = widget.NewButton(RepeatNone.String(), p.toggleRepeatMode)

	p.statusLabel = widget.NewLabel("Ready")

	return container.NewPadded(container.NewVBox(
		infoCard,
		p.progressBar,
		p.timeLabel,
		buttons,
		widget.NewSeparator(),
		volumes,
		container.NewHBox(p.loopCheck, reverse, p.repeatButton),
		layout.NewSpacer(),
		container.NewBorder(widget.NewSeparator(), nil, nil, nil, p.statusLabel),
	))
}

func (p *PicoSoundGUI) createEffectsContent() fyne.CanvasObject {
	p.effectInfo = widget.NewLabel("Select an effect to play it over the music")
	p.effectInfo.Truncation = fyne.TextTruncateEllipsis

	p.effectList = widget.NewList(
		func() int {
			p.mutex.Lock()
			defer p.mutex.Unlock()
			return len(p.effects)
		},
		func() fyne.CanvasObject {
			return widget.NewLabel("")
		},
		func(id widget.ListItemID, item fyne.CanvasObject) {
			p.mutex.Lock()
			defer p.mutex.Unlock()
			if id < len(p.effects) {
				item.(*widget.Label).SetText(filepath.Base(p.effects[id].path))
			}
		},
	)
	p.effectList.OnSelected = func(id widget.ListItemID) {
		p.fireEffect(id)
		p.effectList.UnselectAll()
	}

	// pitch in 1/2048 of the source rate, one octave each way
	p.pitchSlider = widget.NewSlider(-1024, 2048)
	p.pitchSlider.Step = 64
	p.panSlider = widget.NewSlider(0, 255)
	p.panSlider.Step = 1
	p.panSlider.SetValue(64)
	p.effectVolume = widget.NewSlider(0, 127)
	p.effectVolume.Step = 1
	p.effectVolume.SetValue(127)
	p.effectLoop = widget.NewCheck("Loop", nil)

	stopAll := widget.NewButtonWithIcon("Stop Effects", theme.MediaStopIcon(), func() {
		p.sound.engine.StopAll()
	})

	controls := container.NewVBox(
		container.NewBorder(nil, nil, widget.NewLabel("Pitch"), nil, p.pitchSlider),
		container.NewBorder(nil, nil, widget.NewLabel("Angle"), nil, p.panSlider),
		container.NewBorder(nil, nil, widget.NewLabel("Volume"), nil, p.effectVolume),
		container.NewHBox(p.effectLoop, layout.NewSpacer(), stopAll),
		p.effectInfo,
	)

	return widget.NewCard("Effects", "", container.NewBorder(nil, controls, nil, nil, p.effectList))
}

func (p *PicoSoundGUI) createPlaylistContent() fyne.CanvasObject {
	p.playlistLabel = widget.NewLabelWithStyle("Playlist (0 items)", fyne.TextAlignLeading, fyne.TextStyle{Bold: true})

	p.playlistWidget = widget.NewList(
		func() int {
			p.mutex.Lock()
			defer p.mutex.Unlock()
			return p.playlist.Size()
		},
		func() fyne.CanvasObject {
			title := widget.NewLabel("")
			title.Truncation = fyne.TextTruncateEllipsis
			return container.NewBorder(nil, nil, nil, widget.NewLabel(""), title)
		},
		func(id widget.ListItemID, item fyne.CanvasObject) {
			p.mutex.Lock()
			it, _ := p.playlist.Get(id)
			current := id == p.currentIndex
			p.mutex.Unlock()
			if it == nil {
				return
			}

			box := item.(*fyne.Container)
			title := box.Objects[0].(*widget.Label)
			length := box.Objects[1].(*widget.Label)
			title.SetText(fmt.Sprintf("%s (%d tracks)", it.Title, it.Tracks))
			title.TextStyle = fyne.TextStyle{Bold: current}
			title.Refresh()
			length.SetText(formatTime(it.Duration))
		},
	)
	p.playlistWidget.OnSelected = func(id widget.ListItemID) {
		p.mutex.Lock()
		p.selected = id
		p.mutex.Unlock()
		p.removeButton.Enable()
		p.moveUpButton.Enable()
		p.moveDownButton.Enable()
	}

	playSelected := widget.NewButtonWithIcon("Play", theme.MediaPlayIcon(), func() {
		p.mutex.Lock()
		sel := p.selected
		p.mutex.Unlock()
		p.playFromIndex(sel)
	})
	add := widget.NewButtonWithIcon("Add", theme.ContentAddIcon(), p.addSongs)
	p.removeButton = widget.NewButtonWithIcon("Remove", theme.ContentRemoveIcon(), p.removeSelected)
	p.moveUpButton = widget.NewButtonWithIcon("", theme.MoveUpIcon(), p.moveSelectedUp)
	p.moveDownButton = widget.NewButtonWithIcon("", theme.MoveDownIcon(), p.moveSelectedDown)
	p.removeButton.Disable()
	p.moveUpButton.Disable()
	p.moveDownButton.Disable()

	buttonBar := container.NewHBox(playSelected, add, p.removeButton, layout.NewSpacer(), p.moveUpButton, p.moveDownButton)

	return widget.NewCard("", "", container.NewBorder(
		container.NewVBox(p.playlistLabel, widget.NewSeparator()),
		buttonBar,
		nil, nil,
		container.NewScroll(p.playlistWidget),
	))
}

// watch handles finished tokens and refreshes the status line.
func (p *PicoSoundGUI) watch() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case tok := <-p.sound.done:
			if tok == musicToken {
				fyne.Do(p.songFinished)
				continue
			}
			p.mutex.Lock()
			name := p.effectTokens[tok]
			delete(p.effectTokens, tok)
			p.mutex.Unlock()
			slog.Debug("effect finished", "name", name)
		case <-ticker.C:
			fyne.Do(p.refreshStatus)
		}
	}
}

func (p *PicoSoundGUI) refreshStatus() {
	seq := p.sound.seq
	pos := seq.Position()

	p.mutex.Lock()
	duration := p.duration
	p.mutex.Unlock()

	if duration > 0 {
		p.progressBar.SetValue(min(float64(pos)/float64(duration), 1))
	}
	p.timeLabel.SetText(fmt.Sprintf("%s / %s", formatTime(pos), formatTime(duration)))

	state := "Ready"
	switch {
	case seq.IsPaused():
		state = "Paused"
	case seq.IsPlaying():
		state = "Playing"
	}
	st := p.sound.engine.Stats()
	p.statusLabel.SetText(fmt.Sprintf("%s · voices %d/%d · loops %d · dropped %d",
		state, p.sound.engine.VoicesPlaying(), p.sound.cfg.Mixer.Voices, seq.Loops(), st.DroppedCallback))
}

func (p *PicoSoundGUI) songFinished() {
	p.mutex.Lock()
	mode := p.repeatMode
	last := p.currentIndex >= p.playlist.Size()-1
	p.mutex.Unlock()

	switch {
	case mode == RepeatOne:
		p.playFromIndex(p.currentIndex)
	case mode == RepeatAll || !last:
		p.playNext()
	default:
		p.stop()
	}
}

func (p *PicoSoundGUI) addSongs() {
	dialog.ShowFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		reader.Close()
		p.addPath(reader.URI().Path())
	}, p.window)
}

func (p *PicoSoundGUI) addEffects() {
	p.addSongs()
}

func (p *PicoSoundGUI) addFolder() {
	dialog.ShowFolderOpen(func(uri fyne.ListableURI, err error) {
		if err != nil || uri == nil {
			return
		}
		files, err := uri.List()
		if err != nil {
			dialog.ShowError(err, p.window)
			return
		}

		added := 0
		for _, file := range files {
			switch strings.ToLower(file.Extension()) {
			case ".mid", ".midi", ".voc", ".wav":
				if p.addPath(file.Path()) {
					added++
				}
			}
		}
		dialog.ShowInformation("Files Added", fmt.Sprintf("Added %d files", added), p.window)
	}, p.window)
}

// addPath puts MIDI files on the playlist and everything else on the
// effect pad.
func (p *PicoSoundGUI) addPath(path string) bool {
	_, item, err := loadSong(path)
	if err == nil {
		p.mutex.Lock()
		p.playlist.Add(item)
		first := p.playlist.Size() == 1
		if first {
			p.currentIndex = 0
		}
		p.mutex.Unlock()

		p.updatePlaylistLabel()
		p.playlistWidget.Refresh()
		if first {
			p.playButton.Enable()
		}
		return true
	}

	fx, ferr := loadEffect(path)
	if ferr != nil {
		slog.Warn("cannot add file", "path", path, "error", ferr)
		return false
	}
	p.mutex.Lock()
	p.effects = append(p.effects, fx)
	p.mutex.Unlock()
	p.effectList.Refresh()
	return true
}

func (p *PicoSoundGUI) fireEffect(id int) {
	p.mutex.Lock()
	if id < 0 || id >= len(p.effects) {
		p.mutex.Unlock()
		return
	}
	fx := p.effects[id]
	tok := effectTokenBase + uint32(id)
	p.effectTokens[tok] = filepath.Base(fx.path)
	p.mutex.Unlock()

	params := mixer.Params{
		Vol:   int(p.effectVolume.Value),
		Pitch: int(p.pitchSlider.Value),
		Loop:  p.effectLoop.Checked,
		Token: tok,
	}
	h := p.sound.playEffect(fx, params)
	if h == 0 {
		p.effectInfo.SetText(fmt.Sprintf("%s: no voice available", filepath.Base(fx.path)))
		return
	}
	p.sound.engine.Pan3D(h, int(p.panSlider.Value), 0)
	p.effectInfo.SetText(fmt.Sprintf("%s: %s", filepath.Base(fx.path), fx.describe))
}

func (p *PicoSoundGUI) loadBank() {
	dialog.ShowFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		reader.Close()

		bank, err := music.LoadTimbreBank(reader.URI().Path())
		if err != nil {
			dialog.ShowError(err, p.window)
			return
		}
		p.bank = bank
		p.sound.seq.SetBank(bank)
	}, p.window)
}

func (p *PicoSoundGUI) play() {
	p.mutex.Lock()
	idx := p.currentIndex
	p.mutex.Unlock()

	if p.sound.seq.IsPaused() {
		p.pause()
		return
	}
	p.playFromIndex(idx)
}

func (p *PicoSoundGUI) pause() {
	seq := p.sound.seq
	if seq.IsPaused() {
		seq.Resume()
		p.pauseButton.SetIcon(theme.MediaPauseIcon())
		return
	}
	if seq.IsPlaying() {
		seq.Pause()
		p.pauseButton.SetIcon(theme.MediaPlayIcon())
	}
}

func (p *PicoSoundGUI) stop() {
	p.sound.seq.Stop()

	p.progressBar.SetValue(0)
	p.playButton.Enable()
	p.pauseButton.Disable()
	p.pauseButton.SetIcon(theme.MediaPauseIcon())
	p.stopButton.Disable()
}

func (p *PicoSoundGUI) playFromIndex(index int) {
	p.mutex.Lock()
	item, err := p.playlist.Get(index)
	p.mutex.Unlock()
	if err != nil {
		return
	}

	song, info, err := loadSong(item.Path)
	if err != nil {
		dialog.ShowError(err, p.window)
		return
	}
	if err := p.sound.seq.Load(song, p.loopCheck.Checked); err != nil {
		dialog.ShowError(err, p.window)
		return
	}

	p.mutex.Lock()
	p.currentIndex = index
	p.duration = info.Duration
	p.mutex.Unlock()

	p.titleLabel.SetText(info.Title)
	p.detailLabel.SetText(fmt.Sprintf("MIDI format %d · %d tracks · %d ticks per beat",
		song.Format, song.NumTracks(), song.Division))
	p.playButton.Disable()
	p.pauseButton.Enable()
	p.pauseButton.SetIcon(theme.MediaPauseIcon())
	p.stopButton.Enable()
	p.prevButton.Enable()
	p.nextButton.Enable()
	p.playlistWidget.Refresh()
}

func (p *PicoSoundGUI) playNext() {
	p.mutex.Lock()
	size := p.playlist.Size()
	next := p.currentIndex + 1
	p.mutex.Unlock()

	if size == 0 {
		return
	}
	if next >= size {
		if p.repeatMode != RepeatAll {
			p.stop()
			return
		}
		next = 0
	}
	p.playFromIndex(next)
}

func (p *PicoSoundGUI) playPrevious() {
	p.mutex.Lock()
	size := p.playlist.Size()
	prev := p.currentIndex - 1
	p.mutex.Unlock()

	if size == 0 {
		return
	}
	if prev < 0 {
		prev = size - 1
	}
	p.playFromIndex(prev)
}

func (p *PicoSoundGUI) removeSelected() {
	p.mutex.Lock()
	err := p.playlist.Remove(p.selected)
	if err == nil {
		if p.selected == p.currentIndex {
			p.currentIndex = -1
		} else if p.selected < p.currentIndex {
			p.currentIndex--
		}
		p.selected = -1
	}
	p.mutex.Unlock()

	if err != nil {
		return
	}
	p.playlistWidget.UnselectAll()
	p.removeButton.Disable()
	p.moveUpButton.Disable()
	p.moveDownButton.Disable()
	p.updatePlaylistLabel()
	p.playlistWidget.Refresh()
}

func (p *PicoSoundGUI) moveSelected(up bool) {
	p.mutex.Lock()
	sel := p.selected
	var err error
	target := sel + 1
	if up {
		err = p.playlist.MoveUp(sel)
		target = sel - 1
	} else {
		err = p.playlist.MoveDown(sel)
	}
	if err == nil {
		switch p.currentIndex {
		case sel:
			p.currentIndex = target
		case target:
			p.currentIndex = sel
		}
	}
	p.mutex.Unlock()

	if err != nil {
		return
	}
	p.playlistWidget.Select(target)
	p.playlistWidget.Refresh()
}

func (p *PicoSoundGUI) moveSelectedUp()   { p.moveSelected(true) }
func (p *PicoSoundGUI) moveSelectedDown() { p.moveSelected(false) }

func (p *PicoSoundGUI) clearPlaylist() {
	dialog.ShowConfirm("Clear Playlist",
		"Are you sure you want to clear the entire playlist?",
		func(ok bool) {
			if !ok {
				return
			}
			p.stop()
			p.mutex.Lock()
			p.playlist.Clear()
			p.currentIndex = -1
			p.selected = -1
			p.mutex.Unlock()
			p.updatePlaylistLabel()
			p.playlistWidget.Refresh()
			p.playButton.Disable()
		}, p.window)
}

func (p *PicoSoundGUI) savePlaylist() {
	dialog.ShowFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil || writer == nil {
			return
		}
		writer.Close()

		path := writer.URI().Path()
		p.mutex.Lock()
		if strings.HasSuffix(path, ".m3u") {
			err = p.playlist.SaveM3U(path)
		} else {
			if !strings.HasSuffix(path, ".json") {
				path += ".json"
			}
			err = p.playlist.Save(path)
		}
		p.mutex.Unlock()

		if err != nil {
			dialog.ShowError(err, p.window)
			return
		}
		dialog.ShowInformation("Success", "Playlist saved successfully", p.window)
	}, p.window)
}

func (p *PicoSoundGUI) loadPlaylist() {
	dialog.ShowFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		reader.Close()

		path := reader.URI().Path()
		var list *Playlist
		if strings.HasSuffix(path, ".m3u") {
			list, err = LoadM3U(path)
		} else {
			list, err = LoadPlaylist(path)
		}
		if err != nil {
			dialog.ShowError(err, p.window)
			return
		}

		p.stop()
		p.mutex.Lock()
		p.playlist = list
		p.currentIndex = -1
		if list.Size() > 0 {
			p.currentIndex = 0
		}
		p.mutex.Unlock()

		p.updatePlaylistLabel()
		p.playlistWidget.Refresh()
		if list.Size() > 0 {
			p.playButton.Enable()
		}
	}, p.window)
}

func (p *PicoSoundGUI) sortPlaylist(by SortBy) {
	p.mutex.Lock()
	p.playlist.Sort(by)
	p.currentIndex = -1
	p.mutex.Unlock()
	p.playlistWidget.Refresh()
}

func (p *PicoSoundGUI) shufflePlaylist() {
	p.mutex.Lock()
	p.playlist.Shuffle()
	p.currentIndex = -1
	p.mutex.Unlock()
	p.playlistWidget.Refresh()
}

func (p *PicoSoundGUI) toggleRepeatMode() {
	p.mutex.Lock()
	p.repeatMode = (p.repeatMode + 1) % 3
	mode := p.repeatMode
	p.mutex.Unlock()
	p.repeatButton.SetText(mode.String())
}

func (p *PicoSoundGUI) updatePlaylistLabel() {
	p.mutex.Lock()
	size, total := p.playlist.Size(), p.playlist.TotalDuration()
	p.mutex.Unlock()
	p.playlistLabel.SetText(fmt.Sprintf("Playlist (%d items, %s)", size, formatTime(total)))
}

func (p *PicoSoundGUI) exportWAV() {
	p.mutex.Lock()
	item, err := p.playlist.Get(p.currentIndex)
	p.mutex.Unlock()
	if err != nil {
		dialog.ShowInformation("No song selected", "Please add a MIDI file first", p.window)
		return
	}

	dialog.ShowFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil || writer == nil {
			return
		}
		writer.Close()
		dest := writer.URI().Path()

		busy := dialog.NewCustomWithoutButtons("Exporting to WAV", widget.NewProgressBarInfinite(), p.window)
		busy.Show()

		go func() {
			err := exportSong(p.sound.cfg, item.Path, dest, p.bank)
			fyne.Do(func() {
				busy.Hide()
				if err != nil {
					dialog.ShowError(err, p.window)
					return
				}
				dialog.ShowInformation("Export Complete", "WAV file exported successfully", p.window)
			})
		}()
	}, p.window)
}

func (p *PicoSoundGUI) showAbout() {
	about := container.NewVBox(
		widget.NewLabelWithStyle("picosound", fyne.TextAlignCenter, fyne.TextStyle{Bold: true}),
		widget.NewLabel("MIDI music on an emulated OPL2 FM chip,"),
		widget.NewLabel("with VOC, WAV and raw sound effects mixed on top."),
		widget.NewLabel(""),
		widget.NewLabel(fmt.Sprintf("%d voices at %d Hz", p.sound.cfg.Mixer.Voices, p.sound.cfg.Mixer.OutputRate)),
	)
	dialog.ShowCustom("About picosound", "OK", about, p.window)
}

func (p *PicoSoundGUI) cleanup() {
	close(p.done)
	p.sound.stop()
}

func (p *PicoSoundGUI) Run() {
	p.window.ShowAndRun()
}

func formatTime(d time.Duration) string {
	seconds := int(d / time.Second)
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
