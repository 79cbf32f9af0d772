// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"spectro/internal/analysis"
	"spectro/internal/config"
	"spectro/internal/playback"
	"spectro/internal/spectrogram"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ProgressSource reports file-mode playback progress. *playback.Player
// satisfies it.
type ProgressSource interface {
	ProgressScaled(scale int) int
	State() playback.State
}

// Options configures a SpectrogramModel. Zero durations and scale fall back
// to the config defaults.
type Options struct {
	Title         string
	Mode          string  // config.RenderMode3D or config.RenderMode2D.
	MaxFrequency  float64 // Ceiling of the 2D view in Hz; 0 shows every bin.
	RenderEvery   time.Duration
	ProgressEvery time.Duration
	ProgressScale int
	Progress      ProgressSource // Nil in live mode.
}

type renderTickMsg time.Time

type progressTickMsg time.Time

var (
	quitKey = key.NewBinding(key.WithKeys("q", "ctrl+c", "esc"))
	modeKey = key.NewBinding(key.WithKeys("m", "tab"))
)

// SpectrogramModel is the Bubble Tea model for the live waterfall. It polls
// the buffer and the progress source on independent tickers and never
// writes to either.
type SpectrogramModel struct {
	buffer *spectrogram.Buffer
	grid   [][]float64
	writes uint64
	dirty  bool
	chart  string

	title     string
	mode      string
	ceiling   int // Bins shown in the 2D view.
	freqLabel string

	renderEvery   time.Duration
	progressEvery time.Duration
	source        ProgressSource
	scale         int
	bar           progress.Model
	value         int
	state         playback.State

	width  int
	height int
}

// NewSpectrogramModel renders buffer, using mapper to place the 2D ceiling.
func NewSpectrogramModel(buffer *spectrogram.Buffer, mapper analysis.BinMapper, opts Options) SpectrogramModel {
	if opts.RenderEvery <= 0 {
		opts.RenderEvery = config.DefaultRenderEvery
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = config.DefaultProgressEvery
	}
	if opts.ProgressScale <= 0 {
		opts.ProgressScale = config.DefaultProgressScale
	}
	if opts.Mode != config.RenderMode2D {
		opts.Mode = config.RenderMode3D
	}

	ceiling := buffer.Bins()
	label := fmt.Sprintf("0-%.0f Hz", mapper.FrequencyForBin(buffer.Bins()-1))
	if opts.MaxFrequency > 0 {
		ceiling = min(mapper.BinForFrequency(opts.MaxFrequency)+1, buffer.Bins())
		label = fmt.Sprintf("0-%.0f Hz", opts.MaxFrequency)
	}

	return SpectrogramModel{
		buffer:        buffer,
		grid:          buffer.NewGrid(),
		dirty:         true,
		title:         opts.Title,
		mode:          opts.Mode,
		ceiling:       ceiling,
		freqLabel:     label,
		renderEvery:   opts.RenderEvery,
		progressEvery: opts.ProgressEvery,
		source:        opts.Progress,
		scale:         opts.ProgressScale,
		bar:           progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		width:         80,
		height:        24,
	}
}

func (m SpectrogramModel) renderTick() tea.Cmd {
	return tea.Tick(m.renderEvery, func(t time.Time) tea.Msg { return renderTickMsg(t) })
}

func (m SpectrogramModel) progressTick() tea.Cmd {
	return tea.Tick(m.progressEvery, func(t time.Time) tea.Msg { return progressTickMsg(t) })
}

// Init starts both pollers.
func (m SpectrogramModel) Init() tea.Cmd {
	if m.source == nil {
		return m.renderTick()
	}
	return tea.Batch(m.renderTick(), m.progressTick())
}

// Update handles ticks, resizes and keys.
func (m SpectrogramModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.bar.Width = max(10, msg.Width-16)
		m.dirty = true
		m = m.refresh()

	case renderTickMsg:
		m = m.refresh()
		return m, m.renderTick()

	case progressTickMsg:
		if m.source != nil {
			m.value = m.source.ProgressScaled(m.scale)
			m.state = m.source.State()
		}
		return m, m.progressTick()

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, quitKey):
			return m, tea.Quit
		case key.Matches(msg, modeKey):
			if m.mode == config.RenderMode3D {
				m.mode = config.RenderMode2D
			} else {
				m.mode = config.RenderMode3D
			}
			m.dirty = true
			m = m.refresh()
		}
	}
	return m, nil
}

// refresh re-renders the chart when the buffer or the layout changed.
func (m SpectrogramModel) refresh() SpectrogramModel {
	writes := m.buffer.Writes()
	if writes == m.writes && !m.dirty {
		return m
	}
	m.writes = writes
	m.dirty = false

	if err := m.buffer.SnapshotInto(m.grid); err != nil {
		m.chart = fmt.Sprintf("snapshot error: %v", err)
		return m
	}

	width, height := m.chartSize()
	if m.mode == config.RenderMode2D {
		m.chart = RenderBars(m.grid[len(m.grid)-1], m.ceiling, width, height)
	} else {
		m.chart = RenderWaterfall(m.grid, m.buffer.Bins(), width, height)
	}
	return m
}

// chartSize leaves room for the title, the progress line and the help.
func (m SpectrogramModel) chartSize() (int, int) {
	reserved := 4
	if m.source != nil {
		reserved += 2
	}
	return max(1, m.width), max(1, m.height-reserved)
}

// Mode returns the active render mode.
func (m SpectrogramModel) Mode() string { return m.mode }

// ProgressValue returns the last polled progress in [0, scale].
func (m SpectrogramModel) ProgressValue() int { return m.value }

// View renders the UI
func (m SpectrogramModel) View() string {
	header := titleStyle.Render(m.title)
	if m.mode == config.RenderMode2D {
		header += infoStyle.Render(fmt.Sprintf("  2D %s", m.freqLabel))
	} else {
		header += infoStyle.Render(fmt.Sprintf("  3D %d rows", m.buffer.History()))
	}

	view := header + "\n\n" + m.chart + "\n"
	if m.source != nil {
		percent := float64(m.value) / float64(m.scale)
		view += "\n" + m.bar.ViewAs(percent) +
			infoStyle.Render(fmt.Sprintf(" %4d/%d %s", m.value, m.scale, m.state)) + "\n"
	}
	return view + "\n" + helpStyle.Render("m: Toggle 2D/3D • q: Quit")
}

var helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))

// RunSpectrogram runs the model full screen until the user quits or ctx is
// cancelled. Cancellation is not an error.
func RunSpectrogram(ctx context.Context, model SpectrogramModel) error {
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
