package tui

import (
	"strings"
	"testing"
	"time"

	"spectro/internal/analysis"
	"spectro/internal/config"
	"spectro/internal/playback"
	"spectro/internal/spectrogram"

	tea "github.com/charmbracelet/bubbletea"
)

type fakeProgress struct {
	value int
	state playback.State
}

func (f *fakeProgress) ProgressScaled(scale int) int { return f.value * scale / 1000 }
func (f *fakeProgress) State() playback.State        { return f.state }

func newTestModel(t *testing.T, opts Options) (SpectrogramModel, *spectrogram.Buffer) {
	t.Helper()
	transform, err := analysis.NewTransformer(analysis.Options{
		BlockSize:  1024,
		FFTSize:    512,
		SampleRate: 44100,
	})
	if err != nil {
		t.Fatalf("NewTransformer() error = %v", err)
	}
	buffer := spectrogram.New(10, transform.Bins())
	return NewSpectrogramModel(buffer, transform, opts), buffer
}

func update(t *testing.T, m SpectrogramModel, msg tea.Msg) (SpectrogramModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	sm, ok := next.(SpectrogramModel)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return sm, cmd
}

func TestNewSpectrogramModelDefaults(t *testing.T) {
	m, buffer := newTestModel(t, Options{Title: "live"})

	if m.Mode() != config.RenderMode3D {
		t.Errorf("Mode() = %q, want 3d", m.Mode())
	}
	if m.renderEvery != 10*time.Millisecond || m.progressEvery != 100*time.Millisecond {
		t.Errorf("intervals = %s, %s", m.renderEvery, m.progressEvery)
	}
	if m.scale != 1000 {
		t.Errorf("scale = %d, want 1000", m.scale)
	}
	if m.ceiling != buffer.Bins() {
		t.Errorf("ceiling = %d, want every bin", m.ceiling)
	}
}

func TestSpectrogramCeiling(t *testing.T) {
	m, _ := newTestModel(t, Options{Mode: config.RenderMode2D, MaxFrequency: 2000})
	// 2000 Hz / 86.13 Hz per bin rounds to bin 23.
	if m.ceiling != 24 {
		t.Errorf("ceiling = %d, want 24", m.ceiling)
	}
	if !strings.Contains(m.View(), "2D 0-2000 Hz") {
		t.Errorf("View() missing 2D header:\n%s", m.View())
	}
}

func TestSpectrogramRenderTick(t *testing.T) {
	m, buffer := newTestModel(t, Options{Title: "live"})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 32, Height: 12})

	row := make([]float64, buffer.Bins())
	row[0] = 1
	buffer.Push(row)

	m, cmd := update(t, m, renderTickMsg(time.Now()))
	if cmd == nil {
		t.Fatal("render tick did not schedule the next tick")
	}
	if m.writes != 1 {
		t.Errorf("writes = %d, want 1", m.writes)
	}
	lines := strings.Split(m.chart, "\n")
	if len(lines) != 8 {
		t.Fatalf("chart has %d lines, want 8", len(lines))
	}
	if !strings.HasPrefix(lines[0], "@") {
		t.Errorf("newest line = %q, want a full scale first column", lines[0])
	}
}

func TestSpectrogramProgressTick(t *testing.T) {
	src := &fakeProgress{value: 250, state: playback.Playing}
	m, _ := newTestModel(t, Options{Progress: src})

	if m.Init() == nil {
		t.Fatal("Init() returned no command")
	}

	m, cmd := update(t, m, progressTickMsg(time.Now()))
	if cmd == nil {
		t.Fatal("progress tick did not schedule the next tick")
	}
	if m.ProgressValue() != 250 {
		t.Errorf("ProgressValue() = %d, want 250", m.ProgressValue())
	}
	if !strings.Contains(m.View(), " 250/1000 playing") {
		t.Errorf("View() missing progress:\n%s", m.View())
	}

	src.value, src.state = 0, playback.Loading
	m, _ = update(t, m, progressTickMsg(time.Now()))
	if m.ProgressValue() != 0 {
		t.Errorf("ProgressValue() = %d after reload, want 0", m.ProgressValue())
	}
}

func TestSpectrogramLiveHasNoProgress(t *testing.T) {
	m, _ := newTestModel(t, Options{})
	m, _ = update(t, m, progressTickMsg(time.Now()))
	if strings.Contains(m.View(), "/1000") {
		t.Errorf("live view should not show progress:\n%s", m.View())
	}
}

func TestSpectrogramKeys(t *testing.T) {
	m, _ := newTestModel(t, Options{})

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("m")})
	if m.Mode() != config.RenderMode2D {
		t.Errorf("Mode() = %q after toggle, want 2d", m.Mode())
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.Mode() != config.RenderMode3D {
		t.Errorf("Mode() = %q after second toggle, want 3d", m.Mode())
	}

	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q returned no command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}
