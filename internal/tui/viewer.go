package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/newhook/necropolis/internal/aggregate"
)

type viewerModel struct {
	report   *aggregate.Report
	source   string
	viewport viewport.Model
	width    int
	height   int
	ready    bool
}

func newViewerModel(r *aggregate.Report, source string) viewerModel {
	return viewerModel{report: r, source: source}
}

func (m viewerModel) Init() tea.Cmd {
	return nil
}

func (m viewerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "g", "home":
			m.viewport.GotoTop()
			return m, nil
		case "G", "end":
			m.viewport.GotoBottom()
			return m, nil
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		// Border (2) + header (1) + status bar (1).
		innerWidth := max(msg.Width-4, 20)
		innerHeight := max(msg.Height-4, 1)
		if !m.ready {
			m.viewport = viewport.New(innerWidth, innerHeight)
			m.ready = true
		} else {
			m.viewport.Width = innerWidth
			m.viewport.Height = innerHeight
		}
		m.viewport.SetContent(RenderReport(m.report, innerWidth))
		return m, nil
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m viewerModel) View() string {
	if !m.ready {
		return dimStyle.Render("Loading...")
	}
	header := titleStyle.Render("Necropolis") + " " + dimStyle.Render(m.source)
	body := panelStyle.Width(max(m.width-2, 0)).Render(m.viewport.View())
	status := statusBarStyle.Width(m.width).Render(fmt.Sprintf("%s scroll  %s top/bottom  %s quit  %3.0f%%",
		hotkeyStyle.Render("↑/↓"), hotkeyStyle.Render("g/G"), hotkeyStyle.Render("q"), m.viewport.ScrollPercent()*100))
	return lipgloss.JoinVertical(lipgloss.Left, header, body, status)
}

// View opens a full-screen viewer for r until the user quits or ctx is
// cancelled. source labels where the report was loaded from.
func View(ctx context.Context, r *aggregate.Report, source string) error {
	p := tea.NewProgram(newViewerModel(r, source), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("error running viewer: %w", err)
	}
	return nil
}
