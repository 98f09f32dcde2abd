package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	lensfun "github.com/wippyai/lensfun-runtime"
	"github.com/wippyai/lensfun-runtime/runtime"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	lensStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	detailStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

type modelState int

const (
	stateQuery modelState = iota
	stateSelectLens
	stateShowLens
)

type interactiveModel struct {
	err      error
	session  *runtime.Session
	cfg      runtime.Config
	query    textinput.Model
	lenses   []lensfun.LensMatch
	mods     lensfun.Modifications
	selected int
	state    modelState
}

func newInteractiveModel(cfg runtime.Config) *interactiveModel {
	ti := textinput.New()
	ti.Placeholder = "e.g. 50mm f/1.8"
	ti.Prompt = "lens model: "
	ti.Width = 40
	ti.Focus()

	return &interactiveModel{
		cfg:   cfg,
		query: ti,
		state: stateQuery,
	}
}

type loadedMsg struct {
	err     error
	session *runtime.Session
}

type searchMsg struct {
	err    error
	lenses []lensfun.LensMatch
}

type modsMsg struct {
	err  error
	mods lensfun.Modifications
}

func (m *interactiveModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.load)
}

func (m *interactiveModel) load() tea.Msg {
	s, err := runtime.New(context.Background(), m.cfg)
	return loadedMsg{session: s, err: err}
}

func (m *interactiveModel) search(model string) tea.Cmd {
	return func() tea.Msg {
		lenses, err := m.session.SearchLenses(context.Background(), lensfun.SearchLensesInput{LensModel: model})
		return searchMsg{lenses: lenses, err: err}
	}
}

func (m *interactiveModel) queryMods(lens lensfun.LensMatch) tea.Cmd {
	return func() tea.Msg {
		mods, err := m.session.AvailableModifications(context.Background(), lens.Handle, float32(lens.CropFactor))
		return modsMsg{mods: mods, err: err}
	}
}

func (m *interactiveModel) quit() (tea.Model, tea.Cmd) {
	if m.session != nil {
		_ = m.session.Dispose(context.Background())
	}
	return m, tea.Quit
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m.quit()

		case "q":
			if m.state != stateQuery {
				return m.quit()
			}

		case "up", "k":
			if m.state == stateSelectLens && m.selected > 0 {
				m.selected--
				return m, nil
			}

		case "down", "j":
			if m.state == stateSelectLens && m.selected < len(m.lenses)-1 {
				m.selected++
				return m, nil
			}

		case "enter":
			switch m.state {
			case stateQuery:
				if m.session == nil {
					return m, nil
				}
				m.err = nil
				return m, m.search(m.query.Value())

			case stateSelectLens:
				if len(m.lenses) == 0 {
					m.state = stateQuery
					return m, nil
				}
				return m, m.queryMods(m.lenses[m.selected])

			case stateShowLens:
				m.state = stateSelectLens
				return m, nil
			}

		case "esc":
			switch m.state {
			case stateSelectLens:
				m.state = stateQuery
				m.lenses = nil
				m.err = nil
			case stateShowLens:
				m.state = stateSelectLens
			}
			return m, nil
		}

	case loadedMsg:
		m.session = msg.session
		m.err = msg.err

	case searchMsg:
		m.err = msg.err
		if msg.err == nil {
			m.lenses = msg.lenses
			m.selected = 0
			m.state = stateSelectLens
		}

	case modsMsg:
		m.err = msg.err
		m.mods = msg.mods
		m.state = stateShowLens
	}

	if m.state == stateQuery {
		var cmd tea.Cmd
		m.query, cmd = m.query.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *interactiveModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("lensfun"))
	b.WriteString(" ")
	b.WriteString(m.cfg.ModuleURL)
	b.WriteString("\n\n")

	if m.session == nil && m.err == nil {
		b.WriteString("Loading native module...")
		return b.String()
	}
	if m.session == nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("ctrl+c quit"))
		return b.String()
	}

	switch m.state {
	case stateQuery:
		b.WriteString(m.query.View())
		b.WriteString("\n\n")
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
			b.WriteString("\n\n")
		}
		b.WriteString(helpStyle.Render("enter search • ctrl+c quit"))

	case stateSelectLens:
		if len(m.lenses) == 0 {
			b.WriteString("No lenses found.\n\n")
			b.WriteString(helpStyle.Render("enter/esc new search • q quit"))
			break
		}
		fmt.Fprintf(&b, "%d lenses for %q:\n\n", len(m.lenses), m.query.Value())
		for i, l := range m.lenses {
			line := formatLens(l)
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter details • esc new search • q quit"))

	case stateShowLens:
		l := m.lenses[m.selected]
		b.WriteString(lensStyle.Render(l.Maker + " " + l.Model))
		b.WriteString("\n\n")
		fmt.Fprintf(&b, "handle:      %s\n", detailStyle.Render(fmt.Sprint(l.Handle)))
		fmt.Fprintf(&b, "focal:       %s\n", detailStyle.Render(fmt.Sprintf("%g-%g mm", l.MinFocal, l.MaxFocal)))
		fmt.Fprintf(&b, "aperture:    %s\n", detailStyle.Render(fmt.Sprintf("f/%g-f/%g", l.MinAperture, l.MaxAperture)))
		fmt.Fprintf(&b, "crop factor: %s\n", detailStyle.Render(fmt.Sprintf("%g", l.CropFactor)))
		fmt.Fprintf(&b, "score:       %s\n\n", detailStyle.Render(fmt.Sprintf("%g", l.Score)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString("corrections: ")
			b.WriteString(resultStyle.Render(m.mods.String()))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter/esc back • q quit"))
	}

	return b.String()
}

func formatLens(l lensfun.LensMatch) string {
	return fmt.Sprintf("%s %s %s", l.Maker, l.Model, detailStyle.Render(fmt.Sprintf("(score %g)", l.Score)))
}

func runInteractive(cfg runtime.Config) error {
	// Native stderr would corrupt the alternate screen.
	cfg.Stderr = nil
	p := tea.NewProgram(newInteractiveModel(cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
