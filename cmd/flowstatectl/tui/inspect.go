package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// RowView is one chain row projected for display.
type RowView struct {
	RowHash     string
	NextRowHash string
	LogCount    int
}

// ChainView is the data an InspectModel renders: the chain's skeleton plus
// the resolved tail value.
type ChainView struct {
	FunctionID string
	Table      string
	Key        string
	Rows       []RowView
	Value      string
	Committed  bool
}

// InspectModel is a Bubble Tea model that walks a Linked Row Chain one row
// at a time.
type InspectModel struct {
	view     ChainView
	cursor   int
	quitting bool
}

// NewInspectModel creates an inspect model positioned at view.Rows[0].
// Rows keep the order the skeleton scan returned them in, which is not
// chain order.
func NewInspectModel(view ChainView) InspectModel {
	return InspectModel{view: view}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch {
	case key.Matches(keyMsg, keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(keyMsg, keys.Down):
		if m.cursor < len(m.view.Rows)-1 {
			m.cursor++
		}
	case key.Matches(keyMsg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("%s / %s", m.view.FunctionID, m.view.Table)))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Key:"), ValueStyle.Render(m.view.Key)))
	committedText := "yes"
	if !m.view.Committed {
		committedText = "no (reserved, not yet written)"
	}
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Committed:"), CommitStyle(m.view.Committed).Render(committedText)))
	b.WriteString(fmt.Sprintf("%s %s\n\n", LabelStyle.Render("Tail value:"), ValueStyle.Render(m.view.Value)))

	if len(m.view.Rows) == 0 {
		b.WriteString(ValueStyle.Render("no rows found for this key"))
		b.WriteString("\n")
	}

	for i, row := range m.view.Rows {
		next := row.NextRowHash
		if next == "" {
			next = "(tail)"
		}
		line := fmt.Sprintf("row %d  hash=%s  next=%s  logs=%d", i, row.RowHash, next, row.LogCount)
		if i == m.cursor {
			b.WriteString(RowStyle.Render("> " + line))
		} else {
			b.WriteString(LabelStyle.Render("  " + line))
		}
		b.WriteString("\n")
	}

	help := HelpStyle.Render("↑/↓ select row · q to quit")
	return BoxStyle.Render(b.String()) + "\n" + help
}

type keyMap struct {
	Quit key.Binding
	Up   key.Binding
	Down key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Up:   key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down: key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
}

// RunInspectTUI runs the chain-inspection TUI to completion.
func RunInspectTUI(view ChainView) error {
	p := tea.NewProgram(NewInspectModel(view), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
