// Package ui is a terminal client of the running application: greet by
// name, list identities and watch the events the plugins publish.
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/eidwallet/eidwallet/internal/greet"
	"github.com/eidwallet/eidwallet/internal/identity"
	"github.com/eidwallet/eidwallet/internal/ipc"
)

const maxEvents = 5

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	replyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Caller invokes application commands
type Caller interface {
	Call(ctx context.Context, cmd string, args any, out any) error
}

type view int

const (
	viewGreet view = iota
	viewIdentities
)

type greetedMsg struct {
	text string
	err  error
}

type identitiesMsg struct {
	list []identity.Identity
	err  error
}

type eventMsg ipc.Event

// Model is the bubbletea model of the shell
type Model struct {
	ctx    context.Context
	caller Caller
	events <-chan ipc.Event

	title      string
	view       view
	input      textinput.Model
	greeting   string
	identities []identity.Identity
	recent     []ipc.Event
	err        error
}

// New creates the shell model. events may be nil.
func New(ctx context.Context, title string, caller Caller, events <-chan ipc.Event) Model {
	input := textinput.New()
	input.Placeholder = "your name"
	input.CharLimit = 64
	input.Focus()

	return Model{
		ctx:    ctx,
		caller: caller,
		events: events,
		title:  title,
		input:  input,
	}
}

// Run runs the shell until the user quits or ctx is cancelled
func Run(ctx context.Context, title string, caller Caller, events <-chan ipc.Event, opts ...tea.ProgramOption) error {
	opts = append(opts, tea.WithContext(ctx))
	if _, err := tea.NewProgram(New(ctx, title, caller, events), opts...).Run(); err != nil {
		return fmt.Errorf("shell failed: %w", err)
	}
	return nil
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.waitForEvent())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "tab":
			if m.view == viewGreet {
				m.view = viewIdentities
				return m, m.listIdentities()
			}
			m.view = viewGreet
			return m, nil
		case "enter":
			if m.view == viewGreet {
				return m, m.greet(m.input.Value())
			}
			return m, nil
		}

	case greetedMsg:
		m.greeting, m.err = msg.text, msg.err
		if msg.err == nil {
			m.input.SetValue("")
		}
		return m, nil

	case identitiesMsg:
		m.identities, m.err = msg.list, msg.err
		return m, nil

	case eventMsg:
		m.recent = append(m.recent, ipc.Event(msg))
		if len(m.recent) > maxEvents {
			m.recent = m.recent[len(m.recent)-maxEvents:]
		}
		return m, m.waitForEvent()
	}

	if m.view != viewGreet {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	switch m.view {
	case viewGreet:
		b.WriteString("Who should be greeted?\n")
		b.WriteString(m.input.View())
		b.WriteString("\n\n")
		if m.greeting != "" {
			b.WriteString(replyStyle.Render(m.greeting))
			b.WriteString("\n")
		}
	case viewIdentities:
		b.WriteString("Identities\n")
		if len(m.identities) == 0 {
			b.WriteString(dimStyle.Render("  none yet"))
			b.WriteString("\n")
		}
		for _, id := range m.identities {
			line := "  " + id.DID
			if id.AlsoKnownAs != "" {
				line += dimStyle.Render(" (" + id.AlsoKnownAs + ")")
			}
			b.WriteString(line + "\n")
		}
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render("error: " + m.err.Error()))
		b.WriteString("\n")
	}

	if len(m.recent) > 0 {
		b.WriteString("\n" + dimStyle.Render("events") + "\n")
		for _, ev := range m.recent {
			b.WriteString(dimStyle.Render(fmt.Sprintf("  %s %s", ev.Name, ev.Payload)) + "\n")
		}
	}

	b.WriteString("\n" + dimStyle.Render("enter: greet • tab: identities • esc: quit"))
	return b.String()
}

func (m Model) greet(name string) tea.Cmd {
	return func() tea.Msg {
		var text string
		err := m.caller.Call(m.ctx, greet.CommandName, greet.Args{Name: name}, &text)
		return greetedMsg{text: text, err: err}
	}
}

func (m Model) listIdentities() tea.Cmd {
	return func() tea.Msg {
		var list []identity.Identity
		err := m.caller.Call(m.ctx, identity.CommandList, nil, &list)
		return identitiesMsg{list: list, err: err}
	}
}

func (m Model) waitForEvent() tea.Cmd {
	if m.events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}
