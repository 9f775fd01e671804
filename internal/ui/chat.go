package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Messages the session layer pushes into the chat program via
// Program.Send.

// ChatLineMsg is an incoming chat message from a remote peer.
type ChatLineMsg struct {
	From string
	Text string
	At   time.Time
}

// StatusMsg is a membership or connectivity notice shown inline.
type StatusMsg struct {
	Text string
}

// SessionEndedMsg closes the chat view (e.g. the host left).
type SessionEndedMsg struct {
	Reason string
}

// SendFunc delivers an outbound chat line; an error means the message
// was not delivered and the UI marks it accordingly.
type SendFunc func(text string) error

// ChatModel is the interactive chat view: a scrollback viewport over a
// single-line input.
type ChatModel struct {
	title    string
	send     SendFunc
	selfName string

	viewport viewport.Model
	input    textinput.Model
	lines    []string
	ready    bool
}

// NewChatModel builds the chat view for a session.
func NewChatModel(title, selfName string, send SendFunc) ChatModel {
	ti := textinput.New()
	ti.Placeholder = "Type a message and press Enter"
	ti.CharLimit = 512
	ti.Focus()

	return ChatModel{
		title:    title,
		selfName: selfName,
		send:     send,
		input:    ti,
	}
}

func (m ChatModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		height := msg.Height - 5
		if height < 3 {
			height = 3
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width, height)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = height
		}
		m.refreshViewport()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text != "" {
				line := fmt.Sprintf("%s %s", SelfStyle.Render(m.selfName+":"), text)
				if err := m.send(text); err != nil {
					line += " " + ErrorStyle.Render("(not delivered)")
				}
				m.appendLine(line)
				m.input.Reset()
			}
		}

	case ChatLineMsg:
		m.appendLine(fmt.Sprintf("%s %s", PeerStyle.Render(msg.From+":"), msg.Text))

	case StatusMsg:
		m.appendLine(StatusStyle.Render("· " + msg.Text))

	case SessionEndedMsg:
		m.appendLine(StatusStyle.Render("· " + msg.Reason))
		return m, tea.Quit
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m ChatModel) View() string {
	if !m.ready {
		return "loading..."
	}
	header := TitleStyle.Render(IconChat + " " + m.title)
	footer := MutedStyle.Render("enter to send · esc to leave")
	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		m.viewport.View(),
		m.input.View(),
		footer,
	)
}

func (m *ChatModel) appendLine(line string) {
	m.lines = append(m.lines, line)
	m.refreshViewport()
}

func (m *ChatModel) refreshViewport() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	m.viewport.GotoBottom()
}
