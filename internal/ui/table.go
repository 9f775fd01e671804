package ui

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
)

// SessionSummary is the recap printed when a broadcast or viewing
// session ends.
type SessionSummary struct {
	Role     string
	RoomID   string
	Peers    int
	Messages int
	Duration time.Duration
}

// RenderSessionSummary prints the recap as a go-pretty table.
func RenderSessionSummary(s SessionSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Role", s.Role},
		{"Room", s.RoomID},
		{"Peers seen", s.Peers},
		{"Chat messages", s.Messages},
		{"Duration", s.Duration.Round(time.Second)},
	})
	t.Render()
}

// RoomInfo renders the post-create banner with the room ID viewers
// need.
type RoomInfo struct {
	RoomID string
}

func (r *RoomInfo) View() string {
	content := fmt.Sprintf("%s Room Created!\n\n%s Room ID:  %s\n\nShare this ID; viewers join with `watch join %s`",
		IconSuccess,
		IconRoom, BoldStyle.Foreground(Primary).Render(r.RoomID),
		r.RoomID,
	)
	return SuccessBoxStyle.Render(content)
}

// Render outputs the banner directly to stdout.
func (r *RoomInfo) Render() {
	fmt.Println(lipgloss.NewStyle().Render(r.View()))
}
