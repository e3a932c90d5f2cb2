package dashboard

import (
	"github.com/charmbracelet/lipgloss"

	"backdash/internal/domain"
)

// Badge is the visual treatment of a run status.
type Badge struct {
	Label string
	Icon  string
	Pulse bool // animate while the run is in progress
	Style lipgloss.Style
}

var (
	runningStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("11"))
	completedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("0")).Background(lipgloss.Color("10"))
	failedStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("9"))
	unknownStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

// StatusBadge maps a run status to its badge. Pending runs share the
// running treatment.
func StatusBadge(s domain.RunState) Badge {
	switch s {
	case domain.RunRunning, domain.RunPending:
		return Badge{Label: "EN COURS", Icon: "⚡", Pulse: true, Style: runningStyle}
	case domain.RunCompleted:
		return Badge{Label: "TERMINÉ", Icon: "✅", Style: completedStyle}
	case domain.RunFailed:
		return Badge{Label: "ÉCHEC", Icon: "❌", Style: failedStyle}
	default:
		return Badge{Label: string(s), Icon: "?", Style: unknownStyle}
	}
}

// Text renders the badge without styling, e.g. "TERMINÉ ✅".
func (b Badge) Text() string {
	return b.Label + " " + b.Icon
}

// Render renders the styled badge, followed by message when non-empty. When
// frame is odd a pulsing badge draws its icon dimmed.
func (b Badge) Render(message string, frame int) string {
	icon := b.Icon
	if b.Pulse && frame%2 == 1 {
		icon = " "
	}
	out := b.Style.Render(" " + icon + " " + b.Label + " ")
	if message != "" {
		out += " " + unknownStyle.Render(message)
	}
	return out
}
