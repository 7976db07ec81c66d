package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/bluevia-go/bluevia"
	"github.com/bluevia-go/bluevia/internal/cli/ui"
)

// colorEnabled reports whether stderr is a terminal that should get color.
// NO_COLOR (https://no-color.org/) always wins.
func colorEnabled() bool {
	return ui.ColorEnabled()
}

func colorEnabledFd(fd uintptr) bool {
	return ui.ColorEnabledFd(fd)
}

// paint renders text with the given style on the forced-ANSI renderer, or
// returns it untouched when color is off. Callers have already made the
// terminal decision.
func paint(text string, color bool, style func(lipgloss.Style) lipgloss.Style) string {
	if !color {
		return text
	}
	return style(ui.ForcedRenderer().NewStyle()).Render(text)
}

func bold(text string, color bool) string {
	return paint(text, color, func(s lipgloss.Style) lipgloss.Style { return s.Bold(true) })
}

func dim(text string, color bool) string {
	return paint(text, color, func(s lipgloss.Style) lipgloss.Style { return s.Faint(true) })
}

func cyan(text string, color bool) string {
	return paint(text, color, func(s lipgloss.Style) lipgloss.Style { return s.Foreground(ui.ColorCyan) })
}

func green(text string, color bool) string {
	return paint(text, color, func(s lipgloss.Style) lipgloss.Style { return s.Foreground(ui.ColorGreen) })
}

func yellow(text string, color bool) string {
	return paint(text, color, func(s lipgloss.Style) lipgloss.Style { return s.Foreground(ui.ColorYellow) })
}

func red(text string, color bool) string {
	return paint(text, color, func(s lipgloss.Style) lipgloss.Style { return s.Foreground(ui.ColorRed) })
}

func boldCyan(text string, color bool) string {
	return paint(text, color, func(s lipgloss.Style) lipgloss.Style { return s.Bold(true).Foreground(ui.ColorCyan) })
}

// statusColor colors a delivery status: green once delivered, red for the
// other final states and yellow while the message is in flight.
func statusColor(status string, color bool) string {
	switch status {
	case bluevia.StatusDelivered:
		return green(status, color)
	case bluevia.StatusDeliveryImpossible, bluevia.StatusUndelivered, bluevia.StatusExpired:
		return red(status, color)
	}
	return yellow(status, color)
}
