package watch

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

func renderEventStream(eventLog []eventRow, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("EVENT STREAM"),
			theme.Dim.Render("  Waiting for deliveries..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= 10 {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	eventsText := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("EVENT STREAM"),
		eventsText,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e eventRow, theme Theme) string {
	ts := theme.Dim.Render(e.ReceivedAt.Format("15:04:05"))

	// Color the event type based on category
	var typeStyle lipgloss.Style
	switch {
	case strings.Contains(e.EventType, "deleted"):
		typeStyle = theme.StatusFailed
	case strings.Contains(e.EventType, "created"), strings.Contains(e.EventType, "updated"):
		typeStyle = theme.StatusOK
	case e.EventType == "unknown":
		typeStyle = theme.StatusIdle
	default:
		typeStyle = theme.Highlight
	}

	typeName := typeStyle.Render(fmt.Sprintf("%-24s", e.EventType))

	detail := e.PageID
	if detail == "" {
		detail = e.WorkspaceID
	}

	return fmt.Sprintf(" %s %s %s", ts, typeName, theme.Dim.Render(detail))
}
