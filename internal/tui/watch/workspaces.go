package watch

import (
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
)

func newWorkspaceTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Workspace", Width: 36},
			{Title: "Token", Width: 6},
			{Title: "Webhook", Width: 12},
			{Title: "Automation", Width: 10},
		}),
		table.WithFocused(true),
		table.WithHeight(6),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return t
}

func workspaceRows(workspaces []workspaceRow) []table.Row {
	rows := make([]table.Row, 0, len(workspaces))
	for _, ws := range workspaces {
		token := "no"
		if ws.HasToken {
			token = "yes"
		}
		webhook := ws.WebhookID
		if webhook == "" {
			webhook = "-"
		}
		automation := "no"
		if ws.HasAutomation {
			automation = "yes"
		}
		rows = append(rows, table.Row{ws.WorkspaceID, token, webhook, automation})
	}
	return rows
}

func renderWorkspaces(t table.Model, theme Theme, width int) string {
	innerWidth := width - 4

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("WORKSPACES"),
		t.View(),
	)
	return theme.Border.Width(innerWidth).Render(content)
}
