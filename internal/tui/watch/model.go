package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const pollInterval = 5 * time.Second

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	// State
	health     HealthState
	workspaces []workspaceRow
	eventLog   []eventRow
	lastSeen   string

	// Live indicators
	ticker  Ticker
	spinner Spinner

	// UI state
	theme          Theme
	workspaceTable table.Model

	// Error display
	lastError string
}

// New creates a new watch TUI model.
func New(apiURL, apiKey string) *Model {
	return &Model{
		apiURL:         apiURL,
		apiKey:         apiKey,
		ticker:         NewTicker(),
		spinner:        NewSpinner(),
		theme:          NewDefaultTheme(),
		workspaceTable: newWorkspaceTable(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		func() tea.Msg { return fetchHealth(m.apiURL, m.apiKey) },
		func() tea.Msg { return fetchWorkspaces(m.apiURL, m.apiKey) },
		func() tea.Msg { return fetchEvents(m.apiURL, m.apiKey) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.workspaceTable, cmd = m.workspaceTable.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.ticker.Tick()
		m.spinner.Decay()
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.Workspaces = msg.Workspaces
		m.health.Events = msg.Events
		m.health.Connected = true
		m.health.LastCheck = time.Now()
		m.lastError = ""

		return m, tea.Tick(pollInterval, func(t time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.apiKey)
		})

	case workspacesMsg:
		m.workspaces = msg
		m.workspaceTable.SetRows(workspaceRows(msg))

		return m, tea.Tick(pollInterval, func(t time.Time) tea.Msg {
			return fetchWorkspaces(m.apiURL, m.apiKey)
		})

	case eventsMsg:
		m.eventLog = msg
		// Light up the activity spinner when a new delivery arrives.
		if len(msg) > 0 && msg[0].ID != m.lastSeen {
			m.lastSeen = msg[0].ID
			m.spinner.OnEvent(msg[0].ReceivedAt)
		}

		return m, tea.Tick(pollInterval, func(t time.Time) tea.Msg {
			return fetchEvents(m.apiURL, m.apiKey)
		})

	case errMsg:
		m.lastError = msg.err.Error()
		if msg.kind == fetchKindHealth {
			m.health.Connected = false
		}
		return m, tea.Tick(pollInterval, func(t time.Time) tea.Msg {
			switch msg.kind {
			case fetchKindWorkspaces:
				return fetchWorkspaces(m.apiURL, m.apiKey)
			case fetchKindEvents:
				return fetchEvents(m.apiURL, m.apiKey)
			default:
				return fetchHealth(m.apiURL, m.apiKey)
			}
		})
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing watch..."
	}

	header := renderHeader(m.health, m.ticker, m.spinner, m.theme, m.width)
	workspaces := renderWorkspaces(m.workspaceTable, m.theme, m.width)
	eventStream := renderEventStream(m.eventLog, m.theme, m.width)

	// Error bar
	var errBar string
	if m.lastError != "" {
		errBar = m.theme.StatusFailed.Render(fmt.Sprintf(" ⚠ %s", m.lastError))
	}

	help := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [↑/↓] Navigate Workspaces")

	parts := []string{header, workspaces, eventStream}
	if errBar != "" {
		parts = append(parts, errBar)
	}
	parts = append(parts, help)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
