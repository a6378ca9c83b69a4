package watch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// --- Message types ---

type healthMsg struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Workspaces    int    `json:"workspaces"`
	Events        int    `json:"events"`
}

type workspaceRow struct {
	WorkspaceID   string `json:"workspace_id"`
	BotID         string `json:"bot_id"`
	WebhookID     string `json:"webhook_id"`
	HasToken      bool   `json:"has_token"`
	HasAutomation bool   `json:"has_automation"`
}

type workspacesMsg []workspaceRow

type eventRow struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	EventType   string    `json:"event_type"`
	PageID      string    `json:"page_id"`
	ReceivedAt  time.Time `json:"received_at"`
}

type eventsMsg []eventRow

type tickMsg time.Time

type fetchKind int

const (
	fetchKindHealth fetchKind = iota
	fetchKindWorkspaces
	fetchKindEvents
)

// errMsg carries the failed fetch so its poll loop can reschedule itself.
type errMsg struct {
	kind fetchKind
	err  error
}

// --- Commands ---

func getJSON(apiURL, apiKey, path string, out any) error {
	client := &http.Client{Timeout: 2 * time.Second}
	req, err := http.NewRequest("GET", apiURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// fetchHealth queries the /healthz endpoint.
func fetchHealth(apiURL, apiKey string) tea.Msg {
	var h healthMsg
	if err := getJSON(apiURL, apiKey, "/healthz", &h); err != nil {
		return errMsg{kind: fetchKindHealth, err: err}
	}
	return h
}

// fetchWorkspaces queries the /workspaces endpoint.
func fetchWorkspaces(apiURL, apiKey string) tea.Msg {
	var resp struct {
		Workspaces []workspaceRow `json:"workspaces"`
	}
	if err := getJSON(apiURL, apiKey, "/workspaces", &resp); err != nil {
		return errMsg{kind: fetchKindWorkspaces, err: err}
	}
	return workspacesMsg(resp.Workspaces)
}

// fetchEvents queries the /events endpoint.
func fetchEvents(apiURL, apiKey string) tea.Msg {
	var resp struct {
		Events []eventRow `json:"events"`
	}
	if err := getJSON(apiURL, apiKey, "/events?limit=20", &resp); err != nil {
		return errMsg{kind: fetchKindEvents, err: err}
	}
	return eventsMsg(resp.Events)
}
