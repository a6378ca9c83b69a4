package api

import (
	"github.com/mattjoyce/easyconnect/internal/events"
)

// HealthzResponse is returned by GET /healthz
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Workspaces    int    `json:"workspaces"`
	Events        int    `json:"events"`
}

// WorkspaceSummary is one entry of GET /workspaces. Secrets never leave the
// store through this surface.
type WorkspaceSummary struct {
	WorkspaceID   string `json:"workspace_id"`
	BotID         string `json:"bot_id,omitempty"`
	WebhookID     string `json:"webhook_id,omitempty"`
	WebhookURL    string `json:"webhook_url,omitempty"`
	HasToken      bool   `json:"has_token"`
	HasAutomation bool   `json:"has_automation"`
}

// WorkspacesResponse is returned by GET /workspaces
type WorkspacesResponse struct {
	Workspaces []WorkspaceSummary `json:"workspaces"`
}

// EventsResponse is returned by GET /events
type EventsResponse struct {
	Events []events.Record `json:"events"`
}

// ChatRequest is the body of POST /chat
type ChatRequest struct {
	Prompt string `json:"prompt"`
}

// ChatResponse is returned by POST /chat
type ChatResponse struct {
	Message string `json:"message"`
	Model   string `json:"model,omitempty"`
}

// ErrorResponse is the standard JSON error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
