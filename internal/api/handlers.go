package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

const (
	defaultEventsLimit = 50
	maxEventsLimit     = 500
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ids, err := s.directory.ListWorkspaceIDs()
	if err != nil {
		s.logger.Error("failed to list workspaces", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list workspaces")
		return
	}

	eventCount := 0
	if s.eventLog != nil {
		eventCount, err = s.eventLog.Count(r.Context())
		if err != nil {
			s.logger.Error("failed to count events", "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to count events")
			return
		}
	}

	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Workspaces:    len(ids),
		Events:        eventCount,
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleWorkspaces handles GET /workspaces.
func (s *Server) handleWorkspaces(w http.ResponseWriter, r *http.Request) {
	ids, err := s.directory.ListWorkspaceIDs()
	if err != nil {
		s.logger.Error("failed to list workspaces", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list workspaces")
		return
	}
	sort.Strings(ids)

	summaries := make([]WorkspaceSummary, 0, len(ids))
	for _, id := range ids {
		ws, ok, err := s.directory.GetWorkspace(id)
		if err != nil {
			s.logger.Error("failed to read workspace", "workspace_id", id, "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to read workspace")
			return
		}
		if !ok {
			continue
		}
		summaries = append(summaries, WorkspaceSummary{
			WorkspaceID:   id,
			BotID:         ws.BotID,
			WebhookID:     ws.WebhookID,
			WebhookURL:    ws.WebhookURL,
			HasToken:      ws.AccessToken != "",
			HasAutomation: ws.IncomingSecret != "",
		})
	}

	respondJSON(w, http.StatusOK, WorkspacesResponse{Workspaces: summaries})
}

// handleEvents handles GET /events?limit=N.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.eventLog == nil {
		respondJSON(w, http.StatusOK, EventsResponse{Events: nil})
		return
	}

	limit := defaultEventsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n > maxEventsLimit {
			n = maxEventsLimit
		}
		limit = n
	}

	records, err := s.eventLog.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read event log", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read event log")
		return
	}
	respondJSON(w, http.StatusOK, EventsResponse{Events: records})
}

// handleChat handles POST /chat.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.chat == nil {
		s.writeError(w, http.StatusServiceUnavailable, "chat backend not configured")
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	reply, err := s.chat.Chat(r.Context(), req.Prompt)
	if err != nil {
		s.logger.Error("chat completion failed", "error", err)
		s.writeError(w, http.StatusBadGateway, "chat completion failed")
		return
	}

	respondJSON(w, http.StatusOK, ChatResponse{Message: reply, Model: s.chat.Model()})
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
