package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mattjoyce/easyconnect/internal/auth"
	"github.com/mattjoyce/easyconnect/internal/events"
	"github.com/mattjoyce/easyconnect/internal/store"
)

type mockDirectory struct {
	workspaces map[string]store.Workspace
	listErr    error
}

func (m *mockDirectory) ListWorkspaceIDs() ([]string, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	ids := make([]string, 0, len(m.workspaces))
	for id := range m.workspaces {
		ids = append(ids, id)
	}
	return ids, nil
}

func (m *mockDirectory) GetWorkspace(id string) (store.Workspace, bool, error) {
	ws, ok := m.workspaces[id]
	return ws, ok, nil
}

type mockEventLog struct {
	records []events.Record
}

func (m *mockEventLog) Recent(ctx context.Context, limit int) ([]events.Record, error) {
	if limit > len(m.records) {
		limit = len(m.records)
	}
	return m.records[:limit], nil
}

func (m *mockEventLog) Count(ctx context.Context) (int, error) {
	return len(m.records), nil
}

type mockChat struct {
	reply string
	err   error
}

func (m *mockChat) Chat(ctx context.Context, prompt string) (string, error) {
	return m.reply, m.err
}

func (m *mockChat) Model() string { return "test-model" }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

func testServer(dir WorkspaceDirectory, log EventLog, chat *mockChat) *Server {
	cfg := Config{
		Listen: "127.0.0.1:0",
		APIKey: "admin-key",
		Tokens: []auth.TokenConfig{
			{Token: "reader-token", Scopes: []string{"workspace:ro"}},
			{Token: "chat-token", Scopes: []string{"chat:rw"}},
		},
	}
	if chat == nil {
		return New(cfg, dir, log, nil, nil, nil, testLogger())
	}
	return New(cfg, dir, log, chat, nil, nil, testLogger())
}

func doRequest(s *Server, method, path, token, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body != "" {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.setupRoutes().ServeHTTP(w, r)
	return w
}

func TestHealthzNoAuth(t *testing.T) {
	dir := &mockDirectory{workspaces: map[string]store.Workspace{
		"ws-1": {AccessToken: "tok"},
		"ws-2": {AccessToken: "tok"},
	}}
	log := &mockEventLog{records: []events.Record{
		{ID: "e1", WorkspaceID: "ws-1", EventType: "page.updated", ReceivedAt: time.Now()},
	}}
	s := testServer(dir, log, nil)

	w := doRequest(s, "GET", "/healthz", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp HealthzResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q", resp.Status)
	}
	if resp.Workspaces != 2 {
		t.Errorf("workspaces = %d, want 2", resp.Workspaces)
	}
	if resp.Events != 1 {
		t.Errorf("events = %d, want 1", resp.Events)
	}
}

func TestWorkspacesRequiresAuth(t *testing.T) {
	s := testServer(&mockDirectory{}, &mockEventLog{}, nil)

	if w := doRequest(s, "GET", "/workspaces", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}
	if w := doRequest(s, "GET", "/workspaces", "wrong", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", w.Code)
	}
}

func TestWorkspacesRedactsSecrets(t *testing.T) {
	dir := &mockDirectory{workspaces: map[string]store.Workspace{
		"ws-1": {
			AccessToken:    "secret-token",
			BotID:          "bot-1",
			WebhookID:      "wh-1",
			WebhookSecret:  "signing-secret",
			WebhookURL:     "https://example.com/notion/webhook",
			IncomingSecret: "automation-secret",
		},
	}}
	s := testServer(dir, &mockEventLog{}, nil)

	w := doRequest(s, "GET", "/workspaces", "reader-token", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	body := w.Body.String()
	for _, secret := range []string{"secret-token", "signing-secret", "automation-secret"} {
		if strings.Contains(body, secret) {
			t.Errorf("response leaks %q", secret)
		}
	}

	var resp WorkspacesResponse
	if err := json.Unmarshal([]byte(body), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(resp.Workspaces) != 1 {
		t.Fatalf("workspaces = %d", len(resp.Workspaces))
	}
	ws := resp.Workspaces[0]
	if !ws.HasToken || !ws.HasAutomation {
		t.Errorf("flags: has_token=%v has_automation=%v", ws.HasToken, ws.HasAutomation)
	}
	if ws.WebhookID != "wh-1" {
		t.Errorf("webhook_id = %q", ws.WebhookID)
	}
}

func TestWorkspacesScopeEnforced(t *testing.T) {
	s := testServer(&mockDirectory{}, &mockEventLog{}, nil)

	// chat-token has chat:rw only.
	if w := doRequest(s, "GET", "/workspaces", "chat-token", ""); w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", w.Code)
	}
	// admin key holds *.
	if w := doRequest(s, "GET", "/workspaces", "admin-key", ""); w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestEventsLimit(t *testing.T) {
	log := &mockEventLog{records: []events.Record{
		{ID: "e1"}, {ID: "e2"}, {ID: "e3"},
	}}
	s := testServer(&mockDirectory{}, log, nil)

	w := doRequest(s, "GET", "/events?limit=2", "reader-token", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp EventsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if len(resp.Events) != 2 {
		t.Errorf("events = %d, want 2", len(resp.Events))
	}

	if w := doRequest(s, "GET", "/events?limit=zero", "reader-token", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d, want 400", w.Code)
	}
}

func TestChatProxy(t *testing.T) {
	chat := &mockChat{reply: "hello there"}
	s := testServer(&mockDirectory{}, &mockEventLog{}, chat)

	w := doRequest(s, "POST", "/chat", "chat-token", `{"prompt":"say hello"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var resp ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Message != "hello there" {
		t.Errorf("message = %q", resp.Message)
	}
	if resp.Model != "test-model" {
		t.Errorf("model = %q", resp.Model)
	}
}

func TestChatValidation(t *testing.T) {
	chat := &mockChat{reply: "unused"}
	s := testServer(&mockDirectory{}, &mockEventLog{}, chat)

	if w := doRequest(s, "POST", "/chat", "chat-token", `{"prompt":"  "}`); w.Code != http.StatusBadRequest {
		t.Errorf("blank prompt: status = %d, want 400", w.Code)
	}
	if w := doRequest(s, "POST", "/chat", "chat-token", `not json`); w.Code != http.StatusBadRequest {
		t.Errorf("bad json: status = %d, want 400", w.Code)
	}
	if w := doRequest(s, "POST", "/chat", "reader-token", `{"prompt":"hi"}`); w.Code != http.StatusForbidden {
		t.Errorf("wrong scope: status = %d, want 403", w.Code)
	}
}

func TestChatUpstreamFailure(t *testing.T) {
	chat := &mockChat{err: errors.New("backend down")}
	s := testServer(&mockDirectory{}, &mockEventLog{}, chat)

	w := doRequest(s, "POST", "/chat", "admin-key", `{"prompt":"hi"}`)
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

func TestChatUnconfigured(t *testing.T) {
	s := testServer(&mockDirectory{}, &mockEventLog{}, nil)

	w := doRequest(s, "POST", "/chat", "admin-key", `{"prompt":"hi"}`)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}
