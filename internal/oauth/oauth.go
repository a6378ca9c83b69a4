// Package oauth drives the three-legged Notion OAuth flow and provisions
// connected workspaces in the credential store.
package oauth

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/easyconnect/internal/config"
	"github.com/mattjoyce/easyconnect/internal/store"
	"github.com/mattjoyce/easyconnect/internal/webhook"
)

// CredentialStore is the store surface the OAuth flow needs.
type CredentialStore interface {
	UpsertWorkspace(req store.UpsertRequest) error
	IssueIncomingSecret(workspaceID string) (string, error)
	SetWebhookInfo(workspaceID, webhookID, webhookSecret, webhookURL string) error
}

// Handler serves the OAuth start and callback endpoints.
type Handler struct {
	cfg    config.NotionConfig
	store  CredentialStore
	client *http.Client
	logger *slog.Logger
}

// NewHandler creates an OAuth handler. Outbound platform calls use a fixed
// 30-second timeout with no retry; a timeout surfaces as an upstream failure.
func NewHandler(cfg config.NotionConfig, credStore CredentialStore, logger *slog.Logger) *Handler {
	return &Handler{
		cfg:    cfg,
		store:  credStore,
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// Routes returns the router for /notion/oauth.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/start", h.handleStart)
	r.Get("/callback", h.handleCallback)
	return r
}

// CallbackResponse is returned to the user's browser after a successful
// token exchange, including everything needed to configure an automation.
type CallbackResponse struct {
	OK          bool           `json:"ok"`
	WorkspaceID string         `json:"workspace_id"`
	Automation  AutomationInfo `json:"automation"`
}

// AutomationInfo describes the signature-less delivery path.
type AutomationInfo struct {
	CallbackURL string `json:"callback_url"`
	HeaderName  string `json:"header_name"`
	HeaderValue string `json:"header_value"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	WorkspaceID string `json:"workspace_id"`
	BotID       string `json:"bot_id"`
}

// handleStart handles GET /notion/oauth/start.
func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	if missing := config.MissingNotionVars(h.cfg); len(missing) > 0 {
		h.respondMissingConfig(w, missing)
		return
	}

	params := url.Values{}
	params.Set("client_id", h.cfg.ClientID)
	params.Set("response_type", "code")
	params.Set("owner", "user")
	params.Set("redirect_uri", h.cfg.RedirectURI)

	authorizeURL := fmt.Sprintf("%s/v1/oauth/authorize?%s", strings.TrimSuffix(h.cfg.APIBase, "/"), params.Encode())
	http.Redirect(w, r, authorizeURL, http.StatusFound)
}

// handleCallback handles GET /notion/oauth/callback?code=&state=.
func (h *Handler) handleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if missing := config.MissingNotionVars(h.cfg); len(missing) > 0 {
		h.respondMissingConfig(w, missing)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		h.respondJSON(w, http.StatusBadRequest, errorResponse{Error: "missing code parameter"})
		return
	}

	token, err := h.exchangeCode(ctx, code)
	if err != nil {
		h.logger.Error("token exchange failed", "error", err)
		h.respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "token exchange failed"})
		return
	}

	if err := h.store.UpsertWorkspace(store.UpsertRequest{
		WorkspaceID: token.WorkspaceID,
		AccessToken: token.AccessToken,
		BotID:       token.BotID,
	}); err != nil {
		h.logger.Error("workspace upsert failed", "workspace_id", token.WorkspaceID, "error", err)
		h.respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to store workspace"})
		return
	}

	incomingSecret, err := h.store.IssueIncomingSecret(token.WorkspaceID)
	if err != nil {
		h.logger.Error("incoming secret issuance failed", "workspace_id", token.WorkspaceID, "error", err)
		h.respondJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to issue automation secret"})
		return
	}

	// Best effort: register a webhook subscription so signed deliveries
	// work without manual setup. Failure leaves the automation path as the
	// only inbound route, which is still functional.
	h.registerSubscription(ctx, token.AccessToken, token.WorkspaceID)

	h.respondJSON(w, http.StatusOK, CallbackResponse{
		OK:          true,
		WorkspaceID: token.WorkspaceID,
		Automation: AutomationInfo{
			CallbackURL: h.cfg.CallbackURL,
			HeaderName:  webhook.AutomationSecretHeader,
			HeaderValue: incomingSecret,
		},
	})
}

// exchangeCode swaps an authorization code for an access token via a
// Basic-authenticated POST to the platform token endpoint.
func (h *Handler) exchangeCode(ctx context.Context, code string) (*tokenResponse, error) {
	tokenURL := fmt.Sprintf("%s/v1/oauth/token", strings.TrimSuffix(h.cfg.APIBase, "/"))

	payload, err := json.Marshal(map[string]string{
		"grant_type":   "authorization_code",
		"code":         code,
		"redirect_uri": h.cfg.RedirectURI,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build token request: %w", err)
	}

	basic := base64.StdEncoding.EncodeToString([]byte(h.cfg.ClientID + ":" + h.cfg.ClientSecret))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Notion-Version", h.cfg.Version)

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read token response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var token tokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("parse token response: %w", err)
	}
	if token.AccessToken == "" || token.WorkspaceID == "" {
		return nil, fmt.Errorf("token response missing required fields: %s", string(body))
	}
	return &token, nil
}

// registerSubscription provisions a webhook subscription on the platform and
// records it. Endpoint and body shape have varied across platform revisions,
// so createSubscription tries each known combination.
func (h *Handler) registerSubscription(ctx context.Context, accessToken, workspaceID string) {
	if h.cfg.CallbackURL == "" {
		return
	}

	webhookSecret, err := randomHex(32)
	if err != nil {
		h.logger.Error("webhook secret generation failed", "error", err)
		return
	}

	webhookID := h.createSubscription(ctx, accessToken, workspaceID, webhookSecret)
	if webhookID == "" {
		return
	}

	if err := h.store.SetWebhookInfo(workspaceID, webhookID, webhookSecret, h.cfg.CallbackURL); err != nil {
		h.logger.Error("webhook info store failed", "workspace_id", workspaceID, "error", err)
		return
	}
	h.logger.Info("webhook subscription registered", "workspace_id", workspaceID, "webhook_id", webhookID)
}

// createSubscription attempts each endpoint/body combination and returns the
// first webhook id granted, or "" when every attempt fails.
func (h *Handler) createSubscription(ctx context.Context, accessToken, workspaceID, webhookSecret string) string {
	base := strings.TrimSuffix(h.cfg.APIBase, "/")
	createURLs := []string{
		base + "/v1/webhooks",
		base + "/v1/subscriptions",
	}

	bodies := []map[string]any{
		{"name": "EasyConnect Webhook", "url": h.cfg.CallbackURL, "secret": webhookSecret, "active": true},
		{"callback_url": h.cfg.CallbackURL, "secret": webhookSecret, "workspace_id": workspaceID},
	}

	for _, createURL := range createURLs {
		for _, body := range bodies {
			id, err := h.postSubscription(ctx, createURL, accessToken, body)
			if err != nil {
				h.logger.Warn("webhook creation attempt failed", "url", createURL, "error", err)
				continue
			}
			if id != "" {
				h.logger.Info("webhook created", "url", createURL, "webhook_id", id)
				return id
			}
		}
	}
	return ""
}

func (h *Handler) postSubscription(ctx context.Context, createURL, accessToken string, body map[string]any) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal subscription request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, createURL, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build subscription request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Notion-Version", h.cfg.Version)

	resp, err := h.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("subscription request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read subscription response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("subscription endpoint returned %d: %s", resp.StatusCode, string(respBody))
	}

	// Field name varies across endpoint revisions.
	var parsed struct {
		ID             string `json:"id"`
		WebhookID      string `json:"webhook_id"`
		SubscriptionID string `json:"subscription_id"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse subscription response: %w", err)
	}
	if parsed.ID != "" {
		return parsed.ID, nil
	}
	if parsed.WebhookID != "" {
		return parsed.WebhookID, nil
	}
	return parsed.SubscriptionID, nil
}

func (h *Handler) respondMissingConfig(w http.ResponseWriter, missing []string) {
	h.logger.Error("missing platform configuration", "vars", strings.Join(missing, ","))
	h.respondJSON(w, http.StatusInternalServerError, errorResponse{
		Error: "missing configuration: " + strings.Join(missing, ", "),
	})
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
