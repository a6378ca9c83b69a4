package webhook

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

// Handler verifies inbound webhook deliveries and dispatches them to the
// event sink.
type Handler struct {
	config Config
	creds  CredentialSource
	sink   EventSink
	logger *slog.Logger
}

// NewHandler creates a webhook handler.
func NewHandler(config Config, creds CredentialSource, sink EventSink, logger *slog.Logger) *Handler {
	if config.MaxBodySize <= 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}
	if !config.Policy.Valid() {
		config.Policy = PolicySignatureOrAutomationSecret
	}
	return &Handler{
		config: config,
		creds:  creds,
		sink:   sink,
		logger: logger,
	}
}

// ServeHTTP handles POST /notion/webhook.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limitedReader := io.LimitReader(r.Body, h.config.MaxBodySize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "failed to read request body")
		return
	}
	if int64(len(body)) > h.config.MaxBodySize {
		h.respondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	// Malformed bodies degrade to an empty payload rather than failing the
	// request; handshake-style deliveries sometimes arrive with junk bodies.
	payload := map[string]any{}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &payload); err != nil {
			payload = map[string]any{}
		}
	}

	// Subscription-verification handshake. Happens before any secret is
	// issued, so it bypasses authentication entirely.
	if challenge, _ := payload["challenge"].(string); challenge != "" {
		h.respondJSON(w, http.StatusOK, ChallengeResponse{Challenge: challenge})
		return
	}

	signature := h.signatureFromHeaders(r)

	workspaceID := ""
	matchedWebhookID := ""

	// 1) Keyed-hash signature path.
	if signature != "" && hasSignaturePrefix(signature) {
		matchedWebhookID, err = h.matchSignature(body, signature)
		if err != nil {
			h.respondError(w, http.StatusInternalServerError, "verification failed")
			return
		}
		if matchedWebhookID == "" {
			h.logger.Warn("webhook signature mismatch")
			h.respondError(w, http.StatusUnauthorized, "invalid signature")
			return
		}
		workspaceID, _, err = h.creds.GetWorkspaceIDByWebhookID(matchedWebhookID)
		if err != nil {
			h.respondError(w, http.StatusInternalServerError, "verification failed")
			return
		}
	}

	// 2) Automation-secret header path.
	if workspaceID == "" && h.config.Policy == PolicySignatureOrAutomationSecret {
		if automationSecret := r.Header.Get(AutomationSecretHeader); automationSecret != "" {
			var ok bool
			workspaceID, ok, err = h.creds.GetWorkspaceIDByIncomingSecret(automationSecret)
			if err != nil {
				h.respondError(w, http.StatusInternalServerError, "verification failed")
				return
			}
			if !ok {
				h.logger.Warn("automation secret mismatch")
				h.respondError(w, http.StatusUnauthorized, "invalid automation secret")
				return
			}
		}
	}

	// 3) Trust fallback: a workspace id supplied in the payload itself.
	if workspaceID == "" && h.config.Policy == PolicySignatureOrAutomationSecret {
		workspaceID = workspaceIDFromPayload(payload)
	}

	if workspaceID == "" {
		h.logger.Warn("workspace resolution failed", "webhook_id", matchedWebhookID)
		h.respondError(w, http.StatusBadRequest, "workspace not found")
		return
	}

	// Processing failures must not trigger the sender's redelivery policy;
	// acknowledge regardless and keep the failure in the logs.
	if err := h.sink.HandleDelivery(ctx, workspaceID, payload); err != nil {
		h.logger.Error("event handling failed", "workspace_id", workspaceID, "error", err)
	}

	h.respondJSON(w, http.StatusOK, AckResponse{OK: true})
}

// signatureFromHeaders extracts the signature token from the first present
// candidate header. Under the automation-secret policy, the automation header
// is also accepted as a signature-candidate source.
func (h *Handler) signatureFromHeaders(r *http.Request) string {
	candidates := signatureHeaders
	if h.config.Policy == PolicySignatureOrAutomationSecret {
		candidates = append(candidates[:len(candidates):len(candidates)], AutomationSecretHeader)
	}
	for _, name := range candidates {
		if value := r.Header.Get(name); value != "" {
			return value
		}
	}
	return ""
}

// matchSignature tries every stored webhook secret against the signature and
// returns the first matching webhook id, or "" if none match.
func (h *Handler) matchSignature(body []byte, signature string) (string, error) {
	secrets, err := h.creds.ListWebhookSecrets()
	if err != nil {
		return "", err
	}
	for _, ws := range secrets {
		if signatureMatches(body, signature, ws.Secret) {
			return ws.WebhookID, nil
		}
	}
	return "", nil
}

func workspaceIDFromPayload(payload map[string]any) string {
	if id, _ := payload["workspace_id"].(string); id != "" {
		return id
	}
	if id, _ := payload["workspaceId"].(string); id != "" {
		return id
	}
	return ""
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, ErrorResponse{Error: message})
}
