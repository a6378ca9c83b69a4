package webhook

import (
	"context"

	"github.com/mattjoyce/easyconnect/internal/store"
)

// Policy selects which authentication paths the verifier accepts.
type Policy string

const (
	// PolicySignatureOnly accepts keyed-hash signatures only.
	PolicySignatureOnly Policy = "signature_only"

	// PolicySignatureOrAutomationSecret additionally accepts the
	// automation-secret header and the payload workspace-id fallback.
	PolicySignatureOrAutomationSecret Policy = "signature_or_automation_secret"
)

// Valid reports whether p names a known policy.
func (p Policy) Valid() bool {
	return p == PolicySignatureOnly || p == PolicySignatureOrAutomationSecret
}

// CredentialSource is the store surface the verifier needs to resolve an
// inbound delivery to a workspace.
type CredentialSource interface {
	ListWebhookSecrets() ([]store.WebhookSecret, error)
	GetWorkspaceIDByWebhookID(webhookID string) (string, bool, error)
	GetWorkspaceIDByIncomingSecret(secret string) (string, bool, error)
}

// EventSink receives verified deliveries. Errors are logged by the handler
// and never affect the HTTP response.
type EventSink interface {
	HandleDelivery(ctx context.Context, workspaceID string, payload map[string]any) error
}

// Config holds webhook handler configuration.
type Config struct {
	Policy      Policy
	MaxBodySize int64
}

// ChallengeResponse echoes the subscription-verification handshake.
type ChallengeResponse struct {
	Challenge string `json:"challenge"`
}

// AckResponse acknowledges a processed (or swallowed-failure) delivery.
type AckResponse struct {
	OK bool `json:"ok"`
}

// ErrorResponse is the JSON response for webhook errors.
type ErrorResponse struct {
	Error string `json:"error"`
}

// DefaultMaxBodySize caps webhook request bodies at 1 MB.
const DefaultMaxBodySize = 1048576

// signatureHeaders is the ordered, case-insensitive list of headers checked
// for a signature token. First present header wins.
var signatureHeaders = []string{
	"X-Notion-Signature",
	"Notion-Signature",
}

// AutomationSecretHeader carries the locally issued automation secret. The
// OAuth callback hands this header name to users for their automations.
const AutomationSecretHeader = "X-Notion-Automation-Secret"
