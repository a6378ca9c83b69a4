// Package store implements durable credential storage for connected Notion
// workspaces.
//
// The entire store is one JSON document on disk:
//
//	{
//	  "workspaces": {"<workspace_id>": {<workspace record>}},
//	  "webhooks":   {"<webhook_id>": {"workspace_id": "...", "secret": "..."}}
//	}
//
// Every operation takes the store mutex, loads the whole document, mutates it
// in memory, and writes the whole document back. Writes go through a temp file
// and rename so readers never observe a torn document. Call volume is OAuth
// callbacks and webhook deliveries, so a single lock is fine.
package store

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Workspace is the stored record for one connected Notion workspace.
type Workspace struct {
	// AccessToken is the bearer credential for calling the Notion API on
	// the workspace's behalf. Set at OAuth completion, refreshed on
	// re-authorization.
	AccessToken string `json:"access_token"`

	// BotID is the platform-assigned id of the integration's bot user.
	BotID string `json:"bot_id,omitempty"`

	// WebhookID/WebhookSecret identify a registered webhook subscription
	// and its signing secret for HMAC verification of deliveries.
	WebhookID     string `json:"webhook_id,omitempty"`
	WebhookSecret string `json:"webhook_secret,omitempty"`

	// WebhookURL is the callback URL registered for the subscription.
	WebhookURL string `json:"webhook_url,omitempty"`

	// IncomingSecret authenticates signature-less automation calls via the
	// X-Notion-Automation-Secret header. Issued locally, independent of
	// WebhookSecret.
	IncomingSecret string `json:"incoming_secret,omitempty"`
}

// WebhookEntry is the reverse-index entry mapping a webhook id back to its
// owning workspace. It lets the verifier try every known secret without
// knowing the sending tenant in advance.
type WebhookEntry struct {
	WorkspaceID string `json:"workspace_id"`
	Secret      string `json:"secret"`
}

// WebhookSecret pairs a webhook id with its signing secret.
type WebhookSecret struct {
	WebhookID string
	Secret    string
}

type document struct {
	Workspaces map[string]Workspace    `json:"workspaces"`
	Webhooks   map[string]WebhookEntry `json:"webhooks"`
}

// Store is the process-wide credential store.
type Store struct {
	mu   sync.Mutex
	path string
}

// New creates a store backed by the JSON document at path. The file is
// created lazily on first write; a missing file reads as an empty store.
func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	return &Store{path: path}, nil
}

// Path returns the on-disk location of the store document.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) load() (*document, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &document{
			Workspaces: map[string]Workspace{},
			Webhooks:   map[string]WebhookEntry{},
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse store: %w", err)
	}
	if doc.Workspaces == nil {
		doc.Workspaces = map[string]Workspace{}
	}
	if doc.Webhooks == nil {
		doc.Webhooks = map[string]WebhookEntry{}
	}
	return &doc, nil
}

func (s *Store) save(doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write store: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}

// UpsertRequest carries the fields merged by UpsertWorkspace. AccessToken is
// always written; empty optional fields never erase stored values.
type UpsertRequest struct {
	WorkspaceID    string
	AccessToken    string
	BotID          string
	WebhookID      string
	WebhookSecret  string
	WebhookURL     string
	IncomingSecret string
}

// UpsertWorkspace merges the supplied fields into the workspace record,
// creating it if absent. If a webhook id and a resolved secret exist after
// the merge, the reverse-index entry is written or overwritten as well.
func (s *Store) UpsertWorkspace(req UpsertRequest) error {
	if req.WorkspaceID == "" {
		return fmt.Errorf("workspace_id is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}

	ws := doc.Workspaces[req.WorkspaceID]
	ws.AccessToken = req.AccessToken
	if req.BotID != "" {
		ws.BotID = req.BotID
	}
	if req.WebhookID != "" {
		ws.WebhookID = req.WebhookID
	}
	if req.WebhookSecret != "" {
		ws.WebhookSecret = req.WebhookSecret
	}
	if req.WebhookURL != "" {
		ws.WebhookURL = req.WebhookURL
	}
	if req.IncomingSecret != "" {
		ws.IncomingSecret = req.IncomingSecret
	}
	doc.Workspaces[req.WorkspaceID] = ws

	// Keep the reverse index consistent with the merged record.
	if ws.WebhookID != "" && ws.WebhookSecret != "" {
		doc.Webhooks[ws.WebhookID] = WebhookEntry{
			WorkspaceID: req.WorkspaceID,
			Secret:      ws.WebhookSecret,
		}
	}

	return s.save(doc)
}

// GetWorkspace returns the stored record, or ok=false if unknown.
func (s *Store) GetWorkspace(workspaceID string) (Workspace, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return Workspace{}, false, err
	}
	ws, ok := doc.Workspaces[workspaceID]
	return ws, ok, nil
}

// ListWorkspaceIDs returns every stored workspace id. Order is unspecified.
func (s *Store) ListWorkspaceIDs() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(doc.Workspaces))
	for id := range doc.Workspaces {
		ids = append(ids, id)
	}
	return ids, nil
}

// ListWebhookSecrets returns every reverse-index entry with a non-empty
// secret. Order is unspecified.
func (s *Store) ListWebhookSecrets() ([]WebhookSecret, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	secrets := make([]WebhookSecret, 0, len(doc.Webhooks))
	for id, entry := range doc.Webhooks {
		if entry.Secret == "" {
			continue
		}
		secrets = append(secrets, WebhookSecret{WebhookID: id, Secret: entry.Secret})
	}
	return secrets, nil
}

// GetSecretByWebhookID returns the signing secret for a webhook id, or
// ok=false if unknown.
func (s *Store) GetSecretByWebhookID(webhookID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return "", false, err
	}
	entry, ok := doc.Webhooks[webhookID]
	if !ok {
		return "", false, nil
	}
	return entry.Secret, true, nil
}

// GetAccessTokenByWorkspace returns the stored access token, or ok=false if
// the workspace is unknown.
func (s *Store) GetAccessTokenByWorkspace(workspaceID string) (string, bool, error) {
	ws, ok, err := s.GetWorkspace(workspaceID)
	if err != nil || !ok {
		return "", false, err
	}
	return ws.AccessToken, true, nil
}

// GetWorkspaceIDByWebhookID resolves a webhook id to its owning workspace.
func (s *Store) GetWorkspaceIDByWebhookID(webhookID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return "", false, err
	}
	entry, ok := doc.Webhooks[webhookID]
	if !ok {
		return "", false, nil
	}
	return entry.WorkspaceID, true, nil
}

// SetIncomingSecret overwrites the workspace's automation secret, creating
// the record if absent. A record created this way has no access token until
// the OAuth callback runs (pre-provisioning).
func (s *Store) SetIncomingSecret(workspaceID, secret string) error {
	if workspaceID == "" {
		return fmt.Errorf("workspace_id is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}

	ws := doc.Workspaces[workspaceID]
	ws.IncomingSecret = secret
	doc.Workspaces[workspaceID] = ws

	return s.save(doc)
}

// GetWorkspaceIDByIncomingSecret scans all workspaces for a matching
// automation secret and returns the first match. Plain equality is fine here:
// this resolves a local identifier, it is not the signature check.
func (s *Store) GetWorkspaceIDByIncomingSecret(secret string) (string, bool, error) {
	if secret == "" {
		return "", false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return "", false, err
	}
	for id, ws := range doc.Workspaces {
		if ws.IncomingSecret == secret {
			return id, true, nil
		}
	}
	return "", false, nil
}

// SetWebhookInfo records a webhook subscription on the workspace and writes
// the matching reverse-index entry.
func (s *Store) SetWebhookInfo(workspaceID, webhookID, webhookSecret, webhookURL string) error {
	if workspaceID == "" {
		return fmt.Errorf("workspace_id is empty")
	}
	if webhookID == "" {
		return fmt.Errorf("webhook_id is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}

	ws := doc.Workspaces[workspaceID]
	ws.WebhookID = webhookID
	ws.WebhookSecret = webhookSecret
	if webhookURL != "" {
		ws.WebhookURL = webhookURL
	}
	doc.Workspaces[workspaceID] = ws

	doc.Webhooks[webhookID] = WebhookEntry{
		WorkspaceID: workspaceID,
		Secret:      webhookSecret,
	}

	return s.save(doc)
}

const issueAttempts = 8

// IssueIncomingSecret generates a fresh 32-byte hex automation secret for the
// workspace, stores it, and returns it. Uniqueness across workspaces is
// enforced at issuance so the incoming-secret lookup stays unambiguous.
func (s *Store) IssueIncomingSecret(workspaceID string) (string, error) {
	if workspaceID == "" {
		return "", fmt.Errorf("workspace_id is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return "", err
	}

	var secret string
	for attempt := 0; attempt < issueAttempts; attempt++ {
		candidate, err := randomHex(32)
		if err != nil {
			return "", fmt.Errorf("generate incoming secret: %w", err)
		}
		if incomingSecretInUse(doc, workspaceID, candidate) {
			continue
		}
		secret = candidate
		break
	}
	if secret == "" {
		return "", fmt.Errorf("could not generate a unique incoming secret after %d attempts", issueAttempts)
	}

	ws := doc.Workspaces[workspaceID]
	ws.IncomingSecret = secret
	doc.Workspaces[workspaceID] = ws

	if err := s.save(doc); err != nil {
		return "", err
	}
	return secret, nil
}

func incomingSecretInUse(doc *document, workspaceID, secret string) bool {
	for id, ws := range doc.Workspaces {
		if id == workspaceID {
			continue
		}
		if ws.IncomingSecret == secret {
			return true
		}
	}
	return false
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
