// Package events is the best-effort sink for verified webhook deliveries.
// It normalizes a payload into items, logs an extracted identifier per item,
// and records each item in a sqlite event log for the admin API. This is an
// observability surface, not a processing pipeline.
package events

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Record is one row of the event log.
type Record struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	EventType   string    `json:"event_type"`
	PageID      string    `json:"page_id,omitempty"`
	ItemKeys    string    `json:"item_keys,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
}

// Recorder logs and persists webhook deliveries.
type Recorder struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRecorder creates a recorder. db may be nil, in which case deliveries are
// logged but not persisted.
func NewRecorder(db *sql.DB, logger *slog.Logger) *Recorder {
	return &Recorder{db: db, logger: logger}
}

// HandleDelivery normalizes the payload into one or more items and records
// each. A payload with an `events` list is a batch; anything else is a single
// item. Persistence failures are returned so the caller can log them, but the
// webhook handler never surfaces them to the sender.
func (r *Recorder) HandleDelivery(ctx context.Context, workspaceID string, payload map[string]any) error {
	eventType := payloadEventType(payload)
	r.logger.Info("delivery received", "workspace_id", workspaceID, "event", eventType)

	items := normalizeItems(payload)

	var firstErr error
	for _, item := range items {
		pageID := itemPageID(item)
		keys := itemKeys(item)
		r.logger.Info("notion event",
			"workspace_id", workspaceID,
			"page_id", pageID,
			"item_keys", keys,
		)

		if r.db == nil {
			continue
		}
		if err := r.insert(ctx, workspaceID, eventType, pageID, keys); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Recorder) insert(ctx context.Context, workspaceID, eventType, pageID, keys string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := r.db.ExecContext(ctx, `
INSERT INTO event_log(id, workspace_id, event_type, page_id, item_keys, received_at)
VALUES(?, ?, ?, ?, ?, ?);
`, uuid.NewString(), workspaceID, eventType, pageID, keys, now)
	if err != nil {
		return fmt.Errorf("insert event record: %w", err)
	}
	return nil
}

// Recent returns the newest records first, up to limit.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]Record, error) {
	if r.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
SELECT id, workspace_id, event_type, page_id, item_keys, received_at
FROM event_log
ORDER BY received_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query event log: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var pageID, keys sql.NullString
		var receivedAt string
		if err := rows.Scan(&rec.ID, &rec.WorkspaceID, &rec.EventType, &pageID, &keys, &receivedAt); err != nil {
			return nil, fmt.Errorf("scan event record: %w", err)
		}
		rec.PageID = pageID.String
		rec.ItemKeys = keys.String
		if t, err := time.Parse(time.RFC3339Nano, receivedAt); err == nil {
			rec.ReceivedAt = t
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Count returns the total number of recorded events.
func (r *Recorder) Count(ctx context.Context) (int, error) {
	if r.db == nil {
		return 0, nil
	}
	var n int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM event_log;").Scan(&n); err != nil {
		return 0, fmt.Errorf("count event records: %w", err)
	}
	return n, nil
}

func payloadEventType(payload map[string]any) string {
	if t, _ := payload["type"].(string); t != "" {
		return t
	}
	if t, _ := payload["event"].(string); t != "" {
		return t
	}
	return "unknown"
}

// normalizeItems flattens a delivery into individual items: the list under
// `events` when present, otherwise the payload itself.
func normalizeItems(payload map[string]any) []map[string]any {
	if list, ok := payload["events"].([]any); ok {
		items := make([]map[string]any, 0, len(list))
		for _, entry := range list {
			if item, ok := entry.(map[string]any); ok {
				items = append(items, item)
			}
		}
		if len(items) > 0 {
			return items
		}
	}
	return []map[string]any{payload}
}

// itemPageID extracts a best-effort identifier: page_id, pageId, or data.id.
func itemPageID(item map[string]any) string {
	if id, _ := item["page_id"].(string); id != "" {
		return id
	}
	if id, _ := item["pageId"].(string); id != "" {
		return id
	}
	if data, ok := item["data"].(map[string]any); ok {
		if id, _ := data["id"].(string); id != "" {
			return id
		}
	}
	return ""
}

func itemKeys(item map[string]any) string {
	keys := make([]string, 0, len(item))
	for k := range item {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ",")
}
