package events

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "events.db")
	db, err := OpenSQLite(context.Background(), dbPath)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewRecorder(db, testLogger())
}

func TestHandleDeliverySingleItem(t *testing.T) {
	t.Parallel()
	r := newTestRecorder(t)

	payload := map[string]any{
		"type":    "page.updated",
		"page_id": "p-1",
	}
	if err := r.HandleDelivery(context.Background(), "ws-1", payload); err != nil {
		t.Fatalf("HandleDelivery: %v", err)
	}

	records, err := r.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.WorkspaceID != "ws-1" || rec.EventType != "page.updated" || rec.PageID != "p-1" {
		t.Fatalf("record = %+v", rec)
	}
	if rec.ItemKeys != "page_id,type" {
		t.Errorf("ItemKeys = %q, want page_id,type", rec.ItemKeys)
	}
}

func TestHandleDeliveryBatch(t *testing.T) {
	t.Parallel()
	r := newTestRecorder(t)

	payload := map[string]any{
		"event": "batch",
		"events": []any{
			map[string]any{"pageId": "p-1"},
			map[string]any{"data": map[string]any{"id": "p-2"}},
			map[string]any{"unrelated": true},
		},
	}
	if err := r.HandleDelivery(context.Background(), "ws-1", payload); err != nil {
		t.Fatalf("HandleDelivery: %v", err)
	}

	count, err := r.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}

	records, err := r.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	pageIDs := map[string]bool{}
	for _, rec := range records {
		pageIDs[rec.PageID] = true
		if rec.EventType != "batch" {
			t.Errorf("EventType = %q, want batch", rec.EventType)
		}
	}
	if !pageIDs["p-1"] || !pageIDs["p-2"] || !pageIDs[""] {
		t.Fatalf("page ids = %v, want p-1, p-2 and empty", pageIDs)
	}
}

func TestHandleDeliveryWithoutDatabase(t *testing.T) {
	t.Parallel()
	r := NewRecorder(nil, testLogger())

	if err := r.HandleDelivery(context.Background(), "ws-1", map[string]any{"type": "x"}); err != nil {
		t.Fatalf("HandleDelivery without db: %v", err)
	}
	records, err := r.Recent(context.Background(), 10)
	if err != nil || records != nil {
		t.Fatalf("Recent without db: records=%v err=%v", records, err)
	}
}

func TestNormalizeItemsEmptyEventsListFallsBack(t *testing.T) {
	t.Parallel()
	payload := map[string]any{"events": []any{}, "type": "x"}
	items := normalizeItems(payload)
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1 (payload itself)", len(items))
	}
}
