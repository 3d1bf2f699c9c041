package checkpoint

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/commercebridge/retail-middleware/pkg/catalog"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	store, err := NewFileStore(t.TempDir(), 24*time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	return store
}

func TestFileStore_SaveLoadDelete(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	cp := &Checkpoint{
		SyncID:           "run-1",
		LastProcessedKey: "SKU-0237",
		ProcessedCount:   200,
		TotalCount:       237,
		BatchNumber:      8,
		Stats:            catalog.Stats{TotalProcessed: 200, Created: 150, Updated: 40, Skipped: 10},
		PageState:        &PageState{CurrentPage: 2, TotalPages: 3},
	}
	if err := store.Save(ctx, cp); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(ctx, "run-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected checkpoint, got nil")
	}
	if loaded.ProcessedCount != 200 {
		t.Errorf("expected processed_count 200, got %d", loaded.ProcessedCount)
	}
	if loaded.LastProcessedKey != "SKU-0237" {
		t.Errorf("expected last_processed_key SKU-0237, got %s", loaded.LastProcessedKey)
	}
	if loaded.PageState == nil || loaded.PageState.CurrentPage != 2 {
		t.Errorf("expected page_state current_page 2, got %+v", loaded.PageState)
	}
	if loaded.CreatedAt.IsZero() || loaded.UpdatedAt.IsZero() {
		t.Error("expected created_at and updated_at to be set")
	}

	if err := store.Delete(ctx, "run-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	loaded, err = store.Load(ctx, "run-1")
	if err != nil {
		t.Fatalf("Load after delete failed: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected nil after delete, got %+v", loaded)
	}
}

func TestFileStore_LoadMissingReturnsNil(t *testing.T) {
	store := newTestFileStore(t)

	cp, err := store.Load(context.Background(), "never-saved")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cp != nil {
		t.Errorf("expected nil for missing checkpoint, got %+v", cp)
	}
}

func TestFileStore_CorruptCheckpointTreatedAsAbsent(t *testing.T) {
	store := newTestFileStore(t)

	if err := os.WriteFile(filepath.Join(store.dir, "run-x.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	cp, err := store.Load(context.Background(), "run-x")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cp != nil {
		t.Errorf("expected corrupt checkpoint to read as nil, got %+v", cp)
	}
}

func TestFileStore_UpdatedAtMonotonic(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	cp := &Checkpoint{SyncID: "run-2", ProcessedCount: 50, TotalCount: 237}
	if err := store.Save(ctx, cp); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	first := cp.UpdatedAt

	clock = clock.Add(5 * time.Minute)
	cp.ProcessedCount = 100
	if err := store.Save(ctx, cp); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	if !cp.UpdatedAt.After(first) {
		t.Errorf("expected updated_at to advance, got %s then %s", first, cp.UpdatedAt)
	}
	if !cp.CreatedAt.Equal(first) {
		t.Errorf("expected created_at to stay %s, got %s", first, cp.CreatedAt)
	}
}

func TestFileStore_ShouldResume(t *testing.T) {
	store := newTestFileStore(t)
	ctx := context.Background()

	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return clock }

	// No checkpoint at all.
	if store.ShouldResume(ctx, "run-3") {
		t.Error("expected no resume without a checkpoint")
	}

	cp := &Checkpoint{SyncID: "run-3", ProcessedCount: 100, TotalCount: 237}
	if err := store.Save(ctx, cp); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !store.ShouldResume(ctx, "run-3") {
		t.Error("expected resume for a fresh incomplete checkpoint")
	}

	// Staleness threshold passed.
	clock = clock.Add(25 * time.Hour)
	if store.ShouldResume(ctx, "run-3") {
		t.Error("expected no resume for a stale checkpoint")
	}

	// Completed run.
	clock = clock.Add(-25 * time.Hour)
	cp.ProcessedCount = cp.TotalCount
	if err := store.Save(ctx, cp); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if store.ShouldResume(ctx, "run-3") {
		t.Error("expected no resume for a completed checkpoint")
	}
}
