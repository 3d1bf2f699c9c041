package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

// fakeFastStore is an in-memory FastStore with switchable failures
type fakeFastStore struct {
	data    map[string][]byte
	failSet bool
	failGet bool
}

func newFakeFastStore() *fakeFastStore {
	return &fakeFastStore{data: make(map[string][]byte)}
}

func (f *fakeFastStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if f.failSet {
		return errors.New("fast tier down")
	}
	f.data[key] = value
	return nil
}

func (f *fakeFastStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if f.failGet {
		return nil, false, errors.New("fast tier down")
	}
	b, ok := f.data[key]
	return b, ok, nil
}

func (f *fakeFastStore) Del(_ context.Context, key string) error {
	delete(f.data, key)
	return nil
}

func newTestTieredStore(t *testing.T) (*TieredStore, *fakeFastStore) {
	t.Helper()
	fast := newFakeFastStore()
	file, err := NewFileStore(t.TempDir(), 24*time.Hour, zap.NewNop())
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	return NewTieredStore(fast, file, time.Hour, zap.NewNop()), fast
}

func TestTieredStore_SaveWritesBothTiers(t *testing.T) {
	store, fast := newTestTieredStore(t)
	ctx := context.Background()

	cp := &Checkpoint{SyncID: "run-1", ProcessedCount: 50, TotalCount: 100}
	if err := store.Save(ctx, cp); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, ok := fast.data[keyPrefix+"run-1"]; !ok {
		t.Error("expected fast tier to hold the checkpoint")
	}
	loaded, err := store.file.Load(ctx, "run-1")
	if err != nil || loaded == nil {
		t.Fatalf("expected file tier to hold the checkpoint, got %v, %v", loaded, err)
	}
}

func TestTieredStore_FastTierFailureDegradesToFileOnly(t *testing.T) {
	store, fast := newTestTieredStore(t)
	ctx := context.Background()
	fast.failSet = true
	fast.failGet = true

	cp := &Checkpoint{SyncID: "run-2", ProcessedCount: 75, TotalCount: 100}
	if err := store.Save(ctx, cp); err != nil {
		t.Fatalf("expected Save to tolerate fast tier outage, got %v", err)
	}

	loaded, err := store.Load(ctx, "run-2")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded == nil || loaded.ProcessedCount != 75 {
		t.Errorf("expected file fallback to return the checkpoint, got %+v", loaded)
	}
}

func TestTieredStore_LoadPrefersFastTier(t *testing.T) {
	store, _ := newTestTieredStore(t)
	ctx := context.Background()

	cp := &Checkpoint{SyncID: "run-3", ProcessedCount: 25, TotalCount: 100}
	if err := store.Save(ctx, cp); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Remove the file copy; a fast-tier hit must still serve the load.
	if err := store.file.Delete(ctx, "run-3"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	loaded, err := store.Load(ctx, "run-3")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded == nil || loaded.ProcessedCount != 25 {
		t.Errorf("expected fast tier hit, got %+v", loaded)
	}
}

func TestTieredStore_DeleteRemovesBothTiers(t *testing.T) {
	store, fast := newTestTieredStore(t)
	ctx := context.Background()

	cp := &Checkpoint{SyncID: "run-4", ProcessedCount: 10, TotalCount: 100}
	if err := store.Save(ctx, cp); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Delete(ctx, "run-4"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if _, ok := fast.data[keyPrefix+"run-4"]; ok {
		t.Error("expected fast tier entry to be removed")
	}
	loaded, err := store.Load(ctx, "run-4")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != nil {
		t.Errorf("expected nil after delete, got %+v", loaded)
	}
}
