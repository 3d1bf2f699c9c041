package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// FileStore is the durable checkpoint tier: one JSON file per run under a
// directory. Writes go through a temp file and an atomic rename so readers
// never observe a partially written checkpoint.
type FileStore struct {
	dir        string
	staleAfter time.Duration
	logger     *zap.Logger

	now func() time.Time
}

// NewFileStore creates a file-backed checkpoint store rooted at dir
func NewFileStore(dir string, staleAfter time.Duration, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FileStore{
		dir:        dir,
		staleAfter: staleAfter,
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (s *FileStore) path(syncID string) string {
	return filepath.Join(s.dir, syncID+".json")
}

// Save writes the checkpoint. A write failure here is fatal to the save:
// losing durable progress is a correctness risk for resumption.
func (s *FileStore) Save(_ context.Context, cp *Checkpoint) error {
	cp.UpdatedAt = s.now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = cp.UpdatedAt
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshal checkpoint %s: %w", cp.SyncID, err)
	}

	tmp := s.path(cp.SyncID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", cp.SyncID, err)
	}
	if err := os.Rename(tmp, s.path(cp.SyncID)); err != nil {
		return fmt.Errorf("commit checkpoint %s: %w", cp.SyncID, err)
	}
	return nil
}

// Load returns the stored checkpoint, or nil when none exists
func (s *FileStore) Load(_ context.Context, syncID string) (*Checkpoint, error) {
	data, err := os.ReadFile(s.path(syncID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", syncID, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		// A corrupt checkpoint is treated as absent: the run restarts
		// from scratch rather than failing forever.
		s.logger.Warn("Discarding corrupt checkpoint",
			zap.String("sync_id", syncID), zap.Error(err))
		return nil, nil
	}
	return &cp, nil
}

// Delete removes the checkpoint file
func (s *FileStore) Delete(_ context.Context, syncID string) error {
	err := os.Remove(s.path(syncID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete checkpoint %s: %w", syncID, err)
	}
	return nil
}

// ShouldResume reports whether a fresh, incomplete checkpoint exists
func (s *FileStore) ShouldResume(ctx context.Context, syncID string) bool {
	cp, err := s.Load(ctx, syncID)
	if err != nil {
		s.logger.Warn("Failed to load checkpoint for resume check",
			zap.String("sync_id", syncID), zap.Error(err))
		return false
	}
	return cp.resumable(s.now(), s.staleAfter)
}
