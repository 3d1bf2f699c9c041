// Package checkpoint persists the durable progress of synchronization
// runs. A run's checkpoint is a single JSON blob keyed by sync_id; its
// absence is the terminal state of a completed run.
//
// Two implementations exist: FileStore (durable tier only) and TieredStore
// (redis fast tier in front of the file tier). The choice is made once at
// startup from configuration.
package checkpoint

import (
	"context"
	"time"

	"github.com/commercebridge/retail-middleware/pkg/catalog"
)

// PageState records where a paginated run stands
type PageState struct {
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
}

// Checkpoint is the durable progress snapshot of one synchronization run
type Checkpoint struct {
	SyncID           string        `json:"sync_id"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
	LastProcessedKey string        `json:"last_processed_key"`
	ProcessedCount   int           `json:"processed_count"`
	TotalCount       int           `json:"total_count"`
	Stats            catalog.Stats `json:"stats"`
	BatchNumber      int           `json:"batch_number"`
	PageState        *PageState    `json:"page_state,omitempty"`
}

// Complete reports whether the run this checkpoint tracks has finished
func (c *Checkpoint) Complete() bool {
	return c.ProcessedCount >= c.TotalCount
}

// resumable reports whether the checkpoint is worth resuming from: it must
// be incomplete and younger than the staleness threshold.
func (c *Checkpoint) resumable(now time.Time, staleAfter time.Duration) bool {
	if c == nil || c.Complete() {
		return false
	}
	return now.Sub(c.UpdatedAt) < staleAfter
}

// Store persists sync run checkpoints
type Store interface {
	// Save durably writes the checkpoint. A fast-tier failure degrades
	// to durable-only and is not an error; a durable-tier failure is.
	Save(ctx context.Context, cp *Checkpoint) error

	// Load returns the checkpoint for syncID, or nil if none exists.
	Load(ctx context.Context, syncID string) (*Checkpoint, error)

	// Delete removes the checkpoint from every tier. It is not an error
	// if the checkpoint does not exist.
	Delete(ctx context.Context, syncID string) error

	// ShouldResume reports whether a fresh, incomplete checkpoint exists
	// for syncID.
	ShouldResume(ctx context.Context, syncID string) bool
}
