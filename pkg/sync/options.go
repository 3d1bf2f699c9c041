// Package sync implements the synchronization core: the streaming
// orchestrator that drives resumable, checkpointed runs from the retail
// source to the storefront, the batch processor that applies per-record
// decisions, the run registry, and the final report.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/creasty/defaults"
	"github.com/google/uuid"

	"github.com/commercebridge/retail-middleware/pkg/catalog"
	"github.com/commercebridge/retail-middleware/pkg/retail"
	"github.com/commercebridge/retail-middleware/pkg/storefront"
)

// SourceRepository is the retail-side collaborator the orchestrator
// extracts records from.
type SourceRepository interface {
	CountItems(ctx context.Context, f retail.Filters) (int, error)
	ExtractPage(ctx context.Context, offset, limit int, f retail.Filters) ([]catalog.Item, error)
	ExtractAll(ctx context.Context, f retail.Filters) ([]catalog.Item, error)
}

// TargetClient is the storefront-side collaborator changes are applied
// through. Implementations own rate limiting and retries.
type TargetClient interface {
	DefaultLocationID(ctx context.Context) (string, error)
	ExistsBatch(ctx context.Context, skus []string) (map[string]*storefront.Product, error)
	CreateProduct(ctx context.Context, input storefront.ProductInput) (*storefront.Product, error)
	UpdateProduct(ctx context.Context, id string, input storefront.ProductInput) (*storefront.Product, error)
	SetInventory(ctx context.Context, inventoryItemID, locationID string, qty int) error
}

// Options configures one synchronization run
type Options struct {
	// SyncID identifies the run for checkpointing and resume. Generated
	// when empty. Scheduled full syncs pass a well-known ID so restarts
	// resume the same run.
	SyncID string `json:"sync_id,omitempty"`

	Filters     retail.Filters `json:"filters,omitempty"`
	ForceUpdate bool           `json:"force_update,omitempty"`

	// Fresh discards any existing checkpoint and starts from the top.
	Fresh bool `json:"fresh,omitempty"`

	PageSize        int           `json:"page_size,omitempty" default:"100"`
	BatchSize       int           `json:"batch_size,omitempty" default:"25"`
	CheckpointEvery int           `json:"checkpoint_every,omitempty" default:"50"`
	PageDelay       time.Duration `json:"page_delay,omitempty" default:"2s"`
	RunTimeout      time.Duration `json:"run_timeout,omitempty" default:"30m"`
}

func (o *Options) normalize() error {
	if err := defaults.Set(o); err != nil {
		return fmt.Errorf("apply option defaults: %w", err)
	}
	if o.SyncID == "" {
		o.SyncID = uuid.NewString()
	}
	return nil
}
