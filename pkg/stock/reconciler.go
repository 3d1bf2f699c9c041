// Package stock implements the reverse reconciliation: storefront inventory
// quantities flow back into the retail database. It runs only when the
// cross-direction coordinator grants a slot.
package stock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/commercebridge/retail-middleware/internal/metrics"
	"github.com/commercebridge/retail-middleware/pkg/retail"
)

// StockRepository is the retail-side collaborator stock levels are read
// from and written back through.
type StockRepository interface {
	ListStock(ctx context.Context, offset, limit int) ([]retail.StockLevel, error)
	UpdateStock(ctx context.Context, sku string, qty int) error
}

// InventoryReader reads current storefront inventory levels
type InventoryReader interface {
	InventoryBySKUs(ctx context.Context, skus []string) (map[string]int, error)
}

// Gate grants and releases the single reverse-sync slot
type Gate interface {
	TryAcquire() bool
	Release(success bool)
}

// Summary is the outcome of one reverse reconciliation run
type Summary struct {
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Checked    int           `json:"checked"`
	Updated    int           `json:"updated"`
	Unchanged  int           `json:"unchanged"`
	Failed     int           `json:"failed"`
	NotPresent int           `json:"not_present"`
}

// Reconciler pulls storefront inventory and applies differing quantities to
// the retail database, page by page.
type Reconciler struct {
	repo      StockRepository
	inventory InventoryReader
	gate      Gate
	pageSize  int
	logger    *zap.Logger

	mu      sync.Mutex
	lastRun *Summary
}

// NewReconciler wires the reverse stock reconciler
func NewReconciler(repo StockRepository, inventory InventoryReader, gate Gate, pageSize int, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		repo:      repo,
		inventory: inventory,
		gate:      gate,
		pageSize:  pageSize,
		logger:    logger,
	}
}

// RunIfEligible runs a reconciliation when the coordinator grants the slot.
// It returns (nil, nil) when the slot is not available.
func (r *Reconciler) RunIfEligible(ctx context.Context) (*Summary, error) {
	if !r.gate.TryAcquire() {
		return nil, nil
	}

	summary, err := r.run(ctx)
	r.gate.Release(err == nil)
	if err != nil {
		metrics.StockSyncRuns.WithLabelValues("failed").Inc()
		return summary, err
	}
	metrics.StockSyncRuns.WithLabelValues("completed").Inc()
	r.mu.Lock()
	r.lastRun = summary
	r.mu.Unlock()
	return summary, nil
}

// LastRun returns the summary of the most recent successful run, or nil.
// Safe to call from the HTTP handlers while a scheduled run is in flight.
func (r *Reconciler) LastRun() *Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastRun
}

func (r *Reconciler) run(ctx context.Context) (*Summary, error) {
	summary := &Summary{StartedAt: time.Now()}
	r.logger.Info("Starting reverse stock reconciliation")

	for offset := 0; ; offset += r.pageSize {
		levels, err := r.repo.ListStock(ctx, offset, r.pageSize)
		if err != nil {
			return summary, fmt.Errorf("list retail stock at offset %d: %w", offset, err)
		}
		if len(levels) == 0 {
			break
		}

		skus := make([]string, 0, len(levels))
		for _, lvl := range levels {
			skus = append(skus, lvl.SKU)
		}
		remote, err := r.inventory.InventoryBySKUs(ctx, skus)
		if err != nil {
			return summary, fmt.Errorf("read storefront inventory: %w", err)
		}

		for _, lvl := range levels {
			summary.Checked++
			qty, ok := remote[lvl.SKU]
			if !ok {
				summary.NotPresent++
				continue
			}
			if qty == lvl.Stock {
				summary.Unchanged++
				continue
			}
			if err := r.repo.UpdateStock(ctx, lvl.SKU, qty); err != nil {
				summary.Failed++
				r.logger.Warn("Failed to write stock back to retail",
					zap.String("sku", lvl.SKU), zap.Int("qty", qty), zap.Error(err))
				continue
			}
			summary.Updated++
		}

		if err := ctx.Err(); err != nil {
			return summary, err
		}
	}

	summary.Duration = time.Since(summary.StartedAt)
	r.logger.Info("Reverse stock reconciliation finished",
		zap.Int("checked", summary.Checked),
		zap.Int("updated", summary.Updated),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}
