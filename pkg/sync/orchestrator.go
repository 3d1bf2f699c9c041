package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/commercebridge/retail-middleware/internal/metrics"
	"github.com/commercebridge/retail-middleware/pkg/catalog"
	"github.com/commercebridge/retail-middleware/pkg/checkpoint"
)

// Orchestrator drives synchronization runs. It streams pages from the
// source, resolves existing products once per page, applies sub-batches
// through the BatchProcessor, and persists checkpoints so an interrupted
// run resumes where it stopped instead of replaying completed work.
type Orchestrator struct {
	source      SourceRepository
	target      TargetClient
	checkpoints checkpoint.Store
	registry    *Registry
	logger      *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator wires the orchestrator with its collaborators
func NewOrchestrator(source SourceRepository, target TargetClient, checkpoints checkpoint.Store, registry *Registry, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		source:      source,
		target:      target,
		checkpoints: checkpoints,
		registry:    registry,
		logger:      logger,
		sleep:       sleepBetweenPages,
	}
}

func sleepBetweenPages(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run executes a paginated synchronization. The full dataset is never held
// in memory: each page is extracted, resolved against the storefront in one
// batched existence query, and applied in sub-batches.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Report, error) {
	return o.run(ctx, opts, "full")
}

// RunTargeted executes a small, bounded synchronization for an explicit
// record set, typically one product family surfaced by the change detector.
// It extracts the whole set up front and resumes via a flat offset.
func (o *Orchestrator) RunTargeted(ctx context.Context, opts Options) (*Report, error) {
	return o.run(ctx, opts, "targeted")
}

func (o *Orchestrator) run(ctx context.Context, opts Options, mode string) (*Report, error) {
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	startedAt := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, opts.RunTimeout)
	defer cancel()

	total, err := o.source.CountItems(runCtx, opts.Filters)
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues(mode, "failed").Inc()
		return nil, fmt.Errorf("count source records: %w", err)
	}

	log := o.logger.With(zap.String("sync_id", opts.SyncID), zap.String("mode", mode))

	if total == 0 {
		log.Info("No records match filters, nothing to sync")
		if err := o.checkpoints.Delete(runCtx, opts.SyncID); err != nil {
			log.Warn("Failed to delete checkpoint for empty run", zap.Error(err))
		}
		metrics.SyncRunsTotal.WithLabelValues(mode, "completed").Inc()
		return buildReport(opts.SyncID, mode, startedAt, 0, catalog.Stats{}, opts.ForceUpdate, nil), nil
	}

	cp, err := o.resumePoint(runCtx, opts, log)
	if err != nil {
		metrics.SyncRunsTotal.WithLabelValues(mode, "failed").Inc()
		return nil, err
	}

	handle := o.registry.register(opts.SyncID, mode, total, cancel)
	metrics.ActiveSyncs.Inc()
	defer metrics.ActiveSyncs.Dec()

	locationID, err := o.target.DefaultLocationID(runCtx)
	if err != nil {
		err = fmt.Errorf("resolve default location: %w", err)
		o.finish(handle, mode, startedAt, err)
		metrics.SyncRunsTotal.WithLabelValues(mode, "failed").Inc()
		return nil, err
	}
	processor := NewBatchProcessor(o.target, locationID, opts.Filters.IncludeZeroStock, o.logger)

	var stats catalog.Stats
	var runErr error
	if mode == "targeted" {
		stats, runErr = o.runFlat(runCtx, opts, total, cp, processor, handle, log)
	} else {
		stats, runErr = o.runPaged(runCtx, opts, total, cp, processor, handle, log)
	}

	o.finish(handle, mode, startedAt, runErr)
	metrics.SyncRunsTotal.WithLabelValues(mode, statusLabel(runErr)).Inc()
	metrics.SyncRunDuration.WithLabelValues(mode).Observe(time.Since(startedAt).Seconds())

	report := buildReport(opts.SyncID, mode, startedAt, total, stats, opts.ForceUpdate, runErr)
	log.Info("Sync run finished",
		zap.Bool("success", report.Success),
		zap.Float64("success_rate", report.SuccessRate),
		zap.Int("processed", stats.TotalProcessed),
		zap.Duration("duration", report.Duration))
	return report, runErr
}

// resumePoint decides whether the run resumes an earlier checkpoint or
// starts fresh. Fresh runs discard any prior checkpoint.
func (o *Orchestrator) resumePoint(ctx context.Context, opts Options, log *zap.Logger) (*checkpoint.Checkpoint, error) {
	if opts.Fresh {
		if err := o.checkpoints.Delete(ctx, opts.SyncID); err != nil {
			return nil, fmt.Errorf("discard checkpoint for fresh run: %w", err)
		}
		return nil, nil
	}
	if !o.checkpoints.ShouldResume(ctx, opts.SyncID) {
		return nil, nil
	}
	cp, err := o.checkpoints.Load(ctx, opts.SyncID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if cp != nil {
		log.Info("Resuming from checkpoint",
			zap.Int("processed_count", cp.ProcessedCount),
			zap.Int("batch_number", cp.BatchNumber),
			zap.String("last_processed_key", cp.LastProcessedKey))
	}
	return cp, nil
}

func (o *Orchestrator) runPaged(ctx context.Context, opts Options, total int, cp *checkpoint.Checkpoint, processor *BatchProcessor, handle *runHandle, log *zap.Logger) (catalog.Stats, error) {
	var stats catalog.Stats
	processed := 0
	batchNumber := 0
	startPage := 1
	offsetWithinPage := 0

	if cp != nil {
		stats = cp.Stats
		processed = cp.ProcessedCount
		batchNumber = cp.BatchNumber
		startPage = processed/opts.PageSize + 1
		offsetWithinPage = processed % opts.PageSize
	}

	totalPages := (total + opts.PageSize - 1) / opts.PageSize
	handle.update(func(p *Progress) {
		p.ProcessedCount = processed
		p.TotalPages = totalPages
		p.Stats = stats
	})

	for page := startPage; page <= totalPages; page++ {
		offset := (page - 1) * opts.PageSize
		items, err := o.source.ExtractPage(ctx, offset, opts.PageSize, opts.Filters)
		if err != nil {
			return stats, fmt.Errorf("extract page %d: %w", page, err)
		}
		if len(items) == 0 {
			// The source shrank since the run was counted. Not an error,
			// move on to the next page.
			log.Warn("Source returned empty page before expected end",
				zap.Int("page", page), zap.Int("total_pages", totalPages))
			continue
		}
		if remaining := total - offset; len(items) > remaining {
			// The source grew since the run was counted. Rows past the
			// original total belong to the next run, and processing them
			// would push processed_count past total_count in checkpoints.
			log.Warn("Source returned more rows than counted, clamping page",
				zap.Int("page", page), zap.Int("extra", len(items)-remaining))
			items = items[:remaining]
		}

		// On the resumed page, skip records the previous attempt already
		// processed.
		if page == startPage && offsetWithinPage > 0 && offsetWithinPage < len(items) {
			items = items[offsetWithinPage:]
		} else if page == startPage && offsetWithinPage >= len(items) {
			continue
		}

		existing, err := o.target.ExistsBatch(ctx, skusOf(items))
		if err != nil {
			return stats, fmt.Errorf("resolve existing products for page %d: %w", page, err)
		}

		handle.update(func(p *Progress) { p.CurrentPage = page })

		for start := 0; start < len(items); start += opts.BatchSize {
			end := min(start+opts.BatchSize, len(items))
			batch := items[start:end]
			batchNumber++

			batchStats := processor.ProcessBatch(ctx, batch, existing, opts.ForceUpdate)
			stats.Add(batchStats)
			processed += len(batch)

			handle.update(func(p *Progress) {
				p.ProcessedCount = processed
				p.Stats = stats
			})

			lastKey := batch[len(batch)-1].SKU
			lastOfPage := end == len(items)
			if processed%opts.CheckpointEvery == 0 || lastOfPage {
				if err := o.save(ctx, opts.SyncID, total, processed, batchNumber, lastKey, stats, &checkpoint.PageState{CurrentPage: page, TotalPages: totalPages}); err != nil {
					return stats, err
				}
			}

			if ctx.Err() != nil {
				// Persist before surfacing so the next attempt picks up
				// exactly here.
				if err := o.save(ctx, opts.SyncID, total, processed, batchNumber, lastKey, stats, &checkpoint.PageState{CurrentPage: page, TotalPages: totalPages}); err != nil {
					log.Error("Failed to checkpoint interrupted run", zap.Error(err))
				}
				return stats, interruptionError(ctx)
			}
		}

		if page < totalPages {
			if err := o.sleep(ctx, opts.PageDelay); err != nil {
				return stats, interruptionError(ctx)
			}
		}
	}

	// Only a fully completed run clears its checkpoint.
	if processed >= total {
		if err := o.checkpoints.Delete(ctx, opts.SyncID); err != nil {
			log.Warn("Failed to delete checkpoint after completion", zap.Error(err))
		}
	}
	return stats, nil
}

func (o *Orchestrator) runFlat(ctx context.Context, opts Options, total int, cp *checkpoint.Checkpoint, processor *BatchProcessor, handle *runHandle, log *zap.Logger) (catalog.Stats, error) {
	items, err := o.source.ExtractAll(ctx, opts.Filters)
	if err != nil {
		return catalog.Stats{}, fmt.Errorf("extract records: %w", err)
	}

	var stats catalog.Stats
	processed := 0
	batchNumber := 0
	if cp != nil {
		stats = cp.Stats
		processed = cp.ProcessedCount
		batchNumber = cp.BatchNumber
	}
	if processed > len(items) {
		processed = len(items)
	}
	remaining := items[processed:]

	handle.update(func(p *Progress) {
		p.ProcessedCount = processed
		p.Stats = stats
	})

	existing, err := o.target.ExistsBatch(ctx, skusOf(remaining))
	if err != nil {
		return stats, fmt.Errorf("resolve existing products: %w", err)
	}

	for start := 0; start < len(remaining); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(remaining))
		batch := remaining[start:end]
		batchNumber++

		batchStats := processor.ProcessBatch(ctx, batch, existing, opts.ForceUpdate)
		stats.Add(batchStats)
		processed += len(batch)

		handle.update(func(p *Progress) {
			p.ProcessedCount = processed
			p.Stats = stats
		})

		lastKey := batch[len(batch)-1].SKU
		if processed%opts.CheckpointEvery == 0 || end == len(remaining) {
			if err := o.save(ctx, opts.SyncID, total, processed, batchNumber, lastKey, stats, nil); err != nil {
				return stats, err
			}
		}
		if ctx.Err() != nil {
			if err := o.save(ctx, opts.SyncID, total, processed, batchNumber, lastKey, stats, nil); err != nil {
				log.Error("Failed to checkpoint interrupted run", zap.Error(err))
			}
			return stats, interruptionError(ctx)
		}
	}

	if err := o.checkpoints.Delete(ctx, opts.SyncID); err != nil {
		log.Warn("Failed to delete checkpoint after completion", zap.Error(err))
	}
	return stats, nil
}

// save persists a checkpoint even when the run context is already
// cancelled: the write must outlive the interruption it records.
func (o *Orchestrator) save(ctx context.Context, syncID string, total, processed, batchNumber int, lastKey string, stats catalog.Stats, pageState *checkpoint.PageState) error {
	cp := &checkpoint.Checkpoint{
		SyncID:           syncID,
		LastProcessedKey: lastKey,
		ProcessedCount:   processed,
		TotalCount:       total,
		Stats:            stats,
		BatchNumber:      batchNumber,
		PageState:        pageState,
	}
	if err := o.checkpoints.Save(context.WithoutCancel(ctx), cp); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (o *Orchestrator) finish(handle *runHandle, mode string, startedAt time.Time, runErr error) {
	state := RunStateCompleted
	switch {
	case errors.Is(runErr, context.Canceled):
		state = RunStateCancelled
	case runErr != nil:
		state = RunStateFailed
	}
	handle.update(func(p *Progress) {
		p.State = state
		if runErr != nil {
			p.LastError = runErr.Error()
		}
	})
}

func statusLabel(runErr error) string {
	switch {
	case runErr == nil:
		return "completed"
	case errors.Is(runErr, context.Canceled):
		return "cancelled"
	default:
		return "failed"
	}
}

// interruptionError maps a dead context to the error the caller reports:
// an operator cancel stays context.Canceled, a run timeout becomes a
// descriptive failure.
func interruptionError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("run timeout exceeded: %w", ctx.Err())
	}
	return ctx.Err()
}

func skusOf(items []catalog.Item) []string {
	skus := make([]string, 0, len(items))
	for _, item := range items {
		if item.SKU != "" {
			skus = append(skus, item.SKU)
		}
	}
	return skus
}
