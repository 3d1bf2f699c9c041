// Package detector polls the retail database for recently changed records
// and pushes them to the storefront through targeted sync runs, grouped by
// product family.
package detector

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/commercebridge/retail-middleware/internal/metrics"
	"github.com/commercebridge/retail-middleware/pkg/catalog"
	"github.com/commercebridge/retail-middleware/pkg/config"
	"github.com/commercebridge/retail-middleware/pkg/retail"
	syncrun "github.com/commercebridge/retail-middleware/pkg/sync"
)

// ChangeSource queries the retail database for changed records
type ChangeSource interface {
	QueryChangedSince(ctx context.Context, since time.Time, limit int) ([]retail.ChangedRow, error)
	ResolveFullRecords(ctx context.Context, skus []string) ([]catalog.Item, error)
}

// SyncRunner executes targeted sync runs for the detector's record groups
type SyncRunner interface {
	RunTargeted(ctx context.Context, opts syncrun.Options) (*syncrun.Report, error)
}

// maxDrainRounds bounds the within-cycle drain loop so a table under
// constant churn cannot pin the detector in a single cycle forever.
const maxDrainRounds = 10

// Status is a point-in-time view of the detector for the admin surface
type Status struct {
	Enabled          bool      `json:"enabled"`
	CycleRunning     bool      `json:"cycle_running"`
	Watermark        time.Time `json:"watermark"`
	LastCycleAt      time.Time `json:"last_cycle_at,omitempty"`
	LastCycleChanges int       `json:"last_cycle_changes"`
	LastError        string    `json:"last_error,omitempty"`
	CyclesCompleted  int       `json:"cycles_completed"`
	ItemsSynced      int       `json:"items_synced"`
	Errors           int       `json:"errors"`
}

// Detector runs the change-detection loop
type Detector struct {
	source ChangeSource
	runner SyncRunner
	cfg    config.DetectorConfig
	logger *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu        sync.Mutex
	watermark time.Time
	status    Status

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a detector. It does not start polling until Start is called.
func New(source ChangeSource, runner SyncRunner, cfg config.DetectorConfig, logger *zap.Logger) *Detector {
	return &Detector{
		source: source,
		runner: runner,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		sleep:  sleepCtx,
		stopCh: make(chan struct{}),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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

// Start begins the polling loop. The watermark is rewound by the safety
// window so changes made while the process was down are re-examined; the
// forward path is idempotent, so the overlap only costs extra queries.
func (d *Detector) Start(ctx context.Context) error {
	if !d.cfg.Enabled {
		d.logger.Info("Change detector disabled")
		return nil
	}

	start := d.now().Add(-d.cfg.SafetyWindow)
	d.mu.Lock()
	d.watermark = start
	d.status = Status{Enabled: true, Watermark: start}
	d.mu.Unlock()

	d.logger.Info("Starting change detector",
		zap.Duration("interval", d.cfg.Interval),
		zap.Time("watermark", start))

	d.wg.Add(1)
	go d.loop(ctx)
	return nil
}

// Stop stops the polling loop and waits for an in-flight cycle to finish
func (d *Detector) Stop() {
	close(d.stopCh)
	d.wg.Wait()
	d.logger.Info("Change detector stopped")
}

// Snapshot returns the current detector status
func (d *Detector) Snapshot() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.status
	s.Watermark = d.watermark
	return s
}

// loop runs cycles on the configured interval. A failed cycle shortens the
// wait to the error backoff so transient database issues recover quickly.
func (d *Detector) loop(ctx context.Context) {
	defer d.wg.Done()

	wait := d.cfg.Interval
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stopCh:
			return
		case <-timer.C:
			if err := d.runCycle(ctx); err != nil {
				d.logger.Error("Detector cycle failed", zap.Error(err))
				wait = d.cfg.ErrorBackoff
			} else {
				wait = d.cfg.Interval
			}
			timer.Reset(wait)
		}
	}
}

// runCycle drains changed records since the watermark and syncs them in
// family groups. The watermark advances to the cycle start only after the
// changed-record queries all succeeded; per-group sync failures do not hold
// it back because failed groups surface again on their next change.
func (d *Detector) runCycle(ctx context.Context) error {
	cycleStart := d.now()
	d.setCycleRunning(true)
	defer d.setCycleRunning(false)

	d.mu.Lock()
	since := d.watermark
	d.mu.Unlock()

	changed := make(map[string]time.Time)
	for round := 0; round < maxDrainRounds; round++ {
		rows, err := d.source.QueryChangedSince(ctx, since, d.cfg.MaxChanges)
		if err != nil {
			d.recordCycle(cycleStart, 0, 0, err)
			metrics.DetectorCycles.WithLabelValues("error").Inc()
			return fmt.Errorf("query changed records: %w", err)
		}
		newSeen := 0
		for _, row := range rows {
			if _, ok := changed[row.SKU]; !ok {
				newSeen++
			}
			changed[row.SKU] = row.ChangedAt
		}
		// A short batch means the window is drained. A full batch that
		// yields nothing new means the remaining rows were all seen in a
		// prior round, which also means drained.
		if len(rows) < d.cfg.MaxChanges || newSeen == 0 {
			break
		}
	}

	if len(changed) == 0 {
		d.advanceWatermark(cycleStart)
		d.recordCycle(cycleStart, 0, 0, nil)
		metrics.DetectorCycles.WithLabelValues("idle").Inc()
		return nil
	}

	skus := make([]string, 0, len(changed))
	for sku := range changed {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	items, err := d.source.ResolveFullRecords(ctx, skus)
	if err != nil {
		d.recordCycle(cycleStart, 0, 0, err)
		metrics.DetectorCycles.WithLabelValues("error").Inc()
		return fmt.Errorf("resolve changed records: %w", err)
	}

	groups := groupByFamily(items)
	d.logger.Info("Detected changed records",
		zap.Int("changed", len(changed)),
		zap.Int("syncable", len(items)),
		zap.Int("groups", len(groups)))
	metrics.DetectorChanges.Add(float64(len(items)))

	// Queries succeeded, so everything before cycleStart has been seen.
	// Advance now: a group failure below must not replay the whole window.
	d.advanceWatermark(cycleStart)

	synced := 0
	for i, group := range groups {
		opts := syncrun.Options{
			Filters:     retail.Filters{SKUs: group, IncludeZeroStock: true},
			ForceUpdate: true,
			Fresh:       true,
		}
		if _, err := d.runner.RunTargeted(ctx, opts); err != nil {
			d.logger.Error("Targeted sync failed for group",
				zap.Strings("skus", group), zap.Error(err))
		} else {
			synced += len(group)
		}
		if i < len(groups)-1 {
			if err := d.sleep(ctx, d.cfg.GroupPause); err != nil {
				d.recordCycle(cycleStart, len(items), synced, err)
				return err
			}
		}
	}

	d.recordCycle(cycleStart, len(items), synced, nil)
	metrics.DetectorCycles.WithLabelValues("ok").Inc()
	return nil
}

// advanceWatermark moves the watermark forward, never backward
func (d *Detector) advanceWatermark(to time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if to.After(d.watermark) {
		d.watermark = to
	}
}

func (d *Detector) setCycleRunning(running bool) {
	d.mu.Lock()
	d.status.CycleRunning = running
	d.mu.Unlock()
}

func (d *Detector) recordCycle(at time.Time, changes, synced int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status.LastCycleAt = at
	d.status.LastCycleChanges = changes
	d.status.CyclesCompleted++
	d.status.ItemsSynced += synced
	if err != nil {
		d.status.Errors++
		d.status.LastError = err.Error()
	} else {
		d.status.LastError = ""
	}
}

// groupByFamily buckets items by their family code so related variants sync
// together. Groups come out in deterministic order.
func groupByFamily(items []catalog.Item) [][]string {
	byKey := make(map[string][]string)
	for _, item := range items {
		if !item.Complete() {
			continue
		}
		key := item.GroupKey()
		byKey[key] = append(byKey[key], item.SKU)
	}

	keys := make([]string, 0, len(byKey))
	for key := range byKey {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	groups := make([][]string, 0, len(keys))
	for _, key := range keys {
		skus := byKey[key]
		sort.Strings(skus)
		groups = append(groups, skus)
	}
	return groups
}
