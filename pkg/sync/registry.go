package sync

import (
	"context"
	"sync"
	"time"

	"github.com/commercebridge/retail-middleware/pkg/catalog"
)

// RunState is the lifecycle state of a registered run
type RunState string

const (
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
	RunStateCancelled RunState = "cancelled"
)

// Progress is a point-in-time snapshot of a run, safe to hand to the
// admin surface. Reads never block the orchestrator's writes for long:
// updates swap the whole snapshot under a short lock.
type Progress struct {
	SyncID         string        `json:"sync_id"`
	Mode           string        `json:"mode"`
	State          RunState      `json:"state"`
	StartedAt      time.Time     `json:"started_at"`
	ProcessedCount int           `json:"processed_count"`
	TotalCount     int           `json:"total_count"`
	CurrentPage    int           `json:"current_page,omitempty"`
	TotalPages     int           `json:"total_pages,omitempty"`
	Stats          catalog.Stats `json:"stats"`
	LastError      string        `json:"last_error,omitempty"`
}

// Percent returns completion as a percentage
func (p Progress) Percent() float64 {
	if p.TotalCount == 0 {
		return 100
	}
	return float64(p.ProcessedCount) / float64(p.TotalCount) * 100
}

type runHandle struct {
	cancel context.CancelFunc

	mu       sync.Mutex
	progress Progress
}

func (h *runHandle) update(fn func(*Progress)) {
	h.mu.Lock()
	fn(&h.progress)
	h.mu.Unlock()
}

func (h *runHandle) snapshot() Progress {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.progress
}

// Registry tracks in-flight and recently finished sync runs. It is
// constructed once at startup and injected into the orchestrator and the
// admin surface; there is no package-level state.
type Registry struct {
	mu   sync.RWMutex
	runs map[string]*runHandle
}

// NewRegistry creates an empty run registry
func NewRegistry() *Registry {
	return &Registry{runs: make(map[string]*runHandle)}
}

const finishedRetention = 24 * time.Hour

func (r *Registry) register(syncID, mode string, total int, cancel context.CancelFunc) *runHandle {
	handle := &runHandle{
		cancel: cancel,
		progress: Progress{
			SyncID:     syncID,
			Mode:       mode,
			State:      RunStateRunning,
			StartedAt:  time.Now(),
			TotalCount: total,
		},
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Prune finished runs past retention so detector-triggered targeted
	// runs do not accumulate forever.
	cutoff := time.Now().Add(-finishedRetention)
	for id, h := range r.runs {
		p := h.snapshot()
		if p.State != RunStateRunning && p.StartedAt.Before(cutoff) {
			delete(r.runs, id)
		}
	}

	r.runs[syncID] = handle
	return handle
}

// Progress returns the snapshot of a known run
func (r *Registry) Progress(syncID string) (Progress, bool) {
	r.mu.RLock()
	handle, ok := r.runs[syncID]
	r.mu.RUnlock()
	if !ok {
		return Progress{}, false
	}
	return handle.snapshot(), true
}

// Cancel requests cancellation of a running sync. The orchestrator
// finishes its in-flight sub-batch, persists a checkpoint, and exits.
func (r *Registry) Cancel(syncID string) bool {
	r.mu.RLock()
	handle, ok := r.runs[syncID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if handle.snapshot().State != RunStateRunning {
		return false
	}
	handle.cancel()
	return true
}

// List returns snapshots of all known runs, running first
func (r *Registry) List() []Progress {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Progress, 0, len(r.runs))
	for _, h := range r.runs {
		out = append(out, h.snapshot())
	}
	return out
}

// ActiveCount returns the number of runs currently in flight
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, h := range r.runs {
		if h.snapshot().State == RunStateRunning {
			n++
		}
	}
	return n
}
