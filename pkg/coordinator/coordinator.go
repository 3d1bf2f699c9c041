// Package coordinator gates the reverse stock sync on the outcome of the
// forward sync. The reverse direction must never read a dataset the forward
// sync just modified mid-flight, so eligibility opens only a fixed delay
// after a successful forward run.
package coordinator

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the coordinator's eligibility state
type State string

const (
	StateNeverRun       State = "never_run"
	StateBlocked        State = "blocked_by_failed_sync"
	StateWaitingDelay   State = "waiting_for_delay"
	StateReadyToExecute State = "ready_to_execute"
	StateTriggered      State = "triggered"
)

// Status is the computed view of the coordination state
type Status struct {
	Enabled              bool      `json:"enabled"`
	DelayMinutes         int       `json:"delay_minutes"`
	LastForwardSyncTime  time.Time `json:"last_forward_sync_time,omitempty"`
	LastForwardSyncOK    bool      `json:"last_forward_sync_success"`
	SecondsUntilEligible int       `json:"seconds_until_eligible"`
	WillExecuteNextCycle bool      `json:"will_execute_next_cycle"`
	State                State     `json:"status"`
}

// persistedState is the durable subset written to the state file
type persistedState struct {
	LastForwardSyncTime time.Time `json:"last_forward_sync_time"`
	LastForwardSyncOK   bool      `json:"last_forward_sync_success"`
	LastReverseSyncTime time.Time `json:"last_reverse_sync_time"`
	Notified            bool      `json:"notified"`
}

// Coordinator tracks forward-sync completions and computes reverse-sync
// eligibility. In-memory state is authoritative; the state file only seeds
// it after a restart.
type Coordinator struct {
	enabled   bool
	delay     time.Duration
	statePath string
	logger    *zap.Logger

	now func() time.Time

	mu          sync.Mutex
	notified    bool
	lastForward time.Time
	lastOK      bool
	lastReverse time.Time
	triggered   bool
	snapshotSeq uint64

	// persistMu serializes state-file writes; persistedSeq tracks the
	// newest snapshot on disk so a late writer cannot clobber it.
	persistMu    sync.Mutex
	persistedSeq uint64
}

// New creates a coordinator, reloading any persisted state from statePath
func New(enabled bool, delay time.Duration, statePath string, logger *zap.Logger) *Coordinator {
	c := &Coordinator{
		enabled:   enabled,
		delay:     delay,
		statePath: statePath,
		logger:    logger,
		now:       time.Now,
	}
	c.reload()
	return c
}

func (c *Coordinator) reload() {
	if c.statePath == "" {
		return
	}
	data, err := os.ReadFile(c.statePath)
	if errors.Is(err, fs.ErrNotExist) {
		return
	}
	if err != nil {
		c.logger.Warn("Failed to read coordination state, starting clean", zap.Error(err))
		return
	}
	var ps persistedState
	if err := json.Unmarshal(data, &ps); err != nil {
		c.logger.Warn("Corrupt coordination state, starting clean", zap.Error(err))
		return
	}
	c.notified = ps.Notified
	c.lastForward = ps.LastForwardSyncTime
	c.lastOK = ps.LastForwardSyncOK
	c.lastReverse = ps.LastReverseSyncTime
	c.logger.Info("Restored coordination state",
		zap.Time("last_forward_sync", c.lastForward),
		zap.Bool("last_forward_success", c.lastOK))
}

// NotifyForwardCompleted records a forward-sync completion. Persistence is
// asynchronous and best-effort: a write failure is logged, and the
// in-memory state stays authoritative until restart.
func (c *Coordinator) NotifyForwardCompleted(success bool) {
	c.mu.Lock()
	c.notified = true
	c.lastForward = c.now()
	c.lastOK = success
	ps, seq := c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("Forward sync completion recorded", zap.Bool("success", success))
	go c.persist(ps, seq)
}

// snapshotLocked captures the durable state along with a sequence number
// ordering this snapshot against concurrent ones.
func (c *Coordinator) snapshotLocked() (persistedState, uint64) {
	c.snapshotSeq++
	return persistedState{
		LastForwardSyncTime: c.lastForward,
		LastForwardSyncOK:   c.lastOK,
		LastReverseSyncTime: c.lastReverse,
		Notified:            c.notified,
	}, c.snapshotSeq
}

// persist writes one snapshot to the state file. Writers are serialized and
// a snapshot older than what is already on disk is dropped, so a forward
// completion racing a release cannot leave stale state behind.
func (c *Coordinator) persist(ps persistedState, seq uint64) {
	if c.statePath == "" {
		return
	}

	c.persistMu.Lock()
	defer c.persistMu.Unlock()
	if seq <= c.persistedSeq {
		return
	}

	data, err := json.Marshal(ps)
	if err != nil {
		c.logger.Warn("Failed to marshal coordination state", zap.Error(err))
		return
	}
	tmp := c.statePath + ".tmp"
	if err := os.MkdirAll(filepath.Dir(c.statePath), 0o755); err != nil {
		c.logger.Warn("Failed to persist coordination state", zap.Error(err))
		return
	}
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		c.logger.Warn("Failed to persist coordination state", zap.Error(err))
		return
	}
	if err := os.Rename(tmp, c.statePath); err != nil {
		c.logger.Warn("Failed to persist coordination state", zap.Error(err))
		return
	}
	c.persistedSeq = seq
}

// eligibleAtLocked computes when the reverse sync next becomes eligible.
// After a triggered run completes, the delay restarts from the reverse
// run's completion so back-to-back reverse runs are spaced apart.
func (c *Coordinator) eligibleAtLocked() time.Time {
	anchor := c.lastForward
	if c.lastReverse.After(anchor) {
		anchor = c.lastReverse
	}
	return anchor.Add(c.delay)
}

func (c *Coordinator) stateLocked(now time.Time) State {
	switch {
	case c.triggered:
		return StateTriggered
	case !c.notified:
		return StateNeverRun
	case !c.lastOK:
		return StateBlocked
	case now.Before(c.eligibleAtLocked()):
		return StateWaitingDelay
	default:
		return StateReadyToExecute
	}
}

// Status computes the current coordination status
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	state := c.stateLocked(now)

	seconds := 0
	if state == StateWaitingDelay {
		seconds = int(c.eligibleAtLocked().Sub(now).Round(time.Second).Seconds())
	}

	return Status{
		Enabled:              c.enabled,
		DelayMinutes:         int(c.delay.Minutes()),
		LastForwardSyncTime:  c.lastForward,
		LastForwardSyncOK:    c.lastOK,
		SecondsUntilEligible: seconds,
		WillExecuteNextCycle: c.enabled && state == StateReadyToExecute,
		State:                state,
	}
}

// TryAcquire atomically claims the reverse-sync slot when eligible. Exactly
// one caller wins per eligibility window; everyone else sees false.
func (c *Coordinator) TryAcquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled || c.stateLocked(c.now()) != StateReadyToExecute {
		return false
	}
	c.triggered = true
	return true
}

// Release ends a triggered reverse run. A successful run restarts the delay
// window; a failed run leaves eligibility open for the next tick to retry.
func (c *Coordinator) Release(success bool) {
	c.mu.Lock()
	c.triggered = false
	if success {
		c.lastReverse = c.now()
	}
	ps, seq := c.snapshotLocked()
	c.mu.Unlock()

	go c.persist(ps, seq)
}
