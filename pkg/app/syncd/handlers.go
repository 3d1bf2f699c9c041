package syncd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/commercebridge/retail-middleware/pkg/app/errors"
	"github.com/commercebridge/retail-middleware/pkg/config"
	"github.com/commercebridge/retail-middleware/pkg/coordinator"
	"github.com/commercebridge/retail-middleware/pkg/detector"
	"github.com/commercebridge/retail-middleware/pkg/retail"
	"github.com/commercebridge/retail-middleware/pkg/stock"
	syncrun "github.com/commercebridge/retail-middleware/pkg/sync"
)

type handlers struct {
	cfg          *config.Config
	orchestrator *syncrun.Orchestrator
	registry     *syncrun.Registry
	detector     *detector.Detector
	coordinator  *coordinator.Coordinator
	reconciler   *stock.Reconciler
	logger       *zap.Logger
}

// postSync triggers a manual forward sync. The body carries run options
// (filters, force_update, fresh); the run executes in the background and
// the response returns its sync_id for progress polling.
func (h *handlers) postSync(w http.ResponseWriter, r *http.Request) {
	var opts syncrun.Options
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&opts); err != nil {
			h.writeError(w, apperrors.BadRequestError(err, "malformed sync options"))
			return
		}
	}
	if opts.SyncID == "" {
		opts.SyncID = uuid.NewString()
	}
	h.launch(opts)
	h.respond(w, http.StatusAccepted, map[string]any{"sync_id": opts.SyncID, "state": "running"})
}

// fullSyncRequest is the small option surface for a manual full sync;
// everything else comes from configuration.
type fullSyncRequest struct {
	Fresh       bool `json:"fresh,omitempty"`
	ForceUpdate bool `json:"force_update,omitempty"`
}

// postFullSync triggers an unfiltered full catalog sync with the configured
// run settings.
func (h *handlers) postFullSync(w http.ResponseWriter, r *http.Request) {
	var req fullSyncRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, apperrors.BadRequestError(err, "malformed request"))
			return
		}
	}

	opts := syncrun.Options{
		SyncID: uuid.NewString(),
		Filters: retail.Filters{
			IncludeZeroStock: h.cfg.Sync.IncludeZeroStock,
		},
		ForceUpdate:     req.ForceUpdate || h.cfg.Sync.ForceUpdate,
		Fresh:           req.Fresh,
		PageSize:        h.cfg.Sync.PageSize,
		BatchSize:       h.cfg.Sync.BatchSize,
		CheckpointEvery: h.cfg.Sync.CheckpointEvery,
		PageDelay:       h.cfg.Sync.PageDelay,
		RunTimeout:      h.cfg.Sync.RunTimeout,
	}
	h.launch(opts)
	h.respond(w, http.StatusAccepted, map[string]any{"sync_id": opts.SyncID, "state": "running"})
}

// launch runs a forward sync in the background and reports its completion
// to the coordinator. The run is detached from the request context so it
// survives the client disconnecting.
func (h *handlers) launch(opts syncrun.Options) {
	go func() {
		report, err := h.orchestrator.Run(context.Background(), opts)
		if err != nil {
			h.logger.Error("Forward sync failed",
				zap.String("sync_id", opts.SyncID), zap.Error(err))
		}
		h.coordinator.NotifyForwardCompleted(err == nil && report != nil && report.Success)
	}()
}

func (h *handlers) getProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	progress, ok := h.registry.Progress(id)
	if !ok {
		h.writeError(w, apperrors.ResourceNotFoundError(nil, "unknown sync_id"))
		return
	}
	h.respond(w, http.StatusOK, map[string]any{
		"progress": progress,
		"percent":  progress.Percent(),
	})
}

func (h *handlers) postCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := h.registry.Progress(id); !ok {
		h.writeError(w, apperrors.ResourceNotFoundError(nil, "unknown sync_id"))
		return
	}
	if !h.registry.Cancel(id) {
		h.writeError(w, apperrors.ConflictError(nil, "sync is not running"))
		return
	}
	h.respond(w, http.StatusAccepted, map[string]any{"sync_id": id, "state": "cancelling"})
}

func (h *handlers) getStatus(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, http.StatusOK, map[string]any{
		"active_syncs": h.registry.ActiveCount(),
		"runs":         h.registry.List(),
		"detector":     h.detector.Snapshot(),
		"stock_sync":   h.coordinator.Status(),
	})
}

func (h *handlers) getDetectorStatus(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, http.StatusOK, h.detector.Snapshot())
}

func (h *handlers) getStockSyncStatus(w http.ResponseWriter, _ *http.Request) {
	h.respond(w, http.StatusOK, map[string]any{
		"coordination": h.coordinator.Status(),
		"last_run":     h.reconciler.LastRun(),
	})
}

func (h *handlers) respond(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// writeError maps a ServiceError to its status code and client-safe
// message; anything else becomes a 500 with the cause logged only.
func (h *handlers) writeError(w http.ResponseWriter, err error) {
	var svcErr *apperrors.ServiceError
	if !errors.As(err, &svcErr) {
		h.logger.Error("Unhandled admin error", zap.Error(err))
		svcErr = &apperrors.ServiceError{
			Category: apperrors.CategoryGeneralError,
			Message:  "Internal Server Error",
		}
	}
	if svcErr.Err != nil {
		h.logger.Warn("Admin request failed",
			zap.String("message", svcErr.Message), zap.Error(svcErr.Err))
	}
	h.respond(w, svcErr.StatusCode(), map[string]string{"error": svcErr.Message})
}
