package sync

import (
	"time"

	"github.com/commercebridge/retail-middleware/pkg/catalog"
)

// successRateThreshold is the success rate below which a run is reported
// as failed even when it ran to the end.
const successRateThreshold = 90.0

// Report is the final summary of one synchronization run
type Report struct {
	SyncID     string        `json:"sync_id"`
	Mode       string        `json:"mode"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration"`

	Stats       catalog.Stats `json:"stats"`
	TotalCount  int           `json:"total_count"`
	SuccessRate float64       `json:"success_rate"`

	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	Recommendations []string `json:"recommendations,omitempty"`
}

func buildReport(syncID, mode string, startedAt time.Time, totalCount int, stats catalog.Stats, forceUpdate bool, runErr error) *Report {
	finished := time.Now()
	report := &Report{
		SyncID:      syncID,
		Mode:        mode,
		StartedAt:   startedAt,
		FinishedAt:  finished,
		Duration:    finished.Sub(startedAt),
		Stats:       stats,
		TotalCount:  totalCount,
		SuccessRate: stats.SuccessRate(),
	}

	if runErr != nil {
		report.Error = runErr.Error()
	}
	report.Success = runErr == nil && report.SuccessRate >= successRateThreshold

	if report.SuccessRate < successRateThreshold {
		report.Recommendations = append(report.Recommendations,
			"success rate below 90%: review field mappings and source data quality")
	}
	if stats.Skipped > stats.Updated && !forceUpdate {
		report.Recommendations = append(report.Recommendations,
			"most existing records were skipped: consider force_update to refresh them")
	}
	if stats.InventoryFailed > 0 {
		report.Recommendations = append(report.Recommendations,
			"inventory updates failed: verify the default location is configured on the storefront")
	}
	return report
}
