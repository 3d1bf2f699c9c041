package catalog

// Stats accumulates per-record outcomes over one synchronization run.
// Every processed record increments TotalProcessed exactly once, plus one
// of the outcome counters.
type Stats struct {
	TotalProcessed   int `json:"total_processed"`
	Created          int `json:"created"`
	Updated          int `json:"updated"`
	Skipped          int `json:"skipped"`
	Errors           int `json:"errors"`
	InventoryUpdated int `json:"inventory_updated"`
	InventoryFailed  int `json:"inventory_failed"`
}

// Add merges other into s.
func (s *Stats) Add(other Stats) {
	s.TotalProcessed += other.TotalProcessed
	s.Created += other.Created
	s.Updated += other.Updated
	s.Skipped += other.Skipped
	s.Errors += other.Errors
	s.InventoryUpdated += other.InventoryUpdated
	s.InventoryFailed += other.InventoryFailed
}

// SuccessRate returns the percentage of processed records that did not
// error. An empty run counts as 100%.
func (s Stats) SuccessRate() float64 {
	if s.TotalProcessed == 0 {
		return 100
	}
	return float64(s.TotalProcessed-s.Errors) / float64(s.TotalProcessed) * 100
}
