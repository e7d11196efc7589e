package models

import "time"

// RunRecord is one served request as stored in the run history.
type RunRecord struct {
	ID        string        `json:"id"`
	Provider  ProviderID    `json:"provider"`
	Category  TaskCategory  `json:"category"`
	Cached    bool          `json:"cached"`
	Council   bool          `json:"council"`
	Status    string        `json:"status"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Error     string        `json:"error,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// RunSummary aggregates run history per provider.
type RunSummary struct {
	Provider   ProviderID    `json:"provider"`
	Runs       int64         `json:"runs"`
	Cached     int64         `json:"cached"`
	Failed     int64         `json:"failed"`
	AvgElapsed time.Duration `json:"avg_elapsed_ns"`
}
