package domain

import "time"

// AttemptOutcome classifies how one technique attempt ended.
const (
	AttemptSucceeded = "succeeded"
	AttemptRejected  = "quality_rejected"
	AttemptTimedOut  = "timed_out"
	AttemptErrored   = "errored"
)

// Attempt records one technique attempt inside a crawl run.
type Attempt struct {
	// Technique is the technique that was attempted.
	Technique Technique `json:"technique"`
	// Outcome is one of the Attempt* constants.
	Outcome string `json:"outcome"`
	// Items is the raw item count the attempt produced.
	Items int `json:"items"`
	// Reason carries the quality-gate or error detail, when any.
	Reason string `json:"reason,omitempty"`
	// Duration is how long the attempt took.
	Duration time.Duration `json:"duration"`
}

// CrawlResult summarizes one source's run.
type CrawlResult struct {
	// SourceID identifies the source.
	SourceID string `json:"source_id"`
	// Technique is the technique that finally succeeded, empty when the
	// chain was exhausted.
	Technique Technique `json:"technique,omitempty"`
	// Found is the number of usable items harvested.
	Found int `json:"found"`
	// New is the number of articles newly persisted.
	New int `json:"new"`
	// Attempts lists every technique attempt in order.
	Attempts []Attempt `json:"attempts,omitempty"`
	// Errors holds human-readable failure reasons.
	Errors []string `json:"errors,omitempty"`
}

// CrawlLog is one persisted row per source run.
type CrawlLog struct {
	// RunID is a unique identifier for the run.
	RunID string `json:"run_id" db:"run_id"`
	// SourceID identifies the source.
	SourceID string `json:"source_id" db:"source_id"`
	// Status is "ok", "empty", or "failed".
	Status string `json:"status" db:"status"`
	// Found and New mirror the CrawlResult counts.
	Found int `json:"found" db:"found"`
	New   int `json:"new" db:"new"`
	// Errors joins the run's error strings.
	Errors string `json:"errors,omitempty" db:"errors"`
	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at" db:"started_at"`
	FinishedAt time.Time `json:"finished_at" db:"finished_at"`
}
