package domain

import "time"

// BatchStatus enumerates batch job lifecycle states.
type BatchStatus string

const (
	BatchStatusPending    BatchStatus = "pending"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusPaused     BatchStatus = "paused"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusCancelled  BatchStatus = "cancelled"
	BatchStatusFailed     BatchStatus = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s BatchStatus) Terminal() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusCancelled, BatchStatusFailed:
		return true
	}
	return false
}

// SeedMode controls how the per-item seed is chosen.
const (
	SeedModeFixed  = "fixed"
	SeedModeRandom = "random"
)

// GenerationParams are the parameters shared by every item of a batch.
type GenerationParams struct {
	Prompt         string         `json:"prompt"`
	NegativePrompt string         `json:"negative_prompt,omitempty"`
	Model          string         `json:"model"`
	Width          int            `json:"width"`
	Height         int            `json:"height"`
	SeedMode       string         `json:"seed_mode"`
	Seed           int64          `json:"seed,omitempty"`
	Options        map[string]any `json:"options,omitempty"`
}

// BatchJob is the durable record tracking one batch generation request.
//
// CurrentIndex is the index of the next item to claim; CompletedCount counts
// items whose generation and persistence both succeeded; InFlightCount counts
// items dispatched but not yet settled. The record guarantees
// CompletedCount <= CurrentIndex <= TotalCount at all times.
type BatchJob struct {
	ID                  string
	OwnerID             string
	Status              BatchStatus
	TotalCount          int
	CurrentIndex        int
	CompletedCount      int
	InFlightCount       int
	ConsecutiveFailures int
	LastError           string
	Params              GenerationParams
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Exhausted reports whether every item has been claimed.
func (j BatchJob) Exhausted() bool {
	return j.CurrentIndex >= j.TotalCount
}
