package models

import (
	"time"

	"github.com/google/uuid"
)

// StageTransition records one stage entry during a posting attempt
type StageTransition struct {
	Stage Stage     `json:"stage"`
	At    time.Time `json:"at"`
}

// PostAttempt is the ephemeral record of one posting state machine execution
// for one listing. It is created at attempt start and merged into the
// listing's last-attempt fields at attempt end; older attempts are summarized
// by the listing's attempt count, not archived individually.
type PostAttempt struct {
	ID        string            `json:"id"`
	ListingID string            `json:"listing_id"`
	StartedAt time.Time         `json:"started_at"`
	EndedAt   time.Time         `json:"ended_at,omitempty"`
	Outcome   Outcome           `json:"outcome"`
	Stages    []StageTransition `json:"stages"`
}

// NewPostAttempt creates a new attempt record for a listing
func NewPostAttempt(listingID string) *PostAttempt {
	return &PostAttempt{
		ID:        uuid.New().String(),
		ListingID: listingID,
		StartedAt: time.Now(),
	}
}

// RecordStage appends a stage transition to the attempt log
func (a *PostAttempt) RecordStage(stage Stage) {
	a.Stages = append(a.Stages, StageTransition{Stage: stage, At: time.Now()})
}

// CurrentStage returns the most recently entered stage, or empty if the
// attempt never got past validation
func (a *PostAttempt) CurrentStage() Stage {
	if len(a.Stages) == 0 {
		return ""
	}
	return a.Stages[len(a.Stages)-1].Stage
}

// Reached reports whether the attempt entered the given stage
func (a *PostAttempt) Reached(stage Stage) bool {
	for _, s := range a.Stages {
		if s.Stage == stage {
			return true
		}
	}
	return false
}

// Finish stamps the end time and terminal outcome
func (a *PostAttempt) Finish(outcome Outcome) *PostAttempt {
	a.EndedAt = time.Now()
	a.Outcome = outcome
	return a
}

// Duration returns the attempt's wall-clock duration
func (a *PostAttempt) Duration() time.Duration {
	if a.EndedAt.IsZero() {
		return time.Since(a.StartedAt)
	}
	return a.EndedAt.Sub(a.StartedAt)
}
