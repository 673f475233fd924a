package models

import "fmt"

// Stage identifies one step of the posting sequence. Stages are strictly
// ordered and none may be skipped.
type Stage string

const (
	StageNavigating     Stage = "navigating"
	StageComposerOpen   Stage = "composer_open"
	StageFieldsFilled   Stage = "fields_filled"
	StageImagesAttached Stage = "images_attached"
	StageSubmitted      Stage = "submitted"
	StageConfirmed      Stage = "confirmed"
)

// FailureReason classifies why a posting attempt failed. Classification
// drives the scheduler's retry policy.
type FailureReason string

const (
	// ReasonTimeout: a stage exceeded its bounded wait. Retried per backoff policy.
	ReasonTimeout FailureReason = "timeout"
	// ReasonSessionInvalid: the session lost authentication mid-attempt.
	// Propagated to the session manager to force replacement before retry.
	ReasonSessionInvalid FailureReason = "session_invalid"
	// ReasonRateLimited: the platform throttled or blocked the account.
	// Backoff multiplier increased beyond the normal schedule.
	ReasonRateLimited FailureReason = "rate_limited"
	// ReasonUnexpectedUIState: the page did not match any known structure.
	ReasonUnexpectedUIState FailureReason = "unexpected_ui_state"
	// ReasonValidation: bad or missing input data. Never retried.
	ReasonValidation FailureReason = "validation_error"
	// ReasonAssetUnavailable: a referenced image could not be resolved.
	// Validation-class: not retried by the attempt itself.
	ReasonAssetUnavailable FailureReason = "asset_unavailable"
	// ReasonCancelled: the attempt was cancelled before submission.
	ReasonCancelled FailureReason = "cancelled"
)

// OutcomeKind is the top-level result category of a posting attempt.
// Success and failure are not enough: a submission that was dispatched but
// never confirmed is indeterminate, and mapping it to either side risks a
// duplicate post.
type OutcomeKind string

const (
	OutcomeSuccess       OutcomeKind = "success"
	OutcomeFailure       OutcomeKind = "failure"
	OutcomeIndeterminate OutcomeKind = "indeterminate"
)

// Outcome is the tagged terminal result of one posting attempt
type Outcome struct {
	Kind    OutcomeKind   `json:"kind"`
	Reason  FailureReason `json:"reason,omitempty"` // Set when Kind is failure
	Stage   Stage         `json:"stage,omitempty"`  // Stage reached when the attempt terminated
	Message string        `json:"message,omitempty"`
}

// Success builds a success outcome
func Success() Outcome {
	return Outcome{Kind: OutcomeSuccess, Stage: StageConfirmed}
}

// Failure builds a failure outcome with a classified reason
func Failure(reason FailureReason, stage Stage, message string) Outcome {
	return Outcome{Kind: OutcomeFailure, Reason: reason, Stage: stage, Message: message}
}

// Indeterminate builds an indeterminate outcome. Used when a submission was
// dispatched but confirmation could not be read.
func Indeterminate(stage Stage, message string) Outcome {
	return Outcome{Kind: OutcomeIndeterminate, Stage: stage, Message: message}
}

// ErrorCode returns the compact reason string stored on the listing,
// e.g. "timeout:fields_filled" or "session_invalid"
func (o Outcome) ErrorCode() string {
	switch o.Kind {
	case OutcomeSuccess:
		return ""
	case OutcomeIndeterminate:
		return fmt.Sprintf("indeterminate:%s", o.Stage)
	}
	if o.Reason == ReasonTimeout {
		return fmt.Sprintf("%s:%s", o.Reason, o.Stage)
	}
	return string(o.Reason)
}

// String implements fmt.Stringer
func (o Outcome) String() string {
	if o.Kind == OutcomeSuccess {
		return string(o.Kind)
	}
	return fmt.Sprintf("%s(%s)", o.Kind, o.ErrorCode())
}
