package poster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/listup/publisher/internal/interfaces"
	"github.com/listup/publisher/internal/models"
)

// Config holds the posting machine's policy parameters. What "confirmation"
// looks like on the platform is deliberately configuration, not code.
type Config struct {
	ComposerURL        string
	StageTimeout       time.Duration
	ConfirmURLPattern  string
	ConfirmSelector    string
	AllowPartialImages bool
}

// Machine implements the Poster interface: it executes one posting attempt
// for one listing against one session, to a terminal outcome.
//
// The marketplace UI is not a contract. Every stage transition therefore
// verifies the prior stage's post-condition by reading the rendered page
// back instead of assuming the write succeeded, and every wait is bounded.
// The machine performs no retries; retry policy belongs to the scheduler.
type Machine struct {
	config    Config
	selectors Selectors
	validate  *validator.Validate
	logger    arbor.ILogger
}

// NewMachine creates a posting state machine
func NewMachine(config Config, selectors Selectors, logger arbor.ILogger) *Machine {
	if config.StageTimeout <= 0 {
		config.StageTimeout = 30 * time.Second
	}
	return &Machine{
		config:    config,
		selectors: selectors,
		validate:  validator.New(),
		logger:    logger,
	}
}

type stageStep struct {
	stage models.Stage
	run   func(ctx context.Context) error
}

// AttemptPost runs the full stage sequence for one listing. Inputs are
// validated first; a violation fails fast without touching the session.
//
// Outcome mapping after the submit click is asymmetric on purpose: once the
// submission has been dispatched, any error before a confirmed read yields
// an indeterminate outcome, never a failure. A false "failed" invites a
// retry and a duplicate post, which is strictly worse than a listing parked
// for manual reconciliation.
func (m *Machine) AttemptPost(ctx context.Context, listing *models.Listing, session *models.Session, images []interfaces.ImageAsset) *models.PostAttempt {
	attempt := models.NewPostAttempt(listing.ID)

	if err := m.validateInputs(listing, session, images); err != nil {
		m.logger.Warn().
			Str("listing_id", listing.ID).
			Err(err).
			Msg("Posting precondition violated")
		return attempt.Finish(models.Failure(models.ReasonValidation, "", err.Error()))
	}

	contextLogger := m.logger.WithContextWriter(attempt.ID)
	contextLogger.Info().
		Str("listing_id", listing.ID).
		Str("attempt_id", attempt.ID).
		Int("images", len(images)).
		Msg("Posting attempt started")

	steps := []stageStep{
		{models.StageNavigating, func(sc context.Context) error { return m.navigate(sc) }},
		{models.StageComposerOpen, func(sc context.Context) error { return m.openComposer(sc) }},
		{models.StageFieldsFilled, func(sc context.Context) error { return m.fillFields(sc, listing) }},
		{models.StageImagesAttached, func(sc context.Context) error { return m.attachImages(sc, images) }},
		{models.StageSubmitted, func(sc context.Context) error { return m.submit(sc) }},
		{models.StageConfirmed, func(sc context.Context) error { return m.confirm(sc) }},
	}

	for _, step := range steps {
		if ctx.Err() != nil {
			return attempt.Finish(m.cancelledOutcome(attempt, step.stage))
		}

		stageCtx, cancel := m.stageContext(ctx, session)
		err := step.run(stageCtx)
		cancel()

		if err != nil {
			outcome := m.failureOutcome(ctx, attempt, step.stage, session, err)
			contextLogger.Warn().
				Str("listing_id", listing.ID).
				Str("stage", string(step.stage)).
				Str("outcome", outcome.String()).
				Err(err).
				Msg("Posting attempt terminated")
			return attempt.Finish(outcome)
		}

		attempt.RecordStage(step.stage)
		contextLogger.Debug().
			Str("listing_id", listing.ID).
			Str("stage", string(step.stage)).
			Msg("Stage completed")
	}

	contextLogger.Info().
		Str("listing_id", listing.ID).
		Dur("duration", attempt.Duration()).
		Msg("Posting attempt confirmed")

	return attempt.Finish(models.Success())
}

// validateInputs enforces the attempt preconditions: required content
// fields present and a non-empty image set, checked before any browser work
func (m *Machine) validateInputs(listing *models.Listing, session *models.Session, images []interfaces.ImageAsset) error {
	if session == nil || !session.Valid || session.BrowserCtx == nil {
		return fmt.Errorf("session is not valid")
	}
	if err := m.validate.Struct(listing); err != nil {
		return fmt.Errorf("listing validation failed: %w", err)
	}
	if len(images) == 0 {
		return fmt.Errorf("no images to upload")
	}
	if !m.config.AllowPartialImages && len(images) != len(listing.ImageRefs) {
		return fmt.Errorf("resolved %d of %d images and partial sets are disabled", len(images), len(listing.ImageRefs))
	}
	return nil
}

// stageContext bounds one stage's wait and propagates caller cancellation
// into the browser context
func (m *Machine) stageContext(ctx context.Context, session *models.Session) (context.Context, context.CancelFunc) {
	stageCtx, cancel := context.WithTimeout(session.BrowserCtx, m.config.StageTimeout)
	stop := context.AfterFunc(ctx, cancel)
	return stageCtx, func() {
		stop()
		cancel()
	}
}

// failureOutcome turns a stage error into the attempt's terminal outcome
func (m *Machine) failureOutcome(ctx context.Context, attempt *models.PostAttempt, stage models.Stage, session *models.Session, err error) models.Outcome {
	// Past the submit dispatch the platform may already hold the listing
	if attempt.Reached(models.StageSubmitted) || stage == models.StageConfirmed {
		return models.Indeterminate(stage, err.Error())
	}

	// An error from the submit stage itself is ambiguous: the click may have
	// landed before the failure. Only a missing submit control proves the
	// submission was never dispatched.
	if stage == models.StageSubmitted && !errors.Is(err, errSubmitNotDispatched) {
		return models.Indeterminate(stage, err.Error())
	}

	if ctx.Err() != nil {
		return m.cancelledOutcome(attempt, stage)
	}

	signals := readPageSignals(session.BrowserCtx)
	return classifyFailure(err, stage, signals, m.selectors.RateLimitMarkers)
}

// cancelledOutcome maps cancellation onto the outcome taxonomy: a plain
// failure before submission, indeterminate after it
func (m *Machine) cancelledOutcome(attempt *models.PostAttempt, stage models.Stage) models.Outcome {
	if attempt.Reached(models.StageSubmitted) {
		return models.Indeterminate(stage, "cancelled after submission was dispatched")
	}
	return models.Failure(models.ReasonCancelled, stage, "attempt cancelled")
}
