package poster

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/ternarybob/arbor"

	"github.com/listup/publisher/internal/interfaces"
	"github.com/listup/publisher/internal/models"
)

func newTestMachine() *Machine {
	return NewMachine(Config{
		ComposerURL:       "https://www.facebook.com/marketplace/create/item",
		StageTimeout:      time.Second,
		ConfirmURLPattern: "/marketplace/you",
	}, DefaultSelectors(), arbor.NewLogger())
}

func validSession() *models.Session {
	return models.NewSession("tester@example.com", context.Background(), func() {})
}

func validListing() *models.Listing {
	return &models.Listing{
		ID:         "c21:1",
		SourceSite: "century21",
		SourceID:   "1",
		Title:      "Casa en venta",
		Price:      1500000,
		Location:   "Monterrey",
		ImageRefs:  []string{"a.jpg", "b.jpg"},
	}
}

func imageSet(n int) []interfaces.ImageAsset {
	assets := make([]interfaces.ImageAsset, n)
	for i := range assets {
		assets[i] = interfaces.ImageAsset{Ref: "a.jpg", Path: "/tmp/a.jpg", Size: 1}
	}
	return assets
}

// Precondition violations must terminate the attempt before any browser work
// and classify as validation failures, which the scheduler never retries.
func TestAttemptPostValidationFailsFast(t *testing.T) {
	machine := newTestMachine()
	ctx := context.Background()

	tests := []struct {
		name    string
		listing *models.Listing
		session *models.Session
		images  []interfaces.ImageAsset
	}{
		{
			name:    "nil session",
			listing: validListing(),
			session: nil,
			images:  imageSet(2),
		},
		{
			name:    "invalidated session",
			listing: validListing(),
			session: func() *models.Session { s := validSession(); s.Invalidate(); return s }(),
			images:  imageSet(2),
		},
		{
			name: "missing required fields",
			listing: func() *models.Listing {
				l := validListing()
				l.Title = ""
				return l
			}(),
			session: validSession(),
			images:  imageSet(2),
		},
		{
			name: "non-positive price",
			listing: func() *models.Listing {
				l := validListing()
				l.Price = 0
				return l
			}(),
			session: validSession(),
			images:  imageSet(2),
		},
		{
			name:    "zero images",
			listing: validListing(),
			session: validSession(),
			images:  nil,
		},
		{
			name:    "partial image set with partial sets disabled",
			listing: validListing(),
			session: validSession(),
			images:  imageSet(1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempt := machine.AttemptPost(ctx, tt.listing, tt.session, tt.images)

			assert.Equal(t, models.OutcomeFailure, attempt.Outcome.Kind)
			assert.Equal(t, models.ReasonValidation, attempt.Outcome.Reason)
			assert.Empty(t, attempt.Stages, "no stage may run on a precondition violation")
		})
	}
}

func TestAttemptPostCancelledBeforeStart(t *testing.T) {
	machine := newTestMachine()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempt := machine.AttemptPost(ctx, validListing(), validSession(), imageSet(2))

	assert.Equal(t, models.OutcomeFailure, attempt.Outcome.Kind)
	assert.Equal(t, models.ReasonCancelled, attempt.Outcome.Reason)
	assert.False(t, attempt.Reached(models.StageNavigating))
}

func TestFailureOutcomeAfterSubmitIsIndeterminate(t *testing.T) {
	machine := newTestMachine()
	ctx := context.Background()
	session := validSession()

	attempt := models.NewPostAttempt("c21:1")
	attempt.RecordStage(models.StageNavigating)
	attempt.RecordStage(models.StageSubmitted)

	outcome := machine.failureOutcome(ctx, attempt, models.StageConfirmed, session, errors.New("confirmation page never loaded"))
	assert.Equal(t, models.OutcomeIndeterminate, outcome.Kind)
	assert.Equal(t, models.StageConfirmed, outcome.Stage)
}

func TestFailureOutcomeSubmitErrorIsIndeterminate(t *testing.T) {
	machine := newTestMachine()
	ctx := context.Background()
	session := validSession()

	attempt := models.NewPostAttempt("c21:1")
	attempt.RecordStage(models.StageImagesAttached)

	// A generic error at the submit stage is ambiguous: the click may have
	// landed before the failure surfaced
	outcome := machine.failureOutcome(ctx, attempt, models.StageSubmitted, session, errors.New("click timed out"))
	assert.Equal(t, models.OutcomeIndeterminate, outcome.Kind)

	// A provably undispatched submission is a plain failure
	outcome = machine.failureOutcome(ctx, attempt, models.StageSubmitted, session, errSubmitNotDispatched)
	assert.Equal(t, models.OutcomeFailure, outcome.Kind)
}

func TestCancelledOutcomeMapping(t *testing.T) {
	machine := newTestMachine()

	before := models.NewPostAttempt("c21:1")
	before.RecordStage(models.StageFieldsFilled)
	outcome := machine.cancelledOutcome(before, models.StageImagesAttached)
	assert.Equal(t, models.OutcomeFailure, outcome.Kind)
	assert.Equal(t, models.ReasonCancelled, outcome.Reason)

	after := models.NewPostAttempt("c21:1")
	after.RecordStage(models.StageSubmitted)
	outcome = machine.cancelledOutcome(after, models.StageConfirmed)
	assert.Equal(t, models.OutcomeIndeterminate, outcome.Kind)
}
