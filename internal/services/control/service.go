package control

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/listup/publisher/internal/interfaces"
	"github.com/listup/publisher/internal/models"
)

// PassTrigger requests an immediate scheduler pass
type PassTrigger interface {
	TriggerPass()
}

// Service implements the ControlService interface: the three operations the
// external API layer drives the engine with.
type Service struct {
	storage   interfaces.ListingStorage
	scheduler PassTrigger
	logger    arbor.ILogger
}

// NewService creates the control service
func NewService(storage interfaces.ListingStorage, scheduler PassTrigger, logger arbor.ILogger) *Service {
	return &Service{
		storage:   storage,
		scheduler: scheduler,
		logger:    logger,
	}
}

// Enqueue marks a listing for publication and triggers a scheduler pass.
// The listing must already exist; published listings are not re-enqueued.
func (s *Service) Enqueue(ctx context.Context, listingID string) error {
	listing, err := s.storage.GetListing(ctx, listingID)
	if err != nil {
		return err
	}

	switch listing.Status {
	case models.ListingStatusPending, models.ListingStatusFailed:
		s.scheduler.TriggerPass()
		s.logger.Info().Str("listing_id", listingID).Msg("Listing enqueued")
		return nil
	case models.ListingStatusInProgress:
		// Already being attempted; nothing to do
		return nil
	default:
		return fmt.Errorf("listing %s in status %s cannot be enqueued (reset it first)", listingID, listing.Status)
	}
}

// GetStatus returns the listing with its publication status and last error
// classification
func (s *Service) GetStatus(ctx context.Context, listingID string) (*models.Listing, error) {
	return s.storage.GetListing(ctx, listingID)
}

// Reset force-resets a failed or needs_review listing back to pending.
// This is the only path out of needs_review: the engine never auto-touches
// those again.
func (s *Service) Reset(ctx context.Context, listingID string) error {
	if _, err := s.storage.ResetListing(ctx, listingID); err != nil {
		return err
	}
	s.scheduler.TriggerPass()
	return nil
}
