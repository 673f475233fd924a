package badger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/listup/publisher/internal/interfaces"
	"github.com/listup/publisher/internal/models"
)

// ListingStorage implements the ListingStorage interface for Badger.
//
// Claim/release is the duplicate-post safety net: status moves through an
// atomic compare-and-set guarded by mu, so no two workers can hold the same
// listing in_progress. BadgerHold has no conditional update primitive, and
// the store is single-process, so a write lock around read-modify-write is
// the compare-and-set.
type ListingStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
	mu     sync.Mutex
}

// NewListingStorage creates a new ListingStorage instance
func NewListingStorage(db *BadgerDB, logger arbor.ILogger) interfaces.ListingStorage {
	return &ListingStorage{
		db:     db,
		logger: logger,
	}
}

// UpsertListing creates or updates a listing keyed by its stable ID.
// On update, content fields are replaced and publication state is
// preserved. Updates are refused while the listing is in_progress.
func (s *ListingStorage) UpsertListing(ctx context.Context, listing *models.Listing) error {
	if listing.ID == "" {
		return fmt.Errorf("listing ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()

	var existing models.Listing
	err := s.db.Store().Get(listing.ID, &existing)
	if err == badgerhold.ErrNotFound {
		listing.Status = models.ListingStatusPending
		listing.AttemptCount = 0
		listing.CreatedAt = now
		listing.UpdatedAt = now
		if err := s.db.Store().Insert(listing.ID, listing); err != nil {
			return fmt.Errorf("failed to insert listing: %w", err)
		}
		s.logger.Debug().Str("listing_id", listing.ID).Msg("Listing created")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load listing: %w", err)
	}

	if existing.Status == models.ListingStatusInProgress {
		return fmt.Errorf("listing %s: %w", listing.ID, interfaces.ErrListingInProgress)
	}

	// Re-scrape: refresh content, keep publication state
	listing.Status = existing.Status
	listing.AttemptCount = existing.AttemptCount
	listing.LastAttempt = existing.LastAttempt
	listing.LastError = existing.LastError
	listing.ClaimToken = existing.ClaimToken
	listing.CreatedAt = existing.CreatedAt
	listing.PublishedAt = existing.PublishedAt
	listing.UpdatedAt = now

	if err := s.db.Store().Update(listing.ID, listing); err != nil {
		return fmt.Errorf("failed to update listing: %w", err)
	}
	s.logger.Debug().Str("listing_id", listing.ID).Msg("Listing content updated")
	return nil
}

// GetListing returns a listing by ID
func (s *ListingStorage) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	var listing models.Listing
	if err := s.db.Store().Get(id, &listing); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("listing %s: %w", id, interfaces.ErrListingNotFound)
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return &listing, nil
}

// ListEligible returns listings selectable for a posting attempt under the
// given policy. Pending listings are always eligible; failed listings only
// below the attempt ceiling and past their backoff interval. published,
// needs_review and in_progress listings are never returned.
func (s *ListingStorage) ListEligible(ctx context.Context, now time.Time, policy interfaces.EligibilityPolicy) ([]*models.Listing, error) {
	var candidates []models.Listing
	query := badgerhold.Where("Status").Eq(models.ListingStatusPending).
		Or(badgerhold.Where("Status").Eq(models.ListingStatusFailed))
	if err := s.db.Store().Find(&candidates, query); err != nil {
		return nil, fmt.Errorf("failed to query eligible listings: %w", err)
	}

	eligible := make([]*models.Listing, 0, len(candidates))
	for i := range candidates {
		l := candidates[i]
		if l.Status == models.ListingStatusFailed {
			if policy.MaxAttempts > 0 && l.AttemptCount >= policy.MaxAttempts {
				continue
			}
			if policy.Backoff != nil && !l.LastAttempt.IsZero() {
				wait := policy.Backoff(l.AttemptCount, l.LastError)
				if now.Before(l.LastAttempt.Add(wait)) {
					continue
				}
			}
		}
		eligible = append(eligible, &l)
	}

	return eligible, nil
}

// Claim atomically moves a claimable listing to in_progress
func (s *ListingStorage) Claim(ctx context.Context, id string, claimToken string) (*models.Listing, error) {
	if claimToken == "" {
		return nil, fmt.Errorf("claim token is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var listing models.Listing
	if err := s.db.Store().Get(id, &listing); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("listing %s: %w", id, interfaces.ErrListingNotFound)
		}
		return nil, fmt.Errorf("failed to load listing: %w", err)
	}

	if !listing.Claimable() {
		return nil, fmt.Errorf("listing %s in status %s: %w", id, listing.Status, interfaces.ErrNotClaimable)
	}

	listing.Status = models.ListingStatusInProgress
	listing.ClaimToken = claimToken
	listing.UpdatedAt = time.Now()

	if err := s.db.Store().Update(id, &listing); err != nil {
		return nil, fmt.Errorf("failed to claim listing: %w", err)
	}

	s.logger.Debug().
		Str("listing_id", id).
		Str("claim_token", claimToken).
		Msg("Listing claimed")

	return &listing, nil
}

// Release ends an attempt for a claimed listing and maps the outcome to the
// next status. The claim token must match the holder.
func (s *ListingStorage) Release(ctx context.Context, id string, claimToken string, result interfaces.AttemptResult) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var listing models.Listing
	if err := s.db.Store().Get(id, &listing); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("listing %s: %w", id, interfaces.ErrListingNotFound)
		}
		return nil, fmt.Errorf("failed to load listing: %w", err)
	}

	if listing.Status != models.ListingStatusInProgress {
		return nil, fmt.Errorf("listing %s in status %s: %w", id, listing.Status, interfaces.ErrNotClaimable)
	}
	if listing.ClaimToken != claimToken {
		return nil, fmt.Errorf("listing %s: %w", id, interfaces.ErrClaimMismatch)
	}

	completedAt := result.CompletedAt
	if completedAt.IsZero() {
		completedAt = time.Now()
	}

	listing.AttemptCount++
	listing.LastAttempt = completedAt
	listing.LastError = result.Outcome.ErrorCode()
	listing.ClaimToken = ""
	listing.UpdatedAt = completedAt

	switch result.Outcome.Kind {
	case models.OutcomeSuccess:
		listing.Status = models.ListingStatusPublished
		listing.PublishedAt = completedAt
	case models.OutcomeIndeterminate:
		// Duplicate-post risk: excluded from automatic retries until a
		// manual reset.
		listing.Status = models.ListingStatusNeedsReview
	default:
		listing.Status = models.ListingStatusFailed
	}

	if err := s.db.Store().Update(id, &listing); err != nil {
		return nil, fmt.Errorf("failed to release listing: %w", err)
	}

	s.logger.Debug().
		Str("listing_id", id).
		Str("outcome", result.Outcome.String()).
		Str("status", string(listing.Status)).
		Int("attempt_count", listing.AttemptCount).
		Msg("Listing released")

	return &listing, nil
}

// ResetListing force-resets a failed or needs_review listing back to pending
func (s *ListingStorage) ResetListing(ctx context.Context, id string) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var listing models.Listing
	if err := s.db.Store().Get(id, &listing); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("listing %s: %w", id, interfaces.ErrListingNotFound)
		}
		return nil, fmt.Errorf("failed to load listing: %w", err)
	}

	if listing.Status != models.ListingStatusFailed && listing.Status != models.ListingStatusNeedsReview {
		return nil, fmt.Errorf("listing %s in status %s: %w", id, listing.Status, interfaces.ErrNotResettable)
	}

	listing.Status = models.ListingStatusPending
	listing.AttemptCount = 0
	listing.LastError = ""
	listing.ClaimToken = ""
	listing.UpdatedAt = time.Now()

	if err := s.db.Store().Update(id, &listing); err != nil {
		return nil, fmt.Errorf("failed to reset listing: %w", err)
	}

	s.logger.Info().Str("listing_id", id).Msg("Listing reset to pending")

	return &listing, nil
}

// CountByStatus returns listing counts grouped by status
func (s *ListingStorage) CountByStatus(ctx context.Context) (map[models.ListingStatus]int, error) {
	var listings []models.Listing
	if err := s.db.Store().Find(&listings, badgerhold.Where("ID").Ne("")); err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}

	counts := make(map[models.ListingStatus]int)
	for _, l := range listings {
		counts[l.Status]++
	}
	return counts, nil
}
