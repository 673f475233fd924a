package control

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/listup/publisher/internal/interfaces"
	"github.com/listup/publisher/internal/models"
)

type fakeStorage struct {
	listings map[string]*models.Listing
}

func (s *fakeStorage) UpsertListing(ctx context.Context, listing *models.Listing) error {
	s.listings[listing.ID] = listing
	return nil
}

func (s *fakeStorage) GetListing(ctx context.Context, id string) (*models.Listing, error) {
	listing, ok := s.listings[id]
	if !ok {
		return nil, interfaces.ErrListingNotFound
	}
	return listing, nil
}

func (s *fakeStorage) ListEligible(ctx context.Context, now time.Time, policy interfaces.EligibilityPolicy) ([]*models.Listing, error) {
	return nil, nil
}

func (s *fakeStorage) Claim(ctx context.Context, id string, claimToken string) (*models.Listing, error) {
	return nil, interfaces.ErrNotClaimable
}

func (s *fakeStorage) Release(ctx context.Context, id string, claimToken string, result interfaces.AttemptResult) (*models.Listing, error) {
	return nil, interfaces.ErrNotClaimable
}

func (s *fakeStorage) ResetListing(ctx context.Context, id string) (*models.Listing, error) {
	listing, ok := s.listings[id]
	if !ok {
		return nil, interfaces.ErrListingNotFound
	}
	if listing.Status != models.ListingStatusFailed && listing.Status != models.ListingStatusNeedsReview {
		return nil, interfaces.ErrNotResettable
	}
	listing.Status = models.ListingStatusPending
	listing.AttemptCount = 0
	return listing, nil
}

func (s *fakeStorage) CountByStatus(ctx context.Context) (map[models.ListingStatus]int, error) {
	counts := make(map[models.ListingStatus]int)
	for _, l := range s.listings {
		counts[l.Status]++
	}
	return counts, nil
}

type fakeTrigger struct {
	passes int
}

func (t *fakeTrigger) TriggerPass() { t.passes++ }

func newTestService(statuses map[string]models.ListingStatus) (*Service, *fakeStorage, *fakeTrigger) {
	storage := &fakeStorage{listings: make(map[string]*models.Listing)}
	for id, status := range statuses {
		storage.listings[id] = &models.Listing{ID: id, Status: status}
	}
	trigger := &fakeTrigger{}
	return NewService(storage, trigger, arbor.NewLogger()), storage, trigger
}

func TestEnqueue(t *testing.T) {
	service, _, trigger := newTestService(map[string]models.ListingStatus{
		"pending":   models.ListingStatusPending,
		"failed":    models.ListingStatusFailed,
		"active":    models.ListingStatusInProgress,
		"published": models.ListingStatusPublished,
		"parked":    models.ListingStatusNeedsReview,
	})
	ctx := context.Background()

	require.NoError(t, service.Enqueue(ctx, "pending"))
	require.NoError(t, service.Enqueue(ctx, "failed"))
	assert.Equal(t, 2, trigger.passes)

	// In-progress is a no-op, not an error
	require.NoError(t, service.Enqueue(ctx, "active"))
	assert.Equal(t, 2, trigger.passes)

	// Terminal states need an explicit reset first
	assert.Error(t, service.Enqueue(ctx, "published"))
	assert.Error(t, service.Enqueue(ctx, "parked"))
	assert.ErrorIs(t, service.Enqueue(ctx, "missing"), interfaces.ErrListingNotFound)
}

func TestResetReleasesParkedListing(t *testing.T) {
	service, storage, trigger := newTestService(map[string]models.ListingStatus{
		"parked": models.ListingStatusNeedsReview,
	})
	ctx := context.Background()

	require.NoError(t, service.Reset(ctx, "parked"))
	assert.Equal(t, models.ListingStatusPending, storage.listings["parked"].Status)
	assert.Equal(t, 1, trigger.passes)
}

func TestResetRefusedForNonTerminalStates(t *testing.T) {
	service, _, trigger := newTestService(map[string]models.ListingStatus{
		"pending": models.ListingStatusPending,
	})

	err := service.Reset(context.Background(), "pending")
	assert.ErrorIs(t, err, interfaces.ErrNotResettable)
	assert.Equal(t, 0, trigger.passes)
}

func TestGetStatus(t *testing.T) {
	service, _, _ := newTestService(map[string]models.ListingStatus{
		"l1": models.ListingStatusFailed,
	})

	listing, err := service.GetStatus(context.Background(), "l1")
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusFailed, listing.Status)

	_, err = service.GetStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, interfaces.ErrListingNotFound)
}
