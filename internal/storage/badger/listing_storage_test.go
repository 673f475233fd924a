package badger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/listup/publisher/internal/interfaces"
	"github.com/listup/publisher/internal/models"
)

func newTestStorage(t *testing.T) interfaces.ListingStorage {
	t.Helper()

	options := badgerhold.DefaultOptions
	options.Dir = t.TempDir()
	options.ValueDir = options.Dir

	store, err := badgerhold.Open(options)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	db := &BadgerDB{store: store}
	return NewListingStorage(db, arbor.NewLogger())
}

func testListing(id string) *models.Listing {
	return &models.Listing{
		ID:         id,
		SourceSite: "century21",
		SourceID:   id,
		Title:      "Casa en venta",
		Price:      1500000,
		Location:   "Monterrey",
		ImageRefs:  []string{"https://example.com/1.jpg"},
	}
}

func TestUpsertListingCreatesPending(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	listing := testListing("c21:100")
	require.NoError(t, storage.UpsertListing(ctx, listing))

	got, err := storage.GetListing(ctx, "c21:100")
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusPending, got.Status)
	assert.Equal(t, 0, got.AttemptCount)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestUpsertListingDedupesAndPreservesPublicationState(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.UpsertListing(ctx, testListing("c21:200")))

	// Publish it through the claim/release protocol
	_, err := storage.Claim(ctx, "c21:200", "token-1")
	require.NoError(t, err)
	_, err = storage.Release(ctx, "c21:200", "token-1", interfaces.AttemptResult{Outcome: models.Success()})
	require.NoError(t, err)

	// Re-scrape with fresher content
	updated := testListing("c21:200")
	updated.Title = "Casa en venta (actualizada)"
	updated.Price = 1600000
	require.NoError(t, storage.UpsertListing(ctx, updated))

	got, err := storage.GetListing(ctx, "c21:200")
	require.NoError(t, err)
	assert.Equal(t, "Casa en venta (actualizada)", got.Title)
	assert.Equal(t, models.ListingStatusPublished, got.Status, "re-scrape must not reset publication state")
	assert.Equal(t, 1, got.AttemptCount)
	assert.False(t, got.PublishedAt.IsZero())

	counts, err := storage.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts[models.ListingStatusPublished], "upsert must not create a second record")
}

func TestUpsertListingRefusedWhileInProgress(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.UpsertListing(ctx, testListing("c21:300")))
	_, err := storage.Claim(ctx, "c21:300", "token-1")
	require.NoError(t, err)

	err = storage.UpsertListing(ctx, testListing("c21:300"))
	assert.ErrorIs(t, err, interfaces.ErrListingInProgress)
}

func TestClaimIsExclusive(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.UpsertListing(ctx, testListing("c21:400")))

	_, err := storage.Claim(ctx, "c21:400", "worker-a")
	require.NoError(t, err)

	_, err = storage.Claim(ctx, "c21:400", "worker-b")
	assert.ErrorIs(t, err, interfaces.ErrNotClaimable)
}

func TestClaimConcurrentSingleWinner(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.UpsertListing(ctx, testListing("c21:500")))

	const workers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			if _, err := storage.Claim(ctx, "c21:500", token); err == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}(string(rune('a' + i)))
	}
	wg.Wait()

	assert.Equal(t, 1, won, "exactly one worker must win the claim")

	got, err := storage.GetListing(ctx, "c21:500")
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusInProgress, got.Status)
}

func TestReleaseRequiresMatchingToken(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.UpsertListing(ctx, testListing("c21:600")))
	_, err := storage.Claim(ctx, "c21:600", "holder")
	require.NoError(t, err)

	_, err = storage.Release(ctx, "c21:600", "intruder", interfaces.AttemptResult{Outcome: models.Success()})
	assert.ErrorIs(t, err, interfaces.ErrClaimMismatch)

	// The real holder still can
	_, err = storage.Release(ctx, "c21:600", "holder", interfaces.AttemptResult{Outcome: models.Success()})
	assert.NoError(t, err)
}

func TestReleaseOutcomeToStatusMapping(t *testing.T) {
	tests := []struct {
		name      string
		outcome   models.Outcome
		status    models.ListingStatus
		lastError string
	}{
		{
			name:    "success publishes",
			outcome: models.Success(),
			status:  models.ListingStatusPublished,
		},
		{
			name:      "failure goes back to failed with classification",
			outcome:   models.Failure(models.ReasonTimeout, models.StageFieldsFilled, "deadline"),
			status:    models.ListingStatusFailed,
			lastError: "timeout:fields_filled",
		},
		{
			name:      "indeterminate parks for review",
			outcome:   models.Indeterminate(models.StageSubmitted, "confirmation unreadable"),
			status:    models.ListingStatusNeedsReview,
			lastError: "indeterminate:submitted",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := newTestStorage(t)
			ctx := context.Background()

			require.NoError(t, storage.UpsertListing(ctx, testListing("c21:700")))
			_, err := storage.Claim(ctx, "c21:700", "token")
			require.NoError(t, err)

			released, err := storage.Release(ctx, "c21:700", "token", interfaces.AttemptResult{
				Outcome:     tt.outcome,
				CompletedAt: time.Now(),
			})
			require.NoError(t, err)

			assert.Equal(t, tt.status, released.Status)
			assert.Equal(t, 1, released.AttemptCount)
			assert.Equal(t, tt.lastError, released.LastError)
			assert.Empty(t, released.ClaimToken)
			if tt.status == models.ListingStatusPublished {
				assert.False(t, released.PublishedAt.IsZero())
			}
		})
	}
}

func TestListEligibleFiltersByPolicy(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	fail := func(id string, attempts int, lastAttempt time.Time, lastError string) {
		t.Helper()
		require.NoError(t, storage.UpsertListing(ctx, testListing(id)))
		for i := 0; i < attempts; i++ {
			_, err := storage.Claim(ctx, id, "token")
			require.NoError(t, err)
			_, err = storage.Release(ctx, id, "token", interfaces.AttemptResult{
				Outcome:     models.Failure(models.ReasonTimeout, models.StageNavigating, lastError),
				CompletedAt: lastAttempt,
			})
			require.NoError(t, err)
		}
	}

	now := time.Now()

	require.NoError(t, storage.UpsertListing(ctx, testListing("fresh")))
	fail("retryable", 1, now.Add(-time.Hour), "deadline")
	fail("in-backoff", 1, now.Add(-time.Second), "deadline")
	fail("exhausted", 3, now.Add(-time.Hour), "deadline")

	// A published listing is never selected again
	require.NoError(t, storage.UpsertListing(ctx, testListing("done")))
	_, err := storage.Claim(ctx, "done", "token")
	require.NoError(t, err)
	_, err = storage.Release(ctx, "done", "token", interfaces.AttemptResult{Outcome: models.Success()})
	require.NoError(t, err)

	// An indeterminate listing waits for manual review, not the scheduler
	require.NoError(t, storage.UpsertListing(ctx, testListing("parked")))
	_, err = storage.Claim(ctx, "parked", "token")
	require.NoError(t, err)
	_, err = storage.Release(ctx, "parked", "token", interfaces.AttemptResult{
		Outcome: models.Indeterminate(models.StageSubmitted, "unconfirmed"),
	})
	require.NoError(t, err)

	policy := interfaces.EligibilityPolicy{
		MaxAttempts: 3,
		Backoff: func(attemptCount int, lastError string) time.Duration {
			return 10 * time.Minute
		},
	}

	eligible, err := storage.ListEligible(ctx, now, policy)
	require.NoError(t, err)

	ids := make([]string, 0, len(eligible))
	for _, l := range eligible {
		ids = append(ids, l.ID)
	}
	assert.ElementsMatch(t, []string{"fresh", "retryable"}, ids)
}

func TestResetListing(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.UpsertListing(ctx, testListing("c21:800")))
	_, err := storage.Claim(ctx, "c21:800", "token")
	require.NoError(t, err)
	_, err = storage.Release(ctx, "c21:800", "token", interfaces.AttemptResult{
		Outcome: models.Indeterminate(models.StageSubmitted, "unconfirmed"),
	})
	require.NoError(t, err)

	reset, err := storage.ResetListing(ctx, "c21:800")
	require.NoError(t, err)
	assert.Equal(t, models.ListingStatusPending, reset.Status)
	assert.Equal(t, 0, reset.AttemptCount)
	assert.Empty(t, reset.LastError)

	// A pending listing is not resettable
	_, err = storage.ResetListing(ctx, "c21:800")
	assert.ErrorIs(t, err, interfaces.ErrNotResettable)

	// Neither is a published one
	_, err = storage.Claim(ctx, "c21:800", "token")
	require.NoError(t, err)
	_, err = storage.Release(ctx, "c21:800", "token", interfaces.AttemptResult{Outcome: models.Success()})
	require.NoError(t, err)
	_, err = storage.ResetListing(ctx, "c21:800")
	assert.ErrorIs(t, err, interfaces.ErrNotResettable)
}

func TestGetListingNotFound(t *testing.T) {
	storage := newTestStorage(t)
	_, err := storage.GetListing(context.Background(), "missing")
	assert.ErrorIs(t, err, interfaces.ErrListingNotFound)
}
