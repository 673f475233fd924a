package interfaces

import (
	"context"
	"time"

	"github.com/listup/publisher/internal/models"
)

// EligibilityPolicy filters which listings the scheduler may select.
// A listing is eligible when it is pending, or failed with attempt count
// below MaxAttempts and its backoff interval elapsed.
type EligibilityPolicy struct {
	MaxAttempts int
	// Backoff returns the wait interval required after the given attempt
	// count before the next attempt may start.
	Backoff func(attemptCount int, lastError string) time.Duration
}

// AttemptResult carries the fields merged into a listing at release time
type AttemptResult struct {
	Outcome     models.Outcome
	CompletedAt time.Time
}

// ListingStorage is the Listing Record Store: the only state shared across
// workers. All status mutation goes through the atomic claim/release
// protocol.
type ListingStorage interface {
	// UpsertListing creates or updates a listing keyed by its stable ID.
	// Content updates are refused while the listing is in_progress; status
	// and attempt fields are preserved on update.
	UpsertListing(ctx context.Context, listing *models.Listing) error

	// GetListing returns a listing by ID
	GetListing(ctx context.Context, id string) (*models.Listing, error)

	// ListEligible returns listings selectable for a posting attempt under
	// the given policy, as of now.
	ListEligible(ctx context.Context, now time.Time, policy EligibilityPolicy) ([]*models.Listing, error)

	// Claim atomically moves a claimable listing (pending or failed) to
	// in_progress and stamps the claim token. Returns the claimed listing,
	// or ErrNotClaimable if another worker holds it or it is not eligible.
	Claim(ctx context.Context, id string, claimToken string) (*models.Listing, error)

	// Release ends an attempt for a claimed listing: maps the outcome to a
	// status (success -> published, indeterminate -> needs_review,
	// failure -> failed), increments the attempt count, records the error
	// classification and clears the claim. The claim token must match.
	Release(ctx context.Context, id string, claimToken string, result AttemptResult) (*models.Listing, error)

	// ResetListing force-resets a failed or needs_review listing back to
	// pending with zeroed attempt state. Manual intervention path.
	ResetListing(ctx context.Context, id string) (*models.Listing, error)

	// CountByStatus returns listing counts grouped by status
	CountByStatus(ctx context.Context) (map[models.ListingStatus]int, error)
}

// StorageManager provides access to the storage backend
type StorageManager interface {
	ListingStorage() ListingStorage
	Close() error
}
