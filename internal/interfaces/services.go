package interfaces

import (
	"context"

	"github.com/listup/publisher/internal/models"
)

// SessionManager produces a valid authenticated session on demand and
// retires invalid ones. It provides no cross-worker concurrency; the
// scheduler bounds how many sessions are checked out at once.
type SessionManager interface {
	// Acquire returns a cached session if a liveness probe passes,
	// otherwise performs a full login. Login failures are retried at most
	// a small configured bound, then surfaced as an authentication error.
	Acquire(ctx context.Context) (*models.Session, error)

	// Invalidate marks a session unusable and tears it down. The next
	// Acquire performs a fresh login.
	Invalidate(session *models.Session)

	// Close releases all browser resources
	Close() error
}

// ImageAsset is one ready-to-upload image payload
type ImageAsset struct {
	Ref  string // Original reference from the listing
	Path string // Locally-accessible file path
	Size int64
}

// AssetResolver resolves a listing's image references into ordered,
// locally-accessible payloads. Order is preserved: the first asset becomes
// the cover photo.
type AssetResolver interface {
	Resolve(ctx context.Context, listing *models.Listing) ([]ImageAsset, error)
}

// Poster executes one posting attempt for one listing against one session,
// to a terminal outcome. It performs no retries; every terminal state
// carries a reason.
type Poster interface {
	AttemptPost(ctx context.Context, listing *models.Listing, session *models.Session, images []ImageAsset) *models.PostAttempt
}

// ControlService is the control surface consumed by the external API layer
type ControlService interface {
	// Enqueue marks a listing for publication and triggers a scheduler pass
	Enqueue(ctx context.Context, listingID string) error

	// GetStatus returns a listing's publication status and last error
	GetStatus(ctx context.Context, listingID string) (*models.Listing, error)

	// Reset force-resets a failed or needs_review listing back to pending
	Reset(ctx context.Context, listingID string) error
}
