package interfaces

import "errors"

// Storage contract errors. Implementations return these (possibly wrapped)
// so callers can branch with errors.Is.
var (
	// ErrListingNotFound: no listing exists with the given ID
	ErrListingNotFound = errors.New("listing not found")

	// ErrNotClaimable: the listing is not in a claimable status, typically
	// because another worker already holds the in_progress claim
	ErrNotClaimable = errors.New("listing not claimable")

	// ErrClaimMismatch: the caller's claim token does not match the holder
	ErrClaimMismatch = errors.New("claim token mismatch")

	// ErrListingInProgress: content update refused while a worker owns the listing
	ErrListingInProgress = errors.New("listing is in progress")

	// ErrNotResettable: reset requested for a listing that is neither
	// failed nor needs_review
	ErrNotResettable = errors.New("listing not resettable")
)

// AssetUnavailableError reports an image reference that could not be
// resolved after bounded internal retries
type AssetUnavailableError struct {
	Ref string
	Err error
}

func (e *AssetUnavailableError) Error() string {
	if e.Err != nil {
		return "asset unavailable: " + e.Ref + ": " + e.Err.Error()
	}
	return "asset unavailable: " + e.Ref
}

func (e *AssetUnavailableError) Unwrap() error { return e.Err }

// AuthenticationError reports a login failure after bounded retries
type AuthenticationError struct {
	Attempts int
	Err      error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return "authentication failed: " + e.Err.Error()
	}
	return "authentication failed"
}

func (e *AuthenticationError) Unwrap() error { return e.Err }
