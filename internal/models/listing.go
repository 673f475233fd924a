package models

import (
	"time"
)

// ListingStatus represents the publication state of a listing
type ListingStatus string

const (
	ListingStatusPending     ListingStatus = "pending"
	ListingStatusInProgress  ListingStatus = "in_progress"
	ListingStatusPublished   ListingStatus = "published"
	ListingStatusFailed      ListingStatus = "failed"
	ListingStatusNeedsReview ListingStatus = "needs_review"
)

// Listing represents one real-estate property record sourced externally and
// targeted for publication on the marketplace.
//
// Identity:
//   - ID is derived from SourceSite + SourceID (see common.ListingID) and is
//     stable across re-scrapes. Upserts are keyed by ID so a re-scrape updates
//     the existing record, never creates a duplicate.
//
// Mutation rules:
//   - Content fields are written by the scraper, and only while the listing is
//     pending or failed.
//   - Status and attempt fields are written only through the store's
//     claim/release protocol.
//   - A listing is never mutated while in_progress; the claim token marks the
//     worker that owns it.
//   - Listings are never deleted automatically.
type Listing struct {
	ID         string `json:"id"`
	SourceSite string `json:"source_site" validate:"required"` // e.g. "century21"
	SourceID   string `json:"source_id" validate:"required"`   // Listing id on the source site

	// Content fields (scraper-owned)
	Title        string   `json:"title" validate:"required"`
	Description  string   `json:"description"`
	Price        float64  `json:"price" validate:"gt=0"`
	Currency     string   `json:"currency"`
	Location     string   `json:"location" validate:"required"`
	PropertyType string   `json:"property_type"` // Casa, Departamento, ...
	ListingType  string   `json:"listing_type"`  // Venta, Renta
	Bedrooms     int      `json:"bedrooms"`
	Bathrooms    float64  `json:"bathrooms"`
	AreaM2       float64  `json:"area_m2"`
	Features     []string `json:"features,omitempty"`
	Amenities    []string `json:"amenities,omitempty"`
	SourceURL    string   `json:"source_url,omitempty"`

	// ImageRefs is the ordered sequence of image references (URLs or local
	// paths). Order matters: the first image becomes the cover photo.
	ImageRefs []string `json:"image_refs" validate:"min=1"`

	// Publication state (store-owned)
	Status       ListingStatus `json:"status"`
	AttemptCount int           `json:"attempt_count"`
	LastAttempt  time.Time     `json:"last_attempt,omitempty"`
	// LastError holds the classified reason of the most recent failure
	// ("timeout:fields_filled", "session_invalid", ...). Empty on success.
	LastError string `json:"last_error,omitempty"`
	// ClaimToken identifies the worker currently holding the in_progress
	// claim. Empty whenever the listing is not claimed.
	ClaimToken string `json:"claim_token,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	ScrapedAt   time.Time `json:"scraped_at,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// IsTerminal reports whether the listing is out of the automatic retry loop.
// needs_review is terminal for automation: only a manual reset releases it.
func (l *Listing) IsTerminal(maxAttempts int) bool {
	switch l.Status {
	case ListingStatusPublished, ListingStatusNeedsReview:
		return true
	case ListingStatusFailed:
		return maxAttempts > 0 && l.AttemptCount >= maxAttempts
	default:
		return false
	}
}

// Claimable reports whether the listing may be claimed for a posting attempt
func (l *Listing) Claimable() bool {
	return l.Status == ListingStatusPending || l.Status == ListingStatusFailed
}
