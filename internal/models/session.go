package models

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Session is an authenticated browser automation context bound to one
// account. A session is owned by exactly one worker at a time and is
// discarded, never reused, once any authentication-loss signal is seen.
type Session struct {
	ID           string    `json:"id"`
	AccountEmail string    `json:"account_email"`
	CreatedAt    time.Time `json:"created_at"`
	Valid        bool      `json:"valid"`

	// BrowserCtx is the chromedp browser context all page actions run
	// against. Cancel tears the browser down; both are managed by the
	// session manager and never serialized.
	BrowserCtx context.Context    `json:"-"`
	Cancel     context.CancelFunc `json:"-"`
}

// NewSession creates a session bound to the given account
func NewSession(accountEmail string, browserCtx context.Context, cancel context.CancelFunc) *Session {
	return &Session{
		ID:           uuid.New().String(),
		AccountEmail: accountEmail,
		CreatedAt:    time.Now(),
		Valid:        true,
		BrowserCtx:   browserCtx,
		Cancel:       cancel,
	}
}

// Invalidate marks the session unusable
func (s *Session) Invalidate() {
	s.Valid = false
}
