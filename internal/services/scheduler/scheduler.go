package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/listup/publisher/internal/common"
	"github.com/listup/publisher/internal/interfaces"
	"github.com/listup/publisher/internal/models"
)

// SessionManagerFactory builds one session manager per worker. Sessions are
// never shared across workers, so each worker owns its own manager and the
// browser behind it.
type SessionManagerFactory func() (interfaces.SessionManager, error)

// Service is the automation scheduler: it decides which listings to attempt
// next, bounds concurrency, paces attempts to a human cadence, and owns all
// retry decisions. The posting machine itself never retries.
type Service struct {
	config   common.PublisherConfig
	storage  interfaces.ListingStorage
	resolver interfaces.AssetResolver
	poster   interfaces.Poster
	sessions SessionManagerFactory
	logger   arbor.ILogger

	backoff BackoffPolicy
	pacing  time.Duration
	cron    *cron.Cron

	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	passCh  chan struct{}
	jobs    chan string
}

// NewService creates the automation scheduler
func NewService(config common.PublisherConfig, storage interfaces.ListingStorage, resolver interfaces.AssetResolver, poster interfaces.Poster, sessions SessionManagerFactory, logger arbor.ILogger) *Service {
	return &Service{
		config:   config,
		storage:  storage,
		resolver: resolver,
		poster:   poster,
		sessions: sessions,
		logger:   logger,
		backoff: BackoffPolicy{
			Base:                common.ParseDurationOr(config.BackoffBase, 2*time.Minute),
			Cap:                 common.ParseDurationOr(config.BackoffCap, 2*time.Hour),
			RateLimitMultiplier: config.RateLimitMultiplier,
		},
		pacing: common.ParseDurationOr(config.PacingInterval, 90*time.Second),
		passCh: make(chan struct{}, 1),
	}
}

// Policy returns the eligibility policy derived from configuration
func (s *Service) Policy() interfaces.EligibilityPolicy {
	return interfaces.EligibilityPolicy{
		MaxAttempts: s.config.MaxAttempts,
		Backoff:     s.backoff.Interval,
	}
}

// Start launches the worker pool and the cron-driven publish passes
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	concurrency := s.config.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.jobs = make(chan string, concurrency*4)

	for i := 0; i < concurrency; i++ {
		s.wg.Add(1)
		go s.workerLoop(i)
	}

	s.wg.Add(1)
	go s.dispatchLoop()

	s.cron = cron.New()
	schedule := s.config.Schedule
	if schedule == "" {
		schedule = "*/5 * * * *"
	}
	if _, err := s.cron.AddFunc(schedule, s.TriggerPass); err != nil {
		s.cancel()
		return fmt.Errorf("failed to register publish schedule: %w", err)
	}
	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("schedule", schedule).
		Int("concurrency", concurrency).
		Dur("pacing", s.pacing).
		Int("max_attempts", s.config.MaxAttempts).
		Msg("Automation scheduler started")

	// Pick up whatever is already pending
	s.TriggerPass()

	return nil
}

// Stop cancels in-flight attempts and waits for workers to exit. Workers
// release their claims on the way out, so cancelled listings land in failed
// (or needs_review past the submit point), never stuck in_progress.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	if s.cron != nil {
		s.cron.Stop()
	}
	s.cancel()
	s.wg.Wait()

	s.logger.Info().Msg("Automation scheduler stopped")
}

// TriggerPass requests a selection pass. Coalesces: a pass already queued
// absorbs the request.
func (s *Service) TriggerPass() {
	select {
	case s.passCh <- struct{}{}:
	default:
	}
}

// dispatchLoop runs selection passes and feeds eligible listings to workers
func (s *Service) dispatchLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.passCh:
		}

		eligible, err := s.storage.ListEligible(s.ctx, time.Now(), s.Policy())
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to select eligible listings")
			continue
		}
		if len(eligible) == 0 {
			continue
		}

		s.logger.Info().
			Int("eligible", len(eligible)).
			Msg("Publish pass selected listings")

		for _, listing := range eligible {
			select {
			case <-s.ctx.Done():
				return
			case s.jobs <- listing.ID:
			default:
				// Workers are saturated; the next pass will pick it up
			}
		}
	}
}

// workerLoop processes one listing at a time against the worker's own
// session, pacing attempts to a human cadence independent of the
// concurrency bound
func (s *Service) workerLoop(workerIndex int) {
	defer s.wg.Done()

	sessionManager, err := s.sessions()
	if err != nil {
		s.logger.Error().
			Int("worker_index", workerIndex).
			Err(err).
			Msg("Worker could not build a session manager")
		return
	}
	defer sessionManager.Close()

	limiter := rate.NewLimiter(rate.Every(s.pacing), 1)

	s.logger.Debug().
		Int("worker_index", workerIndex).
		Msg("Worker started")

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Debug().Int("worker_index", workerIndex).Msg("Worker exiting")
			return
		case listingID := <-s.jobs:
			if err := limiter.Wait(s.ctx); err != nil {
				return
			}
			s.processListing(workerIndex, sessionManager, listingID)
		}
	}
}

// processListing runs one full claim -> resolve -> acquire -> post ->
// release cycle for one listing
func (s *Service) processListing(workerIndex int, sessionManager interfaces.SessionManager, listingID string) {
	claimToken := uuid.New().String()

	listing, err := s.storage.Claim(s.ctx, listingID, claimToken)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotClaimable) {
			// Another worker holds it, or its state changed since selection
			s.logger.Debug().
				Str("listing_id", listingID).
				Msg("Listing no longer claimable, skipping")
			return
		}
		s.logger.Error().
			Str("listing_id", listingID).
			Err(err).
			Msg("Failed to claim listing")
		return
	}

	s.logger.Info().
		Int("worker_index", workerIndex).
		Str("listing_id", listing.ID).
		Int("attempt_count", listing.AttemptCount).
		Msg("Posting attempt claimed")

	// Images are resolved before any session work: a listing with
	// unresolvable assets must never cost a login.
	images, err := s.resolver.Resolve(s.ctx, listing)
	if err != nil {
		reason := models.ReasonValidation
		var unavailable *interfaces.AssetUnavailableError
		if errors.As(err, &unavailable) {
			reason = models.ReasonAssetUnavailable
		}
		s.release(listing.ID, claimToken, models.Failure(reason, "", err.Error()))
		return
	}

	session, err := sessionManager.Acquire(s.ctx)
	if err != nil {
		if s.ctx.Err() != nil {
			s.release(listing.ID, claimToken, models.Failure(models.ReasonCancelled, "", "shutdown before session acquisition"))
			return
		}
		s.release(listing.ID, claimToken, models.Failure(models.ReasonSessionInvalid, "", err.Error()))
		return
	}

	attempt := s.poster.AttemptPost(s.ctx, listing, session, images)

	// Session loss must force a fresh login before any retry
	if attempt.Outcome.Kind == models.OutcomeFailure && attempt.Outcome.Reason == models.ReasonSessionInvalid {
		sessionManager.Invalidate(session)
	}

	s.release(listing.ID, claimToken, attempt.Outcome)
}

// release writes the attempt result back. Runs on a background context:
// the claim must be released even during shutdown.
func (s *Service) release(listingID, claimToken string, outcome models.Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	listing, err := s.storage.Release(ctx, listingID, claimToken, interfaces.AttemptResult{
		Outcome:     outcome,
		CompletedAt: time.Now(),
	})
	if err != nil {
		s.logger.Error().
			Str("listing_id", listingID).
			Str("outcome", outcome.String()).
			Err(err).
			Msg("Failed to release listing claim")
		return
	}

	event := s.logger.Info()
	if outcome.Kind != models.OutcomeSuccess {
		event = s.logger.Warn()
	}
	event.
		Str("listing_id", listingID).
		Str("outcome", outcome.String()).
		Str("status", string(listing.Status)).
		Int("attempt_count", listing.AttemptCount).
		Msg("Posting attempt finished")
}
