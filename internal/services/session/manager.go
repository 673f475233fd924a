package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"

	"github.com/listup/publisher/internal/common"
	"github.com/listup/publisher/internal/interfaces"
	"github.com/listup/publisher/internal/models"
)

// loginCookie is the cookie Facebook sets for an authenticated user.
// Its absence after navigation is the authentication-loss signal.
const loginCookie = "c_user"

// Manager implements the SessionManager interface on top of a chromedp
// browser context. Each worker owns its own Manager, so at most one session
// is ever checked out of it; the scheduler bounds how many managers run
// concurrently.
type Manager struct {
	facebook common.FacebookConfig
	config   common.SessionConfig
	logger   arbor.ILogger

	email    string
	password string

	loginTimeout time.Duration
	probeTimeout time.Duration

	mu      sync.Mutex
	current *models.Session

	// allocator contexts torn down on Close
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewManager creates a session manager bound to one account. Credentials
// come from the environment; they are never logged.
func NewManager(facebook common.FacebookConfig, config common.SessionConfig, logger arbor.ILogger) (*Manager, error) {
	email, password, err := common.FacebookCredentials()
	if err != nil {
		return nil, err
	}

	return &Manager{
		facebook:     facebook,
		config:       config,
		logger:       logger,
		email:        email,
		password:     password,
		loginTimeout: common.ParseDurationOr(config.LoginTimeout, 45*time.Second),
		probeTimeout: common.ParseDurationOr(config.ProbeTimeout, 10*time.Second),
	}, nil
}

// Acquire returns the cached session if the liveness probe passes, otherwise
// performs a full login sequence. Login failures are retried at most
// MaxLoginAttempts times before surfacing an authentication error; silent
// unbounded retries risk locking the account.
func (m *Manager) Acquire(ctx context.Context) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.Valid {
		if err := m.probe(ctx, m.current); err == nil {
			m.logger.Debug().
				Str("session_id", m.current.ID).
				Msg("Reusing cached session")
			return m.current, nil
		} else {
			m.logger.Info().
				Str("session_id", m.current.ID).
				Err(err).
				Msg("Cached session failed liveness probe, discarding")
			m.teardownLocked()
		}
	}

	maxAttempts := m.config.MaxLoginAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		session, err := m.login(ctx)
		if err == nil {
			m.current = session
			m.logger.Info().
				Str("session_id", session.ID).
				Int("attempt", attempt).
				Msg("Session established")
			return session, nil
		}
		lastErr = err
		m.logger.Warn().
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Err(err).
			Msg("Login attempt failed")
	}

	return nil, &interfaces.AuthenticationError{Attempts: maxAttempts, Err: lastErr}
}

// Invalidate marks a session unusable and tears down its browser context.
// Called on any authentication-loss signal; an invalidated session is never
// reused.
func (m *Manager) Invalidate(session *models.Session) {
	if session == nil {
		return
	}
	session.Invalidate()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.current.ID == session.ID {
		m.logger.Info().
			Str("session_id", session.ID).
			Msg("Session invalidated, next acquire performs fresh login")
		m.teardownLocked()
	}
}

// Close releases all browser resources
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
	return nil
}

// teardownLocked cancels the browser and allocator contexts (mu held)
func (m *Manager) teardownLocked() {
	if m.current != nil {
		if m.current.Cancel != nil {
			m.current.Cancel()
		}
		m.current = nil
	}
	if m.allocCancel != nil {
		m.allocCancel()
		m.allocCtx = nil
		m.allocCancel = nil
	}
}

// newBrowser creates a fresh allocator + browser context pair
func (m *Manager) newBrowser() (context.Context, context.CancelFunc, error) {
	allocatorOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", m.facebook.Headless),
		chromedp.Flag("disable-gpu", m.facebook.DisableGPU),
		chromedp.Flag("no-sandbox", m.facebook.NoSandbox),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.UserAgent(m.facebook.UserAgent),
		chromedp.WindowSize(1920, 1080),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Startup test before handing the browser to a caller
	testCtx, testCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer testCancel()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocCancel()
		return nil, nil, fmt.Errorf("browser failed startup test: %w", err)
	}

	m.allocCtx = allocCtx
	m.allocCancel = allocCancel

	cancel := func() {
		browserCancel()
	}
	return browserCtx, cancel, nil
}

// login runs the full login sequence: open the login page, fill the
// credential form, submit, and verify the authenticated cookie appears.
func (m *Manager) login(ctx context.Context) (*models.Session, error) {
	browserCtx, cancel, err := m.newBrowser()
	if err != nil {
		return nil, err
	}

	loginCtx, loginCancel := context.WithTimeout(browserCtx, m.loginTimeout)
	defer loginCancel()

	loginURL := strings.TrimSuffix(m.facebook.BaseURL, "/") + "/login"

	err = chromedp.Run(loginCtx,
		chromedp.Navigate(loginURL),
		chromedp.WaitVisible(`#email`, chromedp.ByID),
		chromedp.SendKeys(`#email`, m.email, chromedp.ByID),
		chromedp.SendKeys(`#pass`, m.password, chromedp.ByID),
		chromedp.Click(`button[name="login"]`, chromedp.ByQuery),
		chromedp.WaitReady(`body`, chromedp.ByQuery),
	)
	if err != nil {
		cancel()
		if m.allocCancel != nil {
			m.allocCancel()
			m.allocCtx = nil
			m.allocCancel = nil
		}
		return nil, fmt.Errorf("login sequence failed: %w", err)
	}

	authenticated, err := hasLoginCookie(loginCtx)
	if err != nil || !authenticated {
		var currentURL string
		_ = chromedp.Run(loginCtx, chromedp.Location(&currentURL))
		cancel()
		if m.allocCancel != nil {
			m.allocCancel()
			m.allocCtx = nil
			m.allocCancel = nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to verify login: %w", err)
		}
		if strings.Contains(currentURL, "checkpoint") {
			return nil, fmt.Errorf("account checkpoint encountered at %s", currentURL)
		}
		return nil, fmt.Errorf("login did not authenticate (landed on %s)", currentURL)
	}

	return models.NewSession(m.email, browserCtx, cancel), nil
}

// probe performs a lightweight liveness check on a cached session: navigate
// to a cheap page and verify the authenticated cookie is still present.
func (m *Manager) probe(ctx context.Context, session *models.Session) error {
	probeCtx, probeCancel := context.WithTimeout(session.BrowserCtx, m.probeTimeout)
	defer probeCancel()

	probeURL := m.config.ProbeURL
	if probeURL == "" {
		probeURL = m.facebook.BaseURL
	}

	if err := chromedp.Run(probeCtx,
		chromedp.Navigate(probeURL),
		chromedp.WaitReady(`body`, chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("probe navigation failed: %w", err)
	}

	authenticated, err := hasLoginCookie(probeCtx)
	if err != nil {
		return fmt.Errorf("probe cookie check failed: %w", err)
	}
	if !authenticated {
		return fmt.Errorf("session lost authentication cookie")
	}
	return nil
}

// hasLoginCookie checks the browser's cookie jar for the authenticated-user
// cookie
func hasLoginCookie(ctx context.Context) (bool, error) {
	var found bool
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cookies, err := storage.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		for _, c := range cookies {
			if c.Name == loginCookie && c.Value != "" {
				found = true
				return nil
			}
		}
		return nil
	}))
	return found, err
}
