package poster

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/listup/publisher/internal/models"
)

// pageSignals is a snapshot of the browser state taken after a stage error,
// used to turn an opaque chromedp error into a classified failure reason
type pageSignals struct {
	URL      string
	BodyText string
}

// readPageSignals captures the current URL and body text on a short
// deadline against the browser context (the failed stage's context is
// usually already expired).
func readPageSignals(browserCtx context.Context) pageSignals {
	diagCtx, cancel := context.WithTimeout(browserCtx, 5*time.Second)
	defer cancel()

	var signals pageSignals
	_ = chromedp.Run(diagCtx, chromedp.Location(&signals.URL))
	_ = chromedp.Run(diagCtx, chromedp.Text(`body`, &signals.BodyText, chromedp.ByQuery))
	return signals
}

// classifyFailure maps a stage error onto the failure taxonomy. The UI gives
// no structured errors, so classification reads the page itself:
//
//   - a login or checkpoint URL means the session lost authentication
//   - a throttling marker in the body means the platform rate limited us
//   - a page that loaded but shows none of the expected structure is an
//     unexpected UI state
//   - otherwise a deadline is a plain stage timeout
func classifyFailure(err error, stage models.Stage, signals pageSignals, rateLimitMarkers []string) models.Outcome {
	if sessionLost(signals) {
		return models.Failure(models.ReasonSessionInvalid, stage, "session redirected to login")
	}

	if marker := rateLimitMarker(signals, rateLimitMarkers); marker != "" {
		return models.Failure(models.ReasonRateLimited, stage, "platform throttling: "+marker)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return models.Failure(models.ReasonTimeout, stage, err.Error())
	}

	return models.Failure(models.ReasonUnexpectedUIState, stage, err.Error())
}

// sessionLost reports whether the page signals indicate lost authentication
func sessionLost(signals pageSignals) bool {
	url := strings.ToLower(signals.URL)
	return strings.Contains(url, "/login") ||
		strings.Contains(url, "login.php") ||
		strings.Contains(url, "/checkpoint")
}

// rateLimitMarker returns the first throttling marker found in the body
// text, or empty
func rateLimitMarker(signals pageSignals, markers []string) string {
	body := strings.ToLower(signals.BodyText)
	for _, marker := range markers {
		if strings.Contains(body, strings.ToLower(marker)) {
			return marker
		}
	}
	return ""
}
