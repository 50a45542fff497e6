package probe

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"visawatch/internal/ratelimit"
	"visawatch/internal/store"
)

// loginBackoff is the pause between full login attempts.
const loginBackoff = 10 * time.Second

// Login step selectors, fixed by the portal's booking workflow.
const (
	selForceStart      = "#forceStart"
	selPassword        = "#password"
	selSubmit          = "#submit"
	selBookingLink     = "#appointmentBookingLink"
	selBookAppointment = "#book-appointment"
	selCookieAccept    = "#onetrust-accept-btn-handler"
)

// login drives the login state machine: navigate, run the fixed action
// sequence, retry the whole thing on soft failure, classify rate-limiting,
// and report a hard failure once the attempt budget is exhausted.
func (p *Prober) login(ctx context.Context, page Page, runner *Runner, acct store.Account, logger *slog.Logger) Result {
	var lastErr error

	for attempt := 1; attempt <= p.retries; attempt++ {
		logger.Info("probe: login attempt", "attempt", attempt, "retries", p.retries)

		status, err := page.Navigate(ctx, acct.LoginURL, p.timeout)
		if err != nil {
			if ratelimit.IndicatedByText(err.Error()) {
				logger.Warn("probe: rate limited during navigation", "error", err)
				return rateLimited()
			}
			lastErr = err
			logger.Warn("probe: navigation failed", "attempt", attempt, "error", err)
			if attempt < p.retries {
				p.sleep(ctx, loginBackoff)
			}
			continue
		}

		if status == http.StatusTooManyRequests || runner.Limited(ctx, page) {
			logger.Warn("probe: rate limited loading login page", "status", status)
			return rateLimited()
		}

		res := p.loginActions(ctx, page, runner, acct.Password, logger)
		switch res.Kind {
		case KindOK:
			return ok()
		case KindRateLimited:
			return res
		case KindSoft:
			// An expected element never appeared. Retry the whole login
			// from navigation without extra backoff.
			continue
		case KindHard:
			if ratelimit.IndicatedByText(res.Err.Error()) {
				return rateLimited()
			}
			lastErr = res.Err
			logger.Warn("probe: login error", "attempt", attempt, "error", res.Err)
			if attempt < p.retries {
				p.sleep(ctx, loginBackoff)
			}
		}
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("login sequence never completed")
	}

	htmlPath, pngPath := p.capture.Save(ctx, page, "login_error")
	msg := fmt.Sprintf("Login failed after %d attempts for %s:\n%v\n%s",
		p.retries, acct.Location, lastErr, debug.Stack())
	var files []string
	if htmlPath != "" && pngPath != "" {
		files = []string{htmlPath, pngPath}
	}
	p.notifier.Notify(ctx, msg, files...)

	return hard(fmt.Errorf("probe: login failed after %d attempts: %w", p.retries, lastErr))
}

// loginActions runs the fixed ordered sequence of the portal's login flow.
// The password fill is a single direct fill; every other step goes through
// the step executor. The first non-OK step result ends the sequence.
func (p *Prober) loginActions(ctx context.Context, page Page, runner *Runner, password string, logger *slog.Logger) Result {
	steps := []struct {
		selector string
		desc     string
	}{
		{selForceStart, "pressing force start"},
		{selPassword, "entering password"},
		{selSubmit, "submitting credentials"},
		{selBookingLink, "opening appointment booking"},
		{selBookAppointment, "starting booking flow"},
		{selCookieAccept, "accepting cookies"},
	}

	for _, step := range steps {
		logger.Info("probe: " + step.desc)

		if step.selector == selPassword {
			if err := page.Fill(ctx, selPassword, password, p.timeout); err != nil {
				return hard(fmt.Errorf("probe: fill password: %w", err))
			}
			continue
		}

		if res := runner.SafeClick(ctx, page, step.selector); res.Kind != KindOK {
			return res
		}
	}
	return ok()
}
