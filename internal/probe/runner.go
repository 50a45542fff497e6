package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"visawatch/internal/capture"
	"visawatch/internal/ratelimit"
)

const (
	// settleDelay is the pause after a successful click, giving the SPA
	// time to react before the next step.
	settleDelay = 1 * time.Second
	// clickBackoff is the pause before retrying a click that threw.
	clickBackoff = 5 * time.Second
)

// Runner executes single UI actions with bounded retries, consulting the
// rate-limit detector before every attempt so a blocked endpoint is never
// hammered.
type Runner struct {
	detector *ratelimit.Detector
	capture  *capture.Capturer
	logger   *slog.Logger

	timeout time.Duration
	retries int

	// sleep is ctx-aware and injectable for tests.
	sleep func(ctx context.Context, d time.Duration)
}

// NewRunner creates a step executor bound to one session's detector.
func NewRunner(det *ratelimit.Detector, cap *capture.Capturer, timeout time.Duration, retries int, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if retries <= 0 {
		retries = 1
	}
	return &Runner{
		detector: det,
		capture:  cap,
		logger:   logger,
		timeout:  timeout,
		retries:  retries,
		sleep:    sleepCtx,
	}
}

// SafeClick waits for selector and clicks it, retrying up to the configured
// attempt budget.
//
// Outcomes:
//   - KindRateLimited: the detector already flagged this session; the click
//     is never attempted.
//   - KindOK: clicked, settle delay elapsed.
//   - KindSoft: the element never appeared on any attempt and nothing threw.
//   - KindHard: the interaction threw on the final attempt; diagnostics are
//     captured before returning.
func (r *Runner) SafeClick(ctx context.Context, page Page, selector string) Result {
	return r.run(ctx, page, selector, func(ctx context.Context) error {
		return page.Click(ctx, selector, r.timeout)
	})
}

// SafeClickMatching is SafeClick for an element matched by selector plus
// visible text.
func (r *Runner) SafeClickMatching(ctx context.Context, page Page, selector, text string) Result {
	desc := fmt.Sprintf("%s[text=%q]", selector, text)
	return r.run(ctx, page, desc, func(ctx context.Context) error {
		return page.ClickMatching(ctx, selector, text, r.timeout)
	})
}

func (r *Runner) run(ctx context.Context, page Page, desc string, act func(ctx context.Context) error) Result {
	for attempt := 1; attempt <= r.retries; attempt++ {
		if r.Limited(ctx, page) {
			r.logger.Warn("steps: rate limit active, aborting action", "selector", desc)
			return rateLimited()
		}

		err := act(ctx)
		if err == nil {
			r.sleep(ctx, settleDelay)
			return ok()
		}

		if errors.Is(err, ErrElementNotFound) {
			// The bounded wait already spent locating is the only
			// backoff for this path.
			r.logger.Info("steps: element not found",
				"selector", desc, "attempt", attempt, "retries", r.retries)
			continue
		}

		r.logger.Warn("steps: click failed",
			"selector", desc, "attempt", attempt, "retries", r.retries, "error", err)

		if attempt == r.retries {
			r.capture.Save(ctx, page, "click_error")
			return hard(fmt.Errorf("steps: click %s failed after %d attempts: %w", desc, r.retries, err))
		}
		r.sleep(ctx, clickBackoff)
	}
	return soft()
}

// Limited reports whether the current page or the session diagnostics show
// rate-limiting. The single source of truth before and during UI actions.
func (r *Runner) Limited(ctx context.Context, page Page) bool {
	body, err := page.BodyText(ctx)
	if err != nil {
		body = ""
	}
	return r.detector.Limited(body)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
