// Package probe runs one full login+search attempt for one account inside
// one browser session, classifying every outcome as soft, rate-limited, or
// hard and keeping account failures isolated from the scheduler loop.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"strings"
	"time"

	"visawatch/internal/capture"
	"visawatch/internal/notify"
	"visawatch/internal/ratelimit"
	"visawatch/internal/store"
)

// Prober probes accounts: one fresh browser session, one login attempt
// budget, one slot search per eligible account.
type Prober struct {
	store    *store.Store
	sessions SessionFactory
	capture  *capture.Capturer
	notifier notify.Notifier
	logger   *slog.Logger

	cooldown time.Duration
	timeout  time.Duration
	retries  int

	// Injectable for tests.
	sleep    func(ctx context.Context, d time.Duration)
	now      func() time.Time
	randIntN func(n int) int
}

// Config carries the probe tunables from the top-level configuration.
type Config struct {
	// Cooldown is how long a rate-limited account is paused.
	Cooldown time.Duration
	// Timeout bounds each element wait and navigation.
	Timeout time.Duration
	// Retries bounds login attempts and per-click attempts.
	Retries int
}

// New creates a Prober.
func New(st *store.Store, sessions SessionFactory, cap *capture.Capturer, n notify.Notifier, cfg Config, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	if n == nil {
		n = notify.Nop{}
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	return &Prober{
		store:    st,
		sessions: sessions,
		capture:  cap,
		notifier: n,
		logger:   logger,
		cooldown: cfg.Cooldown,
		timeout:  cfg.Timeout,
		retries:  cfg.Retries,
		sleep:    sleepCtx,
		now:      time.Now,
		randIntN: rand.IntN,
	}
}

// Check probes one account. Never returns an error: every failure mode ends
// inside this account's boundary, reported through logs and notifications.
func (p *Prober) Check(ctx context.Context, acct store.Account) {
	logger := p.logger.With("account_id", acct.ID, "location", acct.Location)

	// The detector must be wired before any navigation so no early console
	// diagnostic is missed.
	det := ratelimit.NewDetector(logger)

	sess, err := p.sessions.NewSession(ctx, det.Record)
	if err != nil {
		logger.Error("probe: open browser session failed", "error", err)
		p.notifier.Notify(ctx, fmt.Sprintf("🔥 Critical error probing %s:\n%v", acct.Location, err))
		return
	}
	defer sess.Close()

	defer func() {
		// Rod surfaces some CDP faults as panics; translate them into the
		// critical-error path so the loop survives.
		if v := recover(); v != nil {
			logger.Error("probe: critical error", "panic", v)
			htmlPath, pngPath := p.capture.Save(ctx, sess, "critical_error")
			msg := fmt.Sprintf("🔥 Critical error probing %s:\n%v\n%s", acct.Location, v, debug.Stack())
			var files []string
			if htmlPath != "" && pngPath != "" {
				files = []string{htmlPath, pngPath}
			}
			p.notifier.Notify(ctx, msg, files...)
		}
	}()

	// Neutral status write: stamps last_check and clears any stale block
	// now that the account is eligible again. A store failure ends this
	// probe but not the loop.
	if err := p.store.UpdateStatus(ctx, acct.ID, false, nil); err != nil {
		logger.Error("probe: status reset failed", "error", err)
		return
	}

	runner := NewRunner(det, p.capture, p.timeout, p.retries, logger)

	res := p.login(ctx, sess, runner, acct, logger)
	switch res.Kind {
	case KindRateLimited:
		p.handleRateLimited(ctx, sess, det, acct, logger)
		return
	case KindHard, KindSoft:
		logger.Warn("probe: could not log in", "error", res.Err)
		p.notifier.Notify(ctx, fmt.Sprintf("⚠️ Could not log into the %s account", acct.Location))
		return
	}

	sres := p.search(ctx, sess, runner, acct, logger)
	switch sres.Kind {
	case KindOK:
		logger.Info("probe: slot secured")
	case KindRateLimited:
		p.handleRateLimited(ctx, sess, det, acct, logger)
	case KindSoft:
		logger.Info("probe: no availability")
	case KindHard:
		logger.Warn("probe: search failed", "error", sres.Err)
	}
}

// handleRateLimited is the single rate-limit episode handler: diagnostics,
// account cooldown, notification with the buffered console tail, detector
// reset. Terminal for the current probe.
func (p *Prober) handleRateLimited(ctx context.Context, page Page, det *ratelimit.Detector, acct store.Account, logger *slog.Logger) {
	htmlPath, pngPath := p.capture.Save(ctx, page, "429_error")

	next := p.now().Add(p.cooldown)
	if err := p.store.UpdateStatus(ctx, acct.ID, true, &next); err != nil {
		logger.Error("probe: cooldown update failed", "error", err)
	}
	logger.Warn("probe: rate limited, account paused",
		"cooldown", p.cooldown, "next_check", next.Format(time.RFC3339))

	msg := fmt.Sprintf("⏳ Rate limited on the %s account. Paused for %d min.\nLast console lines:\n%s",
		acct.Location, int(p.cooldown.Minutes()), strings.Join(det.Tail(ratelimit.TailSize), "\n"))
	if htmlPath != "" && pngPath != "" {
		msg += fmt.Sprintf("\nFiles for analysis:\nHTML: %s\nScreenshot: %s", htmlPath, pngPath)
	}
	p.notifier.Notify(ctx, msg)

	det.Reset()
}
