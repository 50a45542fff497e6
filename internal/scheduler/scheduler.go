// Package scheduler runs the probe cycle: fetch eligible accounts, probe
// them strictly sequentially with inter-account pacing, repeat on a fixed
// period until interrupted. Account failures never cross the loop boundary.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"visawatch/internal/store"
)

// AccountChecker probes one account inside its own browser session.
type AccountChecker interface {
	Check(ctx context.Context, acct store.Account)
}

// Config controls the loop timing.
type Config struct {
	// Interval is the cycle period.
	Interval time.Duration
	// Pacing is the pause between accounts within a cycle: accounts share
	// network egress, and back-to-back probes invite correlated
	// rate-limiting.
	Pacing time.Duration
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = 10 * time.Minute
	}
	if c.Pacing <= 0 {
		c.Pacing = 5 * time.Second
	}
}

// Scheduler drives probe cycles against the account store.
type Scheduler struct {
	store   *store.Store
	checker AccountChecker
	config  Config
	logger  *slog.Logger
}

// New creates a Scheduler.
func New(s *store.Store, checker AccountChecker, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{store: s, checker: checker, config: cfg, logger: logger}
}

// Run executes one cycle immediately, then one per interval, until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler: started",
		"interval", s.config.Interval, "pacing", s.config.Pacing)

	s.RunCycle(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler: stopped")
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// RunCycle probes every currently-eligible account once. A cycle with no
// eligible accounts is a no-op, not an error; a store failure skips the
// cycle and the loop continues.
func (s *Scheduler) RunCycle(ctx context.Context) {
	s.logger.Info("scheduler: cycle started")

	accounts, err := s.store.EligibleAccounts(ctx)
	if err != nil {
		s.logger.Error("scheduler: fetching eligible accounts failed", "error", err)
		return
	}
	if len(accounts) == 0 {
		s.logger.Info("scheduler: no eligible accounts")
		return
	}

	for i, acct := range accounts {
		if ctx.Err() != nil {
			return
		}

		s.logger.Info("scheduler: probing account",
			"account_id", acct.ID, "location", acct.Location)
		s.checker.Check(ctx, acct)

		if i < len(accounts)-1 {
			sleepCtx(ctx, s.config.Pacing)
		}
	}

	s.logger.Info("scheduler: cycle finished", "accounts", len(accounts))
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
