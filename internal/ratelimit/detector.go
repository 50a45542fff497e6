// Package ratelimit detects the portal's rate-limiting responses from either
// rendered page text or background console/network diagnostics. One Detector
// lives for exactly one browser session.
package ratelimit

import (
	"log/slog"
	"strings"
	"sync"
)

// pageIndicators match rate-limiting that surfaces as rendered content or as
// the text of a thrown error.
var pageIndicators = []string{"429", "Too Many Requests"}

// consoleIndicators match rate-limiting that only surfaces through background
// network events relayed to the console (failed XHRs, blocked CORS preflights).
var consoleIndicators = []string{"429", "Too Many Requests", "CORS header", "Http failure response"}

// TailSize is how many buffered diagnostic lines are kept for reporting.
const TailSize = 10

// Detector accumulates diagnostic lines from a browser session and holds a
// sticky flag once any of them indicates rate-limiting.
type Detector struct {
	logger *slog.Logger

	mu       sync.Mutex
	lines    []string
	detected bool
}

// NewDetector creates a session-scoped detector.
func NewDetector(logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{logger: logger}
}

// Record appends a diagnostic line and sets the sticky flag if the line
// matches a rate-limit indicator. Safe to call from the event goroutine.
func (d *Detector) Record(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lines = append(d.lines, text)
	if len(d.lines) > TailSize*4 {
		d.lines = d.lines[len(d.lines)-TailSize:]
	}

	for _, ind := range consoleIndicators {
		if strings.Contains(text, ind) {
			if !d.detected {
				d.logger.Warn("ratelimit: indicator in console", "line", text)
			}
			d.detected = true
			return
		}
	}
}

// Detected reports whether any recorded diagnostic indicated rate-limiting.
// The flag is sticky until Reset.
func (d *Detector) Detected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.detected
}

// Limited is the single source of truth consulted before UI actions: true if
// the page text itself shows a rate-limit response, or the sticky flag is set.
func (d *Detector) Limited(pageText string) bool {
	if IndicatedByText(pageText) {
		return true
	}
	return d.Detected()
}

// Reset clears the sticky flag after a rate-limit episode has been handled.
func (d *Detector) Reset() {
	d.mu.Lock()
	d.detected = false
	d.mu.Unlock()
}

// Tail returns up to the last n recorded lines, oldest first.
func (d *Detector) Tail(n int) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n <= 0 || len(d.lines) == 0 {
		return nil
	}
	if n > len(d.lines) {
		n = len(d.lines)
	}
	out := make([]string, n)
	copy(out, d.lines[len(d.lines)-n:])
	return out
}

// IndicatedByText reports whether page or error text contains a rate-limit
// indicator. Substring matching is inherited from the portal's behaviour:
// the status code can appear anywhere in an error string.
func IndicatedByText(s string) bool {
	for _, ind := range pageIndicators {
		if strings.Contains(s, ind) {
			return true
		}
	}
	return false
}
