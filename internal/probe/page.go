package probe

import (
	"context"
	"errors"
	"time"
)

// ErrElementNotFound is returned by Page implementations when a selector
// does not match anything within the allowed wait. It is the soft-failure
// signal: the step executor retries it without diagnostics, as opposed to an
// interaction error which escalates.
var ErrElementNotFound = errors.New("element not found")

// Page is the interaction surface the probe needs from a browser page.
// internal/browser implements it over Rod; tests implement it in memory.
type Page interface {
	// Navigate loads url and returns the HTTP status of the main document
	// response, or 0 if it could not be observed.
	Navigate(ctx context.Context, url string, timeout time.Duration) (int, error)

	// Click waits up to timeout for selector and clicks it.
	Click(ctx context.Context, selector string, timeout time.Duration) error

	// ClickMatching waits for an element matching selector whose text
	// contains text, and clicks it.
	ClickMatching(ctx context.Context, selector, text string, timeout time.Duration) error

	// ClickNth clicks the n-th element currently matching selector.
	// It does not wait for elements to appear.
	ClickNth(ctx context.Context, selector string, n int) error

	// Fill waits for selector and types value into it. No retry semantics:
	// a single direct fill.
	Fill(ctx context.Context, selector, value string, timeout time.Duration) error

	// BodyText returns the visible text of the page body.
	BodyText(ctx context.Context) (string, error)

	// Text waits up to timeout for selector and returns its text.
	Text(ctx context.Context, selector string, timeout time.Duration) (string, error)

	// NestedText returns the text of child inside the n-th element
	// currently matching selector.
	NestedText(ctx context.Context, selector string, n int, child string, timeout time.Duration) (string, error)

	// Count returns how many elements currently match selector, without
	// waiting.
	Count(ctx context.Context, selector string) (int, error)

	// HTML returns the serialised DOM.
	HTML(ctx context.Context) (string, error)

	// Screenshot returns a PNG of the current viewport.
	Screenshot(ctx context.Context) ([]byte, error)
}

// Session is a Page tied to one browser session, closed when the probe for
// one account ends.
type Session interface {
	Page
	Close() error
}

// SessionFactory opens a fresh browser session with the given detector wired
// to the session's console and network diagnostics.
type SessionFactory interface {
	NewSession(ctx context.Context, record func(text string)) (Session, error)
}
