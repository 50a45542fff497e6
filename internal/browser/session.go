package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"visawatch/internal/probe"
)

// Session adapts one Rod page to the probe.Page interface. It lives for
// exactly one account probe and is closed with it.
type Session struct {
	page   *rod.Page
	logger *slog.Logger
}

// watchDiagnostics subscribes to console API calls and thrown exceptions and
// forwards their text to record. Rate-limiting on this portal often shows up
// only as a failed background XHR logged to the console, never in the DOM.
func (s *Session) watchDiagnostics(ctx context.Context, record func(text string)) {
	if record == nil {
		return
	}
	wait := s.page.Context(ctx).EachEvent(
		func(e *proto.RuntimeConsoleAPICalled) {
			record(consoleText(e))
		},
		func(e *proto.RuntimeExceptionThrown) {
			if e.ExceptionDetails != nil {
				record(exceptionText(e.ExceptionDetails))
			}
		},
	)
	go wait()
}

// Navigate loads url and reports the main document's HTTP status. A status
// of 0 means the response event was not observed before the deadline.
func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) (int, error) {
	p := s.page.Context(ctx).Timeout(timeout)

	var status int
	wait := p.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type == proto.NetworkResourceTypeDocument {
			status = int(e.Response.Status)
			return true
		}
		return false
	})

	if err := p.Navigate(url); err != nil {
		return 0, fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	wait()

	if err := p.WaitLoad(); err != nil {
		s.logger.Warn("browser: wait load timeout", "url", url, "error", err)
	}
	return status, nil
}

// find waits up to timeout for selector, mapping a deadline expiry to
// probe.ErrElementNotFound so the step executor can tell "never appeared"
// from "interaction threw".
func (s *Session) find(ctx context.Context, selector string, timeout time.Duration) (*rod.Element, error) {
	el, err := s.page.Context(ctx).Timeout(timeout).Element(selector)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", probe.ErrElementNotFound, selector)
		}
		return nil, fmt.Errorf("browser: find %s: %w", selector, err)
	}
	return el, nil
}

func (s *Session) Click(ctx context.Context, selector string, timeout time.Duration) error {
	el, err := s.find(ctx, selector, timeout)
	if err != nil {
		return err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: click %s: %w", selector, err)
	}
	return nil
}

func (s *Session) ClickMatching(ctx context.Context, selector, text string, timeout time.Duration) error {
	el, err := s.page.Context(ctx).Timeout(timeout).ElementR(selector, regexp.QuoteMeta(text))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s with text %q", probe.ErrElementNotFound, selector, text)
		}
		return fmt.Errorf("browser: find %s with text %q: %w", selector, text, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: click %s: %w", selector, err)
	}
	return nil
}

func (s *Session) ClickNth(ctx context.Context, selector string, n int) error {
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return fmt.Errorf("browser: query %s: %w", selector, err)
	}
	if n < 0 || n >= len(els) {
		return fmt.Errorf("browser: %s: index %d out of %d elements", selector, n, len(els))
	}
	if err := els[n].Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("browser: click %s[%d]: %w", selector, n, err)
	}
	return nil
}

func (s *Session) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	el, err := s.find(ctx, selector, timeout)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("browser: select %s: %w", selector, err)
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("browser: fill %s: %w", selector, err)
	}
	return nil
}

func (s *Session) BodyText(ctx context.Context) (string, error) {
	el, err := s.page.Context(ctx).Element("body")
	if err != nil {
		return "", fmt.Errorf("browser: body: %w", err)
	}
	text, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("browser: body text: %w", err)
	}
	return text, nil
}

func (s *Session) Text(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	el, err := s.find(ctx, selector, timeout)
	if err != nil {
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", fmt.Errorf("browser: text of %s: %w", selector, err)
	}
	return text, nil
}

func (s *Session) NestedText(ctx context.Context, selector string, n int, child string, timeout time.Duration) (string, error) {
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return "", fmt.Errorf("browser: query %s: %w", selector, err)
	}
	if n < 0 || n >= len(els) {
		return "", fmt.Errorf("browser: %s: index %d out of %d elements", selector, n, len(els))
	}
	sub, err := els[n].Timeout(timeout).Element(child)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s within %s[%d]", probe.ErrElementNotFound, child, selector, n)
		}
		return "", fmt.Errorf("browser: find %s within %s[%d]: %w", child, selector, n, err)
	}
	text, err := sub.Text()
	if err != nil {
		return "", fmt.Errorf("browser: text of %s: %w", child, err)
	}
	return text, nil
}

func (s *Session) Count(ctx context.Context, selector string) (int, error) {
	els, err := s.page.Context(ctx).Elements(selector)
	if err != nil {
		return 0, fmt.Errorf("browser: query %s: %w", selector, err)
	}
	return len(els), nil
}

func (s *Session) HTML(ctx context.Context) (string, error) {
	html, err := s.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("browser: html: %w", err)
	}
	return html, nil
}

func (s *Session) Screenshot(ctx context.Context) ([]byte, error) {
	png, err := s.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return png, nil
}

// Close closes the underlying page, ending the session.
func (s *Session) Close() error {
	return s.page.Close()
}

// consoleText flattens a console API event into one line.
func consoleText(e *proto.RuntimeConsoleAPICalled) string {
	parts := make([]string, 0, len(e.Args))
	for _, arg := range e.Args {
		if arg == nil {
			continue
		}
		if arg.Value.Nil() {
			parts = append(parts, arg.Description)
		} else {
			parts = append(parts, arg.Value.Str())
		}
	}
	return strings.Join(parts, " ")
}

func exceptionText(d *proto.RuntimeExceptionDetails) string {
	if d.Exception != nil && d.Exception.Description != "" {
		return d.Exception.Description
	}
	return d.Text
}
