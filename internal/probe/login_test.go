package probe

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"visawatch/internal/ratelimit"
)

func loginFixture(t *testing.T) (*Prober, *Runner, *fakePage, *fakeNotifier) {
	t.Helper()
	st, _ := testAccountStore(t)
	page := newFakePage()
	n := &fakeNotifier{}
	p := testProber(t, st, &fakeSessions{page: page}, n)

	r := NewRunner(ratelimit.NewDetector(testLogger()), p.capture, p.timeout, p.retries, testLogger())
	r.sleep = func(context.Context, time.Duration) {}
	return p, r, page, n
}

func TestLoginHappyPath(t *testing.T) {
	p, r, page, _ := loginFixture(t)

	acct := mustAccount(t, p)
	res := p.login(context.Background(), page, r, acct, testLogger())

	if res.Kind != KindOK {
		t.Fatalf("got %v (err=%v), want ok", res.Kind, res.Err)
	}
	if page.navigations[0] != acct.LoginURL {
		t.Errorf("navigated to %q, want %q", page.navigations[0], acct.LoginURL)
	}
	if page.fills[selPassword] != acct.Password {
		t.Errorf("password fill: got %q", page.fills[selPassword])
	}
	for _, sel := range []string{selForceStart, selSubmit, selBookingLink, selBookAppointment, selCookieAccept} {
		if !page.clicked(sel) {
			t.Errorf("step %s was not clicked", sel)
		}
	}
}

func TestLoginStatus429(t *testing.T) {
	p, r, page, _ := loginFixture(t)
	page.navStatus = 429

	res := p.login(context.Background(), page, r, mustAccount(t, p), testLogger())
	if res.Kind != KindRateLimited {
		t.Fatalf("got %v, want rate_limited", res.Kind)
	}
	if len(page.clicks) != 0 {
		t.Error("no login step may run after a 429 response")
	}
	if len(page.navigations) != 1 {
		t.Errorf("got %d navigations, want 1: rate-limiting ends the attempt loop", len(page.navigations))
	}
}

func TestLoginNavigationErrorWithRateLimitText(t *testing.T) {
	p, r, page, _ := loginFixture(t)
	page.navErr = errors.New("net::ERR_ABORTED 429 Too Many Requests")

	res := p.login(context.Background(), page, r, mustAccount(t, p), testLogger())
	if res.Kind != KindRateLimited {
		t.Fatalf("got %v, want rate_limited", res.Kind)
	}
}

func TestLoginHardStepError(t *testing.T) {
	p, r, page, n := loginFixture(t)
	page.clickErr[selSubmit] = errors.New("element is covered by another element")

	res := p.login(context.Background(), page, r, mustAccount(t, p), testLogger())

	if res.Kind != KindHard {
		t.Fatalf("got %v, want hard", res.Kind)
	}
	if len(page.navigations) != 3 {
		t.Errorf("got %d navigations, want 3 full attempts", len(page.navigations))
	}
	if n.count() != 1 {
		t.Fatalf("got %d notifications, want the detailed failure report", n.count())
	}
	if !strings.Contains(n.messages[0], "element is covered") {
		t.Errorf("report %q does not include the final error", n.messages[0])
	}
	if len(n.files[0]) != 2 {
		t.Errorf("report attachments: got %v, want html+png pair", n.files[0])
	}
}
