package probe

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCheckRateLimitedPageBlocksAccount(t *testing.T) {
	st, acct := testAccountStore(t)
	page := newFakePage()
	page.body = "HTTP ERROR 429 Too Many Requests"
	sessions := &fakeSessions{
		page:        page,
		injectLines: []string{"Http failure response for /api/slots: 429"},
	}
	n := &fakeNotifier{}
	p := testProber(t, st, sessions, n)

	before := time.Now()
	p.Check(context.Background(), acct)
	after := time.Now()

	// No login step may have run against a rate-limited page.
	if len(page.clicks) != 0 {
		t.Errorf("clicks on a rate-limited page: %v", page.clicks)
	}

	var blocked int
	var nextUnix int64
	if err := st.DB.QueryRow(
		`SELECT is_blocked, next_check FROM accounts WHERE id = ?`, acct.ID,
	).Scan(&blocked, &nextUnix); err != nil {
		t.Fatalf("read row: %v", err)
	}
	if blocked != 1 {
		t.Fatal("account must be blocked after a rate-limit episode")
	}

	// next_check ≈ now + 30 min cooldown.
	next := time.Unix(nextUnix, 0)
	lo := before.Add(30*time.Minute - time.Second)
	hi := after.Add(30*time.Minute + time.Second)
	if next.Before(lo) || next.After(hi) {
		t.Errorf("next_check %v outside [%v, %v]", next, lo, hi)
	}

	if n.count() != 1 {
		t.Fatalf("got %d notifications, want exactly 1", n.count())
	}
	msg := n.messages[0]
	if !strings.Contains(msg, "Rate limited") {
		t.Errorf("notification %q does not mention rate limiting", msg)
	}
	if !strings.Contains(msg, "Http failure response for /api/slots: 429") {
		t.Errorf("notification %q does not include the buffered console lines", msg)
	}
}

func TestCheckCleanProbeResetsBlock(t *testing.T) {
	st, acct := testAccountStore(t)

	// Simulate a previous rate-limit episode whose cooldown has expired.
	past := time.Now().Add(-time.Minute)
	if err := st.UpdateStatus(context.Background(), acct.ID, true, &past); err != nil {
		t.Fatalf("block: %v", err)
	}

	// Happy portal, but no slots: login succeeds, search finds nothing.
	page := newFakePage()
	page.counts[selSlots] = 0
	n := &fakeNotifier{}
	p := testProber(t, st, &fakeSessions{page: page}, n)

	p.Check(context.Background(), acct)

	accounts, err := st.EligibleAccounts(context.Background())
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}
	if len(accounts) != 1 || accounts[0].IsBlocked {
		t.Fatal("a clean probe must clear the stale block")
	}
	if accounts[0].LastCheck == nil {
		t.Fatal("last_check must be stamped by the probe")
	}
	if page.fills[selPassword] != "secret" {
		t.Errorf("password fill: got %q", page.fills[selPassword])
	}
	if n.count() != 0 {
		t.Errorf("no-availability probe must stay silent, got %d notifications", n.count())
	}
}

func TestCheckLoginExhaustionNotifies(t *testing.T) {
	st, acct := testAccountStore(t)
	page := newFakePage()
	// The force-start button never renders: soft failure every attempt.
	page.notFound[selForceStart] = true
	n := &fakeNotifier{}
	p := testProber(t, st, &fakeSessions{page: page}, n)

	p.Check(context.Background(), acct)

	// The whole login restarts from navigation on each attempt.
	if len(page.navigations) != 3 {
		t.Errorf("got %d navigations, want 3", len(page.navigations))
	}

	// One detailed failure report plus the terse "could not log in" notice.
	if n.count() != 2 {
		t.Fatalf("got %d notifications, want 2", n.count())
	}
	if !strings.Contains(n.messages[0], "Login failed after 3 attempts") {
		t.Errorf("first notification %q is not the detailed report", n.messages[0])
	}
	if !strings.Contains(n.messages[1], "Could not log into") {
		t.Errorf("second notification %q is not the login notice", n.messages[1])
	}

	// The account is not blocked by a plain failure.
	accounts, err := st.EligibleAccounts(context.Background())
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}
	if len(accounts) != 1 || accounts[0].IsBlocked {
		t.Fatal("login failure must not block the account")
	}
}

func TestCheckSessionFailureIsCritical(t *testing.T) {
	st, acct := testAccountStore(t)
	n := &fakeNotifier{}
	p := testProber(t, st, &fakeSessions{err: errors.New("chrome went away")}, n)

	p.Check(context.Background(), acct)

	if n.count() != 1 {
		t.Fatalf("got %d notifications, want 1", n.count())
	}
	if !strings.Contains(n.messages[0], "Critical error") {
		t.Errorf("notification %q is not a critical report", n.messages[0])
	}
}

func TestCheckSecuresSlot(t *testing.T) {
	st, acct := testAccountStore(t)
	page := newFakePage()
	page.counts[selSlots] = 2
	page.texts[selSelectedDate] = "Thu 5 Mar"
	page.nested[selSlotTime] = "10:30"
	page.nested[selSlotRemaining] = "2"
	n := &fakeNotifier{}
	p := testProber(t, st, &fakeSessions{page: page}, n)
	p.randIntN = func(int) int { return 1 }

	p.Check(context.Background(), acct)

	if len(page.nthClicks) != 1 || page.nthClicks[0] != 1 {
		t.Errorf("slot clicks: got %v, want [1]", page.nthClicks)
	}
	if n.count() != 1 {
		t.Fatalf("got %d notifications, want 1", n.count())
	}
	if !strings.Contains(n.messages[0], "Slot secured in Moscow") {
		t.Errorf("notification %q does not announce the booking", n.messages[0])
	}
}
