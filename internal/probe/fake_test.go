package probe

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"visawatch/internal/capture"
	"visawatch/internal/dbopen"
	"visawatch/internal/store"
)

// fakePage is a scriptable in-memory Page. Zero value behaves like a happy
// portal: every element is found, every click works.
type fakePage struct {
	mu sync.Mutex

	body      string
	navStatus int
	navErr    error

	// clickErr returns the scripted error for a selector; notFound marks
	// selectors that never appear.
	clickErr map[string]error
	notFound map[string]bool

	texts  map[string]string // selector -> element text
	counts map[string]int
	nested map[string]string // child selector -> text

	navigations []string
	clicks      []string
	fills       map[string]string
	nthClicks   []int
}

func newFakePage() *fakePage {
	return &fakePage{
		navStatus: 200,
		clickErr:  map[string]error{},
		notFound:  map[string]bool{},
		texts:     map[string]string{},
		counts:    map[string]int{},
		nested:    map[string]string{},
		fills:     map[string]string{},
	}
}

func (f *fakePage) Navigate(ctx context.Context, url string, timeout time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigations = append(f.navigations, url)
	return f.navStatus, f.navErr
}

func (f *fakePage) Click(ctx context.Context, selector string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notFound[selector] {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	if err := f.clickErr[selector]; err != nil {
		return err
	}
	f.clicks = append(f.clicks, selector)
	return nil
}

func (f *fakePage) ClickMatching(ctx context.Context, selector, text string, timeout time.Duration) error {
	return f.Click(ctx, selector+"|"+text, timeout)
}

func (f *fakePage) ClickNth(ctx context.Context, selector string, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nthClicks = append(f.nthClicks, n)
	return nil
}

func (f *fakePage) Fill(ctx context.Context, selector, value string, timeout time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notFound[selector] {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	f.fills[selector] = value
	return nil
}

func (f *fakePage) BodyText(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.body, nil
}

func (f *fakePage) Text(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	text, ok := f.texts[selector]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return text, nil
}

func (f *fakePage) NestedText(ctx context.Context, selector string, n int, child string, timeout time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	text, ok := f.nested[child]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrElementNotFound, child)
	}
	return text, nil
}

func (f *fakePage) Count(ctx context.Context, selector string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[selector], nil
}

func (f *fakePage) HTML(ctx context.Context) (string, error) {
	return "<html><body>fake</body></html>", nil
}

func (f *fakePage) Screenshot(ctx context.Context) ([]byte, error) {
	return []byte{0x89, 'P', 'N', 'G'}, nil
}

func (f *fakePage) Close() error { return nil }

func (f *fakePage) clicked(selector string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.clicks {
		if c == selector {
			return true
		}
	}
	return false
}

// fakeSessions hands out the same fake page and remembers the diagnostic
// recorder so tests can inject console lines.
type fakeSessions struct {
	page *fakePage
	err  error
	// injectLines are replayed into the recorder as soon as the session
	// opens, simulating early console output.
	injectLines []string
	record      func(text string)
}

func (f *fakeSessions) NewSession(ctx context.Context, record func(text string)) (Session, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.record = record
	for _, line := range f.injectLines {
		record(line)
	}
	return f.page, nil
}

// fakeNotifier records every notification.
type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	files    [][]string
}

func (n *fakeNotifier) Notify(ctx context.Context, text string, files ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, text)
	n.files = append(n.files, files)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAccountStore(t *testing.T) (*store.Store, store.Account) {
	t.Helper()
	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
	st := store.New(db)

	ctx := context.Background()
	if err := st.AddAccount(ctx, "https://visa.example/login", "secret", "Moscow"); err != nil {
		t.Fatalf("add account: %v", err)
	}
	accounts, err := st.EligibleAccounts(ctx)
	if err != nil {
		t.Fatalf("eligible: %v", err)
	}
	return st, accounts[0]
}

// testProber wires a Prober to fakes with all sleeps disabled.
func testProber(t *testing.T, st *store.Store, sessions SessionFactory, n *fakeNotifier) *Prober {
	t.Helper()
	p := New(st, sessions, capture.New(t.TempDir(), testLogger()), n, Config{
		Cooldown: 30 * time.Minute,
		Timeout:  10 * time.Millisecond,
		Retries:  3,
	}, testLogger())
	p.sleep = func(context.Context, time.Duration) {}
	return p
}
