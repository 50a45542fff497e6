// Package store provides the SQLite persistence layer for account scheduling
// state. The scheduler loop is the only writer, so no locking beyond SQLite's
// own busy handling is needed.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"visawatch/internal/dbopen"
)

// Account is one set of portal credentials tied to one target location,
// independently scheduled.
type Account struct {
	ID        int64
	LoginURL  string
	Password  string
	Location  string
	LastCheck *time.Time
	NextCheck *time.Time
	IsBlocked bool
	CreatedAt time.Time
}

// Store is the accounts database handle.
type Store struct {
	DB *sql.DB

	// now is the clock used for eligibility checks and status writes.
	// Overridable in tests.
	now func() time.Time
}

// Open opens (or creates) the accounts database at path and applies the
// schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// New wraps an already-opened database. The schema must be applied.
func New(db *sql.DB) *Store {
	return &Store{DB: db, now: time.Now}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// AddAccount inserts a new account with null check timestamps and the
// blocked flag cleared. Duplicates are not detected.
func (s *Store) AddAccount(ctx context.Context, loginURL, password, location string) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO accounts (login_url, password, location)
		VALUES (?, ?, ?)`,
		loginURL, password, location)
	if err != nil {
		return fmt.Errorf("store: add account: %w", err)
	}
	return nil
}

// EligibleAccounts returns every account that may be probed now: unblocked
// accounts regardless of next_check, plus blocked accounts whose cooldown
// has expired. Ordered by last_check ascending with never-checked first.
func (s *Store) EligibleAccounts(ctx context.Context) ([]Account, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, login_url, password, location,
		       last_check, next_check, is_blocked, created_at
		FROM accounts
		WHERE is_blocked = 0 OR next_check <= ?
		ORDER BY last_check ASC, id ASC`,
		s.now().Unix())
	if err != nil {
		return nil, fmt.Errorf("store: eligible accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var (
			a         Account
			last, nxt sql.NullInt64
			blocked   int
			created   int64
		)
		if err := rows.Scan(&a.ID, &a.LoginURL, &a.Password, &a.Location,
			&last, &nxt, &blocked, &created); err != nil {
			return nil, fmt.Errorf("store: scan account: %w", err)
		}
		if last.Valid {
			t := time.Unix(last.Int64, 0)
			a.LastCheck = &t
		}
		if nxt.Valid {
			t := time.Unix(nxt.Int64, 0)
			a.NextCheck = &t
		}
		a.IsBlocked = blocked != 0
		a.CreatedAt = time.Unix(created, 0)
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: eligible accounts: %w", err)
	}
	return accounts, nil
}

// UpdateStatus records the outcome of a probe attempt: last_check is set to
// now, next_check and is_blocked to the given values. A nil nextCheck stores
// NULL. Called once at probe start (unblocked, nil) and again only when
// rate-limiting is detected mid-probe.
func (s *Store) UpdateStatus(ctx context.Context, id int64, isBlocked bool, nextCheck *time.Time) error {
	var nxt sql.NullInt64
	if nextCheck != nil {
		nxt = sql.NullInt64{Int64: nextCheck.Unix(), Valid: true}
	}
	blocked := 0
	if isBlocked {
		blocked = 1
	}

	res, err := s.DB.ExecContext(ctx, `
		UPDATE accounts
		SET last_check = ?, next_check = ?, is_blocked = ?
		WHERE id = ?`,
		s.now().Unix(), nxt, blocked, id)
	if err != nil {
		return fmt.Errorf("store: update status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("store: update status: no account with id %d", id)
	}
	return nil
}

// Count returns the number of accounts in the store, eligible or not.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// SeedAccount is one configured bootstrap credential pair.
type SeedAccount struct {
	LoginURL string
	Password string
	Location string
}

// Seed inserts the configured accounts if the store is empty. First-run
// bootstrap only; an already-populated store is left untouched.
func (s *Store) Seed(ctx context.Context, seeds []SeedAccount) (int, error) {
	n, err := s.Count(ctx)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		return 0, nil
	}

	var added int
	for _, seed := range seeds {
		if seed.LoginURL == "" || seed.Password == "" {
			continue
		}
		if err := s.AddAccount(ctx, seed.LoginURL, seed.Password, seed.Location); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}
