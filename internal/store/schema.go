package store

// Schema is the accounts table. Check timestamps are unix seconds; both are
// NULL until the first probe. ORDER BY last_check ASC relies on SQLite
// sorting NULLs first, so never-checked accounts lead the queue.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	login_url   TEXT    NOT NULL,
	password    TEXT    NOT NULL,
	location    TEXT    NOT NULL,
	last_check  INTEGER,
	next_check  INTEGER,
	is_blocked  INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);

CREATE INDEX IF NOT EXISTS idx_accounts_eligibility
	ON accounts (is_blocked, next_check);
`
