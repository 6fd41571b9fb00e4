// Package db handles SQLite initialisation and schema migrations.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — why modernc.org/sqlite instead of go-sqlite3?
// ────────────────────────────────────────────────────────────────────
// go-sqlite3 is a CGo binding and needs a C toolchain on the build
// machine. modernc.org/sqlite is a pure-Go port: no CGo, cross-compiles
// cleanly to the small front-desk boxes this runs on. The only visible
// difference is the driver name: "sqlite" instead of "sqlite3".
package db

import (
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	// Blank import: the modernc driver registers itself with
	// database/sql under the name "sqlite" when this package loads.
	_ "modernc.org/sqlite"
)

// Open opens (or creates) the SQLite database at dsn and runs all migrations.
//
// Recommended DSN formats for modernc.org/sqlite:
//   - Production file: "gymdesk.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
//   - Tests:           "file:testXYZ?mode=memory&cache=shared&_foreign_keys=on"
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	slog.Debug("database ready", "dsn", dsn)
	return db, nil
}

// migrate runs each DDL statement in the schema individually; the
// driver only executes the first statement of a multi-statement Exec.
func migrate(db *sql.DB) error {
	stmts := strings.Split(schema, ";")
	for _, stmt := range stmts {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration statement failed: %w\nstatement: %s", err, stmt)
		}
	}
	return nil
}

// schema contains every CREATE statement for the application.
//
//	branches          — gym locations; integer IDs because they are
//	                    printed inside QR payloads.
//
//	users             — staff and members in one table; "role" decides
//	                    what they may see. branch_id is the home branch.
//
//	member_attendance — one row per check-in session. check_out is NULL
//	                    while the session is open. The partial unique
//	                    index open_session_per_branch allows at most one
//	                    open row per (member, branch); a second check-in
//	                    fails on the constraint even if two requests race.
//
//	qr_codes          — audit registry of issued QR codes, one per nonce.
const schema = `
CREATE TABLE IF NOT EXISTS branches (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    name       TEXT NOT NULL UNIQUE,
    address    TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    name          TEXT NOT NULL,
    role          TEXT NOT NULL CHECK(role IN ('ADMIN','SUPERADMIN','MANAGER','RECEPTIONIST',
                                               'PERSONALTRAINER','GENERALTRAINER','HOUSEKEEPING','MEMBER')),
    branch_id     INTEGER REFERENCES branches(id),
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS member_attendance (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    member_id  TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    branch_id  INTEGER NOT NULL REFERENCES branches(id),
    check_in   DATETIME NOT NULL,
    check_out  DATETIME,
    mode       TEXT NOT NULL CHECK(mode IN ('QR Code','Manual','App')),
    notes      TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS open_session_per_branch
    ON member_attendance (member_id, branch_id) WHERE check_out IS NULL;

CREATE INDEX IF NOT EXISTS member_attendance_by_member
    ON member_attendance (member_id, check_in);

CREATE TABLE IF NOT EXISTS qr_codes (
    id         TEXT PRIMARY KEY,
    nonce      TEXT NOT NULL UNIQUE,
    purpose    TEXT NOT NULL DEFAULT 'gym_checkin_global',
    branch_id  INTEGER REFERENCES branches(id),
    issued_at  DATETIME NOT NULL,
    expires_at DATETIME NOT NULL,
    issued_by  TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
