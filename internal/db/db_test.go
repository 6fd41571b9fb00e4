package db

import (
	"database/sql"
	"os"
	"testing"
	"time"
)

// NewTestDB creates an in-memory SQLite database with the full schema applied.
// It is automatically closed when the test ends.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open("file:testhelper?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("NewTestDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/test.db"

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	tables := []string{"branches", "users", "member_attendance", "qr_codes"}
	for _, tbl := range tables {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, tbl).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found: %v", tbl, err)
		}
	}

	// Running Open again on the same file should be idempotent (migrations are IF NOT EXISTS)
	db2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	db2.Close()

	os.Remove(path)
}

// TestOpenSessionIndex checks that the schema itself refuses a second open
// session for the same member and branch, but accepts one once the first
// is closed.
func TestOpenSessionIndex(t *testing.T) {
	d := NewTestDB(t)
	now := time.Now().UTC()

	mustExec := func(q string, args ...any) {
		t.Helper()
		if _, err := d.Exec(q, args...); err != nil {
			t.Fatalf("exec %q: %v", q, err)
		}
	}
	mustExec(`INSERT INTO branches (id, name) VALUES (1, 'Main')`)
	mustExec(`INSERT INTO users (id, email, password_hash, name, role) VALUES ('m1', 'm1@gym.test', 'x', 'M', 'MEMBER')`)
	mustExec(`INSERT INTO member_attendance (member_id, branch_id, check_in, mode) VALUES ('m1', 1, ?, 'QR Code')`, now)

	_, err := d.Exec(`INSERT INTO member_attendance (member_id, branch_id, check_in, mode) VALUES ('m1', 1, ?, 'App')`, now)
	if err == nil {
		t.Fatal("expected unique violation for second open session")
	}

	mustExec(`UPDATE member_attendance SET check_out = ? WHERE member_id = 'm1'`, now)
	mustExec(`INSERT INTO member_attendance (member_id, branch_id, check_in, mode) VALUES ('m1', 1, ?, 'App')`, now)
}

func TestOpenInMemory(t *testing.T) {
	d, err := Open("file:testopen_inmem?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("Open memory: %v", err)
	}
	defer d.Close()
	if d == nil {
		t.Fatal("expected non-nil db")
	}
}
