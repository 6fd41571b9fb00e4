package checkin

import (
	"sync"

	"github.com/Elizabethomito/gymdesk/backend/internal/models"
)

// SessionState is the state of one (subject, branch) pair.
type SessionState int

const (
	NoOpenSession SessionState = iota
	Open
)

func (s SessionState) String() string {
	if s == Open {
		return "open"
	}
	return "no_open_session"
}

type sessionKey struct {
	subject string
	branch  int64
}

// Tracker is the client's view of open sessions, built from service
// responses. The service stays the arbiter; the tracker only remembers
// what it has been told.
type Tracker struct {
	mu   sync.Mutex
	open map[sessionKey]models.AttendanceRecord
}

func NewTracker() *Tracker {
	return &Tracker{open: make(map[sessionKey]models.AttendanceRecord)}
}

// Observe records rec. An active record opens its pair; a completed one
// closes the pair if it is the session currently held open.
func (t *Tracker) Observe(rec models.AttendanceRecord) {
	if rec.MemberID == "" || rec.BranchID == 0 {
		return
	}
	k := sessionKey{rec.MemberID, rec.BranchID}

	t.mu.Lock()
	defer t.mu.Unlock()
	if rec.Status() == models.AttendanceActive {
		t.open[k] = rec
		return
	}
	if cur, ok := t.open[k]; ok && cur.ID == rec.ID {
		delete(t.open, k)
	}
}

// Sync replaces everything known about subject with its history.
func (t *Tracker) Sync(subject string, history []models.AttendanceRecord) {
	t.mu.Lock()
	for k := range t.open {
		if k.subject == subject {
			delete(t.open, k)
		}
	}
	t.mu.Unlock()

	for _, rec := range history {
		if rec.MemberID == "" {
			rec.MemberID = subject
		}
		if rec.Status() == models.AttendanceActive {
			t.Observe(rec)
		}
	}
}

// Open returns the open session of (subject, branch), if one is known.
func (t *Tracker) Open(subject string, branch int64) (models.AttendanceRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.open[sessionKey{subject, branch}]
	return rec, ok
}

func (t *Tracker) State(subject string, branch int64) SessionState {
	if _, ok := t.Open(subject, branch); ok {
		return Open
	}
	return NoOpenSession
}
