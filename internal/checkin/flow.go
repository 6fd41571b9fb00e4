// Package checkin runs one scanned QR code through the attendance session
// state machine.
//
// ─── LEARNING NOTE ──────────────────────────────────────────────────────────
//
//	A subject is, per branch, either in NoOpenSession or Open:
//
//	    NoOpenSession ──check-in──▶ Open ──check-out──▶ NoOpenSession
//
//	The server owns that state. The client only learns it from responses,
//	so a scan always asks for a check-in first. A 409 answer is not a
//	failure: it means "you are already in", and the person decides whether
//	to close the open session. Nothing is retried silently.
//
// ────────────────────────────────────────────────────────────────────────────
package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Elizabethomito/gymdesk/backend/internal/attendance"
	"github.com/Elizabethomito/gymdesk/backend/internal/models"
	"github.com/Elizabethomito/gymdesk/backend/internal/qr"
	"github.com/Elizabethomito/gymdesk/backend/internal/scan"
)

// ErrNoBranch is returned when neither the code nor the scanning device
// names a branch to check in at.
var ErrNoBranch = errors.New("no branch to check in at")

// ErrUnknownOpenSession is returned when the service reports a conflict
// but neither it nor the local tracker can say which session is open.
var ErrUnknownOpenSession = errors.New("already checked in, but the open session could not be found")

// Service is the attendance service as the flow needs it.
// *attendance.Client satisfies it.
type Service interface {
	CheckIn(ctx context.Context, req models.CheckInRequest) (models.AttendanceRecord, error)
	CheckOut(ctx context.Context, id int64, req models.CheckOutRequest) (models.AttendanceRecord, error)
}

// Prompter asks the person at the scanner whether to close an open session.
type Prompter interface {
	ConfirmCheckout(ctx context.Context, open models.AttendanceRecord) (bool, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, open models.AttendanceRecord) (bool, error)

func (f PrompterFunc) ConfirmCheckout(ctx context.Context, open models.AttendanceRecord) (bool, error) {
	return f(ctx, open)
}

// Kind classifies what happened to a scan.
type Kind int

const (
	// Suppressed: a duplicate or overlapping decode; nothing was done.
	Suppressed Kind = iota
	// Rejected: the code failed validation. Scanning continues.
	Rejected
	CheckedIn
	CheckedOut
	// Declined: already checked in and the person chose not to check out.
	Declined
	// Failed: the service call failed; Message says why.
	Failed
)

func (k Kind) String() string {
	switch k {
	case Suppressed:
		return "suppressed"
	case Rejected:
		return "rejected"
	case CheckedIn:
		return "checked_in"
	case CheckedOut:
		return "checked_out"
	case Declined:
		return "declined"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the result of one scan.
type Outcome struct {
	Kind    Kind
	Payload qr.Payload
	// Record is the session opened or closed, when there is one.
	Record *models.AttendanceRecord
	// Message is the line to show the person at the scanner.
	Message string
	Err     error
}

// Flow wires validation, deduplication and the attendance service together.
type Flow struct {
	Validation qr.ValidationContext
	Dedup      *scan.Deduplicator
	Service    Service
	Prompter   Prompter
	Tracker    *Tracker
	Logger     *slog.Logger

	// MemberID is the subject being checked in.
	MemberID string
	// DefaultBranchID is used for codes that carry no branchId
	// (legacy per-staff codes) when Validation has no CallerBranchID.
	DefaultBranchID int64
}

// NewFlow returns a Flow with a fresh Deduplicator and Tracker.
func NewFlow(svc Service, prompter Prompter, memberID string, vctx qr.ValidationContext, window time.Duration, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{
		Validation: vctx,
		Dedup:      scan.NewDeduplicator(window),
		Service:    svc,
		Prompter:   prompter,
		Tracker:    NewTracker(),
		Logger:     logger,
		MemberID:   memberID,
	}
}

// HandleScan processes the decode raw read at time at. It is safe to call
// from many goroutines; overlapping calls are suppressed, not queued.
func (f *Flow) HandleScan(ctx context.Context, raw string, at time.Time) Outcome {
	var out Outcome
	accepted, _ := f.Dedup.Process(ctx, raw, at, func(ctx context.Context, text string) error {
		out = f.process(ctx, text, at)
		return out.Err
	})
	if !accepted {
		return Outcome{Kind: Suppressed}
	}

	f.Logger.Info("scan processed",
		"member_id", f.MemberID,
		"outcome", out.Kind.String(),
		"nonce", out.Payload.Nonce,
	)
	return out
}

func (f *Flow) process(ctx context.Context, text string, at time.Time) Outcome {
	p, err := qr.Validate(text, f.Validation, at)
	if err != nil {
		kind := Rejected
		if !qr.IsScanError(err) {
			kind = Failed
		}
		return Outcome{Kind: kind, Message: qr.UserMessage(err), Err: err}
	}

	branchID, err := f.branchFor(p)
	if err != nil {
		return Outcome{Kind: Rejected, Payload: p, Message: "This code does not name a branch. Scan the code displayed at reception.", Err: err}
	}

	req := models.CheckInRequest{
		MemberID: f.MemberID,
		BranchID: branchID,
		Mode:     models.ModeQRCode,
		Notes:    Notes(p),
	}
	rec, err := f.Service.CheckIn(ctx, req)
	if err == nil {
		f.Tracker.Observe(rec)
		return Outcome{Kind: CheckedIn, Payload: p, Record: &rec, Message: checkedInMessage(p)}
	}

	var conflict *attendance.ConflictError
	if errors.As(err, &conflict) {
		return f.resolveConflict(ctx, p, branchID, conflict)
	}
	return Outcome{Kind: Failed, Payload: p, Message: attendance.UserMessage(err), Err: err}
}

// resolveConflict asks whether to close the open session and does so if told to.
func (f *Flow) resolveConflict(ctx context.Context, p qr.Payload, branchID int64, conflict *attendance.ConflictError) Outcome {
	var open models.AttendanceRecord
	switch {
	case conflict.Open != nil:
		open = *conflict.Open
		f.Tracker.Observe(open)
	default:
		known, ok := f.Tracker.Open(f.MemberID, branchID)
		if !ok {
			return Outcome{Kind: Failed, Payload: p, Message: attendance.UserMessage(conflict), Err: ErrUnknownOpenSession}
		}
		open = known
	}

	ok, err := f.Prompter.ConfirmCheckout(ctx, open)
	if err != nil {
		return Outcome{Kind: Failed, Payload: p, Record: &open, Message: "Checkout was not confirmed.", Err: fmt.Errorf("confirm checkout: %w", err)}
	}
	if !ok {
		return Outcome{Kind: Declined, Payload: p, Record: &open, Message: "You are still checked in."}
	}

	closed, err := f.Service.CheckOut(ctx, open.ID, models.CheckOutRequest{MemberID: f.MemberID, BranchID: open.BranchID})
	if err != nil {
		return Outcome{Kind: Failed, Payload: p, Record: &open, Message: attendance.UserMessage(err), Err: err}
	}
	if closed.ID == 0 {
		closed.ID = open.ID
	}
	if closed.MemberID == "" {
		closed.MemberID = open.MemberID
	}
	if closed.CheckIn.IsZero() {
		closed.CheckIn = open.CheckIn
	}
	f.Tracker.Observe(closed)
	return Outcome{Kind: CheckedOut, Payload: p, Record: &closed, Message: "Checked out. See you next time!"}
}

func (f *Flow) branchFor(p qr.Payload) (int64, error) {
	switch {
	case p.BranchID != nil:
		return *p.BranchID, nil
	case f.Validation.CallerBranchID != nil:
		return *f.Validation.CallerBranchID, nil
	case f.DefaultBranchID > 0:
		return f.DefaultBranchID, nil
	}
	return 0, ErrNoBranch
}

// Notes is the audit annotation stored on a QR check-in.
func Notes(p qr.Payload) string {
	return fmt.Sprintf("QR check-in (%s, nonce %s)", p.Purpose, p.Nonce)
}

func checkedInMessage(p qr.Payload) string {
	if p.BranchName != "" {
		return "Checked in at " + p.BranchName + "."
	}
	return "Checked in."
}
