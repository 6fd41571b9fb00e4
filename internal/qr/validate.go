package qr

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Scan errors. All four are user-correctable: the scanner keeps running
// after reporting them.
var (
	ErrMalformedPayload = errors.New("malformed QR payload")
	ErrWrongPurpose     = errors.New("QR code is not a gym check-in code")
	ErrBranchMismatch   = errors.New("QR code belongs to a different branch")
	ErrExpired          = errors.New("QR code has expired")
)

// ValidationContext is what the scanning side expects to see.
type ValidationContext struct {
	ExpectedPurpose Purpose
	// CallerBranchID, when set, must match the payload's branchId
	// (if the payload carries one).
	CallerBranchID *int64
}

// Validate parses untrusted scanned text and checks it against vctx.
//
// Checks run in a fixed order and stop at the first failure:
//
//  1. JSON parse                    → ErrMalformedPayload
//  2. purpose == expected           → ErrWrongPurpose
//  3. branch match (when both set)  → ErrBranchMismatch
//  4. now <= expiresAt (when set)   → ErrExpired
//
// The order matters: a foreign code that also happens to be expired is
// reported as the wrong kind of code, which is the more useful message.
func Validate(raw string, vctx ValidationContext, now time.Time) (Payload, error) {
	var p Payload
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if p.Purpose != vctx.ExpectedPurpose {
		return Payload{}, fmt.Errorf("%w: got %q, want %q", ErrWrongPurpose, p.Purpose, vctx.ExpectedPurpose)
	}

	if vctx.CallerBranchID != nil && p.BranchID != nil && *vctx.CallerBranchID != *p.BranchID {
		return Payload{}, fmt.Errorf("%w: code is for branch %d, you are at branch %d",
			ErrBranchMismatch, *p.BranchID, *vctx.CallerBranchID)
	}

	if p.ExpiredAt(now) {
		return Payload{}, fmt.Errorf("%w: expired at %s", ErrExpired, p.ExpiresAt.Format(time.RFC3339))
	}

	return p, nil
}

// UserMessage turns a Validate error into a short instruction for the
// person holding the phone.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedPayload):
		return "This QR code could not be read. Hold the camera steady and scan the code on the front-desk screen."
	case errors.Is(err, ErrWrongPurpose):
		return "This is not a gym check-in code. Scan the check-in QR shown at reception."
	case errors.Is(err, ErrBranchMismatch):
		return "This code belongs to another branch. Scan the code displayed at the branch you are in."
	case errors.Is(err, ErrExpired):
		return "This QR code has expired. Ask reception to refresh the code and scan again."
	default:
		return "The QR code could not be validated. Please try again."
	}
}

// IsScanError reports whether err is one of the user-correctable scan errors.
func IsScanError(err error) bool {
	return errors.Is(err, ErrMalformedPayload) ||
		errors.Is(err, ErrWrongPurpose) ||
		errors.Is(err, ErrBranchMismatch) ||
		errors.Is(err, ErrExpired)
}
