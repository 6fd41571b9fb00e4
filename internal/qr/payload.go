// Package qr implements the QR check-in code: its JSON wire format, the
// validator a scanning client runs on decoded text, the rotating issuer
// shown on the front-desk screen, and PNG rendering for that screen.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — what is inside a check-in QR code?
// ────────────────────────────────────────────────────────────────────
// The QR is plain JSON, for example:
//
//	{"purpose":"gym_checkin_global","branchId":3,"branchName":"Downtown",
//	 "nonce":"AB12CD34EF56GH78","issuedAt":"2026-10-18T09:00:00Z",
//	 "expiresAt":"2026-10-18T10:00:00Z"}
//
// Nothing in it is signed. Trust comes from the short expiry window and
// the nonce: the screen rotates to a fresh code every TTL, so a photo of
// yesterday's code is rejected as expired, and every issuance can be
// traced through the nonce in the audit registry.
package qr

import (
	"time"
)

// Purpose tags what a QR code is for. Scanners reject codes whose purpose
// is not the one they expect, so a payment QR can never check anyone in.
type Purpose string

const (
	// PurposeStaffCheckIn is the legacy per-staff code shown by an
	// individual receptionist or trainer. Its branchId may be absent.
	PurposeStaffCheckIn Purpose = "gym_checkin"
	// PurposeGlobalCheckIn is the venue-wide code shown by the admin screen.
	PurposeGlobalCheckIn Purpose = "gym_checkin_global"
)

// Valid reports whether p is one of the known purposes.
func (p Purpose) Valid() bool {
	return p == PurposeStaffCheckIn || p == PurposeGlobalCheckIn
}

// DefaultTTL is how long an issued code stays valid.
const DefaultTTL = 3600 * time.Second

// Payload is the exact JSON contract between issuers and scanners.
// It is immutable once built: rotation produces a new Payload.
type Payload struct {
	Purpose    Purpose    `json:"purpose"`
	BranchID   *int64     `json:"branchId,omitempty"`
	BranchName string     `json:"branchName,omitempty"`
	Nonce      string     `json:"nonce"`
	IssuedAt   time.Time  `json:"issuedAt"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

// NewPayload builds a payload issued at now and expiring ttl later.
// A nil branchID produces a legacy code with no branch binding.
//
// issuedAt is rounded up to the next whole second, so expiresAt is never
// earlier than now+ttl and a code counted down from now is still valid
// when its countdown ends.
func NewPayload(purpose Purpose, branchID *int64, branchName string, ttl time.Duration, now time.Time, nonce string) Payload {
	issued := ceilSecond(now.UTC())
	expires := issued.Add(ttl)
	var bid *int64
	if branchID != nil {
		v := *branchID
		bid = &v
	}
	return Payload{
		Purpose:    purpose,
		BranchID:   bid,
		BranchName: branchName,
		Nonce:      nonce,
		IssuedAt:   issued,
		ExpiresAt:  &expires,
	}
}

// ExpiredAt reports whether the payload is past its expiry at t.
// Payloads without an expiry never expire.
func (p Payload) ExpiredAt(t time.Time) bool {
	return p.ExpiresAt != nil && t.After(*p.ExpiresAt)
}

// Remaining returns how long the payload stays valid after t, floored at zero.
func (p Payload) Remaining(t time.Time) time.Duration {
	if p.ExpiresAt == nil {
		return 0
	}
	d := p.ExpiresAt.Sub(t)
	if d < 0 {
		return 0
	}
	return d
}

// Int64 returns a pointer to v. Handy for optional branch IDs.
func Int64(v int64) *int64 { return &v }

func ceilSecond(t time.Time) time.Time {
	if d := t.Truncate(time.Second); !d.Equal(t) {
		return d.Add(time.Second)
	}
	return t
}
