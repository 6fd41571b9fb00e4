package qr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Elizabethomito/gymdesk/backend/internal/nonce"
)

// AuditReporter records an issuance somewhere durable (the /qrcode/generate
// registry). Reporting is best-effort: the issuer never waits on it.
type AuditReporter interface {
	ReportIssuance(ctx context.Context, p Payload) error
}

// AuditReporterFunc adapts a function to AuditReporter.
type AuditReporterFunc func(ctx context.Context, p Payload) error

func (f AuditReporterFunc) ReportIssuance(ctx context.Context, p Payload) error { return f(ctx, p) }

// State is the externally visible issuer state.
type State int

const (
	// StateIdle means nothing has been issued yet.
	StateIdle State = iota
	// StateActive means the current payload is valid and the countdown runs.
	StateActive
	// StateRotating means the countdown hit zero and a new payload is due.
	// The issuer stays here only if regeneration failed; the next tick retries.
	StateRotating
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateRotating:
		return "rotating"
	default:
		return "idle"
	}
}

// IssuerConfig holds the parameters reused on every rotation.
type IssuerConfig struct {
	Purpose     Purpose
	BranchID    *int64
	BranchName  string
	TTL         time.Duration
	NonceLength int
}

// Option customises an Issuer.
type Option func(*Issuer)

// WithReporter sets the audit registry issuances are reported to.
func WithReporter(r AuditReporter) Option { return func(i *Issuer) { i.reporter = r } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(i *Issuer) { i.logger = l } }

// WithClock replaces time.Now. Tests use it to pin issuedAt.
func WithClock(now func() time.Time) Option { return func(i *Issuer) { i.now = now } }

// WithNonceFunc replaces nonce.Generate.
func WithNonceFunc(fn func(int) (string, error)) Option { return func(i *Issuer) { i.genNonce = fn } }

// OnIssue registers a callback run after every issuance (the display channel).
// Callbacks run synchronously, outside the issuer's lock.
func OnIssue(fn func(Payload)) Option {
	return func(i *Issuer) { i.onIssue = append(i.onIssue, fn) }
}

// auditTimeout bounds one best-effort audit write.
const auditTimeout = 5 * time.Second

// Issuer owns the QR code currently on display and rotates it.
//
// The countdown is measured in whole seconds and advanced by Tick, which
// Run calls from a single one-second ticker. When it reaches zero the
// issuer regenerates with the same parameters, so an expired code is never
// left on screen (modulo clock skew between server and display).
type Issuer struct {
	cfg      IssuerConfig
	reporter AuditReporter
	logger   *slog.Logger
	now      func() time.Time
	genNonce func(int) (string, error)
	onIssue  []func(Payload)

	mu        sync.RWMutex
	current   Payload
	remaining int
	state     State

	audits sync.WaitGroup
}

// NewIssuer builds an issuer. Nothing is issued until Issue, Run or
// ForceRegenerate is called.
func NewIssuer(cfg IssuerConfig, opts ...Option) *Issuer {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.NonceLength <= 0 {
		cfg.NonceLength = nonce.DefaultLength
	}
	if cfg.Purpose == "" {
		cfg.Purpose = PurposeGlobalCheckIn
	}
	i := &Issuer{
		cfg:      cfg,
		logger:   slog.Default(),
		now:      time.Now,
		genNonce: nonce.Generate,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Issue builds a fresh payload for the given branch and TTL, makes it the
// current one and restarts the countdown. The parameters are remembered
// for later rotations.
func (i *Issuer) Issue(branchID *int64, branchName string, ttl time.Duration) (Payload, error) {
	if ttl <= 0 {
		return Payload{}, fmt.Errorf("issue: ttl must be positive, got %s", ttl)
	}
	i.mu.Lock()
	i.cfg.BranchID = branchID
	i.cfg.BranchName = branchName
	i.cfg.TTL = ttl
	p, err := i.issueLocked()
	i.mu.Unlock()
	if err != nil {
		return Payload{}, err
	}
	i.published(p)
	return p, nil
}

// Tick advances the countdown by one second. When it reaches zero, or
// the clock is already past the current code's expiresAt (a late tick),
// the payload is regenerated; rotated reports whether that happened.
func (i *Issuer) Tick() (p Payload, rotated bool, err error) {
	i.mu.Lock()
	if i.state == StateIdle {
		p, err = i.issueLocked()
		rotated = err == nil
	} else {
		if i.remaining > 0 {
			i.remaining--
		}
		if i.remaining == 0 || i.current.ExpiredAt(i.now()) {
			i.state = StateRotating
			p, err = i.issueLocked()
			rotated = err == nil
		} else {
			p = i.current
		}
	}
	i.mu.Unlock()

	if err != nil {
		return Payload{}, false, err
	}
	if rotated {
		i.published(p)
	}
	return p, rotated, nil
}

// ForceRegenerate rotates immediately regardless of the countdown.
func (i *Issuer) ForceRegenerate() (Payload, error) {
	i.mu.Lock()
	i.state = StateRotating
	p, err := i.issueLocked()
	i.mu.Unlock()
	if err != nil {
		return Payload{}, err
	}
	i.published(p)
	return p, nil
}

// Current returns the payload on display; ok is false before the first issuance.
func (i *Issuer) Current() (p Payload, ok bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.current, i.state != StateIdle
}

// Remaining returns the countdown until the next rotation.
func (i *Issuer) Remaining() time.Duration {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return time.Duration(i.remaining) * time.Second
}

// State returns the issuer state.
func (i *Issuer) State() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// Run issues a first payload if needed, then ticks once per second until
// ctx is cancelled. The ticker is stopped on return so no rotation loop
// outlives the screen that started it.
func (i *Issuer) Run(ctx context.Context) error {
	if _, ok := i.Current(); !ok {
		if _, err := i.ForceRegenerate(); err != nil {
			return fmt.Errorf("initial issuance: %w", err)
		}
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p, rotated, err := i.Tick()
			if err != nil {
				// Stay in StateRotating; the next tick tries again.
				i.logger.Error("qr rotation failed", "err", err)
				continue
			}
			if rotated {
				i.logger.Info("qr code rotated", "nonce", p.Nonce, "expires_at", p.ExpiresAt)
			}
		}
	}
}

// Wait blocks until in-flight audit reports have finished. Call it on
// shutdown so a report is not cut off mid-write.
func (i *Issuer) Wait() { i.audits.Wait() }

// issueLocked must be called with i.mu held for writing.
func (i *Issuer) issueLocked() (Payload, error) {
	n, err := i.genNonce(i.cfg.NonceLength)
	if err != nil {
		return Payload{}, fmt.Errorf("generate nonce: %w", err)
	}
	p := NewPayload(i.cfg.Purpose, i.cfg.BranchID, i.cfg.BranchName, i.cfg.TTL, i.now(), n)
	i.current = p
	i.remaining = int(i.cfg.TTL / time.Second)
	if i.remaining < 1 {
		i.remaining = 1
	}
	i.state = StateActive
	return p, nil
}

// published notifies display callbacks and fires the audit report.
func (i *Issuer) published(p Payload) {
	for _, fn := range i.onIssue {
		fn(p)
	}
	if i.reporter == nil {
		return
	}

	i.audits.Add(1)
	go func() {
		defer i.audits.Done()
		ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
		defer cancel()
		if err := i.reporter.ReportIssuance(ctx, p); err != nil {
			// Audit failures never block display.
			lvl := slog.LevelWarn
			if errors.Is(err, context.DeadlineExceeded) {
				lvl = slog.LevelError
			}
			i.logger.Log(ctx, lvl, "qr audit report failed", "nonce", p.Nonce, "err", err)
		}
	}()
}
