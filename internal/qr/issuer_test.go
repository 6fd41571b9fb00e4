package qr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialNonces() func(int) (string, error) {
	var n atomic.Int64
	return func(int) (string, error) {
		return fmt.Sprintf("nonce-%04d", n.Add(1)), nil
	}
}

func newTestIssuer(ttl time.Duration, opts ...Option) *Issuer {
	base := []Option{WithClock(func() time.Time { return t0 }), WithNonceFunc(sequentialNonces())}
	return NewIssuer(IssuerConfig{
		Purpose:    PurposeGlobalCheckIn,
		BranchID:   Int64(3),
		BranchName: "Downtown",
		TTL:        ttl,
	}, append(base, opts...)...)
}

func TestIssuer_Issue(t *testing.T) {
	iss := newTestIssuer(time.Hour)
	_, ok := iss.Current()
	assert.False(t, ok)
	assert.Equal(t, StateIdle, iss.State())

	p, err := iss.Issue(Int64(5), "Uptown", 90*time.Second)
	require.NoError(t, err)
	assert.Equal(t, PurposeGlobalCheckIn, p.Purpose)
	assert.Equal(t, int64(5), *p.BranchID)
	assert.Equal(t, "Uptown", p.BranchName)
	assert.Equal(t, t0, p.IssuedAt)
	assert.Equal(t, t0.Add(90*time.Second), *p.ExpiresAt)
	assert.Equal(t, 90*time.Second, iss.Remaining())
	assert.Equal(t, StateActive, iss.State())

	cur, ok := iss.Current()
	require.True(t, ok)
	assert.Equal(t, p, cur)
}

func TestIssuer_IssueRejectsNonPositiveTTL(t *testing.T) {
	iss := newTestIssuer(time.Hour)
	_, err := iss.Issue(nil, "", 0)
	assert.Error(t, err)
}

func TestIssuer_TickRotatesAtZero(t *testing.T) {
	iss := newTestIssuer(3 * time.Second)
	first, err := iss.ForceRegenerate()
	require.NoError(t, err)

	for k := 0; k < 2; k++ {
		p, rotated, err := iss.Tick()
		require.NoError(t, err)
		assert.False(t, rotated)
		assert.Equal(t, first.Nonce, p.Nonce)
	}

	p, rotated, err := iss.Tick()
	require.NoError(t, err)
	assert.True(t, rotated)
	assert.NotEqual(t, first.Nonce, p.Nonce)
	// Same parameters on rotation.
	assert.Equal(t, first.BranchName, p.BranchName)
	assert.Equal(t, *first.BranchID, *p.BranchID)
	assert.Equal(t, 3*time.Second, iss.Remaining())
}

func TestIssuer_DisplayedCodeNeverExpired(t *testing.T) {
	var mu sync.Mutex
	now := time.Date(2026, 10, 18, 9, 0, 0, 900*int(time.Millisecond), time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		now = now.Add(d)
		mu.Unlock()
	}
	iss := newTestIssuer(2*time.Second, WithClock(clock))

	p, err := iss.ForceRegenerate()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 18, 9, 0, 1, 0, time.UTC), p.IssuedAt)
	assert.False(t, p.ExpiresAt.Before(clock().Add(2*time.Second)))

	displayedValid := func(step string) {
		t.Helper()
		cur, ok := iss.Current()
		require.True(t, ok)
		_, err := Validate(mustMarshal(t, cur), ValidationContext{ExpectedPurpose: PurposeGlobalCheckIn}, clock())
		assert.NoError(t, err, "%s: displayed code at %s", step, clock().Format(time.StampMilli))
	}

	// Regular ticks, with a check half a second between them.
	for k := 0; k < 6; k++ {
		advance(500 * time.Millisecond)
		displayedValid(fmt.Sprintf("between ticks %d", k))
		advance(500 * time.Millisecond)
		_, _, err := iss.Tick()
		require.NoError(t, err)
		displayedValid(fmt.Sprintf("tick %d", k))
	}

	// A late tick (ticker starved) still rotates a code that has expired.
	before, _ := iss.Current()
	advance(2500 * time.Millisecond)
	_, rotated, err := iss.Tick()
	require.NoError(t, err)
	assert.True(t, rotated)
	after, _ := iss.Current()
	assert.NotEqual(t, before.Nonce, after.Nonce)
	displayedValid("late tick")
}

func TestIssuer_ForceRegenerateAnyTime(t *testing.T) {
	iss := newTestIssuer(time.Hour)
	a, err := iss.ForceRegenerate()
	require.NoError(t, err)
	_, _, _ = iss.Tick()
	b, err := iss.ForceRegenerate()
	require.NoError(t, err)
	assert.NotEqual(t, a.Nonce, b.Nonce)
	assert.Equal(t, time.Hour, iss.Remaining())
}

func TestIssuer_FailedRotationRetriesNextTick(t *testing.T) {
	fail := atomic.Bool{}
	gen := sequentialNonces()
	iss := newTestIssuer(time.Second, WithNonceFunc(func(n int) (string, error) {
		if fail.Load() {
			return "", errors.New("entropy unavailable")
		}
		return gen(n)
	}))
	_, err := iss.ForceRegenerate()
	require.NoError(t, err)

	fail.Store(true)
	_, _, err = iss.Tick()
	require.Error(t, err)
	assert.Equal(t, StateRotating, iss.State())

	fail.Store(false)
	_, rotated, err := iss.Tick()
	require.NoError(t, err)
	assert.True(t, rotated)
	assert.Equal(t, StateActive, iss.State())
}

func TestIssuer_AuditFailureDoesNotBlock(t *testing.T) {
	var mu sync.Mutex
	var reported []string
	reporter := AuditReporterFunc(func(ctx context.Context, p Payload) error {
		mu.Lock()
		reported = append(reported, p.Nonce)
		mu.Unlock()
		return errors.New("registry unreachable")
	})
	var displayed []string
	iss := newTestIssuer(time.Hour, WithReporter(reporter), OnIssue(func(p Payload) {
		displayed = append(displayed, p.Nonce)
	}))

	p, err := iss.ForceRegenerate()
	require.NoError(t, err)
	iss.Wait()

	assert.Equal(t, []string{p.Nonce}, displayed)
	mu.Lock()
	assert.Equal(t, []string{p.Nonce}, reported)
	mu.Unlock()
	cur, ok := iss.Current()
	require.True(t, ok)
	assert.Equal(t, p.Nonce, cur.Nonce)
}

func TestIssuer_RunStopsOnCancel(t *testing.T) {
	iss := newTestIssuer(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- iss.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, ok := iss.Current()
		return ok
	}, time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRenderPNG(t *testing.T) {
	p := NewPayload(PurposeGlobalCheckIn, Int64(1), "Main", time.Hour, t0, "AB12CD34EF56GH78")
	png, err := RenderPNG(p, 256)
	require.NoError(t, err)
	require.Greater(t, len(png), 8)
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, png[:4])
}
