// Package scan turns a noisy stream of camera/reader decodes into at most
// one accepted scan at a time, and owns the scanning device while it runs.
package scan

import (
	"context"
	"sync"
	"time"
)

// DefaultWindow is how long an identical decode is ignored after it was processed.
const DefaultWindow = 3000 * time.Millisecond

// Deduplicator gates a scan-accept callback.
//
// A reader that has a code in view fires many decodes per second. The
// deduplicator drops:
//   - a decode whose text equals the last processed text and arrives less
//     than Window after it;
//   - any decode arriving while an earlier one is still being processed.
//     There is one in-flight slot and no queue: late arrivals are dropped.
//
// It is safe for concurrent use.
type Deduplicator struct {
	Window time.Duration

	mu         sync.Mutex
	lastText   string
	lastAt     time.Time
	hasLast    bool
	processing bool
}

// NewDeduplicator returns a Deduplicator with the given window
// (DefaultWindow when window <= 0).
func NewDeduplicator(window time.Duration) *Deduplicator {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Deduplicator{Window: window}
}

// Process runs fn for the decode (text, at) unless it is suppressed.
// accepted reports whether fn ran; err is fn's error.
func (d *Deduplicator) Process(ctx context.Context, text string, at time.Time, fn func(ctx context.Context, text string) error) (accepted bool, err error) {
	if !d.acquire(text, at) {
		return false, nil
	}
	defer d.release()
	return true, fn(ctx, text)
}

// Reset forgets the last processed decode, so the same code can be
// accepted again immediately. Call it when a new scanner session starts.
func (d *Deduplicator) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hasLast = false
	d.lastText = ""
	d.lastAt = time.Time{}
}

func (d *Deduplicator) acquire(text string, at time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.processing {
		return false
	}
	window := d.Window
	if window <= 0 {
		window = DefaultWindow
	}
	if d.hasLast && text == d.lastText && at.Sub(d.lastAt) < window {
		return false
	}

	d.processing = true
	d.hasLast = true
	d.lastText = text
	d.lastAt = at
	return true
}

func (d *Deduplicator) release() {
	d.mu.Lock()
	d.processing = false
	d.mu.Unlock()
}
