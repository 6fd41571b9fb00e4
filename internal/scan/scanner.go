package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// Handler receives one decode. It runs on its own goroutine so the read
// loop keeps draining the device; pair it with a Deduplicator to drop
// decodes that arrive while an earlier one is still in flight.
type Handler func(ctx context.Context, text string, at time.Time)

// Scanner owns at most one open Stream at a time.
type Scanner struct {
	cam    Camera
	logger *slog.Logger
	now    func() time.Time

	// startMu serialises Start so two callers cannot both open a device.
	// Stop only takes mu, so a Handler may still call it.
	startMu sync.Mutex

	mu     sync.Mutex
	active *Session
}

// NewScanner returns a scanner over cam.
func NewScanner(cam Camera, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{cam: cam, logger: logger, now: time.Now}
}

// Session is one acquisition of the device, from Start to Stop.
type Session struct {
	Constraint Constraint

	stream   Stream
	cancel   context.CancelFunc
	done     chan struct{}
	handlers sync.WaitGroup
	once     sync.Once
	err      error
}

// Done is closed when the read loop has exited and the device is released.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err returns why the read loop ended: nil after Stop, a *DeviceError when
// the device failed, or io.EOF when the reader was unplugged/exhausted.
// Only meaningful after Done is closed.
func (s *Session) Err() error { return s.err }

// Wait blocks until the read loop and every in-flight Handler have returned.
// Do not call it from inside a Handler.
func (s *Session) Wait() {
	<-s.done
	s.handlers.Wait()
}

func (s *Session) release() {
	s.once.Do(func() {
		s.cancel()
		_ = s.stream.Close()
	})
}

// Start stops any previous session, then acquires the device trying, in
// order: each explicitly listed device, the rear-facing camera, the
// front-facing camera. The first that opens wins. If all fail, the
// returned error is a *DeviceError classifying the combined failures.
func (s *Scanner) Start(ctx context.Context, h Handler) (*Session, error) {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.Stop()

	stream, con, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	sess := &Session{
		Constraint: con,
		stream:     stream,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	s.mu.Lock()
	s.active = sess
	s.mu.Unlock()

	s.logger.Info("scanner started", "device", con.String())
	go s.loop(runCtx, sess, h)
	return sess, nil
}

// Stop releases the active device, if any, and waits for its read loop to
// exit. It is safe to call at any time, including from a Handler.
func (s *Scanner) Stop() {
	s.mu.Lock()
	sess := s.active
	s.active = nil
	s.mu.Unlock()

	if sess == nil {
		return
	}
	sess.release()
	<-sess.done
	s.logger.Info("scanner stopped", "device", sess.Constraint.String())
}

// Active reports whether a session currently holds the device.
func (s *Scanner) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active != nil
}

func (s *Scanner) acquire(ctx context.Context) (Stream, Constraint, error) {
	var attempts []Constraint
	devices, err := s.cam.Devices(ctx)
	if err != nil {
		s.logger.Warn("enumerate scanner devices", "err", err)
	}
	for _, d := range devices {
		attempts = append(attempts, Constraint{DeviceID: d.ID})
	}
	attempts = append(attempts, Constraint{Facing: FacingRear}, Constraint{Facing: FacingFront})

	var errs []error
	for _, con := range attempts {
		if err := ctx.Err(); err != nil {
			return nil, Constraint{}, err
		}
		stream, err := s.cam.Open(ctx, con)
		if err == nil {
			return stream, con, nil
		}
		s.logger.Debug("scanner device unavailable", "device", con.String(), "err", err)
		errs = append(errs, err)
	}
	return nil, Constraint{}, NewDeviceError(errors.Join(errs...))
}

func (s *Scanner) loop(ctx context.Context, sess *Session, h Handler) {
	defer close(sess.done)
	// The device is released however the loop ends.
	defer sess.release()

	for {
		text, err := sess.stream.Read(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil, errors.Is(err, io.ErrClosedPipe):
				// Stopped.
			case errors.Is(err, io.EOF):
				sess.err = io.EOF
			default:
				sess.err = NewDeviceError(fmt.Errorf("read: %w", err))
				s.logger.Error("scanner device failed", "err", sess.err)
			}
			s.mu.Lock()
			if s.active == sess {
				s.active = nil
			}
			s.mu.Unlock()
			return
		}

		at := s.now()
		sess.handlers.Add(1)
		go func() {
			defer sess.handlers.Done()
			h(ctx, text, at)
		}()
	}
}
