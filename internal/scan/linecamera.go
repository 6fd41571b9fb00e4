package scan

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// StdinDevice is the device ID that reads decodes from standard input.
const StdinDevice = "-"

// LineCamera is a Camera for line-oriented QR readers: USB scanners in
// keyboard-wedge or serial mode emit one decoded payload per line. Device
// IDs are file paths (for example /dev/ttyACM0); "-" reads os.Stdin.
//
// A path can be held by one stream at a time; a second Open of the same
// path fails with ErrDeviceInUse until the first stream is closed.
type LineCamera struct {
	// Listed is what Devices returns: the explicit device list.
	Listed []DeviceInfo
	// Rear and Front are the paths used for facing constraints.
	Rear  string
	Front string
	// Stdin overrides os.Stdin for the "-" device.
	Stdin io.Reader

	mu    sync.Mutex
	inUse map[string]bool

	// stdin cannot be closed to stop a reader, so every "-" stream shares
	// one pump and a line goes to whichever stream reads it.
	stdinOnce sync.Once
	stdin     *linePump
}

func (c *LineCamera) Devices(ctx context.Context) ([]DeviceInfo, error) {
	return append([]DeviceInfo(nil), c.Listed...), nil
}

func (c *LineCamera) Open(ctx context.Context, con Constraint) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := con.DeviceID
	if path == "" {
		switch con.Facing {
		case FacingRear:
			path = c.Rear
		case FacingFront:
			path = c.Front
		}
	}
	if path == "" {
		return nil, fmt.Errorf("%s: %w", con, ErrDeviceNotFound)
	}

	if !c.claim(path) {
		return nil, fmt.Errorf("%s: %w", path, ErrDeviceInUse)
	}

	s := &lineStream{
		closed:  make(chan struct{}),
		release: func() { c.release(path) },
	}
	if path == StdinDevice {
		c.stdinOnce.Do(func() {
			r := c.Stdin
			if r == nil {
				r = os.Stdin
			}
			c.stdin = startPump(r, nil)
		})
		s.pump = c.stdin
		return s, nil
	}

	f, err := os.Open(path)
	if err != nil {
		c.release(path)
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	s.closer = f
	s.pump = startPump(f, s.closed)
	return s, nil
}

func (c *LineCamera) claim(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inUse == nil {
		c.inUse = make(map[string]bool)
	}
	if c.inUse[path] {
		return false
	}
	c.inUse[path] = true
	return true
}

func (c *LineCamera) release(path string) {
	c.mu.Lock()
	delete(c.inUse, path)
	c.mu.Unlock()
}

// linePump reads non-empty trimmed lines from r until EOF, a read error,
// or stop. It then sets err and closes done.
type linePump struct {
	lines chan string
	done  chan struct{}
	err   error
}

func startPump(r io.Reader, stop <-chan struct{}) *linePump {
	p := &linePump{lines: make(chan string), done: make(chan struct{})}
	go p.run(r, stop)
	return p
}

func (p *linePump) run(r io.Reader, stop <-chan struct{}) {
	defer close(p.done)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 64*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		select {
		case p.lines <- line:
		case <-stop:
			p.err = io.ErrClosedPipe
			return
		}
	}
	p.err = sc.Err()
	if p.err == nil {
		p.err = io.EOF
	}
}

type lineStream struct {
	pump    *linePump
	closed  chan struct{}
	closer  io.Closer
	release func()
	once    sync.Once
}

func (s *lineStream) Read(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.closed:
		return "", io.ErrClosedPipe
	case line := <-s.pump.lines:
		return line, nil
	case <-s.pump.done:
		return "", s.pump.err
	}
}

func (s *lineStream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.closed)
		if s.closer != nil {
			err = s.closer.Close()
			if errors.Is(err, os.ErrClosed) {
				err = nil
			}
		}
		s.release()
	})
	return err
}
