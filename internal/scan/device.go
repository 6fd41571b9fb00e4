package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"syscall"
)

// Facing selects a camera by which way it points.
type Facing string

const (
	FacingRear  Facing = "environment"
	FacingFront Facing = "user"
)

// DeviceInfo describes one enumerated input device.
type DeviceInfo struct {
	ID     string
	Label  string
	Facing Facing
}

// Constraint selects the device to open: by ID when DeviceID is set,
// otherwise by Facing.
type Constraint struct {
	DeviceID string
	Facing   Facing
}

func (c Constraint) String() string {
	if c.DeviceID != "" {
		return "device " + c.DeviceID
	}
	return "facing " + string(c.Facing)
}

// Camera is the media-access layer: anything that can enumerate and open
// a QR decoding source.
type Camera interface {
	Devices(ctx context.Context) ([]DeviceInfo, error)
	Open(ctx context.Context, c Constraint) (Stream, error)
}

// Stream yields decoded QR text. Read blocks until the next decode, ctx
// is done, or the stream is closed. Close releases the device and must be
// safe to call more than once.
type Stream interface {
	Read(ctx context.Context) (string, error)
	Close() error
}

// Device sentinels a Camera implementation can wrap when the OS error
// does not already say what went wrong.
var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrDeviceNotFound   = errors.New("no camera found")
	ErrDeviceInUse      = errors.New("camera is in use")
)

// ErrorKind is the user-facing category of a device failure.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindPermissionDenied
	KindNotFound
	KindInUse
)

func (k ErrorKind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindNotFound:
		return "not_found"
	case KindInUse:
		return "in_use"
	default:
		return "unknown"
	}
}

// Classify maps a device error to its kind. Permission problems win over
// busy devices, which win over missing ones, so a joined error from several
// fallback attempts reports the most actionable cause.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, fs.ErrPermission):
		return KindPermissionDenied
	case errors.Is(err, ErrDeviceInUse), errors.Is(err, syscall.EBUSY):
		return KindInUse
	case errors.Is(err, ErrDeviceNotFound), errors.Is(err, fs.ErrNotExist):
		return KindNotFound
	default:
		return KindUnknown
	}
}

// DeviceError is returned when the scanner cannot acquire or keep a device.
type DeviceError struct {
	Kind ErrorKind
	Err  error
}

// NewDeviceError classifies err and wraps it.
func NewDeviceError(err error) *DeviceError {
	return &DeviceError{Kind: Classify(err), Err: err}
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("scanner device %s: %v", e.Kind, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// Remediation tells the user how to fix the failure.
func (e *DeviceError) Remediation() string {
	switch e.Kind {
	case KindPermissionDenied:
		return "Camera access was denied. Allow camera access for this app and start the scanner again."
	case KindNotFound:
		return "No camera or QR reader was found. Connect a device or check its configured path."
	case KindInUse:
		return "The camera is being used by another application or scanner. Close it and try again."
	default:
		return "The scanner could not be started. Restart the scanner and try again."
	}
}
