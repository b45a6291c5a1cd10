package audio

import (
	"context"
	"errors"
)

var (
	// ErrNoDevice is returned when no default render device is available.
	ErrNoDevice = errors.New("no default audio output device")
	// ErrPeakUnavailable is returned when a session or device cannot be metered.
	ErrPeakUnavailable = errors.New("peak meter unavailable")
	// ErrClosed is returned by operations on a released session or closed backend.
	ErrClosed = errors.New("audio resource released")
)

// State is the lifecycle state the OS reports for a session.
type State int

const (
	StateInactive State = iota
	StateActive
	// StateExpired covers expired and not-yet-stable transitional sessions.
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateInactive:
		return "inactive"
	default:
		return "expired"
	}
}

// Control is the volume, mute and metering surface shared by sessions and
// devices. Scalars are in [0, 1].
type Control interface {
	Volume() (float32, error)
	SetVolume(v float32) error
	Mute() (bool, error)
	SetMute(muted bool) error
	Peak() (float32, error)
	// Release frees the underlying OS reference.
	Release() error
}

// Session is one OS audio stream context owned by a process.
type Session interface {
	Control
	PID() int
	State() State
}

// Device is the default render endpoint.
type Device interface {
	Control
	Name() string
}

// Backend is the OS audio subsystem.
type Backend interface {
	// Sessions refreshes and lists the current sessions. Every returned
	// session is owned by the caller and must be released.
	Sessions(ctx context.Context) ([]Session, error)
	// DefaultDevice resolves the default render device.
	DefaultDevice(ctx context.Context) (Device, error)
	Close() error
}

// Describer is implemented by backends that know a human-readable
// application description for the processes behind their sessions.
type Describer interface {
	Description(pid int) (string, error)
}

// Clamp limits v to [0, 1].
func Clamp(v float32) float32 {
	if v != v || v < 0 { // NaN
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
