// Package audiotest provides an in-memory audio backend for tests.
//
// Streams model the OS-side state of a session. Every call to Sessions
// returns fresh Session wrappers over the live streams, the same way an OS
// enumeration hands out new references, and the backend counts how many of
// those references are still unreleased.
package audiotest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/petems/mixer-tray/internal/audio"
)

// Stream is the OS-side state behind one session.
type Stream struct {
	mu      sync.Mutex
	pid     int
	state   audio.State
	volume  float32
	muted   bool
	peak    float32
	peakErr error

	volumeWrites int
	muteWrites   int
}

func (s *Stream) SetPeak(p float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peak = p
}

// FailPeak makes peak reads fail with err until cleared with nil.
func (s *Stream) FailPeak(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peakErr = err
}

func (s *Stream) SetState(st audio.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

// SetExternalVolume changes the volume as another program would.
func (s *Stream) SetExternalVolume(v float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = v
}

func (s *Stream) SetExternalMute(m bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = m
}

func (s *Stream) Volume() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *Stream) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// VolumeWrites counts SetVolume calls that reached the stream.
func (s *Stream) VolumeWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volumeWrites
}

func (s *Stream) MuteWrites() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muteWrites
}

// Backend is an in-memory audio.Backend.
type Backend struct {
	mu           sync.Mutex
	streams      []*Stream
	names        map[int]string
	device       *Device
	deviceErr    error
	sessionsErr  error
	opened       int
	released     int
	doubleFrees  int
	enumerations int
	closed       bool
}

func NewBackend() *Backend {
	return &Backend{
		names:  make(map[int]string),
		device: NewDevice("Speakers"),
	}
}

// AddStream registers a live stream with volume 1 and returns it.
func (b *Backend) AddStream(pid int, state audio.State) *Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := &Stream{pid: pid, state: state, volume: 1}
	b.streams = append(b.streams, s)
	return s
}

// Kill removes every stream belonging to pid.
func (b *Backend) Kill(pid int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.streams[:0]
	for _, s := range b.streams {
		if s.pid != pid {
			kept = append(kept, s)
		}
	}
	b.streams = kept
}

// SetDescription sets the description the backend reports for pid.
func (b *Backend) SetDescription(pid int, name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.names[pid] = name
}

func (b *Backend) Description(pid int) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n, ok := b.names[pid]; ok {
		return n, nil
	}
	return "", fmt.Errorf("no description for pid %d", pid)
}

// SetDevice replaces the default device. A nil device with a nil error
// makes DefaultDevice report audio.ErrNoDevice.
func (b *Backend) SetDevice(d *Device, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.device = d
	b.deviceErr = err
}

// FailSessions makes enumeration fail with err until cleared with nil.
func (b *Backend) FailSessions(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessionsErr = err
}

func (b *Backend) Sessions(ctx context.Context) ([]audio.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, audio.ErrClosed
	}
	if b.sessionsErr != nil {
		return nil, b.sessionsErr
	}
	b.enumerations++
	out := make([]audio.Session, 0, len(b.streams))
	for _, s := range b.streams {
		out = append(out, &Session{stream: s, backend: b})
		b.opened++
	}
	return out, nil
}

func (b *Backend) DefaultDevice(ctx context.Context) (audio.Device, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deviceErr != nil {
		return nil, b.deviceErr
	}
	if b.device == nil {
		return nil, audio.ErrNoDevice
	}
	return b.device, nil
}

func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Outstanding is the number of handed-out sessions not yet released.
func (b *Backend) Outstanding() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opened - b.released
}

// DoubleReleases counts Release calls on already released sessions.
func (b *Backend) DoubleReleases() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.doubleFrees
}

func (b *Backend) Enumerations() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enumerations
}

// ErrReleased is returned by a Session used after Release.
var ErrReleased = errors.New("audiotest: session used after release")

// Session is one handed-out reference to a Stream.
type Session struct {
	stream   *Stream
	backend  *Backend
	mu       sync.Mutex
	released bool
	releases int
}

func (s *Session) PID() int { return s.stream.pid }

func (s *Session) State() audio.State {
	s.stream.mu.Lock()
	defer s.stream.mu.Unlock()
	return s.stream.state
}

func (s *Session) check() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return ErrReleased
	}
	return nil
}

func (s *Session) Volume() (float32, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	return s.stream.Volume(), nil
}

func (s *Session) SetVolume(v float32) error {
	if err := s.check(); err != nil {
		return err
	}
	s.stream.mu.Lock()
	defer s.stream.mu.Unlock()
	s.stream.volume = v
	s.stream.volumeWrites++
	return nil
}

func (s *Session) Mute() (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	return s.stream.Muted(), nil
}

func (s *Session) SetMute(m bool) error {
	if err := s.check(); err != nil {
		return err
	}
	s.stream.mu.Lock()
	defer s.stream.mu.Unlock()
	s.stream.muted = m
	s.stream.muteWrites++
	return nil
}

func (s *Session) Peak() (float32, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	s.stream.mu.Lock()
	defer s.stream.mu.Unlock()
	if s.stream.peakErr != nil {
		return 0, s.stream.peakErr
	}
	return s.stream.peak, nil
}

func (s *Session) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases++
	s.backend.mu.Lock()
	defer s.backend.mu.Unlock()
	if s.released {
		s.backend.doubleFrees++
		return nil
	}
	s.released = true
	s.backend.released++
	return nil
}

// Releases reports how many times Release was called on this reference.
func (s *Session) Releases() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases
}

// Device is an in-memory default device.
type Device struct {
	mu       sync.Mutex
	name     string
	volume   float32
	muted    bool
	peak     float32
	peakErr  error
	released int
}

func NewDevice(name string) *Device {
	return &Device{name: name, volume: 1}
}

func (d *Device) Name() string { return d.name }

func (d *Device) Volume() (float32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.volume, nil
}

func (d *Device) SetVolume(v float32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.volume = v
	return nil
}

func (d *Device) Mute() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.muted, nil
}

func (d *Device) SetMute(m bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.muted = m
	return nil
}

func (d *Device) SetPeak(p float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peak = p
}

func (d *Device) FailPeak(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peakErr = err
}

func (d *Device) Peak() (float32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.peakErr != nil {
		return 0, d.peakErr
	}
	return d.peak, nil
}

func (d *Device) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.released++
	return nil
}

// Releases reports how many times the device was released.
func (d *Device) Releases() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.released
}
