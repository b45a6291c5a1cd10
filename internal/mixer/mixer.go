// Package mixer aggregates OS audio sessions into per-application groups,
// keeps them reconciled with the live session list, and derives the
// volume, mute and peak state shown for each group and the master device.
//
// All model state sits behind one mutex. The scheduler's fast and slow
// ticks run on a single goroutine; UI calls take the same lock.
package mixer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/petems/mixer-tray/internal/audio"
	"github.com/petems/mixer-tray/internal/procinfo"
	"github.com/rs/zerolog"
)

var (
	// ErrUnknownGroup is returned for a display key with no tracked group.
	ErrUnknownGroup = errors.New("no such application")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("mixer closed")
)

const (
	DefaultPeakInterval = 16 * time.Millisecond
	DefaultSyncInterval = 3 * time.Second
	DefaultSyncTimeout  = 2 * time.Second
)

type Config struct {
	Backend audio.Backend
	Names   procinfo.Source
	Logger  zerolog.Logger

	// Hidden display keys are never tracked.
	Hidden []string
	// Order is applied once after the first sync.
	Order []string

	PeakInterval time.Duration
	SyncInterval time.Duration
	SyncTimeout  time.Duration

	Observer Observer // Optional - can be nil
}

type Mixer struct {
	backend audio.Backend
	log     zerolog.Logger

	syncTimeout time.Duration
	order       []string
	sched       *Scheduler

	mu        sync.Mutex
	engine    *Engine
	master    *Master
	hidden    map[string]struct{}
	observers []Observer
	started   bool
	closed    bool
}

func New(cfg Config) *Mixer {
	log := cfg.Logger.With().Str("component", "mixer").Logger()

	if cfg.PeakInterval <= 0 {
		cfg.PeakInterval = DefaultPeakInterval
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}
	if cfg.SyncTimeout <= 0 {
		cfg.SyncTimeout = DefaultSyncTimeout
	}

	names := cfg.Names
	if names == nil {
		names = procinfo.System{}
	}

	m := &Mixer{
		backend:     cfg.Backend,
		log:         log,
		syncTimeout: cfg.SyncTimeout,
		order:       cfg.Order,
		sched:       NewScheduler(cfg.PeakInterval, cfg.SyncInterval),
		hidden:      toSet(cfg.Hidden),
	}
	if cfg.Observer != nil {
		m.observers = append(m.observers, cfg.Observer)
	}

	m.engine = newEngine(cfg.Backend, names, log, m.notify)
	m.master = newMaster(log, m.notify)
	return m
}

// Subscribe adds an observer.
func (m *Mixer) Subscribe(o Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, o)
}

// notify runs with m.mu held.
func (m *Mixer) notify(c Change) {
	for _, o := range m.observers {
		o.Changed(c)
	}
}

// Start acquires the default device, runs the first sync, applies the
// persisted order and starts the tick loop. Device or enumeration failures
// are logged; the mixer keeps running with inert state.
func (m *Mixer) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true

	m.acquireDeviceLocked(ctx)
	if err := m.syncLocked(ctx); err != nil {
		m.log.Warn().Err(err).Msg("Initial sync failed")
	}
	m.engine.ApplyOrder(m.order)
	m.log.Info().Int("groups", len(m.engine.groups)).Bool("master", m.master.Available()).Msg("Mixer started")
	m.mu.Unlock()

	m.sched.Start(ctx, m.fastTick, m.slowTick)
	return nil
}

func (m *Mixer) fastTick(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.engine.Tick()
	m.master.tick()
}

func (m *Mixer) slowTick(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if !m.master.Available() {
		m.acquireDeviceLocked(ctx)
	}
	if err := m.syncLocked(ctx); err != nil {
		m.log.Warn().Err(err).Msg("Sync failed")
	}
}

func (m *Mixer) acquireDeviceLocked(ctx context.Context) {
	if m.backend == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, m.syncTimeout)
	defer cancel()

	dev, err := m.backend.DefaultDevice(ctx)
	if err != nil {
		m.log.Debug().Err(err).Msg("Default device unavailable")
		return
	}
	m.master.attach(dev)
	m.log.Info().Str("device", dev.Name()).Msg("Master channel attached")
}

func (m *Mixer) syncLocked(ctx context.Context) error {
	if m.backend == nil {
		return audio.ErrNoDevice
	}
	ctx, cancel := context.WithTimeout(ctx, m.syncTimeout)
	defer cancel()

	start := time.Now()
	if err := m.engine.Sync(ctx, m.hidden); err != nil {
		return err
	}
	m.log.Debug().Dur("took", time.Since(start)).Int("groups", len(m.engine.groups)).Msg("Synced sessions")
	return nil
}

// SyncNow forces an immediate reconciliation.
func (m *Mixer) SyncNow(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return m.syncLocked(ctx)
}

// ActiveDisplayNames returns the display keys of every process that
// currently has a session, independent of tracked groups and hidden keys.
func (m *Mixer) ActiveDisplayNames(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if m.backend == nil {
		return nil, nil
	}
	return m.engine.ActiveDisplayNames(ctx)
}

// SetHidden replaces the hidden display keys. It takes effect on the next
// sync; call SyncNow to apply it immediately.
func (m *Mixer) SetHidden(keys []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hidden = toSet(keys)
}

// Hidden reports whether key is hidden.
func (m *Mixer) Hidden(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return contains(m.hidden, key)
}

// Groups returns a snapshot of tracked groups in display order.
func (m *Mixer) Groups() []GroupView {
	m.mu.Lock()
	defer m.mu.Unlock()
	views := make([]GroupView, len(m.engine.groups))
	for i, g := range m.engine.groups {
		views[i] = g.View()
	}
	return views
}

// Master returns a snapshot of the master channel.
func (m *Mixer) Master() ChannelView {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.master.View()
}

func (m *Mixer) SetVolume(key string, v float32) error {
	return m.withGroup(key, func(g *Group) { g.SetVolume(v) })
}

func (m *Mixer) SetMute(key string, muted bool) error {
	return m.withGroup(key, func(g *Group) { g.SetMute(muted) })
}

func (m *Mixer) withGroup(key string, fn func(g *Group)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	g := m.engine.find(key)
	if g == nil {
		return ErrUnknownGroup
	}
	fn(g)
	return nil
}

func (m *Mixer) SetMasterVolume(v float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if !m.master.Available() {
		return audio.ErrNoDevice
	}
	m.master.SetVolume(v)
	return nil
}

func (m *Mixer) SetMasterMute(muted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if !m.master.Available() {
		return audio.ErrNoDevice
	}
	m.master.SetMute(muted)
	return nil
}

// Move relocates a group, as a drag in the UI would.
func (m *Mixer) Move(from, to int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.Move(from, to)
}

// ApplyOrder reorders groups by a persisted key list.
func (m *Mixer) ApplyOrder(order []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.engine.ApplyOrder(order)
}

// Order returns the display keys in current order.
func (m *Mixer) Order() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.engine.Order()
}

// Close stops both ticks, then releases every group, then the master
// device. The backend itself is left to its owner.
func (m *Mixer) Close() error {
	m.sched.Stop()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.engine.Close()
	m.master.release()
	m.log.Info().Msg("Mixer closed")
	return nil
}

func toSet(keys []string) map[string]struct{} {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set
}
