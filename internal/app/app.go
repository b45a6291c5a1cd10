package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/petems/mixer-tray/internal/config"
	"github.com/petems/mixer-tray/internal/mixer"
	"github.com/rs/zerolog"
)

// VolumeStep is the change applied by a single volume up/down action.
const VolumeStep = 0.1

// Mixer is the subset of *mixer.Mixer the application drives.
type Mixer interface {
	Start(ctx context.Context) error
	SyncNow(ctx context.Context) error
	ActiveDisplayNames(ctx context.Context) ([]string, error)
	SetHidden(keys []string)
	Groups() []mixer.GroupView
	Master() mixer.ChannelView
	SetVolume(key string, v float32) error
	SetMute(key string, muted bool) error
	SetMasterVolume(v float32) error
	SetMasterMute(muted bool) error
	Move(from, to int) bool
	Order() []string
	Close() error
}

// StatusUpdater is an interface for updating status (e.g., tray icon)
type StatusUpdater interface {
	SetReady()
	SetNoDevice()
	SetError()
}

type Config struct {
	Mixer         Mixer
	Config        *config.Config
	Logger        zerolog.Logger
	StatusUpdater StatusUpdater // Optional - can be nil
}

type App struct {
	mixer  Mixer
	cfg    *config.Config
	log    zerolog.Logger
	status StatusUpdater

	mu     sync.Mutex
	closed bool
}

func New(cfg Config) *App {
	return &App{
		mixer:  cfg.Mixer,
		cfg:    cfg.Config,
		log:    cfg.Logger.With().Str("component", "app").Logger(),
		status: cfg.StatusUpdater,
	}
}

// SetStatusUpdater sets the status sink (for circular dependency resolution)
func (a *App) SetStatusUpdater(s StatusUpdater) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.status = s
}

// Start runs the mixer's first sync and starts its ticks.
func (a *App) Start(ctx context.Context) error {
	if err := a.mixer.Start(ctx); err != nil {
		a.setError()
		return fmt.Errorf("failed to start mixer: %w", err)
	}
	a.RefreshStatus()
	return nil
}

// RefreshStatus reports device availability to the status updater.
func (a *App) RefreshStatus() {
	a.mu.Lock()
	status := a.status
	a.mu.Unlock()
	if status == nil {
		return
	}
	if a.mixer.Master().Available {
		status.SetReady()
	} else {
		status.SetNoDevice()
	}
}

func (a *App) setError() {
	a.mu.Lock()
	status := a.status
	a.mu.Unlock()
	if status != nil {
		status.SetError()
	}
}

func (a *App) Groups() []mixer.GroupView {
	return a.mixer.Groups()
}

func (a *App) Master() mixer.ChannelView {
	return a.mixer.Master()
}

// HiddenApps returns the persisted hidden display names.
func (a *App) HiddenApps() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg.Hidden()
}

// IsHidden reports whether name is in the persisted hidden list.
func (a *App) IsHidden(name string) bool {
	return slices.Contains(a.HiddenApps(), name)
}

// HideApp adds name to the hidden list, saves it and reconciles at once so
// the group disappears without waiting for the next slow tick.
func (a *App) HideApp(ctx context.Context, name string) error {
	return a.updateHidden(ctx, func(hidden []string) []string {
		if slices.Contains(hidden, name) {
			return hidden
		}
		return append(hidden, name)
	})
}

// ShowApp removes name from the hidden list.
func (a *App) ShowApp(ctx context.Context, name string) error {
	return a.updateHidden(ctx, func(hidden []string) []string {
		return slices.DeleteFunc(hidden, func(h string) bool { return h == name })
	})
}

// ToggleHidden flips name's hidden state and returns the new state.
func (a *App) ToggleHidden(ctx context.Context, name string) (bool, error) {
	if a.IsHidden(name) {
		return false, a.ShowApp(ctx, name)
	}
	return true, a.HideApp(ctx, name)
}

func (a *App) updateHidden(ctx context.Context, fn func([]string) []string) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return mixer.ErrClosed
	}
	hidden := fn(a.cfg.Hidden())
	a.cfg.SetHidden(hidden)
	err := a.cfg.Save()
	a.mu.Unlock()

	if err != nil {
		a.log.Error().Err(err).Msg("Failed to save hidden apps")
		a.setError()
	}

	a.mixer.SetHidden(hidden)
	if syncErr := a.mixer.SyncNow(ctx); syncErr != nil {
		a.log.Warn().Err(syncErr).Msg("Sync after hidden change failed")
	}
	a.log.Info().Strs("hidden", hidden).Msg("Changed hidden apps")
	return err
}

// ReloadHidden re-reads the hidden list from disk, picking up edits made by
// other processes, and applies it when it changed.
func (a *App) ReloadHidden(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return mixer.ErrClosed
	}
	disk, err := config.LoadFrom(a.cfg.Path())
	if err != nil {
		a.mu.Unlock()
		return fmt.Errorf("failed to reload config: %w", err)
	}
	hidden := disk.Hidden()
	if slices.Equal(hidden, a.cfg.Hidden()) {
		a.mu.Unlock()
		return nil
	}
	a.cfg.SetHidden(hidden)
	a.mu.Unlock()

	a.mixer.SetHidden(hidden)
	if err := a.mixer.SyncNow(ctx); err != nil {
		a.log.Warn().Err(err).Msg("Sync after hidden reload failed")
	}
	a.log.Info().Strs("hidden", hidden).Msg("Reloaded hidden apps")
	return nil
}

// KnownApps lists every name a user may hide or show: the display names of
// processes with a session, followed by hidden names not currently active.
func (a *App) KnownApps(ctx context.Context) ([]string, error) {
	active, err := a.mixer.ActiveDisplayNames(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active apps: %w", err)
	}
	names := slices.Clone(active)
	for _, h := range a.HiddenApps() {
		if !slices.Contains(names, h) {
			names = append(names, h)
		}
	}
	return names, nil
}

// ActiveNamesText is the newline-joined list of active display names.
func (a *App) ActiveNamesText(ctx context.Context) (string, error) {
	names, err := a.mixer.ActiveDisplayNames(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list active apps: %w", err)
	}
	return strings.Join(names, "\n"), nil
}

// AdjustVolume moves key's volume by delta from its last observed value.
func (a *App) AdjustVolume(key string, delta float32) error {
	g, ok := a.group(key)
	if !ok {
		return mixer.ErrUnknownGroup
	}
	return a.mixer.SetVolume(key, g.Volume+delta)
}

func (a *App) ToggleMute(key string) error {
	g, ok := a.group(key)
	if !ok {
		return mixer.ErrUnknownGroup
	}
	return a.mixer.SetMute(key, !g.Muted)
}

func (a *App) AdjustMasterVolume(delta float32) error {
	return a.mixer.SetMasterVolume(a.mixer.Master().Volume + delta)
}

func (a *App) ToggleMasterMute() error {
	return a.mixer.SetMasterMute(!a.mixer.Master().Muted)
}

func (a *App) group(key string) (mixer.GroupView, bool) {
	for _, g := range a.mixer.Groups() {
		if g.Key == key {
			return g, true
		}
	}
	return mixer.GroupView{}, false
}

// MoveUp swaps key with the group before it.
func (a *App) MoveUp(key string) bool {
	return a.moveBy(key, -1)
}

// MoveDown swaps key with the group after it.
func (a *App) MoveDown(key string) bool {
	return a.moveBy(key, 1)
}

func (a *App) moveBy(key string, delta int) bool {
	from := slices.Index(a.mixer.Order(), key)
	if from < 0 {
		return false
	}
	return a.mixer.Move(from, from+delta)
}

// Shutdown persists the current display order and closes the mixer.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true

	a.cfg.SetOrder(a.mixer.Order())
	saveErr := a.cfg.Save()
	if saveErr != nil {
		a.log.Error().Err(saveErr).Msg("Failed to save app order")
	}

	if err := a.mixer.Close(); err != nil {
		return fmt.Errorf("failed to close mixer: %w", err)
	}
	return saveErr
}
