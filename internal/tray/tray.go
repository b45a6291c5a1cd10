package tray

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/atotto/clipboard"
	"github.com/getlantern/systray"
	"github.com/petems/mixer-tray/internal/app"
	"github.com/petems/mixer-tray/internal/logging"
	"github.com/petems/mixer-tray/internal/mixer"
	"github.com/rs/zerolog"
)

const (
	// maxGroups is the number of pre-built application entries. systray
	// cannot remove items, so entries are pooled and hidden when unused.
	maxGroups = 16
	// maxHidden is the number of pre-built Hidden Apps entries.
	maxHidden = 24

	meterWidth     = 10
	renderInterval = 100 * time.Millisecond
	namesInterval  = 3 * time.Second
)

type UI struct {
	app     *app.App
	version string
	commit  string
	log     zerolog.Logger

	dirty atomic.Bool

	mu     sync.Mutex
	status string
	ready  bool

	// Menu items
	mMaster     *systray.MenuItem
	mMasterMute *systray.MenuItem
	mMasterUp   *systray.MenuItem
	mMasterDown *systray.MenuItem
	mOverflow   *systray.MenuItem
	mHidden     *systray.MenuItem
	groups      []*groupSlot
	hidden      []*hiddenSlot
}

// groupSlot is one pooled application entry and its submenu.
type groupSlot struct {
	key string

	item  *systray.MenuItem
	mute  *systray.MenuItem
	up    *systray.MenuItem
	down  *systray.MenuItem
	left  *systray.MenuItem
	right *systray.MenuItem
	hide  *systray.MenuItem
}

type hiddenSlot struct {
	name string
	item *systray.MenuItem
}

func New(application *app.App, version, commit string) *UI {
	return &UI{
		app:     application,
		version: version,
		commit:  commit,
		log:     logging.New().With().Str("component", "tray").Logger(),
		status:  "idle",
	}
}

// SetApp sets the app reference (for circular dependency resolution)
func (u *UI) SetApp(application *app.App) {
	u.app = application
}

// SetLogger replaces the default logger.
func (u *UI) SetLogger(log zerolog.Logger) {
	u.log = log.With().Str("component", "tray").Logger()
}

// Changed marks the menu for re-render. It runs on the mixer's goroutine
// with the mixer lock held, so it only flips a flag.
func (u *UI) Changed(mixer.Change) {
	u.dirty.Store(true)
}

// Status update methods for the app to call
func (u *UI) SetReady() {
	u.updateStatus("ready")
}

func (u *UI) SetNoDevice() {
	u.updateStatus("no-device")
}

func (u *UI) SetError() {
	u.updateStatus("error")
}

// Run blocks on the systray event loop until Quit or ctx is cancelled.
func (u *UI) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		systray.Quit()
	}()
	systray.Run(func() { u.onReady(ctx) }, u.onExit)
	return nil
}

func (u *UI) onReady(ctx context.Context) {
	u.mu.Lock()
	u.ready = true
	status := u.status
	u.mu.Unlock()
	u.updateStatus(status)
	systray.SetTooltip("Per-application volume mixer")

	u.mMaster = systray.AddMenuItem("Master: no device", "Default output device")
	u.mMasterMute = u.mMaster.AddSubMenuItemCheckbox("Mute", "Mute the output device", false)
	u.mMasterUp = u.mMaster.AddSubMenuItem("Volume +10%", "")
	u.mMasterDown = u.mMaster.AddSubMenuItem("Volume -10%", "")
	systray.AddSeparator()

	for i := 0; i < maxGroups; i++ {
		s := &groupSlot{item: systray.AddMenuItem("", "")}
		s.mute = s.item.AddSubMenuItemCheckbox("Mute", "", false)
		s.up = s.item.AddSubMenuItem("Volume +10%", "")
		s.down = s.item.AddSubMenuItem("Volume -10%", "")
		s.left = s.item.AddSubMenuItem("Move Up", "")
		s.right = s.item.AddSubMenuItem("Move Down", "")
		s.hide = s.item.AddSubMenuItem("Hide", "Stop showing this application")
		s.item.Hide()
		u.groups = append(u.groups, s)
		go u.handleGroup(ctx, s)
	}
	u.mOverflow = systray.AddMenuItem("", "")
	u.mOverflow.Disable()
	u.mOverflow.Hide()

	systray.AddSeparator()
	u.mHidden = systray.AddMenuItem("Hidden Apps", "Choose applications to hide")
	for i := 0; i < maxHidden; i++ {
		s := &hiddenSlot{item: u.mHidden.AddSubMenuItemCheckbox("", "", false)}
		s.item.Hide()
		u.hidden = append(u.hidden, s)
		go u.handleHidden(ctx, s)
	}
	mCopy := systray.AddMenuItem("Copy App Names", "Copy active application names")

	systray.AddSeparator()
	mAbout := systray.AddMenuItem("About", "About MixerTray")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	u.render()
	u.renderHidden(ctx)

	// Event loop
	go u.handleEvents(ctx, mCopy, mAbout, mQuit)
	go u.renderLoop(ctx)
}

func (u *UI) handleEvents(ctx context.Context, mCopy, mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-u.mMasterMute.ClickedCh:
			u.logErr(u.app.ToggleMasterMute(), "Failed to toggle master mute")
		case <-u.mMasterUp.ClickedCh:
			u.logErr(u.app.AdjustMasterVolume(app.VolumeStep), "Failed to raise master volume")
		case <-u.mMasterDown.ClickedCh:
			u.logErr(u.app.AdjustMasterVolume(-app.VolumeStep), "Failed to lower master volume")
		case <-mCopy.ClickedCh:
			u.copyNames(ctx)
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

func (u *UI) handleGroup(ctx context.Context, s *groupSlot) {
	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case <-s.mute.ClickedCh:
			err = u.app.ToggleMute(u.slotKey(s))
		case <-s.up.ClickedCh:
			err = u.app.AdjustVolume(u.slotKey(s), app.VolumeStep)
		case <-s.down.ClickedCh:
			err = u.app.AdjustVolume(u.slotKey(s), -app.VolumeStep)
		case <-s.left.ClickedCh:
			u.app.MoveUp(u.slotKey(s))
		case <-s.right.ClickedCh:
			u.app.MoveDown(u.slotKey(s))
		case <-s.hide.ClickedCh:
			err = u.app.HideApp(ctx, u.slotKey(s))
			u.renderHidden(ctx)
		}
		u.logErr(err, "Group action failed")
		u.dirty.Store(true)
	}
}

func (u *UI) handleHidden(ctx context.Context, s *hiddenSlot) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.item.ClickedCh:
			u.mu.Lock()
			name := s.name
			u.mu.Unlock()
			if name == "" {
				continue
			}
			hidden, err := u.app.ToggleHidden(ctx, name)
			if err != nil {
				u.log.Error().Err(err).Str("app", name).Msg("Failed to change hidden apps")
			}
			if hidden {
				s.item.Check()
			} else {
				s.item.Uncheck()
			}
			u.dirty.Store(true)
		}
	}
}

func (u *UI) slotKey(s *groupSlot) string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return s.key
}

func (u *UI) renderLoop(ctx context.Context) {
	render := time.NewTicker(renderInterval)
	defer render.Stop()
	names := time.NewTicker(namesInterval)
	defer names.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-render.C:
			if u.dirty.Swap(false) {
				u.render()
			}
		case <-names.C:
			if err := u.app.ReloadHidden(ctx); err != nil {
				u.log.Debug().Err(err).Msg("Failed to reload hidden apps")
			}
			u.renderHidden(ctx)
			u.app.RefreshStatus()
		}
	}
}

// render copies the mixer snapshot into the pooled menu items.
func (u *UI) render() {
	master := u.app.Master()
	groups := u.app.Groups()

	u.mMaster.SetTitle(masterTitle(master))
	if master.Muted {
		u.mMasterMute.Check()
	} else {
		u.mMasterMute.Uncheck()
	}

	shown, overflow := visibleGroups(groups, len(u.groups))

	u.mu.Lock()
	defer u.mu.Unlock()
	for i, s := range u.groups {
		if i >= len(shown) {
			s.key = ""
			s.item.Hide()
			continue
		}
		g := shown[i]
		s.key = g.Key
		s.item.SetTitle(groupTitle(g))
		s.item.SetTooltip(g.Icon)
		if g.Muted {
			s.mute.Check()
		} else {
			s.mute.Uncheck()
		}
		s.item.Show()
	}

	if overflow > 0 {
		u.mOverflow.SetTitle(fmt.Sprintf("%d more…", overflow))
		u.mOverflow.Show()
	} else {
		u.mOverflow.Hide()
	}
}

// renderHidden refreshes the Hidden Apps submenu with every active name
// plus hidden names that are not currently playing.
func (u *UI) renderHidden(ctx context.Context) {
	names, err := u.app.KnownApps(ctx)
	if err != nil {
		u.log.Debug().Err(err).Msg("Failed to list apps")
		return
	}
	hidden := u.app.HiddenApps()

	u.mu.Lock()
	defer u.mu.Unlock()
	for i, s := range u.hidden {
		if i >= len(names) {
			s.name = ""
			s.item.Hide()
			continue
		}
		s.name = names[i]
		s.item.SetTitle(names[i])
		if slices.Contains(hidden, names[i]) {
			s.item.Check()
		} else {
			s.item.Uncheck()
		}
		s.item.Show()
	}
}

func (u *UI) copyNames(ctx context.Context) {
	text, err := u.app.ActiveNamesText(ctx)
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to list app names")
		return
	}
	if err := clipboard.WriteAll(text); err != nil {
		u.log.Error().Err(err).Msg("Failed to copy app names")
		return
	}
	u.log.Info().Int("bytes", len(text)).Msg("Copied app names")
}

func (u *UI) showAbout() {
	u.log.Info().Str("version", u.version).Str("commit", u.commit).Msg("MixerTray - per-application volume mixer")
}

func (u *UI) logErr(err error, msg string) {
	if err != nil {
		u.log.Warn().Err(err).Msg(msg)
	}
}

func (u *UI) onExit() {
	// Cleanup happens in main after Run returns.
}

// updateStatus sets the tray title with speaker emoji and status indicator.
// Before the tray is ready the status is only recorded.
func (u *UI) updateStatus(status string) {
	u.mu.Lock()
	u.status = status
	ready := u.ready
	u.mu.Unlock()
	if !ready {
		return
	}
	systray.SetTitle(fmt.Sprintf("🔊 %s", emojiForStatus(status)))
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status string) string {
	switch status {
	case "ready":
		return "🟢" // Green - device attached
	case "no-device":
		return "🟡" // Yellow - no output device, groups still work
	case "error":
		return "⚪️" // White - error
	default:
		return "🟢"
	}
}

// meterBar renders a peak level in [0, 1] as a fixed-width bar.
func meterBar(peak float32, width int) string {
	if width <= 0 {
		return ""
	}
	if peak < 0 {
		peak = 0
	}
	if peak > 1 {
		peak = 1
	}
	filled := int(peak*float32(width) + 0.5)
	return strings.Repeat("▮", filled) + strings.Repeat("▯", width-filled)
}

func groupTitle(g mixer.GroupView) string {
	return channelTitle(g.Key, g.VolumePercent(), g.Muted, g.Peak)
}

func masterTitle(m mixer.ChannelView) string {
	if !m.Available {
		return "Master: no device"
	}
	return channelTitle("Master", m.VolumePercent(), m.Muted, m.Peak)
}

func channelTitle(name string, percent int, muted bool, peak float32) string {
	level := fmt.Sprintf("%d%%", percent)
	if muted {
		level = "muted"
	}
	return fmt.Sprintf("%s  %s  %s", name, level, meterBar(peak, meterWidth))
}

// visibleGroups splits groups into those that fit in n slots and a count
// of the rest.
func visibleGroups(groups []mixer.GroupView, n int) ([]mixer.GroupView, int) {
	if len(groups) <= n {
		return groups, 0
	}
	return groups[:n], len(groups) - n
}
