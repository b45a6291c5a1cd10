package mixer

import (
	"context"
	"fmt"
	"strings"

	"github.com/petems/mixer-tray/internal/audio"
	"github.com/petems/mixer-tray/internal/procinfo"
	"github.com/rs/zerolog"
)

// builtinExcluded are display keys that never become groups.
var builtinExcluded = map[string]struct{}{
	"System Sounds":       {},
	"System Idle Process": {},
}

// Engine owns the ordered group collection and reconciles it against the
// live session list.
type Engine struct {
	backend audio.Backend
	names   procinfo.Source
	log     zerolog.Logger
	emit    emitFunc

	groups []*Group
}

func newEngine(backend audio.Backend, names procinfo.Source, log zerolog.Logger, emit emitFunc) *Engine {
	return &Engine{
		backend: backend,
		names:   names,
		log:     log,
		emit:    emit,
	}
}

type pendingSession struct {
	key    string
	handle *Handle
}

// Sync runs one reconciliation cycle: enumerate live sessions, evict dead
// handles and hidden or empty groups, then merge or create groups for the
// remaining sessions. Every session the cycle does not adopt is released
// before Sync returns.
func (e *Engine) Sync(ctx context.Context, hidden map[string]struct{}) error {
	sessions, err := e.backend.Sessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate sessions: %w", err)
	}

	// Enumerate
	active := make(map[int]struct{}, len(sessions))
	pending := make([]pendingSession, 0, len(sessions))
	for _, s := range sessions {
		pid := s.PID()
		st := s.State()
		if pid <= 0 || (st != audio.StateActive && st != audio.StateInactive) {
			if err := s.Release(); err != nil {
				e.log.Debug().Err(err).Int("pid", pid).Msg("Session release failed")
			}
			continue
		}
		active[pid] = struct{}{}
		pending = append(pending, pendingSession{
			key:    procinfo.DisplayKey(e.names, pid),
			handle: newHandle(s, e.log),
		})
	}

	// Evict, back to front so removal indexes stay valid for observers.
	for i := len(e.groups) - 1; i >= 0; i-- {
		g := e.groups[i]
		g.RemoveDead(active)
		if g.IsEmpty() || contains(hidden, g.key) {
			e.removeAt(i)
		}
	}

	// Merge / create
	owners := make(map[int]*Group)
	for _, g := range e.groups {
		for _, pid := range g.order {
			owners[pid] = g
		}
	}

	for _, p := range pending {
		h := p.handle
		if contains(builtinExcluded, p.key) || contains(hidden, p.key) {
			h.release()
			continue
		}
		if _, owned := owners[h.PID()]; owned {
			h.release()
			continue
		}

		if g := e.find(p.key); g != nil {
			e.adopt(g, h, owners)
			continue
		}

		// The key is re-derived for the new group and may have moved since
		// enumeration; fold into an existing group rather than duplicate it.
		key, icon := e.identify(h.PID())
		if strings.TrimSpace(key) == "" || contains(hidden, key) || contains(builtinExcluded, key) {
			h.release()
			continue
		}
		if key != p.key {
			if existing := e.find(key); existing != nil {
				e.adopt(existing, h, owners)
				continue
			}
		}
		g := newGroup(h, key, icon, e.emit)
		e.append(g)
		owners[h.PID()] = g
	}

	return nil
}

// adopt hands h to g, releasing it if g refuses.
func (e *Engine) adopt(g *Group, h *Handle, owners map[int]*Group) {
	if !g.AddHandle(h) {
		h.release()
		return
	}
	owners[h.PID()] = g
}

// identify derives the display key and icon for pid.
func (e *Engine) identify(pid int) (string, string) {
	return procinfo.DisplayKey(e.names, pid), procinfo.Icon(e.names, pid)
}

func (e *Engine) find(key string) *Group {
	for _, g := range e.groups {
		if g.key == key {
			return g
		}
	}
	return nil
}

// Find returns the group with key, or nil.
func (e *Engine) Find(key string) *Group {
	return e.find(key)
}

// Groups returns the tracked groups in display order.
func (e *Engine) Groups() []*Group {
	return append([]*Group(nil), e.groups...)
}

func (e *Engine) append(g *Group) {
	e.groups = append(e.groups, g)
	idx := len(e.groups) - 1
	e.emit.emit(Change{Key: g.key, Field: FieldAdded, Index: idx, From: idx})
	g.Refresh()
}

func (e *Engine) removeAt(i int) {
	g := e.groups[i]
	g.release()
	e.groups = append(e.groups[:i], e.groups[i+1:]...)
	e.emit.emit(Change{Key: g.key, Field: FieldRemoved, Index: i, From: i})
}

// Tick runs the fast-tick step for every group.
func (e *Engine) Tick() {
	for _, g := range e.groups {
		g.tick()
	}
}

// Close releases every group.
func (e *Engine) Close() {
	for i := len(e.groups) - 1; i >= 0; i-- {
		e.removeAt(i)
	}
}

// ActiveDisplayNames enumerates sessions and returns the distinct display
// keys of every process with a session, in enumeration order. Tracked
// groups are not consulted or changed.
func (e *Engine) ActiveDisplayNames(ctx context.Context) ([]string, error) {
	sessions, err := e.backend.Sessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate sessions: %w", err)
	}

	seen := make(map[string]struct{}, len(sessions))
	names := make([]string, 0, len(sessions))
	for _, s := range sessions {
		pid := s.PID()
		if pid > 0 {
			key := procinfo.DisplayKey(e.names, pid)
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				names = append(names, key)
			}
		}
		if err := s.Release(); err != nil {
			e.log.Debug().Err(err).Int("pid", pid).Msg("Session release failed")
		}
	}
	return names, nil
}

func contains(set map[string]struct{}, key string) bool {
	_, ok := set[key]
	return ok
}
