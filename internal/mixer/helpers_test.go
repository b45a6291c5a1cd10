package mixer

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/petems/mixer-tray/internal/audio"
	"github.com/petems/mixer-tray/internal/audio/audiotest"
	"github.com/petems/mixer-tray/internal/procinfo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// names is a procinfo.Source backed by a description table.
type names struct {
	mu    sync.Mutex
	table map[int]string
}

func newNames(table map[int]string) *names {
	return &names{table: table}
}

func (n *names) set(pid int, name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.table[pid] = name
}

func (n *names) Description(pid int) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if d, ok := n.table[pid]; ok {
		return d, nil
	}
	return "", procinfo.ErrUnavailable
}

func (n *names) ExecutableName(pid int) (string, error) {
	return "", procinfo.ErrUnavailable
}

func (n *names) ExecutablePath(pid int) (string, error) {
	return fmt.Sprintf("/proc/%d/exe", pid), nil
}

// recorder collects emitted changes.
type recorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *recorder) emit(c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) Changed(c Change) { r.emit(c) }

func (r *recorder) count(field Field, key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.changes {
		if c.Field == field && c.Key == key && !c.Master {
			n++
		}
	}
	return n
}

func (r *recorder) masterCount(field Field) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.changes {
		if c.Master && c.Field == field {
			n++
		}
	}
	return n
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = nil
}

// handleFor enumerates b and returns a handle for pid, releasing every
// other session handed out by the enumeration.
func handleFor(t *testing.T, b *audiotest.Backend, pid int) *Handle {
	t.Helper()
	sessions, err := b.Sessions(context.Background())
	require.NoError(t, err)

	var found audio.Session
	for _, s := range sessions {
		if s.PID() == pid && found == nil {
			found = s
			continue
		}
		require.NoError(t, s.Release())
	}
	require.NotNil(t, found, "no session for pid %d", pid)
	return newHandle(found, zerolog.Nop())
}

func newTestEngine(b *audiotest.Backend, n *names, rec *recorder) *Engine {
	var emit emitFunc
	if rec != nil {
		emit = rec.emit
	}
	return newEngine(b, n, zerolog.Nop(), emit)
}

func keys(e *Engine) []string {
	return e.Order()
}

// assertInvariants checks that no PID has two owners, no group is empty,
// and every unreleased backend session is owned by exactly one group.
func assertInvariants(t *testing.T, e *Engine, b *audiotest.Backend) {
	t.Helper()
	owners := make(map[int]string)
	owned := 0
	for _, g := range e.groups {
		require.False(t, g.IsEmpty(), "group %q is empty after sync", g.key)
		for _, pid := range g.PIDs() {
			prev, dup := owners[pid]
			require.False(t, dup, "pid %d owned by %q and %q", pid, prev, g.key)
			owners[pid] = g.key
			owned++
		}
		require.Len(t, g.handles, len(g.order))
	}
	require.Equal(t, owned, b.Outstanding(), "unowned sessions leaked")
	require.Zero(t, b.DoubleReleases(), "session released twice")
}

func hide(keys ...string) map[string]struct{} {
	return toSet(keys)
}
