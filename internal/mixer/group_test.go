package mixer

import (
	"errors"
	"testing"

	"github.com/petems/mixer-tray/internal/audio"
	"github.com/petems/mixer-tray/internal/audio/audiotest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGroup(t *testing.T, b *audiotest.Backend, rec *recorder, pids ...int) *Group {
	t.Helper()
	var g *Group
	for _, pid := range pids {
		h := handleFor(t, b, pid)
		if g == nil {
			g = newGroup(h, "Example App", "/icon", rec.emit)
			continue
		}
		require.True(t, g.AddHandle(h))
	}
	return g
}

func TestGroupAddHandleRejectsDuplicatePID(t *testing.T) {
	b := audiotest.NewBackend()
	b.AddStream(100, audio.StateActive)
	rec := &recorder{}
	g := newTestGroup(t, b, rec, 100)

	dup := handleFor(t, b, 100)
	assert.False(t, g.AddHandle(dup))
	assert.Equal(t, 1, g.Len())
	assert.Equal(t, 100, g.PrimaryPID())

	dup.release()
	g.release()
	assert.Zero(t, b.Outstanding())
}

func TestGroupFirstHandleIsPrimary(t *testing.T) {
	b := audiotest.NewBackend()
	first := b.AddStream(100, audio.StateActive)
	second := b.AddStream(101, audio.StateActive)
	first.SetExternalVolume(0.3)
	second.SetExternalVolume(0.9)

	g := newTestGroup(t, b, &recorder{}, 100, 101)

	assert.Equal(t, 100, g.PrimaryPID())
	assert.InDelta(t, 0.3, g.Volume(), 1e-6, "primary is authoritative, not an average")
}

func TestGroupSetVolumeNotifiesOnce(t *testing.T) {
	b := audiotest.NewBackend()
	s1 := b.AddStream(100, audio.StateActive)
	s2 := b.AddStream(101, audio.StateActive)
	rec := &recorder{}
	g := newTestGroup(t, b, rec, 100, 101)

	g.SetVolume(0.4)
	g.SetVolume(0.4)

	assert.Equal(t, 1, rec.count(FieldVolume, "Example App"))
	assert.Equal(t, 1, s1.VolumeWrites())
	assert.Equal(t, 1, s2.VolumeWrites())
	assert.InDelta(t, 0.4, s2.Volume(), 1e-6)
}

func TestGroupSetVolumeSeparatesHandleAndGroupDedup(t *testing.T) {
	b := audiotest.NewBackend()
	s1 := b.AddStream(100, audio.StateActive)
	s2 := b.AddStream(101, audio.StateActive)
	s1.SetExternalVolume(0.5)
	s2.SetExternalVolume(0.5004)
	rec := &recorder{}
	g := newTestGroup(t, b, rec, 100, 101)

	// Both handles already close enough: no writes, but the group has
	// never published a value so it notifies.
	g.SetVolume(0.5)
	assert.Zero(t, s1.VolumeWrites())
	assert.Zero(t, s2.VolumeWrites())
	assert.Equal(t, 1, rec.count(FieldVolume, "Example App"))

	// A secondary drifted: it gets written, the group value is unchanged.
	s2.SetExternalVolume(0.7)
	g.SetVolume(0.5)
	assert.Zero(t, s1.VolumeWrites())
	assert.Equal(t, 1, s2.VolumeWrites())
	assert.Equal(t, 1, rec.count(FieldVolume, "Example App"))
}

func TestGroupSetMuteFansOut(t *testing.T) {
	b := audiotest.NewBackend()
	s1 := b.AddStream(100, audio.StateActive)
	s2 := b.AddStream(101, audio.StateActive)
	s2.SetExternalMute(true)
	rec := &recorder{}
	g := newTestGroup(t, b, rec, 100, 101)

	g.SetMute(true)
	g.SetMute(true)

	assert.True(t, s1.Muted())
	assert.True(t, s2.Muted())
	assert.Equal(t, 1, s1.MuteWrites())
	assert.Zero(t, s2.MuteWrites())
	assert.Equal(t, 1, rec.count(FieldMute, "Example App"))
	assert.True(t, g.Muted())
}

func TestGroupRefreshPicksUpExternalChanges(t *testing.T) {
	b := audiotest.NewBackend()
	s := b.AddStream(100, audio.StateActive)
	rec := &recorder{}
	g := newTestGroup(t, b, rec, 100)

	g.Refresh()
	g.Refresh()
	assert.Equal(t, 1, rec.count(FieldVolume, "Example App"))
	assert.Zero(t, rec.count(FieldMute, "Example App"))

	s.SetExternalVolume(0.25)
	s.SetExternalMute(true)
	vol := g.Refresh()

	assert.InDelta(t, 0.25, vol, 1e-6)
	assert.Equal(t, 2, rec.count(FieldVolume, "Example App"))
	assert.Equal(t, 1, rec.count(FieldMute, "Example App"))
	assert.InDelta(t, 0.25, g.View().Volume, 1e-6)
	assert.True(t, g.View().Muted)
}

func TestGroupPeakPolicy(t *testing.T) {
	tests := []struct {
		name   string
		volume float32
		muted  bool
		raw    float32
		want   float32
	}{
		{name: "zero volume", volume: 0, raw: 0.8, want: 0},
		{name: "zero volume muted", volume: 0, muted: true, raw: 0.8, want: 0},
		{name: "below floor", volume: 0.005, raw: 1, want: 0},
		{name: "muted still meters", volume: 0.5, muted: true, raw: 0.8, want: 0.4},
		{name: "scaled by volume", volume: 0.5, raw: 0.6, want: 0.3},
		{name: "at floor", volume: 0.01, raw: 1, want: 0.01},
		{name: "full", volume: 1, raw: 0.7, want: 0.7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := audiotest.NewBackend()
			s := b.AddStream(100, audio.StateActive)
			s.SetExternalVolume(tt.volume)
			s.SetExternalMute(tt.muted)
			s.SetPeak(tt.raw)
			g := newTestGroup(t, b, &recorder{}, 100)

			assert.InDelta(t, tt.want, g.ComputePeak(), 1e-6)
		})
	}
}

func TestGroupPeakTakesLoudestHandle(t *testing.T) {
	b := audiotest.NewBackend()
	b.AddStream(100, audio.StateActive).SetPeak(0.3)
	b.AddStream(101, audio.StateActive).SetPeak(0.6)
	failing := b.AddStream(102, audio.StateActive)
	failing.SetPeak(0.9)
	failing.FailPeak(errors.New("gone"))
	rec := &recorder{}
	g := newTestGroup(t, b, rec, 100, 101, 102)

	assert.InDelta(t, 0.6, g.ComputePeak(), 1e-6, "max of live handles; failed read counts as 0")
	assert.InDelta(t, 0.6, g.Peak(), 1e-6)
	assert.Equal(t, 1, rec.count(FieldPeak, "Example App"))

	g.ComputePeak()
	assert.Equal(t, 1, rec.count(FieldPeak, "Example App"), "unchanged peak is not re-published")
}

func TestGroupTickUsesOneVolumeSnapshot(t *testing.T) {
	b := audiotest.NewBackend()
	s := b.AddStream(100, audio.StateActive)
	s.SetExternalVolume(0.5)
	s.SetPeak(0.8)
	rec := &recorder{}
	g := newTestGroup(t, b, rec, 100)

	g.tick()

	view := g.View()
	assert.InDelta(t, 0.5, view.Volume, 1e-6)
	assert.InDelta(t, 0.4, view.Peak, 1e-6)
	assert.Equal(t, 50, view.VolumePercent())
}

func TestGroupRemoveDead(t *testing.T) {
	b := audiotest.NewBackend()
	b.AddStream(100, audio.StateActive).SetExternalVolume(0.2)
	b.AddStream(101, audio.StateActive).SetExternalVolume(0.8)
	g := newTestGroup(t, b, &recorder{}, 100, 101)
	require.Equal(t, 2, b.Outstanding())

	g.RemoveDead(map[int]struct{}{101: {}})

	assert.Equal(t, []int{101}, g.PIDs())
	assert.Equal(t, 1, b.Outstanding())
	assert.Equal(t, "Example App", g.Key())
	assert.Equal(t, "/icon", g.Icon())
	assert.Equal(t, 101, g.PrimaryPID(), "readback moves to the surviving handle")
	assert.InDelta(t, 0.8, g.Volume(), 1e-6)

	g.RemoveDead(map[int]struct{}{})
	assert.True(t, g.IsEmpty())
	assert.Zero(t, b.Outstanding())
	assert.Zero(t, b.DoubleReleases())
	assert.Equal(t, float32(0), g.Volume())
}
