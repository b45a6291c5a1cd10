package mixer

import (
	"github.com/petems/mixer-tray/internal/audio"
)

// Group is one logical application: the sessions whose processes share a
// display key. The first handle added is the primary; it names the group
// and is authoritative for volume and mute readback.
type Group struct {
	key     string
	icon    string
	primary *Handle
	handles map[int]*Handle
	order   []int // PIDs in insertion order

	volume floatGate
	mute   boolGate
	peak   floatGate

	emit emitFunc
}

// newGroup creates a group with h as its primary.
func newGroup(h *Handle, key, icon string, emit emitFunc) *Group {
	g := &Group{
		key:     key,
		icon:    icon,
		handles: make(map[int]*Handle),
		volume:  newVolumeGate(),
		peak:    newPeakGate(),
		emit:    emit,
	}
	g.AddHandle(h)
	return g
}

func (g *Group) Key() string  { return g.key }
func (g *Group) Icon() string { return g.icon }

// AddHandle adopts h unless its PID is already owned. It reports whether h
// was adopted; a rejected handle stays with the caller.
func (g *Group) AddHandle(h *Handle) bool {
	if _, ok := g.handles[h.PID()]; ok {
		return false
	}
	g.handles[h.PID()] = h
	g.order = append(g.order, h.PID())
	if g.primary == nil {
		g.primary = h
	}
	return true
}

// RemoveDead releases and drops every handle whose PID is not in active.
// The group itself survives even when emptied.
func (g *Group) RemoveDead(active map[int]struct{}) {
	kept := g.order[:0]
	for _, pid := range g.order {
		if _, ok := active[pid]; ok {
			kept = append(kept, pid)
			continue
		}
		h := g.handles[pid]
		delete(g.handles, pid)
		h.release()
	}
	g.order = kept

	if g.primary != nil {
		if _, ok := g.handles[g.primary.PID()]; !ok {
			g.primary = nil
			if len(g.order) > 0 {
				g.primary = g.handles[g.order[0]]
			}
		}
	}
}

func (g *Group) IsEmpty() bool { return len(g.handles) == 0 }

// Len is the number of owned handles.
func (g *Group) Len() int { return len(g.handles) }

// PIDs returns owned PIDs in insertion order.
func (g *Group) PIDs() []int {
	return append([]int(nil), g.order...)
}

// PrimaryPID is the PID of the primary handle, 0 for an empty group.
func (g *Group) PrimaryPID() int {
	if g.primary == nil {
		return 0
	}
	return g.primary.PID()
}

func (g *Group) each(fn func(h *Handle)) {
	for _, pid := range g.order {
		fn(g.handles[pid])
	}
}

// Volume is the primary handle's live volume.
func (g *Group) Volume() float32 {
	if g.primary == nil {
		return 0
	}
	return g.primary.Volume()
}

// SetVolume fans v out to every handle and notifies when the group-level
// value moved by more than 0.001.
func (g *Group) SetVolume(v float32) {
	v = audio.Clamp(v)
	g.each(func(h *Handle) { h.SetVolume(v) })
	g.publishVolume(v)
}

// Muted is the primary handle's live mute flag.
func (g *Group) Muted() bool {
	if g.primary == nil {
		return false
	}
	return g.primary.Muted()
}

func (g *Group) SetMute(m bool) {
	g.each(func(h *Handle) { h.SetMute(m) })
	g.publishMute(m)
}

// Peak is the last computed peak.
func (g *Group) Peak() float32 { return g.peak.last }

// Refresh re-reads the primary's live volume and mute, notifying on change,
// and returns the volume it read.
func (g *Group) Refresh() float32 {
	vol := g.Volume()
	g.publishVolume(vol)
	g.publishMute(g.Muted())
	return vol
}

// ComputePeak reads the group's volume once and applies the peak policy.
func (g *Group) ComputePeak() float32 {
	return g.computePeak(g.Volume())
}

// computePeak takes the loudest handle and scales it by volume. Below the
// silence floor the meter reads 0; mute does not gate the meter, so a muted
// app that is playing still shows activity.
func (g *Group) computePeak(volume float32) float32 {
	var maxPeak float32
	g.each(func(h *Handle) {
		if p := h.Peak(); p > maxPeak {
			maxPeak = p
		}
	})

	var peak float32
	if volume >= silenceFloor {
		peak = maxPeak * volume
	}
	if g.peak.update(peak) {
		g.emit.emit(Change{Key: g.key, Field: FieldPeak, Peak: peak})
	}
	return peak
}

// tick is the fast-tick step: one volume snapshot drives both the cache
// refresh and the peak policy.
func (g *Group) tick() {
	g.computePeak(g.Refresh())
}

func (g *Group) publishVolume(v float32) {
	if g.volume.update(v) {
		g.emit.emit(Change{Key: g.key, Field: FieldVolume, Volume: v})
	}
}

func (g *Group) publishMute(m bool) {
	if g.mute.update(m) {
		g.emit.emit(Change{Key: g.key, Field: FieldMute, Muted: m})
	}
}

// release frees every handle. The group is empty afterwards.
func (g *Group) release() {
	g.each(func(h *Handle) { h.release() })
	g.handles = make(map[int]*Handle)
	g.order = nil
	g.primary = nil
}

// View is a snapshot of the group's observable fields.
func (g *Group) View() GroupView {
	return GroupView{
		Key:      g.key,
		Icon:     g.icon,
		Volume:   clampCached(g.volume.last),
		Muted:    g.mute.last,
		Peak:     g.peak.last,
		Sessions: len(g.handles),
	}
}

// GroupView is the display state of one group.
type GroupView struct {
	Key      string
	Icon     string
	Volume   float32
	Muted    bool
	Peak     float32
	Sessions int
}

// VolumePercent is the volume as a whole percentage.
func (v GroupView) VolumePercent() int { return int(v.Volume * 100) }

// clampCached maps the "never published" sentinel to 0.
func clampCached(v float32) float32 {
	if v < 0 {
		return 0
	}
	return v
}
