package mixer

import (
	"github.com/petems/mixer-tray/internal/audio"
	"github.com/rs/zerolog"
)

// Master wraps the default render device. Without a device it is inert and
// reports 0 volume, unmuted, 0 peak.
type Master struct {
	dev audio.Device
	log zerolog.Logger

	volume floatGate
	mute   boolGate
	peak   floatGate

	emit emitFunc
}

func newMaster(log zerolog.Logger, emit emitFunc) *Master {
	return &Master{
		log:    log,
		volume: newVolumeGate(),
		peak:   newPeakGate(),
		emit:   emit,
	}
}

// Available reports whether a device is attached.
func (m *Master) Available() bool { return m.dev != nil }

// Name is the attached device's name, blank when inert.
func (m *Master) Name() string {
	if m.dev == nil {
		return ""
	}
	return m.dev.Name()
}

// attach binds dev, releasing any previous device.
func (m *Master) attach(dev audio.Device) {
	m.release()
	m.dev = dev
	m.refresh()
}

func (m *Master) Volume() float32 {
	if m.dev == nil {
		return 0
	}
	v, err := m.dev.Volume()
	if err != nil {
		m.log.Debug().Err(err).Msg("Master volume read failed")
		return 0
	}
	return audio.Clamp(v)
}

func (m *Master) SetVolume(v float32) {
	if m.dev == nil {
		return
	}
	v = audio.Clamp(v)
	if err := m.dev.SetVolume(v); err != nil {
		m.log.Warn().Err(err).Float32("volume", v).Msg("Master volume write failed")
		return
	}
	m.publishVolume(v)
}

func (m *Master) Muted() bool {
	if m.dev == nil {
		return false
	}
	muted, err := m.dev.Mute()
	if err != nil {
		m.log.Debug().Err(err).Msg("Master mute read failed")
		return false
	}
	return muted
}

func (m *Master) SetMute(muted bool) {
	if m.dev == nil {
		return
	}
	if err := m.dev.SetMute(muted); err != nil {
		m.log.Warn().Err(err).Bool("muted", muted).Msg("Master mute write failed")
		return
	}
	m.publishMute(muted)
}

// refresh picks up external volume and mute changes.
func (m *Master) refresh() (float32, bool) {
	vol, muted := m.Volume(), m.Muted()
	m.publishVolume(vol)
	m.publishMute(muted)
	return vol, muted
}

// tick refreshes the cached state and applies the master peak policy: the
// meter reads 0 when muted or below the silence floor, otherwise the raw
// device peak scaled by volume.
func (m *Master) tick() float32 {
	vol, muted := m.refresh()

	var peak float32
	if m.dev != nil && !muted && vol >= silenceFloor {
		raw, err := m.dev.Peak()
		if err == nil {
			peak = audio.Clamp(raw) * vol
		}
	}
	if m.peak.update(peak) {
		m.emit.emit(Change{Master: true, Field: FieldPeak, Peak: peak})
	}
	return peak
}

func (m *Master) publishVolume(v float32) {
	if m.volume.update(v) {
		m.emit.emit(Change{Master: true, Field: FieldVolume, Volume: v})
	}
}

func (m *Master) publishMute(muted bool) {
	if m.mute.update(muted) {
		m.emit.emit(Change{Master: true, Field: FieldMute, Muted: muted})
	}
}

// release frees the device. The channel is inert afterwards.
func (m *Master) release() {
	dev := m.dev
	if dev == nil {
		return
	}
	m.dev = nil
	if err := dev.Release(); err != nil {
		m.log.Debug().Err(err).Msg("Device release failed")
	}
}

// View is a snapshot of the master's observable fields.
func (m *Master) View() ChannelView {
	return ChannelView{
		Name:      m.Name(),
		Available: m.dev != nil,
		Volume:    clampCached(m.volume.last),
		Muted:     m.mute.last,
		Peak:      m.peak.last,
	}
}

// ChannelView is the display state of the master channel.
type ChannelView struct {
	Name      string
	Available bool
	Volume    float32
	Muted     bool
	Peak      float32
}

func (v ChannelView) VolumePercent() int { return int(v.Volume * 100) }
