package mixer

import (
	"errors"
	"testing"

	"github.com/petems/mixer-tray/internal/audio/audiotest"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestMasterInertWithoutDevice(t *testing.T) {
	rec := &recorder{}
	m := newMaster(zerolog.Nop(), rec.emit)

	m.SetVolume(0.5)
	m.SetMute(true)

	assert.False(t, m.Available())
	assert.Equal(t, float32(0), m.Volume())
	assert.False(t, m.Muted())
	assert.Equal(t, float32(0), m.tick())
	assert.Equal(t, "", m.Name())
	assert.Zero(t, rec.masterCount(FieldMute))
}

func TestMasterPeakPolicy(t *testing.T) {
	tests := []struct {
		name   string
		volume float32
		muted  bool
		raw    float32
		want   float32
	}{
		{name: "muted reads silent", volume: 0.8, muted: true, raw: 0.9, want: 0},
		{name: "below floor", volume: 0.005, raw: 0.9, want: 0},
		{name: "scaled by volume", volume: 0.5, raw: 0.8, want: 0.4},
		{name: "full", volume: 1, raw: 0.25, want: 0.25},
		{name: "raw clamped", volume: 1, raw: 1.5, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := audiotest.NewDevice("Speakers")
			_ = dev.SetVolume(tt.volume)
			_ = dev.SetMute(tt.muted)
			dev.SetPeak(tt.raw)
			m := newMaster(zerolog.Nop(), nil)
			m.attach(dev)

			assert.InDelta(t, tt.want, m.tick(), 1e-6)
			assert.InDelta(t, tt.want, m.View().Peak, 1e-6)
		})
	}
}

func TestMasterPeakErrorReadsSilent(t *testing.T) {
	dev := audiotest.NewDevice("Speakers")
	dev.SetPeak(0.7)
	rec := &recorder{}
	m := newMaster(zerolog.Nop(), rec.emit)
	m.attach(dev)

	assert.InDelta(t, 0.7, m.tick(), 1e-6)

	dev.FailPeak(errors.New("meter stopped"))
	assert.Equal(t, float32(0), m.tick())
	assert.Equal(t, 2, rec.masterCount(FieldPeak))
}

func TestMasterSetAndRefresh(t *testing.T) {
	dev := audiotest.NewDevice("Speakers")
	rec := &recorder{}
	m := newMaster(zerolog.Nop(), rec.emit)
	m.attach(dev)
	assert.Equal(t, 1, rec.masterCount(FieldVolume), "attach publishes the initial volume")

	m.SetVolume(1.4)
	v, _ := dev.Volume()
	assert.Equal(t, float32(1), v)
	assert.Equal(t, 1, rec.masterCount(FieldVolume), "clamped to the current value")

	m.SetVolume(0.3)
	m.SetMute(true)
	assert.Equal(t, 2, rec.masterCount(FieldVolume))
	assert.Equal(t, 1, rec.masterCount(FieldMute))

	// Another program changes the device.
	_ = dev.SetVolume(0.9)
	m.tick()
	assert.Equal(t, 3, rec.masterCount(FieldVolume))
	assert.InDelta(t, 0.9, m.View().Volume, 1e-6)
	assert.Equal(t, 90, m.View().VolumePercent())
	assert.Equal(t, "Speakers", m.View().Name)
}

func TestMasterReleaseAndReattach(t *testing.T) {
	first := audiotest.NewDevice("Speakers")
	second := audiotest.NewDevice("Headphones")
	m := newMaster(zerolog.Nop(), nil)

	m.attach(first)
	m.attach(second)
	assert.Equal(t, 1, first.Releases())
	assert.Equal(t, "Headphones", m.Name())

	m.release()
	m.release()
	assert.Equal(t, 1, second.Releases())
	assert.False(t, m.Available())
	assert.False(t, m.View().Available)
}
