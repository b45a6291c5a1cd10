package mixer

import (
	"math"

	"github.com/petems/mixer-tray/internal/audio"
	"github.com/rs/zerolog"
)

// Handle owns one OS audio session. It is reachable only through the group
// (or, during a sync, the engine) that owns it; release drops the session
// reference so a released handle has nothing left to act on.
type Handle struct {
	pid     int
	session audio.Session
	log     zerolog.Logger
}

func newHandle(s audio.Session, log zerolog.Logger) *Handle {
	return &Handle{
		pid:     s.PID(),
		session: s,
		log:     log.With().Int("pid", s.PID()).Logger(),
	}
}

func (h *Handle) PID() int { return h.pid }

// Volume returns the session volume, 0 when it cannot be read.
func (h *Handle) Volume() float32 {
	if h.session == nil {
		return 0
	}
	v, err := h.session.Volume()
	if err != nil {
		h.log.Debug().Err(err).Msg("Volume read failed")
		return 0
	}
	return audio.Clamp(v)
}

// SetVolume writes v unless the session is already within 0.001 of it.
func (h *Handle) SetVolume(v float32) {
	if h.session == nil {
		return
	}
	v = audio.Clamp(v)
	if math.Abs(float64(h.Volume()-v)) <= volumeEpsilon {
		return
	}
	if err := h.session.SetVolume(v); err != nil {
		h.log.Debug().Err(err).Float32("volume", v).Msg("Volume write failed")
	}
}

// Muted returns the session mute flag, false when it cannot be read.
func (h *Handle) Muted() bool {
	if h.session == nil {
		return false
	}
	m, err := h.session.Mute()
	if err != nil {
		h.log.Debug().Err(err).Msg("Mute read failed")
		return false
	}
	return m
}

// SetMute writes m unless the session already has it.
func (h *Handle) SetMute(m bool) {
	if h.session == nil || h.Muted() == m {
		return
	}
	if err := h.session.SetMute(m); err != nil {
		h.log.Debug().Err(err).Bool("muted", m).Msg("Mute write failed")
	}
}

// Peak returns the instantaneous peak. Any failure means "no signal".
func (h *Handle) Peak() float32 {
	if h.session == nil {
		return 0
	}
	p, err := h.session.Peak()
	if err != nil {
		return 0
	}
	return audio.Clamp(p)
}

// release frees the session exactly once.
func (h *Handle) release() {
	s := h.session
	if s == nil {
		return
	}
	h.session = nil
	if err := s.Release(); err != nil {
		h.log.Debug().Err(err).Msg("Session release failed")
	}
}
