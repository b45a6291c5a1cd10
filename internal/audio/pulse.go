package audio

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"

	"github.com/jfreymuth/pulse/proto"
	"github.com/petems/mixer-tray/internal/config"
	"github.com/rs/zerolog"
)

const clientName = "mixer-tray"

// pulseBackend talks to PulseAudio (or PipeWire's pulse server) over its
// native protocol. Sink inputs are sessions and the default sink is the
// master device.
type pulseBackend struct {
	client *proto.Client
	conn   net.Conn
	cfg    config.AudioConfig
	log    zerolog.Logger

	mu           sync.Mutex
	descriptions map[int]string
	closed       bool
}

// New connects to the audio server described by cfg.
func New(cfg config.AudioConfig, log zerolog.Logger) (Backend, error) {
	client, conn, err := proto.Connect(cfg.Server)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to audio server: %w", err)
	}

	request := proto.SetClientName{
		Props: proto.PropList{
			"application.name": proto.PropListString(clientName),
		},
	}
	reply := proto.SetClientNameReply{}
	if err := client.Request(&request, &reply); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to register audio client: %w", err)
	}

	return &pulseBackend{
		client:       client,
		conn:         conn,
		cfg:          cfg,
		log:          log.With().Str("component", "pulse").Logger(),
		descriptions: make(map[int]string),
	}, nil
}

func (b *pulseBackend) Sessions(ctx context.Context) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.isClosed() {
		return nil, ErrClosed
	}

	reply := proto.GetSinkInputInfoListReply{}
	if err := b.client.Request(&proto.GetSinkInputInfoList{}, &reply); err != nil {
		return nil, fmt.Errorf("failed to list sink inputs: %w", err)
	}

	sessions := make([]Session, 0, len(reply))
	descriptions := make(map[int]string, len(reply))
	for _, info := range reply {
		if info == nil {
			continue
		}
		pid := processID(info.Properties)
		if name, ok := info.Properties["application.name"]; ok && pid > 0 {
			if _, seen := descriptions[pid]; !seen {
				descriptions[pid] = strings.TrimSpace(name.String())
			}
		}
		sessions = append(sessions, &pulseSession{
			backend:  b,
			index:    info.SinkInputIndex,
			pid:      pid,
			state:    sinkInputState(info.Corked),
			channels: len(info.ChannelVolumes),
		})
	}

	b.mu.Lock()
	b.descriptions = descriptions
	b.mu.Unlock()

	return sessions, nil
}

// Description reports the application.name property last seen for pid.
func (b *pulseBackend) Description(pid int) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d, ok := b.descriptions[pid]; ok && d != "" {
		return d, nil
	}
	return "", fmt.Errorf("no description for pid %d", pid)
}

func (b *pulseBackend) DefaultDevice(ctx context.Context) (Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.isClosed() {
		return nil, ErrClosed
	}

	server := proto.GetServerInfoReply{}
	if err := b.client.Request(&proto.GetServerInfo{}, &server); err != nil {
		return nil, fmt.Errorf("failed to query server info: %w", err)
	}
	if server.DefaultSinkName == "" {
		return nil, ErrNoDevice
	}

	sink := proto.GetSinkInfoReply{}
	request := proto.GetSinkInfo{SinkIndex: proto.Undefined, SinkName: server.DefaultSinkName}
	if err := b.client.Request(&request, &sink); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoDevice, server.DefaultSinkName, err)
	}

	dev := &pulseDevice{
		backend:  b,
		name:     sink.SinkName,
		channels: len(sink.ChannelVolumes),
	}

	if b.cfg.MeterEnabled {
		meter, err := openPeakMeter(b.cfg.MeterDevice, sink.MonitorSourceName, b.log)
		if err != nil {
			b.log.Warn().Err(err).Str("sink", sink.SinkName).Msg("Master meter unavailable")
		} else {
			dev.meter = meter
		}
	}

	b.log.Info().Str("sink", sink.SinkName).Str("monitor", sink.MonitorSourceName).Msg("Default output device")
	return dev, nil
}

func (b *pulseBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.conn.Close()
}

func (b *pulseBackend) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// findSinkInput returns the current sink input index for pid.
func (b *pulseBackend) findSinkInput(pid int) (uint32, bool) {
	reply := proto.GetSinkInputInfoListReply{}
	if err := b.client.Request(&proto.GetSinkInputInfoList{}, &reply); err != nil {
		return 0, false
	}
	for _, info := range reply {
		if info != nil && processID(info.Properties) == pid {
			return info.SinkInputIndex, true
		}
	}
	return 0, false
}

// ===== SESSION =====

type pulseSession struct {
	backend  *pulseBackend
	pid      int
	state    State
	channels int

	mu       sync.Mutex
	index    uint32
	released bool
}

func (s *pulseSession) PID() int     { return s.pid }
func (s *pulseSession) State() State { return s.state }

func (s *pulseSession) info() (*proto.GetSinkInputInfoReply, error) {
	var reply proto.GetSinkInputInfoReply
	err := s.do(func(index uint32) error {
		reply = proto.GetSinkInputInfoReply{}
		return s.backend.client.Request(&proto.GetSinkInputInfo{SinkInputIndex: index}, &reply)
	})
	if err != nil {
		return nil, err
	}
	return &reply, nil
}

func (s *pulseSession) Volume() (float32, error) {
	reply, err := s.info()
	if err != nil {
		return 0, err
	}
	return parseChannelVolumes(reply.ChannelVolumes), nil
}

func (s *pulseSession) SetVolume(v float32) error {
	return s.do(func(index uint32) error {
		request := proto.SetSinkInputVolume{
			SinkInputIndex: index,
			ChannelVolumes: createChannelVolumes(s.channels, v),
		}
		return s.backend.client.Request(&request, nil)
	})
}

func (s *pulseSession) Mute() (bool, error) {
	reply, err := s.info()
	if err != nil {
		return false, err
	}
	return reply.Muted, nil
}

func (s *pulseSession) SetMute(muted bool) error {
	return s.do(func(index uint32) error {
		request := proto.SetSinkInputMute{SinkInputIndex: index, Mute: muted}
		return s.backend.client.Request(&request, nil)
	})
}

// Peak is not available per sink input without a dedicated record stream.
func (s *pulseSession) Peak() (float32, error) {
	return 0, ErrPeakUnavailable
}

func (s *pulseSession) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	return nil
}

// do runs fn against the session's sink input. A process that re-creates its
// stream keeps its PID but gets a new index, so one failure triggers a
// lookup by PID and a single retry.
func (s *pulseSession) do(fn func(index uint32) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released || s.backend.isClosed() {
		return ErrClosed
	}

	err := fn(s.index)
	if err == nil {
		return nil
	}

	index, ok := s.backend.findSinkInput(s.pid)
	if !ok || index == s.index {
		return err
	}
	s.index = index
	return fn(index)
}

// ===== DEVICE =====

type pulseDevice struct {
	backend  *pulseBackend
	name     string
	channels int
	meter    *peakMeter

	once sync.Once
}

func (d *pulseDevice) Name() string { return d.name }

func (d *pulseDevice) info() (*proto.GetSinkInfoReply, error) {
	if d.backend.isClosed() {
		return nil, ErrClosed
	}
	reply := proto.GetSinkInfoReply{}
	request := proto.GetSinkInfo{SinkIndex: proto.Undefined, SinkName: d.name}
	if err := d.backend.client.Request(&request, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (d *pulseDevice) Volume() (float32, error) {
	reply, err := d.info()
	if err != nil {
		return 0, err
	}
	return parseChannelVolumes(reply.ChannelVolumes), nil
}

func (d *pulseDevice) SetVolume(v float32) error {
	if d.backend.isClosed() {
		return ErrClosed
	}
	request := proto.SetSinkVolume{
		SinkIndex:      proto.Undefined,
		SinkName:       d.name,
		ChannelVolumes: createChannelVolumes(d.channels, v),
	}
	return d.backend.client.Request(&request, nil)
}

func (d *pulseDevice) Mute() (bool, error) {
	reply, err := d.info()
	if err != nil {
		return false, err
	}
	return reply.Mute, nil
}

func (d *pulseDevice) SetMute(muted bool) error {
	if d.backend.isClosed() {
		return ErrClosed
	}
	request := proto.SetSinkMute{SinkIndex: proto.Undefined, SinkName: d.name, Mute: muted}
	return d.backend.client.Request(&request, nil)
}

func (d *pulseDevice) Peak() (float32, error) {
	if d.meter == nil {
		return 0, ErrPeakUnavailable
	}
	return d.meter.Peak(), nil
}

func (d *pulseDevice) Release() error {
	d.once.Do(func() {
		if d.meter != nil {
			d.meter.Close()
		}
	})
	return nil
}

// ===== HELPERS =====

func processID(props proto.PropList) int {
	entry, ok := props["application.process.id"]
	if !ok {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(entry.String()))
	if err != nil {
		return 0
	}
	return pid
}

// Corked streams are attached but not playing.
func sinkInputState(corked bool) State {
	if corked {
		return StateInactive
	}
	return StateActive
}

// parseChannelVolumes averages per-channel volumes into a [0, 1] scalar.
func parseChannelVolumes(volumes []uint32) float32 {
	if len(volumes) == 0 {
		return 0
	}
	var level uint64
	for _, v := range volumes {
		level += uint64(v)
	}
	return Clamp(float32(level) / float32(len(volumes)) / float32(proto.VolumeNorm))
}

func createChannelVolumes(channels int, v float32) proto.ChannelVolumes {
	if channels < 1 {
		channels = 1
	}
	volumes := make(proto.ChannelVolumes, channels)
	level := uint32(Clamp(v) * float32(proto.VolumeNorm))
	for i := range volumes {
		volumes[i] = level
	}
	return volumes
}
