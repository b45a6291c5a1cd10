package audio

import (
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
)

const (
	meterChannels = 2
	meterFrames   = 512
)

// peakMeter captures the default sink's monitor through PortAudio and keeps
// the most recent buffer peak.
type peakMeter struct {
	stream *portaudio.Stream
	peak   atomic.Uint32 // math.Float32bits
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// openPeakMeter opens an input stream on deviceName (or the default input)
// with PULSE_SOURCE pointed at monitor so the PulseAudio ALSA plugin records
// what the sink plays.
func openPeakMeter(deviceName, monitor string, log zerolog.Logger) (*peakMeter, error) {
	if monitor != "" {
		if err := os.Setenv("PULSE_SOURCE", monitor); err != nil {
			return nil, fmt.Errorf("failed to select monitor source: %w", err)
		}
	}

	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}

	device, err := findInputDevice(deviceName)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	channels := meterChannels
	if device.MaxInputChannels < channels {
		channels = device.MaxInputChannels
	}
	if channels < 1 {
		portaudio.Terminate()
		return nil, fmt.Errorf("device %s has no input channels", device.Name)
	}

	buffer := make([]float32, meterFrames*channels)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      device.DefaultSampleRate,
		FramesPerBuffer: meterFrames,
	}, buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open meter stream: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start meter stream: %w", err)
	}

	m := &peakMeter{
		stream: stream,
		done:   make(chan struct{}),
	}

	log.Debug().Str("device", device.Name).Str("monitor", monitor).Int("channels", channels).Msg("Master meter started")

	// Read loop
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-m.done:
				return
			default:
				if err := stream.Read(); err != nil {
					log.Debug().Err(err).Msg("Meter read failed")
					m.store(0)
					return
				}
				m.store(peakInterleaved(buffer))
			}
		}
	}()

	return m, nil
}

func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		device, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("failed to get default input device: %w", err)
		}
		return device, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.EqualFold(d.Name, name) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("device not found: %s", name)
}

func (m *peakMeter) store(v float32) {
	m.peak.Store(math.Float32bits(v))
}

// Peak returns the last observed buffer peak.
func (m *peakMeter) Peak() float32 {
	return math.Float32frombits(m.peak.Load())
}

func (m *peakMeter) Close() error {
	m.once.Do(func() {
		close(m.done)
		// A blocking Read returns within one buffer, so the loop exits before the stream stops.
		m.wg.Wait()
		m.stream.Stop()
		m.stream.Close()
		portaudio.Terminate()
	})
	return nil
}

// peakInterleaved returns the largest absolute sample in buf, clamped to 1.
// Channel layout does not matter for a peak so the buffer is scanned flat.
func peakInterleaved(buf []float32) float32 {
	var peak float32
	for _, s := range buf {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return Clamp(peak)
}
