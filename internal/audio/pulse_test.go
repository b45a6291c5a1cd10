package audio

import (
	"math"
	"testing"

	"github.com/jfreymuth/pulse/proto"
)

func TestParseChannelVolumes(t *testing.T) {
	tests := []struct {
		name    string
		volumes []uint32
		want    float32
	}{
		{name: "no channels", volumes: nil, want: 0},
		{name: "full stereo", volumes: []uint32{proto.VolumeNorm, proto.VolumeNorm}, want: 1},
		{name: "half", volumes: []uint32{proto.VolumeNorm / 2, proto.VolumeNorm / 2}, want: 0.5},
		{name: "unbalanced averages", volumes: []uint32{proto.VolumeNorm, 0}, want: 0.5},
		{name: "amplified clamps", volumes: []uint32{proto.VolumeNorm * 3 / 2}, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseChannelVolumes(tt.volumes)
			if math.Abs(float64(got-tt.want)) > 0.0001 {
				t.Errorf("parseChannelVolumes(%v) = %f, want %f", tt.volumes, got, tt.want)
			}
		})
	}
}

func TestCreateChannelVolumes(t *testing.T) {
	got := createChannelVolumes(2, 0.5)
	if len(got) != 2 {
		t.Fatalf("expected 2 channels, got %d", len(got))
	}
	for i, v := range got {
		if v != proto.VolumeNorm/2 {
			t.Errorf("channel %d = %d, want %d", i, v, proto.VolumeNorm/2)
		}
	}

	if got := createChannelVolumes(0, 2); len(got) != 1 || got[0] != proto.VolumeNorm {
		t.Errorf("expected one clamped channel, got %v", got)
	}
}

func TestProcessID(t *testing.T) {
	tests := []struct {
		name  string
		props proto.PropList
		want  int
	}{
		{name: "missing", props: proto.PropList{}, want: 0},
		{name: "numeric", props: proto.PropList{"application.process.id": proto.PropListString("4242")}, want: 4242},
		{name: "garbage", props: proto.PropList{"application.process.id": proto.PropListString("abc")}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := processID(tt.props); got != tt.want {
				t.Errorf("processID = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSinkInputState(t *testing.T) {
	if sinkInputState(false) != StateActive {
		t.Error("uncorked stream should be active")
	}
	if sinkInputState(true) != StateInactive {
		t.Error("corked stream should be inactive")
	}
}

func TestClamp(t *testing.T) {
	nan := float32(math.NaN())
	for in, want := range map[float32]float32{-1: 0, 0.25: 0.25, 1.5: 1, nan: 0} {
		if got := Clamp(in); got != want {
			t.Errorf("Clamp(%f) = %f, want %f", in, got, want)
		}
	}
}
