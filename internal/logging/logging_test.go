package logging

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{" warn ", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"trace", zerolog.TraceLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewWithLevelFallsBackToConsole(t *testing.T) {
	// An unwritable state dir must not prevent logger construction.
	t.Setenv("XDG_STATE_HOME", "/proc/mixer-tray-test-unwritable")
	t.Setenv("HOME", "/proc/mixer-tray-test-unwritable")

	log := NewWithLevel("error")
	if log.GetLevel() != zerolog.ErrorLevel {
		t.Errorf("expected error level, got %v", log.GetLevel())
	}
}
