// Package procinfo derives display names for audio-producing processes.
package procinfo

import (
	"errors"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// Unknown is the display key used when no metadata can be resolved.
const Unknown = "Unknown"

// ErrUnavailable is returned when a metadata field cannot be resolved.
var ErrUnavailable = errors.New("process metadata unavailable")

// Source answers metadata questions about a running process. Any method may
// fail, typically across privilege boundaries.
type Source interface {
	Description(pid int) (string, error)
	ExecutableName(pid int) (string, error)
	ExecutablePath(pid int) (string, error)
}

// Describer supplies process descriptions, e.g. from audio stream metadata.
type Describer interface {
	Description(pid int) (string, error)
}

// DisplayKey resolves the grouping key for pid: the description when it is
// non-blank, then the executable name, then Unknown. Failures fall through.
func DisplayKey(src Source, pid int) string {
	if src == nil {
		return Unknown
	}
	if d, err := src.Description(pid); err == nil {
		if d = strings.TrimSpace(d); d != "" {
			return d
		}
	}
	if n, err := src.ExecutableName(pid); err == nil {
		if n = strings.TrimSpace(n); n != "" {
			return n
		}
	}
	return Unknown
}

// Icon resolves the icon reference for pid, blank when unavailable.
func Icon(src Source, pid int) string {
	if src == nil {
		return ""
	}
	p, err := src.ExecutablePath(pid)
	if err != nil {
		return ""
	}
	return p
}

// System reads process metadata from the OS through gopsutil.
type System struct{}

// Description is not exposed by the OS process table; see WithDescriptions.
func (System) Description(pid int) (string, error) {
	return "", ErrUnavailable
}

func (System) ExecutableName(pid int) (string, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", err
	}
	name, err := p.Name()
	if err != nil {
		return "", err
	}
	return trimExe(name), nil
}

func (System) ExecutablePath(pid int) (string, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", err
	}
	return p.Exe()
}

func trimExe(name string) string {
	if len(name) > 4 && strings.EqualFold(name[len(name)-4:], ".exe") {
		return name[:len(name)-4]
	}
	return name
}

// WithDescriptions layers d in front of src for descriptions and falls back
// to src when d has nothing to say.
func WithDescriptions(d Describer, src Source) Source {
	return layered{d: d, Source: src}
}

type layered struct {
	d Describer
	Source
}

func (l layered) Description(pid int) (string, error) {
	if l.d != nil {
		if desc, err := l.d.Description(pid); err == nil && strings.TrimSpace(desc) != "" {
			return desc, nil
		}
	}
	return l.Source.Description(pid)
}
