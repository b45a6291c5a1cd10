package mixer

import "math"

// Field identifies what a Change is about.
type Field int

const (
	FieldAdded Field = iota
	FieldRemoved
	FieldMoved
	FieldVolume
	FieldMute
	FieldPeak
)

func (f Field) String() string {
	switch f {
	case FieldAdded:
		return "added"
	case FieldRemoved:
		return "removed"
	case FieldMoved:
		return "moved"
	case FieldVolume:
		return "volume"
	case FieldMute:
		return "mute"
	case FieldPeak:
		return "peak"
	default:
		return "unknown"
	}
}

// Change describes one observable mutation. Master changes carry an empty
// Key and Master set. Index is the group's position after the change; From
// is its position before a move or removal.
type Change struct {
	Key    string
	Master bool
	Field  Field
	Index  int
	From   int
	Volume float32
	Muted  bool
	Peak   float32
}

// Observer receives changes. It is called with the mixer locked and must
// not call back into the mixer from the same goroutine.
type Observer interface {
	Changed(Change)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Change)

func (f ObserverFunc) Changed(c Change) { f(c) }

type emitFunc func(Change)

func (f emitFunc) emit(c Change) {
	if f != nil {
		f(c)
	}
}

const (
	volumeEpsilon = 0.001
	silenceFloor  = 0.01
)

// floatGate remembers the last published value and reports whether a new
// value moved further than eps from it.
type floatGate struct {
	last float32
	eps  float32
}

func newVolumeGate() floatGate { return floatGate{last: -1, eps: volumeEpsilon} }
func newPeakGate() floatGate   { return floatGate{} }

func (g *floatGate) update(v float32) bool {
	if float32(math.Abs(float64(g.last-v))) <= g.eps {
		return false
	}
	g.last = v
	return true
}

type boolGate struct {
	last bool
}

func (g *boolGate) update(v bool) bool {
	if g.last == v {
		return false
	}
	g.last = v
	return true
}
