package profiles

import (
	"github.com/neuroplastio/neio-xr/xrapi"
)

// Index is a physical button or axis index, or Absent.
type Index int8

const Absent Index = -1

// ButtonMapping maps logical buttons (array position) to physical button indices.
type ButtonMapping [xrapi.ButtonCount]Index

// NewButtonMapping builds a mapping from physical indices in logical button order. Negative
// values and missing trailing entries are absent.
func NewButtonMapping(indices ...int) ButtonMapping {
	var m ButtonMapping
	for i := range m {
		m[i] = Absent
	}
	for i, idx := range indices {
		if i >= len(m) {
			break
		}
		if idx >= 0 {
			m[i] = Index(idx)
		}
	}
	return m
}

func (m ButtonMapping) Lookup(b xrapi.Button) (int, bool) {
	if b >= xrapi.ButtonCount || m[b] == Absent {
		return 0, false
	}
	return int(m[b]), true
}

type SourceKind uint8

const (
	SourceNone SourceKind = iota
	// SourceButton reads the analog value of a physical button. Most controllers expose
	// trigger and grip pressure this way rather than as axes.
	SourceButton
	SourceAxis
)

// AnalogSource says where a one dimensional axis is read from.
type AnalogSource struct {
	Kind  SourceKind
	Index int
}

// AxisPair locates a two dimensional axis in the hardware axis array.
type AxisPair struct {
	Present bool
	X, Y    int
}

var (
	touchpadAxes   = AxisPair{Present: true, X: 0, Y: 1}
	thumbstickAxes = AxisPair{Present: true, X: 2, Y: 3}
)

type Layout struct {
	Profile    Profile
	Key        string
	Buttons    ButtonMapping
	Trigger    AnalogSource
	Grip       AnalogSource
	Touchpad   AxisPair
	Thumbstick AxisPair
}

// analogFromButtons points trigger and grip at the physical buttons the mapping uses for them.
func (l Layout) analogFromButtons() Layout {
	if idx, ok := l.Buttons.Lookup(xrapi.ButtonTrigger); ok {
		l.Trigger = AnalogSource{Kind: SourceButton, Index: idx}
	}
	if idx, ok := l.Buttons.Lookup(xrapi.ButtonGrip); ok {
		l.Grip = AnalogSource{Kind: SourceButton, Index: idx}
	}
	return l
}

// IsDown reports the pressed state of a logical button. supported is false only when the
// layout has no physical button for it.
func (l Layout) IsDown(g xrapi.Gamepad, b xrapi.Button) (pressed, supported bool) {
	idx, ok := l.Buttons.Lookup(b)
	if !ok {
		return false, false
	}
	btn, _ := g.Button(idx)
	return btn.Pressed, true
}

func (l Layout) IsTouched(g xrapi.Gamepad, b xrapi.Button) (touched, supported bool) {
	idx, ok := l.Buttons.Lookup(b)
	if !ok {
		return false, false
	}
	btn, _ := g.Button(idx)
	return btn.Touched, true
}

// Axis reads a logical axis. One dimensional axes only fill x.
func (l Layout) Axis(g xrapi.Gamepad, a xrapi.Axis) (x, y float32, supported bool) {
	switch a {
	case xrapi.AxisTrigger:
		x, supported = l.Trigger.read(g)
		return x, 0, supported
	case xrapi.AxisGrip:
		x, supported = l.Grip.read(g)
		return x, 0, supported
	case xrapi.AxisTouchpad:
		return l.Touchpad.read(g)
	case xrapi.AxisThumbstick:
		return l.Thumbstick.read(g)
	}
	return 0, 0, false
}

func (s AnalogSource) read(g xrapi.Gamepad) (float32, bool) {
	switch s.Kind {
	case SourceButton:
		btn, _ := g.Button(s.Index)
		return btn.Value, true
	case SourceAxis:
		v, _ := g.Axis(s.Index)
		return v, true
	}
	return 0, false
}

func (p AxisPair) read(g xrapi.Gamepad) (float32, float32, bool) {
	if !p.Present {
		return 0, 0, false
	}
	x, _ := g.Axis(p.X)
	y, _ := g.Axis(p.Y)
	return x, y, true
}
