package webxr

import (
	"time"

	"github.com/neuroplastio/neio-xr/xrapi"
)

type inputSource struct {
	id     string
	native XRInputSource
}

func (s *inputSource) ID() string {
	return s.id
}

func (s *inputSource) Handedness() xrapi.Handedness {
	switch s.native.Handedness() {
	case "left":
		return xrapi.HandLeft
	case "right":
		return xrapi.HandRight
	}
	return xrapi.HandNone
}

func (s *inputSource) Profiles() []string {
	return s.native.Profiles()
}

func (s *inputSource) Gamepad() (xrapi.Gamepad, bool) {
	native := s.native.Gamepad()
	if native == nil {
		return xrapi.Gamepad{}, false
	}
	g := xrapi.Gamepad{
		Buttons: make([]xrapi.GamepadButton, len(native.Buttons)),
		Axes:    make([]float32, len(native.Axes)),
	}
	for i, b := range native.Buttons {
		g.Buttons[i] = xrapi.GamepadButton{Pressed: b.Pressed, Touched: b.Touched, Value: float32(b.Value)}
	}
	for i, a := range native.Axes {
		g.Axes[i] = float32(a)
	}
	for _, h := range native.HapticActuators {
		if h != nil {
			g.Haptics = append(g.Haptics, actuator{h})
		}
	}
	return g, true
}

type actuator struct {
	native GamepadHapticActuator
}

func (a actuator) Pulse(strength float32, duration time.Duration) {
	a.native.Pulse(float64(strength), float64(duration)/float64(time.Millisecond))
}
