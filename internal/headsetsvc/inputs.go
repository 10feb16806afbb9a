package headsetsvc

import (
	"time"

	"github.com/neuroplastio/neio-xr/xrapi"
	"github.com/neuroplastio/neio-xr/xrapi/profiles"
	"go.uber.org/zap"
)

var hands = [...]xrapi.Handedness{xrapi.HandLeft, xrapi.HandRight}

// binding ties a hand to a live input source. The layout is resolved once per connection.
type binding struct {
	source      xrapi.InputSource
	layout      profiles.Layout
	mapped      bool
	connectedAt time.Time
	// pressed is the last observed state per physical button index.
	pressed []bool
}

func (b *binding) profile() string {
	if !b.mapped {
		return ""
	}
	return b.layout.Key
}

func (b *binding) snapshot() []bool {
	g, ok := b.source.Gamepad()
	if !ok {
		return nil
	}
	pressed := make([]bool, len(g.Buttons))
	for i, btn := range g.Buttons {
		pressed[i] = btn.Pressed
	}
	return pressed
}

// rebuildInputs recomputes every hand binding from the driver's current input sources. Edge
// state survives for sources that keep their id; new sources start from their current state,
// so a button held while connecting does not fire a press.
func (s *Service) rebuildInputs() {
	var next [3]*binding
	if s.driver != nil {
		for _, src := range s.driver.session.InputSources() {
			h := src.Handedness()
			if h == xrapi.HandNone || next[h] != nil {
				continue
			}
			b := &binding{source: src}
			b.layout, b.mapped = s.profiles.Resolve(src.Profiles(), h)
			if prev := s.hands[h]; prev != nil && prev.source.ID() == src.ID() {
				b.pressed = prev.pressed
				b.connectedAt = prev.connectedAt
			} else {
				b.pressed = b.snapshot()
				b.connectedAt = s.now()
			}
			next[h] = b
		}
	}
	s.swapBindings(next)
}

func (s *Service) clearInputs() {
	s.swapBindings([3]*binding{})
}

func (s *Service) swapBindings(next [3]*binding) {
	prev := s.hands
	s.hands = next
	for _, h := range hands {
		device, _ := xrapi.HandDevice(h)
		p, n := prev[h], next[h]
		if p != nil && n != nil && p.source.ID() == n.source.ID() && p.profile() == n.profile() {
			continue
		}
		if p != nil {
			s.disconnect(device, p)
		}
		if n != nil {
			s.connect(device, n)
		}
	}
}

func (s *Service) connect(device xrapi.Device, b *binding) {
	if !b.mapped {
		s.log.Warn("Unknown controller profile, pose only",
			zap.Stringer("device", device),
			zap.Strings("profiles", b.source.Profiles()),
		)
	}
	s.log.Info("Device connected",
		zap.Stringer("device", device),
		zap.String("source", b.source.ID()),
		zap.String("profile", b.profile()),
	)
	s.status.Store(device, DeviceStatus{
		Device:      device,
		Hand:        device.Hand(),
		Source:      b.source.ID(),
		Profile:     b.profile(),
		ConnectedAt: b.connectedAt,
	})
	s.emit(xrapi.Event{
		Type:    xrapi.EventConnected,
		Device:  device,
		Profile: b.profile(),
		Source:  b.source.ID(),
	})
}

func (s *Service) disconnect(device xrapi.Device, b *binding) {
	s.log.Info("Device disconnected", zap.Stringer("device", device), zap.String("source", b.source.ID()))
	s.status.Delete(device)
	s.emit(xrapi.Event{
		Type:    xrapi.EventDisconnected,
		Device:  device,
		Profile: b.profile(),
		Source:  b.source.ID(),
	})
}

// pollButtons fires one event per pressed-state transition of a mapped button.
func (s *Service) pollButtons() {
	for _, h := range hands {
		b := s.hands[h]
		if b == nil || !b.mapped {
			continue
		}
		g, ok := b.source.Gamepad()
		if !ok {
			continue
		}
		device, _ := xrapi.HandDevice(h)
		for btn := xrapi.Button(0); btn < xrapi.ButtonCount; btn++ {
			idx, ok := b.layout.Buttons.Lookup(btn)
			if !ok {
				continue
			}
			phys, _ := g.Button(idx)
			was := idx < len(b.pressed) && b.pressed[idx]
			if phys.Pressed == was {
				continue
			}
			typ := xrapi.EventReleased
			if phys.Pressed {
				typ = xrapi.EventPressed
			}
			s.emit(xrapi.Event{Type: typ, Device: device, Button: btn})
		}
		if cap(b.pressed) < len(g.Buttons) {
			b.pressed = make([]bool, len(g.Buttons))
		}
		b.pressed = b.pressed[:len(g.Buttons)]
		for i, btn := range g.Buttons {
			b.pressed[i] = btn.Pressed
		}
	}
}

func (s *Service) binding(device xrapi.Device) (*binding, bool) {
	h := device.Hand()
	if h == xrapi.HandNone {
		return nil, false
	}
	b := s.hands[h]
	return b, b != nil
}

func (s *Service) gamepad(device xrapi.Device) (profiles.Layout, xrapi.Gamepad, bool) {
	b, ok := s.binding(device)
	if !ok || !b.mapped {
		return profiles.Layout{}, xrapi.Gamepad{}, false
	}
	g, ok := b.source.Gamepad()
	return b.layout, g, ok
}

// IsDown reports whether a button is pressed. ok is false when the device is not bound or has
// no such button.
func (s *Service) IsDown(device xrapi.Device, button xrapi.Button) (down, ok bool) {
	layout, g, ok := s.gamepad(device)
	if !ok {
		return false, false
	}
	return layout.IsDown(g, button)
}

func (s *Service) IsTouched(device xrapi.Device, button xrapi.Button) (touched, ok bool) {
	layout, g, ok := s.gamepad(device)
	if !ok {
		return false, false
	}
	return layout.IsTouched(g, button)
}

// Axis reads an axis. One dimensional axes only fill x.
func (s *Service) Axis(device xrapi.Device, axis xrapi.Axis) (x, y float32, ok bool) {
	layout, g, ok := s.gamepad(device)
	if !ok {
		return 0, 0, false
	}
	return layout.Axis(g, axis)
}

// Vibrate pulses the first haptic actuator of a device. A newer pulse replaces a running one.
func (s *Service) Vibrate(device xrapi.Device, strength float32, duration time.Duration) bool {
	b, ok := s.binding(device)
	if !ok {
		return false
	}
	g, ok := b.source.Gamepad()
	if !ok || len(g.Haptics) == 0 || g.Haptics[0] == nil {
		return false
	}
	switch {
	case strength < 0:
		strength = 0
	case strength > 1:
		strength = 1
	}
	g.Haptics[0].Pulse(strength, duration)
	return true
}
