package sim

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/neuroplastio/neio-xr/xrapi"
	"github.com/neuroplastio/neio-xr/xrapi/xrmath"
)

// Controller is a scripted input source.
type Controller struct {
	b        *Backend
	id       string
	hand     xrapi.Handedness
	profiles []string

	buttons []xrapi.GamepadButton
	axes    []float32
	haptic  bool

	tracked bool
	grip    xrapi.RawPose
	aim     xrapi.RawPose
	hasAim  bool

	pulse  Pulse
	pulses int
}

// Pulse is the most recent haptic request of a controller.
type Pulse struct {
	Strength float32
	Duration time.Duration
	At       time.Duration
}

// NewController creates a tracked controller with a gamepad of the given size. Zero buttons
// and axes make it pose only.
func NewController(id string, hand xrapi.Handedness, profiles []string, buttons, axes int) *Controller {
	return &Controller{
		id:       id,
		hand:     hand,
		profiles: profiles,
		buttons:  make([]xrapi.GamepadButton, buttons),
		axes:     make([]float32, axes),
		haptic:   buttons > 0,
		tracked:  true,
		grip: xrapi.RawPose{
			Orientation:    mgl32.QuatIdent(),
			HasPosition:    true,
			HasOrientation: true,
		},
	}
}

func (c *Controller) ID() string {
	return c.id
}

func (c *Controller) Handedness() xrapi.Handedness {
	return c.hand
}

func (c *Controller) Profiles() []string {
	return c.profiles
}

func (c *Controller) Gamepad() (xrapi.Gamepad, bool) {
	if len(c.buttons) == 0 && len(c.axes) == 0 {
		return xrapi.Gamepad{}, false
	}
	g := xrapi.Gamepad{
		Buttons: append([]xrapi.GamepadButton(nil), c.buttons...),
		Axes:    append([]float32(nil), c.axes...),
	}
	if c.haptic {
		g.Haptics = []xrapi.HapticActuator{c}
	}
	return g, true
}

// Pulse replaces any running vibration.
func (c *Controller) Pulse(strength float32, duration time.Duration) {
	var now time.Duration
	if c.b != nil {
		now = c.b.now
	}
	c.pulse = Pulse{Strength: strength, Duration: duration, At: now}
	c.pulses++
}

// Vibration returns the pulse that is running now, if any.
func (c *Controller) Vibration() (Pulse, bool) {
	if c.pulses == 0 || c.b == nil || c.b.now >= c.pulse.At+c.pulse.Duration {
		return Pulse{}, false
	}
	return c.pulse, true
}

// Pulses counts haptic requests.
func (c *Controller) Pulses() int {
	return c.pulses
}

func (c *Controller) SetButton(i int, pressed, touched bool, value float32) {
	if i < 0 || i >= len(c.buttons) {
		return
	}
	c.buttons[i] = xrapi.GamepadButton{Pressed: pressed, Touched: touched, Value: value}
}

// Press sets a button fully pressed or released.
func (c *Controller) Press(i int, pressed bool) {
	var v float32
	if pressed {
		v = 1
	}
	c.SetButton(i, pressed, pressed, v)
}

func (c *Controller) SetAxis(i int, v float32) {
	if i < 0 || i >= len(c.axes) {
		return
	}
	c.axes[i] = v
}

func (c *Controller) SetPose(pose xrapi.RawPose) {
	c.grip = pose
}

// SetPosition sets a tracked grip position keeping the orientation.
func (c *Controller) SetPosition(p xrmath.Vec3) {
	c.grip.Position = p
	c.grip.HasPosition = true
}

func (c *Controller) SetAim(pose xrapi.RawPose) {
	c.aim = pose
	c.hasAim = true
}

func (c *Controller) SetTracked(tracked bool) {
	c.tracked = tracked
}
