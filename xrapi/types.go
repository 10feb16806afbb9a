// Package xrapi defines the canonical headset contract: logical devices, buttons and axes,
// poses, and the adapter interfaces every host backend generation implements.
package xrapi

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/iancoleman/strcase"
	"github.com/neuroplastio/neio-xr/xrapi/xrmath"
)

type Origin uint8

const (
	OriginHead Origin = iota
	OriginFloor
)

func (o Origin) String() string {
	if o == OriginFloor {
		return "floor"
	}
	return "head"
}

type Device uint8

const (
	DeviceHead Device = iota
	DeviceHandLeft
	DeviceHandRight
	DeviceHandLeftPoint
	DeviceHandRightPoint
	DeviceEyeLeft
	DeviceEyeRight
	DeviceCount
)

var deviceNames = [DeviceCount]string{
	"head",
	"hand-left",
	"hand-right",
	"hand-left-point",
	"hand-right-point",
	"eye-left",
	"eye-right",
}

func (d Device) String() string {
	if d < DeviceCount {
		return deviceNames[d]
	}
	return fmt.Sprintf("device(%d)", uint8(d))
}

// Hand returns the handedness a device is bound from, or HandNone for head and eyes.
func (d Device) Hand() Handedness {
	switch d {
	case DeviceHandLeft, DeviceHandLeftPoint:
		return HandLeft
	case DeviceHandRight, DeviceHandRightPoint:
		return HandRight
	}
	return HandNone
}

// HandDevice returns the grip device for a hand.
func HandDevice(h Handedness) (Device, bool) {
	switch h {
	case HandLeft:
		return DeviceHandLeft, true
	case HandRight:
		return DeviceHandRight, true
	}
	return 0, false
}

func ParseDevice(s string) (Device, error) {
	name := normalizeName(s)
	for i, n := range deviceNames {
		if n == name {
			return Device(i), nil
		}
	}
	return 0, fmt.Errorf("unknown device: %s", s)
}

type Button uint8

const (
	ButtonTrigger Button = iota
	ButtonThumbstick
	ButtonTouchpad
	ButtonGrip
	ButtonMenu
	ButtonA
	ButtonB
	ButtonX
	ButtonY
	ButtonCount
)

var buttonNames = [ButtonCount]string{
	"trigger",
	"thumbstick",
	"touchpad",
	"grip",
	"menu",
	"a",
	"b",
	"x",
	"y",
}

func (b Button) String() string {
	if b < ButtonCount {
		return buttonNames[b]
	}
	return fmt.Sprintf("button(%d)", uint8(b))
}

func ParseButton(s string) (Button, error) {
	name := normalizeName(s)
	for i, n := range buttonNames {
		if n == name {
			return Button(i), nil
		}
	}
	return 0, fmt.Errorf("unknown button: %s", s)
}

type Axis uint8

const (
	AxisTrigger Axis = iota
	AxisThumbstick
	AxisTouchpad
	AxisGrip
	AxisCount
)

var axisNames = [AxisCount]string{
	"trigger",
	"thumbstick",
	"touchpad",
	"grip",
}

func (a Axis) String() string {
	if a < AxisCount {
		return axisNames[a]
	}
	return fmt.Sprintf("axis(%d)", uint8(a))
}

// Dimensions is the number of values an axis reports.
func (a Axis) Dimensions() int {
	switch a {
	case AxisThumbstick, AxisTouchpad:
		return 2
	}
	return 1
}

func ParseAxis(s string) (Axis, error) {
	name := normalizeName(s)
	for i, n := range axisNames {
		if n == name {
			return Axis(i), nil
		}
	}
	return 0, fmt.Errorf("unknown axis: %s", s)
}

type Handedness uint8

const (
	HandNone Handedness = iota
	HandLeft
	HandRight
)

func (h Handedness) String() string {
	switch h {
	case HandLeft:
		return "left"
	case HandRight:
		return "right"
	}
	return "none"
}

func ParseHandedness(s string) (Handedness, error) {
	switch normalizeName(s) {
	case "left", "l":
		return HandLeft, nil
	case "right", "r":
		return HandRight, nil
	case "", "none":
		return HandNone, nil
	}
	return HandNone, fmt.Errorf("unknown handedness: %s", s)
}

func (h Handedness) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

func (h *Handedness) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseHandedness(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

func (h Handedness) MarshalYAML() ([]byte, error) {
	return yaml.Marshal(h.String())
}

func (h *Handedness) UnmarshalYAML(data []byte) error {
	var s string
	if err := yaml.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseHandedness(s)
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// normalizeName accepts "HandLeft", "hand_left", "hand/left" and "hand-left" alike.
func normalizeName(s string) string {
	return strcase.ToKebab(strings.ReplaceAll(strings.TrimSpace(s), "/", "-"))
}

// RawPose is a pose as reported by a backend. Every component may be missing.
type RawPose struct {
	Position    xrmath.Vec3
	Orientation xrmath.Quat

	LinearVelocity  xrmath.Vec3
	AngularVelocity xrmath.Vec3

	HasPosition        bool
	HasOrientation     bool
	HasLinearVelocity  bool
	HasAngularVelocity bool
}

// Pose is a resolved pose in the canonical output space.
type Pose struct {
	Position    xrmath.Vec3
	Orientation xrmath.Quat
}

// Matrix returns the pose as a rigid transform.
func (p Pose) Matrix() xrmath.Mat4 {
	return xrmath.FromPose(p.Position, p.Orientation)
}

type Velocity struct {
	Linear  xrmath.Vec3
	Angular xrmath.Vec3
}

type Eye uint8

const (
	EyeNone Eye = iota
	EyeLeft
	EyeRight
)

type RawView struct {
	Eye        Eye
	Pose       RawPose
	Projection xrmath.Mat4
}

// ViewerPose is the head pose plus one entry per rendered view.
type ViewerPose struct {
	Pose  RawPose
	Views []RawView
}

// MaxViews bounds the views packed into a Camera.
const MaxViews = 2

// Camera is the per-tick view/projection record handed to the renderer.
// It is only valid during the render callback that receives it.
type Camera struct {
	Stereo     bool
	ViewCount  int
	View       [MaxViews]xrmath.Mat4
	Projection [MaxViews]xrmath.Mat4
}

type GamepadButton struct {
	Pressed bool
	Touched bool
	Value   float32
}

// Gamepad is a snapshot of an input source's buttons and axes.
type Gamepad struct {
	Buttons []GamepadButton
	Axes    []float32
	Haptics []HapticActuator
}

// Button returns the physical button at index i, reporting false when out of range.
func (g Gamepad) Button(i int) (GamepadButton, bool) {
	if i < 0 || i >= len(g.Buttons) {
		return GamepadButton{}, false
	}
	return g.Buttons[i], true
}

// Axis returns the physical axis at index i, reporting false when out of range.
func (g Gamepad) Axis(i int) (float32, bool) {
	if i < 0 || i >= len(g.Axes) {
		return 0, false
	}
	return g.Axes[i], true
}
