package webvr

// Navigator is the subset of the WebVR 1.1 and Gamepad APIs the adapter uses.
type Navigator interface {
	// Display returns the first VR display, or nil when there is none.
	Display() VRDisplay
	Gamepads() []Gamepad
}

type VRDisplay interface {
	DisplayName() string
	Capabilities() VRDisplayCapabilities
	// StageParameters is nil until the play area is calibrated.
	StageParameters() *VRStageParameters
	EyeParameters(eye string) VREyeParameters
	SetDepth(near, far float32)
	RequestAnimationFrame(fn func(t float64)) int
	CancelAnimationFrame(id int)
	GetFrameData(data *VRFrameData) bool
	IsPresenting() bool
	RequestPresent(done func(error))
	ExitPresent(done func(error))
	// OnPresentChange registers for vrdisplaypresentchange.
	OnPresentChange(fn func())
	SubmitFrame()
}

type VRDisplayCapabilities struct {
	CanPresent  bool
	HasPosition bool
}

type VRStageParameters struct {
	SittingToStandingTransform [16]float32
	SizeX                      float32
	SizeZ                      float32
}

type VREyeParameters struct {
	RenderWidth  uint32
	RenderHeight uint32
}

// VRPose components are nil when the display cannot report them.
type VRPose struct {
	Position        *[3]float32
	LinearVelocity  *[3]float32
	AngularVelocity *[3]float32
	Orientation     *[4]float32
}

type VRFrameData struct {
	Timestamp             float64
	LeftProjectionMatrix  [16]float32
	LeftViewMatrix        [16]float32
	RightProjectionMatrix [16]float32
	RightViewMatrix       [16]float32
	Pose                  VRPose
}

type GamepadButton struct {
	Pressed bool
	Touched bool
	Value   float64
}

type Gamepad struct {
	ID              string
	Index           int
	Hand            string
	Buttons         []GamepadButton
	Axes            []float64
	Pose            *VRPose
	HapticActuators []GamepadHapticActuator
}

type GamepadHapticActuator interface {
	// Pulse takes a duration in milliseconds.
	Pulse(value float64, duration float64)
}
