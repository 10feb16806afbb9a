package webxr

// The interfaces below are the subset of the WebXR Device API the adapter uses. A JavaScript
// bridge implements them on top of navigator.xr; tests use fakes. Promise callbacks may run on
// any goroutine. Animation frame callbacks must run on the goroutine that calls
// headsetsvc.Service.Update, as the browser runs them on its main thread.

// Host is navigator.xr.
type Host interface {
	IsSessionSupported(mode string, done func(supported bool, err error))
	RequestSession(mode string, opts SessionInit, done func(XRSession, error))
}

type SessionInit struct {
	RequiredFeatures []string
	OptionalFeatures []string
}

type XRSession interface {
	RequestReferenceSpace(kind string, done func(XRReferenceSpace, error))
	// CreateLayer makes the context XR compatible and allocates an XRWebGLLayer.
	CreateLayer(done func(XRLayer, error))
	UpdateRenderState(state RenderState)
	RequestAnimationFrame(fn func(t float64, frame XRFrame)) int
	CancelAnimationFrame(id int)
	InputSources() []XRInputSource
	// AddEventListener registers for "inputsourceschange" and "end".
	AddEventListener(event string, fn func())
	End()
}

// RenderState fields left zero are not changed.
type RenderState struct {
	DepthNear float32
	DepthFar  float32
	BaseLayer XRLayer
}

type XRLayer interface {
	FramebufferWidth() uint32
	FramebufferHeight() uint32
	Destroy()
}

type XRSpace interface{}

type XRReferenceSpace interface {
	XRSpace
	// BoundsGeometry is only non-empty for a bounded-floor space.
	BoundsGeometry() []DOMPoint
}

type DOMPoint struct {
	X, Y, Z, W float32
}

type RigidTransform struct {
	Position    DOMPoint
	Orientation DOMPoint
}

type XRPose struct {
	Transform       RigidTransform
	LinearVelocity  *DOMPoint
	AngularVelocity *DOMPoint
}

type XRView struct {
	Eye              string
	Transform        RigidTransform
	ProjectionMatrix [16]float32
}

type XRViewerPose struct {
	XRPose
	Views []XRView
}

type XRFrame interface {
	GetViewerPose(space XRReferenceSpace) *XRViewerPose
	GetPose(space XRSpace, base XRReferenceSpace) *XRPose
}

// XRInputSource implementations must be comparable; the adapter keys source ids by them.
type XRInputSource interface {
	Handedness() string
	Profiles() []string
	GripSpace() XRSpace
	TargetRaySpace() XRSpace
	Gamepad() *Gamepad
}

type GamepadButton struct {
	Pressed bool
	Touched bool
	Value   float64
}

type Gamepad struct {
	Buttons         []GamepadButton
	Axes            []float64
	HapticActuators []GamepadHapticActuator
}

type GamepadHapticActuator interface {
	// Pulse takes a duration in milliseconds.
	Pulse(value float64, duration float64)
}
