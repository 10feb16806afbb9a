package xrapi

import (
	"errors"
	"time"

	"github.com/neuroplastio/neio-xr/xrapi/xrmath"
)

var (
	ErrUnsupported      = errors.New("unsupported by backend")
	ErrSessionEnded     = errors.New("session ended")
	ErrNoReferenceSpace = errors.New("no reference space available")
)

type SessionMode uint8

const (
	SessionInline SessionMode = iota
	SessionImmersive
)

func (m SessionMode) String() string {
	if m == SessionImmersive {
		return "immersive"
	}
	return "inline"
}

type SpaceKind uint8

const (
	// SpaceLocal is anchored where tracking started, at head height.
	SpaceLocal SpaceKind = iota
	SpaceLocalFloor
	SpaceBoundedFloor
	// SpaceViewer follows the head. It is the last resort of inline previews and carries no
	// positional tracking.
	SpaceViewer
)

func (k SpaceKind) String() string {
	switch k {
	case SpaceLocalFloor:
		return "local-floor"
	case SpaceBoundedFloor:
		return "bounded-floor"
	case SpaceViewer:
		return "viewer"
	}
	return "local"
}

// Floor reports whether the space origin sits on the floor.
func (k SpaceKind) Floor() bool {
	return k == SpaceLocalFloor || k == SpaceBoundedFloor
}

// SpaceCandidates is the reference space request order: floor first, head as fallback.
var SpaceCandidates = []SpaceKind{SpaceBoundedFloor, SpaceLocalFloor, SpaceLocal}

// Backend adapts one host API generation. Completion callbacks may run synchronously or
// later; the caller is responsible for deferring them.
type Backend interface {
	Name() string
	// Available reports whether the host has any XR capability at all.
	Available() bool
	SupportsMode(mode SessionMode) bool
	RequestSession(mode SessionMode, done func(Session, error))
}

type FrameHandle uint64

type FrameFunc func(frame Frame)

type EndReason uint8

const (
	EndRequested EndReason = iota
	EndUser
	EndDeviceLost
	EndError
)

func (r EndReason) String() string {
	switch r {
	case EndUser:
		return "user"
	case EndDeviceLost:
		return "device-lost"
	case EndError:
		return "error"
	}
	return "requested"
}

type Session interface {
	Mode() SessionMode
	// RequestReferenceSpace resolves the first candidate the host supports.
	RequestReferenceSpace(candidates []SpaceKind, done func(ReferenceSpace, error))
	// CreateSurface allocates the off-screen render target of an immersive session.
	CreateSurface(done func(Surface, error))
	// RequestFrame schedules fn for the next display refresh. Unlike completions, fn runs on
	// the loop goroutine.
	RequestFrame(fn FrameFunc) FrameHandle
	CancelFrame(h FrameHandle)
	InputSources() []InputSource
	OnInputSourcesChanged(fn func())
	OnEnd(fn func(EndReason))
	DisplayDimensions() (width, height uint32)
	SetClipDistance(near, far float32)
	Submit(frame Frame)
	End()
}

type Surface interface {
	Release()
}

type ReferenceSpace interface {
	Kind() SpaceKind
	// Floor reports whether poses in this space are floor relative. It may change over the
	// lifetime of the space, e.g. when a stage gets calibrated.
	Floor() bool
	// OriginTransform converts native poses into the output space, when the host has one.
	OriginTransform() (xrmath.Mat4, bool)
	Bounds() (width, depth float32, ok bool)
	BoundsGeometry() []xrmath.Vec3
}

type PoseTarget uint8

const (
	TargetGrip PoseTarget = iota
	TargetAim
)

type Frame interface {
	Time() time.Duration
	Viewer(space ReferenceSpace) (ViewerPose, bool)
	SourcePose(src InputSource, target PoseTarget, space ReferenceSpace) (RawPose, bool)
}

type InputSource interface {
	ID() string
	Handedness() Handedness
	// Profiles lists candidate hardware profile ids, most specific first.
	Profiles() []string
	Gamepad() (Gamepad, bool)
}

type HapticActuator interface {
	Pulse(strength float32, duration time.Duration)
}
