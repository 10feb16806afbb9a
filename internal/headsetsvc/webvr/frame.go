package webvr

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/neuroplastio/neio-xr/xrapi"
	"github.com/neuroplastio/neio-xr/xrapi/xrmath"
)

type Frame struct {
	mode  xrapi.SessionMode
	ok    bool
	data  VRFrameData
	poses map[string]VRPose
}

func (f *Frame) Time() time.Duration {
	return time.Duration(f.data.Timestamp * float64(time.Millisecond))
}

// Viewer reports two eye views while presenting and a single head view otherwise. Eye poses
// are recovered from the view matrices, which are the inverse eye transforms.
func (f *Frame) Viewer(space xrapi.ReferenceSpace) (xrapi.ViewerPose, bool) {
	if _, ok := space.(*Space); !ok || !f.ok {
		return xrapi.ViewerPose{}, false
	}
	head, ok := convertPose(f.data.Pose)
	if !ok {
		return xrapi.ViewerPose{}, false
	}
	viewer := xrapi.ViewerPose{Pose: head}
	if f.mode != xrapi.SessionImmersive {
		viewer.Views = []xrapi.RawView{
			{Eye: xrapi.EyeNone, Pose: head, Projection: f.data.LeftProjectionMatrix},
		}
		return viewer, true
	}
	viewer.Views = []xrapi.RawView{
		{Eye: xrapi.EyeLeft, Pose: eyePose(f.data.LeftViewMatrix), Projection: f.data.LeftProjectionMatrix},
		{Eye: xrapi.EyeRight, Pose: eyePose(f.data.RightViewMatrix), Projection: f.data.RightProjectionMatrix},
	}
	return viewer, true
}

// SourcePose returns the gamepad pose for either target; WebVR has a single pose per gamepad.
func (f *Frame) SourcePose(src xrapi.InputSource, _ xrapi.PoseTarget, space xrapi.ReferenceSpace) (xrapi.RawPose, bool) {
	in, ok := src.(*inputSource)
	if !ok {
		return xrapi.RawPose{}, false
	}
	if _, ok := space.(*Space); !ok {
		return xrapi.RawPose{}, false
	}
	pose, ok := f.poses[in.id]
	if !ok {
		return xrapi.RawPose{}, false
	}
	return convertPose(pose)
}

func eyePose(view xrmath.Mat4) xrapi.RawPose {
	position, orientation := xrmath.PoseFromMat4(xrmath.Invert(view))
	return xrapi.RawPose{
		Position:       position,
		Orientation:    orientation,
		HasPosition:    true,
		HasOrientation: true,
	}
}

// convertPose reports false when the pose has neither position nor orientation. WebVR
// orientations are xyzw.
func convertPose(p VRPose) (xrapi.RawPose, bool) {
	raw := xrapi.RawPose{Orientation: mgl32.QuatIdent()}
	if v := p.Position; v != nil {
		raw.Position = xrmath.Vec3(*v)
		raw.HasPosition = true
	}
	if q := p.Orientation; q != nil {
		raw.Orientation = mgl32.Quat{W: q[3], V: mgl32.Vec3{q[0], q[1], q[2]}}
		raw.HasOrientation = true
	}
	if v := p.LinearVelocity; v != nil {
		raw.LinearVelocity = xrmath.Vec3(*v)
		raw.HasLinearVelocity = true
	}
	if v := p.AngularVelocity; v != nil {
		raw.AngularVelocity = xrmath.Vec3(*v)
		raw.HasAngularVelocity = true
	}
	return raw, raw.HasPosition || raw.HasOrientation
}

// Space is the display's tracking space. Its kind and transform follow the stage parameters.
type Space struct {
	display VRDisplay
}

func (s *Space) Kind() xrapi.SpaceKind {
	stage := s.display.StageParameters()
	switch {
	case stage == nil:
		return xrapi.SpaceLocal
	case stage.SizeX > 0 && stage.SizeZ > 0:
		return xrapi.SpaceBoundedFloor
	}
	return xrapi.SpaceLocalFloor
}

func (s *Space) Floor() bool {
	return s.display.StageParameters() != nil
}

// OriginTransform is the sitting-to-standing transform of the stage.
func (s *Space) OriginTransform() (xrmath.Mat4, bool) {
	stage := s.display.StageParameters()
	if stage == nil {
		return xrmath.Mat4{}, false
	}
	return stage.SittingToStandingTransform, true
}

func (s *Space) Bounds() (width, depth float32, ok bool) {
	stage := s.display.StageParameters()
	if stage == nil || stage.SizeX <= 0 || stage.SizeZ <= 0 {
		return 0, 0, false
	}
	return stage.SizeX, stage.SizeZ, true
}

// BoundsGeometry is the stage rectangle centered on the origin.
func (s *Space) BoundsGeometry() []xrmath.Vec3 {
	w, d, ok := s.Bounds()
	if !ok {
		return nil
	}
	x, z := w/2, d/2
	return []xrmath.Vec3{{-x, 0, z}, {x, 0, z}, {x, 0, -z}, {-x, 0, -z}}
}

type inputSource struct {
	b       *Backend
	id      string
	gamepad Gamepad
}

func (s *inputSource) ID() string {
	return s.id
}

func (s *inputSource) Handedness() xrapi.Handedness {
	if s.gamepad.Hand == "left" {
		return xrapi.HandLeft
	}
	return xrapi.HandRight
}

// Profiles is the gamepad id, which the registry resolves against its WebVR table.
func (s *inputSource) Profiles() []string {
	return []string{s.gamepad.ID}
}

// Gamepad reads the live gamepad state; WebVR gamepads must be polled.
func (s *inputSource) Gamepad() (xrapi.Gamepad, bool) {
	for _, g := range s.b.nav.Gamepads() {
		if gamepadID(g) != s.id {
			continue
		}
		out := xrapi.Gamepad{
			Buttons: make([]xrapi.GamepadButton, len(g.Buttons)),
			Axes:    make([]float32, len(g.Axes)),
		}
		for i, b := range g.Buttons {
			out.Buttons[i] = xrapi.GamepadButton{Pressed: b.Pressed, Touched: b.Touched, Value: float32(b.Value)}
		}
		for i, a := range g.Axes {
			out.Axes[i] = float32(a)
		}
		for _, h := range g.HapticActuators {
			if h != nil {
				out.Haptics = append(out.Haptics, actuator{h})
			}
		}
		return out, true
	}
	return xrapi.Gamepad{}, false
}

type actuator struct {
	native GamepadHapticActuator
}

func (a actuator) Pulse(strength float32, duration time.Duration) {
	a.native.Pulse(float64(strength), float64(duration)/float64(time.Millisecond))
}
