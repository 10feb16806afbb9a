package webxr

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/neuroplastio/neio-xr/xrapi"
	"github.com/neuroplastio/neio-xr/xrapi/xrmath"
)

type Frame struct {
	// t is the animation frame timestamp in milliseconds.
	t      float64
	native XRFrame
}

func (f *Frame) Time() time.Duration {
	return time.Duration(f.t * float64(time.Millisecond))
}

func (f *Frame) Viewer(space xrapi.ReferenceSpace) (xrapi.ViewerPose, bool) {
	sp, ok := space.(*Space)
	if !ok {
		return xrapi.ViewerPose{}, false
	}
	native := f.native.GetViewerPose(sp.native)
	if native == nil {
		return xrapi.ViewerPose{}, false
	}
	viewer := xrapi.ViewerPose{
		Pose:  convertPose(native.XRPose),
		Views: make([]xrapi.RawView, len(native.Views)),
	}
	for i, v := range native.Views {
		viewer.Views[i] = xrapi.RawView{
			Eye:        convertEye(v.Eye),
			Pose:       convertPose(XRPose{Transform: v.Transform}),
			Projection: xrmath.Mat4(v.ProjectionMatrix),
		}
	}
	return viewer, true
}

func (f *Frame) SourcePose(src xrapi.InputSource, target xrapi.PoseTarget, space xrapi.ReferenceSpace) (xrapi.RawPose, bool) {
	in, ok := src.(*inputSource)
	if !ok {
		return xrapi.RawPose{}, false
	}
	sp, ok := space.(*Space)
	if !ok {
		return xrapi.RawPose{}, false
	}
	var native XRSpace
	if target == xrapi.TargetAim {
		native = in.native.TargetRaySpace()
	} else {
		native = in.native.GripSpace()
	}
	if native == nil {
		return xrapi.RawPose{}, false
	}
	pose := f.native.GetPose(native, sp.native)
	if pose == nil {
		return xrapi.RawPose{}, false
	}
	return convertPose(*pose), true
}

func convertEye(eye string) xrapi.Eye {
	switch eye {
	case "left":
		return xrapi.EyeLeft
	case "right":
		return xrapi.EyeRight
	}
	return xrapi.EyeNone
}

// convertPose maps a rigid transform onto a raw pose. WebXR orientations are xyzw.
func convertPose(p XRPose) xrapi.RawPose {
	pos, rot := p.Transform.Position, p.Transform.Orientation
	raw := xrapi.RawPose{
		Position:       xrmath.Vec3{pos.X, pos.Y, pos.Z},
		Orientation:    mgl32.Quat{W: rot.W, V: mgl32.Vec3{rot.X, rot.Y, rot.Z}},
		HasPosition:    finite(pos.X, pos.Y, pos.Z),
		HasOrientation: finite(rot.X, rot.Y, rot.Z, rot.W),
	}
	if v := p.LinearVelocity; v != nil {
		raw.LinearVelocity = xrmath.Vec3{v.X, v.Y, v.Z}
		raw.HasLinearVelocity = true
	}
	if v := p.AngularVelocity; v != nil {
		raw.AngularVelocity = xrmath.Vec3{v.X, v.Y, v.Z}
		raw.HasAngularVelocity = true
	}
	if !raw.HasPosition {
		raw.Position = xrmath.Vec3{}
	}
	if !raw.HasOrientation {
		raw.Orientation = mgl32.QuatIdent()
	}
	return raw
}

func finite(vs ...float32) bool {
	for _, v := range vs {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

type Space struct {
	kind   xrapi.SpaceKind
	native XRReferenceSpace
}

func (s *Space) Kind() xrapi.SpaceKind {
	return s.kind
}

func (s *Space) Floor() bool {
	return s.kind.Floor()
}

// OriginTransform is absent: the host already reports poses in the requested space.
func (s *Space) OriginTransform() (xrmath.Mat4, bool) {
	return xrmath.Mat4{}, false
}

// Bounds is the extent of the bounds polygon on the floor.
func (s *Space) Bounds() (width, depth float32, ok bool) {
	points := s.BoundsGeometry()
	if len(points) < 3 {
		return 0, 0, false
	}
	minX, maxX := points[0][0], points[0][0]
	minZ, maxZ := points[0][2], points[0][2]
	for _, p := range points[1:] {
		minX, maxX = min(minX, p[0]), max(maxX, p[0])
		minZ, maxZ = min(minZ, p[2]), max(maxZ, p[2])
	}
	return maxX - minX, maxZ - minZ, true
}

func (s *Space) BoundsGeometry() []xrmath.Vec3 {
	if s.kind != xrapi.SpaceBoundedFloor || s.native == nil {
		return nil
	}
	native := s.native.BoundsGeometry()
	if len(native) == 0 {
		return nil
	}
	points := make([]xrmath.Vec3, len(native))
	for i, p := range native {
		points[i] = xrmath.Vec3{p.X, p.Y, p.Z}
	}
	return points
}
