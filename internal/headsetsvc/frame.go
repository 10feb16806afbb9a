package headsetsvc

import (
	"github.com/neuroplastio/neio-xr/xrapi"
	"github.com/neuroplastio/neio-xr/xrapi/xrmath"
)

func (s *Service) requestFrame() {
	gen, st := s.driverGen, s.driver
	s.frameHandle = st.session.RequestFrame(func(frame xrapi.Frame) {
		s.onFrame(gen, st, frame)
	})
}

// onFrame runs once per display refresh of the driver session. Ticks of a detached driver are
// dropped, even when the host delivers them after cancellation.
func (s *Service) onFrame(gen uint64, st *sessionState, frame xrapi.Frame) {
	s.drain()
	if gen != s.driverGen || st != s.driver {
		return
	}
	s.frame = frame
	s.requestFrame()
	s.assemble(frame)
	if gen != s.driverGen {
		// the render callback ended the session
		return
	}
	st.session.Submit(frame)
}

// assemble packs the resolved views into the camera and renders once. The render callback is
// skipped when the viewer pose is not valid for this tick.
func (s *Service) assemble(frame xrapi.Frame) {
	if s.render == nil {
		return
	}
	space := s.space()
	if space == nil {
		return
	}
	viewer, ok := frame.Viewer(space)
	if !ok || len(viewer.Views) == 0 {
		return
	}

	r := s.resolver()
	cam := &s.camera
	*cam = xrapi.Camera{}
	cam.ViewCount = min(len(viewer.Views), xrapi.MaxViews)
	cam.Stereo = cam.ViewCount > 1
	for i := 0; i < cam.ViewCount; i++ {
		view := viewer.Views[i]
		pose := r.ResolvePose(view.Pose)
		cam.View[i] = xrmath.Invert(pose.Matrix())
		cam.Projection[i] = view.Projection
	}

	binder := s.options.binder
	if binder != nil {
		binder.BindCamera(cam)
	}
	s.render(cam)
	if binder != nil {
		binder.UnbindCamera()
	}
}

func (s *Service) viewer() (xrapi.ViewerPose, bool) {
	space := s.space()
	if s.frame == nil || space == nil {
		return xrapi.ViewerPose{}, false
	}
	return s.frame.Viewer(space)
}

func (s *Service) rawPose(device xrapi.Device) (xrapi.RawPose, bool) {
	switch device {
	case xrapi.DeviceHead:
		viewer, ok := s.viewer()
		return viewer.Pose, ok
	case xrapi.DeviceEyeLeft, xrapi.DeviceEyeRight:
		viewer, ok := s.viewer()
		if !ok {
			return xrapi.RawPose{}, false
		}
		eye := xrapi.EyeLeft
		if device == xrapi.DeviceEyeRight {
			eye = xrapi.EyeRight
		}
		for _, view := range viewer.Views {
			if view.Eye == eye {
				return view.Pose, true
			}
		}
		return xrapi.RawPose{}, false
	}

	b, ok := s.binding(device)
	space := s.space()
	if !ok || s.frame == nil || space == nil {
		return xrapi.RawPose{}, false
	}
	switch device {
	case xrapi.DeviceHandLeftPoint, xrapi.DeviceHandRightPoint:
		return s.frame.SourcePose(b.source, xrapi.TargetAim, space)
	}
	if pose, ok := s.frame.SourcePose(b.source, xrapi.TargetGrip, space); ok {
		return pose, true
	}
	return s.frame.SourcePose(b.source, xrapi.TargetAim, space)
}

// Pose returns a device pose in the output space. ok is false when the device is not tracked
// this frame; missing components of a tracked pose are zero or identity.
func (s *Service) Pose(device xrapi.Device) (xrapi.Pose, bool) {
	raw, ok := s.rawPose(device)
	if !ok {
		return xrapi.Pose{}, false
	}
	return s.resolver().ResolvePose(raw), true
}

func (s *Service) Velocity(device xrapi.Device) (xrapi.Velocity, bool) {
	raw, ok := s.rawPose(device)
	if !ok {
		return xrapi.Velocity{}, false
	}
	return s.resolver().ResolveVelocity(raw), true
}

func (s *Service) ViewCount() int {
	viewer, ok := s.viewer()
	if !ok {
		return 0
	}
	return len(viewer.Views)
}

func (s *Service) ViewPose(i int) (xrapi.Pose, bool) {
	viewer, ok := s.viewer()
	if !ok || i < 0 || i >= len(viewer.Views) {
		return xrapi.Pose{}, false
	}
	return s.resolver().ResolvePose(viewer.Views[i].Pose), true
}

// ViewProjection returns the projection matrix of a view for the current frame.
func (s *Service) ViewProjection(i int) (xrmath.Mat4, bool) {
	viewer, ok := s.viewer()
	if !ok || i < 0 || i >= len(viewer.Views) {
		return xrmath.Mat4{}, false
	}
	return viewer.Views[i].Projection, true
}
