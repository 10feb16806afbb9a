package webxr

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/neuroplastio/neio-xr/xrapi"
	"github.com/neuroplastio/neio-xr/xrapi/xrmath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeHost resolves every promise on flush, the way a browser resolves them on a later task.
type fakeHost struct {
	immersive bool
	spaces    map[string]bool
	bounds    []DOMPoint
	layerErr  error

	queue    []func()
	sessions []*fakeSession
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		immersive: true,
		spaces:    map[string]bool{"local": true, "local-floor": true},
	}
}

func (h *fakeHost) flush() {
	for len(h.queue) > 0 {
		q := h.queue
		h.queue = nil
		for _, fn := range q {
			fn()
		}
	}
}

func (h *fakeHost) IsSessionSupported(mode string, done func(bool, error)) {
	h.queue = append(h.queue, func() {
		done(mode == "inline" || h.immersive, nil)
	})
}

func (h *fakeHost) RequestSession(mode string, opts SessionInit, done func(XRSession, error)) {
	h.queue = append(h.queue, func() {
		if mode == modeImmersive && !h.immersive {
			done(nil, errors.New("NotSupportedError"))
			return
		}
		// viewer is always granted, local only by default for immersive sessions
		granted := map[string]bool{"viewer": true, "local": mode == modeImmersive}
		for _, f := range opts.RequiredFeatures {
			if !h.spaces[f] {
				done(nil, errors.New("NotSupportedError"))
				return
			}
			granted[f] = true
		}
		for _, f := range opts.OptionalFeatures {
			granted[f] = granted[f] || h.spaces[f]
		}
		s := &fakeSession{host: h, mode: mode, init: opts, granted: granted, frames: map[int]func(float64, XRFrame){}, listeners: map[string][]func(){}}
		h.sessions = append(h.sessions, s)
		done(s, nil)
	})
}

type fakeSession struct {
	host      *fakeHost
	mode      string
	init      SessionInit
	granted   map[string]bool
	requested []string
	state     RenderState
	layer     *fakeLayer
	nextFrame int
	frames    map[int]func(float64, XRFrame)
	listeners map[string][]func()
	sources   []XRInputSource
	ended     bool
}

func (s *fakeSession) RequestReferenceSpace(kind string, done func(XRReferenceSpace, error)) {
	s.requested = append(s.requested, kind)
	s.host.queue = append(s.host.queue, func() {
		if !s.granted[kind] || (kind != "viewer" && !s.host.spaces[kind]) {
			done(nil, errors.New("NotSupportedError"))
			return
		}
		space := &fakeSpace{kind: kind}
		if kind == "bounded-floor" {
			space.bounds = s.host.bounds
		}
		done(space, nil)
	})
}

func (s *fakeSession) CreateLayer(done func(XRLayer, error)) {
	s.host.queue = append(s.host.queue, func() {
		if s.host.layerErr != nil {
			done(nil, s.host.layerErr)
			return
		}
		s.layer = &fakeLayer{width: 3664, height: 1920}
		done(s.layer, nil)
	})
}

func (s *fakeSession) UpdateRenderState(state RenderState) {
	if state.BaseLayer != nil {
		s.state.BaseLayer = state.BaseLayer
	}
	if state.DepthNear != 0 {
		s.state.DepthNear = state.DepthNear
	}
	if state.DepthFar != 0 {
		s.state.DepthFar = state.DepthFar
	}
}

func (s *fakeSession) RequestAnimationFrame(fn func(float64, XRFrame)) int {
	s.nextFrame++
	s.frames[s.nextFrame] = fn
	return s.nextFrame
}

func (s *fakeSession) CancelAnimationFrame(id int) {
	delete(s.frames, id)
}

func (s *fakeSession) tick(t float64, frame XRFrame) {
	frames := s.frames
	s.frames = map[int]func(float64, XRFrame){}
	for _, fn := range frames {
		fn(t, frame)
	}
}

func (s *fakeSession) InputSources() []XRInputSource {
	return s.sources
}

func (s *fakeSession) AddEventListener(event string, fn func()) {
	s.listeners[event] = append(s.listeners[event], fn)
}

func (s *fakeSession) dispatch(event string) {
	for _, fn := range s.listeners[event] {
		fn()
	}
}

func (s *fakeSession) End() {
	if s.ended {
		return
	}
	s.ended = true
	s.host.queue = append(s.host.queue, func() {
		s.dispatch("end")
	})
}

type fakeLayer struct {
	width, height uint32
	destroyed     bool
}

func (l *fakeLayer) FramebufferWidth() uint32  { return l.width }
func (l *fakeLayer) FramebufferHeight() uint32 { return l.height }
func (l *fakeLayer) Destroy()                  { l.destroyed = true }

type fakeSpace struct {
	kind   string
	bounds []DOMPoint
}

func (s *fakeSpace) BoundsGeometry() []DOMPoint {
	return s.bounds
}

type fakeFrame struct {
	viewer *XRViewerPose
	poses  map[XRSpace]*XRPose
}

func (f *fakeFrame) GetViewerPose(XRReferenceSpace) *XRViewerPose {
	return f.viewer
}

func (f *fakeFrame) GetPose(space XRSpace, _ XRReferenceSpace) *XRPose {
	return f.poses[space]
}

type fakeSource struct {
	hand     string
	profiles []string
	grip     XRSpace
	ray      XRSpace
	gamepad  *Gamepad
}

func (s *fakeSource) Handedness() string      { return s.hand }
func (s *fakeSource) Profiles() []string      { return s.profiles }
func (s *fakeSource) GripSpace() XRSpace      { return s.grip }
func (s *fakeSource) TargetRaySpace() XRSpace { return s.ray }
func (s *fakeSource) Gamepad() *Gamepad       { return s.gamepad }

type fakeActuator struct {
	value, duration float64
}

func (a *fakeActuator) Pulse(value, duration float64) {
	a.value, a.duration = value, duration
}

type spaceTag string

func session(t *testing.T, host *fakeHost, mode xrapi.SessionMode) *Session {
	t.Helper()
	b := New(zaptest.NewLogger(t), host)
	host.flush()
	var sess xrapi.Session
	b.RequestSession(mode, func(s xrapi.Session, err error) {
		require.NoError(t, err)
		sess = s
	})
	host.flush()
	require.NotNil(t, sess)
	return sess.(*Session)
}

func TestSupport(t *testing.T) {
	assert.False(t, New(zaptest.NewLogger(t), nil).Available())

	host := newFakeHost()
	b := New(zaptest.NewLogger(t), host)
	assert.True(t, b.Available())
	assert.True(t, b.SupportsMode(xrapi.SessionInline))
	assert.False(t, b.SupportsMode(xrapi.SessionImmersive), "unknown until probed")
	host.flush()
	assert.True(t, b.SupportsMode(xrapi.SessionImmersive))

	host = newFakeHost()
	host.immersive = false
	b = New(zaptest.NewLogger(t), host)
	host.flush()
	assert.False(t, b.SupportsMode(xrapi.SessionImmersive))
	var err error
	b.RequestSession(xrapi.SessionImmersive, func(_ xrapi.Session, e error) {
		err = e
	})
	host.flush()
	assert.ErrorContains(t, err, "failed to request immersive-vr session")
}

func TestImmersiveFeatures(t *testing.T) {
	host := newFakeHost()
	session(t, host, xrapi.SessionImmersive)
	require.Len(t, host.sessions, 1)
	assert.Equal(t, "immersive-vr", host.sessions[0].mode)
	assert.Equal(t, []string{"local-floor"}, host.sessions[0].init.RequiredFeatures)
	assert.Equal(t, []string{"bounded-floor"}, host.sessions[0].init.OptionalFeatures)
}

func TestReferenceSpaceFallback(t *testing.T) {
	host := newFakeHost()
	sess := session(t, host, xrapi.SessionImmersive)

	var space xrapi.ReferenceSpace
	sess.RequestReferenceSpace(xrapi.SpaceCandidates, func(s xrapi.ReferenceSpace, err error) {
		require.NoError(t, err)
		space = s
	})
	host.flush()
	require.NotNil(t, space)
	assert.Equal(t, xrapi.SpaceLocalFloor, space.Kind())
	assert.True(t, space.Floor())
	assert.Equal(t, []string{"bounded-floor", "local-floor"}, host.sessions[0].requested)
	_, _, ok := space.Bounds()
	assert.False(t, ok)

	host.spaces = map[string]bool{}
	var err error
	sess.RequestReferenceSpace(xrapi.SpaceCandidates, func(_ xrapi.ReferenceSpace, e error) {
		err = e
	})
	host.flush()
	assert.ErrorIs(t, err, xrapi.ErrNoReferenceSpace)
}

func TestInlineReferenceSpace(t *testing.T) {
	host := newFakeHost()
	sess := session(t, host, xrapi.SessionInline)
	assert.Empty(t, host.sessions[0].init.RequiredFeatures)
	assert.Equal(t, []string{"local"}, host.sessions[0].init.OptionalFeatures)

	var space xrapi.ReferenceSpace
	sess.RequestReferenceSpace(xrapi.SpaceCandidates, func(s xrapi.ReferenceSpace, err error) {
		require.NoError(t, err)
		space = s
	})
	host.flush()
	require.NotNil(t, space)
	assert.Equal(t, xrapi.SpaceLocal, space.Kind())
	assert.Equal(t, []string{"bounded-floor", "local-floor", "local"}, host.sessions[0].requested)
}

func TestInlineViewerFallback(t *testing.T) {
	host := newFakeHost()
	host.spaces = map[string]bool{"local-floor": true}
	sess := session(t, host, xrapi.SessionInline)

	candidates := []xrapi.SpaceKind{xrapi.SpaceBoundedFloor, xrapi.SpaceLocalFloor, xrapi.SpaceLocal}
	var space xrapi.ReferenceSpace
	sess.RequestReferenceSpace(candidates, func(s xrapi.ReferenceSpace, err error) {
		require.NoError(t, err)
		space = s
	})
	host.flush()
	require.NotNil(t, space)
	assert.Equal(t, xrapi.SpaceViewer, space.Kind())
	assert.False(t, space.Floor())
	assert.Equal(t, []string{"bounded-floor", "local-floor", "local", "viewer"}, host.sessions[0].requested)
	assert.Len(t, candidates, 3, "caller candidates are not modified")

	immersive := session(t, host, xrapi.SessionImmersive)
	var err error
	host.spaces = map[string]bool{}
	immersive.RequestReferenceSpace(xrapi.SpaceCandidates, func(_ xrapi.ReferenceSpace, e error) {
		err = e
	})
	host.flush()
	assert.ErrorIs(t, err, xrapi.ErrNoReferenceSpace)
	assert.NotContains(t, host.sessions[1].requested, "viewer")
}

func TestFrameCallbackIsSynchronous(t *testing.T) {
	host := newFakeHost()
	sess := session(t, host, xrapi.SessionImmersive)
	calls := 0
	sess.RequestFrame(func(xrapi.Frame) {
		calls++
	})
	host.sessions[0].tick(16, &fakeFrame{})
	assert.Equal(t, 1, calls, "frame is delivered inside the host animation frame callback")
}

func TestBoundedSpace(t *testing.T) {
	host := newFakeHost()
	host.spaces["bounded-floor"] = true
	host.bounds = []DOMPoint{{X: -1, Z: 0.75, W: 1}, {X: 1, Z: 0.75, W: 1}, {X: 1, Z: -0.75, W: 1}, {X: -1, Z: -0.75, W: 1}}
	sess := session(t, host, xrapi.SessionImmersive)

	var space xrapi.ReferenceSpace
	sess.RequestReferenceSpace(xrapi.SpaceCandidates, func(s xrapi.ReferenceSpace, _ error) {
		space = s
	})
	host.flush()
	require.NotNil(t, space)
	assert.Equal(t, xrapi.SpaceBoundedFloor, space.Kind())
	w, d, ok := space.Bounds()
	require.True(t, ok)
	assert.Equal(t, float32(2), w)
	assert.Equal(t, float32(1.5), d)
	assert.Equal(t, []xrmath.Vec3{{-1, 0, 0.75}, {1, 0, 0.75}, {1, 0, -0.75}, {-1, 0, -0.75}}, space.BoundsGeometry())
}

func TestSurface(t *testing.T) {
	host := newFakeHost()
	sess := session(t, host, xrapi.SessionImmersive)
	w, h := sess.DisplayDimensions()
	assert.Zero(t, w)
	assert.Zero(t, h)

	var surface xrapi.Surface
	sess.CreateSurface(func(s xrapi.Surface, err error) {
		require.NoError(t, err)
		surface = s
	})
	host.flush()
	require.NotNil(t, surface)
	native := host.sessions[0]
	assert.Equal(t, native.layer, native.state.BaseLayer)
	w, h = sess.DisplayDimensions()
	assert.Equal(t, uint32(3664), w)
	assert.Equal(t, uint32(1920), h)

	surface.Release()
	assert.True(t, native.layer.destroyed)
	w, _ = sess.DisplayDimensions()
	assert.Zero(t, w)

	host.layerErr = errors.New("context lost")
	var err error
	sess.CreateSurface(func(_ xrapi.Surface, e error) {
		err = e
	})
	host.flush()
	assert.ErrorContains(t, err, "context lost")
}

func TestFrame(t *testing.T) {
	host := newFakeHost()
	sess := session(t, host, xrapi.SessionImmersive)
	space := &Space{kind: xrapi.SpaceLocalFloor, native: &fakeSpace{kind: "local-floor"}}

	var got []xrapi.Frame
	h := sess.RequestFrame(func(f xrapi.Frame) {
		got = append(got, f)
	})
	sess.CancelFrame(h)
	sess.RequestFrame(func(f xrapi.Frame) {
		got = append(got, f)
	})

	proj := mgl32.Perspective(1, 1, 0.1, 100)
	half := float32(math.Sqrt2 / 2)
	native := &fakeFrame{viewer: &XRViewerPose{
		XRPose: XRPose{Transform: RigidTransform{
			Position:    DOMPoint{Y: 1.7, W: 1},
			Orientation: DOMPoint{Y: half, W: half},
		}},
		Views: []XRView{
			{Eye: "left", Transform: RigidTransform{Position: DOMPoint{X: -0.03, Y: 1.7, W: 1}, Orientation: DOMPoint{W: 1}}, ProjectionMatrix: proj},
			{Eye: "right", Transform: RigidTransform{Position: DOMPoint{X: 0.03, Y: 1.7, W: 1}, Orientation: DOMPoint{W: 1}}, ProjectionMatrix: proj},
		},
	}}
	host.sessions[0].tick(1500, native)
	require.Len(t, got, 1)
	f := got[0]
	assert.Equal(t, 1500*time.Millisecond, f.Time())

	viewer, ok := f.Viewer(space)
	require.True(t, ok)
	assert.Equal(t, xrmath.Vec3{0, 1.7, 0}, viewer.Pose.Position)
	assert.Equal(t, mgl32.Quat{W: half, V: mgl32.Vec3{0, half, 0}}, viewer.Pose.Orientation)
	assert.True(t, viewer.Pose.HasOrientation)
	assert.False(t, viewer.Pose.HasLinearVelocity)
	require.Len(t, viewer.Views, 2)
	assert.Equal(t, xrapi.EyeLeft, viewer.Views[0].Eye)
	assert.Equal(t, xrapi.EyeRight, viewer.Views[1].Eye)
	assert.Equal(t, proj, viewer.Views[0].Projection)

	native.viewer = nil
	_, ok = f.Viewer(space)
	assert.False(t, ok)
}

func TestPoseComponents(t *testing.T) {
	raw := convertPose(XRPose{
		Transform: RigidTransform{
			Position:    DOMPoint{X: float32(math.NaN())},
			Orientation: DOMPoint{W: 1},
		},
		LinearVelocity: &DOMPoint{X: 1},
	})
	assert.False(t, raw.HasPosition)
	assert.Equal(t, xrmath.Vec3{}, raw.Position)
	assert.True(t, raw.HasOrientation)
	assert.True(t, raw.HasLinearVelocity)
	assert.Equal(t, xrmath.Vec3{1, 0, 0}, raw.LinearVelocity)
	assert.False(t, raw.HasAngularVelocity)
}

func TestInputSources(t *testing.T) {
	host := newFakeHost()
	sess := session(t, host, xrapi.SessionImmersive)
	actuator := &fakeActuator{}
	right := &fakeSource{
		hand:     "right",
		profiles: []string{"oculus-touch"},
		grip:     spaceTag("grip"),
		ray:      spaceTag("ray"),
		gamepad: &Gamepad{
			Buttons:         []GamepadButton{{Pressed: true, Touched: true, Value: 1}, {Value: 0.25}},
			Axes:            []float64{0, 0, 0.5, -0.5},
			HapticActuators: []GamepadHapticActuator{actuator},
		},
	}
	hand := &fakeSource{hand: "left", profiles: []string{"generic-hand-select"}, ray: spaceTag("hand-ray")}
	native := host.sessions[0]
	native.sources = []XRInputSource{right, hand}

	changes := 0
	sess.OnInputSourcesChanged(func() {
		changes++
	})
	native.dispatch("inputsourceschange")
	assert.Equal(t, 1, changes)

	sources := sess.InputSources()
	require.Len(t, sources, 2)
	assert.Equal(t, xrapi.HandRight, sources[0].Handedness())
	assert.Equal(t, xrapi.HandLeft, sources[1].Handedness())
	assert.Equal(t, []string{"oculus-touch"}, sources[0].Profiles())
	assert.NotEqual(t, sources[0].ID(), sources[1].ID())

	again := sess.InputSources()
	assert.Equal(t, sources[0].ID(), again[0].ID(), "ids are stable per native source")

	g, ok := sources[0].Gamepad()
	require.True(t, ok)
	assert.Equal(t, []xrapi.GamepadButton{{Pressed: true, Touched: true, Value: 1}, {Value: 0.25}}, g.Buttons)
	assert.Equal(t, []float32{0, 0, 0.5, -0.5}, g.Axes)
	require.Len(t, g.Haptics, 1)
	g.Haptics[0].Pulse(0.5, 250*time.Millisecond)
	assert.Equal(t, 0.5, actuator.value)
	assert.Equal(t, 250.0, actuator.duration)

	_, ok = sources[1].Gamepad()
	assert.False(t, ok)

	space := &Space{kind: xrapi.SpaceLocalFloor, native: &fakeSpace{}}
	frame := &Frame{native: &fakeFrame{poses: map[XRSpace]*XRPose{
		spaceTag("grip"):     {Transform: RigidTransform{Position: DOMPoint{X: 0.2, Y: 1, W: 1}, Orientation: DOMPoint{W: 1}}},
		spaceTag("hand-ray"): {Transform: RigidTransform{Position: DOMPoint{Y: 1.2, W: 1}, Orientation: DOMPoint{W: 1}}},
	}}}
	grip, ok := frame.SourcePose(sources[0], xrapi.TargetGrip, space)
	require.True(t, ok)
	assert.Equal(t, xrmath.Vec3{0.2, 1, 0}, grip.Position)
	_, ok = frame.SourcePose(sources[0], xrapi.TargetAim, space)
	assert.False(t, ok, "no pose for the ray this frame")
	_, ok = frame.SourcePose(sources[1], xrapi.TargetGrip, space)
	assert.False(t, ok, "hand without a grip space")
	aim, ok := frame.SourcePose(sources[1], xrapi.TargetAim, space)
	require.True(t, ok)
	assert.Equal(t, xrmath.Vec3{0, 1.2, 0}, aim.Position)
}

func TestEnd(t *testing.T) {
	host := newFakeHost()
	sess := session(t, host, xrapi.SessionImmersive)
	var reasons []xrapi.EndReason
	sess.OnEnd(func(r xrapi.EndReason) {
		reasons = append(reasons, r)
	})
	host.sessions[0].dispatch("end")
	sess.End()
	host.flush()
	assert.Equal(t, []xrapi.EndReason{xrapi.EndUser, xrapi.EndRequested}, reasons)
}

func TestClipDistance(t *testing.T) {
	host := newFakeHost()
	sess := session(t, host, xrapi.SessionInline)
	sess.SetClipDistance(0.05, 50)
	assert.Equal(t, float32(0.05), host.sessions[0].state.DepthNear)
	assert.Equal(t, float32(50), host.sessions[0].state.DepthFar)
}
