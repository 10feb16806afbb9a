package webvr

import (
	"errors"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/neuroplastio/neio-xr/internal/headsetsvc"
	"github.com/neuroplastio/neio-xr/xrapi"
	"github.com/neuroplastio/neio-xr/xrapi/xrmath"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeNavigator struct {
	display  *fakeDisplay
	gamepads []Gamepad
}

func (n *fakeNavigator) Display() VRDisplay {
	if n.display == nil {
		return nil
	}
	return n.display
}

func (n *fakeNavigator) Gamepads() []Gamepad {
	return n.gamepads
}

type fakeDisplay struct {
	canPresent bool
	stage      *VRStageParameters
	data       VRFrameData
	presentErr error

	near, far   float32
	presenting  bool
	submitted   int
	nextFrame   int
	frames      map[int]func(float64)
	onPresent   []func()
	exitPending []func(error)
}

func newFakeDisplay() *fakeDisplay {
	return &fakeDisplay{
		canPresent: true,
		frames:     map[int]func(float64){},
		data: VRFrameData{
			Pose: VRPose{
				Position:    &[3]float32{0, 0, 0},
				Orientation: &[4]float32{0, 0, 0, 1},
			},
			LeftViewMatrix:  mgl32.Translate3D(0.03, 0, 0),
			RightViewMatrix: mgl32.Translate3D(-0.03, 0, 0),
		},
	}
}

func (d *fakeDisplay) DisplayName() string { return "Fake HMD" }

func (d *fakeDisplay) Capabilities() VRDisplayCapabilities {
	return VRDisplayCapabilities{CanPresent: d.canPresent, HasPosition: true}
}

func (d *fakeDisplay) StageParameters() *VRStageParameters { return d.stage }

func (d *fakeDisplay) EyeParameters(string) VREyeParameters {
	return VREyeParameters{RenderWidth: 1080, RenderHeight: 1200}
}

func (d *fakeDisplay) SetDepth(near, far float32) { d.near, d.far = near, far }

func (d *fakeDisplay) RequestAnimationFrame(fn func(float64)) int {
	d.nextFrame++
	d.frames[d.nextFrame] = fn
	return d.nextFrame
}

func (d *fakeDisplay) CancelAnimationFrame(id int) { delete(d.frames, id) }

func (d *fakeDisplay) tick(t float64) {
	d.data.Timestamp = t
	frames := d.frames
	d.frames = map[int]func(float64){}
	for _, fn := range frames {
		fn(t)
	}
}

func (d *fakeDisplay) GetFrameData(data *VRFrameData) bool {
	*data = d.data
	return true
}

func (d *fakeDisplay) IsPresenting() bool { return d.presenting }

func (d *fakeDisplay) RequestPresent(done func(error)) {
	if d.presentErr != nil {
		done(d.presentErr)
		return
	}
	d.presenting = true
	d.notify()
	done(nil)
}

func (d *fakeDisplay) ExitPresent(done func(error)) {
	d.exitPending = append(d.exitPending, done)
}

// finishExit completes pending exitPresent calls, as the browser does on a later task.
func (d *fakeDisplay) finishExit() {
	pending := d.exitPending
	d.exitPending = nil
	d.presenting = false
	d.notify()
	for _, done := range pending {
		done(nil)
	}
}

func (d *fakeDisplay) notify() {
	for _, fn := range d.onPresent {
		fn()
	}
}

func (d *fakeDisplay) OnPresentChange(fn func()) { d.onPresent = append(d.onPresent, fn) }

func (d *fakeDisplay) SubmitFrame() { d.submitted++ }

type fakeActuator struct {
	value, duration float64
}

func (a *fakeActuator) Pulse(value, duration float64) {
	a.value, a.duration = value, duration
}

func standingStage() *VRStageParameters {
	return &VRStageParameters{
		SittingToStandingTransform: mgl32.Translate3D(0, 1.2, 0),
		SizeX:                      2,
		SizeZ:                      1.5,
	}
}

func immersive(t *testing.T, b *Backend) *Session {
	t.Helper()
	var sess xrapi.Session
	b.RequestSession(xrapi.SessionImmersive, func(s xrapi.Session, err error) {
		require.NoError(t, err)
		sess = s
	})
	require.NotNil(t, sess)
	return sess.(*Session)
}

func TestAvailability(t *testing.T) {
	assert.False(t, New(zaptest.NewLogger(t), nil).Available())
	assert.False(t, New(zaptest.NewLogger(t), &fakeNavigator{}).Available())

	display := newFakeDisplay()
	display.canPresent = false
	b := New(zaptest.NewLogger(t), &fakeNavigator{display: display})
	assert.True(t, b.Available())
	assert.True(t, b.SupportsMode(xrapi.SessionInline))
	assert.False(t, b.SupportsMode(xrapi.SessionImmersive))

	var err error
	b.RequestSession(xrapi.SessionImmersive, func(_ xrapi.Session, e error) {
		err = e
	})
	assert.ErrorIs(t, err, xrapi.ErrUnsupported)
}

func TestPresentFailure(t *testing.T) {
	display := newFakeDisplay()
	display.presentErr = errors.New("not allowed")
	b := New(zaptest.NewLogger(t), &fakeNavigator{display: display})
	var err error
	b.RequestSession(xrapi.SessionImmersive, func(_ xrapi.Session, e error) {
		err = e
	})
	assert.ErrorContains(t, err, "failed to request present: not allowed")
}

func TestSpaceFollowsStage(t *testing.T) {
	display := newFakeDisplay()
	b := New(zaptest.NewLogger(t), &fakeNavigator{display: display})
	sess := immersive(t, b)

	var space xrapi.ReferenceSpace
	sess.RequestReferenceSpace(xrapi.SpaceCandidates, func(s xrapi.ReferenceSpace, err error) {
		require.NoError(t, err)
		space = s
	})
	require.NotNil(t, space)
	assert.Equal(t, xrapi.SpaceLocal, space.Kind())
	assert.False(t, space.Floor())
	_, ok := space.OriginTransform()
	assert.False(t, ok)

	display.stage = standingStage()
	assert.Equal(t, xrapi.SpaceBoundedFloor, space.Kind())
	assert.True(t, space.Floor())
	m, ok := space.OriginTransform()
	require.True(t, ok)
	assert.Equal(t, mgl32.Translate3D(0, 1.2, 0), m)
	w, d, ok := space.Bounds()
	require.True(t, ok)
	assert.Equal(t, float32(2), w)
	assert.Equal(t, float32(1.5), d)
	assert.Len(t, space.BoundsGeometry(), 4)

	display.stage = &VRStageParameters{SittingToStandingTransform: mgl32.Ident4()}
	assert.Equal(t, xrapi.SpaceLocalFloor, space.Kind())
	_, _, ok = space.Bounds()
	assert.False(t, ok)
}

func TestNoFloorSpace(t *testing.T) {
	b := New(zaptest.NewLogger(t), &fakeNavigator{display: newFakeDisplay()})
	var err error
	immersive(t, b).RequestReferenceSpace([]xrapi.SpaceKind{xrapi.SpaceBoundedFloor}, func(_ xrapi.ReferenceSpace, e error) {
		err = e
	})
	assert.ErrorIs(t, err, xrapi.ErrNoReferenceSpace)
}

func TestFrameViews(t *testing.T) {
	display := newFakeDisplay()
	display.data.Pose.Position = &[3]float32{0, 0.5, 0}
	b := New(zaptest.NewLogger(t), &fakeNavigator{display: display})
	sess := immersive(t, b)
	space := &Space{display: display}

	var frames []xrapi.Frame
	sess.RequestFrame(func(f xrapi.Frame) {
		frames = append(frames, f)
	})
	display.tick(2000)
	require.Len(t, frames, 1)
	f := frames[0]
	assert.Equal(t, 2*time.Second, f.Time())

	viewer, ok := f.Viewer(space)
	require.True(t, ok)
	assert.Equal(t, xrmath.Vec3{0, 0.5, 0}, viewer.Pose.Position)
	require.Len(t, viewer.Views, 2)
	assert.InDelta(t, -0.03, viewer.Views[0].Pose.Position[0], 1e-6)
	assert.InDelta(t, 0.03, viewer.Views[1].Pose.Position[0], 1e-6)
	assert.InDelta(t, 1, viewer.Views[0].Pose.Orientation.W, 1e-6)

	sess.Submit(f)
	assert.Equal(t, 1, display.submitted)

	display.data.Pose = VRPose{}
	sess.RequestFrame(func(f xrapi.Frame) {
		frames = append(frames, f)
	})
	display.tick(2016)
	_, ok = frames[1].Viewer(space)
	assert.False(t, ok, "pose without position or orientation is untracked")
}

func TestInlineFrame(t *testing.T) {
	display := newFakeDisplay()
	b := New(zaptest.NewLogger(t), &fakeNavigator{display: display})
	var sess xrapi.Session
	b.RequestSession(xrapi.SessionInline, func(s xrapi.Session, err error) {
		sess = s
	})
	require.NotNil(t, sess)
	var frame xrapi.Frame
	sess.RequestFrame(func(f xrapi.Frame) {
		frame = f
	})
	display.tick(16)
	viewer, ok := frame.Viewer(&Space{display: display})
	require.True(t, ok)
	require.Len(t, viewer.Views, 1)
	assert.Equal(t, xrapi.EyeNone, viewer.Views[0].Eye)

	sess.Submit(frame)
	assert.Zero(t, display.submitted)
	w, h := sess.DisplayDimensions()
	assert.Equal(t, uint32(2160), w)
	assert.Equal(t, uint32(1200), h)
}

func TestGamepads(t *testing.T) {
	display := newFakeDisplay()
	actuator := &fakeActuator{}
	nav := &fakeNavigator{display: display}
	b := New(zaptest.NewLogger(t), nav)
	sess := immersive(t, b)
	changes := 0
	sess.OnInputSourcesChanged(func() {
		changes++
	})

	nav.gamepads = []Gamepad{
		{ID: "Xbox Controller", Index: 0},
		{
			ID:              "Oculus Touch (Right)",
			Index:           1,
			Hand:            "right",
			Buttons:         []GamepadButton{{}, {Pressed: true, Value: 1}},
			Axes:            []float64{0.5, -0.5},
			Pose:            &VRPose{Position: &[3]float32{0.1, 0, 0}},
			HapticActuators: []GamepadHapticActuator{actuator},
		},
	}
	var frame xrapi.Frame
	request := func() {
		sess.RequestFrame(func(f xrapi.Frame) {
			frame = f
		})
	}
	request()
	display.tick(16)
	assert.Equal(t, 1, changes)
	request()
	display.tick(32)
	assert.Equal(t, 1, changes, "unchanged gamepads do not notify")

	sources := sess.InputSources()
	require.Len(t, sources, 1)
	src := sources[0]
	assert.Equal(t, "1:Oculus Touch (Right)", src.ID())
	assert.Equal(t, xrapi.HandRight, src.Handedness())
	assert.Equal(t, []string{"Oculus Touch (Right)"}, src.Profiles())

	g, ok := src.Gamepad()
	require.True(t, ok)
	assert.True(t, g.Buttons[1].Pressed)
	assert.Equal(t, []float32{0.5, -0.5}, g.Axes)
	require.Len(t, g.Haptics, 1)
	g.Haptics[0].Pulse(1, 50*time.Millisecond)
	assert.Equal(t, 50.0, actuator.duration)

	pose, ok := frame.SourcePose(src, xrapi.TargetAim, &Space{display: display})
	require.True(t, ok)
	assert.Equal(t, xrmath.Vec3{0.1, 0, 0}, pose.Position)
	assert.Equal(t, mgl32.QuatIdent(), pose.Orientation)

	nav.gamepads = nav.gamepads[:1]
	request()
	display.tick(48)
	assert.Equal(t, 2, changes)
	_, ok = src.Gamepad()
	assert.False(t, ok)
}

func TestEnd(t *testing.T) {
	display := newFakeDisplay()
	b := New(zaptest.NewLogger(t), &fakeNavigator{display: display})

	sess := immersive(t, b)
	var reasons []xrapi.EndReason
	sess.OnEnd(func(r xrapi.EndReason) {
		reasons = append(reasons, r)
	})
	sess.End()
	assert.Empty(t, reasons, "reported once presentation stops")
	display.finishExit()
	assert.Equal(t, []xrapi.EndReason{xrapi.EndRequested}, reasons)

	sess = immersive(t, b)
	reasons = nil
	sess.OnEnd(func(r xrapi.EndReason) {
		reasons = append(reasons, r)
	})
	fired := false
	sess.RequestFrame(func(xrapi.Frame) {
		fired = true
	})
	// user took the headset off
	display.finishExit()
	assert.Equal(t, []xrapi.EndReason{xrapi.EndUser}, reasons)
	display.tick(16)
	assert.False(t, fired)

	var err error
	sess.CreateSurface(func(_ xrapi.Surface, e error) {
		err = e
	})
	assert.ErrorIs(t, err, xrapi.ErrSessionEnded)
}

// The service runs on top of the adapter: the stage's sitting-to-standing transform moves a
// seated head pose to standing height, and poses follow a stage calibrated mid-session.
func TestServiceSittingToStanding(t *testing.T) {
	display := newFakeDisplay()
	nav := &fakeNavigator{display: display}
	log := zaptest.NewLogger(t)
	svc := headsetsvc.New(log, time.Now,
		headsetsvc.WithBackend("webvr", New(log.Named("webvr"), nav)),
		headsetsvc.WithFloorOffset(1.6),
	)
	frameTime := 0.0
	step := func() {
		frameTime += 11
		display.tick(frameTime)
		svc.Update()
	}

	svc.Init()
	step()
	step()
	require.Equal(t, headsetsvc.StateInline, svc.State())
	assert.Equal(t, xrapi.OriginHead, svc.OriginType())
	pose, ok := svc.Pose(xrapi.DeviceHead)
	require.True(t, ok)
	assert.Equal(t, xrmath.Vec3{0, 1.6, 0}, pose.Position)

	display.stage = standingStage()
	assert.Equal(t, xrapi.OriginFloor, svc.OriginType())
	pose, _ = svc.Pose(xrapi.DeviceHead)
	assert.InDelta(t, 1.2, pose.Position[1], 1e-6)

	require.True(t, svc.EnterVR())
	for i := 0; i < 3; i++ {
		step()
	}
	require.Equal(t, headsetsvc.StateImmersiveActive, svc.State())
	w, h, ok := svc.BoundsDimensions()
	require.True(t, ok)
	assert.Equal(t, float32(2), w)
	assert.Equal(t, float32(1.5), h)

	display.finishExit()
	step()
	assert.Equal(t, headsetsvc.StateInline, svc.State())
}
