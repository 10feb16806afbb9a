package sim

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/neuroplastio/neio-xr/xrapi"
	"github.com/neuroplastio/neio-xr/xrapi/xrmath"
)

type Session struct {
	b     *Backend
	mode  xrapi.SessionMode
	ended bool

	nextHandle xrapi.FrameHandle
	frames     map[xrapi.FrameHandle]xrapi.FrameFunc
	onInputs   []func()
	onEnd      []func(xrapi.EndReason)

	near, far float32
	submitted int
	surfaces  []*Surface
}

func (s *Session) Mode() xrapi.SessionMode {
	return s.mode
}

func (s *Session) RequestReferenceSpace(candidates []xrapi.SpaceKind, done func(xrapi.ReferenceSpace, error)) {
	s.b.later(func() {
		for _, kind := range candidates {
			if s.b.supports(kind) {
				done(&Space{b: s.b, kind: kind}, nil)
				return
			}
		}
		done(nil, xrapi.ErrNoReferenceSpace)
	})
}

func (s *Session) CreateSurface(done func(xrapi.Surface, error)) {
	s.b.later(func() {
		if err := s.b.failSurface; err != nil {
			s.b.failSurface = nil
			done(nil, err)
			return
		}
		surface := &Surface{}
		s.surfaces = append(s.surfaces, surface)
		done(surface, nil)
	})
}

func (s *Session) RequestFrame(fn xrapi.FrameFunc) xrapi.FrameHandle {
	s.nextHandle++
	s.frames[s.nextHandle] = fn
	return s.nextHandle
}

func (s *Session) CancelFrame(h xrapi.FrameHandle) {
	delete(s.frames, h)
}

// PendingFrames is the number of frame callbacks waiting for the next Step.
func (s *Session) PendingFrames() int {
	return len(s.frames)
}

func (s *Session) InputSources() []xrapi.InputSource {
	sources := make([]xrapi.InputSource, 0, len(s.b.controllers))
	for _, c := range s.b.controllers {
		sources = append(sources, c)
	}
	return sources
}

func (s *Session) OnInputSourcesChanged(fn func()) {
	s.onInputs = append(s.onInputs, fn)
}

func (s *Session) OnEnd(fn func(xrapi.EndReason)) {
	s.onEnd = append(s.onEnd, fn)
}

func (s *Session) DisplayDimensions() (width, height uint32) {
	if s.mode == xrapi.SessionImmersive {
		return s.b.cfg.Width * 2, s.b.cfg.Height
	}
	return s.b.cfg.Width, s.b.cfg.Height
}

func (s *Session) SetClipDistance(near, far float32) {
	s.near, s.far = near, far
}

func (s *Session) ClipDistance() (near, far float32) {
	return s.near, s.far
}

func (s *Session) Submit(xrapi.Frame) {
	s.submitted++
}

// Submitted counts frames handed back to the host.
func (s *Session) Submitted() int {
	return s.submitted
}

// Surfaces returns every surface allocated for this session.
func (s *Session) Surfaces() []*Surface {
	return s.surfaces
}

func (s *Session) End() {
	s.terminate(xrapi.EndRequested)
}

// Terminate ends the session from the host side, as a user exit gesture or device loss would.
func (s *Session) Terminate(reason xrapi.EndReason) {
	s.terminate(reason)
}

func (s *Session) terminate(reason xrapi.EndReason) {
	if s.ended {
		return
	}
	s.ended = true
	s.frames = make(map[xrapi.FrameHandle]xrapi.FrameFunc)
	for _, fn := range s.onEnd {
		fn := fn
		s.b.later(func() {
			fn(reason)
		})
	}
}

func (s *Session) tick() {
	if len(s.frames) == 0 {
		return
	}
	frames := s.frames
	s.frames = make(map[xrapi.FrameHandle]xrapi.FrameFunc)
	f := s.snapshot()
	for _, fn := range frames {
		if s.ended {
			return
		}
		fn(f)
	}
}

func (s *Session) snapshot() *Frame {
	f := &Frame{
		t:       s.b.now,
		tracked: s.b.tracked,
		head:    s.b.head,
		poses:   make(map[string]sourcePoses, len(s.b.controllers)),
	}
	near, far := s.near, s.far
	if near <= 0 || far <= near {
		near, far = 0.1, 100
	}
	if s.mode == xrapi.SessionImmersive {
		aspect := float32(s.b.cfg.Width) / float32(s.b.cfg.Height)
		proj := s.b.projection(aspect, near, far)
		half := s.b.cfg.IPD / 2
		f.views = []xrapi.RawView{
			{Eye: xrapi.EyeLeft, Pose: offsetPose(s.b.head, -half), Projection: proj},
			{Eye: xrapi.EyeRight, Pose: offsetPose(s.b.head, half), Projection: proj},
		}
	} else {
		w, h := s.DisplayDimensions()
		f.views = []xrapi.RawView{
			{Eye: xrapi.EyeNone, Pose: s.b.head, Projection: s.b.projection(float32(w)/float32(h), near, far)},
		}
	}
	for _, c := range s.b.controllers {
		f.poses[c.id] = sourcePoses{tracked: c.tracked, grip: c.grip, aim: c.aim, hasAim: c.hasAim}
	}
	return f
}

// offsetPose moves a pose sideways along its own x axis.
func offsetPose(p xrapi.RawPose, dx float32) xrapi.RawPose {
	if !p.HasPosition {
		return p
	}
	q := p.Orientation
	if !p.HasOrientation {
		q = mgl32.QuatIdent()
	}
	p.Position = p.Position.Add(q.Normalize().Rotate(xrmath.Vec3{dx, 0, 0}))
	return p
}

type sourcePoses struct {
	tracked bool
	grip    xrapi.RawPose
	aim     xrapi.RawPose
	hasAim  bool
}

// Frame is an immutable snapshot taken when the tick fires.
type Frame struct {
	t       time.Duration
	tracked bool
	head    xrapi.RawPose
	views   []xrapi.RawView
	poses   map[string]sourcePoses
}

func (f *Frame) Time() time.Duration {
	return f.t
}

func (f *Frame) Viewer(space xrapi.ReferenceSpace) (xrapi.ViewerPose, bool) {
	if !f.tracked || space == nil {
		return xrapi.ViewerPose{}, false
	}
	return xrapi.ViewerPose{Pose: f.head, Views: f.views}, true
}

func (f *Frame) SourcePose(src xrapi.InputSource, target xrapi.PoseTarget, space xrapi.ReferenceSpace) (xrapi.RawPose, bool) {
	if src == nil || space == nil {
		return xrapi.RawPose{}, false
	}
	p, ok := f.poses[src.ID()]
	if !ok || !p.tracked {
		return xrapi.RawPose{}, false
	}
	if target == xrapi.TargetAim && p.hasAim {
		return p.aim, true
	}
	return p.grip, true
}

type Space struct {
	b    *Backend
	kind xrapi.SpaceKind
}

// Kind upgrades to bounded-floor once a stage exists, the way a display gains stage
// parameters after calibration. Poses are reported as scripted in every kind.
func (s *Space) Kind() xrapi.SpaceKind {
	if s.b.stage != nil {
		return xrapi.SpaceBoundedFloor
	}
	return s.kind
}

func (s *Space) Floor() bool {
	return s.Kind().Floor()
}

func (s *Space) OriginTransform() (xrmath.Mat4, bool) {
	return xrmath.Mat4{}, false
}

func (s *Space) Bounds() (width, depth float32, ok bool) {
	if s.b.stage == nil {
		return 0, 0, false
	}
	return s.b.stage.Width, s.b.stage.Depth, true
}

// BoundsGeometry is the stage rectangle on the floor, counter-clockwise seen from above.
func (s *Space) BoundsGeometry() []xrmath.Vec3 {
	w, d, ok := s.Bounds()
	if !ok {
		return nil
	}
	x, z := w/2, d/2
	return []xrmath.Vec3{{-x, 0, z}, {x, 0, z}, {x, 0, -z}, {-x, 0, -z}}
}

type Surface struct {
	released bool
}

func (s *Surface) Release() {
	s.released = true
}

func (s *Surface) Released() bool {
	return s.released
}
