// Package webvr adapts a WebVR 1.1 display to the headset backend contract.
//
// WebVR has a single display and no session objects. An inline session is the display while it
// is not presenting; an immersive session spans one requestPresent/exitPresent cycle. Poses are
// reported in the sitting space and converted with the stage's sitting-to-standing transform.
package webvr

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/neuroplastio/neio-xr/xrapi"
	"go.uber.org/zap"
)

type Backend struct {
	log     *zap.Logger
	nav     Navigator
	display VRDisplay

	mu         sync.Mutex
	sessions   []*Session
	presenting *Session
	sources    string
}

// New binds the first display of nav. A nil navigator or one without displays leaves the
// backend unavailable.
func New(log *zap.Logger, nav Navigator) *Backend {
	b := &Backend{
		log: log,
		nav: nav,
	}
	if nav != nil {
		b.display = nav.Display()
	}
	if b.display != nil {
		log.Debug("Display found", zap.String("display", b.display.DisplayName()))
		b.display.OnPresentChange(b.onPresentChange)
	}
	return b
}

func (b *Backend) Name() string {
	return "webvr"
}

func (b *Backend) Available() bool {
	return b.display != nil
}

func (b *Backend) SupportsMode(mode xrapi.SessionMode) bool {
	if b.display == nil {
		return false
	}
	if mode == xrapi.SessionImmersive {
		return b.display.Capabilities().CanPresent
	}
	return true
}

func (b *Backend) RequestSession(mode xrapi.SessionMode, done func(xrapi.Session, error)) {
	if !b.SupportsMode(mode) {
		done(nil, fmt.Errorf("%s session: %w", mode, xrapi.ErrUnsupported))
		return
	}
	if mode == xrapi.SessionInline {
		done(b.newSession(mode), nil)
		return
	}
	b.display.RequestPresent(func(err error) {
		if err != nil {
			done(nil, fmt.Errorf("failed to request present: %w", err))
			return
		}
		s := b.newSession(mode)
		b.mu.Lock()
		b.presenting = s
		b.mu.Unlock()
		done(s, nil)
	})
}

func (b *Backend) newSession(mode xrapi.SessionMode) *Session {
	s := &Session{b: b, mode: mode}
	b.mu.Lock()
	b.sessions = append(b.sessions, s)
	b.mu.Unlock()
	return s
}

func (b *Backend) onPresentChange() {
	if b.display.IsPresenting() {
		return
	}
	b.mu.Lock()
	s := b.presenting
	b.presenting = nil
	b.mu.Unlock()
	if s == nil {
		return
	}
	reason := xrapi.EndUser
	if s.isEnding() {
		reason = xrapi.EndRequested
	}
	s.finish(reason)
}

func (b *Backend) remove(s *Session) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, other := range b.sessions {
		if other == s {
			b.sessions = append(b.sessions[:i:i], b.sessions[i+1:]...)
			return
		}
	}
}

// handed returns the gamepads bound to a hand. Gamepads without a hand are not XR controllers.
func (b *Backend) handed() []Gamepad {
	var out []Gamepad
	for _, g := range b.nav.Gamepads() {
		if g.Hand == "left" || g.Hand == "right" {
			out = append(out, g)
		}
	}
	return out
}

// pollGamepads notifies live sessions when the set of handed gamepads changed since the last
// poll. WebVR has no input source events, so this runs on every animation frame.
func (b *Backend) pollGamepads() {
	gamepads := b.handed()
	ids := make([]string, len(gamepads))
	for i, g := range gamepads {
		ids[i] = gamepadID(g) + "@" + g.Hand
	}
	sort.Strings(ids)
	fingerprint := strings.Join(ids, ",")

	b.mu.Lock()
	if fingerprint == b.sources {
		b.mu.Unlock()
		return
	}
	b.sources = fingerprint
	var fns []func()
	for _, s := range b.sessions {
		fns = append(fns, s.onInputs...)
	}
	b.mu.Unlock()

	b.log.Debug("Gamepads changed", zap.Strings("gamepads", ids))
	for _, fn := range fns {
		fn()
	}
}

func gamepadID(g Gamepad) string {
	return fmt.Sprintf("%d:%s", g.Index, g.ID)
}

type Session struct {
	b    *Backend
	mode xrapi.SessionMode

	ended    bool
	ending   bool
	onInputs []func()
	onEnd    []func(xrapi.EndReason)
}

func (s *Session) Mode() xrapi.SessionMode {
	return s.mode
}

// RequestReferenceSpace grants the first candidate the display can serve. The returned space
// follows stage calibration, so its kind may change later.
func (s *Session) RequestReferenceSpace(candidates []xrapi.SpaceKind, done func(xrapi.ReferenceSpace, error)) {
	hasStage := s.b.display.StageParameters() != nil
	for _, kind := range candidates {
		if kind == xrapi.SpaceLocal || hasStage {
			done(&Space{display: s.b.display}, nil)
			return
		}
	}
	done(nil, xrapi.ErrNoReferenceSpace)
}

// CreateSurface succeeds immediately: a presenting display renders from the page canvas.
func (s *Session) CreateSurface(done func(xrapi.Surface, error)) {
	if s.isEnded() {
		done(nil, xrapi.ErrSessionEnded)
		return
	}
	done(&Surface{}, nil)
}

func (s *Session) RequestFrame(fn xrapi.FrameFunc) xrapi.FrameHandle {
	display := s.b.display
	id := display.RequestAnimationFrame(func(float64) {
		if s.isEnded() {
			return
		}
		s.b.pollGamepads()
		f := &Frame{mode: s.mode, poses: make(map[string]VRPose)}
		f.ok = display.GetFrameData(&f.data)
		for _, g := range s.b.handed() {
			if g.Pose != nil {
				f.poses[gamepadID(g)] = *g.Pose
			}
		}
		fn(f)
	})
	return xrapi.FrameHandle(id)
}

func (s *Session) CancelFrame(h xrapi.FrameHandle) {
	s.b.display.CancelAnimationFrame(int(h))
}

func (s *Session) InputSources() []xrapi.InputSource {
	gamepads := s.b.handed()
	out := make([]xrapi.InputSource, len(gamepads))
	for i, g := range gamepads {
		out[i] = &inputSource{b: s.b, id: gamepadID(g), gamepad: g}
	}
	return out
}

func (s *Session) OnInputSourcesChanged(fn func()) {
	s.b.mu.Lock()
	s.onInputs = append(s.onInputs, fn)
	s.b.mu.Unlock()
}

func (s *Session) OnEnd(fn func(xrapi.EndReason)) {
	s.b.mu.Lock()
	s.onEnd = append(s.onEnd, fn)
	s.b.mu.Unlock()
}

// DisplayDimensions is the side-by-side size of both eyes.
func (s *Session) DisplayDimensions() (width, height uint32) {
	eye := s.b.display.EyeParameters("left")
	return eye.RenderWidth * 2, eye.RenderHeight
}

func (s *Session) SetClipDistance(near, far float32) {
	s.b.display.SetDepth(near, far)
}

func (s *Session) Submit(xrapi.Frame) {
	if s.mode == xrapi.SessionImmersive && s.b.display.IsPresenting() {
		s.b.display.SubmitFrame()
	}
}

// End exits presentation for an immersive session; the end is reported once the display stops
// presenting.
func (s *Session) End() {
	s.b.mu.Lock()
	if s.ended || s.ending {
		s.b.mu.Unlock()
		return
	}
	s.ending = true
	s.b.mu.Unlock()

	if s.mode == xrapi.SessionImmersive && s.b.display.IsPresenting() {
		s.b.display.ExitPresent(func(err error) {
			if err != nil {
				s.b.log.Warn("Failed to exit present", zap.Error(err))
			}
		})
		return
	}
	s.b.mu.Lock()
	if s.b.presenting == s {
		s.b.presenting = nil
	}
	s.b.mu.Unlock()
	s.finish(xrapi.EndRequested)
}

func (s *Session) isEnded() bool {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	return s.ended
}

func (s *Session) isEnding() bool {
	s.b.mu.Lock()
	defer s.b.mu.Unlock()
	return s.ending
}

func (s *Session) finish(reason xrapi.EndReason) {
	s.b.mu.Lock()
	if s.ended {
		s.b.mu.Unlock()
		return
	}
	s.ended = true
	fns := s.onEnd
	s.b.mu.Unlock()
	s.b.remove(s)
	for _, fn := range fns {
		fn(reason)
	}
}

type Surface struct {
	released bool
}

func (s *Surface) Release() {
	s.released = true
}
