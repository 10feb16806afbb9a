// Package webxr adapts the WebXR Device API to the headset backend contract.
package webxr

import (
	"fmt"
	"slices"
	"sync"

	"github.com/neuroplastio/neio-xr/xrapi"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const (
	modeInline    = "inline"
	modeImmersive = "immersive-vr"
)

// Inline sessions are only granted "viewer" by default, so "local" is asked for explicitly.
var sessionInit = map[xrapi.SessionMode]SessionInit{
	xrapi.SessionInline: {
		OptionalFeatures: []string{"local"},
	},
	xrapi.SessionImmersive: {
		RequiredFeatures: []string{"local-floor"},
		OptionalFeatures: []string{"bounded-floor"},
	},
}

var spaceNames = map[xrapi.SpaceKind]string{
	xrapi.SpaceLocal:        "local",
	xrapi.SpaceLocalFloor:   "local-floor",
	xrapi.SpaceBoundedFloor: "bounded-floor",
	xrapi.SpaceViewer:       "viewer",
}

func modeName(mode xrapi.SessionMode) string {
	if mode == xrapi.SessionImmersive {
		return modeImmersive
	}
	return modeInline
}

type Backend struct {
	log       *zap.Logger
	host      Host
	immersive *atomic.Bool
}

// New creates the backend and starts probing immersive support. Until the probe completes
// the backend reports immersive mode as unsupported. A nil host means no WebXR at all.
func New(log *zap.Logger, host Host) *Backend {
	b := &Backend{
		log:       log,
		host:      host,
		immersive: atomic.NewBool(false),
	}
	if host != nil {
		host.IsSessionSupported(modeImmersive, func(supported bool, err error) {
			if err != nil {
				log.Warn("Failed to probe immersive support", zap.Error(err))
				return
			}
			log.Debug("Immersive support probed", zap.Bool("supported", supported))
			b.immersive.Store(supported)
		})
	}
	return b
}

func (b *Backend) Name() string {
	return "webxr"
}

func (b *Backend) Available() bool {
	return b.host != nil
}

// SupportsMode is always true for inline sessions, which every WebXR implementation offers.
func (b *Backend) SupportsMode(mode xrapi.SessionMode) bool {
	if b.host == nil {
		return false
	}
	if mode == xrapi.SessionImmersive {
		return b.immersive.Load()
	}
	return true
}

func (b *Backend) RequestSession(mode xrapi.SessionMode, done func(xrapi.Session, error)) {
	name := modeName(mode)
	b.host.RequestSession(name, sessionInit[mode], func(native XRSession, err error) {
		if err != nil {
			done(nil, fmt.Errorf("failed to request %s session: %w", name, err))
			return
		}
		done(newSession(b.log.With(zap.String("mode", name)), mode, native), nil)
	})
}

type Session struct {
	log    *zap.Logger
	mode   xrapi.SessionMode
	native XRSession

	mu      sync.Mutex
	layer   XRLayer
	sources map[XRInputSource]*inputSource
	nextID  int
	ending  bool
}

func newSession(log *zap.Logger, mode xrapi.SessionMode, native XRSession) *Session {
	return &Session{
		log:     log,
		mode:    mode,
		native:  native,
		sources: make(map[XRInputSource]*inputSource),
	}
}

func (s *Session) Mode() xrapi.SessionMode {
	return s.mode
}

// RequestReferenceSpace tries each candidate in turn and reports the first one the host grants.
// Inline sessions fall back to the viewer space, which every host grants them.
func (s *Session) RequestReferenceSpace(candidates []xrapi.SpaceKind, done func(xrapi.ReferenceSpace, error)) {
	if s.mode == xrapi.SessionInline && !slices.Contains(candidates, xrapi.SpaceViewer) {
		candidates = append(slices.Clip(candidates), xrapi.SpaceViewer)
	}
	s.requestSpace(candidates, done)
}

func (s *Session) requestSpace(candidates []xrapi.SpaceKind, done func(xrapi.ReferenceSpace, error)) {
	if len(candidates) == 0 {
		done(nil, xrapi.ErrNoReferenceSpace)
		return
	}
	kind := candidates[0]
	s.native.RequestReferenceSpace(spaceNames[kind], func(native XRReferenceSpace, err error) {
		if err != nil {
			s.log.Debug("Reference space rejected", zap.Stringer("kind", kind), zap.Error(err))
			s.requestSpace(candidates[1:], done)
			return
		}
		done(&Space{kind: kind, native: native}, nil)
	})
}

func (s *Session) CreateSurface(done func(xrapi.Surface, error)) {
	s.native.CreateLayer(func(layer XRLayer, err error) {
		if err != nil {
			done(nil, fmt.Errorf("failed to create layer: %w", err))
			return
		}
		s.mu.Lock()
		s.layer = layer
		s.mu.Unlock()
		s.native.UpdateRenderState(RenderState{BaseLayer: layer})
		done(&Surface{session: s, layer: layer}, nil)
	})
}

func (s *Session) RequestFrame(fn xrapi.FrameFunc) xrapi.FrameHandle {
	id := s.native.RequestAnimationFrame(func(t float64, native XRFrame) {
		fn(&Frame{t: t, native: native})
	})
	return xrapi.FrameHandle(id)
}

func (s *Session) CancelFrame(h xrapi.FrameHandle) {
	s.native.CancelAnimationFrame(int(h))
}

// InputSources wraps the native sources. A source keeps its id for as long as the host keeps
// the same object.
func (s *Session) InputSources() []xrapi.InputSource {
	native := s.native.InputSources()
	s.mu.Lock()
	defer s.mu.Unlock()
	live := make(map[XRInputSource]*inputSource, len(native))
	out := make([]xrapi.InputSource, 0, len(native))
	for _, n := range native {
		src, ok := s.sources[n]
		if !ok {
			s.nextID++
			src = &inputSource{id: fmt.Sprintf("%s-%d", n.Handedness(), s.nextID), native: n}
		}
		live[n] = src
		out = append(out, src)
	}
	s.sources = live
	return out
}

func (s *Session) OnInputSourcesChanged(fn func()) {
	s.native.AddEventListener("inputsourceschange", fn)
}

// OnEnd reports EndRequested after End was called and EndUser otherwise, since the end event
// carries no reason.
func (s *Session) OnEnd(fn func(xrapi.EndReason)) {
	s.native.AddEventListener("end", func() {
		s.mu.Lock()
		reason := xrapi.EndUser
		if s.ending {
			reason = xrapi.EndRequested
		}
		s.mu.Unlock()
		fn(reason)
	})
}

// DisplayDimensions is the framebuffer size of the layer, zero before one exists.
func (s *Session) DisplayDimensions() (width, height uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.layer == nil {
		return 0, 0
	}
	return s.layer.FramebufferWidth(), s.layer.FramebufferHeight()
}

func (s *Session) SetClipDistance(near, far float32) {
	s.native.UpdateRenderState(RenderState{DepthNear: near, DepthFar: far})
}

// Submit is a no-op: the host presents the base layer when the animation frame returns.
func (s *Session) Submit(xrapi.Frame) {}

func (s *Session) End() {
	s.mu.Lock()
	s.ending = true
	s.mu.Unlock()
	s.native.End()
}

type Surface struct {
	session *Session
	layer   XRLayer
}

func (s *Surface) Release() {
	s.session.mu.Lock()
	if s.session.layer == s.layer {
		s.session.layer = nil
	}
	s.session.mu.Unlock()
	s.layer.Destroy()
}
