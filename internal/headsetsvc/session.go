package headsetsvc

import (
	"github.com/google/uuid"
	"github.com/neuroplastio/neio-xr/xrapi"
	"go.uber.org/zap"
)

type sessionState struct {
	session xrapi.Session
	space   xrapi.ReferenceSpace
	surface xrapi.Surface
	ended   bool
}

// Init selects the first available backend and eagerly requests an inline session, so a
// preview is available before the user enters VR. A host without XR capability is not an
// error: the service stays unavailable and every query reports absence.
func (s *Service) Init() {
	if s.state != StateUninitialized || s.inline != nil || s.inlinePending {
		return
	}
	if s.backend.backend == nil {
		for _, nb := range s.options.backends {
			if nb.backend.Available() {
				s.backend = nb
				break
			}
			s.log.Debug("Backend unavailable", zap.String("backend", nb.name))
		}
		if s.backend.backend == nil {
			s.log.Info("No XR capability available")
			return
		}
		s.log.Info("Using backend", zap.String("backend", s.backend.name))
	}
	if !s.backend.backend.SupportsMode(xrapi.SessionInline) {
		s.log.Info("Backend has no inline mode", zap.String("backend", s.backend.name))
		return
	}
	s.inlinePending = true
	s.backend.backend.RequestSession(xrapi.SessionInline, func(sess xrapi.Session, err error) {
		s.enqueue(func() {
			s.onInlineSession(sess, err)
		})
	})
}

func (s *Service) onInlineSession(sess xrapi.Session, err error) {
	s.inlinePending = false
	if err != nil {
		s.log.Warn("Failed to acquire inline session", zap.Error(err))
		return
	}
	st := s.watchSession(sess)
	s.inline = st
	s.requestSpace(st)
	if s.state == StateUninitialized {
		s.setState(StateInline)
		s.attach(st)
		s.rebuildInputs()
	}
}

// CanEnterVR reports whether EnterVR would start a request. Immersive sessions start from the
// inline state, or straight from uninitialized on a backend without an inline session.
func (s *Service) CanEnterVR() bool {
	switch s.state {
	case StateInline:
	case StateUninitialized:
		if s.backend.backend == nil || s.inline != nil || s.inlinePending {
			return false
		}
	default:
		return false
	}
	return s.backend.backend.SupportsMode(xrapi.SessionImmersive)
}

// EnterVR requests an immersive session. It reports whether a request was started.
func (s *Service) EnterVR() bool {
	if !s.CanEnterVR() {
		s.log.Debug("Ignoring enter VR request", zap.Stringer("state", s.state), zap.String("backend", s.backend.name))
		return false
	}
	s.requestGen++
	gen := s.requestGen
	s.sessionID = uuid.NewString()
	s.setState(StateImmersivePending)
	s.backend.backend.RequestSession(xrapi.SessionImmersive, func(sess xrapi.Session, err error) {
		s.enqueue(func() {
			s.onImmersiveSession(gen, sess, err)
		})
	})
	return true
}

func (s *Service) onImmersiveSession(gen uint64, sess xrapi.Session, err error) {
	if gen != s.requestGen || s.state != StateImmersivePending {
		// abandoned by ExitVR while pending
		if sess != nil {
			sess.End()
		}
		return
	}
	if err != nil {
		s.log.Warn("Failed to acquire immersive session", zap.Error(err))
		s.sessionID = ""
		s.revert()
		return
	}
	st := s.watchSession(sess)
	s.immersive = st
	s.requestSpace(st)
	sess.CreateSurface(func(surface xrapi.Surface, err error) {
		s.enqueue(func() {
			s.onSurface(st, surface, err)
		})
	})
}

// ExitVR ends the immersive session, or abandons a pending request.
func (s *Service) ExitVR() {
	switch s.state {
	case StateImmersivePending, StateImmersiveActive:
		s.endImmersive(xrapi.EndRequested, true)
	}
}

func (s *Service) watchSession(sess xrapi.Session) *sessionState {
	st := &sessionState{session: sess}
	sess.SetClipDistance(s.clipNear, s.clipFar)
	sess.OnEnd(func(reason xrapi.EndReason) {
		s.enqueue(func() {
			s.onSessionEnd(st, reason)
		})
	})
	sess.OnInputSourcesChanged(func() {
		s.enqueue(func() {
			if s.driver == st {
				s.rebuildInputs()
			}
		})
	})
	return st
}

func (s *Service) requestSpace(st *sessionState) {
	st.session.RequestReferenceSpace(xrapi.SpaceCandidates, func(space xrapi.ReferenceSpace, err error) {
		s.enqueue(func() {
			s.onSpace(st, space, err)
		})
	})
}

func (s *Service) onSpace(st *sessionState, space xrapi.ReferenceSpace, err error) {
	if st.ended {
		return
	}
	if err != nil {
		if st == s.immersive {
			s.log.Error("Failed to get reference space", zap.Error(err))
			s.endImmersive(xrapi.EndError, true)
			return
		}
		s.log.Warn("Inline session has no reference space", zap.Error(err))
		return
	}
	st.space = space
	s.log.Info("Reference space ready",
		zap.Stringer("mode", st.session.Mode()),
		zap.Stringer("kind", space.Kind()),
		zap.Bool("floor", space.Floor()),
	)
	s.tryActivate(st)
}

func (s *Service) onSurface(st *sessionState, surface xrapi.Surface, err error) {
	if st.ended {
		if surface != nil {
			surface.Release()
		}
		return
	}
	if err != nil {
		s.log.Error("Failed to allocate render surface", zap.Error(err))
		s.endImmersive(xrapi.EndError, true)
		return
	}
	st.surface = surface
	s.tryActivate(st)
}

func (s *Service) tryActivate(st *sessionState) {
	if st != s.immersive || s.state != StateImmersivePending || st.space == nil || st.surface == nil {
		return
	}
	s.setState(StateImmersiveActive)
	s.attach(st)
	s.rebuildInputs()
}

// endImmersive tears the immersive session down and hands the driver back to the inline session.
// The pending frame request is canceled before the state leaves the active session.
func (s *Service) endImmersive(reason xrapi.EndReason, endHost bool) {
	st := s.immersive
	if st != nil {
		st.ended = true
		if s.driver == st {
			s.detach()
		}
	}
	s.setState(StateEnded)
	if st != nil {
		if st.surface != nil {
			st.surface.Release()
			st.surface = nil
		}
		if endHost {
			st.session.End()
		}
	}
	s.clearInputs()
	s.immersive = nil
	s.log.Info("Immersive session ended", zap.Stringer("reason", reason), zap.String("session", s.sessionID))
	s.sessionID = ""
	s.revert()
}

func (s *Service) onSessionEnd(st *sessionState, reason xrapi.EndReason) {
	if st.ended {
		return
	}
	switch st {
	case s.immersive:
		s.endImmersive(reason, false)
	case s.inline:
		st.ended = true
		if s.driver == st {
			s.detach()
			s.clearInputs()
		}
		s.inline = nil
		s.log.Info("Inline session ended", zap.Stringer("reason", reason))
		if s.state == StateInline {
			s.setState(StateUninitialized)
		}
	}
}

// revert returns to the inline session after an immersive one is gone.
func (s *Service) revert() {
	if s.inline == nil {
		s.setState(StateUninitialized)
		return
	}
	s.setState(StateInline)
	s.attach(s.inline)
	s.rebuildInputs()
}

func (s *Service) setState(state State) {
	if s.state == state {
		return
	}
	s.log.Debug("State changed", zap.Stringer("from", s.state), zap.Stringer("to", state))
	s.state = state
	s.emit(xrapi.Event{
		Type:    xrapi.EventSessionChanged,
		State:   state.String(),
		Session: s.sessionID,
	})
}

// attach makes st the frame-timing driver, canceling the previous driver's pending tick first.
func (s *Service) attach(st *sessionState) {
	s.detach()
	s.driver = st
	s.driverGen++
	s.requestFrame()
}

func (s *Service) detach() {
	if s.driver == nil {
		return
	}
	s.driver.session.CancelFrame(s.frameHandle)
	s.driverGen++
	s.driver = nil
	s.frame = nil
}
