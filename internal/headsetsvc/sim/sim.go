// Package sim is an in-process headset backend. It stands in for a real host on machines
// without XR hardware and drives the headset service in tests.
//
// The backend is not safe for concurrent use. Completions and frame callbacks are only
// delivered from Step, which callers invoke from the same loop that calls the service.
package sim

import (
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/neuroplastio/neio-xr/xrapi"
	"github.com/neuroplastio/neio-xr/xrapi/xrmath"
	"go.uber.org/zap"
)

type Stage struct {
	Width float32 `json:"width"`
	Depth float32 `json:"depth"`
}

type Config struct {
	Inline    bool `json:"inline"`
	Immersive bool `json:"immersive"`
	// Floor makes a local-floor space available. A stage additionally provides bounded-floor.
	Floor bool   `json:"floor"`
	Stage *Stage `json:"stage,omitempty"`
	// FOV is the vertical field of view in degrees.
	FOV         float32 `json:"fov"`
	IPD         float32 `json:"ipd"`
	Width       uint32  `json:"width"`
	Height      uint32  `json:"height"`
	RefreshRate float64 `json:"refreshRate"`
	// HeadHeight is the initial head position above the origin.
	HeadHeight float32 `json:"headHeight"`
}

func DefaultConfig() Config {
	return Config{
		Inline:      true,
		Immersive:   true,
		Floor:       true,
		FOV:         67,
		IPD:         0.063,
		Width:       1832,
		Height:      1920,
		RefreshRate: 72,
		HeadHeight:  1.7,
	}
}

type Backend struct {
	log *zap.Logger
	cfg Config

	now         time.Duration
	pending     []func()
	sessions    []*Session
	controllers []*Controller

	head    xrapi.RawPose
	tracked bool
	stage   *Stage

	failSession error
	failSurface error
}

func New(log *zap.Logger, cfg Config) *Backend {
	b := &Backend{
		log:     log,
		cfg:     cfg,
		tracked: true,
		stage:   cfg.Stage,
	}
	b.head = xrapi.RawPose{
		Position:       xrmath.Vec3{0, cfg.HeadHeight, 0},
		Orientation:    mgl32.QuatIdent(),
		HasPosition:    true,
		HasOrientation: true,
	}
	return b
}

func (b *Backend) Name() string {
	return "sim"
}

func (b *Backend) Available() bool {
	return b.cfg.Inline || b.cfg.Immersive
}

func (b *Backend) SupportsMode(mode xrapi.SessionMode) bool {
	if mode == xrapi.SessionImmersive {
		return b.cfg.Immersive
	}
	return b.cfg.Inline
}

func (b *Backend) RequestSession(mode xrapi.SessionMode, done func(xrapi.Session, error)) {
	b.later(func() {
		if err := b.failSession; err != nil {
			b.failSession = nil
			done(nil, err)
			return
		}
		if !b.SupportsMode(mode) {
			done(nil, fmt.Errorf("%s session: %w", mode, xrapi.ErrUnsupported))
			return
		}
		s := &Session{
			b:      b,
			mode:   mode,
			frames: make(map[xrapi.FrameHandle]xrapi.FrameFunc),
		}
		b.sessions = append(b.sessions, s)
		b.log.Debug("Session created", zap.Stringer("mode", mode))
		done(s, nil)
	})
}

func (b *Backend) later(fn func()) {
	b.pending = append(b.pending, fn)
}

// Step advances the clock, delivers completions queued so far, then fires the frame callbacks
// of every live session. Callbacks requested during Step fire on the next one.
func (b *Backend) Step(dt time.Duration) {
	b.now += dt
	pending := b.pending
	b.pending = nil
	for _, fn := range pending {
		fn()
	}
	for _, s := range b.live() {
		s.tick()
	}
}

// Interval is the frame period implied by the refresh rate.
func (b *Backend) Interval() time.Duration {
	if b.cfg.RefreshRate <= 0 {
		return time.Second / 60
	}
	return time.Duration(float64(time.Second) / b.cfg.RefreshRate)
}

func (b *Backend) live() []*Session {
	var out []*Session
	for _, s := range b.sessions {
		if !s.ended {
			out = append(out, s)
		}
	}
	return out
}

// Sessions returns the sessions that have not ended.
func (b *Backend) Sessions() []*Session {
	return b.live()
}

func (b *Backend) SetHead(pose xrapi.RawPose) {
	b.head = pose
}

// SetTracking toggles whether the head pose is available.
func (b *Backend) SetTracking(tracked bool) {
	b.tracked = tracked
}

// SetStage changes the calibrated play area. Existing reference spaces see the change.
func (b *Backend) SetStage(stage *Stage) {
	b.stage = stage
}

// FailNextSession makes the next session request fail with err.
func (b *Backend) FailNextSession(err error) {
	b.failSession = err
}

// FailNextSurface makes the next surface allocation fail with err.
func (b *Backend) FailNextSurface(err error) {
	b.failSurface = err
}

// Connect adds a controller and notifies live sessions.
func (b *Backend) Connect(c *Controller) *Controller {
	c.b = b
	b.controllers = append(b.controllers, c)
	b.notifyInputs()
	return c
}

func (b *Backend) Disconnect(id string) {
	for i, c := range b.controllers {
		if c.id == id {
			b.controllers = append(b.controllers[:i:i], b.controllers[i+1:]...)
			b.notifyInputs()
			return
		}
	}
}

func (b *Backend) notifyInputs() {
	for _, s := range b.live() {
		for _, fn := range s.onInputs {
			b.later(fn)
		}
	}
}

func (b *Backend) supports(kind xrapi.SpaceKind) bool {
	switch kind {
	case xrapi.SpaceBoundedFloor:
		return b.stage != nil
	case xrapi.SpaceLocalFloor:
		return b.cfg.Floor || b.stage != nil
	}
	return true
}

func (b *Backend) projection(aspect, near, far float32) xrmath.Mat4 {
	return mgl32.Perspective(mgl32.DegToRad(b.cfg.FOV), aspect, near, far)
}
