// Package headsetsvc owns the headset session lifecycle and answers engine queries about poses,
// input state and display parameters.
//
// Everything except Start, Status, Subscribe and SetProfiles must be called from the loop
// goroutine, the same one that drives the backend's frame callbacks.
package headsetsvc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/neuroplastio/neio-xr/pkg/bus"
	"github.com/neuroplastio/neio-xr/xrapi"
	"github.com/neuroplastio/neio-xr/xrapi/profiles"
	"github.com/neuroplastio/neio-xr/xrapi/refspace"
	"github.com/neuroplastio/neio-xr/xrapi/xrmath"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

type State uint8

const (
	StateUninitialized State = iota
	StateInline
	StateImmersivePending
	StateImmersiveActive
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateInline:
		return "inline"
	case StateImmersivePending:
		return "immersive-pending"
	case StateImmersiveActive:
		return "immersive-active"
	case StateEnded:
		return "ended"
	}
	return "uninitialized"
}

type (
	EventBus     = bus.Bus[xrapi.EventType, xrapi.Event]
	EventMessage = bus.Message[xrapi.EventType, xrapi.Event]
)

// RenderFunc draws one frame. The camera is only valid for the duration of the call.
type RenderFunc func(camera *xrapi.Camera)

// CameraBinder makes a camera current in the renderer around the render callback.
type CameraBinder interface {
	BindCamera(camera *xrapi.Camera)
	UnbindCamera()
}

// DeviceStatus describes a bound device. It is safe to read from any goroutine.
type DeviceStatus struct {
	Device      xrapi.Device     `json:"device"`
	Hand        xrapi.Handedness `json:"hand"`
	Source      string           `json:"source"`
	Profile     string           `json:"profile,omitempty"`
	ConnectedAt time.Time        `json:"connectedAt"`
}

type namedBackend struct {
	name    string
	backend xrapi.Backend
}

type serviceOptions struct {
	backends []namedBackend
	binder   CameraBinder
	offset   float32
	clipNear float32
	clipFar  float32
	profiles *profiles.Registry
	store    *Store
	handler  func(xrapi.Event)
}

type Option func(*serviceOptions)

// WithBackend adds a backend. Backends are tried in the order they are added.
func WithBackend(name string, backend xrapi.Backend) Option {
	return func(o *serviceOptions) {
		o.backends = append(o.backends, namedBackend{name: name, backend: backend})
	}
}

func WithCameraBinder(binder CameraBinder) Option {
	return func(o *serviceOptions) {
		o.binder = binder
	}
}

// WithFloorOffset sets the floor-to-head height used when only a head-relative space exists.
func WithFloorOffset(offset float32) Option {
	return func(o *serviceOptions) {
		o.offset = offset
	}
}

func WithClipDistance(near, far float32) Option {
	return func(o *serviceOptions) {
		o.clipNear = near
		o.clipFar = far
	}
}

func WithProfiles(reg *profiles.Registry) Option {
	return func(o *serviceOptions) {
		o.profiles = reg
	}
}

func WithStore(store *Store) Option {
	return func(o *serviceOptions) {
		o.store = store
	}
}

// WithEventHandler receives every event synchronously on the loop goroutine, before it is
// published on the bus.
func WithEventHandler(fn func(xrapi.Event)) Option {
	return func(o *serviceOptions) {
		o.handler = fn
	}
}

const (
	DefaultFloorOffset = 1.7
	DefaultClipNear    = 0.1
	DefaultClipFar     = 100
)

type Service struct {
	log     *zap.Logger
	options serviceOptions
	now     func() time.Time
	ready   chan struct{}

	events *EventBus
	status *xsync.MapOf[xrapi.Device, DeviceStatus]

	mu       sync.Mutex
	deferred []func()

	state         State
	backend       namedBackend
	inlinePending bool
	requestGen    uint64
	inline        *sessionState
	immersive     *sessionState
	driver        *sessionState
	driverGen     uint64
	frameHandle   xrapi.FrameHandle
	frame         xrapi.Frame
	sessionID     string

	profiles *profiles.Registry
	hands    [3]*binding
	camera   xrapi.Camera
	render   RenderFunc
	clipNear float32
	clipFar  float32
}

func New(log *zap.Logger, now func() time.Time, opts ...Option) *Service {
	options := serviceOptions{
		offset:   DefaultFloorOffset,
		clipNear: DefaultClipNear,
		clipFar:  DefaultClipFar,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.profiles == nil {
		options.profiles = profiles.Default()
	}
	return &Service{
		log:      log,
		options:  options,
		now:      now,
		ready:    make(chan struct{}),
		events:   bus.NewBus[xrapi.EventType, xrapi.Event](log.Named("bus")),
		status:   xsync.NewMapOf[xrapi.Device, DeviceStatus](),
		profiles: options.profiles,
		clipNear: options.clipNear,
		clipFar:  options.clipFar,
	}
}

// Start runs the event bus and the controller history consumer until ctx is done. Events
// emitted before Start stay queued in the bus and still reach the history.
func (s *Service) Start(ctx context.Context) error {
	var history <-chan EventMessage
	if s.options.store != nil {
		history = s.events.Subscribe(ctx, xrapi.EventConnected)
	}
	err := s.events.Start(ctx)
	if err != nil {
		return fmt.Errorf("failed to start event bus: %w", err)
	}
	select {
	case <-ctx.Done():
		return nil
	case <-s.events.Ready():
	}
	if history != nil {
		go s.options.store.Consume(ctx, history)
	}
	close(s.ready)
	s.log.Info("Service started")
	<-ctx.Done()
	return nil
}

func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// Subscribe streams events of the given types, or all events.
func (s *Service) Subscribe(ctx context.Context, types ...xrapi.EventType) <-chan EventMessage {
	return s.events.Subscribe(ctx, types...)
}

// Status returns the currently bound devices.
func (s *Service) Status() []DeviceStatus {
	var out []DeviceStatus
	for d := xrapi.Device(0); d < xrapi.DeviceCount; d++ {
		if st, ok := s.status.Load(d); ok {
			out = append(out, st)
		}
	}
	return out
}

// SetProfiles swaps the profile registry. Bindings are rebuilt on the next tick.
func (s *Service) SetProfiles(reg *profiles.Registry) {
	s.enqueue(func() {
		s.log.Info("Profile registry reloaded")
		s.profiles = reg
		s.rebuildInputs()
	})
}

// enqueue defers fn to the next tick. It may be called from any goroutine.
func (s *Service) enqueue(fn func()) {
	s.mu.Lock()
	s.deferred = append(s.deferred, fn)
	s.mu.Unlock()
}

// drain runs deferred completions, including ones enqueued while draining.
func (s *Service) drain() {
	for {
		s.mu.Lock()
		fns := s.deferred
		s.deferred = nil
		s.mu.Unlock()
		if len(fns) == 0 {
			return
		}
		for _, fn := range fns {
			fn()
		}
	}
}

func (s *Service) emit(e xrapi.Event) {
	if s.options.handler != nil {
		s.options.handler(e)
	}
	s.events.TryPublish(e.Type, e)
}

// Update drains deferred completions and polls button edges. Call it once per engine frame.
func (s *Service) Update() {
	s.drain()
	s.pollButtons()
}

func (s *Service) State() State {
	return s.state
}

// Available reports whether any backend has host XR capability.
func (s *Service) Available() bool {
	return s.backend.backend != nil
}

// Name is the name of the active backend, or empty when unavailable.
func (s *Service) Name() string {
	return s.backend.name
}

// SessionID identifies the current immersive session, or is empty outside of one.
func (s *Service) SessionID() string {
	return s.sessionID
}

func (s *Service) space() xrapi.ReferenceSpace {
	if s.driver == nil || s.driver.space == nil {
		return nil
	}
	return s.driver.space
}

func (s *Service) resolver() refspace.Resolver {
	return refspace.For(s.space(), s.options.offset)
}

func (s *Service) OriginType() xrapi.Origin {
	return s.resolver().Origin()
}

func (s *Service) DisplayDimensions() (width, height uint32, ok bool) {
	if s.driver == nil {
		return 0, 0, false
	}
	width, height = s.driver.session.DisplayDimensions()
	return width, height, true
}

// DisplayTime is the predicted display time of the current frame.
func (s *Service) DisplayTime() (time.Duration, bool) {
	if s.frame == nil {
		return 0, false
	}
	return s.frame.Time(), true
}

func (s *Service) ClipDistance() (near, far float32) {
	return s.clipNear, s.clipFar
}

func (s *Service) SetClipDistance(near, far float32) {
	s.clipNear, s.clipFar = near, far
	for _, st := range []*sessionState{s.inline, s.immersive} {
		if st != nil {
			st.session.SetClipDistance(near, far)
		}
	}
}

// BoundsDimensions is the play area size. ok is false without a bounded space.
func (s *Service) BoundsDimensions() (width, depth float32, ok bool) {
	space := s.space()
	if space == nil {
		return 0, 0, false
	}
	return space.Bounds()
}

func (s *Service) BoundsGeometry() []xrmath.Vec3 {
	space := s.space()
	if space == nil {
		return nil
	}
	return space.BoundsGeometry()
}

func (s *Service) SetRenderCallback(fn RenderFunc) {
	s.render = fn
}
