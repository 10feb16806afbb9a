package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/neuroplastio/neio-xr/internal/configsvc"
	"github.com/neuroplastio/neio-xr/internal/headsetsvc"
	"github.com/neuroplastio/neio-xr/internal/headsetsvc/webvr"
	"github.com/neuroplastio/neio-xr/internal/headsetsvc/webxr"
	"github.com/neuroplastio/neio-xr/internal/mirrorsvc"
	"github.com/neuroplastio/neio-xr/xrapi"
	"github.com/neuroplastio/neio-xr/xrapi/profiles"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// stepper is a backend whose frames are driven by the agent loop rather than a display.
type stepper interface {
	Step(dt time.Duration)
	Interval() time.Duration
}

const defaultInterval = time.Second / 60

type Agent struct {
	config  Config
	headset HeadsetConfig
	log     *zap.Logger

	db         *badger.DB
	backends   *BackendRegistry
	configSvc  *configsvc.Service
	store      *headsetsvc.Store
	headsetSvc *headsetsvc.Service
	mirrorSvc  *mirrorsvc.Service
	steppers   []stepper
}

type Option func(*Provider)

// WithWebXR binds the WebXR backend to a browser bridge.
func WithWebXR(host webxr.Host) Option {
	return func(p *Provider) {
		p.WebXR = host
	}
}

func WithWebVR(nav webvr.Navigator) Option {
	return func(p *Provider) {
		p.WebVR = nav
	}
}

func NewAgent(config Config, opts ...Option) (*Agent, error) {
	loggerConfig := zap.NewDevelopmentConfig()
	loggerConfig.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000000000")
	loggerConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logger, err := loggerConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	dbOptions := badger.DefaultOptions(filepath.Join(config.DataDir, "db"))
	dbOptions.Logger = &badgerLogger{l: logger.Named("badger")}

	db, err := badger.Open(dbOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	configSvc := configsvc.New(logger.Named("config"))
	headsetCfg, err := configsvc.RegisterWriteable(configSvc, config.HeadsetConfig, DefaultHeadsetConfig(), nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load headset config: %w", err)
	}

	provider := Provider{Log: logger.Named("backend")}
	for _, opt := range opts {
		opt(&provider)
	}
	backends := NewBackendRegistry(provider)

	store := headsetsvc.NewStore(db, logger.Named("store"), time.Now)
	svcOpts := []headsetsvc.Option{
		headsetsvc.WithFloorOffset(headsetCfg.FloorOffset),
		headsetsvc.WithClipDistance(headsetCfg.ClipNear, headsetCfg.ClipFar),
		headsetsvc.WithStore(store),
	}
	var steppers []stepper
	for _, name := range headsetCfg.Drivers {
		backend, err := backends.New(name, headsetCfg.Backends[name])
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create backend: %w", err)
		}
		if s, ok := backend.(stepper); ok {
			steppers = append(steppers, s)
		}
		svcOpts = append(svcOpts, headsetsvc.WithBackend(name, backend))
	}
	headsetSvc := headsetsvc.New(logger.Named("headset"), time.Now, svcOpts...)

	var mirrorSvc *mirrorsvc.Service
	if headsetCfg.Mirror != "" {
		mirrorSvc = mirrorsvc.New(logger.Named("mirror"), headsetCfg.Mirror, headsetSvc)
	}

	return &Agent{
		config:     config,
		headset:    headsetCfg,
		log:        logger,
		db:         db,
		backends:   backends,
		configSvc:  configSvc,
		store:      store,
		headsetSvc: headsetSvc,
		mirrorSvc:  mirrorSvc,
		steppers:   steppers,
	}, nil
}

func (a *Agent) Close() error {
	return a.db.Close()
}

type badgerLogger struct {
	l *zap.Logger
}

func (l badgerLogger) Errorf(msg string, args ...any) {
	l.l.Error(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Warningf(msg string, args ...any) {
	l.l.Warn(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Infof(msg string, args ...any) {
	l.l.Info(fmt.Sprintf(msg, args...))
}

func (l badgerLogger) Debugf(msg string, args ...any) {
	l.l.Debug(fmt.Sprintf(msg, args...))
}

// Run starts the agent and blocks until the context is cancelled.
// Agent startup will fail if the configuration is not valid.
// In case profiles.yml becomes invalid after the startup, the last valid profiles stay in use.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.configSvc.Start(groupCtx)
	})
	group.Go(func() error {
		return a.headsetSvc.Start(groupCtx)
	})
	if a.mirrorSvc != nil {
		group.Go(func() error {
			return a.mirrorSvc.Start(groupCtx)
		})
	}
	group.Go(func() error {
		return a.loop(groupCtx)
	})

	err := group.Wait()
	if err != nil {
		return fmt.Errorf("agent failed: %w", err)
	}
	return nil
}

// loop is the frame loop goroutine. Every headset service call except SetProfiles happens here.
func (a *Agent) loop(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return nil
	case <-a.configSvc.Ready():
	}
	overrides, err := configsvc.Register(a.configSvc, a.config.ProfilesConfig, profiles.Overrides{}, a.onProfilesChange)
	if err != nil {
		return fmt.Errorf("failed to register profiles config: %w", err)
	}
	reg, err := profiles.Default().WithOverrides(overrides)
	if err != nil {
		return fmt.Errorf("invalid profiles config: %w", err)
	}
	a.headsetSvc.SetProfiles(reg)

	select {
	case <-ctx.Done():
		return nil
	case <-a.headsetSvc.Ready():
	}
	a.headsetSvc.Init()
	if !a.headsetSvc.Available() {
		a.log.Warn("No headset backend available", zap.Strings("drivers", a.headset.Drivers))
	}

	interval := defaultInterval
	if len(a.steppers) > 0 {
		interval = a.steppers[0].Interval()
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			a.headsetSvc.ExitVR()
			return nil
		case <-ticker.C:
			for _, s := range a.steppers {
				s.Step(interval)
			}
			a.headsetSvc.Update()
			if a.headset.AutoEnter && a.headsetSvc.CanEnterVR() {
				a.headsetSvc.EnterVR()
			}
		}
	}
}

func (a *Agent) onProfilesChange(overrides profiles.Overrides, err error) {
	if err != nil {
		a.log.Error("Failed to read profiles config", zap.Error(err))
		return
	}
	reg, err := profiles.Default().WithOverrides(overrides)
	if err != nil {
		a.log.Error("Invalid profiles config, keeping previous profiles", zap.Error(err))
		return
	}
	a.headsetSvc.SetProfiles(reg)
}

// Profiles loads the profile registry with the current overrides applied, without watching.
func (a *Agent) Profiles() (*profiles.Registry, error) {
	overrides, err := configsvc.Read(a.config.ProfilesConfig, profiles.Overrides{})
	if err != nil {
		return nil, fmt.Errorf("failed to read profiles config: %w", err)
	}
	return profiles.Default().WithOverrides(overrides)
}

func (a *Agent) Headset() *headsetsvc.Service {
	return a.headsetSvc
}

func (a *Agent) Store() *headsetsvc.Store {
	return a.store
}

// Drivers lists the backends that can be named in headset.yml.
func (a *Agent) Drivers() []string {
	return a.backends.IDs()
}

// Events streams headset events of the given types until ctx is done.
func (a *Agent) Events(ctx context.Context, types ...xrapi.EventType) <-chan headsetsvc.EventMessage {
	return a.headsetSvc.Subscribe(ctx, types...)
}
