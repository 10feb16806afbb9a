package agent

import (
	"encoding/json"
	"fmt"

	"github.com/neuroplastio/neio-xr/internal/headsetsvc/sim"
	"github.com/neuroplastio/neio-xr/internal/headsetsvc/webvr"
	"github.com/neuroplastio/neio-xr/internal/headsetsvc/webxr"
	"github.com/neuroplastio/neio-xr/pkg/registry"
	"github.com/neuroplastio/neio-xr/xrapi"
	"go.uber.org/zap"
)

// Provider carries what backend constructors need from the host process. Browser bridges are
// nil in a native process, which leaves the browser backends unavailable.
type Provider struct {
	Log   *zap.Logger
	WebXR webxr.Host
	WebVR webvr.Navigator
}

type BackendRegistry = registry.Registry[xrapi.Backend, Provider]

func NewBackendRegistry(provider Provider) *BackendRegistry {
	reg := registry.NewRegistry[xrapi.Backend, Provider](provider)
	reg.Register("sim", newSim)
	reg.Register("webxr", func(_ json.RawMessage, p Provider) (xrapi.Backend, error) {
		return webxr.New(p.Log.Named("webxr"), p.WebXR), nil
	})
	reg.Register("webvr", func(_ json.RawMessage, p Provider) (xrapi.Backend, error) {
		return webvr.New(p.Log.Named("webvr"), p.WebVR), nil
	})
	return reg
}

func newSim(config json.RawMessage, p Provider) (xrapi.Backend, error) {
	cfg := sim.DefaultConfig()
	if len(config) > 0 {
		if err := json.Unmarshal(config, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse sim config: %w", err)
		}
	}
	return sim.New(p.Log.Named("sim"), cfg), nil
}
