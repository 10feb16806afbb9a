package agent

import (
	"encoding/json"

	"github.com/neuroplastio/neio-xr/internal/headsetsvc"
)

// Config points to the data directory and the user-driven configuration files.
// Live reload only applies to profiles.yml; headset.yml is read once at startup and created
// with defaults when missing.
type Config struct {
	DataDir        string `json:"dataDir"`
	HeadsetConfig  string `json:"headsetConfig"`
	ProfilesConfig string `json:"profilesConfig"`
}

// HeadsetConfig is the content of headset.yml.
type HeadsetConfig struct {
	// Drivers lists backends in priority order. The first available one is used.
	Drivers     []string `json:"drivers"`
	FloorOffset float32  `json:"floorOffset"`
	ClipNear    float32  `json:"clipNear"`
	ClipFar     float32  `json:"clipFar"`
	// AutoEnter requests an immersive session as soon as the inline session is up.
	AutoEnter bool `json:"autoEnter"`
	// Mirror is the listen address of the event mirror. Empty disables it.
	Mirror string `json:"mirror,omitempty"`
	// Backends holds per-driver settings keyed by driver name.
	Backends map[string]json.RawMessage `json:"backends,omitempty"`
}

func DefaultHeadsetConfig() HeadsetConfig {
	return HeadsetConfig{
		Drivers:     []string{"webxr", "webvr", "sim"},
		FloorOffset: headsetsvc.DefaultFloorOffset,
		ClipNear:    headsetsvc.DefaultClipNear,
		ClipFar:     headsetsvc.DefaultClipFar,
		Mirror:      "127.0.0.1:7450",
	}
}
