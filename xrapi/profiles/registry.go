// Package profiles maps vendor controller profiles onto the logical button and axis layout.
//
// WebXR tables are derived from github:immersive-web/webxr-input-profiles. WebVR gamepad ids
// are matched exactly, with a handedness suffix for two-handed families, or by a stable prefix
// for ids that carry vendor/product codes.
package profiles

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/goccy/go-yaml"
	"github.com/neuroplastio/neio-xr/xrapi"
)

type Profile uint8

const (
	ProfileUnknown Profile = iota
	ProfileOculusTouch
	ProfileValveIndex
	ProfileMicrosoftMixedReality
	ProfileHTCVive
	ProfileGenericTrigger
	ProfileGenericTriggerTouchpad
	ProfileGenericTriggerThumbstick
	ProfileGenericTriggerTouchpadThumbstick
	ProfileGenericTriggerSqueeze
	ProfileGenericTriggerSqueezeTouchpad
	ProfileGenericTriggerSqueezeTouchpadThumbstick
	ProfileGenericTriggerSqueezeThumbstick
	ProfileGenericHandSelect
	ProfileOpenVRGamepad
	ProfileOculusTouchLegacy
	ProfileSpatialController
	profileCount
)

var profileNames = [profileCount]string{
	"unknown",
	"oculus-touch",
	"valve-index",
	"microsoft-mixed-reality",
	"htc-vive",
	"generic-trigger",
	"generic-trigger-touchpad",
	"generic-trigger-thumbstick",
	"generic-trigger-touchpad-thumbstick",
	"generic-trigger-squeeze",
	"generic-trigger-squeeze-touchpad",
	"generic-trigger-squeeze-touchpad-thumbstick",
	"generic-trigger-squeeze-thumbstick",
	"generic-hand-select",
	"openvr-gamepad",
	"oculus-touch-legacy",
	"spatial-controller",
}

func (p Profile) String() string {
	if p < profileCount {
		return profileNames[p]
	}
	return fmt.Sprintf("profile(%d)", uint8(p))
}

func (p Profile) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p Profile) MarshalYAML() ([]byte, error) {
	return yaml.Marshal(p.String())
}

type matchKind uint8

const (
	matchExact matchKind = iota
	// matchHanded entries are also found by appending a handedness suffix to the candidate.
	matchHanded
	// matchPrefix entries are keyed by a stable prefix; the candidate is truncated to the
	// key length before comparing.
	matchPrefix
)

type entry struct {
	key     string
	profile Profile
	match   matchKind
	layout  Layout
	left    *Layout
	right   *Layout
}

func (e entry) layoutFor(hand xrapi.Handedness) Layout {
	switch {
	case hand == xrapi.HandLeft && e.left != nil:
		return *e.left
	case hand == xrapi.HandRight && e.right != nil:
		return *e.right
	}
	return e.layout
}

var handSuffix = map[xrapi.Handedness]string{
	xrapi.HandLeft:  " (Left)",
	xrapi.HandRight: " (Right)",
}

func webxrLayout(p Profile, touchpad, thumbstick bool, buttons ...int) Layout {
	l := Layout{
		Profile: p,
		Key:     p.String(),
		Buttons: NewButtonMapping(buttons...),
	}
	if touchpad {
		l.Touchpad = touchpadAxes
	}
	if thumbstick {
		l.Thumbstick = thumbstickAxes
	}
	return l.analogFromButtons()
}

func webxrEntry(p Profile, touchpad, thumbstick bool, buttons ...int) entry {
	return entry{key: p.String(), profile: p, layout: webxrLayout(p, touchpad, thumbstick, buttons...)}
}

// na marks a logical button the hardware does not have.
const na = -1

func defaultEntries() []entry {
	oculusLeft := webxrLayout(ProfileOculusTouch, false, true, 0, 3, na, 1, na, na, na, 4, 5)
	oculusRight := webxrLayout(ProfileOculusTouch, false, true, 0, 3, na, 1, na, 4, 5)

	openvr := Layout{
		Profile:  ProfileOpenVRGamepad,
		Key:      "OpenVR Gamepad",
		Buttons:  NewButtonMapping(1, na, 0, 2, 3),
		Touchpad: AxisPair{Present: true, X: 0, Y: 1},
	}.analogFromButtons()

	legacyTouch := func(key string, buttons ...int) entry {
		l := Layout{
			Profile:    ProfileOculusTouchLegacy,
			Key:        key,
			Buttons:    NewButtonMapping(buttons...),
			Thumbstick: AxisPair{Present: true, X: 0, Y: 1},
		}.analogFromButtons()
		return entry{key: key, profile: ProfileOculusTouchLegacy, match: matchHanded, layout: l}
	}

	spatial := Layout{
		Profile:    ProfileSpatialController,
		Key:        "Spatial Controller (Spatial Interaction Source)",
		Buttons:    NewButtonMapping(1, 0, 4, 2, 3),
		Thumbstick: AxisPair{Present: true, X: 0, Y: 1},
		Touchpad:   AxisPair{Present: true, X: 2, Y: 3},
	}.analogFromButtons()

	return []entry{
		{key: "oculus-touch", profile: ProfileOculusTouch, layout: oculusRight, left: &oculusLeft, right: &oculusRight},
		webxrEntry(ProfileValveIndex, true, true, 0, 3, 2, 1, na, 4),
		webxrEntry(ProfileMicrosoftMixedReality, true, true, 0, 3, 2, 1),
		webxrEntry(ProfileHTCVive, true, false, 0, na, 2, 1),
		webxrEntry(ProfileGenericTrigger, false, false, 0),
		webxrEntry(ProfileGenericTriggerTouchpad, true, false, 0, na, 2),
		webxrEntry(ProfileGenericTriggerThumbstick, false, true, 0, 3),
		webxrEntry(ProfileGenericTriggerTouchpadThumbstick, true, true, 0, 3, 2),
		webxrEntry(ProfileGenericTriggerSqueeze, false, false, 0, na, na, 1),
		webxrEntry(ProfileGenericTriggerSqueezeTouchpad, true, false, 0, na, 2, 1),
		webxrEntry(ProfileGenericTriggerSqueezeTouchpadThumbstick, true, true, 0, 3, 2, 1),
		webxrEntry(ProfileGenericTriggerSqueezeThumbstick, false, true, 0, 3, na, 1),
		webxrEntry(ProfileGenericHandSelect, false, false, 0),

		{key: openvr.Key, profile: ProfileOpenVRGamepad, layout: openvr},
		legacyTouch("Oculus Touch (Left)", 1, 0, na, 2, na, na, na, 3, 4),
		legacyTouch("Oculus Touch (Right)", 1, 0, na, 2, na, 3, 4),
		{key: spatial.Key, profile: ProfileSpatialController, match: matchPrefix, layout: spatial},
	}
}

// Registry is an immutable profile table. Use WithOverrides to derive a modified copy.
type Registry struct {
	entries  []entry
	byKey    map[string]int
	prefixes []int
}

func newRegistry(entries []entry) *Registry {
	r := &Registry{
		entries: entries,
		byKey:   make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		if _, ok := r.byKey[e.key]; ok {
			panic("profile already registered: " + e.key)
		}
		r.byKey[e.key] = i
		if e.match == matchPrefix {
			r.prefixes = append(r.prefixes, i)
		}
	}
	return r
}

var defaultRegistry = newRegistry(defaultEntries())

// Default returns the built-in profile table.
func Default() *Registry {
	return defaultRegistry
}

// Resolve walks the candidate ids in order and returns the first matching layout. A false
// result means the source is pose-only.
func (r *Registry) Resolve(ids []string, hand xrapi.Handedness) (Layout, bool) {
	for _, id := range ids {
		if e, ok := r.lookup(id, hand); ok {
			return e.layoutFor(hand), true
		}
	}
	return Layout{}, false
}

func (r *Registry) lookup(id string, hand xrapi.Handedness) (entry, bool) {
	if i, ok := r.byKey[id]; ok && r.entries[i].match != matchPrefix {
		return r.entries[i], true
	}
	if suffix, ok := handSuffix[hand]; ok {
		if i, ok := r.byKey[id+suffix]; ok && r.entries[i].match == matchHanded {
			return r.entries[i], true
		}
	}
	for _, i := range r.prefixes {
		key := r.entries[i].key
		if len(id) >= len(key) && id[:len(key)] == key {
			return r.entries[i], true
		}
	}
	return entry{}, false
}

// Keys lists registry keys in sorted order.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		keys = append(keys, e.key)
	}
	sort.Strings(keys)
	return keys
}

// Layouts returns the layout for a key per handedness; hands without a specific layout share
// the default one.
func (r *Registry) Layouts(key string) (map[xrapi.Handedness]Layout, bool) {
	i, ok := r.byKey[key]
	if !ok {
		return nil, false
	}
	e := r.entries[i]
	return map[xrapi.Handedness]Layout{
		xrapi.HandNone:  e.layoutFor(xrapi.HandNone),
		xrapi.HandLeft:  e.layoutFor(xrapi.HandLeft),
		xrapi.HandRight: e.layoutFor(xrapi.HandRight),
	}, true
}
