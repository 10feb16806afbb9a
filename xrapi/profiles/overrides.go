package profiles

import (
	"fmt"

	"github.com/neuroplastio/neio-xr/xrapi"
)

// Overrides is the profiles.yml document. Keys are registry keys as listed by Keys.
type Overrides struct {
	Profiles map[string]Override `json:"profiles"`
}

// SourceConfig selects exactly one of a physical button value or a physical axis.
type SourceConfig struct {
	Button *int `json:"button,omitempty"`
	Axis   *int `json:"axis,omitempty"`
}

type Override struct {
	// Buttons remaps logical buttons by name. A negative index removes the button.
	Buttons    map[string]int `json:"buttons,omitempty"`
	Trigger    *SourceConfig  `json:"trigger,omitempty"`
	Grip       *SourceConfig  `json:"grip,omitempty"`
	Touchpad   *[2]int        `json:"touchpad,omitempty"`
	Thumbstick *[2]int        `json:"thumbstick,omitempty"`
}

func (s SourceConfig) source() (AnalogSource, error) {
	switch {
	case s.Button != nil && s.Axis != nil:
		return AnalogSource{}, fmt.Errorf("both button and axis set")
	case s.Button != nil:
		if *s.Button < 0 {
			return AnalogSource{}, nil
		}
		return AnalogSource{Kind: SourceButton, Index: *s.Button}, nil
	case s.Axis != nil:
		if *s.Axis < 0 {
			return AnalogSource{}, nil
		}
		return AnalogSource{Kind: SourceAxis, Index: *s.Axis}, nil
	}
	return AnalogSource{}, fmt.Errorf("neither button nor axis set")
}

func axisPair(p [2]int) AxisPair {
	if p[0] < 0 || p[1] < 0 {
		return AxisPair{}
	}
	return AxisPair{Present: true, X: p[0], Y: p[1]}
}

func (o Override) apply(l Layout) (Layout, error) {
	for name, idx := range o.Buttons {
		b, err := xrapi.ParseButton(name)
		if err != nil {
			return l, err
		}
		if idx < 0 {
			l.Buttons[b] = Absent
		} else {
			l.Buttons[b] = Index(idx)
		}
	}
	if len(o.Buttons) > 0 {
		l.Trigger, l.Grip = AnalogSource{}, AnalogSource{}
		l = l.analogFromButtons()
	}
	if o.Trigger != nil {
		src, err := o.Trigger.source()
		if err != nil {
			return l, fmt.Errorf("trigger: %w", err)
		}
		l.Trigger = src
	}
	if o.Grip != nil {
		src, err := o.Grip.source()
		if err != nil {
			return l, fmt.Errorf("grip: %w", err)
		}
		l.Grip = src
	}
	if o.Touchpad != nil {
		l.Touchpad = axisPair(*o.Touchpad)
	}
	if o.Thumbstick != nil {
		l.Thumbstick = axisPair(*o.Thumbstick)
	}
	return l, nil
}

// WithOverrides returns a copy of the registry with overrides applied. The receiver is not
// modified.
func (r *Registry) WithOverrides(o Overrides) (*Registry, error) {
	entries := make([]entry, len(r.entries))
	copy(entries, r.entries)
	for key, override := range o.Profiles {
		i, ok := r.byKey[key]
		if !ok {
			return nil, fmt.Errorf("unknown profile %q", key)
		}
		e := entries[i]
		var err error
		e.layout, err = override.apply(e.layout)
		if err != nil {
			return nil, fmt.Errorf("failed to apply override for %q: %w", key, err)
		}
		if e.left != nil {
			left, err := override.apply(*e.left)
			if err != nil {
				return nil, fmt.Errorf("failed to apply override for %q: %w", key, err)
			}
			e.left = &left
		}
		if e.right != nil {
			right, err := override.apply(*e.right)
			if err != nil {
				return nil, fmt.Errorf("failed to apply override for %q: %w", key, err)
			}
			e.right = &right
		}
		entries[i] = e
	}
	return newRegistry(entries), nil
}
