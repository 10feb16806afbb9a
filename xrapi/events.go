package xrapi

import "fmt"

type EventType uint8

const (
	EventConnected EventType = iota
	EventDisconnected
	EventPressed
	EventReleased
	EventSessionChanged
)

func (t EventType) String() string {
	switch t {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventPressed:
		return "pressed"
	case EventReleased:
		return "released"
	case EventSessionChanged:
		return "session"
	}
	return fmt.Sprintf("event(%d)", uint8(t))
}

func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Event is emitted by the headset service. Button is only meaningful for press and release,
// Profile and Source for connect and disconnect, State and Session for session changes.
type Event struct {
	Type    EventType `json:"type"`
	Device  Device    `json:"device"`
	Button  Button    `json:"button"`
	Profile string    `json:"profile,omitempty"`
	Source  string    `json:"source,omitempty"`
	State   string    `json:"state,omitempty"`
	Session string    `json:"session,omitempty"`
}

func (d Device) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (b Button) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}
