package display

import (
	"fmt"
	"strings"
	"time"
)

// Importance controls how intrusively a channel's notifications are shown.
type Importance int

const (
	ImportanceNone    Importance = 0
	ImportanceMin     Importance = 1
	ImportanceLow     Importance = 2
	ImportanceDefault Importance = 3
	ImportanceHigh    Importance = 4
)

var importanceNames = map[Importance]string{
	ImportanceNone:    "none",
	ImportanceMin:     "min",
	ImportanceLow:     "low",
	ImportanceDefault: "default",
	ImportanceHigh:    "high",
}

func (i Importance) String() string {
	if s, ok := importanceNames[i]; ok {
		return s
	}
	return fmt.Sprintf("importance(%d)", int(i))
}

func (i Importance) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

func (i *Importance) UnmarshalText(b []byte) error {
	for k, v := range importanceNames {
		if strings.EqualFold(v, string(b)) {
			*i = k
			return nil
		}
	}
	return fmt.Errorf("unknown importance %q", string(b))
}

// Visibility controls what is shown on a locked screen.
type Visibility int

const (
	VisibilitySecret  Visibility = -1
	VisibilityPrivate Visibility = 0
	VisibilityPublic  Visibility = 1
)

var visibilityNames = map[Visibility]string{
	VisibilitySecret:  "secret",
	VisibilityPrivate: "private",
	VisibilityPublic:  "public",
}

func (v Visibility) String() string {
	if s, ok := visibilityNames[v]; ok {
		return s
	}
	return fmt.Sprintf("visibility(%d)", int(v))
}

func (v Visibility) MarshalText() ([]byte, error) { return []byte(v.String()), nil }

func (v *Visibility) UnmarshalText(b []byte) error {
	for k, name := range visibilityNames {
		if strings.EqualFold(name, string(b)) {
			*v = k
			return nil
		}
	}
	return fmt.Errorf("unknown visibility %q", string(b))
}

// EventType tags a notification interaction.
type EventType int

const (
	EventUnknown     EventType = -1
	EventDismissed   EventType = 0
	EventPress       EventType = 1
	EventActionPress EventType = 2
	EventDelivered   EventType = 3
)

func (t EventType) String() string {
	switch t {
	case EventDismissed:
		return "dismissed"
	case EventPress:
		return "press"
	case EventActionPress:
		return "action_press"
	case EventDelivered:
		return "delivered"
	}
	return "unknown"
}

func (t EventType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Channel groups notifications sharing display properties.
type Channel struct {
	ID         string     `json:"id" yaml:"id"`
	Name       string     `json:"name" yaml:"name"`
	Importance Importance `json:"importance" yaml:"importance"`
	Visibility Visibility `json:"visibility" yaml:"visibility"`
}

// PressAction identifies what a tap on a notification does.
type PressAction struct {
	ID string `json:"id" yaml:"id"`
}

// AndroidOptions carries the Android-specific presentation of a notification.
type AndroidOptions struct {
	ChannelID   string       `json:"channel_id" yaml:"channel_id"`
	SmallIcon   string       `json:"small_icon,omitempty" yaml:"small_icon,omitempty"`
	PressAction *PressAction `json:"press_action,omitempty" yaml:"press_action,omitempty"`
	Importance  Importance   `json:"importance" yaml:"importance"`
	Visibility  Visibility   `json:"visibility" yaml:"visibility"`
}

// Notification is a local notification.
type Notification struct {
	ID        string            `json:"id" yaml:"id"`
	Title     string            `json:"title" yaml:"title"`
	Body      string            `json:"body" yaml:"body"`
	Data      map[string]string `json:"data,omitempty" yaml:"data,omitempty"`
	Android   *AndroidOptions   `json:"android,omitempty" yaml:"android,omitempty"`
	CreatedAt time.Time         `json:"created_at" yaml:"created_at"`
}

// ChannelID returns the Android channel id, or "" when none is set.
func (n Notification) ChannelID() string {
	if n.Android == nil {
		return ""
	}
	return n.Android.ChannelID
}

// EventDetail is the payload attached to an Event.
type EventDetail struct {
	Notification *Notification `json:"notification,omitempty"`
	PressAction  *PressAction  `json:"press_action,omitempty"`
}

// Event is a notification interaction.
type Event struct {
	Type   EventType   `json:"type"`
	Detail EventDetail `json:"detail"`
}

// InitialNotification is the notification that launched the process.
type InitialNotification struct {
	Notification Notification `json:"notification"`
	PressAction  PressAction  `json:"press_action"`
}
