package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	KindDeviceAdded      = "device_added"
	KindDeviceRemoved    = "device_removed"
	KindDefaultChanged   = "default_changed"
	KindSessionAdded     = "session_added"
	KindSessionRemoved   = "session_removed"
	KindSessionHidden    = "session_hidden"
	KindSessionShown     = "session_shown"
	KindSelectionChanged = "selection_changed"
	KindVolumeChanged    = "volume_changed"
	KindCommandRejected  = "command_rejected"
	KindProviderError    = "provider_error"
	KindProviderReloaded = "provider_reloaded"
)

// Event is one observable change in the mixer, recorded by the headless
// loop and published to subscribers.
type Event struct {
	ID      string    `json:"id"`
	Kind    string    `json:"kind"`
	Target  string    `json:"target"`
	State   string    `json:"state,omitempty"`
	TS      time.Time `json:"ts"`
	Message string    `json:"message,omitempty"`
}

// New stamps an event with a fresh ULID and the current time.
func New(kind, target, state, message string) Event {
	return Event{
		ID:      ulid.Make().String(),
		Kind:    kind,
		Target:  target,
		State:   state,
		TS:      time.Now().UTC(),
		Message: message,
	}
}

func (e Event) Validate() error {
	if _, err := ulid.ParseStrict(e.ID); err != nil {
		return fmt.Errorf("invalid id %q: %w", e.ID, err)
	}
	if !isValidKind(e.Kind) {
		return fmt.Errorf("invalid kind %q", e.Kind)
	}
	if strings.TrimSpace(e.Target) == "" {
		return fmt.Errorf("target is required")
	}
	if e.TS.IsZero() {
		return fmt.Errorf("ts is required")
	}
	return nil
}

// IsAttentionKind reports whether an event of this kind usually needs the
// user's attention: something went away or the routing changed.
func IsAttentionKind(kind string) bool {
	switch kind {
	case KindDeviceRemoved, KindSessionRemoved, KindDefaultChanged, KindProviderError:
		return true
	default:
		return false
	}
}

func isValidKind(kind string) bool {
	switch kind {
	case KindDeviceAdded, KindDeviceRemoved, KindDefaultChanged,
		KindSessionAdded, KindSessionRemoved, KindSessionHidden, KindSessionShown,
		KindSelectionChanged, KindVolumeChanged, KindCommandRejected,
		KindProviderError, KindProviderReloaded:
		return true
	default:
		return false
	}
}

const (
	ActionVolumeUp       = "volume_up"
	ActionVolumeDown     = "volume_down"
	ActionToggleMute     = "toggle_mute"
	ActionToggleCurrent  = "toggle_current"
	ActionNext           = "next"
	ActionPrevious       = "previous"
	ActionSelect         = "select"
	ActionHide           = "hide"
	ActionUnhide         = "unhide"
	ActionNextDevice     = "next_device"
	ActionPreviousDevice = "previous_device"
	ActionLock           = "lock"
	ActionUnlock         = "unlock"
	ActionRename         = "rename"
)

// Command is a hotkey request received on the command socket.
type Command struct {
	Action string `json:"action"`
	// Target is a session identifier for select and rename, or a name for
	// hide and unhide. Volume actions apply to the current selection when
	// empty.
	Target string `json:"target,omitempty"`
	// Name is the new custom name for rename. Empty resets it.
	Name string `json:"name,omitempty"`
	// Step overrides the configured volume step, in percent.
	Step int `json:"step,omitempty"`
}

func (c Command) Validate() error {
	switch c.Action {
	case ActionVolumeUp, ActionVolumeDown, ActionToggleMute, ActionToggleCurrent,
		ActionNext, ActionPrevious, ActionNextDevice, ActionPreviousDevice,
		ActionLock, ActionUnlock:
	case ActionSelect, ActionHide, ActionUnhide, ActionRename:
		if strings.TrimSpace(c.Target) == "" {
			return fmt.Errorf("%s needs a target", c.Action)
		}
	default:
		return fmt.Errorf("invalid action %q", c.Action)
	}
	if c.Step < 0 || c.Step > 100 {
		return fmt.Errorf("step %d out of range 0-100", c.Step)
	}
	return nil
}
