package model

import (
	"fmt"
	"strings"
)

// Direction is the data-flow direction of a device or session.
type Direction int

const (
	// Render is an output endpoint (speakers, headphones).
	Render Direction = iota
	// Capture is an input endpoint (microphones, line-in).
	Capture
)

// String returns the identity tag used for the direction ("render", "capture").
func (d Direction) String() string {
	switch d {
	case Render:
		return "render"
	case Capture:
		return "capture"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection parses "render" / "capture" (case-insensitive).
// "output"/"playback" and "input" are accepted as aliases.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "render", "output", "playback":
		return Render, nil
	case "capture", "input":
		return Capture, nil
	default:
		return Render, fmt.Errorf("invalid direction %q (supported: render, capture)", s)
	}
}

// DirectionFilter selects which device directions a registry tracks.
type DirectionFilter int

const (
	FilterRender DirectionFilter = iota
	FilterCapture
	FilterBoth
)

// Includes reports whether the filter admits the given direction.
func (f DirectionFilter) Includes(d Direction) bool {
	switch f {
	case FilterRender:
		return d == Render
	case FilterCapture:
		return d == Capture
	case FilterBoth:
		return true
	default:
		return false
	}
}

// Directions returns the directions admitted by the filter, render first.
func (f DirectionFilter) Directions() []Direction {
	switch f {
	case FilterRender:
		return []Direction{Render}
	case FilterCapture:
		return []Direction{Capture}
	case FilterBoth:
		return []Direction{Render, Capture}
	default:
		return nil
	}
}

func (f DirectionFilter) String() string {
	switch f {
	case FilterRender:
		return "render"
	case FilterCapture:
		return "capture"
	case FilterBoth:
		return "both"
	default:
		return fmt.Sprintf("filter(%d)", int(f))
	}
}

// ParseDirectionFilter parses "render", "capture" or "both".
func ParseDirectionFilter(s string) (DirectionFilter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "render", "output", "playback":
		return FilterRender, nil
	case "capture", "input":
		return FilterCapture, nil
	case "both", "all":
		return FilterBoth, nil
	default:
		return FilterRender, fmt.Errorf("invalid direction filter %q (supported: render, capture, both)", s)
	}
}

// Role is the purpose a default device is assigned for.
type Role int

const (
	RoleConsole Role = iota
	RoleMultimedia
	RoleCommunications
)

func (r Role) String() string {
	switch r {
	case RoleConsole:
		return "console"
	case RoleMultimedia:
		return "multimedia"
	case RoleCommunications:
		return "communications"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ParseRole parses a role name. Empty input yields RoleMultimedia.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "console":
		return RoleConsole, nil
	case "", "multimedia":
		return RoleMultimedia, nil
	case "communications", "communication":
		return RoleCommunications, nil
	default:
		return RoleMultimedia, fmt.Errorf("invalid role %q (supported: console, multimedia, communications)", s)
	}
}

// DeviceState mirrors the OS endpoint state.
type DeviceState int

const (
	DeviceActive DeviceState = iota
	DeviceDisabled
	DeviceNotPresent
	DeviceUnplugged
)

func (s DeviceState) String() string {
	switch s {
	case DeviceActive:
		return "active"
	case DeviceDisabled:
		return "disabled"
	case DeviceNotPresent:
		return "not_present"
	case DeviceUnplugged:
		return "unplugged"
	default:
		return fmt.Sprintf("device_state(%d)", int(s))
	}
}

// SessionState is the lifecycle state of a session.
// Disconnected and Expired are terminal.
type SessionState int

const (
	SessionActive SessionState = iota
	SessionInactive
	SessionExpired
	SessionDisconnected
)

// Terminal reports whether the state ends the session's lifetime.
func (s SessionState) Terminal() bool {
	return s == SessionExpired || s == SessionDisconnected
}

func (s SessionState) String() string {
	switch s {
	case SessionActive:
		return "active"
	case SessionInactive:
		return "inactive"
	case SessionExpired:
		return "expired"
	case SessionDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("session_state(%d)", int(s))
	}
}

// DeviceInfo is a read-only snapshot of a tracked device, used for CLI output.
type DeviceInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Direction string `json:"direction"`
	Default   bool   `json:"default"`
	Volume    int    `json:"volume"`
	Muted     bool   `json:"muted"`
	Sessions  int    `json:"sessions"`
	Selected  bool   `json:"selected,omitempty"`
}

// SessionInfo is a read-only snapshot of a session.
type SessionInfo struct {
	Identity   string `json:"identity"`
	InstanceID string `json:"instance_id"`
	SessionID  string `json:"session_id,omitempty"`
	PID        int    `json:"pid"`
	Process    string `json:"process"`
	Name       string `json:"name"`
	CustomName bool   `json:"custom_name,omitempty"`
	DeviceID   string `json:"device_id"`
	Volume     int    `json:"volume"`
	Muted      bool   `json:"muted"`
	Hidden     bool   `json:"hidden"`
	Selected   bool   `json:"selected,omitempty"`
	Current    bool   `json:"current,omitempty"`
}

// Snapshot is the full visible/hidden picture at one instant.
type Snapshot struct {
	Devices []DeviceInfo  `json:"devices"`
	Visible []SessionInfo `json:"visible"`
	Hidden  []SessionInfo `json:"hidden,omitempty"`
}

// FormatSessionLine renders a session as a single human-readable line.
func FormatSessionLine(s SessionInfo) string {
	var b strings.Builder
	marker := " "
	if s.Current {
		marker = ">"
	}
	check := "[ ]"
	if s.Selected {
		check = "[x]"
	}
	b.WriteString(fmt.Sprintf("%s %s %-28s %3d%%", marker, check, s.Identity, s.Volume))
	if s.Muted {
		b.WriteString(" muted")
	}
	if s.Name != "" && s.Name != s.Process {
		b.WriteString(fmt.Sprintf("  (%s)", s.Name))
	}
	return b.String()
}
