package provider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/timvw/volume-patrol/internal/audio"
	"github.com/timvw/volume-patrol/internal/model"
)

// ScenarioFile is the YAML topology the scenario provider serves.
//
//	devices:
//	  - id: spk-1
//	    name: Speakers
//	    direction: render
//	    default: [console, multimedia]
//	    volume: 0.8
//	    sessions:
//	      - pid: 1234
//	        process: spotify.exe
//	        volume: 0.5
type ScenarioFile struct {
	Devices []ScenarioDevice `yaml:"devices"`
}

// ScenarioDevice is one endpoint in a scenario.
type ScenarioDevice struct {
	ID        string            `yaml:"id"`
	Name      string            `yaml:"name"`
	Direction string            `yaml:"direction"`
	State     string            `yaml:"state"`   // active (default), disabled, not_present, unplugged
	Default   []string          `yaml:"default"` // roles this device is the default for
	Volume    *float64          `yaml:"volume"`
	Muted     bool              `yaml:"muted"`
	Peak      float64           `yaml:"peak"`
	Sessions  []ScenarioSession `yaml:"sessions"`

	dir   model.Direction
	state model.DeviceState
}

// ScenarioSession is one process stream in a scenario.
type ScenarioSession struct {
	PID         int      `yaml:"pid"`
	Process     string   `yaml:"process"`
	DisplayName string   `yaml:"display_name"`
	SessionID   string   `yaml:"session_id"`
	InstanceID  string   `yaml:"instance_id"`
	State       string   `yaml:"state"` // active (default), inactive, expired, disconnected
	Volume      *float64 `yaml:"volume"`
	Muted       bool     `yaml:"muted"`
	Peak        float64  `yaml:"peak"`

	state model.SessionState
}

// ParseScenario decodes and normalizes a scenario. Missing instance ids
// are derived deterministically from device id, pid and process name, so
// they survive edits that reorder or remove other sessions.
func ParseScenario(data []byte, names func(pid int) string) (*ScenarioFile, error) {
	var f ScenarioFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	seen := make(map[string]bool)
	for i := range f.Devices {
		d := &f.Devices[i]
		if d.ID == "" {
			return nil, fmt.Errorf("device %d: id is required", i)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("device %s: duplicate id", d.ID)
		}
		seen[d.ID] = true
		if d.Name == "" {
			d.Name = d.ID
		}
		dir, err := model.ParseDirection(defaultString(d.Direction, "render"))
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", d.ID, err)
		}
		d.dir = dir
		if d.state, err = parseDeviceState(d.State); err != nil {
			return nil, fmt.Errorf("device %s: %w", d.ID, err)
		}
		for _, r := range d.Default {
			if _, err := model.ParseRole(r); err != nil {
				return nil, fmt.Errorf("device %s: %w", d.ID, err)
			}
		}
		if d.Volume == nil {
			d.Volume = ptr(1.0)
		}

		seeds := make(map[string]int)
		for j := range d.Sessions {
			s := &d.Sessions[j]
			if s.Process == "" && names != nil {
				s.Process = names(s.PID)
			}
			if s.InstanceID == "" {
				seed := fmt.Sprintf("%s/%d/%s", d.ID, s.PID, s.Process)
				n := seeds[seed]
				seeds[seed]++
				if n > 0 {
					seed = fmt.Sprintf("%s/%d", seed, n)
				}
				s.InstanceID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
			}
			if s.SessionID == "" {
				s.SessionID = uuid.NewSHA1(uuid.NameSpaceOID, []byte(s.Process)).String()
			}
			if s.state, err = parseSessionState(s.State); err != nil {
				return nil, fmt.Errorf("device %s session %d: %w", d.ID, s.PID, err)
			}
			if s.Volume == nil {
				s.Volume = ptr(1.0)
			}
		}
	}
	return &f, nil
}

// Scenario serves a topology read from a YAML file. Control writes update
// the in-memory topology; Watch reloads the file when it changes.
type Scenario struct {
	path   string
	names  func(pid int) string
	logger *zap.SugaredLogger

	mu   sync.Mutex
	file *ScenarioFile
}

// NewScenario loads the scenario at path.
func NewScenario(path string, opts Options) (*Scenario, error) {
	s := &Scenario{path: path, logger: opts.logger().Named("scenario")}
	if opts.Resolver != nil {
		s.names = opts.Resolver.Name
	}
	f, err := s.read()
	if err != nil {
		return nil, err
	}
	s.file = f
	return s, nil
}

func (s *Scenario) read() (*ScenarioFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario %s: %w", s.path, err)
	}
	f, err := ParseScenario(data, s.names)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	return f, nil
}

// Name returns "scenario".
func (s *Scenario) Name() string { return "scenario" }

// Path returns the scenario file path.
func (s *Scenario) Path() string { return s.path }

func (s *Scenario) EnumerateDevices(dir model.Direction) ([]audio.DeviceHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []audio.DeviceHandle
	for _, d := range s.file.Devices {
		if d.dir == dir && d.state == model.DeviceActive {
			out = append(out, s.handle(d))
		}
	}
	return out, nil
}

func (s *Scenario) DefaultDevice(dir model.Direction, role model.Role) (audio.DeviceHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.file.Devices {
		if d.dir == dir && d.state == model.DeviceActive && hasRole(d.Default, role) {
			return s.handle(d), nil
		}
	}
	return nil, nil
}

func (s *Scenario) Device(id string) (audio.DeviceHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.findDevice(id)
	if d == nil {
		return nil, fmt.Errorf("device %s: not in scenario", id)
	}
	return s.handle(*d), nil
}

// Topology returns the current scenario as a diffable snapshot.
func (s *Scenario) Topology() Topology {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topology(s.file)
}

func (s *Scenario) topology(f *ScenarioFile) Topology {
	t := Topology{Defaults: make(map[DefaultKey]string)}
	for _, d := range f.Devices {
		snap := DeviceSnapshot{Handle: s.handle(d), State: d.state, Volume: *d.Volume, Muted: d.Muted}
		for _, sess := range d.Sessions {
			snap.Sessions = append(snap.Sessions, SessionSnapshot{
				Handle: s.sessionHandle(d.ID, sess),
				State:  sess.state,
				Volume: *sess.Volume,
				Muted:  sess.Muted,
			})
		}
		t.Devices = append(t.Devices, snap)
		if d.state != model.DeviceActive {
			continue
		}
		for _, r := range d.Default {
			role, _ := model.ParseRole(r)
			key := DefaultKey{Direction: d.dir, Role: role}
			if _, taken := t.Defaults[key]; !taken {
				t.Defaults[key] = d.ID
			}
		}
	}
	return t
}

// Reload re-reads the file and returns the notifications describing what
// changed. On a read or parse error the current topology is kept.
func (s *Scenario) Reload() ([]audio.Notification, error) {
	f, err := s.read()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.topology(s.file)
	s.file = f
	return Diff(prev, s.topology(f)), nil
}

// Watch reloads the scenario whenever the file is written or replaced and
// forwards the resulting notifications.
func (s *Scenario) Watch(ctx context.Context, out chan<- audio.Notification) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer w.Close()

	// Editors often replace the file, so watch the directory.
	abs, err := filepath.Abs(s.path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", s.path, err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			changes, err := s.Reload()
			if err != nil {
				s.logger.Warnw("scenario reload failed", "path", s.path, "error", err)
				continue
			}
			s.logger.Debugw("scenario reloaded", "path", s.path, "changes", len(changes))
			for _, n := range changes {
				select {
				case out <- n:
				case <-ctx.Done():
					return nil
				}
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warnw("watcher error", "path", s.path, "error", err)
		}
	}
}

// Close is a no-op; the watcher is owned by Watch.
func (s *Scenario) Close() error { return nil }

func (s *Scenario) findDevice(id string) *ScenarioDevice {
	for i := range s.file.Devices {
		if s.file.Devices[i].ID == id {
			return &s.file.Devices[i]
		}
	}
	return nil
}

func (s *Scenario) findSession(deviceID, instanceID string) *ScenarioSession {
	d := s.findDevice(deviceID)
	if d == nil {
		return nil
	}
	for i := range d.Sessions {
		if d.Sessions[i].InstanceID == instanceID {
			return &d.Sessions[i]
		}
	}
	return nil
}

func (s *Scenario) handle(d ScenarioDevice) *scenarioDevice {
	return &scenarioDevice{p: s, id: d.ID, name: d.Name, dir: d.dir}
}

func (s *Scenario) sessionHandle(deviceID string, sess ScenarioSession) *scenarioSession {
	return &scenarioSession{
		p:          s,
		deviceID:   deviceID,
		instanceID: sess.InstanceID,
		sessionID:  sess.SessionID,
		pid:        sess.PID,
		process:    sess.Process,
		display:    sess.DisplayName,
	}
}

type scenarioDevice struct {
	p    *Scenario
	id   string
	name string
	dir  model.Direction
}

func (d *scenarioDevice) ID() string                 { return d.id }
func (d *scenarioDevice) Name() string               { return d.name }
func (d *scenarioDevice) Direction() model.Direction { return d.dir }

func (d *scenarioDevice) Controls() (audio.Controls, error) {
	return &scenarioControls{p: d.p, deviceID: d.id}, nil
}

func (d *scenarioDevice) Sessions() ([]audio.SessionHandle, error) {
	d.p.mu.Lock()
	defer d.p.mu.Unlock()
	dev := d.p.findDevice(d.id)
	if dev == nil {
		return nil, fmt.Errorf("device %s: not in scenario", d.id)
	}
	var out []audio.SessionHandle
	for _, sess := range dev.Sessions {
		if !sess.state.Terminal() {
			out = append(out, d.p.sessionHandle(d.id, sess))
		}
	}
	return out, nil
}

type scenarioSession struct {
	p          *Scenario
	deviceID   string
	instanceID string
	sessionID  string
	pid        int
	process    string
	display    string
}

func (s *scenarioSession) InstanceID() string  { return s.instanceID }
func (s *scenarioSession) SessionID() string   { return s.sessionID }
func (s *scenarioSession) PID() int            { return s.pid }
func (s *scenarioSession) ProcessName() string { return s.process }
func (s *scenarioSession) DisplayName() string { return s.display }

func (s *scenarioSession) Controls() (audio.Controls, error) {
	return &scenarioControls{p: s.p, deviceID: s.deviceID, instanceID: s.instanceID}, nil
}

// scenarioControls resolves its target on every call so writes land in
// the current topology even after a reload.
type scenarioControls struct {
	p          *Scenario
	deviceID   string
	instanceID string
}

// with runs fn on the target's volume, mute and peak fields.
func (c *scenarioControls) with(fn func(volume **float64, muted *bool, peak float64)) error {
	c.p.mu.Lock()
	defer c.p.mu.Unlock()
	if c.instanceID == "" {
		d := c.p.findDevice(c.deviceID)
		if d == nil {
			return fmt.Errorf("device %s: not in scenario", c.deviceID)
		}
		fn(&d.Volume, &d.Muted, d.Peak)
		return nil
	}
	sess := c.p.findSession(c.deviceID, c.instanceID)
	if sess == nil {
		return fmt.Errorf("session %s: not in scenario", c.instanceID)
	}
	fn(&sess.Volume, &sess.Muted, sess.Peak)
	return nil
}

func (c *scenarioControls) Volume() (float64, error) {
	var v float64
	err := c.with(func(vol **float64, _ *bool, _ float64) { v = **vol })
	return v, err
}

func (c *scenarioControls) SetVolume(v float64) error {
	return c.with(func(vol **float64, _ *bool, _ float64) { *vol = ptr(v) })
}

func (c *scenarioControls) Muted() (bool, error) {
	var m bool
	err := c.with(func(_ **float64, muted *bool, _ float64) { m = *muted })
	return m, err
}

func (c *scenarioControls) SetMuted(m bool) error {
	return c.with(func(_ **float64, muted *bool, _ float64) { *muted = m })
}

func (c *scenarioControls) Peak() (float64, error) {
	var p float64
	err := c.with(func(_ **float64, _ *bool, peak float64) { p = peak })
	return p, err
}

func parseDeviceState(s string) (model.DeviceState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "active":
		return model.DeviceActive, nil
	case "disabled":
		return model.DeviceDisabled, nil
	case "not_present", "notpresent":
		return model.DeviceNotPresent, nil
	case "unplugged":
		return model.DeviceUnplugged, nil
	default:
		return model.DeviceActive, fmt.Errorf("invalid device state %q", s)
	}
}

func parseSessionState(s string) (model.SessionState, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "active":
		return model.SessionActive, nil
	case "inactive":
		return model.SessionInactive, nil
	case "expired":
		return model.SessionExpired, nil
	case "disconnected":
		return model.SessionDisconnected, nil
	default:
		return model.SessionActive, fmt.Errorf("invalid session state %q", s)
	}
}

func hasRole(roles []string, role model.Role) bool {
	for _, r := range roles {
		if parsed, err := model.ParseRole(r); err == nil && parsed == role {
			return true
		}
	}
	return false
}

func defaultString(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func ptr[T any](v T) *T { return &v }
