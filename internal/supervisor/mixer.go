// Package supervisor wires the audio core into something a person can drive:
// the Mixer owns one registry, aggregator and set of selectors, the Loop runs
// it headless behind a command socket, and the TUI runs it interactively.
//
// A Mixer is not safe for concurrent use. Every caller funnels provider
// notifications and user input through a single goroutine.
package supervisor

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/timvw/volume-patrol/internal/audio"
	"github.com/timvw/volume-patrol/internal/config"
	"github.com/timvw/volume-patrol/internal/events"
	"github.com/timvw/volume-patrol/internal/model"
	vpotel "github.com/timvw/volume-patrol/internal/otel"
)

var tracer = otel.Tracer("volume-patrol")

// SystemSoundsName labels the pid 0 session when the provider gives it no
// display name.
const SystemSoundsName = "System Sounds"

// MixerOptions configures a Mixer.
type MixerOptions struct {
	Filter        model.DirectionFilter
	Role          model.Role
	Hidden        *audio.NameSet // nil means an empty set
	CaseSensitive bool
	// Target is the identity the session selector follows.
	Target                          string
	LockCurrentIndexOnLockSelection bool

	Metrics *vpotel.Metrics // nil-safe
	Logger  *zap.SugaredLogger
}

// MixerOptionsFromConfig maps the loaded configuration onto MixerOptions.
func MixerOptionsFromConfig(cfg *config.Config) (MixerOptions, error) {
	filter, err := cfg.DirectionFilter()
	if err != nil {
		return MixerOptions{}, err
	}
	role, err := cfg.Role()
	if err != nil {
		return MixerOptions{}, err
	}
	return MixerOptions{
		Filter:                          filter,
		Role:                            role,
		Hidden:                          cfg.HiddenNameSet(),
		CaseSensitive:                   cfg.CaseSensitive,
		Target:                          cfg.Target,
		LockCurrentIndexOnLockSelection: cfg.LockCurrentIndexOnLockSelection(),
	}, nil
}

// Mixer is the assembled core: devices, the session aggregate over every
// tracked device, and the three selectors.
type Mixer struct {
	Devices        *audio.DeviceRegistry
	Sessions       *audio.SessionAggregator
	DeviceSelector *audio.DeviceSelector
	Selector       *audio.SessionSelector
	Multi          *audio.SessionMultiSelector
	Target         *audio.SessionTarget

	metrics *vpotel.Metrics
	logger  *zap.SugaredLogger
	cancels []func()
}

// NewMixer assembles a Mixer over p. Nothing is enumerated until Refresh.
func NewMixer(p audio.Provider, opts MixerOptions) *Mixer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	hidden := opts.Hidden
	if hidden == nil {
		if opts.CaseSensitive {
			hidden = audio.NewCaseSensitiveNameSet()
		} else {
			hidden = audio.NewNameSet()
		}
	}

	// Capture-only mixers default to the capture endpoint.
	direction := model.Render
	if opts.Filter == model.FilterCapture {
		direction = model.Capture
	}

	common := []audio.Option{
		audio.WithLogger(logger),
		audio.WithCaseSensitiveNames(opts.CaseSensitive),
	}
	with := func(extra ...audio.Option) []audio.Option {
		return append(append([]audio.Option(nil), common...), extra...)
	}

	m := &Mixer{
		Target:  audio.NewSessionTarget(opts.Target),
		metrics: opts.Metrics,
		logger:  logger.Named("mixer"),
	}
	m.Devices = audio.NewDeviceRegistry(p, with(
		audio.WithDirectionFilter(opts.Filter),
		audio.WithDefaultRole(opts.Role),
	)...)
	m.Sessions = audio.NewSessionAggregator(hidden, with()...)

	m.cancels = append(m.cancels,
		m.Devices.OnDeviceAdded(func(e audio.DeviceEvent) { m.Sessions.Attach(e.Device.Sessions()) }),
		m.Devices.OnDeviceRemoved(func(e audio.DeviceEvent) { m.Sessions.Detach(e.Device.Sessions()) }),
		m.Sessions.AddNamePreview(func(s *audio.Session) string {
			if s.PID() == 0 && s.DisplayName() == "" {
				return SystemSoundsName
			}
			return ""
		}),
	)

	m.DeviceSelector = audio.NewDeviceSelector(m.Devices, with(audio.WithDefaultDirection(direction))...)
	m.Selector = audio.NewSessionSelector(m.Sessions, with(audio.WithTarget(m.Target))...)
	m.Multi = audio.NewSessionMultiSelector(m.Sessions, with(
		audio.WithLockCurrentIndexOnLockSelection(opts.LockCurrentIndexOnLockSelection),
	)...)

	m.cancels = append(m.cancels, opts.Metrics.Observe(context.Background(), vpotel.Observed{
		Devices:        m.Devices,
		Sessions:       m.Sessions,
		DeviceSelector: m.DeviceSelector,
		Selector:       m.Selector,
		Multi:          m.Multi,
	}))
	return m
}

// Hidden returns the hidden-name set.
func (m *Mixer) Hidden() *audio.NameSet { return m.Sessions.HiddenNames() }

// Refresh reloads devices from the provider and, if no device is selected
// yet, selects the default one. Enumeration errors are returned after the
// partial reload has been applied.
func (m *Mixer) Refresh(ctx context.Context) error {
	_, span := tracer.Start(ctx, "refresh",
		trace.WithAttributes(
			attribute.String("direction_filter", m.Devices.DirectionFilter().String()),
			attribute.String("role", m.Devices.DefaultRole().String()),
		))
	defer span.End()

	err := m.Devices.Reload()
	if err != nil {
		m.metrics.RecordProviderError(ctx)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if m.DeviceSelector.Selected() == nil {
		m.DeviceSelector.SelectDefault()
	}
	if m.Selector.Selected() == nil && !m.Target.Empty() {
		m.logger.Debugw("target not present yet", "target", m.Target.Identity())
	}

	span.SetAttributes(
		attribute.Int("devices", m.Devices.Len()),
		attribute.Int("sessions.visible", len(m.Sessions.Visible())),
		attribute.Int("sessions.hidden", len(m.Sessions.Hidden())),
	)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	return nil
}

// Apply hands one provider notification to the registry.
func (m *Mixer) Apply(ctx context.Context, n audio.Notification) bool {
	applied := m.Devices.Apply(n)
	m.metrics.RecordNotification(ctx, n.Kind, applied)
	m.logger.Debugw("notification", "notification", n.String(), "applied", applied)

	// Keep a device selected while one exists.
	if n.Kind == audio.NotifyDefaultDeviceChanged && m.DeviceSelector.Selected() == nil {
		m.DeviceSelector.SelectDefault()
	}
	return applied
}

// Close releases every device and subscription.
func (m *Mixer) Close() {
	for i := len(m.cancels) - 1; i >= 0; i-- {
		m.cancels[i]()
	}
	m.cancels = nil
	m.Multi.Close()
	m.Selector.Close()
	m.DeviceSelector.Close()
	m.Sessions.Close()
	m.Devices.Close()
}

// FindSession resolves a user-supplied identifier against every session,
// hidden ones included.
func (m *Mixer) FindSession(identifier string) (*audio.Session, error) {
	if s := m.Sessions.FindSessionWithSimilarIdentifier(identifier, true); s != nil {
		return s, nil
	}
	if s := m.Sessions.FindSessionWithInstanceID(identifier, true); s != nil {
		return s, nil
	}
	return nil, fmt.Errorf("%q: %w", identifier, audio.ErrSessionNotFound)
}

// Snapshot captures devices and both session partitions.
func (m *Mixer) Snapshot() model.Snapshot {
	snap := model.Snapshot{
		Devices: make([]model.DeviceInfo, 0, m.Devices.Len()),
		Visible: make([]model.SessionInfo, 0),
	}
	selectedDevice := m.DeviceSelector.Selected()
	for _, d := range m.Devices.Devices() {
		snap.Devices = append(snap.Devices, model.DeviceInfo{
			ID:        d.ID(),
			Name:      d.Name(),
			Direction: d.Direction().String(),
			Default:   d.IsDefault(),
			Volume:    d.VolumePercent(),
			Muted:     d.Muted(),
			Sessions:  d.Sessions().Len(),
			Selected:  d == selectedDevice,
		})
	}
	current := m.Multi.CurrentIndex()
	for i, s := range m.Sessions.Visible() {
		info := Describe(s)
		info.Selected = m.Multi.IsSelected(i)
		info.Current = i == current
		snap.Visible = append(snap.Visible, info)
	}
	for _, s := range m.Sessions.Hidden() {
		snap.Hidden = append(snap.Hidden, Describe(s))
	}
	return snap
}

// Describe returns the read-only view of s used for CLI output.
func Describe(s *audio.Session) model.SessionInfo {
	return model.SessionInfo{
		Identity:   s.Identity(),
		InstanceID: s.InstanceID(),
		SessionID:  s.SessionID(),
		PID:        s.PID(),
		Process:    s.ProcessName(),
		Name:       s.Name(),
		CustomName: s.HasCustomName(),
		DeviceID:   s.DeviceID(),
		Volume:     s.VolumePercent(),
		Muted:      s.Muted(),
		Hidden:     s.Hidden(),
	}
}

// Subscribe translates core events into events.Event values and passes
// them to fn on the mixer's goroutine.
func (m *Mixer) Subscribe(fn func(events.Event)) (cancel func()) {
	emit := func(kind, target, state, msg string) {
		fn(events.New(kind, target, state, msg))
	}
	deviceTarget := func(d *audio.Device, id string) string {
		if d != nil {
			return d.ID()
		}
		if id == "" {
			return "none"
		}
		return id
	}

	cancels := []func(){
		m.Devices.OnDeviceAdded(func(e audio.DeviceEvent) {
			emit(events.KindDeviceAdded, e.Device.ID(), e.Device.Direction().String(), e.Device.Name())
		}),
		m.Devices.OnDeviceRemoved(func(e audio.DeviceEvent) {
			emit(events.KindDeviceRemoved, e.Device.ID(), e.Device.Direction().String(), e.Device.Name())
		}),
		m.Devices.OnDefaultDeviceChanged(func(e audio.DefaultDeviceEvent) {
			emit(events.KindDefaultChanged, deviceTarget(e.Device, e.DeviceID), e.Direction.String(), "")
		}),
		m.Devices.OnVolumeChanged(func(e audio.VolumeEvent) {
			target := e.DeviceID
			if e.Session != nil {
				target = e.Session.Identity()
			}
			state := ""
			if e.Muted {
				state = "muted"
			}
			emit(events.KindVolumeChanged, target, state, fmt.Sprintf("%d%%", int(e.Volume*100+0.5)))
		}),
		m.Sessions.OnSessionAdded(func(e audio.SessionEvent) {
			emit(events.KindSessionAdded, e.Session.Identity(), "visible", e.Session.Name())
		}),
		m.Sessions.OnSessionRemoved(func(e audio.SessionEvent) {
			emit(events.KindSessionRemoved, e.Session.Identity(), "visible", e.Session.Name())
		}),
		m.Sessions.OnHiddenSessionAdded(func(e audio.SessionEvent) {
			emit(events.KindSessionHidden, e.Session.Identity(), "hidden", e.Session.Name())
		}),
		m.Sessions.OnHiddenSessionRemoved(func(e audio.SessionEvent) {
			emit(events.KindSessionShown, e.Session.Identity(), "hidden", e.Session.Name())
		}),
		m.DeviceSelector.OnSelectedChanged(func(e audio.SelectionEvent[*audio.Device]) {
			emit(events.KindSelectionChanged, deviceTarget(e.Selected, ""), "device", "")
		}),
		m.Selector.OnSelectedChanged(func(e audio.SelectionEvent[*audio.Session]) {
			target := "none"
			if e.Selected != nil {
				target = e.Selected.Identity()
			}
			emit(events.KindSelectionChanged, target, "session", "")
		}),
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}

// ErrNothingSelected is returned by actions with no session or device to
// act on.
var ErrNothingSelected = errors.New("nothing selected")
