package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/timvw/volume-patrol/internal/audio"
)

const meterName = "volume-patrol"

// Metrics holds the mixer's counters. All counters are cumulative and safe
// for concurrent use. A nil *Metrics records nothing.
type Metrics struct {
	DevicesAdded   metric.Int64Counter
	DevicesRemoved metric.Int64Counter

	// Partitioned by "partition" (visible, hidden).
	SessionsAdded   metric.Int64Counter
	SessionsRemoved metric.Int64Counter

	// Partitioned by "selector" (device, session, multi).
	SelectionChanges metric.Int64Counter

	// Partitioned by "kind" and "applied".
	Notifications  metric.Int64Counter
	ProviderErrors metric.Int64Counter
}

// NewMetrics creates all metric instruments. Returns no-op instruments
// when no MeterProvider is registered.
func NewMetrics() (*Metrics, error) {
	return newMetrics(otel.Meter(meterName))
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.DevicesAdded, err = meter.Int64Counter("devices.added",
		metric.WithDescription("Devices that entered the registry"))
	if err != nil {
		return nil, err
	}

	m.DevicesRemoved, err = meter.Int64Counter("devices.removed",
		metric.WithDescription("Devices that left the registry"))
	if err != nil {
		return nil, err
	}

	m.SessionsAdded, err = meter.Int64Counter("sessions.added",
		metric.WithDescription("Sessions added to the aggregate, by partition"))
	if err != nil {
		return nil, err
	}

	m.SessionsRemoved, err = meter.Int64Counter("sessions.removed",
		metric.WithDescription("Sessions removed from the aggregate, by partition"))
	if err != nil {
		return nil, err
	}

	m.SelectionChanges, err = meter.Int64Counter("selection.changes",
		metric.WithDescription("Selection changes, by selector"))
	if err != nil {
		return nil, err
	}

	m.Notifications, err = meter.Int64Counter("notifications.applied",
		metric.WithDescription("Provider notifications handled, by kind"))
	if err != nil {
		return nil, err
	}

	m.ProviderErrors, err = meter.Int64Counter("provider.errors",
		metric.WithDescription("Provider enumeration and watch failures"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordNotification counts one provider notification.
func (m *Metrics) RecordNotification(ctx context.Context, kind audio.NotificationKind, applied bool) {
	if m == nil {
		return
	}
	m.Notifications.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind.String()),
		attribute.Bool("applied", applied),
	))
}

// RecordProviderError counts one provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context) {
	if m == nil {
		return
	}
	m.ProviderErrors.Add(ctx, 1)
}

// Observed is the set of core components Observe subscribes to. Nil
// fields are skipped.
type Observed struct {
	Devices        *audio.DeviceRegistry
	Sessions       *audio.SessionAggregator
	DeviceSelector *audio.DeviceSelector
	Selector       *audio.SessionSelector
	Multi          *audio.SessionMultiSelector
}

// Observe counts core events until the returned cancel is called.
func (m *Metrics) Observe(ctx context.Context, o Observed) (cancel func()) {
	if m == nil {
		return func() {}
	}
	var cancels []func()
	add := func(c func()) { cancels = append(cancels, c) }

	partition := func(name string) metric.AddOption {
		return metric.WithAttributes(attribute.String("partition", name))
	}
	selector := func(name string) metric.AddOption {
		return metric.WithAttributes(attribute.String("selector", name))
	}

	if r := o.Devices; r != nil {
		add(r.OnDeviceAdded(func(audio.DeviceEvent) { m.DevicesAdded.Add(ctx, 1) }))
		add(r.OnDeviceRemoved(func(audio.DeviceEvent) { m.DevicesRemoved.Add(ctx, 1) }))
	}
	if a := o.Sessions; a != nil {
		add(a.OnSessionAdded(func(audio.SessionEvent) { m.SessionsAdded.Add(ctx, 1, partition("visible")) }))
		add(a.OnSessionRemoved(func(audio.SessionEvent) { m.SessionsRemoved.Add(ctx, 1, partition("visible")) }))
		add(a.OnHiddenSessionAdded(func(audio.SessionEvent) { m.SessionsAdded.Add(ctx, 1, partition("hidden")) }))
		add(a.OnHiddenSessionRemoved(func(audio.SessionEvent) { m.SessionsRemoved.Add(ctx, 1, partition("hidden")) }))
	}
	if s := o.DeviceSelector; s != nil {
		add(s.OnSelectedChanged(func(audio.SelectionEvent[*audio.Device]) { m.SelectionChanges.Add(ctx, 1, selector("device")) }))
	}
	if s := o.Selector; s != nil {
		add(s.OnSelectedChanged(func(audio.SelectionEvent[*audio.Session]) { m.SelectionChanges.Add(ctx, 1, selector("session")) }))
	}
	if s := o.Multi; s != nil {
		count := func(audio.SessionEvent) { m.SelectionChanges.Add(ctx, 1, selector("multi")) }
		add(s.OnSessionSelected(count))
		add(s.OnSessionDeselected(count))
	}

	return func() {
		for _, c := range cancels {
			c()
		}
	}
}
