package audio

import (
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/timvw/volume-patrol/internal/model"
)

// Option configures registries, the aggregator and selectors.
// Components ignore options that do not apply to them.
type Option func(*options)

type options struct {
	logger                          *zap.SugaredLogger
	filter                          model.DirectionFilter
	role                            model.Role
	direction                       model.Direction
	caseSensitive                   bool
	lockCurrentIndexOnLockSelection bool
	target                          *SessionTarget
}

func defaultOptions() options {
	return options{
		logger:                          zap.NewNop().Sugar(),
		filter:                          model.FilterRender,
		role:                            model.RoleMultimedia,
		direction:                       model.Render,
		lockCurrentIndexOnLockSelection: true,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger. A nil logger is ignored.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithDirectionFilter sets the initial direction filter of a DeviceRegistry.
func WithDirectionFilter(f model.DirectionFilter) Option {
	return func(o *options) { o.filter = f }
}

// WithDefaultRole sets the role whose default-device notifications a
// DeviceRegistry tracks.
func WithDefaultRole(r model.Role) Option {
	return func(o *options) { o.role = r }
}

// WithDefaultDirection sets the direction DeviceSelector.SelectDefault resolves.
func WithDefaultDirection(d model.Direction) Option {
	return func(o *options) { o.direction = d }
}

// WithCaseSensitiveNames makes name lookups and hidden-name matching
// case-sensitive. The default is Unicode case folding.
func WithCaseSensitiveNames(v bool) Option {
	return func(o *options) { o.caseSensitive = v }
}

// WithLockCurrentIndexOnLockSelection sets the multi-selector policy that
// freezes the cursor whenever selection is locked. Enabled by default.
func WithLockCurrentIndexOnLockSelection(v bool) Option {
	return func(o *options) { o.lockCurrentIndexOnLockSelection = v }
}

// WithTarget binds a SessionSelector to an external target descriptor.
func WithTarget(t *SessionTarget) Option {
	return func(o *options) { o.target = t }
}

// nameFolder compares process and display names.
type nameFolder struct {
	sensitive bool
}

func (f nameFolder) key(s string) string {
	if f.sensitive {
		return s
	}
	return cases.Fold().String(s)
}

func (f nameFolder) equal(a, b string) bool {
	if f.sensitive {
		return a == b
	}
	return f.key(a) == f.key(b)
}
