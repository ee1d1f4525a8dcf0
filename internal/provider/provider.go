// Package provider implements the OS audio backends the registries consume.
//
// A provider is pure transport: it reports the endpoints and sessions it can
// observe and turns topology changes into audio.Notification values. It does
// not decide what is hidden or selected.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/timvw/volume-patrol/internal/audio"
	"github.com/timvw/volume-patrol/internal/procinfo"
)

// ErrUnsupported is returned by controls the backend cannot drive.
var ErrUnsupported = errors.New("not supported by this provider")

// Provider is an audio.Provider that can also watch for topology changes.
type Provider interface {
	audio.Provider

	// Watch sends notifications describing topology changes to out until
	// ctx is done. It must not be called more than once concurrently.
	Watch(ctx context.Context, out chan<- audio.Notification) error

	// Close releases backend resources.
	Close() error
}

// Options configures provider construction.
type Options struct {
	// Scenario is the topology file for the scenario provider.
	Scenario string
	// Refresh is the poll interval for backends without change callbacks.
	// Zero disables polling.
	Refresh time.Duration
	// Resolver fills in process names the backend does not report.
	Resolver *procinfo.Resolver
	Logger   *zap.SugaredLogger
}

func (o Options) logger() *zap.SugaredLogger {
	if o.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return o.Logger
}

// Detect picks a provider: the scenario provider when a scenario file is
// configured, the malgo provider otherwise.
func Detect(opts Options) (Provider, error) {
	if opts.Scenario != "" {
		return NewScenario(opts.Scenario, opts)
	}
	return NewMalgo(opts)
}

// FromName creates a Provider by name.
func FromName(name string, opts Options) (Provider, error) {
	switch name {
	case "":
		return Detect(opts)
	case "scenario":
		if opts.Scenario == "" {
			return nil, fmt.Errorf("scenario provider needs a scenario file (--scenario)")
		}
		return NewScenario(opts.Scenario, opts)
	case "malgo":
		return NewMalgo(opts)
	default:
		return nil, fmt.Errorf("unknown provider: %q (supported: scenario, malgo)", name)
	}
}
