package provider

import (
	"context"
	"time"

	"github.com/timvw/volume-patrol/internal/audio"
)

// slowdownAfter is the number of unchanged polls before the interval
// starts to grow.
const slowdownAfter = 10

// poller calls snapshot on an adaptive interval and forwards the diff
// between consecutive topologies. The interval starts at base, grows by
// 10% per unchanged poll after slowdownAfter quiet polls, never exceeds
// max, and drops back to base as soon as something changes.
type poller struct {
	base     time.Duration
	max      time.Duration
	current  time.Duration
	quiet    int
	snapshot func() (Topology, error)
	onError  func(error)
}

func newPoller(base time.Duration, snapshot func() (Topology, error), onError func(error)) *poller {
	return &poller{
		base:     base,
		max:      4 * base,
		current:  base,
		snapshot: snapshot,
		onError:  onError,
	}
}

func (p *poller) interval() time.Duration { return p.current }

// observe records whether the last poll saw a change and adjusts the interval.
func (p *poller) observe(changed bool) {
	if changed {
		p.quiet = 0
		p.current = p.base
		return
	}
	p.quiet++
	if p.quiet > slowdownAfter {
		next := time.Duration(float64(p.current) * 1.1)
		if next > p.max {
			next = p.max
		}
		p.current = next
	}
}

// run polls until ctx is done. prev is the topology the caller already
// reported.
func (p *poller) run(ctx context.Context, prev Topology, out chan<- audio.Notification) error {
	timer := time.NewTimer(p.current)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		next, err := p.snapshot()
		if err != nil {
			p.onError(err)
			p.observe(false)
			timer.Reset(p.current)
			continue
		}

		changes := Diff(prev, next)
		prev = next
		p.observe(len(changes) > 0)
		for _, n := range changes {
			select {
			case out <- n:
			case <-ctx.Done():
				return nil
			}
		}
		timer.Reset(p.current)
	}
}
