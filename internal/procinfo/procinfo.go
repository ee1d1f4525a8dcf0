// Package procinfo resolves process names from pids.
package procinfo

import (
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shirou/gopsutil/v3/process"
)

// IdleName is the name reported for pid 0.
const IdleName = "Idle"

// DefaultTTL is how long a resolved name is trusted. Pids are recycled, so
// entries must not live forever.
const DefaultTTL = 5 * time.Minute

// LookupFunc resolves one pid to a process name.
type LookupFunc func(pid int) (string, error)

// Resolver caches pid to name lookups.
type Resolver struct {
	lookup LookupFunc
	cache  *cache.Cache
}

// NewResolver returns a Resolver backed by gopsutil.
func NewResolver() *Resolver {
	return NewResolverWithLookup(systemLookup, DefaultTTL)
}

// NewResolverWithLookup returns a Resolver using lookup and the given TTL.
func NewResolverWithLookup(lookup LookupFunc, ttl time.Duration) *Resolver {
	return &Resolver{
		lookup: lookup,
		cache:  cache.New(ttl, 2*ttl),
	}
}

// Name returns the process name for pid, or "" if it cannot be resolved.
// Failures are not cached.
func (r *Resolver) Name(pid int) string {
	if pid == 0 {
		return IdleName
	}
	if pid < 0 {
		return ""
	}
	key := strconv.Itoa(pid)
	if v, ok := r.cache.Get(key); ok {
		return v.(string)
	}
	name, err := r.lookup(pid)
	if err != nil || name == "" {
		return ""
	}
	r.cache.Set(key, name, cache.DefaultExpiration)
	return name
}

// Forget drops a cached entry, e.g. after the process exited.
func (r *Resolver) Forget(pid int) {
	r.cache.Delete(strconv.Itoa(pid))
}

func systemLookup(pid int) (string, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", err
	}
	return p.Name()
}
