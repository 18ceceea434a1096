// Package mirror forwards purges to downstream caches, e.g. a Memcached
// pool fronting the same origin. Forwarding is best effort: purges never
// fail because a mirror is unavailable.
package mirror

import (
	"fmt"
	"net/url"
	"sort"
	"sync"
)

// Invalidator removes entries from a downstream cache.
type Invalidator interface {
	// Invalidate removes a single key. Unknown keys are not an error.
	Invalidate(key string) error

	// Flush removes everything.
	Flush() error
}

type AdapterConstructor func(*url.URL) (Invalidator, error)

type ErrAdapterAlreadyTaken string

func (err ErrAdapterAlreadyTaken) Error() string {
	return fmt.Sprintf("mirror: the name %q is already taken by another adapter package", string(err))
}

var (
	adapters  = map[string]AdapterConstructor{}
	adapterMu = sync.RWMutex{}
)

// RegisterAdapter will remember the given adapter with under the
// given name. It will panic, if the name is already taken.
func RegisterAdapter(name string, adapter AdapterConstructor) {
	adapterMu.Lock()
	defer adapterMu.Unlock()

	if _, taken := adapters[name]; taken {
		panic(ErrAdapterAlreadyTaken(name))
	}
	adapters[name] = adapter
}

// New creates an invalidator for the given DSN. The adapter name is
// extracted from the DSN scheme, i.e. the memcached adapter requires a
// DSN of the form "memcached://host:port".
func New(dsn string) (Invalidator, error) {
	adapterMu.RLock()
	defer adapterMu.RUnlock()

	uri, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid DSN: %w", err)
	}

	constructor, exists := adapters[uri.Scheme]
	if !exists {
		return nil, fmt.Errorf("unknown mirror adapter %q", uri.Scheme)
	}

	return constructor(uri)
}

func AvailableAdapters() (list []string) {
	adapterMu.RLock()
	defer adapterMu.RUnlock()

	for name := range adapters {
		list = append(list, name)
	}
	sort.Strings(list)
	return
}
