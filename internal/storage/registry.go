package storage

import (
	"sort"
	"sync"
)

// Factory constructs an adapter instance for one connection.
type Factory func(deps Deps) Adapter

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes an adapter factory available under a protocol tag.
// Adapter packages call this from init, database/sql style.
func Register(protocol string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if factory == nil {
		panic("storage: Register factory is nil")
	}
	if _, dup := registry[protocol]; dup {
		panic("storage: Register called twice for protocol " + protocol)
	}
	registry[protocol] = factory
}

// NewAdapter creates an adapter for the given protocol tag. Unknown tags
// fail fast with a config error before any network access.
func NewAdapter(protocol string, deps Deps) (Adapter, error) {
	registryMu.RLock()
	factory, ok := registry[protocol]
	registryMu.RUnlock()
	if !ok {
		return nil, Ef(KindConfig, "new", "unknown protocol %q (registered: %v)", protocol, Protocols())
	}
	return factory(deps), nil
}

// Protocols returns the registered protocol tags, sorted.
func Protocols() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for p := range registry {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
