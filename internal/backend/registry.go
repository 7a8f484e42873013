package backend

import (
	"fmt"
	"sort"
	"sync"

	"github.com/discloud/discloud/internal/errs"
	"github.com/discloud/discloud/internal/models"
)

// The registry maps platform tags to driver factories. Drivers register
// from their package init, so the map is complete before main runs and
// read-only afterwards.
var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register adds a driver factory for a platform tag. Duplicate registration
// is a programming error and panics, matching the behavior of other
// init-time registries.
func Register(platform string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[platform]; dup {
		panic(fmt.Sprintf("backend: Register called twice for platform %q", platform))
	}
	if factory == nil {
		panic(fmt.Sprintf("backend: Register called with nil factory for platform %q", platform))
	}
	registry[platform] = factory
}

// Lookup returns the factory for a platform tag. A miss is a fatal
// configuration error for the caller.
func Lookup(platform string) (Factory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	factory, ok := registry[platform]
	if !ok {
		return nil, fmt.Errorf("%w: %q", errs.ErrUnsupportedPlatform, platform)
	}
	return factory, nil
}

// Supported reports whether a platform tag has a registered driver.
func Supported(platform string) bool {
	registryMu.RLock()
	defer registryMu.RUnlock()
	_, ok := registry[platform]
	return ok
}

// Platforms returns the registered platform tags, sorted.
func Platforms() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for p := range registry {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// New constructs a driver for the platform with the given stored config.
func New(platform string, config models.JSONMap, opts Options) (Driver, error) {
	factory, err := Lookup(platform)
	if err != nil {
		return nil, err
	}
	return factory(config, opts)
}
