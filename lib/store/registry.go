package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

var (
	regLock  sync.RWMutex
	registry = map[string]Factory{}
)

// Factory constructs a storage backend from its policy document
// parameters. Backends register themselves by name in an init function.
type Factory interface {
	Build(ctx context.Context, config json.RawMessage) (Interface, error)
	Valid(config json.RawMessage) error
}

func Register(name string, impl Factory) {
	regLock.Lock()
	defer regLock.Unlock()

	registry[name] = impl
}

func Get(name string) (Factory, bool) {
	regLock.RLock()
	defer regLock.RUnlock()
	result, ok := registry[name]
	return result, ok
}

// Backends lists every registered backend name, sorted for stable error
// messages.
func Backends() []string {
	regLock.RLock()
	defer regLock.RUnlock()
	var result []string
	for name := range registry {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}
