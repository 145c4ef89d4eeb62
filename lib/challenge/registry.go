package challenge

import (
	"fmt"
	"sync"
)

var (
	registry = map[string]Mode{}
	regLock  sync.RWMutex
)

// Register adds a challenge mode. Registering the same name twice is a
// programming error.
func Register(name string, impl Mode) {
	regLock.Lock()
	defer regLock.Unlock()

	if _, ok := registry[name]; ok {
		panic(fmt.Sprintf("challenge: mode %q registered twice", name))
	}

	registry[name] = impl
}

func GetMode(name string) (Mode, bool) {
	regLock.RLock()
	defer regLock.RUnlock()

	result, ok := registry[name]
	return result, ok
}

func Modes() []string {
	regLock.RLock()
	defer regLock.RUnlock()

	var result []string
	for name := range registry {
		result = append(result, name)
	}
	return result
}
