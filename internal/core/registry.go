package core

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry   = make(map[string]Kind)
	registryMu sync.RWMutex
)

// Register adds a record kind to the registry.
// Panics if a kind with the same key is already registered.
func Register(k Kind) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[k.Info.Key]; exists {
		panic(fmt.Sprintf("kind already registered: %s", k.Info.Key))
	}
	registry[k.Info.Key] = k
}

// Get returns a record kind by key.
func Get(key string) (Kind, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	k, ok := registry[key]
	return k, ok
}

// All returns every registered kind, sorted by group then key.
func All() []Kind {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]Kind, 0, len(registry))
	for _, k := range registry {
		result = append(result, k)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Info.Group != result[j].Info.Group {
			return result[i].Info.Group < result[j].Info.Group
		}
		return result[i].Info.Key < result[j].Info.Key
	})
	return result
}

// Groups returns the distinct group names, sorted.
func Groups() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	seen := make(map[string]bool)
	for _, k := range registry {
		seen[k.Info.Group] = true
	}

	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// Clear removes all registered kinds.
// Primarily useful for testing.
func Clear() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]Kind)
}
