package convert

import (
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
)

// Factory constructs a converter named by a field's converter tag option.
type Factory func() (Converter, error)

// Registry maps target types to converters.
//
// Lookups that hit an existing entry take no lock. Register, Reset and the
// first lookup of an enum type serialize on the registry mutex.
type Registry struct {
	mu    sync.Mutex
	table atomic.Pointer[sync.Map] // reflect.Type -> Converter

	factoriesMu sync.RWMutex
	factories   map[string]Factory
}

// NewRegistry returns a registry holding exactly the built-in converters.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[string]Factory)}
	r.table.Store(builtinTable())
	return r
}

// Register installs or replaces the converter for t. The change is visible
// to every conversion that starts after Register returns.
func (r *Registry) Register(t reflect.Type, c Converter) {
	if t == nil || c == nil {
		panic("convert: Register with nil type or converter")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table.Load().Store(t, c)
}

// RegisterFor installs c as the converter for T.
func RegisterFor[T any](r *Registry, c Converter) {
	r.Register(reflect.TypeFor[T](), c)
}

// Get returns the converter for t. When none is registered and t implements
// Enum, a case-insensitive enum converter is created and memoized.
func (r *Registry) Get(t reflect.Type) (Converter, bool) {
	if t == nil {
		return nil, false
	}
	if c, ok := r.table.Load().Load(t); ok {
		return c.(Converter), true
	}
	if !isEnum(t) {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	table := r.table.Load()
	if c, ok := table.Load(t); ok {
		return c.(Converter), true
	}
	c := newEnumConverter(t)
	table.Store(t, c)
	return c, true
}

// Has reports whether t has a registered converter or is an enum.
func (r *Registry) Has(t reflect.Type) bool {
	if _, ok := r.table.Load().Load(t); ok {
		return true
	}
	return isEnum(t)
}

// Reset discards custom converters and memoized enum converters and
// restores exactly the built-in set. Named factories are kept.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.table.Store(builtinTable())
}

// Types returns the registered types sorted by name.
func (r *Registry) Types() []reflect.Type {
	var types []reflect.Type
	r.table.Load().Range(func(k, _ any) bool {
		types = append(types, k.(reflect.Type))
		return true
	})
	sort.Slice(types, func(i, j int) bool {
		return types[i].String() < types[j].String()
	})
	return types
}

// RegisterFactory adds a named converter factory.
// Panics if a factory with the same name is already registered.
func (r *Registry) RegisterFactory(name string, f Factory) {
	r.factoriesMu.Lock()
	defer r.factoriesMu.Unlock()

	if _, exists := r.factories[name]; exists {
		panic(fmt.Sprintf("converter factory already registered: %s", name))
	}
	r.factories[name] = f
}

// Factory returns a named converter factory.
func (r *Registry) Factory(name string) (Factory, bool) {
	r.factoriesMu.RLock()
	defer r.factoriesMu.RUnlock()

	f, ok := r.factories[name]
	return f, ok
}

func builtinTable() *sync.Map {
	m := &sync.Map{}
	for t, c := range builtins() {
		m.Store(t, c)
	}
	return m
}
