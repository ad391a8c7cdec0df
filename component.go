package moviescene

import (
	"fmt"
	"reflect"
	"sync"
)

// MaxComponentTypes defines the maximum number of unique component types that can be
// registered in a ComponentRegistry. This value is fixed at 256.
const MaxComponentTypes = 256

// ComponentTypeID is a small integer identifying a registered component type.
type ComponentTypeID uint8

// ComponentFlags describe how a component type behaves during structural changes.
type ComponentFlags uint8

const (
	// FlagNone marks a plain component.
	FlagNone ComponentFlags = 0
	// FlagCopyToChildren copies the component from an import entity onto every
	// child entity created for a resolved bound object.
	FlagCopyToChildren ComponentFlags = 1 << iota
	// FlagMigrateToOutput copies the component from a fast-path contributor onto
	// a freshly created blend output entity.
	FlagMigrateToOutput
	// FlagTag marks a component with no payload. Tags only exist in the mask.
	FlagTag
)

// componentInfo describes one registered component type.
type componentInfo struct {
	name  string
	typ   reflect.Type
	size  uintptr
	flags ComponentFlags
}

// ComponentRegistry is the explicit catalog of component types. It is built once
// at startup and passed to every entity manager, system and test that needs it.
// Component types are never unregistered.
type ComponentRegistry struct {
	mu     sync.RWMutex
	infos  []componentInfo
	byName map[string]ComponentTypeID
}

// NewComponentRegistry creates an empty registry.
func NewComponentRegistry() *ComponentRegistry {
	return &ComponentRegistry{
		infos:  make([]componentInfo, 0, 64),
		byName: make(map[string]ComponentTypeID, 64),
	}
}

func (r *ComponentRegistry) register(name string, typ reflect.Type, flags ComponentFlags) ComponentTypeID {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; ok {
		panic(fmt.Sprintf("ecs: component type %q already registered", name))
	}
	if len(r.infos) >= MaxComponentTypes {
		panic(fmt.Sprintf("ecs: cannot register component %s: maximum number of component types (%d) reached", name, MaxComponentTypes))
	}
	id := ComponentTypeID(len(r.infos))
	info := componentInfo{name: name, typ: typ, flags: flags}
	if typ != nil {
		info.size = typ.Size()
	}
	if info.size == 0 {
		info.flags |= FlagTag
	}
	r.infos = append(r.infos, info)
	r.byName[name] = id
	return id
}

// Num returns the number of registered component types.
func (r *ComponentRegistry) Num() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.infos)
}

// Name returns the debug name of a component type.
func (r *ComponentRegistry) Name(id ComponentTypeID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.infos) {
		return fmt.Sprintf("<invalid:%d>", id)
	}
	return r.infos[id].name
}

// Lookup finds a component type by name.
func (r *ComponentRegistry) Lookup(name string) (ComponentTypeID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byName[name]
	return id, ok
}

// Flags returns the behavior flags of a component type.
func (r *ComponentRegistry) Flags(id ComponentTypeID) ComponentFlags {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.infos[id].flags
}

// IsTag reports whether the component type carries no payload.
func (r *ComponentRegistry) IsTag(id ComponentTypeID) bool {
	return r.Flags(id)&FlagTag != 0
}

// MaskWithFlags returns every registered component type carrying all of flags.
func (r *ComponentRegistry) MaskWithFlags(flags ComponentFlags) ComponentMask {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var m ComponentMask
	for i, info := range r.infos {
		if info.flags&flags == flags {
			m.Set(ComponentTypeID(i))
		}
	}
	return m
}

func (r *ComponentRegistry) info(id ComponentTypeID) componentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.infos[id]
}

// ComponentType is a typed handle to a registered component type. Several
// handles may share a Go type (e.g. one float64 result per composite channel);
// identity is the registry-assigned ID, not the Go type.
type ComponentType[T any] struct {
	id    ComponentTypeID
	valid bool
}

// NewComponentType registers a component type carrying values of type T.
func NewComponentType[T any](r *ComponentRegistry, name string, flags ...ComponentFlags) ComponentType[T] {
	var f ComponentFlags
	for _, fl := range flags {
		f |= fl
	}
	id := r.register(name, reflect.TypeFor[T](), f)
	return ComponentType[T]{id: id, valid: true}
}

// ID returns the registry ID of the component type.
func (c ComponentType[T]) ID() ComponentTypeID {
	return c.id
}

// Valid reports whether the handle was produced by a registry.
func (c ComponentType[T]) Valid() bool {
	return c.valid
}

// TagType is a handle to a component type with no payload.
type TagType struct {
	id    ComponentTypeID
	valid bool
}

// NewTag registers a tag component.
func NewTag(r *ComponentRegistry, name string, flags ...ComponentFlags) TagType {
	f := FlagTag
	for _, fl := range flags {
		f |= fl
	}
	id := r.register(name, nil, f)
	return TagType{id: id, valid: true}
}

// ID returns the registry ID of the tag.
func (t TagType) ID() ComponentTypeID {
	return t.id
}

// Valid reports whether the handle was produced by a registry.
func (t TagType) Valid() bool {
	return t.valid
}
