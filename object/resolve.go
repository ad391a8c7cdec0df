// Package object is the host object model animated properties are applied to.
// It resolves property paths on plain Go structs into one of three bindings:
//
//   - custom: an accessor registered for (object type, path)
//   - fast: a byte offset to an exported field of exactly the property type
//   - slow: reflection through a SetX/GetX method pair or a convertible field
//
// A path that resolves to none of them is reported once and left unresolved.
package object

import (
	"reflect"
	"strings"
	"sync"
	"unsafe"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

// IndexNone marks a missing custom accessor index.
const IndexNone = -1

// Kind is the kind of binding a property path resolved to.
type Kind uint8

const (
	Unresolved Kind = iota
	Fast
	Custom
	Slow
)

func (k Kind) String() string {
	switch k {
	case Fast:
		return "fast"
	case Custom:
		return "custom"
	case Slow:
		return "slow"
	}
	return "unresolved"
}

var (
	ErrNotPointer     = eris.New("object is not a pointer to a struct")
	ErrNoSuchProperty = eris.New("no such property")
	ErrTypeMismatch   = eris.New("property type mismatch")
)

// Resolution is the outcome of resolving a property path on an object type.
type Resolution struct {
	Kind        Kind
	FieldOffset uintptr
	CustomIndex int
	Slow        *SlowProperty
}

// Unresolved reports whether the path failed to resolve.
func (r Resolution) Unresolved() bool {
	return r.Kind == Unresolved
}

type accessorKey struct {
	typ  reflect.Type
	path string
}

type customAccessor struct {
	propType reflect.Type
	get      any // func(obj any) P
	set      any // func(obj any, v P)
}

// Accessors is the registry of custom property accessors.
type Accessors struct {
	mu    sync.RWMutex
	list  []customAccessor
	index map[accessorKey]int
}

// NewAccessors creates an empty accessor registry.
func NewAccessors() *Accessors {
	return &Accessors{index: make(map[accessorKey]int)}
}

// RegisterAccessor registers a custom getter/setter pair for a property path on
// objects of type objType. It returns the accessor index.
func RegisterAccessor[P any](a *Accessors, objType reflect.Type, path string, get func(obj any) P, set func(obj any, v P)) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := accessorKey{objType, path}
	acc := customAccessor{propType: reflect.TypeFor[P](), get: get, set: set}
	if idx, ok := a.index[key]; ok {
		a.list[idx] = acc
		return idx
	}
	a.list = append(a.list, acc)
	a.index[key] = len(a.list) - 1
	return len(a.list) - 1
}

func (a *Accessors) find(objType reflect.Type, path string, propType reflect.Type) int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if idx, ok := a.index[accessorKey{objType, path}]; ok && a.list[idx].propType == propType {
		return idx
	}
	return IndexNone
}

func customFuncs[P any](a *Accessors, index int) (func(any) P, func(any, P), bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if index < 0 || index >= len(a.list) {
		return nil, nil, false
	}
	get, ok1 := a.list[index].get.(func(any) P)
	set, ok2 := a.list[index].set.(func(any, P))
	return get, set, ok1 && ok2
}

// resolveCache remembers resolutions per (object type, path, property type).
type resolveKey struct {
	objType  reflect.Type
	path     string
	propType reflect.Type
}

// Resolver resolves property paths and caches the results per object type.
type Resolver struct {
	accessors *Accessors
	mu        sync.Mutex
	cache     map[resolveKey]Resolution
	warned    map[resolveKey]bool
}

// NewResolver creates a resolver using the given custom accessors.
func NewResolver(accessors *Accessors) *Resolver {
	if accessors == nil {
		accessors = NewAccessors()
	}
	return &Resolver{
		accessors: accessors,
		cache:     make(map[resolveKey]Resolution),
		warned:    make(map[resolveKey]bool),
	}
}

// Accessors returns the custom accessor registry.
func (r *Resolver) Accessors() *Accessors {
	return r.accessors
}

// Resolve finds the binding for a property of type P at path on obj.
// Resolving the same (type, path) again returns the cached result.
func Resolve[P any](r *Resolver, obj any, path string) Resolution {
	propType := reflect.TypeFor[P]()
	objType := reflect.TypeOf(obj)
	key := resolveKey{objType, path, propType}

	r.mu.Lock()
	defer r.mu.Unlock()
	if res, ok := r.cache[key]; ok {
		return res
	}
	res := resolveUncached(r.accessors, objType, path, propType)
	r.cache[key] = res
	if res.Unresolved() && !r.warned[key] {
		r.warned[key] = true
		log.Warn().Str("path", path).Stringer("object", typeStringer{objType}).Stringer("type", typeStringer{propType}).Msg("property did not resolve")
	}
	return res
}

type typeStringer struct{ t reflect.Type }

func (s typeStringer) String() string {
	if s.t == nil {
		return "<nil>"
	}
	return s.t.String()
}

func resolveUncached(a *Accessors, objType reflect.Type, path string, propType reflect.Type) Resolution {
	if objType == nil {
		return Resolution{CustomIndex: IndexNone}
	}
	if idx := a.find(objType, path, propType); idx != IndexNone {
		return Resolution{Kind: Custom, CustomIndex: idx}
	}
	if objType.Kind() != reflect.Pointer || objType.Elem().Kind() != reflect.Struct {
		return Resolution{CustomIndex: IndexNone}
	}
	if off, ok := fieldOffset(objType.Elem(), path, propType); ok {
		return Resolution{Kind: Fast, FieldOffset: off, CustomIndex: IndexNone}
	}
	if slow := newSlowProperty(objType, path, propType); slow != nil {
		return Resolution{Kind: Slow, CustomIndex: IndexNone, Slow: slow}
	}
	return Resolution{CustomIndex: IndexNone}
}

// fieldOffset walks a dotted path of exported, directly embedded struct fields.
func fieldOffset(t reflect.Type, path string, propType reflect.Type) (uintptr, bool) {
	var off uintptr
	parts := strings.Split(path, ".")
	for i, name := range parts {
		if t.Kind() != reflect.Struct {
			return 0, false
		}
		f, ok := t.FieldByName(name)
		if !ok || !f.IsExported() || len(f.Index) != 1 {
			return 0, false
		}
		off += f.Offset
		t = f.Type
		if i == len(parts)-1 {
			return off, t == propType
		}
	}
	return 0, false
}

// Get reads a property through a resolution.
func Get[P any](r *Resolver, obj any, res Resolution) (P, bool) {
	var zero P
	switch res.Kind {
	case Fast:
		return *(*P)(fieldPtr(obj, res.FieldOffset)), true
	case Custom:
		get, _, ok := customFuncs[P](r.accessors, res.CustomIndex)
		if !ok || get == nil {
			return zero, false
		}
		return get(obj), true
	case Slow:
		v, ok := res.Slow.Get(obj)
		if !ok {
			return zero, false
		}
		return v.Interface().(P), true
	}
	return zero, false
}

// Set writes a property through a resolution.
func Set[P any](r *Resolver, obj any, res Resolution, v P) bool {
	switch res.Kind {
	case Fast:
		*(*P)(fieldPtr(obj, res.FieldOffset)) = v
		return true
	case Custom:
		_, set, ok := customFuncs[P](r.accessors, res.CustomIndex)
		if !ok || set == nil {
			return false
		}
		set(obj, v)
		return true
	case Slow:
		return res.Slow.Set(obj, reflect.ValueOf(v))
	}
	return false
}

func fieldPtr(obj any, off uintptr) unsafe.Pointer {
	return unsafe.Add(reflect.ValueOf(obj).UnsafePointer(), off)
}
