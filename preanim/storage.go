package preanim

// Storage captures and restores one kind of value on objects of any type,
// such as a scene component's mobility or attach parent.
type Storage[V any] struct {
	name string
	get  func(obj any) V
	set  func(obj any, v V)
}

// NewStorage creates a typed storage. name must be unique among storages
// sharing an extension.
func NewStorage[V any](name string, get func(obj any) V, set func(obj any, v V)) *Storage[V] {
	return &Storage[V]{name: name, get: get, set: set}
}

// Name returns the storage name.
func (s *Storage[V]) Name() string {
	return s.name
}

// Key returns the extension key of obj in this storage.
func (s *Storage[V]) Key(obj any) Key {
	return Key{Object: obj, Storage: s.name}
}

// Cache captures the current value of obj unless it is already tracked.
func (s *Storage[V]) Cache(x *Extension, obj any) bool {
	return x.Cache(s.Key(obj), func() (any, func()) {
		v := s.get(obj)
		return v, func() { s.set(obj, v) }
	})
}

// CacheValue captures a value known to be the original one.
func (s *Storage[V]) CacheValue(x *Extension, obj any, v V) bool {
	return x.Cache(s.Key(obj), func() (any, func()) {
		return v, func() { s.set(obj, v) }
	})
}

// Value returns the captured value of obj.
func (s *Storage[V]) Value(x *Extension, obj any) (V, bool) {
	v, ok := x.Value(s.Key(obj))
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

// RequestRestore schedules obj to be restored at the next flush.
func (s *Storage[V]) RequestRestore(x *Extension, obj any) bool {
	return x.RequestRestore(s.Key(obj))
}
