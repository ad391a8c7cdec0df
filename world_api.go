package moviescene

// ComponentPtr returns a pointer to the component of type T for the entity, or
// nil if the entity is stale or does not carry the component.
func ComponentPtr[T any](m *EntityManager, e Entity, ct ComponentType[T]) *T {
	ptr := m.componentPtr(e, ct.id)
	if ptr == nil {
		return nil
	}
	return (*T)(ptr)
}

// ReadComponent returns a copy of the component value and whether it was present.
func ReadComponent[T any](m *EntityManager, e Entity, ct ComponentType[T]) (T, bool) {
	if p := ComponentPtr(m, e, ct); p != nil {
		return *p, true
	}
	var zero T
	return zero, false
}

// WriteComponent overwrites an existing component value. It returns false if
// the entity does not carry the component; it never adds one.
func WriteComponent[T any](m *EntityManager, e Entity, ct ComponentType[T], val T) bool {
	p := ComponentPtr(m, e, ct)
	if p == nil {
		return false
	}
	*p = val
	return true
}

// SetComponent sets the component of type T on the entity, adding it if not
// present. Adding is a structural change.
func SetComponent[T any](m *EntityManager, e Entity, ct ComponentType[T], val T) bool {
	if WriteComponent(m, e, ct, val) {
		return true
	}
	if !m.IsAlive(e) {
		return false
	}
	m.AddComponent(e, ct.id)
	return WriteComponent(m, e, ct, val)
}

// HasTag reports whether the entity carries the tag.
func (m *EntityManager) HasTag(e Entity, t TagType) bool {
	return m.HasComponent(e, t.id)
}
