package moviescene

import "unsafe"

// EntityBuilder accumulates a component mask and initial component values and
// creates entities with them in a single structural change. It is the import
// path used by sections: a section describes its contribution by adding
// components to a builder.
type EntityBuilder struct {
	mask   ComponentMask
	values []builderValue
}

type builderValue struct {
	id  ComponentTypeID
	set func(ptr unsafe.Pointer)
}

// NewEntityBuilder creates an empty builder.
func NewEntityBuilder() *EntityBuilder {
	return &EntityBuilder{}
}

// AddTag adds a tag to the built entities.
func (b *EntityBuilder) AddTag(t TagType) *EntityBuilder {
	b.mask.Set(t.id)
	return b
}

// AddTagConditional adds a tag when cond is true.
func (b *EntityBuilder) AddTagConditional(t TagType, cond bool) *EntityBuilder {
	if cond {
		b.mask.Set(t.id)
	}
	return b
}

// AddMask adds every component of m with zero values.
func (b *EntityBuilder) AddMask(m ComponentMask) *EntityBuilder {
	b.mask = b.mask.Union(m)
	return b
}

// Mask returns the mask the builder will create entities with.
func (b *EntityBuilder) Mask() ComponentMask {
	return b.mask
}

// With adds a component with an initial value. A later value for the same
// component replaces an earlier one.
func With[T any](b *EntityBuilder, ct ComponentType[T], val T) *EntityBuilder {
	b.mask.Set(ct.id)
	for i := range b.values {
		if b.values[i].id == ct.id {
			b.values = append(b.values[:i], b.values[i+1:]...)
			break
		}
	}
	b.values = append(b.values, builderValue{
		id:  ct.id,
		set: func(ptr unsafe.Pointer) { *(*T)(ptr) = val },
	})
	return b
}

// WithConditional adds a component with an initial value when cond is true.
func WithConditional[T any](b *EntityBuilder, ct ComponentType[T], val T, cond bool) *EntityBuilder {
	if cond {
		With(b, ct, val)
	}
	return b
}

// Create creates a new entity in m with the builder's components.
func (b *EntityBuilder) Create(m *EntityManager) Entity {
	e := m.CreateEntity(b.mask)
	if !e.IsValid() {
		return e
	}
	b.apply(m, e)
	return e
}

// Apply adds the builder's components to an existing entity and writes its
// initial values.
func (b *EntityBuilder) Apply(m *EntityManager, e Entity) {
	m.AddComponents(e, b.mask)
	b.apply(m, e)
}

func (b *EntityBuilder) apply(m *EntityManager, e Entity) {
	for _, v := range b.values {
		if ptr := m.componentPtr(e, v.id); ptr != nil {
			v.set(ptr)
		}
	}
}

// CreateDeferred queues the creation of an entity on a command buffer. done,
// if non-nil, receives the entity once it is created.
func (b *EntityBuilder) CreateDeferred(cb *CommandBuffer, done func(Entity)) {
	cb.Add(func(m *EntityManager) {
		e := b.Create(m)
		if done != nil {
			done(e)
		}
	})
}
