package property

import (
	ms "github.com/edwinsyarief/moviescene"
	"github.com/edwinsyarief/moviescene/object"
)

// Accessors are the components that tell the setter how to write a resolved
// property. An entity carries at most one of them, and only while it is the
// entity that writes the property.
type Accessors struct {
	FastPropertyOffset  ms.ComponentType[uintptr]
	CustomPropertyIndex ms.ComponentType[int]
	SlowProperty        ms.ComponentType[*object.SlowProperty]
}

func newAccessors(r *ms.ComponentRegistry) *Accessors {
	return &Accessors{
		FastPropertyOffset:  ms.NewComponentType[uintptr](r, "FastPropertyOffset"),
		CustomPropertyIndex: ms.NewComponentType[int](r, "CustomPropertyIndex"),
		SlowProperty:        ms.NewComponentType[*object.SlowProperty](r, "SlowProperty"),
	}
}

// Mask returns the mask of every accessor component.
func (a *Accessors) Mask() ms.ComponentMask {
	return ms.MaskOf(a.FastPropertyOffset.ID(), a.CustomPropertyIndex.ID(), a.SlowProperty.ID())
}

// set gives e the accessor matching res, replacing any other.
func (a *Accessors) set(m *ms.EntityManager, e ms.Entity, res object.Resolution) {
	m.RemoveComponents(e, a.Mask())
	switch res.Kind {
	case object.Fast:
		ms.SetComponent(m, e, a.FastPropertyOffset, res.FieldOffset)
	case object.Custom:
		ms.SetComponent(m, e, a.CustomPropertyIndex, res.CustomIndex)
	case object.Slow:
		ms.SetComponent(m, e, a.SlowProperty, res.Slow)
	}
}

func (a *Accessors) remove(m *ms.EntityManager, e ms.Entity) {
	if m.IsAlive(e) {
		m.RemoveComponents(e, a.Mask())
	}
}

// resolution rebuilds the resolution stored on entity i of an allocation.
func (a *Accessors) resolution(alloc *ms.Allocation, i int) object.Resolution {
	if col := ms.Column(alloc, a.FastPropertyOffset); col != nil {
		return object.Resolution{Kind: object.Fast, FieldOffset: col[i], CustomIndex: object.IndexNone}
	}
	if col := ms.Column(alloc, a.CustomPropertyIndex); col != nil {
		return object.Resolution{Kind: object.Custom, CustomIndex: col[i]}
	}
	if col := ms.Column(alloc, a.SlowProperty); col != nil {
		return object.Resolution{Kind: object.Slow, CustomIndex: object.IndexNone, Slow: col[i]}
	}
	return object.Resolution{CustomIndex: object.IndexNone}
}
