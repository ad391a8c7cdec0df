// Package property defines the animatable property shapes, decides for every
// animated (object, property) pair whether it is applied directly or blended,
// and writes the evaluated values back onto the bound objects.
package property

import (
	"reflect"
	"unsafe"

	ms "github.com/edwinsyarief/moviescene"
	"github.com/edwinsyarief/moviescene/object"
	"github.com/edwinsyarief/moviescene/preanim"
)

// MaxComposites is the largest number of scalar composites a property may
// have. Float composites are tracked in a 32-bit mask and map onto the
// built-in double channels.
const MaxComposites = min(32, ms.NumDoubleChannels)

// Composite is one scalar channel of a property: composite i is animated by
// DoubleChannel[i] and stored at Offset inside the operational value.
type Composite struct {
	Name   string
	Offset uintptr
}

// PropertyStats counts the live instances of a definition.
type PropertyStats struct {
	NumProperties        int
	NumPartialProperties int
}

// Converter converts between a property's host type and the operational type
// it is decomposed and blended in.
type Converter[P, O any] struct {
	ToOperational   func(P) O
	FromOperational func(O) P
}

// IdentityConverter is the converter of properties whose host and operational
// types are the same.
func IdentityConverter[T any]() Converter[T, T] {
	id := func(v T) T { return v }
	return Converter[T, T]{ToOperational: id, FromOperational: id}
}

// PropertyDefinition is the type-erased part of a definition. It is immutable
// once committed, except for its statistics.
type PropertyDefinition struct {
	Index              int
	Name               string
	Tag                ms.TagType
	InitialValueID     ms.ComponentTypeID
	PreAnimatedValueID ms.ComponentTypeID
	Composites         []Composite
	FloatCompositeMask uint32
	Blendable          bool
	Stats              PropertyStats

	ops operations
}

// IsPartial reports whether an animated composite mask leaves some of the
// definition's composites unanimated.
func (d *PropertyDefinition) IsPartial(animated uint32) bool {
	return d.FloatCompositeMask != 0 && animated&d.FloatCompositeMask != d.FloatCompositeMask
}

// operations is the per-shape behavior of a definition, implemented by
// Definition[P, O].
type operations interface {
	resolve(r *object.Resolver, obj any, path string) object.Resolution
	readObject(r *object.Resolver, obj any, res object.Resolution) (any, bool)
	defaultValue() any
	setInitial(m *ms.EntityManager, e ms.Entity, v any)
	apply(l *ms.Linker, r *object.Resolver, acc *Accessors)
	cache(l *ms.Linker, r *object.Resolver, acc *Accessors, ext *preanim.Extension)
}

// Definition is a committed property definition with its typed components.
type Definition[P, O any] struct {
	*PropertyDefinition
	InitialValue     ms.ComponentType[O]
	PreAnimatedValue ms.ComponentType[P]

	convert    Converter[P, O]
	fallback   O
	boolResult bool
}

// ToOperational converts a host value.
func (d *Definition[P, O]) ToOperational(v P) O {
	return d.convert.ToOperational(v)
}

// FromOperational converts an operational value.
func (d *Definition[P, O]) FromOperational(v O) P {
	return d.convert.FromOperational(v)
}

// Default returns the value used when a property has no initial value.
func (d *Definition[P, O]) Default() O {
	return d.fallback
}

// Composite returns composite c of an operational value.
func (d *Definition[P, O]) Composite(v *O, c int) float64 {
	return *(*float64)(unsafe.Add(unsafe.Pointer(v), d.Composites[c].Offset))
}

// SetComposite writes composite c of an operational value.
func (d *Definition[P, O]) SetComposite(v *O, c int, f float64) {
	*(*float64)(unsafe.Add(unsafe.Pointer(v), d.Composites[c].Offset)) = f
}

// Registry is the catalog of property definitions. Definitions are added at
// startup and never removed.
type Registry struct {
	components *ms.ComponentRegistry
	builtins   *ms.BuiltInComponents
	accessors  *Accessors
	defs       []*PropertyDefinition
	byTag      map[ms.ComponentTypeID]*PropertyDefinition
}

// NewRegistry creates an empty registry and registers the accessor components.
func NewRegistry(components *ms.ComponentRegistry, builtins *ms.BuiltInComponents) *Registry {
	return &Registry{
		components: components,
		builtins:   builtins,
		accessors:  newAccessors(components),
		byTag:      make(map[ms.ComponentTypeID]*PropertyDefinition),
	}
}

// Builtins returns the built-in components the registry was created with.
func (r *Registry) Builtins() *ms.BuiltInComponents {
	return r.builtins
}

// Accessors returns the accessor components.
func (r *Registry) Accessors() *Accessors {
	return r.accessors
}

// Definitions returns every definition in registration order.
func (r *Registry) Definitions() []*PropertyDefinition {
	return r.defs
}

// GetComposites returns the composites of a definition.
func (r *Registry) GetComposites(index int) []Composite {
	return r.defs[index].Composites
}

// Find returns a definition by name.
func (r *Registry) Find(name string) *PropertyDefinition {
	for _, d := range r.defs {
		if d.Name == name {
			return d
		}
	}
	return nil
}

// DefinitionOf returns the definition whose tag is in mask.
func (r *Registry) DefinitionOf(mask ms.ComponentMask) *PropertyDefinition {
	for _, d := range r.defs {
		if mask.Contains(d.Tag.ID()) {
			return d
		}
	}
	return nil
}

// Builder configures a definition before it is committed.
type Builder[P, O any] struct {
	r   *Registry
	def *Definition[P, O]
}

// DefineProperty starts the definition of a property shape with host type P
// and operational type O. Its tag, initial-value and pre-animated-value
// components are registered immediately.
func DefineProperty[P, O any](r *Registry, name string, conv Converter[P, O]) *Builder[P, O] {
	def := &Definition[P, O]{
		PropertyDefinition: &PropertyDefinition{
			Index:     len(r.defs),
			Name:      name,
			Blendable: true,
		},
		convert: conv,
	}
	def.Tag = ms.NewTag(r.components, name+"Property", ms.FlagCopyToChildren)
	def.InitialValue = ms.NewComponentType[O](r.components, name+"InitialValue")
	def.PreAnimatedValue = ms.NewComponentType[P](r.components, name+"PreAnimatedValue")
	def.InitialValueID = def.InitialValue.ID()
	def.PreAnimatedValueID = def.PreAnimatedValue.ID()
	def.ops = def
	return &Builder[P, O]{r: r, def: def}
}

// AddComposite appends a float64 composite stored at offset in O.
func (b *Builder[P, O]) AddComposite(name string, offset uintptr) *Builder[P, O] {
	n := len(b.def.Composites)
	if !ms.Ensure(n < MaxComposites, "too many composites for property "+b.def.Name) {
		return b
	}
	if !ms.Ensure(offset+8 <= reflect.TypeFor[O]().Size(), "composite offset outside operational type of "+b.def.Name) {
		return b
	}
	b.def.Composites = append(b.def.Composites, Composite{Name: name, Offset: offset})
	b.def.FloatCompositeMask |= 1 << n
	return b
}

// SetDefault sets the operational value used when no object provides an
// initial value.
func (b *Builder[P, O]) SetDefault(v O) *Builder[P, O] {
	b.def.fallback = v
	return b
}

// NonBlendable marks the property as never blended: the last contributor of
// the highest bias wins.
func (b *Builder[P, O]) NonBlendable() *Builder[P, O] {
	b.def.Blendable = false
	return b
}

// Commit registers the definition.
func (b *Builder[P, O]) Commit() *Definition[P, O] {
	var zero O
	if _, ok := any(zero).(bool); ok && len(b.def.Composites) == 0 {
		b.def.boolResult = true
	}
	b.r.defs = append(b.r.defs, b.def.PropertyDefinition)
	b.r.byTag[b.def.Tag.ID()] = b.def.PropertyDefinition
	return b.def
}

func (d *Definition[P, O]) resolve(r *object.Resolver, obj any, path string) object.Resolution {
	return object.Resolve[P](r, obj, path)
}

func (d *Definition[P, O]) readObject(r *object.Resolver, obj any, res object.Resolution) (any, bool) {
	v, ok := object.Get[P](r, obj, res)
	if !ok {
		return nil, false
	}
	return d.convert.ToOperational(v), true
}

// Current returns the operational value obj currently holds at path, or the
// definition default when obj is nil or the path does not resolve.
func (d *Definition[P, O]) Current(r *object.Resolver, obj any, path string) O {
	if obj == nil {
		return d.fallback
	}
	if v, ok := d.readObject(r, obj, d.resolve(r, obj, path)); ok {
		return v.(O)
	}
	return d.fallback
}

func (d *Definition[P, O]) defaultValue() any {
	return d.fallback
}

func (d *Definition[P, O]) setInitial(m *ms.EntityManager, e ms.Entity, v any) {
	ms.SetComponent(m, e, d.InitialValue, v.(O))
}

// assemble overwrites every animated composite of v with the evaluated result
// of entity i.
func (d *Definition[P, O]) assemble(b *ms.BuiltInComponents, a *ms.Allocation, i int, v *O) {
	if d.boolResult {
		if col := ms.Column(a, b.BoolResult); col != nil {
			*(*bool)(unsafe.Pointer(v)) = col[i]
		}
		return
	}
	for c := range d.Composites {
		if col := ms.Column(a, b.DoubleResult[c]); col != nil {
			d.SetComposite(v, c, col[i])
		}
	}
}

// Evaluated returns the value an entity currently evaluates to, starting from
// its initial value or the definition default.
func (d *Definition[P, O]) Evaluated(m *ms.EntityManager, b *ms.BuiltInComponents, e ms.Entity) O {
	v, ok := ms.ReadComponent(m, e, d.InitialValue)
	if !ok {
		v = d.fallback
	}
	if d.boolResult {
		if r, ok := ms.ReadComponent(m, e, b.BoolResult); ok {
			*(*bool)(unsafe.Pointer(&v)) = r
		}
		return v
	}
	for c := range d.Composites {
		if r, ok := ms.ReadComponent(m, e, b.DoubleResult[c]); ok {
			d.SetComposite(&v, c, r)
		}
	}
	return v
}
