package property

import (
	ms "github.com/edwinsyarief/moviescene"
	"github.com/edwinsyarief/moviescene/object"
	"github.com/edwinsyarief/moviescene/preanim"
)

// SetterName is the name the setter system links under.
const SetterName = "PropertySetter"

// Setter writes evaluated property values onto bound objects. It runs on the
// calling goroutine: host objects are not safe for concurrent writes.
type Setter struct {
	registry *Registry
	resolver *object.Resolver
}

// NewSetter creates the setter for every definition of r.
func NewSetter(r *Registry, resolver *object.Resolver) *Setter {
	return &Setter{registry: r, resolver: resolver}
}

func (s *Setter) Name() string    { return SetterName }
func (s *Setter) Phase() ms.Phase { return ms.PhaseFinalization }

// OnLink declares the setter a consumer of every result component.
func (s *Setter) OnLink(l *ms.Linker) {
	b := l.Builtins
	for c := range ms.NumDoubleChannels {
		l.Systems.DefineComponentConsumer(SetterName, b.DoubleResult[c].ID())
	}
	l.Systems.DefineComponentConsumer(SetterName, b.BoolResult.ID())
}

func (s *Setter) IsRelevant(l *ms.Linker) bool {
	return l.Entities.Contains(ms.NewFilter(l.Builtins.BoundObject.ID()).AnyMask(s.registry.accessors.Mask()))
}

func (s *Setter) Run(l *ms.Linker) {
	for _, def := range s.registry.defs {
		def.ops.apply(l, s.resolver, s.registry.accessors)
	}
}

// writerFilter matches the entities that write a property of d: the fast
// path contributor or the blend output, never a blend input.
func (d *PropertyDefinition) writerFilter(b *ms.BuiltInComponents, acc *Accessors) ms.Filter {
	return ms.NewFilter(d.Tag.ID(), b.BoundObject.ID()).
		AnyMask(acc.Mask()).
		None(b.BlendChannelInput.ID(), b.Ignored.ID(), b.NeedsUnlink.ID())
}

func (d *Definition[P, O]) apply(l *ms.Linker, r *object.Resolver, acc *Accessors) {
	b := l.Builtins
	l.Entities.Query(d.writerFilter(b, acc)).ForEachAllocation(func(a *ms.Allocation) {
		objs := ms.Column(a, b.BoundObject)
		initial := ms.Column(a, d.InitialValue)
		for i := range a.Num() {
			if objs[i] == nil {
				continue
			}
			v := d.fallback
			if initial != nil {
				v = initial[i]
			}
			d.assemble(b, a, i, &v)
			object.Set(r, objs[i], acc.resolution(a, i), d.convert.FromOperational(v))
		}
	})
}

func (d *Definition[P, O]) cache(l *ms.Linker, r *object.Resolver, acc *Accessors, ext *preanim.Extension) {
	b := l.Builtins
	filter := ms.NewFilter(d.Tag.ID(), b.CachePreAnimatedValue.ID(), b.BoundObject.ID(), b.PropertyBinding.ID()).AnyMask(acc.Mask())
	var done []ms.Entity
	l.Entities.Query(filter).ForEachAllocation(func(a *ms.Allocation) {
		objs := ms.Column(a, b.BoundObject)
		bindings := ms.Column(a, b.PropertyBinding)
		initial := ms.Column(a, d.InitialValue)
		for i, e := range a.Entities() {
			done = append(done, e)
			obj := objs[i]
			if obj == nil {
				continue
			}
			res := acc.resolution(a, i)
			v := d.fallback
			if initial != nil {
				v = initial[i]
			}
			value := d.convert.FromOperational(v)
			ext.Cache(PreAnimatedKey(d.PropertyDefinition, obj, bindings[i].Path), func() (any, func()) {
				return value, func() { object.Set(r, obj, res, value) }
			})
		}
	})
	for _, e := range done {
		if v, ok := ext.Value(PreAnimatedKey(d.PropertyDefinition, readObject(l, e), readPath(l, e))); ok {
			ms.SetComponent(l.Entities, e, d.PreAnimatedValue, v.(P))
		}
		l.Entities.RemoveComponent(e, b.CachePreAnimatedValue.ID())
	}
}

func readObject(l *ms.Linker, e ms.Entity) any {
	obj, _ := ms.ReadComponent(l.Entities, e, l.Builtins.BoundObject)
	return obj
}

func readPath(l *ms.Linker, e ms.Entity) string {
	binding, _ := ms.ReadComponent(l.Entities, e, l.Builtins.PropertyBinding)
	return binding.Path
}
