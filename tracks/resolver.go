package tracks

import (
	ms "github.com/edwinsyarief/moviescene"
	"github.com/edwinsyarief/moviescene/object"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ResolverName is the name the bound-object resolver links under.
const ResolverName = "BoundObjectResolver"

// BoundObjectResolver spawns one child entity per object an imported entity's
// binding resolves to. Children copy every CopyToChildren component of their
// parent and carry the result components the evaluators write.
type BoundObjectResolver struct {
	bindings *object.Bindings
	dirty    map[string]bool
	log      zerolog.Logger
}

// NewBoundObjectResolver creates a resolver over a binding table.
func NewBoundObjectResolver(bindings *object.Bindings) *BoundObjectResolver {
	return &BoundObjectResolver{
		bindings: bindings,
		dirty:    make(map[string]bool),
		log:      log.With().Str("system", ResolverName).Logger(),
	}
}

func (r *BoundObjectResolver) Name() string    { return ResolverName }
func (r *BoundObjectResolver) Phase() ms.Phase { return ms.PhaseSpawn }

// Bindings returns the binding table objects are resolved from.
func (r *BoundObjectResolver) Bindings() *object.Bindings {
	return r.bindings
}

// Invalidate re-resolves every imported entity of a binding on the next
// evaluation, replacing its children.
func (r *BoundObjectResolver) Invalidate(binding string) {
	r.dirty[binding] = true
}

func (r *BoundObjectResolver) IsRelevant(l *ms.Linker) bool {
	b := l.Builtins
	return len(r.dirty) > 0 || l.Entities.Contains(ms.NewFilter(b.ImportedEntity.ID(), b.ObjectBinding.ID(), b.NeedsLink.ID()))
}

func (r *BoundObjectResolver) Run(l *ms.Linker) {
	b := l.Builtins
	type pending struct {
		e       ms.Entity
		binding string
	}
	var parents []pending
	l.Entities.Query(ms.NewFilter(b.ImportedEntity.ID(), b.ObjectBinding.ID()).None(b.NeedsUnlink.ID())).ForEachAllocation(func(a *ms.Allocation) {
		fresh := a.Has(b.NeedsLink.ID())
		ids := ms.Column(a, b.ObjectBinding)
		for i, e := range a.Entities() {
			if fresh || r.dirty[ids[i]] {
				parents = append(parents, pending{e: e, binding: ids[i]})
			}
		}
	})
	clear(r.dirty)

	for _, p := range parents {
		for _, child := range l.Children(p.e) {
			l.MarkForUnlink(child)
		}
		objs := r.bindings.Resolve(p.binding)
		spawned := 0
		for _, obj := range objs {
			if object.IsGarbage(obj) {
				continue
			}
			r.spawnChild(l, p.e, obj)
			spawned++
		}
		if spawned == 0 {
			r.log.Warn().Str("binding", p.binding).Msg("object binding resolved to no live objects")
		}
	}
}

func (r *BoundObjectResolver) spawnChild(l *ms.Linker, parent ms.Entity, obj any) ms.Entity {
	return SpawnChild(l, parent, func(builder *ms.EntityBuilder) {
		ms.With(builder, l.Builtins.BoundObject, obj)
	})
}

// SpawnChild creates a linked child of parent that inherits the parent's
// CopyToChildren components and carries the results its channels produce.
// decorate adds whatever is specific to the child.
func SpawnChild(l *ms.Linker, parent ms.Entity, decorate func(*ms.EntityBuilder)) ms.Entity {
	b := l.Builtins
	m := l.Entities
	parentMask := m.ComponentMaskOf(parent)
	inherited := parentMask.Intersect(l.Registry.MaskWithFlags(ms.FlagCopyToChildren))

	builder := ms.NewEntityBuilder().AddTag(b.NeedsLink).AddMask(inherited).AddMask(ResultMask(l, parentMask))
	ms.With(builder, b.ParentEntity, parent)
	decorate(builder)
	child := builder.Create(m)
	m.CopyComponents(parent, child, inherited)
	l.AddChild(parent, child)
	return child
}
