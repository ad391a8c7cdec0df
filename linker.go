package moviescene

import (
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Linker owns an entity manager and the graph of systems that evaluate it.
// One Evaluate call runs every phase in order with sync points in between.
type Linker struct {
	name       string
	Registry   *ComponentRegistry
	Builtins   *BuiltInComponents
	Entities   *EntityManager
	Systems    *SystemGraph
	Events     *EventBus
	Commands   *CommandBuffer
	Extensions Extensions

	children map[Entity][]Entity
	parents  map[Entity]Entity
	frame    uint64
	log      zerolog.Logger
}

// NewLinker creates a linker over a fresh entity manager.
func NewLinker(name string, registry *ComponentRegistry, builtins *BuiltInComponents) *Linker {
	return &Linker{
		name:     name,
		Registry: registry,
		Builtins: builtins,
		Entities: NewEntityManager(registry, 1024),
		Systems:  NewSystemGraph(),
		Events:   &EventBus{},
		Commands: NewCommandBuffer(),
		children: make(map[Entity][]Entity),
		parents:  make(map[Entity]Entity),
		log:      log.With().Str("linker", name).Logger(),
	}
}

// Name returns the debug name of the linker.
func (l *Linker) Name() string {
	return l.name
}

// Logger returns the linker-scoped logger.
func (l *Linker) Logger() *zerolog.Logger {
	return &l.log
}

// Frame returns the number of completed evaluation passes.
func (l *Linker) Frame() uint64 {
	return l.frame
}

// LinkSystem adds a system to the graph.
func (l *Linker) LinkSystem(s System) error {
	if err := l.Systems.Add(s); err != nil {
		return err
	}
	if ls, ok := s.(LinkedSystem); ok {
		ls.OnLink(l)
	}
	l.log.Debug().Str("system", s.Name()).Stringer("phase", s.Phase()).Msg("system linked")
	return nil
}

// UnlinkSystem removes a system from the graph.
func (l *Linker) UnlinkSystem(name string) {
	s := l.Systems.Remove(name)
	if s == nil {
		return
	}
	if us, ok := s.(UnlinkedSystem); ok {
		us.OnUnlink(l)
	}
}

// FindSystem returns the first linked system of type T.
func FindSystem[T System](l *Linker) (T, bool) {
	for _, s := range l.Systems.Systems() {
		if t, ok := s.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

// Evaluate runs one full pass: spawn, instantiation, a sync point that links
// new entities and destroys unlinked ones, evaluation and finalization.
// Queued commands are played back after every system.
func (l *Linker) Evaluate() error {
	if err := l.Systems.Sort(); err != nil {
		return eris.Wrap(err, "sorting system graph")
	}
	l.Commands.PlayBack(l.Entities)
	l.runPhase(PhaseSpawn)
	l.runPhase(PhaseInstantiation)
	l.syncPoint()
	l.runPhase(PhaseEvaluation)
	l.runPhase(PhaseFinalization)
	Publish(l.Events, FrameEvaluated{Frame: l.frame})
	l.frame++
	return nil
}

func (l *Linker) runPhase(p Phase) {
	for _, s := range l.Systems.Phase(p) {
		if rs, ok := s.(RelevantSystem); ok && !rs.IsRelevant(l) {
			continue
		}
		s.Run(l)
		l.Commands.PlayBack(l.Entities)
	}
}

// syncPoint removes NeedsLink from linked entities and destroys every entity
// tagged NeedsUnlink.
func (l *Linker) syncPoint() {
	b := l.Builtins
	linked := l.Entities.Collect(NewFilter(b.NeedsLink.ID()).None(b.NeedsUnlink.ID()))
	for _, e := range linked {
		l.Entities.RemoveComponent(e, b.NeedsLink.ID())
	}
	unlinked := l.Entities.Collect(NewFilter(b.NeedsUnlink.ID()))
	if len(unlinked) > 0 {
		Publish(l.Events, EntitiesUnlinked{Entities: unlinked})
	}
	for _, e := range unlinked {
		l.forget(e)
		l.Entities.DestroyEntity(e)
	}
	if len(linked) > 0 {
		Publish(l.Events, EntitiesLinked{Entities: linked})
	}
	if len(linked)+len(unlinked) > 0 {
		l.log.Debug().Int("linked", len(linked)).Int("unlinked", len(unlinked)).Uint64("serial", l.Entities.Serial()).Msg("sync point")
	}
}

// AddChild records a parent/child relationship. Unlinking a parent unlinks its
// children.
func (l *Linker) AddChild(parent, child Entity) {
	l.children[parent] = append(l.children[parent], child)
	l.parents[child] = parent
}

// Children returns the children of an entity.
func (l *Linker) Children(parent Entity) []Entity {
	return l.children[parent]
}

// Parent returns the parent of an entity, or InvalidEntity.
func (l *Linker) Parent(child Entity) Entity {
	return l.parents[child]
}

func (l *Linker) forget(e Entity) {
	if p, ok := l.parents[e]; ok {
		siblings := l.children[p]
		for i, c := range siblings {
			if c == e {
				l.children[p] = append(siblings[:i], siblings[i+1:]...)
				break
			}
		}
		if len(l.children[p]) == 0 {
			delete(l.children, p)
		}
		delete(l.parents, e)
	}
	delete(l.children, e)
}

// MarkForUnlink tags an entity and all of its descendants with NeedsUnlink.
// The entities are destroyed at the next sync point.
func (l *Linker) MarkForUnlink(e Entity) {
	if !l.Entities.IsAlive(e) {
		return
	}
	for _, c := range l.children[e] {
		l.MarkForUnlink(c)
	}
	if l.Entities.IsLockedDown() {
		l.Commands.AddComponents(e, MaskOf(l.Builtins.NeedsUnlink.ID()))
		return
	}
	l.Entities.AddComponent(e, l.Builtins.NeedsUnlink.ID())
}

// TagGarbage unlinks every entity bound to an object for which isGarbage
// returns true and notifies listeners so they can purge their own references.
// It returns the number of entities tagged.
func (l *Linker) TagGarbage(isGarbage func(obj any) bool) int {
	b := l.Builtins
	var garbage []Entity
	l.Entities.Query(NewFilter(b.BoundObject.ID()).None(b.NeedsUnlink.ID())).ForEachAllocation(func(a *Allocation) {
		objs := Column(a, b.BoundObject)
		for i, e := range a.Entities() {
			if objs[i] == nil || isGarbage(objs[i]) {
				garbage = append(garbage, e)
			}
		}
	})
	for _, e := range garbage {
		l.MarkForUnlink(e)
	}
	Publish(l.Events, GarbageTagged{IsGarbage: isGarbage, Tagged: len(garbage)})
	if len(garbage) > 0 {
		l.log.Info().Int("entities", len(garbage)).Msg("tagged garbage")
	}
	return len(garbage)
}

// Reset unlinks every entity and clears hierarchy bookkeeping. Systems stay
// linked.
func (l *Linker) Reset() {
	l.Commands.Clear()
	for _, e := range l.Entities.Collect(Filter{}) {
		l.Entities.AddComponent(e, l.Builtins.NeedsUnlink.ID())
	}
	if err := l.Systems.Sort(); err != nil {
		l.log.Error().Err(err).Msg("reset without instantiation")
	} else {
		l.runPhase(PhaseInstantiation)
	}
	l.syncPoint()
}
