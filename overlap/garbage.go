package overlap

import (
	ms "github.com/edwinsyarief/moviescene"
)

// GarbageTracker is a Tracker whose keys hold object references that may be
// collected while tracked. Keys referencing collected objects are purged when
// the linker tags garbage.
type GarbageTracker[K comparable, O any] struct {
	*Tracker[K, O]
	objectsOf func(K) []any
	handler   Handler[K, O]
}

// NewGarbageTracker creates a tracker whose keys reference the objects
// returned by objectsOf. handler receives DestroyOutput for purged keys.
func NewGarbageTracker[K comparable, O any](objectsOf func(K) []any, handler Handler[K, O]) *GarbageTracker[K, O] {
	return &GarbageTracker[K, O]{
		Tracker:   NewTracker[K, O](),
		objectsOf: objectsOf,
		handler:   handler,
	}
}

// Subscribe purges garbage keys whenever the linker tags garbage.
func (g *GarbageTracker[K, O]) Subscribe(bus *ms.EventBus) {
	ms.Subscribe(bus, func(ev ms.GarbageTagged) {
		g.CleanupGarbage(ev.IsGarbage)
	})
}

// CleanupGarbage destroys every output whose key references an object for
// which isGarbage returns true. It returns the number of purged keys.
func (g *GarbageTracker[K, O]) CleanupGarbage(isGarbage func(any) bool) int {
	var purge []K
	for key := range g.outputs {
		for _, obj := range g.objectsOf(key) {
			if isGarbage(obj) {
				purge = append(purge, key)
				break
			}
		}
	}
	for _, key := range purge {
		g.destroy(key, g.handler)
	}
	return len(purge)
}

// AddReferencedObjects reports every object referenced by a tracked key to
// the host's reference collector.
func (g *GarbageTracker[K, O]) AddReferencedObjects(collect func(obj any)) {
	for key := range g.outputs {
		for _, obj := range g.objectsOf(key) {
			collect(obj)
		}
	}
}
