// Package overlap tracks many-to-one relationships between contributing
// entities and a shared output keyed by a tuple such as (bound object,
// property path). Entities linked or unlinked since the last pass invalidate
// their key; processing the invalidated keys calls exactly one of initialize,
// update or destroy per key.
package overlap

import (
	"cmp"
	"slices"

	ms "github.com/edwinsyarief/moviescene"
)

// Aggregate summarises a key's contributors for the handler.
type Aggregate struct {
	// NeedsRestoration is true if any surviving or departing contributor was
	// tagged RestoreState.
	NeedsRestoration bool
	// Restoring is true if a surviving contributor is tagged RestoreState.
	Restoring bool
}

// Handler receives the outcome of processing an invalidated key.
type Handler[K comparable, O any] interface {
	InitializeOutput(key K, inputs []ms.Entity, output *O, agg Aggregate)
	UpdateOutput(key K, inputs []ms.Entity, output *O, agg Aggregate)
	DestroyOutput(key K, output *O, agg Aggregate)
}

// KeyFunc extracts the key of entity i of an allocation. ok is false for
// entities that should not be tracked.
type KeyFunc[K comparable] func(a *ms.Allocation, i int) (key K, ok bool)

type output[O any] struct {
	value       O
	inputs      []ms.Entity
	restoring   map[ms.Entity]bool
	departedRst bool
	initialized bool
}

// Tracker is the overlapping-entity tracker.
type Tracker[K comparable, O any] struct {
	outputs     map[K]*output[O]
	entityToKey map[ms.Entity]K
	invalidated []K
	isInvalid   map[K]bool
}

// NewTracker creates an empty tracker.
func NewTracker[K comparable, O any]() *Tracker[K, O] {
	return &Tracker[K, O]{
		outputs:     make(map[K]*output[O]),
		entityToKey: make(map[ms.Entity]K),
		isInvalid:   make(map[K]bool),
	}
}

// Update visits every entity matching filter that is tagged NeedsLink or
// NeedsUnlink and adds it to or removes it from its key's contributors.
// Entities are visited in entity ID order whatever archetype they live in, so
// keys are invalidated in a stable order.
func (t *Tracker[K, O]) Update(l *ms.Linker, filter ms.Filter, keyOf KeyFunc[K]) {
	b := l.Builtins
	type visit struct {
		e        ms.Entity
		key      K
		restore  bool
		unlinked bool
	}
	var visits []visit
	f := filter.Any(b.NeedsLink.ID(), b.NeedsUnlink.ID())
	l.Entities.Query(f).ForEachAllocation(func(a *ms.Allocation) {
		unlinked := a.Has(b.NeedsUnlink.ID())
		restore := a.Has(b.RestoreState.ID())
		for i, e := range a.Entities() {
			if unlinked {
				visits = append(visits, visit{e: e, restore: restore, unlinked: true})
				continue
			}
			if key, ok := keyOf(a, i); ok {
				visits = append(visits, visit{e: e, key: key, restore: restore})
			}
		}
	})
	slices.SortStableFunc(visits, func(x, y visit) int { return cmp.Compare(x.e.ID, y.e.ID) })
	for _, v := range visits {
		if v.unlinked {
			t.remove(v.e)
		} else {
			t.add(v.e, v.key, v.restore)
		}
	}
}

// Add starts tracking a single entity under key.
func (t *Tracker[K, O]) Add(e ms.Entity, key K, restoreState bool) {
	t.add(e, key, restoreState)
}

// Remove stops tracking a single entity.
func (t *Tracker[K, O]) Remove(e ms.Entity) {
	t.remove(e)
}

func (t *Tracker[K, O]) add(e ms.Entity, key K, restore bool) {
	if old, ok := t.entityToKey[e]; ok {
		if old == key {
			return
		}
		t.remove(e)
	}
	out, ok := t.outputs[key]
	if !ok {
		out = &output[O]{restoring: make(map[ms.Entity]bool)}
		t.outputs[key] = out
	}
	out.inputs = append(out.inputs, e)
	if restore {
		out.restoring[e] = true
	}
	t.entityToKey[e] = key
	t.invalidate(key)
}

func (t *Tracker[K, O]) remove(e ms.Entity) {
	key, ok := t.entityToKey[e]
	if !ok {
		return
	}
	delete(t.entityToKey, e)
	out := t.outputs[key]
	if idx := slices.Index(out.inputs, e); idx >= 0 {
		out.inputs = slices.Delete(out.inputs, idx, idx+1)
	}
	if out.restoring[e] {
		out.departedRst = true
		delete(out.restoring, e)
	}
	t.invalidate(key)
}

func (t *Tracker[K, O]) invalidate(key K) {
	if !t.isInvalid[key] {
		t.isInvalid[key] = true
		t.invalidated = append(t.invalidated, key)
	}
}

// Invalidate forces key to be re-processed even if its contributors did not
// change.
func (t *Tracker[K, O]) Invalidate(key K) {
	if _, ok := t.outputs[key]; ok {
		t.invalidate(key)
	}
}

// HasInvalidated reports whether any key is waiting to be processed.
func (t *Tracker[K, O]) HasInvalidated() bool {
	return len(t.invalidated) > 0
}

// ProcessInvalidatedOutputs calls exactly one handler method per invalidated
// key, in invalidation order.
func (t *Tracker[K, O]) ProcessInvalidatedOutputs(h Handler[K, O]) {
	keys := t.invalidated
	t.invalidated = nil
	clear(t.isInvalid)
	for _, key := range keys {
		out, ok := t.outputs[key]
		if !ok {
			continue
		}
		agg := Aggregate{
			NeedsRestoration: out.departedRst || len(out.restoring) > 0,
			Restoring:        len(out.restoring) > 0,
		}
		out.departedRst = false
		switch {
		case len(out.inputs) == 0:
			if out.initialized {
				h.DestroyOutput(key, &out.value, agg)
			}
			delete(t.outputs, key)
		case !out.initialized:
			out.initialized = true
			h.InitializeOutput(key, slices.Clone(out.inputs), &out.value, agg)
		default:
			h.UpdateOutput(key, slices.Clone(out.inputs), &out.value, agg)
		}
	}
}

// Find returns the output of a key.
func (t *Tracker[K, O]) Find(key K) (*O, bool) {
	if out, ok := t.outputs[key]; ok && out.initialized {
		return &out.value, true
	}
	return nil, false
}

// Inputs returns the current contributors of a key.
func (t *Tracker[K, O]) Inputs(key K) []ms.Entity {
	if out, ok := t.outputs[key]; ok {
		return out.inputs
	}
	return nil
}

// KeyOf returns the key an entity contributes to.
func (t *Tracker[K, O]) KeyOf(e ms.Entity) (K, bool) {
	k, ok := t.entityToKey[e]
	return k, ok
}

// Len returns the number of keys with at least one contributor.
func (t *Tracker[K, O]) Len() int {
	return len(t.outputs)
}

// Range calls fn for every initialized output until fn returns false.
func (t *Tracker[K, O]) Range(fn func(key K, out *O) bool) {
	for k, out := range t.outputs {
		if out.initialized && !fn(k, &out.value) {
			return
		}
	}
}

// destroy drops a key immediately, calling DestroyOutput if it was initialized.
func (t *Tracker[K, O]) destroy(key K, h Handler[K, O]) {
	out, ok := t.outputs[key]
	if !ok {
		return
	}
	for _, e := range out.inputs {
		delete(t.entityToKey, e)
	}
	if out.initialized {
		h.DestroyOutput(key, &out.value, Aggregate{})
	}
	delete(t.outputs, key)
	delete(t.isInvalid, key)
	t.invalidated = slices.DeleteFunc(t.invalidated, func(k K) bool { return k == key })
}
