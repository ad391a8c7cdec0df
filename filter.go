package moviescene

// Filter selects archetypes by component masks: every component of all must
// be present, at least one of any (when non-empty), and none of none.
// Filters are small comparable values and may be used as map keys.
type Filter struct {
	all  ComponentMask
	any  ComponentMask
	none ComponentMask
}

// NewFilter creates a filter requiring every given component type.
func NewFilter(all ...ComponentTypeID) Filter {
	return Filter{all: MaskOf(all...)}
}

// All returns a copy of the filter that additionally requires ids.
func (f Filter) All(ids ...ComponentTypeID) Filter {
	f.all = f.all.Union(MaskOf(ids...))
	return f
}

// AllMask is All for a prebuilt mask.
func (f Filter) AllMask(m ComponentMask) Filter {
	f.all = f.all.Union(m)
	return f
}

// Any returns a copy of the filter that requires at least one of ids.
func (f Filter) Any(ids ...ComponentTypeID) Filter {
	f.any = f.any.Union(MaskOf(ids...))
	return f
}

// AnyMask is Any for a prebuilt mask.
func (f Filter) AnyMask(m ComponentMask) Filter {
	f.any = f.any.Union(m)
	return f
}

// None returns a copy of the filter that excludes archetypes carrying ids.
func (f Filter) None(ids ...ComponentTypeID) Filter {
	f.none = f.none.Union(MaskOf(ids...))
	return f
}

// NoneMask is None for a prebuilt mask.
func (f Filter) NoneMask(m ComponentMask) Filter {
	f.none = f.none.Union(m)
	return f
}

// Matches reports whether a component mask passes the filter.
func (f Filter) Matches(mask ComponentMask) bool {
	if !mask.ContainsAll(f.all) {
		return false
	}
	if !f.any.IsEmpty() && !mask.ContainsAny(f.any) {
		return false
	}
	return !mask.ContainsAny(f.none)
}

// matchingArchetypes returns every archetype matching f. Results are cached per
// filter and only re-scanned when new archetypes have been created.
func (m *EntityManager) matchingArchetypes(f Filter) []*archetype {
	q, ok := m.queryCache[f]
	if !ok {
		q = &cachedQuery{}
		m.queryCache[f] = q
	}
	if ok && q.version == m.archetypes.archetypeVersion {
		return q.matching
	}
	// archetypes are append-only; scan only the new ones
	for ; q.scanned < len(m.archetypes.archetypes); q.scanned++ {
		if a := m.archetypes.archetypes[q.scanned]; f.Matches(a.mask) {
			q.matching = append(q.matching, a)
		}
	}
	q.version = m.archetypes.archetypeVersion
	return q.matching
}

// Contains reports whether any live entity matches the filter.
func (m *EntityManager) Contains(f Filter) bool {
	for _, a := range m.matchingArchetypes(f) {
		if a.size > 0 {
			return true
		}
	}
	return false
}

// Count returns the number of live entities matching the filter.
func (m *EntityManager) Count(f Filter) int {
	n := 0
	for _, a := range m.matchingArchetypes(f) {
		n += a.size
	}
	return n
}

// Collect returns every live entity matching the filter.
func (m *EntityManager) Collect(f Filter) []Entity {
	var out []Entity
	for _, a := range m.matchingArchetypes(f) {
		for _, c := range a.chunks {
			out = append(out, c.entityIDs[:c.size]...)
		}
	}
	return out
}
