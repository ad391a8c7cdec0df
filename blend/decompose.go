package blend

import (
	"slices"

	ms "github.com/edwinsyarief/moviescene"
)

// Contribution is one input of a blend channel as last evaluated.
type Contribution struct {
	Entity  ms.Entity
	Kind    Kind
	Weight  float64
	Values  [ms.NumDoubleChannels]float64
	Bases   [ms.NumDoubleChannels]float64
	Present uint32
}

// GatherContributions snapshots every non-ignored input of a blend channel.
// The snapshot can then be decomposed per composite concurrently.
func (b *Blender) GatherContributions(l *ms.Linker, channel uint16) []Contribution {
	bi := l.Builtins
	var out []Contribution
	l.Entities.Query(ms.NewFilter(bi.BlendChannelInput.ID()).None(bi.Ignored.ID())).ForEachAllocation(func(a *ms.Allocation) {
		channels := ms.Column(a, bi.BlendChannelInput)
		weights := ms.Column(a, bi.WeightAndEasingResult)
		kind := KindOf(bi, a.Mask())
		for i, e := range a.Entities() {
			if channels[i] != channel {
				continue
			}
			c := Contribution{Entity: e, Kind: kind, Weight: 1}
			if weights != nil {
				c.Weight = weights[i]
			}
			for ci := range ms.NumDoubleChannels {
				if values := ms.Column(a, bi.DoubleResult[ci]); values != nil {
					c.Values[ci] = values[i]
					c.Present |= 1 << ci
				}
				if bases := ms.Column(a, bi.BaseDouble[ci]); bases != nil {
					c.Bases[ci] = bases[i]
				}
			}
			out = append(out, c)
		}
	})
	return out
}

// DecomposedEntry is a contribution that takes part in recomposition.
type DecomposedEntry struct {
	Entity ms.Entity
	Kind   Kind
	Value  float64
	Weight float64
	Base   float64
}

// DecomposedValue splits the contributions of one composite into the
// accumulated result of every entity outside the query and the individual
// entries of the entities inside it.
type DecomposedValue struct {
	Absolute   Weighted
	Relative   Weighted
	Additive   float64
	Decomposed []DecomposedEntry
}

// DecomposeDouble decomposes composite c of a gathered channel. Entities in
// query become decomposed entries; all others are accumulated.
func (b *Blender) DecomposeDouble(contribs []Contribution, c int, query []ms.Entity) DecomposedValue {
	var d DecomposedValue
	for _, in := range contribs {
		if in.Present&(1<<c) == 0 {
			continue
		}
		v := in.Values[c]
		if slices.Contains(query, in.Entity) {
			d.Decomposed = append(d.Decomposed, DecomposedEntry{
				Entity: in.Entity,
				Kind:   in.Kind,
				Value:  v,
				Weight: in.Weight,
				Base:   in.Bases[c],
			})
			continue
		}
		switch in.Kind {
		case Absolute:
			d.Absolute.Add(v, in.Weight)
		case Relative:
			d.Relative.Add(v, in.Weight)
		case Additive:
			d.Additive += v * in.Weight
		case AdditiveFromBase:
			d.Additive += (v - in.Bases[c]) * in.Weight
		}
	}
	return d
}

// effective is the value an entry contributes to its group: relative values
// are offset by the initial value, additive-from-base values by their base.
func (e DecomposedEntry) effective(initial float64) float64 {
	switch e.Kind {
	case Relative:
		return e.Value + initial
	case AdditiveFromBase:
		return e.Value - e.Base
	}
	return e.Value
}

func (e DecomposedEntry) fromEffective(v, initial float64) float64 {
	switch e.Kind {
	case Relative:
		return v - initial
	case AdditiveFromBase:
		return v + e.Base
	}
	return v
}

// Recompose returns the value entity must supply so that blending it with
// every other contribution reproduces current. An entity with zero weight
// cannot be decomposed and keeps its value. When several decomposed entries
// share the entity's group, the missing delta is apportioned by each entry's
// share of the group's weighted magnitude, or by weight when that is zero.
func (d DecomposedValue) Recompose(entity ms.Entity, current, initial float64) float64 {
	idx := slices.IndexFunc(d.Decomposed, func(e DecomposedEntry) bool { return e.Entity == entity })
	if !ms.Ensure(idx >= 0, "recomposing an entity that was not decomposed") {
		return current
	}
	entry := d.Decomposed[idx]
	if entry.Weight == 0 {
		return entry.Value
	}

	absTotal := d.Absolute.Total + d.Relative.Total + initial*d.Relative.Weight
	absWeight := d.Absolute.Weight + d.Relative.Weight
	var decAbs, decAdd float64
	var group []DecomposedEntry
	for _, q := range d.Decomposed {
		v := q.effective(initial) * q.Weight
		if q.Kind.IsAdditive() {
			decAdd += v
		} else {
			decAbs += v
			absWeight += q.Weight
		}
		if q.Kind.IsAdditive() == entry.Kind.IsAdditive() {
			group = append(group, q)
		}
	}

	var delta float64
	if entry.Kind.IsAdditive() {
		absBlend := CombineAbsolute(absTotal+decAbs, absWeight, initial)
		delta = current - absBlend - d.Additive - decAdd
	} else {
		target := current - d.Additive - decAdd
		var needed float64
		if absWeight >= 1 {
			needed = target*absWeight - absTotal
		} else {
			needed = target - absTotal - initial*(1-absWeight)
		}
		delta = needed - decAbs
	}

	v := entry.effective(initial)
	v += delta * share(entry, group, initial) / entry.Weight
	return entry.fromEffective(v, initial)
}

func share(entry DecomposedEntry, group []DecomposedEntry, initial float64) float64 {
	var magnitude, weight float64
	for _, q := range group {
		magnitude += q.effective(initial) * q.Weight
		weight += q.Weight
	}
	if magnitude != 0 {
		return entry.effective(initial) * entry.Weight / magnitude
	}
	if weight == 0 {
		return 0
	}
	return entry.Weight / weight
}

// Contains reports whether e was decomposed.
func (d DecomposedValue) Contains(e ms.Entity) bool {
	return slices.ContainsFunc(d.Decomposed, func(q DecomposedEntry) bool { return q.Entity == e })
}
