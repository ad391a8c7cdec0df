package tracks

import (
	ms "github.com/edwinsyarief/moviescene"
)

// Components are the component types and lookups the tracks package adds to
// a linker.
type Components struct {
	Easing ms.ComponentType[Easing]
	// PropertyTags resolves property section names to definition tags.
	PropertyTags TagLookup
}

// RegisterComponents registers the tracks components on a linker. It is
// idempotent.
func RegisterComponents(l *ms.Linker, tags TagLookup) *Components {
	return ms.GetOrAddExtension(&l.Extensions, func() *Components {
		return &Components{
			Easing:       ms.NewComponentType[Easing](l.Registry, "Easing", ms.FlagCopyToChildren),
			PropertyTags: tags,
		}
	})
}

// FindComponents returns the registered tracks components, or nil.
func FindComponents(l *ms.Linker) *Components {
	return ms.FindExtension[Components](&l.Extensions)
}

// ResultMask returns the result components an entity carrying mask needs: one
// DoubleResult per double channel, a BoolResult for a bool channel, a
// BaseDouble per channel when a base time is set and WeightAndEasingResult
// when it is weighted or eased.
func ResultMask(l *ms.Linker, mask ms.ComponentMask) ms.ComponentMask {
	b := l.Builtins
	var out ms.ComponentMask
	base := mask.Contains(b.BaseValueEvalTime.ID())
	for c := range ms.NumDoubleChannels {
		if mask.Contains(b.DoubleChannel[c].ID()) {
			out.Set(b.DoubleResult[c].ID())
			if base {
				out.Set(b.BaseDouble[c].ID())
			}
		}
	}
	if mask.Contains(b.BoolChannel.ID()) {
		out.Set(b.BoolResult.ID())
	}
	weighted := mask.Contains(b.WeightChannel.ID())
	if c := FindComponents(l); c != nil && mask.Contains(c.Easing.ID()) {
		weighted = true
	}
	if weighted {
		out.Set(b.WeightAndEasingResult.ID())
	}
	return out
}
