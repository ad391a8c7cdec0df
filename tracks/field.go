package tracks

import (
	"math"
	"slices"
)

// EntryKey identifies a section within a sequence.
type EntryKey struct {
	Track   int
	Section int
}

// EntryMetadata is stored with every evaluation-field entry.
type EntryMetadata struct {
	Key EntryKey
	// ForcedTime pins the evaluation time of the entry when Forced is set,
	// for sections that hold a single frame.
	ForcedTime float64
	Forced     bool
}

type fieldEntry struct {
	r    Range
	meta EntryMetadata
}

// FieldBuilder collects the ranges sections declare themselves relevant over.
type FieldBuilder struct {
	entries []fieldEntry
}

// Add declares meta relevant over r. Empty ranges are dropped.
func (b *FieldBuilder) Add(r Range, meta EntryMetadata) {
	if r.Empty() {
		return
	}
	b.entries = append(b.entries, fieldEntry{r: r, meta: meta})
}

// Build freezes the collected entries.
func (b *FieldBuilder) Build() *Field {
	f := &Field{entries: slices.Clone(b.entries)}
	for _, e := range f.entries {
		f.bounds = append(f.bounds, e.r.Start, e.r.End)
	}
	slices.Sort(f.bounds)
	f.bounds = slices.Compact(f.bounds)
	return f
}

// Field answers which sections are relevant at a time.
type Field struct {
	entries []fieldEntry
	bounds  []float64
}

// BuildField populates the evaluation field of a sequence. Sections that do
// not implement FieldPopulator are relevant over their range clipped to the
// sequence range.
func BuildField(seq *Sequence) *Field {
	var b FieldBuilder
	for ti, track := range seq.Tracks {
		for si, s := range track.Sections {
			base := s.Base()
			if base.Inactive {
				continue
			}
			effective := base.Range.Intersect(seq.Range)
			meta := EntryMetadata{Key: EntryKey{Track: ti, Section: si}}
			if p, ok := s.(FieldPopulator); ok {
				p.PopulateEvaluationField(effective, meta, &b)
			} else {
				b.Add(effective, meta)
			}
		}
	}
	return b.Build()
}

// Len returns the number of entries.
func (f *Field) Len() int {
	return len(f.entries)
}

// Query returns the entries relevant at t, in declaration order, and the
// range around t over which that answer does not change.
func (f *Field) Query(t float64) ([]EntryMetadata, Range) {
	var out []EntryMetadata
	for _, e := range f.entries {
		if e.r.Contains(t) {
			out = append(out, e.meta)
		}
	}
	valid := Range{Start: math.Inf(-1), End: math.Inf(1)}
	i, found := slices.BinarySearch(f.bounds, t)
	if found {
		valid.Start = f.bounds[i]
		i++
	} else if i > 0 {
		valid.Start = f.bounds[i-1]
	}
	if i < len(f.bounds) {
		valid.End = f.bounds[i]
	}
	return out, valid
}
