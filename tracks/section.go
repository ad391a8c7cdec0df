// Package tracks turns sequences of tracks and sections into entities. A
// sequence instance imports the sections whose evaluation-field range covers
// the current time, the bound-object resolver spawns one child entity per
// bound object, and the channel evaluators fill in the per-frame results the
// blender and property setters consume.
package tracks

import (
	"math"

	ms "github.com/edwinsyarief/moviescene"
	"github.com/edwinsyarief/moviescene/blend"
	"github.com/edwinsyarief/moviescene/channel"
)

// Range is a half-open time range [Start, End).
type Range struct {
	Start float64
	End   float64
}

// Infinite is the range covering all time.
var Infinite = Range{Start: math.Inf(-1), End: math.Inf(1)}

// Contains reports whether t lies in the range.
func (r Range) Contains(t float64) bool {
	return t >= r.Start && t < r.End
}

// Empty reports whether the range contains no time.
func (r Range) Empty() bool {
	return r.End <= r.Start
}

// Intersect returns the overlap of two ranges.
func (r Range) Intersect(o Range) Range {
	return Range{Start: math.Max(r.Start, o.Start), End: math.Min(r.End, o.End)}
}

// CompletionMode decides what happens to animated state when a section stops
// evaluating.
type CompletionMode uint8

const (
	// ProjectDefault defers to the sequence default.
	ProjectDefault CompletionMode = iota
	// RestoreState puts pre-animated values back.
	RestoreState
	// KeepState leaves the last animated value.
	KeepState
)

func (m CompletionMode) String() string {
	switch m {
	case RestoreState:
		return "restore"
	case KeepState:
		return "keep"
	}
	return "default"
}

// ParseCompletionMode maps a name to a completion mode.
func ParseCompletionMode(s string) CompletionMode {
	switch s {
	case "restore", "restore_state":
		return RestoreState
	case "keep", "keep_state":
		return KeepState
	}
	return ProjectDefault
}

// Easing is the ease-in/ease-out envelope of a section. It is copied to child
// entities and evaluated into WeightAndEasingResult.
type Easing struct {
	Start, End      float64
	EaseIn, EaseOut float64
	InKind, OutKind channel.EasingKind
}

// Weight returns the envelope weight at t.
func (e Easing) Weight(t float64) float64 {
	return channel.EasingWeight(t, e.Start, e.End, e.EaseIn, e.EaseOut, e.InKind, e.OutKind)
}

// ImportParams is what a sequence instance hands a section when importing it.
type ImportParams struct {
	Instance      ms.InstanceHandle
	ObjectBinding string
	Section       *SectionBase
}

// ImportedEntity collects the components of the entity a section imports.
// The instance adds the common components before creating it.
type ImportedEntity struct {
	Builder *ms.EntityBuilder
}

// Importer is implemented by sections that become entities.
type Importer interface {
	ImportEntity(l *ms.Linker, params ImportParams, out *ImportedEntity)
}

// FieldPopulator is implemented by sections that control when they are
// evaluated. Sections without it are relevant over their whole range.
type FieldPopulator interface {
	PopulateEvaluationField(effective Range, meta EntryMetadata, b *FieldBuilder)
}

// Section is anything a track holds.
type Section interface {
	Importer
	Base() *SectionBase
}

// SectionBase is the state every section shares.
type SectionBase struct {
	Name       string
	Range      Range
	Blend      blend.Kind
	Completion CompletionMode
	Bias       int16
	Easing     Easing
	// Weight is an optional weight channel multiplied into the easing weight.
	Weight ms.DoubleSource
	// Inactive sections are never imported.
	Inactive bool
}

// Base returns the shared section state.
func (s *SectionBase) Base() *SectionBase {
	return s
}

// PropertySection animates one property of the track's bound object.
type PropertySection struct {
	SectionBase
	// Property names the property definition, such as "Float" or "Transform".
	Property string
	Path     string
	Channels [ms.NumDoubleChannels]ms.DoubleSource
	Bool     ms.BoolSource
	// BaseTime is the time additive-from-base sections sample their base at.
	BaseTime float64
}

// TagLookup maps a property definition name to its tag.
type TagLookup func(property string) (ms.TagType, bool)

// ImportEntity adds the property tag, binding and channels of the section.
func (s *PropertySection) ImportEntity(l *ms.Linker, params ImportParams, out *ImportedEntity) {
	b := l.Builtins
	tags := FindComponents(l)
	if tags == nil || tags.PropertyTags == nil {
		ms.Ensure(false, "property sections imported without a property tag lookup")
		return
	}
	tag, ok := tags.PropertyTags(s.Property)
	if !ms.Ensure(ok, "unknown property "+s.Property) {
		return
	}
	out.Builder.AddTag(tag)
	ms.With(out.Builder, b.PropertyBinding, ms.PropertyBinding{Name: s.Name, Path: s.Path})
	for c, src := range s.Channels {
		ms.WithConditional(out.Builder, b.DoubleChannel[c], src, src != nil)
	}
	ms.WithConditional(out.Builder, b.BoolChannel, s.Bool, s.Bool != nil)
	ms.WithConditional(out.Builder, b.BaseValueEvalTime, s.BaseTime, s.Blend == blend.AdditiveFromBase)
}

// Track is an ordered list of sections bound to one object binding.
type Track struct {
	Name          string
	ObjectBinding string
	Sections      []Section
}

// Sequence is a set of tracks with a playback range.
type Sequence struct {
	Name              string
	Range             Range
	Tracks            []*Track
	DefaultCompletion CompletionMode
}
