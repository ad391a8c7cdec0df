// Package rcprotocol applies raw values received over remote control
// protocols (MIDI, OSC, DMX and the like) to properties. A protocol entity
// maps input values onto property values with piecewise linear ranges and
// writes the result to an object property or a JSON document. It does not go
// through the entity manager.
package rcprotocol

import (
	"slices"

	ms "github.com/edwinsyarief/moviescene"
	"github.com/edwinsyarief/moviescene/math3d"
)

// Mapping pairs a protocol input value with the property value it maps to.
type Mapping[T any] struct {
	Input float64 `yaml:"input"`
	Value T       `yaml:"value"`
}

// LerpFunc interpolates between two property values.
type LerpFunc[T any] func(a, b T, alpha float64) T

// RangeMapping maps protocol inputs to property values. Inputs between two
// mappings are interpolated; inputs outside the mapped range are clamped.
type RangeMapping[T any] struct {
	Mappings []Mapping[T]
	Lerp     LerpFunc[T]
}

// NewRangeMapping creates a mapping sorted by input.
func NewRangeMapping[T any](lerp LerpFunc[T], mappings ...Mapping[T]) *RangeMapping[T] {
	m := &RangeMapping[T]{Mappings: slices.Clone(mappings), Lerp: lerp}
	slices.SortStableFunc(m.Mappings, func(a, b Mapping[T]) int {
		switch {
		case a.Input < b.Input:
			return -1
		case a.Input > b.Input:
			return 1
		}
		return 0
	})
	return m
}

// Interpolate returns the property value of input. A mapping with fewer than
// two entries or a degenerate input range fails an ensure and yields the zero
// value.
func (m *RangeMapping[T]) Interpolate(input float64) T {
	var zero T
	if !ms.Ensure(len(m.Mappings) >= 2, "range mapping needs at least two entries") {
		return zero
	}
	first, last := m.Mappings[0], m.Mappings[len(m.Mappings)-1]
	if !ms.Ensure(first.Input != last.Input, "range mapping bounds are equal") {
		return zero
	}
	if input <= first.Input {
		return first.Value
	}
	if input >= last.Input {
		return last.Value
	}
	hi := slices.IndexFunc(m.Mappings, func(e Mapping[T]) bool { return e.Input > input })
	a, b := m.Mappings[hi-1], m.Mappings[hi]
	alpha := (input - a.Input) / (b.Input - a.Input)
	return m.Lerp(a.Value, b.Value, alpha)
}

// LerpFloat interpolates scalars.
func LerpFloat(a, b, alpha float64) float64 {
	return a + (b-a)*alpha
}

// LerpVector interpolates vectors component-wise.
func LerpVector(a, b math3d.Vector3, alpha float64) math3d.Vector3 {
	return a.Lerp(b, alpha)
}

// LerpColor interpolates colors channel-wise.
func LerpColor(a, b math3d.LinearColor, alpha float64) math3d.LinearColor {
	return a.Lerp(b, alpha)
}

// LerpBool switches from a to b halfway.
func LerpBool(a, b bool, alpha float64) bool {
	if alpha < 0.5 {
		return a
	}
	return b
}
