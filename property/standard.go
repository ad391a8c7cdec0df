package property

import (
	"unsafe"

	"github.com/edwinsyarief/moviescene/math3d"
)

// StandardProperties are the property shapes every linker registers.
type StandardProperties struct {
	Float     *Definition[float64, float64]
	Vector    *Definition[math3d.Vector3, math3d.Vector3]
	Color     *Definition[math3d.LinearColor, math3d.LinearColor]
	Transform *Definition[math3d.Transform, math3d.EulerTransform]
	Bool      *Definition[bool, bool]
}

// Definitions returns the standard definitions in registration order.
func (s *StandardProperties) Definitions() []*PropertyDefinition {
	return []*PropertyDefinition{
		s.Float.PropertyDefinition,
		s.Vector.PropertyDefinition,
		s.Color.PropertyDefinition,
		s.Transform.PropertyDefinition,
		s.Bool.PropertyDefinition,
	}
}

// RegisterStandard defines the standard property shapes.
func RegisterStandard(r *Registry) *StandardProperties {
	var (
		v math3d.Vector3
		c math3d.LinearColor
		e math3d.EulerTransform
	)
	s := &StandardProperties{}

	s.Float = DefineProperty(r, "Float", IdentityConverter[float64]()).
		AddComposite("Value", 0).
		Commit()

	s.Vector = DefineProperty(r, "Vector", IdentityConverter[math3d.Vector3]()).
		AddComposite("X", unsafe.Offsetof(v.X)).
		AddComposite("Y", unsafe.Offsetof(v.Y)).
		AddComposite("Z", unsafe.Offsetof(v.Z)).
		Commit()

	s.Color = DefineProperty(r, "Color", IdentityConverter[math3d.LinearColor]()).
		AddComposite("R", unsafe.Offsetof(c.R)).
		AddComposite("G", unsafe.Offsetof(c.G)).
		AddComposite("B", unsafe.Offsetof(c.B)).
		AddComposite("A", unsafe.Offsetof(c.A)).
		SetDefault(math3d.LinearColor{R: 1, G: 1, B: 1, A: 1}).
		Commit()

	loc, rot, scale := unsafe.Offsetof(e.Location), unsafe.Offsetof(e.Rotation), unsafe.Offsetof(e.Scale)
	s.Transform = DefineProperty(r, "Transform", Converter[math3d.Transform, math3d.EulerTransform]{
		ToOperational:   math3d.Transform.Euler,
		FromOperational: math3d.EulerTransform.Transform,
	}).
		AddComposite("Location.X", loc+unsafe.Offsetof(e.Location.X)).
		AddComposite("Location.Y", loc+unsafe.Offsetof(e.Location.Y)).
		AddComposite("Location.Z", loc+unsafe.Offsetof(e.Location.Z)).
		AddComposite("Rotation.Pitch", rot+unsafe.Offsetof(e.Rotation.Pitch)).
		AddComposite("Rotation.Yaw", rot+unsafe.Offsetof(e.Rotation.Yaw)).
		AddComposite("Rotation.Roll", rot+unsafe.Offsetof(e.Rotation.Roll)).
		AddComposite("Scale.X", scale+unsafe.Offsetof(e.Scale.X)).
		AddComposite("Scale.Y", scale+unsafe.Offsetof(e.Scale.Y)).
		AddComposite("Scale.Z", scale+unsafe.Offsetof(e.Scale.Z)).
		SetDefault(math3d.Identity().Euler()).
		Commit()

	s.Bool = DefineProperty(r, "Bool", IdentityConverter[bool]()).
		NonBlendable().
		Commit()
	return s
}

// CompositeIndex returns the index of a named composite, or -1.
func (d *PropertyDefinition) CompositeIndex(name string) int {
	for i, c := range d.Composites {
		if c.Name == name {
			return i
		}
	}
	return -1
}
