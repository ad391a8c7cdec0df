package object

import (
	"reflect"

	"github.com/edwinsyarief/moviescene/math3d"
	"github.com/rs/zerolog/log"
)

// Mobility controls whether a scene component may be moved at runtime.
type Mobility uint8

const (
	Static Mobility = iota
	Stationary
	Movable
)

func (m Mobility) String() string {
	switch m {
	case Static:
		return "static"
	case Stationary:
		return "stationary"
	case Movable:
		return "movable"
	}
	return "unknown"
}

// ParseMobility maps a name to a mobility.
func ParseMobility(s string) (Mobility, bool) {
	switch s {
	case "", "static":
		return Static, true
	case "stationary":
		return Stationary, true
	case "movable":
		return Movable, true
	}
	return Static, false
}

// AttachmentRule decides which transform is preserved when re-parenting.
type AttachmentRule uint8

const (
	KeepRelative AttachmentRule = iota
	KeepWorld
)

// ParseAttachmentRule maps a name to an attachment rule.
func ParseAttachmentRule(s string) (AttachmentRule, bool) {
	switch s {
	case "", "keep_relative", "relative":
		return KeepRelative, true
	case "keep_world", "world":
		return KeepWorld, true
	}
	return KeepRelative, false
}

// SceneComponent is a node in the scene graph with a transform relative to its
// attach parent.
type SceneComponent struct {
	Name     string
	Mobility Mobility

	relative math3d.Transform
	parent   *SceneComponent
	children []*SceneComponent
	garbage  bool
}

// NewSceneComponent creates a static component at the origin.
func NewSceneComponent(name string) *SceneComponent {
	return &SceneComponent{Name: name, relative: math3d.Identity()}
}

// RelativeTransform returns the transform relative to the attach parent.
func (c *SceneComponent) RelativeTransform() math3d.Transform {
	return c.relative
}

// SetRelativeTransform moves the component. Components that are not movable
// reject the change.
func (c *SceneComponent) SetRelativeTransform(t math3d.Transform) bool {
	if c.Mobility != Movable {
		log.Warn().Str("component", c.Name).Stringer("mobility", c.Mobility).Msg("cannot move component that is not movable")
		return false
	}
	c.relative = t
	return true
}

// InitRelativeTransform places the component regardless of mobility. It is
// meant for scene construction.
func (c *SceneComponent) InitRelativeTransform(t math3d.Transform) {
	c.relative = t
}

// WorldTransform composes the relative transforms up the attachment chain.
func (c *SceneComponent) WorldTransform() math3d.Transform {
	if c.parent == nil {
		return c.relative
	}
	return c.relative.Compose(c.parent.WorldTransform())
}

// AttachParent returns the current attach parent, or nil.
func (c *SceneComponent) AttachParent() *SceneComponent {
	return c.parent
}

// Children returns the attached children.
func (c *SceneComponent) Children() []*SceneComponent {
	return c.children
}

// AttachTo re-parents the component. A nil parent detaches it.
func (c *SceneComponent) AttachTo(parent *SceneComponent, rule AttachmentRule) {
	if parent == c.parent {
		return
	}
	for p := parent; p != nil; p = p.parent {
		if p == c {
			log.Warn().Str("component", c.Name).Str("parent", parent.Name).Msg("attachment would create a cycle")
			return
		}
	}
	world := c.WorldTransform()
	if c.parent != nil {
		siblings := c.parent.children
		for i, s := range siblings {
			if s == c {
				c.parent.children = append(siblings[:i], siblings[i+1:]...)
				break
			}
		}
	}
	c.parent = parent
	if parent != nil {
		parent.children = append(parent.children, c)
	}
	if rule == KeepWorld {
		if parent != nil {
			c.relative = world.Compose(parent.WorldTransform().Inverse())
		} else {
			c.relative = world
		}
	}
}

// Detach removes the component from its parent.
func (c *SceneComponent) Detach(rule AttachmentRule) {
	c.AttachTo(nil, rule)
}

// MarkGarbage flags the component as destroyed.
func (c *SceneComponent) MarkGarbage() {
	c.garbage = true
}

// IsGarbage reports whether the component was destroyed.
func (c *SceneComponent) IsGarbage() bool {
	return c.garbage
}

// Actor is a bound object owning a root scene component and a handful of
// commonly animated properties.
type Actor struct {
	Name    string
	Root    *SceneComponent
	Hidden  bool
	Opacity float64
	Tint    math3d.LinearColor
	Scale   math3d.Vector3

	garbage bool
}

// NewActor creates an actor with a static root component.
func NewActor(name string) *Actor {
	return &Actor{
		Name:    name,
		Root:    NewSceneComponent(name + ".Root"),
		Opacity: 1,
		Tint:    math3d.LinearColor{R: 1, G: 1, B: 1, A: 1},
		Scale:   math3d.One,
	}
}

// MarkGarbage flags the actor as destroyed.
func (a *Actor) MarkGarbage() {
	a.garbage = true
	if a.Root != nil {
		a.Root.MarkGarbage()
	}
}

// IsGarbage reports whether the actor was destroyed.
func (a *Actor) IsGarbage() bool {
	return a.garbage
}

// Light is an object whose properties are only reachable through methods or
// converted fields.
type Light struct {
	Name   string
	Radius float32

	intensity float32
	enabled   bool
}

// SetIntensity sets the light brightness.
func (l *Light) SetIntensity(v float64) { l.intensity = float32(v) }

// GetIntensity returns the light brightness.
func (l *Light) GetIntensity() float64 { return float64(l.intensity) }

// SetEnabled toggles the light.
func (l *Light) SetEnabled(v bool) { l.enabled = v }

// GetEnabled reports whether the light is on.
func (l *Light) GetEnabled() bool { return l.enabled }

// Collectable is implemented by objects that can be destroyed while bound.
type Collectable interface {
	IsGarbage() bool
}

// IsGarbage reports whether obj has been destroyed. Objects that do not
// implement Collectable are never garbage.
func IsGarbage(obj any) bool {
	if c, ok := obj.(Collectable); ok {
		return c.IsGarbage()
	}
	return obj == nil
}

// SceneComponentOf returns the scene component an object is placed by: the
// component itself or an actor's root.
func SceneComponentOf(obj any) *SceneComponent {
	switch o := obj.(type) {
	case *SceneComponent:
		return o
	case *Actor:
		return o.Root
	}
	return nil
}

// TransformPath is the property path of a scene component's relative transform.
const TransformPath = "Transform"

// RegisterSceneAccessors registers the custom transform accessors of scene
// components and actors.
func RegisterSceneAccessors(a *Accessors) {
	get := func(obj any) math3d.Transform {
		if c := SceneComponentOf(obj); c != nil {
			return c.RelativeTransform()
		}
		return math3d.Identity()
	}
	set := func(obj any, t math3d.Transform) {
		if c := SceneComponentOf(obj); c != nil {
			c.SetRelativeTransform(t)
		}
	}
	RegisterAccessor(a, reflect.TypeFor[*SceneComponent](), TransformPath, get, set)
	RegisterAccessor(a, reflect.TypeFor[*Actor](), TransformPath, get, set)
}
