package object

import (
	"testing"

	"github.com/edwinsyarief/moviescene/math3d"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	Opacity float64
	Offset  math3d.Vector3
	Layout  struct {
		Width float64
	}
	Count int32
}

func TestResolveFastPath(t *testing.T) {
	r := NewResolver(nil)
	w := &widget{Opacity: 0.5}

	res := Resolve[float64](r, w, "Opacity")
	require.Equal(t, Fast, res.Kind)
	v, ok := Get[float64](r, w, res)
	require.True(t, ok)
	assert.Equal(t, 0.5, v)
	assert.True(t, Set(r, w, res, 0.25))
	assert.Equal(t, 0.25, w.Opacity)

	nested := Resolve[float64](r, w, "Layout.Width")
	require.Equal(t, Fast, nested.Kind)
	Set(r, w, nested, 42.0)
	assert.Equal(t, 42.0, w.Layout.Width)

	vec := Resolve[math3d.Vector3](r, w, "Offset")
	require.Equal(t, Fast, vec.Kind)
	Set(r, w, vec, math3d.Vec3(1, 2, 3))
	assert.Equal(t, math3d.Vec3(1, 2, 3), w.Offset)
}

func TestResolveIsCached(t *testing.T) {
	r := NewResolver(nil)
	a := Resolve[float64](r, &widget{}, "Opacity")
	b := Resolve[float64](r, &widget{}, "Opacity")
	assert.Equal(t, a, b)
	assert.Len(t, r.cache, 1)
}

func TestResolveSlowPath(t *testing.T) {
	r := NewResolver(nil)
	l := &Light{Radius: 2}

	intensity := Resolve[float64](r, l, "Intensity")
	require.Equal(t, Slow, intensity.Kind)
	require.True(t, Set(r, l, intensity, 3.5))
	v, ok := Get[float64](r, l, intensity)
	require.True(t, ok)
	assert.Equal(t, 3.5, v)

	radius := Resolve[float64](r, l, "Radius")
	require.Equal(t, Slow, radius.Kind, "float32 field converts")
	require.True(t, Set(r, l, radius, 8.0))
	assert.Equal(t, float32(8), l.Radius)

	w := &widget{}
	count := Resolve[float64](r, w, "Count")
	require.Equal(t, Slow, count.Kind)
	Set(r, w, count, 3.0)
	assert.Equal(t, int32(3), w.Count)
}

func TestResolveCustomAccessor(t *testing.T) {
	acc := NewAccessors()
	RegisterSceneAccessors(acc)
	r := NewResolver(acc)

	actor := NewActor("hero")
	res := Resolve[math3d.Transform](r, actor, TransformPath)
	require.Equal(t, Custom, res.Kind)

	moved := math3d.Identity()
	moved.Translation = math3d.Vec3(5, 0, 0)
	Set(r, actor, res, moved)
	assert.Equal(t, math3d.Vector3{}, actor.Root.RelativeTransform().Translation, "static roots reject moves")

	actor.Root.Mobility = Movable
	Set(r, actor, res, moved)
	got, ok := Get[math3d.Transform](r, actor, res)
	require.True(t, ok)
	assert.Equal(t, moved.Translation, got.Translation)
}

func TestResolveFailure(t *testing.T) {
	r := NewResolver(nil)
	res := Resolve[float64](r, &widget{}, "Missing")
	assert.True(t, res.Unresolved())
	assert.Equal(t, IndexNone, res.CustomIndex)
	assert.False(t, Set(r, &widget{}, res, 1.0))

	wrongType := Resolve[bool](r, &widget{}, "Opacity")
	assert.True(t, wrongType.Unresolved())

	notStruct := Resolve[float64](r, 3.0, "Opacity")
	assert.True(t, notStruct.Unresolved())
}

func TestSetGetProperty(t *testing.T) {
	l := &Light{}
	require.NoError(t, SetProperty(l, "Intensity", 4))
	got, err := GetProperty(l, "Intensity")
	require.NoError(t, err)
	assert.Equal(t, 4.0, got)

	w := &widget{}
	require.NoError(t, SetProperty(w, "Layout.Width", float32(12)))
	assert.Equal(t, 12.0, w.Layout.Width)

	assert.Error(t, SetProperty(w, "Nope", 1))
	assert.Error(t, SetProperty(w, "Opacity", "text"))
	assert.Error(t, SetProperty(3, "Opacity", 1))
}

func TestAttachment(t *testing.T) {
	parent := NewSceneComponent("parent")
	parent.InitRelativeTransform(math3d.Transform{Translation: math3d.Vec3(100, 0, 0), Rotation: math3d.IdentityQuat, Scale: math3d.One})
	child := NewSceneComponent("child")
	child.InitRelativeTransform(math3d.Transform{Translation: math3d.Vec3(110, 0, 0), Rotation: math3d.IdentityQuat, Scale: math3d.One})

	child.AttachTo(parent, KeepWorld)
	assert.Same(t, parent, child.AttachParent())
	assert.True(t, child.RelativeTransform().Translation.NearlyEqual(math3d.Vec3(10, 0, 0), 1e-9))
	assert.True(t, child.WorldTransform().Translation.NearlyEqual(math3d.Vec3(110, 0, 0), 1e-9))

	parent.AttachTo(child, KeepRelative)
	assert.Nil(t, parent.AttachParent(), "cycles are rejected")

	child.Detach(KeepRelative)
	assert.Nil(t, child.AttachParent())
	assert.Empty(t, parent.Children())
}

func TestBindingsSkipGarbage(t *testing.T) {
	b := NewBindings()
	a1, a2 := NewActor("a"), NewActor("b")
	b.Bind("guid", a1, a2)
	assert.Len(t, b.Resolve("guid"), 2)
	a2.MarkGarbage()
	assert.Equal(t, []any{a1}, b.Resolve("guid"))
	assert.True(t, IsGarbage(a2))
	assert.False(t, IsGarbage(&widget{}))
	assert.Empty(t, b.Resolve("unknown"))
}
