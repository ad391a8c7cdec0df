package scene

import (
	"testing"

	ms "github.com/edwinsyarief/moviescene"
	"github.com/edwinsyarief/moviescene/blend"
	"github.com/edwinsyarief/moviescene/channel"
	"github.com/edwinsyarief/moviescene/math3d"
	"github.com/edwinsyarief/moviescene/object"
	"github.com/edwinsyarief/moviescene/preanim"
	"github.com/edwinsyarief/moviescene/property"
	"github.com/edwinsyarief/moviescene/tracks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	l        *ms.Linker
	bindings *object.Bindings
	origin   *TransformOriginSystem
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := ms.NewComponentRegistry()
	builtins := ms.NewBuiltInComponents(reg)
	l := ms.NewLinker("scene", reg, builtins)

	props := property.NewRegistry(reg, builtins)
	std := property.RegisterStandard(props)
	tracks.RegisterComponents(l, func(name string) (ms.TagType, bool) {
		if d := props.Find(name); d != nil {
			return d.Tag, true
		}
		return ms.TagType{}, false
	})
	RegisterComponents(l)
	acc := object.NewAccessors()
	object.RegisterSceneAccessors(acc)
	res := object.NewResolver(acc)
	blender := blend.NewBlender(0)
	inst := property.NewInstantiator(props, res, blender)
	cache := preanim.NewCacheSystem()
	cache.AddCacher(inst)

	f := &fixture{l: l, bindings: object.NewBindings()}
	f.origin = NewTransformOriginSystem(std.Transform)
	for _, s := range []ms.System{
		tracks.NewBoundObjectResolver(f.bindings), inst,
		NewMobilitySystem(std.Transform.Tag), NewAttachmentSystem(f.bindings),
		cache, preanim.NewRestoreSystem(),
		tracks.ChannelEvaluator{}, tracks.BoolEvaluator{}, tracks.WeightEvaluator{}, blender,
		f.origin, property.NewSetter(props, res),
	} {
		require.NoError(t, l.LinkSystem(s))
	}
	return f
}

func locationX(v float64) [ms.NumDoubleChannels]ms.DoubleSource {
	return [ms.NumDoubleChannels]ms.DoubleSource{0: channel.ConstantCurve(v)}
}

func transformSequence(binding string, completion tracks.CompletionMode, x float64) *tracks.Sequence {
	return &tracks.Sequence{
		Name:              "shot",
		Range:             tracks.Range{Start: 0, End: 10},
		DefaultCompletion: completion,
		Tracks: []*tracks.Track{{
			ObjectBinding: binding,
			Sections: []tracks.Section{&tracks.PropertySection{
				SectionBase: tracks.SectionBase{Name: "move", Range: tracks.Range{Start: 0, End: 5}},
				Property:    "Transform",
				Path:        object.TransformPath,
				Channels:    locationX(x),
			}},
		}},
	}
}

func TestMobilityForcedWhileAnimated(t *testing.T) {
	f := newFixture(t)
	actor := object.NewActor("hero")
	f.bindings.Bind("hero", actor)
	require.Equal(t, object.Static, actor.Root.Mobility)

	inst := tracks.GetRegistry(f.l).Allocate(f.l, transformSequence("hero", tracks.KeepState, 10))
	inst.Update(1)
	require.NoError(t, f.l.Evaluate())
	assert.Equal(t, object.Movable, actor.Root.Mobility)
	assert.InDelta(t, 10.0, actor.Root.RelativeTransform().Translation.X, 1e-9)

	inst.Update(6)
	require.NoError(t, f.l.Evaluate())
	assert.Equal(t, object.Static, actor.Root.Mobility, "mobility is restored even when state is kept")
	assert.InDelta(t, 10.0, actor.Root.RelativeTransform().Translation.X, 1e-9)
}

func TestMobilityRestoredAfterTransform(t *testing.T) {
	f := newFixture(t)
	actor := object.NewActor("hero")
	f.bindings.Bind("hero", actor)

	inst := tracks.GetRegistry(f.l).Allocate(f.l, transformSequence("hero", tracks.RestoreState, 10))
	inst.Update(1)
	require.NoError(t, f.l.Evaluate())
	assert.InDelta(t, 10.0, actor.Root.RelativeTransform().Translation.X, 1e-9)

	inst.Update(6)
	require.NoError(t, f.l.Evaluate())
	assert.Equal(t, object.Static, actor.Root.Mobility)
	assert.InDelta(t, 0.0, actor.Root.RelativeTransform().Translation.X, 1e-9, "transform restored while still movable")
}

func attachSequence(completion tracks.CompletionMode, detach object.AttachmentRule) *tracks.Sequence {
	return &tracks.Sequence{
		Name:              "ride",
		Range:             tracks.Range{Start: 0, End: 10},
		DefaultCompletion: completion,
		Tracks: []*tracks.Track{{
			ObjectBinding: "hero",
			Sections: []tracks.Section{&AttachSection{
				SectionBase: tracks.SectionBase{Name: "attach", Range: tracks.Range{Start: 0, End: 5}},
				Attachment:  Attachment{ParentBinding: "car", AttachRule: object.KeepRelative, DetachRule: detach},
			}},
		}},
	}
}

func newCar(x float64) *object.Actor {
	car := object.NewActor("car")
	car.Root.InitRelativeTransform(math3d.Transform{Translation: math3d.Vec3(x, 0, 0), Rotation: math3d.IdentityQuat, Scale: math3d.One})
	return car
}

func TestAttachRestoresParent(t *testing.T) {
	f := newFixture(t)
	hero, car := object.NewActor("hero"), newCar(100)
	f.bindings.Bind("hero", hero)
	f.bindings.Bind("car", car)

	inst := tracks.GetRegistry(f.l).Allocate(f.l, attachSequence(tracks.RestoreState, object.KeepRelative))
	inst.Update(1)
	require.NoError(t, f.l.Evaluate())
	assert.Same(t, car.Root, hero.Root.AttachParent())
	assert.InDelta(t, 100.0, hero.Root.WorldTransform().Translation.X, 1e-9)

	inst.Update(6)
	require.NoError(t, f.l.Evaluate())
	assert.Nil(t, hero.Root.AttachParent())
	assert.InDelta(t, 0.0, hero.Root.WorldTransform().Translation.X, 1e-9)
}

func TestDetachKeepsWorldPosition(t *testing.T) {
	f := newFixture(t)
	hero, car := object.NewActor("hero"), newCar(100)
	f.bindings.Bind("hero", hero)
	f.bindings.Bind("car", car)

	inst := tracks.GetRegistry(f.l).Allocate(f.l, attachSequence(tracks.KeepState, object.KeepWorld))
	inst.Update(1)
	require.NoError(t, f.l.Evaluate())
	require.Same(t, car.Root, hero.Root.AttachParent())

	inst.Update(6)
	require.NoError(t, f.l.Evaluate())
	assert.Nil(t, hero.Root.AttachParent())
	assert.InDelta(t, 100.0, hero.Root.RelativeTransform().Translation.X, 1e-9)
}

func TestAttachUnresolvedParentIsIgnored(t *testing.T) {
	f := newFixture(t)
	hero := object.NewActor("hero")
	f.bindings.Bind("hero", hero)

	inst := tracks.GetRegistry(f.l).Allocate(f.l, attachSequence(tracks.RestoreState, object.KeepRelative))
	inst.Update(1)
	require.NoError(t, f.l.Evaluate())
	assert.Nil(t, hero.Root.AttachParent())
}

func TestTransformOriginOffsetsRoot(t *testing.T) {
	f := newFixture(t)
	actor := object.NewActor("hero")
	f.bindings.Bind("hero", actor)

	inst := tracks.GetRegistry(f.l).Allocate(f.l, transformSequence("hero", tracks.KeepState, 10))
	f.origin.SetOrigin(inst.Handle(), math3d.Transform{Translation: math3d.Vec3(5, 3, 0), Rotation: math3d.IdentityQuat, Scale: math3d.One})
	inst.Update(1)
	require.NoError(t, f.l.Evaluate())
	got := actor.Root.RelativeTransform().Translation
	assert.InDelta(t, 15.0, got.X, 1e-9)
	assert.InDelta(t, 0.0, got.Y, 1e-9, "only animated composites take the origin")

	f.origin.SetOrigin(inst.Handle(), math3d.Identity())
	_, ok := f.origin.Origin(inst.Handle())
	assert.False(t, ok)
	inst.Update(2)
	require.NoError(t, f.l.Evaluate())
	assert.InDelta(t, 10.0, actor.Root.RelativeTransform().Translation.X, 1e-9)
}

func TestTransformOriginSkipsAttachedComponents(t *testing.T) {
	f := newFixture(t)
	actor, car := object.NewActor("hero"), newCar(0)
	actor.Root.AttachTo(car.Root, object.KeepRelative)
	f.bindings.Bind("hero", actor)

	inst := tracks.GetRegistry(f.l).Allocate(f.l, transformSequence("hero", tracks.KeepState, 10))
	f.origin.SetOrigin(inst.Handle(), math3d.Transform{Translation: math3d.Vec3(5, 0, 0), Rotation: math3d.IdentityQuat, Scale: math3d.One})
	inst.Update(1)
	require.NoError(t, f.l.Evaluate())
	assert.InDelta(t, 10.0, actor.Root.RelativeTransform().Translation.X, 1e-9)
}
