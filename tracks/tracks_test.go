package tracks

import (
	"testing"

	ms "github.com/edwinsyarief/moviescene"
	"github.com/edwinsyarief/moviescene/blend"
	"github.com/edwinsyarief/moviescene/channel"
	"github.com/edwinsyarief/moviescene/math3d"
	"github.com/edwinsyarief/moviescene/object"
	"github.com/edwinsyarief/moviescene/preanim"
	"github.com/edwinsyarief/moviescene/property"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	l        *ms.Linker
	bindings *object.Bindings
	resolver *BoundObjectResolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := ms.NewComponentRegistry()
	builtins := ms.NewBuiltInComponents(reg)
	l := ms.NewLinker("tracks", reg, builtins)

	props := property.NewRegistry(reg, builtins)
	property.RegisterStandard(props)
	RegisterComponents(l, func(name string) (ms.TagType, bool) {
		if d := props.Find(name); d != nil {
			return d.Tag, true
		}
		return ms.TagType{}, false
	})
	acc := object.NewAccessors()
	object.RegisterSceneAccessors(acc)
	res := object.NewResolver(acc)
	blender := blend.NewBlender(0)
	inst := property.NewInstantiator(props, res, blender)
	cache := preanim.NewCacheSystem()
	cache.AddCacher(inst)

	f := &fixture{l: l, bindings: object.NewBindings()}
	f.resolver = NewBoundObjectResolver(f.bindings)
	for _, s := range []ms.System{
		f.resolver, inst, cache, preanim.NewRestoreSystem(),
		ChannelEvaluator{}, BoolEvaluator{}, WeightEvaluator{}, blender,
		property.NewSetter(props, res),
	} {
		require.NoError(t, l.LinkSystem(s))
	}
	return f
}

func constant(v float64) [ms.NumDoubleChannels]ms.DoubleSource {
	return [ms.NumDoubleChannels]ms.DoubleSource{0: channel.ConstantCurve(v)}
}

func TestFieldQuery(t *testing.T) {
	var b FieldBuilder
	a := EntryMetadata{Key: EntryKey{Section: 0}}
	c := EntryMetadata{Key: EntryKey{Section: 1}}
	b.Add(Range{Start: 0, End: 2}, a)
	b.Add(Range{Start: 1, End: 3}, c)
	b.Add(Range{Start: 4, End: 4}, c)
	f := b.Build()
	assert.Equal(t, 2, f.Len())

	got, valid := f.Query(0.5)
	assert.Equal(t, []EntryMetadata{a}, got)
	assert.Equal(t, Range{Start: 0, End: 1}, valid)

	got, valid = f.Query(1)
	assert.Equal(t, []EntryMetadata{a, c}, got)
	assert.Equal(t, Range{Start: 1, End: 2}, valid)

	got, valid = f.Query(5)
	assert.Empty(t, got)
	assert.Equal(t, 3.0, valid.Start)
	assert.False(t, valid.Contains(2.5))
}

func TestAbsoluteAndAdditiveTransform(t *testing.T) {
	f := newFixture(t)
	actor := object.NewActor("hero")
	actor.Root.Mobility = object.Movable
	actor.Root.InitRelativeTransform(math3d.Transform{Translation: math3d.Vec3(2, 0, 0), Rotation: math3d.IdentityQuat, Scale: math3d.One})
	f.bindings.Bind("hero", actor)

	seq := &Sequence{
		Name:  "shot",
		Range: Range{Start: 0, End: 10},
		Tracks: []*Track{{
			Name:          "transform",
			ObjectBinding: "hero",
			Sections: []Section{
				&PropertySection{
					SectionBase: SectionBase{Name: "abs", Range: Range{Start: 0, End: 5}},
					Property:    "Transform",
					Path:        object.TransformPath,
					Channels:    constant(10),
				},
				&PropertySection{
					SectionBase: SectionBase{Name: "add", Range: Range{Start: 0, End: 10}, Blend: blend.Additive},
					Property:    "Transform",
					Path:        object.TransformPath,
					Channels:    constant(5),
				},
			},
		}},
	}
	inst := GetRegistry(f.l).Allocate(f.l, seq)
	inst.Update(1)
	require.NoError(t, f.l.Evaluate())
	assert.InDelta(t, 15.0, actor.Root.RelativeTransform().Translation.X, 1e-9)
	assert.Equal(t, 2, inst.NumImported())

	parent, ok := inst.Imported(EntryKey{Track: 0, Section: 0})
	require.True(t, ok)
	require.Len(t, f.l.Children(parent), 1)

	inst.Update(6)
	require.NoError(t, f.l.Evaluate())
	assert.InDelta(t, 7.0, actor.Root.RelativeTransform().Translation.X, 1e-9, "initial value plus the additive")
	assert.False(t, f.l.Entities.IsAlive(parent))
}

func TestRestoreStateCompletion(t *testing.T) {
	f := newFixture(t)
	actor := object.NewActor("hero")
	f.bindings.Bind("hero", actor)
	seq := &Sequence{
		Name:              "fade",
		Range:             Range{Start: 0, End: 10},
		DefaultCompletion: RestoreState,
		Tracks: []*Track{{
			ObjectBinding: "hero",
			Sections: []Section{&PropertySection{
				SectionBase: SectionBase{Name: "opacity", Range: Range{Start: 0, End: 1}},
				Property:    "Float",
				Path:        "Opacity",
				Channels:    [ms.NumDoubleChannels]ms.DoubleSource{0: channel.NewCurve(channel.Key{Time: 0, Value: 0, Interp: channel.Linear}, channel.Key{Time: 1, Value: 0.5})},
			}},
		}},
	}
	inst := GetRegistry(f.l).Allocate(f.l, seq)
	inst.Update(0.5)
	require.NoError(t, f.l.Evaluate())
	assert.InDelta(t, 0.25, actor.Opacity, 1e-9)

	inst.Update(2)
	require.NoError(t, f.l.Evaluate())
	assert.Equal(t, 1.0, actor.Opacity)
}

func TestKeepStateCompletion(t *testing.T) {
	f := newFixture(t)
	actor := object.NewActor("hero")
	f.bindings.Bind("hero", actor)
	seq := &Sequence{
		Range:             Range{Start: 0, End: 10},
		DefaultCompletion: RestoreState,
		Tracks: []*Track{{
			ObjectBinding: "hero",
			Sections: []Section{&PropertySection{
				SectionBase: SectionBase{Range: Range{Start: 0, End: 1}, Completion: KeepState},
				Property:    "Float",
				Path:        "Opacity",
				Channels:    constant(0.3),
			}},
		}},
	}
	inst := GetRegistry(f.l).Allocate(f.l, seq)
	inst.Update(0.5)
	require.NoError(t, f.l.Evaluate())
	inst.Update(2)
	require.NoError(t, f.l.Evaluate())
	assert.Equal(t, 0.3, actor.Opacity)
}

func TestEaseInBlendsTowardInitial(t *testing.T) {
	f := newFixture(t)
	actor := object.NewActor("hero")
	f.bindings.Bind("hero", actor)
	seq := &Sequence{
		Range: Range{Start: 0, End: 10},
		Tracks: []*Track{{
			ObjectBinding: "hero",
			Sections: []Section{&PropertySection{
				SectionBase: SectionBase{Range: Range{Start: 0, End: 4}, Easing: Easing{EaseIn: 1}},
				Property:    "Float",
				Path:        "Opacity",
				Channels:    constant(10),
			}},
		}},
	}
	inst := GetRegistry(f.l).Allocate(f.l, seq)
	inst.Update(0.5)
	require.NoError(t, f.l.Evaluate())
	assert.InDelta(t, 5.5, actor.Opacity, 1e-9)

	inst.Update(2)
	require.NoError(t, f.l.Evaluate())
	assert.InDelta(t, 10.0, actor.Opacity, 1e-9)
}

func TestBoolSection(t *testing.T) {
	f := newFixture(t)
	actor := object.NewActor("hero")
	f.bindings.Bind("hero", actor)
	seq := &Sequence{
		Range: Range{Start: 0, End: 10},
		Tracks: []*Track{{
			ObjectBinding: "hero",
			Sections: []Section{&PropertySection{
				SectionBase: SectionBase{Range: Range{Start: 0, End: 10}},
				Property:    "Bool",
				Path:        "Hidden",
				Bool:        &channel.BoolCurve{Keys: []channel.BoolKey{{Time: 0, Value: false}, {Time: 2, Value: true}}},
			}},
		}},
	}
	inst := GetRegistry(f.l).Allocate(f.l, seq)
	inst.Update(1)
	require.NoError(t, f.l.Evaluate())
	assert.False(t, actor.Hidden)
	inst.Update(3)
	require.NoError(t, f.l.Evaluate())
	assert.True(t, actor.Hidden)
}

func TestRebindReplacesChildren(t *testing.T) {
	f := newFixture(t)
	a, b := object.NewActor("a"), object.NewActor("b")
	f.bindings.Bind("hero", a)
	seq := &Sequence{
		Range: Range{Start: 0, End: 10},
		Tracks: []*Track{{
			ObjectBinding: "hero",
			Sections: []Section{&PropertySection{
				SectionBase: SectionBase{Range: Range{Start: 0, End: 10}},
				Property:    "Float",
				Path:        "Opacity",
				Channels:    constant(0.2),
			}},
		}},
	}
	inst := GetRegistry(f.l).Allocate(f.l, seq)
	inst.Update(1)
	require.NoError(t, f.l.Evaluate())
	assert.Equal(t, 0.2, a.Opacity)

	f.bindings.Bind("hero", b)
	f.resolver.Invalidate("hero")
	require.NoError(t, f.l.Evaluate())
	assert.Equal(t, 0.2, b.Opacity)
	parent, _ := inst.Imported(EntryKey{})
	assert.Len(t, f.l.Children(parent), 1)
}

func TestDestroyUnknownInstance(t *testing.T) {
	f := newFixture(t)
	err := GetRegistry(f.l).Destroy(42)
	assert.True(t, eris.Is(err, ErrUnknownInstance))
}
