package evaluation

import (
	"testing"

	ms "github.com/edwinsyarief/moviescene"
	"github.com/edwinsyarief/moviescene/blend"
	"github.com/edwinsyarief/moviescene/channel"
	"github.com/edwinsyarief/moviescene/config"
	"github.com/edwinsyarief/moviescene/object"
	"github.com/edwinsyarief/moviescene/property"
	"github.com/edwinsyarief/moviescene/tracks"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLinker(t *testing.T, opts Options) *Linker {
	t.Helper()
	l, err := NewLinker(opts)
	require.NoError(t, err)
	return l
}

func opacity(name string, rng tracks.Range, kind blend.Kind, v float64) *tracks.PropertySection {
	return &tracks.PropertySection{
		SectionBase: tracks.SectionBase{Name: name, Range: rng, Blend: kind},
		Property:    "Float",
		Path:        "Opacity",
		Channels:    [ms.NumDoubleChannels]ms.DoubleSource{0: channel.ConstantCurve(v)},
	}
}

func opacitySequence(completion tracks.CompletionMode, end float64, sections ...tracks.Section) *tracks.Sequence {
	return &tracks.Sequence{
		Name:              "shot",
		Range:             tracks.Range{Start: 0, End: end},
		DefaultCompletion: completion,
		Tracks:            []*tracks.Track{{Name: "opacity", ObjectBinding: "hero", Sections: sections}},
	}
}

func TestAbsolutePlusAdditiveThroughRuntime(t *testing.T) {
	l := newLinker(t, Options{})
	actor := object.NewActor("hero")
	actor.Opacity = 0
	l.Bindings.Bind("hero", actor)
	rt := NewRuntime(l)

	seq := opacitySequence(tracks.KeepState, 10,
		opacity("abs", tracks.Range{Start: 0, End: 5}, blend.Absolute, 10),
		opacity("add", tracks.Range{Start: 0, End: 10}, blend.Additive, 5))
	inst := rt.Play(seq, PlayOptions{})
	require.NoError(t, rt.Tick(6))
	assert.InDelta(t, 15.0, actor.Opacity, 1e-9)

	require.NoError(t, rt.Tick(1))
	assert.InDelta(t, 5.0, actor.Opacity, 1e-9, "initial value plus the additive")
	assert.Equal(t, 1, inst.NumImported())
}

func TestRuntimeFinishesAndRestores(t *testing.T) {
	l := newLinker(t, Options{})
	actor := object.NewActor("hero")
	l.Bindings.Bind("hero", actor)
	rt := NewRuntime(l)

	inst := rt.Play(opacitySequence(tracks.RestoreState, 2,
		opacity("fade", tracks.Range{Start: 0, End: 2}, blend.Absolute, 0.25)), PlayOptions{})
	require.NoError(t, rt.Tick(1))
	assert.InDelta(t, 0.25, actor.Opacity, 1e-9)
	require.NoError(t, rt.Tick(1))
	assert.Equal(t, []ms.InstanceHandle{inst.Handle()}, rt.Playing())

	require.NoError(t, rt.Tick(1))
	assert.Empty(t, rt.Playing())
	assert.InDelta(t, 1.0, actor.Opacity, 1e-9)
	assert.Nil(t, tracks.GetRegistry(l.Linker).Find(inst.Handle()))
}

func TestRuntimeLoopAndSeek(t *testing.T) {
	l := newLinker(t, Options{})
	rt := NewRuntime(l)
	inst := rt.Play(opacitySequence(tracks.KeepState, 4), PlayOptions{Loop: true, Rate: 2})
	require.NoError(t, rt.Tick(1))
	require.NoError(t, rt.Tick(1))
	got, ok := rt.Time(inst.Handle())
	require.True(t, ok)
	assert.InDelta(t, 0.0, got, 1e-9)

	require.NoError(t, rt.Seek(inst.Handle(), 3))
	got, _ = rt.Time(inst.Handle())
	assert.Equal(t, 3.0, got)

	err := rt.Seek(99, 1)
	assert.True(t, eris.Is(err, tracks.ErrUnknownInstance))
	assert.True(t, eris.Is(rt.Stop(99), tracks.ErrUnknownInstance))
	require.NoError(t, rt.Stop(inst.Handle()))
	assert.Empty(t, rt.Playing())
}

func TestWrap(t *testing.T) {
	rng := tracks.Range{Start: 1, End: 3}
	assert.InDelta(t, 1.5, wrap(3.5, rng), 1e-9)
	assert.InDelta(t, 2.5, wrap(0.5, rng), 1e-9)
	assert.Equal(t, 0.0, wrap(7, tracks.Range{Start: 0, End: 0}))
}

func TestGlobalCaptureRestore(t *testing.T) {
	cfg := config.Default()
	cfg.PreAnimated.GlobalCapture = true
	l := newLinker(t, Options{Config: cfg})
	actor := object.NewActor("hero")
	l.Bindings.Bind("hero", actor)
	rt := NewRuntime(l)

	rt.Play(opacitySequence(tracks.KeepState, 1,
		opacity("fade", tracks.Range{Start: 0, End: 1}, blend.Absolute, 0.4)), PlayOptions{})
	require.NoError(t, rt.Tick(1))
	require.NoError(t, rt.Tick(1))
	assert.InDelta(t, 0.4, actor.Opacity, 1e-9, "kept after finishing")

	assert.Equal(t, 1, l.RestoreGlobalState())
	assert.InDelta(t, 1.0, actor.Opacity, 1e-9)

	l.SetGlobalCapture(false)
	l.SetGlobalCapture(false)
}

func TestCollectGarbage(t *testing.T) {
	l := newLinker(t, Options{})
	actor := object.NewActor("hero")
	l.Bindings.Bind("hero", actor)
	rt := NewRuntime(l)
	rt.Play(opacitySequence(tracks.KeepState, 10,
		opacity("fade", tracks.Range{Start: 0, End: 10}, blend.Absolute, 0.5)), PlayOptions{})
	require.NoError(t, rt.Tick(1))
	require.Equal(t, 1, l.Standard.Float.Stats.NumProperties)

	actor.MarkGarbage()
	assert.Positive(t, l.CollectGarbage())
	require.NoError(t, rt.Evaluate())
	assert.Equal(t, 0, l.Standard.Float.Stats.NumProperties)
}

func TestInterrogationLinkerWritesNothing(t *testing.T) {
	l := newLinker(t, Options{Name: "interrogation", Interrogation: true})
	assert.True(t, l.IsInterrogation())
	_, ok := ms.FindSystem[*property.Setter](l.Linker)
	assert.False(t, ok)
	_, ok = ms.FindSystem[*property.Instantiator](l.Linker)
	assert.True(t, ok)
	assert.Nil(t, l.BoundObjects)
}

func TestNewLinkerRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Evaluation.ChunkSize = 0
	_, err := NewLinker(Options{Config: cfg})
	assert.True(t, eris.Is(err, config.ErrInvalid))
}

func TestTagLookup(t *testing.T) {
	l := newLinker(t, Options{})
	tag, ok := l.TagLookup()("Transform")
	require.True(t, ok)
	assert.Equal(t, l.Standard.Transform.Tag, tag)
	_, ok = l.TagLookup()("Nope")
	assert.False(t, ok)
	assert.Same(t, l.Config(), l.config)
}
