package interrogation

import (
	"testing"

	ms "github.com/edwinsyarief/moviescene"
	"github.com/edwinsyarief/moviescene/blend"
	"github.com/edwinsyarief/moviescene/channel"
	"github.com/edwinsyarief/moviescene/config"
	"github.com/edwinsyarief/moviescene/evaluation"
	"github.com/edwinsyarief/moviescene/object"
	"github.com/edwinsyarief/moviescene/tracks"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInterrogator(t *testing.T, capacity int) *Interrogator {
	t.Helper()
	cfg := config.Default()
	cfg.Interrogation.ChannelCapacity = capacity
	it, err := NewInterrogator(evaluation.Options{Config: cfg})
	require.NoError(t, err)
	return it
}

func opacity(name string, rng tracks.Range, kind blend.Kind, src ms.DoubleSource) *tracks.PropertySection {
	return &tracks.PropertySection{
		SectionBase: tracks.SectionBase{Name: name, Range: rng, Blend: kind},
		Property:    "Float",
		Path:        "Opacity",
		Channels:    [ms.NumDoubleChannels]ms.DoubleSource{0: src},
	}
}

func TestChannelRing(t *testing.T) {
	it := newInterrogator(t, 2)
	a := it.AllocateChannel(nil, "Opacity")
	b := it.AllocateChannel(nil, "Opacity")
	assert.Equal(t, Channel(0), a)
	assert.Equal(t, Channel(1), b)
	assert.Equal(t, InvalidChannel, it.AllocateChannel(nil, "Opacity"), "exhausted")

	require.NoError(t, it.ReleaseChannel(a))
	assert.Equal(t, a, it.AllocateChannel(nil, "Opacity"))
	assert.Equal(t, 2, it.NumChannels())
	assert.True(t, eris.Is(it.ReleaseChannel(7), ErrInvalidChannel))
}

func TestQueryValuesLeavesObjectAlone(t *testing.T) {
	it := newInterrogator(t, 8)
	actor := object.NewActor("hero")
	ch := it.AllocateChannel(actor, "Opacity")
	ramp := channel.NewCurve(channel.Key{Time: 0, Value: 0, Interp: channel.Linear}, channel.Key{Time: 10, Value: 10})
	section := opacity("ramp", tracks.Range{Start: 0, End: 10}, blend.Absolute, ramp)
	e, err := it.ImportSection(ch, section)
	require.NoError(t, err)

	owner, ok := it.FindEntityFromOwner(section, ch)
	require.True(t, ok)
	assert.Equal(t, e, owner)

	for _, tm := range []float64{0, 2.5, 5, 12} {
		it.AddInterrogation(tm)
	}
	require.NoError(t, it.Update())

	got, err := QueryValues(it, it.Linker().Standard.Float, ch)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.InDelta(t, 0.0, got[0], 1e-9)
	assert.InDelta(t, 2.5, got[1], 1e-9)
	assert.InDelta(t, 5.0, got[2], 1e-9)
	assert.InDelta(t, 1.0, got[3], 1e-9, "outside the section the object value is reported")
	assert.Equal(t, 1.0, actor.Opacity)
	assert.Equal(t, []float64{0, 2.5, 5, 12}, it.Times())
}

func TestQueryValuesBlends(t *testing.T) {
	it := newInterrogator(t, 8)
	ch := it.AllocateChannel(nil, "Opacity")
	_, err := it.ImportSection(ch, opacity("abs", tracks.Range{Start: 0, End: 10}, blend.Absolute, channel.ConstantCurve(10)))
	require.NoError(t, err)
	_, err = it.ImportSection(ch, opacity("add", tracks.Range{Start: 0, End: 10}, blend.Additive, channel.ConstantCurve(5)))
	require.NoError(t, err)
	it.AddInterrogation(1)
	it.AddInterrogation(2)
	require.NoError(t, it.Update())

	got, err := QueryValues(it, it.Linker().Standard.Float, ch)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{15, 15}, got, 1e-9)
	assert.Equal(t, 2, it.Linker().Blender.NumChannels(), "one blend channel per sample")

	// a second update replaces the samples instead of adding to them
	require.NoError(t, it.Update())
	assert.Equal(t, 2, it.Linker().Blender.NumChannels())
}

func TestImportErrors(t *testing.T) {
	it := newInterrogator(t, 4)
	ch := it.AllocateChannel(nil, "Opacity")

	wrong := opacity("wrong", tracks.Range{Start: 0, End: 1}, blend.Absolute, channel.ConstantCurve(1))
	wrong.Path = "Tint"
	_, err := it.ImportSection(ch, wrong)
	assert.True(t, eris.Is(err, ErrPathMismatch))

	_, err = it.ImportSection(Channel(3), opacity("x", tracks.Range{Start: 0, End: 1}, blend.Absolute, nil))
	assert.True(t, eris.Is(err, ErrInvalidChannel))

	_, err = QueryValues(it, it.Linker().Standard.Float, Channel(2))
	assert.True(t, eris.Is(err, ErrInvalidChannel))
	_, ok := it.FindEntityFromOwner(wrong, ch)
	assert.False(t, ok)
}

func TestReset(t *testing.T) {
	it := newInterrogator(t, 4)
	ch := it.AllocateChannel(nil, "Opacity")
	_, err := it.ImportSection(ch, opacity("abs", tracks.Range{Start: 0, End: 10}, blend.Absolute, channel.ConstantCurve(3)))
	require.NoError(t, err)
	_, err = it.ImportSection(ch, opacity("add", tracks.Range{Start: 0, End: 10}, blend.Additive, channel.ConstantCurve(1)))
	require.NoError(t, err)
	it.AddInterrogation(1)
	require.NoError(t, it.Update())
	require.Positive(t, it.Linker().Entities.NumEntities())

	require.NoError(t, it.Reset())
	assert.Equal(t, 0, it.NumChannels())
	assert.Empty(t, it.Times())
	assert.Equal(t, 0, it.Linker().Entities.NumEntities())
	assert.Equal(t, 0, it.Linker().Blender.NumChannels())
	assert.Equal(t, Channel(0), it.AllocateChannel(nil, "Opacity"))
}
