package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/edwinsyarief/moviescene/evaluation"
	"github.com/edwinsyarief/moviescene/object"
	"github.com/edwinsyarief/moviescene/rcprotocol"
	"github.com/edwinsyarief/moviescene/scene"
	"github.com/edwinsyarief/moviescene/tracks"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shot = `
name: shot
completion: restore
objects:
  - id: hero
    mobility: movable
    location: [5, 0, 0]
  - id: rig
    kind: component
    location: [100, 0, 0]
  - id: lamp
    kind: light
bindings:
  everyone: [hero, rig]
tracks:
  - name: fade
    binding: hero
    sections:
      - name: fade
        property: Float
        path: Opacity
        range: [0, 4]
        channels:
          Value:
            keys:
              - {time: 0, value: 0}
              - {time: 4, value: 1}
  - name: move
    binding: hero
    sections:
      - name: slide
        property: Transform
        path: Transform
        range: [0, 4]
        blend: additive
        channels:
          Location.Y:
            expression: "value := t * 10"
      - name: mount
        kind: attach
        parent: rig
        range: [2, 3]
        detach_rule: keep_world
protocol:
  - name: fader
    protocol: osc
    address: /hero/opacity
    object: hero
    path: Opacity
    mappings:
      - {input: 0, value: 0}
      - {input: 100, value: 1}
`

func build(t *testing.T, doc string) (*evaluation.Linker, *Built) {
	t.Helper()
	s, err := Parse([]byte(doc))
	require.NoError(t, err)
	l, err := evaluation.NewLinker(evaluation.Options{})
	require.NoError(t, err)
	built, err := s.Build(l)
	require.NoError(t, err)
	return l, built
}

func TestBuildObjectsAndBindings(t *testing.T) {
	l, built := build(t, shot)
	require.Len(t, built.Objects, 3)

	hero := built.Objects["hero"].(*object.Actor)
	assert.Equal(t, object.Movable, hero.Root.Mobility)
	assert.InDelta(t, 5.0, hero.Root.RelativeTransform().Translation.X, 1e-9)
	assert.IsType(t, &object.SceneComponent{}, built.Objects["rig"])
	assert.IsType(t, &object.Light{}, built.Objects["lamp"])

	assert.Equal(t, []any{hero}, l.Bindings.Resolve("hero"))
	assert.Len(t, l.Bindings.Resolve("everyone"), 2)
}

func TestBuildSequence(t *testing.T) {
	_, built := build(t, shot)
	seq := built.Sequence
	assert.Equal(t, tracks.RestoreState, seq.DefaultCompletion)
	assert.Equal(t, tracks.Range{Start: 0, End: 4}, seq.Range, "union of the section ranges")
	require.Len(t, seq.Tracks, 2)

	move := seq.Tracks[1].Sections
	require.Len(t, move, 2)
	slide := move[0].(*tracks.PropertySection)
	assert.NotNil(t, slide.Channels[1], "Location.Y")
	assert.Nil(t, slide.Channels[0])
	mount := move[1].(*scene.AttachSection)
	assert.Equal(t, "rig", mount.Attachment.ParentBinding)
	assert.Equal(t, object.KeepWorld, mount.Attachment.DetachRule)
}

func TestPlayScenario(t *testing.T) {
	l, built := build(t, shot)
	hero := built.Objects["hero"].(*object.Actor)
	rt := evaluation.NewRuntime(l)
	rt.Play(built.Sequence, evaluation.PlayOptions{})

	require.NoError(t, rt.Tick(1))
	require.NoError(t, rt.Tick(1))
	assert.InDelta(t, 0.25, hero.Opacity, 1e-9)
	assert.InDelta(t, 10.0, hero.Root.RelativeTransform().Translation.Y, 1e-9)
	assert.Nil(t, hero.Root.AttachParent())

	require.NoError(t, rt.Tick(1))
	assert.Same(t, built.Objects["rig"], hero.Root.AttachParent())

	for range 3 {
		require.NoError(t, rt.Tick(1))
	}
	assert.Empty(t, rt.Playing())
	assert.InDelta(t, 1.0, hero.Opacity, 1e-9, "restored")
	assert.Nil(t, hero.Root.AttachParent())
	assert.InDelta(t, 5.0, hero.Root.RelativeTransform().Translation.X, 1e-9)
	assert.InDelta(t, 0.0, hero.Root.RelativeTransform().Translation.Y, 1e-9)
}

func TestProtocolRouting(t *testing.T) {
	_, built := build(t, shot)
	hero := built.Objects["hero"].(*object.Actor)
	require.NoError(t, built.Router.Dispatch(rcprotocol.Binding{Protocol: "osc", Address: "/hero/opacity"}, 30))
	assert.InDelta(t, 0.3, hero.Opacity, 1e-9)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		doc  string
	}{
		{"duplicate id", "objects: [{id: a}, {id: a}]"},
		{"unknown parent", "objects: [{id: a, parent: b}]"},
		{"bad range", "range: [3, 1]"},
		{"binding to nothing", "bindings: {x: [missing]}"},
		{"unknown section kind", "tracks: [{name: t, sections: [{name: s, kind: audio}]}]"},
		{"keys and expression", "tracks: [{name: t, sections: [{name: s, property: Float, channels: {Value: {expression: t, keys: [{time: 0, value: 1}]}}}]}]"},
		{"attach without parent", "tracks: [{name: t, sections: [{name: s, kind: attach}]}]"},
		{"single mapping", "objects: [{id: a}]\nprotocol: [{name: p, object: a, mappings: [{input: 0, value: 0}]}]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.doc))
			assert.True(t, eris.Is(err, ErrInvalid), "%v", err)
		})
	}
}

func TestBuildRejectsUnknownNames(t *testing.T) {
	l, err := evaluation.NewLinker(evaluation.Options{})
	require.NoError(t, err)

	for _, doc := range []string{
		"objects: [{id: a, kind: camera}]",
		"objects: [{id: a, mobility: flying}]",
		"tracks: [{name: t, sections: [{name: s, property: Missing}]}]",
		"tracks: [{name: t, sections: [{name: s, property: Float, channels: {Nope: {keys: [{time: 0, value: 1}]}}}]}]",
		"tracks: [{name: t, sections: [{name: s, property: Float, blend: sideways}]}]",
	} {
		s, err := Parse([]byte(doc))
		require.NoError(t, err, doc)
		_, err = s.Build(l)
		assert.True(t, eris.Is(err, ErrInvalid), doc)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(shot), 0o600))
	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "shot", s.Name)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
