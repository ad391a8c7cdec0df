package scenario

import (
	"math"
	"slices"

	ms "github.com/edwinsyarief/moviescene"
	"github.com/edwinsyarief/moviescene/blend"
	"github.com/edwinsyarief/moviescene/channel"
	"github.com/edwinsyarief/moviescene/evaluation"
	"github.com/edwinsyarief/moviescene/math3d"
	"github.com/edwinsyarief/moviescene/object"
	"github.com/edwinsyarief/moviescene/rcprotocol"
	"github.com/edwinsyarief/moviescene/scene"
	"github.com/edwinsyarief/moviescene/tracks"
	"github.com/rotisserie/eris"
)

// Built is a scenario instantiated against a linker.
type Built struct {
	// Objects maps object IDs to the created host objects.
	Objects  map[string]any
	Sequence *tracks.Sequence
	// Router dispatches remote control values to the protocol entities.
	Router *rcprotocol.Router
}

// Build creates the objects, binds them in l and assembles the sequence.
func (s *Scenario) Build(l *evaluation.Linker) (*Built, error) {
	out := &Built{Objects: make(map[string]any, len(s.Objects)), Router: rcprotocol.NewRouter()}
	for _, o := range s.Objects {
		obj, err := newObject(o)
		if err != nil {
			return nil, err
		}
		out.Objects[o.ID] = obj
		l.Bindings.Bind(o.ID, obj)
	}
	for _, o := range s.Objects {
		if o.Parent == "" {
			continue
		}
		child, parent := object.SceneComponentOf(out.Objects[o.ID]), object.SceneComponentOf(out.Objects[o.Parent])
		if child == nil || parent == nil {
			return nil, eris.Wrapf(ErrInvalid, "object %q cannot be attached to %q", o.ID, o.Parent)
		}
		child.AttachTo(parent, object.KeepRelative)
	}
	for id, members := range s.Bindings {
		objs := make([]any, 0, len(members))
		for _, m := range members {
			objs = append(objs, out.Objects[m])
		}
		l.Bindings.Bind(id, objs...)
	}

	seq := &tracks.Sequence{
		Name:              s.Name,
		Range:             tracks.Infinite,
		DefaultCompletion: tracks.ParseCompletionMode(s.Completion),
	}
	for _, t := range s.Tracks {
		track := &tracks.Track{Name: t.Name, ObjectBinding: t.Binding}
		for _, sec := range t.Sections {
			built, err := s.buildSection(l, sec)
			if err != nil {
				return nil, eris.Wrapf(err, "track %s", t.Name)
			}
			track.Sections = append(track.Sections, built)
		}
		seq.Tracks = append(seq.Tracks, track)
	}
	seq.Range = s.sequenceRange(seq)
	out.Sequence = seq

	for _, p := range s.Protocol {
		target, err := rcprotocol.NewObjectTarget[float64](l.Resolver, out.Objects[p.Object], p.Path)
		if err != nil {
			return nil, eris.Wrapf(err, "protocol entity %s", p.Name)
		}
		mappings := make([]rcprotocol.Mapping[float64], 0, len(p.Mappings))
		for _, m := range p.Mappings {
			mappings = append(mappings, rcprotocol.Mapping[float64]{Input: m.Input, Value: m.Value})
		}
		out.Router.Bind(rcprotocol.Binding{Protocol: p.Protocol, Address: p.Address}, &rcprotocol.Entity[float64]{
			Name:    p.Name,
			Mapping: rcprotocol.NewRangeMapping(rcprotocol.LerpFloat, mappings...),
			Target:  target,
		})
	}
	return out, nil
}

// sequenceRange is the declared range, or the union of the section ranges.
func (s *Scenario) sequenceRange(seq *tracks.Sequence) tracks.Range {
	if len(s.Range) == 2 {
		return tracks.Range{Start: s.Range[0], End: s.Range[1]}
	}
	r := tracks.Range{Start: math.Inf(1), End: math.Inf(-1)}
	for _, t := range seq.Tracks {
		for _, sec := range t.Sections {
			b := sec.Base().Range
			r.Start, r.End = math.Min(r.Start, b.Start), math.Max(r.End, b.End)
		}
	}
	if r.Empty() {
		return tracks.Range{}
	}
	return r
}

func newObject(o Object) (any, error) {
	mobility, ok := object.ParseMobility(o.Mobility)
	if !ok {
		return nil, eris.Wrapf(ErrInvalid, "object %q has unknown mobility %q", o.ID, o.Mobility)
	}
	scale := math3d.One
	if o.Scale != nil {
		scale = math3d.Vec3(o.Scale[0], o.Scale[1], o.Scale[2])
	}
	transform := math3d.EulerTransform{
		Location: math3d.Vec3(o.Location[0], o.Location[1], o.Location[2]),
		Rotation: math3d.Rotator{Pitch: o.Rotation[0], Yaw: o.Rotation[1], Roll: o.Rotation[2]},
		Scale:    scale,
	}.Transform()

	switch o.Kind {
	case "", "actor":
		a := object.NewActor(o.ID)
		a.Root.Mobility = mobility
		a.Root.InitRelativeTransform(transform)
		if o.Opacity != nil {
			a.Opacity = *o.Opacity
		}
		return a, nil
	case "component":
		c := object.NewSceneComponent(o.ID)
		c.Mobility = mobility
		c.InitRelativeTransform(transform)
		return c, nil
	case "light":
		return &object.Light{Name: o.ID}, nil
	}
	return nil, eris.Wrapf(ErrInvalid, "object %q has unknown kind %q", o.ID, o.Kind)
}

func (s *Scenario) buildSection(l *evaluation.Linker, sec Section) (tracks.Section, error) {
	kind, ok := blend.ParseKind(sec.Blend)
	if !ok {
		return nil, eris.Wrapf(ErrInvalid, "section %q has unknown blend %q", sec.Name, sec.Blend)
	}
	base := tracks.SectionBase{
		Name:       sec.Name,
		Range:      tracks.Infinite,
		Blend:      kind,
		Completion: tracks.ParseCompletionMode(sec.Completion),
		Bias:       sec.Bias,
		Easing: tracks.Easing{
			EaseIn:  sec.EaseIn,
			EaseOut: sec.EaseOut,
			InKind:  channel.ParseEasing(sec.EaseInKind),
			OutKind: channel.ParseEasing(sec.EaseOutKind),
		},
		Inactive: sec.Inactive,
	}
	if len(sec.Range) == 2 {
		base.Range = tracks.Range{Start: sec.Range[0], End: sec.Range[1]}
	} else if len(s.Range) == 2 {
		base.Range = tracks.Range{Start: s.Range[0], End: s.Range[1]}
	}
	if sec.Weight != nil {
		w, err := buildChannel(*sec.Weight)
		if err != nil {
			return nil, eris.Wrapf(err, "weight of section %s", sec.Name)
		}
		base.Weight = w
	}

	if sec.Kind == "attach" {
		attach, ok1 := object.ParseAttachmentRule(sec.AttachRule)
		detach, ok2 := object.ParseAttachmentRule(sec.DetachRule)
		if !ok1 || !ok2 {
			return nil, eris.Wrapf(ErrInvalid, "attach section %q has an unknown rule", sec.Name)
		}
		return &scene.AttachSection{
			SectionBase: base,
			Attachment:  scene.Attachment{ParentBinding: sec.Parent, AttachRule: attach, DetachRule: detach},
		}, nil
	}

	def := l.Properties.Find(sec.Property)
	if def == nil {
		return nil, eris.Wrapf(ErrInvalid, "section %q animates unknown property %q", sec.Name, sec.Property)
	}
	ps := &tracks.PropertySection{SectionBase: base, Property: sec.Property, Path: sec.Path, BaseTime: sec.BaseTime}
	names := make([]string, 0, len(sec.Channels))
	for name := range sec.Channels {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		c := def.CompositeIndex(name)
		if c < 0 {
			return nil, eris.Wrapf(ErrInvalid, "property %s has no composite %q", def.Name, name)
		}
		src, err := buildChannel(sec.Channels[name])
		if err != nil {
			return nil, eris.Wrapf(err, "channel %s of section %s", name, sec.Name)
		}
		ps.Channels[c] = src
	}
	if sec.Bool != nil {
		curve := &channel.BoolCurve{}
		for _, k := range sec.Bool.Keys {
			curve.Keys = append(curve.Keys, channel.BoolKey{Time: k.Time, Value: k.Value})
		}
		if sec.Bool.Default != nil {
			curve.Default, curve.HasDefault = *sec.Bool.Default, true
		}
		ps.Bool = curve
	}
	return ps, nil
}

func buildChannel(c Channel) (ms.DoubleSource, error) {
	if c.Expression != "" {
		expr, err := channel.NewExpression(c.Expression)
		if err != nil {
			return nil, err
		}
		return expr, nil
	}
	keys := make([]channel.Key, 0, len(c.Keys))
	for _, k := range c.Keys {
		keys = append(keys, channel.Key{
			Time:          k.Time,
			Value:         k.Value,
			Interp:        channel.ParseInterpolation(k.Interp),
			ArriveTangent: k.Arrive,
			LeaveTangent:  k.Leave,
		})
	}
	curve := channel.NewCurve(keys...)
	if c.Default != nil {
		curve.Default, curve.HasDefault = *c.Default, true
	}
	return curve, nil
}
