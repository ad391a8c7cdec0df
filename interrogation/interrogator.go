// Package interrogation evaluates sections in a sandboxed linker to answer
// "what would this property be at time t" without touching live objects.
// Each interrogated property gets a channel; every interrogation time spawns
// one sample entity per imported section and channel.
package interrogation

import (
	ms "github.com/edwinsyarief/moviescene"
	"github.com/edwinsyarief/moviescene/evaluation"
	"github.com/edwinsyarief/moviescene/property"
	"github.com/edwinsyarief/moviescene/tracks"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

var (
	// ErrInvalidChannel is returned for channels that are not allocated.
	ErrInvalidChannel = eris.New("invalid interrogation channel")
	// ErrNothingImported is returned when a section contributes no components.
	ErrNothingImported = eris.New("section imported nothing")
	// ErrPathMismatch is returned when a property section animates a different
	// path than its channel.
	ErrPathMismatch = eris.New("section path does not match channel")
)

// Channel identifies one interrogated property.
type Channel int

// InvalidChannel is returned when no channel could be allocated.
const InvalidChannel Channel = -1

type template struct {
	entity ms.Entity
	rng    tracks.Range
}

type channelState struct {
	live      bool
	object    any
	path      string
	templates []template
	owners    map[any]ms.Entity
}

// Interrogator owns an interrogation linker and its channels. It is not safe
// for concurrent use.
type Interrogator struct {
	linker   *evaluation.Linker
	channels []channelState
	next     int
	numLive  int
	times    []float64
	samples  []ms.Entity
	log      zerolog.Logger
}

// NewInterrogator creates an interrogator with its own linker. The channel
// capacity comes from the configuration.
func NewInterrogator(opts evaluation.Options) (*Interrogator, error) {
	opts.Interrogation = true
	if opts.Name == "" {
		opts.Name = "interrogation"
	}
	l, err := evaluation.NewLinker(opts)
	if err != nil {
		return nil, eris.Wrap(err, "creating interrogation linker")
	}
	return &Interrogator{
		linker:   l,
		channels: make([]channelState, l.Config().Interrogation.ChannelCapacity),
		log:      l.Logger().With().Str("component", "interrogator").Logger(),
	}, nil
}

// Linker returns the interrogation linker.
func (it *Interrogator) Linker() *evaluation.Linker {
	return it.linker
}

// NumChannels returns the number of allocated channels.
func (it *Interrogator) NumChannels() int {
	return it.numLive
}

// AllocateChannel allocates a channel for the property at path of obj. obj
// only supplies initial values and may be nil. Allocation continues after the
// last channel handed out and wraps around; running out of channels fails an
// ensure and returns InvalidChannel.
func (it *Interrogator) AllocateChannel(obj any, path string) Channel {
	n := len(it.channels)
	for k := range n {
		idx := (it.next + k) % n
		if it.channels[idx].live {
			continue
		}
		it.channels[idx] = channelState{live: true, object: obj, path: path, owners: make(map[any]ms.Entity)}
		it.next = (idx + 1) % n
		it.numLive++
		return Channel(idx)
	}
	ms.Ensure(false, "interrogation channels exhausted")
	return InvalidChannel
}

func (it *Interrogator) channel(ch Channel) (*channelState, error) {
	if ch < 0 || int(ch) >= len(it.channels) || !it.channels[ch].live {
		return nil, eris.Wrapf(ErrInvalidChannel, "channel %d", ch)
	}
	return &it.channels[ch], nil
}

// ReleaseChannel frees a channel and unlinks everything imported into it.
func (it *Interrogator) ReleaseChannel(ch Channel) error {
	c, err := it.channel(ch)
	if err != nil {
		return err
	}
	for _, t := range c.templates {
		it.linker.MarkForUnlink(t.entity)
	}
	*c = channelState{}
	it.numLive--
	return nil
}

// ImportSection imports a section into a channel and returns its entity. The
// section is owner of the entity for FindEntityFromOwner.
func (it *Interrogator) ImportSection(ch Channel, s tracks.Section) (ms.Entity, error) {
	c, err := it.channel(ch)
	if err != nil {
		return ms.InvalidEntity, err
	}
	if ps, ok := s.(*tracks.PropertySection); ok && ps.Path != c.path {
		return ms.InvalidEntity, eris.Wrapf(ErrPathMismatch, "section %s animates %q, channel %d is %q", ps.Name, ps.Path, ch, c.path)
	}
	l := it.linker.Linker
	base := s.Base()
	builder := tracks.SectionBuilder(l, base)
	mask := builder.Mask()
	out := tracks.ImportedEntity{Builder: builder}
	s.ImportEntity(l, tracks.ImportParams{Section: base}, &out)
	if out.Builder.Mask() == mask {
		return ms.InvalidEntity, eris.Wrapf(ErrNothingImported, "section %s", base.Name)
	}
	e := out.Builder.Create(l.Entities)
	c.templates = append(c.templates, template{entity: e, rng: base.Range})
	c.owners[s] = e
	return e, nil
}

// FindEntityFromOwner returns the entity owner was imported as in ch.
func (it *Interrogator) FindEntityFromOwner(owner any, ch Channel) (ms.Entity, bool) {
	c, err := it.channel(ch)
	if err != nil {
		return ms.InvalidEntity, false
	}
	e, ok := c.owners[owner]
	return e, ok
}

// AddInterrogation adds a time to evaluate every channel at and returns its
// index.
func (it *Interrogator) AddInterrogation(t float64) int {
	it.times = append(it.times, t)
	return len(it.times) - 1
}

// Times returns the interrogation times in index order.
func (it *Interrogator) Times() []float64 {
	return it.times
}

// Update replaces the samples of the previous update with one sample per
// section, channel and interrogation time whose section range covers the
// time, and evaluates them.
func (it *Interrogator) Update() error {
	l := it.linker.Linker
	b := l.Builtins
	for _, e := range it.samples {
		l.MarkForUnlink(e)
	}
	it.samples = it.samples[:0]
	for ch := range it.channels {
		c := &it.channels[ch]
		if !c.live {
			continue
		}
		for _, tmpl := range c.templates {
			for idx, t := range it.times {
				if !tmpl.rng.Contains(t) {
					continue
				}
				sample := tracks.SpawnChild(l, tmpl.entity, func(builder *ms.EntityBuilder) {
					ms.With(builder, b.Interrogation, ms.InterrogationKey{Channel: ch, Index: idx})
					ms.With(builder, b.EvalTime, t)
					ms.WithConditional(builder, b.BoundObject, c.object, c.object != nil)
				})
				it.samples = append(it.samples, sample)
			}
		}
	}
	if err := l.Evaluate(); err != nil {
		return eris.Wrap(err, "evaluating interrogation")
	}
	it.log.Debug().Int("samples", len(it.samples)).Int("times", len(it.times)).Msg("interrogation updated")
	return nil
}

// Reset releases every channel and interrogation time.
func (it *Interrogator) Reset() error {
	l := it.linker.Linker
	for _, e := range it.samples {
		l.MarkForUnlink(e)
	}
	for ch := range it.channels {
		if it.channels[ch].live {
			_ = it.ReleaseChannel(Channel(ch))
		}
	}
	it.samples = it.samples[:0]
	it.times = it.times[:0]
	it.next = 0
	if err := l.Evaluate(); err != nil {
		return eris.Wrap(err, "resetting interrogation")
	}
	return nil
}

// QueryValues returns the value of ch at every interrogation time as of the
// last Update. Times at which no section animates the channel report the
// channel object's current value.
func QueryValues[P, O any](it *Interrogator, def *property.Definition[P, O], ch Channel) ([]P, error) {
	c, err := it.channel(ch)
	if err != nil {
		return nil, err
	}
	l := it.linker
	out := make([]P, len(it.times))
	for idx := range it.times {
		key := property.PropertyKey{Object: ms.InterrogationKey{Channel: int(ch), Index: idx}, Path: c.path}
		inst := l.Instantiator.Find(def.PropertyDefinition, key)
		if inst == nil || !inst.Writer().IsValid() {
			out[idx] = def.FromOperational(def.Current(l.Resolver, c.object, c.path))
			continue
		}
		out[idx] = def.FromOperational(def.Evaluated(l.Entities, l.Builtins, inst.Writer()))
	}
	return out, nil
}
