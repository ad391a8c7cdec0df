package tracks

import (
	"slices"
	"sync"

	ms "github.com/edwinsyarief/moviescene"
	"github.com/edwinsyarief/moviescene/blend"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// ErrUnknownInstance is returned for handles that were never allocated or
// were already destroyed.
var ErrUnknownInstance = eris.New("unknown sequence instance")

// Registry is the per-linker set of sequence instances. Evaluators read the
// current time of an entity's instance from it.
type Registry struct {
	mu        sync.RWMutex
	next      ms.InstanceHandle
	instances map[ms.InstanceHandle]*Instance
}

// GetRegistry returns the instance registry of a linker, creating it on first
// use.
func GetRegistry(l *ms.Linker) *Registry {
	return ms.GetOrAddExtension(&l.Extensions, func() *Registry {
		return &Registry{instances: make(map[ms.InstanceHandle]*Instance)}
	})
}

// Allocate creates an instance of seq.
func (r *Registry) Allocate(l *ms.Linker, seq *Sequence) *Instance {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	inst := &Instance{
		handle:   r.next,
		registry: r,
		linker:   l,
		seq:      seq,
		field:    BuildField(seq),
		imported: make(map[EntryKey]ms.Entity),
		log:      l.Logger().With().Str("sequence", seq.Name).Uint32("instance", uint32(r.next)).Logger(),
	}
	r.instances[inst.handle] = inst
	inst.log.Debug().Int("entries", inst.field.Len()).Msg("sequence instance allocated")
	return inst
}

// Find returns an instance by handle.
func (r *Registry) Find(h ms.InstanceHandle) *Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.instances[h]
}

// Time returns the current time of an instance.
func (r *Registry) Time(h ms.InstanceHandle) (float64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if inst, ok := r.instances[h]; ok {
		return inst.time, true
	}
	return 0, false
}

// Instances returns every live instance in allocation order.
func (r *Registry) Instances() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Instance, 0, len(r.instances))
	for _, inst := range r.instances {
		out = append(out, inst)
	}
	slices.SortFunc(out, func(a, b *Instance) int { return int(a.handle) - int(b.handle) })
	return out
}

// Destroy finishes an instance and forgets it.
func (r *Registry) Destroy(h ms.InstanceHandle) error {
	r.mu.Lock()
	inst, ok := r.instances[h]
	delete(r.instances, h)
	r.mu.Unlock()
	if !ok {
		return eris.Wrapf(ErrUnknownInstance, "destroying instance %d", h)
	}
	inst.Finish()
	return nil
}

// Instance is one playback of a sequence in a linker.
type Instance struct {
	handle   ms.InstanceHandle
	registry *Registry
	linker   *ms.Linker
	seq      *Sequence
	field    *Field

	time     float64
	valid    Range
	hasValid bool
	imported map[EntryKey]ms.Entity
	log      zerolog.Logger
}

// Handle returns the instance handle stamped on every imported entity.
func (i *Instance) Handle() ms.InstanceHandle {
	return i.handle
}

// Sequence returns the sequence being played.
func (i *Instance) Sequence() *Sequence {
	return i.seq
}

// Time returns the current evaluation time.
func (i *Instance) Time() float64 {
	i.registry.mu.RLock()
	defer i.registry.mu.RUnlock()
	return i.time
}

// Imported returns the entity a section was imported as.
func (i *Instance) Imported(key EntryKey) (ms.Entity, bool) {
	e, ok := i.imported[key]
	return e, ok
}

// NumImported returns the number of imported sections.
func (i *Instance) NumImported() int {
	return len(i.imported)
}

// Update moves the instance to time t. Sections that became relevant are
// imported and sections that stopped being relevant are unlinked; the
// structural changes take effect at the next evaluation.
func (i *Instance) Update(t float64) {
	i.registry.mu.Lock()
	i.time = t
	i.registry.mu.Unlock()
	if i.hasValid && i.valid.Contains(t) {
		return
	}
	entries, valid := i.field.Query(t)
	i.valid, i.hasValid = valid, true

	want := make(map[EntryKey]EntryMetadata, len(entries))
	for _, meta := range entries {
		want[meta.Key] = meta
	}
	unlinked := 0
	for key, e := range i.imported {
		if _, ok := want[key]; !ok {
			i.linker.MarkForUnlink(e)
			delete(i.imported, key)
			unlinked++
		}
	}
	imported := 0
	for _, meta := range entries {
		if _, ok := i.imported[meta.Key]; ok {
			continue
		}
		if e, ok := i.importEntry(meta); ok {
			i.imported[meta.Key] = e
			imported++
		}
	}
	if imported+unlinked > 0 {
		i.log.Debug().Float64("time", t).Int("imported", imported).Int("unlinked", unlinked).Msg("evaluation field changed")
	}
}

// Finish unlinks every imported entity.
func (i *Instance) Finish() {
	for key, e := range i.imported {
		i.linker.MarkForUnlink(e)
		delete(i.imported, key)
	}
	i.hasValid = false
}

func (i *Instance) importEntry(meta EntryMetadata) (ms.Entity, bool) {
	l := i.linker
	b := l.Builtins
	track := i.seq.Tracks[meta.Key.Track]
	s := track.Sections[meta.Key.Section]
	base := s.Base()

	builder := SectionBuilder(l, base).AddTag(b.NeedsLink)
	ms.With(builder, b.InstanceHandle, i.handle)
	ms.WithConditional(builder, b.ObjectBinding, track.ObjectBinding, track.ObjectBinding != "")
	ms.WithConditional(builder, b.EvalTime, meta.ForcedTime, meta.Forced)
	mode := base.Completion
	if mode == ProjectDefault {
		mode = i.seq.DefaultCompletion
	}
	builder.AddTagConditional(b.RestoreState, mode == RestoreState)

	mask := builder.Mask()
	out := ImportedEntity{Builder: builder}
	s.ImportEntity(l, ImportParams{Instance: i.handle, ObjectBinding: track.ObjectBinding, Section: base}, &out)
	if out.Builder.Mask() == mask {
		// the section contributed nothing
		return ms.InvalidEntity, false
	}
	return out.Builder.Create(l.Entities), true
}

// SectionBuilder starts the imported entity of a section with the components
// every section shares: the import tag, hierarchical bias, blend type, weight
// channel and easing envelope.
func SectionBuilder(l *ms.Linker, base *SectionBase) *ms.EntityBuilder {
	b := l.Builtins
	builder := ms.NewEntityBuilder().AddTag(b.ImportedEntity)
	ms.WithConditional(builder, b.HierarchicalBias, base.Bias, base.Bias != 0)
	switch base.Blend {
	case blend.Relative:
		builder.AddTag(b.RelativeBlend)
	case blend.Additive:
		builder.AddTag(b.AdditiveBlend)
	case blend.AdditiveFromBase:
		builder.AddTag(b.AdditiveFromBaseBlend)
	default:
		builder.AddTag(b.AbsoluteBlend)
	}
	ms.WithConditional(builder, b.WeightChannel, base.Weight, base.Weight != nil)
	if c := FindComponents(l); c != nil && (base.Easing.EaseIn > 0 || base.Easing.EaseOut > 0) {
		easing := base.Easing
		easing.Start, easing.End = base.Range.Start, base.Range.End
		ms.With(builder, c.Easing, easing)
	}
	return builder
}
