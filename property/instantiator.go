package property

import (
	"context"
	"math"

	ms "github.com/edwinsyarief/moviescene"
	"github.com/edwinsyarief/moviescene/blend"
	"github.com/edwinsyarief/moviescene/object"
	"github.com/edwinsyarief/moviescene/overlap"
	"github.com/edwinsyarief/moviescene/preanim"
	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InstantiatorName is the name the instantiator links under.
const InstantiatorName = "PropertyInstantiator"

// Instance states.
const (
	StateUnresolved = "unresolved"
	StateFast       = "fast"
	StateBlend      = "blend"
	StateStale      = "stale"
	StateDestroyed  = "destroyed"
)

// PropertyKey identifies one animated property: a bound object, or an
// interrogation key when evaluating in a sandbox, and a property path.
type PropertyKey struct {
	Object any
	Path   string
}

// Instance is the resolved state of one animated property.
type Instance struct {
	Key        PropertyKey
	Definition *PropertyDefinition
	Object     any
	Resolution object.Resolution

	// Channel is the blend channel, or blend.InvalidChannel on the fast path.
	Channel uint16
	// Output is the blend output entity while blended.
	Output ms.Entity
	// Fast is the entity that writes the property on the fast path.
	Fast ms.Entity
	// EmptyChannels has a bit set for every composite no contributor animates.
	EmptyChannels uint32
	// Teardowns counts how often a blend output was torn down.
	Teardowns int

	initial      any
	interrogated bool
	// restoreTagged is the writer the instantiator tagged RestoreState.
	restoreTagged ms.Entity
	partial       bool
	state         *fsm.FSM
}

// State returns the current state of the instance.
func (in *Instance) State() string {
	if in.state == nil {
		return StateUnresolved
	}
	return in.state.Current()
}

// Initial returns the operational value captured before the property was
// first animated.
func (in *Instance) Initial() any {
	return in.initial
}

// Writer returns the entity whose results are applied to the object.
func (in *Instance) Writer() ms.Entity {
	if in.Channel != blend.InvalidChannel {
		return in.Output
	}
	return in.Fast
}

func newInstanceFSM(key PropertyKey, def *PropertyDefinition) *fsm.FSM {
	return fsm.NewFSM(
		StateUnresolved,
		fsm.Events{
			{Name: StateFast, Src: []string{StateUnresolved, StateBlend}, Dst: StateFast},
			{Name: StateBlend, Src: []string{StateUnresolved, StateFast}, Dst: StateBlend},
			{Name: StateStale, Src: []string{StateUnresolved, StateFast, StateBlend}, Dst: StateStale},
			{Name: StateDestroyed, Src: []string{StateStale}, Dst: StateDestroyed},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				log.Debug().Str("property", def.Name).Str("path", key.Path).Str("from", e.Src).Str("to", e.Dst).Msg("property instance transition")
			},
		},
	)
}

func (in *Instance) fire(event string) {
	if in.state.Can(event) {
		_ = in.state.Event(context.Background(), event)
	}
}

type tracker = overlap.GarbageTracker[PropertyKey, Instance]

// Instantiator tracks every (object, property) pair that entities animate and
// decides per pair between the fast path (one plain absolute contributor
// writes directly) and the blend path (contributors feed a blend channel whose
// output entity writes).
type Instantiator struct {
	registry *Registry
	resolver *object.Resolver
	blender  *blend.Blender
	trackers []*tracker
	handlers []*instanceHandler
	log      zerolog.Logger
}

// NewInstantiator creates the instantiator for every definition of r and
// registers the blendable definitions with blender.
func NewInstantiator(r *Registry, resolver *object.Resolver, blender *blend.Blender) *Instantiator {
	in := &Instantiator{
		registry: r,
		resolver: resolver,
		blender:  blender,
		log:      log.With().Str("system", InstantiatorName).Logger(),
	}
	for _, def := range r.defs {
		h := &instanceHandler{in: in, def: def}
		in.handlers = append(in.handlers, h)
		in.trackers = append(in.trackers, overlap.NewGarbageTracker[PropertyKey, Instance](func(k PropertyKey) []any {
			if _, ok := k.Object.(ms.InterrogationKey); ok {
				return nil
			}
			return []any{k.Object}
		}, h))
		if def.Blendable && len(def.Composites) > 0 {
			t := blend.Target{Tag: def.Tag.ID(), InitialValue: def.InitialValueID, Composites: def.FloatCompositeMask}
			for c, comp := range def.Composites {
				t.Offsets[c] = comp.Offset
			}
			blender.RegisterTarget(t)
		}
	}
	return in
}

func (in *Instantiator) Name() string    { return InstantiatorName }
func (in *Instantiator) Phase() ms.Phase { return ms.PhaseInstantiation }

// Resolver returns the property resolver.
func (in *Instantiator) Resolver() *object.Resolver {
	return in.resolver
}

// Registry returns the definition registry.
func (in *Instantiator) Registry() *Registry {
	return in.registry
}

// Blender returns the blender the instantiator allocates channels from.
func (in *Instantiator) Blender() *blend.Blender {
	return in.blender
}

// OnLink subscribes the trackers to garbage tagging and orders the
// instantiator before pre-animated state caching.
func (in *Instantiator) OnLink(l *ms.Linker) {
	for i, tr := range in.trackers {
		h := in.handlers[i]
		h.l = l
		tr.Subscribe(l.Events)
	}
	l.Systems.AddPrerequisite(InstantiatorName, preanim.CacheSystemName)
}

func (in *Instantiator) IsRelevant(l *ms.Linker) bool {
	b := l.Builtins
	if l.Entities.Contains(ms.Filter{}.Any(b.NeedsLink.ID(), b.NeedsUnlink.ID())) {
		return true
	}
	for _, tr := range in.trackers {
		if tr.HasInvalidated() {
			return true
		}
	}
	return false
}

func (in *Instantiator) Run(l *ms.Linker) {
	b := l.Builtins
	for i, def := range in.registry.defs {
		h := in.handlers[i]
		h.l = l
		filter := ms.NewFilter(def.Tag.ID(), b.PropertyBinding.ID()).None(b.BlendChannelOutput.ID(), b.ImportedEntity.ID())
		in.trackers[i].Update(l, filter, func(a *ms.Allocation, i int) (PropertyKey, bool) {
			path := ms.Column(a, b.PropertyBinding)[i].Path
			if keys := ms.Column(a, b.Interrogation); keys != nil {
				return PropertyKey{Object: keys[i], Path: path}, true
			}
			if objs := ms.Column(a, b.BoundObject); objs != nil && objs[i] != nil {
				return PropertyKey{Object: objs[i], Path: path}, true
			}
			return PropertyKey{}, false
		})
		in.trackers[i].ProcessInvalidatedOutputs(h)
	}
}

// Find returns the live instance of a key.
func (in *Instantiator) Find(def *PropertyDefinition, key PropertyKey) *Instance {
	if inst, ok := in.trackers[def.Index].Find(key); ok {
		return inst
	}
	return nil
}

// Contributors returns the entities currently animating a key.
func (in *Instantiator) Contributors(def *PropertyDefinition, key PropertyKey) []ms.Entity {
	return in.trackers[def.Index].Inputs(key)
}

// Range calls fn for every live instance of a definition.
func (in *Instantiator) Range(def *PropertyDefinition, fn func(*Instance) bool) {
	in.trackers[def.Index].Range(func(_ PropertyKey, inst *Instance) bool {
		return fn(inst)
	})
}

// CachePreAnimatedState captures the initial value of every writer entity
// tagged CachePreAnimatedValue.
func (in *Instantiator) CachePreAnimatedState(l *ms.Linker, ext *preanim.Extension) {
	for _, def := range in.registry.defs {
		def.ops.cache(l, in.resolver, in.registry.accessors, ext)
	}
}

// PreAnimatedKey is the pre-animated storage key of a property.
func PreAnimatedKey(def *PropertyDefinition, obj any, path string) preanim.Key {
	return preanim.Key{Object: obj, Storage: def.Name + ":" + path}
}

// instanceHandler receives the tracker callbacks of one definition.
type instanceHandler struct {
	in  *Instantiator
	def *PropertyDefinition
	l   *ms.Linker
}

func (h *instanceHandler) InitializeOutput(key PropertyKey, inputs []ms.Entity, inst *Instance, agg overlap.Aggregate) {
	*inst = Instance{
		Key:        key,
		Definition: h.def,
		Channel:    blend.InvalidChannel,
		Output:     ms.InvalidEntity,
		Fast:       ms.InvalidEntity,
		state:      newInstanceFSM(key, h.def),
	}
	_, inst.interrogated = key.Object.(ms.InterrogationKey)
	inst.Object = h.objectOf(inputs)
	inst.initial = h.def.ops.defaultValue()
	if inst.Object != nil {
		inst.Resolution = h.def.ops.resolve(h.in.resolver, inst.Object, key.Path)
		if v, ok := h.def.ops.readObject(h.in.resolver, inst.Object, inst.Resolution); ok {
			inst.initial = v
		}
	}
	h.def.Stats.NumProperties++
	h.reconcile(inst, inputs, agg)
}

func (h *instanceHandler) UpdateOutput(_ PropertyKey, inputs []ms.Entity, inst *Instance, agg overlap.Aggregate) {
	h.reconcile(inst, inputs, agg)
}

func (h *instanceHandler) DestroyOutput(key PropertyKey, inst *Instance, agg overlap.Aggregate) {
	m := h.l.Entities
	inst.fire(StateStale)
	if inst.Channel != blend.InvalidChannel {
		h.releaseBlend(inst, nil)
	}
	h.in.registry.accessors.remove(m, inst.Fast)
	inst.Fast = ms.InvalidEntity
	if agg.NeedsRestoration && inst.Object != nil && !inst.interrogated {
		preanim.Get(h.l).RequestRestore(PreAnimatedKey(h.def, inst.Object, key.Path))
	}
	h.def.Stats.NumProperties--
	if inst.partial {
		h.def.Stats.NumPartialProperties--
	}
	inst.fire(StateDestroyed)
}

// objectOf returns the bound object of the first contributor that has one.
func (h *instanceHandler) objectOf(inputs []ms.Entity) any {
	for _, e := range inputs {
		if obj, ok := ms.ReadComponent(h.l.Entities, e, h.l.Builtins.BoundObject); ok && obj != nil {
			return obj
		}
	}
	return nil
}

func (h *instanceHandler) reconcile(inst *Instance, inputs []ms.Entity, agg overlap.Aggregate) {
	if inst.Object != nil && inst.Resolution.Unresolved() && !inst.interrogated {
		// the resolver already warned; the contributors silently do nothing
		return
	}
	m := h.l.Entities
	b := h.l.Builtins
	active := h.applyBias(inputs)
	if len(active) == 0 {
		return
	}

	needsBlend := h.def.Blendable &&
		(len(active) > 1 || m.ComponentMaskOf(active[0]).ContainsAny(b.NonAbsoluteMask()))

	var writer ms.Entity
	if needsBlend {
		writer = h.toBlend(inst, inputs, active)
	} else {
		writer = h.toFast(inst, inputs, active[0])
	}
	if !writer.IsValid() {
		return
	}
	h.updatePartial(inst, active)

	if inst.Object != nil && !inst.interrogated {
		ext := preanim.Get(h.l)
		key := PreAnimatedKey(h.def, inst.Object, inst.Key.Path)
		if (agg.NeedsRestoration || ext.IsCapturingGlobalState()) && !ext.Contains(key) {
			m.AddComponent(writer, b.CachePreAnimatedValue.ID())
		}
		h.tagRestoreState(inst, writer, agg.Restoring)
	}
}

// tagRestoreState keeps RestoreState on the writer exactly while a surviving
// contributor asks for restoration. Tags the instantiator added to a previous
// writer are removed.
func (h *instanceHandler) tagRestoreState(inst *Instance, writer ms.Entity, restoring bool) {
	m := h.l.Entities
	id := h.l.Builtins.RestoreState.ID()
	if tagged := inst.restoreTagged; tagged.IsValid() && (tagged != writer || !restoring) {
		if m.IsAlive(tagged) {
			m.RemoveComponent(tagged, id)
		}
		inst.restoreTagged = ms.Entity{}
	}
	if restoring && !m.HasComponent(writer, id) {
		m.AddComponent(writer, id)
		inst.restoreTagged = writer
	}
}

// applyBias tags every contributor below the highest hierarchical bias as
// Ignored and returns the others. Non-blendable properties keep only the
// last contributor of the highest bias.
func (h *instanceHandler) applyBias(inputs []ms.Entity) []ms.Entity {
	m := h.l.Entities
	b := h.l.Builtins
	maxBias := math.MinInt16
	for _, e := range inputs {
		bias, _ := ms.ReadComponent(m, e, b.HierarchicalBias)
		maxBias = max(maxBias, int(bias))
	}
	var active []ms.Entity
	for _, e := range inputs {
		bias, _ := ms.ReadComponent(m, e, b.HierarchicalBias)
		if int(bias) == maxBias {
			active = append(active, e)
		}
	}
	if !h.def.Blendable && len(active) > 1 {
		active = active[len(active)-1:]
	}
	for _, e := range inputs {
		ignored := true
		for _, a := range active {
			if a == e {
				ignored = false
				break
			}
		}
		if ignored {
			m.AddComponent(e, b.Ignored.ID())
		} else {
			m.RemoveComponent(e, b.Ignored.ID())
		}
	}
	return active
}

func (h *instanceHandler) toFast(inst *Instance, inputs []ms.Entity, e ms.Entity) ms.Entity {
	m := h.l.Entities
	acc := h.in.registry.accessors
	if inst.Channel != blend.InvalidChannel {
		h.releaseBlend(inst, inputs)
	}
	if inst.Fast != e {
		acc.remove(m, inst.Fast)
		inst.Fast = e
	}
	if inst.Object != nil && !inst.interrogated {
		acc.set(m, e, inst.Resolution)
	}
	h.def.ops.setInitial(m, e, inst.initial)
	inst.fire(StateFast)
	return e
}

func (h *instanceHandler) toBlend(inst *Instance, inputs, active []ms.Entity) ms.Entity {
	m := h.l.Entities
	b := h.l.Builtins
	acc := h.in.registry.accessors
	if inst.Channel == blend.InvalidChannel {
		ch := h.in.blender.AllocateBlendChannel()
		if ch == blend.InvalidChannel {
			return ms.InvalidEntity
		}
		inst.Channel = ch
		inst.Output = h.createOutput(inst, active[0])
		h.in.log.Debug().Str("property", h.def.Name).Str("path", inst.Key.Path).Uint16("channel", ch).Int("inputs", len(inputs)).Msg("property blended")
	}
	acc.remove(m, inst.Fast)
	inst.Fast = ms.InvalidEntity
	for _, e := range inputs {
		ms.SetComponent(m, e, b.BlendChannelInput, inst.Channel)
	}

	// the output carries exactly the composites at least one contributor animates
	var present, all ms.ComponentMask
	for c := range h.def.Composites {
		all.Set(b.DoubleResult[c].ID())
	}
	if h.def.Blendable && len(h.def.Composites) == 0 {
		all.Set(b.BoolResult.ID())
	}
	for _, e := range active {
		present = present.Union(m.ComponentMaskOf(e).Intersect(all))
	}
	m.RemoveComponents(inst.Output, all.Difference(present))
	m.AddComponents(inst.Output, present)
	inst.fire(StateBlend)
	return inst.Output
}

func (h *instanceHandler) createOutput(inst *Instance, from ms.Entity) ms.Entity {
	m := h.l.Entities
	b := h.l.Builtins
	binding, _ := ms.ReadComponent(m, from, b.PropertyBinding)
	builder := ms.NewEntityBuilder().AddTag(h.def.Tag).AddTag(b.NeedsLink)
	ms.With(builder, b.PropertyBinding, binding)
	ms.With(builder, b.BlendChannelOutput, inst.Channel)
	ms.WithConditional(builder, b.BoundObject, inst.Object, inst.Object != nil)
	out := builder.Create(m)

	migrate := h.l.Registry.MaskWithFlags(ms.FlagMigrateToOutput).Intersect(m.ComponentMaskOf(from))
	m.AddComponents(out, migrate)
	m.CopyComponents(from, out, migrate)
	if inst.Object != nil && !inst.interrogated {
		h.in.registry.accessors.set(m, out, inst.Resolution)
	}
	h.def.ops.setInitial(m, out, inst.initial)
	return out
}

// releaseBlend frees the blend channel and tears the output entity down.
// inputs that remain contributors stop feeding the channel.
func (h *instanceHandler) releaseBlend(inst *Instance, inputs []ms.Entity) {
	m := h.l.Entities
	b := h.l.Builtins
	h.in.blender.ReleaseBlendChannel(inst.Channel)
	if m.IsAlive(inst.Output) {
		m.AddComponent(inst.Output, b.Finished.ID())
		h.l.MarkForUnlink(inst.Output)
	}
	for _, e := range inputs {
		m.RemoveComponent(e, b.BlendChannelInput.ID())
	}
	h.in.log.Debug().Str("property", h.def.Name).Str("path", inst.Key.Path).Uint16("channel", inst.Channel).Msg("property unblended")
	inst.Channel = blend.InvalidChannel
	inst.Output = ms.InvalidEntity
	inst.Teardowns++
}

func (h *instanceHandler) updatePartial(inst *Instance, active []ms.Entity) {
	m := h.l.Entities
	b := h.l.Builtins
	var animated uint32
	for _, e := range active {
		mask := m.ComponentMaskOf(e)
		for c := range h.def.Composites {
			if mask.Contains(b.DoubleResult[c].ID()) {
				animated |= 1 << c
			}
		}
	}
	inst.EmptyChannels = h.def.FloatCompositeMask &^ animated
	partial := h.def.IsPartial(animated)
	if partial != inst.partial {
		if partial {
			h.def.Stats.NumPartialProperties++
		} else {
			h.def.Stats.NumPartialProperties--
		}
		inst.partial = partial
	}
}
