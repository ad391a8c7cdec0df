package scene

import (
	ms "github.com/edwinsyarief/moviescene"
	"github.com/edwinsyarief/moviescene/math3d"
	"github.com/edwinsyarief/moviescene/object"
	"github.com/edwinsyarief/moviescene/overlap"
	"github.com/edwinsyarief/moviescene/preanim"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const AttachmentSystemName = "AttachmentSystem"

type attachedState struct {
	Parent   *object.SceneComponent
	Relative math3d.Transform
}

type attachment struct {
	parent     *object.SceneComponent
	detachRule object.AttachmentRule
}

// AttachmentSystem attaches scene components while attachment entities are
// linked. When the last one unlinks the component is restored to its original
// parent if any contributor asked for restoration, and detached otherwise.
type AttachmentSystem struct {
	bindings *object.Bindings
	tracker  *overlap.GarbageTracker[*object.SceneComponent, attachment]
	storage  *preanim.Storage[attachedState]
	l        *ms.Linker
	log      zerolog.Logger
}

// NewAttachmentSystem creates the system. Parent bindings are resolved
// through bindings.
func NewAttachmentSystem(bindings *object.Bindings) *AttachmentSystem {
	s := &AttachmentSystem{
		bindings: bindings,
		log:      log.With().Str("system", AttachmentSystemName).Logger(),
	}
	s.tracker = overlap.NewGarbageTracker[*object.SceneComponent, attachment](func(c *object.SceneComponent) []any {
		return []any{c}
	}, s)
	s.storage = preanim.NewStorage("AttachParent",
		func(obj any) attachedState {
			c := obj.(*object.SceneComponent)
			return attachedState{Parent: c.AttachParent(), Relative: c.RelativeTransform()}
		},
		func(obj any, v attachedState) {
			c := obj.(*object.SceneComponent)
			c.AttachTo(v.Parent, object.KeepRelative)
			c.InitRelativeTransform(v.Relative)
		})
	return s
}

func (s *AttachmentSystem) Name() string    { return AttachmentSystemName }
func (s *AttachmentSystem) Phase() ms.Phase { return ms.PhaseInstantiation }

func (s *AttachmentSystem) OnLink(l *ms.Linker) {
	RegisterComponents(l)
	s.tracker.Subscribe(l.Events)
	l.Systems.AddPrerequisite(AttachmentSystemName, preanim.CacheSystemName)
}

func (s *AttachmentSystem) IsRelevant(l *ms.Linker) bool {
	c := RegisterComponents(l)
	return l.Entities.Contains(ms.NewFilter(c.Attach.ID()).Any(l.Builtins.NeedsLink.ID(), l.Builtins.NeedsUnlink.ID()))
}

func (s *AttachmentSystem) Run(l *ms.Linker) {
	s.l = l
	c := RegisterComponents(l)
	b := l.Builtins
	s.tracker.Update(l, ms.NewFilter(c.Attach.ID(), b.BoundObject.ID()), func(a *ms.Allocation, i int) (*object.SceneComponent, bool) {
		comp := object.SceneComponentOf(ms.Column(a, b.BoundObject)[i])
		return comp, comp != nil
	})
	s.tracker.ProcessInvalidatedOutputs(s)
}

func (s *AttachmentSystem) InitializeOutput(comp *object.SceneComponent, inputs []ms.Entity, out *attachment, agg overlap.Aggregate) {
	s.UpdateOutput(comp, inputs, out, agg)
}

func (s *AttachmentSystem) UpdateOutput(comp *object.SceneComponent, inputs []ms.Entity, out *attachment, agg overlap.Aggregate) {
	ext := preanim.Get(s.l)
	if agg.NeedsRestoration || ext.IsCapturingGlobalState() {
		s.storage.Cache(ext, comp)
	}
	c := RegisterComponents(s.l)
	params, ok := ms.ReadComponent(s.l.Entities, inputs[len(inputs)-1], c.Attach)
	if !ok {
		return
	}
	var parent *object.SceneComponent
	for _, obj := range s.bindings.Resolve(params.ParentBinding) {
		if parent = object.SceneComponentOf(obj); parent != nil {
			break
		}
	}
	if parent == nil {
		s.log.Warn().Str("component", comp.Name).Str("binding", params.ParentBinding).Msg("attach parent did not resolve")
		return
	}
	comp.AttachTo(parent, params.AttachRule)
	out.parent = parent
	out.detachRule = params.DetachRule
}

func (s *AttachmentSystem) DestroyOutput(comp *object.SceneComponent, out *attachment, agg overlap.Aggregate) {
	if s.l != nil && agg.NeedsRestoration && s.storage.RequestRestore(preanim.Get(s.l), comp) {
		return
	}
	if out.parent != nil && comp.AttachParent() == out.parent {
		comp.Detach(out.detachRule)
	}
}
