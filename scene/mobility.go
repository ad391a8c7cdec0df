package scene

import (
	ms "github.com/edwinsyarief/moviescene"
	"github.com/edwinsyarief/moviescene/object"
	"github.com/edwinsyarief/moviescene/overlap"
	"github.com/edwinsyarief/moviescene/preanim"
)

const MobilitySystemName = "MobilitySystem"

type forcedMobility struct {
	original object.Mobility
}

// MobilitySystem makes every scene component whose transform is animated
// movable for as long as it is animated, and puts the original mobility back
// afterwards whatever the completion mode.
type MobilitySystem struct {
	transformTag ms.TagType
	tracker      *overlap.GarbageTracker[*object.SceneComponent, forcedMobility]
	storage      *preanim.Storage[object.Mobility]
	l            *ms.Linker
}

// NewMobilitySystem creates the system for the transform property tag.
func NewMobilitySystem(transformTag ms.TagType) *MobilitySystem {
	s := &MobilitySystem{transformTag: transformTag}
	s.tracker = overlap.NewGarbageTracker[*object.SceneComponent, forcedMobility](func(c *object.SceneComponent) []any {
		return []any{c}
	}, s)
	s.storage = preanim.NewStorage("Mobility",
		func(obj any) object.Mobility { return obj.(*object.SceneComponent).Mobility },
		func(obj any, m object.Mobility) { obj.(*object.SceneComponent).Mobility = m })
	return s
}

func (s *MobilitySystem) Name() string    { return MobilitySystemName }
func (s *MobilitySystem) Phase() ms.Phase { return ms.PhaseInstantiation }

func (s *MobilitySystem) OnLink(l *ms.Linker) {
	s.tracker.Subscribe(l.Events)
	// mobility is captured before any property value so it is restored after
	l.Systems.AddPrerequisite(MobilitySystemName, preanim.CacheSystemName)
}

func (s *MobilitySystem) IsRelevant(l *ms.Linker) bool {
	return l.Entities.Contains(ms.NewFilter(s.transformTag.ID()).Any(l.Builtins.NeedsLink.ID(), l.Builtins.NeedsUnlink.ID()))
}

func (s *MobilitySystem) Run(l *ms.Linker) {
	s.l = l
	b := l.Builtins
	filter := ms.NewFilter(s.transformTag.ID(), b.BoundObject.ID()).None(b.ImportedEntity.ID(), b.BlendChannelOutput.ID())
	s.tracker.Update(l, filter, func(a *ms.Allocation, i int) (*object.SceneComponent, bool) {
		comp := object.SceneComponentOf(ms.Column(a, b.BoundObject)[i])
		return comp, comp != nil
	})
	s.tracker.ProcessInvalidatedOutputs(s)
}

func (s *MobilitySystem) InitializeOutput(comp *object.SceneComponent, _ []ms.Entity, out *forcedMobility, _ overlap.Aggregate) {
	out.original = comp.Mobility
	s.storage.Cache(preanim.Get(s.l), comp)
	comp.Mobility = object.Movable
}

func (s *MobilitySystem) UpdateOutput(*object.SceneComponent, []ms.Entity, *forcedMobility, overlap.Aggregate) {
}

func (s *MobilitySystem) DestroyOutput(comp *object.SceneComponent, out *forcedMobility, _ overlap.Aggregate) {
	if s.l != nil && s.storage.RequestRestore(preanim.Get(s.l), comp) {
		return
	}
	comp.Mobility = out.original
}
