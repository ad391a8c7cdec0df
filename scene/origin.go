package scene

import (
	"sync"

	ms "github.com/edwinsyarief/moviescene"
	"github.com/edwinsyarief/moviescene/math3d"
	"github.com/edwinsyarief/moviescene/object"
	"github.com/edwinsyarief/moviescene/property"
)

const TransformOriginSystemName = "TransformOriginSystem"

// TransformOriginSystem offsets the evaluated transform of root scene
// components by the origin of the sequence instance animating them. Only the
// composites an entity animates are rewritten.
type TransformOriginSystem struct {
	transform *property.Definition[math3d.Transform, math3d.EulerTransform]

	mu      sync.RWMutex
	origins map[ms.InstanceHandle]math3d.Transform
}

// NewTransformOriginSystem creates the system for the transform property.
func NewTransformOriginSystem(transform *property.Definition[math3d.Transform, math3d.EulerTransform]) *TransformOriginSystem {
	return &TransformOriginSystem{
		transform: transform,
		origins:   make(map[ms.InstanceHandle]math3d.Transform),
	}
}

func (s *TransformOriginSystem) Name() string    { return TransformOriginSystemName }
func (s *TransformOriginSystem) Phase() ms.Phase { return ms.PhaseEvaluation }

// OnLink orders the system after everything producing double results.
func (s *TransformOriginSystem) OnLink(l *ms.Linker) {
	for c := range ms.NumDoubleChannels {
		l.Systems.DefineComponentConsumer(TransformOriginSystemName, l.Builtins.DoubleResult[c].ID())
	}
}

// SetOrigin sets the origin of an instance. The identity transform clears it.
func (s *TransformOriginSystem) SetOrigin(h ms.InstanceHandle, origin math3d.Transform) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if origin == math3d.Identity() {
		delete(s.origins, h)
		return
	}
	s.origins[h] = origin
}

// Origin returns the origin of an instance.
func (s *TransformOriginSystem) Origin(h ms.InstanceHandle) (math3d.Transform, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.origins[h]
	return o, ok
}

func (s *TransformOriginSystem) IsRelevant(*ms.Linker) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.origins) > 0
}

func (s *TransformOriginSystem) Run(l *ms.Linker) {
	b := l.Builtins
	d := s.transform
	filter := ms.NewFilter(d.Tag.ID(), b.BoundObject.ID(), b.InstanceHandle.ID()).
		None(b.BlendChannelInput.ID(), b.Ignored.ID(), b.NeedsUnlink.ID())

	s.mu.RLock()
	defer s.mu.RUnlock()
	l.Entities.Query(filter).ForEachAllocation(func(a *ms.Allocation) {
		var results [ms.NumDoubleChannels][]float64
		var animated bool
		for c := range d.Composites {
			results[c] = ms.Column(a, b.DoubleResult[c])
			animated = animated || results[c] != nil
		}
		if !animated {
			return
		}
		objs := ms.Column(a, b.BoundObject)
		handles := ms.Column(a, b.InstanceHandle)
		initial := ms.Column(a, d.InitialValue)
		for i := range a.Num() {
			origin, ok := s.origins[handles[i]]
			if !ok {
				continue
			}
			comp := object.SceneComponentOf(objs[i])
			if comp == nil || comp.AttachParent() != nil {
				continue
			}
			v := d.Default()
			if initial != nil {
				v = initial[i]
			}
			for c, col := range results {
				if col != nil {
					d.SetComposite(&v, c, col[i])
				}
			}
			moved := v.Transform().Compose(origin).Euler()
			for c, col := range results {
				if col != nil {
					col[i] = d.Composite(&moved, c)
				}
			}
		}
	})
}
