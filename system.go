package moviescene

import (
	"slices"

	"github.com/rotisserie/eris"
)

// Phase is one stage of a linker evaluation pass. Phases run in declaration
// order; systems only ever run in the phase they declare.
type Phase uint8

const (
	// PhaseSpawn creates entities derived from imported ones (e.g. one child per
	// bound object).
	PhaseSpawn Phase = iota
	// PhaseInstantiation reacts to linked and unlinked entities: property
	// resolution, blend channel allocation, pre-animated capture and restore.
	PhaseInstantiation
	// PhaseEvaluation computes and applies animated values.
	PhaseEvaluation
	// PhaseFinalization runs work that needs every value applied.
	PhaseFinalization
	numPhases
)

func (p Phase) String() string {
	switch p {
	case PhaseSpawn:
		return "spawn"
	case PhaseInstantiation:
		return "instantiation"
	case PhaseEvaluation:
		return "evaluation"
	case PhaseFinalization:
		return "finalization"
	}
	return "unknown"
}

// System is a unit of work run by a Linker once per evaluation pass.
type System interface {
	Name() string
	Phase() Phase
	Run(l *Linker)
}

// RelevantSystem is implemented by systems that may be skipped when they have
// nothing to do.
type RelevantSystem interface {
	IsRelevant(l *Linker) bool
}

// LinkedSystem is notified when it is added to a linker.
type LinkedSystem interface {
	OnLink(l *Linker)
}

// UnlinkedSystem is notified when it is removed from a linker.
type UnlinkedSystem interface {
	OnUnlink(l *Linker)
}

var (
	ErrSystemAlreadyLinked = eris.New("system already linked")
	ErrSystemCycle         = eris.New("system dependency cycle")
)

// SystemGraph orders systems inside each phase. Ordering comes from explicit
// prerequisites (before -> after, by system name) and from component
// producer/consumer declarations: every producer of a component runs before
// every consumer of it. Edges whose endpoints are not both linked, or that
// cross phases, are ignored. Ties keep link order.
type SystemGraph struct {
	systems   []System
	byName    map[string]int
	edges     map[[2]string]struct{}
	producers map[ComponentTypeID][]string
	consumers map[ComponentTypeID][]string
	order     [numPhases][]System
	dirty     bool
}

// NewSystemGraph creates an empty graph.
func NewSystemGraph() *SystemGraph {
	return &SystemGraph{
		byName:    make(map[string]int),
		edges:     make(map[[2]string]struct{}),
		producers: make(map[ComponentTypeID][]string),
		consumers: make(map[ComponentTypeID][]string),
	}
}

// Add links a system into the graph.
func (g *SystemGraph) Add(s System) error {
	if _, ok := g.byName[s.Name()]; ok {
		return eris.Wrapf(ErrSystemAlreadyLinked, "system %q", s.Name())
	}
	g.byName[s.Name()] = len(g.systems)
	g.systems = append(g.systems, s)
	g.dirty = true
	return nil
}

// Remove unlinks a system by name and returns it.
func (g *SystemGraph) Remove(name string) System {
	idx, ok := g.byName[name]
	if !ok {
		return nil
	}
	s := g.systems[idx]
	g.systems = slices.Delete(g.systems, idx, idx+1)
	delete(g.byName, name)
	for i := idx; i < len(g.systems); i++ {
		g.byName[g.systems[i].Name()] = i
	}
	g.dirty = true
	return s
}

// Find returns a linked system by name.
func (g *SystemGraph) Find(name string) System {
	if idx, ok := g.byName[name]; ok {
		return g.systems[idx]
	}
	return nil
}

// Systems returns every linked system in link order.
func (g *SystemGraph) Systems() []System {
	return g.systems
}

// AddPrerequisite declares that before must run before after.
func (g *SystemGraph) AddPrerequisite(before, after string) {
	g.edges[[2]string{before, after}] = struct{}{}
	g.dirty = true
}

// DefineComponentProducer declares that a system writes a component.
func (g *SystemGraph) DefineComponentProducer(system string, id ComponentTypeID) {
	g.producers[id] = append(g.producers[id], system)
	g.dirty = true
}

// DefineComponentConsumer declares that a system reads a component.
func (g *SystemGraph) DefineComponentConsumer(system string, id ComponentTypeID) {
	g.consumers[id] = append(g.consumers[id], system)
	g.dirty = true
}

// Phase returns the sorted systems of a phase. Sort must have succeeded.
func (g *SystemGraph) Phase(p Phase) []System {
	return g.order[p]
}

// Sort recomputes the per-phase execution order.
func (g *SystemGraph) Sort() error {
	if !g.dirty {
		return nil
	}
	edges := make(map[[2]string]struct{}, len(g.edges))
	for e := range g.edges {
		edges[e] = struct{}{}
	}
	for id, producers := range g.producers {
		for _, p := range producers {
			for _, c := range g.consumers[id] {
				if p != c {
					edges[[2]string{p, c}] = struct{}{}
				}
			}
		}
	}
	for p := Phase(0); p < numPhases; p++ {
		sorted, err := g.sortPhase(p, edges)
		if err != nil {
			return err
		}
		g.order[p] = sorted
	}
	g.dirty = false
	return nil
}

// sortPhase is Kahn's algorithm, always picking the ready system linked first.
func (g *SystemGraph) sortPhase(p Phase, edges map[[2]string]struct{}) ([]System, error) {
	var members []int
	inPhase := make(map[string]bool)
	for i, s := range g.systems {
		if s.Phase() == p {
			members = append(members, i)
			inPhase[s.Name()] = true
		}
	}
	indegree := make(map[string]int, len(members))
	succ := make(map[string][]string)
	for e := range edges {
		if !inPhase[e[0]] || !inPhase[e[1]] {
			continue
		}
		succ[e[0]] = append(succ[e[0]], e[1])
		indegree[e[1]]++
	}
	out := make([]System, 0, len(members))
	done := make(map[string]bool, len(members))
	for len(out) < len(members) {
		picked := -1
		for _, i := range members {
			n := g.systems[i].Name()
			if !done[n] && indegree[n] == 0 {
				picked = i
				break
			}
		}
		if picked < 0 {
			var stuck []string
			for _, i := range members {
				if n := g.systems[i].Name(); !done[n] {
					stuck = append(stuck, n)
				}
			}
			return nil, eris.Wrapf(ErrSystemCycle, "phase %s: %v", p, stuck)
		}
		s := g.systems[picked]
		done[s.Name()] = true
		out = append(out, s)
		for _, n := range succ[s.Name()] {
			indegree[n]--
		}
	}
	return out, nil
}
