package property

import (
	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	ms "github.com/edwinsyarief/moviescene"
	"github.com/edwinsyarief/moviescene/blend"
)

// ErrNoInstance is returned when recomposing a property nothing animates.
var ErrNoInstance = eris.New("property is not animated")

// RecomposeBlendOperational computes, for every entity in query, the
// operational value it would have to supply so that the blended result of
// key equals current. Composites an entity does not animate keep current.
// Composites are recomposed concurrently.
func RecomposeBlendOperational[P, O any](in *Instantiator, l *ms.Linker, def *Definition[P, O], key PropertyKey, query []ms.Entity, current O) ([]O, error) {
	inst := in.Find(def.PropertyDefinition, key)
	if inst == nil {
		return nil, eris.Wrapf(ErrNoInstance, "recomposing %s %q", def.Name, key.Path)
	}
	results := make([]O, len(query))
	for i := range results {
		results[i] = current
	}
	if inst.Channel == blend.InvalidChannel {
		// a single writer supplies the whole value
		return results, nil
	}

	initial, _ := inst.initial.(O)
	contribs := in.blender.GatherContributions(l, inst.Channel)
	var g errgroup.Group
	g.SetLimit(max(1, l.Entities.Workers()))
	for c := range def.Composites {
		if def.FloatCompositeMask&(1<<c) == 0 {
			continue
		}
		g.Go(func() error {
			d := in.blender.DecomposeDouble(contribs, c, query)
			cur, init := def.Composite(&current, c), def.Composite(&initial, c)
			for i, e := range query {
				if d.Contains(e) {
					def.SetComposite(&results[i], c, d.Recompose(e, cur, init))
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, eris.Wrapf(err, "recomposing %s %q", def.Name, key.Path)
	}
	return results, nil
}

// RecomposeBlendFinal is RecomposeBlendOperational for host values.
func RecomposeBlendFinal[P, O any](in *Instantiator, l *ms.Linker, def *Definition[P, O], key PropertyKey, query []ms.Entity, current P) ([]P, error) {
	ops, err := RecomposeBlendOperational(in, l, def, key, query, def.ToOperational(current))
	if err != nil {
		return nil, err
	}
	out := make([]P, len(ops))
	for i, v := range ops {
		out[i] = def.FromOperational(v)
	}
	return out, nil
}
