package evaluation

import (
	"math"
	"slices"

	ms "github.com/edwinsyarief/moviescene"
	"github.com/edwinsyarief/moviescene/tracks"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// PlayOptions control how a sequence instance advances.
type PlayOptions struct {
	// Rate scales elapsed time. Zero means 1.
	Rate float64
	// Loop wraps around at the end of the sequence range instead of finishing.
	Loop bool
	// Start overrides the start time. Nil starts at the range start.
	Start *float64
}

type playback struct {
	inst *tracks.Instance
	opts PlayOptions
	time float64
}

// Runtime advances sequence instances and evaluates the linker once per tick.
// It is not safe for concurrent use.
type Runtime struct {
	linker  *Linker
	playing map[ms.InstanceHandle]*playback
	log     zerolog.Logger
}

// NewRuntime creates a runtime over l.
func NewRuntime(l *Linker) *Runtime {
	return &Runtime{
		linker:  l,
		playing: make(map[ms.InstanceHandle]*playback),
		log:     l.Logger().With().Str("component", "runtime").Logger(),
	}
}

// Linker returns the linker the runtime evaluates.
func (r *Runtime) Linker() *Linker {
	return r.linker
}

// Play allocates an instance of seq and schedules it from its start time.
// Nothing is imported until the next Tick.
func (r *Runtime) Play(seq *tracks.Sequence, opts PlayOptions) *tracks.Instance {
	if opts.Rate == 0 {
		opts.Rate = 1
	}
	inst := tracks.GetRegistry(r.linker.Linker).Allocate(r.linker.Linker, seq)
	p := &playback{inst: inst, opts: opts, time: seq.Range.Start}
	if opts.Start != nil {
		p.time = *opts.Start
	}
	r.playing[inst.Handle()] = p
	return inst
}

// Playing returns the handles of every playing instance in allocation order.
func (r *Runtime) Playing() []ms.InstanceHandle {
	out := make([]ms.InstanceHandle, 0, len(r.playing))
	for h := range r.playing {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

// Seek moves an instance to t. The change is evaluated at the next Tick.
func (r *Runtime) Seek(h ms.InstanceHandle, t float64) error {
	p, ok := r.playing[h]
	if !ok {
		return eris.Wrapf(tracks.ErrUnknownInstance, "seeking instance %d", h)
	}
	p.time = t
	return nil
}

// Stop finishes an instance. Its sections complete at the next evaluation.
func (r *Runtime) Stop(h ms.InstanceHandle) error {
	delete(r.playing, h)
	return tracks.GetRegistry(r.linker.Linker).Destroy(h)
}

// Tick evaluates every playing instance at its current time and then
// advances it by dt. An instance whose time lies outside its range finishes
// instead, unless it loops.
func (r *Runtime) Tick(dt float64) error {
	reg := tracks.GetRegistry(r.linker.Linker)
	for _, h := range r.Playing() {
		p := r.playing[h]
		rng := p.inst.Sequence().Range
		if !rng.Contains(p.time) && !p.opts.Loop {
			delete(r.playing, h)
			if err := reg.Destroy(h); err != nil {
				return err
			}
			r.log.Debug().Uint32("instance", uint32(h)).Msg("sequence finished")
			continue
		}
		p.inst.Update(p.time)
		p.time += dt * p.opts.Rate
		if p.opts.Loop && !rng.Contains(p.time) {
			p.time = wrap(p.time, rng)
		}
	}
	return r.Evaluate()
}

// wrap maps t into a finite range.
func wrap(t float64, rng tracks.Range) float64 {
	length := rng.End - rng.Start
	if length <= 0 || math.IsInf(length, 0) {
		return rng.Start
	}
	t = math.Mod(t-rng.Start, length)
	if t < 0 {
		t += length
	}
	return rng.Start + t
}

// Evaluate runs one evaluation pass without advancing time.
func (r *Runtime) Evaluate() error {
	if err := r.linker.Evaluate(); err != nil {
		return eris.Wrapf(err, "evaluating frame %d", r.linker.Frame())
	}
	return nil
}

// Time returns the time an instance will be evaluated at next.
func (r *Runtime) Time(h ms.InstanceHandle) (float64, bool) {
	p, ok := r.playing[h]
	if !ok {
		return 0, false
	}
	return p.time, true
}
