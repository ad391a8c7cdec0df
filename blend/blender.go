// Package blend accumulates many weighted scalar contributions into one
// result per blend channel, and solves the inverse problem of what one
// contribution must be to reproduce a given blended result.
package blend

import (
	"sync"
	"unsafe"

	ms "github.com/edwinsyarief/moviescene"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// SystemName is the name the blender links under.
const SystemName = "DoubleBlender"

// Kind is how a contribution combines with the others on its channel.
type Kind uint8

const (
	Absolute Kind = iota
	Relative
	Additive
	AdditiveFromBase
)

func (k Kind) String() string {
	switch k {
	case Relative:
		return "relative"
	case Additive:
		return "additive"
	case AdditiveFromBase:
		return "additive-from-base"
	}
	return "absolute"
}

// ParseKind maps a name to a blend kind.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "", "absolute":
		return Absolute, true
	case "relative":
		return Relative, true
	case "additive":
		return Additive, true
	case "additive-from-base", "additive_from_base":
		return AdditiveFromBase, true
	}
	return Absolute, false
}

// IsAdditive reports whether the kind is summed on top of the absolute blend.
func (k Kind) IsAdditive() bool {
	return k == Additive || k == AdditiveFromBase
}

// KindOf returns the blend kind carried by a component mask. Absolute is the
// default when no blend tag is present.
func KindOf(b *ms.BuiltInComponents, mask ms.ComponentMask) Kind {
	switch {
	case mask.Contains(b.AdditiveFromBaseBlend.ID()):
		return AdditiveFromBase
	case mask.Contains(b.AdditiveBlend.ID()):
		return Additive
	case mask.Contains(b.RelativeBlend.ID()):
		return Relative
	}
	return Absolute
}

// Weighted is a weighted sum: Σ value·weight and Σ weight.
type Weighted struct {
	Total  float64
	Weight float64
}

// Add accumulates one weighted value.
func (w *Weighted) Add(value, weight float64) {
	w.Total += value * weight
	w.Weight += weight
}

// CombineAbsolute resolves an absolute accumulation against the initial value.
// Full weight yields the weighted average; a shortfall below 1 is filled from
// the initial value; no weight at all yields the initial value.
func CombineAbsolute(total, weight, initial float64) float64 {
	switch {
	case weight <= 0:
		return initial
	case weight < 1:
		return total + initial*(1-weight)
	}
	return total / weight
}

// Combine produces the blended result of one channel. Relative contributions
// are offset by the initial value and blended with the absolutes; additive
// contributions are summed on top.
func Combine(abs, rel Weighted, additive, initial float64) float64 {
	total := abs.Total + rel.Total + initial*rel.Weight
	return CombineAbsolute(total, abs.Weight+rel.Weight, initial) + additive
}

// Target describes where the blender finds the initial value of the outputs
// of one property definition: the initial-value component and the byte offset
// of every composite inside it.
type Target struct {
	Tag          ms.ComponentTypeID
	InitialValue ms.ComponentTypeID
	Offsets      [ms.NumDoubleChannels]uintptr
	Composites   uint32
}

type accumulators struct {
	absolute []Weighted
	relative []Weighted
	additive []float64
}

func (a *accumulators) reset(n int) {
	a.absolute = resize(a.absolute, n)
	a.relative = resize(a.relative, n)
	a.additive = resize(a.additive, n)
}

func resize[T any](s []T, n int) []T {
	if cap(s) < n {
		return make([]T, n)
	}
	s = s[:n]
	clear(s)
	return s
}

// Blender is the piecewise double blender system. Inputs carry
// BlendChannelInput and a DoubleResult per animated composite; outputs carry
// BlendChannelOutput, an initial value and receive the blended DoubleResult.
type Blender struct {
	mu       sync.Mutex
	channels channelSet
	targets  []Target
	buffers  [ms.NumDoubleChannels]accumulators

	compactInterval int
	frames          int
	log             zerolog.Logger
}

// NewBlender creates a blender. A positive compactInterval trims unused
// channel capacity every that many evaluated frames.
func NewBlender(compactInterval int) *Blender {
	return &Blender{
		compactInterval: compactInterval,
		log:             log.With().Str("system", SystemName).Logger(),
	}
}

func (b *Blender) Name() string    { return SystemName }
func (b *Blender) Phase() ms.Phase { return ms.PhaseEvaluation }

// OnLink declares the blender as both consumer and producer of double results.
func (b *Blender) OnLink(l *ms.Linker) {
	for c := range ms.NumDoubleChannels {
		l.Systems.DefineComponentConsumer(SystemName, l.Builtins.DoubleResult[c].ID())
		l.Systems.DefineComponentProducer(SystemName, l.Builtins.DoubleResult[c].ID())
	}
	l.Systems.DefineComponentConsumer(SystemName, l.Builtins.WeightAndEasingResult.ID())
}

// IsRelevant is true while any blend channel is allocated.
func (b *Blender) IsRelevant(*ms.Linker) bool {
	return b.NumChannels() > 0
}

// RegisterTarget registers the initial-value layout of a property definition.
func (b *Blender) RegisterTarget(t Target) {
	b.targets = append(b.targets, t)
}

// Run accumulates every input into its channel and writes the combined value
// onto every output.
func (b *Blender) Run(l *ms.Linker) {
	b.frames++
	if b.compactInterval > 0 && b.frames%b.compactInterval == 0 {
		b.CompactBlendChannels()
	}
	b.mu.Lock()
	n := b.channels.highest()
	b.mu.Unlock()
	if n == 0 {
		return
	}
	bi := l.Builtins

	var inputs []*ms.Allocation
	l.Entities.Query(ms.NewFilter(bi.BlendChannelInput.ID()).None(bi.Ignored.ID())).ForEachAllocation(func(a *ms.Allocation) {
		inputs = append(inputs, a)
	})

	var g errgroup.Group
	g.SetLimit(max(1, l.Entities.Workers()))
	for c := range ms.NumDoubleChannels {
		g.Go(func() error {
			b.accumulate(bi, c, inputs, n)
			return nil
		})
	}
	_ = g.Wait()

	l.Entities.Query(ms.NewFilter(bi.BlendChannelOutput.ID())).SetThread(ms.AnyThread).ForEachAllocation(func(a *ms.Allocation) {
		b.combine(bi, a, n)
	})
}

func (b *Blender) accumulate(bi *ms.BuiltInComponents, c int, inputs []*ms.Allocation, n int) {
	buf := &b.buffers[c]
	buf.reset(n)
	for _, a := range inputs {
		values := ms.Column(a, bi.DoubleResult[c])
		if values == nil {
			continue
		}
		channels := ms.Column(a, bi.BlendChannelInput)
		weights := ms.Column(a, bi.WeightAndEasingResult)
		kind := KindOf(bi, a.Mask())
		var bases []float64
		if kind == AdditiveFromBase {
			bases = ms.Column(a, bi.BaseDouble[c])
		}
		for i, v := range values {
			ch := int(channels[i])
			if !ms.Ensure(ch < n, "blend input references an unallocated channel") {
				continue
			}
			w := 1.0
			if weights != nil {
				w = weights[i]
			}
			switch kind {
			case Absolute:
				buf.absolute[ch].Add(v, w)
			case Relative:
				buf.relative[ch].Add(v, w)
			case Additive:
				buf.additive[ch] += v * w
			case AdditiveFromBase:
				if bases != nil {
					v -= bases[i]
				}
				buf.additive[ch] += v * w
			}
		}
	}
}

func (b *Blender) combine(bi *ms.BuiltInComponents, a *ms.Allocation, n int) {
	var target *Target
	for i := range b.targets {
		if a.Has(b.targets[i].Tag) {
			target = &b.targets[i]
			break
		}
	}
	var initBase unsafe.Pointer
	var stride uintptr
	if target != nil {
		initBase, stride = ms.RawColumn(a, target.InitialValue)
	}
	channels := ms.Column(a, bi.BlendChannelOutput)
	for c := range ms.NumDoubleChannels {
		out := ms.Column(a, bi.DoubleResult[c])
		if out == nil {
			continue
		}
		buf := &b.buffers[c]
		for i := range out {
			initial := 0.0
			if initBase != nil && target.Composites&(1<<c) != 0 {
				initial = *(*float64)(unsafe.Add(initBase, uintptr(i)*stride+target.Offsets[c]))
			}
			ch := int(channels[i])
			if ch >= n || ch >= len(buf.absolute) {
				out[i] = initial
				continue
			}
			out[i] = Combine(buf.absolute[ch], buf.relative[ch], buf.additive[ch], initial)
		}
	}
}
