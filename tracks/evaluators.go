package tracks

import (
	ms "github.com/edwinsyarief/moviescene"
	"golang.org/x/sync/errgroup"
)

const (
	ChannelEvaluatorName = "DoubleChannelEvaluator"
	BoolEvaluatorName    = "BoolChannelEvaluator"
	WeightEvaluatorName  = "WeightAndEasingEvaluator"
)

// timeSource returns the evaluation times of an allocation: the forced
// EvalTime when present, otherwise the time of each entity's instance.
func timeSource(l *ms.Linker, reg *Registry, a *ms.Allocation) func(i int) (float64, bool) {
	b := l.Builtins
	if times := ms.Column(a, b.EvalTime); times != nil {
		return func(i int) (float64, bool) { return times[i], true }
	}
	handles := ms.Column(a, b.InstanceHandle)
	if handles == nil {
		return func(int) (float64, bool) { return 0, false }
	}
	return func(i int) (float64, bool) { return reg.Time(handles[i]) }
}

// ChannelEvaluator samples every DoubleChannel into its DoubleResult, and into
// BaseDouble at the base time for additive-from-base entities. Composites are
// evaluated concurrently; the sources must be safe for concurrent use.
type ChannelEvaluator struct{}

func (ChannelEvaluator) Name() string    { return ChannelEvaluatorName }
func (ChannelEvaluator) Phase() ms.Phase { return ms.PhaseEvaluation }

// OnLink declares the evaluator the producer of the double results.
func (ChannelEvaluator) OnLink(l *ms.Linker) {
	for c := range ms.NumDoubleChannels {
		l.Systems.DefineComponentProducer(ChannelEvaluatorName, l.Builtins.DoubleResult[c].ID())
		l.Systems.DefineComponentProducer(ChannelEvaluatorName, l.Builtins.BaseDouble[c].ID())
	}
}

func (ChannelEvaluator) Run(l *ms.Linker) {
	b := l.Builtins
	reg := GetRegistry(l)
	var work [ms.NumDoubleChannels][]*ms.Allocation
	for c := range ms.NumDoubleChannels {
		filter := ms.NewFilter(b.DoubleChannel[c].ID(), b.DoubleResult[c].ID()).None(b.NeedsUnlink.ID())
		l.Entities.Query(filter).ForEachAllocation(func(a *ms.Allocation) {
			work[c] = append(work[c], a)
		})
	}

	var g errgroup.Group
	g.SetLimit(max(1, l.Entities.Workers()))
	for c := range ms.NumDoubleChannels {
		if len(work[c]) == 0 {
			continue
		}
		g.Go(func() error {
			for _, a := range work[c] {
				evaluateChannel(l, reg, a, c)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func evaluateChannel(l *ms.Linker, reg *Registry, a *ms.Allocation, c int) {
	b := l.Builtins
	sources := ms.Column(a, b.DoubleChannel[c])
	results := ms.Column(a, b.DoubleResult[c])
	timeOf := timeSource(l, reg, a)
	for i := range a.Num() {
		t, ok := timeOf(i)
		if !ok || sources[i] == nil {
			continue
		}
		if v, ok := sources[i].Evaluate(t); ok {
			results[i] = v
		}
	}
	bases := ms.Column(a, b.BaseDouble[c])
	baseTimes := ms.Column(a, b.BaseValueEvalTime)
	if bases == nil || baseTimes == nil {
		return
	}
	for i := range a.Num() {
		if sources[i] == nil {
			continue
		}
		if v, ok := sources[i].Evaluate(baseTimes[i]); ok {
			bases[i] = v
		}
	}
}

// BoolEvaluator samples every BoolChannel into BoolResult.
type BoolEvaluator struct{}

func (BoolEvaluator) Name() string    { return BoolEvaluatorName }
func (BoolEvaluator) Phase() ms.Phase { return ms.PhaseEvaluation }

func (BoolEvaluator) OnLink(l *ms.Linker) {
	l.Systems.DefineComponentProducer(BoolEvaluatorName, l.Builtins.BoolResult.ID())
}

func (BoolEvaluator) Run(l *ms.Linker) {
	b := l.Builtins
	reg := GetRegistry(l)
	filter := ms.NewFilter(b.BoolChannel.ID(), b.BoolResult.ID()).None(b.NeedsUnlink.ID())
	l.Entities.Query(filter).SetThread(ms.AnyThread).ForEachAllocation(func(a *ms.Allocation) {
		sources := ms.Column(a, b.BoolChannel)
		results := ms.Column(a, b.BoolResult)
		timeOf := timeSource(l, reg, a)
		for i := range a.Num() {
			t, ok := timeOf(i)
			if !ok || sources[i] == nil {
				continue
			}
			if v, ok := sources[i].EvaluateBool(t); ok {
				results[i] = v
			}
		}
	})
}

// WeightEvaluator multiplies the easing envelope and the weight channel of
// every weighted entity into WeightAndEasingResult.
type WeightEvaluator struct{}

func (WeightEvaluator) Name() string    { return WeightEvaluatorName }
func (WeightEvaluator) Phase() ms.Phase { return ms.PhaseEvaluation }

func (WeightEvaluator) OnLink(l *ms.Linker) {
	l.Systems.DefineComponentProducer(WeightEvaluatorName, l.Builtins.WeightAndEasingResult.ID())
}

func (WeightEvaluator) Run(l *ms.Linker) {
	b := l.Builtins
	reg := GetRegistry(l)
	c := FindComponents(l)
	filter := ms.NewFilter(b.WeightAndEasingResult.ID()).None(b.NeedsUnlink.ID())
	l.Entities.Query(filter).SetThread(ms.AnyThread).ForEachAllocation(func(a *ms.Allocation) {
		results := ms.Column(a, b.WeightAndEasingResult)
		weights := ms.Column(a, b.WeightChannel)
		var easings []Easing
		if c != nil {
			easings = ms.Column(a, c.Easing)
		}
		timeOf := timeSource(l, reg, a)
		for i := range a.Num() {
			t, ok := timeOf(i)
			if !ok {
				continue
			}
			w := 1.0
			if easings != nil {
				w *= easings[i].Weight(t)
			}
			if weights != nil && weights[i] != nil {
				if v, ok := weights[i].Evaluate(t); ok {
					w *= v
				}
			}
			results[i] = w
		}
	})
}
