// Package evaluation assembles the standard evaluation pipeline: a linker
// with every built-in system linked in dependency order, and a runtime that
// advances sequence instances and evaluates them frame by frame.
package evaluation

import (
	ms "github.com/edwinsyarief/moviescene"
	"github.com/edwinsyarief/moviescene/blend"
	"github.com/edwinsyarief/moviescene/config"
	"github.com/edwinsyarief/moviescene/object"
	"github.com/edwinsyarief/moviescene/preanim"
	"github.com/edwinsyarief/moviescene/property"
	"github.com/edwinsyarief/moviescene/scene"
	"github.com/edwinsyarief/moviescene/tracks"
	"github.com/rotisserie/eris"
)

// Options configure NewLinker.
type Options struct {
	Name string
	// Config supplies dispatch, pre-animated state and blend settings.
	// Nil means config.Default().
	Config *config.Config
	// Bindings resolves object bindings. Nil creates an empty table.
	Bindings *object.Bindings
	// Interrogation links only the systems that compute values: nothing is
	// cached, restored or written back to objects.
	Interrogation bool
}

// Linker is a moviescene linker together with the registries and systems
// callers need to reach.
type Linker struct {
	*ms.Linker

	Properties   *property.Registry
	Standard     *property.StandardProperties
	Accessors    *object.Accessors
	Resolver     *object.Resolver
	Bindings     *object.Bindings
	Blender      *blend.Blender
	Instantiator *property.Instantiator
	BoundObjects *tracks.BoundObjectResolver
	Origins      *scene.TransformOriginSystem

	config        *config.Config
	interrogation bool
}

// NewLinker builds a linker with the standard properties and systems.
func NewLinker(opts Options) (*Linker, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	name := opts.Name
	if name == "" {
		name = "moviescene"
	}
	ms.SetEnsurePanics(cfg.Evaluation.EnsurePanics)

	reg := ms.NewComponentRegistry()
	builtins := ms.NewBuiltInComponents(reg)
	l := &Linker{
		Linker:        ms.NewLinker(name, reg, builtins),
		Properties:    property.NewRegistry(reg, builtins),
		Bindings:      opts.Bindings,
		config:        cfg,
		interrogation: opts.Interrogation,
	}
	if l.Bindings == nil {
		l.Bindings = object.NewBindings()
	}
	l.Entities.SetChunkSize(cfg.Evaluation.ChunkSize)
	l.Entities.SetWorkers(cfg.NumWorkers())

	l.Standard = property.RegisterStandard(l.Properties)
	tracks.RegisterComponents(l.Linker, l.TagLookup())
	scene.RegisterComponents(l.Linker)

	l.Accessors = object.NewAccessors()
	object.RegisterSceneAccessors(l.Accessors)
	l.Resolver = object.NewResolver(l.Accessors)
	l.Blender = blend.NewBlender(cfg.Blend.CompactInterval)
	l.Instantiator = property.NewInstantiator(l.Properties, l.Resolver, l.Blender)

	if err := l.linkSystems(); err != nil {
		return nil, eris.Wrapf(err, "linking systems of %s", name)
	}
	if cfg.PreAnimated.GlobalCapture && !opts.Interrogation {
		preanim.Get(l.Linker).AcquireKeepAlive(preanim.GlobalCapture)
	}
	l.Logger().Debug().Int("systems", len(l.Systems.Systems())).Int("workers", l.Entities.Workers()).Bool("interrogation", opts.Interrogation).Msg("linker created")
	return l, nil
}

func (l *Linker) linkSystems() error {
	var systems []ms.System
	if l.interrogation {
		systems = []ms.System{
			l.Instantiator,
			tracks.ChannelEvaluator{}, tracks.BoolEvaluator{}, tracks.WeightEvaluator{},
			l.Blender,
		}
	} else {
		cache := preanim.NewCacheSystem()
		cache.AddCacher(l.Instantiator)
		l.BoundObjects = tracks.NewBoundObjectResolver(l.Bindings)
		l.Origins = scene.NewTransformOriginSystem(l.Standard.Transform)
		systems = []ms.System{
			l.BoundObjects,
			l.Instantiator,
			scene.NewMobilitySystem(l.Standard.Transform.Tag),
			scene.NewAttachmentSystem(l.Bindings),
			cache,
			preanim.NewRestoreSystem(),
			tracks.ChannelEvaluator{}, tracks.BoolEvaluator{}, tracks.WeightEvaluator{},
			l.Blender,
			l.Origins,
			property.NewSetter(l.Properties, l.Resolver),
		}
	}
	for _, s := range systems {
		if err := l.LinkSystem(s); err != nil {
			return err
		}
	}
	return nil
}

// Config returns the configuration the linker was built with.
func (l *Linker) Config() *config.Config {
	return l.config
}

// IsInterrogation reports whether the linker only computes values.
func (l *Linker) IsInterrogation() bool {
	return l.interrogation
}

// TagLookup maps property definition names to their tags.
func (l *Linker) TagLookup() tracks.TagLookup {
	return func(name string) (ms.TagType, bool) {
		if d := l.Properties.Find(name); d != nil {
			return d.Tag, true
		}
		return ms.TagType{}, false
	}
}

// CollectGarbage unlinks every entity bound to a destroyed object and drops
// the state kept for it. It returns the number of entities unlinked.
func (l *Linker) CollectGarbage() int {
	return l.TagGarbage(object.IsGarbage)
}

// SetGlobalCapture turns capture of every animated value on or off. Turning
// it off keeps what was captured until RestoreGlobalState.
func (l *Linker) SetGlobalCapture(enabled bool) {
	ext := preanim.Get(l.Linker)
	switch {
	case enabled && !ext.IsCapturingGlobalState():
		ext.AcquireKeepAlive(preanim.GlobalCapture)
	case !enabled && ext.IsCapturingGlobalState():
		ext.ReleaseKeepAlive(preanim.GlobalCapture)
	}
}

// RestoreGlobalState puts back every captured value in reverse capture order.
func (l *Linker) RestoreGlobalState() int {
	return preanim.Get(l.Linker).RestoreGlobalState()
}
