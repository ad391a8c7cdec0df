package preanim

import (
	ms "github.com/edwinsyarief/moviescene"
)

const (
	CacheSystemName   = "CachePreAnimatedState"
	RestoreSystemName = "RestorePreAnimatedState"
)

// Cacher captures the pre-animated state of whatever it animates. Cachers run
// in the order they were added to the cache system.
type Cacher interface {
	CachePreAnimatedState(l *ms.Linker, ext *Extension)
}

// CacheSystem runs every registered cacher during instantiation, before any
// value is written, and tracks whether RestoreState entities keep the store
// alive.
type CacheSystem struct {
	cachers       []Cacher
	holdsEntities bool
}

// NewCacheSystem creates the cache system.
func NewCacheSystem() *CacheSystem {
	return &CacheSystem{}
}

func (s *CacheSystem) Name() string    { return CacheSystemName }
func (s *CacheSystem) Phase() ms.Phase { return ms.PhaseInstantiation }

// AddCacher appends a cacher.
func (s *CacheSystem) AddCacher(c Cacher) {
	s.cachers = append(s.cachers, c)
}

// OnLink drops captured state of collected objects whenever the linker tags
// garbage.
func (s *CacheSystem) OnLink(l *ms.Linker) {
	ms.Subscribe(l.Events, func(ev ms.GarbageTagged) {
		Get(l).DiscardGarbage(ev.IsGarbage)
	})
}

func (s *CacheSystem) IsRelevant(l *ms.Linker) bool {
	b := l.Builtins
	return s.holdsEntities || Get(l).IsCapturing() ||
		l.Entities.Contains(ms.Filter{}.Any(b.RestoreState.ID(), b.CachePreAnimatedValue.ID()))
}

func (s *CacheSystem) Run(l *ms.Linker) {
	ext := Get(l)
	restoring := l.Entities.Contains(ms.NewFilter(l.Builtins.RestoreState.ID()))
	if restoring && !s.holdsEntities {
		ext.AcquireKeepAlive(RestoreStateEntities)
		s.holdsEntities = true
	}
	for _, c := range s.cachers {
		c.CachePreAnimatedState(l, ext)
	}
	if !restoring && s.holdsEntities {
		ext.ReleaseKeepAlive(RestoreStateEntities)
		s.holdsEntities = false
	}
}

// RestoreSystem flushes pending restores after every cacher ran.
type RestoreSystem struct{}

// NewRestoreSystem creates the restore system.
func NewRestoreSystem() *RestoreSystem {
	return &RestoreSystem{}
}

func (s *RestoreSystem) Name() string    { return RestoreSystemName }
func (s *RestoreSystem) Phase() ms.Phase { return ms.PhaseInstantiation }

// OnLink orders the restore system after the cache system.
func (s *RestoreSystem) OnLink(l *ms.Linker) {
	l.Systems.AddPrerequisite(CacheSystemName, RestoreSystemName)
}

func (s *RestoreSystem) IsRelevant(l *ms.Linker) bool {
	return Get(l).HasPendingRestores()
}

func (s *RestoreSystem) Run(l *ms.Linker) {
	if n := Get(l).FlushRestores(); n > 0 {
		l.Logger().Debug().Int("restored", n).Msg("flushed pre-animated state")
	}
}
