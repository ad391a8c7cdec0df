package moviescene

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

var (
	ensurePanics atomic.Bool
	ensureSeen   sync.Map // message -> struct{}
)

// SetEnsurePanics switches Ensure between debug behavior (panic) and release
// behavior (log once and continue).
func SetEnsurePanics(enabled bool) {
	ensurePanics.Store(enabled)
}

// Ensure checks an engine invariant. A failed check is logged once per message
// and either panics (debug) or returns false so the caller can degrade a single
// property for one frame.
func Ensure(cond bool, msg string) bool {
	if cond {
		return true
	}
	if ensurePanics.Load() {
		panic("ensure failed: " + msg)
	}
	if _, loaded := ensureSeen.LoadOrStore(msg, struct{}{}); !loaded {
		log.Error().Str("check", msg).Msg("ensure failed")
	}
	return false
}

// resetEnsureLog forgets which messages were already reported.
func resetEnsureLog() {
	ensureSeen.Range(func(k, _ any) bool {
		ensureSeen.Delete(k)
		return true
	})
}
