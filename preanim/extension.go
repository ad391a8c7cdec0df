// Package preanim captures the state objects had before anything animated
// them and restores it, in reverse capture order, when animation stops.
package preanim

import (
	"cmp"
	"slices"
	"sync"

	ms "github.com/edwinsyarief/moviescene"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Reason is an independent reason to keep captured state alive.
type Reason uint8

const (
	// GlobalCapture keeps every captured value until RestoreGlobalState, as
	// used while editing interactively.
	GlobalCapture Reason = iota
	// RestoreStateEntities is held while any entity tagged RestoreState exists.
	RestoreStateEntities
	numReasons
)

func (r Reason) String() string {
	if r == GlobalCapture {
		return "global-capture"
	}
	return "restore-state-entities"
}

// Key identifies one captured value: an object and a storage name such as a
// property path.
type Key struct {
	Object  any
	Storage string
}

type entry struct {
	key     Key
	seq     uint64
	value   any
	restore func()
	pending bool
}

// Extension is the per-linker store of pre-animated state.
type Extension struct {
	mu        sync.Mutex
	keepAlive [numReasons]int
	entries   map[Key]*entry
	seq       uint64
	pending   int
	log       zerolog.Logger
}

// NewExtension creates an empty store.
func NewExtension() *Extension {
	return &Extension{
		entries: make(map[Key]*entry),
		log:     log.With().Str("extension", "preanimated").Logger(),
	}
}

// Get returns the store of a linker, creating it on first use.
func Get(l *ms.Linker) *Extension {
	return ms.GetOrAddExtension(&l.Extensions, NewExtension)
}

// AcquireKeepAlive adds a reference for reason.
func (x *Extension) AcquireKeepAlive(r Reason) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.keepAlive[r]++
}

// ReleaseKeepAlive drops a reference for reason. Once no reason holds the
// store, captured values with no pending restore are discarded: nothing will
// ever ask for them back.
func (x *Extension) ReleaseKeepAlive(r Reason) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if !ms.Ensure(x.keepAlive[r] > 0, "pre-animated keep-alive released more often than acquired") {
		return
	}
	x.keepAlive[r]--
	if x.aliveLocked() {
		return
	}
	dropped := 0
	for k, e := range x.entries {
		if !e.pending {
			delete(x.entries, k)
			dropped++
		}
	}
	if dropped > 0 {
		x.log.Debug().Int("entries", dropped).Msg("discarded unreferenced pre-animated state")
	}
}

// HoldsKeepAlive reports whether reason currently holds the store.
func (x *Extension) HoldsKeepAlive(r Reason) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.keepAlive[r] > 0
}

// IsCapturing reports whether any reason holds the store.
func (x *Extension) IsCapturing() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.aliveLocked()
}

// IsCapturingGlobalState reports whether global capture is enabled.
func (x *Extension) IsCapturingGlobalState() bool {
	return x.HoldsKeepAlive(GlobalCapture)
}

func (x *Extension) aliveLocked() bool {
	for _, n := range x.keepAlive {
		if n > 0 {
			return true
		}
	}
	return false
}

// Cache records the value of key the first time it is seen. capture returns
// the current value and the function that puts it back. Caching a key that is
// already tracked is a no-op, so the original value always wins; if a restore
// of that key is pending it is cancelled instead. It reports whether capture
// ran.
func (x *Extension) Cache(key Key, capture func() (value any, restore func())) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	if e, ok := x.entries[key]; ok {
		if e.pending {
			e.pending = false
			x.pending--
		}
		return false
	}
	value, restore := capture()
	x.seq++
	x.entries[key] = &entry{key: key, seq: x.seq, value: value, restore: restore}
	return true
}

// Contains reports whether key has captured state.
func (x *Extension) Contains(key Key) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	_, ok := x.entries[key]
	return ok
}

// Value returns the captured value of key.
func (x *Extension) Value(key Key) (any, bool) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if e, ok := x.entries[key]; ok {
		return e.value, true
	}
	return nil, false
}

// Len returns the number of captured values.
func (x *Extension) Len() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.entries)
}

// RequestRestore schedules key to be restored at the next flush.
func (x *Extension) RequestRestore(key Key) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	e, ok := x.entries[key]
	if !ok {
		return false
	}
	if !e.pending {
		e.pending = true
		x.pending++
	}
	return true
}

// HasPendingRestores reports whether a flush would restore anything.
func (x *Extension) HasPendingRestores() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.pending > 0
}

// FlushRestores restores every pending key in reverse capture order and
// forgets it. It returns the number restored.
func (x *Extension) FlushRestores() int {
	x.mu.Lock()
	var due []*entry
	for k, e := range x.entries {
		if e.pending {
			due = append(due, e)
			delete(x.entries, k)
		}
	}
	x.pending = 0
	x.mu.Unlock()
	restoreReverse(due)
	return len(due)
}

// RestoreGlobalState restores everything captured, in reverse capture order,
// and empties the store.
func (x *Extension) RestoreGlobalState() int {
	x.mu.Lock()
	all := make([]*entry, 0, len(x.entries))
	for _, e := range x.entries {
		all = append(all, e)
	}
	clear(x.entries)
	x.pending = 0
	x.mu.Unlock()
	restoreReverse(all)
	x.log.Info().Int("entries", len(all)).Msg("restored global state")
	return len(all)
}

// Discard forgets the captured state of key without restoring it.
func (x *Extension) Discard(key Key) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if e, ok := x.entries[key]; ok {
		if e.pending {
			x.pending--
		}
		delete(x.entries, key)
	}
}

// DiscardObject forgets every value captured for obj, typically once it has
// been collected.
func (x *Extension) DiscardObject(obj any) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	n := 0
	for k, e := range x.entries {
		if k.Object == obj {
			if e.pending {
				x.pending--
			}
			delete(x.entries, k)
			n++
		}
	}
	return n
}

func restoreReverse(entries []*entry) {
	slices.SortFunc(entries, func(a, b *entry) int { return cmp.Compare(b.seq, a.seq) })
	for _, e := range entries {
		if e.restore != nil {
			e.restore()
		}
	}
}

// DiscardGarbage forgets every value captured for an object isGarbage reports
// as collected.
func (x *Extension) DiscardGarbage(isGarbage func(any) bool) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	n := 0
	for k, e := range x.entries {
		if k.Object != nil && isGarbage(k.Object) {
			if e.pending {
				x.pending--
			}
			delete(x.entries, k)
			n++
		}
	}
	if n > 0 {
		x.log.Debug().Int("entries", n).Msg("discarded pre-animated state of collected objects")
	}
	return n
}
