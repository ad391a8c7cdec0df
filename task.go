package moviescene

import (
	"runtime"
	"unsafe"

	"golang.org/x/sync/errgroup"
)

// ThreadHint tells the dispatcher where a task may run.
type ThreadHint uint8

const (
	// GameThread pins the task to the calling goroutine. Use it for writes onto
	// host objects that are not safe for concurrent access.
	GameThread ThreadHint = iota
	// AnyThread allows allocations to be processed on worker goroutines.
	AnyThread
)

// Allocation is one chunk of entities sharing an archetype. It is the unit of
// iteration and of parallel dispatch.
type Allocation struct {
	arch  *archetype
	chunk *chunk
	m     *EntityManager
}

// Num returns the number of entities in the allocation.
func (a *Allocation) Num() int {
	return a.chunk.size
}

// Entities returns the entity handles stored in the allocation.
func (a *Allocation) Entities() []Entity {
	return a.chunk.entityIDs[:a.chunk.size]
}

// Mask returns the component mask shared by every entity in the allocation.
func (a *Allocation) Mask() ComponentMask {
	return a.arch.mask
}

// Has reports whether the allocation carries a component type.
func (a *Allocation) Has(id ComponentTypeID) bool {
	return a.arch.mask.Contains(id)
}

// Manager returns the owning entity manager.
func (a *Allocation) Manager() *EntityManager {
	return a.m
}

// Column returns the typed component column of an allocation, or nil if the
// allocation does not carry the component.
func Column[T any](a *Allocation, ct ComponentType[T]) []T {
	col := a.chunk.columns[ct.id]
	if col == nil || a.chunk.size == 0 {
		return nil
	}
	return unsafe.Slice((*T)(col.base), a.chunk.size)
}

// RawColumn returns the base pointer and element stride of a component column.
// It is used where a component is read through byte offsets into an
// operational struct rather than through its Go type.
func RawColumn(a *Allocation, id ComponentTypeID) (unsafe.Pointer, uintptr) {
	col := a.chunk.columns[id]
	if col == nil {
		return nil, 0
	}
	return col.base, col.size
}

// TaskBuilder describes an iteration over every allocation matching a filter.
type TaskBuilder struct {
	m      *EntityManager
	filter Filter
	thread ThreadHint
}

// Query starts a task over the entities matching f.
func (m *EntityManager) Query(f Filter) *TaskBuilder {
	return &TaskBuilder{m: m, filter: f}
}

// SetThread sets the dispatch hint of the task.
func (t *TaskBuilder) SetThread(h ThreadHint) *TaskBuilder {
	t.thread = h
	return t
}

// allocations snapshots the non-empty allocations matching the filter.
func (t *TaskBuilder) allocations() []Allocation {
	var out []Allocation
	for _, a := range t.m.matchingArchetypes(t.filter) {
		for _, c := range a.chunks {
			if c.size > 0 {
				out = append(out, Allocation{arch: a, chunk: c, m: t.m})
			}
		}
	}
	return out
}

// ForEachAllocation calls fn once per matching allocation. The entity
// structure is locked for the duration; structural changes must be queued on
// a CommandBuffer. With the AnyThread hint and a parallel manager, allocations
// are processed concurrently and ForEachAllocation returns once all finish.
func (t *TaskBuilder) ForEachAllocation(fn func(a *Allocation)) {
	allocs := t.allocations()
	if len(allocs) == 0 {
		return
	}
	t.m.LockdownStructure()
	defer t.m.ReleaseStructure()

	workers := t.m.Workers()
	if t.thread == GameThread || workers <= 1 || len(allocs) == 1 {
		for i := range allocs {
			fn(&allocs[i])
		}
		return
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for i := range allocs {
		a := &allocs[i]
		g.Go(func() error {
			fn(a)
			return nil
		})
	}
	_ = g.Wait()
}

// ForEachEntity calls fn for every matching entity with its allocation and
// index inside it.
func (t *TaskBuilder) ForEachEntity(fn func(a *Allocation, i int)) {
	t.ForEachAllocation(func(a *Allocation) {
		for i := 0; i < a.Num(); i++ {
			fn(a, i)
		}
	})
}

// SetWorkers configures parallel dispatch. n <= 1 runs every task inline;
// n < 0 uses GOMAXPROCS.
func (m *EntityManager) SetWorkers(n int) {
	if n < 0 {
		n = runtime.GOMAXPROCS(0)
	}
	m.workers.Store(int32(n))
}

// Workers returns the configured parallelism.
func (m *EntityManager) Workers() int {
	return int(m.workers.Load())
}
