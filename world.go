package moviescene

import (
	"reflect"
	"sync/atomic"
	"unsafe"

	"github.com/rs/zerolog/log"
)

// DefaultChunkSize is the number of entities stored in one allocation.
// Allocations are the unit of parallel dispatch.
const DefaultChunkSize = 256

// column is the typed storage of one component type inside a chunk.
type column struct {
	base  unsafe.Pointer // first element of slice
	slice reflect.Value  // []T of length chunk capacity, keeps GC-visible typing
	size  uintptr
}

// chunk holds fixed-size storage for up to chunkSize entities of one archetype.
type chunk struct {
	entityIDs []Entity
	columns   [MaxComponentTypes]*column
	size      int // number of entities in this chunk
}

// archetype holds storage for one unique component-set mask.
type archetype struct {
	chunks    []*chunk
	compOrder []ComponentTypeID // component IDs with storage in this archetype
	mask      ComponentMask     // which component bits this archetype uses
	index     int               // position in archetypeRegistry.archetypes
	size      int               // total entity count across chunks
}

// archetypeRegistry owns every archetype created by an EntityManager.
type archetypeRegistry struct {
	maskToArcIndex   map[ComponentMask]int // lookup mask→archetype index
	archetypes       []*archetype
	archetypeVersion uint32 // incremented when a new archetype is created
}

// EntityManager is the archetype-keyed table of entities. Entities with the same
// component mask share an archetype and are stored in fixed-size chunks of
// columnar component data.
//
// Structural changes (creating or destroying entities, adding or removing
// components) are rejected while the structure is locked down for iteration;
// callers queue them in a CommandBuffer and apply them at sync points.
type EntityManager struct {
	registry   *ComponentRegistry
	archetypes archetypeRegistry
	entities   entityRegistry
	chunkSize  int
	serial     atomic.Uint64 // bumped on every structural change
	lockdown   atomic.Int32
	workers    atomic.Int32
	queryCache map[Filter]*cachedQuery
}

// cachedQuery remembers which archetypes match a filter.
type cachedQuery struct {
	version  uint32
	scanned  int
	matching []*archetype
}

// NewEntityManager creates an entity manager with a pre-allocated capacity.
func NewEntityManager(registry *ComponentRegistry, initialCapacity int) *EntityManager {
	m := &EntityManager{
		registry: registry,
		archetypes: archetypeRegistry{
			maskToArcIndex: make(map[ComponentMask]int),
			archetypes:     make([]*archetype, 0, 16),
		},
		entities:   newEntityRegistry(initialCapacity),
		chunkSize:  DefaultChunkSize,
		queryCache: make(map[Filter]*cachedQuery),
	}
	// Pre-create the empty archetype
	m.getOrCreateArchetype(ComponentMask{})
	return m
}

// SetChunkSize changes the allocation size used by archetypes created afterwards.
func (m *EntityManager) SetChunkSize(n int) {
	if n > 0 {
		m.chunkSize = n
	}
}

// Registry returns the component registry the manager was created with.
func (m *EntityManager) Registry() *ComponentRegistry {
	return m.registry
}

// Serial returns the structural change counter. It increases monotonically
// every time an entity is created, destroyed or changes archetype.
func (m *EntityManager) Serial() uint64 {
	return m.serial.Load()
}

// NumEntities returns the number of live entities.
func (m *EntityManager) NumEntities() int {
	return m.entities.live
}

// LockdownStructure forbids structural changes until ReleaseStructure is called.
func (m *EntityManager) LockdownStructure() {
	m.lockdown.Add(1)
}

// ReleaseStructure undoes one LockdownStructure.
func (m *EntityManager) ReleaseStructure() {
	m.lockdown.Add(-1)
}

// IsLockedDown reports whether structural changes are currently forbidden.
func (m *EntityManager) IsLockedDown() bool {
	return m.lockdown.Load() > 0
}

func (m *EntityManager) checkStructural() bool {
	return Ensure(!m.IsLockedDown(), "structural change while entity manager is locked down")
}

// IsAlive checks if the entity is currently alive. An entity is alive if its
// ID is within bounds and its version matches the current version for that ID.
func (m *EntityManager) IsAlive(e Entity) bool {
	return m.entities.isAlive(e)
}

// getOrCreateArchetype returns an archetype for the given mask.
func (m *EntityManager) getOrCreateArchetype(mask ComponentMask) *archetype {
	if idx, ok := m.archetypes.maskToArcIndex[mask]; ok {
		return m.archetypes.archetypes[idx]
	}
	a := &archetype{
		index:  len(m.archetypes.archetypes),
		mask:   mask,
		chunks: make([]*chunk, 0, 4),
	}
	mask.ForEach(func(id ComponentTypeID) {
		if !m.registry.IsTag(id) {
			a.compOrder = append(a.compOrder, id)
		}
	})
	m.archetypes.archetypes = append(m.archetypes.archetypes, a)
	m.archetypes.maskToArcIndex[mask] = a.index
	m.archetypes.archetypeVersion++
	log.Debug().Int("archetype", a.index).Int("components", mask.Count()).Msg("archetype created")
	return a
}

// newChunk creates a new chunk for the archetype.
func (m *EntityManager) newChunk(a *archetype) *chunk {
	c := &chunk{entityIDs: make([]Entity, m.chunkSize)}
	for _, cid := range a.compOrder {
		info := m.registry.info(cid)
		slice := reflect.MakeSlice(reflect.SliceOf(info.typ), m.chunkSize, m.chunkSize)
		c.columns[cid] = &column{base: slice.UnsafePointer(), slice: slice, size: info.size}
	}
	return c
}

// place appends an entity slot to the archetype and returns its location.
func (m *EntityManager) place(a *archetype, e Entity) (chunkIdx, idx int) {
	if len(a.chunks) == 0 || a.chunks[len(a.chunks)-1].size == len(a.chunks[len(a.chunks)-1].entityIDs) {
		a.chunks = append(a.chunks, m.newChunk(a))
	}
	chunkIdx = len(a.chunks) - 1
	c := a.chunks[chunkIdx]
	idx = c.size
	c.entityIDs[idx] = e
	c.size++
	a.size++
	return chunkIdx, idx
}

// CreateEntity creates a new entity with the given component mask. Component
// values start zeroed.
func (m *EntityManager) CreateEntity(mask ComponentMask) Entity {
	if !m.checkStructural() {
		return InvalidEntity
	}
	a := m.getOrCreateArchetype(mask)
	id, meta := m.entities.allocate()
	e := Entity{ID: id, Version: meta.version}
	meta.archetypeIndex = a.index
	meta.chunkIndex, meta.index = m.place(a, e)
	m.serial.Add(1)
	return e
}

// DestroyEntity removes a single entity. Stale handles are ignored.
func (m *EntityManager) DestroyEntity(e Entity) {
	if !m.IsAlive(e) || !m.checkStructural() {
		return
	}
	meta := &m.entities.metas[e.ID]
	a := m.archetypes.archetypes[meta.archetypeIndex]
	m.removeFromArchetype(a, meta)
	m.entities.release(e.ID)
	m.serial.Add(1)
}

// removeFromArchetype removes the entity from the archetype without freeing
// the ID or invalidating the version. The last entity of the chunk is swapped
// into the vacated slot.
func (m *EntityManager) removeFromArchetype(a *archetype, meta *entityMeta) {
	chunkIdx := meta.chunkIndex
	c := a.chunks[chunkIdx]
	idx := meta.index
	lastIdx := c.size - 1
	if idx < lastIdx {
		lastEnt := c.entityIDs[lastIdx]
		c.entityIDs[idx] = lastEnt
		for _, cid := range a.compOrder {
			col := c.columns[cid]
			reflect.Copy(col.slice.Slice(idx, idx+1), col.slice.Slice(lastIdx, lastIdx+1))
		}
		m.entities.metas[lastEnt.ID].index = idx
	}
	// release references held by the vacated slot
	for _, cid := range a.compOrder {
		c.columns[cid].slice.Index(lastIdx).SetZero()
	}
	c.entityIDs[lastIdx] = InvalidEntity
	c.size--
	a.size--
	if c.size == 0 {
		lastChunkIdx := len(a.chunks) - 1
		if chunkIdx < lastChunkIdx {
			a.chunks[chunkIdx] = a.chunks[lastChunkIdx]
			swapped := a.chunks[chunkIdx]
			for j := 0; j < swapped.size; j++ {
				m.entities.metas[swapped.entityIDs[j].ID].chunkIndex = chunkIdx
			}
		}
		a.chunks[lastChunkIdx] = nil
		a.chunks = a.chunks[:lastChunkIdx]
	}
}

// moveEntity migrates an entity to the archetype with newMask, copying every
// component the two archetypes share.
func (m *EntityManager) moveEntity(e Entity, newMask ComponentMask) {
	meta := &m.entities.metas[e.ID]
	oldA := m.archetypes.archetypes[meta.archetypeIndex]
	if oldA.mask == newMask {
		return
	}
	newA := m.getOrCreateArchetype(newMask)
	oldChunk := oldA.chunks[meta.chunkIndex]
	oldIdx := meta.index
	chunkIdx, newIdx := m.place(newA, e)
	newChunk := newA.chunks[chunkIdx]
	for _, cid := range oldA.compOrder {
		dst := newChunk.columns[cid]
		if dst == nil {
			continue
		}
		src := oldChunk.columns[cid]
		reflect.Copy(dst.slice.Slice(newIdx, newIdx+1), src.slice.Slice(oldIdx, oldIdx+1))
	}
	m.removeFromArchetype(oldA, meta)
	meta.archetypeIndex = newA.index
	meta.chunkIndex = chunkIdx
	meta.index = newIdx
	m.serial.Add(1)
}

// ComponentMaskOf returns the component mask of an entity, or an empty mask for
// dead entities.
func (m *EntityManager) ComponentMaskOf(e Entity) ComponentMask {
	if !m.IsAlive(e) {
		return ComponentMask{}
	}
	return m.archetypes.archetypes[m.entities.metas[e.ID].archetypeIndex].mask
}

// HasComponent reports whether a live entity has the given component type.
func (m *EntityManager) HasComponent(e Entity, id ComponentTypeID) bool {
	return m.ComponentMaskOf(e).Contains(id)
}

// AddComponents adds every component in mask to the entity. Existing
// components keep their values; new ones start zeroed.
func (m *EntityManager) AddComponents(e Entity, mask ComponentMask) {
	if !m.IsAlive(e) || !m.checkStructural() {
		return
	}
	cur := m.ComponentMaskOf(e)
	m.moveEntity(e, cur.Union(mask))
}

// AddComponent adds a single zero-valued component or tag.
func (m *EntityManager) AddComponent(e Entity, id ComponentTypeID) {
	m.AddComponents(e, MaskOf(id))
}

// RemoveComponents removes every component in mask from the entity.
func (m *EntityManager) RemoveComponents(e Entity, mask ComponentMask) {
	if !m.IsAlive(e) || !m.checkStructural() {
		return
	}
	cur := m.ComponentMaskOf(e)
	m.moveEntity(e, cur.Difference(mask))
}

// RemoveComponent removes a single component or tag.
func (m *EntityManager) RemoveComponent(e Entity, id ComponentTypeID) {
	m.RemoveComponents(e, MaskOf(id))
}

// ChangeEntityType moves an entity to exactly newMask.
func (m *EntityManager) ChangeEntityType(e Entity, newMask ComponentMask) {
	if !m.IsAlive(e) || !m.checkStructural() {
		return
	}
	m.moveEntity(e, newMask)
}

// componentPtr returns a pointer to the raw storage of a component, or nil.
func (m *EntityManager) componentPtr(e Entity, id ComponentTypeID) unsafe.Pointer {
	if !m.IsAlive(e) {
		return nil
	}
	meta := m.entities.metas[e.ID]
	a := m.archetypes.archetypes[meta.archetypeIndex]
	if !a.mask.Contains(id) {
		return nil
	}
	col := a.chunks[meta.chunkIndex].columns[id]
	if col == nil {
		return nil
	}
	return unsafe.Add(col.base, uintptr(meta.index)*col.size)
}

// CopyComponents copies the values of every component in mask that both
// entities carry from src to dst.
func (m *EntityManager) CopyComponents(src, dst Entity, mask ComponentMask) {
	if !m.IsAlive(src) || !m.IsAlive(dst) {
		return
	}
	sm := m.entities.metas[src.ID]
	dm := m.entities.metas[dst.ID]
	sa := m.archetypes.archetypes[sm.archetypeIndex]
	da := m.archetypes.archetypes[dm.archetypeIndex]
	sc := sa.chunks[sm.chunkIndex]
	dc := da.chunks[dm.chunkIndex]
	for _, cid := range sa.compOrder {
		if !mask.Contains(cid) || dc.columns[cid] == nil {
			continue
		}
		reflect.Copy(dc.columns[cid].slice.Slice(dm.index, dm.index+1), sc.columns[cid].slice.Slice(sm.index, sm.index+1))
	}
}

// Clear destroys every entity.
func (m *EntityManager) Clear() {
	if !m.checkStructural() {
		return
	}
	for _, a := range m.archetypes.archetypes {
		for _, c := range a.chunks {
			for i := 0; i < c.size; i++ {
				m.entities.release(c.entityIDs[i].ID)
			}
		}
		a.chunks = a.chunks[:0]
		a.size = 0
	}
	m.serial.Add(1)
}
