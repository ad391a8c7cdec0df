package moviescene

import "fmt"

// Entity represents one animated contribution inside an EntityManager. It
// combines a 32-bit ID with a 32-bit version to ensure that recycled IDs are not
// confused with new entities. The zero value is never a live entity.
type Entity struct {
	// ID is the unique, recyclable identifier for the entity.
	ID uint32
	// Version is a generation counter to protect against stale entity references.
	// It is incremented each time an entity ID is reused.
	Version uint32
}

// InvalidEntity is the zero entity handle.
var InvalidEntity = Entity{}

// IsValid reports whether the handle could refer to an entity. It does not
// check liveness; use EntityManager.IsAlive for that.
func (e Entity) IsValid() bool {
	return e.Version != 0
}

func (e Entity) String() string {
	return fmt.Sprintf("%d:%d", e.ID, e.Version)
}

// entityMeta holds the internal location and state of an entity.
type entityMeta struct {
	archetypeIndex int    // index in archetypeRegistry.archetypes
	chunkIndex     int    // index in archetype.chunks
	index          int    // position inside the chunk's component arrays
	version        uint32 // current version, 0 if the entity is dead
}

// entityRegistry tracks entity metadata and recycled IDs.
type entityRegistry struct {
	freeIDs       []uint32     // stack of recycled entity IDs
	metas         []entityMeta // stores metadata for each entity, indexed by entity ID
	capacity      int          // current maximum number of entities
	nextEntityVer uint32       // version for the next created entity
	live          int
}

func newEntityRegistry(initialCapacity int) entityRegistry {
	r := entityRegistry{
		capacity:      initialCapacity,
		freeIDs:       make([]uint32, initialCapacity),
		metas:         make([]entityMeta, initialCapacity),
		nextEntityVer: 1,
	}
	for i := range r.freeIDs {
		r.freeIDs[i] = uint32(initialCapacity - 1 - i)
	}
	for i := range r.metas {
		r.metas[i] = entityMeta{archetypeIndex: -1, chunkIndex: -1, index: -1}
	}
	return r
}

// expand automatically increases capacity when full.
func (r *entityRegistry) expand(additional int) {
	oldCap := r.capacity
	newCap := oldCap * 2
	if newCap == 0 {
		newCap = 1
	}
	if newCap < oldCap+additional {
		newCap = oldCap + additional
	}
	delta := newCap - oldCap
	newMetas := make([]entityMeta, delta)
	for i := range newMetas {
		newMetas[i] = entityMeta{archetypeIndex: -1, chunkIndex: -1, index: -1}
	}
	r.metas = append(r.metas, newMetas...)
	for i := range delta {
		r.freeIDs = append(r.freeIDs, uint32(newCap-1-i))
	}
	r.capacity = newCap
}

func (r *entityRegistry) allocate() (uint32, *entityMeta) {
	if len(r.freeIDs) == 0 {
		r.expand(1)
	}
	last := len(r.freeIDs) - 1
	id := r.freeIDs[last]
	r.freeIDs = r.freeIDs[:last]
	meta := &r.metas[id]
	meta.version = r.nextEntityVer
	r.nextEntityVer++
	if r.nextEntityVer == 0 {
		r.nextEntityVer = 1
	}
	r.live++
	return id, meta
}

func (r *entityRegistry) release(id uint32) {
	r.metas[id] = entityMeta{archetypeIndex: -1, chunkIndex: -1, index: -1}
	r.freeIDs = append(r.freeIDs, id)
	r.live--
}

func (r *entityRegistry) isAlive(e Entity) bool {
	if int(e.ID) >= len(r.metas) {
		return false
	}
	meta := r.metas[e.ID]
	return meta.version != 0 && meta.version == e.Version
}
