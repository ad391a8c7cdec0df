package moviescene

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Components ---
type Position struct{ X, Y float64 }
type Velocity struct{ VX, VY float64 }

type testComponents struct {
	reg      *ComponentRegistry
	pos      ComponentType[Position]
	vel      ComponentType[Velocity]
	name     ComponentType[string]
	obj      ComponentType[any]
	tag      TagType
	children TagType
}

func setupManager(t testing.TB) (*EntityManager, testComponents) {
	t.Helper()
	reg := NewComponentRegistry()
	c := testComponents{
		reg:      reg,
		pos:      NewComponentType[Position](reg, "Position"),
		vel:      NewComponentType[Velocity](reg, "Velocity"),
		name:     NewComponentType[string](reg, "Name", FlagCopyToChildren),
		obj:      NewComponentType[any](reg, "Object"),
		tag:      NewTag(reg, "Tag"),
		children: NewTag(reg, "Inherited", FlagCopyToChildren),
	}
	return NewEntityManager(reg, 4), c
}

// go test -run ^TestCreateEntity$ . -count 1
func TestCreateEntity(t *testing.T) {
	m, c := setupManager(t)
	e1 := m.CreateEntity(MaskOf(c.pos.ID()))
	e2 := m.CreateEntity(MaskOf(c.pos.ID()))

	assert.Equal(t, uint32(0), e1.ID)
	assert.Equal(t, uint32(1), e1.Version)
	assert.Equal(t, uint32(1), e2.ID)
	assert.True(t, m.IsAlive(e1))
	assert.Equal(t, 2, m.NumEntities())

	p, ok := ReadComponent(m, e1, c.pos)
	require.True(t, ok)
	assert.Equal(t, Position{}, p)
}

func TestEntityRecycling(t *testing.T) {
	m, c := setupManager(t)
	e1 := m.CreateEntity(MaskOf(c.pos.ID()))
	m.DestroyEntity(e1)
	assert.False(t, m.IsAlive(e1))

	e2 := m.CreateEntity(MaskOf(c.pos.ID()))
	assert.Equal(t, e1.ID, e2.ID, "ID should be recycled")
	assert.NotEqual(t, e1.Version, e2.Version, "version should change")
	assert.Nil(t, ComponentPtr(m, e1, c.pos), "stale handle must not read the new entity")
}

func TestRegistryExpansion(t *testing.T) {
	m, c := setupManager(t)
	var ents []Entity
	for i := 0; i < 100; i++ {
		ents = append(ents, m.CreateEntity(MaskOf(c.pos.ID())))
	}
	for i, e := range ents {
		require.True(t, WriteComponent(m, e, c.pos, Position{X: float64(i)}))
	}
	for i, e := range ents {
		p, _ := ReadComponent(m, e, c.pos)
		assert.Equal(t, float64(i), p.X)
	}
}

func TestAddRemoveComponentKeepsValues(t *testing.T) {
	m, c := setupManager(t)
	e := m.CreateEntity(MaskOf(c.pos.ID(), c.name.ID()))
	WriteComponent(m, e, c.pos, Position{X: 1, Y: 2})
	WriteComponent(m, e, c.name, "hello")

	serial := m.Serial()
	m.AddComponent(e, c.vel.ID())
	assert.Greater(t, m.Serial(), serial)
	assert.True(t, m.HasComponent(e, c.vel.ID()))

	p, _ := ReadComponent(m, e, c.pos)
	assert.Equal(t, Position{X: 1, Y: 2}, p)
	n, _ := ReadComponent(m, e, c.name)
	assert.Equal(t, "hello", n)

	m.RemoveComponent(e, c.pos.ID())
	assert.False(t, m.HasComponent(e, c.pos.ID()))
	n, _ = ReadComponent(m, e, c.name)
	assert.Equal(t, "hello", n)
	_, ok := ReadComponent(m, e, c.pos)
	assert.False(t, ok)
}

func TestSetComponentAddsMissing(t *testing.T) {
	m, c := setupManager(t)
	e := m.CreateEntity(ComponentMask{})
	assert.False(t, WriteComponent(m, e, c.vel, Velocity{VX: 1}))
	assert.True(t, SetComponent(m, e, c.vel, Velocity{VX: 1}))
	v, ok := ReadComponent(m, e, c.vel)
	require.True(t, ok)
	assert.Equal(t, 1.0, v.VX)
}

func TestSwapRemoveKeepsOtherEntities(t *testing.T) {
	m, c := setupManager(t)
	m.SetChunkSize(2)
	var ents []Entity
	for i := 0; i < 5; i++ {
		e := m.CreateEntity(MaskOf(c.pos.ID(), c.obj.ID()))
		WriteComponent(m, e, c.pos, Position{X: float64(i)})
		WriteComponent[any](m, e, c.obj, i)
		ents = append(ents, e)
	}
	m.DestroyEntity(ents[0])
	m.DestroyEntity(ents[3])
	for _, i := range []int{1, 2, 4} {
		p, ok := ReadComponent(m, ents[i], c.pos)
		require.True(t, ok)
		assert.Equal(t, float64(i), p.X)
		o, _ := ReadComponent(m, ents[i], c.obj)
		assert.Equal(t, i, o)
	}
	assert.Equal(t, 3, m.Count(NewFilter(c.pos.ID())))
}

func TestFilterAllAnyNone(t *testing.T) {
	m, c := setupManager(t)
	a := m.CreateEntity(MaskOf(c.pos.ID()))
	b := m.CreateEntity(MaskOf(c.pos.ID(), c.vel.ID()))
	d := m.CreateEntity(MaskOf(c.pos.ID(), c.tag.ID()))
	m.CreateEntity(MaskOf(c.name.ID()))

	assert.ElementsMatch(t, []Entity{a, b, d}, m.Collect(NewFilter(c.pos.ID())))
	assert.ElementsMatch(t, []Entity{a, b}, m.Collect(NewFilter(c.pos.ID()).None(c.tag.ID())))
	assert.ElementsMatch(t, []Entity{b, d}, m.Collect(NewFilter().Any(c.vel.ID(), c.tag.ID())))

	// cached filter picks up archetypes created later
	f := NewFilter(c.vel.ID())
	assert.Equal(t, 1, m.Count(f))
	m.CreateEntity(MaskOf(c.vel.ID(), c.name.ID()))
	assert.Equal(t, 2, m.Count(f))
}

func TestTagsHaveNoStorage(t *testing.T) {
	m, c := setupManager(t)
	assert.True(t, c.reg.IsTag(c.tag.ID()))
	e := m.CreateEntity(MaskOf(c.tag.ID()))
	assert.True(t, m.HasTag(e, c.tag))
	assert.Nil(t, m.componentPtr(e, c.tag.ID()))
}

func TestRegistryFlags(t *testing.T) {
	_, c := setupManager(t)
	mask := c.reg.MaskWithFlags(FlagCopyToChildren)
	assert.True(t, mask.Contains(c.name.ID()))
	assert.True(t, mask.Contains(c.children.ID()))
	assert.False(t, mask.Contains(c.pos.ID()))
	assert.Panics(t, func() { NewComponentType[int](c.reg, "Position") })
}

func TestLockdownRejectsStructuralChanges(t *testing.T) {
	defer SetEnsurePanics(false)
	m, c := setupManager(t)
	e := m.CreateEntity(MaskOf(c.pos.ID()))

	SetEnsurePanics(true)
	m.Query(NewFilter(c.pos.ID())).ForEachEntity(func(a *Allocation, i int) {
		assert.Panics(t, func() { m.DestroyEntity(a.Entities()[i]) })
	})
	SetEnsurePanics(false)
	resetEnsureLog()
	assert.True(t, m.IsAlive(e))
	assert.False(t, m.IsLockedDown())
}

func TestColumnIterationAndCommandBuffer(t *testing.T) {
	m, c := setupManager(t)
	for i := 0; i < 10; i++ {
		e := m.CreateEntity(MaskOf(c.pos.ID(), c.vel.ID()))
		WriteComponent(m, e, c.vel, Velocity{VX: float64(i)})
	}
	cb := NewCommandBuffer()
	m.Query(NewFilter(c.pos.ID(), c.vel.ID())).ForEachAllocation(func(a *Allocation) {
		pos := Column(a, c.pos)
		vel := Column(a, c.vel)
		for i := range pos {
			pos[i].X += vel[i].VX
			if vel[i].VX >= 5 {
				cb.AddComponents(a.Entities()[i], MaskOf(c.tag.ID()))
			}
		}
	})
	assert.Equal(t, 5, cb.Len())
	cb.PlayBack(m)
	assert.Equal(t, 5, m.Count(NewFilter(c.tag.ID())))

	sum := 0.0
	m.Query(NewFilter(c.pos.ID())).ForEachEntity(func(a *Allocation, i int) {
		sum += Column(a, c.pos)[i].X
	})
	assert.Equal(t, 45.0, sum)
}

func TestParallelDispatch(t *testing.T) {
	m, c := setupManager(t)
	m.SetChunkSize(8)
	m.SetWorkers(4)
	for i := 0; i < 100; i++ {
		e := m.CreateEntity(MaskOf(c.pos.ID()))
		WriteComponent(m, e, c.pos, Position{X: 1})
	}
	var total atomic.Int64
	m.Query(NewFilter(c.pos.ID())).SetThread(AnyThread).ForEachAllocation(func(a *Allocation) {
		for _, p := range Column(a, c.pos) {
			total.Add(int64(p.X))
		}
	})
	assert.Equal(t, int64(100), total.Load())
}

func TestEntityBuilder(t *testing.T) {
	m, c := setupManager(t)
	b := NewEntityBuilder().AddTag(c.tag)
	With(b, c.pos, Position{X: 3})
	With(b, c.pos, Position{X: 4})
	WithConditional(b, c.vel, Velocity{}, false)
	e := b.Create(m)

	assert.True(t, m.HasTag(e, c.tag))
	assert.False(t, m.HasComponent(e, c.vel.ID()))
	p, _ := ReadComponent(m, e, c.pos)
	assert.Equal(t, 4.0, p.X)

	cb := NewCommandBuffer()
	var created Entity
	b.CreateDeferred(cb, func(e Entity) { created = e })
	cb.PlayBack(m)
	assert.True(t, m.IsAlive(created))
}

func TestCopyComponents(t *testing.T) {
	m, c := setupManager(t)
	src := m.CreateEntity(MaskOf(c.name.ID(), c.pos.ID()))
	WriteComponent(m, src, c.name, "copied")
	WriteComponent(m, src, c.pos, Position{X: 9})
	dst := m.CreateEntity(MaskOf(c.name.ID(), c.pos.ID()))
	m.CopyComponents(src, dst, c.reg.MaskWithFlags(FlagCopyToChildren))

	n, _ := ReadComponent(m, dst, c.name)
	assert.Equal(t, "copied", n)
	p, _ := ReadComponent(m, dst, c.pos)
	assert.Equal(t, 0.0, p.X, "components outside the mask are not copied")
}

func TestEnsureLogsOnce(t *testing.T) {
	resetEnsureLog()
	assert.True(t, Ensure(true, "fine"))
	assert.False(t, Ensure(false, "broken"))
	_, seen := ensureSeen.Load("broken")
	assert.True(t, seen)
	SetEnsurePanics(true)
	defer SetEnsurePanics(false)
	assert.Panics(t, func() { Ensure(false, "broken") })
}
