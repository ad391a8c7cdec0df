package preanim

import (
	"testing"

	ms "github.com/edwinsyarief/moviescene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type thing struct {
	a, b int
}

type journal struct {
	captured []string
	restored []string
}

// touchSystem captures and animates one field of every bound object.
type touchSystem struct {
	name    string
	storage *Storage[int]
	value   int
	field   func(*thing) *int
	j       *journal
}

func newTouchSystem(name string, j *journal, value int, field func(*thing) *int) *touchSystem {
	s := &touchSystem{name: name, value: value, field: field, j: j}
	s.storage = NewStorage(name,
		func(obj any) int { return *field(obj.(*thing)) },
		func(obj any, v int) {
			j.restored = append(j.restored, name)
			*field(obj.(*thing)) = v
		})
	return s
}

func (s *touchSystem) Name() string    { return s.name }
func (s *touchSystem) Phase() ms.Phase { return ms.PhaseInstantiation }

func (s *touchSystem) Run(l *ms.Linker) {
	b := l.Builtins
	ext := Get(l)
	var linked, unlinked []any
	l.Entities.Query(ms.NewFilter(b.BoundObject.ID(), b.RestoreState.ID()).Any(b.NeedsLink.ID(), b.NeedsUnlink.ID())).ForEachAllocation(func(a *ms.Allocation) {
		objs := ms.Column(a, b.BoundObject)
		if a.Has(b.NeedsUnlink.ID()) {
			unlinked = append(unlinked, objs...)
		} else {
			linked = append(linked, objs...)
		}
	})
	for _, obj := range linked {
		if s.storage.Cache(ext, obj) {
			s.j.captured = append(s.j.captured, s.name)
		}
		*s.field(obj.(*thing)) = s.value
	}
	for _, obj := range unlinked {
		s.storage.RequestRestore(ext, obj)
	}
}

func newLinker(t *testing.T) *ms.Linker {
	t.Helper()
	reg := ms.NewComponentRegistry()
	return ms.NewLinker("preanim", reg, ms.NewBuiltInComponents(reg))
}

func TestRestoreMirrorsCaptureOrder(t *testing.T) {
	l := newLinker(t)
	j := &journal{}
	a := newTouchSystem("A", j, 1, func(t *thing) *int { return &t.a })
	b := newTouchSystem("B", j, 2, func(t *thing) *int { return &t.b })
	// link B first so that only the prerequisite puts A before B
	require.NoError(t, l.LinkSystem(b))
	require.NoError(t, l.LinkSystem(a))
	require.NoError(t, l.LinkSystem(NewCacheSystem()))
	require.NoError(t, l.LinkSystem(NewRestoreSystem()))
	l.Systems.AddPrerequisite("A", "B")
	l.Systems.AddPrerequisite("B", CacheSystemName)

	obj := &thing{a: 10, b: 20}
	builder := ms.NewEntityBuilder().AddTag(l.Builtins.NeedsLink).AddTag(l.Builtins.RestoreState)
	ms.With(builder, l.Builtins.BoundObject, any(obj))
	e := builder.Create(l.Entities)

	require.NoError(t, l.Evaluate())
	assert.Equal(t, []string{"A", "B"}, j.captured)
	assert.Equal(t, thing{a: 1, b: 2}, *obj)
	assert.Equal(t, 2, Get(l).Len())

	// a second frame does not recapture the animated values
	require.NoError(t, l.Evaluate())
	assert.Equal(t, []string{"A", "B"}, j.captured)

	l.MarkForUnlink(e)
	require.NoError(t, l.Evaluate())
	assert.Equal(t, []string{"B", "A"}, j.restored)
	assert.Equal(t, thing{a: 10, b: 20}, *obj)
	assert.Equal(t, 0, Get(l).Len())

	require.NoError(t, l.Evaluate())
	assert.False(t, Get(l).HoldsKeepAlive(RestoreStateEntities), "keep-alive released once no RestoreState entity remains")
}

func TestCacheIsOncePerKey(t *testing.T) {
	x := NewExtension()
	calls := 0
	capture := func(v int) func() (any, func()) {
		return func() (any, func()) {
			calls++
			return v, nil
		}
	}
	key := Key{Object: "obj", Storage: "Opacity"}
	assert.True(t, x.Cache(key, capture(1)))
	assert.False(t, x.Cache(key, capture(2)))
	assert.Equal(t, 1, calls)
	v, ok := x.Value(key)
	require.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestRecaptureCancelsPendingRestore(t *testing.T) {
	x := NewExtension()
	restored := 0
	key := Key{Object: "obj", Storage: "Opacity"}
	x.Cache(key, func() (any, func()) { return 1, func() { restored++ } })
	require.True(t, x.RequestRestore(key))
	assert.True(t, x.HasPendingRestores())

	assert.False(t, x.Cache(key, func() (any, func()) { return 2, nil }))
	assert.False(t, x.HasPendingRestores())
	assert.Equal(t, 0, x.FlushRestores())
	assert.Equal(t, 0, restored)
	assert.True(t, x.Contains(key))

	assert.False(t, x.RequestRestore(Key{Object: "other"}))
}

func TestKeepAliveReasons(t *testing.T) {
	x := NewExtension()
	x.AcquireKeepAlive(GlobalCapture)
	x.AcquireKeepAlive(RestoreStateEntities)
	kept := Key{Object: "a", Storage: "s"}
	dropped := Key{Object: "b", Storage: "s"}
	x.Cache(kept, func() (any, func()) { return 0, nil })
	x.Cache(dropped, func() (any, func()) { return 0, nil })
	x.RequestRestore(kept)

	x.ReleaseKeepAlive(RestoreStateEntities)
	assert.True(t, x.IsCapturingGlobalState())
	assert.Equal(t, 2, x.Len(), "global capture still holds everything")

	x.ReleaseKeepAlive(GlobalCapture)
	assert.False(t, x.IsCapturing())
	assert.True(t, x.Contains(kept), "pending restores survive")
	assert.False(t, x.Contains(dropped))
}

func TestRestoreGlobalState(t *testing.T) {
	x := NewExtension()
	var order []int
	for i := range 3 {
		x.Cache(Key{Object: i}, func() (any, func()) {
			return i, func() { order = append(order, i) }
		})
	}
	x.Discard(Key{Object: 1})
	assert.Equal(t, 2, x.RestoreGlobalState())
	assert.Equal(t, []int{2, 0}, order)
	assert.Equal(t, 0, x.Len())
}

func TestDiscardObject(t *testing.T) {
	x := NewExtension()
	obj := &thing{}
	x.Cache(Key{Object: obj, Storage: "a"}, func() (any, func()) { return 0, nil })
	x.Cache(Key{Object: obj, Storage: "b"}, func() (any, func()) { return 0, nil })
	x.RequestRestore(Key{Object: obj, Storage: "a"})
	assert.Equal(t, 2, x.DiscardObject(obj))
	assert.False(t, x.HasPendingRestores())
}

func TestStorageValue(t *testing.T) {
	x := NewExtension()
	obj := &thing{a: 5}
	s := NewStorage("a", func(o any) int { return o.(*thing).a }, func(o any, v int) { o.(*thing).a = v })
	assert.True(t, s.CacheValue(x, obj, 3))
	v, ok := s.Value(x, obj)
	require.True(t, ok)
	assert.Equal(t, 3, v)
	s.RequestRestore(x, obj)
	x.FlushRestores()
	assert.Equal(t, 3, obj.a)
	_, ok = s.Value(x, obj)
	assert.False(t, ok)
}

func TestDiscardGarbageOnTagGarbage(t *testing.T) {
	l := newLinker(t)
	require.NoError(t, l.LinkSystem(NewCacheSystem()))
	live, dead := &thing{}, &thing{}
	x := Get(l)
	x.Cache(Key{Object: live, Storage: "a"}, func() (any, func()) { return 0, nil })
	x.Cache(Key{Object: dead, Storage: "a"}, func() (any, func()) { return 0, nil })
	x.RequestRestore(Key{Object: dead, Storage: "a"})

	l.TagGarbage(func(obj any) bool { return obj == dead })
	assert.True(t, x.Contains(Key{Object: live, Storage: "a"}))
	assert.False(t, x.Contains(Key{Object: dead, Storage: "a"}))
	assert.False(t, x.HasPendingRestores())
}
