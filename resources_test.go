package moviescene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtensions(t *testing.T) {
	type testStruct1 struct{ n int }
	type testStruct2 struct{}

	t.Run("Add and Get", func(t *testing.T) {
		r := &Extensions{}
		ext := &testStruct1{}
		id := r.Add(ext)
		assert.Equal(t, 0, id)
		assert.Same(t, ext, r.Get(0))
	})

	t.Run("Has", func(t *testing.T) {
		r := &Extensions{}
		r.Add(&testStruct1{})
		assert.True(t, r.Has(0))
		assert.False(t, r.Has(1))
		assert.False(t, r.Has(-1))
	})

	t.Run("Add same type panics", func(t *testing.T) {
		r := &Extensions{}
		r.Add(&testStruct1{})
		assert.Panics(t, func() { r.Add(&testStruct1{}) })
	})

	t.Run("Add nil panics", func(t *testing.T) {
		r := &Extensions{}
		assert.Panics(t, func() { r.Add(nil) })
	})

	t.Run("Add after multiple Removes", func(t *testing.T) {
		r := &Extensions{}
		id0 := r.Add(&testStruct1{})
		id1 := r.Add(&testStruct2{})
		r.Remove(id0)
		r.Remove(id1)
		assert.Equal(t, 1, r.Add(&testStruct1{}))
		assert.Equal(t, 0, r.Add(&testStruct2{}))
	})

	t.Run("Clear", func(t *testing.T) {
		r := &Extensions{}
		r.Add(&testStruct1{})
		r.Add(&testStruct2{})
		r.Clear()
		assert.Empty(t, r.items)
		assert.Empty(t, r.types)
		assert.False(t, r.Has(0))
	})

	t.Run("FindExtension", func(t *testing.T) {
		r := &Extensions{}
		assert.Nil(t, FindExtension[testStruct1](r))
		ext := &testStruct1{n: 7}
		r.Add(ext)
		require.NotNil(t, FindExtension[testStruct1](r))
		assert.Equal(t, 7, FindExtension[testStruct1](r).n)
	})

	t.Run("GetOrAddExtension creates once", func(t *testing.T) {
		r := &Extensions{}
		calls := 0
		create := func() *testStruct2 { calls++; return &testStruct2{} }
		a := GetOrAddExtension(r, create)
		b := GetOrAddExtension(r, create)
		assert.Same(t, a, b)
		assert.Equal(t, 1, calls)
	})
}
