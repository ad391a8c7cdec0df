package moviescene

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// go test -run ^TestEventBusSubscriptionOrder$ . -count 1
func TestEventBusSubscriptionOrder(t *testing.T) {
	bus := &EventBus{}
	var order []string
	Subscribe(bus, func(e EntitiesLinked) { order = append(order, "first") })
	Subscribe(bus, func(e EntitiesLinked) { order = append(order, "second") })
	Publish(bus, EntitiesLinked{})
	assert.Equal(t, []string{"first", "second"}, order)
	assert.Equal(t, 2, NumHandlers[EntitiesLinked](bus))
	assert.Equal(t, 0, NumHandlers[EntitiesUnlinked](bus))
}

func TestEventBusKeepsTypesApart(t *testing.T) {
	bus := &EventBus{}
	var linked, unlinked int
	Subscribe(bus, func(e EntitiesLinked) { linked += len(e.Entities) })
	Subscribe(bus, func(e EntitiesUnlinked) { unlinked += len(e.Entities) })
	Publish(bus, EntitiesLinked{Entities: make([]Entity, 3)})
	Publish(bus, EntitiesUnlinked{Entities: make([]Entity, 2)})
	assert.Equal(t, 3, linked)
	assert.Equal(t, 2, unlinked)
}

func TestEventBusNoHandlers(t *testing.T) {
	var bus EventBus
	assert.NotPanics(t, func() { Publish(&bus, GarbageTagged{}) })
}

func TestEventBusSubscribeDuringDelivery(t *testing.T) {
	bus := &EventBus{}
	var late int
	Subscribe(bus, func(FrameEvaluated) {
		Subscribe(bus, func(FrameEvaluated) { late++ })
	})
	Publish(bus, FrameEvaluated{})
	assert.Equal(t, 0, late, "a handler added during delivery waits for the next event")
	Publish(bus, FrameEvaluated{Frame: 1})
	assert.Equal(t, 1, late)
}

func TestLinkerEventOrder(t *testing.T) {
	l := newTestLinker(t)
	b := l.Builtins
	var events []string
	var frames []uint64
	Subscribe(l.Events, func(e EntitiesUnlinked) {
		for _, x := range e.Entities {
			assert.True(t, l.Entities.IsAlive(x), "unlinked entities are still alive")
		}
		events = append(events, "unlinked")
	})
	Subscribe(l.Events, func(e EntitiesLinked) {
		for _, x := range e.Entities {
			assert.False(t, l.Entities.HasTag(x, b.NeedsLink))
		}
		events = append(events, "linked")
	})
	Subscribe(l.Events, func(e FrameEvaluated) {
		events = append(events, "frame")
		frames = append(frames, e.Frame)
	})

	old := l.Entities.CreateEntity(MaskOf(b.NeedsLink.ID()))
	require.NoError(t, l.Evaluate())
	l.MarkForUnlink(old)
	l.Entities.CreateEntity(MaskOf(b.NeedsLink.ID()))
	require.NoError(t, l.Evaluate())
	assert.Equal(t, []string{"linked", "frame", "unlinked", "linked", "frame"}, events)
	assert.Equal(t, []uint64{0, 1}, frames)
}
