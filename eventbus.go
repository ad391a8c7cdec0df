package moviescene

// LinkerEvent lists the events a linker publishes.
type LinkerEvent interface {
	EntitiesLinked | EntitiesUnlinked | GarbageTagged | FrameEvaluated
}

// EntitiesLinked is published at the sync point, after NeedsLink was removed
// from the listed entities and after EntitiesUnlinked of the same sync point.
type EntitiesLinked struct {
	Entities []Entity
}

// EntitiesUnlinked is published at the sync point while the listed entities
// are still alive. They are destroyed once every handler returned.
type EntitiesUnlinked struct {
	Entities []Entity
}

// GarbageTagged is published by Linker.TagGarbage after bound entities of
// collected objects were tagged NeedsUnlink. IsGarbage is the predicate the
// caller passed.
type GarbageTagged struct {
	IsGarbage func(obj any) bool
	// Tagged is the number of entities tagged NeedsUnlink.
	Tagged int
}

// FrameEvaluated is published last in Linker.Evaluate, after finalization.
type FrameEvaluated struct {
	// Frame is the index of the frame just evaluated, starting at zero.
	Frame uint64
}

// EventBus delivers linker events synchronously on the publishing goroutine.
// Handlers run in subscription order. A handler subscribed while an event is
// being delivered first sees the next one. The zero value is ready to use.
type EventBus struct {
	linked   []func(EntitiesLinked)
	unlinked []func(EntitiesUnlinked)
	garbage  []func(GarbageTagged)
	frames   []func(FrameEvaluated)
}

// Subscribe registers handler for events of type T.
func Subscribe[T LinkerEvent](bus *EventBus, handler func(T)) {
	switch h := any(handler).(type) {
	case func(EntitiesLinked):
		bus.linked = append(bus.linked, h)
	case func(EntitiesUnlinked):
		bus.unlinked = append(bus.unlinked, h)
	case func(GarbageTagged):
		bus.garbage = append(bus.garbage, h)
	case func(FrameEvaluated):
		bus.frames = append(bus.frames, h)
	}
}

// Publish delivers event to every handler of its type.
func Publish[T LinkerEvent](bus *EventBus, event T) {
	switch ev := any(event).(type) {
	case EntitiesLinked:
		deliver(bus.linked, ev)
	case EntitiesUnlinked:
		deliver(bus.unlinked, ev)
	case GarbageTagged:
		deliver(bus.garbage, ev)
	case FrameEvaluated:
		deliver(bus.frames, ev)
	}
}

// NumHandlers returns the number of handlers subscribed to T.
func NumHandlers[T LinkerEvent](bus *EventBus) int {
	var zero T
	switch any(zero).(type) {
	case EntitiesLinked:
		return len(bus.linked)
	case EntitiesUnlinked:
		return len(bus.unlinked)
	case GarbageTagged:
		return len(bus.garbage)
	case FrameEvaluated:
		return len(bus.frames)
	}
	return 0
}

func deliver[T any](handlers []func(T), ev T) {
	// the slice header is fixed here, so handlers added meanwhile wait
	for _, h := range handlers {
		h(ev)
	}
}
