package moviescene

import "sync"

// CommandBuffer queues structural changes recorded while the entity structure
// is locked down. Commands are played back in submission order at the next
// sync point. It is safe for concurrent use by parallel tasks.
type CommandBuffer struct {
	mu       sync.Mutex
	commands []func(m *EntityManager)
}

// NewCommandBuffer creates an empty command buffer.
func NewCommandBuffer() *CommandBuffer {
	return &CommandBuffer{commands: make([]func(m *EntityManager), 0, 16)}
}

// Add queues an arbitrary command.
func (b *CommandBuffer) Add(cmd func(m *EntityManager)) {
	b.mu.Lock()
	b.commands = append(b.commands, cmd)
	b.mu.Unlock()
}

// DestroyEntity queues the destruction of an entity.
func (b *CommandBuffer) DestroyEntity(e Entity) {
	b.Add(func(m *EntityManager) { m.DestroyEntity(e) })
}

// AddComponents queues adding every component of mask to e.
func (b *CommandBuffer) AddComponents(e Entity, mask ComponentMask) {
	b.Add(func(m *EntityManager) { m.AddComponents(e, mask) })
}

// RemoveComponents queues removing every component of mask from e.
func (b *CommandBuffer) RemoveComponents(e Entity, mask ComponentMask) {
	b.Add(func(m *EntityManager) { m.RemoveComponents(e, mask) })
}

// SetComponentDeferred queues setting a component value, adding it if needed.
func SetComponentDeferred[T any](b *CommandBuffer, e Entity, ct ComponentType[T], val T) {
	b.Add(func(m *EntityManager) { SetComponent(m, e, ct, val) })
}

// Len returns the number of pending commands.
func (b *CommandBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.commands)
}

// PlayBack applies and clears every pending command. Commands queued during
// playback are applied in the same call.
func (b *CommandBuffer) PlayBack(m *EntityManager) {
	for {
		b.mu.Lock()
		cmds := b.commands
		b.commands = make([]func(m *EntityManager), 0, len(cmds))
		b.mu.Unlock()
		if len(cmds) == 0 {
			return
		}
		for _, cmd := range cmds {
			cmd(m)
		}
	}
}

// Clear drops every pending command.
func (b *CommandBuffer) Clear() {
	b.mu.Lock()
	b.commands = b.commands[:0]
	b.mu.Unlock()
}
