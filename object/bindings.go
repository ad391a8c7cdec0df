package object

import "sync"

// Bindings maps object binding identifiers to the live objects they resolve
// to. A binding may resolve to several objects or to none.
type Bindings struct {
	mu      sync.RWMutex
	objects map[string][]any
}

// NewBindings creates an empty binding table.
func NewBindings() *Bindings {
	return &Bindings{objects: make(map[string][]any)}
}

// Bind sets the objects a binding resolves to.
func (b *Bindings) Bind(id string, objs ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[id] = append([]any(nil), objs...)
}

// Unbind removes a binding.
func (b *Bindings) Unbind(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, id)
}

// Resolve returns the live objects of a binding. Garbage objects are skipped.
func (b *Bindings) Resolve(id string) []any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []any
	for _, o := range b.objects[id] {
		if !IsGarbage(o) {
			out = append(out, o)
		}
	}
	return out
}

// IDs returns every binding identifier.
func (b *Bindings) IDs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	ids := make([]string, 0, len(b.objects))
	for id := range b.objects {
		ids = append(ids, id)
	}
	return ids
}
