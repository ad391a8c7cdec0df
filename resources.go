package moviescene

import "reflect"

// Extensions holds at most one value per Go type. Linker extensions such as the
// pre-animated state store or the sequence instance registry live here so
// that systems can find each other's shared state without globals.
type Extensions struct {
	items   []any
	types   map[reflect.Type]int
	freeIDs []int
}

// Add adds an extension and returns its ID. Panics if an extension of the same
// type already exists.
func (r *Extensions) Add(ext any) int {
	if ext == nil {
		panic("cannot add nil extension")
	}
	t := reflect.TypeOf(ext)
	if r.types == nil {
		r.types = make(map[reflect.Type]int)
	}
	if _, ok := r.types[t]; ok {
		panic("extension of the same type already exists")
	}
	var id int
	if len(r.freeIDs) > 0 {
		id = r.freeIDs[len(r.freeIDs)-1]
		r.freeIDs = r.freeIDs[:len(r.freeIDs)-1]
		r.items[id] = ext
	} else {
		r.items = append(r.items, ext)
		id = len(r.items) - 1
	}
	r.types[t] = id
	return id
}

// Has checks if an extension with the given ID exists.
func (r *Extensions) Has(id int) bool {
	return id >= 0 && id < len(r.items) && r.items[id] != nil
}

// Get retrieves the extension by ID, or nil if it doesn't exist.
func (r *Extensions) Get(id int) any {
	if !r.Has(id) {
		return nil
	}
	return r.items[id]
}

// Remove removes the extension by ID, marking the ID as free for reuse.
func (r *Extensions) Remove(id int) {
	if !r.Has(id) {
		return
	}
	delete(r.types, reflect.TypeOf(r.items[id]))
	r.items[id] = nil
	r.freeIDs = append(r.freeIDs, id)
}

// Clear removes all extensions.
func (r *Extensions) Clear() {
	clear(r.items)
	r.items = r.items[:0]
	clear(r.types)
	r.freeIDs = r.freeIDs[:0]
}

// FindExtension retrieves the extension stored as *T, or nil.
func FindExtension[T any](r *Extensions) *T {
	if id, ok := r.types[reflect.TypeFor[*T]()]; ok {
		return r.items[id].(*T)
	}
	return nil
}

// GetOrAddExtension returns the *T extension, creating it with create if absent.
func GetOrAddExtension[T any](r *Extensions, create func() *T) *T {
	if ext := FindExtension[T](r); ext != nil {
		return ext
	}
	ext := create()
	r.Add(ext)
	return ext
}
