package rcprotocol

import (
	"sync"

	"github.com/edwinsyarief/moviescene/object"
	"github.com/rotisserie/eris"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var (
	// ErrUnresolved is returned when a property path does not resolve.
	ErrUnresolved = eris.New("property path does not resolve")
	// ErrGarbage is returned when writing to a destroyed object.
	ErrGarbage = eris.New("object is garbage")
)

// Target receives interpolated property values.
type Target[T any] interface {
	Set(v T) error
}

// ObjectTarget writes a property of a host object through the reflective
// property resolver.
type ObjectTarget[T any] struct {
	resolver *object.Resolver
	obj      any
	path     string
	res      object.Resolution
}

// NewObjectTarget resolves path on obj.
func NewObjectTarget[T any](r *object.Resolver, obj any, path string) (*ObjectTarget[T], error) {
	res := object.Resolve[T](r, obj, path)
	if res.Unresolved() {
		return nil, eris.Wrapf(ErrUnresolved, "%T.%s", obj, path)
	}
	return &ObjectTarget[T]{resolver: r, obj: obj, path: path, res: res}, nil
}

// Set writes v to the property.
func (t *ObjectTarget[T]) Set(v T) error {
	if object.IsGarbage(t.obj) {
		return eris.Wrapf(ErrGarbage, "setting %s", t.path)
	}
	if !object.Set(t.resolver, t.obj, t.res, v) {
		return eris.Wrapf(ErrUnresolved, "setting %T.%s", t.obj, t.path)
	}
	return nil
}

// Document is a JSON document shared by document targets.
type Document struct {
	mu   sync.RWMutex
	data []byte
}

// NewDocument creates a document from JSON. Empty input starts an empty
// object.
func NewDocument(data []byte) (*Document, error) {
	if len(data) == 0 {
		data = []byte("{}")
	}
	if !gjson.ValidBytes(data) {
		return nil, eris.New("invalid JSON document")
	}
	return &Document{data: append([]byte(nil), data...)}, nil
}

// Bytes returns a copy of the document.
func (d *Document) Bytes() []byte {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]byte(nil), d.data...)
}

// Get returns the value at a gjson path.
func (d *Document) Get(path string) gjson.Result {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return gjson.GetBytes(d.data, path)
}

func (d *Document) set(path string, v any) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	out, err := sjson.SetBytes(d.data, path, v)
	if err != nil {
		return eris.Wrapf(err, "setting %s", path)
	}
	d.data = out
	return nil
}

// DocumentTarget writes values into a JSON document at an sjson path.
// Structured values are encoded as JSON objects.
type DocumentTarget[T any] struct {
	Doc  *Document
	Path string
}

// Set writes v at the target path.
func (t DocumentTarget[T]) Set(v T) error {
	return t.Doc.set(t.Path, v)
}
