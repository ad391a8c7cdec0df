package rcprotocol

import (
	"slices"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrUnboundAddress is returned when dispatching to an address nothing is
// bound to.
var ErrUnboundAddress = eris.New("no protocol entity bound to address")

// Applier is anything that accepts raw protocol values.
type Applier interface {
	ApplyProtocolValueToProperty(value float64) error
}

// Entity binds a range mapping to a property target.
type Entity[T any] struct {
	Name    string
	Mapping *RangeMapping[T]
	Target  Target[T]
}

// ApplyProtocolValueToProperty maps value through the range mapping and
// writes the result to the target.
func (e *Entity[T]) ApplyProtocolValueToProperty(value float64) error {
	v := e.Mapping.Interpolate(value)
	if err := e.Target.Set(v); err != nil {
		return eris.Wrapf(err, "applying protocol value to %s", e.Name)
	}
	return nil
}

// Binding is a protocol address such as a MIDI control or an OSC path.
type Binding struct {
	Protocol string `yaml:"protocol"`
	Address  string `yaml:"address"`
}

func (b Binding) String() string {
	return b.Protocol + ":" + b.Address
}

// Router dispatches incoming protocol values to the entities bound to their
// address. It is safe for concurrent use.
type Router struct {
	mu       sync.RWMutex
	bindings map[Binding][]Applier
	log      zerolog.Logger
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{
		bindings: make(map[Binding][]Applier),
		log:      log.With().Str("component", "rcprotocol").Logger(),
	}
}

// Bind adds an entity to an address.
func (r *Router) Bind(b Binding, a Applier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[b] = append(r.bindings[b], a)
}

// Unbind removes every entity of an address.
func (r *Router) Unbind(b Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bindings, b)
}

// Bindings returns every bound address, sorted.
func (r *Router) Bindings() []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Binding, 0, len(r.bindings))
	for b := range r.bindings {
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b Binding) int {
		switch {
		case a.String() < b.String():
			return -1
		case a.String() > b.String():
			return 1
		}
		return 0
	})
	return out
}

// Dispatch applies value to every entity bound to b. Every entity is tried;
// the first error is returned.
func (r *Router) Dispatch(b Binding, value float64) error {
	r.mu.RLock()
	appliers := slices.Clone(r.bindings[b])
	r.mu.RUnlock()
	if len(appliers) == 0 {
		return eris.Wrapf(ErrUnboundAddress, "%s", b)
	}
	var first error
	for _, a := range appliers {
		if err := a.ApplyProtocolValueToProperty(value); err != nil {
			r.log.Warn().Err(err).Stringer("binding", b).Float64("value", value).Msg("protocol value not applied")
			if first == nil {
				first = err
			}
		}
	}
	return first
}
