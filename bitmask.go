package moviescene

import "math/bits"

// ComponentMask represents a set of up to 256 component type IDs. It is used to
// uniquely identify archetypes and to express filters. Each bit corresponds to
// a ComponentTypeID.
type ComponentMask [4]uint64

// MaskOf builds a mask from a list of component type IDs.
func MaskOf(ids ...ComponentTypeID) ComponentMask {
	var m ComponentMask
	for _, id := range ids {
		m.Set(id)
	}
	return m
}

// Set enables the bit corresponding to the given component ID.
func (m *ComponentMask) Set(id ComponentTypeID) {
	i := id >> 6 // (id / 64) to find the uint64 index
	o := id & 63 // (id % 64) to find the bit offset
	m[i] |= uint64(1) << uint64(o)
}

// Unset disables the bit corresponding to the given component ID.
func (m *ComponentMask) Unset(id ComponentTypeID) {
	i := id >> 6
	o := id & 63
	m[i] &= ^(uint64(1) << uint64(o))
}

// Contains checks if a specific bit is set in the mask.
func (m ComponentMask) Contains(id ComponentTypeID) bool {
	i := id >> 6
	o := id & 63
	return (m[i] & (uint64(1) << uint64(o))) != 0
}

// ContainsAll checks if all the bits set in sub are also set in the receiver.
// This is used to determine if an archetype's component set is a superset of a
// filter's required components.
func (m ComponentMask) ContainsAll(sub ComponentMask) bool {
	return (m[0]&sub[0]) == sub[0] &&
		(m[1]&sub[1]) == sub[1] &&
		(m[2]&sub[2]) == sub[2] &&
		(m[3]&sub[3]) == sub[3]
}

// ContainsAny checks if this mask has any bits in common with other.
func (m ComponentMask) ContainsAny(other ComponentMask) bool {
	return (m[0]&other[0] != 0) ||
		(m[1]&other[1] != 0) ||
		(m[2]&other[2] != 0) ||
		(m[3]&other[3] != 0)
}

// Union returns m | other.
func (m ComponentMask) Union(other ComponentMask) ComponentMask {
	return ComponentMask{m[0] | other[0], m[1] | other[1], m[2] | other[2], m[3] | other[3]}
}

// Difference returns m &^ other.
func (m ComponentMask) Difference(other ComponentMask) ComponentMask {
	return ComponentMask{m[0] &^ other[0], m[1] &^ other[1], m[2] &^ other[2], m[3] &^ other[3]}
}

// Intersect returns m & other.
func (m ComponentMask) Intersect(other ComponentMask) ComponentMask {
	return ComponentMask{m[0] & other[0], m[1] & other[1], m[2] & other[2], m[3] & other[3]}
}

// IsEmpty reports whether no bit is set.
func (m ComponentMask) IsEmpty() bool {
	return m[0]|m[1]|m[2]|m[3] == 0
}

// Count returns the number of component types in the mask.
func (m ComponentMask) Count() int {
	return bits.OnesCount64(m[0]) + bits.OnesCount64(m[1]) + bits.OnesCount64(m[2]) + bits.OnesCount64(m[3])
}

// ForEach calls fn for each set bit in ascending order.
func (m ComponentMask) ForEach(fn func(id ComponentTypeID)) {
	for word := 0; word < len(m); word++ {
		w := m[word]
		for w != 0 {
			o := bits.TrailingZeros64(w)
			fn(ComponentTypeID(word<<6 | o))
			w &= w - 1
		}
	}
}
