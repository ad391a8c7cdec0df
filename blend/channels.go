package blend

import (
	"math/bits"

	ms "github.com/edwinsyarief/moviescene"
)

// InvalidChannel is the blend channel of a property that is not blended.
const InvalidChannel uint16 = 0xFFFF

// MaxChannels is the hard limit of concurrently allocated blend channels.
const MaxChannels = int(InvalidChannel)

// channelSet is a growable bit array of allocated blend channels.
type channelSet struct {
	words []uint64
	count int
}

// allocate returns the first free channel, growing the set when full.
func (s *channelSet) allocate() (uint16, bool) {
	for w, word := range s.words {
		if word != ^uint64(0) {
			bit := bits.TrailingZeros64(^word)
			id := w*64 + bit
			if id >= MaxChannels {
				return InvalidChannel, false
			}
			s.words[w] |= 1 << bit
			s.count++
			return uint16(id), true
		}
	}
	id := len(s.words) * 64
	if id >= MaxChannels {
		return InvalidChannel, false
	}
	s.words = append(s.words, 1)
	s.count++
	return uint16(id), true
}

func (s *channelSet) release(id uint16) bool {
	w, bit := int(id)/64, uint(id)%64
	if w >= len(s.words) || s.words[w]&(1<<bit) == 0 {
		return false
	}
	s.words[w] &^= 1 << bit
	s.count--
	return true
}

func (s *channelSet) has(id uint16) bool {
	w, bit := int(id)/64, uint(id)%64
	return w < len(s.words) && s.words[w]&(1<<bit) != 0
}

// highest returns one past the highest allocated channel.
func (s *channelSet) highest() int {
	for w := len(s.words) - 1; w >= 0; w-- {
		if s.words[w] != 0 {
			return w*64 + 64 - bits.LeadingZeros64(s.words[w])
		}
	}
	return 0
}

// compact drops trailing empty words.
func (s *channelSet) compact() {
	n := len(s.words)
	for n > 0 && s.words[n-1] == 0 {
		n--
	}
	s.words = s.words[:n:n]
}

// AllocateBlendChannel reserves the lowest free blend channel. Exceeding
// MaxChannels fails an ensure and returns InvalidChannel.
func (b *Blender) AllocateBlendChannel() uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	id, ok := b.channels.allocate()
	if !ms.Ensure(ok, "blend channel limit reached: unreleased channels are leaking") {
		return InvalidChannel
	}
	b.log.Debug().Uint16("channel", id).Int("allocated", b.channels.count).Msg("blend channel allocated")
	return id
}

// ReleaseBlendChannel frees a blend channel for reuse.
func (b *Blender) ReleaseBlendChannel(id uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !ms.Ensure(b.channels.release(id), "released a blend channel that was not allocated") {
		return
	}
	b.log.Debug().Uint16("channel", id).Int("allocated", b.channels.count).Msg("blend channel released")
}

// CompactBlendChannels trims trailing unused capacity of the channel set and
// the accumulation buffers.
func (b *Blender) CompactBlendChannels() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.channels.compact()
	n := b.channels.highest()
	for c := range b.buffers {
		if cap(b.buffers[c].absolute) > n {
			b.buffers[c] = accumulators{}
		}
	}
}

// NumChannels returns the number of allocated blend channels.
func (b *Blender) NumChannels() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channels.count
}

// IsAllocated reports whether a blend channel is currently in use.
func (b *Blender) IsAllocated(id uint16) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channels.has(id)
}

// Capacity returns the number of channel slots currently backed by the bit
// array.
func (b *Blender) Capacity() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.channels.words) * 64
}
