package core

// fixupTable is a vector of vectors of pending absolute istream offsets,
// keyed either by branch depth (depth_fixups) or defined-function index
// (func_fixups), per spec section 3. A hand-rolled word bitset tracks
// which indices currently hold pending fixups, so the section 8
// completeness invariants ("depth_fixups[i] empty for every i", "every
// func_fixups[i] empty") can be checked by scanning one bit per index
// rather than every slot's slice.
type fixupTable struct {
	slots    [][]uint32
	nonEmpty wordSet
}

func newFixupTable() *fixupTable {
	return &fixupTable{}
}

func (f *fixupTable) ensure(index uint32) {
	for uint32(len(f.slots)) <= index {
		f.slots = append(f.slots, nil)
	}
}

// Append enqueues offset as a slot awaiting resolution for index.
func (f *fixupTable) Append(index uint32, offset uint32) {
	f.ensure(index)
	f.slots[index] = append(f.slots[index], offset)
	f.nonEmpty.set(uint(index))
}

// ResolveAll patches every pending slot for index to target and clears
// the slot.
func (f *fixupTable) ResolveAll(index uint32, target uint32, e *istreamEmitter) {
	if int(index) >= len(f.slots) {
		return
	}
	for _, offset := range f.slots[index] {
		e.PatchU32(offset, target)
	}
	f.slots[index] = nil
	f.nonEmpty.clear(uint(index))
}

// IsEmpty reports whether index has no pending fixups.
func (f *fixupTable) IsEmpty(index uint32) bool {
	return !f.nonEmpty.has(uint(index))
}

// AllEmpty reports whether every index in the table is free of pending
// fixups — the section 8 fixup-completeness invariant.
func (f *fixupTable) AllEmpty() bool {
	return f.nonEmpty.none()
}

// wordSet is a growable set of small non-negative integers, backed by a
// slice of 64-bit words.
type wordSet struct {
	words []uint64
}

func (s *wordSet) ensure(word int) {
	for len(s.words) <= word {
		s.words = append(s.words, 0)
	}
}

func (s *wordSet) set(i uint) {
	word, bit := int(i/64), i%64
	s.ensure(word)
	s.words[word] |= 1 << bit
}

func (s *wordSet) clear(i uint) {
	word, bit := int(i/64), i%64
	if word >= len(s.words) {
		return
	}
	s.words[word] &^= 1 << bit
}

func (s *wordSet) has(i uint) bool {
	word, bit := int(i/64), i%64
	if word >= len(s.words) {
		return false
	}
	return s.words[word]&(1<<bit) != 0
}

// none reports whether the set is empty.
func (s *wordSet) none() bool {
	for _, w := range s.words {
		if w != 0 {
			return false
		}
	}
	return true
}
