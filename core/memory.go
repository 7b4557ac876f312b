package core

import "fmt"

const wasmPageSize = 65536

// maxMemoryPages is the MVP's address-space-wide cap: 2^16 pages of
// 2^16 bytes each, i.e. 4GiB.
const maxMemoryPages = 65536

// ErrMemoryLimitExceeded is returned when a memory.grow would exceed the
// memory's declared or implicit (4GiB) maximum.
var ErrMemoryLimitExceeded = fmt.Errorf("core: memory limit exceeded")

// Memory is a linear memory instance, backed by a plain growable byte
// slice rather than a reserved mmap region: growth reallocates and
// copies, which is the same tradeoff a Go-hosted interpreter (as opposed
// to a JIT compiler baking absolute addresses into native code) can
// afford, since every load/store here is already bounds-checked against
// Size() rather than relying on a stable base address.
type Memory struct {
	min, max uint32
	hasMax   bool
	data     []byte
}

// NewMemory creates a linear memory with the given limits (in 64KiB
// pages) and commits its initial `min` pages. If hasMax is false, max is
// ignored and the memory may grow up to the absolute 4GiB (65536-page)
// address-space cap.
func NewMemory(min, max uint32, hasMax bool) (*Memory, error) {
	return &Memory{
		min:    min,
		max:    max,
		hasMax: hasMax,
		data:   make([]byte, int(min)*wasmPageSize),
	}, nil
}

// Limits returns the memory's minimum and maximum size, in pages, and
// whether a maximum was declared at all.
func (m *Memory) Limits() (min, max uint32, hasMax bool) {
	return m.min, m.max, m.hasMax
}

// Size returns the memory's current size, in pages.
func (m *Memory) Size() uint32 {
	return uint32(len(m.data) / wasmPageSize)
}

// Grow grows the memory by the given number of pages, returning its size
// (in pages) before growth. Per spec, exceeding the declared or implicit
// maximum fails the grow without mutating the memory.
func (m *Memory) Grow(pages uint32) (uint32, error) {
	cur := m.Size()
	next := cur + pages
	if (m.hasMax && next > m.max) || next > maxMemoryPages {
		return cur, ErrMemoryLimitExceeded
	}
	grown := make([]byte, int(next)*wasmPageSize)
	copy(grown, m.data)
	m.data = grown
	return cur, nil
}

// Bytes returns the memory's currently-committed storage.
func (m *Memory) Bytes() []byte {
	return m.data
}

// WriteAt copies a data segment's bytes into the memory at a constant
// offset. Used by the pass-2 segment installer once all data segments in
// a module have been validated against their target memory's bounds.
func (m *Memory) WriteAt(offset uint32, data []byte) error {
	if uint64(offset)+uint64(len(data)) > uint64(len(m.data)) {
		return fmt.Errorf("core: data segment at offset %d, length %d exceeds memory of size %d", offset, len(data), len(m.data))
	}
	copy(m.data[offset:], data)
	return nil
}

// Close is a no-op; there is no external reservation to release. Kept so
// callers that manage a Memory's lifetime alongside other resources (file
// handles, mmap'd tables) don't need a special case for memory.
func (m *Memory) Close() error {
	return nil
}
